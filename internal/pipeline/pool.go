package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/enrich/internal/events"
	"github.com/MikeSquared-Agency/enrich/internal/extractor"
	"github.com/MikeSquared-Agency/enrich/internal/progress"
	"github.com/MikeSquared-Agency/enrich/internal/tracker"
)

// DefaultWorkers bounds how many units are processed at once.
const DefaultWorkers = 5

// Deps are the collaborators every command shares.
type Deps struct {
	Extractor *extractor.Extractor
	Tracker   *tracker.Tracker
	Run       *progress.Run
	Events    *events.Emitter
	Logger    *slog.Logger
}

// Dispatch runs fn for units 0..n-1 on at most workers goroutines. Once ctx
// is cancelled no further units are started, but units already running
// finish with a context that is not cancelled. It reports how many units were
// started and whether ctx was cancelled.
func Dispatch(ctx context.Context, workers, n int, fn func(ctx context.Context, i int)) (started int, interrupted bool) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var g errgroup.Group
	g.SetLimit(workers)
	work := context.WithoutCancel(ctx)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(work, i)
			return nil
		})
		started++
	}
	_ = g.Wait()

	return started, ctx.Err() != nil
}

// Sink collects output rows from concurrent workers and flushes a snapshot
// every few completed units.
type Sink[T any] struct {
	every  int
	flush  func(items []T) error
	logger *slog.Logger

	mu        sync.Mutex
	items     []T
	completed int
}

// NewSink flushes after every `every` completed units. flush runs with the
// sink locked and must not keep the slice.
func NewSink[T any](every int, flush func(items []T) error, logger *slog.Logger) *Sink[T] {
	if every <= 0 {
		every = 1
	}
	return &Sink[T]{every: every, flush: flush, logger: logger}
}

// Seed preloads items, e.g. from a checkpoint, without counting a unit.
func (s *Sink[T]) Seed(items []T) {
	s.mu.Lock()
	s.items = append(s.items, items...)
	s.mu.Unlock()
}

// Complete records one finished unit with its items. hook, if non-nil, runs
// under the same lock before the flush check.
func (s *Sink[T]) Complete(items []T, hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, items...)
	s.completed++
	if hook != nil {
		hook()
	}
	if s.completed%s.every == 0 {
		if err := s.flush(s.items); err != nil {
			s.logger.Error("partial save failed", "completed", s.completed, "error", err)
			return
		}
		s.logger.Info("partial results saved", "completed", s.completed, "rows", len(s.items))
	}
}

// Flush writes the current items.
func (s *Sink[T]) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(s.items)
}

// Items returns a copy of the collected items.
func (s *Sink[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Sink[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
