// Package tracker wraps model calls with a bounded retry policy and keeps
// token and dollar accounting for the run. It is the only place cost is
// computed.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/enrich/internal/anthropic"
)

const (
	DefaultMaxAttempts = 5
	DefaultDelay       = 5 * time.Second

	// Dollars per million tokens.
	InputPricePerMillion  = 0.25
	OutputPricePerMillion = 1.25
)

// Metrics describes one successful tracked call.
type Metrics struct {
	InputTokens  int
	OutputTokens int
	InputCost    float64
	OutputCost   float64
	TotalCost    float64
	Elapsed      time.Duration
	Attempts     int
}

// Totals are run-wide sums across every tracked call.
type Totals struct {
	Calls        int     `json:"calls"`
	Exhausted    int     `json:"exhausted"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	InputCost    float64 `json:"input_cost"`
	OutputCost   float64 `json:"output_cost"`
	TotalCost    float64 `json:"total_cost"`
}

type Tracker struct {
	maxAttempts int
	delay       time.Duration
	logger      *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu     sync.Mutex
	totals Totals
}

func New(maxAttempts int, delay time.Duration, logger *slog.Logger) *Tracker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if delay < 0 {
		delay = 0
	}
	return &Tracker{
		maxAttempts: maxAttempts,
		delay:       delay,
		logger:      logger,
		sleep:       sleepCtx,
		now:         time.Now,
	}
}

// Do runs call until it succeeds or the attempt budget is spent. call
// performs one request and parses its result: a returned error means the
// request itself failed and may be retried, while parse outcomes travel in T
// and are never retried. The bool is false when every attempt failed; the
// exhausted condition is logged and counted, never returned as an error.
func Do[T any](ctx context.Context, t *Tracker, label string, call func(ctx context.Context) (T, anthropic.Usage, error)) (T, Metrics, bool) {
	var zero T
	start := t.now()

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		result, usage, err := call(ctx)
		if err == nil {
			m := t.record(usage, t.now().Sub(start), attempt)
			t.logger.Info("call completed",
				"call", label,
				"attempts", attempt,
				"input_tokens", m.InputTokens,
				"output_tokens", m.OutputTokens,
				"input_cost", m.InputCost,
				"output_cost", m.OutputCost,
				"total_cost", m.TotalCost,
				"elapsed", m.Elapsed,
			)
			return result, m, true
		}

		t.logger.Warn("call failed", "call", label, "attempt", attempt, "max_attempts", t.maxAttempts, "error", err)

		if attempt == t.maxAttempts {
			break
		}
		if err := t.sleep(ctx, t.delay); err != nil {
			t.logger.Warn("retry wait interrupted", "call", label, "error", err)
			break
		}
	}

	t.mu.Lock()
	t.totals.Exhausted++
	t.mu.Unlock()

	t.logger.Error("call exhausted retries", "call", label, "max_attempts", t.maxAttempts)
	return zero, Metrics{}, false
}

// Totals returns a snapshot of the run-wide sums.
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

func (t *Tracker) record(u anthropic.Usage, elapsed time.Duration, attempts int) Metrics {
	in := float64(u.InputTokens) * InputPricePerMillion / 1_000_000
	out := float64(u.OutputTokens) * OutputPricePerMillion / 1_000_000
	m := Metrics{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		InputCost:    in,
		OutputCost:   out,
		TotalCost:    in + out,
		Elapsed:      elapsed,
		Attempts:     attempts,
	}

	t.mu.Lock()
	t.totals.Calls++
	t.totals.InputTokens += m.InputTokens
	t.totals.OutputTokens += m.OutputTokens
	t.totals.InputCost += m.InputCost
	t.totals.OutputCost += m.OutputCost
	t.totals.TotalCost += m.TotalCost
	t.mu.Unlock()

	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
