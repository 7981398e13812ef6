package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/enrich/internal/anthropic"
)

func testTracker(attempts int) (*Tracker, *[]time.Duration) {
	tr := New(attempts, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var waits []time.Duration
	tr.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return tr, &waits
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	tr, waits := testTracker(5)

	got, m, ok := Do(context.Background(), tr, "chunk 1", func(ctx context.Context) (string, anthropic.Usage, error) {
		return "parsed", anthropic.Usage{InputTokens: 1_000_000, OutputTokens: 200_000}, nil
	})

	if !ok {
		t.Fatal("expected success")
	}
	if got != "parsed" {
		t.Errorf("expected parsed, got %q", got)
	}
	if m.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", m.Attempts)
	}
	if !approx(m.InputCost, 0.25) || !approx(m.OutputCost, 0.25) || !approx(m.TotalCost, 0.5) {
		t.Errorf("unexpected costs: %+v", m)
	}
	if len(*waits) != 0 {
		t.Errorf("expected no waits, got %d", len(*waits))
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	tr, waits := testTracker(5)

	calls := 0
	_, m, ok := Do(context.Background(), tr, "chunk 2", func(ctx context.Context) (int, anthropic.Usage, error) {
		calls++
		if calls < 3 {
			return 0, anthropic.Usage{}, errors.New("overloaded")
		}
		return 42, anthropic.Usage{InputTokens: 10, OutputTokens: 2}, nil
	})

	if !ok {
		t.Fatal("expected success")
	}
	if calls != 3 || m.Attempts != 3 {
		t.Errorf("expected 3 attempts, got calls=%d attempts=%d", calls, m.Attempts)
	}
	if len(*waits) != 2 {
		t.Fatalf("expected 2 waits, got %d", len(*waits))
	}
	for _, w := range *waits {
		if w != 5*time.Second {
			t.Errorf("expected fixed 5s delay, got %v", w)
		}
	}
}

func TestDo_Exhausted(t *testing.T) {
	tr, waits := testTracker(5)

	calls := 0
	got, m, ok := Do(context.Background(), tr, "chunk 3", func(ctx context.Context) (*string, anthropic.Usage, error) {
		calls++
		return nil, anthropic.Usage{}, errors.New("connection reset")
	})

	if ok {
		t.Fatal("expected exhausted")
	}
	if got != nil {
		t.Error("expected zero result")
	}
	if calls != 5 {
		t.Errorf("expected exactly 5 attempts, got %d", calls)
	}
	if len(*waits) != 4 {
		t.Errorf("expected 4 waits between 5 attempts, got %d", len(*waits))
	}
	if m != (Metrics{}) {
		t.Errorf("expected empty metrics, got %+v", m)
	}

	totals := tr.Totals()
	if totals.Exhausted != 1 || totals.Calls != 0 {
		t.Errorf("unexpected totals: %+v", totals)
	}
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	tr, _ := testTracker(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, _, ok := Do(ctx, tr, "chunk 4", func(ctx context.Context) (int, anthropic.Usage, error) {
		calls++
		return 0, anthropic.Usage{}, ctx.Err()
	})
	if ok {
		t.Fatal("expected exhausted")
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt after cancellation, got %d", calls)
	}
}

func TestTotals_ConcurrentAccumulation(t *testing.T) {
	tr, _ := testTracker(5)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Do(context.Background(), tr, "doc", func(ctx context.Context) (bool, anthropic.Usage, error) {
				return true, anthropic.Usage{InputTokens: 100, OutputTokens: 10}, nil
			})
		}()
	}
	wg.Wait()

	totals := tr.Totals()
	if totals.Calls != 50 {
		t.Errorf("expected 50 calls, got %d", totals.Calls)
	}
	if totals.InputTokens != 5000 || totals.OutputTokens != 500 {
		t.Errorf("unexpected token totals: %+v", totals)
	}
	want := 5000*InputPricePerMillion/1_000_000 + 500*OutputPricePerMillion/1_000_000
	if math.Abs(totals.TotalCost-want) > 1e-9 {
		t.Errorf("expected total cost %v, got %v", want, totals.TotalCost)
	}
}

func TestNew_Defaults(t *testing.T) {
	tr := New(0, -time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if tr.maxAttempts != DefaultMaxAttempts {
		t.Errorf("expected default attempts, got %d", tr.maxAttempts)
	}
	if tr.delay != 0 {
		t.Errorf("expected negative delay clamped to 0, got %v", tr.delay)
	}
}
