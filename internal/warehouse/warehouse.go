// Package warehouse reads the list of document URLs from the SQL data
// warehouse.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured means no warehouse connection string was provided.
var ErrNotConfigured = errors.New("warehouse not configured")

const (
	DefaultAttempts = 3
	DefaultDelay    = 5 * time.Second
)

type Warehouse struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Warehouse, error) {
	if databaseURL == "" {
		return nil, ErrNotConfigured
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to warehouse: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	return &Warehouse{pool: pool}, nil
}

func (w *Warehouse) Close() {
	w.pool.Close()
}

// URLs runs query and returns the first column of every row. NULL and blank
// values are skipped.
func (w *Warehouse) URLs(ctx context.Context, query string) ([]string, error) {
	rows, err := w.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u *string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		if u == nil || strings.TrimSpace(*u) == "" {
			continue
		}
		urls = append(urls, strings.TrimSpace(*u))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return urls, nil
}

// Source fetches URLs with a fresh connection per attempt.
type Source struct {
	DatabaseURL string
	Query       string
	Attempts    int
	Delay       time.Duration
	Logger      *slog.Logger
}

// URLs connects and queries, retrying failed attempts. It returns
// ErrNotConfigured without any attempt when DatabaseURL is empty.
func (s Source) URLs(ctx context.Context) ([]string, error) {
	if s.DatabaseURL == "" {
		return nil, ErrNotConfigured
	}
	attempts := s.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		urls, err := s.once(ctx)
		if err == nil {
			return urls, nil
		}
		lastErr = err
		s.Logger.Warn("warehouse attempt failed", "attempt", attempt, "max_attempts", attempts, "error", err)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	return nil, fmt.Errorf("warehouse unavailable after %d attempts: %w", attempts, lastErr)
}

func (s Source) once(ctx context.Context) ([]string, error) {
	w, err := New(ctx, s.DatabaseURL)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	return w.URLs(ctx, s.Query)
}
