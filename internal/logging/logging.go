// Package logging sets up the process logger: text lines to stdout and to
// an append-only run log in the results directory.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// FileName is the run log's name inside the results directory.
const FileName = "generation_log.txt"

func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup opens (or creates) the run log under dir and returns a logger that
// writes every record to both stdout and the log. The returned closer closes
// the log file.
func Setup(level, dir string, stdout io.Writer) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create results dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}

	handler := slog.NewTextHandler(io.MultiWriter(stdout, f), &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(handler), f, nil
}
