// Package events publishes run progress to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectDocumentProcessed = "enrich.document.processed"
	SubjectRunCompleted      = "enrich.run.completed"
)

// DocumentProcessed is published once per finished input unit (document,
// company, profile or article).
type DocumentProcessed struct {
	RunID    string  `json:"run_id"`
	Command  string  `json:"command"`
	Document string  `json:"document"`
	Records  int     `json:"records"`
	Cost     float64 `json:"cost"`
}

// RunCompleted is published when a command finishes, interrupted or not.
type RunCompleted struct {
	RunID       string  `json:"run_id"`
	Command     string  `json:"command"`
	Documents   int     `json:"documents"`
	Records     int     `json:"records"`
	TotalCost   float64 `json:"total_cost"`
	ElapsedSecs float64 `json:"elapsed_seconds"`
	Interrupted bool    `json:"interrupted"`
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("enrich"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Close flushes pending publishes and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Flush(); err != nil {
		c.logger.Warn("nats flush failed", "error", err)
	}
	c.conn.Close()
}
