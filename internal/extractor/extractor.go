package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/enrich/internal/anthropic"
)

// Completer sends one request to the model.
type Completer interface {
	Complete(ctx context.Context, r anthropic.Request) (anthropic.Completion, error)
}

// Template is a fixed prompt plus the generation settings it is sent with.
// Prompt is a fmt format string.
type Template struct {
	Name        string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response is the raw model text plus usage.
type Response struct {
	Text  string
	Usage anthropic.Usage
}

type Extractor struct {
	llm    Completer
	logger *slog.Logger
}

func New(llm Completer, logger *slog.Logger) *Extractor {
	return &Extractor{llm: llm, logger: logger}
}

// Render fills the prompt's verbs with args.
func (t Template) Render(args ...any) string {
	return fmt.Sprintf(t.Prompt, args...)
}

// Extract renders t with args and issues exactly one request. Failures are
// returned as is; retrying is up to the caller.
func (e *Extractor) Extract(ctx context.Context, t Template, args ...any) (Response, error) {
	prompt := t.Render(args...)

	e.logger.Debug("sending prompt", "template", t.Name, "prompt_len", len(prompt))

	c, err := e.llm.Complete(ctx, anthropic.Request{
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		MaxTokens:   t.MaxTokens,
		Temperature: t.Temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", t.Name, err)
	}

	e.logger.Debug("response received",
		"template", t.Name,
		"preview", preview(c.Text, 500),
		"input_tokens", c.Usage.InputTokens,
		"output_tokens", c.Usage.OutputTokens,
	)

	return Response{Text: c.Text, Usage: c.Usage}, nil
}

// DecodeJSON unmarshals a JSON object from model text, tolerating markdown
// code fences and prose around the object.
func DecodeJSON(text string, v any) error {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("parse json response: %w", err)
	}
	return nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
