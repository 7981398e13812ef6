package pipeline

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MikeSquared-Agency/enrich/internal/anthropic"
	"github.com/MikeSquared-Agency/enrich/internal/chunker"
	"github.com/MikeSquared-Agency/enrich/internal/extractor"
	"github.com/MikeSquared-Agency/enrich/internal/progress"
	"github.com/MikeSquared-Agency/enrich/internal/tracker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeModel serves the Messages API. reply maps the user prompt to the
// generated text.
type fakeModel struct {
	server *httptest.Server
	calls  atomic.Int64
}

func newFakeModel(t *testing.T, reply func(prompt string) string) *fakeModel {
	t.Helper()
	m := &fakeModel{}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.calls.Add(1)
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		prompt := ""
		if len(req.Messages) > 0 {
			prompt = req.Messages[0].Content
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": reply(prompt)}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 1000, "output_tokens": 100},
		})
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *fakeModel) deps(command string) Deps {
	llm := anthropic.NewClient("test-key", "test-model")
	llm.SetBaseURL(m.server.URL)

	logger := discardLogger()
	tr := tracker.New(2, 0, logger)
	return Deps{
		Extractor: extractor.New(llm, logger),
		Tracker:   tr,
		Run:       progress.NewRun(command, tr),
		Logger:    logger,
	}
}

func testChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	tok, err := chunker.NewBPE(chunker.DefaultEncoding)
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}
	ch, err := chunker.New(tok, 500, 50)
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	return ch
}

const companyReply = `Company Name: Acme Holdings
Company Address:
- Street: 1 Main St
- City: Springfield
- County: Sangamon
- State: IL
- Country: USA
- ZIP: 62701
Company Revenue: $12M
Company Headcount: 85
Company Industry: Manufacturing
NAICS Code: 332710
SIC Code: 3599
Company Website: https://acme.example
Company Website Status: Active
Company Description: Precision machining.
Company Phone: (217) 555-0100
Headquarter Identification: Yes`

// companyModel answers with a full company block when the chunk mentions
// ACME and with prose otherwise.
func companyModel(t *testing.T) *fakeModel {
	return newFakeModel(t, func(prompt string) string {
		if strings.Contains(prompt, "ACME") {
			return companyReply
		}
		return "I could not find any company information in this chunk."
	})
}
