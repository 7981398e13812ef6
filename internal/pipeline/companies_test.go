package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/enrich/internal/checkpoint"
	"github.com/MikeSquared-Agency/enrich/internal/fields"
	"github.com/MikeSquared-Agency/enrich/internal/tabular"
)

type staticURLs struct {
	urls []string
	err  error
}

func (s staticURLs) URLs(ctx context.Context) ([]string, error) {
	return s.urls, s.err
}

type mapDownloader map[string]string

func (m mapDownloader) Download(ctx context.Context, url string) (string, error) {
	text, ok := m[url]
	if !ok {
		return "", errors.New("not found")
	}
	return text, nil
}

func writeInput(t *testing.T, dir, name, text string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func companyConfig(t *testing.T) CompaniesConfig {
	root := t.TempDir()
	return CompaniesConfig{
		InputDir:        filepath.Join(root, "input"),
		ResultsDir:      filepath.Join(root, "results"),
		Workers:         2,
		CheckpointEvery: 10,
	}
}

func readCompanies(t *testing.T, path string) []map[string]string {
	t.Helper()
	rows, err := tabular.ReadXLSX(path, CompanySheet)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("expected a header row")
	}
	header := rows[0]
	for i, col := range CompanyColumns {
		if header[i] != col {
			t.Fatalf("column %d: expected %q, got %q", i, col, header[i])
		}
	}
	var out []map[string]string
	for _, r := range rows[1:] {
		m := map[string]string{}
		for i, col := range header {
			if i < len(r) {
				m[col] = r[i]
			}
		}
		out = append(out, m)
	}
	return out
}

func TestCompanies_WarehouseURLs(t *testing.T) {
	model := companyModel(t)
	cfg := companyConfig(t)

	urls := staticURLs{urls: []string{"https://filings.example/a/acme.txt"}}
	fetch := mapDownloader{"https://filings.example/a/acme.txt": "ANNUAL REPORT ACME HOLDINGS"}

	c := NewCompanies(cfg, urls, fetch, testChunker(t), model.deps("companies"))
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Records != 1 || res.Interrupted {
		t.Fatalf("unexpected result %+v", res)
	}

	rows := readCompanies(t, res.OutputPath)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["company_name"] != "Acme Holdings" || rows[0]["city"] != "Springfield" {
		t.Errorf("unexpected row %+v", rows[0])
	}
	if rows[0]["source_url"] != "https://filings.example/a/acme.txt" || rows[0]["source_file"] != "" {
		t.Errorf("expected source_url only, got %+v", rows[0])
	}

	cached, err := os.ReadFile(filepath.Join(cfg.InputDir, "filings.example_a_acme.txt"))
	if err != nil || string(cached) != "ANNUAL REPORT ACME HOLDINGS" {
		t.Errorf("expected download cached in input dir, got %q %v", cached, err)
	}
	if _, err := os.Stat(filepath.Join(cfg.ResultsDir, checkpoint.FileName)); !os.IsNotExist(err) {
		t.Error("checkpoint should be removed after a completed run")
	}
}

func TestCompanies_WarehouseErrorFallsBackToFiles(t *testing.T) {
	model := companyModel(t)
	cfg := companyConfig(t)
	writeInput(t, cfg.InputDir, "acme.txt", "ACME HOLDINGS 10-K")
	writeInput(t, cfg.InputDir, "notes.md", "ACME ignored, not a .txt file")

	urls := staticURLs{err: errors.New("connection refused")}
	c := NewCompanies(cfg, urls, mapDownloader{}, testChunker(t), model.deps("companies"))

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := readCompanies(t, res.OutputPath)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if !strings.HasSuffix(rows[0]["source_file"], "acme.txt") || rows[0]["source_url"] != "" {
		t.Errorf("expected source_file only, got %+v", rows[0])
	}
}

func TestCompanies_EmptyURLPassFallsBackToFiles(t *testing.T) {
	model := companyModel(t)
	cfg := companyConfig(t)
	writeInput(t, cfg.InputDir, "acme.txt", "ACME HOLDINGS 10-K")

	urls := staticURLs{urls: []string{"https://filings.example/blank.txt"}}
	fetch := mapDownloader{"https://filings.example/blank.txt": "quarterly weather report"}

	c := NewCompanies(cfg, urls, fetch, testChunker(t), model.deps("companies"))
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := readCompanies(t, res.OutputPath)
	if len(rows) != 1 || !strings.HasSuffix(rows[0]["source_file"], "acme.txt") {
		t.Fatalf("expected the local file record, got %+v", rows)
	}
}

func TestCompanies_NoDocuments(t *testing.T) {
	model := companyModel(t)
	cfg := companyConfig(t)

	c := NewCompanies(cfg, nil, mapDownloader{}, testChunker(t), model.deps("companies"))
	_, err := c.Run(context.Background())
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}
	if model.calls.Load() != 0 {
		t.Errorf("expected no model calls, got %d", model.calls.Load())
	}
}

func TestCompanies_NothingExtracted(t *testing.T) {
	model := companyModel(t)
	cfg := companyConfig(t)
	writeInput(t, cfg.InputDir, "memo.txt", "lunch menu for friday")

	c := NewCompanies(cfg, nil, mapDownloader{}, testChunker(t), model.deps("companies"))
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Records != 0 || res.OutputPath != "" {
		t.Errorf("expected no output, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(cfg.ResultsDir, CompanyOutputFile)); !os.IsNotExist(err) {
		t.Error("no spreadsheet should be written")
	}
	if len(res.Failures) != 1 {
		t.Errorf("expected one failure note, got %v", res.Failures)
	}
}

func TestCompanies_PartialSaves(t *testing.T) {
	model := companyModel(t)
	cfg := companyConfig(t)
	cfg.CheckpointEvery = 2
	cfg.Workers = 1
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeInput(t, cfg.InputDir, name, "ACME "+name)
	}

	deps := model.deps("companies")
	c := NewCompanies(cfg, nil, mapDownloader{}, testChunker(t), deps)
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Records != 3 {
		t.Errorf("expected 3 records, got %d", res.Records)
	}
	if rows := readCompanies(t, res.OutputPath); len(rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(rows))
	}

	snap := deps.Run.Snapshot()
	if snap.DocumentsTotal != 3 || snap.DocumentsDone != 3 || snap.Records != 3 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Usage.Calls != 3 {
		t.Errorf("expected 3 tracked calls, got %d", snap.Usage.Calls)
	}
}

func TestCompanies_MaxDocuments(t *testing.T) {
	model := companyModel(t)
	cfg := companyConfig(t)
	cfg.MaxDocuments = 2
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeInput(t, cfg.InputDir, name, "ACME "+name)
	}

	c := NewCompanies(cfg, nil, mapDownloader{}, testChunker(t), model.deps("companies"))
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Records != 2 {
		t.Errorf("expected 2 records, got %d", res.Records)
	}
}

func TestCompanies_ResumeSkipsProcessed(t *testing.T) {
	model := companyModel(t)
	cfg := companyConfig(t)
	cfg.Resume = true
	done := writeInput(t, cfg.InputDir, "a.txt", "ACME a")
	writeInput(t, cfg.InputDir, "b.txt", "ACME b")

	prev := checkpoint.New(filepath.Join(cfg.ResultsDir, checkpoint.FileName), "run-earlier")
	prev.MarkProcessed(done, fields.Record{"company_name": "Earlier Co", "source_file": done})
	if err := prev.Save(); err != nil {
		t.Fatal(err)
	}

	deps := model.deps("companies")
	c := NewCompanies(cfg, nil, mapDownloader{}, testChunker(t), deps)
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if model.calls.Load() != 1 {
		t.Errorf("expected only the unprocessed document to be sent, got %d calls", model.calls.Load())
	}
	if deps.Run.ID() != "run-earlier" {
		t.Errorf("expected resumed run id, got %q", deps.Run.ID())
	}
	rows := readCompanies(t, res.OutputPath)
	if len(rows) != 2 || rows[0]["company_name"] != "Earlier Co" {
		t.Errorf("expected checkpointed row first, got %+v", rows)
	}
}

func TestCompanies_Interrupted(t *testing.T) {
	model := companyModel(t)
	cfg := companyConfig(t)
	writeInput(t, cfg.InputDir, "a.txt", "ACME a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	deps := model.deps("companies")
	c := NewCompanies(cfg, nil, mapDownloader{}, testChunker(t), deps)
	res, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Interrupted || res.Records != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if !deps.Run.Snapshot().Interrupted {
		t.Error("run should be marked interrupted")
	}
	if _, err := os.Stat(filepath.Join(cfg.ResultsDir, checkpoint.FileName)); err != nil {
		t.Errorf("checkpoint should be kept for resume: %v", err)
	}
}

func TestCompanies_FreshRunRemovesOldOutput(t *testing.T) {
	model := companyModel(t)
	cfg := companyConfig(t)
	writeInput(t, cfg.InputDir, "memo.txt", "nothing useful")
	stale := writeInput(t, cfg.ResultsDir, CompanyOutputFile, "stale")

	c := NewCompanies(cfg, nil, mapDownloader{}, testChunker(t), model.deps("companies"))
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale output should be removed on a fresh run")
	}
}

func TestCacheName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://filings.example/a/acme.txt", "filings.example_a_acme.txt"},
		{"https://one.example/index.html", "one.example_index.html.txt"},
		{"https://two.example/index.html", "two.example_index.html.txt"},
		{"https://filings.example/2023/10-K", "filings.example_2023_10-K.txt"},
		{"https://filings.example/2024/10-K", "filings.example_2024_10-K.txt"},
		{"http://host.example:8080/", "host.example_8080.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := cacheName(tt.url)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("cacheName(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}

	if _, err := cacheName("not a url"); err == nil {
		t.Error("expected an error for a URL without a host")
	}
}
