// Package pipeline drives document extraction: it picks document sources,
// fans documents out over a bounded worker pool, and assembles the result
// table with periodic partial saves.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MikeSquared-Agency/enrich/internal/anthropic"
	"github.com/MikeSquared-Agency/enrich/internal/checkpoint"
	"github.com/MikeSquared-Agency/enrich/internal/chunker"
	"github.com/MikeSquared-Agency/enrich/internal/events"
	"github.com/MikeSquared-Agency/enrich/internal/extractor"
	"github.com/MikeSquared-Agency/enrich/internal/fields"
	"github.com/MikeSquared-Agency/enrich/internal/merge"
	"github.com/MikeSquared-Agency/enrich/internal/tabular"
	"github.com/MikeSquared-Agency/enrich/internal/tracker"
)

// ErrNoDocuments means neither the warehouse nor the input directory had
// anything to process. It is a reportable outcome, not a crash.
var ErrNoDocuments = errors.New("no documents to process")

const (
	CompanyOutputFile = "result.xlsx"
	CompanySheet      = "Processed Data"

	colSourceURL  = "source_url"
	colSourceFile = "source_file"
)

// CompanyColumns is the fixed output column order.
var CompanyColumns = append(fields.Company.Keys(), colSourceURL, colSourceFile)

// URLSource lists document URLs, typically from the warehouse.
type URLSource interface {
	URLs(ctx context.Context) ([]string, error)
}

// Downloader fetches a document body as text.
type Downloader interface {
	Download(ctx context.Context, url string) (string, error)
}

// CompaniesConfig controls one company extraction run.
type CompaniesConfig struct {
	InputDir        string
	ResultsDir      string
	Workers         int
	CheckpointEvery int
	MaxDocuments    int
	Resume          bool
}

// Document is one source to extract from: a URL or a local file.
type Document struct {
	URL  string
	Path string
}

func (d Document) ID() string {
	if d.URL != "" {
		return d.URL
	}
	return d.Path
}

// CompaniesResult summarises a finished run.
type CompaniesResult struct {
	Records     int
	OutputPath  string
	Interrupted bool
	Failures    []string
}

type Companies struct {
	cfg     CompaniesConfig
	urls    URLSource
	fetch   Downloader
	chunker *chunker.Chunker
	deps    Deps

	state *checkpoint.State
	sink  *Sink[fields.Record]
}

// NewCompanies wires a company run. urls may be nil when no warehouse is
// configured.
func NewCompanies(cfg CompaniesConfig, urls URLSource, fetch Downloader, ch *chunker.Chunker, deps Deps) *Companies {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Companies{cfg: cfg, urls: urls, fetch: fetch, chunker: ch, deps: deps}
}

func (c *Companies) outputPath() string {
	return filepath.Join(c.cfg.ResultsDir, CompanyOutputFile)
}

// Run processes warehouse URLs, falling back to local .txt files when the
// warehouse is unavailable or empty, and once more when the URL pass yields
// no records. It returns ErrNoDocuments when there was nothing to process.
func (c *Companies) Run(ctx context.Context) (CompaniesResult, error) {
	log := c.deps.Logger

	if err := os.MkdirAll(c.cfg.ResultsDir, 0o755); err != nil {
		return CompaniesResult{}, fmt.Errorf("create results dir: %w", err)
	}
	if err := c.openState(); err != nil {
		return CompaniesResult{}, err
	}

	c.sink = NewSink(c.cfg.CheckpointEvery, c.save, log)
	c.sink.Seed(c.state.Records)

	var (
		res       CompaniesResult
		urlPassed bool
	)

	urls := c.fetchURLs(ctx)
	if len(urls) > 0 {
		docs := make([]Document, 0, len(urls))
		for _, u := range urls {
			docs = append(docs, Document{URL: u})
		}
		log.Info("processing warehouse urls", "count", len(docs))
		res.Interrupted = c.process(ctx, docs)
		urlPassed = true
	} else {
		log.Info("no urls from warehouse, falling back to input directory", "dir", c.cfg.InputDir)
	}

	if !urlPassed || (!res.Interrupted && c.sink.Len() == 0) {
		files, err := c.localFiles()
		if err != nil {
			return res, err
		}
		switch {
		case len(files) > 0:
			if urlPassed {
				log.Info("url pass produced no records, processing input directory as a final fallback", "files", len(files))
			}
			res.Interrupted = c.process(ctx, files)
		case !urlPassed:
			log.Warn("no .txt files found in input directory", "dir", c.cfg.InputDir)
			return res, ErrNoDocuments
		}
	}

	res.Records = c.sink.Len()
	res.Failures = c.state.Errors

	if res.Records == 0 {
		log.Warn("no company information was extracted, no spreadsheet written")
		if err := c.state.Save(); err != nil {
			log.Error("checkpoint save failed", "error", err)
		}
		return res, nil
	}

	if err := c.sink.Flush(); err != nil {
		return res, fmt.Errorf("write results: %w", err)
	}
	res.OutputPath = c.outputPath()

	if !res.Interrupted {
		if err := c.state.Remove(); err != nil {
			log.Warn("could not remove checkpoint", "error", err)
		}
	}

	log.Info("company extraction finished", "records", res.Records, "output", res.OutputPath, "interrupted", res.Interrupted)
	return res, nil
}

func (c *Companies) openState() error {
	statePath := filepath.Join(c.cfg.ResultsDir, checkpoint.FileName)
	runID := c.deps.Run.ID()

	if !c.cfg.Resume {
		if err := os.Remove(c.outputPath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove previous output: %w", err)
		}
		c.state = checkpoint.New(statePath, runID)
		return nil
	}

	s, err := checkpoint.Load(statePath, runID)
	if err != nil {
		return err
	}
	c.deps.Run.Resume(s.RunID)
	c.deps.Logger.Info("resuming from checkpoint", "run_id", s.RunID, "processed", len(s.Processed), "records", len(s.Records))
	c.state = s
	return nil
}

func (c *Companies) fetchURLs(ctx context.Context) []string {
	if c.urls == nil {
		return nil
	}
	urls, err := c.urls.URLs(ctx)
	if err != nil {
		c.deps.Logger.Warn("warehouse unavailable", "error", err)
		return nil
	}
	c.deps.Logger.Info("retrieved urls from warehouse", "count", len(urls))
	return urls
}

func (c *Companies) localFiles() ([]Document, error) {
	paths, err := filepath.Glob(filepath.Join(c.cfg.InputDir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("list input dir: %w", err)
	}
	c.deps.Logger.Info("found input files", "dir", c.cfg.InputDir, "count", len(paths))

	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		docs = append(docs, Document{Path: p})
	}
	return docs, nil
}

// process runs docs through the worker pool and reports whether the run was
// interrupted.
func (c *Companies) process(ctx context.Context, docs []Document) bool {
	pending := docs[:0:0]
	for _, d := range docs {
		if c.state.IsProcessed(d.ID()) {
			continue
		}
		pending = append(pending, d)
	}
	if skipped := len(docs) - len(pending); skipped > 0 {
		c.deps.Logger.Info("skipping documents from checkpoint", "skipped", skipped)
	}
	if c.cfg.MaxDocuments > 0 && len(pending) > c.cfg.MaxDocuments {
		pending = pending[:c.cfg.MaxDocuments]
	}

	c.deps.Run.AddTotal(len(pending))

	started, interrupted := Dispatch(ctx, c.cfg.Workers, len(pending), func(ctx context.Context, i int) {
		c.handle(ctx, pending[i])
	})
	if interrupted {
		c.deps.Run.Interrupt()
		c.deps.Logger.Warn("interrupted, stopped dispatching documents", "started", started, "pending", len(pending)-started)
	}
	return interrupted
}

func (c *Companies) handle(ctx context.Context, doc Document) {
	rec, cost, failure := c.extractDocument(ctx, doc)

	var items []fields.Record
	if rec != nil {
		items = append(items, rec)
	}
	c.sink.Complete(items, func() {
		c.state.MarkProcessed(doc.ID(), rec)
		if failure != "" {
			c.state.AddError(doc.ID() + ": " + failure)
		}
	})
	c.deps.Run.Done(len(items))

	c.deps.Events.DocumentProcessed(events.DocumentProcessed{
		RunID:    c.deps.Run.ID(),
		Command:  c.deps.Run.Command(),
		Document: doc.ID(),
		Records:  len(items),
		Cost:     cost,
	})
}

// extractDocument returns the merged record (nil when nothing usable was
// found), the dollar cost of its calls, and a failure note for the run log.
func (c *Companies) extractDocument(ctx context.Context, doc Document) (fields.Record, float64, string) {
	log := c.deps.Logger.With("document", doc.ID())

	text, err := c.load(ctx, doc)
	if err != nil {
		log.Error("failed to load document", "error", err)
		return nil, 0, err.Error()
	}

	chunks := c.chunker.Split(text)
	log.Info("document chunked", "chunks", len(chunks))
	if len(chunks) == 0 {
		return nil, 0, "empty document"
	}

	var (
		parts []fields.Record
		cost  float64
	)
	for _, ch := range chunks {
		label := fmt.Sprintf("%s chunk %d/%d", doc.ID(), ch.Number, len(chunks))
		rec, m, ok := tracker.Do(ctx, c.deps.Tracker, label, func(ctx context.Context) (fields.Record, anthropic.Usage, error) {
			resp, err := c.deps.Extractor.Extract(ctx, extractor.CompanyChunk, ch.Number, ch.Text)
			if err != nil {
				return nil, anthropic.Usage{}, err
			}
			return fields.Company.Parse(resp.Text), resp.Usage, nil
		})
		if !ok {
			log.Warn("chunk skipped after retries", "chunk", ch.Number)
			continue
		}
		cost += m.TotalCost
		if rec.Empty() {
			log.Info("no company info in chunk", "chunk", ch.Number)
			continue
		}
		parts = append(parts, rec)
	}

	merged, ok := merge.Merge(fields.Company.Keys(), parts)
	if !ok {
		log.Warn("no company info extracted from document")
		return nil, cost, "no fields extracted"
	}

	if doc.URL != "" {
		merged[colSourceURL] = doc.URL
	} else {
		merged[colSourceFile] = doc.Path
	}
	log.Info("company extracted", "company", merged["company_name"])
	return merged, cost, ""
}

func (c *Companies) load(ctx context.Context, doc Document) (string, error) {
	if doc.URL == "" {
		b, err := os.ReadFile(doc.Path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", doc.Path, err)
		}
		return string(b), nil
	}

	text, err := c.fetch.Download(ctx, doc.URL)
	if err != nil {
		return "", err
	}
	if err := c.cache(doc.URL, text); err != nil {
		c.deps.Logger.Warn("could not cache download", "url", doc.URL, "error", err)
	}
	return text, nil
}

// cache keeps a copy of a downloaded document in the input directory so a
// later run can pick it up as a local file.
func (c *Companies) cache(rawURL, text string) error {
	name, err := cacheName(rawURL)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.cfg.InputDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.cfg.InputDir, name), []byte(text), 0o644)
}

// cacheName flattens host and path into one .txt file name, so documents
// with the same last path element on different hosts or directories do not
// collide.
func cacheName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '_'
	}, u.Host+u.EscapedPath())
	name = strings.Trim(name, "_.")
	if !strings.HasSuffix(strings.ToLower(name), ".txt") {
		name += ".txt"
	}
	return name, nil
}

// save writes the spreadsheet snapshot and the checkpoint. It runs with the
// sink locked.
func (c *Companies) save(records []fields.Record) error {
	if err := c.state.Save(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := make([]string, len(CompanyColumns))
		for i, col := range CompanyColumns {
			row[i] = r[col]
		}
		rows = append(rows, row)
	}
	return tabular.WriteXLSX(c.outputPath(), CompanySheet, CompanyColumns, rows)
}
