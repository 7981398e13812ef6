// Package funding pulls funding-round details out of news articles.
package funding

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/enrich/internal/anthropic"
	"github.com/MikeSquared-Agency/enrich/internal/events"
	"github.com/MikeSquared-Agency/enrich/internal/extractor"
	"github.com/MikeSquared-Agency/enrich/internal/pipeline"
	"github.com/MikeSquared-Agency/enrich/internal/tabular"
	"github.com/MikeSquared-Agency/enrich/internal/tracker"
)

const (
	CSVFile  = "output.csv"
	XLSXFile = "result.xlsx"
	Sheet    = "Sheet1"

	// DefaultSaveEvery is how many articles pass between partial CSV saves.
	DefaultSaveEvery = 10

	colTaskID  = "TASK_ID"
	colSource  = "SOURCE"
	colTitle   = "ARTICLE TITLE"
	colContent = "SCRAPED_CONTENT"

	// Values of the error column.
	ParseFailure     = "Failed to parse response"
	ExhaustedFailure = "Model call exhausted retries"
	NoContentFailure = "No page content"
)

// RequiredColumns must be present in the input CSV.
var RequiredColumns = []string{colTaskID, colSource, colTitle}

// InfoKeys are the JSON keys asked of the model, in output order.
var InfoKeys = []string{
	"fund_receiver", "investors", "date", "round_type", "amount_raised",
	"summary", "scoop_type", "topics", "department",
}

// OutputColumns is the fixed output column order.
var OutputColumns = append(append([]string{colTaskID, colTitle, colSource, colContent}, InfoKeys...), "error", "raw_response")

// PageFetcher returns the readable text of a web page, or "" on failure.
type PageFetcher interface {
	PageText(ctx context.Context, url string) string
}

// Article is one processed input row.
type Article struct {
	Index   int
	TaskID  string
	Title   string
	Source  string
	Content string
	Info    map[string]string
	Error   string
	Raw     string
	Metrics tracker.Metrics
}

func (a Article) row() []string {
	out := []string{a.TaskID, a.Title, a.Source, a.Content}
	for _, k := range InfoKeys {
		out = append(out, a.Info[k])
	}
	return append(out, a.Error, a.Raw)
}

type Config struct {
	InputCSV   string
	ResultsDir string
	Workers    int
	SaveEvery  int
	MaxRows    int
}

type Result struct {
	Articles    int
	Failed      int
	CSVPath     string
	XLSXPath    string
	Interrupted bool
}

type Extractor struct {
	cfg   Config
	fetch PageFetcher
	deps  pipeline.Deps
}

func New(cfg Config, fetch PageFetcher, deps pipeline.Deps) *Extractor {
	if cfg.Workers <= 0 {
		cfg.Workers = pipeline.DefaultWorkers
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = DefaultSaveEvery
	}
	return &Extractor{cfg: cfg, fetch: fetch, deps: deps}
}

func (e *Extractor) csvPath() string  { return filepath.Join(e.cfg.ResultsDir, CSVFile) }
func (e *Extractor) xlsxPath() string { return filepath.Join(e.cfg.ResultsDir, XLSXFile) }

// Run fetches and extracts every article in the input CSV. A missing input
// file is returned as tabular.ErrMissingInput.
func (e *Extractor) Run(ctx context.Context) (Result, error) {
	log := e.deps.Logger

	table, err := tabular.ReadCSV(e.cfg.InputCSV)
	if err != nil {
		return Result{}, err
	}
	log.Info("input read", "path", e.cfg.InputCSV, "encoding", table.Encoding, "rows", len(table.Rows))
	if missing := table.Missing(RequiredColumns...); len(missing) > 0 {
		log.Warn("input is missing required columns", "columns", missing)
	}
	if err := os.MkdirAll(e.cfg.ResultsDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create results dir: %w", err)
	}

	rows := table.Rows
	if e.cfg.MaxRows > 0 && len(rows) > e.cfg.MaxRows {
		rows = rows[:e.cfg.MaxRows]
	}

	sink := pipeline.NewSink(e.cfg.SaveEvery, e.saveCSV, log)
	e.deps.Run.AddTotal(len(rows))

	started, interrupted := pipeline.Dispatch(ctx, e.cfg.Workers, len(rows), func(ctx context.Context, i int) {
		a := e.article(ctx, i, rows[i])
		sink.Complete([]Article{a}, nil)

		records := 1
		if a.Error != "" {
			records = 0
		}
		e.deps.Run.Done(records)
		e.deps.Events.DocumentProcessed(events.DocumentProcessed{
			RunID:    e.deps.Run.ID(),
			Command:  e.deps.Run.Command(),
			Document: a.Source,
			Records:  records,
			Cost:     a.Metrics.TotalCost,
		})
	})
	if interrupted {
		e.deps.Run.Interrupt()
		log.Warn("interrupted, stopped dispatching articles", "started", started, "pending", len(rows)-started)
	}

	articles := sink.Items()
	res := Result{Articles: len(articles), Interrupted: interrupted}
	for _, a := range articles {
		if a.Error != "" {
			res.Failed++
		}
	}

	if err := e.saveCSV(articles); err != nil {
		return res, fmt.Errorf("write csv: %w", err)
	}
	res.CSVPath = e.csvPath()
	if err := tabular.WriteXLSX(e.xlsxPath(), Sheet, OutputColumns, sortedRows(articles)); err != nil {
		return res, fmt.Errorf("write xlsx: %w", err)
	}
	res.XLSXPath = e.xlsxPath()

	log.Info("funding extraction finished", "articles", res.Articles, "failed", res.Failed, "csv", res.CSVPath, "xlsx", res.XLSXPath)
	return res, nil
}

func (e *Extractor) article(ctx context.Context, index int, row tabular.Row) Article {
	a := Article{
		Index:  index,
		TaskID: row[colTaskID],
		Title:  row[colTitle],
		Source: strings.TrimSpace(row[colSource]),
	}
	log := e.deps.Logger.With("task_id", a.TaskID, "url", a.Source)

	a.Content = e.fetch.PageText(ctx, a.Source)
	if a.Content == "" {
		log.Warn("no page content")
		a.Error = NoContentFailure
		return a
	}

	text, m, ok := tracker.Do(ctx, e.deps.Tracker, "article "+a.TaskID, func(ctx context.Context) (string, anthropic.Usage, error) {
		resp, err := e.deps.Extractor.Extract(ctx, extractor.Funding, a.Content)
		if err != nil {
			return "", anthropic.Usage{}, err
		}
		return resp.Text, resp.Usage, nil
	})
	a.Metrics = m
	if !ok {
		a.Error = ExhaustedFailure
		return a
	}

	info, err := decodeInfo(text)
	if err != nil {
		log.Error("could not parse funding response", "error", err, "raw_response", text)
		a.Error, a.Raw = ParseFailure, text
		return a
	}
	a.Info = info
	log.Info("article processed", "fund_receiver", info["fund_receiver"], "round_type", info["round_type"])
	return a
}

// decodeInfo flattens the model's JSON object into one string per key.
// Lists are joined with "; ".
func decodeInfo(text string) (map[string]string, error) {
	var raw map[string]any
	if err := extractor.DecodeJSON(text, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("empty json object")
	}
	out := make(map[string]string, len(InfoKeys))
	for _, k := range InfoKeys {
		out[k] = flatten(raw[k])
	}
	return out, nil
}

func flatten(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// saveCSV rewrites the CSV output in input order. As a sink flush it runs
// with the sink locked.
func (e *Extractor) saveCSV(articles []Article) error {
	return tabular.WriteCSV(e.csvPath(), OutputColumns, sortedRows(articles))
}

func sortedRows(articles []Article) [][]string {
	sorted := slices.Clone(articles)
	slices.SortFunc(sorted, func(a, b Article) int { return cmp.Compare(a.Index, b.Index) })
	rows := make([][]string, 0, len(sorted))
	for _, a := range sorted {
		rows = append(rows, a.row())
	}
	return rows
}
