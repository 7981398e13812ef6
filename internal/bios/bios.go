// Package bios writes and grades professional biographies for a list of
// profiles.
package bios

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/enrich/internal/anthropic"
	"github.com/MikeSquared-Agency/enrich/internal/events"
	"github.com/MikeSquared-Agency/enrich/internal/extractor"
	"github.com/MikeSquared-Agency/enrich/internal/merge"
	"github.com/MikeSquared-Agency/enrich/internal/pipeline"
	"github.com/MikeSquared-Agency/enrich/internal/tabular"
	"github.com/MikeSquared-Agency/enrich/internal/tracker"
)

const (
	OutputFile = "bio_data.xlsx"
	Sheet      = "Bio Data"

	// MinBioLength is the floor for the required bio length.
	MinBioLength = 200
	// MaxGenerations bounds how often a too-short bio is regenerated.
	MaxGenerations = 5

	// InsufficientData is the bio recorded for rows with nothing to work with.
	InsufficientData = "Insufficient data provided to generate a biography."
)

const (
	colProfileID    = "PROFILE_ID"
	colFullName     = "FULL_NAME"
	colLocation     = "LOCATION"
	colCompanyName  = "COMPANY_NAME"
	colPosition     = "CURRENT_POSITION"
	colBiography    = "PERSON_BIOGRAPHY"
	colPrevCompany  = "COMPANY_NAME_PREV"
	colPrevPosition = "PREVIOUS_POSITION"
	colDegree       = "DEGREE"
	colInstitution  = "INSTITUTION_NAME"
	colSocialURL    = "SOCIAL_URL"
)

// RequiredColumns must be present in the input CSV.
var RequiredColumns = []string{colProfileID, colFullName, colLocation, colCompanyName, colPosition, colBiography}

// OutputColumns is the fixed output column order.
var OutputColumns = []string{
	"name", "profile_id", "bio", "rating", "explanation",
	"bio_input_tokens", "bio_output_tokens", "bio_input_cost", "bio_output_cost", "bio_total_cost", "bio_time_taken",
	"eval_input_tokens", "eval_output_tokens", "eval_input_cost", "eval_output_cost", "eval_total_cost", "eval_time_taken",
	"total_cost", "total_time_taken",
	"person_biography_length", "ai_generated_biography_length", "generation_attempts",
}

// Profile is one output row.
type Profile struct {
	Index       int
	Name        string
	ProfileID   string
	Bio         string
	Rating      string
	Explanation string

	Generation tracker.Metrics
	Evaluation tracker.Metrics

	SourceLength int
	BioLength    int
	Attempts     int
}

func (p Profile) TotalCost() float64 {
	return p.Generation.TotalCost + p.Evaluation.TotalCost
}

func (p Profile) row() []string {
	g, e := p.Generation, p.Evaluation
	return []string{
		p.Name, p.ProfileID, p.Bio, p.Rating, p.Explanation,
		strconv.Itoa(g.InputTokens), strconv.Itoa(g.OutputTokens), money(g.InputCost), money(g.OutputCost), money(g.TotalCost), seconds(g.Elapsed.Seconds()),
		strconv.Itoa(e.InputTokens), strconv.Itoa(e.OutputTokens), money(e.InputCost), money(e.OutputCost), money(e.TotalCost), seconds(e.Elapsed.Seconds()),
		money(p.TotalCost()), seconds((g.Elapsed + e.Elapsed).Seconds()),
		strconv.Itoa(p.SourceLength), strconv.Itoa(p.BioLength), strconv.Itoa(p.Attempts),
	}
}

type Config struct {
	InputCSV        string
	ResultsDir      string
	Workers         int
	CheckpointEvery int
	MaxRows         int
}

type Result struct {
	Profiles    int
	Failed      int
	OutputPath  string
	Interrupted bool
}

type Writer struct {
	cfg  Config
	deps pipeline.Deps
	out  string
}

func New(cfg Config, deps pipeline.Deps) *Writer {
	if cfg.Workers <= 0 {
		cfg.Workers = pipeline.DefaultWorkers
	}
	return &Writer{cfg: cfg, deps: deps, out: filepath.Join(cfg.ResultsDir, OutputFile)}
}

// Run generates a bio for every input row and writes the spreadsheet. A
// missing input file is returned as tabular.ErrMissingInput.
func (w *Writer) Run(ctx context.Context) (Result, error) {
	log := w.deps.Logger

	table, err := tabular.ReadCSV(w.cfg.InputCSV)
	if err != nil {
		return Result{}, err
	}
	log.Info("input read", "path", w.cfg.InputCSV, "encoding", table.Encoding, "rows", len(table.Rows))
	if missing := table.Missing(RequiredColumns...); len(missing) > 0 {
		log.Warn("input is missing required columns", "columns", missing)
	}

	if err := os.MkdirAll(w.cfg.ResultsDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create results dir: %w", err)
	}
	if err := os.Remove(w.out); err != nil && !os.IsNotExist(err) {
		return Result{}, fmt.Errorf("remove previous output: %w", err)
	}

	rows := table.Rows
	if w.cfg.MaxRows > 0 && len(rows) > w.cfg.MaxRows {
		rows = rows[:w.cfg.MaxRows]
	}
	rows = fillRequired(rows, log)

	sink := pipeline.NewSink(w.cfg.CheckpointEvery, w.save, log)
	w.deps.Run.AddTotal(len(rows))

	var res Result
	started, interrupted := pipeline.Dispatch(ctx, w.cfg.Workers, len(rows), func(ctx context.Context, i int) {
		p, ok := w.profile(ctx, i, rows[i])

		var items []Profile
		if ok {
			items = append(items, p)
		}
		sink.Complete(items, nil)
		w.deps.Run.Done(len(items))
		w.deps.Events.DocumentProcessed(events.DocumentProcessed{
			RunID:    w.deps.Run.ID(),
			Command:  w.deps.Run.Command(),
			Document: rows[i][colProfileID],
			Records:  len(items),
			Cost:     p.TotalCost(),
		})
	})
	if interrupted {
		w.deps.Run.Interrupt()
		log.Warn("interrupted, stopped dispatching profiles", "started", started, "pending", len(rows)-started)
	}

	res.Interrupted = interrupted
	res.Profiles = sink.Len()
	res.Failed = started - res.Profiles
	if err := sink.Flush(); err != nil {
		return res, fmt.Errorf("write results: %w", err)
	}
	res.OutputPath = w.out

	log.Info("bio generation finished", "profiles", res.Profiles, "failed", res.Failed, "output", w.out)
	return res, nil
}

// profile runs generation and evaluation for one row. ok is false when no
// acceptable bio came out.
func (w *Writer) profile(ctx context.Context, index int, row tabular.Row) (Profile, bool) {
	name := row[colFullName]
	log := w.deps.Logger.With("profile_id", row[colProfileID], "name", name)
	log.Info("processing profile")

	if allNA(row) {
		log.Warn("no usable data, recording placeholder bio")
		return Profile{
			Index:     index,
			Name:      merge.Placeholder,
			ProfileID: merge.Placeholder,
			Bio:       InsufficientData,
			BioLength: utf8.RuneCountInString(InsufficientData),
		}, true
	}

	source := utf8.RuneCountInString(row[colBiography])
	minLen := max(source, MinBioLength)

	for attempt := 1; attempt <= MaxGenerations; attempt++ {
		gen, m, err := w.generate(ctx, row, minLen, attempt)
		if err != nil {
			log.Error("bio generation failed", "attempt", attempt, "error", err)
			return Profile{}, false
		}

		length := utf8.RuneCountInString(gen.Bio)
		if length < minLen {
			next := minLen * 6 / 5
			log.Info("bio too short, retrying", "attempt", attempt, "length", length, "min_length", minLen, "next_min_length", next)
			minLen = next
			continue
		}

		p := Profile{
			Index:        index,
			Name:         gen.Name,
			ProfileID:    gen.ProfileID,
			Bio:          gen.Bio,
			Generation:   m,
			SourceLength: source,
			BioLength:    length,
			Attempts:     attempt,
		}
		ev, em, err := w.evaluate(ctx, gen.Name, gen.Bio)
		if err != nil {
			log.Error("bio evaluation failed", "error", err)
		} else {
			p.Rating, p.Explanation, p.Evaluation = ev.rating(), ev.Explanation, em
		}
		log.Info("bio generated", "attempts", attempt, "length", length, "rating", p.Rating, "cost", p.TotalCost())
		return p, true
	}

	log.Warn("no bio met the length requirement", "attempts", MaxGenerations, "min_length", minLen)
	return Profile{}, false
}

type generated struct {
	Name      string `json:"name"`
	ProfileID string `json:"profile_id"`
	Bio       string `json:"bio"`
}

type evaluation struct {
	Name        string `json:"name"`
	Rating      any    `json:"rating"`
	Explanation string `json:"explanation"`
}

func (e evaluation) rating() string {
	switch v := e.Rating.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func (w *Writer) generate(ctx context.Context, row tabular.Row, minLen, attempt int) (generated, tracker.Metrics, error) {
	text, m, err := w.call(ctx, "bio "+row[colProfileID], extractor.Bio,
		minLen,
		value(row, colFullName),
		value(row, colLocation),
		value(row, colCompanyName),
		value(row, colPosition),
		value(row, colPrevCompany),
		value(row, colPrevPosition),
		value(row, colDegree),
		value(row, colInstitution),
		value(row, colSocialURL),
		attempt,
		value(row, colProfileID),
	)
	if err != nil {
		return generated{}, m, err
	}
	var g generated
	if err := extractor.DecodeJSON(text, &g); err != nil {
		return generated{}, m, err
	}
	return g, m, nil
}

func (w *Writer) evaluate(ctx context.Context, name, bio string) (evaluation, tracker.Metrics, error) {
	text, m, err := w.call(ctx, "evaluation "+name, extractor.BioEvaluation, name, bio)
	if err != nil {
		return evaluation{}, m, err
	}
	var e evaluation
	if err := extractor.DecodeJSON(text, &e); err != nil {
		return evaluation{}, m, err
	}
	return e, m, nil
}

var errExhausted = errors.New("model call exhausted retries")

func (w *Writer) call(ctx context.Context, label string, t extractor.Template, args ...any) (string, tracker.Metrics, error) {
	text, m, ok := tracker.Do(ctx, w.deps.Tracker, label, func(ctx context.Context) (string, anthropic.Usage, error) {
		resp, err := w.deps.Extractor.Extract(ctx, t, args...)
		if err != nil {
			return "", anthropic.Usage{}, err
		}
		return resp.Text, resp.Usage, nil
	})
	if !ok {
		return "", m, errExhausted
	}
	return text, m, nil
}

// save writes the collected profiles in input order. It runs with the sink
// locked.
func (w *Writer) save(items []Profile) error {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b Profile) int { return cmp.Compare(a.Index, b.Index) })

	rows := make([][]string, 0, len(sorted))
	for _, p := range sorted {
		rows = append(rows, p.row())
	}
	return tabular.WriteXLSX(w.out, Sheet, OutputColumns, rows)
}

func fillRequired(rows []tabular.Row, log *slog.Logger) []tabular.Row {
	out := make([]tabular.Row, 0, len(rows))
	for _, r := range rows {
		n := make(tabular.Row, len(r)+len(RequiredColumns))
		for k, v := range r {
			n[k] = v
		}
		blank := true
		for _, col := range RequiredColumns {
			if strings.TrimSpace(n[col]) == "" {
				n[col] = merge.Placeholder
			} else {
				blank = false
			}
		}
		if blank {
			log.Warn("all required fields are N/A", "row", r)
		}
		out = append(out, n)
	}
	return out
}

// allNA reports whether the row carries nothing but placeholders.
func allNA(row tabular.Row) bool {
	for _, v := range row {
		if v = strings.TrimSpace(v); v != "" && v != merge.Placeholder {
			return false
		}
	}
	return true
}

// value is the prompt value of an optional column.
func value(row tabular.Row, col string) string {
	if v := strings.TrimSpace(row[col]); v != "" {
		return v
	}
	return merge.Placeholder
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
