// Package contacts ranks the best contacts of each company in a contact
// export.
package contacts

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/enrich/internal/anthropic"
	"github.com/MikeSquared-Agency/enrich/internal/events"
	"github.com/MikeSquared-Agency/enrich/internal/extractor"
	"github.com/MikeSquared-Agency/enrich/internal/fields"
	"github.com/MikeSquared-Agency/enrich/internal/merge"
	"github.com/MikeSquared-Agency/enrich/internal/pipeline"
	"github.com/MikeSquared-Agency/enrich/internal/tabular"
	"github.com/MikeSquared-Agency/enrich/internal/tracker"
)

const (
	OutputFile       = "result.xlsx"
	Sheet            = "Processed Data"
	DefaultBatchSize = 100

	// DefaultCheckpointEvery is how many companies finish between partial saves.
	DefaultCheckpointEvery = 10

	// TopPerCompany is how many contacts each company keeps.
	TopPerCompany = 5

	fallbackReason = "Selected based on original data"
)

// OutputColumns is the fixed output column order.
var OutputColumns = []string{
	"name", "individual_id", "primary_title", "management_level",
	"email_address", "best_freemail", "phone_number", "linkedin_url",
	"company_id", "reason", "info_count", "contact_rank", "company_rank",
	"confidence_score",
}

// Contact is one ranked contact.
type Contact struct {
	Name            string
	IndividualID    string
	PrimaryTitle    string
	ManagementLevel string
	EmailAddress    string
	BestFreemail    string
	PhoneNumber     string
	LinkedInURL     string
	CompanyID       string
	Reason          string
	InfoCount       int
	ContactRank     int
	CompanyRank     int
	ConfidenceScore float64
}

func (c Contact) row() []string {
	return []string{
		c.Name, c.IndividualID, c.PrimaryTitle, c.ManagementLevel,
		c.EmailAddress, c.BestFreemail, c.PhoneNumber, c.LinkedInURL,
		c.CompanyID, c.Reason,
		strconv.Itoa(c.InfoCount), strconv.Itoa(c.ContactRank), strconv.Itoa(c.CompanyRank),
		strconv.FormatFloat(c.ConfidenceScore, 'f', -1, 64),
	}
}

// Company is one COMPANY_ID group, ranked by mean confidence.
type Company struct {
	ID             string
	Rank           int
	MeanConfidence float64
	Rows           []tabular.Row
}

type Config struct {
	InputCSV        string
	ResultsDir      string
	Workers         int
	BatchSize       int
	CheckpointEvery int
	MaxRows         int
}

type Result struct {
	Companies   int
	Contacts    int
	OutputPath  string
	Interrupted bool
	// RawInput is set when no contacts came out and the cleaned input rows
	// were written instead.
	RawInput bool
}

type Ranker struct {
	cfg  Config
	deps pipeline.Deps
}

func New(cfg Config, deps pipeline.Deps) *Ranker {
	if cfg.Workers <= 0 {
		cfg.Workers = pipeline.DefaultWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = DefaultCheckpointEvery
	}
	return &Ranker{cfg: cfg, deps: deps}
}

// Run reads the input CSV, ranks contacts per company and writes the
// spreadsheet. A missing input file is returned as tabular.ErrMissingInput.
func (r *Ranker) Run(ctx context.Context) (Result, error) {
	log := r.deps.Logger

	table, err := tabular.ReadCSV(r.cfg.InputCSV)
	if err != nil {
		return Result{}, err
	}
	log.Info("input read", "path", r.cfg.InputCSV, "encoding", table.Encoding, "rows", len(table.Rows), "columns", len(table.Columns))

	if err := os.MkdirAll(r.cfg.ResultsDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create results dir: %w", err)
	}
	out := filepath.Join(r.cfg.ResultsDir, OutputFile)
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return Result{}, fmt.Errorf("remove previous output: %w", err)
	}

	rows := Clean(table, r.cfg.MaxRows, log)
	companies := Group(rows)
	log.Info("companies ranked", "companies", len(companies), "rows", len(rows))

	res := Result{Companies: len(companies), OutputPath: out}
	r.deps.Run.AddTotal(len(companies))

	sink := pipeline.NewSink(r.cfg.CheckpointEvery, func(items []Contact) error {
		return save(out, items)
	}, log)

	started, interrupted := pipeline.Dispatch(ctx, r.cfg.Workers, len(companies), func(ctx context.Context, i int) {
		contacts, cost := r.rankCompany(ctx, companies[i])
		sink.Complete(contacts, nil)

		r.deps.Run.Done(len(contacts))
		r.deps.Events.DocumentProcessed(events.DocumentProcessed{
			RunID:    r.deps.Run.ID(),
			Command:  r.deps.Run.Command(),
			Document: companies[i].ID,
			Records:  len(contacts),
			Cost:     cost,
		})
	})
	res.Interrupted = interrupted
	if interrupted {
		r.deps.Run.Interrupt()
		log.Warn("interrupted, stopped dispatching companies", "started", started, "pending", len(companies)-started)
	}

	res.Contacts = sink.Len()
	if res.Contacts == 0 {
		log.Warn("no contacts were ranked, writing cleaned input rows instead", "rows", len(rows))
		res.RawInput = true
		if err := writeRows(out, table.Columns, rows); err != nil {
			return res, err
		}
		return res, nil
	}

	if err := sink.Flush(); err != nil {
		return res, err
	}
	log.Info("contact ranking finished", "contacts", res.Contacts, "output", out, "interrupted", res.Interrupted)
	return res, nil
}

// save writes contacts ordered by company rank, then contact rank.
func save(path string, contacts []Contact) error {
	sorted := slices.Clone(contacts)
	slices.SortStableFunc(sorted, func(a, b Contact) int {
		if c := cmp.Compare(a.CompanyRank, b.CompanyRank); c != 0 {
			return c
		}
		return cmp.Compare(a.ContactRank, b.ContactRank)
	})

	data := make([][]string, 0, len(sorted))
	for _, c := range sorted {
		data = append(data, c.row())
	}
	if err := tabular.WriteXLSX(path, Sheet, OutputColumns, data); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// Group buckets rows by COMPANY_ID in first-seen order and ranks the
// companies by mean confidence, highest first. Ties keep first-seen order.
func Group(rows []tabular.Row) []Company {
	index := map[string]int{}
	var companies []Company
	for _, row := range rows {
		id := row[colCompanyID]
		i, ok := index[id]
		if !ok {
			i = len(companies)
			index[id] = i
			companies = append(companies, Company{ID: id})
		}
		companies[i].Rows = append(companies[i].Rows, row)
	}

	for i := range companies {
		var sum float64
		for _, row := range companies[i].Rows {
			score, _ := parseScore(row[colConfidence])
			sum += score
		}
		companies[i].MeanConfidence = sum / float64(len(companies[i].Rows))
	}

	slices.SortStableFunc(companies, func(a, b Company) int {
		return cmp.Compare(b.MeanConfidence, a.MeanConfidence)
	})
	for i := range companies {
		companies[i].Rank = i + 1
	}
	return companies
}

// rankCompany runs every batch of one company and keeps its best contacts.
func (r *Ranker) rankCompany(ctx context.Context, c Company) ([]Contact, float64) {
	log := r.deps.Logger.With("company_id", c.ID, "company_rank", c.Rank)
	log.Info("processing company", "rows", len(c.Rows))

	var (
		contacts []Contact
		cost     float64
	)
	for start := 0; start < len(c.Rows); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(c.Rows))
		batch := c.Rows[start:end]

		got, m, ok := r.rankBatch(ctx, c, batch)
		cost += m.TotalCost
		if !ok || len(got) == 0 {
			log.Warn("using original data for batch", "batch_start", start, "batch_size", len(batch))
			got = fallbackContacts(batch, c.Rank)
		}
		log.Info("batch processed", "batch_start", start, "batch_size", len(batch), "contacts", len(got), "cost", m.TotalCost)
		contacts = append(contacts, got...)
	}

	return topContacts(dedupe(contacts)), cost
}

func (r *Ranker) rankBatch(ctx context.Context, c Company, batch []tabular.Row) ([]Contact, tracker.Metrics, bool) {
	payload, err := json.Marshal(batchRecords(batch))
	if err != nil {
		r.deps.Logger.Error("encode batch", "company_id", c.ID, "error", err)
		return nil, tracker.Metrics{}, false
	}

	label := fmt.Sprintf("company %s (rank %d)", c.ID, c.Rank)
	parsed, m, ok := tracker.Do(ctx, r.deps.Tracker, label, func(ctx context.Context) ([]fields.Record, anthropic.Usage, error) {
		resp, err := r.deps.Extractor.Extract(ctx, extractor.ContactRanking, string(payload))
		if err != nil {
			return nil, anthropic.Usage{}, err
		}
		return fields.Contact.ParseAll(resp.Text), resp.Usage, nil
	})
	if !ok {
		return nil, m, false
	}
	r.deps.Logger.Debug("contacts parsed", "company_id", c.ID, "matches", len(parsed))
	return fromResponse(parsed, c.Rank, batch, r.deps.Logger.With("company_id", c.ID)), m, true
}

// batchRecords renders rows for the prompt with the confidence score as a
// number.
func batchRecords(batch []tabular.Row) []map[string]any {
	out := make([]map[string]any, 0, len(batch))
	for _, row := range batch {
		rec := make(map[string]any, len(row))
		for k, v := range row {
			rec[k] = v
		}
		if score, ok := parseScore(row[colConfidence]); ok {
			rec[colConfidence] = score
		}
		out = append(out, rec)
	}
	return out
}

// dedupe keeps one contact per name within a company, the one with the
// highest confidence. Batches of the same company can each pick the same
// person. Unnamed contacts are never merged.
func dedupe(contacts []Contact) []Contact {
	best := map[string]int{}
	out := contacts[:0:0]
	for _, c := range contacts {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || name == strings.ToLower(merge.Placeholder) {
			out = append(out, c)
			continue
		}
		key := name + "\x00" + c.CompanyID
		if i, ok := best[key]; ok {
			if c.ConfidenceScore > out[i].ConfidenceScore {
				out[i] = c
			}
			continue
		}
		best[key] = len(out)
		out = append(out, c)
	}
	return out
}

// topContacts orders by confidence, keeps the best TopPerCompany and
// re-ranks them from 1.
func topContacts(contacts []Contact) []Contact {
	slices.SortStableFunc(contacts, func(a, b Contact) int {
		return cmp.Compare(b.ConfidenceScore, a.ConfidenceScore)
	})
	if len(contacts) > TopPerCompany {
		contacts = contacts[:TopPerCompany]
	}
	for i := range contacts {
		contacts[i].ContactRank = i + 1
	}
	return contacts
}

func fromResponse(recs []fields.Record, companyRank int, batch []tabular.Row, log *slog.Logger) []Contact {
	var out []Contact
	for i, rec := range recs {
		id := rec["individual_id"]
		original := findRow(batch, id)

		score := 0.0
		if s := strings.TrimSpace(rec["confidence_score"]); s != "" {
			parsed, ok := parseScore(s)
			if !ok {
				log.Warn("unreadable confidence score in response", "individual_id", id, "value", s)
				if original != nil {
					out = append(out, fromOriginal(original, companyRank, i+1))
				}
				continue
			}
			score = parsed
		} else if original != nil {
			score, _ = parseScore(original[colConfidence])
		}

		out = append(out, Contact{
			Name:            rec["name"],
			IndividualID:    id,
			PrimaryTitle:    rec["primary_title"],
			ManagementLevel: rec["management_level"],
			EmailAddress:    rec["email_address"],
			BestFreemail:    rec["best_freemail"],
			PhoneNumber:     rec["phone_number"],
			LinkedInURL:     rec["linkedin_url"],
			CompanyID:       rec["company_id"],
			Reason:          rec["reason"],
			InfoCount:       digits(rec["info_count"]),
			ContactRank:     min(digits(rec["contact_rank"]), TopPerCompany),
			CompanyRank:     companyRank,
			ConfidenceScore: score,
		})
	}
	return out
}

func fallbackContacts(batch []tabular.Row, companyRank int) []Contact {
	n := min(len(batch), TopPerCompany)
	out := make([]Contact, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fromOriginal(batch[i], companyRank, i+1))
	}
	return out
}

func fromOriginal(row tabular.Row, companyRank, contactRank int) Contact {
	score, _ := parseScore(row[colConfidence])
	return Contact{
		Name:            row[colName],
		IndividualID:    row[colIndividualID],
		PrimaryTitle:    row[colPrimaryTitle],
		ManagementLevel: row[colManagementLevel],
		EmailAddress:    row["EMAIL_ADDRESS"],
		BestFreemail:    row["BEST_FREEMAIL"],
		PhoneNumber:     row["PHONE_NUMBER"],
		LinkedInURL:     row["LINKEDIN_URL"],
		CompanyID:       row[colCompanyID],
		Reason:          fallbackReason,
		InfoCount:       infoCount(row),
		ContactRank:     min(contactRank, TopPerCompany),
		CompanyRank:     companyRank,
		ConfidenceScore: score,
	}
}

func findRow(batch []tabular.Row, individualID string) tabular.Row {
	for _, row := range batch {
		if row[colIndividualID] == individualID {
			return row
		}
	}
	return nil
}

// digits parses an all-digit string; anything else is 0.
func digits(s string) int {
	if s == "" {
		return 0
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func writeRows(path string, columns []string, rows []tabular.Row) error {
	data := make([][]string, 0, len(rows))
	for _, row := range rows {
		line := make([]string, len(columns))
		for i, col := range columns {
			line[i] = row[col]
		}
		data = append(data, line)
	}
	if err := tabular.WriteXLSX(path, Sheet, columns, data); err != nil {
		return fmt.Errorf("write cleaned input: %w", err)
	}
	return nil
}
