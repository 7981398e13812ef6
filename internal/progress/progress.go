// Package progress tracks the state of one command run for the status API,
// events and the end-of-run summary.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/enrich/internal/tracker"
)

type Run struct {
	id        string
	command   string
	startedAt time.Time
	tracker   *tracker.Tracker

	mu          sync.Mutex
	total       int
	done        int
	records     int
	failed      int
	interrupted bool
}

// Snapshot is a point-in-time copy of a run.
type Snapshot struct {
	RunID          string         `json:"run_id"`
	Command        string         `json:"command"`
	StartedAt      time.Time      `json:"started_at"`
	DocumentsTotal int            `json:"documents_total"`
	DocumentsDone  int            `json:"documents_done"`
	Records        int            `json:"records"`
	Failed         int            `json:"failed"`
	Interrupted    bool           `json:"interrupted"`
	Usage          tracker.Totals `json:"usage"`
}

func NewRun(command string, tr *tracker.Tracker) *Run {
	return &Run{
		id:        uuid.New().String(),
		command:   command,
		startedAt: time.Now().UTC(),
		tracker:   tr,
	}
}

// Resume reuses the ID of an earlier run, e.g. one loaded from a checkpoint.
func (r *Run) Resume(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	r.id = id
	r.mu.Unlock()
}

func (r *Run) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

func (r *Run) Command() string { return r.command }

// AddTotal adds n units to the expected total.
func (r *Run) AddTotal(n int) {
	r.mu.Lock()
	r.total += n
	r.mu.Unlock()
}

// Done records one finished unit that produced records rows and returns the
// number of units finished so far.
func (r *Run) Done(records int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	r.records += records
	if records == 0 {
		r.failed++
	}
	return r.done
}

func (r *Run) Interrupt() {
	r.mu.Lock()
	r.interrupted = true
	r.mu.Unlock()
}

func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	s := Snapshot{
		RunID:          r.id,
		Command:        r.command,
		StartedAt:      r.startedAt,
		DocumentsTotal: r.total,
		DocumentsDone:  r.done,
		Records:        r.records,
		Failed:         r.failed,
		Interrupted:    r.interrupted,
	}
	r.mu.Unlock()

	if r.tracker != nil {
		s.Usage = r.tracker.Totals()
	}
	return s
}

// Elapsed is the wall time since the run started.
func (r *Run) Elapsed() time.Duration {
	return time.Since(r.startedAt)
}

// FormatSummary renders a run summary as Slack mrkdwn.
func FormatSummary(s Snapshot, elapsed time.Duration) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*enrich %s run summary*\n", s.Command)
	fmt.Fprintf(&sb, "Run: `%s`\n", s.RunID)
	fmt.Fprintf(&sb, "Processed: %d/%d (%d without output)\n", s.DocumentsDone, s.DocumentsTotal, s.Failed)
	fmt.Fprintf(&sb, "Records written: %d\n", s.Records)
	fmt.Fprintf(&sb, "Model calls: %d (%d exhausted retries)\n", s.Usage.Calls, s.Usage.Exhausted)
	fmt.Fprintf(&sb, "Tokens: %d in / %d out\n", s.Usage.InputTokens, s.Usage.OutputTokens)
	fmt.Fprintf(&sb, "Cost: $%.4f\n", s.Usage.TotalCost)
	fmt.Fprintf(&sb, "Elapsed: %s", elapsed.Round(time.Second))
	if s.Interrupted {
		sb.WriteString("\n_Interrupted: partial results were saved._")
	}
	return sb.String()
}
