package service

import (
	"time"

	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/okian/civicwatch/internal/domain/rules"
)

// JobState is a source job's position in the pipeline.
type JobState string

// Job states. DONE and FAILED are terminal.
const (
	StatePending    JobState = "PENDING"
	StateFetching   JobState = "FETCHING"
	StateAdapting   JobState = "ADAPTING"
	StatePersisting JobState = "PERSISTING"
	StateEvaluating JobState = "EVALUATING"
	StateDone       JobState = "DONE"
	StateFailed     JobState = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool { return s == StateDone || s == StateFailed }

// JobResult reports how one source fared during a run.
type JobResult struct {
	SourceID string   `json:"source_id"`
	State    JobState `json:"state"`
	// FailedIn is the state the job was in when it failed.
	FailedIn JobState `json:"failed_in,omitempty"`

	Fetched         int `json:"fetched"`
	Skipped         int `json:"skipped"`
	Created         int `json:"created"`
	Updated         int `json:"updated"`
	Unchanged       int `json:"unchanged"`
	AlertsGenerated int `json:"alerts_generated"`
	Suppressed      int `json:"suppressed"`

	Alerts []model.Alert `json:"alerts,omitempty"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
	// FirstSkip is the reason the first skipped record was dropped.
	FirstSkip string `json:"first_skip,omitempty"`
	// Transient is set on fetch failures worth retrying on the next run.
	Transient bool `json:"transient,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Failed reports whether the job ended in FAILED.
func (r *JobResult) Failed() bool { return r.State == StateFailed }

func (r *JobResult) advance(s JobState) { r.State = s }

func (r *JobResult) fail(err error) {
	r.FailedIn = r.State
	r.State = StateFailed
	r.Err = err
	r.Error = err.Error()
}

// PipelineRun is the outcome of one RunPipeline call.
type PipelineRun struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Jobs       []JobResult `json:"jobs"`
	// Cancelled is set when the run's context ended before every job started.
	Cancelled bool `json:"cancelled"`
}

// Totals sums the per-source counters of a run.
type Totals struct {
	Sources    int `json:"sources"`
	Failed     int `json:"failed"`
	Fetched    int `json:"fetched"`
	Skipped    int `json:"skipped"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Unchanged  int `json:"unchanged"`
	Alerts     int `json:"alerts"`
	Suppressed int `json:"suppressed"`
}

// Totals returns the run-wide counters.
func (p *PipelineRun) Totals() Totals {
	t := Totals{Sources: len(p.Jobs)}
	for i := range p.Jobs {
		j := &p.Jobs[i]
		if j.Failed() {
			t.Failed++
		}
		t.Fetched += j.Fetched
		t.Skipped += j.Skipped
		t.Created += j.Created
		t.Updated += j.Updated
		t.Unchanged += j.Unchanged
		t.Alerts += len(j.Alerts)
		t.Suppressed += j.Suppressed
	}
	return t
}

// Alerts returns every alert of the run ordered by severity, rule name and
// event id.
func (p *PipelineRun) Alerts() []model.Alert {
	var out []model.Alert
	for i := range p.Jobs {
		out = append(out, p.Jobs[i].Alerts...)
	}
	rules.SortAlerts(out)
	return out
}

// Job returns the result for sourceID.
func (p *PipelineRun) Job(sourceID string) (JobResult, bool) {
	for i := range p.Jobs {
		if p.Jobs[i].SourceID == sourceID {
			return p.Jobs[i], true
		}
	}
	return JobResult{}, false
}

// Duration is how long the run took.
func (p *PipelineRun) Duration() time.Duration { return p.FinishedAt.Sub(p.StartedAt) }
