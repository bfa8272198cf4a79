package harness

import "github.com/roach88/syncache/internal/record"

// Step outcomes recorded in the trace besides realtime and reconcile results.
const (
	OutcomeOK         = "ok"
	OutcomeHeld       = "held"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
)

// TraceEvent records one step and the cache contents after it.
type TraceEvent struct {
	Step    int             `json:"step"`
	Action  string          `json:"action"`
	Handle  string          `json:"handle,omitempty"`
	ID      string          `json:"id,omitempty"`
	Outcome string          `json:"outcome"`
	Error   string          `json:"error,omitempty"`
	Cache   []record.Record `json:"cache"`
}

func (e TraceEvent) canonicalMap() map[string]any {
	m := map[string]any{
		"step":    e.Step,
		"action":  e.Action,
		"outcome": e.Outcome,
		"cache":   e.Cache,
	}
	if e.Handle != "" {
		m["handle"] = e.Handle
	}
	if e.ID != "" {
		m["id"] = e.ID
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step, plus one per held call completed by a
	// release.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
