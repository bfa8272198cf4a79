package engine

import "time"

// Status describes a manager's request lifecycle. Values are copies; they
// never change after Manager.Status returns them.
type Status struct {
	// Loading is true while a foreground fetch is in flight.
	Loading bool
	// Error is the most recent fetch or mutation failure.
	Error   error
	IsError bool
	// Syncing is true while a background refetch is in flight.
	Syncing bool

	CreatePending bool
	UpdatePending bool
	DeletePending bool

	// FetchedAt is when the cache last matched the server. Zero before the
	// first successful fetch.
	FetchedAt time.Time
}

// Pending reports whether any mutation is in flight.
func (s Status) Pending() bool {
	return s.CreatePending || s.UpdatePending || s.DeletePending
}

// Fields renders the status as a plain map for printing and assertions.
// The error is rendered as its message.
func (s Status) Fields() map[string]any {
	out := map[string]any{
		"loading":        s.Loading,
		"is_error":       s.IsError,
		"syncing":        s.Syncing,
		"create_pending": s.CreatePending,
		"update_pending": s.UpdatePending,
		"delete_pending": s.DeletePending,
	}
	if s.Error != nil {
		out["error"] = s.Error.Error()
	} else {
		out["error"] = nil
	}
	return out
}
