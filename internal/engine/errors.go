package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Manager operations.
var (
	// ErrDisabled is returned while the manager is disabled, either by
	// Disable or by its Enabled predicate.
	ErrDisabled = errors.New("manager is disabled")

	// ErrDestroyed is returned by every operation after Destroy.
	ErrDestroyed = errors.New("manager is destroyed")

	// ErrDuplicateName is returned when a client already has a manager with
	// the requested name.
	ErrDuplicateName = errors.New("duplicate manager name")

	// ErrClientClosed is returned by NewManager after Client.Close.
	ErrClientClosed = errors.New("client is closed")

	// ErrSuperseded is returned by a fetch whose result was discarded because
	// a newer fetch or a mutation started while it was in flight.
	ErrSuperseded = errors.New("fetch superseded")

	// ErrNoRealtime is returned by ConnectRealtime when the manager was
	// configured without realtime settings.
	ErrNoRealtime = errors.New("realtime not configured")
)

// MutationKind names a mutation pipeline.
type MutationKind string

const (
	KindCreate MutationKind = "create"
	KindUpdate MutationKind = "update"
	KindDelete MutationKind = "delete"
)

// MutationError reports a failed mutation. The cache has been rolled back to
// the state it had before the mutation speculated.
type MutationError struct {
	// Kind is the mutation that failed.
	Kind MutationKind

	// ID is the target record id. For creates it is the temporary id.
	ID string

	// RolledBack is false when the snapshot had already been discarded
	// (evicted, or unwound by an older mutation's rollback).
	RolledBack bool

	// Err is the underlying cause.
	Err error
}

func (e *MutationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// IsRollback reports whether err came from a mutation that was rolled back.
func IsRollback(err error) bool {
	var me *MutationError
	if errors.As(err, &me) {
		return me.RolledBack
	}
	return false
}

// FetchError reports a failed fetch. The cache is left untouched.
type FetchError struct {
	Name string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Name, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
