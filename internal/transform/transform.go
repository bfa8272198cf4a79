package transform

import (
	"fmt"
	"time"

	"github.com/roach88/syncache/internal/record"
)

// Transformer converts between wire and UI records.
type Transformer interface {
	ToUI(wire record.Record) (record.Record, error)
	ToAPI(ui record.Record) (record.Record, error)
}

// UpdateTransformer encodes a partial UI record for an update request.
type UpdateTransformer interface {
	ToAPIUpdate(partial record.Record) (record.Record, error)
}

// OptimisticContext carries the values a speculative record is built from.
type OptimisticContext struct {
	// TempID is set for creates. Updates leave it empty.
	TempID string
	Now    time.Time
	// Existing is the cached record an update applies to. Nil for creates.
	Existing record.Record
}

// OptimisticDefaults synthesizes a UI record from raw user input.
type OptimisticDefaults interface {
	CreateOptimisticUIData(input record.Record, ctx OptimisticContext) (record.Record, error)
}

// ToUI runs t.ToUI, or returns wire unchanged when t is nil. The result's id
// is forced back to the input's id.
func ToUI(t Transformer, wire record.Record) (record.Record, error) {
	if t == nil {
		return wire, nil
	}
	out, err := t.ToUI(wire)
	if err != nil {
		return nil, fmt.Errorf("to ui: %w", err)
	}
	return keepID(wire, out), nil
}

// ToAPI runs t.ToAPI, or returns ui unchanged when t is nil.
func ToAPI(t Transformer, ui record.Record) (record.Record, error) {
	if t == nil {
		return ui, nil
	}
	out, err := t.ToAPI(ui)
	if err != nil {
		return nil, fmt.Errorf("to api: %w", err)
	}
	return keepID(ui, out), nil
}

// ToAPIUpdate prefers the UpdateTransformer capability and falls back to ToAPI.
func ToAPIUpdate(t Transformer, partial record.Record) (record.Record, error) {
	if u, ok := t.(UpdateTransformer); ok {
		out, err := u.ToAPIUpdate(partial)
		if err != nil {
			return nil, fmt.Errorf("to api update: %w", err)
		}
		return keepID(partial, out), nil
	}
	return ToAPI(t, partial)
}

// Optimistic builds the speculative record for a create (ctx.Existing nil)
// or an update. Without OptimisticDefaults a create is input plus the temp id,
// and an update is a shallow merge of partial over Existing.
func Optimistic(t Transformer, input record.Record, ctx OptimisticContext) (record.Record, error) {
	base := input
	if ctx.Existing != nil {
		base = ctx.Existing.Merge(input)
	}
	if d, ok := t.(OptimisticDefaults); ok {
		out, err := d.CreateOptimisticUIData(base, ctx)
		if err != nil {
			return nil, fmt.Errorf("optimistic defaults: %w", err)
		}
		base = out
	}
	switch {
	case ctx.Existing != nil:
		return base.WithID(ctx.Existing.ID()), nil
	case ctx.TempID != "":
		return base.WithID(ctx.TempID), nil
	default:
		return base, nil
	}
}

func keepID(in, out record.Record) record.Record {
	if !in.HasID() || out.ID() == in.ID() {
		return out
	}
	return out.WithID(in.ID())
}

// Funcs adapts plain functions to Transformer. A nil function is identity.
type Funcs struct {
	UI  func(record.Record) (record.Record, error)
	API func(record.Record) (record.Record, error)
}

func (f Funcs) ToUI(wire record.Record) (record.Record, error) {
	if f.UI == nil {
		return wire, nil
	}
	return f.UI(wire)
}

func (f Funcs) ToAPI(ui record.Record) (record.Record, error) {
	if f.API == nil {
		return ui, nil
	}
	return f.API(ui)
}
