package transform

import (
	"fmt"
	"time"

	"github.com/roach88/syncache/internal/record"
)

// Computed derives a UI-only field from the rest of the record. Computed
// fields are added by ToUI and by optimistic synthesis and are stripped by
// ToAPI.
type Computed struct {
	Name string
	Fn   func(record.Record) any
}

// FieldTransformer applies per-field codecs. It implements Transformer,
// UpdateTransformer and OptimisticDefaults.
type FieldTransformer struct {
	fields   map[string]Codec
	computed []Computed
	defaults map[string]any
	stamp    string
}

// FieldOption configures a FieldTransformer.
type FieldOption func(*fieldOptions)

type fieldOptions struct {
	registry *Registry
	computed []Computed
	defaults map[string]any
	stamp    string
}

// WithRegistry resolves codec names against r instead of the built-ins.
func WithRegistry(r *Registry) FieldOption {
	return func(o *fieldOptions) { o.registry = r }
}

// WithComputed adds a derived field.
func WithComputed(name string, fn func(record.Record) any) FieldOption {
	return func(o *fieldOptions) {
		o.computed = append(o.computed, Computed{Name: name, Fn: fn})
	}
}

// WithDefaults fills missing fields of optimistic creates.
func WithDefaults(defaults map[string]any) FieldOption {
	return func(o *fieldOptions) { o.defaults = defaults }
}

// WithCreatedAt stamps the named field with OptimisticContext.Now on
// optimistic creates.
func WithCreatedAt(field string) FieldOption {
	return func(o *fieldOptions) { o.stamp = field }
}

// FromSpec builds a FieldTransformer from a field-name to codec-name mapping.
// Every codec is resolved here; an unknown name is an error.
func FromSpec(spec map[string]string, opts ...FieldOption) (*FieldTransformer, error) {
	o := fieldOptions{registry: NewRegistry()}
	for _, opt := range opts {
		opt(&o)
	}

	ft := &FieldTransformer{
		fields:   make(map[string]Codec, len(spec)),
		computed: o.computed,
		defaults: o.defaults,
		stamp:    o.stamp,
	}
	for field, name := range spec {
		if field == record.IDField {
			return nil, fmt.Errorf("field %q: the identifier cannot carry a codec", field)
		}
		c, err := o.registry.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		ft.fields[field] = c
	}
	return ft, nil
}

// ToUI decodes every configured field and adds computed fields.
func (f *FieldTransformer) ToUI(wire record.Record) (record.Record, error) {
	out := wire.Clone()
	if out == nil {
		out = record.Record{}
	}
	for _, field := range record.SortedKeys(f.fields) {
		v, ok := out[field]
		if !ok {
			continue
		}
		dv, err := f.fields[field].Decode(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		out[field] = dv
	}
	f.compute(out)
	return out, nil
}

// ToAPI encodes every configured field and strips computed fields.
func (f *FieldTransformer) ToAPI(ui record.Record) (record.Record, error) {
	out := ui.Clone()
	if out == nil {
		out = record.Record{}
	}
	for _, c := range f.computed {
		delete(out, c.Name)
	}
	for _, field := range record.SortedKeys(f.fields) {
		v, ok := out[field]
		if !ok {
			continue
		}
		ev, err := f.fields[field].Encode(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		out[field] = ev
	}
	return out, nil
}

// ToAPIUpdate encodes only the fields present in partial.
func (f *FieldTransformer) ToAPIUpdate(partial record.Record) (record.Record, error) {
	return f.ToAPI(partial)
}

// CreateOptimisticUIData fills defaults, decodes raw form values and
// recomputes derived fields.
func (f *FieldTransformer) CreateOptimisticUIData(input record.Record, ctx OptimisticContext) (record.Record, error) {
	out := make(record.Record, len(input)+len(f.defaults)+1)
	if ctx.Existing == nil {
		for k, v := range f.defaults {
			out[k] = v
		}
		if f.stamp != "" {
			now := ctx.Now
			if now.IsZero() {
				now = time.Now()
			}
			out[f.stamp] = now.UTC()
		}
	}
	for k, v := range input {
		out[k] = v
	}
	return f.ToUI(out)
}

func (f *FieldTransformer) compute(r record.Record) {
	for _, c := range f.computed {
		r[c.Name] = c.Fn(r)
	}
}
