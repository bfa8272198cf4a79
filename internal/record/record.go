package record

import (
	"fmt"
	"strings"
)

// IDField is the field holding a record's stable identifier.
const IDField = "id"

// TempIDPrefix marks identifiers synthesized before the server has assigned
// a real one.
const TempIDPrefix = "temp-"

// Record is a uniquely identified domain entity.
type Record map[string]any

// ID returns the record's identifier, or "" when absent or not a string.
func (r Record) ID() string {
	if r == nil {
		return ""
	}
	id, _ := r[IDField].(string)
	return id
}

// HasID reports whether the record carries a non-empty string identifier.
func (r Record) HasID() bool {
	return r.ID() != ""
}

// Clone returns a one-level copy. Nested values are shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a new record with partial's fields laid over r.
// The identifier of r is preserved even if partial carries a different one.
func (r Record) Merge(partial Record) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(partial))
	}
	for k, v := range partial {
		if k == IDField && r.HasID() {
			continue
		}
		out[k] = v
	}
	return out
}

// WithID returns a copy of r whose identifier is id.
func (r Record) WithID(id string) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	out[IDField] = id
	return out
}

// String renders the record for log lines.
func (r Record) String() string {
	b, err := MarshalCanonical(r)
	if err != nil {
		return fmt.Sprintf("record(%s)", r.ID())
	}
	return string(b)
}

// IsTempID reports whether id was generated locally for a speculative create.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// IDs returns the identifiers of recs in order.
func IDs(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID()
	}
	return out
}

// FromMap converts a generic decoded JSON object into a Record.
// Numeric identifiers are normalised to their decimal string form.
func FromMap(m map[string]any) Record {
	if m == nil {
		return nil
	}
	r := Record(m)
	switch id := r[IDField].(type) {
	case float64:
		r[IDField] = formatNumber(id)
	case int:
		r[IDField] = fmt.Sprintf("%d", id)
	case int64:
		r[IDField] = fmt.Sprintf("%d", id)
	}
	return r
}
