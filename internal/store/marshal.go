package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/roach88/syncache/internal/record"
)

// marshalData converts a record to canonical JSON TEXT for storage.
// The id field is dropped; the row id is authoritative.
func marshalData(rec record.Record) (string, error) {
	doc := rec.Clone()
	if doc == nil {
		doc = record.Record{}
	}
	delete(doc, record.IDField)
	data, err := record.MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(data), nil
}

// unmarshalData parses stored JSON TEXT and restores the record's id.
func unmarshalData(id int64, data string) (record.Record, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal data for %d: %w", id, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	rec := record.FromMap(m)
	rec[record.IDField] = formatID(id)
	return rec, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// parseID converts a record id to a row id. Ids that are not positive
// integers cannot exist in the store.
func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	return n, nil
}
