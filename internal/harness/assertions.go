package harness

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/syncache/internal/record"
)

// AssertionError is returned when an assertion fails.
// It includes the cache contents to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Cache    []record.Record // Cache contents when the assertion ran
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Cache) > 0 {
		fmt.Fprintf(&buf, "\nCache:\n")
		for i, r := range e.Cache {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, r)
		}
	}

	return buf.String()
}

// StateView is what assertions are evaluated against.
type StateView struct {
	Cache     []record.Record
	Server    []record.Record
	Status    map[string]any
	Snapshots int
}

func (r *runner) evaluate(assertions []Assertion) []string {
	if len(assertions) == 0 {
		return nil
	}
	view := StateView{
		Cache:     r.manager.List(),
		Server:    r.src.Records(),
		Status:    r.manager.Status().Fields(),
		Snapshots: r.manager.SnapshotDepth(),
	}
	return EvaluateAssertions(view, assertions)
}

// EvaluateAssertions evaluates all assertions against view.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(view StateView, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCacheIDs:
			err = assertIDs(AssertCacheIDs, view.Cache, assertion.IDs, view.Cache)
		case AssertServerIDs:
			err = assertIDs(AssertServerIDs, view.Server, assertion.IDs, view.Cache)
		case AssertCacheRecord:
			err = assertCacheRecord(view.Cache, assertion)
		case AssertStatus:
			err = assertStatus(view, assertion)
		case AssertSnapshotDepth:
			err = assertSnapshotDepth(view, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertIDs checks that recs carries exactly the expected ids in order.
func assertIDs(kind string, recs []record.Record, expected []string, cache []record.Record) error {
	actual := record.IDs(recs)
	if len(expected) == 0 && len(actual) == 0 {
		return nil
	}
	if equalStrings(actual, expected) {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%v", expected),
		Actual:   fmt.Sprintf("%v", actual),
		Cache:    cache,
	}
}

// assertCacheRecord checks one cached record with subset semantics, or its
// absence.
func assertCacheRecord(cache []record.Record, assertion Assertion) error {
	var found record.Record
	for _, r := range cache {
		if r.ID() == assertion.ID {
			found = r
			break
		}
	}

	if assertion.Absent {
		if found == nil {
			return nil
		}
		return &AssertionError{
			Type:     AssertCacheRecord,
			Expected: fmt.Sprintf("record %s absent", assertion.ID),
			Actual:   found.String(),
			Cache:    cache,
		}
	}

	if found == nil {
		return &AssertionError{
			Type:     AssertCacheRecord,
			Expected: fmt.Sprintf("record %s", assertion.ID),
			Actual:   "not in cache",
			Cache:    cache,
		}
	}
	if key, ok := matchFields(found, assertion.Expect); !ok {
		return &AssertionError{
			Type:     AssertCacheRecord,
			Expected: fmt.Sprintf("record %s with %s=%v", assertion.ID, key, assertion.Expect[key]),
			Actual:   found.String(),
			Cache:    cache,
		}
	}
	return nil
}

func assertStatus(view StateView, assertion Assertion) error {
	if key, ok := matchFields(view.Status, assertion.Expect); !ok {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("%s=%v", key, assertion.Expect[key]),
			Actual:   fmt.Sprintf("%s=%v", key, view.Status[key]),
		}
	}
	return nil
}

func assertSnapshotDepth(view StateView, assertion Assertion) error {
	if view.Snapshots == *assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertSnapshotDepth,
		Expected: fmt.Sprintf("%d snapshots", *assertion.Count),
		Actual:   fmt.Sprintf("%d snapshots", view.Snapshots),
		Cache:    view.Cache,
	}
}

// matchFields checks if actual contains every expected field.
// Returns the first mismatching key in sorted order.
// Extra fields in actual are allowed (subset matching).
func matchFields(actual, expected map[string]any) (string, bool) {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		actualVal, exists := actual[key]
		if !exists && expected[key] != nil {
			return key, false
		}
		if !valuesEqual(actualVal, expected[key]) {
			return key, false
		}
	}
	return "", true
}

// valuesEqual compares two values by their canonical JSON form, so YAML
// integers match JSON floats and RFC 3339 strings match time values.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	a, err := record.MarshalCanonical(actual)
	if err != nil {
		return false
	}
	b, err := record.MarshalCanonical(expected)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
