package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordID(t *testing.T) {
	assert.Equal(t, "1", Record{"id": "1"}.ID())
	assert.Equal(t, "", Record{"id": 1}.ID())
	assert.Equal(t, "", Record(nil).ID())
	assert.False(t, Record{"title": "x"}.HasID())
}

func TestRecordMergePreservesID(t *testing.T) {
	base := Record{"id": "1", "done": false, "title": "a"}
	merged := base.Merge(Record{"id": "other", "done": true})

	assert.Equal(t, "1", merged.ID())
	assert.Equal(t, true, merged["done"])
	assert.Equal(t, "a", merged["title"])
	assert.Equal(t, false, base["done"], "merge must not mutate the receiver")
	assert.False(t, SameRef(base, merged))
}

func TestRecordWithID(t *testing.T) {
	r := Record{"title": "a"}
	withID := r.WithID("temp-1")

	assert.Equal(t, "temp-1", withID.ID())
	_, ok := r[IDField]
	assert.False(t, ok)
}

func TestIsTempID(t *testing.T) {
	assert.True(t, IsTempID("temp-0192"))
	assert.False(t, IsTempID("42"))
}

func TestFromMapNormalisesNumericID(t *testing.T) {
	r := FromMap(map[string]any{"id": float64(42), "title": "a"})
	assert.Equal(t, "42", r.ID())
}

type boxed struct {
	V any
}

func TestShallowEqual(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	nested := map[string]any{"k": "v"}
	shared := []any{map[string]any{"x": 1}}

	tests := []struct {
		name string
		a, b Record
		want bool
	}{
		{"identical scalars", Record{"id": "1", "n": 1.0}, Record{"id": "1", "n": 1.0}, true},
		{"different scalar", Record{"id": "1", "n": 1.0}, Record{"id": "1", "n": 2.0}, false},
		{"missing field", Record{"id": "1", "a": 1}, Record{"id": "1", "b": 1}, false},
		{"extra field", Record{"id": "1"}, Record{"id": "1", "b": 1}, false},
		{"same instant different zone", Record{"at": ts}, Record{"at": ts.In(time.FixedZone("x", 3600))}, true},
		{"different instant", Record{"at": ts}, Record{"at": ts.Add(time.Second)}, false},
		{"arrays element-wise", Record{"tags": []any{"a", "b"}}, Record{"tags": []any{"a", "b"}}, true},
		{"arrays differ", Record{"tags": []any{"a", "b"}}, Record{"tags": []any{"b", "a"}}, false},
		{"string slices", Record{"tags": []string{"a"}}, Record{"tags": []string{"a"}}, true},
		{"nested map one level", Record{"meta": map[string]any{"k": "v"}}, Record{"meta": map[string]any{"k": "v"}}, true},
		{"nested map differs", Record{"meta": nested}, Record{"meta": map[string]any{"k": "w"}}, false},
		{"array of objects by reference", Record{"items": shared}, Record{"items": []any{shared[0]}}, true},
		{"array of distinct objects", Record{"items": []any{map[string]any{"x": 1}}}, Record{"items": []any{map[string]any{"x": 1}}}, false},
		{"struct holding a slice", Record{"meta": boxed{V: []string{"x"}}}, Record{"meta": boxed{V: []string{"x"}}}, true},
		{"struct holding a different slice", Record{"meta": boxed{V: []string{"x"}}}, Record{"meta": boxed{V: []string{"y"}}}, false},
		{"comparable struct", Record{"meta": boxed{V: 1}}, Record{"meta": boxed{V: 1}}, true},
		{"array holding maps", Record{"pair": [1]any{map[string]any{"k": 1}}}, Record{"pair": [1]any{map[string]any{"k": 1}}}, true},
		{"nil values", Record{"due": nil}, Record{"due": nil}, true},
		{"nil vs value", Record{"due": nil}, Record{"due": "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShallowEqual(tt.a, tt.b))
		})
	}
}

func TestSameRef(t *testing.T) {
	a := Record{"id": "1"}
	b := a
	c := a.Clone()

	assert.True(t, SameRef(a, b))
	assert.False(t, SameRef(a, c))
}

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"integral float", 42.0, "42"},
		{"fraction", 1.5, "1.5"},
		{"bool", true, "true"},
		{"null", nil, "null"},
		{"time", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), `"2025-01-02T03:04:05Z"`},
		{"sorted keys", Record{"zebra": 1, "alpha": 2}, `{"alpha":2,"zebra":1}`},
		{"no html escape", "<a&b>", `"<a&b>"`},
		{"records", []Record{{"id": "1"}, {"id": "2"}}, `[{"id":"1"},{"id":"2"}]`},
		{"nested", map[string]any{"a": []any{"x", 1}}, `{"a":["x",1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	out, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(out))

	out, err = MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(out))
}

func TestMarshalCanonicalUnsupported(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	require.Error(t, err)
}

func TestSortedKeysRFC8785Order(t *testing.T) {
	keys := SortedKeys(map[string]int{"a": 1, "A": 2, "aa": 3, "Aa": 4})
	assert.Equal(t, []string{"A", "Aa", "a", "aa"}, keys)
}
