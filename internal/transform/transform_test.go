package transform

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncache/internal/record"
)

func todoTransformer(t *testing.T) *FieldTransformer {
	t.Helper()
	ft, err := FromSpec(map[string]string{
		"created_at": CodecISODate,
		"done":       CodecBoolString,
		"priority":   CodecNumberString,
		"tags":       CodecCSV,
	},
		WithDefaults(map[string]any{"done": false, "tags": []any{}}),
		WithCreatedAt("created_at"),
		WithComputed("label", func(r record.Record) any {
			title, _ := r["title"].(string)
			if r["done"] == true {
				return "[x] " + title
			}
			return "[ ] " + title
		}),
	)
	require.NoError(t, err)
	return ft
}

func TestFromSpecUnknownCodec(t *testing.T) {
	_, err := FromSpec(map[string]string{"when": "julian_date"})
	require.ErrorIs(t, err, ErrUnknownCodec)
	assert.Contains(t, err.Error(), `field "when"`)
}

func TestFromSpecRejectsIDCodec(t *testing.T) {
	_, err := FromSpec(map[string]string{"id": CodecNumberString})
	require.Error(t, err)
}

func TestFieldTransformerToUI(t *testing.T) {
	ft := todoTransformer(t)
	wire := record.Record{
		"id":         "7",
		"title":      "write docs",
		"created_at": "2026-01-02T03:04:05Z",
		"done":       "true",
		"priority":   "2.5",
		"tags":       "a, b",
	}

	ui, err := ft.ToUI(wire)
	require.NoError(t, err)

	assert.Equal(t, "7", ui.ID())
	assert.True(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Equal(ui["created_at"].(time.Time)))
	assert.Equal(t, true, ui["done"])
	assert.Equal(t, 2.5, ui["priority"])
	assert.Equal(t, []any{"a", "b"}, ui["tags"])
	assert.Equal(t, "[x] write docs", ui["label"])
	assert.Equal(t, "true", wire["done"], "input record is not mutated")
}

func TestFieldTransformerRoundTrip(t *testing.T) {
	ft := todoTransformer(t)
	wire := record.Record{
		"id":         "7",
		"title":      "x",
		"created_at": "2026-01-02T03:04:05Z",
		"done":       "false",
		"priority":   "3",
		"tags":       "a,b",
	}
	ui, err := ft.ToUI(wire)
	require.NoError(t, err)
	back, err := ft.ToAPI(ui)
	require.NoError(t, err)

	assert.Equal(t, wire, back)
}

func TestFieldTransformerDecodeError(t *testing.T) {
	ft := todoTransformer(t)
	_, err := ft.ToUI(record.Record{"id": "1", "done": "maybe"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "done"`)
}

func TestToAPIUpdateOnlyPresentFields(t *testing.T) {
	ft := todoTransformer(t)
	out, err := ToAPIUpdate(ft, record.Record{"done": true})
	require.NoError(t, err)
	assert.Equal(t, record.Record{"done": "true"}, out)
}

func TestOptimisticCreate(t *testing.T) {
	ft := todoTransformer(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	out, err := Optimistic(ft, record.Record{"title": "new"}, OptimisticContext{TempID: "temp-1", Now: now})
	require.NoError(t, err)

	assert.Equal(t, "temp-1", out.ID())
	assert.Equal(t, false, out["done"])
	assert.Equal(t, now, out["created_at"])
	assert.Equal(t, "[ ] new", out["label"])
}

func TestOptimisticUpdateKeepsIDAndRecomputes(t *testing.T) {
	ft := todoTransformer(t)
	existing := record.Record{"id": "5", "title": "a", "done": false, "label": "[ ] a"}

	out, err := Optimistic(ft, record.Record{"id": "temp-x", "done": true}, OptimisticContext{Existing: existing})
	require.NoError(t, err)

	assert.Equal(t, "5", out.ID())
	assert.Equal(t, "[x] a", out["label"])
	assert.Equal(t, "a", out["title"])
}

func TestOptimisticWithoutDefaults(t *testing.T) {
	out, err := Optimistic(nil, record.Record{"title": "x"}, OptimisticContext{TempID: "temp-9"})
	require.NoError(t, err)
	assert.Equal(t, record.Record{"id": "temp-9", "title": "x"}, out)

	existing := record.Record{"id": "1", "title": "x", "done": false}
	out, err = Optimistic(Funcs{}, record.Record{"done": true}, OptimisticContext{Existing: existing})
	require.NoError(t, err)
	assert.Equal(t, record.Record{"id": "1", "title": "x", "done": true}, out)
}

func TestNilTransformerPassesThrough(t *testing.T) {
	rec := record.Record{"id": "1", "x": "y"}
	ui, err := ToUI(nil, rec)
	require.NoError(t, err)
	assert.True(t, record.SameRef(rec, ui))

	api, err := ToAPIUpdate(nil, rec)
	require.NoError(t, err)
	assert.True(t, record.SameRef(rec, api))
}

func TestToUIRestoresID(t *testing.T) {
	bad := Funcs{UI: func(r record.Record) (record.Record, error) {
		return r.WithID("rewritten"), nil
	}}
	out, err := ToUI(bad, record.Record{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "1", out.ID())
}

func TestToUIWrapsError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ToUI(Funcs{UI: func(record.Record) (record.Record, error) { return nil, boom }}, record.Record{"id": "1"})
	require.ErrorIs(t, err, boom)
}

func TestRegistryCustomCodec(t *testing.T) {
	reg := NewRegistry()
	reg.Register("upper", CodecFuncs{
		DecodeFunc: func(v any) (any, error) { return v.(string) + "!", nil },
		EncodeFunc: func(v any) (any, error) { return v, nil },
	})
	assert.Contains(t, reg.Names(), "upper")

	ft, err := FromSpec(map[string]string{"name": "upper"}, WithRegistry(reg))
	require.NoError(t, err)
	out, err := ft.ToUI(record.Record{"id": "1", "name": "hi", "other": nil})
	require.NoError(t, err)
	assert.Equal(t, "hi!", out["name"])
}

func TestCodecsPassNil(t *testing.T) {
	ft := todoTransformer(t)
	out, err := ft.ToUI(record.Record{"id": "1", "created_at": nil})
	require.NoError(t, err)
	assert.Nil(t, out["created_at"])
}

func TestCSVEncodeRejectsNonStrings(t *testing.T) {
	_, err := csvList.Encode([]any{"a", 1})
	require.Error(t, err)
}
