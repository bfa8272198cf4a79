package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "create_swaps_temp_id.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "create_swaps_temp_id", s.Name)
	require.Len(t, s.Server, 1)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, ActionCreate, s.Steps[1].Action)
	assert.Equal(t, "c1", s.Steps[1].Hold)
	assert.Len(t, s.Steps[1].Assert, 3)
	require.NotNil(t, s.Steps[1].Assert[2].Count)
	assert.Equal(t, 1, *s.Steps[1].Assert[2].Count)
	assert.Len(t, s.Assertions, 6)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarioFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	doc := "name: n\ndescription: d\nsteps:\n  - action: fetch\nassertions:\n  - { type: cache_ids, ids: [] }\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "n", s.Name)
}

func TestParseScenarioRejects(t *testing.T) {
	const tail = "assertions:\n  - { type: cache_ids, ids: [] }\n"
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "name: n\ndescription: d\nstep: []\n" + tail, "field step not found"},
		{"missing name", "description: d\nsteps:\n  - action: fetch\n" + tail, "name is required"},
		{"missing description", "name: n\nsteps:\n  - action: fetch\n" + tail, "description is required"},
		{"no steps", "name: n\ndescription: d\n" + tail, "steps list is required"},
		{"no assertions", "name: n\ndescription: d\nsteps:\n  - action: fetch\n", "assertions list is required"},
		{"unknown action", "name: n\ndescription: d\nsteps:\n  - action: jump\n" + tail, `unknown action "jump"`},
		{"missing action", "name: n\ndescription: d\nsteps:\n  - id: \"1\"\n" + tail, "action is required"},
		{"update without id", "name: n\ndescription: d\nsteps:\n  - action: update\n" + tail, "update: id is required"},
		{"remove without id", "name: n\ndescription: d\nsteps:\n  - action: remove\n" + tail, "remove: id is required"},
		{"bad event", "name: n\ndescription: d\nsteps:\n  - action: event\n    event: UPSERT\n" + tail, `unknown event "UPSERT"`},
		{"release unknown", "name: n\ndescription: d\nsteps:\n  - action: release\n    handle: x\n" + tail, `unknown handle "x"`},
		{"release without handle", "name: n\ndescription: d\nsteps:\n  - action: release\n" + tail, "handle is required"},
		{"hold on event", "name: n\ndescription: d\nsteps:\n  - action: event\n    event: INSERT\n    hold: h\n" + tail, "hold is not supported"},
		{"fail on reconcile", "name: n\ndescription: d\nsteps:\n  - action: reconcile\n    fail: x\n" + tail, "fail is not supported"},
		{"duplicate hold", "name: n\ndescription: d\nsteps:\n  - action: fetch\n    hold: h\n  - action: create\n    hold: h\n" + tail, `duplicate hold handle "h"`},
		{"bad assertion", "name: n\ndescription: d\nsteps:\n  - action: fetch\nassertions:\n  - { type: trace_contains }\n", `unknown assertion type "trace_contains"`},
		{"record without id", "name: n\ndescription: d\nsteps:\n  - action: fetch\nassertions:\n  - { type: cache_record }\n", "cache_record: id is required"},
		{"depth without count", "name: n\ndescription: d\nsteps:\n  - action: fetch\nassertions:\n  - { type: snapshot_depth }\n", "count is required"},
		{"bad step assertion", "name: n\ndescription: d\nsteps:\n  - action: fetch\n    assert:\n      - { type: nope }\n" + tail, "steps[0].assert[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenarioReleasedHandleCanBeReused(t *testing.T) {
	doc := `name: n
description: d
steps:
  - action: fetch
    hold: h
  - action: release
    handle: h
  - action: fetch
    hold: h
  - action: release
    handle: h
assertions:
  - { type: cache_ids, ids: [] }
`
	_, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
}
