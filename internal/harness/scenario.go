package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/syncache/internal/config"
)

// Scenario defines a scripted run against one cache.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Cache configures the manager under test. Realtime is always enabled.
	// The name defaults to "todos".
	Cache config.CacheConfig `yaml:"cache"`

	// Server seeds the fake server. Records without an id get the next
	// sequential one.
	Server []map[string]any `yaml:"server,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action against the manager or the fake server.
type Step struct {
	Action  string           `yaml:"action"`
	ID      string           `yaml:"id,omitempty"`
	Data    map[string]any   `yaml:"data,omitempty"`
	Records []map[string]any `yaml:"records,omitempty"`

	// Event and Origin describe a realtime message.
	Event  string `yaml:"event,omitempty"`
	Origin string `yaml:"origin,omitempty"`

	// Hold names a handle; the remote call blocks until a release step
	// with that handle.
	Hold string `yaml:"hold,omitempty"`
	// Fail makes the remote call return an error with this message.
	Fail string `yaml:"fail,omitempty"`
	// Handle selects the held call a release step finishes.
	Handle string `yaml:"handle,omitempty"`

	// Assert is checked right after the step.
	Assert []Assertion `yaml:"assert,omitempty"`
}

// Assertion validates cache, status or server state.
type Assertion struct {
	Type   string         `yaml:"type"`
	IDs    []string       `yaml:"ids,omitempty"`
	ID     string         `yaml:"id,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
	Absent bool           `yaml:"absent,omitempty"`
	Count  *int           `yaml:"count,omitempty"`
}

// Step action constants.
const (
	ActionFetch     = "fetch"
	ActionCreate    = "create"
	ActionUpdate    = "update"
	ActionRemove    = "remove"
	ActionRelease   = "release"
	ActionEvent     = "event"
	ActionReconcile = "reconcile"
	ActionServer    = "server"
)

// Assertion type constants.
const (
	AssertCacheIDs      = "cache_ids"
	AssertCacheRecord   = "cache_record"
	AssertStatus        = "status"
	AssertSnapshotDepth = "snapshot_depth"
	AssertServerIDs     = "server_ids"
)

// SelfOrigin is the harness client's origin id. An event step with
// origin "self" uses it.
const SelfOrigin = "harness-client"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	holds := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(step, holds); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		for j, a := range step.Assert {
			if err := validateAssertion(a); err != nil {
				return fmt.Errorf("steps[%d].assert[%d]: %w", i, j, err)
			}
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, holds map[string]bool) error {
	switch step.Action {
	case ActionFetch, ActionCreate:
	case ActionUpdate, ActionRemove:
		if step.ID == "" {
			return fmt.Errorf("%s: id is required", step.Action)
		}
	case ActionRelease:
		if step.Handle == "" {
			return fmt.Errorf("release: handle is required")
		}
		if !holds[step.Handle] {
			return fmt.Errorf("release: unknown handle %q", step.Handle)
		}
		delete(holds, step.Handle)
		return nil
	case ActionEvent:
		switch step.Event {
		case "INSERT", "UPDATE", "DELETE":
		default:
			return fmt.Errorf("event: unknown event %q", step.Event)
		}
	case ActionReconcile, ActionServer:
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}

	if step.Hold != "" {
		if !isRemoteAction(step.Action) {
			return fmt.Errorf("%s: hold is not supported", step.Action)
		}
		if holds[step.Hold] {
			return fmt.Errorf("duplicate hold handle %q", step.Hold)
		}
		holds[step.Hold] = true
	}
	if step.Fail != "" && !isRemoteAction(step.Action) {
		return fmt.Errorf("%s: fail is not supported", step.Action)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertCacheIDs, AssertServerIDs, AssertStatus:
	case AssertCacheRecord:
		if a.ID == "" {
			return fmt.Errorf("cache_record: id is required")
		}
	case AssertSnapshotDepth:
		if a.Count == nil {
			return fmt.Errorf("snapshot_depth: count is required")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func isRemoteAction(action string) bool {
	switch action {
	case ActionFetch, ActionCreate, ActionUpdate, ActionRemove:
		return true
	}
	return false
}
