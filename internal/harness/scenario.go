package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gridsync/internal/grid"
	"github.com/roach88/gridsync/internal/ir"
)

// Store kinds.
const (
	StoreSQLite   = "sqlite"
	StoreScripted = "scripted"
)

// Step actions.
const (
	ActionPush    = "push"
	ActionDelete  = "delete"
	ActionPull    = "pull"
	ActionRefresh = "refresh"
)

var validActions = map[string]bool{
	ActionPush: true, ActionDelete: true, ActionPull: true, ActionRefresh: true,
}

// Scenario defines one reconciliation scenario: a grid, a store, a flow of
// user actions and the assertions that must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	Table TableDef `yaml:"table"`

	// CallerID is sent with every bulk request. Defaults to "harness".
	CallerID string `yaml:"caller_id,omitempty"`

	// TenantID, when set, is stamped on every pushed row.
	TenantID *int64 `yaml:"tenant_id,omitempty"`

	// Store selects the backend: "sqlite" (default) or "scripted".
	Store string `yaml:"store,omitempty"`

	// Seed lists records inserted into the SQLite store before the flow.
	Seed []map[string]any `yaml:"seed,omitempty"`

	// Headers and Rows are the grid's initial content.
	Headers []string         `yaml:"headers"`
	Rows    []map[string]any `yaml:"rows,omitempty"`

	Flow []FlowStep `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions,omitempty"`

	// PassPrefix prefixes the deterministic pass ids. Defaults to "pass".
	PassPrefix string `yaml:"pass_prefix,omitempty"`
}

// TableDef is the target table of a scenario.
type TableDef struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type,omitempty"`
	UniqueKeys []string `yaml:"unique_keys,omitempty"`
}

// Spec converts the definition for the reconciler.
func (t TableDef) Spec() ir.TableSpec {
	return ir.TableSpec{Name: t.Name, Type: t.Type, UniqueKeys: t.UniqueKeys}
}

// FlowStep is one user action.
type FlowStep struct {
	Action string `yaml:"action"`

	// Select is a 1-based row list such as "1,3-4". Empty selects every row.
	Select string `yaml:"select,omitempty"`

	// Edit is applied to the grid before the action runs.
	Edit []CellEdit `yaml:"edit,omitempty"`

	// Response is what the scripted store answers to this step's bulk call.
	Response *ResponseDef `yaml:"response,omitempty"`

	// Records is what the scripted store answers to this step's fetch.
	Records []map[string]any `yaml:"records,omitempty"`

	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// CellEdit overwrites cells of one row. Row is 1-based.
type CellEdit struct {
	Row int            `yaml:"row"`
	Set map[string]any `yaml:"set"`
}

// ResponseDef is a scripted bulk response.
type ResponseDef struct {
	Data   []OutcomeDef  `yaml:"data"`
	Error  string        `yaml:"error,omitempty"`
	Errors []RowErrorDef `yaml:"errors,omitempty"`
}

// OutcomeDef is one scripted result-list entry.
type OutcomeDef struct {
	ID        int64  `yaml:"id"`
	Version   *int64 `yaml:"version,omitempty"`
	Operation string `yaml:"operation"`
}

// RowErrorDef is one scripted per-row error. Row echoes the submitted row.
type RowErrorDef struct {
	Row   map[string]any `yaml:"row,omitempty"`
	Error string         `yaml:"error"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	Title   string `yaml:"title,omitempty"`
	Message string `yaml:"message,omitempty"`

	// Error is the expected error code, e.g. PARTIAL_FAILURE.
	Error string `yaml:"error,omitempty"`

	// ErrorContains is a substring of the expected error text.
	ErrorContains string `yaml:"error_contains,omitempty"`
}

// Assertion validates the final grid, store or trace.
type Assertion struct {
	// Type is one of cell, request_count, transitions, final_state.
	Type string `yaml:"type"`

	// Row (1-based) and Column address a cell (cell).
	Row    int    `yaml:"row,omitempty"`
	Column string `yaml:"column,omitempty"`

	// Equals is the expected cell value; Empty asserts a blank cell (cell).
	Equals any  `yaml:"equals,omitempty"`
	Empty  bool `yaml:"empty,omitempty"`

	// Count is the expected number of bulk requests (request_count).
	Count int `yaml:"count,omitempty"`

	// Step (1-based) and States name a step's transitions (transitions).
	Step   int      `yaml:"step,omitempty"`
	States []string `yaml:"states,omitempty"`

	// Where selects one active record, Expect is matched against it as a
	// subset (final_state).
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCell         = "cell"
	AssertRequestCount = "request_count"
	AssertTransitions  = "transitions"
	AssertFinalState   = "final_state"
)

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
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

// FindScenarios lists the .yaml and .yml files directly under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Table.Name == "" {
		return fmt.Errorf("table.name is required")
	}
	if len(s.Headers) == 0 && len(s.Rows) > 0 {
		return fmt.Errorf("headers are required when rows are given")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	switch s.Store {
	case "", StoreSQLite:
	case StoreScripted:
		if len(s.Seed) > 0 {
			return fmt.Errorf("seed is only supported by the %s store", StoreSQLite)
		}
	default:
		return fmt.Errorf("unknown store %q", s.Store)
	}

	for i, step := range s.Flow {
		if !validActions[step.Action] {
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Action)
		}
		if step.Select != "" {
			if _, err := grid.ParseRows(step.Select); err != nil {
				return fmt.Errorf("flow[%d].select: %w", i, err)
			}
		}
		for j, e := range step.Edit {
			if e.Row < 1 {
				return fmt.Errorf("flow[%d].edit[%d]: row must be 1 or greater", i, j)
			}
		}
		if s.Store != StoreScripted && (step.Response != nil || step.Records != nil) {
			return fmt.Errorf("flow[%d]: response and records need store: %s", i, StoreScripted)
		}
		if step.Response != nil {
			for j, o := range step.Response.Data {
				if _, ok := ir.ParseOutcomeLabel(o.Operation); !ok {
					return fmt.Errorf("flow[%d].response.data[%d]: unknown operation %q", i, j, o.Operation)
				}
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, len(s.Flow)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCell:
		if a.Row < 1 || strings.TrimSpace(a.Column) == "" {
			return fmt.Errorf("assertions[%d]: row and column are required for cell", index)
		}
		if a.Equals == nil && !a.Empty {
			return fmt.Errorf("assertions[%d]: equals or empty is required for cell", index)
		}
	case AssertRequestCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for request_count", index)
		}
	case AssertTransitions:
		if a.Step < 1 || a.Step > steps {
			return fmt.Errorf("assertions[%d]: step must name a flow step (1-%d)", index, steps)
		}
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for transitions", index)
		}
	case AssertFinalState:
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
