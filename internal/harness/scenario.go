package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orbit/internal/transaction"
)

// Scenario is one persistence scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Schema is the path of the CUE or YAML schema, relative to the
	// scenario file.
	Schema string `yaml:"schema"`

	// Policy is the transaction policy of every unit: open (default),
	// continue or ignore.
	Policy string `yaml:"policy,omitempty"`

	// RunID fixes the run ID of every unit. Default: "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Seed rows are written before any entity is materialized. They are
	// not part of the trace.
	Seed []SeedRow `yaml:"seed,omitempty"`

	// Entities by name.
	Entities map[string]EntitySpec `yaml:"entities"`

	// Units run in order, each as its own unit of work.
	Units []Unit `yaml:"units"`

	// Assertions are checked after the last unit.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedRow is a row written directly to a table.
type SeedRow struct {
	Table string         `yaml:"table"`
	Row   map[string]any `yaml:"row"`
}

// EntitySpec declares an entity.
type EntitySpec struct {
	// Role of a new entity, or of the row to load.
	Role string `yaml:"role"`

	// Load selects a seeded row instead of creating a new entity.
	Load map[string]any `yaml:"load,omitempty"`

	// Fields of a new entity, or fields changed on the loaded one.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Links sets to-one relations to other entities by name.
	Links map[string]string `yaml:"links,omitempty"`

	// Append adds entities to to-many relations.
	Append map[string][]string `yaml:"append,omitempty"`
}

// Unit is one unit of work.
type Unit struct {
	// Set changes entity fields before the unit runs.
	Set map[string]map[string]any `yaml:"set,omitempty"`

	Persist []string `yaml:"persist,omitempty"`
	Delete  []string `yaml:"delete,omitempty"`

	// Expect is "success" (default) or "failure".
	Expect string `yaml:"expect,omitempty"`
}

// Assertion checks the trace, the stored rows or an entity.
type Assertion struct {
	// Type is one of statement_count, statement_order, final_state,
	// row_count and entity_state.
	Type string `yaml:"type"`

	// Op and Table select statements (statement_count). An empty table
	// matches every table. Table and Where select rows for final_state and
	// row_count.
	Op    string `yaml:"op,omitempty"`
	Table string `yaml:"table,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Statements lists "op table" pairs expected in this order
	// (statement_order). Other statements may come in between.
	Statements []string `yaml:"statements,omitempty"`

	Where map[string]any `yaml:"where,omitempty"`

	// Entity names an entity and Status its expected heap status
	// (entity_state).
	Entity string `yaml:"entity,omitempty"`
	Status string `yaml:"status,omitempty"`

	// Expect holds the expected values, as a subset (final_state,
	// entity_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertStatementCount = "statement_count"
	AssertStatementOrder = "statement_order"
	AssertFinalState     = "final_state"
	AssertRowCount       = "row_count"
	AssertEntityState    = "entity_state"
)

// Unit expectations.
const (
	ExpectSuccess = "success"
	ExpectFailure = "failure"
)

// LoadScenario reads a scenario file. Unknown fields are rejected and the
// schema path is resolved against the directory of the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Schema != "" && !filepath.IsAbs(s.Schema) {
		s.Schema = filepath.Join(filepath.Dir(path), s.Schema)
	}
	if _, err := os.Stat(s.Schema); err != nil {
		return nil, fmt.Errorf("invalid scenario: schema file not found: %s", s.Schema)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML. The schema path is
// left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadDir loads every .yaml and .yml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if s.Policy != "" {
		if _, err := transaction.ParsePolicy(s.Policy); err != nil {
			return err
		}
	}
	if len(s.Units) == 0 {
		return fmt.Errorf("units list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, row := range s.Seed {
		if row.Table == "" {
			return fmt.Errorf("seed[%d]: table is required", i)
		}
		if len(row.Row) == 0 {
			return fmt.Errorf("seed[%d]: row is required", i)
		}
	}

	known := func(name string) bool {
		_, ok := s.Entities[name]
		return ok
	}
	for _, name := range sortedKeys(s.Entities) {
		e := s.Entities[name]
		if e.Role == "" {
			return fmt.Errorf("entities.%s: role is required", name)
		}
		for rel, target := range e.Links {
			if !known(target) {
				return fmt.Errorf("entities.%s.links.%s: unknown entity %q", name, rel, target)
			}
		}
		for rel, targets := range e.Append {
			for _, target := range targets {
				if !known(target) {
					return fmt.Errorf("entities.%s.append.%s: unknown entity %q", name, rel, target)
				}
			}
		}
	}

	for i, u := range s.Units {
		if len(u.Persist) == 0 && len(u.Delete) == 0 {
			return fmt.Errorf("units[%d]: persist or delete is required", i)
		}
		for _, name := range append(append([]string{}, u.Persist...), u.Delete...) {
			if !known(name) {
				return fmt.Errorf("units[%d]: unknown entity %q", i, name)
			}
		}
		for name := range u.Set {
			if !known(name) {
				return fmt.Errorf("units[%d].set: unknown entity %q", i, name)
			}
		}
		if u.Expect != "" && u.Expect != ExpectSuccess && u.Expect != ExpectFailure {
			return fmt.Errorf("units[%d]: expect must be %q or %q", i, ExpectSuccess, ExpectFailure)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], known); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, known func(string) bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertStatementCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for statement_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for statement_count", index)
		}
	case AssertStatementOrder:
		if len(a.Statements) == 0 {
			return fmt.Errorf("assertions[%d]: statements list is required for statement_order", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertEntityState:
		if !known(a.Entity) {
			return fmt.Errorf("assertions[%d]: unknown entity %q", index, a.Entity)
		}
		if len(a.Expect) == 0 && a.Status == "" {
			return fmt.Errorf("assertions[%d]: expect or status is required for entity_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
