package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// Scenario is one conformance test loaded from YAML.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// FlowToken is used for every event in the scenario.
	FlowToken string `yaml:"flow_token,omitempty"`

	// Script is a core script path. Empty runs the default script.
	Script string            `yaml:"script,omitempty"`
	Vars   map[string]string `yaml:"vars,omitempty"`

	// MaxSteps overrides the engine quota. Zero keeps the default.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Storage seeds the key-value store before the first event.
	Storage map[string]string `yaml:"storage,omitempty"`
	HTTP    []HTTPStub        `yaml:"http,omitempty"`

	Events     []EventStep `yaml:"events"`
	Assertions []Assertion `yaml:"assertions"`
}

// HTTPStub is a canned HTTP reply keyed by method and URL. Unstubbed requests
// get a 404.
type HTTPStub struct {
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Status  int               `yaml:"status,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`

	// Error fails the round trip instead: "timeout" or "io".
	Error string `yaml:"error,omitempty"`
}

// EventStep submits one event.
type EventStep struct {
	Event string `yaml:"event"`
	URL   string `yaml:"url,omitempty"`

	// Abort is the runtime error code the update must fail with.
	// Empty means the update must succeed.
	Abort string `yaml:"abort,omitempty"`
}

// Assertion checks one property of a finished run.
//
// Fields used depend on Type:
//   - trace_contains: Effect, optional Detail
//   - trace_order: Labels (see TraceEntry.Label)
//   - trace_count: Effect, Count
//   - view_log: Message (substring of any log entry)
//   - view_user: Name ("" asserts no user)
//   - view_films: Count
//   - shell_events: URLs
//   - storage: Key, and Value or Absent
type Assertion struct {
	Type    string   `yaml:"type"`
	Effect  string   `yaml:"effect,omitempty"`
	Detail  string   `yaml:"detail,omitempty"`
	Labels  []string `yaml:"labels,omitempty"`
	Count   int      `yaml:"count,omitempty"`
	Message string   `yaml:"message,omitempty"`
	Name    string   `yaml:"name,omitempty"`
	URLs    []string `yaml:"urls,omitempty"`
	Key     string   `yaml:"key,omitempty"`
	Value   *string  `yaml:"value,omitempty"`
	Absent  bool     `yaml:"absent,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertViewLog       = "view_log"
	AssertViewUser      = "view_user"
	AssertViewFilms     = "view_films"
	AssertShellEvents   = "shell_events"
	AssertStorage       = "storage"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected. A relative Script path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving Script against basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Script != "" && !filepath.IsAbs(scenario.Script) && basePath != "" {
		scenario.Script = filepath.Join(basePath, scenario.Script)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	if s.Script != "" {
		if _, err := os.Stat(s.Script); err != nil {
			return fmt.Errorf("script file not found: %s", s.Script)
		}
	}

	for i, stub := range s.HTTP {
		if stub.Method == "" || stub.URL == "" {
			return fmt.Errorf("http[%d]: method and url are required", i)
		}
		switch stub.Error {
		case "", "timeout", "io":
		default:
			return fmt.Errorf("http[%d]: unknown error %q (want timeout or io)", i, stub.Error)
		}
	}

	for i, step := range s.Events {
		kind, err := ir.ParseEventKind(step.Event)
		if err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
		if kind == ir.EventCallbackReceived && step.URL == "" {
			return fmt.Errorf("events[%d]: url is required for callback_received", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Effect == "" {
			return fmt.Errorf("assertions[%d]: effect is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Labels) == 0 {
			return fmt.Errorf("assertions[%d]: labels list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Effect == "" {
			return fmt.Errorf("assertions[%d]: effect is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertViewLog:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for view_log", index)
		}
	case AssertViewUser:
	case AssertViewFilms:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for view_films", index)
		}
	case AssertShellEvents:
	case AssertStorage:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for storage", index)
		}
		if (a.Value == nil) == !a.Absent {
			return fmt.Errorf("assertions[%d]: storage needs exactly one of value or absent", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
