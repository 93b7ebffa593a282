// Package harness runs YAML-described reconciliation scenarios end to
// end and compares the resulting action trace against golden files.
// Scenarios are the conformance suite for the event-to-action rules.
package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SoftComply/marketing-automation/internal/dataset"
	"github.com/SoftComply/marketing-automation/internal/engine"
)

// Scenario describes one conformance scenario: a data set (CRM records,
// marketplace records, event stream) and optional engine configuration.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// DataSet is the scenario input in the snapshot JSON shape,
	// expressed inline as YAML.
	DataSet map[string]any `yaml:"dataset"`

	// Config optionally overrides the engine configuration (stage ids,
	// deal property defaults).
	Config map[string]any `yaml:"config,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected so scenario typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if len(s.DataSet) == 0 {
		return fmt.Errorf("missing dataset")
	}
	return nil
}

// BuildDataSet converts the scenario's inline data set to the snapshot
// type. The YAML tree round-trips through JSON so the snapshot's JSON
// field names apply in scenario files too.
func (s *Scenario) BuildDataSet() (*dataset.DataSet, error) {
	raw, err := json.Marshal(s.DataSet)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: encode dataset: %w", s.Name, err)
	}
	var ds dataset.DataSet
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("scenario %s: decode dataset: %w", s.Name, err)
	}
	return &ds, nil
}

// BuildConfig materializes the scenario's engine configuration.
func (s *Scenario) BuildConfig() (engine.Config, error) {
	var cfg engine.Config
	if len(s.Config) == 0 {
		return cfg, nil
	}
	raw, err := yaml.Marshal(s.Config)
	if err != nil {
		return cfg, fmt.Errorf("scenario %s: encode config: %w", s.Name, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("scenario %s: decode config: %w", s.Name, err)
	}
	return cfg, nil
}
