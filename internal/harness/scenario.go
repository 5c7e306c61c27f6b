package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one declarative workflow test.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Seed pre-archives content so revision steps have a base.
	Seed []SeedEntry `yaml:"seed,omitempty"`

	// IDs is the fixed identifier sequence handed to the engine, in
	// allocation order: each intake consumes one publication identifier
	// followed by one identifier per new content item.
	IDs []string `yaml:"ids"`

	// Steps is the workflow to execute, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state after all steps ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir is the scenario file's directory, for resolving package paths.
	dir string
}

// SeedEntry pre-archives Versions sequential versions of one content
// identifier through throwaway publications.
type SeedEntry struct {
	Content  string `yaml:"content"`
	Versions int64  `yaml:"versions"`
}

// Step is one workflow action. Exactly one of the action fields must be
// set.
type Step struct {
	Intake *IntakeStep   `yaml:"intake,omitempty"`
	Accept *DecisionStep `yaml:"accept,omitempty"`
	Reject *DecisionStep `yaml:"reject,omitempty"`
	Submit *SubmitStep   `yaml:"submit,omitempty"`
	Locate *LocateStep   `yaml:"locate,omitempty"`

	// Expect validates the step outcome. Omitted means the step must
	// simply not error.
	Expect *Expect `yaml:"expect,omitempty"`
}

// IntakeStep submits a package manifest from a file relative to the
// scenario.
type IntakeStep struct {
	Package         string `yaml:"package"`
	TrustedRoles    bool   `yaml:"trusted_roles,omitempty"`
	TrustedLicenses bool   `yaml:"trusted_licenses,omitempty"`
}

// DecisionStep records one acceptance decision.
type DecisionStep struct {
	Publication string `yaml:"publication"`
	Identity    string `yaml:"identity"`
	Kind        string `yaml:"kind"`
	Subject     string `yaml:"subject"`
}

// SubmitStep submits a publication for archival.
type SubmitStep struct {
	Publication string `yaml:"publication"`
}

// LocateStep looks up a content identifier.
type LocateStep struct {
	Content string `yaml:"content"`
}

// Expect validates a step outcome. Zero-valued fields are not checked,
// except Error: an empty Error means the step must succeed.
type Expect struct {
	// State is the publication state after the step.
	State string `yaml:"state,omitempty"`

	// Error is the expected error code ("not-ready", "unauthorized", or
	// a workflow failure code such as MALFORMED_PACKAGE).
	Error string `yaml:"error,omitempty"`

	// Refs are the expected archive refs from a submit, in item order.
	Refs []string `yaml:"refs,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of "state", "versions", "jobs".
	Type string `yaml:"type"`

	// Publication and State apply to "state" assertions.
	Publication string `yaml:"publication,omitempty"`
	State       string `yaml:"state,omitempty"`

	// Content and Versions apply to "versions" assertions: the exact
	// ascending version list of the identifier.
	Content  string  `yaml:"content,omitempty"`
	Versions []int64 `yaml:"versions,omitempty"`

	// Count applies to "jobs" assertions: total dispatched jobs.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertState    = "state"
	AssertVersions = "versions"
	AssertJobs     = "jobs"
)

// LoadScenario reads and validates a scenario YAML file. Unknown fields
// are rejected so typos fail loudly instead of silently skipping a
// check.
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
	s.dir = filepath.Dir(path)

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

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

	for i, seed := range s.Seed {
		if seed.Content == "" {
			return fmt.Errorf("seed[%d]: content is required", i)
		}
		if seed.Versions < 1 {
			return fmt.Errorf("seed[%d]: versions must be positive", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, s.dir); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step, dir string) error {
	set := 0
	if step.Intake != nil {
		set++
		if step.Intake.Package == "" {
			return fmt.Errorf("steps[%d].intake: package is required", index)
		}
		pkg := filepath.Join(dir, step.Intake.Package)
		if _, err := os.Stat(pkg); err != nil {
			return fmt.Errorf("steps[%d].intake: package file %s: %w", index, step.Intake.Package, err)
		}
	}
	if step.Accept != nil {
		set++
		if err := validateDecision(index, "accept", step.Accept); err != nil {
			return err
		}
	}
	if step.Reject != nil {
		set++
		if err := validateDecision(index, "reject", step.Reject); err != nil {
			return err
		}
	}
	if step.Submit != nil {
		set++
		if step.Submit.Publication == "" {
			return fmt.Errorf("steps[%d].submit: publication is required", index)
		}
	}
	if step.Locate != nil {
		set++
		if step.Locate.Content == "" {
			return fmt.Errorf("steps[%d].locate: content is required", index)
		}
	}

	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, set)
	}
	return nil
}

func validateDecision(index int, op string, d *DecisionStep) error {
	if d.Publication == "" || d.Identity == "" || d.Kind == "" || d.Subject == "" {
		return fmt.Errorf("steps[%d].%s: publication, identity, kind, and subject are all required", index, op)
	}
	if d.Kind != "role" && d.Kind != "license" {
		return fmt.Errorf("steps[%d].%s: unknown kind %q", index, op, d.Kind)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertState:
		if a.Publication == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: publication and state are required for state", index)
		}
	case AssertVersions:
		if a.Content == "" || len(a.Versions) == 0 {
			return fmt.Errorf("assertions[%d]: content and versions are required for versions", index)
		}
	case AssertJobs:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for jobs", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
