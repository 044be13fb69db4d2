package plan

import (
	"fmt"
	"slices"
)

// Action names a built-in step implementation
type Action string

const (
	ActionOpen         Action = "open"
	ActionOpenHome     Action = "open_home"
	ActionExpectStatus Action = "expect_status"
	ActionExpectText   Action = "expect_text"
	ActionExpectTitle  Action = "expect_title"
	ActionExpectURL    Action = "expect_url"
	ActionWait         Action = "wait"
)

var knownActions = []Action{
	ActionOpen,
	ActionOpenHome,
	ActionExpectStatus,
	ActionExpectText,
	ActionExpectTitle,
	ActionExpectURL,
	ActionWait,
}

// IsValid reports whether the action is one of the built-in actions
func (a Action) IsValid() bool {
	return slices.Contains(knownActions, a)
}

func (a Action) String() string {
	return string(a)
}

// Plan is the top-level document of a plan file
type Plan struct {
	Version string       `yaml:"version" toml:"version"`
	Cases   []CaseConfig `yaml:"cases" toml:"cases"`

	path string
}

// Path returns the file the plan was loaded from, if any
func (p *Plan) Path() string {
	return p.path
}

// CaseConfig describes one parameterized test case. Every instance of a case
// becomes an independent run.
type CaseConfig struct {
	Title     string            `yaml:"title" toml:"title"`
	BaseURL   string            `yaml:"base_url" toml:"base_url"`
	Params    map[string]string `yaml:"params,omitempty" toml:"params"`
	Instances []InstanceConfig  `yaml:"instances,omitempty" toml:"instances"`
	Setup     []StepConfig      `yaml:"setup,omitempty" toml:"setup"`
	Steps     []StepConfig      `yaml:"steps" toml:"steps"`
	Teardown  []StepConfig      `yaml:"teardown,omitempty" toml:"teardown"`
}

// InstanceConfig is one parameter set of a case
type InstanceConfig struct {
	Name   string            `yaml:"name" toml:"name"`
	Params map[string]string `yaml:"params,omitempty" toml:"params"`
}

// StepConfig is a declared step
type StepConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Order   int    `yaml:"order,omitempty" toml:"order"`
	Pending bool   `yaml:"pending,omitempty" toml:"pending"`
	Action  Action `yaml:"action,omitempty" toml:"action"`
	Target  string `yaml:"target,omitempty" toml:"target"`
	Value   string `yaml:"value,omitempty" toml:"value"`
}

// instancesOf returns the instances to run for a case. A case without
// instances runs once with no instance name.
func (c *CaseConfig) instancesOf() []InstanceConfig {
	if len(c.Instances) == 0 {
		return []InstanceConfig{{}}
	}
	return c.Instances
}

func (c *CaseConfig) String() string {
	return fmt.Sprintf("case %q (%d steps, %d instances)", c.Title, len(c.Steps), len(c.instancesOf()))
}
