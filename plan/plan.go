// Package plan loads declarative test plans and turns them into runs.
//
// A plan file is YAML, or TOML when its name ends in .toml. Each case is a list of steps built from a small set of
// actions against the run's resource; each instance of a case is one
// independent run with its own parameters.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SupportedVersion is the newest plan format this build understands. Plans
// with the same major version and a lower or equal version are accepted.
const SupportedVersion = "v1.0.0"

// Load reads and validates a plan file
func Load(path string) (*Plan, error) {
	log.Debug("Reading plan file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	parse := Parse
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parse = ParseTOML
	}
	p, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	p.path = path
	return p, nil
}

// Parse decodes and validates a plan document
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseTOML decodes and validates a plan document written in TOML
func ParseTOML(data []byte) (*Plan, error) {
	var p Plan
	if _, err := toml.Decode(string(data), &p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the plan version and every case
func (p *Plan) Validate() error {
	if err := checkVersion(p.Version); err != nil {
		return err
	}
	if len(p.Cases) == 0 {
		return errors.New("plan has no cases")
	}

	titles := make(map[string]bool, len(p.Cases))
	for i := range p.Cases {
		c := &p.Cases[i]
		if c.Title == "" {
			return fmt.Errorf("case #%d: title is required", i)
		}
		if titles[c.Title] {
			return fmt.Errorf("duplicate case title %q", c.Title)
		}
		titles[c.Title] = true
		if err := c.validate(); err != nil {
			return fmt.Errorf("case %q: %w", c.Title, err)
		}
	}
	return nil
}

func checkVersion(v string) error {
	if v == "" {
		return errors.New("plan version is required")
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("invalid plan version %q: must be a semantic version like %s", v, SupportedVersion)
	}
	if semver.Major(v) != semver.Major(SupportedVersion) || semver.Compare(v, SupportedVersion) > 0 {
		return fmt.Errorf("unsupported plan version %s: this build supports %s up to %s",
			v, semver.Major(SupportedVersion), SupportedVersion)
	}
	return nil
}

func (c *CaseConfig) validate() error {
	if len(c.Steps) == 0 {
		return errors.New("at least one step is required")
	}

	names := make(map[string]bool, len(c.Instances))
	for i, inst := range c.Instances {
		if inst.Name == "" {
			return fmt.Errorf("instance #%d: name is required", i)
		}
		if names[inst.Name] {
			return fmt.Errorf("duplicate instance %q", inst.Name)
		}
		names[inst.Name] = true
	}

	for _, group := range []struct {
		label string
		steps []StepConfig
	}{
		{"setup", c.Setup},
		{"steps", c.Steps},
		{"teardown", c.Teardown},
	} {
		for i, s := range group.steps {
			if err := s.validate(); err != nil {
				return fmt.Errorf("%s #%d: %w", group.label, i, err)
			}
		}
	}
	return nil
}

func (s StepConfig) validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Order < 0 {
		return fmt.Errorf("step %q: order cannot be negative", s.Name)
	}
	if s.Pending && s.Action == "" {
		return nil
	}
	if !s.Action.IsValid() {
		return fmt.Errorf("step %q: unknown action %q", s.Name, s.Action)
	}

	switch s.Action {
	case ActionOpen:
		if s.Target == "" {
			return fmt.Errorf("step %q: %s requires a target", s.Name, s.Action)
		}
	case ActionExpectStatus:
		if _, err := strconv.Atoi(s.Value); err != nil {
			return fmt.Errorf("step %q: %s requires a numeric value: %w", s.Name, s.Action, err)
		}
	case ActionExpectText, ActionExpectTitle, ActionExpectURL:
		if s.Value == "" {
			return fmt.Errorf("step %q: %s requires a value", s.Name, s.Action)
		}
	case ActionWait:
		if _, err := time.ParseDuration(s.Value); err != nil {
			return fmt.Errorf("step %q: %s requires a duration: %w", s.Name, s.Action, err)
		}
	}
	return nil
}

// Select returns a plan restricted to the named cases. No names selects every case.
func (p *Plan) Select(titles []string) (*Plan, error) {
	if len(titles) == 0 {
		return p, nil
	}
	byTitle := make(map[string]CaseConfig, len(p.Cases))
	for _, c := range p.Cases {
		byTitle[c.Title] = c
	}
	selected := &Plan{Version: p.Version, path: p.path}
	for _, t := range titles {
		c, ok := byTitle[t]
		if !ok {
			return nil, fmt.Errorf("case %q not found in plan", t)
		}
		selected.Cases = append(selected.Cases, c)
	}
	return selected, nil
}

// RunCount returns the number of independent runs the plan produces
func (p *Plan) RunCount() int {
	n := 0
	for i := range p.Cases {
		n += len(p.Cases[i].instancesOf())
	}
	return n
}
