// Package plan loads execution plans: an ordered list of step
// descriptions, some flagged as requiring margin voting.
//
// Plan files are YAML, validated against an embedded CUE schema before
// unmarshalling so malformed plans fail at load time with a schema
// error instead of surfacing later as odd driver behavior.
package plan

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed plan_schema.cue
var planSchemaCUE string

// Step is one planned unit of work.
type Step struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`

	// Voting marks the step as critical: its outcome must be confirmed
	// by margin voting rather than accepted from a single attempt.
	Voting bool `yaml:"voting" json:"voting"`

	// DependsOn is informational only; execution follows plan order.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// Plan is a task broken into ordered steps.
type Plan struct {
	Task  string `yaml:"task" json:"task"`
	Steps []Step `yaml:"steps" json:"steps"`
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", path, err)
	}
	return p, nil
}

// Parse validates plan YAML against the schema and unmarshals it.
// Duplicate step ids are rejected: two steps sharing an id would merge
// their ledgers and misattribute votes.
func Parse(data []byte) (*Plan, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}

	seen := make(map[string]bool, len(p.Steps))
	for _, step := range p.Steps {
		if seen[step.ID] {
			return nil, fmt.Errorf("duplicate step id %q", step.ID)
		}
		seen[step.ID] = true
	}

	return &p, nil
}

// validateSchema unifies the YAML document with the #Plan definition.
func validateSchema(data []byte) error {
	cctx := cuecontext.New()

	schema := cctx.CompileString(planSchemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile plan schema: %w", err)
	}

	file, err := cueyaml.Extract("plan.yaml", data)
	if err != nil {
		return fmt.Errorf("parse plan yaml: %w", err)
	}
	doc := cctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("build plan value: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Plan")).Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("plan schema: %w", err)
	}

	return nil
}

// VotingSteps returns how many steps are flagged for margin voting.
func (p *Plan) VotingSteps() int {
	n := 0
	for _, step := range p.Steps {
		if step.Voting {
			n++
		}
	}
	return n
}
