// Package seed bootstraps the graph from a YAML ontology definition:
// relation types, permissions, roles, the admin user, ToR function
// templates, and per-scope workflow state machines. The definition is
// data, so deployments change their governance rules without a build.
package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the root of the seed YAML.
type Definition struct {
	RelationTypes []RelationTypeDef `yaml:"relation_types"`
	Permissions   []PermissionDef   `yaml:"permissions"`
	Roles         []RoleDef         `yaml:"roles"`
	Admin         AdminDef          `yaml:"admin"`
	Functions     []FunctionDef     `yaml:"functions"`
	Workflows     []WorkflowDef     `yaml:"workflows"`
}

type RelationTypeDef struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
}

type PermissionDef struct {
	Code  string `yaml:"code"`
	Label string `yaml:"label"`
	Group string `yaml:"group"`
}

type RoleDef struct {
	Name        string   `yaml:"name"`
	Label       string   `yaml:"label"`
	Description string   `yaml:"description"`
	IsDefault   bool     `yaml:"is_default"`
	Permissions []string `yaml:"permissions"` // codes, or ["*"] for all
}

type AdminDef struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

// FunctionDef is a capability-bearing position template (chairperson,
// secretary). Capabilities become can_* = "true"/"false" properties.
type FunctionDef struct {
	Name         string          `yaml:"name"`
	Label        string          `yaml:"label"`
	Capabilities map[string]bool `yaml:"capabilities"`
}

type WorkflowDef struct {
	Scope       string          `yaml:"scope"`
	Statuses    []StatusDef     `yaml:"statuses"`
	Transitions []TransitionDef `yaml:"transitions"`
}

type StatusDef struct {
	Code     string `yaml:"code"`
	Label    string `yaml:"label"`
	Order    int64  `yaml:"order"`
	Initial  bool   `yaml:"initial"`
	Terminal bool   `yaml:"terminal"`
}

type TransitionDef struct {
	From            string `yaml:"from"`
	To              string `yaml:"to"`
	Label           string `yaml:"label"`
	Permission      string `yaml:"permission"`
	RequiresOutcome bool   `yaml:"requires_outcome"`
	Condition       string `yaml:"condition"`
}

// ParseDefinition parses and validates a seed definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse seed definition: %w", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinition reads and parses a seed definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed definition: %w", err)
	}
	return ParseDefinition(data)
}

func (d *Definition) validate() error {
	for _, wf := range d.Workflows {
		if wf.Scope == "" {
			return fmt.Errorf("workflow with empty scope")
		}

		initials := 0
		codes := make(map[string]bool, len(wf.Statuses))
		for _, st := range wf.Statuses {
			if codes[st.Code] {
				return fmt.Errorf("scope %q: duplicate status code %q", wf.Scope, st.Code)
			}
			codes[st.Code] = true
			if st.Initial {
				initials++
			}
		}
		if initials != 1 {
			return fmt.Errorf("scope %q: %d initial statuses, want exactly 1", wf.Scope, initials)
		}

		for _, tr := range wf.Transitions {
			if !codes[tr.From] || !codes[tr.To] {
				return fmt.Errorf("scope %q: transition %s -> %s references unknown status", wf.Scope, tr.From, tr.To)
			}
		}
	}
	return nil
}
