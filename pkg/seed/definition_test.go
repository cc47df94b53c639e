package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalDefinition = `
relation_types:
  - name: fills_position
    label: Fills position
permissions:
  - code: suggestion.review
    label: Review suggestions
    group: Suggestions
roles:
  - name: admin
    label: Administrator
    permissions: ["*"]
admin:
  name: admin
  label: Administrator
  role: admin
workflows:
  - scope: suggestion
    statuses:
      - code: open
        label: Open
        order: 1
        initial: true
      - code: accepted
        label: Accepted
        order: 2
        terminal: true
    transitions:
      - from: open
        to: accepted
        label: Accept
        permission: suggestion.review
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(minimalDefinition))
	require.NoError(t, err)

	require.Len(t, def.Workflows, 1)
	wf := def.Workflows[0]
	assert.Equal(t, "suggestion", wf.Scope)
	require.Len(t, wf.Statuses, 2)
	assert.True(t, wf.Statuses[0].Initial)
	assert.True(t, wf.Statuses[1].Terminal)
	require.Len(t, wf.Transitions, 1)
	assert.Equal(t, "suggestion.review", wf.Transitions[0].Permission)

	require.Len(t, def.Roles, 1)
	assert.Equal(t, []string{"*"}, def.Roles[0].Permissions)
	assert.Equal(t, "admin", def.Admin.Role)
}

func TestParseDefinition_InvalidYAML(t *testing.T) {
	_, err := ParseDefinition([]byte("workflows: [unclosed"))
	assert.Error(t, err)
}

func TestParseDefinition_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "no initial status",
			yaml: `
workflows:
  - scope: suggestion
    statuses:
      - code: open
        label: Open
`,
		},
		{
			name: "two initial statuses",
			yaml: `
workflows:
  - scope: suggestion
    statuses:
      - code: open
        label: Open
        initial: true
      - code: reopened
        label: Reopened
        initial: true
`,
		},
		{
			name: "duplicate status code",
			yaml: `
workflows:
  - scope: suggestion
    statuses:
      - code: open
        label: Open
        initial: true
      - code: open
        label: Also open
`,
		},
		{
			name: "transition to unknown status",
			yaml: `
workflows:
  - scope: suggestion
    statuses:
      - code: open
        label: Open
        initial: true
    transitions:
      - from: open
        to: archived
        label: Archive
`,
		},
		{
			name: "empty scope",
			yaml: `
workflows:
  - statuses:
      - code: open
        label: Open
        initial: true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ontology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalDefinition), 0o644))

	def, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Len(t, def.Workflows, 1)

	_, err = LoadDefinition(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDefinition_ShippedOntology(t *testing.T) {
	// The definition shipped with the binary must always validate.
	def, err := LoadDefinition("../../seed/ontology.yaml")
	require.NoError(t, err)

	assert.NotEmpty(t, def.RelationTypes)
	assert.NotEmpty(t, def.Permissions)
	assert.NotEmpty(t, def.Workflows)
	for _, wf := range def.Workflows {
		assert.NotEmpty(t, wf.Statuses, "scope %s", wf.Scope)
	}
}
