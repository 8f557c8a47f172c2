package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const supportYAML = `
name: support
description: triage flow
nodes:
  - id: chat
    kind: chat_interface
  - id: triage
    kind: agent
    name: Triage
    config:
      agent_id: triage-agent
      capabilities: [routing]
      tool_access:
        selection: manual
        allowed_tools: [kb_search]
  - id: kb
    kind: Tool
    config:
      tool_name: kb_search
      error_handling:
        retry_count: 1
        fallback_action: skip
edges:
  - source: chat
    target: triage
  - source: triage
    target: kb
    label: lookup
`

func TestDefinition_FromYAMLBuildsGraph(t *testing.T) {
	t.Parallel()
	def, err := DefinitionFromYAML([]byte(supportYAML))
	require.NoError(t, err)

	g, err := def.BuildGraph()
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID())
	assert.Equal(t, "support", g.Name())
	assert.Equal(t, 3, g.Len())

	triage, ok := g.Node("triage")
	require.True(t, ok)
	ac := triage.Config.(*AgentConfig)
	assert.Equal(t, "Triage", triage.Name)
	assert.Equal(t, ToolSelectionManual, ac.ToolAccess.Selection)
	assert.Equal(t, []string{"kb_search"}, ac.ToolAccess.AllowedTools)
	assert.Equal(t, ReasoningSequential, ac.Reasoning)

	kb, ok := g.Node("kb")
	require.True(t, ok)
	assert.Equal(t, KindTool, kb.Kind)
	tc := kb.Config.(*ToolConfig)
	assert.Equal(t, 1, tc.ErrorHandling.RetryCount)
	assert.Equal(t, FallbackSkip, tc.ErrorHandling.FallbackAction)

	edges := g.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, "lookup", edges[1].Label)
}

func TestDefinition_ExportPreservesGraph(t *testing.T) {
	t.Parallel()
	store := NewStore(nil)
	orig, err := store.InstantiateTemplate("customer-support")
	require.NoError(t, err)

	def, err := ExportDefinition(orig)
	require.NoError(t, err)
	out, err := def.ToYAML()
	require.NoError(t, err)

	parsed, err := DefinitionFromYAML([]byte(out))
	require.NoError(t, err)
	rebuilt, err := parsed.BuildGraph()
	require.NoError(t, err)

	assert.Equal(t, orig.ID(), rebuilt.ID())
	assert.Equal(t, len(orig.Nodes()), len(rebuilt.Nodes()))
	for i, e := range orig.Edges() {
		got := rebuilt.Edges()[i]
		assert.Equal(t, e.Source, got.Source)
		assert.Equal(t, e.Target, got.Target)
		assert.Equal(t, e.Condition, got.Condition)
	}
	escalate, _ := rebuilt.Node("escalate")
	dc := escalate.Config.(*DecisionConfig)
	require.Len(t, dc.Conditions, 1)
	assert.Equal(t, "priority", dc.Conditions[0].Field)
	assert.Equal(t, OpEquals, dc.Conditions[0].Operator)
}

func TestDefinition_ValidationErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		def  Definition
		want func(error) bool
	}{
		{
			name: "missing name",
			def:  Definition{Nodes: []NodeDefinition{{ID: "a", Kind: "agent"}}},
		},
		{
			name: "no nodes",
			def:  Definition{Name: "x"},
		},
		{
			name: "unknown kind",
			def:  Definition{Name: "x", Nodes: []NodeDefinition{{ID: "a", Kind: "robot"}}},
		},
		{
			name: "duplicate id",
			def:  Definition{Name: "x", Nodes: []NodeDefinition{{ID: "a", Kind: "agent"}, {ID: "a", Kind: "tool"}}},
		},
		{
			name: "dangling edge",
			def: Definition{Name: "x", Nodes: []NodeDefinition{{ID: "a", Kind: "agent"}},
				Edges: []EdgeDefinition{{Source: "a", Target: "b"}}},
			want: IsStructural,
		},
		{
			name: "tool to tool",
			def: Definition{Name: "x", Nodes: []NodeDefinition{{ID: "a", Kind: "tool"}, {ID: "b", Kind: "tool"}},
				Edges: []EdgeDefinition{{Source: "a", Target: "b"}}},
			want: IsValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			require.Error(t, err)
			if tt.want != nil {
				assert.True(t, tt.want(err), err.Error())
			}
			_, err = tt.def.BuildGraph()
			assert.Error(t, err)
		})
	}
}

func TestLoadDefinitionFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	def, err := DefinitionFromYAML([]byte(supportYAML))
	require.NoError(t, err)
	jsonPath := filepath.Join(dir, "support.json")
	require.NoError(t, def.SaveToFile(jsonPath))

	loaded, err := LoadDefinitionFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "support", loaded.Name)
	assert.Len(t, loaded.Nodes, 3)

	yamlPath := filepath.Join(dir, "support.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(supportYAML), 0o644))
	loaded, err = LoadDefinitionFile(yamlPath)
	require.NoError(t, err)
	assert.Len(t, loaded.Edges, 2)

	_, err = LoadDefinitionFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
