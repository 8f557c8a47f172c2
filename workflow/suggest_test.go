package workflow

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestNextNodes_CapabilityMatches(t *testing.T) {
	t.Parallel()
	node := Node{ID: "a", Kind: KindAgent, Config: &AgentConfig{Capabilities: []string{"Web Research", "Data Analysis"}}}

	got := SuggestNextNodes(node, nil)
	require.NotEmpty(t, got)
	assert.Equal(t, KindTool, got[0].Kind)
	assert.Equal(t, "web_search", got[0].Name)
	assert.InDelta(t, 0.85, got[0].Confidence, 1e-9)

	names := make([]string, 0, len(got))
	for _, s := range got {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "data_analysis")
	assert.Contains(t, names, "Agent Monitor")

	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Confidence > got[j].Confidence }))
}

func TestSuggestNextNodes_NeverProposesInvalidEdges(t *testing.T) {
	t.Parallel()
	for _, kind := range Kinds() {
		cfg, err := DefaultConfig(kind)
		require.NoError(t, err)
		node := Node{ID: "n", Kind: kind, Config: cfg}
		for _, s := range SuggestNextNodes(node, nil) {
			assert.True(t, ValidateConnection(kind, s.Kind).Valid, "%s -> %s", kind, s.Kind)
		}
	}
}

func TestSuggestNextNodes_UsesContext(t *testing.T) {
	t.Parallel()
	wctx := NewWorkflowContext(map[string]any{"error": "timeout"})
	for i := 0; i < 6; i++ {
		wctx.Append(Message{Role: "user", Content: "hi"})
	}
	node := Node{ID: "d", Kind: KindDecision, Config: &DecisionConfig{}}

	kinds := make(map[NodeKind]bool)
	for _, s := range SuggestNextNodes(node, wctx) {
		kinds[s.Kind] = true
	}
	assert.True(t, kinds[KindMemory])
	assert.True(t, kinds[KindHuman])
	assert.True(t, kinds[KindHandoff])
	assert.Len(t, wctx.ConversationHistory, 6, "context is only read")
}

func TestAssistConnection(t *testing.T) {
	t.Parallel()
	g := NewGraph("assist", "")
	mustAdd(t, g, "t1", KindTool, nil)
	mustAdd(t, g, "t2", KindTool, nil)
	mustAdd(t, g, "a", KindAgent, nil)
	mustAdd(t, g, "d", KindDecision, nil)
	mustConnect(t, g, "t1", "a")
	mustConnect(t, g, "a", "d")

	advice := AssistConnection(g, "t1", "t2")
	assert.False(t, advice.Valid)
	assert.NotEmpty(t, advice.Hints)
	require.NotEmpty(t, advice.Alternatives)
	assert.Equal(t, KindAgent, advice.Alternatives[0].Kind)

	advice = AssistConnection(g, "d", "a")
	assert.True(t, advice.Valid)
	assert.Contains(t, advice.Hints, "creates a cycle: nodes on it run once per execution")

	advice = AssistConnection(g, "t1", "a")
	assert.False(t, advice.Valid)
	assert.Equal(t, "nodes are already connected", advice.Reason)

	advice = AssistConnection(g, "ghost", "a")
	assert.False(t, advice.Valid)

	assert.Len(t, g.Edges(), 2)
}
