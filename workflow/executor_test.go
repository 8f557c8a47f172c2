package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestExecutor(t *testing.T, opts ...ExecutorOption) *Executor {
	t.Helper()
	return NewExecutor(append([]ExecutorOption{WithLogger(zaptest.NewLogger(t))}, opts...)...)
}

func mustAdd(t *testing.T, g *Graph, id string, kind NodeKind, cfg NodeConfig) Node {
	t.Helper()
	n, err := g.AddNode(kind, cfg, Position{}, WithNodeID(id))
	require.NoError(t, err)
	return n
}

func mustConnect(t *testing.T, g *Graph, src, dst string, opts ...EdgeOption) {
	t.Helper()
	_, err := g.Connect(src, dst, opts...)
	require.NoError(t, err)
}

// failingAgents fails agent nodes whose id is in ids and delegates the rest
func failingAgents(ids ...string) *StrategyTable {
	fail := make(map[string]bool, len(ids))
	for _, id := range ids {
		fail[id] = true
	}
	table := DefaultStrategies(nil)
	base := &AgentStrategy{}
	table.Register(KindAgent, StrategyFunc(func(ctx context.Context, node Node, wctx *WorkflowContext) (ExecutionResult, error) {
		if fail[node.ID] {
			return ExecutionResult{Success: false, Error: "boom"}, nil
		}
		return base.Execute(ctx, node, wctx)
	}))
	return table
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestExecute_AgentThenTool(t *testing.T) {
	t.Parallel()
	g := NewGraph("wf", "")
	mustAdd(t, g, "a1", KindAgent, &AgentConfig{Name: "Assistant"})
	mustAdd(t, g, "t1", KindTool, &ToolConfig{ToolName: "web_search"})
	mustConnect(t, g, "a1", "t1")

	rec, err := newTestExecutor(t).Execute(context.Background(), g, map[string]any{"q": "hello"})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, ExecutionStatusCompleted, rec.Status)
	assert.Equal(t, []string{"a1", "t1"}, rec.ExecutionPath)
	assert.True(t, rec.Results["a1"].Success)
	assert.Equal(t, []string{"web_search"}, rec.Results["t1"].ToolsUsed)
	assert.Equal(t, 0, rec.Results["t1"].TokensUsed)
	assert.Equal(t, g.ID(), rec.WorkflowID)
	assert.False(t, rec.EndTime.Before(rec.StartTime))
	assert.InDelta(t, 1.0, rec.Metrics.SuccessRate, 1e-9)
	assert.Contains(t, rec.Metrics.NodeExecutionTimes, "a1")
	assert.Contains(t, rec.Metrics.NodeExecutionTimes, "t1")

	out, ok := rec.Context.CurrentData.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "web_search", out["tool"])

	n, _ := g.Node("t1")
	assert.Equal(t, NodeStatusCompleted, n.Status)
	require.NotNil(t, n.LastExecution)
	assert.True(t, n.LastExecution.Success)
}

func TestExecute_ChainTokensAreAgentSum(t *testing.T) {
	t.Parallel()
	g := NewGraph("chain", "")
	mustAdd(t, g, "a1", KindAgent, &AgentConfig{Name: "First", SystemPrompt: "Be brief."})
	mustAdd(t, g, "t1", KindTool, &ToolConfig{ToolName: "lookup"})
	mustAdd(t, g, "a2", KindAgent, &AgentConfig{Name: "Second"})
	mustConnect(t, g, "a1", "t1")
	mustConnect(t, g, "t1", "a2")

	rec, err := newTestExecutor(t).Execute(context.Background(), g, "summarize the report")
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "t1", "a2"}, rec.ExecutionPath)
	assert.Positive(t, rec.Results["a1"].TokensUsed)
	assert.Positive(t, rec.Results["a2"].TokensUsed)
	assert.Equal(t, rec.Results["a1"].TokensUsed+rec.Results["a2"].TokensUsed, rec.Metrics.TotalTokensUsed)
	assert.Equal(t, []string{"lookup"}, rec.Metrics.ToolsUsed)
}

func TestExecute_ToolsUsedNotDeduplicated(t *testing.T) {
	t.Parallel()
	g := NewGraph("tools", "")
	mustAdd(t, g, "a1", KindAgent, &AgentConfig{ToolAccess: ToolAccessPolicy{AllowedTools: []string{"search", "calc"}}})
	mustAdd(t, g, "t1", KindTool, &ToolConfig{ToolName: "search"})
	mustConnect(t, g, "a1", "t1")

	rec, err := newTestExecutor(t).Execute(context.Background(), g, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "calc"}, rec.Results["a1"].ToolsUsed)
	assert.Equal(t, []string{"search", "calc", "search"}, rec.Metrics.ToolsUsed)
}

func TestExecute_NoEntryPoint(t *testing.T) {
	t.Parallel()
	g := NewGraph("cycle", "")
	mustAdd(t, g, "a", KindAgent, nil)
	mustAdd(t, g, "b", KindAgent, nil)
	mustConnect(t, g, "a", "b")
	mustConnect(t, g, "b", "a")

	rec, err := newTestExecutor(t).Execute(context.Background(), g, "x")
	require.Error(t, err)
	assert.Nil(t, rec)

	var se *StructuralError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "no entry point", se.Reason)
	for _, n := range g.Nodes() {
		assert.Equal(t, NodeStatusIdle, n.Status, n.ID)
		assert.Nil(t, n.LastExecution)
	}
}

func TestExecute_EmptyGraph(t *testing.T) {
	t.Parallel()
	_, err := newTestExecutor(t).Execute(context.Background(), NewGraph("empty", ""), nil)
	assert.True(t, IsStructural(err))

	_, err = newTestExecutor(t).Execute(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestExecute_FailureAbortsRun(t *testing.T) {
	t.Parallel()
	g := NewGraph("fail", "")
	mustAdd(t, g, "a1", KindAgent, nil)
	mustAdd(t, g, "a2", KindAgent, nil)
	mustAdd(t, g, "a3", KindAgent, nil)
	mustAdd(t, g, "lone", KindAgent, nil)
	mustConnect(t, g, "a1", "a2")
	mustConnect(t, g, "a2", "a3")

	rec, err := newTestExecutor(t, WithStrategies(failingAgents("a2"))).Execute(context.Background(), g, "go")
	require.Error(t, err)
	require.NotNil(t, rec)

	var ne *NodeExecutionError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "a2", ne.NodeID)
	assert.Equal(t, KindAgent, ne.Kind)

	assert.Equal(t, ExecutionStatusError, rec.Status)
	assert.Equal(t, []string{"a1", "a2"}, rec.ExecutionPath)
	assert.NotContains(t, rec.Results, "a3")
	assert.NotContains(t, rec.Results, "lone", "later entry branches do not run")
	assert.Equal(t, 1, rec.Metrics.ErrorCount)
	assert.InDelta(t, 0.5, rec.Metrics.SuccessRate, 1e-9)
	assert.Contains(t, rec.Error, "a2")

	a2, _ := g.Node("a2")
	a3, _ := g.Node("a3")
	assert.Equal(t, NodeStatusError, a2.Status)
	assert.Equal(t, NodeStatusIdle, a3.Status)
}

func TestExecute_SkipBranchPolicy(t *testing.T) {
	t.Parallel()
	g := NewGraph("skip", "")
	mustAdd(t, g, "e1", KindAgent, nil)
	mustAdd(t, g, "x1", KindAgent, nil)
	mustAdd(t, g, "e2", KindAgent, nil)
	mustAdd(t, g, "x2", KindAgent, nil)
	mustConnect(t, g, "e1", "x1")
	mustConnect(t, g, "e2", "x2")

	exec := newTestExecutor(t, WithStrategies(failingAgents("e1")), WithFailurePolicy(SkipBranch))
	rec, err := exec.Execute(context.Background(), g, "go")
	require.NoError(t, err)

	assert.Equal(t, ExecutionStatusCompleted, rec.Status)
	assert.Equal(t, []string{"e1", "e2", "x2"}, rec.ExecutionPath)
	assert.Equal(t, 1, rec.Metrics.ErrorCount)
	assert.InDelta(t, 2.0/3.0, rec.Metrics.SuccessRate, 1e-9)
}

func TestExecute_SharedContextAcrossEntries(t *testing.T) {
	t.Parallel()
	g := NewGraph("shared", "")
	mustAdd(t, g, "first", KindAgent, &AgentConfig{AgentID: "alpha"})
	mustAdd(t, g, "second", KindMemory, nil)

	rec, err := newTestExecutor(t).Execute(context.Background(), g, "seed")
	require.NoError(t, err)

	out, ok := rec.Results["second"].Output.(map[string]any)
	require.True(t, ok, "the passthrough entry sees the first entry's output")
	assert.Equal(t, "alpha", out["agent"])
}

func TestExecute_DiamondRunsJoinOnce(t *testing.T) {
	t.Parallel()
	g := NewGraph("diamond", "")
	mustAdd(t, g, "a", KindAgent, nil)
	mustAdd(t, g, "b", KindAgent, nil)
	mustAdd(t, g, "c", KindAgent, nil)
	mustAdd(t, g, "d", KindAggregator, nil)
	mustConnect(t, g, "a", "b")
	mustConnect(t, g, "a", "c")
	mustConnect(t, g, "b", "d")
	mustConnect(t, g, "c", "d")

	rec, err := newTestExecutor(t).Execute(context.Background(), g, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d", "c"}, rec.ExecutionPath)
}

func TestExecute_ReachableCycleTerminates(t *testing.T) {
	t.Parallel()
	g := NewGraph("loop", "")
	mustAdd(t, g, "start", KindChatInterface, nil)
	mustAdd(t, g, "a", KindAgent, nil)
	mustAdd(t, g, "b", KindAgent, nil)
	mustConnect(t, g, "start", "a")
	mustConnect(t, g, "a", "b")
	mustConnect(t, g, "b", "a")

	rec, err := newTestExecutor(t).Execute(context.Background(), g, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "a", "b"}, rec.ExecutionPath)
}

// ---------------------------------------------------------------------------
// Tool retries
// ---------------------------------------------------------------------------

func flakyToolTable(calls *atomic.Int32) *StrategyTable {
	table := DefaultStrategies(nil)
	table.Register(KindTool, StrategyFunc(func(context.Context, Node, *WorkflowContext) (ExecutionResult, error) {
		calls.Add(1)
		return ExecutionResult{}, fmt.Errorf("upstream unavailable")
	}))
	return table
}

func TestExecute_ToolRetriesThenFails(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	g := NewGraph("retry", "")
	mustAdd(t, g, "a", KindAgent, nil)
	mustAdd(t, g, "t", KindTool, &ToolConfig{
		ToolName:      "flaky",
		ErrorHandling: ToolErrorHandling{RetryCount: 2, RetryDelayMs: 1, FallbackAction: FallbackError},
	})
	mustConnect(t, g, "a", "t")

	rec, err := newTestExecutor(t, WithStrategies(flakyToolTable(&calls))).Execute(context.Background(), g, nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, rec.Metrics.RetryCount)
	assert.Equal(t, ExecutionStatusError, rec.Status)
	assert.Contains(t, rec.Results["t"].Error, "upstream unavailable")
}

func TestExecute_ToolFallbackSkip(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	g := NewGraph("skip", "")
	mustAdd(t, g, "t", KindTool, &ToolConfig{
		ToolName:      "flaky",
		ErrorHandling: ToolErrorHandling{RetryCount: 1, FallbackAction: FallbackSkip},
	})
	mustAdd(t, g, "a", KindAgent, nil)
	mustConnect(t, g, "t", "a")

	rec, err := newTestExecutor(t, WithStrategies(flakyToolTable(&calls))).Execute(context.Background(), g, "payload")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	res := rec.Results["t"]
	assert.True(t, res.Success)
	assert.Equal(t, "payload", res.Output)
	assert.Equal(t, true, res.Metadata["skipped"])
	assert.Equal(t, []string{"t", "a"}, rec.ExecutionPath)
}

// ---------------------------------------------------------------------------
// Decision branching
// ---------------------------------------------------------------------------

func decisionGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph("decide", "")
	mustAdd(t, g, "d", KindDecision, &DecisionConfig{
		Conditions: []DecisionCondition{{Label: "urgent", Field: "priority", Operator: OpEquals, Value: "high"}},
	})
	mustAdd(t, g, "h", KindHandoff, nil)
	mustAdd(t, g, "r", KindAgent, nil)
	mustAdd(t, g, "m", KindMonitor, nil)
	mustConnect(t, g, "d", "h", WithCondition("true"))
	mustConnect(t, g, "d", "r", WithCondition("false"))
	mustConnect(t, g, "d", "m")
	return g
}

func TestExecute_DecisionBranching(t *testing.T) {
	t.Parallel()
	exec := newTestExecutor(t, WithDecisionBranching())

	rec, err := exec.Execute(context.Background(), decisionGraph(t), map[string]any{"priority": "high"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "h", "m"}, rec.ExecutionPath)
	require.NotNil(t, rec.Results["d"].Confidence)
	assert.InDelta(t, 0.9, *rec.Results["d"].Confidence, 1e-9)

	rec, err = exec.Execute(context.Background(), decisionGraph(t), map[string]any{"priority": "low"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "r", "m"}, rec.ExecutionPath)
}

func TestExecute_DecisionDoesNotBranchByDefault(t *testing.T) {
	t.Parallel()
	rec, err := newTestExecutor(t).Execute(context.Background(), decisionGraph(t), map[string]any{"priority": "high"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "h", "r", "m"}, rec.ExecutionPath)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestExecute_CancelledContext(t *testing.T) {
	t.Parallel()
	g := NewGraph("cancel", "")
	mustAdd(t, g, "a", KindAgent, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := newTestExecutor(t).Execute(ctx, g, nil)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	require.NotNil(t, rec)
	assert.Equal(t, ExecutionStatusError, rec.Status)
	assert.Empty(t, rec.ExecutionPath)

	n, _ := g.Node("a")
	assert.Equal(t, NodeStatusIdle, n.Status)
}

func TestExecute_StrategyPanicBecomesFailure(t *testing.T) {
	t.Parallel()
	table := DefaultStrategies(nil)
	table.Register(KindGuardrail, StrategyFunc(func(context.Context, Node, *WorkflowContext) (ExecutionResult, error) {
		panic("bad rule")
	}))
	g := NewGraph("panic", "")
	mustAdd(t, g, "g", KindGuardrail, nil)

	rec, err := newTestExecutor(t, WithStrategies(table)).Execute(context.Background(), g, nil)
	require.Error(t, err)
	assert.Contains(t, rec.Results["g"].Error, "bad rule")
}

func TestExecute_EmitsEvents(t *testing.T) {
	t.Parallel()
	g := NewGraph("events", "")
	mustAdd(t, g, "a1", KindAgent, nil)
	mustAdd(t, g, "t1", KindTool, nil)
	mustConnect(t, g, "a1", "t1")

	recorder := &EventRecorder{}
	rec, err := newTestExecutor(t, WithObserver(recorder)).Execute(context.Background(), g, "hi")
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventRunStarted,
		EventNodeStarted, EventNodeCompleted,
		EventNodeStarted, EventNodeCompleted,
		EventRunCompleted,
	}, recorder.Types())
	for _, ev := range recorder.Events() {
		assert.Equal(t, rec.ID, ev.ExecutionID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestExecutionRecord_FrozenAfterFinish(t *testing.T) {
	t.Parallel()
	g := NewGraph("frozen", "")
	mustAdd(t, g, "a", KindAgent, nil)

	rec, err := newTestExecutor(t).Execute(context.Background(), g, nil)
	require.NoError(t, err)
	require.True(t, rec.IsTerminal())

	rec.recordResult("late", ExecutionResult{Success: true}, 0, 0)
	rec.finish(ExecutionStatusError, errors.New("late"))
	assert.Equal(t, []string{"a"}, rec.ExecutionPath)
	assert.Equal(t, ExecutionStatusCompleted, rec.Status)
	assert.Empty(t, rec.Error)

	cp := rec.Clone()
	cp.ExecutionPath[0] = "changed"
	assert.Equal(t, "a", rec.ExecutionPath[0])
}

func TestExecute_ConcurrentRunsHaveOwnContext(t *testing.T) {
	t.Parallel()
	g := NewGraph("concurrent", "")
	mustAdd(t, g, "a", KindAgent, nil)
	mustAdd(t, g, "t", KindTool, nil)
	mustConnect(t, g, "a", "t")
	exec := newTestExecutor(t)

	const runs = 8
	records := make([]*ExecutionRecord, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := exec.Execute(context.Background(), g, fmt.Sprintf("input-%d", i))
			assert.NoError(t, err)
			records[i] = rec
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	for i, rec := range records {
		require.NotNil(t, rec)
		ids[rec.ID] = true
		require.NotEmpty(t, rec.Context.ConversationHistory)
		assert.Equal(t, fmt.Sprintf("input-%d", i), rec.Context.ConversationHistory[0].Content)
		assert.Equal(t, []string{"a", "t"}, rec.ExecutionPath)
	}
	assert.Len(t, ids, runs)
}
