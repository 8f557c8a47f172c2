package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStore_CreateWorkflowTwice(t *testing.T) {
	t.Parallel()
	store := NewStore(zaptest.NewLogger(t))

	id1 := store.CreateWorkflow("support", "customer support flow")
	id2 := store.CreateWorkflow("support", "customer support flow")
	require.NotEqual(t, id1, id2)

	g1, err := store.Workflow(id1)
	require.NoError(t, err)
	g2, err := store.Workflow(id2)
	require.NoError(t, err)

	_, err = g1.AddNode(KindAgent, nil, Position{})
	require.NoError(t, err)
	assert.Equal(t, 1, g1.Len())
	assert.Equal(t, 0, g2.Len())
	assert.Equal(t, "support", g2.Name())
}

func TestStore_IndependentInstances(t *testing.T) {
	t.Parallel()
	a := NewStore(nil)
	b := NewStore(nil)
	id := a.CreateWorkflow("only-in-a", "")

	_, err := b.Workflow(id)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
	assert.Empty(t, b.Workflows())
}

func TestStore_DeleteAndSave(t *testing.T) {
	t.Parallel()
	store := NewStore(nil)
	id := store.CreateWorkflow("tmp", "")

	require.NoError(t, store.DeleteWorkflow(id))
	assert.ErrorIs(t, store.DeleteWorkflow(id), ErrWorkflowNotFound)

	g := NewGraph("imported", "")
	require.NoError(t, store.SaveWorkflow(g))
	got, err := store.Workflow(g.ID())
	require.NoError(t, err)
	assert.Same(t, g, got)
	assert.Error(t, store.SaveWorkflow(nil))
}

func TestStore_TemplatesBuildExecutableGraphs(t *testing.T) {
	t.Parallel()
	store := NewStore(nil)
	exec := newTestExecutor(t)

	infos := store.Templates()
	require.Len(t, infos, 3)
	assert.Equal(t, "content-review", infos[0].Name)
	assert.Equal(t, "customer-support", infos[1].Name)
	assert.Equal(t, "research-pipeline", infos[2].Name)

	for _, info := range infos {
		g, err := store.InstantiateTemplate(info.Name)
		require.NoError(t, err, info.Name)
		assert.NotEmpty(t, g.EntryNodes(), info.Name)

		rec, err := exec.Execute(context.Background(), g, map[string]any{"message": "hello", "priority": "high"})
		require.NoError(t, err, info.Name)
		assert.Equal(t, ExecutionStatusCompleted, rec.Status, info.Name)
		assert.Len(t, rec.ExecutionPath, g.Len(), info.Name)
	}

	_, err := store.InstantiateTemplate("missing")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Len(t, store.Workflows(), 3)
}

func TestStore_RegisterTemplate(t *testing.T) {
	t.Parallel()
	store := NewStore(nil)
	assert.Error(t, store.RegisterTemplate(Template{Name: "broken"}))

	require.NoError(t, store.RegisterTemplate(Template{
		Name: "single",
		Build: func(g *Graph) error {
			_, err := g.AddNode(KindAgent, nil, Position{})
			return err
		},
	}))
	g, err := store.InstantiateTemplate("single")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
}

// ---------------------------------------------------------------------------
// Orchestrator
// ---------------------------------------------------------------------------

func TestOrchestrator_ExecuteWorkflowPersistsRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	orch := NewOrchestrator(nil, newTestExecutor(t), NewMemoryRecordStore(0), zaptest.NewLogger(t))

	id := orch.Store().CreateWorkflow("wf", "")
	g, err := orch.Store().Workflow(id)
	require.NoError(t, err)
	mustAdd(t, g, "a1", KindAgent, nil)
	mustAdd(t, g, "t1", KindTool, &ToolConfig{ToolName: "search"})
	mustConnect(t, g, "a1", "t1")

	rec, err := orch.ExecuteWorkflow(ctx, id, map[string]any{"q": "hello"})
	require.NoError(t, err)

	stored, err := orch.Execution(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ExecutionPath, stored.ExecutionPath)
	assert.Equal(t, ExecutionStatusCompleted, stored.Status)

	list, err := orch.Executions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = orch.ExecuteWorkflow(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
	_, err = orch.Execution(ctx, "missing")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestOrchestrator_FailedRunIsStored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	orch := NewOrchestrator(nil, newTestExecutor(t, WithStrategies(failingAgents("a1"))), nil, nil)

	id := orch.Store().CreateWorkflow("wf", "")
	g, _ := orch.Store().Workflow(id)
	mustAdd(t, g, "a1", KindAgent, nil)

	rec, err := orch.ExecuteWorkflow(ctx, id, nil)
	require.Error(t, err)
	require.NotNil(t, rec)

	failed, err := orch.Records().ListByStatus(ctx, ExecutionStatusError)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, rec.ID, failed[0].ID)
}

// ---------------------------------------------------------------------------
// MemoryRecordStore
// ---------------------------------------------------------------------------

func TestMemoryRecordStore_EvictsOldest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryRecordStore(2)

	base := time.Now()
	for i, id := range []string{"r1", "r2", "r3"} {
		rec := newExecutionRecord(id, "wf", nil)
		rec.StartTime = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Save(ctx, rec))
	}
	assert.Equal(t, 2, store.Len())

	_, err := store.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	list, err := store.ListByWorkflow(ctx, "wf")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r3", list[0].ID, "newest first")

	require.NoError(t, store.Delete(ctx, "r2"))
	assert.ErrorIs(t, store.Delete(ctx, "r2"), ErrExecutionNotFound)
	assert.NoError(t, store.Ping(ctx))
}

func TestMemoryRecordStore_StoresCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryRecordStore(0)
	rec := newExecutionRecord("r1", "wf", nil)
	rec.ExecutionPath = append(rec.ExecutionPath, "a")
	require.NoError(t, store.Save(ctx, rec))

	rec.ExecutionPath[0] = "mutated"
	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.ExecutionPath)
}
