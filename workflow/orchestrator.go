package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Orchestrator combines a Store, an Executor and a RecordStore into the
// single execution entry point used by the API and the CLI.
type Orchestrator struct {
	store    *Store
	executor *Executor
	records  RecordStore
	logger   *zap.Logger
}

// NewOrchestrator wires the collaborators. Nil arguments fall back to a new
// Store, a default Executor and an unbounded MemoryRecordStore.
func NewOrchestrator(store *Store, executor *Executor, records RecordStore, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewStore(logger)
	}
	if executor == nil {
		executor = NewExecutor(WithLogger(logger))
	}
	if records == nil {
		records = NewMemoryRecordStore(0)
	}
	return &Orchestrator{
		store:    store,
		executor: executor,
		records:  records,
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
}

// Store returns the workflow store
func (o *Orchestrator) Store() *Store { return o.store }

// Records returns the execution record store
func (o *Orchestrator) Records() RecordStore { return o.records }

// ExecuteWorkflow runs the stored workflow and persists its record.
// The record is returned even when the run fails.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string, input any) (*ExecutionRecord, error) {
	g, err := o.store.Workflow(workflowID)
	if err != nil {
		return nil, err
	}

	record, runErr := o.executor.Execute(ctx, g, input)
	if record == nil {
		return nil, runErr
	}

	// Persist with a context that survives cancellation of the run itself.
	if err := o.records.Save(context.WithoutCancel(ctx), record); err != nil {
		o.logger.Error("failed to persist execution record",
			zap.String("execution_id", record.ID),
			zap.Error(err),
		)
		if runErr == nil {
			return record, fmt.Errorf("save execution record: %w", err)
		}
	}
	return record, runErr
}

// Execution loads one record by id
func (o *Orchestrator) Execution(ctx context.Context, id string) (*ExecutionRecord, error) {
	return o.records.Get(ctx, id)
}

// Executions lists the records of a workflow, newest first
func (o *Orchestrator) Executions(ctx context.Context, workflowID string) ([]*ExecutionRecord, error) {
	return o.records.ListByWorkflow(ctx, workflowID)
}
