package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FailurePolicy decides what an unsuccessful node does to the run
type FailurePolicy string

const (
	// FailFast aborts the whole run on the first failing node
	FailFast FailurePolicy = "fail_fast"
	// SkipBranch halts only the branch below the failing node
	SkipBranch FailurePolicy = "skip_branch"
)

// ParseFailurePolicy converts a config string into a FailurePolicy
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailFast:
		return FailFast, nil
	case SkipBranch:
		return SkipBranch, nil
	default:
		return "", fmt.Errorf("unknown failure policy: %q", s)
	}
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithStrategies sets the per-kind strategy table
func WithStrategies(t *StrategyTable) ExecutorOption {
	return func(e *Executor) {
		if t != nil {
			e.strategies = t
		}
	}
}

// WithLogger sets the executor logger
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver adds an observer; may be given several times
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithFailurePolicy sets the failure policy (FailFast by default)
func WithFailurePolicy(p FailurePolicy) ExecutorOption {
	return func(e *Executor) { e.policy = p }
}

// WithDecisionBranching makes edges leaving a decision node honor their
// condition ("true"/"false" or a condition label). Unconditioned edges are
// always followed.
func WithDecisionBranching() ExecutorOption {
	return func(e *Executor) { e.branching = true }
}

// WithRunTimeout bounds the wall time of every run; zero disables it
func WithRunTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.runTimeout = d }
}

// WithTelemetry sets explicit OpenTelemetry providers instead of the globals
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) ExecutorOption {
	return func(e *Executor) {
		e.tracerProvider = tp
		e.meterProvider = mp
	}
}

// Executor walks a graph depth-first from its entry nodes and produces one
// ExecutionRecord per run. It holds no per-run state and may be shared.
type Executor struct {
	strategies     *StrategyTable
	logger         *zap.Logger
	observers      MultiObserver
	policy         FailurePolicy
	branching      bool
	runTimeout     time.Duration
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	inst           *instruments
}

// NewExecutor creates an executor with the built-in strategies
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		strategies: DefaultStrategies(nil),
		logger:     zap.NewNop(),
		policy:     FailFast,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "workflow_executor"))

	inst, err := newInstruments(e.tracerProvider, e.meterProvider)
	if err != nil {
		e.logger.Warn("telemetry instruments unavailable", zap.Error(err))
	}
	e.inst = inst
	return e
}

// Execute runs the graph with input as the initial current data.
// A graph without entry nodes fails with a *StructuralError before any node
// runs and no record is produced. Otherwise the record is always returned,
// together with the error that aborted the run, if any.
func (e *Executor) Execute(ctx context.Context, g *Graph, input any) (*ExecutionRecord, error) {
	if g == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}
	return e.execute(ctx, g, uuid.NewString(), input)
}

func (e *Executor) execute(ctx context.Context, g *Graph, executionID string, input any) (*ExecutionRecord, error) {
	p := g.plan()
	if len(p.entries) == 0 {
		return nil, &StructuralError{WorkflowID: p.workflowID, Reason: reasonNoEntry}
	}

	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	record := newExecutionRecord(executionID, p.workflowID, input)
	if s := renderData(input); s != "" {
		record.Context.Append(Message{Role: "user", Content: s})
	}

	var span trace.Span
	if e.inst != nil {
		ctx, span = e.inst.startRun(ctx, p.workflowID, executionID)
		defer span.End()
	}

	log := e.logger.With(
		zap.String("workflow_id", p.workflowID),
		zap.String("execution_id", executionID),
	)
	log.Info("starting workflow execution", zap.Int("entry_nodes", len(p.entries)))
	e.emit(Event{Type: EventRunStarted, ExecutionID: executionID, WorkflowID: p.workflowID, Status: ExecutionStatusRunning})

	r := &run{
		exec:    e,
		graph:   g,
		plan:    p,
		record:  record,
		visited: make(map[string]bool, len(p.nodes)),
		log:     log,
	}

	var runErr error
	for _, entry := range p.entries {
		if runErr = r.visit(ctx, entry); runErr != nil {
			break
		}
	}

	status := ExecutionStatusCompleted
	if runErr != nil {
		status = ExecutionStatusError
	}
	record.finish(status, runErr)

	if e.inst != nil {
		e.inst.recordRun(ctx, status)
		if runErr != nil {
			span.RecordError(runErr)
			span.SetStatus(codes.Error, runErr.Error())
		}
	}

	if runErr != nil {
		log.Error("workflow execution failed",
			zap.Strings("execution_path", record.ExecutionPath),
			zap.Error(runErr),
		)
		e.emit(Event{Type: EventRunFailed, ExecutionID: executionID, WorkflowID: p.workflowID,
			Status: status, Duration: record.Metrics.TotalExecutionTime, Error: runErr.Error()})
		return record, runErr
	}

	log.Info("workflow execution completed",
		zap.Int("nodes_executed", len(record.ExecutionPath)),
		zap.Int("error_count", record.Metrics.ErrorCount),
		zap.Duration("duration", record.Metrics.TotalExecutionTime),
	)
	e.emit(Event{Type: EventRunCompleted, ExecutionID: executionID, WorkflowID: p.workflowID,
		Status: status, Duration: record.Metrics.TotalExecutionTime})
	return record, nil
}

func (e *Executor) emit(ev Event) {
	if len(e.observers) == 0 {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	e.observers.OnEvent(ev)
}

// run is the state of one in-flight execution
type run struct {
	exec    *Executor
	graph   *Graph
	plan    plan
	record  *ExecutionRecord
	visited map[string]bool
	log     *zap.Logger
}

// visit executes nodeID and then, on success, its successors.
// A returned error aborts the run.
func (r *run) visit(ctx context.Context, nodeID string) error {
	if r.visited[nodeID] {
		return nil
	}
	r.visited[nodeID] = true

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("execution cancelled before node %s: %w", nodeID, err)
	}

	node, ok := r.plan.nodes[nodeID]
	if !ok {
		return &StructuralError{WorkflowID: r.plan.workflowID, NodeID: nodeID, Reason: reasonNodeMissing}
	}

	res, err := r.execNode(ctx, node)
	if err != nil {
		return err
	}
	if !res.Success {
		nodeErr := &NodeExecutionError{NodeID: node.ID, Kind: node.Kind, Message: res.Error}
		if r.exec.policy == SkipBranch {
			r.log.Warn("node failed, skipping branch",
				zap.String("node_id", node.ID),
				zap.String("node_kind", string(node.Kind)),
				zap.String("error", res.Error),
			)
			return nil
		}
		return nodeErr
	}

	for _, edge := range r.plan.outgoing[nodeID] {
		if !r.exec.follow(node, res, edge) {
			r.log.Debug("edge condition not met",
				zap.String("edge_id", edge.ID),
				zap.String("condition", edge.Condition),
			)
			continue
		}
		if err := r.visit(ctx, edge.Target); err != nil {
			return err
		}
	}
	return nil
}

// execNode runs one node with retries and records its result.
// The returned error is non-nil only when the context was cancelled.
func (r *run) execNode(ctx context.Context, node Node) (ExecutionResult, error) {
	e := r.exec
	r.graph.markNode(node.ID, NodeStatusRunning, nil)
	e.emit(Event{Type: EventNodeStarted, ExecutionID: r.record.ID, WorkflowID: r.plan.workflowID,
		NodeID: node.ID, NodeKind: node.Kind, Status: ExecutionStatusRunning})

	nodeCtx := ctx
	var span trace.Span
	if e.inst != nil {
		nodeCtx, span = e.inst.startNode(ctx, node)
		defer span.End()
	}

	start := time.Now()
	res, retries := e.invokeWithRetry(nodeCtx, node, &r.record.Context)
	elapsed := time.Since(start)
	res.ExecutionTimeMs = elapsed.Milliseconds()

	r.record.recordResult(node.ID, res, elapsed, retries)
	if e.inst != nil {
		e.inst.recordNode(nodeCtx, node.Kind, res, elapsed)
	}

	if res.Success {
		r.record.Context.CurrentData = res.Output
		r.graph.markNode(node.ID, NodeStatusCompleted, &res)
		resCopy := res.clone()
		e.emit(Event{Type: EventNodeCompleted, ExecutionID: r.record.ID, WorkflowID: r.plan.workflowID,
			NodeID: node.ID, NodeKind: node.Kind, Result: &resCopy, Duration: elapsed})
		r.log.Debug("node completed",
			zap.String("node_id", node.ID),
			zap.String("node_kind", string(node.Kind)),
			zap.Duration("duration", elapsed),
		)
		return res, nil
	}

	r.graph.markNode(node.ID, NodeStatusError, &res)
	if span != nil {
		span.SetStatus(codes.Error, res.Error)
	}
	resCopy := res.clone()
	e.emit(Event{Type: EventNodeFailed, ExecutionID: r.record.ID, WorkflowID: r.plan.workflowID,
		NodeID: node.ID, NodeKind: node.Kind, Result: &resCopy, Duration: elapsed, Error: res.Error})

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("execution cancelled at node %s: %w", node.ID, err)
	}
	return res, nil
}

// invokeWithRetry calls the node strategy, re-invoking tool nodes per their
// error-handling policy. It returns the final result and the number of retries.
func (e *Executor) invokeWithRetry(ctx context.Context, node Node, wctx *WorkflowContext) (ExecutionResult, int) {
	strategy := e.strategies.Lookup(node.Kind)

	attempts := 1
	var delay time.Duration
	var fallback FallbackAction
	if tc, ok := node.Config.(*ToolConfig); ok {
		if tc.ErrorHandling.RetryCount > 0 {
			attempts += tc.ErrorHandling.RetryCount
		}
		delay = time.Duration(tc.ErrorHandling.RetryDelayMs) * time.Millisecond
		fallback = tc.ErrorHandling.FallbackAction
	}

	var res ExecutionResult
	retries := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		res = e.invoke(ctx, strategy, node, wctx)
		if res.Success || ctx.Err() != nil || attempt == attempts {
			break
		}
		retries++
		e.logger.Debug("retrying node",
			zap.String("node_id", node.ID),
			zap.Int("attempt", attempt+1),
			zap.String("error", res.Error),
		)
		if delay > 0 {
			select {
			case <-ctx.Done():
				res.Error = fmt.Sprintf("%s (retry aborted: %v)", res.Error, ctx.Err())
				return res, retries
			case <-time.After(delay):
			}
		}
	}

	if !res.Success && fallback == FallbackSkip && ctx.Err() == nil {
		return ExecutionResult{
			Success: true,
			Output:  wctx.CurrentData,
			Error:   res.Error,
			Metadata: map[string]any{
				"skipped":  true,
				"fallback": string(FallbackSkip),
				"attempts": retries + 1,
			},
		}, retries
	}
	return res, retries
}

// invoke calls the strategy once, turning errors and panics into an unsuccessful result
func (e *Executor) invoke(ctx context.Context, s Strategy, node Node, wctx *WorkflowContext) (res ExecutionResult) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("strategy panicked",
				zap.String("node_id", node.ID),
				zap.Any("panic", p),
			)
			res = ExecutionResult{Success: false, Error: fmt.Sprintf("strategy panic: %v", p)}
		}
	}()

	res, err := s.Execute(ctx, node, wctx)
	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error(), Metadata: res.Metadata}
	}
	if !res.Success && res.Error == "" {
		res.Error = "node reported failure"
	}
	return res
}

// follow reports whether traversal continues along edge after node produced res
func (e *Executor) follow(node Node, res ExecutionResult, edge Edge) bool {
	if !e.branching || node.Kind != KindDecision || edge.Condition == "" {
		return true
	}
	out, ok := res.Output.(map[string]any)
	if !ok {
		return true
	}
	decision, _ := out["decision"].(bool)
	matched, _ := out["matched"].(string)

	switch strings.ToLower(strings.TrimSpace(edge.Condition)) {
	case "true", "yes":
		return decision
	case "false", "no":
		return !decision
	default:
		return matched != "" && strings.EqualFold(edge.Condition, matched)
	}
}

// IsCancelled reports whether err came from context cancellation or timeout
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
