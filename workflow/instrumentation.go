package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/agentos/studio/workflow"

// instruments holds the OpenTelemetry handles used by the executor.
// Without an installed provider the global no-op implementations are used.
type instruments struct {
	tracer       trace.Tracer
	runTotal     metric.Int64Counter
	nodeTotal    metric.Int64Counter
	nodeDuration metric.Float64Histogram
	tokenTotal   metric.Int64Counter
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	inst := &instruments{tracer: tp.Tracer(instrumentationName)}

	var err error
	inst.runTotal, err = meter.Int64Counter("workflow.run.total",
		metric.WithDescription("Total number of workflow runs"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}
	inst.nodeTotal, err = meter.Int64Counter("workflow.node.total",
		metric.WithDescription("Total number of node executions"),
		metric.WithUnit("{node}"))
	if err != nil {
		return nil, err
	}
	inst.nodeDuration, err = meter.Float64Histogram("workflow.node.duration",
		metric.WithDescription("Node execution duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	inst.tokenTotal, err = meter.Int64Counter("workflow.token.total",
		metric.WithDescription("Tokens reported by node strategies"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (i *instruments) startRun(ctx context.Context, workflowID, executionID string) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("workflow.execution_id", executionID),
		))
}

func (i *instruments) startNode(ctx context.Context, node Node) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "workflow.node",
		trace.WithAttributes(
			attribute.String("workflow.node.id", node.ID),
			attribute.String("workflow.node.kind", string(node.Kind)),
		))
}

func (i *instruments) recordNode(ctx context.Context, kind NodeKind, res ExecutionResult, elapsed time.Duration) {
	status := "success"
	if !res.Success {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("status", status),
	)
	i.nodeTotal.Add(ctx, 1, attrs)
	i.nodeDuration.Record(ctx, elapsed.Seconds(), attrs)
	if res.TokensUsed > 0 {
		i.tokenTotal.Add(ctx, int64(res.TokensUsed), metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}

func (i *instruments) recordRun(ctx context.Context, status ExecutionStatus) {
	i.runTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}
