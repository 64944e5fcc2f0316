package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "grid"

// StartSchedulerTickSpan starts a span covering one scheduler pass: ledger
// snapshot, fair-share ranking, and dispatch attempts.
func StartSchedulerTickSpan(ctx context.Context, tick int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "scheduler.tick",
		trace.WithAttributes(attribute.Int64("scheduler.tick", tick)),
	)
}

// StartDispatchSpan starts a span for one job-to-agent dispatch decision.
func StartDispatchSpan(ctx context.Context, jobID, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "scheduler.dispatch",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("agent.id", agentID),
		),
	)
}

// StartRPCSpan starts a span for one coordinator RPC handler invocation.
func StartRPCSpan(ctx context.Context, rpc string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "coordinator.rpc",
		trace.WithAttributes(attribute.String("rpc.name", rpc)),
	)
}

// StartGridTaskSpan starts a span for one grid task's dequeue-to-terminal
// lifecycle, as observed from the coordinator side.
func StartGridTaskSpan(ctx context.Context, gridJobID string, taskIndex int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "gridtask.lifecycle",
		trace.WithAttributes(
			attribute.String("grid_job.id", gridJobID),
			attribute.Int("task.index", taskIndex),
		),
	)
}
