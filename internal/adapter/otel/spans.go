package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "orgrun"

// StartTaskSpan starts a span for one AgentRuntime task execution.
func StartTaskSpan(ctx context.Context, agentID, taskID, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent.task",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("task.id", taskID),
			attribute.String("task.kind", kind),
		),
	)
}

// StartToolCallSpan starts a span for a ToolRouter-gated tool invocation.
func StartToolCallSpan(ctx context.Context, callID, agentID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.id", callID),
			attribute.String("toolcall.agent_id", agentID),
			attribute.String("toolcall.tool", tool),
		),
	)
}

// StartResearchCycleSpan starts a span for a research-cycle state
// transition.
func StartResearchCycleSpan(ctx context.Context, cycleID, fromState, toState string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "researchcycle.transition",
		trace.WithAttributes(
			attribute.String("cycle.id", cycleID),
			attribute.String("cycle.from_state", fromState),
			attribute.String("cycle.to_state", toState),
		),
	)
}

// StartVoteTallySpan starts a span for a risk-rule vote tally.
func StartVoteTallySpan(ctx context.Context, ruleID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "risk.tally",
		trace.WithAttributes(attribute.String("rule.id", ruleID)),
	)
}
