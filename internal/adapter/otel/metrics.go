package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "orgrun"

// Metrics holds all runtime metric instruments.
type Metrics struct {
	TasksProcessed   metric.Int64Counter
	TasksFailed      metric.Int64Counter
	ToolCallsAllowed metric.Int64Counter
	ToolCallsRejected metric.Int64Counter
	TaskDuration     metric.Float64Histogram
	ToolCallCost     metric.Float64Histogram
	TopicsEscalated  metric.Int64Counter
	RulesActivated   metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksProcessed, err = meter.Int64Counter("orgrun.tasks.processed",
		metric.WithDescription("Number of agent tasks processed"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("orgrun.tasks.failed",
		metric.WithDescription("Number of agent tasks that failed permanently"))
	if err != nil {
		return nil, err
	}

	m.ToolCallsAllowed, err = meter.Int64Counter("orgrun.toolcalls.allowed",
		metric.WithDescription("Number of tool calls that passed the router"))
	if err != nil {
		return nil, err
	}

	m.ToolCallsRejected, err = meter.Int64Counter("orgrun.toolcalls.rejected",
		metric.WithDescription("Number of tool calls rejected by the router"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("orgrun.task.duration_seconds",
		metric.WithDescription("Agent task execution duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.ToolCallCost, err = meter.Float64Histogram("orgrun.toolcall.cost_points",
		metric.WithDescription("Tool call cost in compute points"))
	if err != nil {
		return nil, err
	}

	m.TopicsEscalated, err = meter.Int64Counter("orgrun.topics.escalated",
		metric.WithDescription("Number of topics escalated to a meeting"))
	if err != nil {
		return nil, err
	}

	m.RulesActivated, err = meter.Int64Counter("orgrun.risk_rules.activated",
		metric.WithDescription("Number of risk rules activated"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
