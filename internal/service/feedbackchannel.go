package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/agentorg/runtime/internal/domain/feedback"
	"github.com/agentorg/runtime/internal/port/store"
)

// FeedbackChannel routes structured feedback items to a fixed handler per
// category and collapses duplicate tool requests, per spec.md §4.10.
// Grounded directly on the teacher's domain/feedback.AuditEntry/
// FeedbackRequest HITL-audit model, generalized from tool-approval
// feedback to the five categories domain/feedback.Category now names.
type FeedbackChannel struct {
	store store.FeedbackStore
}

// NewFeedbackChannel constructs a FeedbackChannel.
func NewFeedbackChannel(st store.FeedbackStore) *FeedbackChannel {
	return &FeedbackChannel{store: st}
}

// Submit records a feedback item. A tool_request for a tool with an
// existing, not-yet-deployed open request increments that request's
// request_count instead of creating a new row (spec.md §4.10).
func (c *FeedbackChannel) Submit(ctx context.Context, agentID string, category feedback.Category, toolName, description string, urgency, feasibility float64) (*feedback.Item, error) {
	now := time.Now()
	if category == feedback.CategoryToolRequest && toolName != "" {
		existing, err := c.store.FindOpenToolRequest(ctx, toolName)
		if err == nil && existing != nil && !existing.Deployed {
			existing.RequestCount++
			existing.UpdatedAt = now
			if err := c.store.UpsertFeedbackItem(ctx, existing); err != nil {
				return nil, fmt.Errorf("feedbackchannel: upsert: %w", err)
			}
			return existing, nil
		}
	}

	item := &feedback.Item{
		ID: newFeedbackID(), AgentID: agentID, Category: category, ToolName: toolName,
		Description: description, RequestCount: 1, Urgency: urgency, Feasibility: feasibility,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := c.store.UpsertFeedbackItem(ctx, item); err != nil {
		return nil, fmt.Errorf("feedbackchannel: upsert: %w", err)
	}
	return item, nil
}

// MarkDeployed flags a tool_request as deployed, so future duplicate
// requests for the same tool start a fresh item instead of incrementing
// this one.
func (c *FeedbackChannel) MarkDeployed(ctx context.Context, toolName string) error {
	item, err := c.store.FindOpenToolRequest(ctx, toolName)
	if err != nil {
		return fmt.Errorf("feedbackchannel: find: %w", err)
	}
	item.Deployed = true
	item.UpdatedAt = time.Now()
	return c.store.UpsertFeedbackItem(ctx, item)
}

// ListByCategory returns every feedback item in the given category.
func (c *FeedbackChannel) ListByCategory(ctx context.Context, category feedback.Category) ([]*feedback.Item, error) {
	return c.store.ListFeedbackItems(ctx, category)
}

func newFeedbackID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return "feedback_" + hex.EncodeToString(buf)
}

// CapabilitySystem aggregates tool-usage statistics into capability-gap
// reports: most-requested tools, deprecation candidates, and development
// priorities. Grounded on the teacher's domain/cost.Summary/ToolSummary
// aggregation style (total-by-key plus a threshold-driven flag list),
// generalized from cost accounting to capability planning.
type CapabilitySystem struct {
	calls    store.ToolCallStore
	feedback store.FeedbackStore
}

// NewCapabilitySystem constructs a CapabilitySystem.
func NewCapabilitySystem(calls store.ToolCallStore, fb store.FeedbackStore) *CapabilitySystem {
	return &CapabilitySystem{calls: calls, feedback: fb}
}

// GenerateReport summarizes tool usage across [periodStart, periodEnd):
// calls/day per tool, the tools named by tool_request feedback (deployed
// ones included) ordered by PriorityScore,
// deprecation candidates (calls/day < feedback.DeprecationThresholdCallsPerDay),
// and development priorities ranked by tool_request PriorityScore.
func (c *CapabilitySystem) GenerateReport(ctx context.Context, periodStart, periodEnd time.Time) (*feedback.CapabilityGapReport, error) {
	calls, err := c.calls.ListToolCalls(ctx, "", periodStart)
	if err != nil {
		return nil, fmt.Errorf("capabilitysystem: list tool calls: %w", err)
	}
	days := periodEnd.Sub(periodStart).Hours() / 24
	if days <= 0 {
		days = 1
	}

	counts := make(map[string]int)
	for _, call := range calls {
		if call.Timestamp.After(periodEnd) {
			continue
		}
		counts[call.Tool]++
	}
	usage := make([]feedback.ToolUsage, 0, len(counts))
	for tool, n := range counts {
		usage = append(usage, feedback.ToolUsage{Tool: tool, CallCount: n, CallsPerDay: float64(n) / days})
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].CallCount > usage[j].CallCount })

	var deprecation []string
	for _, u := range usage {
		if u.IsDeprecationCandidate() {
			deprecation = append(deprecation, u.Tool)
		}
	}

	requests, err := c.feedback.ListFeedbackItems(ctx, feedback.CategoryToolRequest)
	if err != nil {
		return nil, fmt.Errorf("capabilitysystem: list feedback: %w", err)
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].PriorityScore() > requests[j].PriorityScore() })

	mostRequested := make([]string, 0, len(requests))
	priorities := make([]string, 0, len(requests))
	for _, r := range requests {
		if r.ToolName == "" {
			continue
		}
		mostRequested = append(mostRequested, r.ToolName)
		if !r.Deployed {
			priorities = append(priorities, r.ToolName)
		}
	}

	report := &feedback.CapabilityGapReport{
		ID: newReportID(), PeriodStart: periodStart, PeriodEnd: periodEnd,
		ToolUsage: usage, MostRequestedTools: mostRequested,
		DeprecationCandidates: deprecation, DevelopmentPriorities: priorities,
		CreatedAt: time.Now(),
	}
	if err := c.feedback.AppendCapabilityGapReport(ctx, report); err != nil {
		return nil, fmt.Errorf("capabilitysystem: append report: %w", err)
	}
	return report, nil
}

func newReportID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return "report_" + hex.EncodeToString(buf)
}
