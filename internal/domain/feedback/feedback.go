// Package feedback defines the FeedbackItem entity and the capability-gap
// reporting types built from accumulated tool-usage statistics. Grounded on
// the teacher's domain/feedback.AuditEntry/Provider/Decision shape
// generalized to the five feedback categories, plus domain/cost.ToolSummary
// for capability-gap aggregation.
package feedback

import "time"

// Category classifies the subject of a feedback item.
type Category string

const (
	CategoryToolRequest        Category = "tool_request"
	CategoryProcessImprovement Category = "process_improvement"
	CategoryOrgIssue           Category = "org_issue"
	CategoryCollaboration      Category = "collaboration"
	CategoryCapabilityGap      Category = "capability_gap"
)

// Item is one piece of structured feedback routed to a fixed handler per
// category.
type Item struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	Category     Category  `json:"category"`
	ToolName     string    `json:"tool_name,omitempty"`
	Description  string    `json:"description"`
	RequestCount int       `json:"request_count"`
	Deployed     bool      `json:"deployed"`
	Urgency      float64   `json:"urgency"`    // [0,1]
	Feasibility  float64   `json:"feasibility"` // [0,1]
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PriorityScore computes the tool-request priority score:
// min(request_count/10, 1)*0.3 + urgency*0.3 + feasibility*0.4.
func (i *Item) PriorityScore() float64 {
	reqComponent := float64(i.RequestCount) / 10
	if reqComponent > 1 {
		reqComponent = 1
	}
	return reqComponent*0.3 + i.Urgency*0.3 + i.Feasibility*0.4
}

// ToolUsage is one tool's usage statistics over a reporting period, used to
// compute deprecation candidates.
type ToolUsage struct {
	Tool         string  `json:"tool"`
	CallCount    int     `json:"call_count"`
	CallsPerDay  float64 `json:"calls_per_day"`
}

// DeprecationCandidate threshold per spec: calls/day < 0.1.
const DeprecationThresholdCallsPerDay = 0.1

// IsDeprecationCandidate reports whether u's usage rate warrants flagging.
func (u ToolUsage) IsDeprecationCandidate() bool {
	return u.CallsPerDay < DeprecationThresholdCallsPerDay
}

// CapabilityGapReport summarizes a period's tool usage for planning.
type CapabilityGapReport struct {
	ID                     string      `json:"id"`
	PeriodStart            time.Time   `json:"period_start"`
	PeriodEnd              time.Time   `json:"period_end"`
	ToolUsage              []ToolUsage `json:"tool_usage"`
	MostRequestedTools     []string    `json:"most_requested_tools"`
	DeprecationCandidates  []string    `json:"deprecation_candidates"`
	DevelopmentPriorities  []string    `json:"development_priorities"`
	CreatedAt              time.Time   `json:"created_at"`
}
