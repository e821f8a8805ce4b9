// Package intention defines the Intention entity and the autonomous-scope
// table consulted by the autonomous-action gate. Grounded on the teacher's
// domain/feedback.FeedbackRequest HITL shape plus domain/policy's decision
// evaluation, generalized to the scope/action/limit model in spec.md §3/§9.
package intention

import "time"

// Kind classifies the nature of an intention signal.
type Kind string

const (
	KindMeetingRequest    Kind = "meeting_request"
	KindRiskAlert         Kind = "risk_alert"
	KindStrategyProposal  Kind = "strategy_proposal"
	KindDataRequest       Kind = "data_request"
	KindToolRequest       Kind = "tool_request"
	KindFeedback          Kind = "feedback"
	KindEscalation        Kind = "escalation"
	KindCollaboration     Kind = "collaboration"
	KindAutonomousAction  Kind = "autonomous_action"
)

// Status is the lifecycle state of an intention.
type Status string

const (
	StatusOpen     Status = "open"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Context carries the fields the autonomous gate and risk triggers inspect.
type Context struct {
	Action            string  `json:"action,omitempty"`
	ComputePoints     float64 `json:"compute_points,omitempty"`
	PositionChangePct float64 `json:"position_change_pct,omitempty"`
	Metric            string  `json:"metric,omitempty"`
	Value             float64 `json:"value,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// Intention is a recorded signal an agent emits: a request, alert, or
// proposal that may or may not require human/governance approval.
type Intention struct {
	ID                string    `json:"id"`
	AgentID           string    `json:"agent_id"`
	Kind              Kind      `json:"kind"`
	Priority          string    `json:"priority,omitempty"`
	Status            Status    `json:"status"`
	Context           Context   `json:"context"`
	TargetAgents      []string  `json:"target_agents,omitempty"`
	AutonomousScope   string    `json:"autonomous_scope,omitempty"`
	AutonomousApproved bool     `json:"autonomous_approved"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ScopeRule is one entry of the AUTONOMOUS_SCOPES configuration table.
type ScopeRule struct {
	AllowedActions      []string `json:"allowed_actions"`
	BudgetLimitCP        *float64 `json:"budget_limit_cp,omitempty"`
	MaxPositionChangePct *float64 `json:"max_position_change_pct,omitempty"`
}

// Allows reports whether action is permitted under this scope.
func (s ScopeRule) Allows(action string) bool {
	for _, a := range s.AllowedActions {
		if a == action {
			return true
		}
	}
	return false
}

// Evaluate applies the scope's numeric limits to ctx, returning whether the
// action is approved.
func (s ScopeRule) Evaluate(ctx Context) bool {
	if !s.Allows(ctx.Action) {
		return false
	}
	if s.BudgetLimitCP != nil && ctx.ComputePoints > *s.BudgetLimitCP {
		return false
	}
	if s.MaxPositionChangePct != nil {
		abs := ctx.PositionChangePct
		if abs < 0 {
			abs = -abs
		}
		if abs > *s.MaxPositionChangePct {
			return false
		}
	}
	return true
}

// Operator is a comparison used by risk triggers.
type Operator string

const (
	OpGT Operator = ">"
	OpLT Operator = "<"
	OpGE Operator = ">="
	OpLE Operator = "<="
	OpEQ Operator = "=="
	OpNE Operator = "!="
)

// Compare evaluates value op threshold.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGT:
		return value > threshold
	case OpLT:
		return value < threshold
	case OpGE:
		return value >= threshold
	case OpLE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	case OpNE:
		return value != threshold
	default:
		return false
	}
}

// Trigger is a risk-trigger definition evaluated on each incoming metrics
// snapshot.
type Trigger struct {
	ID           string   `json:"id"`
	Metric       string   `json:"metric"`
	Operator     Operator `json:"operator"`
	Threshold    float64  `json:"threshold"`
	TargetAgents []string `json:"target_agents"`
	Enabled      bool     `json:"enabled"`
	Count        int      `json:"count"`
}
