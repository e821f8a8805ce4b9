// Package topic defines the Topic entity: an organization-wide proposal
// that escalates to a meeting once enough agents have seconded it. Grounded
// on the teacher's domain/review.ReviewPolicy/Review trigger+status shape,
// generalized from review-gate triggers to seconding thresholds.
package topic

import "time"

// Category classifies the subject matter of a topic.
type Category string

const (
	CategoryStrategy     Category = "strategy"
	CategoryRisk         Category = "risk"
	CategoryData         Category = "data"
	CategoryTrading      Category = "trading"
	CategoryGovernance   Category = "governance"
	CategoryProcess      Category = "process"
	CategoryOrganization Category = "organization"
	CategoryEmergency    Category = "emergency"
)

// Priority drives scheduling lead time on escalation.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityUrgent   Priority = "URGENT"
	PriorityCritical Priority = "CRITICAL"
)

// Status is the topic's lifecycle state.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusProposed   Status = "PROPOSED"
	StatusSeconding  Status = "SECONDING"
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusRejected   Status = "REJECTED"
	StatusExpired    Status = "EXPIRED"
)

// Second records one agent's endorsement of a topic.
type Second struct {
	AgentID   string    `json:"agent_id"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Topic is a proposal for organization-wide discussion.
//
// Invariant: status == SCHEDULED iff len(Seconds) >= RequiredSeconds.
// Seconding by the proposer is forbidden; duplicate seconds are rejected.
type Topic struct {
	ID                    string     `json:"id"`
	Category              Category   `json:"category"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	Priority              Priority   `json:"priority"`
	Status                Status     `json:"status"`
	Proposer              string     `json:"proposer"`
	Seconds               []Second   `json:"seconds"`
	RequiredSeconds       int        `json:"required_seconds"`
	SuggestedParticipants []string   `json:"suggested_participants,omitempty"`
	ScheduledAt           *time.Time `json:"scheduled_at,omitempty"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"`
	Resolution            string     `json:"resolution,omitempty"`
	ActionItems           []string   `json:"action_items,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// HasSeconded reports whether agentID already seconded this topic.
func (t *Topic) HasSeconded(agentID string) bool {
	for _, s := range t.Seconds {
		if s.AgentID == agentID {
			return true
		}
	}
	return false
}

// ReadyToSchedule reports whether the seconding threshold has been met.
func (t *Topic) ReadyToSchedule() bool {
	return len(t.Seconds) >= t.RequiredSeconds
}

// LeadThresholdMet reports whether at least two leads have seconded, which
// auto-escalates priority to HIGH.
func LeadThresholdMet(leadSeconds int) bool {
	return leadSeconds >= 2
}
