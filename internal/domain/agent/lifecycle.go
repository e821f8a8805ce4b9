package agent

import "time"

// ProposalKind distinguishes a hiring proposal from a termination proposal.
type ProposalKind string

const (
	ProposalHiring      ProposalKind = "hiring"
	ProposalTermination ProposalKind = "termination"
)

// ProposalStatus is the lifecycle of a LifecycleProposal, routed through
// the scheduler's approval queue.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// LifecycleProposal is a hiring or termination proposal for an agent,
// submitted to the approval queue and reflected in reputation/status once
// decided. Supplements spec.md's agent_freezes/hiring_proposals/
// termination_proposals persisted tables, which the distilled component
// design names but does not detail.
type LifecycleProposal struct {
	ID          string         `json:"id"`
	Kind        ProposalKind   `json:"kind"`
	AgentID     string         `json:"agent_id"`       // target agent, or proposed new agent id for hiring
	Requester   string         `json:"requester"`
	Reason      string         `json:"reason"`
	Status      ProposalStatus `json:"status"`
	DecisionBy  string         `json:"decision_by,omitempty"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Freeze is a temporary suspension of an agent's task processing pending
// governance review, distinct from termination.
type Freeze struct {
	ID        string     `json:"id"`
	AgentID   string     `json:"agent_id"`
	Reason    string     `json:"reason"`
	FrozenBy  string     `json:"frozen_by"`
	FrozenAt  time.Time  `json:"frozen_at"`
	LiftedAt  *time.Time `json:"lifted_at,omitempty"`
}
