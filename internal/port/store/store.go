// Package store defines the transactional persistence port. Grounded on
// the teacher's port/database.Store (aggregate CRUD shape) merged with
// port/eventstore.Store (append-only audit rows), since the spec draws no
// distinction between the two beyond "audit rows are append-only;
// aggregate rows are mutated in place" (spec.md §6).
package store

import (
	"context"
	"time"

	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/domain/budget"
	"github.com/agentorg/runtime/internal/domain/feedback"
	"github.com/agentorg/runtime/internal/domain/intention"
	"github.com/agentorg/runtime/internal/domain/memoryrec"
	"github.com/agentorg/runtime/internal/domain/performance"
	"github.com/agentorg/runtime/internal/domain/researchcycle"
	"github.com/agentorg/runtime/internal/domain/risk"
	"github.com/agentorg/runtime/internal/domain/topic"
	"github.com/agentorg/runtime/internal/domain/toolcall"
)

// ApprovalStatus mirrors the approval-queue item status enum (spec.md §4.5).
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalItem is a persisted row of the Scheduler's approval queue.
type ApprovalItem struct {
	ID             string         `json:"id"`
	Kind           string         `json:"kind"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Requester      string         `json:"requester"`
	Data           map[string]any `json:"data"`
	Status         ApprovalStatus `json:"status"`
	DecisionBy     string         `json:"decision_by,omitempty"`
	DecisionReason string         `json:"decision_reason,omitempty"`
	ExpiresAt      time.Time      `json:"expires_at"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Event is an append-only audit-trail row distinct from aggregate-specific
// audit rows (e.g. researchcycle.AuditRow), used for the general events
// table named in spec.md §6.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	AgentID   string         `json:"agent_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AgentStore persists agent aggregates.
type AgentStore interface {
	CreateAgent(ctx context.Context, a *agent.Agent) error
	GetAgent(ctx context.Context, id string) (*agent.Agent, error)
	ListAgents(ctx context.Context) ([]*agent.Agent, error)
	UpdateAgent(ctx context.Context, a *agent.Agent) error
	CreateLifecycleProposal(ctx context.Context, p *agent.LifecycleProposal) error
	UpdateLifecycleProposal(ctx context.Context, p *agent.LifecycleProposal) error
	ListLifecycleProposals(ctx context.Context, status agent.ProposalStatus) ([]*agent.LifecycleProposal, error)
	CreateFreeze(ctx context.Context, f *agent.Freeze) error
	LiftFreeze(ctx context.Context, id string, liftedAt time.Time) error
}

// ResearchCycleStore persists research-cycle aggregates.
type ResearchCycleStore interface {
	CreateCycle(ctx context.Context, c *researchcycle.ResearchCycle) error
	GetCycle(ctx context.Context, id string) (*researchcycle.ResearchCycle, error)
	ListCycles(ctx context.Context) ([]*researchcycle.ResearchCycle, error)
	UpdateCycle(ctx context.Context, c *researchcycle.ResearchCycle) error
}

// ToolCallStore persists the append-only tool-call audit trail.
type ToolCallStore interface {
	AppendToolCall(ctx context.Context, c *toolcall.Call) error
	ListToolCalls(ctx context.Context, agentID string, since time.Time) ([]*toolcall.Call, error)
}

// EventStore persists the general append-only event trail.
type EventStore interface {
	AppendEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, agentID string, since time.Time, limit int) ([]Event, error)
}

// BudgetStore persists budget accounts.
type BudgetStore interface {
	GetAccount(ctx context.Context, ownerID string, accountType budget.AccountType) (*budget.Account, error)
	UpsertAccount(ctx context.Context, a *budget.Account) error
}

// MessageStore persists bus messages for durable history (in addition to
// the in-memory bounded history kept by inmembus).
type MessageStore interface {
	AppendMessage(ctx context.Context, msg any) error
}

// MeetingStore persists meeting-room requests and artifacts.
type MeetingStore interface {
	CreateMeetingRequest(ctx context.Context, roomID, title, host string, participants []string, at time.Time) error
	AppendMeetingArtifact(ctx context.Context, roomID string, kind, title string, data any, presenter string, at time.Time) error
}

// ReputationStore persists reputation score history.
type ReputationStore interface {
	RecordReputation(ctx context.Context, agentID string, score float64, reason string, at time.Time) error
	LatestReputation(ctx context.Context, agentID string) (float64, error)
}

// FeedbackStore persists feedback items and capability-gap reports.
type FeedbackStore interface {
	UpsertFeedbackItem(ctx context.Context, item *feedback.Item) error
	FindOpenToolRequest(ctx context.Context, toolName string) (*feedback.Item, error)
	ListFeedbackItems(ctx context.Context, category feedback.Category) ([]*feedback.Item, error)
	AppendCapabilityGapReport(ctx context.Context, r *feedback.CapabilityGapReport) error
}

// ToolRequestStore persists the tool_requests table distinctly from general
// feedback, per spec.md §6's persisted-state layout.
type ToolRequestStore interface {
	RecordToolRequest(ctx context.Context, toolName, agentID string, at time.Time) error
}

// GovernanceStore persists risk rules, votes, decisions, and alerts.
type GovernanceStore interface {
	CreateRule(ctx context.Context, r *risk.RiskRule) error
	GetRule(ctx context.Context, id string) (*risk.RiskRule, error)
	ListActiveRules(ctx context.Context) ([]*risk.RiskRule, error)
	UpdateRule(ctx context.Context, r *risk.RiskRule) error
	AppendDecision(ctx context.Context, d *risk.GovernanceDecision) error
	AppendGovernanceAlert(ctx context.Context, ruleID, severity, message string, at time.Time) error
}

// TopicStore persists topics.
type TopicStore interface {
	CreateTopic(ctx context.Context, t *topic.Topic) error
	GetTopic(ctx context.Context, id string) (*topic.Topic, error)
	ListTopics(ctx context.Context, status topic.Status) ([]*topic.Topic, error)
	UpdateTopic(ctx context.Context, t *topic.Topic) error
}

// MemoryStore persists memories and their approval chain.
type MemoryStore interface {
	CreateMemory(ctx context.Context, m *memoryrec.Memory) error
	GetMemory(ctx context.Context, id string) (*memoryrec.Memory, error)
	UpdateMemory(ctx context.Context, m *memoryrec.Memory) error
	RecallMemories(ctx context.Context, scope memoryrec.Scope, tags []string, limit int) ([]*memoryrec.Memory, error)
	RecordMemoryApproval(ctx context.Context, memoryID, approver string, at time.Time) error
}

// IntentionStore persists intentions and autonomous-action decisions.
type IntentionStore interface {
	CreateIntention(ctx context.Context, i *intention.Intention) error
	UpdateIntention(ctx context.Context, i *intention.Intention) error
	ListOpenIntentions(ctx context.Context, agentID string) ([]*intention.Intention, error)
}

// ApprovalStore persists the scheduler's approval queue.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, item *ApprovalItem) error
	GetApproval(ctx context.Context, id string) (*ApprovalItem, error)
	ListApprovals(ctx context.Context, status ApprovalStatus) ([]*ApprovalItem, error)
	UpdateApproval(ctx context.Context, item *ApprovalItem) error
}

// PerformanceStore persists scorecards.
type PerformanceStore interface {
	AppendScorecard(ctx context.Context, s *performance.Scorecard) error
	ListScorecards(ctx context.Context, agentID string) ([]*performance.Scorecard, error)
}

// Store is the full persistence facade implemented by adapter/postgres.
// Composed from per-aggregate interfaces so individual services can depend
// on only the slice they need (e.g. service.ToolRouter only needs
// BudgetStore + ToolCallStore).
type Store interface {
	AgentStore
	ResearchCycleStore
	ToolCallStore
	EventStore
	BudgetStore
	MeetingStore
	ReputationStore
	FeedbackStore
	ToolRequestStore
	GovernanceStore
	TopicStore
	MemoryStore
	IntentionStore
	ApprovalStore
	PerformanceStore

	// Close releases underlying connections.
	Close()
}
