package service

import (
	"context"
	"fmt"
	"time"

	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/domain/message"
	"github.com/agentorg/runtime/internal/port/bus"
	"github.com/agentorg/runtime/internal/port/store"
)

// AgentStatus is a read-only snapshot of one agent's runtime state, used by
// the operator surface's GetAgentStatuses.
type AgentStatus struct {
	AgentID    string
	Name       string
	Department string
	RoleKind   agent.RoleKind
	Status     agent.Status
	Running    bool
	LastActive time.Time
	QueueDepth int
}

// Runtime is the composition root of spec.md §9: it owns the bus, the
// scheduler (and through it every AgentRuntime), and the standing services
// (ToolRouter, TopicManager, ResearchCycleService, RiskGovernance,
// IntentionSystem, FeedbackChannel, CapabilitySystem, PerformanceSystem),
// and exposes the §6 operator surface as plain exported methods — no HTTP
// listener is wired anywhere in this module; a transport layer consuming
// these methods is out of scope. Grounded on the teacher's
// `cmd/codeforge/main.go` explicit-construction style (no globals, no
// service locator) generalized into a single struct so `cmd/orgrun` has one
// thing to build and start.
type Runtime struct {
	Bus       bus.Bus
	Scheduler *Scheduler

	ToolRegistry   *ToolRegistry
	ToolRouter     *ToolRouter
	TopicManager   *TopicManager
	Intentions     *IntentionDetector
	ResearchCycles *ResearchCycleService
	Governance     *RiskGovernance
	AutonomyGate   *IntentionSystem
	Feedback       *FeedbackChannel
	Capabilities   *CapabilitySystem
	Performance    *PerformanceSystem

	runtimes map[string]*AgentRuntime
	agents   map[string]*agent.Agent
}

// NewRuntime assembles a Runtime from its already-constructed parts.
// runtimes and agents must share the same key set (agent id).
func NewRuntime(
	b bus.Bus,
	sched *Scheduler,
	registry *ToolRegistry,
	router *ToolRouter,
	topics *TopicManager,
	intentions *IntentionDetector,
	cycles *ResearchCycleService,
	governance *RiskGovernance,
	autonomy *IntentionSystem,
	feedback *FeedbackChannel,
	capabilities *CapabilitySystem,
	performance *PerformanceSystem,
	runtimes map[string]*AgentRuntime,
	agents map[string]*agent.Agent,
) *Runtime {
	return &Runtime{
		Bus: b, Scheduler: sched,
		ToolRegistry: registry, ToolRouter: router, TopicManager: topics,
		Intentions: intentions, ResearchCycles: cycles, Governance: governance,
		AutonomyGate: autonomy, Feedback: feedback, Capabilities: capabilities,
		Performance: performance,
		runtimes:     runtimes,
		agents:       agents,
	}
}

// Start starts the scheduler, which in turn starts every AgentRuntime loop
// and the job/approval ticker.
func (r *Runtime) Start(ctx context.Context) error {
	return r.Scheduler.Start(ctx)
}

// Stop stops the scheduler and every agent loop it owns.
func (r *Runtime) Stop() {
	r.Scheduler.Stop()
}

// SendMessageToAgent delivers a direct message to toAgent (spec.md §6).
func (r *Runtime) SendMessageToAgent(ctx context.Context, toAgent, content, from, subject string) (message.Message, error) {
	if from == "" {
		from = "chairman"
	}
	if subject == "" {
		subject = "Message"
	}
	m, err := r.Bus.SendDirect(ctx, from, toAgent, subject, content, message.KindText, nil, message.PriorityNormal)
	if err != nil {
		return message.Message{}, fmt.Errorf("runtime: send message to agent: %w", err)
	}
	return m, nil
}

// Broadcast delivers content to every registered mailbox except the
// sender's (spec.md §6).
func (r *Runtime) Broadcast(ctx context.Context, content, from, subject string) (message.Message, error) {
	if from == "" {
		from = "chairman"
	}
	if subject == "" {
		subject = "Announcement"
	}
	m, err := r.Bus.Broadcast(ctx, from, subject, content, nil)
	if err != nil {
		return message.Message{}, fmt.Errorf("runtime: broadcast: %w", err)
	}
	return m, nil
}

// SubmitForApproval enqueues an approval-queue item, defaulting
// expiresInHours to 24 (spec.md §6).
func (r *Runtime) SubmitForApproval(ctx context.Context, kind, title, description, requester string, data map[string]any, expiresInHours float64) (*store.ApprovalItem, error) {
	if expiresInHours <= 0 {
		expiresInHours = 24
	}
	return r.Scheduler.SubmitApproval(ctx, kind, title, description, requester, data, time.Duration(expiresInHours*float64(time.Hour)))
}

// ApproveItem grants a pending approval-queue item.
func (r *Runtime) ApproveItem(ctx context.Context, id, decisionBy, reason string) error {
	return r.Scheduler.DecideApproval(ctx, id, decisionBy, reason, true)
}

// RejectItem denies a pending approval-queue item.
func (r *Runtime) RejectItem(ctx context.Context, id, decisionBy, reason string) error {
	return r.Scheduler.DecideApproval(ctx, id, decisionBy, reason, false)
}

// GetStats returns bus-wide delivery counters.
func (r *Runtime) GetStats() message.Stats {
	return r.Bus.Stats()
}

// GetScheduledTasks returns a snapshot of the scheduler's job table.
func (r *Runtime) GetScheduledTasks() []*Job {
	return r.Scheduler.Jobs()
}

// GetAgentStatuses returns a snapshot of every agent's liveness and queue
// depth, for operator visibility (spec.md §6).
func (r *Runtime) GetAgentStatuses() []AgentStatus {
	out := make([]AgentStatus, 0, len(r.agents))
	for id, ag := range r.agents {
		st := AgentStatus{AgentID: id, Name: ag.Name, Department: ag.Department, RoleKind: ag.RoleKind, Status: ag.Status}
		if rt, ok := r.runtimes[id]; ok {
			st.Running = rt.IsRunning()
			st.LastActive = rt.LastActive()
			st.QueueDepth = rt.queue.Size()
		}
		out = append(out, st)
	}
	return out
}

// GetPendingApprovals lists every approval-queue item awaiting a decision.
func (r *Runtime) GetPendingApprovals(ctx context.Context) ([]*store.ApprovalItem, error) {
	items, err := r.Scheduler.approvals.ListApprovals(ctx, store.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("runtime: list pending approvals: %w", err)
	}
	return items, nil
}
