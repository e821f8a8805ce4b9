package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/domain/message"
	"github.com/agentorg/runtime/internal/domain/researchcycle"
	"github.com/agentorg/runtime/internal/port/bus"
	"github.com/agentorg/runtime/internal/port/store"
)

// GateApprovers maps each gated state to the role permitted to approve the
// transition out of it. Loaded from config in production; DefaultGate
// Approvers below is a reasonable built-in default absent explicit
// per-gate role data in the distilled system.
type GateApprovers map[researchcycle.State]agent.RoleKind

// DefaultGateApprovers assigns a plausible approver role to each gate,
// consistent with the department ownership spec.md §2/§3 describes (risk
// desk owns the risk gate, research leads own earlier gates, the board
// owns the final two).
func DefaultGateApprovers() GateApprovers {
	return GateApprovers{
		researchcycle.StateDataGate:        agent.RoleLead,
		researchcycle.StateBacktestGate:     agent.RoleLead,
		researchcycle.StateRobustnessGate:   agent.RoleLead,
		researchcycle.StateRiskSkepticGate:  agent.RoleRisk,
		researchcycle.StateICReview:         agent.RoleDirector,
		researchcycle.StateBoardPack:        agent.RoleDirector,
		researchcycle.StateBoardDecision:    agent.RoleExecutive,
	}
}

// ResearchCycleService wraps domain/researchcycle.ResearchCycle's nine-
// state graph with persistence, gate-approver enforcement, and bus
// notification on every transition (spec.md §4.7's "emit a message, advance
// current-state, persist a timestamped audit row" effect triple).
// Grounded on the teacher's domain/review.ReviewPolicy gate-approval
// pattern generalized from a single review gate to the nine-state pipeline.
type ResearchCycleService struct {
	store     store.ResearchCycleStore
	bus       bus.Bus
	approvers GateApprovers
	roleOf    func(agentID string) agent.RoleKind

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewResearchCycleService constructs a ResearchCycleService. Pass nil for
// approvers to use DefaultGateApprovers.
func NewResearchCycleService(st store.ResearchCycleStore, b bus.Bus, approvers GateApprovers, roleOf func(string) agent.RoleKind) *ResearchCycleService {
	if approvers == nil {
		approvers = DefaultGateApprovers()
	}
	return &ResearchCycleService{store: st, bus: b, approvers: approvers, roleOf: roleOf, locks: make(map[string]*sync.Mutex)}
}

func (s *ResearchCycleService) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// CreateCycle starts a new cycle in IDEA_INTAKE for the given owner.
func (s *ResearchCycleService) CreateCycle(ctx context.Context, title, ownerAgentID string) (*researchcycle.ResearchCycle, error) {
	c := researchcycle.New(newCycleID(), title, ownerAgentID, time.Now())
	if err := s.store.CreateCycle(ctx, c); err != nil {
		return nil, fmt.Errorf("researchcycle: create: %w", err)
	}
	return c, nil
}

// Advance validates that approverID holds the role required for the
// cycle's current gate, then moves the cycle forward, persists it, and
// notifies the owner.
func (s *ResearchCycleService) Advance(ctx context.Context, cycleID, approverID, note string) (*researchcycle.ResearchCycle, error) {
	lock := s.lockFor(cycleID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("researchcycle: get: %w", err)
	}
	if required, ok := s.approvers[c.CurrentState]; ok && s.roleOf != nil {
		if s.roleOf(approverID) != required {
			return nil, fmt.Errorf("researchcycle: %s requires role %s to approve, got %s", c.CurrentState, required, s.roleOf(approverID))
		}
	}
	if !c.Advance(approverID, note, time.Now()) {
		return c, fmt.Errorf("researchcycle: %s is terminal", c.CurrentState)
	}
	if err := s.store.UpdateCycle(ctx, c); err != nil {
		return c, fmt.Errorf("researchcycle: update: %w", err)
	}
	s.notify(ctx, c, fmt.Sprintf("Cycle %s advanced to %s", c.Title, c.CurrentState))
	return c, nil
}

// Reject sends the cycle back to IDEA_INTAKE from any gate, incrementing
// its rejections counter.
func (s *ResearchCycleService) Reject(ctx context.Context, cycleID, approverID, note string) (*researchcycle.ResearchCycle, error) {
	lock := s.lockFor(cycleID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("researchcycle: get: %w", err)
	}
	c.Reject(approverID, note, time.Now())
	if err := s.store.UpdateCycle(ctx, c); err != nil {
		return c, fmt.Errorf("researchcycle: update: %w", err)
	}
	s.notify(ctx, c, fmt.Sprintf("Cycle %s rejected: %s", c.Title, note))
	return c, nil
}

func (s *ResearchCycleService) notify(ctx context.Context, c *researchcycle.ResearchCycle, content string) {
	if s.bus == nil || c.OwnerAgentID == "" {
		return
	}
	_, _ = s.bus.SendDirect(ctx, "researchcycle", c.OwnerAgentID, "Research cycle update", content,
		message.KindMemo, map[string]any{"cycle_id": c.ID, "state": string(c.CurrentState)}, message.PriorityNormal)
}

func newCycleID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return "cycle_" + hex.EncodeToString(buf)
}
