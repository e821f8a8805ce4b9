package service

import (
	"context"
	"testing"

	"github.com/agentorg/runtime/internal/adapter/inmembus"
	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/domain/researchcycle"
	"github.com/agentorg/runtime/internal/port/store"
)

var _ store.ResearchCycleStore = (*mockCycleStore)(nil)

type mockCycleStore struct {
	cycles map[string]*researchcycle.ResearchCycle
}

func newMockCycleStore() *mockCycleStore {
	return &mockCycleStore{cycles: make(map[string]*researchcycle.ResearchCycle)}
}

func (m *mockCycleStore) CreateCycle(_ context.Context, c *researchcycle.ResearchCycle) error {
	m.cycles[c.ID] = c
	return nil
}

func (m *mockCycleStore) GetCycle(_ context.Context, id string) (*researchcycle.ResearchCycle, error) {
	c, ok := m.cycles[id]
	if !ok {
		return nil, errNotFoundForTest
	}
	return c, nil
}

func (m *mockCycleStore) ListCycles(_ context.Context) ([]*researchcycle.ResearchCycle, error) {
	out := make([]*researchcycle.ResearchCycle, 0, len(m.cycles))
	for _, c := range m.cycles {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCycleStore) UpdateCycle(_ context.Context, c *researchcycle.ResearchCycle) error {
	m.cycles[c.ID] = c
	return nil
}

func TestAdvanceRejectsWrongApproverRole(t *testing.T) {
	st := newMockCycleStore()
	bus := inmembus.New()
	roles := map[string]agent.RoleKind{"trader_01": agent.RoleTrader, "lead_01": agent.RoleLead}
	svc := NewResearchCycleService(st, bus, nil, roleOfForTest(roles))
	ctx := context.Background()

	c, err := svc.CreateCycle(ctx, "mean reversion v2", "researcher_01")
	if err != nil {
		t.Fatalf("CreateCycle: %v", err)
	}
	// IDEA_INTAKE has no approver entry; leaving DATA_GATE requires RoleLead
	// per DefaultGateApprovers.
	if _, err := svc.Advance(ctx, c.ID, "lead_01", "intake ok"); err != nil {
		t.Fatalf("Advance out of IDEA_INTAKE: %v", err)
	}
	if _, err := svc.Advance(ctx, c.ID, "trader_01", "looks fine"); err == nil {
		t.Fatalf("expected error when a trader approves the data gate")
	}
}

func TestAdvanceMovesToNextStateAndNotifiesOwner(t *testing.T) {
	st := newMockCycleStore()
	bus := inmembus.New()
	bus.RegisterMailbox("researcher_01")
	roles := map[string]agent.RoleKind{"lead_01": agent.RoleLead}
	svc := NewResearchCycleService(st, bus, nil, roleOfForTest(roles))
	ctx := context.Background()

	c, err := svc.CreateCycle(ctx, "mean reversion v2", "researcher_01")
	if err != nil {
		t.Fatalf("CreateCycle: %v", err)
	}
	got, err := svc.Advance(ctx, c.ID, "lead_01", "data checks out")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got.CurrentState != researchcycle.StateDataGate {
		t.Fatalf("CurrentState = %v, want DATA_GATE", got.CurrentState)
	}

	msgs, err := bus.GetMessages(ctx, "researcher_01", 0, 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("owner mailbox has %d messages, want 1", len(msgs))
	}
}

func TestRejectReturnsToIdeaIntakeAndIncrementsRejections(t *testing.T) {
	st := newMockCycleStore()
	bus := inmembus.New()
	roles := map[string]agent.RoleKind{"lead_01": agent.RoleLead}
	svc := NewResearchCycleService(st, bus, nil, roleOfForTest(roles))
	ctx := context.Background()

	c, _ := svc.CreateCycle(ctx, "momentum v3", "researcher_02")
	if _, err := svc.Advance(ctx, c.ID, "lead_01", "ok"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	got, err := svc.Reject(ctx, c.ID, "lead_01", "data quality concerns")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if got.CurrentState != researchcycle.StateIdeaIntake {
		t.Fatalf("CurrentState = %v, want IDEA_INTAKE", got.CurrentState)
	}
	if got.Rejections != 1 {
		t.Fatalf("Rejections = %d, want 1", got.Rejections)
	}
}
