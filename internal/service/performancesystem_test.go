package service

import (
	"context"
	"testing"
	"time"

	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/domain/performance"
	"github.com/agentorg/runtime/internal/port/store"
)

var _ store.PerformanceStore = (*mockPerformanceStore)(nil)

type mockPerformanceStore struct {
	cards map[string][]*performance.Scorecard
}

func newMockPerformanceStore() *mockPerformanceStore {
	return &mockPerformanceStore{cards: make(map[string][]*performance.Scorecard)}
}

func (m *mockPerformanceStore) AppendScorecard(_ context.Context, s *performance.Scorecard) error {
	m.cards[s.AgentID] = append(m.cards[s.AgentID], s)
	return nil
}

func (m *mockPerformanceStore) ListScorecards(_ context.Context, agentID string) ([]*performance.Scorecard, error) {
	return m.cards[agentID], nil
}

func TestEvaluateEligibilityPromotesStrongResearcher(t *testing.T) {
	st := newMockPerformanceStore()
	sys := NewPerformanceSystem(st, nil)
	ctx := context.Background()

	now := time.Now()
	if err := sys.RecordScorecard(ctx, performance.Scorecard{
		AgentID: "researcher_01", PeriodStart: now.Add(-30 * 24 * time.Hour), PeriodEnd: now,
		TasksCompleted: 18, TasksFailed: 2, ResearchCycleWins: 3,
	}); err != nil {
		t.Fatalf("RecordScorecard: %v", err)
	}

	elig, err := sys.EvaluateEligibility(ctx, "researcher_01", agent.RoleResearcher)
	if err != nil {
		t.Fatalf("EvaluateEligibility: %v", err)
	}
	if !elig.PromotionEligible {
		t.Fatalf("expected promotion eligibility: %+v", elig)
	}
	if elig.DemotionRisk {
		t.Fatalf("did not expect demotion risk: %+v", elig)
	}
}

func TestEvaluateEligibilityFlagsDemotionRisk(t *testing.T) {
	st := newMockPerformanceStore()
	sys := NewPerformanceSystem(st, nil)
	ctx := context.Background()

	now := time.Now()
	if err := sys.RecordScorecard(ctx, performance.Scorecard{
		AgentID: "trader_02", PeriodStart: now.Add(-30 * 24 * time.Hour), PeriodEnd: now,
		TasksCompleted: 3, TasksFailed: 17,
	}); err != nil {
		t.Fatalf("RecordScorecard: %v", err)
	}

	elig, err := sys.EvaluateEligibility(ctx, "trader_02", agent.RoleTrader)
	if err != nil {
		t.Fatalf("EvaluateEligibility: %v", err)
	}
	if elig.PromotionEligible {
		t.Fatalf("did not expect promotion eligibility: %+v", elig)
	}
	if !elig.DemotionRisk {
		t.Fatalf("expected demotion risk: %+v", elig)
	}
}

func TestEvaluateEligibilityNoScorecardsIsNeutral(t *testing.T) {
	st := newMockPerformanceStore()
	sys := NewPerformanceSystem(st, nil)

	elig, err := sys.EvaluateEligibility(context.Background(), "new_agent", agent.RoleLead)
	if err != nil {
		t.Fatalf("EvaluateEligibility: %v", err)
	}
	if elig.PromotionEligible || elig.DemotionRisk {
		t.Fatalf("expected neutral result with no scorecards: %+v", elig)
	}
}
