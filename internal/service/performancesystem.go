package service

import (
	"context"
	"fmt"
	"time"

	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/domain/performance"
	"github.com/agentorg/runtime/internal/port/store"
)

// RoleTemplates maps a RoleKind to its promotion/demotion thresholds.
type RoleTemplates map[agent.RoleKind]performance.RoleTemplate

// DefaultRoleTemplates approximates original_source/orchestrator/
// performance.py's PROMOTION_REQUIREMENTS/KPI_TEMPLATES (a full multi-KPI
// weighted-score system) down to the single success-rate/cycle-wins bar
// domain/performance.RoleTemplate already models: researchers, leads and
// directors need a research-cycle track record to promote;
// risk/trader/intelligence/executive promote on success rate alone.
func DefaultRoleTemplates() RoleTemplates {
	return RoleTemplates{
		agent.RoleResearcher: {RoleKind: "researcher", Tier: 1, PromotionSuccessRate: 0.8, PromotionMinCycleWins: 2, DemotionSuccessRate: 0.4},
		agent.RoleRisk:       {RoleKind: "risk", Tier: 1, PromotionSuccessRate: 0.85, PromotionMinCycleWins: 0, DemotionSuccessRate: 0.5},
		agent.RoleTrader:     {RoleKind: "trader", Tier: 1, PromotionSuccessRate: 0.9, PromotionMinCycleWins: 0, DemotionSuccessRate: 0.5},
		agent.RoleIntelligence: {RoleKind: "intelligence", Tier: 1, PromotionSuccessRate: 0.8, PromotionMinCycleWins: 0, DemotionSuccessRate: 0.45},
		agent.RoleLead:       {RoleKind: "lead", Tier: 1, PromotionSuccessRate: 0.85, PromotionMinCycleWins: 3, DemotionSuccessRate: 0.5},
		agent.RoleDirector:   {RoleKind: "director", Tier: 1, PromotionSuccessRate: 0.9, PromotionMinCycleWins: 4, DemotionSuccessRate: 0.55},
		agent.RoleExecutive:  {RoleKind: "executive", Tier: 1, PromotionSuccessRate: 0.9, PromotionMinCycleWins: 0, DemotionSuccessRate: 0.5},
	}
}

// PerformanceSystem computes and persists scorecards and evaluates
// promotion/demotion eligibility against role-specific thresholds. No
// direct teacher analog; built in the teacher's service idiom
// (constructor takes store+deps, exported methods take ctx first),
// grounded on original_source/orchestrator/performance.py's scorecard/
// promotion-requirements system, supplementing a feature the distilled
// spec dropped entirely.
type PerformanceSystem struct {
	store     store.PerformanceStore
	templates RoleTemplates
}

// NewPerformanceSystem constructs a PerformanceSystem. Pass nil templates
// to use DefaultRoleTemplates.
func NewPerformanceSystem(st store.PerformanceStore, templates RoleTemplates) *PerformanceSystem {
	if templates == nil {
		templates = DefaultRoleTemplates()
	}
	return &PerformanceSystem{store: st, templates: templates}
}

// RecordScorecard persists a completed scorecard for the reporting period.
func (p *PerformanceSystem) RecordScorecard(ctx context.Context, s performance.Scorecard) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if err := p.store.AppendScorecard(ctx, &s); err != nil {
		return fmt.Errorf("performancesystem: append scorecard: %w", err)
	}
	return nil
}

// Eligibility is the outcome of evaluating an agent's most recent scorecard
// against its role's promotion/demotion thresholds.
type Eligibility struct {
	AgentID            string
	PromotionEligible  bool
	DemotionRisk       bool
	LatestSuccessRate  float64
	LatestCycleWins    int
}

// EvaluateEligibility loads agentID's most recent scorecard and checks it
// against role's template.
func (p *PerformanceSystem) EvaluateEligibility(ctx context.Context, agentID string, role agent.RoleKind) (*Eligibility, error) {
	cards, err := p.store.ListScorecards(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("performancesystem: list scorecards: %w", err)
	}
	if len(cards) == 0 {
		return &Eligibility{AgentID: agentID}, nil
	}
	latest := cards[len(cards)-1]
	for _, c := range cards {
		if c.PeriodEnd.After(latest.PeriodEnd) {
			latest = c
		}
	}

	tpl, ok := p.templates[role]
	if !ok {
		return nil, fmt.Errorf("performancesystem: no role template for %q", role)
	}

	return &Eligibility{
		AgentID:           agentID,
		PromotionEligible: tpl.EligiblePromotion(*latest),
		DemotionRisk:      tpl.EligibleDemotion(*latest),
		LatestSuccessRate: latest.SuccessRate(),
		LatestCycleWins:   latest.ResearchCycleWins,
	}, nil
}
