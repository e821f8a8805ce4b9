package service

import (
	"context"
	"testing"
	"time"

	"github.com/agentorg/runtime/internal/adapter/inmembus"
	"github.com/agentorg/runtime/internal/domain/risk"
	"github.com/agentorg/runtime/internal/port/store"
)

var _ store.GovernanceStore = (*mockGovernanceStore)(nil)

type mockGovernanceStore struct {
	rules     map[string]*risk.RiskRule
	decisions []*risk.GovernanceDecision
	alerts    []string
}

func newMockGovernanceStore() *mockGovernanceStore {
	return &mockGovernanceStore{rules: make(map[string]*risk.RiskRule)}
}

func (m *mockGovernanceStore) CreateRule(_ context.Context, r *risk.RiskRule) error {
	m.rules[r.ID] = r
	return nil
}

func (m *mockGovernanceStore) GetRule(_ context.Context, id string) (*risk.RiskRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, errNotFoundForTest
	}
	return r, nil
}

func (m *mockGovernanceStore) ListActiveRules(_ context.Context) ([]*risk.RiskRule, error) {
	var out []*risk.RiskRule
	for _, r := range m.rules {
		if r.Status == risk.StatusActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockGovernanceStore) UpdateRule(_ context.Context, r *risk.RiskRule) error {
	m.rules[r.ID] = r
	return nil
}

func (m *mockGovernanceStore) AppendDecision(_ context.Context, d *risk.GovernanceDecision) error {
	m.decisions = append(m.decisions, d)
	return nil
}

func (m *mockGovernanceStore) AppendGovernanceAlert(_ context.Context, ruleID, severity, message string, _ time.Time) error {
	m.alerts = append(m.alerts, ruleID+":"+severity+":"+message)
	return nil
}

func TestVoteApprovesOnceThresholdMet(t *testing.T) {
	st := newMockGovernanceStore()
	gov := NewRiskGovernance(st, inmembus.New(), nil)
	ctx := context.Background()

	r, err := gov.ProposeRule(ctx, risk.KindConcentration, "max single asset 30%",
		map[string]any{"max_single_asset_pct": 30.0}, 0.6, "risk_officer_01")
	if err != nil {
		t.Fatalf("ProposeRule: %v", err)
	}
	voters := risk.RequiredVotersForKind(risk.KindConcentration)
	if len(voters) != 3 {
		t.Fatalf("RequiredVotersForKind = %v, want 3 voters", voters)
	}

	if _, err := gov.Vote(ctx, r.ID, "risk-officer", "risk-officer", risk.ChoiceApprove, "sound"); err != nil {
		t.Fatalf("Vote 1: %v", err)
	}
	if _, err := gov.Vote(ctx, r.ID, "portfolio-manager", "portfolio-manager", risk.ChoiceApprove, "agree"); err != nil {
		t.Fatalf("Vote 2: %v", err)
	}
	got, err := gov.Vote(ctx, r.ID, "investment-officer", "investment-officer", risk.ChoiceReject, "too strict")
	if err != nil {
		t.Fatalf("Vote 3: %v", err)
	}
	if got.Status != risk.StatusApproved {
		t.Fatalf("Status = %v, want APPROVED (weighted approval rate should clear 0.6)", got.Status)
	}
	if len(st.decisions) != 1 {
		t.Fatalf("decisions recorded = %d, want 1", len(st.decisions))
	}
}

func TestVoteRejectsDuplicateVoterAndBelowThreshold(t *testing.T) {
	st := newMockGovernanceStore()
	gov := NewRiskGovernance(st, inmembus.New(), nil)
	ctx := context.Background()

	r, _ := gov.ProposeRule(ctx, risk.KindLoss, "max daily loss 5%",
		map[string]any{"max_daily_loss_pct": 5.0}, 0.75, "risk_officer_01")

	if _, err := gov.Vote(ctx, r.ID, "risk-officer", "risk-officer", risk.ChoiceReject, "too risky"); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if _, err := gov.Vote(ctx, r.ID, "risk-officer", "risk-officer", risk.ChoiceApprove, "changed mind"); err == nil {
		t.Fatalf("expected error on duplicate vote from the same voter")
	}
	got, err := gov.Vote(ctx, r.ID, "chief-risk-officer", "chief-risk-officer", risk.ChoiceApprove, "fine")
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if got.Status != risk.StatusRejected {
		t.Fatalf("Status = %v, want REJECTED", got.Status)
	}
}

func TestActivateRequiresApprovedStatus(t *testing.T) {
	st := newMockGovernanceStore()
	gov := NewRiskGovernance(st, inmembus.New(), nil)
	ctx := context.Background()

	r, _ := gov.ProposeRule(ctx, risk.KindRisk, "max leverage 3x", map[string]any{"max_leverage": 3.0}, 0.5, "risk_officer_01")
	if _, err := gov.Activate(ctx, r.ID); err == nil {
		t.Fatalf("expected Activate to fail on a still-PROPOSED rule")
	}
}

func TestCheckComplianceFlagsConcentrationViolation(t *testing.T) {
	st := newMockGovernanceStore()
	gov := NewRiskGovernance(st, inmembus.New(), nil)
	ctx := context.Background()

	now := time.Now()
	st.rules["rule_active"] = &risk.RiskRule{
		ID: "rule_active", Kind: risk.KindConcentration, Name: "max single asset 30%",
		Parameters: map[string]any{"max_single_asset_pct": 30.0},
		Status:     risk.StatusActive, EffectiveFrom: &now,
	}

	result, err := gov.CheckCompliance(ctx, risk.Position{
		AssetShares: map[string]float64{"BTC": 0.35, "ETH": 0.20, "USDT": 0.45},
	})
	if err != nil {
		t.Fatalf("CheckCompliance: %v", err)
	}
	if result.Compliant {
		t.Fatalf("expected non-compliant result")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("Violations = %d, want 1", len(result.Violations))
	}
	if result.Violations[0].Severity != risk.SeverityHigh {
		t.Fatalf("Severity = %v, want high", result.Violations[0].Severity)
	}
}

func TestCheckComplianceFlagsLossCriticalAndWarning(t *testing.T) {
	st := newMockGovernanceStore()
	gov := NewRiskGovernance(st, inmembus.New(), nil)
	ctx := context.Background()

	now := time.Now()
	st.rules["rule_loss"] = &risk.RiskRule{
		ID: "rule_loss", Kind: risk.KindLoss, Name: "max daily loss 5%",
		Parameters: map[string]any{"max_daily_loss_pct": 5.0},
		Status:     risk.StatusActive, EffectiveFrom: &now,
	}

	critical, err := gov.CheckCompliance(ctx, risk.Position{DailyPnLPct: -0.06})
	if err != nil {
		t.Fatalf("CheckCompliance: %v", err)
	}
	if len(critical.Violations) != 1 || critical.Violations[0].Severity != risk.SeverityCritical {
		t.Fatalf("expected one critical violation, got %+v", critical.Violations)
	}

	warn, err := gov.CheckCompliance(ctx, risk.Position{DailyPnLPct: -0.042})
	if err != nil {
		t.Fatalf("CheckCompliance: %v", err)
	}
	if !warn.Compliant || len(warn.Warnings) != 1 {
		t.Fatalf("expected one warning and overall compliant, got %+v", warn)
	}
}
