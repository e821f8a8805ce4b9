package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/agentorg/runtime/internal/adapter/otel"
	"github.com/agentorg/runtime/internal/domain/risk"
	"github.com/agentorg/runtime/internal/port/bus"
	"github.com/agentorg/runtime/internal/port/store"
)

// RiskGovernance runs the weighted-vote rule lifecycle and real-time
// compliance checks of spec.md §4.8, grounded on `domain/risk`'s
// RiskRule/Vote/GovernanceDecision model (itself generalized from the
// teacher's `domain/policy` rule/decision shape, with the weighted-audit
// style adapted from the pack's tool_approval.go).
type RiskGovernance struct {
	store   store.GovernanceStore
	bus     bus.Bus
	weights map[string]float64
	metrics *otel.Metrics

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// SetMetrics attaches an OTEL metrics instrument set. Pass nil to disable.
func (g *RiskGovernance) SetMetrics(m *otel.Metrics) {
	g.metrics = m
}

// NewRiskGovernance constructs a RiskGovernance. Pass nil weights to use
// risk.DefaultVoteWeights.
func NewRiskGovernance(st store.GovernanceStore, b bus.Bus, weights map[string]float64) *RiskGovernance {
	if weights == nil {
		weights = risk.DefaultVoteWeights
	}
	return &RiskGovernance{store: st, bus: b, weights: weights, locks: make(map[string]*sync.Mutex)}
}

func (g *RiskGovernance) lockFor(id string) *sync.Mutex {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()
	l, ok := g.locks[id]
	if !ok {
		l = &sync.Mutex{}
		g.locks[id] = l
	}
	return l
}

// ProposeRule creates a PROPOSED rule with required voters derived from its
// kind (spec.md §4.8's per-kind voter table).
func (g *RiskGovernance) ProposeRule(ctx context.Context, kind risk.Kind, name string, params map[string]any, requiredApprovalRate float64, proposedBy string) (*risk.RiskRule, error) {
	now := time.Now()
	r := &risk.RiskRule{
		ID:                   newRuleID(),
		Kind:                 kind,
		Name:                 name,
		Parameters:           params,
		Status:               risk.StatusProposed,
		RequiredVoters:       risk.RequiredVotersForKind(kind),
		RequiredApprovalRate: requiredApprovalRate,
		ProposedBy:           proposedBy,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := g.store.CreateRule(ctx, r); err != nil {
		return nil, fmt.Errorf("riskgovernance: create rule: %w", err)
	}
	return r, nil
}

// Vote records voterID's choice on ruleID (rejecting a duplicate vote from
// the same voter), then tallies the rule once every required voter has
// voted: approvalRate >= RequiredApprovalRate approves the rule, otherwise
// it is rejected. Either way a GovernanceDecision row is persisted.
func (g *RiskGovernance) Vote(ctx context.Context, ruleID, voterID, voterRole string, choice risk.Choice, reason string) (*risk.RiskRule, error) {
	lock := g.lockFor(ruleID)
	lock.Lock()
	defer lock.Unlock()

	r, err := g.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("riskgovernance: get rule: %w", err)
	}
	if r.HasVoted(voterID) {
		return nil, fmt.Errorf("riskgovernance: %s already voted on rule %s", voterID, ruleID)
	}

	r.Votes = append(r.Votes, risk.Vote{
		VoterID: voterID, Choice: choice, Reason: reason,
		Weight: risk.WeightForRole(g.weights, voterRole), Timestamp: time.Now(),
	})
	r.UpdatedAt = time.Now()

	if r.AllRequiredVoted() {
		rate := r.ApprovalRate()
		if rate >= r.RequiredApprovalRate {
			r.Status = risk.StatusApproved
		} else {
			r.Status = risk.StatusRejected
		}
		if err := g.recordDecision(ctx, r, rate); err != nil {
			return r, err
		}
	}

	if err := g.store.UpdateRule(ctx, r); err != nil {
		return r, fmt.Errorf("riskgovernance: update rule: %w", err)
	}
	return r, nil
}

func (g *RiskGovernance) recordDecision(ctx context.Context, r *risk.RiskRule, rate float64) error {
	participants := make([]string, 0, len(r.Votes))
	for _, v := range r.Votes {
		participants = append(participants, v.VoterID)
	}
	d := &risk.GovernanceDecision{
		ID: newDecisionID(), RuleID: r.ID, Participants: participants,
		ApprovalRate: rate, Resolution: r.Status, DecidedAt: time.Now(),
	}
	if err := g.store.AppendDecision(ctx, d); err != nil {
		return fmt.Errorf("riskgovernance: append decision: %w", err)
	}
	return nil
}

// Activate transitions an APPROVED rule to ACTIVE, effective immediately.
func (g *RiskGovernance) Activate(ctx context.Context, ruleID string) (*risk.RiskRule, error) {
	lock := g.lockFor(ruleID)
	lock.Lock()
	defer lock.Unlock()

	r, err := g.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("riskgovernance: get rule: %w", err)
	}
	if r.Status != risk.StatusApproved {
		return nil, fmt.Errorf("riskgovernance: rule %s is %s, not APPROVED", ruleID, r.Status)
	}
	now := time.Now()
	r.Status = risk.StatusActive
	r.EffectiveFrom = &now
	r.UpdatedAt = now
	if err := g.store.UpdateRule(ctx, r); err != nil {
		return r, fmt.Errorf("riskgovernance: update rule: %w", err)
	}
	if g.metrics != nil {
		g.metrics.RulesActivated.Add(ctx, 1)
	}
	return r, nil
}

// Suspend moves an ACTIVE rule to SUSPENDED, removing it from the active set
// CheckCompliance consults.
func (g *RiskGovernance) Suspend(ctx context.Context, ruleID, reason, suspender string) (*risk.RiskRule, error) {
	lock := g.lockFor(ruleID)
	lock.Lock()
	defer lock.Unlock()

	r, err := g.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("riskgovernance: get rule: %w", err)
	}
	if r.Status != risk.StatusActive {
		return nil, fmt.Errorf("riskgovernance: rule %s is %s, not ACTIVE", ruleID, r.Status)
	}
	r.Status = risk.StatusSuspended
	r.SuspendedReason = reason
	r.UpdatedAt = time.Now()
	if err := g.store.UpdateRule(ctx, r); err != nil {
		return r, fmt.Errorf("riskgovernance: update rule: %w", err)
	}
	if err := g.store.AppendGovernanceAlert(ctx, r.ID, "warning", fmt.Sprintf("rule %s suspended by %s: %s", r.Name, suspender, reason), time.Now()); err != nil {
		return r, fmt.Errorf("riskgovernance: append alert: %w", err)
	}
	return r, nil
}

// CheckCompliance evaluates pos against every active rule's kind-specific
// predicate (spec.md §4.8's concentration/loss/leverage thresholds).
func (g *RiskGovernance) CheckCompliance(ctx context.Context, pos risk.Position) (risk.ComplianceResult, error) {
	rules, err := g.store.ListActiveRules(ctx)
	if err != nil {
		return risk.ComplianceResult{}, fmt.Errorf("riskgovernance: list active rules: %w", err)
	}
	result := risk.ComplianceResult{Compliant: true}
	for _, r := range rules {
		finding, severity, ok := evaluateRule(r, pos)
		if !ok {
			continue
		}
		f := risk.Finding{RuleID: r.ID, Kind: r.Kind, Severity: severity, Message: finding}
		if severity == risk.SeverityWarning {
			result.Warnings = append(result.Warnings, f)
			continue
		}
		result.Compliant = false
		result.Violations = append(result.Violations, f)
		if g.bus != nil {
			_, _ = g.bus.SendSystem(ctx, "risk-officer", "Compliance violation: "+r.Name, finding)
		}
		_ = g.store.AppendGovernanceAlert(ctx, r.ID, string(severity), finding, time.Now())
	}
	return result, nil
}

func evaluateRule(r *risk.RiskRule, pos risk.Position) (msg string, severity risk.Severity, matched bool) {
	switch r.Kind {
	case risk.KindConcentration, risk.KindExposure, risk.KindAllocation, risk.KindPosition:
		limit, _ := r.Parameters["max_single_asset_pct"].(float64)
		if limit <= 0 {
			return "", "", false
		}
		for asset, share := range pos.AssetShares {
			if share > limit/100 {
				return fmt.Sprintf("%s at %.1f%% exceeds the %.1f%% concentration limit", asset, share*100, limit), risk.SeverityHigh, true
			}
			if share > 0.9*limit/100 {
				return fmt.Sprintf("%s at %.1f%% is approaching the %.1f%% concentration limit", asset, share*100, limit), risk.SeverityWarning, true
			}
		}
	case risk.KindLoss:
		limit, _ := r.Parameters["max_daily_loss_pct"].(float64)
		if limit <= 0 {
			return "", "", false
		}
		if pos.DailyPnLPct < -limit/100 {
			return fmt.Sprintf("daily P&L %.2f%% breaches the %.2f%% loss limit", pos.DailyPnLPct*100, limit), risk.SeverityCritical, true
		}
		if pos.DailyPnLPct < -0.8*limit/100 {
			return fmt.Sprintf("daily P&L %.2f%% is approaching the %.2f%% loss limit", pos.DailyPnLPct*100, limit), risk.SeverityWarning, true
		}
	case risk.KindRisk, risk.KindTrading, risk.KindLiquidity:
		maxLev, _ := r.Parameters["max_leverage"].(float64)
		marginCall, _ := r.Parameters["margin_call_leverage"].(float64)
		if maxLev <= 0 {
			return "", "", false
		}
		if pos.Leverage > maxLev {
			return fmt.Sprintf("leverage %.2fx exceeds the %.2fx limit", pos.Leverage, maxLev), risk.SeverityHigh, true
		}
		if marginCall > 0 && pos.Leverage > marginCall {
			return fmt.Sprintf("leverage %.2fx is above the %.2fx margin-call threshold", pos.Leverage, marginCall), risk.SeverityWarning, true
		}
	}
	return "", "", false
}

func newRuleID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return "rule_" + hex.EncodeToString(buf)
}

func newDecisionID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return "decision_" + hex.EncodeToString(buf)
}
