package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/agentorg/runtime/internal/domain/intention"
	"github.com/agentorg/runtime/internal/domain/message"
	"github.com/agentorg/runtime/internal/port/bus"
	"github.com/agentorg/runtime/internal/port/store"
)

// ScopeTable maps an autonomous-action scope name to its allowed actions
// and numeric limits.
type ScopeTable map[string]intention.ScopeRule

// DefaultAutonomousScopes mirrors original_source/orchestrator/
// intention.py's AUTONOMOUS_SCOPES table: each department's autonomous
// remit and the budget/position-change ceilings that bound it.
func DefaultAutonomousScopes() ScopeTable {
	cp100 := 100.0
	pct5 := 5.0
	return ScopeTable{
		"research": {
			AllowedActions: []string{"request_data", "run_backtest", "write_memo", "propose_strategy"},
			BudgetLimitCP:  &cp100,
		},
		"risk_monitoring": {
			AllowedActions: []string{"issue_alert", "request_meeting", "pause_strategy"},
		},
		"trading_execution": {
			AllowedActions:       []string{"adjust_order", "cancel_order", "report_anomaly"},
			MaxPositionChangePct: &pct5,
		},
		"intelligence": {
			AllowedActions: []string{"issue_alert", "update_sentiment", "flag_news"},
		},
	}
}

// expiryByKind mirrors intention.py's DEFAULT_EXPIRY table (hours until an
// unresolved intention auto-expires).
var expiryByKind = map[intention.Kind]time.Duration{
	intention.KindMeetingRequest:   72 * time.Hour,
	intention.KindRiskAlert:        4 * time.Hour,
	intention.KindStrategyProposal: 168 * time.Hour,
	intention.KindDataRequest:      48 * time.Hour,
	intention.KindToolRequest:      168 * time.Hour,
	intention.KindFeedback:         168 * time.Hour,
	intention.KindEscalation:       24 * time.Hour,
	intention.KindCollaboration:    72 * time.Hour,
	intention.KindAutonomousAction: time.Hour,
}

// DefaultRiskTriggers mirrors intention.py's DEFAULT_RISK_TRIGGERS: four
// concrete metric thresholds watched on every incoming metrics snapshot.
func DefaultRiskTriggers() []intention.Trigger {
	return []intention.Trigger{
		{ID: "trigger_daily_loss", Metric: "daily_pnl_pct", Operator: intention.OpLT, Threshold: -5.0,
			TargetAgents: []string{"cro", "head_trader", "chairman"}, Enabled: true},
		{ID: "trigger_volatility_spike", Metric: "volatility_zscore", Operator: intention.OpGT, Threshold: 2.5,
			TargetAgents: []string{"cro", "cio", "pm"}, Enabled: true},
		{ID: "trigger_concentration", Metric: "position_concentration", Operator: intention.OpGT, Threshold: 0.3,
			TargetAgents: []string{"cro", "pm"}, Enabled: true},
		{ID: "trigger_fear_greed", Metric: "fear_greed_index", Operator: intention.OpLT, Threshold: 20,
			TargetAgents: []string{"head_of_intelligence", "cio"}, Enabled: true},
	}
}

// IntentionSystem runs the autonomous-action gate and risk-trigger
// evaluator of spec.md §4.9, grounded directly on
// original_source/orchestrator/intention.py's IntentionSystem class,
// re-expressed over domain/intention with the teacher's
// domain/policy.Decision evaluation style (explicit boolean gate, no
// exceptions) for ExpressIntention/the scope check.
type IntentionSystem struct {
	store    store.IntentionStore
	bus      bus.Bus
	scopes   ScopeTable
	triggers map[string]*intention.Trigger
}

// NewIntentionSystem constructs an IntentionSystem. Pass nil scopes/
// triggers to use the built-in defaults.
func NewIntentionSystem(st store.IntentionStore, b bus.Bus, scopes ScopeTable, triggers []intention.Trigger) *IntentionSystem {
	if scopes == nil {
		scopes = DefaultAutonomousScopes()
	}
	if triggers == nil {
		triggers = DefaultRiskTriggers()
	}
	tm := make(map[string]*intention.Trigger, len(triggers))
	for i := range triggers {
		t := triggers[i]
		tm[t.ID] = &t
	}
	return &IntentionSystem{store: st, bus: b, scopes: scopes, triggers: tm}
}

// ExpressIntention records a new Intention. For KindAutonomousAction with a
// non-empty AutonomousScope, it runs the scope gate and sets
// AutonomousApproved per spec.md §4.9's pseudocode.
func (s *IntentionSystem) ExpressIntention(ctx context.Context, agentID string, kind intention.Kind, priority string, ictx intention.Context, targetAgents []string, scope string) (*intention.Intention, error) {
	now := time.Now()
	expiry := expiryByKind[kind]
	if expiry == 0 {
		expiry = 72 * time.Hour
	}
	expiresAt := now.Add(expiry)

	in := &intention.Intention{
		ID: newIntentionID(), AgentID: agentID, Kind: kind, Priority: priority,
		Status: intention.StatusOpen, Context: ictx, TargetAgents: targetAgents,
		AutonomousScope: scope, ExpiresAt: &expiresAt, CreatedAt: now,
	}
	if kind == intention.KindAutonomousAction && scope != "" {
		in.AutonomousApproved = s.checkAutonomousApproval(scope, ictx)
	}
	if err := s.store.CreateIntention(ctx, in); err != nil {
		return nil, fmt.Errorf("intentionsystem: create: %w", err)
	}
	return in, nil
}

// checkAutonomousApproval runs the scope-gate pseudocode of spec.md §4.9.
func (s *IntentionSystem) checkAutonomousApproval(scope string, ctx intention.Context) bool {
	rule, ok := s.scopes[scope]
	if !ok {
		return false
	}
	return rule.Evaluate(ctx)
}

// CheckRiskTriggers evaluates every enabled trigger against metrics,
// emitting a risk_alert Intention (and notifying the trigger's target
// agents) for each one that fires.
func (s *IntentionSystem) CheckRiskTriggers(ctx context.Context, metrics map[string]float64) ([]*intention.Intention, error) {
	var fired []*intention.Intention
	for _, trig := range s.triggers {
		if !trig.Enabled {
			continue
		}
		value, ok := metrics[trig.Metric]
		if !ok {
			continue
		}
		if !trig.Operator.Compare(value, trig.Threshold) {
			continue
		}
		trig.Count++

		in, err := s.ExpressIntention(ctx, "system", intention.KindRiskAlert, "high",
			intention.Context{Metric: trig.Metric, Value: value}, trig.TargetAgents, "")
		if err != nil {
			return fired, err
		}
		fired = append(fired, in)

		if s.bus != nil {
			for _, target := range trig.TargetAgents {
				_, _ = s.bus.SendDirect(ctx, "risk_monitor", target, "Risk trigger: "+trig.ID,
					fmt.Sprintf("%s breached threshold %.2f (current %.2f)", trig.Metric, trig.Threshold, value),
					message.KindSystem, map[string]any{"trigger_id": trig.ID}, message.PriorityHigh)
			}
		}
	}
	return fired, nil
}

// GetTriggers returns every configured risk trigger.
func (s *IntentionSystem) GetTriggers() []*intention.Trigger {
	out := make([]*intention.Trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, t)
	}
	return out
}

// ToggleTrigger enables or disables a trigger by id.
func (s *IntentionSystem) ToggleTrigger(id string, enabled bool) error {
	t, ok := s.triggers[id]
	if !ok {
		return fmt.Errorf("intentionsystem: unknown trigger %q", id)
	}
	t.Enabled = enabled
	return nil
}

// RespondToIntention approves or rejects an open intention.
func (s *IntentionSystem) RespondToIntention(ctx context.Context, id string, approve bool) error {
	open, err := s.store.ListOpenIntentions(ctx, "")
	if err != nil {
		return fmt.Errorf("intentionsystem: list open: %w", err)
	}
	for _, in := range open {
		if in.ID != id {
			continue
		}
		if approve {
			in.Status = intention.StatusApproved
		} else {
			in.Status = intention.StatusRejected
		}
		return s.store.UpdateIntention(ctx, in)
	}
	return fmt.Errorf("intentionsystem: intention %q not found or not open", id)
}

// SweepExpiredIntentions marks open intentions past their ExpiresAt as
// expired.
func (s *IntentionSystem) SweepExpiredIntentions(ctx context.Context) error {
	open, err := s.store.ListOpenIntentions(ctx, "")
	if err != nil {
		return fmt.Errorf("intentionsystem: list open: %w", err)
	}
	now := time.Now()
	for _, in := range open {
		if in.ExpiresAt == nil || now.Before(*in.ExpiresAt) {
			continue
		}
		in.Status = intention.StatusExpired
		if err := s.store.UpdateIntention(ctx, in); err != nil {
			return fmt.Errorf("intentionsystem: expire: %w", err)
		}
	}
	return nil
}

func newIntentionID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return "intention_" + hex.EncodeToString(buf)
}
