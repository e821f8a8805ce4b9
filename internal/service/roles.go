package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/agentorg/runtime/internal/domain/message"
	"github.com/agentorg/runtime/internal/domain/risk"
	"github.com/agentorg/runtime/internal/domain/task"
)

// Role-specific task kinds, layered on top of the base five via
// RoleBehavior.TaskHandlers (spec.md §4.11). Open string type, same idiom
// as task.Kind's base constants.
const (
	kindFindResearchOpportunity task.Kind = "find_research_opportunity"
	kindValidateIdea            task.Kind = "validate_idea"
	kindObserveMarket           task.Kind = "observe_market"
	kindBacktestIdea            task.Kind = "backtest_idea"
	kindProposeStrategy         task.Kind = "propose_strategy"
	kindDailyCompliance         task.Kind = "daily_compliance"
	kindEvaluateTriggers        task.Kind = "evaluate_triggers"
	kindMonitorPositions        task.Kind = "monitor_positions"
	kindScanIntelligence        task.Kind = "scan_intelligence"
)

// ResearcherRole overrides CheckForWork per spec.md §4.11: on a 5-minute
// cooldown, if no current topic is in flight it enqueues
// find_research_opportunity; if ideas await validation it enqueues
// validate_idea; otherwise, with 30% probability, it enqueues
// observe_market. Discoveries chain forward (validate -> backtest ->
// propose) exactly as the spec's "each role-specific task ... may enqueue
// follow-on tasks" language describes. Grounded on the teacher's
// meta_agent.go's LLM-call-then-parse-then-chain shape, generalized from a
// single decomposition call to an indefinite proactive loop.
type ResearcherRole struct {
	mu           sync.Mutex
	lastCheck    time.Time
	cooldown     time.Duration
	hasTopic     bool
	pendingIdeas []string
}

// NewResearcherRole constructs a ResearcherRole with the spec's 5-minute
// cooldown.
func NewResearcherRole() *ResearcherRole {
	return &ResearcherRole{cooldown: 5 * time.Minute}
}

func (r *ResearcherRole) CheckForWork(ctx context.Context, rt *AgentRuntime) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastCheck) < r.cooldown {
		return
	}
	r.lastCheck = now

	switch {
	case !r.hasTopic:
		rt.Enqueue(kindFindResearchOpportunity, nil, task.PriorityNormal, 1)
	case len(r.pendingIdeas) > 0:
		idea := r.pendingIdeas[0]
		r.pendingIdeas = r.pendingIdeas[1:]
		rt.Enqueue(kindValidateIdea, map[string]any{"idea": idea}, task.PriorityNormal, 1)
	case rand.Float64() < 0.3:
		rt.Enqueue(kindObserveMarket, nil, task.PriorityLow, 1)
	}
}

func (r *ResearcherRole) TaskHandlers() map[task.Kind]TaskHandlerFunc {
	return map[task.Kind]TaskHandlerFunc{
		kindFindResearchOpportunity: r.handleFindOpportunity,
		kindValidateIdea:            r.handleValidateIdea,
		kindObserveMarket:           r.handleObserveMarket,
		kindBacktestIdea:            r.handleBacktestIdea,
		kindProposeStrategy:         r.handleProposeStrategy,
	}
}

func (r *ResearcherRole) handleFindOpportunity(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	prompt := rt.personaPrompt() + "\n\nPropose one new research idea worth investigating this cycle. Reply with a one-sentence idea."
	idea, err := rt.llm.Think(ctx, prompt, rt.llmContext())
	if err != nil {
		return nil, fmt.Errorf("find_research_opportunity: %w", err)
	}
	rt.AddDiscovery(idea)

	r.mu.Lock()
	r.hasTopic = true
	r.pendingIdeas = append(r.pendingIdeas, idea)
	r.mu.Unlock()

	return map[string]any{"idea": idea}, nil
}

func (r *ResearcherRole) handleValidateIdea(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	idea, _ := t.Payload["idea"].(string)
	prompt := fmt.Sprintf("%s\n\nValidate this research idea and respond with exactly one word: approved or rejected.\n\n%s", rt.personaPrompt(), idea)
	decision, err := rt.llm.Think(ctx, prompt, rt.llmContext())
	if err != nil {
		return nil, fmt.Errorf("validate_idea: %w", err)
	}
	approved := containsCI(decision, "approved")
	if approved {
		rt.Enqueue(kindBacktestIdea, map[string]any{"idea": idea}, task.PriorityNormal, 1)
	} else {
		r.mu.Lock()
		r.hasTopic = false
		r.mu.Unlock()
	}
	return map[string]any{"idea": idea, "approved": approved}, nil
}

func (r *ResearcherRole) handleBacktestIdea(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	idea, _ := t.Payload["idea"].(string)
	prompt := fmt.Sprintf("%s\n\nRun a mental backtest of this idea and respond with exactly one word: pass or fail.\n\n%s", rt.personaPrompt(), idea)
	result, err := rt.llm.Think(ctx, prompt, rt.llmContext())
	if err != nil {
		return nil, fmt.Errorf("backtest_idea: %w", err)
	}
	passed := containsCI(result, "pass")
	if passed {
		rt.Enqueue(kindProposeStrategy, map[string]any{"idea": idea}, task.PriorityHigh, 1)
	}
	r.mu.Lock()
	r.hasTopic = false
	r.mu.Unlock()
	return map[string]any{"idea": idea, "passed": passed}, nil
}

func (r *ResearcherRole) handleProposeStrategy(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	idea, _ := t.Payload["idea"].(string)
	target := rt.Agent.ReportsTo
	if target == "" {
		return map[string]any{"idea": idea, "proposed": false}, nil
	}
	if _, err := rt.bus.SendDirect(ctx, rt.Agent.ID, target, "Strategy proposal", idea, message.KindMemo, nil, message.PriorityNormal); err != nil {
		return nil, fmt.Errorf("propose_strategy: %w", err)
	}
	return map[string]any{"idea": idea, "proposed": true}, nil
}

func (r *ResearcherRole) handleObserveMarket(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	prompt := rt.personaPrompt() + "\n\nObserve current market conditions; note anything unusual in one sentence."
	note, err := rt.llm.Think(ctx, prompt, rt.llmContext())
	if err != nil {
		return nil, fmt.Errorf("observe_market: %w", err)
	}
	rt.AddDiscovery(note)
	return map[string]any{"note": note}, nil
}

// LeadRole reviews incoming proposals (spec.md §4.11): proposals arriving
// on the bus become respond tasks through HandleBusMessage, which turns any
// non-system message into a respond task; in addition, CheckForWork
// enqueues a review task for the proposal backlog every 2 minutes.
type LeadRole struct {
	mu        sync.Mutex
	lastCheck time.Time
	cooldown  time.Duration
}

// NewLeadRole constructs a LeadRole with a 2-minute review cooldown.
func NewLeadRole() *LeadRole {
	return &LeadRole{cooldown: 2 * time.Minute}
}

func (l *LeadRole) CheckForWork(ctx context.Context, rt *AgentRuntime) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.Sub(l.lastCheck) < l.cooldown {
		return
	}
	l.lastCheck = now
	rt.Enqueue(task.KindReview, map[string]any{
		"item": "latest proposals from direct reports", "review_type": "proposal backlog",
	}, task.PriorityNormal, 1)
}

func (l *LeadRole) TaskHandlers() map[task.Kind]TaskHandlerFunc { return nil }

// OfficerRole performs daily compliance (spec.md §4.11): once every 24h it
// enqueues a daily_compliance task that runs CheckCompliance against a
// supplied snapshot source.
type OfficerRole struct {
	mu         sync.Mutex
	lastCheck  time.Time
	cooldown   time.Duration
	governance *RiskGovernance
	positionOf func() (risk.Position, bool)
}

// NewOfficerRole constructs an OfficerRole. positionOf supplies the latest
// portfolio snapshot to check compliance against; pass nil to skip the
// compliance call, in which case the daily_compliance task asks the LLM for
// a one-sentence compliance summary instead.
func NewOfficerRole(governance *RiskGovernance, positionOf func() (risk.Position, bool)) *OfficerRole {
	return &OfficerRole{cooldown: 24 * time.Hour, governance: governance, positionOf: positionOf}
}

func (o *OfficerRole) CheckForWork(ctx context.Context, rt *AgentRuntime) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now()
	if now.Sub(o.lastCheck) < o.cooldown {
		return
	}
	o.lastCheck = now
	rt.Enqueue(kindDailyCompliance, nil, task.PriorityHigh, 1)
}

func (o *OfficerRole) TaskHandlers() map[task.Kind]TaskHandlerFunc {
	return map[task.Kind]TaskHandlerFunc{kindDailyCompliance: o.handleDailyCompliance}
}

func (o *OfficerRole) handleDailyCompliance(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	if o.governance == nil || o.positionOf == nil {
		prompt := rt.personaPrompt() + "\n\nSummarize today's compliance posture in one sentence."
		summary, err := rt.llm.Think(ctx, prompt, rt.llmContext())
		if err != nil {
			return nil, fmt.Errorf("daily_compliance: %w", err)
		}
		return map[string]any{"summary": summary}, nil
	}
	pos, ok := o.positionOf()
	if !ok {
		return map[string]any{"skipped": true}, nil
	}
	result, err := o.governance.CheckCompliance(ctx, pos)
	if err != nil {
		return nil, fmt.Errorf("daily_compliance: %w", err)
	}
	rt.logActivity("compliance_check", fmt.Sprintf("compliant=%v violations=%d warnings=%d", result.Compliant, len(result.Violations), len(result.Warnings)))
	return map[string]any{"compliant": result.Compliant, "violations": len(result.Violations), "warnings": len(result.Warnings)}, nil
}

// RiskRole evaluates trigger snapshots (spec.md §4.11): at most once a
// minute it enqueues a task that asks IntentionSystem to check the latest
// metrics snapshot against the configured risk triggers.
type RiskRole struct {
	mu         sync.Mutex
	lastCheck  time.Time
	cooldown   time.Duration
	intentions *IntentionSystem
	metricsOf  func() map[string]float64
}

// NewRiskRole constructs a RiskRole. metricsOf supplies the latest metrics
// snapshot; pass nil to disable trigger evaluation.
func NewRiskRole(intentions *IntentionSystem, metricsOf func() map[string]float64) *RiskRole {
	return &RiskRole{cooldown: time.Minute, intentions: intentions, metricsOf: metricsOf}
}

func (r *RiskRole) CheckForWork(ctx context.Context, rt *AgentRuntime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.lastCheck) < r.cooldown {
		return
	}
	r.lastCheck = now
	rt.Enqueue(kindEvaluateTriggers, nil, task.PriorityNormal, 1)
}

func (r *RiskRole) TaskHandlers() map[task.Kind]TaskHandlerFunc {
	return map[task.Kind]TaskHandlerFunc{kindEvaluateTriggers: r.handleEvaluateTriggers}
}

func (r *RiskRole) handleEvaluateTriggers(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	if r.intentions == nil || r.metricsOf == nil {
		return map[string]any{"skipped": true}, nil
	}
	fired, err := r.intentions.CheckRiskTriggers(ctx, r.metricsOf())
	if err != nil {
		return nil, fmt.Errorf("evaluate_triggers: %w", err)
	}
	for _, in := range fired {
		rt.AddDiscovery(fmt.Sprintf("risk trigger fired: %s", in.Context.Metric))
	}
	return map[string]any{"triggers_fired": len(fired)}, nil
}

// TraderRole monitors open positions and reports anomalies via its
// autonomous trading_execution scope (spec.md §4.9/§4.11).
type TraderRole struct {
	mu        sync.Mutex
	lastCheck time.Time
	cooldown  time.Duration
}

// NewTraderRole constructs a TraderRole with a 1-minute position-check
// cooldown.
func NewTraderRole() *TraderRole {
	return &TraderRole{cooldown: time.Minute}
}

func (tr *TraderRole) CheckForWork(ctx context.Context, rt *AgentRuntime) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	now := time.Now()
	if now.Sub(tr.lastCheck) < tr.cooldown {
		return
	}
	tr.lastCheck = now
	rt.Enqueue(kindMonitorPositions, nil, task.PriorityNormal, 1)
}

func (tr *TraderRole) TaskHandlers() map[task.Kind]TaskHandlerFunc {
	return map[task.Kind]TaskHandlerFunc{kindMonitorPositions: tr.handleMonitorPositions}
}

func (tr *TraderRole) handleMonitorPositions(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	prompt := rt.personaPrompt() + "\n\nReview current open positions for execution anomalies; report any in one sentence, or reply 'nominal'."
	report, err := rt.llm.Think(ctx, prompt, rt.llmContext())
	if err != nil {
		return nil, fmt.Errorf("monitor_positions: %w", err)
	}
	if !containsCI(report, "nominal") {
		rt.logActivity("execution_anomaly", report)
	}
	return map[string]any{"report": report}, nil
}

// IntelligenceRole scans external signals for sentiment/news relevant to
// the desk, issuing alerts through its autonomous intelligence scope.
type IntelligenceRole struct {
	mu        sync.Mutex
	lastCheck time.Time
	cooldown  time.Duration
}

// NewIntelligenceRole constructs an IntelligenceRole with a 3-minute scan
// cooldown.
func NewIntelligenceRole() *IntelligenceRole {
	return &IntelligenceRole{cooldown: 3 * time.Minute}
}

func (ir *IntelligenceRole) CheckForWork(ctx context.Context, rt *AgentRuntime) {
	ir.mu.Lock()
	defer ir.mu.Unlock()
	now := time.Now()
	if now.Sub(ir.lastCheck) < ir.cooldown {
		return
	}
	ir.lastCheck = now
	rt.Enqueue(kindScanIntelligence, nil, task.PriorityNormal, 1)
}

func (ir *IntelligenceRole) TaskHandlers() map[task.Kind]TaskHandlerFunc {
	return map[task.Kind]TaskHandlerFunc{kindScanIntelligence: ir.handleScanIntelligence}
}

func (ir *IntelligenceRole) handleScanIntelligence(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	prompt := rt.personaPrompt() + "\n\nSummarize one notable piece of market-relevant news or sentiment shift in one sentence."
	finding, err := rt.llm.Think(ctx, prompt, rt.llmContext())
	if err != nil {
		return nil, fmt.Errorf("scan_intelligence: %w", err)
	}
	rt.AddDiscovery(finding)
	return map[string]any{"finding": finding}, nil
}
