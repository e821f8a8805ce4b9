package service

import (
	"context"
	"testing"
	"time"

	"github.com/agentorg/runtime/internal/adapter/inmembus"
	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/domain/message"
	"github.com/agentorg/runtime/internal/domain/risk"
	"github.com/agentorg/runtime/internal/domain/task"
	"github.com/agentorg/runtime/internal/port/bus"
	"github.com/agentorg/runtime/internal/port/llm"
)

var _ llm.Client = (*stubLLM)(nil)

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Think(_ context.Context, _ string, _ map[string]any) (string, error) {
	return s.reply, s.err
}

func (s *stubLLM) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, nil
}

var _ bus.Bus = (*stubBus)(nil)

type stubBus struct {
	sent []message.Message
}

func (b *stubBus) SendDirect(_ context.Context, from, to, subject, content string, kind message.Kind, _ map[string]any, priority message.Priority) (message.Message, error) {
	m := message.Message{From: from, To: to, Subject: subject, Content: content, Kind: kind, Priority: priority}
	b.sent = append(b.sent, m)
	return m, nil
}

func (b *stubBus) SendToGroup(_ context.Context, _ message.ChannelKind, from, channelID, subject, content string, kind message.Kind, _ map[string]any, priority message.Priority) (message.Message, error) {
	return message.Message{From: from, Content: content, Subject: subject, Kind: kind, Priority: priority, ChannelID: channelID}, nil
}

func (b *stubBus) Broadcast(_ context.Context, from, subject, content string, _ map[string]any) (message.Message, error) {
	return message.Message{From: from, Subject: subject, Content: content}, nil
}

func (b *stubBus) SendSystem(_ context.Context, to, subject, content string) (message.Message, error) {
	return message.Message{To: to, Subject: subject, Content: content}, nil
}

func (b *stubBus) CreateMeetingRoom(_ context.Context, id, title, host string, participants []string) (message.Room, error) {
	return message.Room{ID: id, Title: title, Host: host, Participants: participants}, nil
}

func (b *stubBus) SendToMeeting(_ context.Context, roomID, from, content string, kind message.Kind) (*message.Message, error) {
	m := message.Message{From: from, Content: content, Kind: kind, ChannelID: roomID}
	b.sent = append(b.sent, m)
	return &m, nil
}

func (b *stubBus) AddMeetingArtifact(_ context.Context, roomID string, kind message.ArtifactKind, data any, title, presenter string) (message.Artifact, error) {
	return message.Artifact{Kind: kind, Data: data, Title: title, Presenter: presenter}, nil
}

func (b *stubBus) EndMeeting(_ context.Context, roomID string) (message.Room, error) {
	return message.Room{ID: roomID}, nil
}

func (b *stubBus) GetRoom(_ context.Context, roomID string) (message.Room, bool) {
	return message.Room{}, false
}

func (b *stubBus) Subscribe(_ string, _ message.ChannelKind, _ string, _ bus.Callback, _ bus.Filter) string {
	return ""
}

func (b *stubBus) Unsubscribe(_ string) {}

func (b *stubBus) RegisterMailbox(_ string) {}

func (b *stubBus) GetMessages(_ context.Context, _ string, _ time.Duration, _ int) ([]message.Message, error) {
	return nil, nil
}

func (b *stubBus) PeekMessages(_ string, _ int) []message.Message { return nil }

func (b *stubBus) Stats() message.Stats { return message.Stats{} }

func (b *stubBus) Close() error { return nil }

func newTestRuntime(t *testing.T, role RoleBehavior, llmClient llm.Client, b bus.Bus) *AgentRuntime {
	t.Helper()
	ag := &agent.Agent{ID: "agent_01", Name: "Test Agent", Department: "research", RoleKind: agent.RoleResearcher, ReportsTo: "lead_01"}
	return NewAgentRuntime(ag, b, task.NewQueue(), llmClient, nil, role)
}

func TestResearcherCheckForWorkEnqueuesOpportunityWhenNoTopic(t *testing.T) {
	role := NewResearcherRole()
	rt := newTestRuntime(t, role, &stubLLM{reply: "idea"}, &stubBus{})

	role.CheckForWork(context.Background(), rt)

	if rt.queue.Size() != 1 {
		t.Fatalf("queue size = %d, want 1", rt.queue.Size())
	}
}

func TestResearcherCheckForWorkRespectsCooldown(t *testing.T) {
	role := NewResearcherRole()
	role.lastCheck = time.Now()
	rt := newTestRuntime(t, role, &stubLLM{reply: "idea"}, &stubBus{})

	role.CheckForWork(context.Background(), rt)

	if rt.queue.Size() != 0 {
		t.Fatalf("queue size = %d, want 0 (cooldown should suppress enqueue)", rt.queue.Size())
	}
}

func TestResearcherValidateIdeaApprovedChainsToBacktest(t *testing.T) {
	role := NewResearcherRole()
	rt := newTestRuntime(t, role, &stubLLM{reply: "approved"}, &stubBus{})

	tsk := task.New("t1", rt.Agent.ID, kindValidateIdea, map[string]any{"idea": "buy the dip"}, task.PriorityNormal, 1, time.Now())
	result, err := role.handleValidateIdea(context.Background(), rt, tsk)
	if err != nil {
		t.Fatalf("handleValidateIdea: %v", err)
	}
	if result["approved"] != true {
		t.Fatalf("expected approved=true, got %v", result)
	}
	if rt.queue.Size() != 1 {
		t.Fatalf("expected backtest_idea task to be enqueued, queue size = %d", rt.queue.Size())
	}
}

func TestResearcherValidateIdeaRejectedClearsTopic(t *testing.T) {
	role := NewResearcherRole()
	role.hasTopic = true
	rt := newTestRuntime(t, role, &stubLLM{reply: "rejected"}, &stubBus{})

	tsk := task.New("t1", rt.Agent.ID, kindValidateIdea, map[string]any{"idea": "buy the dip"}, task.PriorityNormal, 1, time.Now())
	if _, err := role.handleValidateIdea(context.Background(), rt, tsk); err != nil {
		t.Fatalf("handleValidateIdea: %v", err)
	}
	if role.hasTopic {
		t.Fatalf("expected hasTopic to be cleared after rejection")
	}
	if rt.queue.Size() != 0 {
		t.Fatalf("did not expect a follow-on task after rejection, queue size = %d", rt.queue.Size())
	}
}

func TestResearcherBacktestPassProposesToLead(t *testing.T) {
	role := NewResearcherRole()
	b := &stubBus{}
	rt := newTestRuntime(t, role, &stubLLM{reply: "pass"}, b)

	tsk := task.New("t1", rt.Agent.ID, kindBacktestIdea, map[string]any{"idea": "buy the dip"}, task.PriorityNormal, 1, time.Now())
	if _, err := role.handleBacktestIdea(context.Background(), rt, tsk); err != nil {
		t.Fatalf("handleBacktestIdea: %v", err)
	}
	if rt.queue.Size() != 1 {
		t.Fatalf("expected propose_strategy task to be enqueued, queue size = %d", rt.queue.Size())
	}

	proposeTask := rt.queue.PopBlocking(context.Background(), 0)
	if proposeTask.Kind != kindProposeStrategy {
		t.Fatalf("kind = %s, want propose_strategy", proposeTask.Kind)
	}
	if _, err := role.handleProposeStrategy(context.Background(), rt, proposeTask); err != nil {
		t.Fatalf("handleProposeStrategy: %v", err)
	}
	if len(b.sent) != 1 {
		t.Fatalf("expected one message sent to the lead, got %d", len(b.sent))
	}
	if b.sent[0].To != "lead_01" {
		t.Fatalf("sent to %q, want lead_01", b.sent[0].To)
	}
}

func TestOfficerDailyComplianceFlagsLossViolation(t *testing.T) {
	st := newMockGovernanceStore()
	st.rules["loss_rule"] = &risk.RiskRule{
		ID: "loss_rule", Kind: risk.KindLoss, Status: risk.StatusActive,
		Parameters: map[string]any{"max_daily_loss_pct": 5.0},
	}
	gov := NewRiskGovernance(st, inmembus.New(), nil)
	pos := risk.Position{DailyPnLPct: -0.09}
	positionOf := func() (risk.Position, bool) { return pos, true }
	role := NewOfficerRole(gov, positionOf)
	rt := newTestRuntime(t, nil, &stubLLM{}, &stubBus{})

	result, err := role.handleDailyCompliance(context.Background(), rt, task.New("t1", rt.Agent.ID, kindDailyCompliance, nil, task.PriorityHigh, 1, time.Now()))
	if err != nil {
		t.Fatalf("handleDailyCompliance: %v", err)
	}
	if result["compliant"] != false {
		t.Fatalf("expected compliant=false for a -9%% daily loss, got %v", result)
	}
}

func TestRiskRoleEvaluateTriggersSkippedWithoutMetrics(t *testing.T) {
	role := NewRiskRole(nil, nil)
	rt := newTestRuntime(t, nil, &stubLLM{}, &stubBus{})

	result, err := role.handleEvaluateTriggers(context.Background(), rt, task.New("t1", rt.Agent.ID, kindEvaluateTriggers, nil, task.PriorityNormal, 1, time.Now()))
	if err != nil {
		t.Fatalf("handleEvaluateTriggers: %v", err)
	}
	if result["skipped"] != true {
		t.Fatalf("expected skipped=true with no intentions/metrics source, got %v", result)
	}
}

func TestTraderMonitorPositionsLogsAnomaly(t *testing.T) {
	role := NewTraderRole()
	rt := newTestRuntime(t, role, &stubLLM{reply: "unexpected slippage on BTCUSD"}, &stubBus{})

	if _, err := role.handleMonitorPositions(context.Background(), rt, task.New("t1", rt.Agent.ID, kindMonitorPositions, nil, task.PriorityNormal, 1, time.Now())); err != nil {
		t.Fatalf("handleMonitorPositions: %v", err)
	}
	log := rt.ActivityLog()
	found := false
	for _, e := range log {
		if e.Type == "execution_anomaly" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an execution_anomaly activity entry, got %+v", log)
	}
}
