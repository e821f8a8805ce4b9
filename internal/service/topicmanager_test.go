package service

import (
	"context"
	"testing"

	"time"

	"github.com/agentorg/runtime/internal/adapter/inmembus"
	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/domain/topic"
	"github.com/agentorg/runtime/internal/port/store"
)

var _ store.TopicStore = (*mockTopicStore)(nil)

type mockTopicStore struct {
	topics map[string]*topic.Topic
}

func newMockTopicStore() *mockTopicStore {
	return &mockTopicStore{topics: make(map[string]*topic.Topic)}
}

func (m *mockTopicStore) CreateTopic(_ context.Context, t *topic.Topic) error {
	m.topics[t.ID] = t
	return nil
}

func (m *mockTopicStore) GetTopic(_ context.Context, id string) (*topic.Topic, error) {
	t, ok := m.topics[id]
	if !ok {
		return nil, errNotFoundForTest
	}
	return t, nil
}

func (m *mockTopicStore) ListTopics(_ context.Context, status topic.Status) ([]*topic.Topic, error) {
	var out []*topic.Topic
	for _, t := range m.topics {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTopicStore) UpdateTopic(_ context.Context, t *topic.Topic) error {
	m.topics[t.ID] = t
	return nil
}

func roleOfForTest(roles map[string]agent.RoleKind) func(string) agent.RoleKind {
	return func(id string) agent.RoleKind { return roles[id] }
}

func TestAddSecondRejectsProposerSeconingOwnTopic(t *testing.T) {
	st := newMockTopicStore()
	mgr := NewTopicManager(st, inmembus.New(), roleOfForTest(nil))
	ctx := context.Background()

	created, err := mgr.ProposeTopic(ctx, topic.Topic{
		Category: topic.CategoryStrategy, Title: "Rotate allocation", Proposer: "researcher_01", RequiredSeconds: 2,
	})
	if err != nil {
		t.Fatalf("ProposeTopic: %v", err)
	}
	if _, err := mgr.AddSecond(ctx, created.ID, "researcher_01", "self-second"); err == nil {
		t.Fatalf("expected error when proposer seconds their own topic")
	}
}

func TestAddSecondIsIdempotentOnDuplicate(t *testing.T) {
	st := newMockTopicStore()
	mgr := NewTopicManager(st, inmembus.New(), roleOfForTest(nil))
	ctx := context.Background()

	created, _ := mgr.ProposeTopic(ctx, topic.Topic{
		Category: topic.CategoryStrategy, Title: "Rotate allocation", Proposer: "researcher_01", RequiredSeconds: 2,
	})
	if _, err := mgr.AddSecond(ctx, created.ID, "lead_01", "agree"); err != nil {
		t.Fatalf("AddSecond: %v", err)
	}
	got, err := mgr.AddSecond(ctx, created.ID, "lead_01", "agree again")
	if err != nil {
		t.Fatalf("AddSecond duplicate: %v", err)
	}
	if len(got.Seconds) != 1 {
		t.Fatalf("Seconds = %d, want 1 (duplicate should be a no-op)", len(got.Seconds))
	}
}

func TestAddSecondReachingThresholdSchedulesMeeting(t *testing.T) {
	st := newMockTopicStore()
	bus := inmembus.New()
	mgr := NewTopicManager(st, bus, roleOfForTest(nil))
	ctx := context.Background()

	created, _ := mgr.ProposeTopic(ctx, topic.Topic{
		Category: topic.CategoryStrategy, Title: "Rotate allocation", Proposer: "researcher_01", RequiredSeconds: 2,
	})
	if _, err := mgr.AddSecond(ctx, created.ID, "lead_01", "agree"); err != nil {
		t.Fatalf("AddSecond: %v", err)
	}
	got, err := mgr.AddSecond(ctx, created.ID, "lead_02", "agree too")
	if err != nil {
		t.Fatalf("AddSecond: %v", err)
	}
	if got.Status != topic.StatusScheduled {
		t.Fatalf("Status = %v, want SCHEDULED", got.Status)
	}
	if got.ScheduledAt == nil {
		t.Fatalf("ScheduledAt not set")
	}
	if _, ok := bus.GetRoom(ctx, "topic_"+created.ID); !ok {
		t.Fatalf("expected a meeting room to be created for the topic")
	}
}

func TestAddSecondDirectorAutoEscalatesToUrgent(t *testing.T) {
	st := newMockTopicStore()
	roles := map[string]agent.RoleKind{"director_01": agent.RoleDirector}
	mgr := NewTopicManager(st, inmembus.New(), roleOfForTest(roles))
	ctx := context.Background()

	created, _ := mgr.ProposeTopic(ctx, topic.Topic{
		Category: topic.CategoryGovernance, Title: "Policy breach", Proposer: "risk_01", RequiredSeconds: 3,
		Priority: topic.PriorityNormal,
	})
	got, err := mgr.AddSecond(ctx, created.ID, "director_01", "escalate")
	if err != nil {
		t.Fatalf("AddSecond: %v", err)
	}
	if got.Priority != topic.PriorityUrgent {
		t.Fatalf("Priority = %v, want URGENT after a director second", got.Priority)
	}
}

func TestAddSecondTwoLeadsEscalateToHigh(t *testing.T) {
	st := newMockTopicStore()
	roles := map[string]agent.RoleKind{"lead_01": agent.RoleLead, "lead_02": agent.RoleLead}
	mgr := NewTopicManager(st, inmembus.New(), roleOfForTest(roles))
	ctx := context.Background()

	created, _ := mgr.ProposeTopic(ctx, topic.Topic{
		Category: topic.CategoryGovernance, Title: "Process change", Proposer: "risk_01", RequiredSeconds: 3,
		Priority: topic.PriorityNormal,
	})
	if _, err := mgr.AddSecond(ctx, created.ID, "lead_01", "agree"); err != nil {
		t.Fatalf("AddSecond: %v", err)
	}
	got, err := mgr.AddSecond(ctx, created.ID, "lead_02", "agree too")
	if err != nil {
		t.Fatalf("AddSecond: %v", err)
	}
	if got.Priority != topic.PriorityHigh {
		t.Fatalf("Priority = %v, want HIGH after two lead seconds", got.Priority)
	}
}

func TestSweepExpiredTopicsMarksExpired(t *testing.T) {
	st := newMockTopicStore()
	bus := inmembus.New()
	bus.RegisterMailbox("researcher_01")
	mgr := NewTopicManager(st, bus, roleOfForTest(nil))
	ctx := context.Background()

	created, _ := mgr.ProposeTopic(ctx, topic.Topic{
		Category: topic.CategoryStrategy, Title: "Stale idea", Proposer: "researcher_01", RequiredSeconds: 2,
	})
	past := time.Now().Add(-time.Hour)
	created.ExpiresAt = &past
	if err := st.UpdateTopic(ctx, created); err != nil {
		t.Fatalf("UpdateTopic: %v", err)
	}

	if err := mgr.SweepExpiredTopics(ctx); err != nil {
		t.Fatalf("SweepExpiredTopics: %v", err)
	}
	got, err := st.GetTopic(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTopic: %v", err)
	}
	if got.Status != topic.StatusExpired {
		t.Fatalf("Status = %v, want EXPIRED", got.Status)
	}
}
