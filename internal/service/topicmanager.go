package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/agentorg/runtime/internal/adapter/otel"
	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/domain/message"
	"github.com/agentorg/runtime/internal/domain/topic"
	"github.com/agentorg/runtime/internal/port/bus"
	"github.com/agentorg/runtime/internal/port/store"
)

// TopicManager runs the seconding/escalation protocol of spec.md §4.6,
// grounded on original_source/orchestrator/topic_meeting.py's
// TopicMeetingSystem (required-seconds table, priority-driven scheduling
// lead time, lead/director auto-escalation) re-expressed over
// domain/topic.Topic and serialized per-topic the way the teacher
// serializes per-aggregate state in service/runtime.go (a mutex keyed by
// aggregate id rather than one global lock).
type TopicManager struct {
	store   store.TopicStore
	bus     bus.Bus
	roleOf  func(agentID string) agent.RoleKind
	metrics *otel.Metrics

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewTopicManager constructs a TopicManager. roleOf resolves an agent id to
// its RoleKind, used by the lead/director auto-escalation rule.
func NewTopicManager(st store.TopicStore, b bus.Bus, roleOf func(string) agent.RoleKind) *TopicManager {
	return &TopicManager{store: st, bus: b, roleOf: roleOf, locks: make(map[string]*sync.Mutex)}
}

// SetMetrics attaches an OTEL metrics instrument set. Pass nil to disable.
func (m *TopicManager) SetMetrics(metrics *otel.Metrics) {
	m.metrics = metrics
}

func (m *TopicManager) lockFor(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// ProposeTopic creates and persists a new Topic. If t.RequiredSeconds is
// zero (emergency category) the topic is scheduled immediately, with no
// seconding required.
func (m *TopicManager) ProposeTopic(ctx context.Context, t topic.Topic) (*topic.Topic, error) {
	now := time.Now()
	t.ID = newTopicID()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = topic.StatusSeconding
	}
	if err := m.store.CreateTopic(ctx, &t); err != nil {
		return nil, fmt.Errorf("topicmanager: create topic: %w", err)
	}
	if t.RequiredSeconds == 0 {
		if err := m.scheduleMeeting(ctx, &t); err != nil {
			return &t, err
		}
	}
	return &t, nil
}

// AddSecond records supporterID's endorsement of topicID per spec.md §4.6:
// the proposer cannot second their own topic, duplicate seconds are a
// no-op, and reaching the required-seconds threshold transitions the topic
// to SCHEDULED and invokes scheduleMeeting.
func (m *TopicManager) AddSecond(ctx context.Context, topicID, supporterID, reason string) (*topic.Topic, error) {
	lock := m.lockFor(topicID)
	lock.Lock()
	defer lock.Unlock()

	t, err := m.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("topicmanager: get topic: %w", err)
	}
	if supporterID == t.Proposer {
		return t, fmt.Errorf("topicmanager: proposer cannot second their own topic")
	}
	if t.HasSeconded(supporterID) {
		return t, nil
	}

	t.Seconds = append(t.Seconds, topic.Second{AgentID: supporterID, Reason: reason, CreatedAt: time.Now()})
	t.UpdatedAt = time.Now()

	m.applyAutoEscalation(t)

	if t.Status == topic.StatusSeconding && t.ReadyToSchedule() {
		if err := m.scheduleMeeting(ctx, t); err != nil {
			return t, err
		}
	} else if err := m.store.UpdateTopic(ctx, t); err != nil {
		return t, fmt.Errorf("topicmanager: update topic: %w", err)
	}
	return t, nil
}

// applyAutoEscalation promotes priority per spec.md §4.6: >=2 lead seconds
// promote to HIGH, a single director second promotes to URGENT. Extending
// expiry accordingly.
func (m *TopicManager) applyAutoEscalation(t *topic.Topic) {
	if m.roleOf == nil {
		return
	}
	leadSeconds, directorSeconds := 0, 0
	for _, s := range t.Seconds {
		switch m.roleOf(s.AgentID) {
		case agent.RoleLead:
			leadSeconds++
		case agent.RoleDirector:
			directorSeconds++
		}
	}
	if directorSeconds >= 1 && t.Priority != topic.PriorityUrgent && t.Priority != topic.PriorityCritical {
		t.Priority = topic.PriorityUrgent
		m.extendExpiry(t)
		return
	}
	if topic.LeadThresholdMet(leadSeconds) && t.Priority == topic.PriorityNormal {
		t.Priority = topic.PriorityHigh
		m.extendExpiry(t)
	}
}

func (m *TopicManager) extendExpiry(t *topic.Topic) {
	lead := leadTime(t.Priority)
	deadline := time.Now().Add(lead)
	t.ExpiresAt = &deadline
}

// scheduleMeeting transitions t to SCHEDULED, sets scheduled-at based on
// priority, and creates the bus meeting room with proposer ∪ seconders ∪
// suggested participants.
func (m *TopicManager) scheduleMeeting(ctx context.Context, t *topic.Topic) error {
	t.Status = topic.StatusScheduled
	scheduledAt := time.Now().Add(leadTime(t.Priority))
	t.ScheduledAt = &scheduledAt

	participants := map[string]struct{}{t.Proposer: {}}
	for _, s := range t.Seconds {
		participants[s.AgentID] = struct{}{}
	}
	for _, p := range t.SuggestedParticipants {
		participants[p] = struct{}{}
	}
	list := make([]string, 0, len(participants))
	for p := range participants {
		list = append(list, p)
	}

	if err := m.store.UpdateTopic(ctx, t); err != nil {
		return fmt.Errorf("topicmanager: update topic: %w", err)
	}
	if m.bus != nil {
		if _, err := m.bus.CreateMeetingRoom(ctx, "topic_"+t.ID, t.Title, t.Proposer, list); err != nil {
			return fmt.Errorf("topicmanager: create meeting room: %w", err)
		}
	}
	if m.metrics != nil {
		m.metrics.TopicsEscalated.Add(ctx, 1)
	}
	return nil
}

// leadTime maps topic priority to scheduling lead time (spec.md §4.6).
func leadTime(p topic.Priority) time.Duration {
	switch p {
	case topic.PriorityCritical:
		return 15 * time.Minute
	case topic.PriorityUrgent:
		return time.Hour
	case topic.PriorityHigh:
		return 4 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// RejectTopic marks t rejected with a resolution note, e.g. on expiry sweep
// or explicit chairman rejection.
func (m *TopicManager) RejectTopic(ctx context.Context, topicID, reason string) error {
	lock := m.lockFor(topicID)
	lock.Lock()
	defer lock.Unlock()

	t, err := m.store.GetTopic(ctx, topicID)
	if err != nil {
		return fmt.Errorf("topicmanager: get topic: %w", err)
	}
	t.Status = topic.StatusRejected
	t.Resolution = reason
	t.UpdatedAt = time.Now()
	if err := m.store.UpdateTopic(ctx, t); err != nil {
		return fmt.Errorf("topicmanager: update topic: %w", err)
	}
	return nil
}

// ResolveTopic marks t resolved with a resolution and action items.
func (m *TopicManager) ResolveTopic(ctx context.Context, topicID, resolution string, actionItems []string) error {
	lock := m.lockFor(topicID)
	lock.Lock()
	defer lock.Unlock()

	t, err := m.store.GetTopic(ctx, topicID)
	if err != nil {
		return fmt.Errorf("topicmanager: get topic: %w", err)
	}
	t.Status = topic.StatusResolved
	t.Resolution = resolution
	t.ActionItems = actionItems
	t.UpdatedAt = time.Now()
	return m.store.UpdateTopic(ctx, t)
}

// SweepExpiredTopics auto-expires topics still in DRAFT/PROPOSED/SECONDING
// past their ExpiresAt, notifying the proposer.
func (m *TopicManager) SweepExpiredTopics(ctx context.Context) error {
	for _, status := range []topic.Status{topic.StatusDraft, topic.StatusProposed, topic.StatusSeconding} {
		topics, err := m.store.ListTopics(ctx, status)
		if err != nil {
			return fmt.Errorf("topicmanager: list topics: %w", err)
		}
		now := time.Now()
		for _, t := range topics {
			if t.ExpiresAt == nil || now.Before(*t.ExpiresAt) {
				continue
			}
			t.Status = topic.StatusExpired
			t.UpdatedAt = now
			if err := m.store.UpdateTopic(ctx, t); err != nil {
				return fmt.Errorf("topicmanager: expire topic: %w", err)
			}
			if m.bus != nil {
				_, _ = m.bus.SendDirect(ctx, "topicmanager", t.Proposer, "Topic expired: "+t.Title, "",
					message.KindSystem, nil, message.PriorityNormal)
			}
		}
	}
	return nil
}

func newTopicID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return "topic_" + hex.EncodeToString(buf)
}
