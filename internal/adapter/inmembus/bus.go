// Package inmembus implements port/bus.Bus as the in-process MessageBus:
// mailboxes, channel-kind subscriptions, and ephemeral meeting rooms, all
// guarded by short per-aggregate critical sections. Grounded on the
// teacher's adapter/ws.Hub connection registry (mu-guarded map,
// Broadcast/BroadcastToTenant fan-out, remove-on-failure) generalized from
// websocket connections to per-agent mailboxes and from one fan-out shape
// to the six channel kinds spec.md §4.1 requires.
package inmembus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentorg/runtime/internal/domain/message"
	"github.com/agentorg/runtime/internal/port/bus"
)

// defaultHistoryCap is the FIFO-capped bound on per-mailbox buffering
// before the oldest message is dropped (spec default: 10,000).
const defaultHistoryCap = 10000

type mailbox struct {
	mu   sync.Mutex
	msgs []message.Message
	cond *sync.Cond
}

func newMailbox() *mailbox {
	mb := &mailbox{}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

func (mb *mailbox) push(m message.Message, cap int) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	dropped := false
	if len(mb.msgs) >= cap {
		mb.msgs = mb.msgs[1:]
		dropped = true
	}
	mb.msgs = append(mb.msgs, m)
	mb.cond.Broadcast()
	return dropped
}

// pop removes and returns up to maxN messages, blocking until at least one
// is available or the deadline passes.
func (mb *mailbox) pop(deadline time.Time, maxN int) []message.Message {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	for len(mb.msgs) == 0 && time.Now().Before(deadline) {
		timer := time.AfterFunc(time.Until(deadline), func() { mb.cond.Broadcast() })
		mb.cond.Wait()
		timer.Stop()
	}
	if len(mb.msgs) == 0 {
		return nil
	}
	n := maxN
	if n <= 0 || n > len(mb.msgs) {
		n = len(mb.msgs)
	}
	out := append([]message.Message(nil), mb.msgs[:n]...)
	mb.msgs = mb.msgs[n:]
	return out
}

func (mb *mailbox) peek(maxN int) []message.Message {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := maxN
	if n <= 0 || n > len(mb.msgs) {
		n = len(mb.msgs)
	}
	return append([]message.Message(nil), mb.msgs[:n]...)
}

type subscription struct {
	id           string
	subscriberID string
	channelKind  message.ChannelKind
	channelID    string
	cb           bus.Callback
	filter       bus.Filter
}

// Bus is the in-process MessageBus. Zero value is not usable; construct
// with New.
type Bus struct {
	mu            sync.RWMutex
	mailboxes     map[string]*mailbox
	subscriptions map[string]*subscription
	rooms         map[string]*message.Room
	historyCap    int
	stats         message.Stats

	bridge bridge // optional cross-process relay, nil in single-instance mode
}

// bridge is the subset of natsbus.Bridge the in-process bus drives when a
// cross-process relay is configured. Kept as a small local interface so
// this package has no import-time dependency on the nats client.
type bridge interface {
	Publish(ctx context.Context, m message.Message) error
}

// New constructs an empty Bus with the default history cap.
func New() *Bus {
	return &Bus{
		mailboxes:     make(map[string]*mailbox),
		subscriptions: make(map[string]*subscription),
		rooms:         make(map[string]*message.Room),
		historyCap:    defaultHistoryCap,
	}
}

// SetBridge attaches a cross-process relay; every locally produced message
// is additionally published to it. Pass nil to detach.
func (b *Bus) SetBridge(br bridge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bridge = br
}

func newID(prefix string) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(buf))
}

func (b *Bus) relay(ctx context.Context, m message.Message) {
	b.mu.RLock()
	br := b.bridge
	b.mu.RUnlock()
	if br == nil {
		return
	}
	if err := br.Publish(ctx, m); err != nil {
		slog.Warn("inmembus: bridge publish failed", "error", err)
	}
}

// RegisterMailbox creates a mailbox for agentID if one does not already
// exist.
func (b *Bus) RegisterMailbox(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mailboxes[agentID]; !ok {
		b.mailboxes[agentID] = newMailbox()
	}
}

func (b *Bus) deliver(agentID string, m message.Message) bool {
	b.mu.RLock()
	mb, ok := b.mailboxes[agentID]
	b.mu.RUnlock()
	if !ok {
		b.mu.Lock()
		b.stats.Failed++
		b.mu.Unlock()
		return false
	}
	if mb.push(m, b.historyCap) {
		b.mu.Lock()
		b.stats.Dropped++
		b.mu.Unlock()
	}
	b.mu.Lock()
	b.stats.Delivered++
	b.mu.Unlock()
	return true
}

// SendDirect appends to to's mailbox; failure (no mailbox) is counted in
// Stats but the call still returns the constructed Message.
func (b *Bus) SendDirect(ctx context.Context, from, to, subject, content string, kind message.Kind, meta map[string]any, priority message.Priority) (message.Message, error) {
	m := message.Message{
		ID: newID("msg"), ChannelKind: message.ChannelDirect, From: from, To: to,
		Subject: subject, Content: content, Kind: kind, Metadata: meta,
		Priority: priority, CreatedAt: time.Now(),
	}
	b.deliver(to, m)
	b.notifySubscribers(ctx, m)
	b.relay(ctx, m)
	return m, nil
}

// SendToGroup fans out to every mailbox subscribed under channelKind and
// channelID via Subscribe, honoring per-subscriber filters.
func (b *Bus) SendToGroup(ctx context.Context, channelKind message.ChannelKind, from, channelID, subject, content string, kind message.Kind, meta map[string]any, priority message.Priority) (message.Message, error) {
	m := message.Message{
		ID: newID("msg"), ChannelKind: channelKind, ChannelID: channelID, From: from,
		Subject: subject, Content: content, Kind: kind, Metadata: meta,
		Priority: priority, CreatedAt: time.Now(),
	}
	b.fanOutToGroup(ctx, channelKind, channelID, m)
	b.relay(ctx, m)
	return m, nil
}

// fanOutToGroup delivers m to every mailbox belonging to an agent
// subscribed to channelKind(+channelID), and invokes matching callbacks.
func (b *Bus) fanOutToGroup(ctx context.Context, channelKind message.ChannelKind, channelID string, m message.Message) {
	b.mu.RLock()
	var targets []*subscription
	for _, sub := range b.subscriptions {
		if sub.channelKind != channelKind {
			continue
		}
		if sub.channelID != "*" && sub.channelID != channelID {
			continue
		}
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	seen := make(map[string]struct{}, len(targets))
	for _, sub := range targets {
		if sub.filter != nil && !sub.filter(m) {
			continue
		}
		if _, ok := seen[sub.subscriberID]; !ok {
			seen[sub.subscriberID] = struct{}{}
			if sub.subscriberID != m.From {
				b.deliver(sub.subscriberID, m)
			}
		}
		b.invokeCallback(ctx, sub, m)
	}
}

func (b *Bus) invokeCallback(ctx context.Context, sub *subscription, m message.Message) {
	if sub.cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("inmembus: subscriber callback panicked", "subscriber", sub.subscriberID, "panic", r)
		}
	}()
	sub.cb(ctx, m)
}

// Broadcast delivers to every broadcast subscriber and to every registered
// mailbox except the sender's.
func (b *Bus) Broadcast(ctx context.Context, from, subject, content string, meta map[string]any) (message.Message, error) {
	m := message.Message{
		ID: newID("msg"), ChannelKind: message.ChannelBroadcast, From: from,
		Subject: subject, Content: content, Kind: message.KindAnnouncement, Metadata: meta,
		Priority: message.PriorityNormal, CreatedAt: time.Now(),
	}

	b.mu.RLock()
	recipients := make([]string, 0, len(b.mailboxes))
	for id := range b.mailboxes {
		if id != from {
			recipients = append(recipients, id)
		}
	}
	b.mu.RUnlock()
	for _, id := range recipients {
		b.deliver(id, m)
	}
	b.fanOutToGroup(ctx, message.ChannelBroadcast, "", m)
	b.relay(ctx, m)
	return m, nil
}

// SendSystem sends a fixed-priority system notification.
func (b *Bus) SendSystem(ctx context.Context, to, subject, content string) (message.Message, error) {
	m := message.Message{
		ID: newID("msg"), ChannelKind: message.ChannelSystem, From: "system", To: to,
		Subject: subject, Content: content, Kind: message.KindSystem,
		Priority: message.SystemPriority, CreatedAt: time.Now(),
	}
	b.deliver(to, m)
	b.relay(ctx, m)
	return m, nil
}

// CreateMeetingRoom is idempotent on id: calling it again for an existing
// active room returns the existing room unchanged.
func (b *Bus) CreateMeetingRoom(ctx context.Context, id, title, host string, participants []string) (message.Room, error) {
	b.mu.Lock()
	if existing, ok := b.rooms[id]; ok && existing.Active {
		room := *existing
		b.mu.Unlock()
		return room, nil
	}
	room := &message.Room{
		ID: id, Title: title, Host: host, Participants: participants,
		Active: true, StartedAt: time.Now(),
	}
	b.rooms[id] = room
	b.mu.Unlock()

	for _, p := range participants {
		_, _ = b.SendSystem(ctx, p, "Meeting scheduled: "+title, "You have been invited to meeting "+id)
	}
	return *room, nil
}

// SendToMeeting is a no-op if roomID is not active.
func (b *Bus) SendToMeeting(ctx context.Context, roomID, from, content string, kind message.Kind) (*message.Message, error) {
	b.mu.Lock()
	room, ok := b.rooms[roomID]
	if !ok || !room.Active {
		b.mu.Unlock()
		return nil, nil
	}
	m := message.Message{
		ID: newID("msg"), ChannelKind: message.ChannelMeeting, ChannelID: roomID, From: from,
		Content: content, Kind: kind, Priority: message.PriorityNormal, CreatedAt: time.Now(),
	}
	room.Transcript = append(room.Transcript, m)
	participants := append([]string(nil), room.Participants...)
	b.mu.Unlock()

	for _, p := range participants {
		if p != from {
			b.deliver(p, m)
		}
	}
	b.relay(ctx, m)
	return &m, nil
}

// AddMeetingArtifact attaches a typed artifact to an active room.
func (b *Bus) AddMeetingArtifact(ctx context.Context, roomID string, kind message.ArtifactKind, data any, title, presenter string) (message.Artifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room, ok := b.rooms[roomID]
	if !ok {
		return message.Artifact{}, fmt.Errorf("inmembus: unknown room %q", roomID)
	}
	a := message.Artifact{
		ID: newID("art"), RoomID: roomID, Kind: kind, Title: title,
		Data: data, Presenter: presenter, CreatedAt: time.Now(),
	}
	room.Artifacts = append(room.Artifacts, a)
	return a, nil
}

// EndMeeting finalizes and deactivates a room, retaining it for later
// GetRoom lookups.
func (b *Bus) EndMeeting(ctx context.Context, roomID string) (message.Room, error) {
	b.mu.Lock()
	room, ok := b.rooms[roomID]
	if !ok {
		b.mu.Unlock()
		return message.Room{}, fmt.Errorf("inmembus: unknown room %q", roomID)
	}
	now := time.Now()
	room.Active = false
	room.EndedAt = &now
	participants := append([]string(nil), room.Participants...)
	title := room.Title
	out := *room
	b.mu.Unlock()

	for _, p := range participants {
		_, _ = b.SendSystem(ctx, p, "Meeting ended: "+title, "Meeting "+roomID+" has concluded")
	}
	return out, nil
}

// GetRoom retrieves a room (active or ended) by id.
func (b *Bus) GetRoom(ctx context.Context, roomID string) (message.Room, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	room, ok := b.rooms[roomID]
	if !ok {
		return message.Room{}, false
	}
	return *room, true
}

// Subscribe registers a subscriber for channelKind(+channelID); channelID
// "*" matches every group under that kind.
func (b *Bus) Subscribe(subscriberID string, channelKind message.ChannelKind, channelID string, cb bus.Callback, filter bus.Filter) string {
	id := newID("sub")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions[id] = &subscription{
		id: id, subscriberID: subscriberID, channelKind: channelKind,
		channelID: channelID, cb: cb, filter: filter,
	}
	return id
}

// Unsubscribe cancels a previously registered subscription.
func (b *Bus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, subscriptionID)
}

// GetMessages pulls up to maxN messages for agentID within timeout,
// blocking until at least one is available or the timeout elapses.
func (b *Bus) GetMessages(ctx context.Context, agentID string, timeout time.Duration, maxN int) ([]message.Message, error) {
	b.mu.RLock()
	mb, ok := b.mailboxes[agentID]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmembus: no mailbox registered for %q", agentID)
	}

	deadline := time.Now().Add(timeout)
	done := make(chan []message.Message, 1)
	go func() { done <- mb.pop(deadline, maxN) }()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out, nil
	}
}

// PeekMessages is a non-destructive read of agentID's mailbox.
func (b *Bus) PeekMessages(agentID string, maxN int) []message.Message {
	b.mu.RLock()
	mb, ok := b.mailboxes[agentID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	return mb.peek(maxN)
}

// Stats returns bus-wide delivery counters.
func (b *Bus) Stats() message.Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// Close releases bus state. The in-process bus owns no external
// connections; a bridge, if attached, is closed by its owner.
func (b *Bus) Close() error {
	return nil
}

func (b *Bus) notifySubscribers(ctx context.Context, m message.Message) {
	b.mu.RLock()
	var targets []*subscription
	for _, sub := range b.subscriptions {
		if sub.channelKind == message.ChannelDirect && (sub.subscriberID == m.To || sub.channelID == "*") {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()
	for _, sub := range targets {
		if sub.filter != nil && !sub.filter(m) {
			continue
		}
		b.invokeCallback(ctx, sub, m)
	}
}

var _ bus.Bus = (*Bus)(nil)
