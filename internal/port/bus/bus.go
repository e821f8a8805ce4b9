// Package bus defines the MessageBus port: the contract for in-process
// pub/sub across direct, broadcast, department, team, meeting, and system
// channels. Grounded on the teacher's port/messagequeue.Queue (context-
// first, error-returning method shape) merged with port/broadcast.
// Broadcaster, since the spec treats channel-kind as a parameter rather
// than a separate port.
package bus

import (
	"context"
	"time"

	"github.com/agentorg/runtime/internal/domain/message"
)

// Callback is invoked for each message delivered to a subscription.
// Implementations must not block delivery; panics are caught by the bus
// and logged, never propagated to the sender.
type Callback func(ctx context.Context, msg message.Message)

// Filter is an optional per-subscriber predicate; nil means "accept all".
type Filter func(msg message.Message) bool

// Bus is the port interface implemented by inmembus (core, always present)
// and optionally bridged cross-process by natsbus.
type Bus interface {
	// SendDirect appends to the receiver's mailbox. Fails silently (counted
	// in Stats) if the receiver has no mailbox.
	SendDirect(ctx context.Context, from, to, subject, content string, kind message.Kind, meta map[string]any, priority message.Priority) (message.Message, error)

	// SendToGroup fans out to every subscriber matching channelKind+channelID.
	SendToGroup(ctx context.Context, channelKind message.ChannelKind, from, channelID, subject, content string, kind message.Kind, meta map[string]any, priority message.Priority) (message.Message, error)

	// Broadcast delivers to every broadcast subscriber and every registered
	// mailbox except the sender's.
	Broadcast(ctx context.Context, from, subject, content string, meta map[string]any) (message.Message, error)

	// SendSystem sends a fixed-priority system notification.
	SendSystem(ctx context.Context, to, subject, content string) (message.Message, error)

	// CreateMeetingRoom is idempotent on id; notifies participants via a
	// system message and records the room start time.
	CreateMeetingRoom(ctx context.Context, id, title, host string, participants []string) (message.Room, error)

	// SendToMeeting is a no-op if the room is not active; appends to the
	// transcript and fans out to participants except the sender.
	SendToMeeting(ctx context.Context, roomID, from, content string, kind message.Kind) (*message.Message, error)

	// AddMeetingArtifact attaches a typed artifact to a room.
	AddMeetingArtifact(ctx context.Context, roomID string, kind message.ArtifactKind, data any, title, presenter string) (message.Artifact, error)

	// EndMeeting finalizes the transcript, notifies participants, removes
	// the room from the active set, and retains it for later retrieval.
	EndMeeting(ctx context.Context, roomID string) (message.Room, error)

	// GetRoom retrieves a room (active or ended) by id.
	GetRoom(ctx context.Context, roomID string) (message.Room, bool)

	// Subscribe registers a subscriber for a channel kind/id; returns a
	// subscription id usable with Unsubscribe.
	Subscribe(subscriberID string, channelKind message.ChannelKind, channelID string, cb Callback, filter Filter) string

	// Unsubscribe cancels a previously registered subscription.
	Unsubscribe(subscriptionID string)

	// RegisterMailbox creates a mailbox for agentID so it can receive
	// direct/broadcast/group messages.
	RegisterMailbox(agentID string)

	// GetMessages pulls up to maxN messages for agentID within timeout.
	GetMessages(ctx context.Context, agentID string, timeout time.Duration, maxN int) ([]message.Message, error)

	// PeekMessages is a non-destructive read of the agent's mailbox.
	PeekMessages(agentID string, maxN int) []message.Message

	// Stats returns bus-wide delivery counters.
	Stats() message.Stats

	// Close shuts the bus down, releasing any bridged connections.
	Close() error
}
