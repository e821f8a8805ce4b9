// Package natsbus bridges the in-process MessageBus (adapter/inmembus)
// across multiple runtime instances over NATS JetStream. It is optional:
// a single-instance deployment never constructs one. Grounded almost
// verbatim on the teacher's adapter/nats/nats.go connect/publish/subscribe/
// drain/DLQ pattern, with subjects renamed from CodeForge's tasks.*/runs.*
// taxonomy to the spec's channel kinds and payloads switched from raw task
// JSON to serialized message.Message envelopes.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/agentorg/runtime/internal/domain/message"
	"github.com/agentorg/runtime/internal/resilience"
)

const (
	streamName       = "ORGRUN"
	headerRetryCount = "Retry-Count"
	maxRetries       = 3
	nakDelay         = 2 * time.Second
)

// Bridge relays Message envelopes to and from a NATS JetStream stream so
// multiple runtime processes can share department/team/broadcast traffic.
type Bridge struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	breaker *resilience.Breaker
}

// Connect establishes a connection to NATS and ensures the bridge stream
// exists, capturing the bus.> subject wildcard. It creates no consumer;
// Subscribe does that.
func Connect(ctx context.Context, url string) (*Bridge, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("natsbus connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natsbus jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"bus.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natsbus stream create: %w", err)
	}

	slog.Info("natsbus connected", "url", url, "stream", streamName)
	return &Bridge{nc: nc, js: js}, nil
}

// SetBreaker attaches a circuit breaker to the publish path.
func (b *Bridge) SetBreaker(breaker *resilience.Breaker) {
	b.breaker = breaker
}

// subject derives the NATS subject a message travels on from its channel
// kind/id, e.g. "bus.department.alpha_a" or "bus.broadcast".
func subject(m message.Message) string {
	if m.ChannelID == "" {
		return fmt.Sprintf("bus.%s", m.ChannelKind)
	}
	return fmt.Sprintf("bus.%s.%s", m.ChannelKind, m.ChannelID)
}

// Publish relays a locally-produced message to other runtime instances.
func (b *Bridge) Publish(ctx context.Context, m message.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("natsbus marshal: %w", err)
	}
	natsMsg := &nats.Msg{Subject: subject(m), Data: data}

	publish := func() error {
		_, err := b.js.PublishMsg(ctx, natsMsg)
		if err != nil {
			return fmt.Errorf("natsbus publish %s: %w", natsMsg.Subject, err)
		}
		return nil
	}
	if b.breaker != nil {
		return b.breaker.Execute(publish)
	}
	return publish()
}

// Handler processes a relayed message from another instance.
type Handler func(ctx context.Context, m message.Message) error

// Subscribe relays inbound messages on channelKind(.channelID) to handler.
// Failed handler invocations are retried up to maxRetries, then moved to a
// dead-letter subject.
func (b *Bridge) Subscribe(ctx context.Context, filterSubject string, handler Handler) (func(), error) {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("natsbus consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(natsMsg jetstream.Msg) {
		var m message.Message
		if err := json.Unmarshal(natsMsg.Data(), &m); err != nil {
			slog.Error("natsbus: invalid message payload", "subject", natsMsg.Subject(), "error", err)
			b.moveToDLQ(ctx, natsMsg)
			return
		}

		if err := handler(ctx, m); err != nil {
			retries := retryCount(natsMsg.Headers())
			if md, mdErr := natsMsg.Metadata(); mdErr == nil && int(md.NumDelivered)-1 > retries {
				retries = int(md.NumDelivered) - 1
			}
			slog.Error("natsbus: handler failed", "subject", natsMsg.Subject(), "retry", retries, "error", err)
			if retries >= maxRetries {
				b.moveToDLQ(ctx, natsMsg)
				return
			}
			if nakErr := natsMsg.NakWithDelay(nakDelay); nakErr != nil {
				slog.Error("natsbus: nak failed", "error", nakErr)
			}
			return
		}
		if ackErr := natsMsg.Ack(); ackErr != nil {
			slog.Error("natsbus: ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("natsbus consume: %w", err)
	}
	return cons.Stop, nil
}

func (b *Bridge) moveToDLQ(ctx context.Context, msg jetstream.Msg) {
	dlqSubject := msg.Subject() + ".dlq"
	dlqMsg := &nats.Msg{Subject: dlqSubject, Data: msg.Data()}
	if hdrs := msg.Headers(); hdrs != nil {
		dlqMsg.Header = hdrs
	}
	if _, err := b.js.PublishMsg(ctx, dlqMsg); err != nil {
		slog.Error("natsbus: failed to publish to DLQ", "dlq_subject", dlqSubject, "error", err)
	} else {
		slog.Warn("natsbus: message moved to DLQ", "subject", msg.Subject(), "dlq_subject", dlqSubject)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("natsbus: ack (dlq) failed", "error", ackErr)
	}
}

func retryCount(hdrs nats.Header) int {
	if hdrs == nil {
		return 0
	}
	val := hdrs.Get(headerRetryCount)
	if val == "" {
		return 0
	}
	n, _ := strconv.Atoi(val)
	return n
}

// Drain gracefully drains pending messages then closes the connection.
func (b *Bridge) Drain() error {
	if err := b.nc.Drain(); err != nil {
		return fmt.Errorf("natsbus drain: %w", err)
	}
	for b.nc.IsConnected() {
	}
	return nil
}

// Close shuts the connection down immediately.
func (b *Bridge) Close() error {
	b.nc.Close()
	return nil
}

// IsConnected reports whether the bridge's NATS connection is active.
func (b *Bridge) IsConnected() bool {
	return b.nc.IsConnected()
}
