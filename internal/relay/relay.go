// Package relay is the cross-instance broadcast fabric. When more
// than one server process serves the same room, each process
// publishes its locally-produced envelopes and cursor updates to a
// per-room Redis channel and re-broadcasts whatever the others
// publish to its own local connections. It is grounded directly on
// the teacher's server/main.go, which subscribed to a per-document
// Redis channel and relayed Redis messages onto the websocket;
// generalized here into a room-keyed, two-channel (envelope +
// cursor) relay instead of one channel per document.
package relay

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func envelopeChannel(roomID string) string { return fmt.Sprintf("drawroom:op:%s", roomID) }
func cursorChannel(roomID string) string   { return fmt.Sprintf("drawroom:cursor:%s", roomID) }

// Relay wraps a Redis client used purely for pub/sub fan-out; it
// stores no durable state.
type Relay struct {
	client *redis.Client
	logger zerolog.Logger
}

// New connects to addr and verifies reachability with a ping.
func New(ctx context.Context, addr string, logger zerolog.Logger) (*Relay, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Relay{client: client, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (r *Relay) Close() error {
	return r.client.Close()
}

// PublishEnvelope fans a sequenced envelope out to sibling instances.
func (r *Relay) PublishEnvelope(ctx context.Context, roomID string, payload []byte) {
	if err := r.client.Publish(ctx, envelopeChannel(roomID), payload).Err(); err != nil {
		r.logger.Warn().Err(err).Str("room", roomID).Msg("relay: envelope publish failed")
	}
}

// PublishCursor fans an unsequenced cursor update out to sibling
// instances. Never retried — cursor updates are inherently stale by
// the time a retry would land.
func (r *Relay) PublishCursor(ctx context.Context, roomID string, payload []byte) {
	if err := r.client.Publish(ctx, cursorChannel(roomID), payload).Err(); err != nil {
		r.logger.Warn().Err(err).Str("room", roomID).Msg("relay: cursor publish failed")
	}
}

// Subscription delivers both kinds of relayed message for one room.
type Subscription struct {
	Envelopes <-chan []byte
	Cursors   <-chan []byte
	Close     func()
}

// Subscribe opens a subscription to both of a room's channels. The
// returned channels are closed when Close is called or the underlying
// connection drops.
func (r *Relay) Subscribe(ctx context.Context, roomID string) *Subscription {
	pubsub := r.client.Subscribe(ctx, envelopeChannel(roomID), cursorChannel(roomID))

	envelopes := make(chan []byte, 64)
	cursors := make(chan []byte, 64)
	stop := make(chan struct{})

	go func() {
		defer close(envelopes)
		defer close(cursors)
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				payload := []byte(msg.Payload)
				switch msg.Channel {
				case envelopeChannel(roomID):
					select {
					case envelopes <- payload:
					default:
					}
				case cursorChannel(roomID):
					select {
					case cursors <- payload:
					default:
					}
				}
			case <-stop:
				return
			}
		}
	}()

	return &Subscription{
		Envelopes: envelopes,
		Cursors:   cursors,
		Close: func() {
			close(stop)
			pubsub.Close()
		},
	}
}
