package room

import (
	"context"
	"encoding/json"
	"time"
)

// Frame is the on-the-wire envelope for every message exchanged over
// the session transport, push or ack alike. ID is only populated for
// ack-style responses correlating to a client-issued request id.
type Frame struct {
	Event   string          `json:"event"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeFrame marshals an event/payload pair into wire bytes.
func EncodeFrame(event string, payload any) []byte {
	data, _ := json.Marshal(payload)
	frame, _ := json.Marshal(Frame{Event: event, Payload: data})
	return frame
}

func encodeEnvelope(env *Envelope) []byte {
	return EncodeFrame("op", env)
}

// CursorPayload is the unsequenced, unvalidated-beyond-finiteness
// presence side-channel message. It never touches seq or any
// invariant in package drawing.
type CursorPayload struct {
	UserID string  `json:"userId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

func encodeCursor(cursor CursorPayload) []byte {
	return EncodeFrame("cursor", cursor)
}

// BroadcastCursor fans a cursor update out to every other local
// member (never the sender) and, if a relay is configured, to
// sibling instances. No sequence number, no persistence, no state
// mutation — invariant 7.
func (r *Room) BroadcastCursor(senderConnID, userID string, x, y float64) {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for connID, c := range r.conns {
		if connID == senderConnID {
			continue
		}
		conns = append(conns, c)
	}
	r.mu.Unlock()

	payload := encodeCursor(CursorPayload{UserID: userID, X: x, Y: y})
	for _, c := range conns {
		c.Send(payload)
	}
	if r.deps.Relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		r.deps.Relay.PublishCursor(ctx, r.id, payload)
		cancel()
	}
}

// publishRelay fans a sequenced envelope out to sibling instances.
func (r *Room) publishRelay(env *Envelope) {
	if r.deps.Relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.deps.Relay.PublishEnvelope(ctx, r.id, encodeEnvelope(env))
}

// ReceiveRelayed delivers a frame that originated on a sibling
// instance to this instance's own local connections only; it is never
// republished, which would otherwise echo forever between instances.
func (r *Room) ReceiveRelayed(frame []byte) {
	r.mu.Lock()
	conns := r.snapshotConnsLocked()
	r.mu.Unlock()
	for _, c := range conns {
		c.Send(frame)
	}
}

// BroadcastPresence fans a user_joined/user_left frame out to every
// local member except the subject's own connection (the dispatcher
// acks the subject separately).
func (r *Room) BroadcastPresence(event string, excludeConnID string, payload any) {
	frame := EncodeFrame(event, payload)

	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for connID, c := range r.conns {
		if connID == excludeConnID {
			continue
		}
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Send(frame)
	}
}
