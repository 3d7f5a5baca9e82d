// Package reorder is the client-side counterpart to the server's
// per-room sequence counter: it buffers out-of-order envelopes until
// a contiguous run arrives, then applies them to a local mirror of
// the drawing state. Shipped as an importable package (rather than
// folded into a UI) so both a reference CLI client and tests can
// exercise it, since the actual browser/canvas consumer is out of
// scope for this service.
package reorder

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"drawroom/internal/drawing"
	"drawroom/internal/room"
)

// Envelope is the decoded form of a server "op" frame.
type Envelope struct {
	Seq uint64     `json:"seq"`
	Op  drawing.Op `json:"op"`
	By  string     `json:"by"`
	Ts  int64      `json:"ts"`
}

// Buffer mirrors one room's drawing state on the consumer side.
type Buffer struct {
	expectedSeq uint64
	pending     map[uint64]Envelope
	mirror      *drawing.State
	logger      zerolog.Logger
}

// New constructs an empty buffer. Call OnSync before feeding it any
// envelopes — until then expectedSeq is zero and every envelope would
// be buffered as "future".
func New(logger zerolog.Logger) *Buffer {
	return &Buffer{
		pending: make(map[uint64]Envelope),
		mirror:  drawing.New(),
		logger:  logger,
	}
}

// Mirror exposes the underlying drawing state for rendering.
func (b *Buffer) Mirror() *drawing.State { return b.mirror }

// ExpectedSeq reports the next sequence number the buffer is waiting
// on; exported for tests and for the scenario in spec.md §8.5.
func (b *Buffer) ExpectedSeq() uint64 { return b.expectedSeq }

// OnSync resets the buffer to a fresh sync snapshot: expectedSeq
// becomes sync.Seq+1, any buffered envelopes are discarded, and the
// mirror is seeded with the snapshot's committed/in-progress strokes
// and undone set.
func (b *Buffer) OnSync(sync room.SyncPayload) {
	b.expectedSeq = sync.Seq + 1
	b.pending = make(map[uint64]Envelope)

	snap := drawing.PersistenceSnapshot{
		Seq:            sync.Seq,
		Strokes:        sync.Strokes,
		Undone:         sync.Undone,
		CommittedOrder: committedOrderFrom(sync.Strokes),
	}
	b.mirror = drawing.New()
	b.mirror.Restore(snap)
	for _, stroke := range sync.InProgress {
		b.mirror.ApplyMirror(stroke.UserID, drawing.Op{
			Type:  drawing.OpStrokeStart,
			ID:    stroke.ID,
			Tool:  stroke.Tool,
			Color: stroke.Color,
			Width: stroke.Width,
			X:     firstX(stroke),
			Y:     firstY(stroke),
		})
		if len(stroke.Points) > 1 {
			b.mirror.ApplyMirror(stroke.UserID, drawing.Op{
				Type:   drawing.OpStrokePoints,
				ID:     stroke.ID,
				Points: stroke.Points[1:],
			})
		}
	}
}

func committedOrderFrom(strokes []*drawing.Stroke) []string {
	order := make([]string, 0, len(strokes))
	for _, s := range strokes {
		order = append(order, s.ID)
	}
	return order
}

func firstX(s *drawing.Stroke) float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[0].X
}

func firstY(s *drawing.Stroke) float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[0].Y
}

// OnEnvelope handles one arrival per §4.7: duplicates/pre-sync
// leftovers are discarded, future envelopes are buffered, and an
// in-order arrival is applied and drains any now-contiguous run.
func (b *Buffer) OnEnvelope(env Envelope) {
	switch {
	case env.Seq < b.expectedSeq:
		return
	case env.Seq > b.expectedSeq:
		b.pending[env.Seq] = env
		return
	default:
		b.applyAndAdvance(env)
	}
}

func (b *Buffer) applyAndAdvance(env Envelope) {
	b.apply(env)
	b.expectedSeq++
	for {
		next, ok := b.pending[b.expectedSeq]
		if !ok {
			return
		}
		delete(b.pending, b.expectedSeq)
		b.apply(next)
		b.expectedSeq++
	}
}

func (b *Buffer) apply(env Envelope) {
	_, err := b.mirror.ApplyMirror(env.By, env.Op)
	if err == drawing.ErrUnknownStrokeMirror {
		b.logger.Debug().Str("strokeId", env.Op.ID).Msg("mirror dropped stroke_points for unknown stroke")
		return
	}
	if err != nil {
		b.logger.Warn().Err(err).Str("strokeId", env.Op.ID).Msg("mirror apply returned unexpected error")
	}
}

// DecodeEnvelope parses a server "op" frame's payload.
func DecodeEnvelope(payload json.RawMessage) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(payload, &env)
	return env, err
}
