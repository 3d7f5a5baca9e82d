// Package session implements the per-connection handler: the
// join/sync handshake, op intake, broadcast fan-out, and the
// unsequenced cursor side-channel. Grounded on the teacher agent's
// Client/Hub pair (readPump/writePump plus a register/unregister/
// broadcast hub) — generalized here so the hub role is played by a
// room.Room (one per room, not one globally) and the per-connection
// role gains the join/mode/ack state machine spec.md's dispatcher
// requires.
package session

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"drawroom/internal/drawing"
	"drawroom/internal/room"
	"drawroom/internal/rooms"
	"drawroom/internal/validate"
)

// state is the dispatcher's own small state machine: unjoined ->
// joined -> disconnected.
type state int

const (
	stateUnjoined state = iota
	stateJoined
	stateDisconnected
)

// Sender abstracts the outbound half of a transport connection so the
// dispatcher's logic is testable without a real websocket.
type Sender interface {
	Send(payload []byte)
}

// Dispatcher is one connection's handler. It implements room.Conn so
// a Room can register it directly for local fan-out.
type Dispatcher struct {
	connID string
	sender Sender
	rooms  *rooms.Manager
	logger zerolog.Logger

	state  state
	room   *room.Room
	userID string
}

// New constructs a dispatcher for one freshly-accepted connection.
func New(connID string, sender Sender, manager *rooms.Manager, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		connID: connID,
		sender: sender,
		rooms:  manager,
		logger: logger,
		state:  stateUnjoined,
	}
}

// ConnID implements room.Conn.
func (d *Dispatcher) ConnID() string { return d.connID }

// Send implements room.Conn by delegating to the underlying transport.
func (d *Dispatcher) Send(payload []byte) { d.sender.Send(payload) }

// joinPayload is §6's join event payload.
type joinPayload struct {
	RoomID   string  `json:"roomId"`
	Name     string  `json:"name"`
	Mode     string  `json:"mode"`
	ClientID *string `json:"clientId"`
}

type joinAck struct {
	OK     bool       `json:"ok"`
	RoomID string     `json:"roomId,omitempty"`
	User   *room.User `json:"user,omitempty"`
	Err    string     `json:"err,omitempty"`
}

// HandleFrame routes one incoming frame to the matching handler and
// returns the ack bytes (if any) to send back directly to this
// connection. A join's sync frame is not returned: it is pushed
// through Send before the join ack is returned.
func (d *Dispatcher) HandleFrame(raw []byte) []byte {
	var frame room.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return room.EncodeFrame("error", map[string]string{"err": "malformed frame"})
	}

	switch frame.Event {
	case "join":
		return d.handleJoin(frame)
	case "msg":
		return d.handleOp(frame)
	case "cursor":
		d.handleCursor(frame)
		return nil
	default:
		return d.ackError(frame.ID, frame.Event, fmt.Sprintf("unknown event %q", frame.Event))
	}
}

func (d *Dispatcher) ack(id, event string, payload any) []byte {
	data, _ := json.Marshal(payload)
	out, _ := json.Marshal(room.Frame{Event: event + ":ack", ID: id, Payload: data})
	return out
}

func (d *Dispatcher) ackError(id, event, msg string) []byte {
	return d.ack(id, event, map[string]any{"ok": false, "err": msg})
}

func (d *Dispatcher) handleJoin(frame room.Frame) []byte {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.RoomID == "" {
		return d.ackError(frame.ID, "join", "join requires a roomId")
	}

	userID := d.connID
	if payload.ClientID != nil && *payload.ClientID != "" {
		userID = truncate(*payload.ClientID, 64)
	}

	name := strings.TrimSpace(payload.Name)
	name = truncate(name, 32)
	if name == "" {
		idPrefix := userID
		if len(idPrefix) > 4 {
			idPrefix = idPrefix[:4]
		}
		name = "User-" + idPrefix
	}

	mode := room.ModeEdit
	if payload.Mode == string(room.ModeView) {
		mode = room.ModeView
	}

	r := d.rooms.GetOrCreate(payload.RoomID)
	d.room = r
	d.userID = userID
	d.state = stateJoined

	user := r.AddUser(d.connID, userID, name, mode)
	r.Register(d)

	r.BroadcastPresence("user_joined", d.connID, map[string]*room.User{"user": user})

	sync := r.Snapshot()
	syncData, _ := json.Marshal(sync)
	syncFrame, _ := json.Marshal(room.Frame{Event: "sync", Payload: syncData})
	d.Send(syncFrame)

	return d.ack(frame.ID, "join", joinAck{OK: true, RoomID: r.ID(), User: user})
}

func (d *Dispatcher) handleOp(frame room.Frame) []byte {
	if d.state != stateJoined {
		return d.ackError(frame.ID, "msg", "not joined")
	}
	mode, ok := d.room.UserMode(d.connID)
	if !ok {
		return d.ackError(frame.ID, "msg", "user not found in room")
	}

	op, err := validate.Op(frame.Payload)
	if err != nil {
		d.logger.Debug().Err(err).Str("conn", d.connID).Msg("rejected malformed op")
		return d.ackError(frame.ID, "msg", err.Error())
	}
	if mode == room.ModeView && isWriteOp(op.Type) {
		return d.ackError(frame.ID, "msg", "view-mode users cannot draw")
	}

	env, noOp, err := d.room.ApplyOp(d.userID, op)
	if err != nil {
		d.logger.Debug().Err(err).Str("conn", d.connID).Str("op", string(op.Type)).Msg("op rejected by drawing state")
		return d.ackError(frame.ID, "msg", err.Error())
	}
	if noOp {
		return d.ack(frame.ID, "msg", map[string]any{"ok": true, "noOp": true})
	}
	return d.ack(frame.ID, "msg", map[string]any{"ok": true, "seq": env.Seq})
}

func isWriteOp(t drawing.OpType) bool {
	switch t {
	case drawing.OpStrokeStart, drawing.OpStrokePoints, drawing.OpStrokeEnd, drawing.OpUndo, drawing.OpRedo:
		return true
	}
	return false
}

type cursorPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (d *Dispatcher) handleCursor(frame room.Frame) {
	if d.state != stateJoined {
		return
	}
	var payload cursorPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return
	}
	if math.IsNaN(payload.X) || math.IsInf(payload.X, 0) || math.IsNaN(payload.Y) || math.IsInf(payload.Y, 0) {
		return
	}
	d.room.BroadcastCursor(d.connID, d.userID, payload.X, payload.Y)
}

// Disconnect tears down the connection: removes the user from the
// room, notifies the remaining members, and asks the Rooms Manager to
// clean up the room if that was its last member.
func (d *Dispatcher) Disconnect() {
	if d.state != stateJoined {
		d.state = stateDisconnected
		return
	}
	d.state = stateDisconnected
	d.room.Unregister(d.connID)
	if userID, ok := d.room.RemoveUser(d.connID); ok {
		d.room.BroadcastPresence("user_left", d.connID, map[string]string{"userId": userID})
	}
	d.rooms.Cleanup(d.room.ID())
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
