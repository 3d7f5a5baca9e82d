// Package room implements the per-room membership, sequence counter,
// throttled persistence trigger, and local+cross-instance broadcast
// fan-out that binds a single drawing.State to a room id. It is the
// one place in this service where the per-room serialization domain
// lives: every mutation to users, seq, or the drawing state happens
// under a single mutex, grounded on the teacher agent's Hub — whose
// register/unregister/broadcast channel trio is generalized here into
// mutex-guarded methods on Room itself, matching the lock-then-copy
// idiom used by the pack's other mutex-guarded state managers (e.g.
// MyLocalBoard's SpaceManager).
package room

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"drawroom/internal/activity"
	"drawroom/internal/drawing"
	"drawroom/internal/relay"
	"drawroom/internal/roomindex"
	"drawroom/internal/store"
)

// Mode is a room membership's write permission.
type Mode string

const (
	ModeEdit Mode = "edit"
	ModeView Mode = "view"
)

// persistInterval is the throttle window for maybePersist.
const persistInterval = 2 * time.Second

// palette is the fixed set of distinct colors handed out to joining
// users, swept in order before falling back to a random pick.
var palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
}

// User is one connected room member.
type User struct {
	ConnID string `json:"connId"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Mode   Mode   `json:"mode"`
}

// Envelope is the unit of sequenced replication broadcast to clients.
type Envelope struct {
	Seq uint64     `json:"seq"`
	Op  drawing.Op `json:"op"`
	By  string     `json:"by"`
	Ts  int64      `json:"ts"`
}

// SyncPayload is the full state handed to a joining or reconnecting
// client: enough to render the scene and seed a reorder buffer.
type SyncPayload struct {
	RoomID     string            `json:"roomId"`
	Seq        uint64            `json:"seq"`
	Users      []*User           `json:"users"`
	Strokes    []*drawing.Stroke `json:"strokes"`
	Undone     []string          `json:"undone"`
	InProgress []*drawing.Stroke `json:"inProgress"`
}

// Conn is anything the dispatcher registers with a Room so it can
// receive fanned-out bytes: envelopes, presence, and cursor frames.
type Conn interface {
	ConnID() string
	Send(payload []byte)
}

// Deps are the optional side-channel dependencies a Room may be
// constructed with. Every field may be nil; a nil dependency is
// simply skipped wherever it would have been used.
type Deps struct {
	Store    *store.Store
	Index    *roomindex.Index
	Activity *activity.Log
	Relay    *relay.Relay
	Logger   zerolog.Logger
}

// Room binds one drawing.State to an id, plus membership, the
// sequence counter, and the optional side channels.
type Room struct {
	mu sync.Mutex

	id          string
	state       *drawing.State
	seq         uint64
	lastPersist time.Time
	users       map[string]*User
	conns       map[string]Conn

	deps Deps
}

// New constructs a Room seeded with an existing drawing.State (e.g.
// freshly restored from disk) and its restored sequence number.
func New(id string, state *drawing.State, seq uint64, deps Deps) *Room {
	return &Room{
		id:    id,
		state: state,
		seq:   seq,
		users: make(map[string]*User),
		conns: make(map[string]Conn),
		deps:  deps,
	}
}

// ID returns the room's id.
func (r *Room) ID() string { return r.id }

// AddUser registers a new member and assigns a color.
func (r *Room) AddUser(connID, userID, name string, mode Mode) *User {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := &User{
		ConnID: connID,
		UserID: userID,
		Name:   name,
		Color:  r.assignColorLocked(),
		Mode:   mode,
	}
	r.users[connID] = user
	r.logActivityLocked(activity.KindJoin, userID, "", r.seq)
	return user
}

// RemoveUser drops a member by connection id, returning the departed
// user's id if it was present.
func (r *Room) RemoveUser(connID string) (userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[connID]
	if !exists {
		return "", false
	}
	delete(r.users, connID)
	delete(r.conns, connID)
	r.logActivityLocked(activity.KindLeave, user.UserID, "", r.seq)
	return user.UserID, true
}

// UserCount reports how many members are currently joined.
func (r *Room) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Users returns a snapshot of the current member list.
func (r *Room) Users() []*User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	return out
}

// UserMode reports the mode of a connected member, used by the
// dispatcher to gate write ops for view-only users.
func (r *Room) UserMode(connID string) (Mode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[connID]
	if !ok {
		return "", false
	}
	return u.Mode, true
}

// Register attaches a connection for local fan-out.
func (r *Room) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ConnID()] = conn
}

// Unregister detaches a connection from local fan-out.
func (r *Room) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

// assignColorLocked sweeps the palette for the first color not
// already held by a member, falling back to a random pick.
func (r *Room) assignColorLocked() string {
	used := make(map[string]bool, len(r.users))
	for _, u := range r.users {
		used[u.Color] = true
	}
	for _, c := range palette {
		if !used[c] {
			return c
		}
	}
	return palette[rand.Intn(len(palette))]
}

// ApplyOp runs a validated op through the drawing state, and on a
// genuine (non-suppressed) result bumps seq, builds the envelope,
// broadcasts it locally and across the relay, records an activity
// event, and triggers the persistence throttle. noOp is true when the
// op was an undo/redo with nothing to act on: callers must ack
// {ok,noOp:true} and must not treat that as an error.
func (r *Room) ApplyOp(userID string, op drawing.Op) (env *Envelope, noOp bool, err error) {
	r.mu.Lock()
	result, applyErr := r.state.Apply(userID, op)
	if applyErr != nil {
		r.mu.Unlock()
		return nil, false, applyErr
	}
	if result.Broadcast == nil {
		r.mu.Unlock()
		return nil, true, nil
	}

	r.seq++
	env = &Envelope{Seq: r.seq, Op: *result.Broadcast, By: userID, Ts: time.Now().UnixMilli()}
	strokeID := result.Broadcast.ID
	if strokeID == "" {
		strokeID = result.Broadcast.StrokeID
	}
	r.logActivityLocked(kindForOp(result.Broadcast.Type), userID, strokeID, r.seq)
	conns := r.snapshotConnsLocked()
	r.mu.Unlock()

	r.deliverLocal(conns, env)
	r.publishRelay(env)
	r.MaybePersist()
	return env, false, nil
}

// kindForOp maps a broadcast op type to the activity kind worth
// recording. stroke_start/stroke_points are intentionally excluded.
func kindForOp(t drawing.OpType) activity.Kind {
	switch t {
	case drawing.OpStrokeEnd:
		return activity.KindCommit
	case drawing.OpUndo:
		return activity.KindUndo
	case drawing.OpRedo:
		return activity.KindRedo
	default:
		return ""
	}
}

// logActivityLocked enqueues an event if both an activity log is
// configured and the kind is one worth recording.
func (r *Room) logActivityLocked(kind activity.Kind, userID, strokeID string, seq uint64) {
	if r.deps.Activity == nil || kind == "" {
		return
	}
	r.deps.Activity.Enqueue(activity.Event{
		RoomID:   r.id,
		UserID:   userID,
		Kind:     kind,
		StrokeID: strokeID,
		Seq:      seq,
		At:       time.Now(),
	})
}

func (r *Room) snapshotConnsLocked() []Conn {
	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Room) deliverLocal(conns []Conn, env *Envelope) {
	payload := encodeEnvelope(env)
	for _, c := range conns {
		c.Send(payload)
	}
}
