// Package rooms is the process-wide directory of live rooms: it
// creates a Room on first join and destroys it on last leave,
// rehydrating from disk in between. Grounded on the teacher agent's
// Hub, which is the same shape at smaller scope (one registry, safe
// for concurrent register/unregister) generalized here to a registry
// of many per-room registries instead of one flat client set.
package rooms

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"drawroom/internal/activity"
	"drawroom/internal/drawing"
	"drawroom/internal/relay"
	"drawroom/internal/room"
	"drawroom/internal/roomindex"
	"drawroom/internal/store"
)

// Manager is the single process-wide room registry. A mutex is
// sufficient here (§5): getOrCreate/cleanup are infrequent compared
// to the per-room traffic they gate.
type Manager struct {
	mu      sync.Mutex
	rooms   map[string]*room.Room
	relayUnsub map[string]context.CancelFunc

	store    *store.Store
	index    *roomindex.Index
	activity *activity.Log
	relay    *relay.Relay
	logger   zerolog.Logger
}

// New constructs a Manager. Any of index, activityLog, or relay may
// be nil — the corresponding enrichment is simply absent.
func New(st *store.Store, index *roomindex.Index, activityLog *activity.Log, rl *relay.Relay, logger zerolog.Logger) *Manager {
	return &Manager{
		rooms:      make(map[string]*room.Room),
		relayUnsub: make(map[string]context.CancelFunc),
		store:      st,
		index:      index,
		activity:   activityLog,
		relay:      rl,
		logger:     logger,
	}
}

// GetOrCreate returns the live Room for id, creating it (and loading
// any on-disk snapshot) if this is the first join.
func (m *Manager) GetOrCreate(id string) *room.Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[id]; ok {
		return r
	}

	state := drawing.New()
	var seq uint64
	if m.store != nil {
		if snap, ok := m.store.Load(id); ok {
			state.Restore(snap)
			seq = snap.Seq
		}
	}

	r := room.New(id, state, seq, room.Deps{
		Store:    m.store,
		Index:    m.index,
		Activity: m.activity,
		Relay:    m.relay,
		Logger:   m.logger,
	})
	m.rooms[id] = r

	if m.index != nil {
		if err := m.index.Touch(id, seq); err != nil {
			m.logger.Warn().Err(err).Str("room", id).Msg("room index touch failed on create")
		}
	}
	if m.relay != nil {
		m.subscribeRelayLocked(id, r)
	}
	return r
}

// subscribeRelayLocked starts a background relay subscription that
// forwards sibling-instance frames onto this room's local
// connections. It never republishes what it receives, avoiding an
// echo loop between instances.
func (m *Manager) subscribeRelayLocked(id string, r *room.Room) {
	ctx, cancel := context.WithCancel(context.Background())
	m.relayUnsub[id] = cancel

	sub := m.relay.Subscribe(ctx, id)
	go func() {
		for {
			select {
			case frame, ok := <-sub.Envelopes:
				if !ok {
					return
				}
				r.ReceiveRelayed(frame)
			case frame, ok := <-sub.Cursors:
				if !ok {
					return
				}
				r.ReceiveRelayed(frame)
			case <-ctx.Done():
				sub.Close()
				return
			}
		}
	}()
}

// Cleanup removes a Room from memory iff it currently has no
// connected members. Its last persisted snapshot remains on disk and
// will be re-hydrated on the next join. Per DESIGN.md's Open Question
// Decisions, cleanup does not force a final persist — the throttle
// window's last 0-2s of work can be lost, matching the source.
func (m *Manager) Cleanup(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return
	}
	if r.UserCount() > 0 {
		return
	}
	delete(m.rooms, id)
	if cancel, ok := m.relayUnsub[id]; ok {
		cancel()
		delete(m.relayUnsub, id)
	}
}

// Get returns a currently live room, if any.
func (m *Manager) Get(id string) (*room.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Shutdown flushes every live room's state to disk. Unlike per-room
// Cleanup, process-wide shutdown always forces a persist — matching
// DESIGN NOTES §9's "tear down on shutdown (which should flush all
// dirty rooms)".
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		r.Flush()
	}
}
