package room

import "time"

// MaybePersist snapshots and writes this room's committed state if
// at least persistInterval has elapsed since the last write. The
// snapshot is materialized under the room's lock and the disk write
// happens after releasing it, so persistence I/O never blocks the
// room's serialization domain (§5).
func (r *Room) MaybePersist() {
	r.mu.Lock()
	if time.Since(r.lastPersist) < persistInterval {
		r.mu.Unlock()
		return
	}
	r.lastPersist = time.Now()
	seq := r.seq
	r.mu.Unlock()

	r.persist(seq)
}

// Flush forces an immediate persist regardless of the throttle
// window. Used by the process-wide shutdown path, not by per-room
// cleanup — see DESIGN.md's Open Question Decisions for why the two
// differ.
func (r *Room) Flush() {
	r.mu.Lock()
	r.lastPersist = time.Now()
	seq := r.seq
	r.mu.Unlock()

	r.persist(seq)
}

func (r *Room) persist(seq uint64) {
	if r.deps.Store != nil {
		snap := r.state.PersistenceView(seq)
		if err := r.deps.Store.Save(r.id, snap); err != nil {
			r.deps.Logger.Warn().Err(err).Str("room", r.id).Msg("persist failed, will retry next tick")
		}
	}
	if r.deps.Index != nil {
		if err := r.deps.Index.Touch(r.id, seq); err != nil {
			r.deps.Logger.Warn().Err(err).Str("room", r.id).Msg("room index update failed")
		}
	}
}
