package room

// Snapshot builds the full sync payload for a joining or reconnecting
// client: current seq, user list, committed strokes, in-progress
// strokes, and undone ids.
func (r *Room) Snapshot() SyncPayload {
	r.mu.Lock()
	seq := r.seq
	r.mu.Unlock()

	view := r.state.SnapshotView()
	return SyncPayload{
		RoomID:     r.id,
		Seq:        seq,
		Users:      r.Users(),
		Strokes:    view.Committed,
		Undone:     view.Undone,
		InProgress: view.InProgress,
	}
}

// Seq reports the room's current sequence number.
func (r *Room) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}
