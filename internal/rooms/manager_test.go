package rooms

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawroom/internal/drawing"
	"drawroom/internal/store"
)

func TestGetOrCreateReturnsSameRoomOnSecondCall(t *testing.T) {
	m := New(nil, nil, nil, nil, zerolog.Nop())
	r1 := m.GetOrCreate("room-1")
	r2 := m.GetOrCreate("room-1")
	assert.Same(t, r1, r2)
}

func TestGetOrCreateRehydratesFromStore(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir)
	require.NoError(t, st.Save("room-1", drawing.PersistenceSnapshot{
		Seq:            3,
		CommittedOrder: []string{"s1"},
		Strokes:        []*drawing.Stroke{{ID: "s1", Committed: true}},
	}))

	m := New(st, nil, nil, nil, zerolog.Nop())
	r := m.GetOrCreate("room-1")
	assert.Equal(t, uint64(3), r.Seq())

	snap := r.Snapshot()
	require.Len(t, snap.Strokes, 1)
	assert.Equal(t, "s1", snap.Strokes[0].ID)
}

func TestCleanupOnlyRemovesEmptyRooms(t *testing.T) {
	m := New(nil, nil, nil, nil, zerolog.Nop())
	r := m.GetOrCreate("room-1")
	r.AddUser("c1", "u1", "Alice", "edit")

	m.Cleanup("room-1")
	_, ok := m.Get("room-1")
	assert.True(t, ok, "a room with a connected member must survive cleanup")

	r.RemoveUser("c1")
	m.Cleanup("room-1")
	_, ok = m.Get("room-1")
	assert.False(t, ok)
}

func TestGetReportsAbsenceOfUnknownRoom(t *testing.T) {
	m := New(nil, nil, nil, nil, zerolog.Nop())
	_, ok := m.Get("never-created")
	assert.False(t, ok)
}

func TestShutdownFlushesLiveRooms(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir)
	m := New(st, nil, nil, nil, zerolog.Nop())

	r := m.GetOrCreate("room-1")
	_, _, err := r.ApplyOp("u1", drawing.Op{Type: drawing.OpStrokeStart, ID: "s1", Tool: drawing.ToolBrush, Color: "#000", Width: 4})
	require.NoError(t, err)
	_, _, err = r.ApplyOp("u1", drawing.Op{Type: drawing.OpStrokeEnd, ID: "s1"})
	require.NoError(t, err)

	m.Shutdown()

	loaded, ok := st.Load("room-1")
	require.True(t, ok)
	assert.Equal(t, uint64(2), loaded.Seq)
}
