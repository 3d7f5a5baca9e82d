package room

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawroom/internal/drawing"
)

type fakeConn struct {
	id  string
	mu  sync.Mutex
	got [][]byte
}

func (f *fakeConn) ConnID() string { return f.id }
func (f *fakeConn) Send(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, payload)
}
func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func newTestRoom() *Room {
	return New("test-room", drawing.New(), 0, Deps{Logger: zerolog.Nop()})
}

func TestAddUserAssignsDistinctColors(t *testing.T) {
	r := newTestRoom()
	u1 := r.AddUser("c1", "u1", "Alice", ModeEdit)
	u2 := r.AddUser("c2", "u2", "Bob", ModeEdit)
	assert.NotEqual(t, u1.Color, u2.Color)
}

func TestRemoveUserReportsDeparture(t *testing.T) {
	r := newTestRoom()
	r.AddUser("c1", "u1", "Alice", ModeEdit)

	userID, ok := r.RemoveUser("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, 0, r.UserCount())

	_, ok = r.RemoveUser("c1")
	assert.False(t, ok)
}

func TestApplyOpBumpsSeqAndBroadcastsLocally(t *testing.T) {
	r := newTestRoom()
	conn := &fakeConn{id: "c1"}
	r.Register(conn)

	env, noOp, err := r.ApplyOp("u1", drawing.Op{Type: drawing.OpStrokeStart, ID: "s1", Tool: drawing.ToolBrush, Color: "#000", Width: 4})
	require.NoError(t, err)
	assert.False(t, noOp)
	require.NotNil(t, env)
	assert.Equal(t, uint64(1), env.Seq)
	assert.Equal(t, uint64(1), r.Seq())
	assert.Equal(t, 1, conn.count())
}

func TestApplyOpUndoWithNothingCommittedIsNoOp(t *testing.T) {
	r := newTestRoom()
	conn := &fakeConn{id: "c1"}
	r.Register(conn)

	env, noOp, err := r.ApplyOp("u1", drawing.Op{Type: drawing.OpUndo})
	require.NoError(t, err)
	assert.True(t, noOp)
	assert.Nil(t, env)
	assert.Equal(t, uint64(0), r.Seq())
	assert.Equal(t, 0, conn.count(), "a no-op undo must not broadcast anything")
}

func TestApplyOpPropagatesStateErrorsWithoutMutatingSeq(t *testing.T) {
	r := newTestRoom()
	_, _, err := r.ApplyOp("u1", drawing.Op{Type: drawing.OpStrokePoints, ID: "ghost", Points: []drawing.Point{{X: 1, Y: 1}}})
	assert.ErrorIs(t, err, drawing.ErrUnknownStroke)
	assert.Equal(t, uint64(0), r.Seq())
}

func TestBroadcastCursorExcludesSender(t *testing.T) {
	r := newTestRoom()
	sender := &fakeConn{id: "sender"}
	other := &fakeConn{id: "other"}
	r.Register(sender)
	r.Register(other)

	r.BroadcastCursor("sender", "u1", 1, 2)

	assert.Equal(t, 0, sender.count())
	assert.Equal(t, 1, other.count())
}

func TestSnapshotReflectsCommittedAndInProgress(t *testing.T) {
	r := newTestRoom()
	_, _, err := r.ApplyOp("u1", drawing.Op{Type: drawing.OpStrokeStart, ID: "s1", Tool: drawing.ToolBrush, Color: "#000", Width: 4})
	require.NoError(t, err)
	_, _, err = r.ApplyOp("u1", drawing.Op{Type: drawing.OpStrokeEnd, ID: "s1"})
	require.NoError(t, err)
	_, _, err = r.ApplyOp("u1", drawing.Op{Type: drawing.OpStrokeStart, ID: "s2", Tool: drawing.ToolBrush, Color: "#000", Width: 4})
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, uint64(3), snap.Seq)
	require.Len(t, snap.Strokes, 1)
	require.Len(t, snap.InProgress, 1)
}
