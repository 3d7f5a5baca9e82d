package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawroom/internal/drawing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	snap := drawing.PersistenceSnapshot{
		Seq:            7,
		CommittedOrder: []string{"s1"},
		Strokes: []*drawing.Stroke{
			{ID: "s1", UserID: "u1", Tool: drawing.ToolBrush, Color: "#000", Width: 4, Committed: true},
		},
	}
	require.NoError(t, s.Save("room-1", snap))

	loaded, ok := s.Load("room-1")
	require.True(t, ok)
	assert.Equal(t, uint64(7), loaded.Seq)
	require.Len(t, loaded.Strokes, 1)
	assert.Equal(t, "s1", loaded.Strokes[0].ID)
}

func TestLoadMissingFileReportsNotOK(t *testing.T) {
	s := New(t.TempDir())
	_, ok := s.Load("never-written")
	assert.False(t, ok)
}

func TestLoadMalformedFileReportsNotOK(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(s.path("bad"), []byte("{not json"), 0o644))

	_, ok := s.Load("bad")
	assert.False(t, ok)
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Save("room-1", drawing.PersistenceSnapshot{Seq: 1}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestSanitizeReplacesUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "room_abc_123", Sanitize("room/abc 123"))
	assert.Equal(t, "abc-DEF_9", Sanitize("abc-DEF_9"))
}

func TestSanitizeCollisionsShareAFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Save("room/a", drawing.PersistenceSnapshot{Seq: 1}))
	require.NoError(t, s.Save("room a", drawing.PersistenceSnapshot{Seq: 2}))

	loaded, ok := s.Load("room_a")
	require.True(t, ok)
	assert.Equal(t, uint64(2), loaded.Seq, "later sanitize-colliding write should win, matching the source")
	assert.Equal(t, filepath.Join(dir, "room_room_a.json"), s.path("room/a"))
}
