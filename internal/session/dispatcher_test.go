package session

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawroom/internal/room"
	"drawroom/internal/rooms"
)

type fakeSender struct {
	mu  sync.Mutex
	got [][]byte
}

func (f *fakeSender) Send(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, payload)
}

func (f *fakeSender) last() room.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var frame room.Frame
	json.Unmarshal(f.got[len(f.got)-1], &frame)
	return frame
}

func newDispatcher(connID string) (*Dispatcher, *fakeSender, *rooms.Manager) {
	manager := rooms.New(nil, nil, nil, nil, zerolog.Nop())
	sender := &fakeSender{}
	d := New(connID, sender, manager, zerolog.Nop())
	return d, sender, manager
}

func joinFrame(roomID, name string) []byte {
	payload, _ := json.Marshal(map[string]string{"roomId": roomID, "name": name})
	frame, _ := json.Marshal(room.Frame{Event: "join", ID: "req-1", Payload: payload})
	return frame
}

func TestHandleFrameJoinSendsSyncThenAck(t *testing.T) {
	d, sender, _ := newDispatcher("conn-1")

	ack := d.HandleFrame(joinFrame("room-1", "Alice"))

	var frame room.Frame
	require.NoError(t, json.Unmarshal(ack, &frame))
	assert.Equal(t, "join:ack", frame.Event)

	var joinAckPayload joinAck
	require.NoError(t, json.Unmarshal(frame.Payload, &joinAckPayload))
	assert.True(t, joinAckPayload.OK)
	assert.Equal(t, "room-1", joinAckPayload.RoomID)
	assert.Equal(t, "Alice", joinAckPayload.User.Name)

	sync := sender.last()
	assert.Equal(t, "sync", sync.Event)
}

func TestHandleFrameOpBeforeJoinIsRejected(t *testing.T) {
	d, _, _ := newDispatcher("conn-1")

	payload, _ := json.Marshal(map[string]any{"t": "undo"})
	frame, _ := json.Marshal(room.Frame{Event: "msg", ID: "req-1", Payload: payload})

	ack := d.HandleFrame(frame)
	var decoded room.Frame
	require.NoError(t, json.Unmarshal(ack, &decoded))
	assert.Equal(t, "msg:ack", decoded.Event)
	var body map[string]any
	require.NoError(t, json.Unmarshal(decoded.Payload, &body))
	assert.Equal(t, false, body["ok"])
}

func TestHandleFrameOpAfterJoinBumpsSeq(t *testing.T) {
	d, _, _ := newDispatcher("conn-1")
	d.HandleFrame(joinFrame("room-1", "Alice"))

	opPayload, _ := json.Marshal(map[string]any{"t": "stroke_start", "id": "s1", "tool": "brush", "color": "#000", "width": 4, "x": 1, "y": 1})
	frame, _ := json.Marshal(room.Frame{Event: "msg", ID: "req-2", Payload: opPayload})

	ack := d.HandleFrame(frame)
	var decoded room.Frame
	require.NoError(t, json.Unmarshal(ack, &decoded))
	var body map[string]any
	require.NoError(t, json.Unmarshal(decoded.Payload, &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(1), body["seq"])
}

func TestHandleFrameViewModeRejectsWrites(t *testing.T) {
	d, _, _ := newDispatcher("conn-1")
	payload, _ := json.Marshal(map[string]string{"roomId": "room-1", "name": "Viewer", "mode": "view"})
	frame, _ := json.Marshal(room.Frame{Event: "join", ID: "req-1", Payload: payload})
	d.HandleFrame(frame)

	opPayload, _ := json.Marshal(map[string]any{"t": "stroke_start", "id": "s1", "tool": "brush", "color": "#000", "width": 4, "x": 1, "y": 1})
	opFrame, _ := json.Marshal(room.Frame{Event: "msg", ID: "req-2", Payload: opPayload})

	ack := d.HandleFrame(opFrame)
	var decoded room.Frame
	require.NoError(t, json.Unmarshal(ack, &decoded))
	var body map[string]any
	require.NoError(t, json.Unmarshal(decoded.Payload, &body))
	assert.Equal(t, false, body["ok"])
}

func TestDisconnectCleansUpLastMember(t *testing.T) {
	d, _, manager := newDispatcher("conn-1")
	d.HandleFrame(joinFrame("room-1", "Alice"))

	d.Disconnect()

	_, ok := manager.Get("room-1")
	assert.False(t, ok, "the last member leaving should free the room")
}

func TestHandleFrameUnknownEventIsAckedAsError(t *testing.T) {
	d, _, _ := newDispatcher("conn-1")
	frame, _ := json.Marshal(room.Frame{Event: "bogus", ID: "req-1"})

	ack := d.HandleFrame(frame)
	var decoded room.Frame
	require.NoError(t, json.Unmarshal(ack, &decoded))
	assert.Equal(t, "bogus:ack", decoded.Event)
}
