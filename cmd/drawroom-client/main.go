// Command drawroom-client is a minimal reference consumer: it joins a
// room over WebSocket, feeds every "op" frame into a reorder.Buffer,
// and logs each envelope's seq and op type along with the next seq
// the buffer expects. It
// exists to exercise package reorder end-to-end outside of tests,
// standing in for the out-of-scope canvas renderer.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"drawroom/internal/room"
	"drawroom/reorder"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	roomID := flag.String("room", "demo", "room id to join")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	logger := zerolog.Nop()
	buf := reorder.New(logger)

	joinID := uuid.NewString()
	joinPayload, _ := json.Marshal(map[string]string{"roomId": *roomID, "clientId": joinID})
	joinFrame, _ := json.Marshal(room.Frame{Event: "join", ID: joinID, Payload: joinPayload})
	if err := ws.WriteMessage(websocket.TextMessage, joinFrame); err != nil {
		log.Fatalf("join: %v", err)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Printf("connection closed: %v", err)
			return
		}
		var frame room.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Event {
		case "sync":
			var sync room.SyncPayload
			if err := json.Unmarshal(frame.Payload, &sync); err != nil {
				continue
			}
			buf.OnSync(sync)
			log.Printf("synced room %s at seq %d", sync.RoomID, sync.Seq)
		case "op":
			env, err := reorder.DecodeEnvelope(frame.Payload)
			if err != nil {
				continue
			}
			buf.OnEnvelope(env)
			log.Printf("received seq %d (%s), expecting %d next", env.Seq, env.Op.Type, buf.ExpectedSeq())
		}
	}
}
