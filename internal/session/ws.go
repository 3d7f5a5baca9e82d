package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"drawroom/internal/rooms"
)

// Upgrader mirrors the teacher's: permissive CheckOrigin since origin
// policy is the reverse proxy's concern, not this service's.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// conn adapts a *websocket.Conn to session.Sender via a buffered
// outbound channel, exactly the teacher agent's Client: readPump
// decodes and dispatches, writePump drains the send channel.
type conn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// Send drops the payload rather than block the room's broadcast on a
// slow consumer, and is a no-op once closeSend has run — a Room can
// still hold this conn in a broadcast snapshot taken just before
// Disconnect unregisters it, and sending on a closed channel panics.
func (c *conn) Send(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ServeWS upgrades an HTTP request to a WebSocket and runs the
// session dispatcher for its lifetime.
func ServeWS(manager *rooms.Manager, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		c := &conn{ws: ws, send: make(chan []byte, 256)}
		connID := uuid.NewString()
		dispatcher := New(connID, c, manager, logger)

		go writePump(c)
		readPump(dispatcher, c, logger)
	}
}

func readPump(d *Dispatcher, c *conn, logger zerolog.Logger) {
	defer func() {
		d.Disconnect()
		c.ws.Close()
		c.closeSend()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		reply := d.HandleFrame(message)
		if reply != nil {
			c.Send(reply)
		}
	}
}

func writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
