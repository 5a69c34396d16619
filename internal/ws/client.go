package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	myMiddleware "github.com/ShashwatSecure/WIBE-CHAT/internal/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 64 * 1024           // Maximum message size allowed from peer.
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict to the frontend origin in production
	},
}

// Client is one live socket session: a Connection Handle. The identity is
// bound by the explicit registerUser event, not implicitly at upgrade.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	id       string // connection id, for logs
	authID   int64  // identity proven by the JWT at upgrade
	username string
	// Bound identity; zero until registerUser. Written on the read pump,
	// read by the fanout goroutine, hence atomic.
	identity atomic.Int64

	// sendMu guards send against a close racing a queued frame: the hub's
	// delivery goroutine and the read pump both reach the channel.
	sendMu     sync.Mutex
	sendClosed bool
	closeOnce  sync.Once
}

func (c *Client) registered() bool {
	return c.identity.Load() != 0
}

// closeSend is safe to call from multiple goroutines; the write pump exits
// when the channel closes.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.sendClosed = true
		close(c.send)
		c.sendMu.Unlock()
	})
}

// trySend queues a frame without blocking. Returns false only when the
// connection is live but its buffer is full; a closing connection swallows
// the frame.
func (c *Client) trySend(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) sendError(msg string) {
	frame, err := encodeEnvelope(EventError, &errorPayload{Message: msg})
	if err != nil {
		return
	}
	c.trySend(frame)
}

// readPump pumps events from the websocket connection into the hub.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.disconnect(ctx, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("unexpected close", "conn", c.id, "error", err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.sendError("malformed event frame")
			continue
		}
		c.hub.handleEnvelope(ctx, c, &env)
	}
}

// writePump pumps events from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued frames into the same write to reduce syscalls.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades an authenticated request to a websocket session.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int64)
	username, ok2 := r.Context().Value(myMiddleware.UsernameKey).(string)
	if !ok || !ok2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		id:       uuid.NewString(),
		authID:   userID,
		username: username,
	}

	go client.writePump()
	go client.readPump(context.Background())
}
