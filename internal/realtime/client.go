package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/geocoder89/docman/internal/domain/document"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one WebSocket connection. rooms is guarded by the hub lock.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	viewer document.Viewer
	rooms  map[string]struct{}
}

func newClient(h *Hub, conn *websocket.Conn, v document.Viewer) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		viewer: v,
		rooms:  make(map[string]struct{}),
	}
}

// NewUpgrader accepts browser origins from the allow list; "*" allows any.
// Requests without an Origin header are not from browsers and pass.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
// Authenticated viewers join their own user room straight away.
func (h *Hub) ServeWS(up *websocket.Upgrader, w http.ResponseWriter, r *http.Request, v document.Viewer) error {
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := newClient(h, conn, v)
	h.Register(c)

	if v.Authenticated() {
		_ = h.Join(c, UserRoom(v.UserID))
	}

	go c.writePump()
	go c.readPump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("realtime.read_failed", "user_id", c.viewer.UserID, "err", err)
			}
			return
		}

		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.replyError("malformed message")
		return
	}

	var room string
	if err := json.Unmarshal(env.Data, &room); err != nil || room == "" {
		c.replyError("data must be a room name")
		return
	}

	switch env.Event {
	case EventRoleJoin:
		if err := c.hub.Join(c, room); err != nil {
			if errors.Is(err, ErrForbiddenRoom) {
				c.replyError("not allowed to join " + room)
				return
			}
			c.replyError("join failed")
			return
		}
		c.reply(EventRoleJoined, room)
	case EventRoleLeave:
		c.hub.Leave(c, room)
		c.reply(EventRoleLeft, room)
	default:
		c.replyError("unknown event " + env.Event)
	}
}

func (c *Client) reply(event string, data any) {
	env, err := newEnvelope(event, data)
	if err != nil {
		return
	}
	c.hub.sendTo(c, env)
}

func (c *Client) replyError(msg string) {
	c.reply(EventError, errorData{Message: msg})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the queue
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
