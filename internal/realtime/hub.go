package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/geocoder89/docman/internal/domain/role"
	"github.com/geocoder89/docman/internal/observability"
)

var ErrForbiddenRoom = errors.New("not allowed to join this room")

// Hub tracks local connections and their rooms. With a broker configured,
// broadcasts go through it and come back via Deliver on every instance.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	broker Broker
	prom   *observability.Prom
	log    *slog.Logger
}

type HubOptions struct {
	// Broker is optional. Nil means single-instance delivery.
	Broker Broker
	Prom   *observability.Prom
	Log    *slog.Logger
}

func NewHub(opts HubOptions) *Hub {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		broker:  opts.Broker,
		prom:    opts.Prom,
		log:     log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if h.prom != nil {
		h.prom.RTConnections.Inc()
	}
}

// Unregister drops c from every room and closes its send queue. Safe to call
// more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	h.mu.Unlock()

	if removed && h.prom != nil {
		h.prom.RTConnections.Dec()
	}
}

func (h *Hub) removeLocked(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}

	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.send)
	return true
}

func (h *Hub) Join(c *Client, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// the viewer can change under a live connection, see applyAccess
	if !CanJoin(c.viewer, room) {
		return ErrForbiddenRoom
	}
	if _, ok := h.clients[c]; !ok {
		return nil
	}

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return nil
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	h.leaveLocked(c, room)
	h.mu.Unlock()
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Publish sends b through the broker, falling back to local delivery when
// there is no broker or the broker refused it.
func (h *Hub) Publish(ctx context.Context, b Broadcast) {
	path := "local"

	if h.broker != nil {
		err := h.broker.Publish(ctx, b)
		if err == nil {
			h.countEvent(b.Envelope.Event, "broker")
			return
		}

		h.log.WarnContext(ctx, "realtime.broker_publish_failed", "event", b.Envelope.Event, "err", err)
		path = "fallback"
	}

	h.countEvent(b.Envelope.Event, path)
	h.Deliver(b)
}

// Reauthorize moves userID's open connections on every instance to role r.
// Rooms r may not join are left straight away.
func (h *Hub) Reauthorize(ctx context.Context, userID string, r role.Title) {
	h.Publish(ctx, Broadcast{
		Envelope: Envelope{Event: EventAccessChange},
		Access:   &AccessChange{UserID: userID, Role: r},
	})
}

// DisconnectUser closes userID's open connections on every instance.
func (h *Hub) DisconnectUser(ctx context.Context, userID string) {
	h.Publish(ctx, Broadcast{
		Envelope: Envelope{Event: EventAccessChange},
		Access:   &AccessChange{UserID: userID, Removed: true},
	})
}

func (h *Hub) applyAccess(a AccessChange) {
	var gone []*Client

	h.mu.Lock()
	for c := range h.clients {
		if c.viewer.UserID != a.UserID {
			continue
		}
		if a.Removed {
			gone = append(gone, c)
			continue
		}

		c.viewer.Role = a.Role
		for room := range c.rooms {
			if !CanJoin(c.viewer, room) {
				h.leaveLocked(c, room)
			}
		}
	}
	h.mu.Unlock()

	for _, c := range gone {
		h.Unregister(c)
	}

	h.log.Info("realtime.access_changed", "user_id", a.UserID, "role", a.Role, "removed", a.Removed)
}

// Deliver writes b to every local connection in any of its rooms. A connection
// in several target rooms gets the message once. Connections whose queue is
// full are disconnected.
func (h *Hub) Deliver(b Broadcast) {
	if b.Access != nil {
		h.applyAccess(*b.Access)
		return
	}

	msg, err := json.Marshal(b.Envelope)
	if err != nil {
		h.log.Error("realtime.encode_failed", "event", b.Envelope.Event, "err", err)
		return
	}

	var slow []*Client
	delivered := 0

	h.mu.RLock()
	seen := make(map[*Client]struct{})
	for _, room := range b.Rooms {
		for c := range h.rooms[room] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}

			select {
			case c.send <- msg:
				delivered++
			default:
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	if h.prom != nil {
		h.prom.RTDeliveredTotal.WithLabelValues(b.Envelope.Event).Add(float64(delivered))
	}

	for _, c := range slow {
		h.log.Warn("realtime.slow_consumer_dropped", "user_id", c.viewer.UserID)
		if h.prom != nil {
			h.prom.RTDroppedTotal.Inc()
		}
		h.Unregister(c)
	}
}

// sendTo queues a direct reply to one connection.
func (h *Hub) sendTo(c *Client, env Envelope) {
	msg, err := json.Marshal(env)
	if err != nil {
		return
	}

	h.mu.RLock()
	_, alive := h.clients[c]
	full := false
	if alive {
		select {
		case c.send <- msg:
		default:
			full = true
		}
	}
	h.mu.RUnlock()

	if full {
		h.Unregister(c)
	}
}

// RoomSize is the number of local connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) countEvent(event, path string) {
	if h.prom != nil {
		h.prom.RTEventsTotal.WithLabelValues(event, path).Inc()
	}
}
