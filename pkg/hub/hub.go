// Package hub tracks websocket connections and their scope channel
// memberships, and fans stored alerts out to the connections whose
// subscriptions match.
package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"alert-service/internal/domain"
)

// Hub owns every live connection and the channel membership index.
type Hub struct {
	mu         sync.RWMutex
	conns      map[*Conn]struct{}
	channels   map[string]map[*Conn]struct{}
	membership map[*Conn][]string

	logger *zap.Logger
}

func New(logger *zap.Logger) *Hub {
	return &Hub{
		conns:      make(map[*Conn]struct{}),
		channels:   make(map[string]map[*Conn]struct{}),
		membership: make(map[*Conn][]string),
		logger:     logger,
	}
}

// Add registers a connection and starts its write pump. The caller owns
// the read loop.
func (h *Hub) Add(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		hub:      h,
		lastSeen: time.Now(),
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()

	go c.writePump()
	h.logger.Info("ws connected", zap.Int("total", total))
	return c
}

// Remove drops the connection from every channel and closes it.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	h.detachLocked(c)
	h.mu.Unlock()

	c.close()
	h.logger.Info("ws disconnected")
}

// Subscribe replaces the connection's channel memberships with the ones in
// ctx. A reconnecting or reassigned client never accumulates stale
// channels.
func (h *Hub) Subscribe(c *Conn, ctx domain.SubscribeContext) {
	channels := ctx.Channels()

	h.mu.Lock()
	h.detachLocked(c)
	for _, name := range channels {
		set, ok := h.channels[name]
		if !ok {
			set = make(map[*Conn]struct{})
			h.channels[name] = set
		}
		set[c] = struct{}{}
	}
	h.membership[c] = channels
	h.mu.Unlock()

	h.logger.Info("ws subscribed", zap.Strings("channels", channels))
}

// detachLocked removes c from all channels. Caller holds the lock.
func (h *Hub) detachLocked(c *Conn) {
	for _, name := range h.membership[c] {
		if set, ok := h.channels[name]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.channels, name)
			}
		}
	}
	delete(h.membership, c)
}

// RouteNew pushes a stored record to every interested connection. An
// unscoped record is broadcast to all connections; a scoped one goes to
// the union of its matching channels, once per physical connection no
// matter how many of its memberships match.
func (h *Hub) RouteNew(n *domain.Notification) {
	data, err := domain.NewEnvelope(domain.PushNew, n)
	if err != nil {
		h.logger.Error("encode push", zap.Int64("id", n.ID), zap.Error(err))
		return
	}

	channels := n.ScopeChannels()

	h.mu.RLock()
	targets := make(map[*Conn]struct{})
	if len(channels) == 0 {
		for c := range h.conns {
			targets[c] = struct{}{}
		}
	} else {
		for _, name := range channels {
			for c := range h.channels[name] {
				targets[c] = struct{}{}
			}
		}
	}
	h.mu.RUnlock()

	for c := range targets {
		c.enqueue(data)
	}
	h.logger.Debug("routed notification",
		zap.Int64("id", n.ID),
		zap.Strings("channels", channels),
		zap.Int("targets", len(targets)))
}

// BroadcastTransition announces a lifecycle change to every connection.
// The payload is id-only; clients that never saw the record ignore it.
func (h *Hub) BroadcastTransition(ev domain.TransitionEvent) {
	data, err := domain.NewEnvelope(ev.PushName(), domain.TransitionRef{ID: ev.ID})
	if err != nil {
		h.logger.Error("encode transition push", zap.Int64("id", ev.ID), zap.Error(err))
		return
	}

	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(data)
	}
}

// ConnCount reports the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ChannelCount reports how many connections are in a channel.
func (h *Hub) ChannelCount(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[name])
}

// Heartbeat pings all connections on the interval and evicts the ones
// that stopped answering.
func (h *Hub) Heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.RLock()
		conns := make([]*Conn, 0, len(h.conns))
		for c := range h.conns {
			conns = append(conns, c)
		}
		h.mu.RUnlock()

		for _, c := range conns {
			if time.Since(c.LastSeen()) > 2*interval {
				h.Remove(c)
				continue
			}
			c.ping()
		}
	}
}
