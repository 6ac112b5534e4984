package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Conn wraps one websocket connection. Outbound frames go through the
// buffered send channel and a single write pump, so fan-out never blocks
// on a slow client: a full buffer drops the frame and the client catches
// up through the pull-fetch path.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	hub  *Hub

	mu       sync.Mutex
	lastSeen time.Time
	closed   bool
}

// enqueue hands a frame to the write pump, dropping it if the buffer is
// full or the connection is shutting down.
func (c *Conn) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.hub.logger.Warn("ws send buffer full, dropping frame")
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.Warn("ws write failed", zap.Error(err))
				go c.hub.Remove(c)
				return
			}
		}
	}
}

func (c *Conn) ping() {
	select {
	case <-c.done:
		return
	default:
	}
	_ = c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}

// Touch records liveness; called from the read loop's pong handler.
func (c *Conn) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen returns the time of the last observed liveness signal.
func (c *Conn) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	if c.ws != nil {
		_ = c.ws.Close()
	}
}
