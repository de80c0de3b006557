// Package conn holds the live WebSocket connection type shared by the
// Connection Registry and the Hub Façade.
package conn

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	rateLimitWindow = 1 * time.Second
	rateLimitBurst  = 10
)

// Connection is one authenticated, upgraded WebSocket client.
type Connection struct {
	UserID         int64
	UserName       string
	OrganizationID int64
	SessionID      string

	socket *websocket.Conn
	send   chan []byte

	sendMu sync.Mutex
	closed bool

	aliveMu sync.Mutex
	alive   bool

	rateMu      sync.Mutex
	rateCount   int
	rateResetAt time.Time
}

// New wraps an upgraded socket. The caller still owns running the
// read/write pump goroutines.
func New(socket *websocket.Conn, userID, orgID int64, userName, sessionID string) *Connection {
	return &Connection{
		UserID:         userID,
		UserName:       userName,
		OrganizationID: orgID,
		SessionID:      sessionID,
		socket:         socket,
		send:           make(chan []byte, 32),
		alive:          true,
	}
}

// Socket exposes the underlying gorilla connection for the hub's read/write
// pumps.
func (c *Connection) Socket() *websocket.Conn { return c.socket }

// SendQueue is the buffered channel the write pump drains.
func (c *Connection) SendQueue() chan []byte { return c.send }

// Send enqueues a message for the write pump; it tolerates a full queue by
// dropping rather than blocking the caller, mirroring the best-effort
// broadcast discipline required of tenant-wide sends. A no-op once Close
// has been called.
func (c *Connection) Send(payload []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// Close stops further sends and closes the queue so the write pump's range
// loop exits. Calls after the first are no-ops; the hub calls it from
// disconnect cleanup only.
func (c *Connection) Close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsAlive reports whether a pong has been seen since the last heartbeat
// tick.
func (c *Connection) IsAlive() bool {
	c.aliveMu.Lock()
	defer c.aliveMu.Unlock()
	return c.alive
}

// SetAlive updates the heartbeat flag; called false before each ping and
// true when a pong arrives.
func (c *Connection) SetAlive(v bool) {
	c.aliveMu.Lock()
	c.alive = v
	c.aliveMu.Unlock()
}

// AllowMessage applies a per-connection fixed window of rateLimitWindow,
// starting at the first message after the previous window expired, with a
// cap of rateLimitBurst messages per window. Only this connection's read
// pump calls it.
func (c *Connection) AllowMessage(now time.Time) bool {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()
	if now.After(c.rateResetAt) {
		c.rateResetAt = now.Add(rateLimitWindow)
		c.rateCount = 0
	}
	if c.rateCount >= rateLimitBurst {
		return false
	}
	c.rateCount++
	return true
}
