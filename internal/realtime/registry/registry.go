// Package registry implements the Connection Registry (§4.G): a
// tenant-indexed set of live connections, the heartbeat sweep, and the
// broadcast/direct-send primitives. Grounded on the teacher's
// mutex-guarded SessionManager, generalized from one flat map to
// map[organizationID]set for tenant isolation.
package registry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sanderm5/Sky-planner-sub006/internal/logging"
	"github.com/sanderm5/Sky-planner-sub006/internal/realtime/conn"
)

const (
	heartbeatInterval = 30 * time.Second
	writeWait         = 5 * time.Second
)

// Registry holds one set of live connections per tenant.
type Registry struct {
	mu      sync.RWMutex
	byOrg   map[int64]map[*conn.Connection]struct{}
	stopCh  chan struct{}
	stopped bool
}

func New() *Registry {
	return &Registry{
		byOrg: make(map[int64]map[*conn.Connection]struct{}),
	}
}

// Register adds c to its tenant's set.
func (r *Registry) Register(c *conn.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byOrg[c.OrganizationID]
	if !ok {
		set = make(map[*conn.Connection]struct{})
		r.byOrg[c.OrganizationID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes c, dropping the tenant entry entirely once empty.
func (r *Registry) Unregister(c *conn.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byOrg[c.OrganizationID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.byOrg, c.OrganizationID)
	}
}

// Count returns the number of live connections for orgID.
func (r *Registry) Count(orgID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byOrg[orgID])
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broadcast serializes {type, data} once and sends to every open connection
// in org's set, skipping excludeUserID if non-zero (used to avoid echoing
// a sender's own action back to them).
func (r *Registry) Broadcast(orgID int64, msgType string, data any, excludeUserID int64) {
	payload, err := json.Marshal(envelope{Type: msgType, Data: data})
	if err != nil {
		logging.Error("registry: broadcast marshal failed", "type", msgType, "error", err)
		return
	}

	r.mu.RLock()
	set := r.byOrg[orgID]
	targets := make([]*conn.Connection, 0, len(set))
	for c := range set {
		if excludeUserID != 0 && c.UserID == excludeUserID {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Send(payload)
	}
}

// SendToUser is Broadcast narrowed to connections matching userID.
func (r *Registry) SendToUser(orgID, userID int64, msgType string, data any) {
	payload, err := json.Marshal(envelope{Type: msgType, Data: data})
	if err != nil {
		logging.Error("registry: send marshal failed", "type", msgType, "error", err)
		return
	}

	r.mu.RLock()
	set := r.byOrg[orgID]
	targets := make([]*conn.Connection, 0, 1)
	for c := range set {
		if c.UserID == userID {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Send(payload)
	}
}

// StartHeartbeatSweep runs the 30s ping/terminate cycle until Stop is
// called. Each tick: connections still not-alive from the previous round
// are terminated; the rest are flipped to not-alive and pinged, becoming
// alive again only when their pong handler fires.
func (r *Registry) StartHeartbeatSweep() {
	r.mu.Lock()
	if r.stopCh != nil {
		r.mu.Unlock()
		return
	}
	r.stopCh = make(chan struct{})
	stop := r.stopCh
	r.mu.Unlock()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Registry) sweepOnce() {
	r.mu.RLock()
	var all []*conn.Connection
	for _, set := range r.byOrg {
		for c := range set {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range all {
		if !c.IsAlive() {
			_ = c.Socket().Close()
			continue
		}
		c.SetAlive(false)
		c.Socket().SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Socket().WriteMessage(websocket.PingMessage, nil); err != nil {
			_ = c.Socket().Close()
		}
	}
}

// Stop halts the heartbeat sweep. Safe to call even if it was never
// started.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh != nil && !r.stopped {
		close(r.stopCh)
		r.stopped = true
	}
}

// CloseAll closes every live socket with the given status code and text,
// used during graceful shutdown.
func (r *Registry) CloseAll(code int, text string) {
	r.mu.Lock()
	var all []*conn.Connection
	for _, set := range r.byOrg {
		for c := range set {
			all = append(all, c)
		}
	}
	r.byOrg = make(map[int64]map[*conn.Connection]struct{})
	r.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, text)
	for _, c := range all {
		c.Socket().SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.Socket().WriteMessage(websocket.CloseMessage, msg)
		_ = c.Socket().Close()
	}
}
