// Package realtime implements the Hub Façade (§4.I): upgrade
// authentication, client-message dispatch, and the broadcast/direct-send
// API the rest of the application uses.
//
// Grounded on internal/gateway/server.go's handleWebSocket upgrade
// sequence and CheckOrigin pattern, internal/gateway/router.go's
// tagged-dispatch over message types, and internal/gateway/dashboard_ws.go's
// ping/pong/heartbeat goroutine pair.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sanderm5/Sky-planner-sub006/internal/authn"
	"github.com/sanderm5/Sky-planner-sub006/internal/logging"
	"github.com/sanderm5/Sky-planner-sub006/internal/realtime/conn"
	"github.com/sanderm5/Sky-planner-sub006/internal/realtime/presence"
	"github.com/sanderm5/Sky-planner-sub006/internal/realtime/registry"
)

const (
	pongWait   = 60 * time.Second
	writeWait  = 5 * time.Second
	maxMsgSize = 32 * 1024
)

var localhostPrefixes = []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"}

func isLocalhost(origin string) bool {
	for _, p := range localhostPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}

// Hub upgrades and serves client connections. NewHub's allowedOrigins, when
// non-empty, is the exact set of accepted Origin header values beyond
// localhost. Left empty, only localhost is allowed in addition to
// same-origin requests (no Origin header).
type Hub struct {
	registry *registry.Registry
	presence *presence.Manager
	auth     *authn.TokenService

	upgrader       websocket.Upgrader
	allowedOrigins map[string]struct{}
}

func NewHub(reg *registry.Registry, pres *presence.Manager, auth *authn.TokenService, allowedOrigins []string) *Hub {
	set := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		set[o] = struct{}{}
	}
	h := &Hub{registry: reg, presence: pres, auth: auth, allowedOrigins: set}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if isLocalhost(origin) {
		return true
	}
	_, ok := h.allowedOrigins[origin]
	return ok
}

// ServeWS is the §4.I upgrade path.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.auth.Authenticate(ctx, r)
	if err != nil {
		var internalErr *authn.InternalError
		if errors.As(err, &internalErr) {
			logging.ErrorContext(ctx, "hub: upgrade auth internal error", "error", err)
			http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
			return
		}
		http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade itself already wrote the failing status line.
		return
	}

	userName := authn.LocalPart(user.Email)
	if userName == "" {
		userName = fmt.Sprintf("Bruker %d", user.UserID)
	}
	sessionID := fmt.Sprintf("%d-%d", user.UserID, time.Now().UnixMilli())

	c := conn.New(socket, user.UserID, user.OrganizationID, userName, sessionID)
	h.registry.Register(c)

	logging.InfoContext(logging.ContextWithOrgID(logging.ContextWithConnectionID(ctx, sessionID), user.OrganizationID),
		"hub: connection established", "user_id", user.UserID)

	h.sendConnected(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) sendConnected(c *conn.Connection) {
	snapshot := h.presence.Snapshot(c.OrganizationID)
	presenceData := make([]map[string]any, 0, len(snapshot))
	for _, claim := range snapshot {
		presenceData = append(presenceData, map[string]any{
			"kundeId":   claim.CustomerID,
			"userId":    claim.UserID,
			"userName":  claim.UserName,
			"initials":  claim.Initials,
			"claimedAt": claim.ClaimedAt.UTC().Format(time.RFC3339),
		})
	}

	payload, err := json.Marshal(map[string]any{
		"type":    "connected",
		"message": "connected",
		"data": map[string]any{
			"userId":   c.UserID,
			"userName": c.UserName,
			"initials": initialsFor(c.UserName),
			"presence": presenceData,
		},
	})
	if err != nil {
		logging.Error("hub: marshal connected message failed", "error", err)
		return
	}
	c.Send(payload)
}

func initialsFor(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		switch r {
		case '.', '-', '_', ' ', '\t', '\n':
			return true
		default:
			return false
		}
	})
	if len(parts) >= 2 {
		return strings.ToUpper(string([]rune(parts[0])[:1]) + string([]rune(parts[1])[:1]))
	}
	runes := []rune(name)
	if len(runes) >= 2 {
		return strings.ToUpper(string(runes[:2]))
	}
	return strings.ToUpper(name)
}

// writePump drains c's send queue to the socket until it is closed.
func (h *Hub) writePump(c *conn.Connection) {
	for msg := range c.SendQueue() {
		c.Socket().SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Socket().WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump reads frames until the socket closes, then runs disconnect
// cleanup.
func (h *Hub) readPump(c *conn.Connection) {
	defer h.handleDisconnect(c)

	socket := c.Socket()
	socket.SetReadLimit(maxMsgSize)
	socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		c.SetAlive(true)
		socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			return
		}
		if !c.AllowMessage(time.Now()) {
			continue // rate limit: excess messages are silently dropped
		}
		h.handleMessage(c, data)
	}
}

func (h *Hub) handleDisconnect(c *conn.Connection) {
	h.registry.Unregister(c)
	c.Close()
	h.presence.ReleaseAll(c.OrganizationID, c.UserID)
	h.registry.Broadcast(c.OrganizationID, "user_offline", map[string]any{
		"userId":   c.UserID,
		"userName": c.UserName,
	}, c.UserID)
}

type inboundMessage struct {
	Type           string `json:"type"`
	KundeID        int64  `json:"kundeId"`
	UserName       string `json:"userName"`
	ConversationID int64  `json:"conversationId"`
}

// handleMessage decodes an open-ended JSON frame into the closed set of
// recognized variants; unknown or mistyped variants are dropped without
// error.
func (h *Hub) handleMessage(c *conn.Connection, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "ping":
		payload, _ := json.Marshal(map[string]any{"type": "pong"})
		c.Send(payload)

	case "claim_customer":
		if msg.KundeID <= 0 {
			return
		}
		userName := msg.UserName
		if userName == "" {
			userName = c.UserName
		}
		h.presence.Claim(c.OrganizationID, msg.KundeID, c.UserID, userName)

	case "release_customer":
		if msg.KundeID <= 0 {
			return
		}
		h.presence.Release(c.OrganizationID, msg.KundeID, c.UserID)

	case "chat_typing_start":
		if msg.ConversationID <= 0 {
			return
		}
		h.registry.Broadcast(c.OrganizationID, "chat_typing", map[string]any{
			"conversationId": msg.ConversationID,
			"userId":         c.UserID,
			"userName":       c.UserName,
		}, c.UserID)

	case "chat_typing_stop":
		if msg.ConversationID <= 0 {
			return
		}
		h.registry.Broadcast(c.OrganizationID, "chat_typing_stop", map[string]any{
			"conversationId": msg.ConversationID,
			"userId":         c.UserID,
		}, c.UserID)

	default:
		// unrecognized type: ignored
	}
}

// Broadcast exposes the registry's tenant-wide broadcast to the rest of the
// application (business code calling I.broadcast per §2 data flow).
func (h *Hub) Broadcast(orgID int64, msgType string, data any, excludeUserID int64) {
	h.registry.Broadcast(orgID, msgType, data, excludeUserID)
}

// SendToUser exposes the registry's direct-send primitive.
func (h *Hub) SendToUser(orgID, userID int64, msgType string, data any) {
	h.registry.SendToUser(orgID, userID, msgType, data)
}

// Start begins the heartbeat sweep; call once at process startup.
func (h *Hub) Start() {
	go h.registry.StartHeartbeatSweep()
}

// Shutdown stops the heartbeat ticker and closes every live socket with
// code 1001, per the graceful-shutdown discipline in §5.
func (h *Hub) Shutdown(ctx context.Context) {
	h.registry.Stop()
	h.registry.CloseAll(websocket.CloseGoingAway, "Server shutting down")
}
