// Package presence implements the Presence Manager (§4.H): a per-tenant
// claim map with single-owner release semantics and disconnect cleanup.
//
// claim is last-writer-wins: a second user claiming an already-claimed
// customer silently displaces the first. This matches the interface this
// package implements and has not been changed to require a prior release —
// whether take-over is the intended product behavior or a bug in the
// original contract is flagged as an open question, not resolved here.
package presence

import (
	"strings"
	"sync"
	"time"
)

// Claim is one customer's current presence holder.
type Claim struct {
	CustomerID int64
	UserID     int64
	UserName   string
	Initials   string
	ClaimedAt  time.Time
}

// Broadcaster is the subset of the Connection Registry the presence
// manager needs, kept as an interface so it can be unit-tested without a
// real registry.
type Broadcaster interface {
	Broadcast(orgID int64, msgType string, data any, excludeUserID int64)
}

// Manager holds one claim map per tenant.
type Manager struct {
	mu         sync.Mutex
	byOrg      map[int64]map[int64]*Claim // org -> customerID -> claim
	broadcast  Broadcaster
}

func New(broadcaster Broadcaster) *Manager {
	return &Manager{
		byOrg:     make(map[int64]map[int64]*Claim),
		broadcast: broadcaster,
	}
}

// Snapshot returns a copy of every current claim for org, used to replay
// presence state to a newly-connected client.
func (m *Manager) Snapshot(orgID int64) []*Claim {
	m.mu.Lock()
	defer m.mu.Unlock()
	claims := m.byOrg[orgID]
	out := make([]*Claim, 0, len(claims))
	for _, c := range claims {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

// Claim is idempotent if the same user already owns it under the same
// userName (no-op, no broadcast); otherwise it overwrites the existing
// holder, if any, and broadcasts customer_claimed.
func (m *Manager) Claim(orgID, customerID, userID int64, userName string) {
	initials := deriveInitials(userName)

	m.mu.Lock()
	claims, ok := m.byOrg[orgID]
	if !ok {
		claims = make(map[int64]*Claim)
		m.byOrg[orgID] = claims
	}
	existing, has := claims[customerID]
	if has && existing.UserID == userID && existing.UserName == userName {
		m.mu.Unlock()
		return
	}
	claim := &Claim{
		CustomerID: customerID,
		UserID:     userID,
		UserName:   userName,
		Initials:   initials,
		ClaimedAt:  time.Now(),
	}
	claims[customerID] = claim
	m.mu.Unlock()

	m.broadcast.Broadcast(orgID, "customer_claimed", map[string]any{
		"kundeId":   claim.CustomerID,
		"userId":    claim.UserID,
		"userName":  claim.UserName,
		"initials":  claim.Initials,
		"claimedAt": claim.ClaimedAt.UTC().Format(time.RFC3339),
	}, 0)
}

// Release is a no-op unless userID currently owns the claim.
func (m *Manager) Release(orgID, customerID, userID int64) {
	m.mu.Lock()
	claims, ok := m.byOrg[orgID]
	if !ok {
		m.mu.Unlock()
		return
	}
	existing, has := claims[customerID]
	if !has || existing.UserID != userID {
		m.mu.Unlock()
		return
	}
	delete(claims, customerID)
	if len(claims) == 0 {
		delete(m.byOrg, orgID)
	}
	m.mu.Unlock()

	m.broadcast.Broadcast(orgID, "customer_released", map[string]any{
		"kundeId": customerID,
		"userId":  userID,
	}, 0)
}

// ReleaseAll drops every claim owned by userID in orgID, broadcasting
// customer_released for each. Invoked on disconnect.
func (m *Manager) ReleaseAll(orgID, userID int64) {
	m.mu.Lock()
	claims, ok := m.byOrg[orgID]
	if !ok {
		m.mu.Unlock()
		return
	}
	var released []int64
	for customerID, c := range claims {
		if c.UserID == userID {
			released = append(released, customerID)
			delete(claims, customerID)
		}
	}
	if len(claims) == 0 {
		delete(m.byOrg, orgID)
	}
	m.mu.Unlock()

	for _, customerID := range released {
		m.broadcast.Broadcast(orgID, "customer_released", map[string]any{
			"kundeId": customerID,
			"userId":  userID,
		}, 0)
	}
}

// deriveInitials splits name on '.', '-', '_', and whitespace; with at
// least two parts it uses the first letter of each of the first two parts,
// otherwise the first two characters. Always uppercased.
func deriveInitials(name string) string {
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
