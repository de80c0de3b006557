// Package memrepo is an in-memory repo.Repository used by tests and local
// development, mirroring the shape of the pgx-backed production repository.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sanderm5/Sky-planner-sub006/internal/webhook"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/repo"
)

type Repo struct {
	mu          sync.Mutex
	nextEP      int64
	nextDel     int64
	endpoints   map[int64]*webhook.Endpoint
	deliveries  map[int64]*webhook.Delivery
	auditEvents int
}

func New() *Repo {
	return &Repo{
		endpoints:  make(map[int64]*webhook.Endpoint),
		deliveries: make(map[int64]*webhook.Delivery),
	}
}

func clone(e *webhook.Endpoint) *webhook.Endpoint {
	cp := *e
	cp.Events = append([]webhook.EventType(nil), e.Events...)
	return &cp
}

func cloneDelivery(d *webhook.Delivery) *webhook.Delivery {
	cp := *d
	cp.Payload = append([]byte(nil), d.Payload...)
	return &cp
}

func (r *Repo) CreateEndpoint(ctx context.Context, p repo.NewEndpointParams) (*webhook.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextEP++
	now := time.Now()
	e := &webhook.Endpoint{
		ID:             r.nextEP,
		OrganizationID: p.OrganizationID,
		URL:            p.URL,
		Name:           p.Name,
		Description:    p.Description,
		Events:         append([]webhook.EventType(nil), p.Events...),
		SecretHash:     p.SecretHash,
		IsActive:       true,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.endpoints[e.ID] = e
	return clone(e), nil
}

func (r *Repo) GetEndpoint(ctx context.Context, orgID, id int64) (*webhook.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[id]
	if !ok || e.OrganizationID != orgID {
		return nil, repo.ErrNotFound
	}
	return clone(e), nil
}

func (r *Repo) ListEndpoints(ctx context.Context, orgID int64) ([]*webhook.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*webhook.Endpoint
	for _, e := range r.endpoints {
		if e.OrganizationID == orgID {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repo) UpdateEndpoint(ctx context.Context, orgID, id int64, p repo.UpdateEndpointParams) (*webhook.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[id]
	if !ok || e.OrganizationID != orgID {
		return nil, repo.ErrNotFound
	}
	e.URL = p.URL
	e.Name = p.Name
	e.Description = p.Description
	e.Events = append([]webhook.EventType(nil), p.Events...)
	e.UpdatedAt = time.Now()
	return clone(e), nil
}

func (r *Repo) DeleteEndpoint(ctx context.Context, orgID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[id]
	if !ok || e.OrganizationID != orgID {
		return repo.ErrNotFound
	}
	delete(r.endpoints, id)
	return nil
}

func (r *Repo) GetEndpointInternal(ctx context.Context, id int64) (*webhook.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return clone(e), nil
}

func (r *Repo) GetActiveEndpointsForEvent(ctx context.Context, orgID int64, eventType webhook.EventType) ([]*webhook.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*webhook.Endpoint
	for _, e := range r.endpoints {
		if e.OrganizationID != orgID || !e.IsActive {
			continue
		}
		if e.SubscribesTo(eventType) {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repo) UpdateSecretHash(ctx context.Context, orgID, id int64, secretHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[id]
	if !ok || e.OrganizationID != orgID {
		return repo.ErrNotFound
	}
	e.SecretHash = secretHash
	e.UpdatedAt = time.Now()
	return nil
}

func (r *Repo) DisableEndpoint(ctx context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[id]
	if !ok {
		return repo.ErrNotFound
	}
	e.IsActive = false
	e.UpdatedAt = time.Now()
	_ = reason // recorded in security_audit_log by callers via InsertAuditLog
	return nil
}

func (r *Repo) RecordSuccess(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[id]
	if !ok {
		return repo.ErrNotFound
	}
	e.FailureCount = 0
	return nil
}

func (r *Repo) RecordFailure(ctx context.Context, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[id]
	if !ok {
		return 0, repo.ErrNotFound
	}
	e.FailureCount++
	return e.FailureCount, nil
}

func (r *Repo) CreateDelivery(ctx context.Context, d *webhook.Delivery) (*webhook.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextDel++
	cp := *d
	cp.ID = r.nextDel
	cp.CreatedAt = time.Now()
	cp.Payload = append([]byte(nil), d.Payload...)
	r.deliveries[cp.ID] = &cp
	return cloneDelivery(&cp), nil
}

func (r *Repo) GetPendingDeliveries(ctx context.Context, now time.Time, limit int) ([]*webhook.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*webhook.Delivery
	for _, d := range r.deliveries {
		if d.Status == webhook.StatusPending {
			out = append(out, d)
			continue
		}
		if d.Status == webhook.StatusRetrying && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	clones := make([]*webhook.Delivery, len(out))
	for i, d := range out {
		clones[i] = cloneDelivery(d)
	}
	return clones, nil
}

func (r *Repo) GetDelivery(ctx context.Context, id int64) (*webhook.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cloneDelivery(d), nil
}

func (r *Repo) GetDeliveryHistory(ctx context.Context, endpointID int64, limit int) ([]*webhook.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*webhook.Delivery
	for _, d := range r.deliveries {
		if d.WebhookEndpointID == endpointID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	clones := make([]*webhook.Delivery, len(out))
	for i, d := range out {
		clones[i] = cloneDelivery(d)
	}
	return clones, nil
}

func (r *Repo) UpdateDeliveryStatus(ctx context.Context, d *webhook.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deliveries[d.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *d
	cp.Payload = append([]byte(nil), d.Payload...)
	r.deliveries[d.ID] = &cp
	return nil
}

func (r *Repo) InsertAuditLog(ctx context.Context, orgID, userID int64, action string, detail map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditEvents++
	return nil
}

func (r *Repo) Ping(ctx context.Context) error { return nil }

var _ repo.Repository = (*Repo)(nil)
