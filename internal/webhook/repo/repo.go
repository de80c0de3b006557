// Package repo defines the webhook repository interface (§4.C). Concrete
// implementations live in the pgxrepo (production) and memrepo (test
// double) subpackages, mirroring the teacher's store/service split.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/sanderm5/Sky-planner-sub006/internal/webhook"
)

// ErrNotFound is returned when a lookup scoped by (id, organization_id)
// matches nothing.
var ErrNotFound = errors.New("repo: not found")

// NewEndpointParams carries the fields needed to create an endpoint. Secret
// plaintext never crosses this boundary — only its hash does.
type NewEndpointParams struct {
	OrganizationID int64
	URL            string
	Name           string
	Description    string
	Events         []webhook.EventType
	SecretHash     string
	CreatedBy      int64
}

// UpdateEndpointParams carries the mutable subset of an endpoint.
type UpdateEndpointParams struct {
	URL         string
	Name        string
	Description string
	Events      []webhook.EventType
}

// Repository is the narrow persistence surface the Delivery Engine, Event
// Dispatcher, and HTTP API depend on.
type Repository interface {
	CreateEndpoint(ctx context.Context, p NewEndpointParams) (*webhook.Endpoint, error)
	GetEndpoint(ctx context.Context, orgID, id int64) (*webhook.Endpoint, error)
	ListEndpoints(ctx context.Context, orgID int64) ([]*webhook.Endpoint, error)
	UpdateEndpoint(ctx context.Context, orgID, id int64, p UpdateEndpointParams) (*webhook.Endpoint, error)
	DeleteEndpoint(ctx context.Context, orgID, id int64) error

	// GetEndpointInternal fetches by id only, including secret_hash, for use
	// by the Delivery Engine (never exposed across the HTTP boundary).
	GetEndpointInternal(ctx context.Context, id int64) (*webhook.Endpoint, error)

	// GetActiveEndpointsForEvent returns active endpoints in org subscribed
	// to eventType.
	GetActiveEndpointsForEvent(ctx context.Context, orgID int64, eventType webhook.EventType) ([]*webhook.Endpoint, error)

	UpdateSecretHash(ctx context.Context, orgID, id int64, secretHash string) error
	DisableEndpoint(ctx context.Context, id int64, reason string) error
	RecordSuccess(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64) (failureCount int, err error)

	CreateDelivery(ctx context.Context, d *webhook.Delivery) (*webhook.Delivery, error)
	GetPendingDeliveries(ctx context.Context, now time.Time, limit int) ([]*webhook.Delivery, error)
	GetDelivery(ctx context.Context, id int64) (*webhook.Delivery, error)
	GetDeliveryHistory(ctx context.Context, endpointID int64, limit int) ([]*webhook.Delivery, error)
	UpdateDeliveryStatus(ctx context.Context, d *webhook.Delivery) error

	// InsertAuditLog writes a best-effort security audit row. Callers must
	// not propagate its error per the audit-log propagation policy.
	InsertAuditLog(ctx context.Context, orgID, userID int64, action string, detail map[string]any) error

	// Ping verifies connectivity for readiness checks.
	Ping(ctx context.Context) error
}
