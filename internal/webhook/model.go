// Package webhook holds the shared data model for webhook endpoints and
// deliveries. Subpackages implement the behavior (urlsafety, sign, repo,
// delivery, dispatch); this package holds the types they share.
package webhook

import "time"

// EventType is the closed set of domain events that can drive a webhook
// delivery.
type EventType string

const (
	EventCustomerCreated EventType = "customer.created"
	EventCustomerUpdated EventType = "customer.updated"
	EventCustomerDeleted EventType = "customer.deleted"
	EventRouteCompleted  EventType = "route.completed"
	EventSyncCompleted   EventType = "sync.completed"
	EventSyncFailed      EventType = "sync.failed"
)

// AllEventTypes lists every event type an endpoint may subscribe to.
var AllEventTypes = []EventType{
	EventCustomerCreated,
	EventCustomerUpdated,
	EventCustomerDeleted,
	EventRouteCompleted,
	EventSyncCompleted,
	EventSyncFailed,
}

// DeliveryStatus is the webhook delivery state machine's status column.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusRetrying  DeliveryStatus = "retrying"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// MaxAttempts is len(RetryDelays) + 1: one initial attempt plus one per
// scheduled retry.
const MaxAttempts = 6

// RetryDelays is the fixed backoff schedule: 1m, 5m, 15m, 1h, 2h.
var RetryDelays = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
	3600 * time.Second,
	7200 * time.Second,
}

// AutoDisableThreshold: an endpoint is auto-disabled once its failure_count
// reaches this value.
const AutoDisableThreshold = 10

// AutoDisableReason is recorded verbatim when an endpoint is auto-disabled.
const AutoDisableReason = "Auto-deactivated after repeated failures"

// Endpoint is a registered webhook destination owned by one organization.
type Endpoint struct {
	ID             int64
	OrganizationID int64
	URL            string
	Name           string
	Description    string
	Events         []EventType
	SecretHash     string
	IsActive       bool
	FailureCount   int
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SubscribesTo reports whether e is subscribed to eventType.
func (e *Endpoint) SubscribesTo(eventType EventType) bool {
	for _, evt := range e.Events {
		if evt == eventType {
			return true
		}
	}
	return false
}

// Delivery is a single attempt record for one endpoint and one triggered
// event.
type Delivery struct {
	ID                int64
	WebhookEndpointID int64
	OrganizationID    int64
	EventType         EventType
	EventID           string
	Payload           []byte
	Status            DeliveryStatus
	AttemptCount      int
	MaxAttempts       int
	NextRetryAt       *time.Time
	ResponseStatus    *int
	ResponseBody      string
	ResponseTimeMs    *int
	ErrorMessage      string
	DeliveredAt       *time.Time
	CreatedAt         time.Time
}
