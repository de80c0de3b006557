// Package dispatch implements the Event Dispatcher (§4.E): it turns a
// business event into one queued delivery per subscribed endpoint and kicks
// the Delivery Engine without blocking the caller.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sanderm5/Sky-planner-sub006/internal/logging"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/repo"
)

// Kicker is satisfied by delivery.Engine; kept as an interface so the
// dispatcher can be tested without spinning up real HTTP delivery.
type Kicker interface {
	Kick(ctx context.Context)
}

type Dispatcher struct {
	repo   repo.Repository
	engine Kicker
}

func New(r repo.Repository, engine Kicker) *Dispatcher {
	return &Dispatcher{repo: r, engine: engine}
}

type envelope struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `json:"created_at"`
	OrganizationID int64     `json:"organization_id"`
	Data           any       `json:"data"`
}

// TriggerEvent queues a delivery for every active endpoint subscribed to
// eventType and asynchronously kicks the delivery engine. It never blocks
// the caller on delivery outcomes.
func (d *Dispatcher) TriggerEvent(ctx context.Context, orgID int64, eventType webhook.EventType, data any) error {
	endpoints, err := d.repo.GetActiveEndpointsForEvent(ctx, orgID, eventType)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		logging.DebugContext(ctx, "dispatch: no subscribed endpoints", "event_type", eventType, "org_id", orgID)
		return nil
	}

	eventID := "evt_" + uuid.New().String()
	env := envelope{
		ID:             eventID,
		Type:           string(eventType),
		CreatedAt:      time.Now().UTC(),
		OrganizationID: orgID,
		Data:           data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	for _, ep := range endpoints {
		_, err := d.repo.CreateDelivery(ctx, &webhook.Delivery{
			WebhookEndpointID: ep.ID,
			OrganizationID:    orgID,
			EventType:         eventType,
			EventID:           eventID,
			Payload:           payload,
			Status:            webhook.StatusPending,
			MaxAttempts:       webhook.MaxAttempts,
		})
		if err != nil {
			logging.ErrorContext(ctx, "dispatch: create delivery failed", "endpoint_id", ep.ID, "error", err)
		}
	}

	go d.engine.Kick(context.WithoutCancel(ctx))
	return nil
}

type CustomerData struct {
	Customer any `json:"customer"`
}

type RouteCompletedData struct {
	Route any `json:"route"`
}

type SyncData struct {
	Sync any `json:"sync"`
}

func (d *Dispatcher) TriggerCustomerCreated(ctx context.Context, orgID int64, customer any) error {
	return d.TriggerEvent(ctx, orgID, webhook.EventCustomerCreated, CustomerData{Customer: customer})
}

func (d *Dispatcher) TriggerCustomerUpdated(ctx context.Context, orgID int64, customer any) error {
	return d.TriggerEvent(ctx, orgID, webhook.EventCustomerUpdated, CustomerData{Customer: customer})
}

func (d *Dispatcher) TriggerCustomerDeleted(ctx context.Context, orgID int64, customer any) error {
	return d.TriggerEvent(ctx, orgID, webhook.EventCustomerDeleted, CustomerData{Customer: customer})
}

func (d *Dispatcher) TriggerRouteCompleted(ctx context.Context, orgID int64, route any) error {
	return d.TriggerEvent(ctx, orgID, webhook.EventRouteCompleted, RouteCompletedData{Route: route})
}

func (d *Dispatcher) TriggerSyncCompleted(ctx context.Context, orgID int64, sync any) error {
	return d.TriggerEvent(ctx, orgID, webhook.EventSyncCompleted, SyncData{Sync: sync})
}

func (d *Dispatcher) TriggerSyncFailed(ctx context.Context, orgID int64, sync any) error {
	return d.TriggerEvent(ctx, orgID, webhook.EventSyncFailed, SyncData{Sync: sync})
}
