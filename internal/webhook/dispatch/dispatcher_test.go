package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sanderm5/Sky-planner-sub006/internal/webhook"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/repo"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/repo/memrepo"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/sign"
)

type countingKicker struct {
	count int32
	done  chan struct{}
}

func (k *countingKicker) Kick(ctx context.Context) {
	atomic.AddInt32(&k.count, 1)
	if k.done != nil {
		select {
		case k.done <- struct{}{}:
		default:
		}
	}
}

func TestTriggerEvent_NoSubscribers_NoOp(t *testing.T) {
	r := memrepo.New()
	kicker := &countingKicker{}
	d := New(r, kicker)

	if err := d.TriggerEvent(context.Background(), 1, webhook.EventCustomerCreated, map[string]any{"id": 7}); err != nil {
		t.Fatalf("TriggerEvent: %v", err)
	}
	if atomic.LoadInt32(&kicker.count) != 0 {
		t.Fatal("expected engine not to be kicked with no subscribers")
	}
}

func TestTriggerEvent_CreatesOneDeliveryPerEndpointAndKicks(t *testing.T) {
	r := memrepo.New()
	ep1, _ := r.CreateEndpoint(context.Background(), repo.NewEndpointParams{
		OrganizationID: 1, URL: "https://a.example.com/hook", Name: "a",
		Events: []webhook.EventType{webhook.EventCustomerCreated}, SecretHash: sign.HashSecret("s1"),
	})
	ep2, _ := r.CreateEndpoint(context.Background(), repo.NewEndpointParams{
		OrganizationID: 1, URL: "https://b.example.com/hook", Name: "b",
		Events: []webhook.EventType{webhook.EventCustomerCreated}, SecretHash: sign.HashSecret("s2"),
	})
	// different org, should not receive a delivery
	_, _ = r.CreateEndpoint(context.Background(), repo.NewEndpointParams{
		OrganizationID: 2, URL: "https://c.example.com/hook", Name: "c",
		Events: []webhook.EventType{webhook.EventCustomerCreated}, SecretHash: sign.HashSecret("s3"),
	})

	done := make(chan struct{}, 1)
	kicker := &countingKicker{done: done}
	d := New(r, kicker)

	if err := d.TriggerEvent(context.Background(), 1, webhook.EventCustomerCreated, map[string]any{"id": 7}); err != nil {
		t.Fatalf("TriggerEvent: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected engine.Kick to be called asynchronously")
	}

	h1, _ := r.GetDeliveryHistory(context.Background(), ep1.ID, 10)
	h2, _ := r.GetDeliveryHistory(context.Background(), ep2.ID, 10)
	if len(h1) != 1 || len(h2) != 1 {
		t.Fatalf("expected one delivery per subscribed endpoint, got %d and %d", len(h1), len(h2))
	}
	if h1[0].EventID != h2[0].EventID {
		t.Fatal("expected the same event_id shared across fanned-out deliveries")
	}
	if h1[0].Status != webhook.StatusPending {
		t.Fatalf("expected status pending, got %s", h1[0].Status)
	}
}
