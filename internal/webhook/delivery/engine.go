// Package delivery implements the webhook Delivery Engine: the state
// machine that drives one delivery attempt through pending/retrying to
// delivered/failed, with SSRF re-validation, HMAC signing, and auto-disable
// on sustained endpoint failure.
package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sanderm5/Sky-planner-sub006/internal/alerts"
	"github.com/sanderm5/Sky-planner-sub006/internal/logging"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/repo"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/sign"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/urlsafety"
)

const attemptTimeout = 30 * time.Second
const maxResponseBodyChars = 1000

// Alerter is the subset of the alert dispatcher the engine needs to raise
// an operator alert on auto-disable. Optional: a nil Alerter just skips
// the alert.
type Alerter interface {
	Dispatch(ctx context.Context, alert *alerts.Alert)
}

// Engine consumes the repository's "due" set and attempts each delivery.
// It is triggered both by the Event Dispatcher right after it queues new
// deliveries, and by a periodic sweep for retries that have come due; both
// paths call Kick, which is reentrant-safe because the repository is the
// sole source of truth for what is due.
type Engine struct {
	repo       repo.Repository
	httpClient *http.Client
	alerter    Alerter

	mu      sync.Mutex
	running bool
}

func New(r repo.Repository) *Engine {
	return &Engine{
		repo: r,
		httpClient: &http.Client{
			Timeout: attemptTimeout,
		},
	}
}

// WithAlerter attaches an operator-alert sink used to raise a
// system_error alert whenever an endpoint is auto-disabled.
func (e *Engine) WithAlerter(a Alerter) *Engine {
	e.alerter = a
	return e
}

// Kick processes up to 100 currently-due deliveries once. Safe to call
// concurrently: a call made while another Kick is still running returns
// immediately without processing anything.
func (e *Engine) Kick(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	due, err := e.repo.GetPendingDeliveries(ctx, time.Now(), 100)
	if err != nil {
		logging.ErrorContext(ctx, "delivery: list due failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, d := range due {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.attempt(ctx, d)
		}()
	}
	wg.Wait()
}

func (e *Engine) attempt(ctx context.Context, d *webhook.Delivery) {
	log := logging.With(logging.ContextWithEventID(logging.ContextWithOrgID(ctx, d.OrganizationID), d.EventID))

	endpoint, err := e.repo.GetEndpointInternal(ctx, d.WebhookEndpointID)
	if err != nil || !endpoint.IsActive {
		e.fail(ctx, d, "endpoint inactive or not found")
		return
	}

	if err := urlsafety.Validate(ctx, endpoint.URL); err != nil {
		e.fail(ctx, d, err.Error())
		return
	}

	signature := sign.SignatureHeader(endpoint.SecretHash, d.Payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(d.Payload))
	if err != nil {
		e.recordOutcome(ctx, d, endpoint, false, 0, "", 0, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", string(d.EventType))
	req.Header.Set("X-Webhook-ID", d.EventID)
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))
	req.Header.Set("User-Agent", "SkyPlanner-Webhooks/1.0")

	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()
	req = req.WithContext(attemptCtx)

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Warn("delivery attempt transport error", "webhook_id", endpoint.ID, "error", err)
		e.recordOutcome(ctx, d, endpoint, false, 0, "", elapsed, err.Error())
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyChars*4))
	truncated := string(body)
	if len(truncated) > maxResponseBodyChars {
		truncated = truncated[:maxResponseBodyChars]
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	e.recordOutcome(ctx, d, endpoint, success, resp.StatusCode, truncated, elapsed, "")
}

func (e *Engine) recordOutcome(ctx context.Context, d *webhook.Delivery, endpoint *webhook.Endpoint, success bool, status int, body string, elapsed time.Duration, errMsg string) {
	ms := int(elapsed.Milliseconds())
	d.ResponseTimeMs = &ms
	d.ResponseBody = body

	if success {
		now := time.Now()
		d.Status = webhook.StatusDelivered
		d.ResponseStatus = &status
		d.DeliveredAt = &now
		d.ErrorMessage = ""
		d.NextRetryAt = nil
		if err := e.repo.UpdateDeliveryStatus(ctx, d); err != nil {
			logging.ErrorContext(ctx, "delivery: update status failed", "error", err)
		}
		if err := e.repo.RecordSuccess(ctx, endpoint.ID); err != nil {
			logging.ErrorContext(ctx, "delivery: record success failed", "error", err)
		}
		return
	}

	if status != 0 {
		d.ResponseStatus = &status
	}
	d.AttemptCount++
	if errMsg == "" {
		errMsg = "non-2xx response"
	}
	d.ErrorMessage = errMsg

	if d.AttemptCount >= d.MaxAttempts {
		d.Status = webhook.StatusFailed
		d.NextRetryAt = nil
	} else {
		d.Status = webhook.StatusRetrying
		idx := d.AttemptCount - 1
		if idx >= len(webhook.RetryDelays) {
			idx = len(webhook.RetryDelays) - 1
		}
		next := time.Now().Add(webhook.RetryDelays[idx])
		d.NextRetryAt = &next
	}

	if err := e.repo.UpdateDeliveryStatus(ctx, d); err != nil {
		logging.ErrorContext(ctx, "delivery: update status failed", "error", err)
	}

	failureCount, err := e.repo.RecordFailure(ctx, endpoint.ID)
	if err != nil {
		logging.ErrorContext(ctx, "delivery: record failure failed", "error", err)
		return
	}
	if failureCount >= webhook.AutoDisableThreshold {
		if err := e.repo.DisableEndpoint(ctx, endpoint.ID, webhook.AutoDisableReason); err != nil {
			logging.ErrorContext(ctx, "delivery: auto-disable failed", "error", err)
			return
		}
		_ = e.repo.InsertAuditLog(ctx, endpoint.OrganizationID, 0, "webhook_endpoint_auto_disabled", map[string]any{
			"endpoint_id":   endpoint.ID,
			"failure_count": failureCount,
			"reason":        webhook.AutoDisableReason,
		})
		if e.alerter != nil {
			e.alerter.Dispatch(ctx, &alerts.Alert{
				Type:     alerts.TypeSystemError,
				Severity: alerts.SeverityError,
				Title:    "Webhook endpoint auto-disabled",
				Message:  webhook.AutoDisableReason,
				Source:   "webhook-delivery-engine",
				Metadata: map[string]any{"endpoint_id": endpoint.ID, "organization_id": endpoint.OrganizationID},
			})
		}
	}
}

// fail marks d as failed outright, without ever issuing an HTTP request —
// used when the endpoint is inactive/missing or the URL fails
// re-validation.
func (e *Engine) fail(ctx context.Context, d *webhook.Delivery, reason string) {
	d.Status = webhook.StatusFailed
	d.ErrorMessage = reason
	d.NextRetryAt = nil
	if err := e.repo.UpdateDeliveryStatus(ctx, d); err != nil {
		logging.ErrorContext(ctx, "delivery: update status failed", "error", err)
	}
}
