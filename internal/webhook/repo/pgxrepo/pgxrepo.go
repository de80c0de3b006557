// Package pgxrepo is the pgx-backed production implementation of
// repo.Repository, following the raw-SQL/manual-scan style used throughout
// this stack's storage layer.
package pgxrepo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sanderm5/Sky-planner-sub006/internal/webhook"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/repo"
)

type Repo struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func eventsToText(events []webhook.EventType) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func textToEvents(texts []string) []webhook.EventType {
	out := make([]webhook.EventType, len(texts))
	for i, t := range texts {
		out[i] = webhook.EventType(t)
	}
	return out
}

func scanEndpoint(row pgx.Row) (*webhook.Endpoint, error) {
	var e webhook.Endpoint
	var events []string
	if err := row.Scan(&e.ID, &e.OrganizationID, &e.URL, &e.Name, &e.Description,
		&events, &e.SecretHash, &e.IsActive, &e.FailureCount, &e.CreatedBy,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, err
	}
	e.Events = textToEvents(events)
	return &e, nil
}

func (r *Repo) CreateEndpoint(ctx context.Context, p repo.NewEndpointParams) (*webhook.Endpoint, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_endpoints
			(organization_id, url, name, description, events, secret_hash, is_active, failure_count, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, 0, $7, now(), now())
		RETURNING id, organization_id, url, name, description, events, secret_hash, is_active, failure_count, created_by, created_at, updated_at`,
		p.OrganizationID, p.URL, p.Name, p.Description, eventsToText(p.Events), p.SecretHash, p.CreatedBy,
	)
	return scanEndpoint(row)
}

func (r *Repo) GetEndpoint(ctx context.Context, orgID, id int64) (*webhook.Endpoint, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, url, name, description, events, secret_hash, is_active, failure_count, created_by, created_at, updated_at
		FROM webhook_endpoints WHERE id = $1 AND organization_id = $2`, id, orgID)
	return scanEndpoint(row)
}

func (r *Repo) ListEndpoints(ctx context.Context, orgID int64) ([]*webhook.Endpoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, url, name, description, events, secret_hash, is_active, failure_count, created_by, created_at, updated_at
		FROM webhook_endpoints WHERE organization_id = $1 ORDER BY id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webhook.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateEndpoint(ctx context.Context, orgID, id int64, p repo.UpdateEndpointParams) (*webhook.Endpoint, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE webhook_endpoints
		SET url = $1, name = $2, description = $3, events = $4, updated_at = now()
		WHERE id = $5 AND organization_id = $6
		RETURNING id, organization_id, url, name, description, events, secret_hash, is_active, failure_count, created_by, created_at, updated_at`,
		p.URL, p.Name, p.Description, eventsToText(p.Events), id, orgID,
	)
	return scanEndpoint(row)
}

func (r *Repo) DeleteEndpoint(ctx context.Context, orgID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetEndpointInternal(ctx context.Context, id int64) (*webhook.Endpoint, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, url, name, description, events, secret_hash, is_active, failure_count, created_by, created_at, updated_at
		FROM webhook_endpoints WHERE id = $1`, id)
	return scanEndpoint(row)
}

func (r *Repo) GetActiveEndpointsForEvent(ctx context.Context, orgID int64, eventType webhook.EventType) ([]*webhook.Endpoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, url, name, description, events, secret_hash, is_active, failure_count, created_by, created_at, updated_at
		FROM webhook_endpoints
		WHERE organization_id = $1 AND is_active = true AND $2 = ANY(events)
		ORDER BY id`, orgID, string(eventType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webhook.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateSecretHash(ctx context.Context, orgID, id int64, secretHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_endpoints SET secret_hash = $1, updated_at = now() WHERE id = $2 AND organization_id = $3`,
		secretHash, id, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *Repo) DisableEndpoint(ctx context.Context, id int64, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_endpoints SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *Repo) RecordSuccess(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE webhook_endpoints SET failure_count = 0 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *Repo) RecordFailure(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		UPDATE webhook_endpoints SET failure_count = failure_count + 1 WHERE id = $1 RETURNING failure_count`, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repo.ErrNotFound
	}
	return count, err
}

func scanDelivery(row pgx.Row) (*webhook.Delivery, error) {
	var d webhook.Delivery
	var eventType string
	if err := row.Scan(&d.ID, &d.WebhookEndpointID, &d.OrganizationID, &eventType, &d.EventID,
		&d.Payload, &d.Status, &d.AttemptCount, &d.MaxAttempts, &d.NextRetryAt,
		&d.ResponseStatus, &d.ResponseBody, &d.ResponseTimeMs, &d.ErrorMessage,
		&d.DeliveredAt, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, err
	}
	d.EventType = webhook.EventType(eventType)
	return &d, nil
}

const deliveryColumns = `id, webhook_endpoint_id, organization_id, event_type, event_id, payload, status, attempt_count, max_attempts, next_retry_at, response_status, response_body, response_time_ms, error_message, delivered_at, created_at`

func (r *Repo) CreateDelivery(ctx context.Context, d *webhook.Delivery) (*webhook.Delivery, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_deliveries
			(webhook_endpoint_id, organization_id, event_type, event_id, payload, status, attempt_count, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, now())
		RETURNING `+deliveryColumns,
		d.WebhookEndpointID, d.OrganizationID, string(d.EventType), d.EventID, d.Payload, d.Status, d.MaxAttempts,
	)
	return scanDelivery(row)
}

func (r *Repo) GetPendingDeliveries(ctx context.Context, now time.Time, limit int) ([]*webhook.Delivery, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE status = 'pending' OR (status = 'retrying' AND next_retry_at <= $1)
		ORDER BY id
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webhook.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repo) GetDelivery(ctx context.Context, id int64) (*webhook.Delivery, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)
	return scanDelivery(row)
}

func (r *Repo) GetDeliveryHistory(ctx context.Context, endpointID int64, limit int) ([]*webhook.Delivery, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries WHERE webhook_endpoint_id = $1 ORDER BY id DESC LIMIT $2`, endpointID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*webhook.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateDeliveryStatus(ctx context.Context, d *webhook.Delivery) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $1, attempt_count = $2, next_retry_at = $3, response_status = $4,
		    response_body = $5, response_time_ms = $6, error_message = $7, delivered_at = $8
		WHERE id = $9`,
		d.Status, d.AttemptCount, d.NextRetryAt, d.ResponseStatus, d.ResponseBody,
		d.ResponseTimeMs, d.ErrorMessage, d.DeliveredAt, d.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *Repo) InsertAuditLog(ctx context.Context, orgID, userID int64, action string, detail map[string]any) error {
	body, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO security_audit_log (organization_id, user_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, now())`, orgID, userID, action, body)
	return err
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// IsUniqueViolation is a small helper HTTP handlers can use to turn
// constraint violations into 409s instead of 500s; not required by the
// repository interface itself.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value")
}

var _ repo.Repository = (*Repo)(nil)
