package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sanderm5/Sky-planner-sub006/internal/logging"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/errs"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/repo"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/sign"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/urlsafety"
)

// writeURLError maps a urlsafety validation failure to a 400 with its
// user-visible reason via errors.As, the kind-based dispatch SPEC_FULL.md
// calls for instead of string matching.
func writeURLError(w http.ResponseWriter, err error) {
	var invalidURL *errs.InvalidURL
	if errors.As(err, &invalidURL) {
		writeError(w, http.StatusBadRequest, invalidURL.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

type handlers struct {
	deps Deps
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.deps.Repo.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type endpointResponse struct {
	ID             int64              `json:"id"`
	OrganizationID int64              `json:"organization_id"`
	URL            string             `json:"url"`
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	Events         []webhook.EventType `json:"events"`
	IsActive       bool               `json:"is_active"`
	FailureCount   int                `json:"failure_count"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func toResponse(e *webhook.Endpoint) endpointResponse {
	return endpointResponse{
		ID: e.ID, OrganizationID: e.OrganizationID, URL: e.URL, Name: e.Name, Description: e.Description,
		Events: e.Events, IsActive: e.IsActive, FailureCount: e.FailureCount, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
}

type createEndpointRequest struct {
	URL         string              `json:"url"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Events      []webhook.EventType `json:"events"`
}

func (h *handlers) createEndpoint(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var req createEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "events must not be empty")
		return
	}
	if err := urlsafety.Validate(r.Context(), req.URL); err != nil {
		writeURLError(w, err)
		return
	}

	secret, err := sign.GenerateSecret()
	if err != nil {
		logging.ErrorContext(r.Context(), "api: generate secret failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ep, err := h.deps.Repo.CreateEndpoint(r.Context(), repo.NewEndpointParams{
		OrganizationID: user.OrganizationID,
		URL:            req.URL,
		Name:           req.Name,
		Description:    req.Description,
		Events:         req.Events,
		SecretHash:     sign.HashSecret(secret),
		CreatedBy:      user.UserID,
	})
	if err != nil {
		logging.ErrorContext(r.Context(), "api: create endpoint failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	_ = h.deps.Repo.InsertAuditLog(r.Context(), user.OrganizationID, user.UserID, "webhook_endpoint_created", map[string]any{"endpoint_id": ep.ID})

	resp := map[string]any{"endpoint": toResponse(ep), "secret": secret}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *handlers) listEndpoints(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	eps, err := h.deps.Repo.ListEndpoints(r.Context(), user.OrganizationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]endpointResponse, len(eps))
	for i, e := range eps {
		out[i] = toResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getEndpoint(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	ep, err := h.deps.Repo.GetEndpoint(r.Context(), user.OrganizationID, id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(ep))
}

func (h *handlers) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req createEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := urlsafety.Validate(r.Context(), req.URL); err != nil {
		writeURLError(w, err)
		return
	}
	ep, err := h.deps.Repo.UpdateEndpoint(r.Context(), user.OrganizationID, id, repo.UpdateEndpointParams{
		URL: req.URL, Name: req.Name, Description: req.Description, Events: req.Events,
	})
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(ep))
}

func (h *handlers) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.deps.Repo.DeleteEndpoint(r.Context(), user.OrganizationID, id); errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) rotateSecret(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if _, err := h.deps.Repo.GetEndpoint(r.Context(), user.OrganizationID, id); errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	secret, err := sign.GenerateSecret()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.deps.Repo.UpdateSecretHash(r.Context(), user.OrganizationID, id, sign.HashSecret(secret)); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	_ = h.deps.Repo.InsertAuditLog(r.Context(), user.OrganizationID, user.UserID, "webhook_secret_rotated", map[string]any{"endpoint_id": id})

	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

func (h *handlers) listDeliveries(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if _, err := h.deps.Repo.GetEndpoint(r.Context(), user.OrganizationID, id); errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	deliveries, err := h.deps.Repo.GetDeliveryHistory(r.Context(), id, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, deliveries)
}

func (h *handlers) retryDelivery(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	d, err := h.deps.Repo.GetDelivery(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if d.OrganizationID != user.OrganizationID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if d.Status == webhook.StatusDelivered {
		writeError(w, http.StatusConflict, "delivery already delivered")
		return
	}

	d.Status = webhook.StatusPending
	d.AttemptCount = 0
	d.NextRetryAt = nil
	d.ErrorMessage = ""
	if err := h.deps.Repo.UpdateDeliveryStatus(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	go h.deps.Engine.Kick(context.WithoutCancel(r.Context()))
	w.WriteHeader(http.StatusAccepted)
}
