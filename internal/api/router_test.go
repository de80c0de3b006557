package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sanderm5/Sky-planner-sub006/internal/authn"
	"github.com/sanderm5/Sky-planner-sub006/internal/realtime"
	"github.com/sanderm5/Sky-planner-sub006/internal/realtime/presence"
	"github.com/sanderm5/Sky-planner-sub006/internal/realtime/registry"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/delivery"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/dispatch"
	"github.com/sanderm5/Sky-planner-sub006/internal/webhook/repo/memrepo"
)

func newTestRouter(t *testing.T) (http.Handler, *authn.TokenService, *memrepo.Repo) {
	t.Helper()
	r := memrepo.New()
	engine := delivery.New(r)
	dispatcher := dispatch.New(r, engine)
	auth := authn.NewTokenService("test-secret", "sky-planner", "sp_session", authn.NoopBlacklist{})
	reg := registry.New()
	pres := presence.New(reg)
	hub := realtime.NewHub(reg, pres, auth, nil)

	router := NewRouter(Deps{
		Repo:       r,
		Engine:     engine,
		Dispatcher: dispatcher,
		Auth:       auth,
		Hub:        hub,
	})
	return router, auth, r
}

func authedRequest(t *testing.T, auth *authn.TokenService, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	token, err := auth.Issue(1, 42, "owner@example.com", "tok-1", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "sp_session", Value: token})
	return req
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestEndpointCRUD_RequiresAuth(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/endpoints/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateEndpoint_RejectsNonHTTPS(t *testing.T) {
	router, auth, _ := newTestRouter(t)
	req := authedRequest(t, auth, http.MethodPost, "/api/v1/webhooks/endpoints/", createEndpointRequest{
		URL:    "http://example.com/hook",
		Name:   "billing",
		Events: []webhook.EventType{webhook.EventCustomerCreated},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateEndpoint_RejectsBlockedAddress(t *testing.T) {
	router, auth, _ := newTestRouter(t)
	req := authedRequest(t, auth, http.MethodPost, "/api/v1/webhooks/endpoints/", createEndpointRequest{
		URL:    "https://127.0.0.1/hook",
		Name:   "internal",
		Events: []webhook.EventType{webhook.EventCustomerCreated},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] == "" {
		t.Fatalf("expected a reason in error body, got %v", body)
	}
}

func TestCreateEndpoint_RejectsEmptyEvents(t *testing.T) {
	router, auth, _ := newTestRouter(t)
	req := authedRequest(t, auth, http.MethodPost, "/api/v1/webhooks/endpoints/", createEndpointRequest{
		URL:  "https://example.com/hook",
		Name: "no-events",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEndpointLifecycle(t *testing.T) {
	router, auth, _ := newTestRouter(t)

	createReq := authedRequest(t, auth, http.MethodPost, "/api/v1/webhooks/endpoints/", createEndpointRequest{
		URL:    "https://example.com/hook",
		Name:   "billing",
		Events: []webhook.EventType{webhook.EventCustomerCreated, webhook.EventRouteCompleted},
	})
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201, body=%s", createRec.Code, createRec.Body.String())
	}
	var created struct {
		Endpoint endpointResponse `json:"endpoint"`
		Secret   string           `json:"secret"`
	}
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Secret == "" {
		t.Fatal("expected a plaintext secret in the create response")
	}

	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, authedRequest(t, auth, http.MethodGet, "/api/v1/webhooks/endpoints/", nil))
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", listRec.Code)
	}
	var listed []endpointResponse
	if err := json.Unmarshal(listRec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("len(listed) = %d, want 1", len(listed))
	}

	deleteRec := httptest.NewRecorder()
	path := "/api/v1/webhooks/endpoints/" + itoa(created.Endpoint.ID)
	router.ServeHTTP(deleteRec, authedRequest(t, auth, http.MethodDelete, path+"/", nil))
	if deleteRec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", deleteRec.Code)
	}

	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, authedRequest(t, auth, http.MethodGet, path+"/", nil))
	if getRec.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d, want 404", getRec.Code)
	}
}

func TestEndpointScopedToOwningTenant(t *testing.T) {
	router, auth, r := newTestRouter(t)

	createReq := authedRequest(t, auth, http.MethodPost, "/api/v1/webhooks/endpoints/", createEndpointRequest{
		URL:    "https://example.com/hook",
		Name:   "tenant-42",
		Events: []webhook.EventType{webhook.EventCustomerCreated},
	})
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	var created struct {
		Endpoint endpointResponse `json:"endpoint"`
	}
	_ = json.Unmarshal(createRec.Body.Bytes(), &created)

	otherToken, err := auth.Issue(2, 99, "other@example.com", "tok-2", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	path := "/api/v1/webhooks/endpoints/" + itoa(created.Endpoint.ID) + "/"
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(&http.Cookie{Name: "sp_session", Value: otherToken})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-tenant get status = %d, want 404", rec.Code)
	}

	if _, err := r.GetEndpoint(req.Context(), 42, created.Endpoint.ID); err != nil {
		t.Fatalf("endpoint should still exist for its own tenant: %v", err)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
