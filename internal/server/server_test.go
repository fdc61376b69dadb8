package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ziadkadry99/perfreview/internal/audit"
	"github.com/ziadkadry99/perfreview/internal/config"
	"github.com/ziadkadry99/perfreview/internal/db"
	"github.com/ziadkadry99/perfreview/internal/redact"
	"github.com/ziadkadry99/perfreview/internal/telemetry"
)

type harness struct {
	handler http.Handler
	comps   *Components
}

func setup(t *testing.T) *harness {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.Audit.Workers = 1

	reg := prometheus.NewRegistry()
	comps := Assemble(cfg, database, zap.NewNop(), telemetry.NewMetrics(reg))
	t.Cleanup(func() { comps.Close(context.Background()) })

	srv := New(Config{AllowAll: true}, zap.NewNop(), reg)
	comps.RegisterRoutes(srv)
	return &harness{handler: srv.Handler(), comps: comps}
}

func (h *harness) do(t *testing.T, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set("X-User-ID", actor)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) create(t *testing.T, path, actor string, body any) string {
	t.Helper()
	rec := h.do(t, http.MethodPost, path, actor, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out.ID
}

// entries drains the audit queue and returns everything persisted.
func (h *harness) entries(t *testing.T, filter audit.QueryFilter) []audit.Entry {
	t.Helper()
	require.NoError(t, h.comps.Close(context.Background()))
	got, err := h.comps.AuditStore.Query(context.Background(), filter)
	require.NoError(t, err)
	return got
}

func TestHealthCheck(t *testing.T) {
	h := setup(t)
	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestCORSHeaders(t *testing.T) {
	h := setup(t)
	req := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := setup(t)
	h.create(t, "/api/admin/departments", "", map[string]string{"name": "Ops"})
	require.NoError(t, h.comps.Close(context.Background()))

	rec := h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `perfreview_audit_records_total{status="success"} 1`)
}

func TestUserMutationsAreAudited(t *testing.T) {
	h := setup(t)

	adminID := h.create(t, "/api/admin/users", "", map[string]any{
		"name": "Admin Ann", "email": "ann@example.com", "role": "ADMIN",
	})
	bobID := h.create(t, "/api/admin/users", adminID, map[string]any{
		"name": "Bob Builder", "email": "bob@example.com", "role": "EMPLOYEE",
		"password": "s3cretpass",
	})

	// Reads never produce records.
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/users/"+bobID, adminID, nil).Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/users", adminID, nil).Code)

	rec := h.do(t, http.MethodPatch, "/api/admin/users/"+bobID, adminID, map[string]string{"role": "MANAGER"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodDelete, "/api/admin/users/missing-user-id", adminID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	all := h.entries(t, audit.QueryFilter{})
	require.Len(t, all, 4)

	byKey := map[string]audit.Entry{}
	for _, e := range all {
		byKey[string(e.Action)+" "+e.ResourceID] = e
	}

	first := byKey["CREATE "+adminID]
	assert.Nil(t, first.UserID)
	assert.Equal(t, "System added Admin Ann as ADMIN", first.Description)

	created := byKey["CREATE "+bobID]
	require.NotNil(t, created.UserID)
	assert.Equal(t, adminID, *created.UserID)
	assert.Equal(t, "users", created.ResourceType)
	assert.Equal(t, audit.StatusSuccess, created.Status)
	require.NotNil(t, created.Changes)
	assert.Equal(t, redact.Marker, created.Changes.After["password"])
	assert.Equal(t, "Admin Ann added Bob Builder as EMPLOYEE", created.Description)

	updated := byKey["UPDATE "+bobID]
	require.NotNil(t, updated.Changes)
	assert.Equal(t, "EMPLOYEE", updated.Changes.Before["role"])
	assert.Equal(t, "MANAGER", updated.Changes.After["role"])
	assert.Equal(t, "Admin Ann changed Bob Builder's role from EMPLOYEE to MANAGER", updated.Description)
	require.NotNil(t, updated.Metadata)
	assert.Equal(t, "PATCH", updated.Metadata.Method)

	failed := byKey["DELETE missing-user-id"]
	assert.Equal(t, audit.StatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "not found", *failed.ErrorMessage)
	assert.Equal(t, "Admin Ann failed to delete User missing-... (not found)", failed.Description)
}

func TestReviewTransitionsAreAudited(t *testing.T) {
	h := setup(t)

	mgrID := h.create(t, "/api/admin/users", "", map[string]any{
		"name": "Maya Manager", "email": "maya@example.com", "role": "MANAGER",
	})
	empID := h.create(t, "/api/admin/users", "", map[string]any{
		"name": "Eli Employee", "email": "eli@example.com", "managerId": mgrID,
	})
	cycleID := h.create(t, "/api/admin/cycles", "", map[string]any{
		"name":     "H1",
		"startsOn": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"endsOn":   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	})
	reviewID := h.create(t, "/api/reviews", mgrID, map[string]string{
		"revieweeId": empID, "reviewerId": mgrID, "cycleId": cycleID,
	})

	rec := h.do(t, http.MethodPatch, "/api/reviews/"+reviewID+"/manager-submission", mgrID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPatch, "/api/reviews/"+reviewID+"/share", mgrID, nil)
	require.Equal(t, http.StatusConflict, rec.Code, "cannot share before the self-review")

	got := h.entries(t, audit.QueryFilter{ResourceType: "reviews"})
	require.Len(t, got, 3)

	var descriptions []string
	for _, e := range got {
		descriptions = append(descriptions, e.Description)
	}
	joined := strings.Join(descriptions, "\n")
	assert.Contains(t, joined, "Maya Manager assigned a review of Eli Employee to Maya Manager")
	assert.Contains(t, joined, "Maya Manager submitted the manager assessment for Eli Employee's review")
	assert.Contains(t, joined, "Maya Manager failed to update Review "+reviewID[:8]+"...")

	for _, e := range got {
		if e.Action == audit.ActionUpdate && e.Status == audit.StatusSuccess {
			require.NotNil(t, e.Changes)
			assert.Equal(t, "SELF_REVIEW", e.Changes.Before["status"])
			assert.Equal(t, "MANAGER_REVIEW", e.Changes.After["status"])
		}
	}
}

func TestAuditReadAPI(t *testing.T) {
	h := setup(t)
	deptID := h.create(t, "/api/admin/departments", "", map[string]string{"name": "Ops"})
	require.NoError(t, h.comps.Close(context.Background()))

	rec := h.do(t, http.MethodGet, "/api/admin/audit-logs?resource_type=departments", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []audit.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, deptID, entries[0].ResourceID)

	rec = h.do(t, http.MethodGet, "/api/admin/audit-logs/"+entries[0].ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
