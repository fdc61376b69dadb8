package review

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func setupRouter(t *testing.T) (*chi.Mux, *fixture) {
	t.Helper()
	f := setup(t)
	r := chi.NewRouter()
	RegisterRoutes(r, f.engine)
	return r, f
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTPLifecycle(t *testing.T) {
	router, f := setupRouter(t)
	sm := f.user(t, "skip", "")
	m := f.user(t, "manager", sm.ID)
	e := f.user(t, "employee", m.ID)

	rec := doJSON(t, router, http.MethodPost, "/api/reviews", map[string]string{
		"revieweeId": e.ID, "reviewerId": m.ID, "cycleId": f.cycle.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("assign status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rv Review
	if err := json.NewDecoder(rec.Body).Decode(&rv); err != nil {
		t.Fatalf("decode: %v", err)
	}

	steps := []struct {
		path string
		want Status
	}{
		{"/manager-submission", StatusManagerReview},
		{"/self-submission", StatusReadyToShare},
		{"/share", StatusShared},
		{"/acknowledgement", StatusPendingApproval},
	}
	for _, s := range steps {
		rec := doJSON(t, router, http.MethodPatch, "/api/reviews/"+rv.ID+s.path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body = %s", s.path, rec.Code, rec.Body.String())
		}
		var got Review
		json.NewDecoder(rec.Body).Decode(&got)
		if got.Status != s.want {
			t.Fatalf("%s: status = %s, want %s", s.path, got.Status, s.want)
		}
	}

	rec = doJSON(t, router, http.MethodPatch, "/api/reviews/"+rv.ID+"/approval", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("approval without approver status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPatch, "/api/reviews/"+rv.ID+"/approval", map[string]string{"approverId": sm.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("approval status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var done Review
	json.NewDecoder(rec.Body).Decode(&done)
	if done.Status != StatusCompleted || done.SkipLevelApproverID != sm.ID {
		t.Errorf("after approval: %+v", done)
	}

	rec = doJSON(t, router, http.MethodPatch, "/api/reviews/"+rv.ID+"/share", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("share after completion status = %d, want 409", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["error"] == "" {
		t.Error("expected error message in body")
	}
}

func TestHTTPNotFoundAndValidation(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/reviews/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPatch, "/api/reviews/missing/share", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("share missing status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/reviews", map[string]string{"revieweeId": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("assign incomplete status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/reviews?status=BOGUS", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPatch, "/api/reviews/missing", map[string]any{"selfRating": 9})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("out of range rating = %d, want 400", rec.Code)
	}
}

func TestHTTPCycles(t *testing.T) {
	router, f := setupRouter(t)
	m := f.user(t, "boss", "")
	f.user(t, "worker", m.ID)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/cycles", map[string]string{
		"name": "2025 H2", "startsOn": "2025-07-01T00:00:00Z", "endsOn": "2025-12-31T00:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create cycle status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var c Cycle
	json.NewDecoder(rec.Body).Decode(&c)
	if c.Status != CycleDraft {
		t.Errorf("Status = %s, want DRAFT", c.Status)
	}

	rec = doJSON(t, router, http.MethodPatch, "/api/admin/cycles/"+c.ID+"/launch", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("launch status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res LaunchResult
	json.NewDecoder(rec.Body).Decode(&res)
	if len(res.Assigned) != 1 || res.Cycle.Status != CycleActive {
		t.Errorf("launch result = %+v", res)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/admin/cycles", nil)
	var cycles []Cycle
	json.NewDecoder(rec.Body).Decode(&cycles)
	if len(cycles) != 2 {
		t.Errorf("got %d cycles, want 2", len(cycles))
	}

	rec = doJSON(t, router, http.MethodGet, "/api/reviews?cycle="+c.ID, nil)
	var reviews []Review
	json.NewDecoder(rec.Body).Decode(&reviews)
	if len(reviews) != 1 {
		t.Errorf("got %d reviews in cycle, want 1", len(reviews))
	}
}
