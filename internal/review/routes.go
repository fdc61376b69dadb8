package review

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ziadkadry99/perfreview/internal/changetrack"
)

var validate = validator.New()

// RegisterRoutes mounts review and cycle endpoints on the given router.
func RegisterRoutes(r chi.Router, engine *Engine) {
	r.Route("/api/reviews", func(r chi.Router) {
		r.Post("/", assignHandler(engine))
		r.Get("/", listHandler(engine))
		r.Get("/{id}", getHandler(engine))
		r.Patch("/{id}", draftHandler(engine))
		r.Patch("/{id}/self-submission", transitionHandler(engine.SubmitSelfReview))
		r.Patch("/{id}/manager-submission", transitionHandler(engine.SubmitManagerReview))
		r.Patch("/{id}/share", transitionHandler(engine.ShareReview))
		r.Patch("/{id}/acknowledgement", transitionHandler(engine.AcknowledgeReview))
		r.Patch("/{id}/approval", approvalHandler(engine))
	})

	r.Route("/api/admin/cycles", func(r chi.Router) {
		r.Post("/", createCycleHandler(engine))
		r.Get("/", listCyclesHandler(engine))
		r.Patch("/{id}/launch", launchCycleHandler(engine))
	})
}

type assignRequest struct {
	RevieweeID string `json:"revieweeId" validate:"required"`
	ReviewerID string `json:"reviewerId" validate:"required"`
	CycleID    string `json:"cycleId" validate:"required"`
}

type approvalRequest struct {
	ApproverID string `json:"approverId"`
}

type cycleRequest struct {
	Name     string    `json:"name" validate:"required"`
	StartsOn time.Time `json:"startsOn" validate:"required"`
	EndsOn   time.Time `json:"endsOn" validate:"required"`
}

func assignHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		rv, err := engine.Assign(r.Context(), req.RevieweeID, req.ReviewerID, req.CycleID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		changetrack.Report(r.Context(), rv.ID, rv.Fields())
		writeJSON(w, http.StatusCreated, rv)
	}
}

func listHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := Filter{
			CycleID:    q.Get("cycle"),
			RevieweeID: q.Get("reviewee"),
			ReviewerID: q.Get("reviewer"),
			Status:     Status(q.Get("status")),
		}
		if f.Status != "" && !f.Status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+string(f.Status))
			return
		}

		reviews, err := engine.Store().List(r.Context(), f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if reviews == nil {
			reviews = []Review{}
		}
		writeJSON(w, http.StatusOK, reviews)
	}
}

func getHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rv, err := engine.Store().Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rv)
	}
}

func draftHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d Draft
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(d); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		rv, err := engine.SaveDraft(r.Context(), chi.URLParam(r, "id"), d)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rv)
	}
}

// transitionHandler runs one lifecycle event and reports the resulting
// review state as the mutation's after-state.
func transitionHandler(fn func(ctx context.Context, id string) (*Review, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rv, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		changetrack.Report(r.Context(), rv.ID, rv.Fields())
		writeJSON(w, http.StatusOK, rv)
	}
}

// approvalHandler takes the approver from the body, falling back to the
// acting user.
func approvalHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req approvalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ApproverID == "" {
			req.ApproverID = changetrack.ActorFrom(r.Context())
		}

		transitionHandler(func(ctx context.Context, id string) (*Review, error) {
			return engine.ApproveReview(ctx, id, req.ApproverID)
		})(w, r)
	}
}

func createCycleHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cycleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		c := &Cycle{Name: req.Name, StartsOn: req.StartsOn.UTC(), EndsOn: req.EndsOn.UTC()}
		if err := engine.CreateCycle(r.Context(), c); err != nil {
			writeEngineError(w, err)
			return
		}
		changetrack.Report(r.Context(), c.ID, c.Fields())
		writeJSON(w, http.StatusCreated, c)
	}
}

func listCyclesHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cycles, err := engine.ListCycles(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if cycles == nil {
			cycles = []Cycle{}
		}
		writeJSON(w, http.StatusOK, cycles)
	}
}

func launchCycleHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := engine.LaunchCycle(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		changetrack.Report(r.Context(), res.Cycle.ID, res.AuditFields())
		writeJSON(w, http.StatusOK, res)
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPreconditionViolation), errors.Is(err, ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
