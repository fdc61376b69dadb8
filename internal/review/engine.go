// Package review owns the performance review lifecycle.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ziadkadry99/perfreview/internal/orgstructure"
	"github.com/ziadkadry99/perfreview/internal/telemetry"
)

// Directory answers the org-chart questions the engine asks.
type Directory interface {
	ManagerOf(ctx context.Context, userID string) (string, bool, error)
	ListUsers(ctx context.Context, filter orgstructure.UserFilter) ([]orgstructure.User, error)
}

// maxAttempts bounds compare-and-swap retries when another process wins
// the version race.
const maxAttempts = 5

// Engine applies lifecycle transitions. All transitions on one review are
// linearizable: they run under a per-review lock and commit with a version
// check.
type Engine struct {
	store     *Store
	directory Directory
	logger    *zap.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	locks     *keyLock
	now       func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(store *Store, directory Directory, logger *zap.Logger, metrics *telemetry.Metrics) *Engine {
	return &Engine{
		store:     store,
		directory: directory,
		logger:    logger.Named("review"),
		metrics:   metrics,
		tracer:    telemetry.Tracer("github.com/ziadkadry99/perfreview/internal/review"),
		locks:     newKeyLock(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the engine's backing store for read paths.
func (e *Engine) Store() *Store { return e.store }

// SubmitSelfReview records the reviewee's submission.
func (e *Engine) SubmitSelfReview(ctx context.Context, id string) (*Review, error) {
	return e.transition(ctx, id, EventSelfSubmitted, "")
}

// SubmitManagerReview records the reviewer's submission.
func (e *Engine) SubmitManagerReview(ctx context.Context, id string) (*Review, error) {
	return e.transition(ctx, id, EventManagerSubmitted, "")
}

// ShareReview shares a review whose both tracks are in.
func (e *Engine) ShareReview(ctx context.Context, id string) (*Review, error) {
	return e.transition(ctx, id, EventShared, "")
}

// AcknowledgeReview records the reviewee's acknowledgement. The review
// completes on the spot unless the reviewer has a manager to approve it.
func (e *Engine) AcknowledgeReview(ctx context.Context, id string) (*Review, error) {
	return e.transition(ctx, id, EventAcknowledged, "")
}

// ApproveReview records the skip-level approval.
func (e *Engine) ApproveReview(ctx context.Context, id, approverID string) (*Review, error) {
	return e.transition(ctx, id, EventApproved, approverID)
}

func (e *Engine) transition(ctx context.Context, id string, ev Event, approverID string) (*Review, error) {
	ctx, span := e.tracer.Start(ctx, "review."+string(ev),
		trace.WithAttributes(attribute.String("review.id", id)))
	defer span.End()

	r, from, err := e.mutate(ctx, id, func(ctx context.Context, r *Review) error {
		in := transitionInput{now: e.now(), approverID: approverID}
		if ev == EventAcknowledged && Accepts(r.Status, ev) {
			_, ok, err := e.directory.ManagerOf(ctx, r.ReviewerID)
			if err != nil {
				return fmt.Errorf("looking up skip-level for reviewer %s: %w", r.ReviewerID, err)
			}
			in.hasSkipLevel = ok
		}
		return apply(r, ev, in)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var te *TransitionError
		if errors.As(err, &te) {
			e.logger.Info("review transition rejected",
				zap.String("review_id", id),
				zap.String("event", string(ev)),
				zap.String("status", string(te.From)),
				zap.String("reason", te.Reason),
			)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("review.from", string(from)),
		attribute.String("review.to", string(r.Status)),
	)
	e.metrics.ReviewTransitions.WithLabelValues(string(ev), string(r.Status)).Inc()
	e.logger.Info("review transitioned",
		zap.String("review_id", id),
		zap.String("event", string(ev)),
		zap.String("from", string(from)),
		zap.String("to", string(r.Status)),
	)
	return r, nil
}

// mutate runs fn against the latest copy of the review and commits the
// result, retrying when another writer bumped the version in between.
func (e *Engine) mutate(ctx context.Context, id string, fn func(ctx context.Context, r *Review) error) (*Review, Status, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		from, version := r.Status, r.Version

		if err := fn(ctx, r); err != nil {
			return nil, from, err
		}

		err = e.store.update(ctx, r, version)
		if errors.Is(err, errVersionConflict) {
			e.logger.Debug("review version conflict, retrying",
				zap.String("review_id", id),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, from, err
		}
		return r, from, nil
	}
	return nil, "", fmt.Errorf("review %s: %w", id, ErrConcurrentUpdate)
}

// SaveDraft updates narrative fields of tracks that are still open.
func (e *Engine) SaveDraft(ctx context.Context, id string, d Draft) (*Review, error) {
	r, _, err := e.mutate(ctx, id, func(_ context.Context, r *Review) error {
		if d.touchesSelf() && r.SelfSubmittedAt != nil {
			return &TransitionError{ReviewID: r.ID, From: r.Status, Event: "draft", Reason: "self-review already submitted"}
		}
		if d.touchesManager() && r.ManagerSubmittedAt != nil {
			return &TransitionError{ReviewID: r.ID, From: r.Status, Event: "draft", Reason: "manager review already submitted"}
		}
		if d.SelfSummary != nil {
			r.SelfSummary = *d.SelfSummary
		}
		if d.SelfRating != nil {
			v := *d.SelfRating
			r.SelfRating = &v
		}
		if len(d.Reflections) > 0 {
			r.Reflections = d.Reflections
		}
		if d.ManagerSummary != nil {
			r.ManagerSummary = *d.ManagerSummary
		}
		if d.ManagerRating != nil {
			v := *d.ManagerRating
			r.ManagerRating = &v
		}
		if len(d.Competencies) > 0 {
			r.Competencies = d.Competencies
		}
		return nil
	})
	return r, err
}

// Assign creates a review for reviewee in cycle, in SELF_REVIEW.
func (e *Engine) Assign(ctx context.Context, revieweeID, reviewerID, cycleID string) (*Review, error) {
	if revieweeID == reviewerID {
		return nil, fmt.Errorf("%w: reviewee cannot review themselves", ErrPreconditionViolation)
	}
	c, err := e.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if c.Status == CycleClosed {
		return nil, fmt.Errorf("%w: cycle %s is closed", ErrPreconditionViolation, c.Name)
	}

	r := &Review{RevieweeID: revieweeID, ReviewerID: reviewerID, CycleID: cycleID}
	if err := e.store.Create(ctx, r); err != nil {
		return nil, err
	}
	e.logger.Info("review assigned",
		zap.String("review_id", r.ID),
		zap.String("reviewee_id", revieweeID),
		zap.String("reviewer_id", reviewerID),
		zap.String("cycle_id", cycleID),
	)
	return r, nil
}

// CreateCycle validates and stores a new cycle in DRAFT.
func (e *Engine) CreateCycle(ctx context.Context, c *Cycle) error {
	if c.Name == "" {
		return fmt.Errorf("%w: cycle name is required", ErrPreconditionViolation)
	}
	if !c.EndsOn.After(c.StartsOn) {
		return fmt.Errorf("%w: cycle must end after it starts", ErrPreconditionViolation)
	}
	c.Status = CycleDraft
	return e.store.CreateCycle(ctx, c)
}

// ListCycles returns all cycles.
func (e *Engine) ListCycles(ctx context.Context) ([]Cycle, error) {
	return e.store.ListCycles(ctx)
}

// LaunchCycle assigns a review to every active user that has a manager,
// with the manager as reviewer, and activates the cycle. Users already
// assigned in the cycle are skipped, so launching again picks up only new
// arrivals.
func (e *Engine) LaunchCycle(ctx context.Context, cycleID string) (*LaunchResult, error) {
	ctx, span := e.tracer.Start(ctx, "review.launch_cycle",
		trace.WithAttributes(attribute.String("cycle.id", cycleID)))
	defer span.End()

	unlock := e.locks.Lock("cycle:" + cycleID)
	defer unlock()

	c, err := e.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if c.Status == CycleClosed {
		return nil, fmt.Errorf("%w: cycle %s is closed", ErrPreconditionViolation, c.Name)
	}

	users, err := e.directory.ListUsers(ctx, orgstructure.UserFilter{ActiveOnly: true, HasManager: true})
	if err != nil {
		return nil, fmt.Errorf("listing reviewees: %w", err)
	}
	existing, err := e.store.revieweesInCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	res := &LaunchResult{Assigned: []string{}}
	for _, u := range users {
		if existing[u.ID] {
			res.Skipped++
			continue
		}
		r := &Review{RevieweeID: u.ID, ReviewerID: u.ManagerID, CycleID: cycleID}
		if err := e.store.Create(ctx, r); err != nil {
			if errors.Is(err, ErrPreconditionViolation) {
				res.Skipped++
				continue
			}
			span.RecordError(err)
			return nil, err
		}
		res.Assigned = append(res.Assigned, r.ID)
	}

	if c.Status != CycleActive {
		if err := e.store.setCycleStatus(ctx, c, CycleActive); err != nil {
			return nil, err
		}
	}
	res.Cycle = c

	span.SetAttributes(attribute.Int("cycle.assigned", len(res.Assigned)))
	e.logger.Info("review cycle launched",
		zap.String("cycle_id", cycleID),
		zap.Int("assigned", len(res.Assigned)),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}
