package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a review or cycle does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPreconditionViolation is returned when an operation is not allowed
	// in the review's or cycle's current state. Callers reject the request;
	// retrying will not help.
	ErrPreconditionViolation = errors.New("precondition violation")

	// ErrConcurrentUpdate is returned when a transition kept losing the
	// version race to writers in other processes.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// Status is the lifecycle state of a review.
type Status string

const (
	StatusSelfReview      Status = "SELF_REVIEW"
	StatusManagerReview   Status = "MANAGER_REVIEW"
	StatusReadyToShare    Status = "READY_TO_SHARE"
	StatusShared          Status = "SHARED"
	StatusAcknowledged    Status = "ACKNOWLEDGED"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusCompleted       Status = "COMPLETED"
	// StatusCalibrated is reserved. No transition leads into or out of it.
	StatusCalibrated Status = "CALIBRATED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSelfReview, StatusManagerReview, StatusReadyToShare, StatusShared,
		StatusAcknowledged, StatusPendingApproval, StatusCompleted, StatusCalibrated:
		return true
	}
	return false
}

// Event triggers a lifecycle transition.
type Event string

const (
	EventSelfSubmitted    Event = "self_submitted"
	EventManagerSubmitted Event = "manager_submitted"
	EventShared           Event = "shared"
	EventAcknowledged     Event = "acknowledged"
	EventApproved         Event = "approved"
)

// TransitionError explains why an event was rejected.
type TransitionError struct {
	ReviewID string
	From     Status
	Event    Event
	Reason   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("review %s: cannot apply %s in %s: %s", e.ReviewID, e.Event, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrPreconditionViolation }

// Review is one reviewee/reviewer/cycle assessment.
type Review struct {
	ID                  string          `json:"id"`
	RevieweeID          string          `json:"revieweeId"`
	ReviewerID          string          `json:"reviewerId"`
	CycleID             string          `json:"cycleId"`
	Status              Status          `json:"status"`
	SelfSummary         string          `json:"selfSummary"`
	SelfRating          *int            `json:"selfRating"`
	ManagerSummary      string          `json:"managerSummary"`
	ManagerRating       *int            `json:"managerRating"`
	Competencies        json.RawMessage `json:"competencies"`
	Reflections         json.RawMessage `json:"reflections"`
	SelfSubmittedAt     *time.Time      `json:"selfSubmittedAt"`
	ManagerSubmittedAt  *time.Time      `json:"managerSubmittedAt"`
	SharedAt            *time.Time      `json:"sharedAt"`
	AcknowledgedAt      *time.Time      `json:"acknowledgedAt"`
	SkipLevelApprovedAt *time.Time      `json:"skipLevelApprovedAt"`
	SkipLevelApproverID string          `json:"skipLevelApproverId,omitempty"`
	AutoApproved        bool            `json:"autoApproved"`
	Version             int             `json:"version"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// Fields returns the lifecycle projection of the review, keyed the same
// way as its audit snapshot.
func (r *Review) Fields() map[string]any {
	return map[string]any{
		"id":                  r.ID,
		"revieweeId":          r.RevieweeID,
		"reviewerId":          r.ReviewerID,
		"cycleId":             r.CycleID,
		"status":              string(r.Status),
		"selfRating":          intOrNil(r.SelfRating),
		"managerRating":       intOrNil(r.ManagerRating),
		"selfSubmittedAt":     timeOrNil(r.SelfSubmittedAt),
		"managerSubmittedAt":  timeOrNil(r.ManagerSubmittedAt),
		"sharedAt":            timeOrNil(r.SharedAt),
		"acknowledgedAt":      timeOrNil(r.AcknowledgedAt),
		"skipLevelApprovedAt": timeOrNil(r.SkipLevelApprovedAt),
		"skipLevelApproverId": stringOrNil(r.SkipLevelApproverID),
		"autoApproved":        r.AutoApproved,
	}
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func stringOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Draft is a partial update of the narrative fields. Self fields and
// reflections belong to the self track; manager fields and competencies
// belong to the manager track.
type Draft struct {
	SelfSummary    *string         `json:"selfSummary,omitempty"`
	SelfRating     *int            `json:"selfRating,omitempty" validate:"omitempty,min=1,max=5"`
	Reflections    json.RawMessage `json:"reflections,omitempty"`
	ManagerSummary *string         `json:"managerSummary,omitempty"`
	ManagerRating  *int            `json:"managerRating,omitempty" validate:"omitempty,min=1,max=5"`
	Competencies   json.RawMessage `json:"competencies,omitempty"`
}

func (d Draft) touchesSelf() bool {
	return d.SelfSummary != nil || d.SelfRating != nil || len(d.Reflections) > 0
}

func (d Draft) touchesManager() bool {
	return d.ManagerSummary != nil || d.ManagerRating != nil || len(d.Competencies) > 0
}

// Filter narrows List.
type Filter struct {
	CycleID    string
	RevieweeID string
	ReviewerID string
	Status     Status
}

// CycleStatus is the state of a review cycle.
type CycleStatus string

const (
	CycleDraft  CycleStatus = "DRAFT"
	CycleActive CycleStatus = "ACTIVE"
	CycleClosed CycleStatus = "CLOSED"
)

// Cycle is the time box reviews are created under.
type Cycle struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	StartsOn  time.Time   `json:"startsOn"`
	EndsOn    time.Time   `json:"endsOn"`
	Status    CycleStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Fields returns the cycle projection used in audit records.
func (c *Cycle) Fields() map[string]any {
	return map[string]any{
		"id":       c.ID,
		"name":     c.Name,
		"startsOn": c.StartsOn.UTC().Format(time.RFC3339),
		"endsOn":   c.EndsOn.UTC().Format(time.RFC3339),
		"status":   string(c.Status),
	}
}

// LaunchResult reports what LaunchCycle did.
type LaunchResult struct {
	Cycle    *Cycle   `json:"cycle"`
	Assigned []string `json:"assigned"`
	Skipped  int      `json:"skipped"`
}

// AuditFields is the cycle projection plus the number of reviews the
// launch assigned.
func (l *LaunchResult) AuditFields() map[string]any {
	f := l.Cycle.Fields()
	f["assigned"] = len(l.Assigned)
	return f
}
