package review

import "time"

// transitionInput carries the facts a rule may need besides the review.
type transitionInput struct {
	now          time.Time
	approverID   string
	hasSkipLevel bool
}

// rule applies one event to a review already known to be in a state that
// accepts it. It returns a non-empty reason to reject the event.
type rule func(r *Review, in transitionInput) string

// transitions is the only source of allowed moves. A (status, event) pair
// missing here is rejected.
var transitions = map[Status]map[Event]rule{
	StatusSelfReview: {
		EventSelfSubmitted:    submitSelf,
		EventManagerSubmitted: submitManager,
	},
	StatusManagerReview: {
		EventSelfSubmitted:    submitSelf,
		EventManagerSubmitted: submitManager,
	},
	StatusReadyToShare: {
		EventShared: share,
	},
	StatusShared: {
		EventAcknowledged: acknowledge,
	},
	StatusPendingApproval: {
		EventApproved: approve,
	},
}

// Accepts reports whether a review in status from accepts ev.
func Accepts(from Status, ev Event) bool {
	_, ok := transitions[from][ev]
	return ok
}

// apply runs ev against r in place. r is left untouched on error.
func apply(r *Review, ev Event, in transitionInput) error {
	fn, ok := transitions[r.Status][ev]
	if !ok {
		return &TransitionError{ReviewID: r.ID, From: r.Status, Event: ev, Reason: "not allowed in this status"}
	}
	next := *r
	if reason := fn(&next, in); reason != "" {
		return &TransitionError{ReviewID: r.ID, From: r.Status, Event: ev, Reason: reason}
	}
	*r = next
	return nil
}

// afterSubmission is READY_TO_SHARE once both tracks are in, MANAGER_REVIEW
// otherwise.
func afterSubmission(r *Review) Status {
	if r.SelfSubmittedAt != nil && r.ManagerSubmittedAt != nil {
		return StatusReadyToShare
	}
	return StatusManagerReview
}

func submitSelf(r *Review, in transitionInput) string {
	if r.SelfSubmittedAt != nil {
		return "self-review already submitted"
	}
	t := in.now
	r.SelfSubmittedAt = &t
	r.Status = afterSubmission(r)
	return ""
}

func submitManager(r *Review, in transitionInput) string {
	if r.ManagerSubmittedAt != nil {
		return "manager review already submitted"
	}
	t := in.now
	r.ManagerSubmittedAt = &t
	r.Status = afterSubmission(r)
	return ""
}

func share(r *Review, in transitionInput) string {
	t := in.now
	r.SharedAt = &t
	r.Status = StatusShared
	return ""
}

// acknowledge passes through ACKNOWLEDGED and settles in the same write:
// PENDING_APPROVAL when the reviewer has a manager, COMPLETED otherwise.
func acknowledge(r *Review, in transitionInput) string {
	t := in.now
	r.AcknowledgedAt = &t
	if in.hasSkipLevel {
		r.Status = StatusPendingApproval
		r.AutoApproved = false
	} else {
		r.Status = StatusCompleted
		r.AutoApproved = true
	}
	return ""
}

func approve(r *Review, in transitionInput) string {
	if in.approverID == "" {
		return "approver is required"
	}
	t := in.now
	r.SkipLevelApprovedAt = &t
	r.SkipLevelApproverID = in.approverID
	r.Status = StatusCompleted
	return ""
}
