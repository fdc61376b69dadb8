package goals

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a goal does not exist.
var ErrNotFound = errors.New("goal not found")

// Status represents the progress stage of a goal.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Goal is an objective owned by one user.
type Goal struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"` // 0-100
	DueOn       *time.Time `json:"dueOn,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Patch is a partial goal update.
type Patch struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=1"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty" validate:"omitempty,oneof=NOT_STARTED IN_PROGRESS COMPLETED CANCELLED"`
	Progress    *int       `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
	OwnerID     *string    `json:"ownerId,omitempty" validate:"omitempty,min=1"`
	DueOn       *time.Time `json:"dueOn,omitempty"`
}

// ListFilter controls which goals to return.
type ListFilter struct {
	OwnerID string
	Status  Status
	Limit   int
	Offset  int
}
