package audit

import (
	"errors"
	"net/http"
	"time"
)

// ErrNotFound is returned when an audit entry does not exist.
var ErrNotFound = errors.New("audit entry not found")

// Action is the kind of mutation an entry records.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// ActionForMethod maps an HTTP verb to the action it performs. Read-only
// verbs report false.
func ActionForMethod(method string) (Action, bool) {
	switch method {
	case http.MethodPost:
		return ActionCreate, true
	case http.MethodPatch, http.MethodPut:
		return ActionUpdate, true
	case http.MethodDelete:
		return ActionDelete, true
	default:
		return "", false
	}
}

// Status is the outcome of the audited operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Changes is the redacted before/after pair stored with an entry.
type Changes struct {
	Before map[string]any `json:"before" yaml:"before"`
	After  map[string]any `json:"after" yaml:"after"`
}

// Metadata describes the request that triggered the mutation.
type Metadata struct {
	IP        string `json:"ip,omitempty" yaml:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	Method    string `json:"method,omitempty" yaml:"method,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Entry is one immutable audit log record.
type Entry struct {
	ID           string    `json:"id" yaml:"id"`
	UserID       *string   `json:"userId" yaml:"userId"`
	Action       Action    `json:"action" yaml:"action"`
	ResourceType string    `json:"resourceType" yaml:"resourceType"`
	ResourceID   string    `json:"resourceId" yaml:"resourceId"`
	Changes      *Changes  `json:"changes" yaml:"changes"`
	Metadata     *Metadata `json:"metadata" yaml:"metadata"`
	Status       Status    `json:"status" yaml:"status"`
	ErrorMessage *string   `json:"errorMessage" yaml:"errorMessage"`
	Description  string    `json:"description" yaml:"description"`
	CreatedAt    time.Time `json:"createdAt" yaml:"createdAt"`
}

// Record is the raw, unredacted description of one mutation handed to the
// Writer. An empty UserID marks a system action.
type Record struct {
	UserID       string
	Action       Action
	ResourceType string
	ResourceID   string
	Before       map[string]any
	After        map[string]any
	Metadata     Metadata
	Status       Status
	ErrorMessage string
}

// Failed reports whether the audited operation failed.
func (r Record) Failed() bool { return r.Status == StatusFailed }
