// Package changetrack instruments mutating operations and turns each one
// into exactly one audit record.
package changetrack

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/perfreview/internal/audit"
)

// SnapshotResolver returns the current projection of a resource, or false
// when none is available.
type SnapshotResolver interface {
	Resolve(ctx context.Context, resourceType, resourceID string) (map[string]any, bool)
}

// RecordSink accepts audit records without blocking.
type RecordSink interface {
	Enqueue(rec audit.Record) bool
}

// Options configures an Interceptor.
type Options struct {
	// ActorHeader names the request header carrying the acting user id.
	ActorHeader     string
	SnapshotTimeout time.Duration
}

// Interceptor resolves before-state, observes the outcome of a mutation and
// hands the resulting record to the audit sink.
type Interceptor struct {
	resolver        SnapshotResolver
	sink            RecordSink
	logger          *zap.Logger
	actorHeader     string
	snapshotTimeout time.Duration
}

// New creates an Interceptor.
func New(resolver SnapshotResolver, sink RecordSink, logger *zap.Logger, opts Options) *Interceptor {
	if opts.ActorHeader == "" {
		opts.ActorHeader = "X-User-ID"
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = 2 * time.Second
	}
	return &Interceptor{
		resolver:        resolver,
		sink:            sink,
		logger:          logger.Named("changetrack"),
		actorHeader:     opts.ActorHeader,
		snapshotTimeout: opts.SnapshotTimeout,
	}
}

var resourcePath = regexp.MustCompile(`^/api/(?:admin/)?([^/]+)(?:/([^/]+))?`)

// ParsePath extracts the resource type and id from an API path of the form
// /api/[admin/]{type}[/{id}]. Both are empty when the path does not match.
func ParsePath(path string) (resourceType, resourceID string) {
	m := resourcePath.FindStringSubmatch(path)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// Mutation describes a typed service-layer call for Track.
type Mutation struct {
	ActorID      string
	Action       audit.Action
	ResourceType string
	ResourceID   string
	// After is the input applied by the call. A Report from inside the
	// operation replaces it.
	After map[string]any
}

// Track runs op and records its outcome. The error returned is op's own;
// auditing never changes it.
func (i *Interceptor) Track(ctx context.Context, m Mutation, op func(ctx context.Context) error) (err error) {
	var before map[string]any
	if m.Action != audit.ActionCreate && m.ResourceID != "" {
		before = i.before(ctx, m.ResourceType, m.ResourceID)
	}

	opCtx, rep := withReport(ctx)
	if m.ActorID != "" {
		opCtx = WithActor(opCtx, m.ActorID)
	}

	defer func() {
		rec := audit.Record{
			UserID:       m.ActorID,
			Action:       m.Action,
			ResourceType: m.ResourceType,
			ResourceID:   m.ResourceID,
			Before:       before,
			After:        m.After,
			Status:       audit.StatusSuccess,
		}
		if m.Action == audit.ActionDelete {
			rec.After = nil
		}

		p := recover()
		switch {
		case p != nil:
			rec.Status = audit.StatusFailed
			rec.ErrorMessage = fmt.Sprint(p)
		case err != nil:
			rec.Status = audit.StatusFailed
			rec.ErrorMessage = err.Error()
		}

		id, after, ok := rep.snapshot()
		if id != "" {
			rec.ResourceID = id
		}
		if ok {
			rec.After = after
		}

		i.emit(rec)
		if p != nil {
			panic(p)
		}
	}()

	return op(opCtx)
}

func (i *Interceptor) before(ctx context.Context, resourceType, resourceID string) map[string]any {
	ctx, cancel := context.WithTimeout(ctx, i.snapshotTimeout)
	defer cancel()
	snap, ok := i.resolver.Resolve(ctx, resourceType, resourceID)
	if !ok {
		return nil
	}
	return snap
}

// emit hands rec to the sink. Nothing here may reach the caller.
func (i *Interceptor) emit(rec audit.Record) {
	defer func() {
		if p := recover(); p != nil {
			i.logger.Error("audit dispatch panicked", zap.Any("panic", p))
		}
	}()
	if !i.sink.Enqueue(rec) {
		i.logger.Debug("audit record not queued",
			zap.String("resource_type", rec.ResourceType),
			zap.String("resource_id", rec.ResourceID),
		)
	}
}

// decodeObject returns b as a JSON object, or nil.
func decodeObject(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
