// Package snapshot resolves the before-state of a resource as a restricted
// projection of its current fields.
package snapshot

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ziadkadry99/perfreview/internal/telemetry"
)

// ErrNotFound is returned by a Projector when the resource does not exist.
var ErrNotFound = errors.New("resource not found")

// Projector returns the allowlisted fields of one resource type.
type Projector interface {
	Project(ctx context.Context, id string) (map[string]any, error)
}

// ProjectorFunc adapts a function to the Projector interface.
type ProjectorFunc func(ctx context.Context, id string) (map[string]any, error)

func (f ProjectorFunc) Project(ctx context.Context, id string) (map[string]any, error) {
	return f(ctx, id)
}

// Resolver dispatches a resource type name to its registered Projector.
// It never returns an error: anything that goes wrong yields no snapshot.
type Resolver struct {
	logger  *zap.Logger
	metrics *telemetry.Metrics

	mu         sync.RWMutex
	projectors map[string]Projector
	aliases    map[string]string
}

// NewResolver creates an empty Resolver.
func NewResolver(logger *zap.Logger, metrics *telemetry.Metrics) *Resolver {
	return &Resolver{
		logger:     logger.Named("snapshot"),
		metrics:    metrics,
		projectors: make(map[string]Projector),
		aliases:    make(map[string]string),
	}
}

// Normalize lower-cases a resource type name and strips one trailing "s",
// so "Users" and "user" resolve to the same tag.
func Normalize(resourceType string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(resourceType)), "s")
}

// Register installs p for the given tag.
func (r *Resolver) Register(tag string, p Projector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projectors[Normalize(tag)] = p
}

// Alias makes alias resolve to the projector registered for tag.
func (r *Resolver) Alias(alias, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[Normalize(alias)] = Normalize(tag)
}

func (r *Resolver) lookup(resourceType string) (Projector, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag := Normalize(resourceType)
	if target, ok := r.aliases[tag]; ok {
		tag = target
	}
	p, ok := r.projectors[tag]
	return p, tag, ok
}

// Resolve returns the projection of resourceID, or false when the type is
// unknown or the lookup fails.
func (r *Resolver) Resolve(ctx context.Context, resourceType, resourceID string) (map[string]any, bool) {
	p, tag, ok := r.lookup(resourceType)
	if !ok {
		r.metrics.SnapshotFailures.WithLabelValues("unknown_type").Inc()
		r.logger.Warn("no snapshot projector for resource type",
			zap.String("resource_type", resourceType),
		)
		return nil, false
	}

	snap, err := r.project(ctx, p, resourceID)
	if err != nil {
		reason := "error"
		if errors.Is(err, ErrNotFound) {
			reason = "not_found"
		}
		r.metrics.SnapshotFailures.WithLabelValues(reason).Inc()
		r.logger.Warn("snapshot resolution failed",
			zap.String("resource_type", tag),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
		return nil, false
	}
	return snap, true
}

func (r *Resolver) project(ctx context.Context, p Projector, id string) (snap map[string]any, err error) {
	defer func() {
		if v := recover(); v != nil {
			snap, err = nil, errors.New("projector panicked")
			r.logger.Error("snapshot projector panicked", zap.Any("panic", v))
		}
	}()
	return p.Project(ctx, id)
}
