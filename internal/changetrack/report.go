package changetrack

import (
	"context"
	"sync"
)

type reportKey struct{}

// report collects what a handler knows about the mutation it performed
// that the interceptor cannot see from the request alone.
type report struct {
	mu       sync.Mutex
	id       string
	after    map[string]any
	hasAfter bool
}

func withReport(ctx context.Context) (context.Context, *report) {
	rep := &report{}
	return context.WithValue(ctx, reportKey{}, rep), rep
}

// Report records the id of the resource a handler mutated and, when after
// is non-nil, the state the resource ended up in. It is a no-op outside an
// intercepted request.
func Report(ctx context.Context, resourceID string, after map[string]any) {
	rep, ok := ctx.Value(reportKey{}).(*report)
	if !ok {
		return
	}
	rep.mu.Lock()
	defer rep.mu.Unlock()
	if resourceID != "" {
		rep.id = resourceID
	}
	if after != nil {
		rep.after = after
		rep.hasAfter = true
	}
}

func (r *report) snapshot() (string, map[string]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id, r.after, r.hasAfter
}

type actorKey struct{}

// WithActor returns a context carrying the acting user's id.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the acting user's id, or "" for a system action.
func ActorFrom(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}
