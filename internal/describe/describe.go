// Package describe turns audit records into one-sentence summaries.
package describe

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ziadkadry99/perfreview/internal/audit"
	"github.com/ziadkadry99/perfreview/internal/snapshot"
)

// SystemActor names actions with no acting user.
const SystemActor = "System"

// Event is everything a sentence may draw on.
type Event struct {
	Actor        string
	Action       audit.Action
	ResourceType string
	ResourceID   string
	Before       map[string]any
	After        map[string]any
	Failed       bool
	ErrorMessage string
}

// Formatter writes a type-specific sentence. It returns false when it has
// nothing more specific to say than the generic sentence.
type Formatter interface {
	Format(ctx context.Context, ev Event) (string, bool)
}

// Synthesizer dispatches events to formatters registered per resource type.
type Synthesizer struct {
	names  Names
	logger *zap.Logger

	mu         sync.RWMutex
	formatters map[string]Formatter
}

// New creates a Synthesizer with the built-in formatters registered.
func New(names Names, logger *zap.Logger) *Synthesizer {
	s := &Synthesizer{
		names:      names,
		logger:     logger.Named("describe"),
		formatters: make(map[string]Formatter),
	}
	l := lookup{names: names}
	s.Register("user", userFormatter(l))
	s.Register("department", departmentFormatter(l))
	s.Register("review", reviewFormatter(l))
	s.Register("cycle", cycleFormatter(l))
	s.Register("review-cycle", cycleFormatter(l))
	s.Register("goal", goalFormatter(l))
	return s
}

// Register installs f for a resource type, replacing any existing one.
func (s *Synthesizer) Register(resourceType string, f Formatter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formatters[snapshot.Normalize(resourceType)] = f
}

// Describe implements audit.Describer.
func (s *Synthesizer) Describe(ctx context.Context, rec audit.Record) string {
	return s.Sentence(ctx, Event{
		Actor:        s.actorName(ctx, rec.UserID),
		Action:       rec.Action,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		Before:       rec.Before,
		After:        rec.After,
		Failed:       rec.Failed(),
		ErrorMessage: rec.ErrorMessage,
	})
}

// Sentence describes ev. Failures bypass the formatters entirely.
func (s *Synthesizer) Sentence(ctx context.Context, ev Event) string {
	if ev.Failed {
		return fmt.Sprintf("%s failed to %s %s %s... (%s)",
			ev.Actor, verb(ev.Action), typeName(ev.ResourceType), shortID(ev.ResourceID), ev.ErrorMessage)
	}

	s.mu.RLock()
	f, ok := s.formatters[snapshot.Normalize(ev.ResourceType)]
	s.mu.RUnlock()
	if ok {
		if text, ok := s.format(ctx, f, ev); ok && text != "" {
			return text
		}
	}
	return Generic(ev)
}

func (s *Synthesizer) format(ctx context.Context, f Formatter, ev Event) (text string, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("formatter panicked",
				zap.String("resource_type", ev.ResourceType),
				zap.Any("panic", p),
			)
			text, ok = "", false
		}
	}()
	return f.Format(ctx, ev)
}

func (s *Synthesizer) actorName(ctx context.Context, userID string) string {
	if userID == "" {
		return SystemActor
	}
	return lookup{names: s.names}.user(ctx, userID)
}

// Generic is the fallback sentence: "<actor> <verb>d <resourceType> <id8>".
func Generic(ev Event) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s %s %s",
		ev.Actor, pastTense(ev.Action), ev.ResourceType, shortID(ev.ResourceID)))
}

func verb(a audit.Action) string {
	return strings.ToLower(string(a))
}

func pastTense(a audit.Action) string {
	switch a {
	case audit.ActionCreate:
		return "created"
	case audit.ActionUpdate:
		return "updated"
	case audit.ActionDelete:
		return "deleted"
	default:
		return strings.ToLower(string(a))
	}
}

// typeName renders a resource type as a singular, capitalised noun.
func typeName(resourceType string) string {
	n := snapshot.Normalize(resourceType)
	if n == "" {
		return "Resource"
	}
	return strings.ToUpper(n[:1]) + n[1:]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
