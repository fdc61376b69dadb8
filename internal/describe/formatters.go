package describe

import (
	"context"
	"fmt"

	"github.com/ziadkadry99/perfreview/internal/audit"
)

// rule formats one interesting field of an update. Returning "" passes to
// the next rule.
type rule struct {
	field  string
	format func(ctx context.Context, ev Event, before, after any) string
}

// ruleFormatter handles CREATE and DELETE with fixed templates and UPDATE
// with an ordered list of rules where the first differing field wins.
type ruleFormatter struct {
	create  func(ctx context.Context, ev Event) string
	remove  func(ctx context.Context, ev Event) string
	updates []rule
}

func (f *ruleFormatter) Format(ctx context.Context, ev Event) (string, bool) {
	switch ev.Action {
	case audit.ActionCreate:
		if f.create != nil {
			return f.create(ctx, ev), true
		}
	case audit.ActionDelete:
		if f.remove != nil {
			return f.remove(ctx, ev), true
		}
	case audit.ActionUpdate:
		for _, r := range f.updates {
			b, a, ok := changed(ev.Before, ev.After, r.field)
			if !ok {
				continue
			}
			if text := r.format(ctx, ev, b, a); text != "" {
				return text, true
			}
		}
	}
	return "", false
}

// subject names the entity an event is about, preferring its display field.
func subject(ev Event, key string) string {
	if v := field(key, ev.Before, ev.After); v != "" {
		return v
	}
	return shortID(ev.ResourceID)
}

func userFormatter(l lookup) Formatter {
	name := func(ev Event) string { return subject(ev, "name") }
	return &ruleFormatter{
		create: func(ctx context.Context, ev Event) string {
			text := fmt.Sprintf("%s added %s", ev.Actor, name(ev))
			if role := field("role", ev.After); role != "" {
				text += " as " + role
			}
			if dept := field("departmentId", ev.After); dept != "" {
				text += " in " + l.department(ctx, dept)
			}
			return text
		},
		remove: func(ctx context.Context, ev Event) string {
			return fmt.Sprintf("%s removed user %s", ev.Actor, name(ev))
		},
		updates: []rule{
			{"role", func(ctx context.Context, ev Event, b, a any) string {
				if str(b) == "" {
					return fmt.Sprintf("%s made %s %s", ev.Actor, name(ev), str(a))
				}
				return fmt.Sprintf("%s changed %s's role from %s to %s", ev.Actor, name(ev), str(b), str(a))
			}},
			{"managerId", func(ctx context.Context, ev Event, b, a any) string {
				if str(a) == "" {
					return fmt.Sprintf("%s removed %s's manager", ev.Actor, name(ev))
				}
				return fmt.Sprintf("%s assigned %s to manager %s", ev.Actor, name(ev), l.user(ctx, str(a)))
			}},
			{"departmentId", func(ctx context.Context, ev Event, b, a any) string {
				if str(a) == "" {
					return fmt.Sprintf("%s removed %s from %s", ev.Actor, name(ev), l.department(ctx, str(b)))
				}
				return fmt.Sprintf("%s moved %s to %s", ev.Actor, name(ev), l.department(ctx, str(a)))
			}},
			{"isActive", func(ctx context.Context, ev Event, b, a any) string {
				if str(a) == "false" {
					return fmt.Sprintf("%s deactivated %s", ev.Actor, name(ev))
				}
				return fmt.Sprintf("%s reactivated %s", ev.Actor, name(ev))
			}},
			{"title", func(ctx context.Context, ev Event, b, a any) string {
				return fmt.Sprintf("%s changed %s's title to %s", ev.Actor, name(ev), str(a))
			}},
			{"name", func(ctx context.Context, ev Event, b, a any) string {
				if str(b) == "" {
					return ""
				}
				return fmt.Sprintf("%s renamed %s to %s", ev.Actor, str(b), str(a))
			}},
			{"email", func(ctx context.Context, ev Event, b, a any) string {
				return fmt.Sprintf("%s changed %s's email to %s", ev.Actor, name(ev), str(a))
			}},
			{"password", func(ctx context.Context, ev Event, b, a any) string {
				return fmt.Sprintf("%s reset %s's password", ev.Actor, name(ev))
			}},
		},
	}
}

func departmentFormatter(l lookup) Formatter {
	name := func(ev Event) string { return subject(ev, "name") }
	return &ruleFormatter{
		create: func(ctx context.Context, ev Event) string {
			text := fmt.Sprintf("%s created department %s", ev.Actor, name(ev))
			if parent := field("parentId", ev.After); parent != "" {
				text += " under " + l.department(ctx, parent)
			}
			return text
		},
		remove: func(ctx context.Context, ev Event) string {
			return fmt.Sprintf("%s deleted department %s", ev.Actor, name(ev))
		},
		updates: []rule{
			{"name", func(ctx context.Context, ev Event, b, a any) string {
				if str(b) == "" {
					return ""
				}
				return fmt.Sprintf("%s renamed department %s to %s", ev.Actor, str(b), str(a))
			}},
			{"headId", func(ctx context.Context, ev Event, b, a any) string {
				if str(a) == "" {
					return fmt.Sprintf("%s removed the head of %s", ev.Actor, name(ev))
				}
				return fmt.Sprintf("%s made %s head of %s", ev.Actor, l.user(ctx, str(a)), name(ev))
			}},
			{"parentId", func(ctx context.Context, ev Event, b, a any) string {
				if str(a) == "" {
					return fmt.Sprintf("%s made %s a top-level department", ev.Actor, name(ev))
				}
				return fmt.Sprintf("%s moved department %s under %s", ev.Actor, name(ev), l.department(ctx, str(a)))
			}},
		},
	}
}

func reviewFormatter(l lookup) Formatter {
	reviewee := func(ctx context.Context, ev Event) string {
		if id := field("revieweeId", ev.Before, ev.After); id != "" {
			return l.user(ctx, id) + "'s review"
		}
		return "review " + shortID(ev.ResourceID)
	}
	draft := func(ctx context.Context, ev Event, b, a any) string {
		return fmt.Sprintf("%s saved a draft of %s", ev.Actor, reviewee(ctx, ev))
	}
	return &ruleFormatter{
		create: func(ctx context.Context, ev Event) string {
			text := fmt.Sprintf("%s assigned a review of %s", ev.Actor, l.user(ctx, field("revieweeId", ev.After)))
			if reviewer := field("reviewerId", ev.After); reviewer != "" {
				text += " to " + l.user(ctx, reviewer)
			}
			return text
		},
		remove: func(ctx context.Context, ev Event) string {
			return fmt.Sprintf("%s deleted %s", ev.Actor, reviewee(ctx, ev))
		},
		updates: []rule{
			{"skipLevelApprovedAt", func(ctx context.Context, ev Event, b, a any) string {
				return fmt.Sprintf("%s gave skip-level approval on %s", ev.Actor, reviewee(ctx, ev))
			}},
			{"acknowledgedAt", func(ctx context.Context, ev Event, b, a any) string {
				if field("status", ev.After) == "PENDING_APPROVAL" {
					return fmt.Sprintf("%s acknowledged %s; awaiting skip-level approval", ev.Actor, reviewee(ctx, ev))
				}
				return fmt.Sprintf("%s acknowledged %s; review completed", ev.Actor, reviewee(ctx, ev))
			}},
			{"sharedAt", func(ctx context.Context, ev Event, b, a any) string {
				return fmt.Sprintf("%s shared %s", ev.Actor, reviewee(ctx, ev))
			}},
			{"managerSubmittedAt", func(ctx context.Context, ev Event, b, a any) string {
				text := fmt.Sprintf("%s submitted the manager assessment for %s", ev.Actor, reviewee(ctx, ev))
				if field("status", ev.After) == "READY_TO_SHARE" {
					text += "; ready to share"
				}
				return text
			}},
			{"selfSubmittedAt", func(ctx context.Context, ev Event, b, a any) string {
				text := fmt.Sprintf("%s submitted the self-review for %s", ev.Actor, reviewee(ctx, ev))
				if field("status", ev.After) == "READY_TO_SHARE" {
					text += "; ready to share"
				}
				return text
			}},
			{"status", func(ctx context.Context, ev Event, b, a any) string {
				if str(b) == "" {
					return ""
				}
				return fmt.Sprintf("%s moved %s from %s to %s", ev.Actor, reviewee(ctx, ev), str(b), str(a))
			}},
			{"managerRating", func(ctx context.Context, ev Event, b, a any) string {
				return fmt.Sprintf("%s set the manager rating on %s to %s", ev.Actor, reviewee(ctx, ev), str(a))
			}},
			{"selfRating", func(ctx context.Context, ev Event, b, a any) string {
				return fmt.Sprintf("%s set the self rating on %s to %s", ev.Actor, reviewee(ctx, ev), str(a))
			}},
			{"selfSummary", draft},
			{"managerSummary", draft},
			{"competencies", draft},
			{"reflections", draft},
		},
	}
}

func cycleFormatter(l lookup) Formatter {
	name := func(ev Event) string { return subject(ev, "name") }
	return &ruleFormatter{
		create: func(ctx context.Context, ev Event) string {
			return fmt.Sprintf("%s created review cycle %s", ev.Actor, name(ev))
		},
		remove: func(ctx context.Context, ev Event) string {
			return fmt.Sprintf("%s deleted review cycle %s", ev.Actor, name(ev))
		},
		updates: []rule{
			{"status", func(ctx context.Context, ev Event, b, a any) string {
				switch str(a) {
				case "ACTIVE":
					text := fmt.Sprintf("%s launched review cycle %s", ev.Actor, name(ev))
					if n := field("assigned", ev.After); n != "" {
						text += fmt.Sprintf(" (%s reviews assigned)", n)
					}
					return text
				case "CLOSED":
					return fmt.Sprintf("%s closed review cycle %s", ev.Actor, name(ev))
				}
				return fmt.Sprintf("%s set review cycle %s to %s", ev.Actor, name(ev), str(a))
			}},
			{"name", func(ctx context.Context, ev Event, b, a any) string {
				if str(b) == "" {
					return ""
				}
				return fmt.Sprintf("%s renamed review cycle %s to %s", ev.Actor, str(b), str(a))
			}},
		},
	}
}

func goalFormatter(l lookup) Formatter {
	title := func(ev Event) string { return fmt.Sprintf("%q", subject(ev, "title")) }
	return &ruleFormatter{
		create: func(ctx context.Context, ev Event) string {
			text := fmt.Sprintf("%s created goal %s", ev.Actor, title(ev))
			if owner := field("ownerId", ev.After); owner != "" {
				text += " for " + l.user(ctx, owner)
			}
			return text
		},
		remove: func(ctx context.Context, ev Event) string {
			return fmt.Sprintf("%s deleted goal %s", ev.Actor, title(ev))
		},
		updates: []rule{
			{"status", func(ctx context.Context, ev Event, b, a any) string {
				switch str(a) {
				case "COMPLETED":
					return fmt.Sprintf("%s completed goal %s", ev.Actor, title(ev))
				case "CANCELLED":
					return fmt.Sprintf("%s cancelled goal %s", ev.Actor, title(ev))
				case "IN_PROGRESS":
					return fmt.Sprintf("%s started goal %s", ev.Actor, title(ev))
				}
				return fmt.Sprintf("%s set goal %s to %s", ev.Actor, title(ev), str(a))
			}},
			{"progress", func(ctx context.Context, ev Event, b, a any) string {
				return fmt.Sprintf("%s updated progress on goal %s to %s%%", ev.Actor, title(ev), str(a))
			}},
			{"ownerId", func(ctx context.Context, ev Event, b, a any) string {
				return fmt.Sprintf("%s reassigned goal %s to %s", ev.Actor, title(ev), l.user(ctx, str(a)))
			}},
			{"dueOn", func(ctx context.Context, ev Event, b, a any) string {
				if str(a) == "" {
					return fmt.Sprintf("%s removed the due date of goal %s", ev.Actor, title(ev))
				}
				return fmt.Sprintf("%s moved the due date of goal %s to %s", ev.Actor, title(ev), str(a))
			}},
			{"title", func(ctx context.Context, ev Event, b, a any) string {
				if str(b) == "" {
					return ""
				}
				return fmt.Sprintf("%s renamed goal %q to %q", ev.Actor, str(b), str(a))
			}},
		},
	}
}
