package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/perfreview/internal/db"
)

// ColumnKind controls how a stored value is converted for the projection.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInt
	KindBool
	KindTime
)

// Column maps one table column to a projection field.
type Column struct {
	Name  string
	Field string
	Kind  ColumnKind
}

// SQLProjector reads an allowlist of columns from one table by primary key.
type SQLProjector struct {
	db      *db.DB
	table   string
	columns []Column
	query   string
}

// NewSQLProjector creates a projector over table. Only the listed columns
// are ever read.
func NewSQLProjector(database *db.DB, table string, columns []Column) *SQLProjector {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return &SQLProjector{
		db:      database,
		table:   table,
		columns: columns,
		query:   fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(names, ", "), table),
	}
}

// Project implements Projector.
func (p *SQLProjector) Project(ctx context.Context, id string) (map[string]any, error) {
	values := make([]any, len(p.columns))
	ptrs := make([]any, len(p.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	err := p.db.QueryRowContext(ctx, p.query, id).Scan(ptrs...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("projecting %s %s: %w", p.table, id, err)
	}

	out := make(map[string]any, len(p.columns))
	for i, c := range p.columns {
		out[c.Field] = convert(values[i], c.Kind)
	}
	return out, nil
}

func convert(v any, kind ColumnKind) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch kind {
	case KindBool:
		switch x := v.(type) {
		case int64:
			return x != 0
		case bool:
			return x
		}
	case KindInt:
		if x, ok := v.(int64); ok {
			return x
		}
	case KindTime:
		switch x := v.(type) {
		case time.Time:
			return x.UTC().Format(time.RFC3339)
		case string:
			return x
		}
	}
	return v
}

// RegisterDefaults installs projectors for every audited resource type.
func RegisterDefaults(r *Resolver, database *db.DB) {
	r.Register("user", NewSQLProjector(database, "users", []Column{
		{Name: "id", Field: "id"},
		{Name: "name", Field: "name"},
		{Name: "email", Field: "email"},
		{Name: "role", Field: "role"},
		{Name: "title", Field: "title"},
		{Name: "department_id", Field: "departmentId"},
		{Name: "manager_id", Field: "managerId"},
		{Name: "is_active", Field: "isActive", Kind: KindBool},
		{Name: "hire_date", Field: "hireDate", Kind: KindTime},
	}))
	r.Register("department", NewSQLProjector(database, "departments", []Column{
		{Name: "id", Field: "id"},
		{Name: "name", Field: "name"},
		{Name: "head_id", Field: "headId"},
		{Name: "parent_id", Field: "parentId"},
	}))
	r.Register("cycle", NewSQLProjector(database, "review_cycles", []Column{
		{Name: "id", Field: "id"},
		{Name: "name", Field: "name"},
		{Name: "starts_on", Field: "startsOn", Kind: KindTime},
		{Name: "ends_on", Field: "endsOn", Kind: KindTime},
		{Name: "status", Field: "status"},
	}))
	r.Alias("review-cycle", "cycle")
	r.Register("review", NewSQLProjector(database, "reviews", []Column{
		{Name: "id", Field: "id"},
		{Name: "reviewee_id", Field: "revieweeId"},
		{Name: "reviewer_id", Field: "reviewerId"},
		{Name: "cycle_id", Field: "cycleId"},
		{Name: "status", Field: "status"},
		{Name: "self_rating", Field: "selfRating", Kind: KindInt},
		{Name: "manager_rating", Field: "managerRating", Kind: KindInt},
		{Name: "self_submitted_at", Field: "selfSubmittedAt", Kind: KindTime},
		{Name: "manager_submitted_at", Field: "managerSubmittedAt", Kind: KindTime},
		{Name: "shared_at", Field: "sharedAt", Kind: KindTime},
		{Name: "acknowledged_at", Field: "acknowledgedAt", Kind: KindTime},
		{Name: "skip_level_approved_at", Field: "skipLevelApprovedAt", Kind: KindTime},
		{Name: "skip_level_approver_id", Field: "skipLevelApproverId"},
		{Name: "auto_approved", Field: "autoApproved", Kind: KindBool},
	}))
	r.Register("goal", NewSQLProjector(database, "goals", []Column{
		{Name: "id", Field: "id"},
		{Name: "owner_id", Field: "ownerId"},
		{Name: "title", Field: "title"},
		{Name: "status", Field: "status"},
		{Name: "progress", Field: "progress", Kind: KindInt},
		{Name: "due_on", Field: "dueOn", Kind: KindTime},
	}))
}
