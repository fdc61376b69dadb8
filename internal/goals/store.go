package goals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/perfreview/internal/db"
)

// Store manages persistence of goals.
type Store struct {
	db *db.DB
}

// NewStore creates a new goals store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const goalColumns = `id, owner_id, title, description, status, progress, due_on, created_at, updated_at`

// Create adds a new goal.
func (s *Store) Create(ctx context.Context, g Goal) (*Goal, error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	if g.Status == "" {
		g.Status = StatusNotStarted
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.OwnerID, g.Title, g.Description, string(g.Status), g.Progress, nullTime(g.DueOn), g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting goal: %w", err)
	}
	return &g, nil
}

// GetByID retrieves a goal by its ID.
func (s *Store) GetByID(ctx context.Context, id string) (*Goal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting goal: %w", err)
	}
	return g, nil
}

// List returns goals matching the filter, soonest due first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE 1=1`
	args := []any{}

	if filter.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	query += " ORDER BY due_on IS NULL, due_on, created_at"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing goals: %w", err)
	}
	defer rows.Close()

	var goals []Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// Update applies a partial update and returns the stored goal. Completing
// a goal sets its progress to 100.
func (s *Store) Update(ctx context.Context, id string, p Patch) (*Goal, error) {
	var (
		sets []string
		args []any
	)
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
		if *p.Status == StatusCompleted && p.Progress == nil {
			sets = append(sets, "progress = 100")
		}
	}
	if p.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *p.Progress)
	}
	if p.OwnerID != nil {
		sets = append(sets, "owner_id = ?")
		args = append(args, *p.OwnerID)
	}
	if p.DueOn != nil {
		sets = append(sets, "due_on = ?")
		args = append(args, p.DueOn.UTC())
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx, `UPDATE goals SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("updating goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// Delete removes a goal.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus returns how many goals sit in each status.
func (s *Store) CountByStatus(ctx context.Context, ownerID string) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) FROM goals`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting goals: %w", err)
	}
	defer rows.Close()

	counts := map[Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGoal(sc scanner) (*Goal, error) {
	var g Goal
	var status string
	var due sql.NullTime
	if err := sc.Scan(&g.ID, &g.OwnerID, &g.Title, &g.Description, &status, &g.Progress, &due, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Status = Status(status)
	if due.Valid {
		t := due.Time.UTC()
		g.DueOn = &t
	}
	return &g, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
