package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/perfreview/internal/db"
)

// errVersionConflict means the row changed since it was read.
var errVersionConflict = errors.New("review version changed")

// Store persists reviews and cycles.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

const reviewColumns = `id, reviewee_id, reviewer_id, cycle_id, status,
	self_summary, self_rating, manager_summary, manager_rating, competencies, reflections,
	self_submitted_at, manager_submitted_at, shared_at, acknowledged_at,
	skip_level_approved_at, skip_level_approver_id, auto_approved, version, created_at, updated_at`

// Create inserts a new review at version 1.
func (s *Store) Create(ctx context.Context, r *Review) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusSelfReview
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RevieweeID, r.ReviewerID, r.CycleID, string(r.Status),
		r.SelfSummary, nullInt(r.SelfRating), r.ManagerSummary, nullInt(r.ManagerRating),
		jsonText(r.Competencies), jsonText(r.Reflections),
		nullTime(r.SelfSubmittedAt), nullTime(r.ManagerSubmittedAt), nullTime(r.SharedAt), nullTime(r.AcknowledgedAt),
		nullTime(r.SkipLevelApprovedAt), nullString(r.SkipLevelApproverID), r.AutoApproved, r.Version,
		r.CreatedAt, r.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: reviewee %s already has a review in cycle %s", ErrPreconditionViolation, r.RevieweeID, r.CycleID)
	}
	if err != nil {
		return fmt.Errorf("creating review: %w", err)
	}
	return nil
}

// Get retrieves a review by ID.
func (s *Store) Get(ctx context.Context, id string) (*Review, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting review: %w", err)
	}
	return r, nil
}

// List returns reviews matching the filter, oldest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Review, error) {
	var (
		clauses []string
		args    []any
	)
	if f.CycleID != "" {
		clauses = append(clauses, "cycle_id = ?")
		args = append(args, f.CycleID)
	}
	if f.RevieweeID != "" {
		clauses = append(clauses, "reviewee_id = ?")
		args = append(args, f.RevieweeID)
	}
	if f.ReviewerID != "" {
		clauses = append(clauses, "reviewer_id = ?")
		args = append(args, f.ReviewerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + reviewColumns + ` FROM reviews`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning review: %w", err)
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

// update writes r if the stored version still equals expected, and bumps
// r.Version on success.
func (s *Store) update(ctx context.Context, r *Review, expected int) error {
	r.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE reviews SET
			status = ?, self_summary = ?, self_rating = ?, manager_summary = ?, manager_rating = ?,
			competencies = ?, reflections = ?,
			self_submitted_at = ?, manager_submitted_at = ?, shared_at = ?, acknowledged_at = ?,
			skip_level_approved_at = ?, skip_level_approver_id = ?, auto_approved = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(r.Status), r.SelfSummary, nullInt(r.SelfRating), r.ManagerSummary, nullInt(r.ManagerRating),
		jsonText(r.Competencies), jsonText(r.Reflections),
		nullTime(r.SelfSubmittedAt), nullTime(r.ManagerSubmittedAt), nullTime(r.SharedAt), nullTime(r.AcknowledgedAt),
		nullTime(r.SkipLevelApprovedAt), nullString(r.SkipLevelApproverID), r.AutoApproved,
		r.UpdatedAt, r.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("updating review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errVersionConflict
	}
	r.Version = expected + 1
	return nil
}

// revieweesInCycle returns the set of users who already have a review in
// the cycle.
func (s *Store) revieweesInCycle(ctx context.Context, cycleID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT reviewee_id FROM reviews WHERE cycle_id = ?`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("listing cycle reviewees: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seen[id] = true
	}
	return seen, rows.Err()
}

// CreateCycle inserts a new cycle in DRAFT.
func (s *Store) CreateCycle(ctx context.Context, c *Cycle) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CycleDraft
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_cycles (id, name, starts_on, ends_on, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.StartsOn.UTC(), c.EndsOn.UTC(), string(c.Status), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating cycle: %w", err)
	}
	return nil
}

const cycleColumns = `id, name, starts_on, ends_on, status, created_at, updated_at`

// GetCycle retrieves a cycle by ID.
func (s *Store) GetCycle(ctx context.Context, id string) (*Cycle, error) {
	var c Cycle
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM review_cycles WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.StartsOn, &c.EndsOn, &status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting cycle: %w", err)
	}
	c.Status = CycleStatus(status)
	return &c, nil
}

// ListCycles returns all cycles, most recent start first.
func (s *Store) ListCycles(ctx context.Context) ([]Cycle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cycleColumns+` FROM review_cycles ORDER BY starts_on DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		var status string
		if err := rows.Scan(&c.ID, &c.Name, &c.StartsOn, &c.EndsOn, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning cycle: %w", err)
		}
		c.Status = CycleStatus(status)
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

func (s *Store) setCycleStatus(ctx context.Context, c *Cycle, status CycleStatus) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_cycles SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating cycle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	c.Status = status
	return nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReview(sc scanner) (*Review, error) {
	var (
		r                                          Review
		status, competencies, reflections          string
		selfRating, managerRating                  sql.NullInt64
		selfAt, managerAt, sharedAt, ackAt, apprAt sql.NullTime
		approver                                   sql.NullString
	)
	err := sc.Scan(
		&r.ID, &r.RevieweeID, &r.ReviewerID, &r.CycleID, &status,
		&r.SelfSummary, &selfRating, &r.ManagerSummary, &managerRating, &competencies, &reflections,
		&selfAt, &managerAt, &sharedAt, &ackAt,
		&apprAt, &approver, &r.AutoApproved, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.Competencies = json.RawMessage(competencies)
	r.Reflections = json.RawMessage(reflections)
	r.SelfRating = intPtr(selfRating)
	r.ManagerRating = intPtr(managerRating)
	r.SelfSubmittedAt = timePtr(selfAt)
	r.ManagerSubmittedAt = timePtr(managerAt)
	r.SharedAt = timePtr(sharedAt)
	r.AcknowledgedAt = timePtr(ackAt)
	r.SkipLevelApprovedAt = timePtr(apprAt)
	r.SkipLevelApproverID = approver.String
	return &r, nil
}

func jsonText(m json.RawMessage) string {
	if len(m) == 0 {
		return "{}"
	}
	return string(m)
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
