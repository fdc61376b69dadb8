package audit

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

// Store appends and reads audit entries. Entries are never updated or
// deleted; the schema rejects both.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Insert appends a new audit entry. ID and CreatedAt are filled in when empty.
func (s *Store) Insert(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var changes, metadata, userID, errMsg sql.NullString
	if e.Changes != nil {
		b, err := json.Marshal(e.Changes)
		if err != nil {
			return fmt.Errorf("marshalling changes: %w", err)
		}
		changes = sql.NullString{String: string(b), Valid: true}
	}
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}
	if e.UserID != nil {
		userID = sql.NullString{String: *e.UserID, Valid: true}
	}
	if e.ErrorMessage != nil {
		errMsg = sql.NullString{String: *e.ErrorMessage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, user_id, action, resource_type, resource_id,
			changes, metadata, status, error_message, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		userID,
		string(e.Action),
		e.ResourceType,
		e.ResourceID,
		changes,
		metadata,
		string(e.Status),
		errMsg,
		e.Description,
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

const entryColumns = `id, user_id, action, resource_type, resource_id, changes, metadata, status, error_message, description, created_at`

// GetByID retrieves a single audit entry.
func (s *Store) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM audit_logs WHERE id = ?`, id)
	e, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting audit entry: %w", err)
	}
	return e, nil
}

// QueryFilter controls which audit entries are returned by Query.
type QueryFilter struct {
	UserID       string
	Action       Action
	ResourceType string
	ResourceID   string
	Status       Status
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

// Query returns audit entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.ResourceType != "" {
		clauses = append(clauses, "resource_type = ?")
		args = append(args, filter.ResourceType)
	}
	if filter.ResourceID != "" {
		clauses = append(clauses, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if filter.Until != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, filter.Until.UTC())
	}

	query := "SELECT " + entryColumns + " FROM audit_logs"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	// SQLite requires a LIMIT before OFFSET.
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanInto(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting audit entries: %w", err)
	}
	return n, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Entry, error) {
	var (
		e                                 Entry
		action, status                    string
		userID, changes, metadata, errMsg sql.NullString
	)

	err := sc.Scan(
		&e.ID, &userID, &action, &e.ResourceType, &e.ResourceID,
		&changes, &metadata, &status, &errMsg, &e.Description, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Action = Action(action)
	e.Status = Status(status)
	if userID.Valid {
		e.UserID = &userID.String
	}
	if errMsg.Valid {
		e.ErrorMessage = &errMsg.String
	}
	if changes.Valid {
		var c Changes
		if err := json.Unmarshal([]byte(changes.String), &c); err == nil {
			e.Changes = &c
		}
	}
	if metadata.Valid {
		var m Metadata
		if err := json.Unmarshal([]byte(metadata.String), &m); err == nil {
			e.Metadata = &m
		}
	}

	return &e, nil
}
