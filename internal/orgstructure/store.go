package orgstructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ziadkadry99/perfreview/internal/db"
)

// Store provides CRUD operations for users and departments, and answers
// the identity questions the review engine and audit pipeline ask.
type Store struct {
	db *db.DB
}

// NewStore creates a new orgstructure store.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

const userColumns = `id, name, email, role, title, department_id, manager_id, is_active, hire_date, created_at, updated_at`

// CreateUser inserts a new user. A non-empty password is stored as a bcrypt hash.
func (s *Store) CreateUser(ctx context.Context, u *User, password string) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleEmployee
	}
	var hash string
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		hash = string(h)
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, title, department_id, manager_id, is_active, hire_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, hash, string(u.Role), u.Title,
		nullString(u.DepartmentID), nullString(u.ManagerID), u.IsActive, nullTime(u.HireDate),
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// ListUsers returns users matching the filter, ordered by name.
func (s *Store) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.DepartmentID != "" {
		clauses = append(clauses, "department_id = ?")
		args = append(args, filter.DepartmentID)
	}
	if filter.ManagerID != "" {
		clauses = append(clauses, "manager_id = ?")
		args = append(args, filter.ManagerID)
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active = 1")
	}
	if filter.HasManager {
		clauses = append(clauses, "manager_id IS NOT NULL")
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser applies a partial update and returns the stored user.
func (s *Store) UpdateUser(ctx context.Context, id string, p UserPatch) (*User, error) {
	var (
		sets []string
		args []any
	)
	if p.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *p.Name)
	}
	if p.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *p.Email)
	}
	if p.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, string(*p.Role))
	}
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.DepartmentID != nil {
		sets = append(sets, "department_id = ?")
		args = append(args, nullString(*p.DepartmentID))
	}
	if p.ManagerID != nil {
		if *p.ManagerID == id {
			return nil, ErrSelfManager
		}
		sets = append(sets, "manager_id = ?")
		args = append(args, nullString(*p.ManagerID))
	}
	if p.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *p.IsActive)
	}
	if p.HireDate != nil {
		sets = append(sets, "hire_date = ?")
		args = append(args, p.HireDate.UTC())
	}
	if p.Password != nil {
		h, err := bcrypt.GenerateFromPassword([]byte(*p.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		sets = append(sets, "password_hash = ?")
		args = append(args, string(h))
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user. Reviews and goals owned by the user cascade.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CheckPassword reports whether password matches the user's stored hash.
func (s *Store) CheckPassword(ctx context.Context, id, password string) (bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = ?`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("reading password hash: %w", err)
	}
	if hash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// ManagerOf returns the id of the user's manager. The boolean is false when
// the user has no manager.
func (s *Store) ManagerOf(ctx context.Context, userID string) (string, bool, error) {
	var manager sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT manager_id FROM users WHERE id = ?`, userID).Scan(&manager)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, ErrNotFound
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up manager: %w", err)
	}
	if !manager.Valid || manager.String == "" {
		return "", false, nil
	}
	return manager.String, true, nil
}

// DisplayName returns the user's name.
func (s *Store) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = ?`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("looking up user name: %w", err)
	}
	return name, nil
}

// DepartmentName returns the department's name.
func (s *Store) DepartmentName(ctx context.Context, departmentID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM departments WHERE id = ?`, departmentID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("looking up department name: %w", err)
	}
	return name, nil
}

// CreateDepartment inserts a new department.
func (s *Store) CreateDepartment(ctx context.Context, d *Department) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO departments (id, name, head_id, parent_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, nullString(d.HeadID), nullString(d.ParentID), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating department: %w", err)
	}
	return nil
}

// GetDepartment retrieves a department by ID.
func (s *Store) GetDepartment(ctx context.Context, id string) (*Department, error) {
	d := &Department{}
	var head, parent sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, head_id, parent_id, created_at, updated_at FROM departments WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &head, &parent, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting department: %w", err)
	}
	d.HeadID = head.String
	d.ParentID = parent.String
	return d, nil
}

// ListDepartments returns all departments ordered by name.
func (s *Store) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, head_id, parent_id, created_at, updated_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	defer rows.Close()

	var departments []Department
	for rows.Next() {
		var d Department
		var head, parent sql.NullString
		if err := rows.Scan(&d.ID, &d.Name, &head, &parent, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning department: %w", err)
		}
		d.HeadID = head.String
		d.ParentID = parent.String
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

// UpdateDepartment replaces a department's mutable fields.
func (s *Store) UpdateDepartment(ctx context.Context, d *Department) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE departments SET name = ?, head_id = ?, parent_id = ?, updated_at = ? WHERE id = ?`,
		d.Name, nullString(d.HeadID), nullString(d.ParentID), d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating department: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDepartment removes a department; member users keep no department.
func (s *Store) DeleteDepartment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM departments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting department: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(sc scanner) (*User, error) {
	var (
		u               User
		role            string
		department, mgr sql.NullString
		hireDate        sql.NullTime
	)
	err := sc.Scan(&u.ID, &u.Name, &u.Email, &role, &u.Title, &department, &mgr,
		&u.IsActive, &hireDate, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	u.DepartmentID = department.String
	u.ManagerID = mgr.String
	if hireDate.Valid {
		t := hireDate.Time
		u.HireDate = &t
	}
	return &u, nil
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
