package orgstructure

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a user or department does not exist.
var ErrNotFound = errors.New("not found")

// ErrSelfManager is returned when a user would be made their own manager.
var ErrSelfManager = errors.New("user cannot be their own manager")

// Role is a user's permission tier in the application.
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleHR       Role = "HR"
	RoleAdmin    Role = "ADMIN"
)

// User is a person in the org chart.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         Role       `json:"role"`
	Title        string     `json:"title"`
	DepartmentID string     `json:"departmentId,omitempty"`
	ManagerID    string     `json:"managerId,omitempty"`
	IsActive     bool       `json:"isActive"`
	HireDate     *time.Time `json:"hireDate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// UserPatch carries a partial user update. Nil fields are left alone; an
// empty DepartmentID or ManagerID clears the reference.
type UserPatch struct {
	Name         *string    `json:"name,omitempty" validate:"omitempty,min=1"`
	Email        *string    `json:"email,omitempty" validate:"omitempty,email"`
	Role         *Role      `json:"role,omitempty" validate:"omitempty,oneof=EMPLOYEE MANAGER HR ADMIN"`
	Title        *string    `json:"title,omitempty"`
	DepartmentID *string    `json:"departmentId,omitempty"`
	ManagerID    *string    `json:"managerId,omitempty"`
	IsActive     *bool      `json:"isActive,omitempty"`
	HireDate     *time.Time `json:"hireDate,omitempty"`
	Password     *string    `json:"password,omitempty" validate:"omitempty,min=8"`
}

// Department groups users under a head.
type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HeadID    string    `json:"headId,omitempty"`
	ParentID  string    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	DepartmentID string
	ManagerID    string
	ActiveOnly   bool
	HasManager   bool
}
