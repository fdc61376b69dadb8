package orgstructure

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ziadkadry99/perfreview/internal/changetrack"
)

var validate = validator.New()

// RegisterRoutes mounts user and department endpoints on the given router.
// Reads are public to the API; writes live under /api/admin.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Get("/api/users", listUsersHandler(store))
	r.Get("/api/users/{id}", getUserHandler(store))
	r.Post("/api/admin/users", createUserHandler(store))
	r.Patch("/api/admin/users/{id}", updateUserHandler(store))
	r.Delete("/api/admin/users/{id}", deleteUserHandler(store))

	r.Get("/api/departments", listDepartmentsHandler(store))
	r.Get("/api/departments/{id}", getDepartmentHandler(store))
	r.Post("/api/admin/departments", createDepartmentHandler(store))
	r.Patch("/api/admin/departments/{id}", updateDepartmentHandler(store))
	r.Delete("/api/admin/departments/{id}", deleteDepartmentHandler(store))
}

type createUserRequest struct {
	Name         string     `json:"name" validate:"required"`
	Email        string     `json:"email" validate:"required,email"`
	Password     string     `json:"password" validate:"omitempty,min=8"`
	Role         Role       `json:"role" validate:"omitempty,oneof=EMPLOYEE MANAGER HR ADMIN"`
	Title        string     `json:"title"`
	DepartmentID string     `json:"departmentId"`
	ManagerID    string     `json:"managerId"`
	IsActive     *bool      `json:"isActive"`
	HireDate     *time.Time `json:"hireDate"`
}

type departmentRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1"`
	HeadID   *string `json:"headId"`
	ParentID *string `json:"parentId"`
}

func listUsersHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		users, err := store.ListUsers(r.Context(), UserFilter{
			DepartmentID: q.Get("department"),
			ManagerID:    q.Get("manager"),
			ActiveOnly:   q.Get("active") == "true",
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if users == nil {
			users = []User{}
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func getUserHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := store.GetUser(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func createUserHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		u := &User{
			Name:         req.Name,
			Email:        req.Email,
			Role:         req.Role,
			Title:        req.Title,
			DepartmentID: req.DepartmentID,
			ManagerID:    req.ManagerID,
			IsActive:     req.IsActive == nil || *req.IsActive,
			HireDate:     req.HireDate,
		}
		if err := store.CreateUser(r.Context(), u, req.Password); err != nil {
			writeStoreError(w, err)
			return
		}
		changetrack.Report(r.Context(), u.ID, nil)
		writeJSON(w, http.StatusCreated, u)
	}
}

func updateUserHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch UserPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(patch); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		u, err := store.UpdateUser(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func deleteUserHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listDepartmentsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		departments, err := store.ListDepartments(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if departments == nil {
			departments = []Department{}
		}
		writeJSON(w, http.StatusOK, departments)
	}
}

func getDepartmentHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := store.GetDepartment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func createDepartmentHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req departmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Name == nil || *req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		d := &Department{Name: *req.Name}
		if req.HeadID != nil {
			d.HeadID = *req.HeadID
		}
		if req.ParentID != nil {
			d.ParentID = *req.ParentID
		}
		if err := store.CreateDepartment(r.Context(), d); err != nil {
			writeStoreError(w, err)
			return
		}
		changetrack.Report(r.Context(), d.ID, nil)
		writeJSON(w, http.StatusCreated, d)
	}
}

func updateDepartmentHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req departmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		id := chi.URLParam(r, "id")
		d, err := store.GetDepartment(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if req.Name != nil {
			d.Name = *req.Name
		}
		if req.HeadID != nil {
			d.HeadID = *req.HeadID
		}
		if req.ParentID != nil {
			if *req.ParentID == id {
				writeError(w, http.StatusBadRequest, "department cannot be its own parent")
				return
			}
			d.ParentID = *req.ParentID
		}
		if err := store.UpdateDepartment(r.Context(), d); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func deleteDepartmentHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteDepartment(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSelfManager):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
