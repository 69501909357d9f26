package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rewear/rewear/internal/auth"
	"github.com/rewear/rewear/internal/model"
	"github.com/rewear/rewear/internal/store"
)

// defaultUsersPerPage is the admin user list page size.
const defaultUsersPerPage = 20

// UsersHandler handles account and admin user endpoints.
type UsersHandler struct {
	DB *sql.DB
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Location string `json:"location"`
}

type profileRequest struct {
	Name     string `json:"name"`
	Bio      string `json:"bio"`
	Location string `json:"location"`
}

// Register handles POST /api/users/register.
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}
	email, err := model.NormalizeEmail(req.Email)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, name, email, hash, model.RoleUser)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if loc := strings.TrimSpace(req.Location); loc != "" {
		if err := store.UpdateProfile(r.Context(), h.DB, user.ID, user.Name, "", loc); err != nil {
			writeError(w, r, err)
			return
		}
		user.Location = loc
	}

	slog.Info("user registered", "user", user.ID)
	jsonResponse(w, http.StatusCreated, user)
}

// Profile handles GET /api/users/profile.
func (h *UsersHandler) Profile(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, CurrentUser(r.Context()))
}

// UpdateProfile handles PUT /api/users/profile.
func (h *UsersHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	id := CurrentUser(r.Context()).ID
	if err := store.UpdateProfile(r.Context(), h.DB, id, name,
		strings.TrimSpace(req.Bio), strings.TrimSpace(req.Location)); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// Dashboard handles GET /api/users/dashboard.
func (h *UsersHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := store.GetDashboard(r.Context(), h.DB, CurrentUser(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if d == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResponse(w, http.StatusOK, d)
}

// List handles GET /api/users/admin/all.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r, defaultUsersPerPage)
	if err != nil {
		writeError(w, r, err)
		return
	}

	users, total, err := store.ListUsers(r.Context(), h.DB, strings.TrimSpace(r.URL.Query().Get("search")), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, pageResponse("users", users, total, page))
}

// Get handles GET /api/users/admin/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	stats, err := store.GetUserStats(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"user": user, "stats": stats})
}

type banRequest struct {
	IsBanned *bool `json:"is_banned"`
}

// SetBanned handles PATCH /api/users/admin/{id}/ban.
func (h *UsersHandler) SetBanned(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req banRequest
	if err := decodeJSON(r, &req); err != nil || req.IsBanned == nil {
		jsonError(w, http.StatusBadRequest, "is_banned required")
		return
	}

	admin := CurrentUser(r.Context())
	if id == admin.ID {
		writeError(w, r, fmt.Errorf("%w: cannot ban yourself", store.ErrValidation))
		return
	}

	if err := store.SetUserBanned(r.Context(), h.DB, id, *req.IsBanned); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user ban updated", "user", id, "banned", *req.IsBanned, "admin", admin.ID)
	h.respondUser(w, r, id)
}

type roleRequest struct {
	Role string `json:"role"`
}

// SetRole handles PATCH /api/users/admin/{id}/role.
func (h *UsersHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}

	admin := CurrentUser(r.Context())
	if id == admin.ID {
		writeError(w, r, fmt.Errorf("%w: cannot change your own role", store.ErrValidation))
		return
	}

	if err := store.SetUserRole(r.Context(), h.DB, id, req.Role); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user role updated", "user", id, "role", req.Role, "admin", admin.ID)
	h.respondUser(w, r, id)
}

func (h *UsersHandler) respondUser(w http.ResponseWriter, r *http.Request, id int64) {
	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}
