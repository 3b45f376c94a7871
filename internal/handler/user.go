package handler

import (
	"net/http"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/auth"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/store"
	"github.com/rentaldesk/rentals/internal/types"
)

// UserHandler implements the admin user-management endpoints.
type UserHandler struct {
	store store.Store
	auth  *auth.Service
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(s store.Store, a *auth.Service) *UserHandler {
	return &UserHandler{store: s, auth: a}
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req auth.NewUser
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.auth.CreateUser(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(users, parsePagination(r)))
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	u, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type updateUserRequest struct {
	Username *string       `json:"username,omitempty"`
	Password *string       `json:"password,omitempty"`
	Name     *string       `json:"name,omitempty"`
	Email    *string       `json:"email,omitempty"`
	Role     *model.Role   `json:"role,omitempty"`
	Status   *types.Status `json:"status,omitempty"`
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if self := actingUserID(r); self != nil && *self == id {
		if (req.Role != nil && *req.Role != u.Role) || (req.Status != nil && *req.Status != u.Status) {
			writeError(w, apperror.Conflict("cannot change your own role or status"))
			return
		}
	}
	if req.Username != nil {
		u.Username = *req.Username
	}
	if req.Password != nil {
		if err := auth.SetPassword(u, *req.Password); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
	if req.Status != nil {
		u.Status = *req.Status
	}
	if err := h.store.UpdateUser(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if self := actingUserID(r); self != nil && *self == id {
		writeError(w, apperror.Conflict("cannot delete your own account"))
		return
	}
	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
