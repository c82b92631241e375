package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/contactskeeper/apiserver/internal/services"
	"github.com/contactskeeper/apiserver/internal/store"
	"github.com/contactskeeper/apiserver/types"
)

const (
	meRateLimit  = 10
	meRateWindow = time.Minute
)

// UserHandler provides the current-user endpoint and the admin user
// management surface.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// UsersRouter registers user routes on the given router. /me is
// rate-limited per client IP; the rest is admin-only.
func UsersRouter(
	r chi.Router,
	users *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(users)

	rateLimiter := httprate.Limit(
		meRateLimit,
		meRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, msgRateLimited)
		}),
	)

	r.With(authMiddleware, rateLimiter).Get("/me", handler.Me)
	r.With(authMiddleware, RequireAdmin).Put("/change-role", handler.ChangeRole)
	r.Route("/{userID}", func(r chi.Router) {
		r.Use(authMiddleware, RequireAdmin)
		r.Get("/", handler.Get)
		r.Put("/", handler.Update)
		r.Delete("/", handler.Delete)
	})
}

type RoleUpdateRequest struct {
	Email   string `json:"email"`
	NewRole string `json:"new_role"`
}

func (r RoleUpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.NewRole, validation.Required, validation.In(types.RoleUser, types.RoleAdmin)),
	)
}

// UserUpdateRequest carries a partial update to a user row. Nil fields
// are left unchanged.
type UserUpdateRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Avatar   *string `json:"avatar"`
	IsActive *bool   `json:"is_active"`
	Role     *string `json:"role"`
}

// Me returns the current authenticated user.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ChangeRole assigns a new role to the user with the given email.
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req RoleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	user, err := h.users.UpdateRole(r.Context(), strings.TrimSpace(req.Email), req.NewRole)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update role")
		return
	}

	writeMessage(w, http.StatusOK, fmt.Sprintf("User %s role changed to %s", user.Email, user.Role))
}

// Get returns a user by id. This is the cached lookup path.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Update merges the submitted fields into the user row and refreshes
// the cache entry.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req UserUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Avatar != nil {
		user.Avatar = *req.Avatar
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.Role != nil {
		if err := validation.Validate(*req.Role, validation.In(types.RoleUser, types.RoleAdmin)); err != nil {
			writeValidationError(w, validation.Errors{"role": err})
			return
		}
		user.Role = *req.Role
	}

	updated, err := h.users.Update(r.Context(), user)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, msgUserExists)
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a user and, through the database cascade, all of the
// user's contacts.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	writeMessage(w, http.StatusOK, "User deleted")
}

func parseUserID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "userID"))
}
