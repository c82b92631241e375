package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/contactskeeper/apiserver/internal/auth"
	"github.com/contactskeeper/apiserver/internal/mail"
	"github.com/contactskeeper/apiserver/internal/mq"
	"github.com/contactskeeper/apiserver/internal/services"
	"github.com/contactskeeper/apiserver/internal/storage"
	"github.com/contactskeeper/apiserver/internal/store"
)

const maxAvatarBytes = 10 << 20

// AuthHandler provides registration, login, email confirmation,
// password reset, and avatar endpoints.
type AuthHandler struct {
	users   *services.UserService
	signer  *auth.Signer
	queue   *mq.Queue
	avatars *storage.Storage
}

func NewAuthHandler(users *services.UserService, signer *auth.Signer, queue *mq.Queue, avatars *storage.Storage) *AuthHandler {
	return &AuthHandler{
		users:   users,
		signer:  signer,
		queue:   queue,
		avatars: avatars,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(
	r chi.Router,
	users *services.UserService,
	signer *auth.Signer,
	queue *mq.Queue,
	avatars *storage.Storage,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewAuthHandler(users, signer, queue, avatars)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Get("/confirmed_email/{token}", handler.ConfirmedEmail)
	r.Post("/request_email", handler.RequestEmail)
	r.Post("/request-password-reset", handler.RequestPasswordReset)
	r.Post("/reset-password", handler.ResetPassword)
	r.With(authMiddleware).Patch("/avatar", handler.UpdateAvatar)
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(2, 150)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 150), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
	)
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type RequestEmailRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Register creates a new, unconfirmed account and enqueues the
// confirmation email. Duplicate email or username yields 409 without
// creating a row.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	if _, err := h.users.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, msgUserExists)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to check user")
		return
	}
	if _, err := h.users.GetByUsername(r.Context(), req.Username); err == nil {
		writeError(w, http.StatusConflict, msgUsernameExists)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to check user")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	user, err := h.users.Register(r.Context(), req.Username, req.Email, hashed)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, msgUserExists)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.enqueueConfirmation(r, user.Email, user.Username)

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies form credentials and returns a bearer token. An
// unconfirmed account gets its own error; every other failure maps to
// the same generic message.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, msgWrongCredentials)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	if !user.Confirmed {
		writeError(w, http.StatusUnauthorized, msgEmailNotConfirmed)
		return
	}
	if err := auth.ComparePasswordAndHash(password, user.HashedPassword); err != nil {
		writeError(w, http.StatusUnauthorized, msgWrongCredentials)
		return
	}

	token, err := h.signer.IssueSession(user.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// ConfirmedEmail verifies the emailed token and marks the account
// confirmed. Confirming an already-confirmed account is a no-op
// success.
func (h *AuthHandler) ConfirmedEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	email, err := h.signer.Subject(token)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgVerificationError)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgVerificationError)
		return
	}
	if user.Confirmed {
		writeMessage(w, http.StatusOK, msgAlreadyConfirmed)
		return
	}

	if err := h.users.ConfirmEmail(r.Context(), email); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to confirm email")
		return
	}
	writeMessage(w, http.StatusOK, msgEmailConfirmed)
}

// RequestEmail re-sends the confirmation email. The response never
// reveals whether the address is registered.
func (h *AuthHandler) RequestEmail(w http.ResponseWriter, r *http.Request) {
	var req RequestEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err == nil {
		if user.Confirmed {
			writeMessage(w, http.StatusOK, msgAlreadyConfirmed)
			return
		}
		h.enqueueConfirmation(r, user.Email, user.Username)
	}

	writeMessage(w, http.StatusOK, msgCheckEmail)
}

// RequestPasswordReset issues a reset token and emails the reset link.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}

	token, err := h.signer.IssueResetToken(user.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	mail.Enqueue(r.Context(), h.queue, mail.Job{
		Kind:     mail.JobReset,
		To:       user.Email,
		Username: user.Username,
		Token:    token,
	})

	writeMessage(w, http.StatusOK, msgResetSent)
}

// ResetPassword verifies the reset token and commits the new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordConfirm
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if len(req.NewPassword) < 8 {
		writeValidationError(w, validation.Errors{
			"new_password": errors.New("the length must be at least 8"),
		})
		return
	}

	email, err := h.signer.Subject(req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidResetToken)
		return
	}

	if _, err := h.users.GetByEmail(r.Context(), email); err != nil {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}
	if err := h.users.UpdatePassword(r.Context(), email, hashed); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	writeMessage(w, http.StatusOK, msgPasswordChanged)
}

// UpdateAvatar uploads the submitted file to the object store, keyed by
// username, and persists the returned URL.
func (h *AuthHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	url, err := h.avatars.UploadAvatar(r.Context(), user.Username, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to upload avatar")
		return
	}

	updated, err := h.users.UpdateAvatar(r.Context(), user.Email, url)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update avatar")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *AuthHandler) enqueueConfirmation(r *http.Request, email, username string) {
	token, err := h.signer.IssueConfirmToken(email)
	if err != nil {
		return
	}
	mail.Enqueue(r.Context(), h.queue, mail.Job{
		Kind:     mail.JobConfirm,
		To:       email,
		Username: username,
		Token:    token,
	})
}
