package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/contactskeeper/apiserver/internal/mail"
	"github.com/contactskeeper/apiserver/types"
)

func (e *testEnv) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	user := decodeBody[types.User](t, rec)
	if user.Username != "alice" || user.Confirmed {
		t.Fatalf("unexpected user: %+v", user)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("response leaks password material: %s", rec.Body.String())
	}
	if env.backend.count() != 1 {
		t.Fatalf("expected one confirmation email enqueued, got %d", env.backend.count())
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addUser(t, "alice", "alice@example.com", "password123", types.RoleUser)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "other",
		Email:    "alice@example.com",
		Password: "password123",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rec); resp.Error != msgUserExists {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addUser(t, "alice", "alice@example.com", "password123", types.RoleUser)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "alice",
		Email:    "new@example.com",
		Password: "password123",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rec); resp.Error != msgUsernameExists {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "alice",
		Email:    "not-an-email",
		Password: "short",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	resp := decodeBody[ValidationResponse](t, rec)
	if _, ok := resp.Fields["email"]; !ok {
		t.Fatalf("expected email field error, got %+v", resp.Fields)
	}
	if _, ok := resp.Fields["password"]; !ok {
		t.Fatalf("expected password field error, got %+v", resp.Fields)
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addUser(t, "alice", "alice@example.com", "password123", types.RoleUser)

	rec := env.login(t, "alice", "password123")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	token := decodeBody[TokenResponse](t, rec)
	if token.AccessToken == "" || token.TokenType != "bearer" {
		t.Fatalf("unexpected token response: %+v", token)
	}

	// The issued token must authenticate follow-up requests.
	me := env.do(t, http.MethodGet, "/api/users/me", token.AccessToken, nil)
	if me.Code != http.StatusOK {
		t.Fatalf("expected 200 from /me, got %d", me.Code)
	}
	if user := decodeBody[types.User](t, me); user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addUser(t, "alice", "alice@example.com", "password123", types.RoleUser)

	rec := env.login(t, "alice", "wrong-password")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rec); resp.Error != msgWrongCredentials {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
}

func TestLogin_UnknownUserSameMessage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.login(t, "nobody", "password123")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rec); resp.Error != msgWrongCredentials {
		t.Fatalf("unknown user must get the generic message, got %q", resp.Error)
	}
}

func TestLogin_Unconfirmed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	user, _ := env.addUser(t, "alice", "alice@example.com", "password123", types.RoleUser)
	user.Confirmed = false
	env.userStore.users[user.ID] = user

	rec := env.login(t, "alice", "password123")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rec); resp.Error != msgEmailNotConfirmed {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
}

func TestConfirmedEmail(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	user, _ := env.addUser(t, "alice", "alice@example.com", "password123", types.RoleUser)
	user.Confirmed = false
	env.userStore.users[user.ID] = user

	token, err := env.signer.IssueConfirmToken("alice@example.com")
	if err != nil {
		t.Fatalf("issue confirm token: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/auth/confirmed_email/"+token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeBody[MessageResponse](t, rec); resp.Message != msgEmailConfirmed {
		t.Fatalf("unexpected message: %q", resp.Message)
	}

	// Confirming again is a no-op success.
	again := env.do(t, http.MethodGet, "/api/auth/confirmed_email/"+token, "", nil)
	if again.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", again.Code)
	}
	if resp := decodeBody[MessageResponse](t, again); resp.Message != msgAlreadyConfirmed {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestConfirmedEmail_BadToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/confirmed_email/garbage", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rec); resp.Error != msgVerificationError {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
}

func TestRequestEmail_NeverRevealsRegistration(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/request_email", "", RequestEmailRequest{
		Email: "ghost@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown address, got %d", rec.Code)
	}
	if resp := decodeBody[MessageResponse](t, rec); resp.Message != msgCheckEmail {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
	if env.backend.count() != 0 {
		t.Fatalf("no email must be enqueued for an unknown address")
	}
}

func TestPasswordReset_Flow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addUser(t, "alice", "alice@example.com", "password123", types.RoleUser)

	rec := env.do(t, http.MethodPost, "/api/auth/request-password-reset", "", ResetPasswordRequest{
		Email: "alice@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.backend.count() != 1 {
		t.Fatalf("expected one reset email enqueued, got %d", env.backend.count())
	}

	var job mail.Job
	if err := json.Unmarshal(env.backend.published[0].Data, &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Kind != mail.JobReset || job.Token == "" {
		t.Fatalf("unexpected job: %+v", job)
	}

	confirm := env.do(t, http.MethodPost, "/api/auth/reset-password", "", ResetPasswordConfirm{
		Token:       job.Token,
		NewPassword: "new-password-1",
	})
	if confirm.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", confirm.Code, confirm.Body.String())
	}

	// Old password refused, new one accepted.
	if rec := env.login(t, "alice", "password123"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password must be refused, got %d", rec.Code)
	}
	if rec := env.login(t, "alice", "new-password-1"); rec.Code != http.StatusOK {
		t.Fatalf("new password must work, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPasswordReset_BadToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addUser(t, "alice", "alice@example.com", "password123", types.RoleUser)

	rec := env.do(t, http.MethodPost, "/api/auth/reset-password", "", ResetPasswordConfirm{
		Token:       "garbage",
		NewPassword: "new-password-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rec); resp.Error != msgInvalidResetToken {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
}

func TestPasswordReset_ShortPassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/reset-password", "", ResetPasswordConfirm{
		Token:       "whatever",
		NewPassword: "short",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}
