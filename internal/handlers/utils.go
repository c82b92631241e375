package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/contactskeeper/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// API messages, kept in one place so handlers and tests agree on exact
// wording.
const (
	msgWelcome           = "Welcome to the Contacts API"
	msgHealthy           = "Application is healthy"
	msgDatabaseDown      = "Error connecting to the database"
	msgUnauthorized      = "Could not validate credentials"
	msgForbidden         = "Not enough permissions"
	msgUserExists        = "User already exists"
	msgUsernameExists    = "Username already exists"
	msgUserNotFound      = "User not found"
	msgWrongCredentials  = "Wrong password or email"
	msgEmailNotConfirmed = "Email is not confirmed"
	msgAlreadyConfirmed  = "Your email is already confirmed"
	msgEmailConfirmed    = "Email confirmed"
	msgCheckEmail        = "Check your email for confirmation"
	msgVerificationError = "Verification error"
	msgResetSent         = "Password reset email sent"
	msgInvalidResetToken = "Invalid or expired token"
	msgPasswordChanged   = "Password changed successfully"
	msgContactNotFound   = "Contact not found"
	msgRateLimited       = "Request limit exceeded. Try again later."
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ValidationResponse carries field-level validation failures.
type ValidationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

// writeValidationError maps validation failures to 422 with one message
// per failing field.
func writeValidationError(w http.ResponseWriter, err error) {
	fields := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			fields[field] = ferr.Error()
		}
	} else {
		fields["body"] = err.Error()
	}
	writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{
		Error:  "validation failed",
		Fields: fields,
	})
}
