package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Lifetimes of the non-session token kinds.
const (
	confirmTokenTTL = 7 * 24 * time.Hour
	resetTokenTTL   = time.Hour
)

// ErrInvalidToken is returned when a token is malformed, carries a bad
// signature, or has expired.
var ErrInvalidToken = errors.New("invalid token")

// Signer issues and verifies the three token kinds used by the API:
// session tokens (subject = username), email-confirmation tokens and
// password-reset tokens (subject = email). All three share the same
// HS256 secret and differ only in lifetime and subject semantics.
// There is no revocation: a token stays valid until it expires.
type Signer struct {
	secret     []byte
	sessionTTL time.Duration
}

func NewSigner(secret string, sessionTTL time.Duration) *Signer {
	return &Signer{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
	}
}

// IssueSession creates a login session token for the given username.
func (s *Signer) IssueSession(username string) (string, error) {
	return s.issue(username, s.sessionTTL)
}

// IssueConfirmToken creates an email-confirmation token, valid for
// seven days.
func (s *Signer) IssueConfirmToken(email string) (string, error) {
	return s.issue(email, confirmTokenTTL)
}

// IssueResetToken creates a password-reset token, valid for one hour.
func (s *Signer) IssueResetToken(email string) (string, error) {
	return s.issue(email, resetTokenTTL)
}

func (s *Signer) issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Subject verifies the token and returns its subject claim. Any
// failure, including expiry, is reported as ErrInvalidToken.
func (s *Signer) Subject(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}
