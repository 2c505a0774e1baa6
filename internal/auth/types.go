package auth

import (
	"errors"
	"time"
)

// Identity is the resolved caller of a request. It is never persisted.
type Identity struct {
	ID      string `json:"id"`
	IsStaff bool   `json:"is_staff"`
	IsAdmin bool   `json:"is_admin"`
}

// User is a locally registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsStaff      bool      `json:"is_staff"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity returns the caller identity this account authenticates as.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, IsStaff: u.IsStaff, IsAdmin: u.IsAdmin}
}

// Session backs a token issued at login so it can be revoked.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the session can still authenticate requests at now.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrEmailExists        = errors.New("email already registered")
	ErrSessionNotFound    = errors.New("session not found")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrInvalidProfile     = errors.New("invalid profile")
)
