package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// profileValidate checks account fields. The validator caches struct
// metadata and is safe for concurrent use.
var profileValidate = validator.New(validator.WithRequiredStructEnabled())

// Logger is the logging surface the account service needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// AccountService handles registration, login and token resolution.
type AccountService struct {
	users    UserRepository
	sessions SessionRepository
	secret   string
	ttl      time.Duration
	logger   Logger
	now      func() time.Time
}

// NewAccountService wires the account service. ttl is the lifetime of issued tokens.
func NewAccountService(users UserRepository, sessions SessionRepository, secret string, ttl time.Duration, logger Logger) *AccountService {
	return &AccountService{
		users:    users,
		sessions: sessions,
		secret:   secret,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
	IsStaff  bool
	IsAdmin  bool
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresIn time.Duration
	User      *User
}

// ProfileUpdate carries the optional fields of a self-service profile change.
type ProfileUpdate struct {
	Email    *string
	Name     *string
	Password *string
}

// Register creates an active account. Self-registration never grants staff
// or admin; those flags are only honoured from operator tooling via CreateUser.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.IsStaff, in.IsAdmin = false, false
	return s.CreateUser(ctx, in)
}

// CreateUser creates an account with the given flags.
func (s *AccountService) CreateUser(ctx context.Context, in RegisterInput) (*User, error) {
	if err := validateProfile(in.Email, in.Name); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:        in.Email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      in.IsStaff,
		IsAdmin:      in.IsAdmin,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "is_staff", user.IsStaff, "is_admin", user.IsAdmin)
	return user, nil
}

// Login verifies credentials, opens a session and issues a token bound to it.
// Unknown email, wrong password and inactive account all return ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok || !user.IsActive {
		s.logger.Warn("login rejected", "user_id", user.ID, "active", user.IsActive)
		return nil, ErrInvalidCredentials
	}

	session := &Session{UserID: user.ID, ExpiresAt: s.now().Add(s.ttl).UTC()}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	token, err := GenerateAccessToken(user, session.ID, s.secret, s.ttl)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "session_id", session.ID)
	return &LoginResult{Token: token, ExpiresIn: s.ttl, User: user}, nil
}

// Resolve turns a raw bearer token into an Identity. Tokens carrying a
// session id must reference an active session.
func (s *AccountService) Resolve(ctx context.Context, token string) (Identity, *CustomClaims, error) {
	claims, err := ParseToken(token, s.secret)
	if err != nil {
		return Identity{}, nil, err
	}

	if claims.SessionID != "" {
		session, err := s.sessions.GetByID(ctx, claims.SessionID)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return Identity{}, nil, ErrTokenRevoked
			}
			return Identity{}, nil, err
		}
		if session.UserID != claims.Subject || !session.Active(s.now()) {
			return Identity{}, nil, ErrTokenRevoked
		}
	}

	return claims.Identity(), claims, nil
}

// Logout revokes the session behind claims. Tokens without a session have
// nothing to revoke and succeed silently.
func (s *AccountService) Logout(ctx context.Context, claims *CustomClaims) error {
	if claims == nil || claims.SessionID == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, claims.SessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	s.logger.Info("user logged out", "user_id", claims.Subject, "session_id", claims.SessionID)
	return nil
}

// Profile returns the caller's local account.
func (s *AccountService) Profile(ctx context.Context, id Identity) (*User, error) {
	return s.users.GetByID(ctx, id.ID)
}

// UpdateProfile applies a self-service change to the caller's own account.
// A new password revokes every open session of the account.
func (s *AccountService) UpdateProfile(ctx context.Context, id Identity, upd ProfileUpdate) (*User, error) {
	user, err := s.users.GetByID(ctx, id.ID)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		user.Email = *upd.Email
	}
	if upd.Name != nil {
		user.Name = strings.TrimSpace(*upd.Name)
	}
	if err := validateProfile(user.Email, user.Name); err != nil {
		return nil, err
	}

	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return nil, err
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	if upd.Password != nil {
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
			return nil, err
		}
		if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
			return nil, err
		}
		s.logger.Info("password changed, sessions revoked", "user_id", user.ID)
	}

	return user, nil
}

// PruneSessions removes expired sessions.
func (s *AccountService) PruneSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx)
}

func validateProfile(email, name string) error {
	if err := profileValidate.Var(strings.TrimSpace(email), "required,max=255,email"); err != nil {
		return fmt.Errorf("%w: email %q is not a valid address", ErrInvalidProfile, email)
	}
	if err := profileValidate.Var(strings.TrimSpace(name), "required,max=255"); err != nil {
		return fmt.Errorf("%w: name is required and limited to 255 characters", ErrInvalidProfile)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidProfile, MinPasswordLength)
	}
	return nil
}
