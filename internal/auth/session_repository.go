package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionRepository persists login sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteSessionRepository implements SessionRepository using SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQLite-backed session repository.
func NewSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

// Create inserts a session. The ID is generated if empty.
func (r *SQLiteSessionRepository) Create(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = "ses-" + uuid.NewString()[:16]
	}
	s.CreatedAt = time.Now().UTC().Truncate(time.Second)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, revoked, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(s.Revoked), s.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID.
func (r *SQLiteSessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	var s Session
	var revoked int
	var expiresAt, createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, revoked, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &expiresAt, &revoked, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}

	s.Revoked = revoked != 0
	s.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &s, nil
}

// Revoke marks one session as revoked.
func (r *SQLiteSessionRepository) Revoke(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE sessions SET revoked = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return expectOneRow(res, ErrSessionNotFound)
}

// RevokeAllForUser revokes every session of a user. Used after a password change.
func (r *SQLiteSessionRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE sessions SET revoked = 1 WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("revoking sessions for user: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions past their expiry and returns how many were removed.
func (r *SQLiteSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at < ?", time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
