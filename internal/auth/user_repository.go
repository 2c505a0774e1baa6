package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/cdl-core/internal/infrastructure/database"
)

// UserRepository defines the interface for account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Count(ctx context.Context) (int, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = "id, email, name, password_hash, is_active, is_staff, is_admin, created_at, updated_at"

// Create inserts a new account. The ID is generated if empty and the email
// is stored lower-cased.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = normaliseEmail(user.Email)
	user.CreatedAt = time.Now().UTC().Truncate(time.Second)
	user.UpdatedAt = user.CreatedAt
	now := user.CreatedAt.Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.PasswordHash,
		boolToInt(user.IsActive), boolToInt(user.IsStaff), boolToInt(user.IsAdmin),
		now, now,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetByEmail retrieves an account by email, case-insensitively.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ?", normaliseEmail(email)))
}

// Update writes name, email and flags. The password is changed through UpdatePassword.
func (r *SQLiteUserRepository) Update(ctx context.Context, user *User) error {
	user.Email = normaliseEmail(user.Email)
	user.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = ?, name = ?, is_active = ?, is_staff = ?, is_admin = ?, updated_at = ? WHERE id = ?`,
		user.Email, user.Name,
		boolToInt(user.IsActive), boolToInt(user.IsStaff), boolToInt(user.IsAdmin),
		user.UpdatedAt.Format(time.RFC3339), user.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("updating user: %w", err)
	}
	return expectOneRow(res, ErrUserNotFound)
}

// UpdatePassword replaces an account's password hash.
func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return expectOneRow(res, ErrUserNotFound)
}

// Count returns the number of accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var isActive, isStaff, isAdmin int
	var createdAt, updatedAt string

	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash,
		&isActive, &isStaff, &isAdmin, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.IsActive = isActive != 0
	u.IsStaff = isStaff != 0
	u.IsAdmin = isAdmin != 0
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &u, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func expectOneRow(res sql.Result, notFound error) error {
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return notFound
	}
	return nil
}
