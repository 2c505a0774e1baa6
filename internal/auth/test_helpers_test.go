package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/cdl-core/internal/infrastructure/database"
	"github.com/nerrad567/cdl-core/migrations"
)

const testSecret = "test-secret-key-at-least-32-chars!"

// testDB opens a temp-file SQLite database with the full schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}

func testAccountService(t *testing.T) *AccountService {
	t.Helper()
	db := testDB(t)
	return NewAccountService(NewUserRepository(db), NewSessionRepository(db), testSecret, time.Hour, nopLogger{})
}

// seedTestUser registers an account and returns it.
func seedTestUser(t *testing.T, svc *AccountService, email string, staff, admin bool) *User {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), RegisterInput{
		Email:    email,
		Name:     "Test " + email,
		Password: "test-password",
		IsStaff:  staff,
		IsAdmin:  admin,
	})
	if err != nil {
		t.Fatalf("creating test user %s: %v", email, err)
	}
	return u
}
