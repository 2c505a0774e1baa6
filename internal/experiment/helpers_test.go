package experiment

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/cdl-core/internal/auth"
	"github.com/nerrad567/cdl-core/internal/events"
	"github.com/nerrad567/cdl-core/internal/infrastructure/database"
	"github.com/nerrad567/cdl-core/internal/result"
	"github.com/nerrad567/cdl-core/migrations"
)

var (
	alice = auth.Identity{ID: "user-alice"}
	bob   = auth.Identity{ID: "user-bob"}
	staff = auth.Identity{ID: "staff-1", IsStaff: true}
	admin = auth.Identity{ID: "admin-1", IsAdmin: true}
)

type fixture struct {
	db      *sql.DB
	repo    *SQLiteRepository
	results *result.SQLiteRepository
	events  *events.Recorder
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "experiments.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, db.Migrate(ctx, migrations.FS))

	f := &fixture{
		db:      db.DB,
		repo:    NewSQLiteRepository(db.DB),
		results: result.NewSQLiteRepository(db.DB),
		events:  &events.Recorder{},
	}
	f.svc = NewService(Deps{Repo: f.repo, Results: f.results, Publisher: f.events})
	return f
}

// at pins the service clock.
func (f *fixture) at(ts time.Time) {
	f.svc.now = func() time.Time { return ts }
}

func (f *fixture) create(t *testing.T, id auth.Identity, name string) *Experiment {
	t.Helper()
	in := validInput()
	in.ExperimentName = name
	e, err := f.svc.Create(context.Background(), id, in)
	require.NoError(t, err)
	return e
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func ptr[T any](v T) *T { return &v }

// validInput mirrors the reference submission: two GHZ qubits on the
// horseshoe circuit with one angle.
func validInput() CreateInput {
	return CreateInput{
		ExperimentName: "E1",
		CircuitID:      3,
		ComputeSettings: &ComputeSettings{
			ClusterState: ClusterState{AmountQubits: 2, PresetSettings: PresetGHZ},
			QubitComputing: QubitComputing{
				CircuitConfiguration: CircuitHorseshoe,
				CircuitAngles:        []CircuitAngle{{CircuitAngleName: "alpha", CircuitAngleValue: 10.5}},
			},
			EncodedQubitMeasurements: []QubitMeasurement{},
		},
	}
}
