package result

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/cdl-core/internal/auth"
	"github.com/nerrad567/cdl-core/internal/events"
	"github.com/nerrad567/cdl-core/internal/infrastructure/database"
	"github.com/nerrad567/cdl-core/migrations"
)

var (
	admin = auth.Identity{ID: "daq", IsAdmin: true}
	staff = auth.Identity{ID: "staff-1", IsStaff: true}
)

type fakeTelemetry struct {
	mu      sync.Mutex
	written map[string][]int64
}

func (f *fakeTelemetry) RecordResult(experimentID string, r *ExperimentResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.written == nil {
		f.written = map[string][]int64{}
	}
	f.written[experimentID] = append(f.written[experimentID], r.ID)
}

// ownerTable answers OwnerOf from a map, independent of the database.
type ownerTable map[string]string

func (o ownerTable) OwnerOf(_ context.Context, id string) (string, bool, error) {
	owner, ok := o[id]
	return owner, ok, nil
}

type fixture struct {
	db        *sql.DB
	repo      *SQLiteRepository
	svc       *Service
	events    *events.Recorder
	telemetry *fakeTelemetry
	owners    ownerTable
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "results.db"),
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, db.Migrate(ctx, migrations.FS))

	f := &fixture{
		db:        db.DB,
		repo:      NewSQLiteRepository(db.DB),
		events:    &events.Recorder{},
		telemetry: &fakeTelemetry{},
		owners:    ownerTable{},
	}
	f.svc = NewService(Deps{
		Repo:        f.repo,
		Experiments: f.owners,
		Publisher:   f.events,
		Telemetry:   f.telemetry,
	})
	return f
}

// seedExperiment inserts a minimal experiment row so the foreign key on
// experiment_results is satisfied.
func (f *fixture) seedExperiment(t *testing.T, id, owner string) {
	t.Helper()
	stmts := []string{
		`INSERT INTO cluster_states (amount_qubits, preset_settings) VALUES (1, 'linear')`,
		`INSERT INTO qubit_computings (circuit_configuration) VALUES ('horseshoe')`,
		`INSERT INTO compute_settings (cluster_state_id, qubit_computing_id)
			VALUES ((SELECT MAX(id) FROM cluster_states), (SELECT MAX(id) FROM qubit_computings))`,
	}
	for _, s := range stmts {
		_, err := f.db.Exec(s)
		require.NoError(t, err)
	}
	now := database.FormatTime(time.Now())
	_, err := f.db.Exec(`
		INSERT INTO experiments (id, experiment_name, circuit_id, max_runtime, status, user_id, compute_settings_id, created_at, updated_at)
		VALUES (?, 'seed', 1, 5, 'RUNNING', ?, (SELECT MAX(id) FROM compute_settings), ?, ?)`,
		id, owner, now, now)
	require.NoError(t, err)
	f.owners[id] = owner
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func ptr[T any](v T) *T { return &v }

func validInput(experimentID string) CreateInput {
	return CreateInput{
		Experiment:        ptr(experimentID),
		TotalCounts:       1200,
		NumberOfDetectors: 8,
		SinglePhotonRate:  1234.56,
		TotalTime:         60,
		ExperimentData: &ExperimentData{
			CountratePerDetector: Countrates{D1: ptr(uint64(100)), D5: ptr(uint64(0)), D8: ptr(uint64(42))},
			EncodedQubitMeasurements: Coincidences{
				"d1d5": 17,
				"d2d6": 0,
			},
		},
	}
}

const expID = "3f2c1b4a-0000-4000-8000-000000000001"

func TestCreate_RecordsResultWithData(t *testing.T) {
	f := newFixture(t)
	f.seedExperiment(t, expID, "user-alice")

	res, err := f.svc.Create(context.Background(), admin, validInput(expID))
	require.NoError(t, err)
	assert.NotZero(t, res.ID)
	assert.False(t, res.StartTime.IsZero())

	got, err := f.svc.Get(context.Background(), admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, expID, *got.ExperimentID)
	assert.Equal(t, res.ExperimentData, got.ExperimentData)
	assert.Nil(t, got.ExperimentData.CountratePerDetector.D2)
	assert.Equal(t, 1234.56, got.SinglePhotonRate)

	data, err := f.svc.Data(context.Background(), admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(17), data.EncodedQubitMeasurements["d1d5"])

	require.Len(t, f.events.Events(), 1)
	ev := f.events.Events()[0]
	assert.Equal(t, events.ResultRecorded, ev.Type)
	assert.Equal(t, res.ID, ev.ResultID)
	assert.Equal(t, "user-alice", ev.OwnerID)
	assert.Equal(t, []int64{res.ID}, f.telemetry.written[expID])
}

func TestCreate_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.seedExperiment(t, expID, "user-alice")

	for _, id := range []auth.Identity{staff, {ID: "user-alice"}} {
		_, err := f.svc.Create(context.Background(), id, validInput(expID))
		assert.ErrorIs(t, err, auth.ErrForbidden)
		_, err = f.svc.List(context.Background(), id, ListFilter{})
		assert.ErrorIs(t, err, auth.ErrForbidden)
		_, err = f.svc.Get(context.Background(), id, 1)
		assert.ErrorIs(t, err, auth.ErrForbidden)
		assert.ErrorIs(t, f.svc.Delete(context.Background(), id, 1), auth.ErrForbidden)
	}
	assert.Zero(t, f.count(t, "experiment_results"))
}

func TestCreate_RejectsDanglingReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), admin, validInput("9b9b9b9b-0000-4000-8000-000000000009"))
	assert.ErrorIs(t, err, ErrReferenceIntegrity)

	in := validInput(expID)
	in.Experiment = nil
	_, err = f.svc.Create(context.Background(), admin, in)
	assert.ErrorIs(t, err, ErrReferenceIntegrity)

	// Lookup says yes but the row is gone: the foreign key catches it
	// and the partial write is rolled back.
	f.owners[expID] = "ghost"
	_, err = f.svc.Create(context.Background(), admin, validInput(expID))
	assert.ErrorIs(t, err, ErrReferenceIntegrity)

	for _, table := range []string{"experiment_results", "experiment_data", "countrates", "coincidences"} {
		assert.Zero(t, f.count(t, table), "rows left in %s", table)
	}
	assert.Empty(t, f.events.Events())
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"too many detectors", func(in *CreateInput) { in.NumberOfDetectors = 9 }},
		{"no detectors", func(in *CreateInput) { in.NumberOfDetectors = 0 }},
		{"rate too precise", func(in *CreateInput) { in.SinglePhotonRate = 1.234 }},
		{"rate out of range", func(in *CreateInput) { in.SinglePhotonRate = 1e6 }},
		{"empty label", func(in *CreateInput) { in.ExperimentData.EncodedQubitMeasurements[""] = 1 }},
		{"label too long", func(in *CreateInput) {
			in.ExperimentData.EncodedQubitMeasurements[string(make([]byte, 65))] = 1
		}},
		{"missing data", func(in *CreateInput) { in.ExperimentData = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedExperiment(t, expID, "user-alice")
			in := validInput(expID)
			tt.mutate(&in)

			_, err := f.svc.Create(context.Background(), admin, in)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Zero(t, f.count(t, "countrates"))
		})
	}
}

func TestLatest_TieBreaksOnInsertionOrder(t *testing.T) {
	f := newFixture(t)
	f.seedExperiment(t, expID, "user-alice")
	ctx := context.Background()

	none, err := f.svc.Latest(ctx, expID)
	require.NoError(t, err)
	assert.Nil(t, none)

	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	var ids []int64
	for _, start := range []time.Time{t0.Add(time.Minute), t0, t0.Add(time.Minute)} {
		f.svc.now = func() time.Time { return start }
		res, err := f.svc.Create(ctx, admin, validInput(expID))
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}

	latest, err := f.svc.Latest(ctx, expID)
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)

	all, err := f.svc.List(ctx, admin, ListFilter{ExperimentID: expID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{ids[1], ids[0], ids[2]}, []int64{all[0].ID, all[1].ID, all[2].ID})

	page, err := f.svc.List(ctx, admin, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
}

func TestDelete_RemovesDataButNotExperiment(t *testing.T) {
	f := newFixture(t)
	f.seedExperiment(t, expID, "user-alice")
	ctx := context.Background()

	res, err := f.svc.Create(ctx, admin, validInput(expID))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, admin, res.ID))
	for _, table := range []string{"experiment_results", "experiment_data", "countrates", "coincidences"} {
		assert.Zero(t, f.count(t, table), "rows left in %s", table)
	}

	var status string
	require.NoError(t, f.db.QueryRow(`SELECT status FROM experiments WHERE id = ?`, expID).Scan(&status))
	assert.Equal(t, "RUNNING", status)

	assert.ErrorIs(t, f.svc.Delete(ctx, admin, res.ID), ErrNotFound)
	_, err = f.svc.Get(ctx, admin, res.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
