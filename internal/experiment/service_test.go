package experiment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/cdl-core/internal/auth"
	"github.com/nerrad567/cdl-core/internal/events"
	"github.com/nerrad567/cdl-core/internal/result"
)

func TestCreate_ForcesQueuedStatusAndCallerOwnership(t *testing.T) {
	f := newFixture(t)

	in := validInput()
	in.Status = StatusDone
	in.UserID = "someone-else"

	e, err := f.svc.Create(context.Background(), alice, in)
	require.NoError(t, err)

	assert.Equal(t, StatusInQueue, e.Status)
	assert.Equal(t, alice.ID, e.UserID)
	assert.Equal(t, DefaultMaxRuntime, e.MaxRuntime)
	assert.NotEmpty(t, e.ExperimentID)
	assert.Equal(t, []events.Type{events.ExperimentQueued}, f.events.Types())

	body, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"IN_QUEUE"`)
	assert.Contains(t, string(body), `"user_id":"user-alice"`)
}

func TestCreate_RoundTripsComputeSettings(t *testing.T) {
	f := newFixture(t)

	in := validInput()
	in.ProjectID = ptr("proj-7")
	in.MaxRuntime = ptr(42)
	in.ComputeSettings.ClusterState = ClusterState{AmountQubits: 4, PresetSettings: PresetLinear}
	in.ComputeSettings.QubitComputing.CircuitAngles = []CircuitAngle{
		{CircuitAngleName: "beta", CircuitAngleValue: 359.125},
		{CircuitAngleName: "alpha", CircuitAngleValue: 0},
		{CircuitAngleName: "gamma", CircuitAngleValue: 90.5},
	}
	in.ComputeSettings.EncodedQubitMeasurements = []QubitMeasurement{
		{EncodedQubitIndex: ptr(2), Theta: ptr(45.25), Phi: ptr(0.0)},
		{},
		{EncodedQubitIndex: ptr(1), Phi: ptr(180.5)},
	}

	created, err := f.svc.Create(context.Background(), alice, in)
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), alice, created.ExperimentID)
	require.NoError(t, err)
	require.Nil(t, got.LatestResult)

	assert.Equal(t, *in.ComputeSettings, got.Experiment.ComputeSettings)
	assert.Equal(t, "proj-7", *got.Experiment.ProjectID)
	assert.Equal(t, 42, got.Experiment.MaxRuntime)
	assert.True(t, created.Created.Equal(got.Experiment.Created))
}

func TestCreate_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"amountQubits too high", func(in *CreateInput) { in.ComputeSettings.ClusterState.AmountQubits = 5 }},
		{"amountQubits zero", func(in *CreateInput) { in.ComputeSettings.ClusterState.AmountQubits = 0 }},
		{"unknown preset", func(in *CreateInput) { in.ComputeSettings.ClusterState.PresetSettings = "cluster" }},
		{"unknown circuit", func(in *CreateInput) { in.ComputeSettings.QubitComputing.CircuitConfiguration = "ring" }},
		{"angle above 360", func(in *CreateInput) {
			in.ComputeSettings.QubitComputing.CircuitAngles[0].CircuitAngleValue = 360.5
		}},
		{"angle too precise", func(in *CreateInput) {
			in.ComputeSettings.QubitComputing.CircuitAngles[0].CircuitAngleValue = 10.1234
		}},
		{"angle without name", func(in *CreateInput) {
			in.ComputeSettings.QubitComputing.CircuitAngles[0].CircuitAngleName = ""
		}},
		{"theta too precise", func(in *CreateInput) {
			in.ComputeSettings.EncodedQubitMeasurements = []QubitMeasurement{{Theta: ptr(10.123)}}
		}},
		{"phi negative", func(in *CreateInput) {
			in.ComputeSettings.EncodedQubitMeasurements = []QubitMeasurement{{Phi: ptr(-1.0)}}
		}},
		{"qubit index zero", func(in *CreateInput) {
			in.ComputeSettings.EncodedQubitMeasurements = []QubitMeasurement{{EncodedQubitIndex: ptr(0)}}
		}},
		{"circuitId too high", func(in *CreateInput) { in.CircuitID = 24 }},
		{"circuitId missing", func(in *CreateInput) { in.CircuitID = 0 }},
		{"maxRuntime too high", func(in *CreateInput) { in.MaxRuntime = ptr(121) }},
		{"blank name", func(in *CreateInput) { in.ExperimentName = "   " }},
		{"no compute settings", func(in *CreateInput) { in.ComputeSettings = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			tt.mutate(&in)

			_, err := f.svc.Create(context.Background(), alice, in)
			require.ErrorIs(t, err, ErrValidation)

			for _, table := range []string{
				"experiments", "compute_settings", "cluster_states",
				"qubit_computings", "circuit_angles", "qubit_measurements",
			} {
				assert.Zero(t, f.count(t, table), "rows left in %s", table)
			}
			assert.Empty(t, f.events.Events())
		})
	}
}

func TestGet_HidesOtherUsersExperiments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.create(t, alice, "mine")

	_, err := f.svc.Get(ctx, bob, e.ExperimentID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Get(ctx, bob, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound, "missing and foreign look the same")

	_, err = f.svc.Get(ctx, bob, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, bob, e.ExperimentID), ErrNotFound)

	_, err = f.svc.Patch(ctx, bob, e.ExperimentID, PatchInput{Status: ptr(StatusRunning)})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	got, err := f.svc.Get(ctx, staff, e.ExperimentID)
	require.NoError(t, err)
	assert.Equal(t, e.ExperimentID, got.Experiment.ExperimentID)

	_, err = f.svc.Get(ctx, admin, e.ExperimentID)
	assert.ErrorIs(t, err, ErrNotFound, "admin alone does not grant experiment access")
}

func TestList_FiltersByOwnerUnlessStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, alice, "a1")
	f.create(t, bob, "b1")
	f.create(t, alice, "a2")

	mine, err := f.svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "a1", mine[0].ExperimentName)
	assert.Equal(t, "a2", mine[1].ExperimentName)

	all, err := f.svc.List(ctx, staff)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := f.svc.List(ctx, auth.Identity{ID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestPatch_NonStaffForbiddenOnOwnExperiment(t *testing.T) {
	f := newFixture(t)
	e := f.create(t, alice, "mine")

	_, err := f.svc.Patch(context.Background(), alice, e.ExperimentID, PatchInput{Status: ptr(StatusRunning)})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.Patch(context.Background(), admin, e.ExperimentID, PatchInput{Status: ptr(StatusRunning)})
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestPatch_StatusLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.create(t, alice, "run me")

	got, err := f.svc.Patch(ctx, staff, e.ExperimentID, PatchInput{Status: ptr(StatusRunning)})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)

	_, err = f.svc.Patch(ctx, staff, e.ExperimentID, PatchInput{Status: ptr(StatusInQueue)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Patch(ctx, staff, e.ExperimentID, PatchInput{Status: ptr(Status("PAUSED"))})
	assert.ErrorIs(t, err, ErrValidation)

	got, err = f.svc.Patch(ctx, staff, e.ExperimentID, PatchInput{Status: ptr(StatusDone)})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)

	_, err = f.svc.Patch(ctx, staff, e.ExperimentID, PatchInput{Status: ptr(StatusRunning)})
	assert.ErrorIs(t, err, ErrValidation, "DONE is terminal")

	stored, err := f.repo.GetByID(ctx, e.ExperimentID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, stored.Status)

	assert.Equal(t, []events.Type{
		events.ExperimentQueued,
		events.ExperimentStatusChanged,
		events.ExperimentStatusChanged,
	}, f.events.Types())
	last := f.events.Events()[2]
	assert.Equal(t, "RUNNING", last.PrevStatus)
	assert.Equal(t, "DONE", last.Status)
	assert.Equal(t, alice.ID, last.OwnerID)
}

func TestPatch_MergesAndRevalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.create(t, alice, "before")

	got, err := f.svc.Patch(ctx, staff, e.ExperimentID, PatchInput{
		ExperimentName: ptr("after"),
		MaxRuntime:     ptr(30),
	})
	require.NoError(t, err)
	assert.Equal(t, "after", got.ExperimentName)
	assert.Equal(t, 30, got.MaxRuntime)
	assert.Equal(t, 3, got.CircuitID, "untouched fields survive the merge")
	assert.Equal(t, StatusInQueue, got.Status)
	assert.Equal(t, []events.Type{events.ExperimentQueued}, f.events.Types(), "no status change, no event")

	_, err = f.svc.Patch(ctx, staff, e.ExperimentID, PatchInput{CircuitID: ptr(30)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Patch(ctx, staff, e.ExperimentID, PatchInput{ComputeSettings: validInput().ComputeSettings})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Patch(ctx, staff, "7d1f0f8e-1111-4d4d-9e9e-000000000000", PatchInput{MaxRuntime: ptr(10)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPeekQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	head, err := f.svc.PeekQueue(ctx, staff)
	require.NoError(t, err)
	assert.Nil(t, head, "empty queue is not an error")

	f.at(t0.Add(time.Minute))
	later := f.create(t, alice, "later")
	f.at(t0)
	first := f.create(t, bob, "first")
	tied := f.create(t, bob, "tied with first")

	head, err = f.svc.PeekQueue(ctx, staff)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, first.ExperimentID, head.ExperimentID)

	again, err := f.svc.PeekQueue(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, head.ExperimentID, again.ExperimentID, "peek does not dequeue")

	_, err = f.svc.Patch(ctx, staff, first.ExperimentID, PatchInput{Status: ptr(StatusRunning)})
	require.NoError(t, err)

	head, err = f.svc.PeekQueue(ctx, staff)
	require.NoError(t, err)
	assert.Equal(t, tied.ExperimentID, head.ExperimentID, "insertion order breaks timestamp ties")

	require.NoError(t, f.svc.Delete(ctx, staff, tied.ExperimentID))
	head, err = f.svc.PeekQueue(ctx, staff)
	require.NoError(t, err)
	assert.Equal(t, later.ExperimentID, head.ExperimentID)

	_, err = f.svc.PeekQueue(ctx, alice)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func recordResult(t *testing.T, f *fixture, experimentID string, start time.Time, totalCounts uint64) *result.ExperimentResult {
	t.Helper()
	r := &result.ExperimentResult{
		ExperimentID:      ptr(experimentID),
		StartTime:         start,
		TotalCounts:       totalCounts,
		NumberOfDetectors: 8,
		SinglePhotonRate:  12.5,
		TotalTime:         60,
		ExperimentData: result.ExperimentData{
			CountratePerDetector:     result.Countrates{D1: ptr(uint64(10))},
			EncodedQubitMeasurements: result.Coincidences{"d1d5": 3},
		},
	}
	require.NoError(t, f.results.Create(context.Background(), r))
	return r
}

func TestGet_AttachesLatestResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.create(t, alice, "measured")
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	recordResult(t, f, e.ExperimentID, t0, 1)
	recordResult(t, f, e.ExperimentID, t0.Add(time.Second), 2)
	newest := recordResult(t, f, e.ExperimentID, t0.Add(time.Second), 3)

	detail, err := f.svc.Get(ctx, alice, e.ExperimentID)
	require.NoError(t, err)
	require.NotNil(t, detail.LatestResult)
	assert.Equal(t, newest.ID, detail.LatestResult.ID)
	assert.Equal(t, uint64(3), detail.LatestResult.TotalCounts)

	body, err := json.Marshal(detail)
	require.NoError(t, err)
	var shape map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &shape))
	assert.Contains(t, shape, "experimentConfiguration")
	assert.Contains(t, shape, "experimentResult")

	view, err := f.svc.LatestResult(ctx, alice, e.ExperimentID)
	require.NoError(t, err)
	assert.Same(t, view.LatestResult, view.ResultOrExperiment())
}

func TestLatestResult_FallsBackToExperiment(t *testing.T) {
	f := newFixture(t)
	e := f.create(t, alice, "pending")

	view, err := f.svc.LatestResult(context.Background(), alice, e.ExperimentID)
	require.NoError(t, err)

	exp, ok := view.ResultOrExperiment().(*Experiment)
	require.True(t, ok)
	assert.Equal(t, e.ExperimentID, exp.ExperimentID)

	body, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "experimentConfiguration")
}

func TestDelete_KeepsResultsWithNullReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.create(t, alice, "short lived")
	r := recordResult(t, f, e.ExperimentID, time.Now().UTC(), 9)

	require.NoError(t, f.svc.Delete(ctx, alice, e.ExperimentID))

	_, err := f.svc.Get(ctx, staff, e.ExperimentID)
	assert.ErrorIs(t, err, ErrNotFound)

	kept, err := f.results.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, kept.ExperimentID)
	assert.Equal(t, uint64(9), kept.TotalCounts)

	for _, table := range []string{"compute_settings", "cluster_states", "qubit_computings", "circuit_angles"} {
		assert.Zero(t, f.count(t, table), "compute settings rows left in %s", table)
	}
	assert.Equal(t, events.ExperimentDeleted, f.events.Types()[1])
}

func TestDelete_StaffMayDeleteAny(t *testing.T) {
	f := newFixture(t)
	e := f.create(t, alice, "doomed")

	require.NoError(t, f.svc.Delete(context.Background(), staff, e.ExperimentID))
	assert.ErrorIs(t, f.svc.Delete(context.Background(), staff, e.ExperimentID), ErrNotFound)
}

func TestOwnerOf(t *testing.T) {
	f := newFixture(t)
	e := f.create(t, alice, "owned")

	owner, found, err := f.svc.OwnerOf(context.Background(), e.ExperimentID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, alice.ID, owner)

	_, found, err = f.svc.OwnerOf(context.Background(), "garbage")
	require.NoError(t, err)
	assert.False(t, found)
}
