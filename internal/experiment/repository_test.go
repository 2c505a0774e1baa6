package experiment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A failure late in the aggregate write must roll back the rows written
// before it. The CHECK on experiments.circuit_id fails after every
// compute-settings row has been inserted.
func TestRepositoryCreate_RollsBackWholeAggregate(t *testing.T) {
	f := newFixture(t)

	in := validInput()
	in.ComputeSettings.EncodedQubitMeasurements = []QubitMeasurement{{Theta: ptr(1.0)}}
	e := &Experiment{
		ExperimentID:    uuid.NewString(),
		ExperimentName:  "bypasses validation",
		CircuitID:       99,
		MaxRuntime:      5,
		Status:          StatusInQueue,
		Created:         time.Now(),
		UserID:          alice.ID,
		ComputeSettings: *in.ComputeSettings,
	}

	err := f.repo.Create(context.Background(), e)
	require.Error(t, err)

	for _, table := range []string{
		"experiments", "compute_settings", "cluster_states",
		"qubit_computings", "circuit_angles", "qubit_measurements",
	} {
		assert.Zero(t, f.count(t, table), "rows left in %s", table)
	}
}

func TestRepositoryCreate_CancelledContextStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := validInput()
	e := &Experiment{
		ExperimentID:    uuid.NewString(),
		ExperimentName:  "never",
		CircuitID:       1,
		MaxRuntime:      5,
		Status:          StatusInQueue,
		Created:         time.Now(),
		UserID:          alice.ID,
		ComputeSettings: *in.ComputeSettings,
	}
	require.Error(t, f.repo.Create(ctx, e))
	assert.Zero(t, f.count(t, "cluster_states"))
}

func TestRepositoryUpdateAndDelete_Missing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.repo.Update(ctx, &Experiment{ExperimentID: uuid.NewString(), ExperimentName: "x", CircuitID: 1, MaxRuntime: 1, Status: StatusDone})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.repo.Delete(ctx, uuid.NewString()), ErrNotFound)

	_, found, err := f.repo.OwnerOf(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.False(t, found)
}
