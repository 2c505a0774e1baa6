package experiment

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/cdl-core/internal/result"
)

// Status is the lifecycle state of an experiment.
type Status string

// Experiment statuses.
const (
	StatusInitial Status = "INITIAL"
	StatusInQueue Status = "IN_QUEUE"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusFailed  Status = "FAILED"
)

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusInitial, StatusInQueue, StatusRunning, StatusDone, StatusFailed}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInitial, StatusInQueue, StatusRunning, StatusDone, StatusFailed:
		return true
	}
	return false
}

// PresetSetting selects the entanglement preset of the photonic cluster.
type PresetSetting string

const (
	PresetLinear PresetSetting = "linear"
	PresetGHZ    PresetSetting = "ghz"
)

// Valid reports whether p is a known preset.
func (p PresetSetting) Valid() bool {
	return p == PresetLinear || p == PresetGHZ
}

// CircuitConfiguration names the optical circuit layout.
type CircuitConfiguration string

const CircuitHorseshoe CircuitConfiguration = "horseshoe"

// Valid reports whether c is a known circuit configuration.
func (c CircuitConfiguration) Valid() bool {
	return c == CircuitHorseshoe
}

// ClusterState describes the photonic cluster the circuit runs on.
type ClusterState struct {
	AmountQubits   int           `json:"amountQubits" validate:"min=1,max=4"`
	PresetSettings PresetSetting `json:"presetSettings" validate:"preset_setting"`
}

// CircuitAngle is one named angle setting of the circuit.
type CircuitAngle struct {
	CircuitAngleName  string  `json:"circuitAngleName" validate:"required,max=255"`
	CircuitAngleValue float64 `json:"circuitAngleValue" validate:"min=0,max=360,decimals=3"`
}

// QubitComputing holds the circuit layout and its ordered angle settings.
type QubitComputing struct {
	CircuitConfiguration CircuitConfiguration `json:"circuitConfiguration" validate:"circuit_configuration"`
	CircuitAngles        []CircuitAngle       `json:"circuitAngles" validate:"dive"`
}

// QubitMeasurement is the measurement basis of one encoded qubit.
// Every field is optional.
type QubitMeasurement struct {
	EncodedQubitIndex *int     `json:"encodedQubitIndex" validate:"omitempty,min=1"`
	Theta             *float64 `json:"theta" validate:"omitempty,min=0,max=360,decimals=2"`
	Phi               *float64 `json:"phi" validate:"omitempty,min=0,max=360,decimals=2"`
}

// ComputeSettings is the configuration snapshot an experiment runs with.
// It is created together with its experiment and never modified.
type ComputeSettings struct {
	ClusterState             ClusterState       `json:"clusterState"`
	QubitComputing           QubitComputing     `json:"qubitComputing"`
	EncodedQubitMeasurements []QubitMeasurement `json:"encodedQubitMeasurements" validate:"dive"`
}

// Experiment is a submitted run request.
type Experiment struct {
	ExperimentID    string          `json:"experimentId"`
	ExperimentName  string          `json:"experimentName" validate:"required,max=255"`
	CircuitID       int             `json:"circuitId" validate:"min=1,max=23"`
	ProjectID       *string         `json:"projectId" validate:"omitempty,max=255"`
	MaxRuntime      int             `json:"maxRuntime" validate:"min=1,max=120"`
	Status          Status          `json:"status" validate:"experiment_status"`
	Created         time.Time       `json:"created"`
	UserID          string          `json:"user_id"`
	ComputeSettings ComputeSettings `json:"computeSettings"`
}

// DefaultMaxRuntime applies when a submission omits maxRuntime.
const DefaultMaxRuntime = 5

// CreateInput is a submission payload. Status and UserID are accepted so
// clients may send them, but the service always overrides both.
type CreateInput struct {
	ExperimentName  string           `json:"experimentName"`
	CircuitID       int              `json:"circuitId"`
	ProjectID       *string          `json:"projectId"`
	MaxRuntime      *int             `json:"maxRuntime"`
	Status          Status           `json:"status"`
	UserID          string           `json:"user_id"`
	ComputeSettings *ComputeSettings `json:"computeSettings"`
}

// PatchInput is a partial update. Nil fields are left unchanged.
// ComputeSettings is immutable; a non-nil value is rejected.
type PatchInput struct {
	ExperimentName  *string          `json:"experimentName"`
	CircuitID       *int             `json:"circuitId"`
	ProjectID       *string          `json:"projectId"`
	MaxRuntime      *int             `json:"maxRuntime"`
	Status          *Status          `json:"status"`
	ComputeSettings *ComputeSettings `json:"computeSettings"`
}

// Detail is an experiment together with its most recent result, if any.
type Detail struct {
	Experiment   *Experiment
	LatestResult *result.ExperimentResult
}

// MarshalJSON renders the experiment alone when it has no result, and the
// {experimentConfiguration, experimentResult} pair otherwise.
func (d Detail) MarshalJSON() ([]byte, error) {
	if d.LatestResult == nil {
		return json.Marshal(d.Experiment)
	}
	return json.Marshal(struct {
		Configuration *Experiment              `json:"experimentConfiguration"`
		Result        *result.ExperimentResult `json:"experimentResult"`
	}{d.Experiment, d.LatestResult})
}

// ResultOrExperiment returns the latest result, falling back to the
// experiment itself when nothing has been recorded yet.
func (d Detail) ResultOrExperiment() any {
	if d.LatestResult != nil {
		return d.LatestResult
	}
	return d.Experiment
}
