package result

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/cdl-core/internal/auth"
	"github.com/nerrad567/cdl-core/internal/events"
)

// ExperimentLookup resolves the owner of an experiment. found is false when
// the experiment does not exist.
type ExperimentLookup interface {
	OwnerOf(ctx context.Context, experimentID string) (owner string, found bool, err error)
}

// Telemetry receives every recorded result, e.g. to mirror it into a
// time-series store. Implementations must not block.
type Telemetry interface {
	RecordResult(experimentID string, r *ExperimentResult)
}

// Metrics counts recorded results.
type Metrics interface {
	ResultRecorded()
}

// Logger is the logging surface the service needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Deps holds the collaborators of a Service. Repo and Experiments are required.
type Deps struct {
	Repo        Repository
	Experiments ExperimentLookup
	Publisher   events.Publisher
	Telemetry   Telemetry
	Metrics     Metrics
	Logger      Logger
}

// Service implements admin-only result recording.
type Service struct {
	repo        Repository
	experiments ExperimentLookup
	publisher   events.Publisher
	telemetry   Telemetry
	metrics     Metrics
	logger      Logger
	now         func() time.Time
}

// NewService creates a result service. Optional collaborators left nil are
// replaced with no-ops.
func NewService(deps Deps) *Service {
	s := &Service{
		repo:        deps.Repo,
		experiments: deps.Experiments,
		publisher:   deps.Publisher,
		telemetry:   deps.Telemetry,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         time.Now,
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.telemetry == nil {
		s.telemetry = nopTelemetry{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	return s
}

// Create records a result for an existing experiment.
func (s *Service) Create(ctx context.Context, id auth.Identity, in CreateInput) (*ExperimentResult, error) {
	if !id.CanManageResults() {
		return nil, auth.ErrForbidden
	}

	if in.Experiment == nil || *in.Experiment == "" {
		return nil, fmt.Errorf("%w: experiment is required", ErrReferenceIntegrity)
	}
	if in.ExperimentData == nil {
		return nil, fmt.Errorf("%w: experimentData is required", ErrValidation)
	}

	res := &ExperimentResult{
		ExperimentID:      in.Experiment,
		StartTime:         s.now().UTC(),
		TotalCounts:       in.TotalCounts,
		NumberOfDetectors: in.NumberOfDetectors,
		SinglePhotonRate:  in.SinglePhotonRate,
		TotalTime:         in.TotalTime,
		ExperimentData:    *in.ExperimentData,
	}
	if res.ExperimentData.EncodedQubitMeasurements == nil {
		res.ExperimentData.EncodedQubitMeasurements = Coincidences{}
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}

	owner, found, err := s.experiments.OwnerOf(ctx, *in.Experiment)
	if err != nil {
		return nil, fmt.Errorf("resolving experiment: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrReferenceIntegrity, *in.Experiment)
	}

	if err := s.repo.Create(ctx, res); err != nil {
		return nil, err
	}

	s.metrics.ResultRecorded()
	s.telemetry.RecordResult(*in.Experiment, res)
	s.publisher.Publish(ctx, events.Event{
		Type:         events.ResultRecorded,
		ExperimentID: *in.Experiment,
		ResultID:     res.ID,
		OwnerID:      owner,
		Timestamp:    res.StartTime,
	})
	s.logger.Info("result recorded", "result_id", res.ID, "experiment_id", *in.Experiment, "recorded_by", id.ID)
	return res, nil
}

// List returns recorded results.
func (s *Service) List(ctx context.Context, id auth.Identity, filter ListFilter) ([]ExperimentResult, error) {
	if !id.CanManageResults() {
		return nil, auth.ErrForbidden
	}
	return s.repo.List(ctx, filter)
}

// Get returns one result.
func (s *Service) Get(ctx context.Context, id auth.Identity, resultID int64) (*ExperimentResult, error) {
	if !id.CanManageResults() {
		return nil, auth.ErrForbidden
	}
	return s.repo.GetByID(ctx, resultID)
}

// Data returns the ExperimentData of one result.
func (s *Service) Data(ctx context.Context, id auth.Identity, resultID int64) (*ExperimentData, error) {
	res, err := s.Get(ctx, id, resultID)
	if err != nil {
		return nil, err
	}
	return &res.ExperimentData, nil
}

// Delete removes a result. The referenced experiment is left untouched.
func (s *Service) Delete(ctx context.Context, id auth.Identity, resultID int64) error {
	if !id.CanManageResults() {
		return auth.ErrForbidden
	}
	if err := s.repo.Delete(ctx, resultID); err != nil {
		return err
	}
	s.logger.Info("result deleted", "result_id", resultID, "deleted_by", id.ID)
	return nil
}

// Latest returns the newest result of an experiment, or nil when none has
// been recorded. Access checks belong to the caller, which has already
// resolved the experiment for the requesting identity.
func (s *Service) Latest(ctx context.Context, experimentID string) (*ExperimentResult, error) {
	return s.repo.Latest(ctx, experimentID)
}

type nopTelemetry struct{}

func (nopTelemetry) RecordResult(string, *ExperimentResult) {}

type nopMetrics struct{}

func (nopMetrics) ResultRecorded() {}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
