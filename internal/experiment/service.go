package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/cdl-core/internal/auth"
	"github.com/nerrad567/cdl-core/internal/events"
	"github.com/nerrad567/cdl-core/internal/result"
)

// ResultSource supplies the latest result of an experiment.
type ResultSource interface {
	Latest(ctx context.Context, experimentID string) (*result.ExperimentResult, error)
}

// Metrics observes experiment lifecycle activity.
type Metrics interface {
	ExperimentCreated()
	StatusTransition(from, to Status)
}

// Logger is the logging surface the service needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Deps holds the collaborators of a Service. Repo and Results are required.
type Deps struct {
	Repo      Repository
	Results   ResultSource
	Publisher events.Publisher
	Metrics   Metrics
	Logger    Logger
}

// Service implements the experiment operations and their access rules.
type Service struct {
	repo      Repository
	results   ResultSource
	publisher events.Publisher
	metrics   Metrics
	logger    Logger
	now       func() time.Time
}

// NewService creates an experiment service. Optional collaborators left nil
// are replaced with no-ops.
func NewService(deps Deps) *Service {
	s := &Service{
		repo:      deps.Repo,
		results:   deps.Results,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	return s
}

// Create validates a submission and stores it as a queued experiment owned
// by the caller. Any client-supplied status or owner is ignored.
func (s *Service) Create(ctx context.Context, id auth.Identity, in CreateInput) (*Experiment, error) {
	if in.ComputeSettings == nil {
		return nil, fmt.Errorf("%w: computeSettings is required", ErrValidation)
	}

	e := &Experiment{
		ExperimentID:    uuid.NewString(),
		ExperimentName:  in.ExperimentName,
		CircuitID:       in.CircuitID,
		ProjectID:       in.ProjectID,
		MaxRuntime:      DefaultMaxRuntime,
		Status:          StatusInQueue,
		Created:         s.now().UTC(),
		UserID:          id.ID,
		ComputeSettings: *in.ComputeSettings,
	}
	if in.MaxRuntime != nil {
		e.MaxRuntime = *in.MaxRuntime
	}
	if e.ComputeSettings.QubitComputing.CircuitAngles == nil {
		e.ComputeSettings.QubitComputing.CircuitAngles = []CircuitAngle{}
	}
	if e.ComputeSettings.EncodedQubitMeasurements == nil {
		e.ComputeSettings.EncodedQubitMeasurements = []QubitMeasurement{}
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	s.metrics.ExperimentCreated()
	s.publisher.Publish(ctx, events.Event{
		Type:         events.ExperimentQueued,
		ExperimentID: e.ExperimentID,
		Status:       string(e.Status),
		OwnerID:      e.UserID,
		Timestamp:    e.Created,
	})
	s.logger.Info("experiment queued", "experiment_id", e.ExperimentID, "user_id", e.UserID, "circuit_id", e.CircuitID)
	return e, nil
}

// List returns every experiment for staff and the caller's own otherwise.
func (s *Service) List(ctx context.Context, id auth.Identity) ([]Experiment, error) {
	owner := id.ID
	if id.Has(auth.PermExperimentReadAll) {
		owner = ""
	}
	return s.repo.List(ctx, owner)
}

// Get returns an experiment with its latest result attached.
func (s *Service) Get(ctx context.Context, id auth.Identity, experimentID string) (*Detail, error) {
	e, err := s.visible(ctx, id, experimentID)
	if err != nil {
		return nil, err
	}

	latest, err := s.results.Latest(ctx, e.ExperimentID)
	if err != nil {
		return nil, fmt.Errorf("loading latest result: %w", err)
	}
	return &Detail{Experiment: e, LatestResult: latest}, nil
}

// LatestResult is Get under the name used by the results view of an
// experiment; callers render Detail.ResultOrExperiment.
func (s *Service) LatestResult(ctx context.Context, id auth.Identity, experimentID string) (*Detail, error) {
	return s.Get(ctx, id, experimentID)
}

// Patch merges a partial update onto an experiment. Only staff may patch.
func (s *Service) Patch(ctx context.Context, id auth.Identity, experimentID string, in PatchInput) (*Experiment, error) {
	if !id.CanPatchExperiment() {
		return nil, auth.ErrForbidden
	}
	if in.ComputeSettings != nil {
		return nil, fmt.Errorf("%w: computeSettings cannot be changed after creation", ErrValidation)
	}

	e, err := s.lookup(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	prev := e.Status

	if in.ExperimentName != nil {
		e.ExperimentName = *in.ExperimentName
	}
	if in.CircuitID != nil {
		e.CircuitID = *in.CircuitID
	}
	if in.ProjectID != nil {
		e.ProjectID = in.ProjectID
	}
	if in.MaxRuntime != nil {
		e.MaxRuntime = *in.MaxRuntime
	}
	if in.Status != nil {
		if err := ValidateTransition(prev, *in.Status); err != nil {
			return nil, err
		}
		e.Status = *in.Status
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, e); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Deleted between lookup and update.
			return nil, ErrNotFound
		}
		return nil, err
	}

	if e.Status != prev {
		s.metrics.StatusTransition(prev, e.Status)
		s.publisher.Publish(ctx, events.Event{
			Type:         events.ExperimentStatusChanged,
			ExperimentID: e.ExperimentID,
			Status:       string(e.Status),
			PrevStatus:   string(prev),
			OwnerID:      e.UserID,
		})
		s.logger.Info("experiment status changed",
			"experiment_id", e.ExperimentID, "from", prev, "to", e.Status, "changed_by", id.ID)
	}
	return e, nil
}

// Delete removes an experiment. Owners and staff may delete; anyone else
// gets ErrNotFound. Results are kept with a NULL experiment reference.
func (s *Service) Delete(ctx context.Context, id auth.Identity, experimentID string) error {
	e, err := s.visible(ctx, id, experimentID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, e.ExperimentID); err != nil {
		return err
	}

	s.publisher.Publish(ctx, events.Event{
		Type:         events.ExperimentDeleted,
		ExperimentID: e.ExperimentID,
		Status:       string(e.Status),
		OwnerID:      e.UserID,
	})
	s.logger.Info("experiment deleted", "experiment_id", e.ExperimentID, "deleted_by", id.ID)
	return nil
}

// PeekQueue returns the oldest queued experiment without dequeuing it.
// An empty queue yields (nil, nil).
func (s *Service) PeekQueue(ctx context.Context, id auth.Identity) (*Experiment, error) {
	if !id.CanViewQueue() {
		return nil, auth.ErrForbidden
	}
	e, err := s.repo.OldestQueued(ctx)
	if err != nil {
		return nil, err
	}
	if e != nil && e.Status != StatusInQueue {
		s.logger.Error("queue head is not queued", "experiment_id", e.ExperimentID, "status", e.Status)
		return nil, fmt.Errorf("%w: queue returned %s experiment", ErrInvariant, e.Status)
	}
	return e, nil
}

// OwnerOf exposes the owner lookup so the result service can verify
// references without importing this package.
func (s *Service) OwnerOf(ctx context.Context, experimentID string) (string, bool, error) {
	if _, err := uuid.Parse(experimentID); err != nil {
		return "", false, nil
	}
	return s.repo.OwnerOf(ctx, experimentID)
}

// visible loads an experiment the caller may see. Experiments owned by
// someone else are reported as ErrNotFound.
func (s *Service) visible(ctx context.Context, id auth.Identity, experimentID string) (*Experiment, error) {
	e, err := s.lookup(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if !id.CanAccessExperiment(e.UserID) {
		s.logger.Debug("experiment hidden from caller", "experiment_id", experimentID, "user_id", id.ID)
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *Service) lookup(ctx context.Context, experimentID string) (*Experiment, error) {
	if _, err := uuid.Parse(experimentID); err != nil {
		return nil, ErrNotFound
	}
	e, err := s.repo.GetByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: repository returned no experiment for %s", ErrInvariant, experimentID)
	}
	return e, nil
}

type nopMetrics struct{}

func (nopMetrics) ExperimentCreated()           {}
func (nopMetrics) StatusTransition(_, _ Status) {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
