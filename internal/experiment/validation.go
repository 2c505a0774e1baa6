package experiment

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/cdl-core/internal/validation"
)

var experimentValidate *validator.Validate

func init() {
	experimentValidate = validation.New()

	//nolint:errcheck // tag names are constants
	_ = experimentValidate.RegisterValidation("experiment_status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	//nolint:errcheck // tag names are constants
	_ = experimentValidate.RegisterValidation("preset_setting", func(fl validator.FieldLevel) bool {
		return PresetSetting(fl.Field().String()).Valid()
	})
	//nolint:errcheck // tag names are constants
	_ = experimentValidate.RegisterValidation("circuit_configuration", func(fl validator.FieldLevel) bool {
		return CircuitConfiguration(fl.Field().String()).Valid()
	})
}

// Validate checks every field of the experiment, including the nested
// compute settings.
func (e *Experiment) Validate() error {
	if strings.TrimSpace(e.ExperimentName) == "" {
		return fmt.Errorf("%w: experimentName is required", ErrValidation)
	}
	if err := experimentValidate.Struct(e); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, validation.Describe(err))
	}
	return nil
}

// ValidateTransition checks that the status may change from → to.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: status cannot change from %s to %s", ErrValidation, from, to)
	}
	return nil
}
