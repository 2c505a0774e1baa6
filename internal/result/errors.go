package result

import "errors"

var (
	// ErrNotFound is returned when a result ID does not exist.
	ErrNotFound = errors.New("result: not found")

	// ErrValidation is returned when a result payload violates a constraint.
	ErrValidation = errors.New("result: invalid")

	// ErrReferenceIntegrity is returned when a result names an experiment
	// that does not exist.
	ErrReferenceIntegrity = errors.New("result: referenced experiment does not exist")
)
