package experiment

import "errors"

// Domain errors for the experiment package.
//
//	if errors.Is(err, experiment.ErrNotFound) {
//	    // missing, or owned by someone else
//	}
var (
	// ErrNotFound is returned for missing experiments and for experiments the
	// caller may not see.
	ErrNotFound = errors.New("experiment: not found")

	// ErrValidation is returned when a payload violates a field constraint or
	// asks for an illegal status transition.
	ErrValidation = errors.New("experiment: invalid")

	// ErrInvariant marks a state an earlier guard should have made impossible.
	ErrInvariant = errors.New("experiment: internal invariant violated")
)
