package result

import (
	"fmt"

	"github.com/nerrad567/cdl-core/internal/validation"
)

var resultValidate = validation.New()

// Validate checks the result and its nested experiment data.
func (r *ExperimentResult) Validate() error {
	if err := resultValidate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, validation.Describe(err))
	}
	return nil
}
