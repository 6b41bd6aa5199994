package join

import (
	"fmt"
	"strings"

	"github.com/entrhq/meetguest/pkg/strategy"
)

// StepFailure reports that every strategy of a required step failed.
type StepFailure struct {
	Step     string
	Attempts []strategy.Attempt
}

func (e *StepFailure) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Strategy, a.Err))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("required step '%s' failed: no strategies attempted", e.Step)
	}
	return fmt.Sprintf("required step '%s' failed: %s", e.Step, strings.Join(parts, "; "))
}

// Unwrap returns the error of each failed attempt
func (e *StepFailure) Unwrap() []error {
	var errs []error
	for _, a := range e.Attempts {
		if a.Cause != nil {
			errs = append(errs, a.Cause)
		}
	}
	return errs
}

// InterruptedError reports that the join sequence was cancelled mid-step.
type InterruptedError struct {
	Step string
	Err  error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("join interrupted during '%s': %v", e.Step, e.Err)
}

// Unwrap returns the underlying error
func (e *InterruptedError) Unwrap() error {
	return e.Err
}
