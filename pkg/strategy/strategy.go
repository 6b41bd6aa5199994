// Package strategy runs a logical UI step through an ordered list of
// alternative techniques, stopping at the first one that works.
//
// A Step is attempted strategy by strategy, never concurrently. A strategy
// succeeds when its Action returns nil and its Verify predicate reports
// true against the target's state afterwards. The executor waits a settle
// interval between attempts, bounds each attempt with its own deadline and
// records a checkpoint labelled "<step>-<strategy>" for every attempt.
//
// Exhausting every strategy is not an error from the executor's point of
// view: Run returns a Result with Succeeded=false and the last error seen
// per strategy. Whether that is fatal is decided by the caller, usually by
// looking at Step.Required.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action performs one technique against the target.
type Action[T any] func(ctx context.Context, target T) error

// Predicate checks a post-condition against the target.
type Predicate[T any] func(ctx context.Context, target T) (bool, error)

// Strategy is one concrete way to perform a Step.
type Strategy[T any] struct {
	// ID identifies the strategy in results and checkpoint labels
	ID string

	// Action performs the technique
	Action Action[T]

	// Verify is the success predicate; nil means the action's own success is enough
	Verify Predicate[T]
}

// Step is one logical UI action with its ordered strategies.
type Step[T any] struct {
	// Name is the human-readable step label
	Name string

	// Required marks steps whose total failure aborts the flow
	Required bool

	// Strategies are attempted in order
	Strategies []Strategy[T]
}

// Attempt is the outcome of running a single strategy.
type Attempt struct {
	Strategy  string        `json:"strategy"`
	Succeeded bool          `json:"succeeded"`
	Err       string        `json:"error,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`

	// Cause is the error behind Err; it does not survive serialisation
	Cause error `json:"-"`
}

// Result is the outcome of running a Step.
type Result struct {
	Step      string        `json:"step"`
	Required  bool          `json:"required"`
	Succeeded bool          `json:"succeeded"`
	Strategy  string        `json:"strategy,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	Attempts  []Attempt     `json:"attempts"`
}

// ErrPredicateFalse is recorded when an action ran but its post-condition did not hold.
var ErrPredicateFalse = errors.New("success predicate not satisfied")

// Errors returns the last error per failed strategy, keyed by strategy ID.
func (r Result) Errors() map[string]string {
	errs := make(map[string]string)
	for _, a := range r.Attempts {
		if !a.Succeeded && a.Err != "" {
			errs[a.Strategy] = a.Err
		}
	}
	return errs
}

// Summary formats the attempts for a log line.
func (r Result) Summary() string {
	if r.Succeeded {
		return fmt.Sprintf("%s succeeded via %s after %d attempt(s) in %s",
			r.Step, r.Strategy, len(r.Attempts), r.Elapsed.Round(time.Millisecond))
	}

	parts := make([]string, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Strategy, a.Err))
	}
	return fmt.Sprintf("%s failed after %d attempt(s): %s", r.Step, len(r.Attempts), strings.Join(parts, "; "))
}
