package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Default timings. NewExecutor fills in MaxWait when it is unset; a zero
// Settle is honoured, so callers wanting the default pass DefaultSettle.
const (
	DefaultSettle  = 1500 * time.Millisecond
	DefaultMaxWait = 10 * time.Second
)

// Options configures the executor timings.
type Options struct {
	// Settle is the pause between two strategy attempts
	Settle time.Duration

	// MaxWait bounds a single strategy attempt, including its element waits
	MaxWait time.Duration
}

// Checkpointer captures a diagnostic snapshot of the target.
type Checkpointer[T any] interface {
	Checkpoint(ctx context.Context, target T, label string)
}

// CheckpointFunc adapts a function to the Checkpointer interface.
type CheckpointFunc[T any] func(ctx context.Context, target T, label string)

// Checkpoint calls f.
func (f CheckpointFunc[T]) Checkpoint(ctx context.Context, target T, label string) {
	f(ctx, target, label)
}

// Executor runs steps against targets of type T.
type Executor[T any] struct {
	opts        Options
	checkpoints Checkpointer[T]
	logger      zerolog.Logger
}

// NewExecutor creates an executor. checkpoints may be nil.
func NewExecutor[T any](opts Options, checkpoints Checkpointer[T], logger zerolog.Logger) *Executor[T] {
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	return &Executor[T]{
		opts:        opts,
		checkpoints: checkpoints,
		logger:      logger.With().Str("component", "strategy").Logger(),
	}
}

// Options returns the executor timings.
func (e *Executor[T]) Options() Options {
	return e.opts
}

// Run attempts the step's strategies in order and returns at the first
// success. It never returns an error; failures are described by the Result.
func (e *Executor[T]) Run(ctx context.Context, target T, step Step[T]) Result {
	start := time.Now()
	result := Result{
		Step:     step.Name,
		Required: step.Required,
		Attempts: make([]Attempt, 0, len(step.Strategies)),
	}

	log := e.logger.With().Str("step", step.Name).Logger()
	log.Debug().Int("strategies", len(step.Strategies)).Bool("required", step.Required).Msg("running step")

	for i, s := range step.Strategies {
		if i > 0 {
			if err := e.settle(ctx); err != nil {
				result.Attempts = append(result.Attempts, Attempt{Strategy: s.ID, Err: err.Error(), Cause: err})
				break
			}
		}
		if err := ctx.Err(); err != nil {
			result.Attempts = append(result.Attempts, Attempt{Strategy: s.ID, Err: err.Error(), Cause: err})
			break
		}

		attempt := e.attempt(ctx, target, s)
		result.Attempts = append(result.Attempts, attempt)

		if e.checkpoints != nil {
			e.checkpoints.Checkpoint(ctx, target, step.Name+"-"+s.ID)
		}

		if attempt.Succeeded {
			log.Info().Str("strategy", s.ID).Dur("elapsed", attempt.Elapsed).Msg("strategy succeeded")
			result.Succeeded = true
			result.Strategy = s.ID
			break
		}

		log.Debug().Str("strategy", s.ID).Str("error", attempt.Err).Msg("strategy failed")
	}

	result.Elapsed = time.Since(start)
	if !result.Succeeded {
		log.Warn().Str("summary", result.Summary()).Msg("all strategies failed")
	}
	return result
}

func (e *Executor[T]) attempt(ctx context.Context, target T, s Strategy[T]) Attempt {
	start := time.Now()
	attempt := Attempt{Strategy: s.ID}

	err := e.runAction(ctx, target, s)
	if err == nil && s.Verify != nil {
		err = e.runVerify(ctx, target, s)
	}

	attempt.Elapsed = time.Since(start)
	if err != nil {
		attempt.Err = err.Error()
		attempt.Cause = err
		return attempt
	}

	attempt.Succeeded = true
	return attempt
}

func (e *Executor[T]) runAction(ctx context.Context, target T, s Strategy[T]) (err error) {
	if s.Action == nil {
		return fmt.Errorf("strategy %q has no action", s.ID)
	}

	actionCtx, cancel := context.WithTimeout(ctx, e.opts.MaxWait)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %q panicked: %v", s.ID, r)
		}
	}()

	return s.Action(actionCtx, target)
}

func (e *Executor[T]) runVerify(ctx context.Context, target T, s Strategy[T]) (err error) {
	verifyCtx, cancel := context.WithTimeout(ctx, e.opts.MaxWait)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %q verification panicked: %v", s.ID, r)
		}
	}()

	ok, verr := s.Verify(verifyCtx, target)
	if verr != nil {
		return fmt.Errorf("%w: %v", ErrPredicateFalse, verr)
	}
	if !ok {
		return ErrPredicateFalse
	}
	return nil
}

func (e *Executor[T]) settle(ctx context.Context) error {
	if e.opts.Settle <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(e.opts.Settle)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
