// Package join drives a guest through the meeting lobby: fill the display
// name, turn the microphone and camera off, ask to join and wait for the
// host to admit us. Every UI step runs through the strategy executor, so a
// step succeeds as soon as any of its techniques does.
package join

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/entrhq/meetguest/pkg/browser"
	"github.com/entrhq/meetguest/pkg/diagnostics"
	"github.com/entrhq/meetguest/pkg/strategy"
	"github.com/entrhq/meetguest/pkg/types"
)

// State is a join state machine state.
type State string

const (
	StateInit              State = "init"
	StateNameFilled        State = "name_filled"
	StateDevicesConfigured State = "devices_configured"
	StateJoinRequested     State = "join_requested"
	StateAdmitted          State = "admitted"
	StatePendingApproval   State = "pending_approval"
	StateFailed            State = "failed"
)

// InMeeting reports whether the state is a successful terminal state.
func (s State) InMeeting() bool {
	return s == StateAdmitted || s == StatePendingApproval
}

// Result is the outcome of one join run.
type Result struct {
	State        State               `json:"state"`
	FailedStep   string              `json:"failed_step,omitempty"`
	Elapsed      time.Duration       `json:"elapsed"`
	Steps        []strategy.Result   `json:"steps"`
	Degradations []types.Degradation `json:"degradations,omitempty"`
	History      []State             `json:"history"`
}

// Capturer takes diagnostic checkpoints.
type Capturer interface {
	Capture(ctx context.Context, page diagnostics.Screenshotter, label string) diagnostics.Checkpoint
}

// Orchestrator sequences the join steps.
type Orchestrator struct {
	opts     Options
	exec     *strategy.Executor[browser.Page]
	capturer Capturer
	logger   zerolog.Logger
}

// NewOrchestrator creates an orchestrator. capturer may be nil.
func NewOrchestrator(opts Options, execOpts strategy.Options, capturer Capturer, logger zerolog.Logger) *Orchestrator {
	opts.applyDefaults()

	var checkpoints strategy.Checkpointer[browser.Page]
	if capturer != nil {
		checkpoints = strategy.CheckpointFunc[browser.Page](func(ctx context.Context, p browser.Page, label string) {
			capturer.Capture(ctx, p, label)
		})
	}

	return &Orchestrator{
		opts:     opts,
		exec:     strategy.NewExecutor[browser.Page](execOpts, checkpoints, logger),
		capturer: capturer,
		logger:   logger.With().Str("component", "join").Logger(),
	}
}

// Options returns the effective join options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Join runs the lobby sequence. On a required step failure the result is
// StateFailed and a *StepFailure is returned; on cancellation the result is
// StateFailed and an *InterruptedError is returned.
func (o *Orchestrator) Join(ctx context.Context, page browser.Page) (*Result, error) {
	start := time.Now()
	result := &Result{
		State:   StateInit,
		History: []State{StateInit},
	}
	defer func() {
		result.Elapsed = time.Since(start)
	}()

	o.checkpoint(ctx, page, "join-start")
	if o.opts.DumpButtons {
		o.dumpButtons(ctx, page)
	}
	if o.opts.DismissPopups {
		o.dismissPopups(ctx, page)
	}

	// Init -> NameFilled
	if err := o.runRequired(ctx, page, result, FillNameStep(o.opts.GuestName, o.opts.KeystrokeDelay)); err != nil {
		return result, err
	}
	o.transition(result, StateNameFilled)

	// NameFilled -> DevicesConfigured
	for _, step := range []strategy.Step[browser.Page]{MuteMicrophoneStep(), MuteCameraStep()} {
		if err := ctx.Err(); err != nil {
			return result, o.fail(ctx, page, result, step.Name, &InterruptedError{Step: step.Name, Err: err})
		}
		o.runOptional(ctx, page, result, step)
	}
	o.transition(result, StateDevicesConfigured)

	// DevicesConfigured -> JoinRequested
	if err := o.runRequired(ctx, page, result, RequestJoinStep(o.opts.Admission)); err != nil {
		return result, err
	}
	o.transition(result, StateJoinRequested)

	// JoinRequested -> Admitted | PendingApproval
	state, err := o.WaitForAdmission(ctx, page)
	if err != nil {
		return result, o.fail(ctx, page, result, StepAdmission, &InterruptedError{Step: StepAdmission, Err: err})
	}
	if state == StatePendingApproval {
		result.Degradations = append(result.Degradations, types.NewDegradation(types.DegradationAdmissionTimeout, StepAdmission, nil))
	}
	o.transition(result, state)

	o.checkpoint(ctx, page, "join-end")
	return result, nil
}

func (o *Orchestrator) runRequired(ctx context.Context, page browser.Page, result *Result, step strategy.Step[browser.Page]) error {
	sr := o.exec.Run(ctx, page, step)
	result.Steps = append(result.Steps, sr)
	if sr.Succeeded {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return o.fail(ctx, page, result, step.Name, &InterruptedError{Step: step.Name, Err: err})
	}
	return o.fail(ctx, page, result, step.Name, &StepFailure{Step: step.Name, Attempts: sr.Attempts})
}

func (o *Orchestrator) runOptional(ctx context.Context, page browser.Page, result *Result, step strategy.Step[browser.Page]) {
	sr := o.exec.Run(ctx, page, step)
	result.Steps = append(result.Steps, sr)
	if sr.Succeeded {
		return
	}

	d := types.NewDegradation(types.DegradationOptionalStep, step.Name, nil)
	d.Detail = sr.Summary()
	result.Degradations = append(result.Degradations, d)
	o.logger.Warn().Str("step", step.Name).Msg("optional step failed, continuing with defaults")
}

func (o *Orchestrator) fail(ctx context.Context, page browser.Page, result *Result, step string, err error) error {
	result.FailedStep = step
	o.transition(result, StateFailed)
	o.logger.Error().Str("step", step).Err(err).Msg("join failed")

	if o.opts.DumpButtons {
		o.dumpButtons(context.WithoutCancel(ctx), page)
	}
	o.checkpoint(context.WithoutCancel(ctx), page, "join-failed")
	return err
}

func (o *Orchestrator) transition(result *Result, to State) {
	o.logger.Debug().Str("from", string(result.State)).Str("to", string(to)).Msg("join state transition")
	result.State = to
	result.History = append(result.History, to)
}

func (o *Orchestrator) checkpoint(ctx context.Context, page browser.Page, label string) {
	if o.capturer == nil {
		return
	}
	capCtx, cancel := context.WithTimeout(ctx, o.exec.Options().MaxWait)
	defer cancel()
	o.capturer.Capture(capCtx, page, label)
}

// dismissPopups clicks away dialogs that cover the lobby. Best effort.
func (o *Orchestrator) dismissPopups(ctx context.Context, page browser.Page) {
	dismissed := 0
	for _, selector := range popupSelectors {
		if dismissed >= maxPopupDismissTargets || ctx.Err() != nil {
			return
		}

		probeCtx, cancel := context.WithTimeout(ctx, popupDismissBudget)
		visible, err := page.IsVisible(probeCtx, selector)
		if err == nil && visible {
			if clickErr := page.Click(probeCtx, selector); clickErr == nil {
				dismissed++
				o.logger.Debug().Str("selector", selector).Msg("dismissed popup")
			}
		}
		cancel()
	}
}

func (o *Orchestrator) dumpButtons(ctx context.Context, page browser.Page) {
	buttons, err := browser.ListButtons(ctx, page)
	if err != nil {
		o.logger.Debug().Err(err).Msg("could not list buttons")
		return
	}

	o.logger.Debug().Int("count", len(buttons)).Str("url", page.URL()).Msg("visible buttons")
	for i, b := range buttons {
		o.logger.Debug().Int("index", i).Msg(b.String())
	}
}
