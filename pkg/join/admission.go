package join

import (
	"context"
	"errors"
	"fmt"

	"github.com/avast/retry-go/v4"

	"github.com/entrhq/meetguest/pkg/browser"
)

var errNotAdmitted = errors.New("not admitted yet")

// Admitted evaluates the configured admission predicate once.
func Admitted(ctx context.Context, page browser.Page, opts AdmissionOptions) (bool, error) {
	if _, excluded := containsAny(page.URL(), opts.URLExcludes); excluded {
		return false, nil
	}

	text, textErr := page.BodyText(ctx)
	if textErr == nil {
		if _, waiting := containsAny(text, opts.WaitingTexts); waiting {
			return false, nil
		}
		if _, inCall := containsAny(text, opts.Texts); inCall {
			return true, nil
		}
	}

	var lastErr error
	for _, selector := range opts.Indicators {
		visible, err := page.IsVisible(ctx, selector)
		if err != nil {
			lastErr = err
			continue
		}
		if visible {
			return true, nil
		}
	}

	if textErr != nil && lastErr != nil {
		return false, fmt.Errorf("admission check failed: %w", textErr)
	}
	return false, nil
}

// WaitForAdmission polls the admission predicate at a fixed interval until
// it holds or the admission timeout passes. It returns StateAdmitted or
// StatePendingApproval; only a cancellation of ctx is returned as an error.
func (o *Orchestrator) WaitForAdmission(ctx context.Context, page browser.Page) (State, error) {
	opts := o.opts.Admission

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	attempts := uint(opts.Timeout/opts.PollInterval) + 1

	err := retry.Do(
		func() error {
			ok, err := Admitted(waitCtx, page, opts)
			if err != nil {
				return err
			}
			if !ok {
				return errNotAdmitted
			}
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(opts.PollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.Context(waitCtx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Debug().Uint("poll", n+1).Err(err).Msg("waiting for admission")
		}),
	)

	if err == nil {
		o.logger.Info().Msg("admitted to the meeting")
		return StateAdmitted, nil
	}
	if ctx.Err() != nil {
		return StatePendingApproval, ctx.Err()
	}

	o.logger.Warn().Dur("timeout", opts.Timeout).Err(err).Msg("no admission signal before timeout, assuming waiting room")
	return StatePendingApproval, nil
}
