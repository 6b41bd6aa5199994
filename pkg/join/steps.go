package join

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/meetguest/pkg/browser"
	"github.com/entrhq/meetguest/pkg/strategy"
)

// Step names, also used as checkpoint label prefixes.
const (
	StepFillName       = "fill-name"
	StepMuteMicrophone = "mute-microphone"
	StepMuteCamera     = "mute-camera"
	StepRequestJoin    = "request-join"
	StepAdmission      = "admission"
	StepLeave          = "leave"
)

// Selectors for the Meet lobby and call UI.
const (
	nameInputSelector      = "input[placeholder*='name' i], input[aria-label*='name' i]"
	nameInputXPath         = "xpath=//input[contains(@placeholder, 'name') or contains(@aria-label, 'name') or @type='text']"
	nameInputVerify        = "input[placeholder*='name' i], input[aria-label*='name' i], input[type='text']"
	joinButtonSelector     = "button[jsname='Qx7uuf'], button:has-text('Ask to join'), button:has-text('Join now')"
	joinButtonLabelXPath   = "xpath=//button[.//span[normalize-space(.)='Ask to join' or normalize-space(.)='Join now']]"
	leaveAriaSelector      = "button[aria-label*='leave' i]"
	leaveJSNameSelector    = "button[jsname='CQylAd']"
	leaveXPath             = "xpath=//button[contains(@aria-label, 'Leave') or contains(., 'Leave')]"
	verifyPollInterval     = 250 * time.Millisecond
	popupDismissBudget     = time.Second
	maxPopupDismissTargets = 3
)

const fillNameScript = `(name) => {
	const inputs = document.querySelectorAll('input');
	for (const input of inputs) {
		const placeholder = (input.placeholder || '').toLowerCase();
		const label = (input.getAttribute('aria-label') || '').toLowerCase();
		if (placeholder.includes('name') || label.includes('name')) {
			const setter = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, 'value').set;
			setter.call(input, name);
			input.dispatchEvent(new Event('input', { bubbles: true }));
			input.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
	}
	return false;
}`

const clickJoinScript = `() => {
	const exact = document.querySelector('button.UywwFc-LgbsSe[jsname="Qx7uuf"], button[jsname="Qx7uuf"]');
	if (exact) {
		exact.click();
		return true;
	}
	for (const button of document.querySelectorAll('button')) {
		const text = (button.innerText || '').trim().toLowerCase();
		if (text === 'ask to join' || text === 'join now') {
			button.click();
			return true;
		}
	}
	return false;
}`

var popupSelectors = []string{
	"button:has-text('Got it')",
	"button:has-text('Dismiss')",
	"button:has-text('Accept all')",
	"button:has-text('No thanks')",
	"[role='dialog'] button[aria-label='Close']",
}

var errNotFound = errors.New("element not found")

// device describes a lobby media toggle.
type device struct {
	step     string
	label    string
	shortcut string
}

var (
	microphone = device{step: StepMuteMicrophone, label: "microphone", shortcut: "Control+d"}
	camera     = device{step: StepMuteCamera, label: "camera", shortcut: "Control+e"}
)

func (d device) tooltipSelector() string {
	return fmt.Sprintf("div[data-tooltip*='Turn off %s']", d.label)
}

func (d device) ariaSelector() string {
	return fmt.Sprintf("[aria-label*='Turn off %s' i]", d.label)
}

func (d device) mutedSelector() string {
	return fmt.Sprintf("[data-tooltip*='Turn on %s'], [aria-label*='Turn on %s' i], [aria-label*='%s' i][data-is-muted='true']", d.label, d.label, d.label)
}

// FillNameStep builds the required step that types the guest name.
func FillNameStep(name string, keystrokeDelay time.Duration) strategy.Step[browser.Page] {
	verify := func(ctx context.Context, p browser.Page) (bool, error) {
		return pollUntil(ctx, func() (bool, error) {
			value, err := p.InputValue(ctx, nameInputVerify)
			if err != nil {
				return false, err
			}
			return value == name, nil
		})
	}

	return strategy.Step[browser.Page]{
		Name:     StepFillName,
		Required: true,
		Strategies: []strategy.Strategy[browser.Page]{
			{
				ID: "js-assign",
				Action: func(ctx context.Context, p browser.Page) error {
					if err := p.WaitVisible(ctx, nameInputSelector); err != nil {
						return err
					}
					ok, err := p.Evaluate(ctx, fillNameScript, name)
					if err != nil {
						return err
					}
					if ok != true {
						return fmt.Errorf("name input: %w", errNotFound)
					}
					return nil
				},
				Verify: verify,
			},
			{
				ID: "keystrokes",
				Action: func(ctx context.Context, p browser.Page) error {
					return p.Type(ctx, nameInputSelector, name, keystrokeDelay)
				},
				Verify: verify,
			},
			{
				ID: "xpath-assign",
				Action: func(ctx context.Context, p browser.Page) error {
					return p.Fill(ctx, nameInputXPath, name)
				},
				Verify: verify,
			},
		},
	}
}

// muteStep builds the optional step that turns a lobby device off.
func muteStep(d device) strategy.Step[browser.Page] {
	muted := func(ctx context.Context, p browser.Page) (bool, error) {
		return p.IsVisible(ctx, d.mutedSelector())
	}
	verify := func(ctx context.Context, p browser.Page) (bool, error) {
		return pollUntil(ctx, func() (bool, error) {
			return muted(ctx, p)
		})
	}
	clickUnlessMuted := func(selector string) strategy.Action[browser.Page] {
		return func(ctx context.Context, p browser.Page) error {
			if already, _ := muted(ctx, p); already {
				return nil
			}
			return p.Click(ctx, selector)
		}
	}

	return strategy.Step[browser.Page]{
		Name:     d.step,
		Required: false,
		Strategies: []strategy.Strategy[browser.Page]{
			{ID: "tooltip", Action: clickUnlessMuted(d.tooltipSelector()), Verify: verify},
			{ID: "aria-label", Action: clickUnlessMuted(d.ariaSelector()), Verify: verify},
			{
				ID: "keyboard-shortcut",
				Action: func(ctx context.Context, p browser.Page) error {
					if already, _ := muted(ctx, p); already {
						return nil
					}
					return p.Press(ctx, d.shortcut)
				},
				Verify: verify,
			},
		},
	}
}

// MuteMicrophoneStep turns the lobby microphone off.
func MuteMicrophoneStep() strategy.Step[browser.Page] {
	return muteStep(microphone)
}

// MuteCameraStep turns the lobby camera off.
func MuteCameraStep() strategy.Step[browser.Page] {
	return muteStep(camera)
}

// RequestJoinStep builds the required step that clicks "Ask to join" or "Join now".
func RequestJoinStep(admission AdmissionOptions) strategy.Step[browser.Page] {
	verify := func(ctx context.Context, p browser.Page) (bool, error) {
		return pollUntil(ctx, func() (bool, error) {
			visible, err := p.IsVisible(ctx, joinButtonSelector)
			if err != nil {
				return false, err
			}
			if !visible {
				return true, nil
			}
			text, err := p.BodyText(ctx)
			if err != nil {
				return false, err
			}
			if _, waiting := containsAny(text, admission.WaitingTexts); waiting {
				return true, nil
			}
			_, inCall := containsAny(text, admission.Texts)
			return inCall, nil
		})
	}

	return strategy.Step[browser.Page]{
		Name:     StepRequestJoin,
		Required: true,
		Strategies: []strategy.Strategy[browser.Page]{
			{
				ID: "pointer-click",
				Action: func(ctx context.Context, p browser.Page) error {
					return p.Click(ctx, joinButtonSelector)
				},
				Verify: verify,
			},
			{
				ID: "element-click",
				Action: func(ctx context.Context, p browser.Page) error {
					ok, err := p.Evaluate(ctx, clickJoinScript, nil)
					if err != nil {
						return err
					}
					if ok != true {
						return fmt.Errorf("join button: %w", errNotFound)
					}
					return nil
				},
				Verify: verify,
			},
			{
				ID: "label-text",
				Action: func(ctx context.Context, p browser.Page) error {
					return p.Click(ctx, joinButtonLabelXPath)
				},
				Verify: verify,
			},
		},
	}
}

// LeaveStep builds the optional step that hangs up.
func LeaveStep() strategy.Step[browser.Page] {
	click := func(selector string) strategy.Action[browser.Page] {
		return func(ctx context.Context, p browser.Page) error {
			return p.Click(ctx, selector)
		}
	}

	return strategy.Step[browser.Page]{
		Name:     StepLeave,
		Required: false,
		Strategies: []strategy.Strategy[browser.Page]{
			{ID: "aria-label", Action: click(leaveAriaSelector)},
			{ID: "jsname", Action: click(leaveJSNameSelector)},
			{ID: "xpath", Action: click(leaveXPath)},
		},
	}
}

// pollUntil re-evaluates check until it reports true or ctx ends. Running
// out of time is a negative answer, not an error; the last check error is
// returned only if no check ever succeeded without error.
func pollUntil(ctx context.Context, check func() (bool, error)) (bool, error) {
	ticker := time.NewTicker(verifyPollInterval)
	defer ticker.Stop()

	var lastErr error
	clean := false
	for {
		ok, err := check()
		if err == nil {
			clean = true
			if ok {
				return true, nil
			}
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if !clean && lastErr != nil {
				return false, lastErr
			}
			return false, nil
		case <-ticker.C:
		}
	}
}
