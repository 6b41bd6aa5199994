package join

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/meetguest/pkg/browser"
	"github.com/entrhq/meetguest/pkg/diagnostics"
)

var _ browser.Page = (*fakePage)(nil)

// fakePage models just enough of the Meet lobby for the join flow: a set of
// visible selectors, the name input value, the body text and hooks that
// mutate that state when elements are clicked or scripts evaluated.
type fakePage struct {
	mu        sync.Mutex
	url       string
	visible   map[string]bool
	nameValue string
	body      string
	html      string
	clicks    []string
	presses   []string
	shots     int
	bodyErr   error
	bodyErrs  []error // returned once each before bodyErr and body

	onClick    map[string]func(p *fakePage)
	onPress    map[string]func(p *fakePage)
	onEvaluate func(p *fakePage, script string, arg any) (any, error)
}

func newFakePage() *fakePage {
	return &fakePage{
		url:     "https://meet.google.com/abc-defg-hij",
		visible: make(map[string]bool),
		onClick: make(map[string]func(p *fakePage)),
		onPress: make(map[string]func(p *fakePage)),
	}
}

func (p *fakePage) show(selectors ...string) {
	for _, s := range selectors {
		p.visible[s] = true
	}
}

func (p *fakePage) hide(selectors ...string) {
	for _, s := range selectors {
		delete(p.visible, s)
	}
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onEvaluate == nil {
		return false, nil
	}
	return p.onEvaluate(p, script, arg)
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return fmt.Errorf("fill %q: timeout waiting for element", selector)
	}
	p.nameValue = value
	return nil
}

func (p *fakePage) Type(ctx context.Context, selector, text string, _ time.Duration) error {
	return p.Fill(ctx, selector, text)
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return fmt.Errorf("click %q: timeout waiting for element", selector)
	}
	p.clicks = append(p.clicks, selector)
	if hook := p.onClick[selector]; hook != nil {
		hook(p)
	}
	return nil
}

func (p *fakePage) Press(ctx context.Context, keys string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presses = append(p.presses, keys)
	if hook := p.onPress[keys]; hook != nil {
		hook(p)
	}
	return nil
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return fmt.Errorf("wait for %q: timeout", selector)
	}
	return nil
}

func (p *fakePage) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[selector], nil
}

func (p *fakePage) InputValue(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nameValue, nil
}

func (p *fakePage) BodyText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.bodyErrs) > 0 {
		err := p.bodyErrs[0]
		p.bodyErrs = p.bodyErrs[1:]
		return "", err
	}
	if p.bodyErr != nil {
		return "", p.bodyErr
	}
	return p.body, nil
}

func (p *fakePage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) Screenshot(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shots++
	return errors.New("fake page cannot render")
}

// labelRecorder is a Capturer that only remembers labels.
type labelRecorder struct {
	mu     sync.Mutex
	labels []string
}

func (r *labelRecorder) Capture(_ context.Context, _ diagnostics.Screenshotter, label string) diagnostics.Checkpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, label)
	return diagnostics.Checkpoint{Seq: len(r.labels), Label: label, Timestamp: time.Now()}
}

func (r *labelRecorder) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.labels...)
}

// lobbyPage returns a page where every first strategy works and the host
// admits the guest immediately after the join click.
func lobbyPage() *fakePage {
	p := newFakePage()
	p.body = "Ready to join?"
	p.show(nameInputSelector, microphone.tooltipSelector(), camera.tooltipSelector(), joinButtonSelector)

	p.onEvaluate = func(p *fakePage, script string, arg any) (any, error) {
		switch script {
		case fillNameScript:
			if !p.visible[nameInputSelector] {
				return false, nil
			}
			p.nameValue, _ = arg.(string)
			return true, nil
		case clickJoinScript:
			return false, nil
		}
		return nil, fmt.Errorf("unexpected script")
	}

	for _, d := range []device{microphone, camera} {
		d := d
		p.onClick[d.tooltipSelector()] = func(p *fakePage) { p.show(d.mutedSelector()) }
	}
	p.onClick[joinButtonSelector] = admitHook

	return p
}

func admitHook(p *fakePage) {
	p.hide(joinButtonSelector, joinButtonLabelXPath)
	p.body = "Meeting details\nJoining info"
	p.show("button[aria-label*='Leave call' i]")
}

func waitingHook(p *fakePage) {
	p.hide(joinButtonSelector, joinButtonLabelXPath)
	p.body = "Asking to be let in..."
}
