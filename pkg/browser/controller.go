package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// Controller owns the playwright driver and the browser session of a run.
type Controller struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	initialized bool
	skipInstall bool
	logger      zerolog.Logger
}

// NewController creates a new session controller.
func NewController(logger zerolog.Logger) *Controller {
	return &Controller{
		logger: logger.With().Str("component", "browser").Logger(),
	}
}

// SkipInstall disables the driver download step, for hosts that ship
// the playwright driver and browsers preinstalled.
func (c *Controller) SkipInstall(skip bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipInstall = skip
}

// Initialize installs (if needed) and starts the playwright driver.
// It is called by Open and is safe to call more than once.
func (c *Controller) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if !c.skipInstall {
		if err := playwright.Install(opts); err != nil {
			return &SessionStartError{Stage: "install", Err: err}
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return &SessionStartError{Stage: "driver", Err: err}
	}

	c.playwright = pw
	c.initialized = true
	return nil
}

// ProbeDriver starts the installed playwright driver and stops it again
// without downloading anything.
func (c *Controller) ProbeDriver(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pw, err := playwright.Run(&playwright.RunOptions{
		Browsers: []string{"chromium"},
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	})
	if err != nil {
		return &SessionStartError{Stage: "driver", Err: err}
	}
	if err := pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	c.logger.Debug().Msg("playwright driver probe succeeded")
	return nil
}

// Open launches Chromium with anti-detection settings, navigates to the
// normalized meeting address and returns the active session.
func (c *Controller) Open(ctx context.Context, opts Options) (*Session, error) {
	address, err := NormalizeAddress(opts.Address)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, &SessionStartError{Stage: "launch", Err: err}
	}

	if err := c.Initialize(); err != nil {
		return nil, err
	}

	applyDefaults(&opts)

	c.mu.Lock()
	pw := c.playwright
	c.mu.Unlock()

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless:          playwright.Bool(opts.Headless),
		Args:              append(append([]string{}, launchArgs...), fmt.Sprintf("--window-size=%d,%d", opts.Viewport.Width, opts.Viewport.Height)),
		IgnoreDefaultArgs: []string{"--enable-automation"},
	}
	c.logger.Debug().Bool("headless", opts.Headless).Strs("args", launchOpts.Args).Msg("launching chromium")

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, &SessionStartError{Stage: "launch", Err: err}
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(opts.UserAgent),
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
		Locale:      playwright.String("en-US"),
		Permissions: []string{"microphone", "camera"},
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = browser.Close()
		return nil, &SessionStartError{Stage: "context", Err: err}
	}

	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, &SessionStartError{Stage: "context", Err: fmt.Errorf("failed to add init script: %w", err)}
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, &SessionStartError{Stage: "page", Err: err}
	}

	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	session := &Session{
		Address:     address,
		GuestName:   opts.GuestName,
		Headless:    opts.Headless,
		State:       StateActive,
		CreatedAt:   time.Now(),
		CurrentURL:  "about:blank",
		browser:     browser,
		context:     bctx,
		page:        page,
		defaultWait: opts.Timeout,
	}

	c.logger.Info().Str("address", address).Msg("navigating to meeting")
	if err := session.Navigate(ctx, address, opts.NavigationTimeout); err != nil {
		_ = c.Close(session)
		return nil, &SessionStartError{Stage: "navigate", Err: err}
	}

	return session, nil
}

// Close releases the page, context and browser of a session. It is safe to
// call on a nil, partially opened or already closed session.
func (c *Controller) Close(session *Session) error {
	if session == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if session.State == StateClosed {
		return nil
	}

	// Ignore errors, continue cleanup
	if session.page != nil {
		_ = session.page.Close()
	}
	if session.context != nil {
		_ = session.context.Close()
	}
	if session.browser != nil {
		_ = session.browser.Close()
	}

	session.State = StateClosed
	c.logger.Debug().Str("address", session.Address).Msg("browser session closed")
	return nil
}

// Shutdown stops the playwright driver.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized && c.playwright != nil {
		if err := c.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		c.initialized = false
	}

	return nil
}

func applyDefaults(opts *Options) {
	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
}
