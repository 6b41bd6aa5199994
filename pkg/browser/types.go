package browser

import (
	"time"

	"github.com/playwright-community/playwright-go"
)

// State is the lifecycle state of a browser session.
type State string

const (
	StateUnstarted State = "unstarted"
	StateActive    State = "active"
	StateClosed    State = "closed"
)

// Session represents the single live browser context of a run.
type Session struct {
	// Address is the canonical meeting URL the session navigated to
	Address string

	// GuestName is the display name used when joining
	GuestName string

	// Headless indicates if the browser is running without a visible window
	Headless bool

	// State tracks the lifecycle of the session
	State State

	// CreatedAt is the timestamp when the session was opened
	CreatedAt time.Time

	// CurrentURL is the URL of the page after the last navigation
	CurrentURL string

	browser     playwright.Browser
	context     playwright.BrowserContext
	page        playwright.Page
	defaultWait time.Duration
}

// Options configures a new browser session.
type Options struct {
	// Address is the meeting URL or bare meeting code
	Address string

	// GuestName is the display name to join with
	GuestName string

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial window and viewport size
	Viewport *Viewport

	// UserAgent overrides the browser's user agent string
	UserAgent string

	// Timeout is the default timeout for page operations
	Timeout time.Duration

	// NavigationTimeout bounds the initial page load
	NavigationTimeout time.Duration
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Default values for session construction
const (
	DefaultTimeout           = 30 * time.Second
	DefaultNavigationTimeout = 60 * time.Second
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 720
	DefaultUserAgent         = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// launchArgs hide the automation signature and auto-accept fake media devices.
var launchArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--use-fake-ui-for-media-stream",
	"--use-fake-device-for-media-stream",
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-infobars",
}

// stealthScript runs before any page script in every frame.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = window.chrome || { runtime: {} };
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });`
