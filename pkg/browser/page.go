package browser

import (
	"context"
	"time"
)

// Page is the set of page operations the join flow, the diagnostics sink
// and the presence loop depend on. *Session implements it on top of
// playwright; tests supply their own implementations.
//
// Selectors follow playwright syntax, so "xpath=..." and "text=..." forms
// are accepted alongside CSS.
type Page interface {
	// URL returns the current page URL
	URL() string

	// Evaluate runs a JavaScript expression or function with an optional argument
	Evaluate(ctx context.Context, script string, arg any) (any, error)

	// Fill sets the value of the first element matching selector
	Fill(ctx context.Context, selector, value string) error

	// Type focuses the first matching element and types text key by key
	Type(ctx context.Context, selector, text string, delay time.Duration) error

	// Click clicks the first element matching selector
	Click(ctx context.Context, selector string) error

	// Press sends a keyboard shortcut such as "Control+d" to the page
	Press(ctx context.Context, keys string) error

	// WaitVisible blocks until the first matching element is visible
	WaitVisible(ctx context.Context, selector string) error

	// IsVisible reports whether the first matching element is visible now
	IsVisible(ctx context.Context, selector string) (bool, error)

	// InputValue returns the value of the first matching input element
	InputValue(ctx context.Context, selector string) (string, error)

	// BodyText returns the rendered text of the document body
	BodyText(ctx context.Context) (string, error)

	// Content returns the serialized HTML of the page
	Content(ctx context.Context) (string, error)

	// Screenshot writes a PNG of the viewport to path
	Screenshot(ctx context.Context, path string) error
}
