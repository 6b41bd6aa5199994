package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

var _ Page = (*Session)(nil)

// URL returns the current page URL.
func (s *Session) URL() string {
	if s.page == nil {
		return s.CurrentURL
	}
	s.CurrentURL = s.page.URL()
	return s.CurrentURL
}

// Navigate navigates the session's page to the specified URL.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	waitUntil := playwright.WaitUntilStateDomcontentloaded
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil,
		Timeout:   s.timeout(ctx, timeout),
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	s.CurrentURL = s.page.URL()
	return nil
}

// Evaluate runs JavaScript in the page.
func (s *Session) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	result, err := s.page.Evaluate(script, arg)
	if err != nil {
		return nil, fmt.Errorf("JavaScript execution failed: %w", err)
	}
	return result, nil
}

// Fill fills an input element with the specified value.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	err := s.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: s.timeout(ctx, 0),
	})
	if err != nil {
		return fmt.Errorf("fill %q failed: %w", selector, err)
	}
	return nil
}

// Type types text into an element one key at a time.
func (s *Session) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	locator := s.page.Locator(selector).First()
	if err := locator.Click(playwright.LocatorClickOptions{Timeout: s.timeout(ctx, 0)}); err != nil {
		return fmt.Errorf("focus %q failed: %w", selector, err)
	}
	if err := locator.Clear(playwright.LocatorClearOptions{Timeout: s.timeout(ctx, 0)}); err != nil {
		return fmt.Errorf("clear %q failed: %w", selector, err)
	}

	err := locator.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay:   playwright.Float(float64(delay.Milliseconds())),
		Timeout: s.timeout(ctx, 0),
	})
	if err != nil {
		return fmt.Errorf("type into %q failed: %w", selector, err)
	}
	return nil
}

// Click clicks an element matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	err := s.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: s.timeout(ctx, 0),
	})
	if err != nil {
		return fmt.Errorf("click %q failed: %w", selector, err)
	}

	// Update current URL in case click caused navigation
	s.CurrentURL = s.page.URL()
	return nil
}

// Press sends a key combination to the focused page.
func (s *Session) Press(ctx context.Context, keys string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	if err := s.page.Keyboard().Press(keys); err != nil {
		return fmt.Errorf("press %q failed: %w", keys, err)
	}
	return nil
}

// WaitVisible waits for an element to become visible.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	err := s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: s.timeout(ctx, 0),
	})
	if err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

// IsVisible reports whether an element is currently visible.
func (s *Session) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}

	visible, err := s.page.Locator(selector).First().IsVisible()
	if err != nil {
		return false, fmt.Errorf("visibility check %q failed: %w", selector, err)
	}
	return visible, nil
}

// InputValue returns the current value of an input element.
func (s *Session) InputValue(ctx context.Context, selector string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}

	value, err := s.page.Locator(selector).First().InputValue(playwright.LocatorInputValueOptions{
		Timeout: s.timeout(ctx, 0),
	})
	if err != nil {
		return "", fmt.Errorf("read value of %q failed: %w", selector, err)
	}
	return value, nil
}

// BodyText returns the visible text of the page body.
func (s *Session) BodyText(ctx context.Context) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}

	text, err := s.page.Locator("body").InnerText(playwright.LocatorInnerTextOptions{
		Timeout: s.timeout(ctx, 0),
	})
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}

// Content returns the page HTML.
func (s *Session) Content(ctx context.Context) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}

	content, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("content extraction failed: %w", err)
	}
	return content, nil
}

// Screenshot writes a PNG screenshot of the viewport.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:    playwright.String(path),
		Timeout: s.timeout(ctx, 0),
	})
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return nil
}

func (s *Session) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.State != StateActive || s.page == nil {
		return fmt.Errorf("browser session is %s", s.State)
	}
	return nil
}

// timeout converts the tighter of the context deadline and the fallback
// duration into playwright's millisecond timeout.
func (s *Session) timeout(ctx context.Context, fallback time.Duration) *float64 {
	if fallback <= 0 {
		fallback = s.defaultWait
	}
	if fallback <= 0 {
		fallback = DefaultTimeout
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < fallback {
			fallback = remaining
		}
	}
	if fallback < time.Millisecond {
		fallback = time.Millisecond
	}

	return playwright.Float(float64(fallback.Milliseconds()))
}
