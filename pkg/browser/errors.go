package browser

import "fmt"

// SessionStartError reports that the browser engine could not be brought up.
// No join step runs after this error.
type SessionStartError struct {
	Stage string
	Err   error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("browser session failed to start (%s): %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *SessionStartError) Unwrap() error {
	return e.Err
}
