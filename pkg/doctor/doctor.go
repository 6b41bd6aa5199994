// Package doctor runs preflight checks against the host: the tools a
// recording needs, the audio and display setup it will pick, and the
// browser driver.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Check is one preflight probe.
type Check interface {
	// Name returns the name shown in the report.
	Name() string

	// Required returns true if failure should block a run.
	Required() bool

	// Execute runs the probe. detail describes what was found.
	Execute(ctx context.Context) (detail string, err error)
}

// DefaultCommandTimeout bounds each command probe.
const DefaultCommandTimeout = 30 * time.Second

// CommandCheck passes when the command exists and exits zero.
type CommandCheck struct {
	name     string
	command  []string
	required bool
	timeout  time.Duration
}

// NewCommandCheck creates a command-based check.
func NewCommandCheck(name string, required bool, command ...string) *CommandCheck {
	return &CommandCheck{
		name:     name,
		command:  command,
		required: required,
		timeout:  DefaultCommandTimeout,
	}
}

// Name returns the name of the check.
func (c *CommandCheck) Name() string {
	return c.name
}

// Required returns true if failure should block a run.
func (c *CommandCheck) Required() bool {
	return c.required
}

// Execute runs the command and reports the first line of its output.
func (c *CommandCheck) Execute(ctx context.Context) (string, error) {
	if len(c.command) == 0 {
		return "", fmt.Errorf("empty command")
	}

	path, err := exec.LookPath(c.command[0])
	if err != nil {
		return "", &CheckError{Check: c.name, Command: c.commandLine(), Err: err}
	}

	execCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := exec.CommandContext(execCtx, path, c.command[1:]...).CombinedOutput()
	if err != nil {
		return "", &CheckError{
			Check:   c.name,
			Command: c.commandLine(),
			Output:  string(output),
			Err:     err,
		}
	}

	return firstLine(string(output)), nil
}

func (c *CommandCheck) commandLine() string {
	return strings.Join(c.command, " ")
}

// FuncCheck adapts a function to the Check interface.
type FuncCheck struct {
	name     string
	required bool
	fn       func(ctx context.Context) (string, error)
}

// NewFuncCheck creates a check backed by fn.
func NewFuncCheck(name string, required bool, fn func(ctx context.Context) (string, error)) *FuncCheck {
	return &FuncCheck{name: name, required: required, fn: fn}
}

// Name returns the name of the check.
func (c *FuncCheck) Name() string {
	return c.name
}

// Required returns true if failure should block a run.
func (c *FuncCheck) Required() bool {
	return c.required
}

// Execute calls the wrapped function.
func (c *FuncCheck) Execute(ctx context.Context) (string, error) {
	return c.fn(ctx)
}

// CheckError represents a failed command probe.
type CheckError struct {
	Check   string
	Command string
	Output  string
	Err     error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("check '%s' failed: %v", e.Check, e.Err)
}

// Unwrap returns the underlying error
func (e *CheckError) Unwrap() error {
	return e.Err
}

// Runner executes a list of checks in order.
type Runner struct {
	checks []Check
}

// NewRunner creates a new check runner.
func NewRunner(checks []Check) *Runner {
	return &Runner{checks: checks}
}

// RunAll executes every check. Optional failures never fail the report.
func (r *Runner) RunAll(ctx context.Context) *Results {
	results := &Results{
		AllPassed: true,
		Results:   make([]Result, 0, len(r.checks)),
	}

	for _, check := range r.checks {
		result := Result{
			Name:     check.Name(),
			Required: check.Required(),
		}

		detail, err := check.Execute(ctx)
		result.Detail = detail
		if err != nil {
			result.Error = err.Error()
			if check.Required() {
				results.AllPassed = false
			}
		} else {
			result.Passed = true
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// Results contains the outcome of a doctor run.
type Results struct {
	AllPassed bool     `json:"all_passed"`
	Results   []Result `json:"results"`
}

// Result is the outcome of a single check.
type Result struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail,omitempty"`
	Error    string `json:"error,omitempty"`
}

// GetFailedChecks returns the failed required checks.
func (r *Results) GetFailedChecks() []Result {
	failed := make([]Result, 0)
	for _, result := range r.Results {
		if result.Required && !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}

// FormatErrorMessage lists the failed required checks.
func (r *Results) FormatErrorMessage() string {
	failed := r.GetFailedChecks()
	if len(failed) == 0 {
		return ""
	}

	var msg strings.Builder
	msg.WriteString("Preflight failures:\n\n")
	for _, result := range failed {
		msg.WriteString(fmt.Sprintf("✗ %s\n", result.Name))
		if result.Error != "" {
			msg.WriteString(fmt.Sprintf("   Error: %s\n\n", result.Error))
		}
	}

	return msg.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
