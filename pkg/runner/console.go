package runner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/entrhq/meetguest/pkg/doctor"
)

// Verbosity is the console verbosity level
type Verbosity int

const (
	// VerbosityQuiet shows only warnings, errors and the final summary
	VerbosityQuiet Verbosity = iota
	// VerbosityNormal shows the run progress (default)
	VerbosityNormal
	// VerbosityVerbose adds step and strategy details
	VerbosityVerbose
	// VerbosityDebug shows everything
	VerbosityDebug
)

// ParseVerbosity converts a verbosity name, defaulting to normal.
func ParseVerbosity(level string) Verbosity {
	switch level {
	case "quiet":
		return VerbosityQuiet
	case "verbose":
		return VerbosityVerbose
	case "debug":
		return VerbosityDebug
	default:
		return VerbosityNormal
	}
}

// Console prints the human-facing progress report of a run.
type Console struct {
	level  Verbosity
	writer io.Writer

	bold    lipgloss.Style
	accent  lipgloss.Style
	info    lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style

	stepCount int
}

// NewConsole creates a console writing to stdout.
func NewConsole(level Verbosity) *Console {
	return NewConsoleWriter(level, os.Stdout)
}

// NewConsoleWriter creates a console writing to w. Colors are used only
// when w is a terminal.
func NewConsoleWriter(level Verbosity, w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		level:   level,
		writer:  w,
		bold:    r.NewStyle().Bold(true),
		accent:  r.NewStyle().Foreground(lipgloss.Color("6")),
		info:    r.NewStyle().Foreground(lipgloss.Color("217")),
		success: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("3")),
		failure: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (c *Console) println(style lipgloss.Style, text string) {
	fmt.Fprintln(c.writer, style.Render(text))
}

// Header prints a prominent header message
func (c *Console) Header(message string) {
	if c.level >= VerbosityNormal {
		rule := strings.Repeat("=", 70)
		fmt.Fprintln(c.writer)
		c.println(c.bold, rule)
		c.println(c.bold, "  "+message)
		c.println(c.bold, rule)
	}
}

// Section prints a section divider
func (c *Console) Section(title string) {
	if c.level >= VerbosityNormal {
		fmt.Fprintln(c.writer)
		c.println(c.accent, "▶ "+title)
		c.println(c.muted, strings.Repeat("─", 50))
	}
}

// Step prints a numbered step
func (c *Console) Step(message string) {
	if c.level >= VerbosityNormal {
		c.stepCount++
		c.println(c.accent, fmt.Sprintf("[%d] %s", c.stepCount, message))
	}
}

// Successf prints a success message with checkmark
func (c *Console) Successf(format string, args ...any) {
	if c.level >= VerbosityNormal {
		c.println(c.success, "✓ "+fmt.Sprintf(format, args...))
	}
}

// Infof prints an informational message
func (c *Console) Infof(format string, args ...any) {
	if c.level >= VerbosityNormal {
		c.println(c.info, fmt.Sprintf(format, args...))
	}
}

// Warningf prints a warning message
func (c *Console) Warningf(format string, args ...any) {
	c.println(c.warning, "⚠ Warning: "+fmt.Sprintf(format, args...))
}

// Errorf prints an error message
func (c *Console) Errorf(format string, args ...any) {
	c.println(c.failure, "✗ Error: "+fmt.Sprintf(format, args...))
}

// Verbosef prints detailed information (only in verbose mode)
func (c *Console) Verbosef(format string, args ...any) {
	if c.level >= VerbosityVerbose {
		c.println(c.muted, "→ "+fmt.Sprintf(format, args...))
	}
}

// Debugf prints debug information (only in debug mode)
func (c *Console) Debugf(format string, args ...any) {
	if c.level >= VerbosityDebug {
		c.println(c.muted, "[DEBUG] "+fmt.Sprintf(format, args...))
	}
}

// Check prints one preflight result
func (c *Console) Check(result doctor.Result) {
	label := "optional"
	if result.Required {
		label = "required"
	}
	switch {
	case result.Passed:
		line := fmt.Sprintf("  ✓ %s", result.Name)
		if result.Detail != "" {
			line += ": " + result.Detail
		}
		c.println(c.success, line)
	case result.Required:
		c.println(c.failure, fmt.Sprintf("  ✗ %s (%s)", result.Name, label))
	default:
		c.println(c.warning, fmt.Sprintf("  ⚠ %s (%s)", result.Name, label))
	}
	if !result.Passed && result.Error != "" {
		c.println(c.muted, "    "+result.Error)
	}
}

// Summary prints the final run summary. It is shown at every verbosity.
func (c *Console) Summary(report *Report) {
	rule := strings.Repeat("=", 70)
	fmt.Fprintln(c.writer)
	c.println(c.bold, rule)
	c.println(c.bold, "  RUN SUMMARY")
	c.println(c.bold, rule)

	c.printStatus(report.Status)
	fmt.Fprintf(c.writer, "  Meeting: %s\n", report.Address)
	fmt.Fprintf(c.writer, "  Guest: %s\n", report.GuestName)
	fmt.Fprintf(c.writer, "  Duration: %s\n", report.Duration.Round(time.Second))
	if report.Join != nil {
		fmt.Fprintf(c.writer, "  Join state: %s\n", report.Join.State)
	}
	if report.Stay != nil {
		fmt.Fprintf(c.writer, "  Left because: %s\n", report.Stay.Reason)
	}

	c.printSteps(report)
	c.printRecording(report)
	c.printDegradations(report)
	c.printError(report)

	if report.LogPath != "" {
		fmt.Fprintf(c.writer, "\n  Log: %s\n", report.LogPath)
	}
	c.println(c.bold, rule)
	fmt.Fprintln(c.writer)
}

func (c *Console) printStatus(status string) {
	fmt.Fprint(c.writer, "  Status: ")
	switch status {
	case StatusSuccess:
		c.println(c.success, "✓ SUCCESS")
	case StatusDegraded:
		c.println(c.warning, "⚠ DEGRADED")
	case StatusInterrupted:
		c.println(c.warning, "⚠ INTERRUPTED")
	case StatusFailed:
		c.println(c.failure, "✗ FAILED")
	default:
		fmt.Fprintln(c.writer, status)
	}
}

func (c *Console) printSteps(report *Report) {
	if c.level < VerbosityVerbose || report.Join == nil || len(report.Join.Steps) == 0 {
		return
	}

	fmt.Fprintf(c.writer, "\n  Steps:\n")
	for _, step := range report.Join.Steps {
		if step.Succeeded {
			c.println(c.success, fmt.Sprintf("    ✓ %s via %s", step.Step, step.Strategy))
			continue
		}
		c.println(c.failure, fmt.Sprintf("    ✗ %s", step.Step))
		for _, attempt := range step.Attempts {
			c.println(c.muted, fmt.Sprintf("      %s: %s", attempt.Strategy, attempt.Err))
		}
	}
}

func (c *Console) printRecording(report *Report) {
	rec := report.Recording
	if rec == nil {
		return
	}

	fmt.Fprintf(c.writer, "\n  Recording:\n")
	fmt.Fprintf(c.writer, "    Video: %s", rec.VideoPath)
	if info, err := os.Stat(rec.VideoPath); err == nil {
		fmt.Fprintf(c.writer, " (%s)", humanize.Bytes(uint64(info.Size())))
	}
	fmt.Fprintln(c.writer)
	if rec.AudioPath != "" {
		fmt.Fprintf(c.writer, "    Audio: %s\n", rec.AudioPath)
	}
	fmt.Fprintf(c.writer, "    Length: %s\n", rec.Duration.Round(time.Second))
}

func (c *Console) printDegradations(report *Report) {
	if len(report.Degradations) == 0 {
		return
	}

	fmt.Fprintf(c.writer, "\n  Degradations:\n")
	for _, d := range report.Degradations {
		c.println(c.warning, "    ⚠ "+d.String())
	}
}

func (c *Console) printError(report *Report) {
	if report.Error == "" {
		return
	}

	fmt.Fprintln(c.writer)
	c.println(c.failure, "  Error Details:")
	c.println(c.failure, "    "+report.Error)
}
