package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/entrhq/meetguest/pkg/diagnostics"
	"github.com/entrhq/meetguest/pkg/join"
	"github.com/entrhq/meetguest/pkg/recording"
	"github.com/entrhq/meetguest/pkg/strategy"
	"github.com/entrhq/meetguest/pkg/types"
)

// Run statuses
const (
	StatusRunning     = "running"
	StatusSuccess     = "success"
	StatusDegraded    = "degraded"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// Report is the complete record of one run
type Report struct {
	RunID        string                   `json:"run_id"`
	Address      string                   `json:"address"`
	GuestName    string                   `json:"guest_name"`
	Status       string                   `json:"status"`
	ExitCode     int                      `json:"exit_code"`
	Error        string                   `json:"error,omitempty"`
	StartTime    time.Time                `json:"start_time"`
	EndTime      time.Time                `json:"end_time"`
	Duration     time.Duration            `json:"duration"`
	Join         *join.Result             `json:"join,omitempty"`
	Stay         *join.StayResult         `json:"stay,omitempty"`
	Leave        *strategy.Result         `json:"leave,omitempty"`
	Recording    *recording.JobReport     `json:"recording,omitempty"`
	Checkpoints  []diagnostics.Checkpoint `json:"checkpoints,omitempty"`
	Degradations []types.Degradation      `json:"degradations,omitempty"`
	LogPath      string                   `json:"log_path,omitempty"`
}

// ArtifactWriter writes run.json and summary.md for a run
type ArtifactWriter struct {
	outputDir string
	json      bool
	markdown  bool
}

// NewArtifactWriter creates a writer for outputDir
func NewArtifactWriter(outputDir string, writeJSON, writeMarkdown bool) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: outputDir,
		json:      writeJSON,
		markdown:  writeMarkdown,
	}
}

// Dir returns the directory artifacts are written to
func (w *ArtifactWriter) Dir() string {
	return w.outputDir
}

// WriteAll writes all configured artifact formats
func (w *ArtifactWriter) WriteAll(report *Report) error {
	if !w.json && !w.markdown {
		return nil
	}

	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if w.json {
		if err := w.WriteRunJSON(report); err != nil {
			return err
		}
	}

	if w.markdown {
		if err := w.WriteSummaryMarkdown(report); err != nil {
			return err
		}
	}

	return nil
}

// WriteRunJSON writes the full report as JSON
func (w *ArtifactWriter) WriteRunJSON(report *Report) error {
	path := filepath.Join(w.outputDir, "run.json")

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0600); writeErr != nil {
		return fmt.Errorf("failed to write run JSON: %w", writeErr)
	}

	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary
func (w *ArtifactWriter) WriteSummaryMarkdown(report *Report) error {
	path := filepath.Join(w.outputDir, "summary.md")

	var md strings.Builder

	md.WriteString("# Meeting Guest Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Run:** %s\n\n", report.RunID))
	md.WriteString(fmt.Sprintf("**Meeting:** %s\n\n", report.Address))
	md.WriteString(fmt.Sprintf("**Guest:** %s\n\n", report.GuestName))
	md.WriteString(fmt.Sprintf("**Status:** %s (exit %d)\n\n", report.Status, report.ExitCode))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", report.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", report.EndTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", report.Duration.Round(time.Second)))

	md.WriteString("## Result\n\n")
	if report.Error != "" {
		md.WriteString(fmt.Sprintf("❌ **Error:** %s\n\n", report.Error))
	} else {
		md.WriteString("✅ **Success**\n\n")
	}

	if report.Join != nil && len(report.Join.Steps) > 0 {
		md.WriteString("## Join Steps\n\n")
		md.WriteString(fmt.Sprintf("Final state: `%s`\n\n", report.Join.State))
		for _, step := range report.Join.Steps {
			if step.Succeeded {
				md.WriteString(fmt.Sprintf("- ✅ **%s** via `%s`\n", step.Step, step.Strategy))
				continue
			}
			md.WriteString(fmt.Sprintf("- ❌ **%s**\n", step.Step))
			for _, attempt := range step.Attempts {
				md.WriteString(fmt.Sprintf("  - `%s`: %s\n", attempt.Strategy, attempt.Err))
			}
		}
		md.WriteString("\n")
	}

	if report.Stay != nil {
		md.WriteString("## Presence\n\n")
		md.WriteString(fmt.Sprintf("- **Left because:** %s\n", report.Stay.Reason))
		md.WriteString(fmt.Sprintf("- **Time in meeting:** %s\n\n", report.Stay.Elapsed.Round(time.Second)))
	}

	if rec := report.Recording; rec != nil {
		md.WriteString("## Recording\n\n")
		md.WriteString(fmt.Sprintf("- **Video:** `%s`", rec.VideoPath))
		if info, err := os.Stat(rec.VideoPath); err == nil {
			md.WriteString(fmt.Sprintf(" (%s)", humanize.Bytes(uint64(info.Size()))))
		}
		md.WriteString("\n")
		if rec.AudioPath != "" {
			md.WriteString(fmt.Sprintf("- **Audio:** `%s`\n", rec.AudioPath))
		}
		md.WriteString(fmt.Sprintf("- **Audio source:** %s\n", rec.AudioSource))
		md.WriteString(fmt.Sprintf("- **State:** %s\n\n", rec.State))
	}

	if len(report.Degradations) > 0 {
		md.WriteString("## Degradations\n\n")
		for _, d := range report.Degradations {
			md.WriteString(fmt.Sprintf("- %s\n", d))
		}
		md.WriteString("\n")
	}

	if len(report.Checkpoints) > 0 {
		md.WriteString("## Checkpoints\n\n")
		for _, cp := range report.Checkpoints {
			switch {
			case cp.Err != "":
				md.WriteString(fmt.Sprintf("%d. %s (not captured: %s)\n", cp.Seq, cp.Label, cp.Err))
			case cp.Path != "":
				md.WriteString(fmt.Sprintf("%d. %s `%s`\n", cp.Seq, cp.Label, cp.Path))
			default:
				md.WriteString(fmt.Sprintf("%d. %s\n", cp.Seq, cp.Label))
			}
		}
		md.WriteString("\n")
	}

	if writeErr := os.WriteFile(path, []byte(md.String()), 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}

	return nil
}
