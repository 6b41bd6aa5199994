// Package runner supervises one guest run end to end: open the browser
// session, join, record, stay, and tear everything down again in a fixed
// order no matter how the run ends.
package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/entrhq/meetguest/pkg/browser"
	"github.com/entrhq/meetguest/pkg/config"
	"github.com/entrhq/meetguest/pkg/diagnostics"
	"github.com/entrhq/meetguest/pkg/join"
	"github.com/entrhq/meetguest/pkg/recording"
	"github.com/entrhq/meetguest/pkg/strategy"
	"github.com/entrhq/meetguest/pkg/types"
)

// Exit codes
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitRecording   = 2
	ExitInterrupted = 130
)

// Cleanup bounds. Stopping a recording includes the mp3 extraction.
const (
	DefaultCleanupTimeout  = 30 * time.Second
	DefaultRecordingWindup = 5 * time.Minute
)

// Browser opens and closes meeting sessions.
type Browser interface {
	Open(ctx context.Context, opts browser.Options) (browser.Page, error)
	Close(page browser.Page) error
}

// Recorder runs capture jobs.
type Recorder interface {
	Start(ctx context.Context, meetingName string) (*recording.Job, error)
	Stop(ctx context.Context, job *recording.Job) error
	Monitor(ctx context.Context, job *recording.Job, interval time.Duration)
}

// Deps are the collaborators of a Runner. Browser is required; Recorder is
// required when recording is enabled.
type Deps struct {
	Browser  Browser
	Recorder Recorder
	Console  *Console
	Logger   zerolog.Logger
	RunID    string
	LogPath  string
}

// RecordingRequiredError is returned when a mandatory recording could not
// be made.
type RecordingRequiredError struct {
	Err error
}

func (e *RecordingRequiredError) Error() string {
	return fmt.Sprintf("mandatory recording failed: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *RecordingRequiredError) Unwrap() error {
	return e.Err
}

// Runner executes one configured run.
type Runner struct {
	cfg       *config.Config
	deps      Deps
	sink      *diagnostics.Sink
	artifacts *ArtifactWriter
	logger    zerolog.Logger

	joinOpts        join.Options
	execOpts        strategy.Options
	duration        time.Duration
	monitorInterval time.Duration
	cleanupTimeout  time.Duration
	recordingWindup time.Duration
}

// New creates a runner for a validated configuration.
func New(cfg *config.Config, deps Deps) *Runner {
	if deps.Console == nil {
		deps.Console = NewConsole(ParseVerbosity(cfg.Logging.Verbosity))
	}
	logger := deps.Logger.With().Str("component", "runner").Logger()

	var artifacts *ArtifactWriter
	if cfg.Artifacts.Enabled {
		dir := cfg.Artifacts.OutputDir
		if deps.RunID != "" {
			dir = filepath.Join(dir, deps.RunID)
		}
		artifacts = NewArtifactWriter(dir, cfg.Artifacts.JSON, cfg.Artifacts.Markdown)
	}

	return &Runner{
		cfg:             cfg,
		deps:            deps,
		sink:            diagnostics.NewSink(cfg.Diagnostics.ScreenshotsDir, cfg.Diagnostics.Enabled, deps.Logger),
		artifacts:       artifacts,
		logger:          logger,
		joinOpts:        cfg.JoinOptions(),
		execOpts:        cfg.StrategyOptions(),
		duration:        cfg.Duration(),
		monitorInterval: cfg.MonitorInterval(),
		cleanupTimeout:  DefaultCleanupTimeout,
		recordingWindup: DefaultRecordingWindup,
	}
}

// Run performs the run. The returned report is always non-nil; the error
// is nil for success and degraded success. Use ExitCode to map it.
func (r *Runner) Run(ctx context.Context) (report *Report, err error) {
	console := r.deps.Console
	report = &Report{
		RunID:     r.deps.RunID,
		Address:   r.cfg.Address,
		GuestName: r.cfg.GuestName,
		Status:    StatusRunning,
		StartTime: time.Now(),
		LogPath:   r.deps.LogPath,
	}

	console.Header("meetguest: " + browser.MeetingName(r.cfg.Address))
	r.logger.Info().Str("address", r.cfg.Address).Str("guest", r.cfg.GuestName).Bool("record", r.cfg.Record).Msg("run started")

	defer func() {
		if err == nil && r.cfg.RequireRecording && report.recordingFailed() {
			err = &RecordingRequiredError{Err: errors.New("the capture process did not run to completion")}
		}
		r.finish(report, err)
	}()

	console.Section("Session")
	console.Step("Opening browser")
	page, err := r.deps.Browser.Open(ctx, r.cfg.BrowserOptions())
	if err != nil {
		if ctx.Err() != nil {
			return report, &join.InterruptedError{Step: "open", Err: ctx.Err()}
		}
		return report, err
	}
	defer r.closeSession(page)
	console.Successf("Session open at %s", page.URL())

	orch := join.NewOrchestrator(r.joinOpts, r.execOpts, r.sink, r.deps.Logger)

	inMeeting := false
	defer func() {
		cctx, cancel := r.cleanupContext(ctx, r.cleanupTimeout)
		defer cancel()

		r.sink.Capture(cctx, page, "final")
		if inMeeting {
			leave := orch.Leave(cctx, page)
			report.Leave = &leave
			if !leave.Succeeded {
				d := types.NewDegradation(types.DegradationLeave, join.StepLeave, nil)
				d.Detail = leave.Summary()
				report.Degradations = append(report.Degradations, d)
			}
		}
	}()

	console.Section("Lobby")
	console.Step(fmt.Sprintf("Joining as %q", r.cfg.GuestName))
	result, err := orch.Join(ctx, page)
	report.Join = result
	if result != nil {
		report.Degradations = append(report.Degradations, result.Degradations...)
		for _, sr := range result.Steps {
			console.Verbosef("%s", sr.Summary())
		}
	}
	if err != nil {
		return report, err
	}
	inMeeting = true

	switch result.State {
	case join.StateAdmitted:
		console.Successf("Admitted to the meeting")
	case join.StatePendingApproval:
		console.Warningf("No admission signal yet, continuing as pending approval")
	}

	if r.cfg.Record {
		console.Section("Recording")
		job, stop, err := r.startRecording(ctx, report)
		if err != nil {
			return report, err
		}
		if stop != nil {
			defer stop()
		}
		if job != nil {
			console.Successf("Recording to %s", job.VideoPath)
		}
	}

	console.Section("Meeting")
	console.Step(fmt.Sprintf("Staying for %s", r.duration))
	stay := orch.Stay(ctx, page, r.cfg.Address, r.duration)
	report.Stay = &stay
	console.Infof("Leaving: %s", stay.Reason)

	return report, nil
}

// startRecording starts the capture. It returns the job and the function
// that stops it, or an error only when the recording is mandatory.
func (r *Runner) startRecording(ctx context.Context, report *Report) (*recording.Job, func(), error) {
	console := r.deps.Console

	job, err := r.deps.Recorder.Start(ctx, browser.MeetingName(r.cfg.Address))
	if err != nil {
		report.Degradations = append(report.Degradations, types.NewDegradation(types.DegradationRecordingStart, "recording", err))
		if job != nil {
			rep := job.Report()
			report.Recording = &rep
		}
		if r.cfg.RequireRecording {
			console.Errorf("Recording failed: %v", err)
			return nil, nil, &RecordingRequiredError{Err: err}
		}
		console.Warningf("Recording unavailable, continuing without it: %v", err)
		return nil, nil, nil
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	var wg conc.WaitGroup
	wg.Go(func() {
		r.deps.Recorder.Monitor(monitorCtx, job, r.monitorInterval)
	})

	stop := func() {
		stopMonitor()
		wg.Wait()

		cctx, cancel := r.cleanupContext(ctx, r.recordingWindup)
		defer cancel()

		if err := r.deps.Recorder.Stop(cctx, job); err != nil {
			r.logger.Error().Err(err).Msg("failed to stop recording")
		}
		rep := job.Report()
		report.Recording = &rep
		report.Degradations = append(report.Degradations, rep.Degradations...)
	}
	return job, stop, nil
}

func (r *Runner) closeSession(page browser.Page) {
	if err := r.deps.Browser.Close(page); err != nil {
		r.logger.Warn().Err(err).Msg("failed to close browser session")
	}
}

// cleanupContext outlives a cancelled run context, bounded by timeout.
func (r *Runner) cleanupContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (r *Runner) finish(report *Report, err error) {
	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)
	report.Checkpoints = r.sink.Checkpoints()
	report.ExitCode = ExitCode(err)
	report.Status = classify(report, err)
	if err != nil {
		report.Error = err.Error()
		r.logger.Error().Err(err).Int("exit_code", report.ExitCode).Msg("run failed")
	} else {
		r.logger.Info().Str("status", report.Status).Msg("run finished")
	}

	if r.artifacts != nil {
		if writeErr := r.artifacts.WriteAll(report); writeErr != nil {
			r.logger.Warn().Err(writeErr).Msg("failed to write run artifacts")
		}
	}
	r.deps.Console.Summary(report)
}

func classify(report *Report, err error) string {
	switch ExitCode(err) {
	case ExitOK:
		if len(report.Degradations) > 0 {
			return StatusDegraded
		}
		return StatusSuccess
	case ExitInterrupted:
		return StatusInterrupted
	default:
		return StatusFailed
	}
}

// ExitCode maps a Run error to the process exit code.
func ExitCode(err error) int {
	var (
		recErr *RecordingRequiredError
		intErr *join.InterruptedError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &recErr):
		return ExitRecording
	case errors.As(err, &intErr), errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

func (r *Report) recordingFailed() bool {
	if r.Recording == nil {
		return false
	}
	if r.Recording.State == recording.JobFailed {
		return true
	}
	for _, d := range r.Recording.Degradations {
		if d.Kind == types.DegradationRecordingDied {
			return true
		}
	}
	return false
}

// ControllerBrowser adapts a browser.Controller to the Browser interface.
type ControllerBrowser struct {
	Controller *browser.Controller
}

// Open opens a playwright session.
func (b ControllerBrowser) Open(ctx context.Context, opts browser.Options) (browser.Page, error) {
	session, err := b.Controller.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Close closes a session opened by Open.
func (b ControllerBrowser) Close(page browser.Page) error {
	session, ok := page.(*browser.Session)
	if !ok {
		return fmt.Errorf("unexpected page type %T", page)
	}
	return b.Controller.Close(session)
}
