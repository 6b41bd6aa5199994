package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/meetguest/pkg/browser"
	"github.com/entrhq/meetguest/pkg/config"
	"github.com/entrhq/meetguest/pkg/join"
	"github.com/entrhq/meetguest/pkg/recording"
	"github.com/entrhq/meetguest/pkg/strategy"
	"github.com/entrhq/meetguest/pkg/types"
)

const meetingURL = "https://meet.google.com/abc-defg-hij"

// events is a shared, ordered log of side effects across the fakes.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, fmt.Sprintf(format, args...))
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

func (e *events) index(prefix string) int {
	for i, ev := range e.all() {
		if strings.HasPrefix(ev, prefix) {
			return i
		}
	}
	return -1
}

func (e *events) last(prefix string) int {
	found := -1
	for i, ev := range e.all() {
		if strings.HasPrefix(ev, prefix) {
			found = i
		}
	}
	return found
}

func (e *events) count(prefix string) int {
	n := 0
	for _, ev := range e.all() {
		if strings.HasPrefix(ev, prefix) {
			n++
		}
	}
	return n
}

var _ browser.Page = (*lobby)(nil)

// lobby is a Meet page where devices start muted and the join click
// either admits the guest or leaves them waiting.
type lobby struct {
	mu      sync.Mutex
	ev      *events
	name    string
	joined  bool
	body    string
	nameErr bool
	admit   bool
	onJoin  func()
}

func newLobby(ev *events) *lobby {
	return &lobby{ev: ev, body: "Ready to join?", admit: true}
}

func (p *lobby) URL() string { return meetingURL }

func (p *lobby) Evaluate(ctx context.Context, _ string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if name, ok := arg.(string); ok {
		if p.nameErr {
			return false, nil
		}
		p.name = name
		return true, nil
	}
	return false, nil
}

func (p *lobby) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nameErr {
		return fmt.Errorf("fill %q: element not found", selector)
	}
	p.name = value
	return nil
}

func (p *lobby) Type(ctx context.Context, selector, text string, _ time.Duration) error {
	return p.Fill(ctx, selector, text)
}

func (p *lobby) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	var hook func()
	switch {
	case strings.Contains(selector, "Ask to join"):
		p.joined = true
		p.body = "Asking to be let in..."
		if p.admit {
			p.body = "Meeting details\nJoining info"
		}
		hook = p.onJoin
	case strings.Contains(strings.ToLower(selector), "leave"):
		p.ev.add("leave")
	}
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (p *lobby) Press(ctx context.Context, _ string) error { return ctx.Err() }

func (p *lobby) WaitVisible(ctx context.Context, _ string) error { return ctx.Err() }

func (p *lobby) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case strings.Contains(selector, "Turn on"):
		return true, nil
	case strings.Contains(selector, "Ask to join"):
		return !p.joined, nil
	}
	return false, nil
}

func (p *lobby) InputValue(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name, nil
}

func (p *lobby) BodyText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body, nil
}

func (p *lobby) Content(ctx context.Context) (string, error) {
	return "<html><body></body></html>", ctx.Err()
}

func (p *lobby) Screenshot(_ context.Context, path string) error {
	p.ev.add("screenshot %s", filepath.Base(path))
	return os.WriteFile(path, []byte("png"), 0600)
}

func (p *lobby) setBody(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = body
}

type fakeBrowser struct {
	ev      *events
	page    *lobby
	openErr error
	closes  int
}

func (b *fakeBrowser) Open(ctx context.Context, opts browser.Options) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &browser.SessionStartError{Stage: "launch", Err: err}
	}
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.ev.add("open %s", opts.Address)
	return b.page, nil
}

func (b *fakeBrowser) Close(page browser.Page) error {
	b.closes++
	b.ev.add("close")
	return nil
}

type fakeRecorder struct {
	ev       *events
	dir      string
	startErr error
}

func (r *fakeRecorder) Start(_ context.Context, meetingName string) (*recording.Job, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}
	r.ev.add("record-start %s", meetingName)
	return &recording.Job{
		VideoPath:   filepath.Join(r.dir, meetingName+".mp4"),
		AudioSource: "default",
		StartedAt:   time.Now(),
	}, nil
}

func (r *fakeRecorder) Stop(_ context.Context, _ *recording.Job) error {
	r.ev.add("record-stop")
	return nil
}

func (r *fakeRecorder) Monitor(ctx context.Context, _ *recording.Job, _ time.Duration) {
	<-ctx.Done()
}

type harness struct {
	cfg     *config.Config
	ev      *events
	page    *lobby
	browser *fakeBrowser
	console *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Address = "abc-defg-hij"
	cfg.GuestName = "Jane Doe"
	cfg.DurationMinutes = 1
	cfg.Diagnostics.ScreenshotsDir = filepath.Join(dir, "screenshots")
	cfg.Recording.Dir = filepath.Join(dir, "recordings")
	cfg.Artifacts.OutputDir = filepath.Join(dir, "runs")
	require.NoError(t, cfg.Validate())

	ev := &events{}
	page := newLobby(ev)
	return &harness{
		cfg:     cfg,
		ev:      ev,
		page:    page,
		browser: &fakeBrowser{ev: ev, page: page},
		console: &bytes.Buffer{},
	}
}

func (h *harness) runner(recorder Recorder) *Runner {
	r := New(h.cfg, Deps{
		Browser:  h.browser,
		Recorder: recorder,
		Console:  NewConsoleWriter(VerbosityVerbose, h.console),
		Logger:   zerolog.Nop(),
		RunID:    "run-1",
	})
	r.duration = 50 * time.Millisecond
	r.execOpts = strategy.Options{Settle: 0, MaxWait: 100 * time.Millisecond}
	r.joinOpts.KeystrokeDelay = time.Millisecond
	r.joinOpts.Admission.Timeout = 100 * time.Millisecond
	r.joinOpts.Admission.PollInterval = 10 * time.Millisecond
	r.joinOpts.Presence.PollInterval = 10 * time.Millisecond
	r.cleanupTimeout = time.Second
	r.recordingWindup = time.Second
	return r
}

func TestRun_AdmittedAndLeavesAfterDuration(t *testing.T) {
	h := newHarness(t)

	report, err := h.runner(nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ExitOK, report.ExitCode)
	assert.Equal(t, StatusSuccess, report.Status)
	require.NotNil(t, report.Join)
	assert.Equal(t, join.StateAdmitted, report.Join.State)
	require.NotNil(t, report.Stay)
	assert.Equal(t, join.StayDuration, report.Stay.Reason)
	require.NotNil(t, report.Leave)
	assert.True(t, report.Leave.Succeeded)
	assert.Nil(t, report.Recording)
	assert.Equal(t, "Jane Doe", h.page.name)

	assert.Equal(t, 1, h.browser.closes)
	assert.Equal(t, "open "+meetingURL, h.ev.all()[0])
	assert.Less(t, h.ev.last("screenshot"), h.ev.index("leave"))
	assert.Less(t, h.ev.index("leave"), h.ev.index("close"))

	labels := make([]string, 0, len(report.Checkpoints))
	for _, cp := range report.Checkpoints {
		labels = append(labels, cp.Label)
	}
	assert.Equal(t, "join-start", labels[0])
	assert.Equal(t, "final", labels[len(labels)-1])
	assert.FileExists(t, filepath.Join(h.cfg.Diagnostics.ScreenshotsDir, "01-join-start.png"))

	assert.NoDirExists(t, h.cfg.Recording.Dir)
	assert.Contains(t, h.console.String(), "SUCCESS")
}

func TestRun_PendingApprovalIsDegradedSuccess(t *testing.T) {
	h := newHarness(t)
	h.page.admit = false

	report, err := h.runner(nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ExitOK, report.ExitCode)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, join.StatePendingApproval, report.Join.State)
	assert.True(t, types.HasKind(report.Degradations, types.DegradationAdmissionTimeout))
	assert.Equal(t, 1, h.browser.closes)
}

func TestRun_MeetingEndedEarly(t *testing.T) {
	h := newHarness(t)
	page := h.page
	page.onJoin = func() {
		go func() {
			time.Sleep(20 * time.Millisecond)
			page.setBody("The meeting ended for everyone")
		}()
	}
	r := h.runner(nil)
	r.duration = time.Minute

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, report.Stay)
	assert.Equal(t, join.StayMeetingEnded, report.Stay.Reason)
	assert.Less(t, report.Duration, 30*time.Second)
}

func TestRun_RequiredStepFailureClosesOnce(t *testing.T) {
	h := newHarness(t)
	h.page.nameErr = true

	report, err := h.runner(nil).Run(context.Background())
	require.Error(t, err)

	var stepErr *join.StepFailure
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, join.StepFillName, stepErr.Step)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Equal(t, ExitFailure, report.ExitCode)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, join.StepFillName, report.Join.FailedStep)

	assert.Equal(t, 1, h.browser.closes)
	assert.Equal(t, -1, h.ev.index("leave"), "never in the meeting, nothing to leave")
	assert.Nil(t, report.Stay)
}

func TestRun_SessionStartFailure(t *testing.T) {
	h := newHarness(t)
	h.browser.openErr = &browser.SessionStartError{Stage: "launch", Err: errors.New("chromium not found")}

	report, err := h.runner(nil).Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, ExitFailure, report.ExitCode)
	assert.Equal(t, 0, h.browser.closes)
	assert.Nil(t, report.Join)
}

func TestRun_InterruptedBeforeAdmission(t *testing.T) {
	h := newHarness(t)
	h.page.admit = false
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.page.onJoin = cancel

	report, err := h.runner(nil).Run(ctx)
	require.Error(t, err)

	assert.Equal(t, ExitInterrupted, ExitCode(err))
	assert.Equal(t, ExitInterrupted, report.ExitCode)
	assert.Equal(t, StatusInterrupted, report.Status)
	assert.Equal(t, 1, h.browser.closes)
	assert.Equal(t, "final", report.Checkpoints[len(report.Checkpoints)-1].Label)
}

func TestRun_InterruptedBeforeOpen(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.runner(nil).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, ExitInterrupted, report.ExitCode)
	assert.Equal(t, 0, h.browser.closes)
}

func TestRun_RecordingStopsBeforeLeaving(t *testing.T) {
	h := newHarness(t)
	h.cfg.Record = true
	rec := &fakeRecorder{ev: h.ev, dir: h.cfg.Recording.Dir}

	report, err := h.runner(rec).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ExitOK, report.ExitCode)
	require.NotNil(t, report.Recording)
	assert.Equal(t, filepath.Join(h.cfg.Recording.Dir, "abc-defg-hij.mp4"), report.Recording.VideoPath)

	stop := h.ev.index("record-stop")
	require.NotEqual(t, -1, stop)
	assert.Less(t, h.ev.index("record-start"), stop)
	assert.Less(t, stop, h.ev.index("leave"))
	assert.Less(t, stop, h.ev.index("close"))
	assert.Equal(t, 1, h.ev.count("record-stop"))
}

func TestRun_RecordWithoutFFmpegIsDegraded(t *testing.T) {
	h := newHarness(t)
	h.cfg.Record = true
	h.cfg.Recording.FFmpeg = "meetguest-test-missing-ffmpeg"
	manager := recording.NewManager(h.cfg.RecordingOptions(), zerolog.Nop())

	report, err := h.runner(manager).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ExitOK, report.ExitCode)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, report.Join.State.InMeeting())
	assert.True(t, types.HasKind(report.Degradations, types.DegradationRecordingStart))
	assert.Equal(t, join.StayDuration, report.Stay.Reason)
	assert.NoDirExists(t, h.cfg.Recording.Dir, "no video artifact")
	assert.Equal(t, 1, h.browser.closes)
}

func TestRun_MandatoryRecordingFailure(t *testing.T) {
	h := newHarness(t)
	h.cfg.Record = true
	h.cfg.RequireRecording = true
	h.cfg.Recording.FFmpeg = "meetguest-test-missing-ffmpeg"
	manager := recording.NewManager(h.cfg.RecordingOptions(), zerolog.Nop())

	report, err := h.runner(manager).Run(context.Background())
	require.Error(t, err)

	var recErr *RecordingRequiredError
	require.ErrorAs(t, err, &recErr)
	assert.ErrorIs(t, err, recording.ErrFFmpegNotFound)
	assert.Equal(t, ExitRecording, report.ExitCode)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Nil(t, report.Stay)
	assert.NotEqual(t, -1, h.ev.index("leave"), "the guest still leaves the meeting")
	assert.Equal(t, 1, h.browser.closes)
}

func TestRun_WritesArtifacts(t *testing.T) {
	h := newHarness(t)

	report, err := h.runner(nil).Run(context.Background())
	require.NoError(t, err)

	dir := filepath.Join(h.cfg.Artifacts.OutputDir, "run-1")
	data, err := os.ReadFile(filepath.Join(dir, "run.json"))
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, report.Status, decoded.Status)
	assert.Equal(t, meetingURL, decoded.Address)

	summary, err := os.ReadFile(filepath.Join(dir, "summary.md"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Jane Doe")
	assert.Contains(t, string(summary), "fill-name")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"step failure", &join.StepFailure{Step: join.StepRequestJoin}, ExitFailure},
		{"session start", &browser.SessionStartError{Stage: "launch", Err: errors.New("missing")}, ExitFailure},
		{"recording", &RecordingRequiredError{Err: recording.ErrFFmpegNotFound}, ExitRecording},
		{"interrupted", &join.InterruptedError{Step: join.StepAdmission, Err: context.Canceled}, ExitInterrupted},
		{"wrapped cancel", fmt.Errorf("open: %w", context.Canceled), ExitInterrupted},
		{"config", errors.New("guest name is required"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
