package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/meetguest/pkg/types"
)

// TestHelperProcess stands in for ffmpeg, pactl and xrandr. It is only
// active when re-executed by fakeTools.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	if len(args) == 0 {
		os.Exit(2)
	}
	os.Exit(fakeTool(filepath.Base(args[0]), args[1:], os.Getenv("FAKE_TOOL_MODE")))
}

func fakeTool(name string, args []string, mode string) int {
	joined := strings.Join(args, " ")
	output := ""
	if len(args) > 0 {
		output = args[len(args)-1]
	}

	switch name {
	case "xrandr":
		fmt.Print(xrandrOutput)
		return 0
	case "pactl":
		if mode == "no-pactl" {
			fmt.Fprintln(os.Stderr, "Connection failure: Connection refused")
			return 1
		}
		fmt.Print(pactlOutput)
		return 0
	}

	switch {
	case strings.Contains(joined, "-list_devices"):
		fmt.Fprint(os.Stderr, dshowLegacyOutput)
		return 1

	case mode == "extract-hangs" && strings.Contains(joined, "-vn"):
		time.Sleep(30 * time.Second)
		return 1

	case strings.Contains(joined, "libmp3lame"):
		if mode == "mp3-fails" || mode == "extract-fails" {
			fmt.Fprintln(os.Stderr, "Unknown encoder 'libmp3lame'")
			return 1
		}
		return writeFile(output, "ID3 primary")

	case strings.Contains(joined, "-ar 44100"):
		if mode == "extract-fails" {
			fmt.Fprintln(os.Stderr, "Output file #0 does not contain any stream")
			return 1
		}
		return writeFile(output, "ID3 fallback")

	case strings.Contains(joined, "-c:v"):
		return fakeCapture(joined, output, mode)
	}

	fmt.Fprintf(os.Stderr, "unexpected invocation: %s %s\n", name, joined)
	return 2
}

func fakeCapture(joined, output, mode string) int {
	switch mode {
	case "die":
		fmt.Fprintln(os.Stderr, "Cannot open display :0.0, error 1.")
		return 1
	case "die-with-audio":
		if strings.Contains(joined, "-f pulse") {
			fmt.Fprintln(os.Stderr, "default: Input/output error (audio)")
			return 1
		}
	}

	if mode != "no-output" {
		if code := writeFile(output, "fake mp4"); code != 0 {
			return code
		}
	}

	stop := make(chan os.Signal, 1)
	if mode == "stubborn" {
		signal.Ignore(syscall.SIGTERM)
	} else {
		signal.Notify(stop, syscall.SIGTERM)
	}

	quit := make(chan struct{})
	go func() {
		r := bufio.NewReader(os.Stdin)
		if b, err := r.ReadByte(); err == nil && b == 'q' {
			close(quit)
		}
	}()

	lifetime := 30 * time.Second
	if mode == "exit-early" {
		lifetime = time.Second
	}

	select {
	case <-stop:
		return 0
	case <-quit:
		return 0
	case <-time.After(lifetime):
		return 1
	}
}

func writeFile(path, content string) int {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// fakeTools records every invocation and routes it to TestHelperProcess.
type fakeTools struct {
	mode  string
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeTools) command(ctx context.Context, name string, arg ...string) *exec.Cmd {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, arg...))
	f.mu.Unlock()

	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, arg...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FAKE_TOOL_MODE="+f.mode)
	return cmd
}

func (f *fakeTools) invoked(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.Contains(strings.Join(c, " "), substr) {
			return true
		}
	}
	return false
}

func newTestManager(t *testing.T, mode string) (*Manager, *fakeTools) {
	t.Helper()

	tools := &fakeTools{mode: mode}
	m := NewManager(Config{
		Dir:         filepath.Join(t.TempDir(), "recordings"),
		VideoSize:   "1280x720",
		AudioSource: "default",
		Quality:     4,
		StopGrace:   2 * time.Second,
		StartProbe:  300 * time.Millisecond,
	}, zerolog.Nop())
	m.goos = "linux"
	m.lookPath = func(string) (string, error) { return "/usr/bin/ffmpeg", nil }
	m.command = tools.command
	m.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return m, tools
}

func TestManager_StartStopExtracts(t *testing.T) {
	m, _ := newTestManager(t, "ok")

	job, err := m.Start(context.Background(), "abc-defg-hij")
	require.NoError(t, err)
	assert.Equal(t, JobRunning, job.State())
	assert.Equal(t, filepath.Join(m.Config().Dir, "abc-defg-hij-20240102-030405.mp4"), job.VideoPath)
	assert.Equal(t, "default", job.AudioSource)
	assert.Empty(t, job.AudioPath(), "audio path must not exist while running")
	assert.Contains(t, job.Args, "pulse")

	require.NoError(t, m.Stop(context.Background(), job))
	assert.Equal(t, JobStopped, job.State())
	assert.Equal(t, AudioPathFor(job.VideoPath), job.AudioPath())
	assert.FileExists(t, job.AudioPath())
	assert.FileExists(t, job.VideoPath)
	assert.FileExists(t, job.LogPath)
	assert.Empty(t, job.Degradations())

	// second stop is a no-op
	require.NoError(t, m.Stop(context.Background(), job))
	assert.Equal(t, JobStopped, job.State())

	report := job.Report()
	assert.Equal(t, JobStopped, report.State)
	assert.Equal(t, job.AudioPath(), report.AudioPath)
}

func TestManager_StartWithoutFFmpeg(t *testing.T) {
	m, tools := newTestManager(t, "ok")
	m.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	job, err := m.Start(context.Background(), "standup")
	require.Error(t, err)
	assert.Nil(t, job)

	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "lookup", startErr.Stage)
	assert.ErrorIs(t, err, ErrFFmpegNotFound)
	assert.Empty(t, tools.calls)
	assert.NoDirExists(t, m.Config().Dir)
}

func TestManager_AudioFailureFallsBackToVideoOnly(t *testing.T) {
	m, _ := newTestManager(t, "die-with-audio")

	job, err := m.Start(context.Background(), "standup")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(context.Background(), job) })

	assert.Equal(t, JobRunning, job.State())
	assert.Equal(t, NoAudio, job.AudioSource)
	assert.NotContains(t, job.Args, "pulse")
	assert.True(t, types.HasKind(job.Degradations(), types.DegradationAudioMissing))

	log, err := os.ReadFile(job.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(log), "Input/output error")
}

func TestManager_CaptureDiesOnStart(t *testing.T) {
	m, _ := newTestManager(t, "die")
	m.cfg.AudioSource = NoAudio

	job, err := m.Start(context.Background(), "standup")
	require.Error(t, err)

	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "probe", startErr.Stage)
	assert.Contains(t, err.Error(), "Cannot open display")

	require.NotNil(t, job)
	assert.Equal(t, JobFailed, job.State())
	assert.NoError(t, m.Stop(context.Background(), job))
	assert.Empty(t, job.AudioPath())
}

func TestManager_StopWithoutOutputSkipsExtraction(t *testing.T) {
	m, tools := newTestManager(t, "no-output")

	job, err := m.Start(context.Background(), "standup")
	require.NoError(t, err)

	require.NoError(t, m.Stop(context.Background(), job))
	assert.Equal(t, JobStopped, job.State())
	assert.Empty(t, job.AudioPath())
	assert.False(t, tools.invoked("-vn"), "extraction must not be attempted")
	assert.NoFileExists(t, AudioPathFor(job.VideoPath))
}

func TestManager_ExtractionFallback(t *testing.T) {
	m, tools := newTestManager(t, "mp3-fails")

	job, err := m.Start(context.Background(), "standup")
	require.NoError(t, err)

	require.NoError(t, m.Stop(context.Background(), job))
	assert.True(t, tools.invoked("libmp3lame"))
	assert.True(t, tools.invoked("-ar 44100"))

	data, err := os.ReadFile(job.AudioPath())
	require.NoError(t, err)
	assert.Equal(t, "ID3 fallback", string(data))
}

func TestManager_ExtractionFailureKeepsVideo(t *testing.T) {
	m, _ := newTestManager(t, "extract-fails")

	job, err := m.Start(context.Background(), "standup")
	require.NoError(t, err)

	err = m.Stop(context.Background(), job)
	require.Error(t, err)

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, job.VideoPath, extractErr.VideoPath)
	assert.Contains(t, extractErr.Output, "does not contain any stream")

	assert.Equal(t, JobStopped, job.State())
	assert.Empty(t, job.AudioPath())
	assert.FileExists(t, job.VideoPath)
	assert.True(t, types.HasKind(job.Degradations(), types.DegradationExtraction))
}

func TestManager_StopBoundsExtraction(t *testing.T) {
	m, _ := newTestManager(t, "extract-hangs")

	job, err := m.Start(context.Background(), "standup")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = m.Stop(ctx, job)
	assert.Less(t, time.Since(start), 5*time.Second)

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, JobStopped, job.State())
	assert.Empty(t, job.AudioPath())
	assert.FileExists(t, job.VideoPath)
}

func TestManager_StopKillsAfterGrace(t *testing.T) {
	m, _ := newTestManager(t, "stubborn")
	m.cfg.StopGrace = 200 * time.Millisecond

	job, err := m.Start(context.Background(), "standup")
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, m.Stop(context.Background(), job))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, JobStopped, job.State())
}

func TestManager_StopNilJob(t *testing.T) {
	m, _ := newTestManager(t, "ok")
	assert.NoError(t, m.Stop(context.Background(), nil))
	assert.NoError(t, m.Stop(context.Background(), &Job{state: JobNotStarted}))
}

func TestManager_MonitorReportsUnexpectedExit(t *testing.T) {
	m, _ := newTestManager(t, "exit-early")

	job, err := m.Start(context.Background(), "standup")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		m.Monitor(context.Background(), job, 50*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not return after the process exited")
	}
	assert.True(t, types.HasKind(job.Degradations(), types.DegradationRecordingDied))

	require.NoError(t, m.Stop(context.Background(), job))
	assert.Equal(t, JobStopped, job.State())
}

func TestManager_MonitorQuietOnStop(t *testing.T) {
	m, _ := newTestManager(t, "ok")

	job, err := m.Start(context.Background(), "standup")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		m.Monitor(context.Background(), job, time.Hour)
		close(done)
	}()

	require.NoError(t, m.Stop(context.Background(), job))
	<-done
	assert.False(t, types.HasKind(job.Degradations(), types.DegradationRecordingDied))
}

func TestManager_DetectAudioSource(t *testing.T) {
	tests := []struct {
		goos string
		mode string
		want string
	}{
		{goos: "linux", mode: "ok", want: "alsa_output.pci-0000_00_1f.3.analog-stereo.monitor"},
		{goos: "linux", mode: "no-pactl", want: "default"},
		{goos: "windows", mode: "ok", want: "Stereo Mix (Realtek High Definition Audio)"},
		{goos: "darwin", mode: "ok", want: "0"},
		{goos: "freebsd", mode: "ok", want: NoAudio},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.mode, func(t *testing.T) {
			m, _ := newTestManager(t, tt.mode)
			m.goos = tt.goos
			assert.Equal(t, tt.want, m.DetectAudioSource(context.Background()))
		})
	}
}

func TestManager_DetectScreenSize(t *testing.T) {
	m, _ := newTestManager(t, "ok")
	assert.Equal(t, "2560x1440", m.DetectScreenSize(context.Background()))

	m.goos = "windows"
	assert.Equal(t, "", m.DetectScreenSize(context.Background()))

	m.goos = "freebsd"
	assert.Equal(t, DefaultVideoSize, m.DetectScreenSize(context.Background()))
}

func TestManager_StartCancelled(t *testing.T) {
	m, _ := newTestManager(t, "ok")
	m.cfg.StartProbe = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	job, err := m.Start(ctx, "standup")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, JobFailed, job.State())
}
