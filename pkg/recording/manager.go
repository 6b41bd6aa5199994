// Package recording supervises an ffmpeg screen and audio capture that runs
// alongside the browser session, and turns the finished video into an mp3.
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/entrhq/meetguest/pkg/types"
)

// Defaults for Config.
const (
	DefaultDir          = "recordings"
	DefaultFramerate    = 15
	DefaultCRF          = 28
	DefaultPreset       = "ultrafast"
	DefaultAudioBitrate = "128k"
	DefaultDisplay      = ":0.0"
	DefaultQuality      = 4
	DefaultStopGrace    = 10 * time.Second
	DefaultStartProbe   = time.Second
	probeTimeout        = 10 * time.Second
	logTailLines        = 20
)

// Config configures the capture.
type Config struct {
	// FFmpeg is the binary name or path, "ffmpeg" when empty
	FFmpeg string

	Dir          string
	Framerate    int
	CRF          int
	Preset       string
	AudioBitrate string
	Display      string

	// AudioSource overrides detection; NoAudio forces video-only capture
	AudioSource string

	// VideoSize overrides screen detection, WxH
	VideoSize string

	// Quality is the libmp3lame VBR quality, 0 (best) to 9
	Quality int

	StopGrace  time.Duration
	StartProbe time.Duration
}

func (c *Config) applyDefaults() {
	if c.FFmpeg == "" {
		c.FFmpeg = "ffmpeg"
	}
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.Framerate <= 0 {
		c.Framerate = DefaultFramerate
	}
	if c.CRF <= 0 {
		c.CRF = DefaultCRF
	}
	if c.Preset == "" {
		c.Preset = DefaultPreset
	}
	if c.AudioBitrate == "" {
		c.AudioBitrate = DefaultAudioBitrate
	}
	if c.Display == "" {
		c.Display = DefaultDisplay
	}
	if c.Quality < 0 || c.Quality > 9 {
		c.Quality = DefaultQuality
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.StartProbe <= 0 {
		c.StartProbe = DefaultStartProbe
	}
}

// Manager starts and stops capture jobs.
type Manager struct {
	cfg    Config
	ffmpeg string
	goos   string
	logger zerolog.Logger

	lookPath func(file string) (string, error)
	command  func(ctx context.Context, name string, arg ...string) *exec.Cmd
	now      func() time.Time
}

// NewManager creates a manager for the current platform.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:      cfg,
		ffmpeg:   cfg.FFmpeg,
		goos:     runtime.GOOS,
		logger:   logger.With().Str("component", "recording").Logger(),
		lookPath: exec.LookPath,
		command:  exec.CommandContext,
		now:      time.Now,
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Available reports whether ffmpeg can be found.
func (m *Manager) Available() error {
	path, err := m.lookPath(m.ffmpeg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFFmpegNotFound, err)
	}
	m.ffmpeg = path
	return nil
}

// Start launches a capture for meetingName. The returned job is Running;
// on error no process is left behind.
func (m *Manager) Start(ctx context.Context, meetingName string) (*Job, error) {
	if err := m.Available(); err != nil {
		return nil, &StartError{Stage: "lookup", Err: err}
	}
	if err := os.MkdirAll(m.cfg.Dir, 0755); err != nil {
		return nil, &StartError{Stage: "prepare", Err: fmt.Errorf("failed to create recordings directory: %w", err)}
	}

	size := m.cfg.VideoSize
	if size == "" {
		size = m.DetectScreenSize(ctx)
	}
	source := m.cfg.AudioSource
	if source == "" {
		source = m.DetectAudioSource(ctx)
	}

	video := filepath.Join(m.cfg.Dir, fmt.Sprintf("%s-%s.mp4", meetingName, m.now().Format("20060102-150405")))
	job := &Job{
		VideoPath:   video,
		LogPath:     video + ".ffmpeg.log",
		AudioSource: source,
		VideoSize:   size,
		state:       JobNotStarted,
	}

	if source == NoAudio {
		job.degrade(types.NewDegradation(types.DegradationAudioMissing, "recording", errors.New("no audio loopback source found, recording video only")))
	}

	err := m.launch(ctx, job)
	if err != nil && job.AudioSource != NoAudio && ctx.Err() == nil {
		m.logger.Warn().Err(err).Str("source", job.AudioSource).Msg("capture with audio failed, retrying video only")
		job.degrade(types.NewDegradation(types.DegradationAudioMissing, "recording", err))
		job.AudioSource = NoAudio
		err = m.launch(ctx, job)
	}
	if err != nil {
		job.setState(JobFailed)
		return job, err
	}

	job.setState(JobRunning)
	m.logger.Info().
		Str("video", job.VideoPath).
		Str("audio_source", job.AudioSource).
		Str("size", job.VideoSize).
		Msg("recording started")
	return job, nil
}

// launch spawns ffmpeg for job and waits StartProbe to make sure it stays up.
func (m *Manager) launch(ctx context.Context, job *Job) error {
	args, err := captureArgs(m.goos, captureParams{
		Framerate:    m.cfg.Framerate,
		VideoSize:    job.VideoSize,
		Display:      m.cfg.Display,
		AudioSource:  job.AudioSource,
		Preset:       m.cfg.Preset,
		CRF:          m.cfg.CRF,
		AudioBitrate: m.cfg.AudioBitrate,
		Output:       job.VideoPath,
	})
	if err != nil {
		return &StartError{Stage: "backend", Err: err}
	}

	log, err := os.OpenFile(job.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return &StartError{Stage: "spawn", Err: fmt.Errorf("failed to open ffmpeg log: %w", err)}
	}
	fmt.Fprintf(log, "# %s %s\n", m.ffmpeg, strings.Join(args, " "))

	// The capture must outlive the run context; Stop ends it gracefully.
	cmd := m.command(context.WithoutCancel(ctx), m.ffmpeg, args...)
	proc, err := startCapture(cmd, log)
	if err != nil {
		log.Close()
		return &StartError{Stage: "spawn", Err: err}
	}

	m.logger.Debug().Strs("args", args).Msg("spawned ffmpeg")

	probe := time.NewTimer(m.cfg.StartProbe)
	defer probe.Stop()

	select {
	case <-proc.done:
		exitErr := proc.wait()
		log.Close()
		if exitErr == nil {
			exitErr = errors.New("ffmpeg exited immediately")
		}
		return &StartError{Stage: "probe", Err: fmt.Errorf("%w\n%s", exitErr, tailFile(job.LogPath, logTailLines))}
	case <-ctx.Done():
		proc.kill()
		_ = proc.wait()
		log.Close()
		return &StartError{Stage: "probe", Err: ctx.Err()}
	case <-probe.C:
	}

	job.Args = args
	job.StartedAt = m.now()
	job.process = proc
	return nil
}

// Stop ends the capture and extracts the audio track. It is safe to call
// more than once and on a job that never started. The only error returned
// is an *ExtractionError, which leaves the video in place.
func (m *Manager) Stop(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}

	job.stopped.Do(func() {
		if job.State() != JobRunning || job.process == nil {
			return
		}
		job.stopErr = m.stop(ctx, job)
	})
	return job.stopErr
}

func (m *Manager) stop(ctx context.Context, job *Job) error {
	proc := job.process
	job.markStopping()
	m.logger.Info().Msg("stopping recording")

	if proc.exited() {
		m.logger.Warn().Msg("capture process had already exited")
	} else if err := m.terminate(proc); err != nil {
		m.logger.Warn().Err(err).Msg("graceful stop failed, killing ffmpeg")
		proc.kill()
	}

	grace := time.NewTimer(m.cfg.StopGrace)
	defer grace.Stop()

	select {
	case <-proc.done:
	case <-grace.C:
		m.logger.Warn().Dur("grace", m.cfg.StopGrace).Msg("ffmpeg did not exit in time, killing")
		proc.kill()
	case <-ctx.Done():
		m.logger.Warn().Err(ctx.Err()).Msg("stop cancelled, killing ffmpeg")
		proc.kill()
	}
	exitErr := proc.wait()
	proc.log.Close()

	job.mu.Lock()
	job.stoppedAt = m.now()
	job.state = JobStopped
	duration := job.stoppedAt.Sub(job.StartedAt)
	job.mu.Unlock()

	logEvent := m.logger.Info().Dur("duration", duration.Round(time.Second))
	if exitErr != nil {
		logEvent = logEvent.AnErr("exit", exitErr)
	}

	info, err := os.Stat(job.VideoPath)
	if err != nil || info.Size() == 0 {
		logEvent.Msg("recording stopped")
		m.logger.Warn().Str("video", job.VideoPath).Msg("recording file is missing or empty, skipping audio extraction")
		return nil
	}
	logEvent.Str("video", job.VideoPath).Str("size", humanize.Bytes(uint64(info.Size()))).Msg("recording stopped")

	// Extraction shares the caller's deadline; a hung ffmpeg must not outlive it
	audio, err := m.ExtractAudio(ctx, job.VideoPath)
	if err != nil {
		job.degrade(types.NewDegradation(types.DegradationExtraction, "recording", err))
		return err
	}

	job.mu.Lock()
	job.audioPath = audio
	job.mu.Unlock()
	return nil
}

// terminate asks ffmpeg to finish the file: 'q' on stdin on Windows,
// SIGTERM elsewhere.
func (m *Manager) terminate(proc *capture) error {
	if m.goos == "windows" {
		if _, err := proc.stdin.Write([]byte("q")); err != nil {
			return err
		}
		return proc.stdin.Close()
	}
	return proc.cmd.Process.Signal(syscall.SIGTERM)
}

// AudioPathFor returns the mp3 path that sits next to video.
func AudioPathFor(video string) string {
	return strings.TrimSuffix(video, filepath.Ext(video)) + ".mp3"
}

// ExtractAudio writes the mp3 sibling of video and returns its path. A
// second, encoder-agnostic invocation is tried if the first one fails.
func (m *Manager) ExtractAudio(ctx context.Context, video string) (string, error) {
	if err := m.Available(); err != nil {
		return "", &ExtractionError{VideoPath: video, Err: err}
	}

	audio := AudioPathFor(video)
	m.logger.Info().Str("audio", audio).Msg("extracting audio")

	out, err := m.run(ctx, extractArgs(video, audio, m.cfg.Quality)...)
	if err != nil {
		m.logger.Warn().Err(err).Msg("audio extraction failed, trying alternative method")
		out, err = m.run(ctx, extractFallbackArgs(video, audio)...)
	}
	if err != nil {
		return "", &ExtractionError{VideoPath: video, Output: tail(out, logTailLines), Err: err}
	}

	info, statErr := os.Stat(audio)
	if statErr != nil {
		return "", &ExtractionError{VideoPath: video, Output: tail(out, logTailLines), Err: fmt.Errorf("ffmpeg reported success but produced no file: %w", statErr)}
	}

	m.logger.Info().Str("audio", audio).Str("size", humanize.Bytes(uint64(info.Size()))).Msg("audio extracted")
	return audio, nil
}

func (m *Manager) run(ctx context.Context, args ...string) (string, error) {
	cmd := m.command(ctx, m.ffmpeg, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// probe runs a short-lived helper command with a bounded timeout.
func (m *Manager) probe(ctx context.Context, name string, args ...string) (string, string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := m.command(probeCtx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func tailFile(path string, n int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return tail(string(data), n)
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
