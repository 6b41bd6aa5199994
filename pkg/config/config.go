// Package config holds the run configuration. Values come from, in order of
// precedence: command-line flags, MEETGUEST_* environment variables (a .env
// file is honoured), a YAML file and finally DefaultConfig.
package config

import (
	"fmt"
	"time"

	"github.com/entrhq/meetguest/pkg/browser"
	"github.com/entrhq/meetguest/pkg/join"
	"github.com/entrhq/meetguest/pkg/recording"
	"github.com/entrhq/meetguest/pkg/strategy"
)

// Config represents the configuration for one guest run
type Config struct {
	// Meeting address, a full URL or a bare meeting code
	Address string `yaml:"address" json:"address"`

	// Display name typed into the lobby
	GuestName string `yaml:"guest_name" json:"guest_name" split_words:"true"`

	// Debug runs a visible browser with debug logging
	Debug bool `yaml:"debug" json:"debug"`

	// Recording switches
	Record           bool `yaml:"record" json:"record"`
	RequireRecording bool `yaml:"require_recording" json:"require_recording" split_words:"true"` // Capture failure becomes fatal

	// In-meeting wait before leaving voluntarily
	DurationMinutes int `yaml:"duration_minutes" json:"duration_minutes" split_words:"true"`

	Browser     BrowserConfig     `yaml:"browser" json:"browser"`
	Strategy    StrategyConfig    `yaml:"strategy" json:"strategy"`
	Join        JoinConfig        `yaml:"join" json:"join"`
	Admission   AdmissionConfig   `yaml:"admission" json:"admission"`
	Presence    PresenceConfig    `yaml:"presence" json:"presence"`
	Recording   RecordingConfig   `yaml:"recording" json:"recording"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" json:"diagnostics"`
	Artifacts   ArtifactConfig    `yaml:"artifacts" json:"artifacts"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// BrowserConfig configures the Chromium session
type BrowserConfig struct {
	Headless            bool   `yaml:"headless" json:"headless"`
	UserAgent           string `yaml:"user_agent" json:"user_agent" split_words:"true"`
	ViewportWidth       int    `yaml:"viewport_width" json:"viewport_width" split_words:"true"`
	ViewportHeight      int    `yaml:"viewport_height" json:"viewport_height" split_words:"true"`
	TimeoutMS           int    `yaml:"timeout_ms" json:"timeout_ms" split_words:"true"`
	NavigationTimeoutMS int    `yaml:"navigation_timeout_ms" json:"navigation_timeout_ms" split_words:"true"`
	SkipInstall         bool   `yaml:"skip_install" json:"skip_install" split_words:"true"` // Do not download the driver and browser on first run
}

// StrategyConfig configures the strategy executor timings
type StrategyConfig struct {
	SettleMS         int `yaml:"settle_ms" json:"settle_ms" split_words:"true"`
	MaxWaitMS        int `yaml:"max_wait_ms" json:"max_wait_ms" split_words:"true"`
	KeystrokeDelayMS int `yaml:"keystroke_delay_ms" json:"keystroke_delay_ms" split_words:"true"`
}

// JoinConfig toggles the lobby helpers
type JoinConfig struct {
	DismissPopups bool `yaml:"dismiss_popups" json:"dismiss_popups" split_words:"true"`
	DumpButtons   bool `yaml:"dump_buttons" json:"dump_buttons" split_words:"true"`
}

// AdmissionConfig is the admission detection predicate. Selectors may use
// the xpath= prefix.
type AdmissionConfig struct {
	TimeoutSeconds      int      `yaml:"timeout_seconds" json:"timeout_seconds" split_words:"true"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds" json:"poll_interval_seconds" split_words:"true"`
	Indicators          []string `yaml:"indicators" json:"indicators" ignored:"true"` // Selectors contain commas, so YAML only
	Texts               []string `yaml:"texts" json:"texts"`
	WaitingTexts        []string `yaml:"waiting_texts" json:"waiting_texts" split_words:"true"`
	URLExcludes         []string `yaml:"url_excludes" json:"url_excludes" split_words:"true"`
}

// PresenceConfig configures the in-meeting loop
type PresenceConfig struct {
	PollIntervalSeconds int      `yaml:"poll_interval_seconds" json:"poll_interval_seconds" split_words:"true"`
	EndPhrases          []string `yaml:"end_phrases" json:"end_phrases" split_words:"true"`
	MaxReadFailures     int      `yaml:"max_read_failures" json:"max_read_failures" split_words:"true"` // Consecutive unreadable polls before giving up
}

// RecordingConfig configures the ffmpeg capture
type RecordingConfig struct {
	FFmpeg       string `yaml:"ffmpeg" json:"ffmpeg"`
	Dir          string `yaml:"dir" json:"dir"`
	Framerate    int    `yaml:"framerate" json:"framerate"`
	CRF          int    `yaml:"crf" json:"crf"`
	Preset       string `yaml:"preset" json:"preset"`
	AudioBitrate string `yaml:"audio_bitrate" json:"audio_bitrate" split_words:"true"`
	Display      string `yaml:"display" json:"display"`

	// AudioSource is empty to auto-detect, "none" for video only
	AudioSource string `yaml:"audio_source" json:"audio_source" split_words:"true"`

	// VideoSize is WxH, empty to auto-detect
	VideoSize string `yaml:"video_size" json:"video_size" split_words:"true"`

	// Quality is the mp3 VBR quality, 0-9
	Quality int `yaml:"quality" json:"quality"`

	StopGraceSeconds       int `yaml:"stop_grace_seconds" json:"stop_grace_seconds" split_words:"true"`
	StartProbeMS           int `yaml:"start_probe_ms" json:"start_probe_ms" split_words:"true"`
	MonitorIntervalSeconds int `yaml:"monitor_interval_seconds" json:"monitor_interval_seconds" split_words:"true"`
}

// DiagnosticsConfig configures checkpoint screenshots
type DiagnosticsConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	ScreenshotsDir string `yaml:"screenshots_dir" json:"screenshots_dir" split_words:"true"`
}

// ArtifactConfig defines run report generation
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir" split_words:"true"`

	// Individual format flags
	JSON     bool `yaml:"json" json:"json"`
	Markdown bool `yaml:"markdown" json:"markdown"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`

	// Dir holds the per-run log files, ~/.meetguest/logs when empty
	Dir string `yaml:"dir" json:"dir"`

	// File disables the log file when false
	File bool `yaml:"file" json:"file"`
}

// Validate validates the configuration and fills derived values
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("meeting address is required")
	}
	normalized, err := browser.NormalizeAddress(c.Address)
	if err != nil {
		return err
	}
	c.Address = normalized

	if c.GuestName == "" {
		return fmt.Errorf("guest name is required")
	}

	if c.DurationMinutes <= 0 {
		return fmt.Errorf("duration_minutes must be positive")
	}

	if c.Strategy.SettleMS < 0 {
		return fmt.Errorf("settle_ms cannot be negative")
	}
	if c.Strategy.MaxWaitMS <= 0 {
		return fmt.Errorf("max_wait_ms must be positive")
	}
	if c.Strategy.KeystrokeDelayMS < 0 {
		return fmt.Errorf("keystroke_delay_ms cannot be negative")
	}

	if c.Admission.TimeoutSeconds <= 0 {
		return fmt.Errorf("admission timeout_seconds must be positive")
	}
	if c.Admission.PollIntervalSeconds <= 0 {
		return fmt.Errorf("admission poll_interval_seconds must be positive")
	}
	if len(c.Admission.Indicators) == 0 && len(c.Admission.Texts) == 0 {
		return fmt.Errorf("admission needs at least one indicator or text")
	}
	if c.Presence.PollIntervalSeconds <= 0 {
		return fmt.Errorf("presence poll_interval_seconds must be positive")
	}

	if c.Recording.VideoSize != "" && !recording.ValidVideoSize(c.Recording.VideoSize) {
		return fmt.Errorf("invalid recording video_size: %s (must be WIDTHxHEIGHT)", c.Recording.VideoSize)
	}
	if c.Recording.Quality < 0 || c.Recording.Quality > 9 {
		return fmt.Errorf("recording quality must be between 0 and 9")
	}
	if c.Recording.StopGraceSeconds < 0 {
		return fmt.Errorf("stop_grace_seconds cannot be negative")
	}

	// A mandatory recording is a recording
	if c.RequireRecording {
		c.Record = true
	}

	if c.Debug {
		c.Browser.Headless = false
		c.Join.DumpButtons = true
		c.Logging.Verbosity = "debug"
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	// Validate log level
	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		DurationMinutes: 60,
		Browser: BrowserConfig{
			Headless:            true,
			UserAgent:           browser.DefaultUserAgent,
			ViewportWidth:       browser.DefaultViewportWidth,
			ViewportHeight:      browser.DefaultViewportHeight,
			TimeoutMS:           int(browser.DefaultTimeout / time.Millisecond),
			NavigationTimeoutMS: int(browser.DefaultNavigationTimeout / time.Millisecond),
		},
		Strategy: StrategyConfig{
			SettleMS:         int(strategy.DefaultSettle / time.Millisecond),
			MaxWaitMS:        int(strategy.DefaultMaxWait / time.Millisecond),
			KeystrokeDelayMS: int(join.DefaultKeystrokeDelay / time.Millisecond),
		},
		Join: JoinConfig{
			DismissPopups: true,
		},
		Admission: AdmissionConfig{
			TimeoutSeconds:      int(join.DefaultAdmissionTimeout / time.Second),
			PollIntervalSeconds: int(join.DefaultAdmissionPollInterval / time.Second),
			Indicators:          join.DefaultAdmissionIndicators(),
			Texts:               join.DefaultAdmissionTexts(),
			WaitingTexts:        join.DefaultWaitingTexts(),
		},
		Presence: PresenceConfig{
			PollIntervalSeconds: int(join.DefaultPresencePollInterval / time.Second),
			EndPhrases:          join.DefaultEndPhrases(),
			MaxReadFailures:     join.DefaultPresenceReadFailures,
		},
		Recording: RecordingConfig{
			FFmpeg:                 "ffmpeg",
			Dir:                    recording.DefaultDir,
			Framerate:              recording.DefaultFramerate,
			CRF:                    recording.DefaultCRF,
			Preset:                 recording.DefaultPreset,
			AudioBitrate:           recording.DefaultAudioBitrate,
			Display:                recording.DefaultDisplay,
			Quality:                recording.DefaultQuality,
			StopGraceSeconds:       int(recording.DefaultStopGrace / time.Second),
			StartProbeMS:           int(recording.DefaultStartProbe / time.Millisecond),
			MonitorIntervalSeconds: int(recording.DefaultMonitorInterval / time.Second),
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:        true,
			ScreenshotsDir: "screenshots",
		},
		Artifacts: ArtifactConfig{
			Enabled:   true,
			OutputDir: ".meetguest/runs",
			JSON:      true,
			Markdown:  true,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
			File:      true,
		},
	}
}

// Duration is the in-meeting wait.
func (c *Config) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// BrowserOptions maps the configuration onto session options.
func (c *Config) BrowserOptions() browser.Options {
	return browser.Options{
		Address:   c.Address,
		GuestName: c.GuestName,
		Headless:  c.Browser.Headless,
		Viewport: &browser.Viewport{
			Width:  c.Browser.ViewportWidth,
			Height: c.Browser.ViewportHeight,
		},
		UserAgent:         c.Browser.UserAgent,
		Timeout:           ms(c.Browser.TimeoutMS),
		NavigationTimeout: ms(c.Browser.NavigationTimeoutMS),
	}
}

// StrategyOptions maps the configuration onto executor timings.
func (c *Config) StrategyOptions() strategy.Options {
	return strategy.Options{
		Settle:  ms(c.Strategy.SettleMS),
		MaxWait: ms(c.Strategy.MaxWaitMS),
	}
}

// JoinOptions maps the configuration onto the join flow options.
func (c *Config) JoinOptions() join.Options {
	return join.Options{
		GuestName:      c.GuestName,
		KeystrokeDelay: ms(c.Strategy.KeystrokeDelayMS),
		DismissPopups:  c.Join.DismissPopups,
		DumpButtons:    c.Join.DumpButtons,
		Admission: join.AdmissionOptions{
			Timeout:      seconds(c.Admission.TimeoutSeconds),
			PollInterval: seconds(c.Admission.PollIntervalSeconds),
			Indicators:   c.Admission.Indicators,
			Texts:        c.Admission.Texts,
			WaitingTexts: c.Admission.WaitingTexts,
			URLExcludes:  c.Admission.URLExcludes,
		},
		Presence: join.PresenceOptions{
			PollInterval:    seconds(c.Presence.PollIntervalSeconds),
			EndPhrases:      c.Presence.EndPhrases,
			MaxReadFailures: c.Presence.MaxReadFailures,
		},
	}
}

// RecordingOptions maps the configuration onto the capture settings.
func (c *Config) RecordingOptions() recording.Config {
	return recording.Config{
		FFmpeg:       c.Recording.FFmpeg,
		Dir:          c.Recording.Dir,
		Framerate:    c.Recording.Framerate,
		CRF:          c.Recording.CRF,
		Preset:       c.Recording.Preset,
		AudioBitrate: c.Recording.AudioBitrate,
		Display:      c.Recording.Display,
		AudioSource:  c.Recording.AudioSource,
		VideoSize:    c.Recording.VideoSize,
		Quality:      c.Recording.Quality,
		StopGrace:    seconds(c.Recording.StopGraceSeconds),
		StartProbe:   ms(c.Recording.StartProbeMS),
	}
}

// MonitorInterval is how often a running recording is reported on.
func (c *Config) MonitorInterval() time.Duration {
	return seconds(c.Recording.MonitorIntervalSeconds)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
