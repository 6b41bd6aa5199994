package main

import (
	"github.com/spf13/cobra"

	"github.com/entrhq/meetguest/pkg/browser"
	"github.com/entrhq/meetguest/pkg/config"
	"github.com/entrhq/meetguest/pkg/recording"
	"github.com/entrhq/meetguest/pkg/runner"
)

// joinFlags are the flags of the join command and the root alias.
type joinFlags struct {
	record           bool
	requireRecording bool
	duration         int
	recordingDir     string
	screenshotsDir   string
}

func (f *joinFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.BoolVar(&f.record, "record", false, "Record the screen and audio with ffmpeg")
	fs.BoolVar(&f.requireRecording, "require-recording", false, "Fail the run if the recording cannot be made")
	fs.IntVar(&f.duration, "duration", 60, "Minutes to stay in the meeting")
	fs.StringVar(&f.recordingDir, "recording-dir", recording.DefaultDir, "Directory for recordings")
	fs.StringVar(&f.screenshotsDir, "screenshots-dir", "screenshots", "Directory for checkpoint screenshots")
}

// apply copies the flags the user set onto cfg. Unset flags leave the file
// and environment values alone.
func (f *joinFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("record") {
		cfg.Record = f.record
	}
	if fs.Changed("require-recording") {
		cfg.RequireRecording = f.requireRecording
	}
	if fs.Changed("duration") {
		cfg.DurationMinutes = f.duration
	}
	if fs.Changed("recording-dir") {
		cfg.Recording.Dir = f.recordingDir
	}
	if fs.Changed("screenshots-dir") {
		cfg.Diagnostics.ScreenshotsDir = f.screenshotsDir
	}
}

func newJoinCmd(globals *globalFlags) *cobra.Command {
	flags := &joinFlags{}

	cmd := &cobra.Command{
		Use:   "join <address> <name>",
		Short: "Join a meeting as a guest",
		Example: `  meetguest join abc-defg-hij "Jane Doe"
  meetguest join https://meet.google.com/abc-defg-hij "Recorder" --record --duration 30`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, args, globals, flags)
		},
	}
	flags.bind(cmd)
	return cmd
}

// joinConfig builds the validated configuration for a join run.
func joinConfig(cmd *cobra.Command, args []string, globals *globalFlags, flags *joinFlags) (*config.Config, error) {
	cfg, err := loadConfig(cmd, globals)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.Address = args[0]
	}
	if len(args) > 1 {
		cfg.GuestName = args[1]
	}
	flags.apply(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, &exitError{code: runner.ExitFailure, err: err}
	}
	return cfg, nil
}

func runJoin(cmd *cobra.Command, args []string, globals *globalFlags, flags *joinFlags) error {
	cfg, err := joinConfig(cmd, args, globals, flags)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg, true)
	defer logger.Close()
	log := logger.Component("cli")

	controller := browser.NewController(logger.Zerolog())
	controller.SkipInstall(cfg.Browser.SkipInstall)
	defer func() {
		if err := controller.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("failed to stop playwright")
		}
	}()

	r := runner.New(cfg, runner.Deps{
		Browser:  runner.ControllerBrowser{Controller: controller},
		Recorder: recording.NewManager(cfg.RecordingOptions(), logger.Zerolog()),
		Console:  runner.NewConsoleWriter(runner.ParseVerbosity(cfg.Logging.Verbosity), cmd.OutOrStdout()),
		Logger:   logger.Zerolog(),
		RunID:    logger.RunID(),
		LogPath:  logger.LogPath(),
	})

	if _, err := r.Run(cmd.Context()); err != nil {
		return &exitError{code: runner.ExitCode(err), err: err, reported: true}
	}
	return nil
}
