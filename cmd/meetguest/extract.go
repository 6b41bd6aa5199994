package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/entrhq/meetguest/pkg/recording"
	"github.com/entrhq/meetguest/pkg/runner"
)

func newExtractAudioCmd(globals *globalFlags) *cobra.Command {
	var (
		latest  bool
		dir     string
		quality int
	)

	cmd := &cobra.Command{
		Use:   "extract-audio [video]",
		Short: "Extract the mp3 track of a recording",
		Example: `  meetguest extract-audio recordings/standup-20240102-090000.mp4
  meetguest extract-audio --latest --dir recordings --quality 2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if latest == (len(args) == 1) {
				return &exitError{code: runner.ExitFailure, err: fmt.Errorf("pass either a video path or --latest")}
			}

			cfg, err := loadConfig(cmd, globals)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dir") {
				cfg.Recording.Dir = dir
			}
			if cmd.Flags().Changed("quality") {
				cfg.Recording.Quality = quality
			}
			if cfg.Recording.Quality < 0 || cfg.Recording.Quality > 9 {
				return &exitError{code: runner.ExitFailure, err: fmt.Errorf("quality must be between 0 and 9, got %d", cfg.Recording.Quality)}
			}

			video := ""
			if latest {
				video, err = recording.FindLatest(cfg.Recording.Dir, recording.DefaultVideoPattern)
				if err != nil {
					return &exitError{code: runner.ExitFailure, err: err}
				}
			} else {
				video = args[0]
				if _, err := os.Stat(video); err != nil {
					return &exitError{code: runner.ExitFailure, err: fmt.Errorf("video not found: %w", err)}
				}
			}

			logger := newLogger(cmd, cfg, false)
			defer logger.Close()

			console := runner.NewConsoleWriter(runner.ParseVerbosity(cfg.Logging.Verbosity), cmd.OutOrStdout())
			console.Step(fmt.Sprintf("Extracting audio from %s", video))

			manager := recording.NewManager(cfg.RecordingOptions(), logger.Zerolog())
			audio, err := manager.ExtractAudio(cmd.Context(), video)
			if err != nil {
				return &exitError{code: runner.ExitFailure, err: err}
			}

			size := ""
			if info, statErr := os.Stat(audio); statErr == nil {
				size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
			}
			console.Successf("Audio written to %s%s", audio, size)
			return nil
		},
	}

	cmd.Flags().BoolVar(&latest, "latest", false, "Use the most recent recording in --dir")
	cmd.Flags().StringVar(&dir, "dir", recording.DefaultDir, "Recordings directory")
	cmd.Flags().IntVar(&quality, "quality", recording.DefaultQuality, "mp3 VBR quality, 0 (best) to 9")
	return cmd
}
