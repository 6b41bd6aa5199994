package main

import (
	"errors"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/entrhq/meetguest/pkg/browser"
	"github.com/entrhq/meetguest/pkg/doctor"
	"github.com/entrhq/meetguest/pkg/recording"
	"github.com/entrhq/meetguest/pkg/runner"
)

func newDoctorCmd(globals *globalFlags) *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this host can join and record meetings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, globals)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("record") {
				cfg.Record = record
			}

			logger := newLogger(cmd, cfg, false)
			defer logger.Close()

			manager := recording.NewManager(cfg.RecordingOptions(), logger.Zerolog())
			controller := browser.NewController(logger.Zerolog())

			checks := doctor.DefaultChecks(doctor.Setup{
				GOOS:     runtime.GOOS,
				Record:   cfg.Record,
				FFmpeg:   cfg.Recording.FFmpeg,
				Detector: manager,
				Driver:   controller.ProbeDriver,
			})

			console := runner.NewConsoleWriter(runner.ParseVerbosity(cfg.Logging.Verbosity), cmd.OutOrStdout())
			console.Section("Preflight checks")
			results := doctor.NewRunner(checks).RunAll(cmd.Context())
			for _, result := range results.Results {
				console.Check(result)
			}

			if !results.AllPassed {
				return &exitError{
					code: runner.ExitFailure,
					err:  errors.New(results.FormatErrorMessage()),
				}
			}
			console.Successf("Ready to join meetings")
			return nil
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "Treat ffmpeg as required")
	return cmd
}
