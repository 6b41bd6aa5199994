package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/meetguest/pkg/config"
	"github.com/entrhq/meetguest/pkg/logging"
	"github.com/entrhq/meetguest/pkg/runner"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	verbosity  string
	debug      bool
}

func newRootCmd() *cobra.Command {
	globals := &globalFlags{}
	joinOpts := &joinFlags{}

	rootCmd := &cobra.Command{
		Use:   "meetguest [address] [name]",
		Short: "Join a Google Meet call as a guest",
		Long: `meetguest joins a Google Meet call as an unauthenticated guest, waits to be
admitted, optionally records the screen and audio with ffmpeg, and leaves after
the configured duration or when the meeting ends.

Running meetguest with an address and a name is the same as "meetguest join".`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runJoin(cmd, args, globals, joinOpts)
		},
	}

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("meetguest {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globals.configPath, "config", "", "Path to a YAML configuration file")
	pf.StringVar(&globals.verbosity, "verbosity", "", "Output verbosity: quiet, normal, verbose or debug")
	pf.BoolVar(&globals.debug, "debug", false, "Visible browser and debug logging")

	joinOpts.bind(rootCmd)

	rootCmd.AddCommand(newJoinCmd(globals))
	rootCmd.AddCommand(newDoctorCmd(globals))
	rootCmd.AddCommand(newExtractAudioCmd(globals))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// loadConfig reads the file and environment layers, then the global flags.
func loadConfig(cmd *cobra.Command, globals *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(globals.configPath)
	if err != nil {
		return nil, &exitError{code: runner.ExitFailure, err: err}
	}

	if cmd.Flags().Changed("debug") {
		cfg.Debug = globals.debug
	}
	if cmd.Flags().Changed("verbosity") {
		cfg.Logging.Verbosity = globals.verbosity
	}
	return cfg, nil
}

// newLogger opens the run logger, writing the console side to stderr.
func newLogger(cmd *cobra.Command, cfg *config.Config, withFile bool) *logging.Logger {
	logger, err := logging.New(logging.Options{
		Dir:       cfg.Logging.Dir,
		NoFile:    !withFile || !cfg.Logging.File,
		Verbosity: cfg.Logging.Verbosity,
		Console:   cmd.ErrOrStderr(),
	})
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
	return logger
}
