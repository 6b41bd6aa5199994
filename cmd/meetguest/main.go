// Package main provides meetguest, which joins a Google Meet call as an
// unauthenticated guest, optionally records it with ffmpeg, and leaves after
// a fixed time or when the meeting ends.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/meetguest/pkg/runner"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error

	// reported is set when the error was already shown to the user
	reported bool
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return runner.ExitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if !exitErr.reported {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.err)
		}
		return exitErr.code
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return runner.ExitFailure
}
