package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/entrhq/meetguest/pkg/recording"
)

// Detector resolves the capture inputs for this host.
type Detector interface {
	DetectAudioSource(ctx context.Context) string
	DetectScreenSize(ctx context.Context) string
}

// DriverProbe starts and stops the browser automation driver.
type DriverProbe func(ctx context.Context) error

// Setup describes the host checks to build.
type Setup struct {
	GOOS      string
	Record    bool
	FFmpeg    string
	Detector  Detector
	Driver    DriverProbe
	Attempts  uint
	RetryWait time.Duration
}

// ErrNoAudioSource is reported when no loopback device was found.
var ErrNoAudioSource = errors.New("no audio source found, recordings will be video-only")

// DefaultChecks returns the checks for a host. ffmpeg and the driver are
// required; ffmpeg only when recording is enabled.
func DefaultChecks(s Setup) []Check {
	if s.FFmpeg == "" {
		s.FFmpeg = "ffmpeg"
	}

	checks := []Check{
		NewCommandCheck("ffmpeg", s.Record, s.FFmpeg, "-hide_banner", "-version"),
	}

	if s.GOOS == "linux" {
		checks = append(checks, NewCommandCheck("pactl", false, "pactl", "info"))
	}

	if s.Detector != nil {
		checks = append(checks,
			NewFuncCheck("audio source", false, func(ctx context.Context) (string, error) {
				source := s.Detector.DetectAudioSource(ctx)
				if source == recording.NoAudio {
					return "", ErrNoAudioSource
				}
				return source, nil
			}),
			NewFuncCheck("screen size", false, func(ctx context.Context) (string, error) {
				size := s.Detector.DetectScreenSize(ctx)
				if size == "" {
					return "full desktop", nil
				}
				return size, nil
			}),
		)
	}

	if s.Driver != nil {
		checks = append(checks, NewFuncCheck("playwright driver", true, driverCheck(s)))
	}

	return checks
}

func driverCheck(s Setup) func(ctx context.Context) (string, error) {
	attempts := s.Attempts
	if attempts == 0 {
		attempts = 3
	}
	wait := s.RetryWait
	if wait == 0 {
		wait = time.Second
	}

	return func(ctx context.Context) (string, error) {
		err := retry.Do(
			func() error { return s.Driver(ctx) },
			retry.Context(ctx),
			retry.Attempts(attempts),
			retry.Delay(wait),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			return "", fmt.Errorf("driver did not start after %d attempts: %w", attempts, err)
		}
		return "chromium driver ready", nil
	}
}
