package doctor

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/meetguest/pkg/recording"
)

func passing(name string, required bool) Check {
	return NewFuncCheck(name, required, func(context.Context) (string, error) { return "ok", nil })
}

func failing(name string, required bool) Check {
	return NewFuncCheck(name, required, func(context.Context) (string, error) { return "", errors.New("boom") })
}

func TestRunner_RunAll(t *testing.T) {
	tests := []struct {
		name          string
		checks        []Check
		wantAllPassed bool
		wantFailedLen int
	}{
		{
			name:          "no checks",
			checks:        []Check{},
			wantAllPassed: true,
		},
		{
			name:          "all checks pass",
			checks:        []Check{passing("a", true), passing("b", false)},
			wantAllPassed: true,
		},
		{
			name:          "required check fails",
			checks:        []Check{passing("a", false), failing("b", true)},
			wantAllPassed: false,
			wantFailedLen: 1,
		},
		{
			name:          "optional check fails",
			checks:        []Check{passing("a", true), failing("b", false)},
			wantAllPassed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := NewRunner(tt.checks).RunAll(context.Background())

			assert.Equal(t, tt.wantAllPassed, results.AllPassed)
			assert.Len(t, results.GetFailedChecks(), tt.wantFailedLen)
			assert.Len(t, results.Results, len(tt.checks))
		})
	}
}

func TestResults_FormatErrorMessage(t *testing.T) {
	results := NewRunner([]Check{failing("ffmpeg", true), failing("pactl", false)}).RunAll(context.Background())

	msg := results.FormatErrorMessage()
	assert.Contains(t, msg, "ffmpeg")
	assert.Contains(t, msg, "boom")
	assert.NotContains(t, msg, "pactl")

	ok := NewRunner([]Check{passing("ffmpeg", true)}).RunAll(context.Background())
	assert.Empty(t, ok.FormatErrorMessage())
}

func TestCommandCheck(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)

	check := NewCommandCheck("self", true, self, "-test.run=^$")
	_, err = check.Execute(context.Background())
	assert.NoError(t, err)

	missing := NewCommandCheck("missing", true, "meetguest-no-such-tool")
	_, err = missing.Execute(context.Background())
	var checkErr *CheckError
	require.ErrorAs(t, err, &checkErr)
	assert.Equal(t, "missing", checkErr.Check)
	assert.Equal(t, "meetguest-no-such-tool", checkErr.Command)

	_, err = NewCommandCheck("empty", true).Execute(context.Background())
	assert.Error(t, err)
}

type fakeDetector struct {
	audio, screen string
}

func (f fakeDetector) DetectAudioSource(context.Context) string { return f.audio }
func (f fakeDetector) DetectScreenSize(context.Context) string  { return f.screen }

func names(checks []Check) []string {
	out := make([]string, len(checks))
	for i, c := range checks {
		out[i] = c.Name()
	}
	return out
}

func TestDefaultChecks(t *testing.T) {
	driver := func(context.Context) error { return nil }

	linux := DefaultChecks(Setup{GOOS: "linux", Record: true, Detector: fakeDetector{}, Driver: driver})
	assert.Equal(t, []string{"ffmpeg", "pactl", "audio source", "screen size", "playwright driver"}, names(linux))
	assert.True(t, linux[0].Required(), "ffmpeg is required when recording")

	darwin := DefaultChecks(Setup{GOOS: "darwin", Driver: driver})
	assert.Equal(t, []string{"ffmpeg", "playwright driver"}, names(darwin))
	assert.False(t, darwin[0].Required())
	assert.True(t, darwin[1].Required())
}

func TestDefaultChecks_Detection(t *testing.T) {
	checks := DefaultChecks(Setup{GOOS: "windows", Detector: fakeDetector{audio: recording.NoAudio, screen: ""}})
	require.Len(t, checks, 3)

	_, err := checks[1].Execute(context.Background())
	assert.ErrorIs(t, err, ErrNoAudioSource)
	assert.False(t, checks[1].Required())

	detail, err := checks[2].Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "full desktop", detail)

	checks = DefaultChecks(Setup{GOOS: "linux", Detector: fakeDetector{audio: "alsa_output.monitor", screen: "2560x1440"}})
	detail, err = checks[2].Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alsa_output.monitor", detail)
	detail, err = checks[3].Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2560x1440", detail)
}

func TestDriverCheck_Retries(t *testing.T) {
	calls := 0
	driver := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("driver not ready")
		}
		return nil
	}

	checks := DefaultChecks(Setup{GOOS: "darwin", Driver: driver, Attempts: 3, RetryWait: time.Millisecond})
	detail, err := checks[1].Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.NotEmpty(t, detail)
}

func TestDriverCheck_GivesUp(t *testing.T) {
	calls := 0
	driver := func(context.Context) error {
		calls++
		return errors.New("please install the driver")
	}

	checks := DefaultChecks(Setup{GOOS: "darwin", Driver: driver, Attempts: 2, RetryWait: time.Millisecond})
	_, err := checks[1].Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "please install the driver")
}
