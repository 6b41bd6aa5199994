package recording

import (
	"errors"
	"fmt"
)

// ErrFFmpegNotFound is wrapped by StartError when no ffmpeg binary is on PATH.
var ErrFFmpegNotFound = errors.New("ffmpeg not found in PATH")

// StartError reports that the capture process could not be brought up.
type StartError struct {
	Stage string // lookup, prepare, backend, spawn or probe
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("recording failed to start (%s): %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *StartError) Unwrap() error {
	return e.Err
}

// ExtractionError reports that no audio could be extracted from a finished
// recording. The video file is left in place.
type ExtractionError struct {
	VideoPath string
	Output    string
	Err       error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("audio extraction from %s failed: %v", e.VideoPath, e.Err)
	if e.Output != "" {
		msg += "\nOutput:\n" + e.Output
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ExtractionError) Unwrap() error {
	return e.Err
}
