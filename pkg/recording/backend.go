package recording

import (
	"fmt"
	"strconv"
)

// NoAudio is the audio source descriptor of a video-only capture.
const NoAudio = "none"

// captureParams holds everything the per-OS argument builders need.
type captureParams struct {
	Framerate    int
	VideoSize    string // WxH, empty to let the grabber decide
	Display      string // X11 display, Linux only
	AudioSource  string // NoAudio or empty for video-only
	Preset       string
	CRF          int
	AudioBitrate string
	Output       string
}

func (p captureParams) hasAudio() bool {
	return p.AudioSource != "" && p.AudioSource != NoAudio
}

// captureArgs builds the ffmpeg arguments for goos.
func captureArgs(goos string, p captureParams) ([]string, error) {
	var args []string

	switch goos {
	case "linux":
		args = append(args, "-f", "x11grab", "-framerate", strconv.Itoa(p.Framerate))
		if p.VideoSize != "" {
			args = append(args, "-video_size", p.VideoSize)
		}
		args = append(args, "-i", p.Display)
		if p.hasAudio() {
			args = append(args, "-f", "pulse", "-i", p.AudioSource)
		}

	case "windows":
		args = append(args, "-f", "gdigrab", "-framerate", strconv.Itoa(p.Framerate))
		if p.VideoSize != "" {
			args = append(args, "-video_size", p.VideoSize)
		}
		args = append(args, "-i", "desktop")
		if p.hasAudio() {
			args = append(args, "-f", "dshow", "-i", "audio="+p.AudioSource)
		}

	case "darwin":
		args = append(args, "-f", "avfoundation", "-framerate", strconv.Itoa(p.Framerate))
		if p.VideoSize != "" {
			args = append(args, "-video_size", p.VideoSize)
		}
		input := "1:none"
		if p.hasAudio() {
			input = "1:" + p.AudioSource
		}
		args = append(args, "-i", input)

	default:
		return nil, fmt.Errorf("screen capture is not supported on %s", goos)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.CRF),
		"-pix_fmt", "yuv420p",
	)
	if p.hasAudio() {
		args = append(args, "-c:a", "aac", "-b:a", p.AudioBitrate)
	}
	return append(args, "-y", p.Output), nil
}

// extractArgs is the primary mp3 extraction.
func extractArgs(video, audio string, quality int) []string {
	return []string{"-i", video, "-vn", "-acodec", "libmp3lame", "-q:a", strconv.Itoa(quality), "-y", audio}
}

// extractFallbackArgs lets ffmpeg pick the encoder from the output extension
// with fixed stereo parameters.
func extractFallbackArgs(video, audio string) []string {
	return []string{"-i", video, "-vn", "-ar", "44100", "-ac", "2", "-b:a", "192k", "-y", audio}
}
