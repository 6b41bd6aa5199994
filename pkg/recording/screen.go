package recording

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// DefaultVideoSize is used when the screen size cannot be detected.
const DefaultVideoSize = "1920x1080"

var (
	xrandrMode     = regexp.MustCompile(`^\d+x\d+$`)
	profilerResRe  = regexp.MustCompile(`Resolution:\s*(\d+)\s*x\s*(\d+)`)
	videoSizeValid = regexp.MustCompile(`^[1-9]\d*x[1-9]\d*$`)
)

// ValidVideoSize reports whether s has the WxH form ffmpeg expects.
func ValidVideoSize(s string) bool {
	return videoSizeValid.MatchString(s)
}

// parseXrandr finds the current mode, the one marked with '*'.
func parseXrandr(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > 0 && xrandrMode.MatchString(fields[0]) {
			return fields[0], true
		}
	}
	return "", false
}

func parseSystemProfiler(out string) (string, bool) {
	m := profilerResRe.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("%sx%s", m[1], m[2]), true
}

// DetectScreenSize queries the display server for the current resolution.
// On Windows it returns "" so gdigrab captures the whole desktop.
func (m *Manager) DetectScreenSize(ctx context.Context) string {
	var (
		size string
		ok   bool
	)

	switch m.goos {
	case "linux":
		if out, _, err := m.probe(ctx, "xrandr"); err == nil {
			size, ok = parseXrandr(out)
		}
	case "darwin":
		if out, _, err := m.probe(ctx, "system_profiler", "SPDisplaysDataType"); err == nil {
			size, ok = parseSystemProfiler(out)
		}
	case "windows":
		return ""
	}

	if !ok {
		m.logger.Warn().Str("fallback", DefaultVideoSize).Msg("could not detect screen resolution")
		return DefaultVideoSize
	}
	return size
}
