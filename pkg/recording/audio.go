package recording

import (
	"context"
	"strings"
)

// preferredLoopbackNames are substrings of Windows devices that carry the
// system output rather than a microphone.
var preferredLoopbackNames = []string{
	"stereo mix",
	"wave out",
	"audio output",
	"virtual audio",
	"cable output",
	"voicemeeter",
	"audio render",
}

// parsePactlSources returns the first PulseAudio monitor source in the
// output of `pactl list sources`.
func parsePactlSources(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		idx := strings.Index(lower, "name:")
		if idx < 0 || !strings.Contains(lower, "monitor") {
			continue
		}
		name := strings.TrimSpace(line[idx+len("name:"):])
		if name != "" {
			return name, true
		}
	}
	return "", false
}

// parseDshowDevices lists the audio devices in the stderr of
// `ffmpeg -list_devices true -f dshow -i dummy`. Both the sectioned layout
// of older builds and the "(audio)" suffix of newer ones are understood.
func parseDshowDevices(out string) []string {
	var devices []string
	inAudio := false

	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.Contains(line, "DirectShow audio devices"):
			inAudio = true
			continue
		case strings.Contains(line, "DirectShow video devices"):
			inAudio = false
			continue
		}
		if strings.Contains(line, "Alternative name") {
			continue
		}

		name, ok := quoted(line)
		if !ok {
			continue
		}
		if inAudio || strings.HasSuffix(line, "(audio)") {
			devices = append(devices, name)
		}
	}
	return devices
}

// chooseDshowDevice prefers a loopback-looking device, then the first one.
func chooseDshowDevice(devices []string) (string, bool) {
	for _, d := range devices {
		lower := strings.ToLower(d)
		for _, want := range preferredLoopbackNames {
			if strings.Contains(lower, want) {
				return d, true
			}
		}
	}
	if len(devices) > 0 {
		return devices[0], true
	}
	return "", false
}

func quoted(line string) (string, bool) {
	start := strings.Index(line, `"`)
	if start < 0 {
		return "", false
	}
	end := strings.Index(line[start+1:], `"`)
	if end <= 0 {
		return "", false
	}
	return line[start+1 : start+1+end], true
}

// DetectAudioSource resolves the loopback source for the current platform.
// It returns NoAudio when nothing usable is found.
func (m *Manager) DetectAudioSource(ctx context.Context) string {
	switch m.goos {
	case "linux":
		out, _, err := m.probe(ctx, "pactl", "list", "sources")
		if err != nil {
			m.logger.Debug().Err(err).Msg("pactl unavailable, using default pulse source")
			return "default"
		}
		if name, ok := parsePactlSources(out); ok {
			m.logger.Info().Str("source", name).Msg("found PulseAudio monitor source")
			return name
		}
		return "default"

	case "windows":
		// ffmpeg always exits non-zero with the dummy input
		_, stderr, _ := m.probe(ctx, m.ffmpeg, "-hide_banner", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
		devices := parseDshowDevices(stderr)
		if name, ok := chooseDshowDevice(devices); ok {
			m.logger.Info().Strs("devices", devices).Str("source", name).Msg("selected DirectShow audio device")
			return name
		}
		m.logger.Warn().Msg("no DirectShow audio device found")
		return NoAudio

	case "darwin":
		return "0"
	}

	return NoAudio
}
