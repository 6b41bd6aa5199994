package browser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// MeetBaseURL is the prefix prepended to bare meeting codes.
const MeetBaseURL = "https://meet.google.com/"

var meetingCodePattern = regexp.MustCompile(`^[a-z]{3}-[a-z]{4}-[a-z]{3}$`)

// NormalizeAddress turns a bare meeting code such as "abc-defg-hij" into its
// canonical meeting URL. Full http(s) URLs are returned unchanged.
func NormalizeAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", fmt.Errorf("meeting address is required")
	}

	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		if _, err := url.Parse(trimmed); err != nil {
			return "", fmt.Errorf("invalid meeting URL %q: %w", trimmed, err)
		}
		return trimmed, nil
	}

	code := strings.ToLower(trimmed)
	if !meetingCodePattern.MatchString(code) {
		return "", fmt.Errorf("invalid meeting address %q: expected a URL or a code like abc-defg-hij", trimmed)
	}

	return MeetBaseURL + code, nil
}

// MeetingName derives a filesystem-friendly name from a meeting address,
// used as the prefix of recording files.
func MeetingName(address string) string {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		normalized = address
	}

	name := normalized
	if u, parseErr := url.Parse(normalized); parseErr == nil {
		if p := strings.Trim(u.Path, "/"); p != "" {
			name = p
		} else if u.Host != "" {
			name = u.Hostname()
		}
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	if b.Len() == 0 {
		return "meeting"
	}
	return b.String()
}
