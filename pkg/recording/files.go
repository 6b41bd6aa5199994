package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
)

// DefaultVideoPattern matches capture outputs.
const DefaultVideoPattern = "*.mp4"

// ErrNoRecordings is returned by FindLatest when nothing matches.
var ErrNoRecordings = errors.New("no recordings found")

// FindLatest returns the most recently modified file in dir whose name
// matches pattern.
func FindLatest(dir, pattern string) (string, error) {
	if pattern == "" {
		pattern = DefaultVideoPattern
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var (
		latest   string
		latestAt time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || !g.Match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestAt) {
			latest = filepath.Join(dir, entry.Name())
			latestAt = info.ModTime()
		}
	}

	if latest == "" {
		return "", fmt.Errorf("%w in %s matching %s", ErrNoRecordings, dir, pattern)
	}
	return latest, nil
}
