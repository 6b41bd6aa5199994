// Package diagnostics captures numbered visual checkpoints of the browser
// session. Capture never fails the caller: errors are logged and recorded
// on the returned Checkpoint.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Screenshotter is the part of a browser page the sink needs.
type Screenshotter interface {
	Screenshot(ctx context.Context, path string) error
}

// Checkpoint is one captured snapshot. Checkpoints are append-only.
type Checkpoint struct {
	Seq       int       `json:"seq"`
	Label     string    `json:"label"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Err       string    `json:"error,omitempty"`
}

// Sink writes checkpoints as <dir>/NN-label.png.
type Sink struct {
	mu          sync.Mutex
	dir         string
	enabled     bool
	seq         int
	checkpoints []Checkpoint
	logger      zerolog.Logger
}

// NewSink creates a sink writing into dir. A disabled sink still numbers
// and records checkpoints but never touches the filesystem.
func NewSink(dir string, enabled bool, logger zerolog.Logger) *Sink {
	return &Sink{
		dir:     dir,
		enabled: enabled,
		logger:  logger.With().Str("component", "diagnostics").Logger(),
	}
}

// Capture takes a screenshot of page labelled label.
func (s *Sink) Capture(ctx context.Context, page Screenshotter, label string) Checkpoint {
	s.mu.Lock()
	s.seq++
	cp := Checkpoint{
		Seq:       s.seq,
		Label:     sanitizeLabel(label),
		Timestamp: time.Now(),
	}
	s.mu.Unlock()

	if s.enabled {
		cp.Path = filepath.Join(s.dir, fmt.Sprintf("%02d-%s.png", cp.Seq, cp.Label))
		if err := s.write(ctx, page, cp.Path); err != nil {
			cp.Err = err.Error()
			s.logger.Warn().Err(err).Int("seq", cp.Seq).Str("label", cp.Label).Msg("checkpoint capture failed")
		} else {
			s.logger.Debug().Int("seq", cp.Seq).Str("path", cp.Path).Msg("checkpoint captured")
		}
	}

	s.mu.Lock()
	s.checkpoints = append(s.checkpoints, cp)
	s.mu.Unlock()

	return cp
}

func (s *Sink) write(ctx context.Context, page Screenshotter, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("screenshot panicked: %v", r)
		}
	}()

	if page == nil {
		return fmt.Errorf("no page to capture")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create screenshots directory: %w", err)
	}
	return page.Screenshot(ctx, path)
}

// Checkpoints returns a copy of every checkpoint captured so far.
func (s *Sink) Checkpoints() []Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Checkpoint, len(s.checkpoints))
	copy(out, s.checkpoints)
	return out
}

// Dir returns the screenshots directory.
func (s *Sink) Dir() string {
	return s.dir
}

func sanitizeLabel(label string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
	}

	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "checkpoint"
	}
	return out
}
