// Package logging sets up the per-run zerolog logger. Every run writes a
// debug log to <dir>/<run-id>-meetguest.log and mirrors entries at the
// configured verbosity to the console.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options controls where a Logger writes.
type Options struct {
	// Dir holds the log files. Empty means ~/.meetguest/logs.
	Dir string
	// File overrides the log file path entirely.
	File string
	// NoFile logs to the console only.
	NoFile bool
	// Verbosity is one of quiet, normal, verbose or debug.
	Verbosity string
	// Console receives human-readable output. Defaults to stderr.
	Console io.Writer
	// NoColor disables ANSI colors on the console writer.
	NoColor bool
}

// Logger owns the run's log file and the zerolog logger writing to it.
type Logger struct {
	runID     string
	file      *os.File
	logger    zerolog.Logger
	logPath   string
	closeOnce sync.Once
}

var (
	runID     string
	runIDOnce sync.Once
)

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// DefaultDir returns ~/.meetguest/logs.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".meetguest", "logs"), nil
}

// LevelFor maps a verbosity name to the console level.
func LevelFor(verbosity string) zerolog.Level {
	switch strings.ToLower(verbosity) {
	case "quiet":
		return zerolog.WarnLevel
	case "verbose", "debug":
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates the run logger.
//
// If the log file cannot be created, the returned Logger writes to the
// console only and the error is returned alongside it so callers can warn.
func New(opts Options) (*Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	consoleWriter := &levelFilter{
		w: zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		},
		min: LevelFor(opts.Verbosity),
	}

	id := getRunID()
	if opts.NoFile {
		return &Logger{runID: id, logger: newZerolog(consoleWriter, id)}, nil
	}

	path, file, err := openLogFile(opts, id)
	if err != nil {
		l := &Logger{
			runID:  id,
			logger: newZerolog(consoleWriter, id),
		}
		l.logger.Warn().Err(err).Msg("file logging unavailable, logging to console only")
		return l, err
	}

	return &Logger{
		runID:   id,
		file:    file,
		logPath: path,
		logger:  newZerolog(zerolog.MultiLevelWriter(file, consoleWriter), id),
	}, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{runID: getRunID(), logger: zerolog.Nop()}
}

func newZerolog(w io.Writer, id string) zerolog.Logger {
	return zerolog.New(w).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Str("run_id", id).
		Logger()
}

func openLogFile(opts Options, id string) (string, *os.File, error) {
	path := opts.File
	if path == "" {
		dir := opts.Dir
		if dir == "" {
			var err error
			if dir, err = DefaultDir(); err != nil {
				return "", nil, err
			}
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-meetguest.log", id))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return path, file, nil
}

// Zerolog returns the root logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

// RunID returns the identifier shared by every logger in this process.
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the path to the log file, or "" in console-only mode.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetRunID returns the process-wide run ID.
func GetRunID() string {
	return getRunID()
}

// levelFilter drops entries below min before they reach w.
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f *levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f *levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}
