package recording

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/entrhq/meetguest/pkg/types"
)

// JobState is the lifecycle state of a capture job.
type JobState string

const (
	JobNotStarted JobState = "not_started"
	JobRunning    JobState = "running"
	JobStopped    JobState = "stopped"
	JobFailed     JobState = "failed"
)

// Job is one capture process and the files it produces.
type Job struct {
	VideoPath   string    `json:"video_path"`
	LogPath     string    `json:"log_path"`
	AudioSource string    `json:"audio_source"`
	VideoSize   string    `json:"video_size,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Args        []string  `json:"args"`

	mu           sync.Mutex
	state        JobState
	stopping     bool
	audioPath    string
	stoppedAt    time.Time
	degradations []types.Degradation
	stopErr      error

	process *capture
	stopped sync.Once
}

// JobReport is a point-in-time copy of a job for reports.
type JobReport struct {
	VideoPath    string              `json:"video_path"`
	AudioPath    string              `json:"audio_path,omitempty"`
	LogPath      string              `json:"log_path"`
	AudioSource  string              `json:"audio_source"`
	State        JobState            `json:"state"`
	StartedAt    time.Time           `json:"started_at"`
	Duration     time.Duration       `json:"duration"`
	Degradations []types.Degradation `json:"degradations,omitempty"`
}

// State returns the job state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// AudioPath returns the extracted mp3, empty unless the job stopped and
// extraction succeeded.
func (j *Job) AudioPath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.audioPath
}

// Degradations returns the soft failures recorded on the job.
func (j *Job) Degradations() []types.Degradation {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]types.Degradation(nil), j.degradations...)
}

// Done is closed when the capture process exits.
func (j *Job) Done() <-chan struct{} {
	if j.process == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return j.process.done
}

// Report snapshots the job.
func (j *Job) Report() JobReport {
	j.mu.Lock()
	defer j.mu.Unlock()

	end := j.stoppedAt
	if end.IsZero() {
		end = time.Now()
	}
	var duration time.Duration
	if !j.StartedAt.IsZero() {
		duration = end.Sub(j.StartedAt)
	}

	return JobReport{
		VideoPath:    j.VideoPath,
		AudioPath:    j.audioPath,
		LogPath:      j.LogPath,
		AudioSource:  j.AudioSource,
		State:        j.state,
		StartedAt:    j.StartedAt,
		Duration:     duration,
		Degradations: append([]types.Degradation(nil), j.degradations...),
	}
}

func (j *Job) setState(s JobState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = s
}

func (j *Job) markStopping() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopping = true
}

func (j *Job) stopRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopping || j.state != JobRunning
}

func (j *Job) degrade(d types.Degradation) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.degradations = append(j.degradations, d)
}

// capture supervises one ffmpeg process. Wait runs in a single goroutine
// and its exit is published by closing done.
type capture struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	log   *os.File

	wg      conc.WaitGroup
	done    chan struct{}
	exitErr error
}

func startCapture(cmd *exec.Cmd, log *os.File) (*capture, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = log
	cmd.Stderr = log

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	c := &capture{
		cmd:   cmd,
		stdin: stdin,
		log:   log,
		done:  make(chan struct{}),
	}
	c.wg.Go(func() {
		c.exitErr = c.cmd.Wait()
		close(c.done)
	})
	return c, nil
}

func (c *capture) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// wait blocks until the process exited and returns its exit error.
func (c *capture) wait() error {
	c.wg.Wait()
	return c.exitErr
}

func (c *capture) kill() {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}
