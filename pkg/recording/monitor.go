package recording

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/entrhq/meetguest/pkg/types"
)

// DefaultMonitorInterval is how often Monitor reports on a running capture.
const DefaultMonitorInterval = time.Minute

// Monitor logs the progress of a running job every interval and records a
// degradation if the capture process dies before Stop is called. It returns
// when ctx ends or the process exits.
func (m *Manager) Monitor(ctx context.Context, job *Job, interval time.Duration) {
	if job == nil || job.process == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-job.process.done:
			if job.stopRequested() {
				return
			}
			err := job.process.exitErr
			if err == nil {
				err = errors.New("ffmpeg exited before the recording was stopped")
			}
			m.logger.Error().Err(err).Str("log", job.LogPath).Msg("recording process terminated unexpectedly")
			job.degrade(types.NewDegradation(types.DegradationRecordingDied, "recording", err))
			return

		case <-ticker.C:
			elapsed := time.Since(job.StartedAt).Round(time.Second)
			info, err := os.Stat(job.VideoPath)
			if err != nil {
				m.logger.Warn().Dur("duration", elapsed).Msg("recording in progress, file not created yet")
				continue
			}
			m.logger.Info().
				Dur("duration", elapsed).
				Str("size", humanize.Bytes(uint64(info.Size()))).
				Msg("recording in progress")
		}
	}
}
