package join

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/entrhq/meetguest/pkg/browser"
	"github.com/entrhq/meetguest/pkg/strategy"
)

// StayReason explains why the in-meeting loop returned.
type StayReason string

const (
	StayDuration     StayReason = "duration_elapsed"
	StayMeetingEnded StayReason = "meeting_ended"
	StayURLChanged   StayReason = "left_meeting_url"
	StayPageGone     StayReason = "page_unavailable"
	StayInterrupted  StayReason = "interrupted"
)

// StayResult is the outcome of the in-meeting loop.
type StayResult struct {
	Reason  StayReason    `json:"reason"`
	Detail  string        `json:"detail,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Stay keeps the guest in the meeting for duration, polling the page for
// signs that the meeting ended. meetingURL is the canonical address; the
// loop ends early if the page navigates to another host or path.
func (o *Orchestrator) Stay(ctx context.Context, page browser.Page, meetingURL string, duration time.Duration) StayResult {
	start := time.Now()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	ticker := time.NewTicker(o.opts.Presence.PollInterval)
	defer ticker.Stop()

	p := &presence{meeting: parseMeetingURL(meetingURL)}

	o.logger.Info().Dur("duration", duration).Msg("staying in meeting")

	for {
		select {
		case <-ctx.Done():
			return StayResult{Reason: StayInterrupted, Detail: ctx.Err().Error(), Elapsed: time.Since(start)}
		case <-deadline.C:
			o.logger.Info().Msg("meeting duration reached")
			return StayResult{Reason: StayDuration, Elapsed: time.Since(start)}
		case <-ticker.C:
			if res, ended := o.checkEnded(ctx, page, p); ended {
				res.Elapsed = time.Since(start)
				o.logger.Info().Str("reason", string(res.Reason)).Str("detail", res.Detail).Msg("meeting over")
				return res
			}
			remaining := duration - time.Since(start)
			o.logger.Debug().Dur("remaining", remaining.Round(time.Second)).Msg("still in meeting")
		}
	}
}

// presence is the state carried between polls.
type presence struct {
	meeting      *url.URL
	readFailures int
}

func parseMeetingURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}

// sameMeeting compares host and path case-insensitively. Scheme, query and
// fragment may change under redirects.
func sameMeeting(meeting *url.URL, current string) bool {
	if meeting == nil {
		return true
	}
	u, err := url.Parse(current)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), meeting.Hostname()) &&
		strings.EqualFold(strings.TrimSuffix(u.Path, "/"), strings.TrimSuffix(meeting.Path, "/"))
}

func (o *Orchestrator) checkEnded(ctx context.Context, page browser.Page, p *presence) (StayResult, bool) {
	if current := page.URL(); !sameMeeting(p.meeting, current) {
		return StayResult{Reason: StayURLChanged, Detail: current}, true
	}

	probeCtx, cancel := context.WithTimeout(ctx, o.opts.Presence.PollInterval)
	defer cancel()

	text, err := page.BodyText(probeCtx)
	if err != nil {
		if ctx.Err() != nil {
			return StayResult{}, false
		}
		p.readFailures++
		if p.readFailures >= o.opts.Presence.MaxReadFailures {
			return StayResult{Reason: StayPageGone, Detail: err.Error()}, true
		}
		o.logger.Debug().Err(err).Int("failures", p.readFailures).Msg("could not read page, polling again")
		return StayResult{}, false
	}
	p.readFailures = 0

	if phrase, ended := containsAny(text, o.opts.Presence.EndPhrases); ended {
		return StayResult{Reason: StayMeetingEnded, Detail: phrase}, true
	}
	return StayResult{}, false
}

// Leave clicks the leave control. It is an optional step: failure is
// reported in the result but nothing else happens.
func (o *Orchestrator) Leave(ctx context.Context, page browser.Page) strategy.Result {
	result := o.exec.Run(ctx, page, LeaveStep())
	if result.Succeeded {
		o.logger.Info().Str("strategy", result.Strategy).Msg("left the meeting")
	} else {
		o.logger.Warn().Msg("could not click leave, closing the browser instead")
	}
	return result
}
