package join

import (
	"strings"
	"time"
)

// Options configures the join flow.
type Options struct {
	// GuestName is the display name typed into the lobby
	GuestName string

	// KeystrokeDelay is the per-key delay of the typing strategy
	KeystrokeDelay time.Duration

	// DismissPopups clicks away onboarding and consent dialogs before joining
	DismissPopups bool

	// DumpButtons logs the visible buttons at debug level on entry and on failure
	DumpButtons bool

	// Admission configures the admission detection predicate
	Admission AdmissionOptions

	// Presence configures the in-meeting loop
	Presence PresenceOptions
}

// AdmissionOptions define how admission into the call is detected.
// A page counts as admitted when any indicator selector is visible or any
// indicator text is present, none of the waiting texts are present and the
// page URL contains none of URLExcludes.
type AdmissionOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Indicators   []string
	Texts        []string
	WaitingTexts []string
	URLExcludes  []string
}

// PresenceOptions configure the in-meeting loop.
type PresenceOptions struct {
	PollInterval time.Duration
	EndPhrases   []string

	// MaxReadFailures is how many consecutive unreadable polls end the loop
	MaxReadFailures int
}

// Defaults for the join flow.
const (
	DefaultKeystrokeDelay        = 50 * time.Millisecond
	DefaultAdmissionTimeout      = 2 * time.Minute
	DefaultAdmissionPollInterval = 5 * time.Second
	DefaultPresencePollInterval  = 15 * time.Second
	DefaultPresenceReadFailures  = 3
)

// DefaultAdmissionIndicators are UI elements that only exist inside the call.
func DefaultAdmissionIndicators() []string {
	return []string{
		"button[aria-label*='Leave call' i]",
		"xpath=//button[contains(@aria-label, 'participants') or contains(@aria-label, 'Show everyone')]",
		"xpath=//button[contains(@aria-label, 'chat')]",
		"div[role='complementary']",
		"xpath=//div[contains(text(), 'Meeting details')]",
	}
}

// DefaultAdmissionTexts are body texts only shown inside the call.
func DefaultAdmissionTexts() []string {
	return []string{
		"Joining info",
		"Copy joining info",
		"Meeting details",
	}
}

// DefaultWaitingTexts are body texts of the waiting room.
func DefaultWaitingTexts() []string {
	return []string{
		"Asking to be let in",
		"You'll join the call when someone lets you in",
		"Someone will let you in soon",
		"Please wait until a meeting host brings you into the call",
	}
}

// DefaultEndPhrases are body texts that mean the meeting is over for us.
func DefaultEndPhrases() []string {
	return []string{
		"meeting ended",
		"you left the meeting",
		"call has ended",
		"you've been removed from the meeting",
	}
}

// DefaultOptions returns options matching the current Meet UI.
func DefaultOptions(guestName string) Options {
	return Options{
		GuestName:      guestName,
		KeystrokeDelay: DefaultKeystrokeDelay,
		DismissPopups:  true,
		Admission: AdmissionOptions{
			Timeout:      DefaultAdmissionTimeout,
			PollInterval: DefaultAdmissionPollInterval,
			Indicators:   DefaultAdmissionIndicators(),
			Texts:        DefaultAdmissionTexts(),
			WaitingTexts: DefaultWaitingTexts(),
		},
		Presence: PresenceOptions{
			PollInterval:    DefaultPresencePollInterval,
			EndPhrases:      DefaultEndPhrases(),
			MaxReadFailures: DefaultPresenceReadFailures,
		},
	}
}

func (o *Options) applyDefaults() {
	if o.KeystrokeDelay <= 0 {
		o.KeystrokeDelay = DefaultKeystrokeDelay
	}
	if o.Admission.Timeout <= 0 {
		o.Admission.Timeout = DefaultAdmissionTimeout
	}
	if o.Admission.PollInterval <= 0 {
		o.Admission.PollInterval = DefaultAdmissionPollInterval
	}
	if len(o.Admission.Indicators) == 0 && len(o.Admission.Texts) == 0 {
		o.Admission.Indicators = DefaultAdmissionIndicators()
		o.Admission.Texts = DefaultAdmissionTexts()
	}
	if o.Admission.WaitingTexts == nil {
		o.Admission.WaitingTexts = DefaultWaitingTexts()
	}
	if o.Presence.PollInterval <= 0 {
		o.Presence.PollInterval = DefaultPresencePollInterval
	}
	if len(o.Presence.EndPhrases) == 0 {
		o.Presence.EndPhrases = DefaultEndPhrases()
	}
	if o.Presence.MaxReadFailures <= 0 {
		o.Presence.MaxReadFailures = DefaultPresenceReadFailures
	}
}

func containsAny(text string, phrases []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}
