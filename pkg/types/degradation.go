package types

import (
	"fmt"
	"time"
)

// DegradationKind classifies a soft failure that lets the run continue.
type DegradationKind string

const (
	DegradationOptionalStep     DegradationKind = "optional_step_degradation" // DegradationOptionalStep indicates an optional UI step (e.g. mute camera) exhausted its strategies.
	DegradationAdmissionTimeout DegradationKind = "admission_timeout"         // DegradationAdmissionTimeout indicates no admission signal was seen before the poll timeout.
	DegradationRecordingStart   DegradationKind = "recording_start_failure"   // DegradationRecordingStart indicates the capture process could not be spawned.
	DegradationAudioMissing     DegradationKind = "audio_source_missing"      // DegradationAudioMissing indicates capture fell back to video only.
	DegradationExtraction       DegradationKind = "extraction_failure"        // DegradationExtraction indicates the mp3 could not be produced from the video.
	DegradationRecordingDied    DegradationKind = "recording_died"            // DegradationRecordingDied indicates the capture process exited before it was stopped.
	DegradationLeave            DegradationKind = "leave_failure"             // DegradationLeave indicates the leave control could not be clicked before teardown.
)

// Degradation records a soft failure as an explicit result value.
type Degradation struct {
	// Kind classifies the degradation.
	Kind DegradationKind `json:"kind"`

	// Step is the step or component the degradation came from.
	Step string `json:"step,omitempty"`

	// Detail carries the underlying error text.
	Detail string `json:"detail,omitempty"`

	// At is when the degradation was recorded.
	At time.Time `json:"at"`
}

// NewDegradation creates a degradation stamped with the current time.
func NewDegradation(kind DegradationKind, step string, err error) Degradation {
	d := Degradation{
		Kind: kind,
		Step: step,
		At:   time.Now(),
	}
	if err != nil {
		d.Detail = err.Error()
	}
	return d
}

// String formats the degradation for logs and reports.
func (d Degradation) String() string {
	s := string(d.Kind)
	if d.Step != "" {
		s = fmt.Sprintf("%s [%s]", s, d.Step)
	}
	if d.Detail != "" {
		s = fmt.Sprintf("%s: %s", s, d.Detail)
	}
	return s
}

// HasKind reports whether any degradation in ds is of the given kind.
func HasKind(ds []Degradation, kind DegradationKind) bool {
	for _, d := range ds {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
