// Package platformadapter implements the per-provider join and
// caption-enable sequences as a shared state machine: navigate ->
// dismiss_dialogs -> enter_name -> disable_av -> submit_join -> poll for
// admission. Every adapter is a pure sequence of BrowserDriver operations;
// none touch the filesystem or a subprocess directly.
package platformadapter

import (
	"context"

	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/models/platform"
	"github.com/metacogma/meetcapture/services/browserdriver"
)

// AdmissionState is the three-way classification the poll-for-admission
// step reduces every DOM snapshot to.
type AdmissionState string

const (
	Waiting   AdmissionState = "waiting"
	InMeeting AdmissionState = "in_meeting"
	Prejoin   AdmissionState = "prejoin"
)

// Outcome is what Join reports to the engine — a structured result, never
// a panic or bare error across the adapter boundary.
type Outcome struct {
	Status string // "in_meeting" or "join_failed"
	Kind   apxerrors.Kind
	Reason string
}

func succeeded() Outcome { return Outcome{Status: "in_meeting"} }

func failed(kind apxerrors.Kind, reason string) Outcome {
	return Outcome{Status: "join_failed", Kind: kind, Reason: reason}
}

// Adapter is the per-platform join/caption strategy object.
type Adapter interface {
	Platform() platform.Platform
	Join(ctx context.Context, d browserdriver.Driver, meetingURL, botName, debugDir string) Outcome
	EnableCaptions(ctx context.Context, d browserdriver.Driver)
}

// Detect classifies a meeting URL by provider; re-exported here so
// callers only need this package for both detection and dispatch.
func Detect(url string) platform.Platform { return platform.Detect(url) }

// For builds the Adapter for a detected platform. Returns nil for Unknown.
func For(p platform.Platform) Adapter {
	switch p {
	case platform.Zoom:
		return NewZoom()
	case platform.GoogleMeet:
		return NewGoogleMeet()
	case platform.Teams:
		return NewTeams()
	case platform.Webex:
		return NewWebex()
	default:
		return nil
	}
}
