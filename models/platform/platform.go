// Package platform identifies the conferencing provider a meeting URL
// belongs to and supplies the Detect heuristic the engine uses to pick a
// PlatformAdapter.
package platform

import "strings"

type Platform string

const (
	Zoom       Platform = "zoom"
	GoogleMeet Platform = "google_meet"
	Teams      Platform = "teams"
	Webex      Platform = "webex"
	Unknown    Platform = "unknown"
)

// Detect matches known platform domains as substrings of the whole
// lowercased meeting URL and returns the Platform it belongs to, or Unknown
// if no adapter recognizes it.
func Detect(meetingURL string) Platform {
	host := strings.ToLower(meetingURL)
	switch {
	case strings.Contains(host, "zoom.us") || strings.Contains(host, "zoom.com"):
		return Zoom
	case strings.Contains(host, "meet.google.com"):
		return GoogleMeet
	case strings.Contains(host, "teams.microsoft.com") || strings.Contains(host, "teams.live.com"):
		return Teams
	case strings.Contains(host, "webex.com"):
		return Webex
	default:
		return Unknown
	}
}

func (p Platform) Valid() bool {
	switch p {
	case Zoom, GoogleMeet, Teams, Webex:
		return true
	default:
		return false
	}
}
