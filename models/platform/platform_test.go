package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDetect checks the substring classification rules for every supported
// provider, including the secondary zoom.com and teams.live.com hosts.
func TestDetect(t *testing.T) {
	cases := []struct {
		url  string
		want Platform
	}{
		{"https://zoom.us/j/123456789", Zoom},
		{"https://us05web.zoom.us/j/987?pwd=abc", Zoom},
		{"https://app.zoom.com/wc/123/join", Zoom},
		{"https://meet.google.com/abc-defg-hij", GoogleMeet},
		{"https://teams.microsoft.com/l/meetup-join/19%3ameeting", Teams},
		{"https://teams.live.com/meet/9471031117", Teams},
		{"https://company.webex.com/meet/jdoe", Webex},
		{"https://example.com/meeting/42", Unknown},
		{"", Unknown},
		{"not a url at all", Unknown},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Detect(tc.url), "url: %s", tc.url)
	}
}

// TestDetectIsDeterministic pins the purity property: same input, same
// output, with no I/O in between.
func TestDetectIsDeterministic(t *testing.T) {
	for _, url := range []string{"https://zoom.us/j/1", "https://meet.google.com/x", "garbage"} {
		first := Detect(url)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Detect(url))
		}
	}
}

func TestValid(t *testing.T) {
	for _, p := range []Platform{Zoom, GoogleMeet, Teams, Webex} {
		assert.True(t, p.Valid())
	}
	assert.False(t, Unknown.Valid())
	assert.False(t, Platform("skype").Valid())
}
