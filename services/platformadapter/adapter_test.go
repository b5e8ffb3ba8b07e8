package platformadapter

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/logger"
	"github.com/metacogma/meetcapture/models/platform"
)

func TestMain(m *testing.M) {
	logger.InitLogger("debug")
	os.Exit(m.Run())
}

// scriptDriver is a scripted Driver for join-sequence tests. bodyText is
// returned by Evaluate per call (last entry repeats); submit clicks — the
// multi-candidate ClickByText calls — are counted so retry behavior can be
// asserted.
type scriptDriver struct {
	mu        sync.Mutex
	bodyTexts []string
	evalCalls int

	submitClicks int
	typedInto    []string
	events       []string
}

func (d *scriptDriver) record(event string) {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
}

func (d *scriptDriver) Open(ctx context.Context, url string, timeout time.Duration) error {
	d.record("open")
	return nil
}

func (d *scriptDriver) Evaluate(ctx context.Context, js string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.bodyTexts) == 0 {
		return "", nil
	}
	i := d.evalCalls
	if i >= len(d.bodyTexts) {
		i = len(d.bodyTexts) - 1
	}
	d.evalCalls++
	return d.bodyTexts[i], nil
}

func (d *scriptDriver) ClickBySelector(ctx context.Context, selector string) (bool, error) {
	return false, nil
}

func (d *scriptDriver) ClickByText(ctx context.Context, candidates []string) (bool, error) {
	d.record("click:" + candidates[0])
	if len(candidates) > 1 {
		d.mu.Lock()
		d.submitClicks++
		d.mu.Unlock()
	}
	return len(candidates) > 1, nil
}

func (d *scriptDriver) ClickByCoordinates(ctx context.Context, x, y float64) error { return nil }

func (d *scriptDriver) TypeText(ctx context.Context, selector, text string) error {
	d.record("type:" + selector)
	d.mu.Lock()
	d.typedInto = append(d.typedInto, selector)
	d.mu.Unlock()
	return nil
}

func (d *scriptDriver) Screenshot(ctx context.Context, path string) error    { return nil }
func (d *scriptDriver) GrantPermissions(origin string, perms []string) error { return nil }
func (d *scriptDriver) Keyboard(ctx context.Context, shortcut string) error  { return nil }
func (d *scriptDriver) Close() error                                         { return nil }

func TestRewriteZoomURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://zoom.us/j/123456789", "https://zoom.us/wc/123456789/join"},
		{"https://us05web.zoom.us/j/987?pwd=abc", "https://us05web.zoom.us/wc/987/join?pwd=abc"},
		{"https://zoom.us/wc/123456789/join", "https://zoom.us/wc/123456789/join"},
		{"https://zoom.us/my/room", "https://zoom.us/my/room"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rewriteZoomURL(tc.in), "in: %s", tc.in)
	}
}

func TestForDispatch(t *testing.T) {
	assert.Equal(t, platform.Zoom, For(platform.Zoom).Platform())
	assert.Equal(t, platform.GoogleMeet, For(platform.GoogleMeet).Platform())
	assert.Equal(t, platform.Teams, For(platform.Teams).Platform())
	assert.Equal(t, platform.Webex, For(platform.Webex).Platform())
	assert.Nil(t, For(platform.Unknown))
}

// TestProbeAdmissionClassification pins the three-way page-state classifier:
// lobby markers win over in-meeting controls, in-meeting controls win over a
// lingering name field, and anything else falls back to prejoin.
func TestProbeAdmissionClassification(t *testing.T) {
	cases := []struct {
		body string
		want AdmissionState
	}{
		{"Someone will let you in soon", Waiting},
		{"You are in the waiting room", Waiting},
		{"Asking to join...", Waiting},
		{"Mute  Leave call  participants  chat", InMeeting},
		{"Hang up  More options", InMeeting},
		// Waiting markers take priority even when a Leave control renders.
		{"Please wait, the host will let you in. Leave", Waiting},
		{"Enter your name to continue", Prejoin},
		{"", Prejoin},
	}
	for _, tc := range cases {
		d := &scriptDriver{bodyTexts: []string{tc.body}}
		state, err := probeAdmission(context.Background(), d)
		require.NoError(t, err)
		assert.Equal(t, tc.want, state, "body: %q", tc.body)
	}
}

// TestJoinPrejoinRetryAdmitsExactlyOnce exercises the prejoin-retry
// property: the probe reports prejoin for two ticks, then in_meeting. The
// join must re-issue submit_join on each prejoin tick and report a single
// in_meeting outcome.
func TestJoinPrejoinRetryAdmitsExactlyOnce(t *testing.T) {
	d := &scriptDriver{bodyTexts: []string{
		"Enter your name to continue",       // tick 0: prejoin
		"Enter your name to continue",       // tick 1: prejoin
		"Mute Leave call participants chat", // tick 2: admitted
	}}

	s := spec{
		platformName:  "google_meet",
		nameSelectors: []string{`input[aria-label*="name" i]`},
	}
	outcome := runJoin(context.Background(), d, s, "https://meet.google.com/abc-defg-hij", "Capture Bot", "")

	assert.Equal(t, "in_meeting", outcome.Status)
	// One initial submit plus one per prejoin tick.
	assert.Equal(t, 3, d.submitClicks)
}

// TestJoinPasscodeRequiredIsTerminalRejection checks that a passcode prompt
// detected after navigation short-circuits the join as JoinRejected instead
// of burning the full admission poll.
func TestJoinPasscodeRequiredIsTerminalRejection(t *testing.T) {
	d := &scriptDriver{bodyTexts: []string{"Please enter the meeting passcode to join"}}

	outcome := NewZoom().Join(context.Background(), d, "https://zoom.us/j/123456789", "Capture Bot", "")

	assert.Equal(t, "join_failed", outcome.Status)
	assert.Equal(t, apxerrors.JoinRejected, outcome.Kind)
}

// TestJoinImmediateAdmission covers the no-lobby case: the first probe tick
// already sees in-meeting controls.
func TestJoinImmediateAdmission(t *testing.T) {
	d := &scriptDriver{bodyTexts: []string{
		"Mute Leave call participants chat",
	}}

	s := spec{platformName: "webex", nameSelectors: []string{`input[placeholder*="name" i]`}}
	outcome := runJoin(context.Background(), d, s, "https://company.webex.com/meet/jdoe", "Capture Bot", "")

	assert.Equal(t, "in_meeting", outcome.Status)
}

// TestJoinCanceledContextTimesOut checks the admission poll honors context
// cancellation rather than sleeping through all 120 ticks.
func TestJoinCanceledContextTimesOut(t *testing.T) {
	d := &scriptDriver{bodyTexts: []string{"waiting for the host to let you in"}}

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	s := spec{platformName: "teams", nameSelectors: []string{`input[aria-label*="name" i]`}}
	start := time.Now()
	outcome := runJoin(ctx, d, s, "https://teams.microsoft.com/l/meetup-join/19", "Capture Bot", "")

	assert.Equal(t, "join_failed", outcome.Status)
	assert.Equal(t, apxerrors.JoinTimedOut, outcome.Kind)
	assert.Less(t, time.Since(start), 10*time.Second)
}

// TestEnterNameUsesKeyboardTypingPath checks the name goes through TypeText
// (the keyboard path) against the first selector that accepts it.
func TestEnterNameUsesKeyboardTypingPath(t *testing.T) {
	d := &scriptDriver{bodyTexts: []string{
		"prejoin, enter your name",
		"Mute Leave call participants chat",
	}}

	s := spec{
		platformName:  "teams",
		nameSelectors: []string{`input[data-tid="prejoin-display-name-input"]`, `input[aria-label*="name" i]`},
	}
	outcome := runJoin(context.Background(), d, s, "https://teams.microsoft.com/l/meetup-join/19", "Capture Bot", "")

	require.Equal(t, "in_meeting", outcome.Status)
	require.NotEmpty(t, d.typedInto)
	assert.True(t, strings.Contains(d.typedInto[0], "prejoin-display-name-input"))
}

// TestWebexInterstitialsRunAfterNavigate pins the interstitial ordering:
// the browser-app launch-link click and the synthetic-email fill must
// happen on the loaded page, never before navigation.
func TestWebexInterstitialsRunAfterNavigate(t *testing.T) {
	d := &scriptDriver{bodyTexts: []string{
		"Mute Leave call participants chat",
	}}

	outcome := NewWebex().Join(context.Background(), d, "https://company.webex.com/meet/jdoe", "Capture Bot", "")
	require.Equal(t, "in_meeting", outcome.Status)

	d.mu.Lock()
	events := append([]string(nil), d.events...)
	d.mu.Unlock()

	require.NotEmpty(t, events)
	assert.Equal(t, "open", events[0], "nothing may touch the page before navigate")
	assert.Contains(t, events, "click:Join from your browser")
	assert.Contains(t, events, `type:input[type="email"]`)
}
