package platformadapter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"go.uber.org/zap"

	"github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/logger"
	"github.com/metacogma/meetcapture/services/browserdriver"
)

const (
	admissionPollInterval = 1 * time.Second
	admissionPollTicks    = 120
)

var (
	dismissTexts = []string{"Got it", "Accept cookies", "Accept all", "Continue on this browser", "OK"}
	joinTexts    = []string{"join now", "ask to join", "join meeting", "continue without"}

	waitingMarkers = []string{
		"asking to join", "waiting for", "someone will let you in",
		"waiting room", "please wait", "lobby",
	}
	inMeetingMarkers = []string{"leave", "end", "hang up"}

	micAriaLabels    = []string{"microphone"}
	cameraAriaLabels = []string{"camera", "video"}
)

// spec describes the per-platform variation points the shared join sequence
// plugs into: how to rewrite the raw meeting URL, the name-input locator
// strategy, and whether a Teams-style checkbox fallback for the camera
// toggle should be attempted.
type spec struct {
	platformName    string
	rewriteURL      func(url string) string
	nameSelectors   []string
	tryCheckboxAV   bool
	passcodeMarkers []string

	// postNavigate runs right after the page has loaded, before the shared
	// dismiss pass — for interstitials the dismiss texts don't cover, like
	// Webex's browser-app launch link and email field.
	postNavigate func(ctx context.Context, d browserdriver.Driver, botName string)
}

// runJoin executes the shared state machine: navigate, dismiss_dialogs,
// enter_name, disable_av, submit_join, then poll for admission, re-issuing
// submit_join while the probe reports prejoin. One adapter method per
// platform wraps this with its own spec and EnableCaptions call.
func runJoin(ctx context.Context, d browserdriver.Driver, s spec, meetingURL, botName, debugDir string) Outcome {
	url := meetingURL
	if s.rewriteURL != nil {
		url = s.rewriteURL(meetingURL)
	}

	if err := d.Open(ctx, url, 60*time.Second); err != nil {
		return failed(errors.JoinTimedOut, fmt.Sprintf("navigate: %v", err))
	}
	debugShot(ctx, d, debugDir, s.platformName, 1, "navigate")

	if s.postNavigate != nil {
		s.postNavigate(ctx, d, botName)
	}

	dismissDialogs(ctx, d)
	debugShot(ctx, d, debugDir, s.platformName, 2, "dismiss_dialogs")

	if reason, rejected := detectPasscode(ctx, d, s.passcodeMarkers); rejected {
		return failed(errors.JoinRejected, reason)
	}

	enterName(ctx, d, s.nameSelectors, botName)
	debugShot(ctx, d, debugDir, s.platformName, 3, "enter_name")

	disableAV(ctx, d, s.tryCheckboxAV)
	debugShot(ctx, d, debugDir, s.platformName, 4, "disable_av")

	submitJoin(ctx, d)
	debugShot(ctx, d, debugDir, s.platformName, 5, "submit_join")

	return pollAdmission(ctx, d, debugDir, s.platformName)
}

func dismissDialogs(ctx context.Context, d browserdriver.Driver) {
	for _, text := range dismissTexts {
		// Best-effort: click once if present, ignore absence, never abort
		// the join sequence over a dialog that never appeared.
		if _, err := d.ClickByText(ctx, []string{text}); err != nil {
			logger.Debug("dismiss_dialogs click failed", zap.String("text", text), zap.Error(err))
		}
	}
}

func detectPasscode(ctx context.Context, d browserdriver.Driver, markers []string) (string, bool) {
	if len(markers) == 0 {
		return "", false
	}
	v, err := d.Evaluate(ctx, "document.body ? document.body.innerText.toLowerCase() : ''")
	if err != nil {
		return "", false
	}
	text, _ := v.(string)
	for _, m := range markers {
		if strings.Contains(text, strings.ToLower(m)) {
			return "passcode required", true
		}
	}
	return "", false
}

// enterName locates the name input by trying each aria/placeholder
// heuristic selector in turn and types through the keyboard path — direct
// value assignment is dropped by react-based prejoin forms.
func enterName(ctx context.Context, d browserdriver.Driver, selectors []string, botName string) {
	for _, sel := range selectors {
		if err := d.TypeText(ctx, sel, botName); err == nil {
			return
		}
	}
}

// disableAV clicks the microphone and camera toggles iff currently on,
// matched by aria-label. Teams additionally falls back to the first visible
// checkbox and a "Don't use audio" radio option.
func disableAV(ctx context.Context, d browserdriver.Driver, tryCheckboxAV bool) {
	for _, label := range micAriaLabels {
		clickToggleIfOn(ctx, d, label)
	}
	for _, label := range cameraAriaLabels {
		clickToggleIfOn(ctx, d, label)
	}
	if tryCheckboxAV {
		_, _ = d.ClickBySelector(ctx, "input[type=checkbox]")
		_, _ = d.ClickByText(ctx, []string{"Don't use audio"})
	}
}

func clickToggleIfOn(ctx context.Context, d browserdriver.Driver, ariaLabel string) {
	selector := fmt.Sprintf("[aria-label*=%q i][aria-pressed=\"true\"], [aria-label*=%q i]:not([aria-pressed=\"false\"])", ariaLabel, ariaLabel)
	_, _ = d.ClickBySelector(ctx, selector)
}

func submitJoin(ctx context.Context, d browserdriver.Driver) {
	if ok, _ := d.ClickByText(ctx, joinTexts); ok {
		return
	}
	// Fallback: raw coordinate click at a commonly-placed join button
	// location when the control isn't a real <button> element.
	_ = d.ClickByCoordinates(ctx, 640, 600)
}

// admissionBreaker trips after repeated evaluate failures during the
// admission poll, so a meeting UI that's hard-failing the page doesn't burn
// the full 120 ticks probing a page that will never respond.
var admissionBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
	Name:        "admission-probe",
	MaxRequests: 1,
	Interval:    0,
	Timeout:     5 * time.Second,
	ReadyToTrip: func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	},
})

func pollAdmission(ctx context.Context, d browserdriver.Driver, debugDir, platformName string) Outcome {
	for tick := 0; tick < admissionPollTicks; tick++ {
		state, err := admissionBreaker.Execute(func() (any, error) {
			return probeAdmission(ctx, d)
		})
		if err != nil {
			time.Sleep(admissionPollInterval)
			continue
		}

		switch state.(AdmissionState) {
		case InMeeting:
			return succeeded()
		case Prejoin:
			submitJoin(ctx, d)
		case Waiting:
			// fall through to next tick
		}

		select {
		case <-ctx.Done():
			return failed(errors.JoinTimedOut, "context canceled during admission poll")
		case <-time.After(admissionPollInterval):
		}
	}
	debugShot(ctx, d, debugDir, platformName, 6, "admission_timeout")
	return failed(errors.JoinTimedOut, "admission poll exhausted")
}

func probeAdmission(ctx context.Context, d browserdriver.Driver) (AdmissionState, error) {
	v, err := d.Evaluate(ctx, admissionProbeJS)
	if err != nil {
		return Waiting, errors.E(errors.DriverTransient, err)
	}
	text, _ := v.(string)
	lower := strings.ToLower(text)

	for _, marker := range waitingMarkers {
		if strings.Contains(lower, marker) {
			return Waiting, nil
		}
	}

	hasControl := false
	for _, marker := range inMeetingMarkers {
		if strings.Contains(lower, marker) {
			hasControl = true
			break
		}
	}
	if hasControl {
		return InMeeting, nil
	}

	if strings.Contains(lower, "name") {
		return Prejoin, nil
	}
	return Prejoin, nil
}

// admissionProbeJS returns the page's body text, which probeAdmission
// lowercases and classifies;
// kept as a single evaluate call per tick to minimize CDP round trips.
const admissionProbeJS = `document.body ? document.body.innerText : ''`

func debugShot(ctx context.Context, d browserdriver.Driver, debugDir, platformName string, step int, label string) {
	if debugDir == "" {
		return
	}
	path := filepath.Join(debugDir, fmt.Sprintf("%s_step%d_%s.png", platformName, step, label))
	if err := d.Screenshot(ctx, path); err != nil {
		logger.Debug("debug screenshot failed", zap.String("path", path), zap.Error(err))
	}
}
