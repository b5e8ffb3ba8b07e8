package platformadapter

import (
	"context"
	"regexp"

	"github.com/metacogma/meetcapture/models/platform"
	"github.com/metacogma/meetcapture/services/browserdriver"
)

var zoomJoinURLPattern = regexp.MustCompile(`/j/(\d+)`)

// rewriteZoomURL rewrites a Zoom client-launch link (/j/<N>) to the web
// client join path (/wc/<N>/join) so the headless browser lands directly on
// the in-browser prejoin screen instead of attempting a native-app handoff.
func rewriteZoomURL(url string) string {
	return zoomJoinURLPattern.ReplaceAllString(url, "/wc/$1/join")
}

type Zoom struct {
	spec spec
}

func NewZoom() *Zoom {
	return &Zoom{spec: spec{
		platformName: "zoom",
		rewriteURL:   rewriteZoomURL,
		nameSelectors: []string{
			`input[name="inputname"]`,
			`input[aria-label*="name" i]`,
			`input[placeholder*="name" i]`,
		},
		passcodeMarkers: []string{"enter the passcode", "meeting passcode"},
	}}
}

func (z *Zoom) Platform() platform.Platform { return platform.Zoom }

func (z *Zoom) Join(ctx context.Context, d browserdriver.Driver, meetingURL, botName, debugDir string) Outcome {
	outcome := runJoin(ctx, d, z.spec, meetingURL, botName, debugDir)
	if outcome.Status != "in_meeting" {
		return outcome
	}
	// Zoom prompts a separate "Join Audio -> Computer audio" dialog after
	// admission; best-effort, never fails the session.
	_, _ = d.ClickByText(ctx, []string{"Join with Computer Audio", "Computer audio"})
	z.EnableCaptions(ctx, d)
	return outcome
}

// EnableCaptions opens the CC control, then a possible "Show Subtitle"
// submenu, falling back to the "More" overflow menu when CC isn't directly
// visible.
func (z *Zoom) EnableCaptions(ctx context.Context, d browserdriver.Driver) {
	if ok, _ := d.ClickByText(ctx, []string{"cc", "closed caption", "show captions"}); ok {
		_, _ = d.ClickByText(ctx, []string{"Show Subtitle"})
		return
	}
	if ok, _ := d.ClickByText(ctx, []string{"More"}); ok {
		_, _ = d.ClickByText(ctx, []string{"Show Captions", "Closed Caption"})
	}
}
