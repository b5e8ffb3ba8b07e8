package platformadapter

import (
	"context"

	"github.com/metacogma/meetcapture/models/platform"
	"github.com/metacogma/meetcapture/services/browserdriver"
)

type GoogleMeet struct {
	spec spec
}

func NewGoogleMeet() *GoogleMeet {
	return &GoogleMeet{spec: spec{
		platformName: "google_meet",
		nameSelectors: []string{
			`input[aria-label*="name" i]`,
			`input[placeholder*="name" i]`,
		},
	}}
}

func (g *GoogleMeet) Platform() platform.Platform { return platform.GoogleMeet }

func (g *GoogleMeet) Join(ctx context.Context, d browserdriver.Driver, meetingURL, botName, debugDir string) Outcome {
	outcome := runJoin(ctx, d, g.spec, meetingURL, botName, debugDir)
	if outcome.Status == "in_meeting" {
		g.EnableCaptions(ctx, d)
	}
	return outcome
}

// EnableCaptions clicks the captions/subtitles/cc-labelled toggle, falling
// back to the platform's "c" keyboard shortcut if no such control is found.
func (g *GoogleMeet) EnableCaptions(ctx context.Context, d browserdriver.Driver) {
	for _, label := range []string{"captions", "subtitles", "cc"} {
		if ok, _ := d.ClickBySelector(ctx, `[aria-label*="`+label+`" i]`); ok {
			return
		}
	}
	_ = d.Keyboard(ctx, "c")
}
