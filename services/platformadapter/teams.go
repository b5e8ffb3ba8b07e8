package platformadapter

import (
	"context"

	"github.com/metacogma/meetcapture/models/platform"
	"github.com/metacogma/meetcapture/services/browserdriver"
)

type Teams struct {
	spec spec
}

func NewTeams() *Teams {
	return &Teams{spec: spec{
		platformName: "teams",
		nameSelectors: []string{
			`input[data-tid="prejoin-display-name-input"]`,
			`input[aria-label*="name" i]`,
			`input[placeholder*="name" i]`,
		},
		tryCheckboxAV: true,
	}}
}

func (t *Teams) Platform() platform.Platform { return platform.Teams }

func (t *Teams) Join(ctx context.Context, d browserdriver.Driver, meetingURL, botName, debugDir string) Outcome {
	// The app-download interstitial's "Continue on this browser" is part
	// of the shared dismiss pass, which runs after navigate.
	outcome := runJoin(ctx, d, t.spec, meetingURL, botName, debugDir)
	if outcome.Status == "in_meeting" {
		t.EnableCaptions(ctx, d)
	}
	return outcome
}

// EnableCaptions opens the "More actions" menu and selects "Turn on live
// captions", falling back to the Ctrl+Shift+U shortcut.
func (t *Teams) EnableCaptions(ctx context.Context, d browserdriver.Driver) {
	if ok, _ := d.ClickByText(ctx, []string{"More actions"}); ok {
		if ok2, _ := d.ClickByText(ctx, []string{"Turn on live captions"}); ok2 {
			return
		}
	}
	_ = d.Keyboard(ctx, "Control+Shift+U")
}
