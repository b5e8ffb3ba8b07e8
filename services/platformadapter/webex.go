package platformadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/metacogma/meetcapture/models/platform"
	"github.com/metacogma/meetcapture/services/browserdriver"
)

type Webex struct {
	spec spec
}

func NewWebex() *Webex {
	return &Webex{spec: spec{
		platformName: "webex",
		nameSelectors: []string{
			`input[placeholder*="name" i]`,
			`input[aria-label*="name" i]`,
		},
		postNavigate: webexPostNavigate,
	}}
}

// webexPostNavigate handles Webex's interstitials once the page has loaded:
// a browser-app launch link that must be clicked before the prejoin screen
// renders, and an email field auto-filled with a synthetic address.
func webexPostNavigate(ctx context.Context, d browserdriver.Driver, botName string) {
	_, _ = d.ClickByText(ctx, []string{"Join from your browser", "Join from this browser"})

	syntheticEmail := fmt.Sprintf("%s.%d@meetcapture.invalid", sanitizeForEmail(botName), time.Now().UnixNano()%100000)
	_ = d.TypeText(ctx, `input[type="email"]`, syntheticEmail)
}

func (w *Webex) Platform() platform.Platform { return platform.Webex }

func (w *Webex) Join(ctx context.Context, d browserdriver.Driver, meetingURL, botName, debugDir string) Outcome {
	outcome := runJoin(ctx, d, w.spec, meetingURL, botName, debugDir)
	if outcome.Status == "in_meeting" {
		w.EnableCaptions(ctx, d)
	}
	return outcome
}

func sanitizeForEmail(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "bot"
	}
	return string(out)
}

func (w *Webex) EnableCaptions(ctx context.Context, d browserdriver.Driver) {
	if ok, _ := d.ClickBySelector(ctx, `[aria-label*="captions" i]`); ok {
		return
	}
	_, _ = d.ClickByText(ctx, []string{"Closed Captions", "Live captions"})
}
