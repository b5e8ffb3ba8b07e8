// Package browserdriver implements the BrowserDriver capability contract: a
// thin capability set over a single automated browser instance, one per
// session. Every PlatformAdapter is written purely against this interface so
// it never touches a concrete automation library itself.
package browserdriver

import (
	"context"
	"time"
)

// Driver is the capability set a capture session needs from a browser.
// Implementations must tolerate mid-navigation errors on Evaluate, never
// panic on a missing selector in ClickBySelector/ClickByText, and make
// Close idempotent.
type Driver interface {
	// Open loads url, failing with an error if it doesn't settle within
	// timeout (PlaywrightDriver returns an errors.JoinTimedOut-kind error).
	Open(ctx context.Context, url string, timeout time.Duration) error

	// Evaluate runs js in the page and returns its JSON-serializable
	// result.
	Evaluate(ctx context.Context, js string) (any, error)

	// ClickBySelector clicks the first element matching a CSS selector.
	// Returns false, nil (never an error) when nothing matches.
	ClickBySelector(ctx context.Context, selector string) (bool, error)

	// ClickByText clicks the first visible, enabled element whose
	// trimmed text case-insensitively matches any of candidates. Returns
	// false, nil when nothing matches.
	ClickByText(ctx context.Context, candidates []string) (bool, error)

	// ClickByCoordinates issues a raw mouse click at page coordinates,
	// the fallback path for controls not reachable as a <button>.
	ClickByCoordinates(ctx context.Context, x, y float64) error

	// TypeText focuses selector, selects all, deletes, and types text
	// character by character with at least a 40ms inter-key delay.
	// Direct value assignment is never used: react-based prejoin forms
	// rebuild their state from input events and silently drop it.
	TypeText(ctx context.Context, selector, text string) error

	// Screenshot writes a PNG to path. Failures are for the caller to
	// log and swallow; Screenshot itself just reports the error.
	Screenshot(ctx context.Context, path string) error

	// GrantPermissions must be called before Open for the permissions to
	// apply to the page's eventual origin.
	GrantPermissions(origin string, perms []string) error

	// Keyboard sends a modifier+key combination, e.g. "Control+Shift+U"
	// or a single key like "c".
	Keyboard(ctx context.Context, shortcut string) error

	// Close tears the browser instance down. Idempotent.
	Close() error
}

// Permission names accepted by GrantPermissions.
const (
	PermissionMicrophone   = "microphone"
	PermissionCamera       = "camera"
	PermissionNotifications = "notifications"
)
