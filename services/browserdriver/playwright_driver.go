package browserdriver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"go.uber.org/zap"

	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/logger"
)

// PlaywrightDriver implements Driver over a single playwright.Page owned by
// a dedicated playwright.BrowserContext. Launch-option and context-option
// shapes (disabled-automation-flag args, 1920x1080 viewport, realistic
// UA/locale/timezone) are carried over from the pool manager this engine
// used for generic test execution.
type PlaywrightDriver struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

// NewPlaywrightDriver launches a fresh, isolated Chromium instance for one
// session. locale/timezone let botidentity vary the joined
// participant's apparent origin per join.
func NewPlaywrightDriver(pw *playwright.Playwright, locale, timezone string) (*PlaywrightDriver, error) {
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-gpu",
			"--use-fake-ui-for-media-stream",
			"--use-fake-device-for-media-stream",
		},
	})
	if err != nil {
		return nil, apxerrors.E(apxerrors.ConfigurationError, fmt.Errorf("launch chromium: %w", err))
	}

	return newContextAndPage(browser, locale, timezone)
}

// NewPlaywrightDriverOverCDP attaches to an already-running Chromium instance
// exposed by services/browserpool at cdpEndpoint, for the isolation-pool
// path, instead of launching a local process.
func NewPlaywrightDriverOverCDP(pw *playwright.Playwright, cdpEndpoint, locale, timezone string) (*PlaywrightDriver, error) {
	browser, err := pw.Chromium.ConnectOverCDP(cdpEndpoint)
	if err != nil {
		return nil, apxerrors.E(apxerrors.ConfigurationError, fmt.Errorf("connect over cdp %s: %w", cdpEndpoint, err))
	}
	return newContextAndPage(browser, locale, timezone)
}

func newContextAndPage(browser playwright.Browser, locale, timezone string) (*PlaywrightDriver, error) {
	if locale == "" {
		locale = "en-US"
	}
	if timezone == "" {
		timezone = "America/New_York"
	}

	ctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  1920,
			Height: 1080,
		},
		UserAgent:  playwright.String("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		Locale:     playwright.String(locale),
		TimezoneId: playwright.String(timezone),
	})
	if err != nil {
		browser.Close()
		return nil, apxerrors.E(apxerrors.ConfigurationError, fmt.Errorf("new context: %w", err))
	}

	page, err := ctx.NewPage()
	if err != nil {
		ctx.Close()
		browser.Close()
		return nil, apxerrors.E(apxerrors.ConfigurationError, fmt.Errorf("new page: %w", err))
	}
	page.SetDefaultTimeout(30000)
	page.SetDefaultNavigationTimeout(30000)

	return &PlaywrightDriver{browser: browser, context: ctx, page: page}, nil
}

func (d *PlaywrightDriver) GrantPermissions(origin string, perms []string) error {
	return d.context.GrantPermissions(perms, playwright.BrowserContextGrantPermissionsOptions{
		Origin: playwright.String(origin),
	})
}

func (d *PlaywrightDriver) Open(ctx context.Context, url string, timeout time.Duration) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return apxerrors.E(apxerrors.JoinTimedOut, fmt.Errorf("navigate to %s: %w", url, err))
	}
	return nil
}

func (d *PlaywrightDriver) Evaluate(ctx context.Context, js string) (any, error) {
	v, err := d.page.Evaluate(js)
	if err != nil {
		return nil, apxerrors.E(apxerrors.DriverTransient, fmt.Errorf("evaluate: %w", err))
	}
	return v, nil
}

func (d *PlaywrightDriver) ClickBySelector(ctx context.Context, selector string) (bool, error) {
	loc := d.page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil || count == 0 {
		return false, nil
	}
	if visible, _ := loc.IsVisible(); !visible {
		return false, nil
	}
	if err := loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(3000)}); err != nil {
		logger.Debug("click by selector failed", zap.String("selector", selector), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// ClickByText tries candidates in order, locating each with a non-exact
// (case-insensitive substring) text match, and clicks the first visible
// element found. Matching by rendered text (rather than a fixed selector) is
// required because the target UIs route "Join now"/"Ask to join" through
// elements of varying tag and class across releases.
func (d *PlaywrightDriver) ClickByText(ctx context.Context, candidates []string) (bool, error) {
	for _, want := range candidates {
		loc := d.page.GetByText(want, playwright.PageGetByTextOptions{Exact: playwright.Bool(false)}).First()
		count, err := loc.Count()
		if err != nil || count == 0 {
			continue
		}
		if visible, _ := loc.IsVisible(); !visible {
			continue
		}
		if err := loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(3000)}); err != nil {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (d *PlaywrightDriver) ClickByCoordinates(ctx context.Context, x, y float64) error {
	if err := d.page.Mouse().Click(x, y); err != nil {
		return apxerrors.E(apxerrors.DriverTransient, fmt.Errorf("coordinate click: %w", err))
	}
	return nil
}

// TypeText focuses selector, selects-all and deletes the existing value,
// then types character by character with a ≥40ms delay so frameworks that
// rebuild the DOM on every keystroke (Teams' react-based inputs) observe
// each event rather than a single synthetic value assignment.
func (d *PlaywrightDriver) TypeText(ctx context.Context, selector, text string) error {
	loc := d.page.Locator(selector).First()
	if count, err := loc.Count(); err != nil || count == 0 {
		return apxerrors.E(apxerrors.DriverTransient, fmt.Errorf("type_text: selector %q not found", selector))
	}
	if err := loc.Click(); err != nil {
		return apxerrors.E(apxerrors.DriverTransient, fmt.Errorf("type_text: focus click: %w", err))
	}
	if err := d.page.Keyboard().Press("Control+A"); err != nil {
		return apxerrors.E(apxerrors.DriverTransient, err)
	}
	if err := d.page.Keyboard().Press("Backspace"); err != nil {
		return apxerrors.E(apxerrors.DriverTransient, err)
	}
	for _, r := range text {
		if err := d.page.Keyboard().Type(string(r)); err != nil {
			return apxerrors.E(apxerrors.DriverTransient, fmt.Errorf("type_text: %w", err))
		}
		time.Sleep(40 * time.Millisecond)
	}
	return nil
}

func (d *PlaywrightDriver) Screenshot(ctx context.Context, path string) error {
	_, err := d.page.Screenshot(playwright.PageScreenshotOptions{
		Path: playwright.String(path),
	})
	if err != nil {
		return apxerrors.E(apxerrors.DriverTransient, fmt.Errorf("screenshot: %w", err))
	}
	return nil
}

func (d *PlaywrightDriver) Keyboard(ctx context.Context, shortcut string) error {
	shortcut = strings.TrimSpace(shortcut)
	if err := d.page.Keyboard().Press(shortcut); err != nil {
		return apxerrors.E(apxerrors.DriverTransient, fmt.Errorf("keyboard %q: %w", shortcut, err))
	}
	return nil
}

func (d *PlaywrightDriver) Close() error {
	if d.page != nil {
		_ = d.page.Close()
	}
	if d.context != nil {
		_ = d.context.Close()
	}
	if d.browser != nil {
		_ = d.browser.Close()
	}
	return nil
}
