package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver launches Chromium through Playwright. The Playwright
// runtime is installed and started on the first NewPage call.
type PlaywrightDriver struct {
	mu         sync.Mutex
	playwright *playwright.Playwright
}

// NewPlaywrightDriver creates a driver. Nothing is started until a page is
// requested.
func NewPlaywrightDriver() *PlaywrightDriver {
	return &PlaywrightDriver{}
}

func (d *PlaywrightDriver) start() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.playwright != nil {
		return d.playwright, nil
	}

	// Output is discarded so it does not interleave with the server log.
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	d.playwright = pw
	return pw, nil
}

// NewPage launches a browser with one context and page.
func (d *PlaywrightDriver) NewPage(ctx context.Context, opts SessionOptions) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := d.start()
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	return &playwrightPage{browser: browser, context: bctx, page: page}, nil
}

// Close stops the Playwright runtime.
func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.playwright == nil {
		return nil
	}
	err := d.playwright.Stop()
	d.playwright = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

type playwrightPage struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

func (p *playwrightPage) Goto(url, waitUntil string) error {
	opts := playwright.PageGotoOptions{}
	if waitUntil != "" {
		state := playwright.WaitUntilState(waitUntil)
		opts.WaitUntil = &state
	}
	if _, err := p.page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) Click(selector string) error {
	if err := p.page.Click(selector); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) Fill(selector, value string) error {
	if err := p.page.Fill(selector, value); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) WaitFor(selector, state string, timeout time.Duration) error {
	opts := playwright.PageWaitForSelectorOptions{}
	if state != "" {
		s := playwright.WaitForSelectorState(state)
		opts.State = &s
	}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	if _, err := p.page.WaitForSelector(selector, opts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Screenshot(fullPage bool) ([]byte, error) {
	data, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

func (p *playwrightPage) Evaluate(expression string) (interface{}, error) {
	return p.page.Evaluate(expression)
}

// Close releases the page, its context and its browser. Errors after the
// first are ignored so cleanup always runs to the end.
func (p *playwrightPage) Close() error {
	err := p.page.Close()
	_ = p.context.Close()
	_ = p.browser.Close()
	return err
}
