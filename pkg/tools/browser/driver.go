package browser

import (
	"context"
	"time"
)

// Default values for session options.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxSessions    = 5
	DefaultIdleTimeout    = 5 * time.Minute
	DefaultMaxLength      = 10000
)

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport Viewport

	// Timeout is the default timeout for page operations
	Timeout time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		o.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Page is a single browser tab.
type Page interface {
	// Goto loads url and waits for waitUntil: load, domcontentloaded or networkidle.
	Goto(url, waitUntil string) error
	Click(selector string) error
	Fill(selector, value string) error
	// WaitFor waits until selector reaches state: attached, detached, visible or hidden.
	WaitFor(selector, state string, timeout time.Duration) error
	// Content returns the page HTML.
	Content() (string, error)
	Title() (string, error)
	URL() string
	// Screenshot returns a PNG of the viewport, or the full page.
	Screenshot(fullPage bool) ([]byte, error)
	Evaluate(expression string) (interface{}, error)
	Close() error
}

// Driver launches browser pages.
type Driver interface {
	NewPage(ctx context.Context, opts SessionOptions) (Page, error)
	// Close releases the driver. Pages must be closed first.
	Close() error
}
