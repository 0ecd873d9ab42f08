package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/entrhq/scout/pkg/agent/tools"
)

var validWaitUntil = map[string]bool{"load": true, "domcontentloaded": true, "networkidle": true}

var validWaitStates = map[string]bool{"attached": true, "detached": true, "visible": true, "hidden": true}

// NewToolSet returns every browser tool bound to manager.
func NewToolSet(manager *SessionManager) *tools.ToolSet {
	return tools.NewToolSet(
		&NavigateTool{manager: manager},
		&ClickTool{manager: manager},
		&FillTool{manager: manager},
		&WaitTool{manager: manager},
		&SnapshotTool{manager: manager},
		&ScreenshotTool{manager: manager},
		&EvaluateTool{manager: manager},
	)
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func parseInput(argsXML []byte, v interface{}) error {
	if err := tools.UnmarshalXMLWithFallback(argsXML, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// run resolves the session from ctx and runs fn on its page.
func run(ctx context.Context, m *SessionManager, fn func(Page) error) error {
	s, err := m.FromContext(ctx)
	if err != nil {
		return err
	}
	return s.Do(fn)
}

// NavigateTool opens a URL.
type NavigateTool struct {
	manager *SessionManager
}

// NavigateInput represents the parameters for navigation.
type NavigateInput struct {
	XMLName   xml.Name `xml:"arguments"`
	URL       string   `xml:"url"`
	WaitUntil string   `xml:"wait_until"`
}

func (t *NavigateTool) Name() string { return "browser_navigate" }

func (t *NavigateTool) Description() string {
	return "Open a URL in the browser and wait for the page to load. Returns the final URL and page title."
}

func (t *NavigateTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"url":        prop("string", "Absolute URL to open, including the protocol"),
		"wait_until": prop("string", "When navigation is complete: 'load' (default), 'domcontentloaded', or 'networkidle'"),
	}, []string{"url"})
}

func (t *NavigateTool) IsLoopBreaking() bool { return false }

func (t *NavigateTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input NavigateInput
	if err := parseInput(argsXML, &input); err != nil {
		return "", nil, err
	}
	if input.URL == "" {
		return "", nil, fmt.Errorf("url is required")
	}
	if input.WaitUntil == "" {
		input.WaitUntil = "load"
	}
	if !validWaitUntil[input.WaitUntil] {
		return "", nil, fmt.Errorf("invalid wait_until value: %s (must be 'load', 'domcontentloaded', or 'networkidle')", input.WaitUntil)
	}

	var url, title string
	err := run(ctx, t.manager, func(p Page) error {
		if err := p.Goto(input.URL, input.WaitUntil); err != nil {
			return err
		}
		url = p.URL()
		title, _ = p.Title() //nolint:errcheck
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Navigated to %s\nTitle: %s", url, title), map[string]interface{}{"url": url}, nil
}

// ClickTool clicks an element.
type ClickTool struct {
	manager *SessionManager
}

// SelectorInput is the input of tools that only take a selector.
type SelectorInput struct {
	XMLName  xml.Name `xml:"arguments"`
	Selector string   `xml:"selector"`
}

func (t *ClickTool) Name() string { return "browser_click" }

func (t *ClickTool) Description() string {
	return "Click the element matching a CSS or Playwright selector. Returns the URL after the click."
}

func (t *ClickTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"selector": prop("string", "Selector of the element to click, for example #login-button or text=Add to cart"),
	}, []string{"selector"})
}

func (t *ClickTool) IsLoopBreaking() bool { return false }

func (t *ClickTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input SelectorInput
	if err := parseInput(argsXML, &input); err != nil {
		return "", nil, err
	}
	if input.Selector == "" {
		return "", nil, fmt.Errorf("selector is required")
	}

	var url string
	err := run(ctx, t.manager, func(p Page) error {
		if err := p.Click(input.Selector); err != nil {
			return err
		}
		url = p.URL()
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Clicked %s\nURL: %s", input.Selector, url), nil, nil
}

// FillTool types into an input.
type FillTool struct {
	manager *SessionManager
}

// FillInput represents the parameters for filling an input.
type FillInput struct {
	XMLName  xml.Name `xml:"arguments"`
	Selector string   `xml:"selector"`
	Value    string   `xml:"value"`
}

func (t *FillTool) Name() string { return "browser_fill" }

func (t *FillTool) Description() string {
	return "Replace the value of an input, textarea or contenteditable element."
}

func (t *FillTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"selector": prop("string", "Selector of the input element"),
		"value":    prop("string", "Text to enter"),
	}, []string{"selector", "value"})
}

func (t *FillTool) IsLoopBreaking() bool { return false }

func (t *FillTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input FillInput
	if err := parseInput(argsXML, &input); err != nil {
		return "", nil, err
	}
	if input.Selector == "" {
		return "", nil, fmt.Errorf("selector is required")
	}

	err := run(ctx, t.manager, func(p Page) error {
		return p.Fill(input.Selector, input.Value)
	})
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Filled %s", input.Selector), nil, nil
}

// WaitTool waits for an element state.
type WaitTool struct {
	manager *SessionManager
}

// WaitInput represents the parameters for waiting.
type WaitInput struct {
	XMLName   xml.Name `xml:"arguments"`
	Selector  string   `xml:"selector"`
	State     string   `xml:"state"`
	TimeoutMS int      `xml:"timeout_ms"`
}

func (t *WaitTool) Name() string { return "browser_wait" }

func (t *WaitTool) Description() string {
	return "Wait until the element matching a selector is attached, detached, visible or hidden."
}

func (t *WaitTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"selector":   prop("string", "Selector to wait for"),
		"state":      prop("string", "State to wait for: 'visible' (default), 'attached', 'detached', or 'hidden'"),
		"timeout_ms": prop("integer", "Maximum wait in milliseconds"),
	}, []string{"selector"})
}

func (t *WaitTool) IsLoopBreaking() bool { return false }

func (t *WaitTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input WaitInput
	if err := parseInput(argsXML, &input); err != nil {
		return "", nil, err
	}
	if input.Selector == "" {
		return "", nil, fmt.Errorf("selector is required")
	}
	if input.State == "" {
		input.State = "visible"
	}
	if !validWaitStates[input.State] {
		return "", nil, fmt.Errorf("invalid state: %s (must be 'attached', 'detached', 'visible', or 'hidden')", input.State)
	}
	if input.TimeoutMS < 0 {
		return "", nil, fmt.Errorf("timeout_ms cannot be negative")
	}

	timeout := time.Duration(input.TimeoutMS) * time.Millisecond
	err := run(ctx, t.manager, func(p Page) error {
		return p.WaitFor(input.Selector, input.State, timeout)
	})
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s is %s", input.Selector, input.State), nil, nil
}

// SnapshotTool describes the current page.
type SnapshotTool struct {
	manager *SessionManager
}

// SnapshotInput represents the parameters for a snapshot.
type SnapshotInput struct {
	XMLName   xml.Name `xml:"arguments"`
	MaxLength int      `xml:"max_length"`
}

func (t *SnapshotTool) Name() string { return "browser_snapshot" }

func (t *SnapshotTool) Description() string {
	return "Describe the current page: title, URL, interactive elements with selectors, and the cleaned page structure. Use it before clicking or filling."
}

func (t *SnapshotTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"max_length": prop("integer", "Maximum characters of page content (default 10000)"),
	}, nil)
}

func (t *SnapshotTool) IsLoopBreaking() bool { return false }

func (t *SnapshotTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input SnapshotInput
	if err := parseInput(argsXML, &input); err != nil {
		return "", nil, err
	}

	var url, content string
	err := run(ctx, t.manager, func(p Page) error {
		url = p.URL()
		var err error
		content, err = p.Content()
		return err
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to read page: %w", err)
	}

	snap, err := Snapshot(content, input.MaxLength)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("URL: %s\n%s", url, snap.String()), map[string]interface{}{
		"url":       url,
		"elements":  len(snap.Elements),
		"truncated": snap.Truncated,
	}, nil
}

// ScreenshotTool captures the page as PNG.
type ScreenshotTool struct {
	manager *SessionManager
}

// ScreenshotInput represents the parameters for a screenshot.
type ScreenshotInput struct {
	XMLName  xml.Name `xml:"arguments"`
	FullPage bool     `xml:"full_page"`
}

func (t *ScreenshotTool) Name() string { return "browser_screenshot" }

func (t *ScreenshotTool) Description() string {
	return "Capture a PNG screenshot of the page. Returns the image as base64."
}

func (t *ScreenshotTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"full_page": prop("boolean", "Capture the full scrollable page instead of the viewport"),
	}, nil)
}

func (t *ScreenshotTool) IsLoopBreaking() bool { return false }

func (t *ScreenshotTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input ScreenshotInput
	if err := parseInput(argsXML, &input); err != nil {
		return "", nil, err
	}

	var png []byte
	err := run(ctx, t.manager, func(p Page) error {
		var err error
		png, err = p.Screenshot(input.FullPage)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), map[string]interface{}{
		"bytes":     len(png),
		"full_page": input.FullPage,
	}, nil
}

// EvaluateTool runs JavaScript in the page.
type EvaluateTool struct {
	manager *SessionManager
}

// EvaluateInput represents the parameters for evaluation.
type EvaluateInput struct {
	XMLName    xml.Name `xml:"arguments"`
	Expression string   `xml:"expression"`
}

func (t *EvaluateTool) Name() string { return "browser_evaluate" }

func (t *EvaluateTool) Description() string {
	return "Evaluate a JavaScript expression in the page and return its JSON result. Wrap statements in an arrow function: () => { ... }."
}

func (t *EvaluateTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"expression": prop("string", "JavaScript expression or function to evaluate"),
	}, []string{"expression"})
}

func (t *EvaluateTool) IsLoopBreaking() bool { return false }

func (t *EvaluateTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input EvaluateInput
	if err := parseInput(argsXML, &input); err != nil {
		return "", nil, err
	}
	if input.Expression == "" {
		return "", nil, fmt.Errorf("expression is required")
	}

	var result interface{}
	err := run(ctx, t.manager, func(p Page) error {
		var err error
		result, err = p.Evaluate(input.Expression)
		return err
	})
	if err != nil {
		return "", nil, fmt.Errorf("JavaScript execution failed: %w", err)
	}

	if result == nil {
		return "undefined", nil, nil
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", result), nil, nil
	}
	return string(out), nil, nil
}
