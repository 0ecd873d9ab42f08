// Package browser provides web browser automation for the explorer and
// tester agents.
//
// A SessionManager holds one lazily launched browser session per
// conversation key. The key is carried in the request context, so the
// same tool values serve every conversation:
//
//	manager := browser.NewSessionManager(browser.NewPlaywrightDriver(), opts)
//	ctx = browser.WithSessionKey(ctx, "testing")
//	toolset := browser.NewToolSet(manager)
//
// Pages are driven through the Driver and Page interfaces. The Playwright
// implementation is used in production; tests supply a fake.
package browser
