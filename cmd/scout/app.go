package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/conversation"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/telemetry"
	"github.com/entrhq/scout/pkg/tools/browser"
)

// app holds the dependencies shared by serve and run.
type app struct {
	cfg      *config.Config
	store    conversation.Store
	router   *llm.Router
	browser  *browser.SessionManager
	tools    *tools.ToolSet
	shutdown telemetry.ShutdownFunc
	logger   *logging.Logger
}

// newApp wires the store, providers, browser tools and tracing.
func newApp(ctx context.Context, cfg *config.Config, flags *globalFlags, withBrowser bool) (*app, error) {
	a := &app{cfg: cfg, logger: logging.NewLogger("scout")}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, err
	}
	a.shutdown = shutdown

	provider, err := config.BuildProvider(cfg.LLM, flags.model, flags.baseURL, flags.apiKey)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.router, err = config.BuildRouter(cfg.LLM, provider); err != nil {
		a.Close()
		return nil, err
	}

	if a.store, err = openStore(cfg.Storage); err != nil {
		a.Close()
		return nil, err
	}

	a.tools = tools.NewToolSet()
	if withBrowser && cfg.Browser.Enabled {
		a.browser = browser.NewSessionManager(browser.NewPlaywrightDriver(), browserOptions(cfg.Browser),
			browser.WithManagerLogger(logging.NewLogger("browser")))
		filter, err := tools.NewFilter(cfg.Browser.AllowedTools, cfg.Browser.DeniedTools)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.tools = browser.NewToolSet(a.browser).Filter(filter)
	}
	return a, nil
}

// Close releases everything newApp acquired.
func (a *app) Close() {
	if a.browser != nil {
		if err := a.browser.Shutdown(); err != nil {
			a.logger.Warnf("browser shutdown: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warnf("store close: %v", err)
		}
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warnf("telemetry shutdown: %v", err)
		}
	}
}

// openStore opens the configured conversation store. Relative file and
// database paths resolve under ~/.scout.
func openStore(cfg config.StorageConfig) (conversation.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return conversation.NewMemoryStore(), nil
	case config.BackendSQLite:
		path, err := underHome(cfg.DSN, "scout.db")
		if err != nil {
			return nil, err
		}
		return conversation.OpenSQLite(path)
	case config.BackendFile, "":
		dir, err := underHome(cfg.Dir, "sessions")
		if err != nil {
			return nil, err
		}
		return conversation.NewFileStore(dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func underHome(path, fallback string) (string, error) {
	if path == ":memory:" || filepath.IsAbs(path) {
		return path, nil
	}
	if path == "" {
		path = fallback
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".scout", path), nil
}

func browserOptions(cfg config.BrowserConfig) browser.SessionOptions {
	return browser.SessionOptions{
		Headless: cfg.Headless,
		Viewport: browser.Viewport{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height},
		Timeout:  time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
}
