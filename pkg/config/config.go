// Package config loads the scout configuration file.
//
// Values are resolved in order: command-line flags, environment variables,
// the YAML file, then defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the root configuration.
type Config struct {
	LLM          LLMConfig          `yaml:"llm" json:"llm"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" json:"orchestrator"`
	Storage      StorageConfig      `yaml:"storage" json:"storage"`
	Browser      BrowserConfig      `yaml:"browser" json:"browser"`
	Server       ServerConfig       `yaml:"server" json:"server"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" json:"telemetry"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`

	// path is the file the config was loaded from, if any.
	path string
}

// LLMConfig selects the provider and the model used per role. Empty role
// models fall back to Model.
type LLMConfig struct {
	APIKey         string `yaml:"api_key" json:"api_key"`
	BaseURL        string `yaml:"base_url" json:"base_url"`
	Model          string `yaml:"model" json:"model"`
	PlannerModel   string `yaml:"planner_model" json:"planner_model"`
	DoerModel      string `yaml:"doer_model" json:"doer_model"`
	ExplorerModel  string `yaml:"explorer_model" json:"explorer_model"`
	TesterModel    string `yaml:"tester_model" json:"tester_model"`
	ModelCacheSize int    `yaml:"model_cache_size" json:"model_cache_size"`
}

// OrchestratorConfig bounds the planner and sub-agent loops.
type OrchestratorConfig struct {
	MaxSteps          int  `yaml:"max_steps" json:"max_steps"`
	DoerMaxSteps      int  `yaml:"doer_max_steps" json:"doer_max_steps"`
	KeepToolOutputs   int  `yaml:"keep_tool_outputs" json:"keep_tool_outputs"`
	RequireDelegation bool `yaml:"require_delegation" json:"require_delegation"`
}

// StorageConfig selects the conversation store.
type StorageConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	// Dir is the session directory for the file backend.
	Dir string `yaml:"dir" json:"dir"`
	// DSN is the database path for the sqlite backend.
	DSN string `yaml:"dsn" json:"dsn"`
}

// Viewport is the browser window size in pixels.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// BrowserConfig controls the browser tools.
type BrowserConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Headless  bool     `yaml:"headless" json:"headless"`
	Viewport  Viewport `yaml:"viewport" json:"viewport"`
	TimeoutMS int      `yaml:"timeout_ms" json:"timeout_ms"`
	// AllowedTools and DeniedTools are glob patterns over tool names.
	AllowedTools []string `yaml:"allowed_tools" json:"allowed_tools"`
	DeniedTools  []string `yaml:"denied_tools" json:"denied_tools"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr           string        `yaml:"addr" json:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins" json:"allowed_origins"`
	Heartbeat      time.Duration `yaml:"heartbeat" json:"heartbeat"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name" json:"service_name"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a configuration suitable for local use.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:          "gpt-4o",
			ModelCacheSize: 32,
		},
		Orchestrator: OrchestratorConfig{
			MaxSteps:          10,
			DoerMaxSteps:      10,
			KeepToolOutputs:   2,
			RequireDelegation: true,
		},
		Storage: StorageConfig{
			Backend: BackendFile,
		},
		Browser: BrowserConfig{
			Enabled:   true,
			Headless:  true,
			Viewport:  Viewport{Width: 1280, Height: 800},
			TimeoutMS: 30000,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			Heartbeat:      15 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "scout",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns ~/.scout/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".scout", "config.yaml"), nil
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error. If path is empty, DefaultPath is used.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// ApplyEnv overrides fields from environment variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(name string, dst *bool) {
		if v := getenv(name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("OPENAI_API_KEY", &c.LLM.APIKey)
	str("OPENAI_BASE_URL", &c.LLM.BaseURL)
	str("SCOUT_MODEL", &c.LLM.Model)
	str("SCOUT_PLANNER_MODEL", &c.LLM.PlannerModel)
	str("SCOUT_DOER_MODEL", &c.LLM.DoerModel)
	str("SCOUT_EXPLORER_MODEL", &c.LLM.ExplorerModel)
	str("SCOUT_TESTER_MODEL", &c.LLM.TesterModel)

	num("SCOUT_MAX_STEPS", &c.Orchestrator.MaxSteps)
	num("SCOUT_DOER_MAX_STEPS", &c.Orchestrator.DoerMaxSteps)

	str("SCOUT_STORAGE_BACKEND", &c.Storage.Backend)
	str("SCOUT_STORAGE_DIR", &c.Storage.Dir)
	str("SCOUT_STORAGE_DSN", &c.Storage.DSN)

	flag("SCOUT_BROWSER_ENABLED", &c.Browser.Enabled)
	flag("SCOUT_BROWSER_HEADLESS", &c.Browser.Headless)

	str("SCOUT_ADDR", &c.Server.Addr)

	flag("SCOUT_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	str("SCOUT_LOG_LEVEL", &c.Logging.Level)
	str("SCOUT_LOG_FORMAT", &c.Logging.Format)
	str("SCOUT_LOG_FILE", &c.Logging.File)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxSteps <= 0 {
		return fmt.Errorf("orchestrator.max_steps must be positive")
	}
	if c.Orchestrator.DoerMaxSteps <= 0 {
		return fmt.Errorf("orchestrator.doer_max_steps must be positive")
	}
	if c.Orchestrator.KeepToolOutputs < 0 {
		return fmt.Errorf("orchestrator.keep_tool_outputs cannot be negative")
	}
	if c.LLM.ModelCacheSize < 0 {
		return fmt.Errorf("llm.model_cache_size cannot be negative")
	}

	switch c.Storage.Backend {
	case BackendFile, BackendMemory:
	case BackendSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be 'file', 'sqlite', or 'memory')", c.Storage.Backend)
	}

	if c.Browser.TimeoutMS < 0 {
		return fmt.Errorf("browser.timeout_ms cannot be negative")
	}
	if c.Browser.Viewport.Width < 0 || c.Browser.Viewport.Height < 0 {
		return fmt.Errorf("browser.viewport cannot be negative")
	}

	if c.Server.Heartbeat < 0 {
		return fmt.Errorf("server.heartbeat cannot be negative")
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return fmt.Errorf("telemetry.service_name is required when telemetry is enabled")
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %s (must be 'console' or 'json')", c.Logging.Format)
	}
	return nil
}

// Save writes the config to path as YAML, replacing the file atomically.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}
	if path == "" {
		return fmt.Errorf("no config path")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	file, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tempPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0600); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	c.path = path
	return nil
}
