package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/llmtest"
)

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Orchestrator.MaxSteps)
	assert.Equal(t, 10, cfg.Orchestrator.DoerMaxSteps)
	assert.Equal(t, 2, cfg.Orchestrator.KeepToolOutputs)
	assert.True(t, cfg.Orchestrator.RequireDelegation)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, 15*time.Second, cfg.Server.Heartbeat)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	path := writeConfig(t, `
llm:
  api_key: file-key
  planner_model: planner-large
orchestrator:
  max_steps: 6
  require_delegation: false
storage:
  backend: sqlite
  dsn: /tmp/scout.db
server:
  heartbeat: 5s
  allowed_origins: ["https://app.example.com"]
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, "file-key", cfg.LLM.APIKey)
	assert.Equal(t, "planner-large", cfg.LLM.PlannerModel)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model, "unset fields keep defaults")
	assert.Equal(t, 6, cfg.Orchestrator.MaxSteps)
	assert.Equal(t, 10, cfg.Orchestrator.DoerMaxSteps)
	assert.False(t, cfg.Orchestrator.RequireDelegation)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, 5*time.Second, cfg.Server.Heartbeat)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Orchestrator, cfg.Orchestrator)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "malformed yaml", content: "llm: [", wantErr: "failed to parse"},
		{name: "bad backend", content: "storage:\n  backend: redis\n", wantErr: "invalid storage backend"},
		{name: "sqlite without dsn", content: "storage:\n  backend: sqlite\n", wantErr: "storage.dsn"},
		{name: "zero steps", content: "orchestrator:\n  max_steps: 0\n", wantErr: "max_steps"},
		{name: "negative keep", content: "orchestrator:\n  keep_tool_outputs: -1\n", wantErr: "keep_tool_outputs"},
		{name: "bad log format", content: "logging:\n  format: xml\n", wantErr: "logging format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "file-key"

	cfg.ApplyEnv(envMap(map[string]string{
		"OPENAI_API_KEY":        "env-key",
		"OPENAI_BASE_URL":       "https://proxy.example.com/v1",
		"SCOUT_DOER_MODEL":      "doer-small",
		"SCOUT_MAX_STEPS":       "4",
		"SCOUT_DOER_MAX_STEPS":  "not-a-number",
		"SCOUT_BROWSER_ENABLED": "false",
		"SCOUT_STORAGE_BACKEND": "memory",
		"SCOUT_LOG_LEVEL":       "debug",
	}))

	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "https://proxy.example.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "doer-small", cfg.LLM.DoerModel)
	assert.Equal(t, 4, cfg.Orchestrator.MaxSteps)
	assert.Equal(t, 10, cfg.Orchestrator.DoerMaxSteps, "unparseable values are ignored")
	assert.False(t, cfg.Browser.Enabled)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)

	untouched := DefaultConfig()
	untouched.ApplyEnv(noEnv)
	assert.Equal(t, DefaultConfig(), untouched)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.LLM.TesterModel = "tester-model"
	cfg.Browser.DeniedTools = []string{"browser_evaluate"}

	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tester-model", loaded.LLM.TesterModel)
	assert.Equal(t, []string{"browser_evaluate"}, loaded.Browser.DeniedTools)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestBuildProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	tests := []struct {
		name          string
		cfg           LLMConfig
		cliModel      string
		cliBaseURL    string
		cliAPIKey     string
		expectError   bool
		expectedModel string
		expectedKey   string
		expectedURL   string
	}{
		{
			name:          "CLI flags take precedence",
			cfg:           LLMConfig{Model: "cfg-model", BaseURL: "https://cfg.example.com", APIKey: "cfg-key"},
			cliModel:      "cli-model",
			cliBaseURL:    "https://cli.example.com",
			cliAPIKey:     "cli-key",
			expectedModel: "cli-model",
			expectedKey:   "cli-key",
			expectedURL:   "https://cli.example.com",
		},
		{
			name:          "config used when CLI empty",
			cfg:           LLMConfig{Model: "cfg-model", BaseURL: "https://cfg.example.com/", APIKey: "cfg-key"},
			expectedModel: "cfg-model",
			expectedKey:   "cfg-key",
			expectedURL:   "https://cfg.example.com",
		},
		{
			name:        "missing API key",
			cfg:         LLMConfig{Model: "cfg-model"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := BuildProvider(tt.cfg, tt.cliModel, tt.cliBaseURL, tt.cliAPIKey)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "API key is required")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedModel, provider.GetModel())
			assert.Equal(t, tt.expectedKey, provider.GetAPIKey())
			assert.Equal(t, tt.expectedURL, provider.GetBaseURL())
		})
	}
}

func TestBuildRouter(t *testing.T) {
	base := llmtest.NewScripted("ok")
	base.Model = "base-model"

	router, err := BuildRouter(LLMConfig{PlannerModel: "planner-model"}, base)

	require.NoError(t, err)
	assert.Equal(t, "planner-model", router.Model(llm.RolePlanner))
	assert.Equal(t, "planner-model", router.For(llm.RolePlanner).GetModel())
	assert.Equal(t, "base-model", router.Model(llm.RoleDoer))
}
