package config

import (
	"fmt"

	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/openai"
)

// BuildProvider creates the base LLM provider. Non-empty CLI values take
// precedence over the loaded configuration, which already carries any
// environment overrides.
func BuildProvider(cfg LLMConfig, cliModel, cliBaseURL, cliAPIKey string) (*openai.Provider, error) {
	model := cfg.Model
	if cliModel != "" {
		model = cliModel
	}
	baseURL := cfg.BaseURL
	if cliBaseURL != "" {
		baseURL = cliBaseURL
	}
	apiKey := cfg.APIKey
	if cliAPIKey != "" {
		apiKey = cliAPIKey
	}

	if apiKey == "" {
		return nil, fmt.Errorf("API key is required. Set OPENAI_API_KEY environment variable, use --api-key flag, or configure llm.api_key in ~/.scout/config.yaml")
	}

	providerOpts := []openai.ProviderOption{
		openai.WithModel(model),
	}
	if baseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(baseURL))
	}

	provider, err := openai.NewProvider(apiKey, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	return provider, nil
}

// RoleModels maps role names to their configured models.
func (c LLMConfig) RoleModels() map[string]string {
	return map[string]string{
		llm.RolePlanner:  c.PlannerModel,
		llm.RoleDoer:     c.DoerModel,
		llm.RoleExplorer: c.ExplorerModel,
		llm.RoleTester:   c.TesterModel,
	}
}

// BuildRouter wraps base in a router using the per-role models.
func BuildRouter(cfg LLMConfig, base llm.Provider) (*llm.Router, error) {
	return llm.NewRouter(base, cfg.RoleModels(), cfg.ModelCacheSize)
}
