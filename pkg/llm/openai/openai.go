// Package openai provides an OpenAI-compatible provider for the planner and
// doer roles.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    panic(err)
//	}
//
//	reply, err := provider.Complete(ctx, []*llm.Message{llm.NewUserMessage("Hello!")})
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/parser"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"

	defaultTimeout = 5 * time.Minute
)

// Provider implements llm.Provider for OpenAI-compatible chat completion APIs.
type Provider struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature *float64
	modelInfo   *llm.ModelInfo
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithTemperature sets the sampling temperature sent with each request.
func WithTemperature(t float64) ProviderOption {
	return func(p *Provider) {
		p.temperature = &t
	}
}

// NewProvider creates a provider with the given API key.
//
// If apiKey is empty, OPENAI_API_KEY is used. If no base URL option is given,
// OPENAI_BASE_URL is consulted before falling back to DefaultBaseURL.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{
		model:      DefaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = strings.TrimRight(envBaseURL, "/")
		}
	}

	p.modelInfo = &llm.ModelInfo{
		Provider:          "openai",
		Name:              p.model,
		SupportsStreaming: true,
		MaxTokens:         8192,
		Metadata:          make(map[string]interface{}),
	}
	if p.baseURL != DefaultBaseURL {
		p.modelInfo.Metadata["base_url"] = p.baseURL
	}
	return p, nil
}

// CloneWithModel returns a shallow copy of p configured to use the given
// model. The clone shares the HTTP client and credentials.
func (p *Provider) CloneWithModel(model string) llm.Provider {
	clone := *p
	clone.model = model
	if p.modelInfo != nil {
		mi := *p.modelInfo
		mi.Name = model
		clone.modelInfo = &mi
	}
	return &clone
}

// StreamCompletion sends messages to the API and streams back response chunks.
//
// SSE lines are read directly rather than through the SDK client so that
// compatible servers emitting comments or keep-alive lines still work.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*llm.Message) (<-chan *llm.StreamChunk, error) {
	resp, err := p.sendStreamRequest(ctx, messages)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *llm.StreamChunk, 10)
	r := &streamReader{ctx: ctx, out: chunks, thinking: parser.NewThinkingParser(), first: true}
	go r.run(resp)
	return chunks, nil
}

func (p *Provider) requestBody(messages []*llm.Message) ([]byte, error) {
	body := map[string]interface{}{
		"model":    p.model,
		"messages": convertToOpenAIMessages(messages),
		"stream":   true,
	}
	if p.temperature != nil {
		body["temperature"] = *p.temperature
	}
	return json.Marshal(body)
}

func (p *Provider) sendStreamRequest(ctx context.Context, messages []*llm.Message) (*http.Response, error) {
	bodyBytes, err := p.requestBody(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("API request failed with status %d (failed to read error body: %w)", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

// streamReader turns an SSE response body into StreamChunks.
type streamReader struct {
	ctx      context.Context
	out      chan<- *llm.StreamChunk
	thinking *parser.ThinkingParser
	first    bool
	role     string
}

type sseChunk struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (r *streamReader) run(resp *http.Response) {
	defer close(r.out)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			r.flush()
			r.send(&llm.StreamChunk{Finished: true, Role: r.role})
			return
		}
		if !r.handle(data) {
			return
		}
	}

	r.flush()
	if err := scanner.Err(); err != nil {
		r.send(&llm.StreamChunk{Error: fmt.Errorf("stream read error: %w", err)})
	}
}

// handle processes one data payload. It returns false when the consumer is gone.
func (r *streamReader) handle(data string) bool {
	var chunk sseChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil || len(chunk.Choices) == 0 {
		return true
	}
	delta := chunk.Choices[0].Delta
	if r.first && delta.Role != "" {
		r.role = delta.Role
		r.first = false
	}
	if delta.Content != "" {
		thinking, message := r.thinking.Parse(delta.Content)
		for _, c := range []*llm.StreamChunk{thinking, message} {
			if c == nil {
				continue
			}
			c.Role = r.role
			if !r.send(c) {
				return false
			}
		}
	}
	return true
}

func (r *streamReader) flush() {
	thinking, message := r.thinking.Flush()
	r.send(thinking)
	r.send(message)
}

func (r *streamReader) send(c *llm.StreamChunk) bool {
	if c == nil {
		return true
	}
	select {
	case r.out <- c:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// Complete sends messages to the API and returns the full response. Reasoning
// inside <thinking> tags is stripped from the returned content.
func (p *Provider) Complete(ctx context.Context, messages []*llm.Message) (*llm.Message, error) {
	stream, err := p.StreamCompletion(ctx, messages)
	if err != nil {
		return nil, err
	}
	_, content, err := llm.Collect(stream)
	if err != nil {
		return nil, err
	}
	return llm.NewAssistantMessage(content), nil
}

// GetModelInfo returns information about the model being used.
func (p *Provider) GetModelInfo() *llm.ModelInfo {
	return p.modelInfo
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// GetBaseURL returns the base URL being used.
func (p *Provider) GetBaseURL() string {
	return p.baseURL
}

// GetAPIKey returns the API key being used.
func (p *Provider) GetAPIKey() string {
	return p.apiKey
}

// convertToOpenAIMessages converts flat messages to the SDK's message param union.
func convertToOpenAIMessages(messages []*llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
