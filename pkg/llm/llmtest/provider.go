// Package llmtest provides llm.Provider fakes for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/entrhq/scout/pkg/llm"
)

// MockProvider is a testify mock of llm.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) StreamCompletion(ctx context.Context, messages []*llm.Message) (<-chan *llm.StreamChunk, error) {
	args := m.Called(ctx, messages)
	if ch := args.Get(0); ch != nil {
		return ch.(<-chan *llm.StreamChunk), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) Complete(ctx context.Context, messages []*llm.Message) (*llm.Message, error) {
	args := m.Called(ctx, messages)
	if msg := args.Get(0); msg != nil {
		return msg.(*llm.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) GetModelInfo() *llm.ModelInfo {
	return &llm.ModelInfo{Provider: "mock", Name: m.GetModel()}
}

func (m *MockProvider) GetModel() string { return "mock-model" }

func (m *MockProvider) GetBaseURL() string { return "" }

func (m *MockProvider) GetAPIKey() string { return "" }

// Scripted replays a fixed list of replies, one per Complete call, and
// records every request. When the script runs out it returns an error.
// Reply may also be a func(messages) string for dynamic answers.
type Scripted struct {
	Model string

	mu       sync.Mutex
	replies  []interface{}
	requests [][]*llm.Message
}

// NewScripted creates a scripted provider. Each reply is a string, an error,
// or a func([]*llm.Message) string.
func NewScripted(replies ...interface{}) *Scripted {
	return &Scripted{Model: "scripted", replies: replies}
}

// Complete returns the next scripted reply.
func (s *Scripted) Complete(_ context.Context, messages []*llm.Message) (*llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]*llm.Message, len(messages))
	for i, m := range messages {
		cp := *m
		snapshot[i] = &cp
	}
	s.requests = append(s.requests, snapshot)

	if len(s.replies) == 0 {
		return nil, fmt.Errorf("scripted provider: no reply left for call %d", len(s.requests))
	}
	next := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	} else if _, dynamic := next.(func([]*llm.Message) string); !dynamic {
		s.replies = nil
	}

	switch r := next.(type) {
	case string:
		return llm.NewAssistantMessage(r), nil
	case error:
		return nil, r
	case func([]*llm.Message) string:
		return llm.NewAssistantMessage(r(snapshot)), nil
	default:
		return nil, fmt.Errorf("scripted provider: unsupported reply %T", next)
	}
}

// StreamCompletion delivers the next scripted reply as a single chunk.
func (s *Scripted) StreamCompletion(ctx context.Context, messages []*llm.Message) (<-chan *llm.StreamChunk, error) {
	msg, err := s.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan *llm.StreamChunk, 2)
	ch <- &llm.StreamChunk{Role: string(llm.RoleAssistant), Content: msg.Content, Type: llm.ContentTypeMessage}
	ch <- &llm.StreamChunk{Finished: true}
	close(ch)
	return ch, nil
}

// Requests returns a copy of every request received so far.
func (s *Scripted) Requests() [][]*llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]*llm.Message, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns how many requests were made.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Scripted) GetModelInfo() *llm.ModelInfo {
	return &llm.ModelInfo{Provider: "scripted", Name: s.Model}
}

func (s *Scripted) GetModel() string { return s.Model }

func (s *Scripted) GetBaseURL() string { return "" }

func (s *Scripted) GetAPIKey() string { return "" }

// CloneWithModel returns a provider sharing the same script.
func (s *Scripted) CloneWithModel(model string) llm.Provider {
	return &clone{Scripted: s, model: model}
}

type clone struct {
	*Scripted
	model string
}

func (c *clone) GetModel() string { return c.model }
