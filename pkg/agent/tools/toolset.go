package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
)

// Outcome is the uniform result of executing a tool through a ToolSet.
// Errors, panics and unknown tools all produce Success=false with Err set.
type Outcome struct {
	Success  bool
	Output   string
	Metadata map[string]interface{}
	Err      error
}

// ToolSet is a named collection of tools and the capability provider the
// agent loops call into.
type ToolSet struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewToolSet creates a tool set. Later tools with a duplicate name replace
// earlier ones.
func NewToolSet(ts ...Tool) *ToolSet {
	s := &ToolSet{tools: make(map[string]Tool)}
	for _, t := range ts {
		s.Register(t)
	}
	return s
}

// Register adds or replaces a tool.
func (s *ToolSet) Register(t Tool) {
	if t == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[t.Name()]; !exists {
		s.order = append(s.order, t.Name())
	}
	s.tools[t.Name()] = t
}

// Get returns the tool with the given name.
func (s *ToolSet) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

// List returns the tools in registration order.
func (s *ToolSet) List() []Tool {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name])
	}
	return out
}

// Names returns the sorted tool names.
func (s *ToolSet) Names() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tools.
func (s *ToolSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tools)
}

// Filter returns a new set holding only the tools f allows.
func (s *ToolSet) Filter(f *Filter) *ToolSet {
	out := NewToolSet()
	for _, t := range s.List() {
		if f.Allows(t.Name()) {
			out.Register(t)
		}
	}
	return out
}

// Merge returns a new set containing the tools of s followed by others.
func (s *ToolSet) Merge(others ...*ToolSet) *ToolSet {
	out := NewToolSet(s.List()...)
	for _, o := range others {
		for _, t := range o.List() {
			out.Register(t)
		}
	}
	return out
}

// Execute runs a parsed tool call. It never panics and never returns an
// error; failures are reported in the Outcome.
func (s *ToolSet) Execute(ctx context.Context, call *ToolCall) (out Outcome) {
	if call == nil {
		return Outcome{Err: fmt.Errorf("no tool call")}
	}
	tool, ok := s.Get(call.ToolName)
	if !ok {
		return Outcome{Err: fmt.Errorf("unknown tool %q (available: %v)", call.ToolName, s.Names())}
	}

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Errorf("tool %s panicked: %v\n%s", call.ToolName, r, debug.Stack())}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Outcome{Err: err}
	}
	result, metadata, err := tool.Execute(ctx, call.GetArgumentsXML())
	if err != nil {
		return Outcome{Output: result, Metadata: metadata, Err: err}
	}
	return Outcome{Success: true, Output: result, Metadata: metadata}
}
