package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PartKind discriminates the variants of Part. The set is closed.
type PartKind string

const (
	PartText         PartKind = "text"          // PartText carries user-visible text.
	PartReasoning    PartKind = "reasoning"     // PartReasoning carries model reasoning.
	PartToolCall     PartKind = "tool-call"     // PartToolCall carries one tool invocation and its result.
	PartStepBoundary PartKind = "step-boundary" // PartStepBoundary separates agent loop steps.
)

// ToolCallState is the lifecycle state of a tool-call part.
type ToolCallState string

const (
	ToolStateInputStreaming    ToolCallState = "input-streaming"
	ToolStateInputAvailable    ToolCallState = "input-available"
	ToolStateExecuting         ToolCallState = "executing"
	ToolStateOutputAvailable   ToolCallState = "output-available"
	ToolStateApprovalRequested ToolCallState = "approval-requested"
	ToolStateOutputError       ToolCallState = "output-error"
)

// Valid reports whether s is a known state.
func (s ToolCallState) Valid() bool {
	switch s {
	case ToolStateInputStreaming, ToolStateInputAvailable, ToolStateExecuting,
		ToolStateOutputAvailable, ToolStateApprovalRequested, ToolStateOutputError:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is expected.
func (s ToolCallState) Terminal() bool {
	return s == ToolStateOutputAvailable || s == ToolStateOutputError
}

// ToolCallPart is the payload of a tool-call part.
type ToolCallPart struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	State      ToolCallState   `json:"state"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

// OutputString returns the output decoded as a string when it is a JSON
// string, or the raw JSON otherwise.
func (t *ToolCallPart) OutputString() string {
	if len(t.Output) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(t.Output, &s); err == nil {
		return s
	}
	return string(t.Output)
}

// Part is one element of a message. Exactly one payload matches Kind:
// Text for text and reasoning, ToolCall for tool-call, none for step-boundary.
type Part struct {
	Kind     PartKind
	Text     string
	ToolCall *ToolCallPart
}

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// NewReasoningPart creates a reasoning part.
func NewReasoningPart(text string) Part {
	return Part{Kind: PartReasoning, Text: text}
}

// NewStepBoundaryPart creates a step-boundary part.
func NewStepBoundaryPart() Part {
	return Part{Kind: PartStepBoundary}
}

// NewToolCallPart creates a tool-call part in the input-available state.
// input is JSON-encoded; an encoding failure leaves the input empty.
func NewToolCallPart(id, name string, input any) Part {
	raw, _ := json.Marshal(input)
	return Part{
		Kind: PartToolCall,
		ToolCall: &ToolCallPart{
			ToolCallID: id,
			ToolName:   name,
			State:      ToolStateInputAvailable,
			Input:      raw,
		},
	}
}

// WithOutput returns a copy of a tool-call part moved to output-available.
func (p Part) WithOutput(output any) Part {
	out := p.Clone()
	if out.ToolCall == nil {
		return out
	}
	raw, err := json.Marshal(output)
	if err != nil {
		raw, _ = json.Marshal(fmt.Sprint(output))
	}
	out.ToolCall.State = ToolStateOutputAvailable
	out.ToolCall.Output = raw
	out.ToolCall.ErrorText = ""
	return out
}

// WithError returns a copy of a tool-call part moved to output-error.
func (p Part) WithError(msg string) Part {
	out := p.Clone()
	if out.ToolCall == nil {
		return out
	}
	out.ToolCall.State = ToolStateOutputError
	out.ToolCall.Output = nil
	out.ToolCall.ErrorText = msg
	return out
}

// HasOutput reports whether the part is a tool call with an available result.
func (p Part) HasOutput() bool {
	return p.Kind == PartToolCall && p.ToolCall != nil && p.ToolCall.State == ToolStateOutputAvailable
}

// Validate checks the variant invariants.
func (p Part) Validate() error {
	switch p.Kind {
	case PartText, PartReasoning:
		if p.ToolCall != nil {
			return fmt.Errorf("%s part must not carry a tool call", p.Kind)
		}
		return nil
	case PartStepBoundary:
		if p.ToolCall != nil || p.Text != "" {
			return fmt.Errorf("step-boundary part must be empty")
		}
		return nil
	case PartToolCall:
		if p.ToolCall == nil {
			return fmt.Errorf("tool-call part has no payload")
		}
		if p.ToolCall.ToolCallID == "" || p.ToolCall.ToolName == "" {
			return fmt.Errorf("tool-call part requires toolCallId and toolName")
		}
		if !p.ToolCall.State.Valid() {
			return fmt.Errorf("unknown tool-call state %q", p.ToolCall.State)
		}
		return nil
	default:
		return fmt.Errorf("unknown part type %q", p.Kind)
	}
}

// Clone returns a deep copy of the part.
func (p Part) Clone() Part {
	out := p
	if p.ToolCall != nil {
		tc := *p.ToolCall
		tc.Input = bytes.Clone(p.ToolCall.Input)
		tc.Output = bytes.Clone(p.ToolCall.Output)
		out.ToolCall = &tc
	}
	return out
}

type partJSON struct {
	Type PartKind `json:"type"`
	Text string   `json:"text,omitempty"`
	*ToolCallPart
}

// MarshalJSON encodes the part as a flat object discriminated by "type".
func (p Part) MarshalJSON() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Kind {
	case PartText, PartReasoning:
		return json.Marshal(struct {
			Type PartKind `json:"type"`
			Text string   `json:"text"`
		}{p.Kind, p.Text})
	case PartStepBoundary:
		return json.Marshal(struct {
			Type PartKind `json:"type"`
		}{p.Kind})
	case PartToolCall:
		return json.Marshal(partJSON{Type: p.Kind, ToolCallPart: p.ToolCall})
	default:
		return nil, fmt.Errorf("unknown part type %q", p.Kind)
	}
}

// UnmarshalJSON decodes a part and rejects unknown variants.
func (p *Part) UnmarshalJSON(data []byte) error {
	var raw partJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out Part
	switch raw.Type {
	case PartText, PartReasoning:
		out = Part{Kind: raw.Type, Text: raw.Text}
	case PartStepBoundary:
		out = Part{Kind: raw.Type}
	case PartToolCall:
		if raw.ToolCallPart == nil {
			return fmt.Errorf("tool-call part has no payload")
		}
		out = Part{Kind: raw.Type, ToolCall: raw.ToolCallPart}
	default:
		return fmt.Errorf("unknown part type %q", raw.Type)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*p = out
	return nil
}
