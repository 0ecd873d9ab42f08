// Package compaction bounds the tool output carried in a transcript before
// it is sent to a model.
//
// Only the most recent tool outputs are relevant to the next decision.
// Earlier outputs (page snapshots, screenshots, evaluated scripts) are
// replaced with a short sentinel while the call itself stays visible, so
// the model still sees which tools ran with which inputs.
package compaction

import (
	"encoding/json"

	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/types"
)

// RedactedOutput replaces the output of an old tool call.
const RedactedOutput = "removed"

// DefaultKeep is the number of most recent tool outputs left untouched.
const DefaultKeep = 2

var redactedJSON, _ = json.Marshal(RedactedOutput) //nolint:errcheck

// Compact returns a deep copy of messages in which every output-available
// tool call except the last keep (in document order) has its output
// replaced with RedactedOutput. The input is never modified. Applying
// Compact to its own result with the same keep changes nothing.
func Compact(messages []types.Message, keep int) []types.Message {
	if keep < 0 {
		keep = 0
	}
	out := types.CloneMessages(messages)

	total := 0
	for _, m := range out {
		for _, p := range m.Parts {
			if p.HasOutput() {
				total++
			}
		}
	}

	redact := total - keep
	if redact <= 0 {
		return out
	}

	for i := range out {
		for j := range out[i].Parts {
			if redact == 0 {
				return out
			}
			p := &out[i].Parts[j]
			if !p.HasOutput() {
				continue
			}
			p.ToolCall.Output = append(json.RawMessage(nil), redactedJSON...)
			redact--
		}
	}
	return out
}

// DropEmpty removes messages without parts. Callers apply it after
// compaction when assembling model input.
func DropEmpty(messages []types.Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if len(m.Parts) == 0 {
			continue
		}
		out = append(out, m)
	}
	return out
}

// TokenCounter counts the tokens of model-facing messages.
type TokenCounter interface {
	CountMessages(messages []*llm.Message) int
}

// Stats describes one compaction pass.
type Stats struct {
	Redacted     int
	Kept         int
	TokensBefore int
	TokensAfter  int
}

// Compactor runs Compact with a configured keep count and reports what it saved.
type Compactor struct {
	Keep    int
	Counter TokenCounter
}

// NewCompactor creates a compactor. A negative keep falls back to DefaultKeep.
func NewCompactor(keep int, counter TokenCounter) *Compactor {
	if keep < 0 {
		keep = DefaultKeep
	}
	return &Compactor{Keep: keep, Counter: counter}
}

// Compact compacts messages, drops empty ones, and returns statistics.
// Token counts are zero when no counter is configured.
func (c *Compactor) Compact(messages []types.Message) ([]types.Message, Stats) {
	compacted := DropEmpty(Compact(messages, c.Keep))

	before := liveOutputs(messages)
	stats := Stats{Kept: liveOutputs(compacted)}
	stats.Redacted = before - stats.Kept

	if c.Counter != nil {
		stats.TokensBefore = c.Counter.CountMessages(llm.FromTranscript(messages))
		stats.TokensAfter = c.Counter.CountMessages(llm.FromTranscript(compacted))
	}
	return compacted, stats
}

func liveOutputs(messages []types.Message) int {
	n := 0
	for _, m := range messages {
		for _, p := range m.Parts {
			if p.HasOutput() && p.ToolCall.OutputString() != RedactedOutput {
				n++
			}
		}
	}
	return n
}
