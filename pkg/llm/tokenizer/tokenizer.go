// Package tokenizer counts tokens for model-facing messages using tiktoken,
// falling back to a character heuristic when the encoding cannot be loaded.
package tokenizer

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/entrhq/scout/pkg/llm"
)

const (
	defaultEncoding = "cl100k_base"

	// perMessageOverhead approximates the role/separator tokens the chat
	// format adds around each message.
	perMessageOverhead = 4
)

// Tokenizer counts tokens. The zero value uses the heuristic only.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New loads the cl100k_base encoding. If loading fails the returned
// tokenizer still works using the heuristic.
func New() *Tokenizer {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return &Tokenizer{}
	}
	return &Tokenizer{encoding: enc}
}

// Exact reports whether counts come from the real encoding.
func (t *Tokenizer) Exact() bool {
	return t != nil && t.encoding != nil
}

// CountText returns the number of tokens in text.
func (t *Tokenizer) CountText(text string) int {
	if t.Exact() {
		return len(t.encoding.Encode(text, nil, nil))
	}
	return estimate(text)
}

// CountMessages returns the token count of a model-facing conversation.
func (t *Tokenizer) CountMessages(messages []*llm.Message) int {
	total := 0
	for _, m := range messages {
		if m == nil {
			continue
		}
		total += perMessageOverhead + t.CountText(string(m.Role)) + t.CountText(m.Content)
	}
	return total
}

func estimate(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	n := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); n < words {
		n = words
	}
	if n == 0 {
		n = 1
	}
	return n
}
