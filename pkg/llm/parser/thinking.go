// Package parser separates model reasoning from answer text.
package parser

import (
	"strings"

	"github.com/entrhq/scout/pkg/llm"
)

// ThinkingParser splits streamed content into reasoning inside <thinking>
// (or <think>) tags and ordinary message text. Tags may be split across
// chunks; a '<' that never becomes a reasoning tag is passed through.
type ThinkingParser struct {
	text       strings.Builder
	tag        strings.Builder
	inTag      bool
	inThinking bool
}

// NewThinkingParser creates a parser in message mode.
func NewThinkingParser() *ThinkingParser {
	return &ThinkingParser{}
}

// Parse consumes one chunk. Either result may be nil.
func (p *ThinkingParser) Parse(content string) (thinkingChunk, messageChunk *llm.StreamChunk) {
	var out chunkPair
	for _, ch := range content {
		switch {
		case ch == '<':
			if p.inTag {
				out.add(p.chunk(p.takeTag()))
			}
			out.add(p.chunk(p.takeText()))
			p.inTag = true
			p.tag.WriteRune(ch)
		case ch == '>' && p.inTag:
			p.tag.WriteRune(ch)
			p.inTag = false
			tag := p.takeTag()
			switch tag {
			case "<thinking>", "<think>":
				p.inThinking = true
			case "</thinking>", "</think>":
				p.inThinking = false
			default:
				out.add(p.chunk(tag))
			}
		case p.inTag:
			p.tag.WriteRune(ch)
		default:
			p.text.WriteRune(ch)
		}
	}
	out.add(p.chunk(p.takeText()))
	return out.thinking, out.message
}

// Flush emits a dangling partial tag and any buffered text. Call it once the
// stream ends.
func (p *ThinkingParser) Flush() (thinkingChunk, messageChunk *llm.StreamChunk) {
	var out chunkPair
	if p.inTag {
		out.add(p.chunk(p.takeTag()))
		p.inTag = false
	}
	out.add(p.chunk(p.takeText()))
	return out.thinking, out.message
}

// IsInThinking reports whether the parser is inside a reasoning section.
func (p *ThinkingParser) IsInThinking() bool {
	return p.inThinking
}

// Reset prepares the parser for a new stream.
func (p *ThinkingParser) Reset() {
	p.text.Reset()
	p.tag.Reset()
	p.inTag = false
	p.inThinking = false
}

func (p *ThinkingParser) takeText() string {
	s := p.text.String()
	p.text.Reset()
	return s
}

func (p *ThinkingParser) takeTag() string {
	s := p.tag.String()
	p.tag.Reset()
	return s
}

func (p *ThinkingParser) chunk(text string) *llm.StreamChunk {
	if text == "" {
		return nil
	}
	kind := llm.ContentTypeMessage
	if p.inThinking {
		kind = llm.ContentTypeThinking
	}
	return &llm.StreamChunk{Content: text, Type: kind}
}

type chunkPair struct {
	thinking, message *llm.StreamChunk
}

func (c *chunkPair) add(chunk *llm.StreamChunk) {
	if chunk == nil {
		return
	}
	dst := &c.message
	if chunk.Type == llm.ContentTypeThinking {
		dst = &c.thinking
	}
	if *dst == nil {
		*dst = chunk
		return
	}
	(*dst).Content += chunk.Content
}

// Split separates a complete response into reasoning and message text.
func Split(text string) (thinking, message string) {
	p := NewThinkingParser()
	var b chunkPair
	t1, m1 := p.Parse(text)
	t2, m2 := p.Flush()
	for _, c := range []*llm.StreamChunk{t1, m1, t2, m2} {
		b.add(c)
	}
	if b.thinking != nil {
		thinking = b.thinking.Content
	}
	if b.message != nil {
		message = b.message.Content
	}
	return strings.TrimSpace(thinking), strings.TrimSpace(message)
}
