package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func feed(p *ThinkingParser, chunks ...string) (thinking, message string) {
	for _, c := range chunks {
		t, m := p.Parse(c)
		if t != nil {
			thinking += t.Content
		}
		if m != nil {
			message += m.Content
		}
	}
	t, m := p.Flush()
	if t != nil {
		thinking += t.Content
	}
	if m != nil {
		message += m.Content
	}
	return thinking, message
}

func TestThinkingParserStreamsAcrossChunks(t *testing.T) {
	p := NewThinkingParser()

	thinking, message := feed(p,
		"<thin", "king>",
		"The cart badge shows count>0, ",
		"so wait until items<3 before checkout.",
		"</thin", "king>",
		"\nTASK: click #checkout",
	)

	assert.False(t, p.IsInThinking())
	assert.Contains(t, thinking, "count>0")
	assert.Contains(t, thinking, "items<3")
	assert.Contains(t, message, "TASK: click #checkout")
	assert.NotContains(t, message, "items<3")
}

func TestThinkingParserShortTag(t *testing.T) {
	p := NewThinkingParser()

	thinking, message := feed(p, "<think>", "login first", "</think>", "FINISH: logged in")

	assert.Equal(t, "login first", thinking)
	assert.Equal(t, "FINISH: logged in", message)
}

func TestThinkingParserReset(t *testing.T) {
	p := NewThinkingParser()
	p.Parse("<thinking>half a thought")
	assert.True(t, p.IsInThinking())

	p.Reset()

	assert.False(t, p.IsInThinking())
	_, message := feed(p, "plain answer")
	assert.Equal(t, "plain answer", message)
}
