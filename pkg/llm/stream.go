package llm

// ContentType distinguishes reasoning from visible message content in a chunk.
type ContentType string

const (
	ContentTypeMessage  ContentType = "message"
	ContentTypeThinking ContentType = "thinking"
)

// StreamChunk is one increment of a streamed completion.
type StreamChunk struct {
	Content  string
	Role     string
	Type     ContentType
	Finished bool
	Error    error
}

// IsError reports whether the chunk carries a stream error.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}

// IsThinking reports whether the chunk is reasoning content.
func (c *StreamChunk) IsThinking() bool {
	return c.Type == ContentTypeThinking
}

// Collect drains a stream into separate reasoning and message text.
func Collect(stream <-chan *StreamChunk) (thinking, content string, err error) {
	for chunk := range stream {
		if chunk.IsError() {
			err = chunk.Error
			continue
		}
		if chunk.IsThinking() {
			thinking += chunk.Content
			continue
		}
		content += chunk.Content
	}
	return thinking, content, err
}
