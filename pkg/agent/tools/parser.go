package tools

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	defaultServerName = "local"
	maxResponseSize   = 10 * 1024 * 1024
	argumentsTag      = "arguments"
	snippetLimit      = 200
)

var (
	toolElement = regexp.MustCompile(`(?s)<tool>.*?</tool>`)
	// xmlEntity matches an ampersand that already starts an entity.
	xmlEntity = regexp.MustCompile(`&(?:amp|lt|gt|quot|apos|#\d+|#x[0-9a-fA-F]+);`)

	errNoToolCall = errors.New("no tool call found in text")
)

// ParseToolCall extracts the first <tool> element from a model reply and
// returns it together with the reply text that surrounds it.
//
//	<tool>
//	<server_name>local</server_name>
//	<tool_name>browser_fill</tool_name>
//	<arguments>
//	  <selector>#email</selector>
//	  <value><![CDATA[qa@example.com]]></value>
//	</arguments>
//	</tool>
//
// server_name defaults to "local". A JSON object inside <arguments> is
// repaired if needed and rewritten as XML elements.
func ParseToolCall(text string) (*ToolCall, string, error) {
	if len(text) > maxResponseSize {
		return nil, text, fmt.Errorf("tool call XML exceeds maximum size of %d bytes", maxResponseSize)
	}
	loc := toolElement.FindStringIndex(text)
	if loc == nil {
		return nil, text, errNoToolCall
	}

	call, err := decodeToolCall(text[loc[0]:loc[1]])
	if err != nil {
		return nil, text, err
	}
	rest := strings.TrimSpace(toolElement.ReplaceAllString(text, ""))
	return call, rest, nil
}

func decodeToolCall(raw string) (*ToolCall, error) {
	var call ToolCall
	if err := UnmarshalXMLWithFallback([]byte(raw), &call); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool call XML: %w\nXML snippet: %s", err, snippet(raw))
	}
	if call.ToolName == "" {
		return nil, fmt.Errorf("tool_name is required in tool call")
	}
	if call.ServerName == "" {
		call.ServerName = defaultServerName
	}
	if looksLikeJSON(call.Arguments.InnerXML) {
		inner, err := jsonArgumentsToXML(call.Arguments.InnerXML)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON arguments for %s: %w", call.ToolName, err)
		}
		call.Arguments.InnerXML = inner
	}
	return &call, nil
}

func snippet(s string) string {
	if len(s) <= snippetLimit {
		return s
	}
	return s[:snippetLimit] + "..."
}

// ExtractThinkingAndToolCall splits a reply into the narration before the
// tool call, the call, and whatever follows it. A reply without a call comes
// back whole as narration with a nil call.
func ExtractThinkingAndToolCall(text string) (thinking string, call *ToolCall, remaining string, err error) {
	loc := toolElement.FindStringIndex(text)
	if loc == nil {
		return text, nil, "", nil
	}
	thinking = strings.TrimSpace(text[:loc[0]])
	remaining = strings.TrimSpace(text[loc[1]:])
	call, err = decodeToolCall(text[loc[0]:loc[1]])
	return thinking, call, remaining, err
}

// HasToolCall reports whether text contains a <tool> element.
func HasToolCall(text string) bool {
	return toolElement.MatchString(text)
}

// UnmarshalXMLWithFallback decodes data into v, retrying once with bare
// ampersands escaped. Models often write URLs with raw '&' in query strings.
func UnmarshalXMLWithFallback(data []byte, v interface{}) error {
	if err := xml.Unmarshal(data, v); err == nil {
		return nil
	}
	return xml.Unmarshal(escapeBareAmpersands(data), v)
}

func escapeBareAmpersands(data []byte) []byte {
	text := string(data)
	entities := make(map[int]bool)
	for _, m := range xmlEntity.FindAllStringIndex(text, -1) {
		entities[m[0]] = true
	}

	var b strings.Builder
	b.Grow(len(text) + 16)
	for i := 0; i < len(text); i++ {
		if text[i] == '&' && !entities[i] {
			b.WriteString("&amp;")
			continue
		}
		b.WriteByte(text[i])
	}
	return []byte(b.String())
}

// XMLToMap flattens the direct children of an <arguments> body into a map
// of element name to trimmed text. Empty and nested elements are skipped.
func XMLToMap(data []byte) (map[string]interface{}, error) {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	result := make(map[string]interface{})

	var (
		path []string
		text strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			path = append(path, t.Name.Local)
			text.Reset()
		case xml.EndElement:
			if len(path) == 0 {
				continue
			}
			name := path[len(path)-1]
			path = path[:len(path)-1]
			if len(path) == 1 && path[0] == argumentsTag {
				if v := strings.TrimSpace(text.String()); v != "" {
					result[name] = v
				}
			}
			text.Reset()
		case xml.CharData:
			text.Write(t)
		}
	}
}
