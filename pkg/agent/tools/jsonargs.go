package tools

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/kaptinlin/jsonrepair"
)

func looksLikeJSON(inner []byte) bool {
	trimmed := bytes.TrimSpace(inner)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// jsonArgumentsToXML converts a JSON object body into <key>value</key>
// elements. Malformed JSON is repaired first. Nested values are emitted as
// their JSON text.
func jsonArgumentsToXML(inner []byte) ([]byte, error) {
	raw := string(bytes.TrimSpace(inner))

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return nil, fmt.Errorf("repair failed: %w", repairErr)
		}
		if err := json.Unmarshal([]byte(repaired), &args); err != nil {
			return nil, fmt.Errorf("repaired JSON still invalid: %w", err)
		}
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		var value string
		switch v := args[k].(type) {
		case string:
			value = v
		case nil:
			continue
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			value = string(b)
		}
		buf.WriteString("<" + k + ">")
		if err := xml.EscapeText(&buf, []byte(value)); err != nil {
			return nil, err
		}
		buf.WriteString("</" + k + ">")
	}
	return buf.Bytes(), nil
}
