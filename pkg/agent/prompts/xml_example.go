package prompts

import (
	"fmt"
	"sort"
	"strings"
)

// XMLExampleProvider is an optional interface that tools can implement
// to provide custom XML usage examples
type XMLExampleProvider interface {
	XMLExample() string
}

// GenerateXMLExample creates a concrete XML example from a JSON Schema.
// Only required properties are shown, in name order.
func GenerateXMLExample(schema map[string]interface{}, toolName string) string {
	var builder strings.Builder

	builder.WriteString("<tool>\n")
	builder.WriteString("<server_name>local</server_name>\n")
	builder.WriteString(fmt.Sprintf("<tool_name>%s</tool_name>\n", toolName))
	builder.WriteString("<arguments>\n")

	properties, ok := schema["properties"].(map[string]interface{})
	if ok && len(properties) > 0 {
		requiredFields := make(map[string]bool)
		if req, ok := schema["required"].([]string); ok {
			for _, field := range req {
				requiredFields[field] = true
			}
		}

		for _, propName := range sortedKeys(properties) {
			if !requiredFields[propName] {
				continue
			}
			propMap, ok := properties[propName].(map[string]interface{})
			if !ok {
				continue
			}
			builder.WriteString(generatePropertyExample(propName, propMap, "  "))
		}
	}

	builder.WriteString("</arguments>\n")
	builder.WriteString("</tool>")

	return builder.String()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func generatePropertyExample(name string, propSchema map[string]interface{}, indent string) string {
	propType, _ := propSchema["type"].(string)           //nolint:errcheck
	description, _ := propSchema["description"].(string) //nolint:errcheck

	switch propType {
	case "string":
		return generateStringExample(name, propSchema, description, indent)
	case "integer", "number":
		return generateNumberExample(name, propType, indent)
	case "boolean":
		return fmt.Sprintf("%s<%s>true</%s>\n", indent, name, name)
	case "object":
		return generateObjectExample(name, propSchema, indent)
	default:
		return fmt.Sprintf("%s<%s>value</%s>\n", indent, name, name)
	}
}

func generateStringExample(name string, propSchema map[string]interface{}, description string, indent string) string {
	// Scripts and markdown documents usually carry <, > and &.
	isCodeField := strings.Contains(description, "JavaScript") ||
		strings.Contains(description, "markdown") ||
		name == "expression" ||
		name == "content"

	if isCodeField {
		return fmt.Sprintf("%s<%s><![CDATA[example & content]]></%s>\n", indent, name, name)
	}

	exampleValue := "value"
	switch {
	case name == "url":
		exampleValue = "https://example.com/"
	case name == "selector":
		exampleValue = "#submit"
	}
	if enum, ok := propSchema["enum"].([]interface{}); ok && len(enum) > 0 {
		if str, ok := enum[0].(string); ok {
			exampleValue = str
		}
	}
	if enum, ok := propSchema["enum"].([]string); ok && len(enum) > 0 {
		exampleValue = enum[0]
	}

	return fmt.Sprintf("%s<%s>%s</%s>\n", indent, name, exampleValue, name)
}

func generateNumberExample(name string, propType string, indent string) string {
	value := "1000"
	if propType == "number" {
		value = "1.5"
	}
	return fmt.Sprintf("%s<%s>%s</%s>\n", indent, name, value, name)
}

func generateObjectExample(name string, propSchema map[string]interface{}, indent string) string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("%s<%s>\n", indent, name))
	if props, ok := propSchema["properties"].(map[string]interface{}); ok {
		for _, propName := range sortedKeys(props) {
			if propMap, ok := props[propName].(map[string]interface{}); ok {
				builder.WriteString(generatePropertyExample(propName, propMap, indent+"  "))
			}
		}
	}
	builder.WriteString(fmt.Sprintf("%s</%s>\n", indent, name))

	return builder.String()
}
