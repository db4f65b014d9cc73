package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// GenerateSchema derives a JSON Schema from a Go value by reflection.
// Field names follow json tags, omitempty fields are optional, and a
// `description` struct tag becomes the property description. Review
// result types carry these tags so the model sees exactly the shape
// the parser expects back.
func GenerateSchema(v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot generate schema from nil")
	}

	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return schemaForType(t)
}

func schemaForType(t reflect.Type) (map[string]interface{}, error) {
	switch t.Kind() {
	case reflect.Struct:
		return structSchema(t)
	case reflect.Map:
		schema := map[string]interface{}{"type": "object"}
		if t.Key().Kind() == reflect.String {
			valueSchema, err := schemaForType(t.Elem())
			if err != nil {
				return nil, err
			}
			schema["additionalProperties"] = valueSchema
		}
		return schema, nil
	case reflect.Slice, reflect.Array:
		itemSchema, err := schemaForType(t.Elem())
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"type": "array", "items": itemSchema}, nil
	case reflect.String:
		return map[string]interface{}{"type": "string"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}, nil
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}, nil
	case reflect.Interface:
		return map[string]interface{}{"type": "object"}, nil
	default:
		return map[string]interface{}{"type": "string"}, nil
	}
}

func structSchema(t reflect.Type) (map[string]interface{}, error) {
	properties := make(map[string]interface{})
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		isRequired := true
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				fieldName = parts[0]
			}
			for _, part := range parts[1:] {
				if part == "omitempty" {
					isRequired = false
					break
				}
			}
		}

		fieldSchema, err := schemaForType(field.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for field %s: %w", field.Name, err)
		}
		if desc := field.Tag.Get("description"); desc != "" {
			fieldSchema["description"] = desc
		}

		properties[fieldName] = fieldSchema
		if isRequired {
			required = append(required, fieldName)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema, nil
}

// BuildSchemaPrompt renders a ResponseSchema as a prompt section that
// instructs the model to answer in the schema's JSON shape. Providers
// without native structured output get the schema inline this way.
func BuildSchemaPrompt(schema *ResponseSchema) string {
	if schema == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\n## Output Format\n")

	if schema.Description != "" {
		sb.WriteString(schema.Description)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Please provide your response in the following JSON format:\n")

	if schemaMap, err := GenerateSchema(schema.Schema); err == nil {
		if data, err := json.MarshalIndent(schemaMap, "", "  "); err == nil {
			sb.WriteString("```json\n")
			sb.Write(data)
			sb.WriteString("\n```\n")
		}
	}

	if schema.Strict {
		sb.WriteString("\nIMPORTANT: Your response MUST be valid JSON that strictly follows this schema. ")
		sb.WriteString("Do not include any text before or after the JSON object.\n")
	} else {
		sb.WriteString("\nPlease ensure your response contains valid JSON that follows this schema.\n")
	}

	return sb.String()
}

// ExtractJSON pulls the JSON object or array out of model output that
// may be wrapped in prose or a fenced code block.
func ExtractJSON(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		start = strings.Index(content, "[")
		end = strings.LastIndex(content, "]")
		if start == -1 || end == -1 || end <= start {
			return "", fmt.Errorf("no valid JSON found in content")
		}
	}

	return content[start : end+1], nil
}

// ParseResponseJSON extracts and parses JSON from the response content
func ParseResponseJSON(content string, target interface{}) error {
	jsonStr, err := ExtractJSON(content)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(jsonStr), target)
}
