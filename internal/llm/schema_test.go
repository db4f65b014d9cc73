package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema(t *testing.T) {
	t.Run("nil value", func(t *testing.T) {
		_, err := GenerateSchema(nil)
		assert.Error(t, err)
	})

	t.Run("scalar types", func(t *testing.T) {
		for _, tc := range []struct {
			value    interface{}
			wantType string
		}{
			{"", "string"},
			{0, "integer"},
			{0.0, "number"},
			{false, "boolean"},
		} {
			schema, err := GenerateSchema(tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, schema["type"])
		}
	})

	t.Run("slice type", func(t *testing.T) {
		schema, err := GenerateSchema([]string{})
		require.NoError(t, err)
		assert.Equal(t, "array", schema["type"])
		assert.NotNil(t, schema["items"])
	})

	t.Run("review finding shape", func(t *testing.T) {
		type finding struct {
			File       string  `json:"file" description:"Path of the changed file"`
			Severity   string  `json:"severity"`
			Suggestion string  `json:"suggestion,omitempty"`
			Confidence float64 `json:"confidence"`
			Internal   string  `json:"-"`
		}

		schema, err := GenerateSchema(&finding{})
		require.NoError(t, err)
		assert.Equal(t, "object", schema["type"])

		props := schema["properties"].(map[string]interface{})
		assert.Equal(t, "string", props["file"].(map[string]interface{})["type"])
		assert.Equal(t, "Path of the changed file", props["file"].(map[string]interface{})["description"])
		assert.Equal(t, "number", props["confidence"].(map[string]interface{})["type"])
		assert.NotContains(t, props, "Internal")

		// omitempty fields are optional
		required := schema["required"].([]string)
		assert.Contains(t, required, "severity")
		assert.NotContains(t, required, "suggestion")
	})

	t.Run("nested struct", func(t *testing.T) {
		type location struct {
			Line int `json:"line"`
		}
		type finding struct {
			Where location `json:"where"`
		}

		schema, err := GenerateSchema(finding{})
		require.NoError(t, err)
		props := schema["properties"].(map[string]interface{})
		where := props["where"].(map[string]interface{})
		assert.Equal(t, "object", where["type"])
	})
}

func TestBuildSchemaPrompt(t *testing.T) {
	t.Run("nil schema", func(t *testing.T) {
		assert.Empty(t, BuildSchemaPrompt(nil))
	})

	type reviewShape struct {
		Summary string `json:"summary"`
	}

	t.Run("with description", func(t *testing.T) {
		schema := &ResponseSchema{
			Name:        "code_review_result",
			Description: "Report every finding with its location.",
			Schema:      reviewShape{},
		}
		result := BuildSchemaPrompt(schema)
		assert.Contains(t, result, "Output Format")
		assert.Contains(t, result, "Report every finding with its location.")
		assert.Contains(t, result, "JSON format")
		assert.Contains(t, result, "summary")
	})

	t.Run("strict adds hard requirement", func(t *testing.T) {
		schema := &ResponseSchema{
			Name:   "code_review_result",
			Schema: reviewShape{},
			Strict: true,
		}
		result := BuildSchemaPrompt(schema)
		assert.Contains(t, result, "MUST be valid JSON")
	})

	t.Run("non-strict stays soft", func(t *testing.T) {
		schema := &ResponseSchema{
			Name:   "code_review_result",
			Schema: reviewShape{},
		}
		result := BuildSchemaPrompt(schema)
		assert.NotContains(t, result, "MUST")
	})
}

func TestExtractJSON(t *testing.T) {
	t.Run("object wrapped in prose", func(t *testing.T) {
		jsonStr, err := ExtractJSON(`Here is the review: {"summary": "ok", "findings": []} Hope that helps!`)
		require.NoError(t, err)
		assert.Equal(t, `{"summary": "ok", "findings": []}`, jsonStr)
	})

	t.Run("array", func(t *testing.T) {
		jsonStr, err := ExtractJSON(`before [1, 2, 3] after`)
		require.NoError(t, err)
		assert.Equal(t, `[1, 2, 3]`, jsonStr)
	})

	t.Run("fenced code block", func(t *testing.T) {
		jsonStr, err := ExtractJSON("```json\n{\"summary\": \"ok\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, `{"summary": "ok"}`, jsonStr)
	})

	t.Run("no JSON", func(t *testing.T) {
		_, err := ExtractJSON("the model refused to answer")
		assert.Error(t, err)
	})

	t.Run("unbalanced braces", func(t *testing.T) {
		_, err := ExtractJSON("only { here")
		assert.Error(t, err)
	})
}

func TestParseResponseJSON(t *testing.T) {
	type reviewResult struct {
		Summary  string `json:"summary"`
		Findings []struct {
			File string `json:"file"`
		} `json:"findings"`
	}

	t.Run("parses wrapped object", func(t *testing.T) {
		var result reviewResult
		content := `Review done. {"summary": "looks good", "findings": [{"file": "main.go"}]}`
		require.NoError(t, ParseResponseJSON(content, &result))
		assert.Equal(t, "looks good", result.Summary)
		require.Len(t, result.Findings, 1)
		assert.Equal(t, "main.go", result.Findings[0].File)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		var result reviewResult
		assert.Error(t, ParseResponseJSON(`text {not json} text`, &result))
	})

	t.Run("no JSON", func(t *testing.T) {
		var result reviewResult
		assert.Error(t, ParseResponseJSON("nothing here", &result))
	})
}
