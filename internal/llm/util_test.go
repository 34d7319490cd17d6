package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"json code block", "```json\n{\"label\": \"NIM\"}\n```", `{"label": "NIM"}`},
		{"generic code block", "```\n{\"label\": \"NIM\"}\n```", `{"label": "NIM"}`},
		{"code block with language", "```javascript\n{\"label\": \"NIM\"}\n```", `{"label": "NIM"}`},
		{"plain JSON", `{"label": "NIM"}`, `{"label": "NIM"}`},
		{"preamble", "Here is the table:\n{\"columns\": [\"Bank\"]}", `{"columns": ["Bank"]}`},
		{"trailing text", "{\"value\": 1.2}\n\nLet me know if you need more.", `{"value": 1.2}`},
		{"array", "Rows:\n[[\"RY\", 4.1], [\"TD\", 3.9]]", `[["RY", 4.1], ["TD", 3.9]]`},
		{"escaped quotes", `Result: {"title": "Q1 \"adjusted\" {EPS}"}`, `{"title": "Q1 \"adjusted\" {EPS}"}`},
		{"no JSON", "no data available", "no data available"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanJSONBlock(tt.input))
		})
	}
}

func TestExtractBalanced(t *testing.T) {
	assert.Equal(t, `{"a": {"b": [1, 2]}}`, extractJSONObject(`{"a": {"b": [1, 2]}} tail`))
	assert.Equal(t, "", extractJSONObject(`{"unterminated": 1`))
	assert.Equal(t, "", extractJSONObject("not json"))
	assert.Equal(t, `[1, [2, 3]]`, extractJSONArray(`[1, [2, 3]], more`))
	assert.Equal(t, "", extractJSONArray(""))
}
