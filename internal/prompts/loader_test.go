package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	set, err := Load("generation.json")
	require.NoError(t, err)
	assert.Contains(t, set, "system")
	assert.Contains(t, set, "text-widget")
	assert.Contains(t, set, "structured-widget")

	again, err := Load("generation.json")
	require.NoError(t, err)
	assert.Equal(t, set, again)
}

func TestGet(t *testing.T) {
	prompt, err := Get("generation.json", "text-widget")
	require.NoError(t, err)
	assert.Contains(t, prompt, "{{.Instructions}}")
	assert.Contains(t, prompt, "Markdown")

	_, err = Get("nonexistent.json", "some-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")

	_, err = Get("generation.json", "nonexistent-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]string
		want     string
	}{
		{
			name:     "fills values",
			template: "Write {{.SubsectionTitle}} for {{.SectionTitle}}",
			data:     map[string]string{"SubsectionTitle": "Net interest margin", "SectionTitle": "Earnings"},
			want:     "Write Net interest margin for Earnings",
		},
		{
			name:     "unknown placeholder kept",
			template: "Hello {{.Name}}",
			data:     map[string]string{},
			want:     "Hello {{.Name}}",
		},
		{
			name:     "value containing a placeholder is not expanded",
			template: "{{.Data}} / {{.Notes}}",
			data:     map[string]string{"Data": "{{.Notes}}", "Notes": "none"},
			want:     "{{.Notes}} / none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.template, tt.data))
		})
	}
}

func TestRender(t *testing.T) {
	_, err := Render("generation.json", "text-widget", map[string]string{"SubsectionTitle": "NIM"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no value for Context, Data, Instructions, Notes, SectionTitle")

	text, err := Render("generation.json", "system", nil)
	require.NoError(t, err)
	assert.Contains(t, text, "Never invent numbers")
}

func TestPlaceholders(t *testing.T) {
	missing := Placeholders("{{.B}} {{.A}} {{.B}} {{.C}}", map[string]string{"C": "x"})
	assert.Equal(t, []string{"A", "B"}, missing)
}
