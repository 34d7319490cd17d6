package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alexwday/report-designer/internal/llm"
	"github.com/alexwday/report-designer/internal/prompts"
	"github.com/alexwday/report-designer/internal/schemas"
	"github.com/alexwday/report-designer/internal/types"
	embedded "github.com/alexwday/report-designer/schemas"
)

const promptFile = "generation.json"

// ContentGenerator generates subsection content with an LLM. Text widgets
// produce markdown; table, chart and metric widgets produce JSON documents.
type ContentGenerator struct {
	client llm.Client
}

// NewContentGenerator creates a generator backed by client
func NewContentGenerator(client llm.Client) *ContentGenerator {
	return &ContentGenerator{client: client}
}

// Generate implements Generator
func (g *ContentGenerator) Generate(ctx context.Context, req Request) (*Output, error) {
	data, err := json.MarshalIndent(req.Payloads, "", "  ")
	if err != nil {
		return nil, &GenerationError{Message: "failed to encode retrieved data", Cause: err}
	}
	system, err := prompts.Get(promptFile, "system")
	if err != nil {
		return nil, &GenerationError{Message: "failed to load system prompt", Cause: err}
	}

	values := map[string]string{
		"SectionTitle":    req.SectionTitle,
		"SubsectionTitle": req.SubsectionTitle,
		"Instructions":    orNone(req.Instructions),
		"Notes":           orNone(req.Notes),
		"Data":            string(data),
		"Context":         formatDependencies(req),
		"WidgetType":      string(req.WidgetType),
	}

	if req.WidgetType.RequiresInstructions() {
		prompt, err := prompts.Render(promptFile, "text-widget", values)
		if err != nil {
			return nil, &GenerationError{Message: "failed to load prompt", Cause: err}
		}
		tier := llm.TierStandard
		if len(req.Dependencies) > 2 {
			tier = llm.TierAdvanced
		}
		text, err := g.client.Generate(ctx, llm.Request{System: system, Prompt: prompt, Tier: tier})
		if err != nil {
			return nil, &GenerationError{Message: "LLM call failed", Cause: err}
		}
		if strings.TrimSpace(text) == "" {
			return nil, &GenerationError{Message: "LLM returned empty content"}
		}
		return &Output{Content: text, ContentType: types.ContentTypeMarkdown}, nil
	}

	schema, schemaFile, tier, err := widgetSchema(req.WidgetType)
	if err != nil {
		return nil, &GenerationError{Message: err.Error()}
	}
	values["Schema"] = schema.Describe()
	prompt, err := prompts.Render(promptFile, "structured-widget", values)
	if err != nil {
		return nil, &GenerationError{Message: "failed to load prompt", Cause: err}
	}

	text, err := g.client.Generate(ctx, llm.Request{System: system, Prompt: prompt, Tier: tier, JSON: true})
	if err != nil {
		return nil, &GenerationError{Message: "LLM call failed", Cause: err}
	}
	if err := schemas.ValidateDocument(schemaFile, []byte(text)); err != nil {
		return nil, &GenerationError{Message: fmt.Sprintf("invalid %s output", req.WidgetType), Cause: err}
	}
	return &Output{Content: text, ContentType: types.ContentTypeJSON}, nil
}

// widgetSchema returns the prompt schema, the embedded JSON Schema file that
// validates the response, and the model tier for a structured widget.
func widgetSchema(w types.WidgetType) (llm.OutputSchema, string, llm.ModelTier, error) {
	switch w {
	case types.WidgetTable:
		return llm.TableSchema(), embedded.Table, llm.TierStandard, nil
	case types.WidgetChart:
		return llm.ChartSchema(), embedded.Chart, llm.TierStandard, nil
	case types.WidgetMetric:
		return llm.MetricSchema(), embedded.Metric, llm.TierLite, nil
	}
	return llm.OutputSchema{}, "", "", fmt.Errorf("unsupported widget type %q", w)
}

func formatDependencies(req Request) string {
	if len(req.Dependencies) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, d := range req.Dependencies {
		sb.WriteString(fmt.Sprintf("## %s / %s\n", d.SectionTitle, d.SubsectionTitle))
		sb.WriteString(strings.TrimSpace(d.Content))
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
