package llm

import (
	"fmt"
	"strings"
)

// OutputSchema describes the JSON document a structured widget expects back
type OutputSchema struct {
	Name        string
	Description string
	Fields      []SchemaField
}

// SchemaField defines a single field in the output document
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint shown to the model
	Description string
	Required    bool
}

// Describe renders the schema as the structure block of a prompt
func (s OutputSchema) Describe() string {
	var sb strings.Builder
	sb.WriteString(s.Description)
	sb.WriteString("\n\nReturn ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range s.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = `"string"`
		}
		sb.WriteString(fmt.Sprintf("  %q: %s", field.Name, typeHint))
		if field.Required {
			sb.WriteString(" (required)")
		}
		if field.Description != "" {
			sb.WriteString(" // " + field.Description)
		}
		if i < len(s.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}

// Required returns the names of required fields
func (s OutputSchema) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// TableSchema is the output of a table widget
func TableSchema() OutputSchema {
	return OutputSchema{
		Name:        "Table",
		Description: "Build a table from the retrieved data. Use only figures present in the data.",
		Fields: []SchemaField{
			{Name: "title", Description: "Short table caption"},
			{Name: "columns", Type: `["string"]`, Description: "Column headers, left to right", Required: true},
			{Name: "rows", Type: `[["string | number"]]`, Description: "One array per row, aligned with columns", Required: true},
			{Name: "footnote", Description: "Source or unit note"},
		},
	}
}

// ChartSchema is the output of a chart widget
func ChartSchema() OutputSchema {
	return OutputSchema{
		Name:        "Chart",
		Description: "Build a chart specification from the retrieved data. Use only figures present in the data.",
		Fields: []SchemaField{
			{Name: "title", Description: "Chart title"},
			{Name: "chart_type", Type: `"bar | line | area | pie"`, Required: true},
			{Name: "x_axis", Type: `{"label": "string", "categories": ["string"]}`, Required: true},
			{Name: "series", Type: `[{"name": "string", "values": [number]}]`, Description: "One entry per plotted series", Required: true},
			{Name: "unit", Description: "Unit of the values, e.g. 'CAD millions'"},
		},
	}
}

// MetricSchema is the output of a metric widget
func MetricSchema() OutputSchema {
	return OutputSchema{
		Name:        "Metric",
		Description: "Summarize the retrieved data as a single headline metric.",
		Fields: []SchemaField{
			{Name: "label", Required: true},
			{Name: "value", Type: `"number"`, Required: true},
			{Name: "unit"},
			{Name: "change", Type: `"number"`, Description: "Change versus the comparison period"},
			{Name: "comparison", Description: "The comparison period, e.g. 'QoQ' or 'YoY'"},
		},
	}
}
