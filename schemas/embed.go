// Package schemas embeds the JSON Schema documents used to validate registry
// catalogs, template import files and structured widget output.
package schemas

import (
	"embed"
	"fmt"
)

// Schema file names
const (
	Registry = "registry.schema.json"
	Template = "template.schema.json"

	Table  = "table.schema.json"
	Chart  = "chart.schema.json"
	Metric = "metric.schema.json"
)

//go:embed *.schema.json
var files embed.FS

// Read returns the content of an embedded schema file
func Read(name string) (string, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("schema %s not embedded: %w", name, err)
	}
	return string(data), nil
}

// Names lists every embedded schema file
func Names() []string {
	entries, _ := files.ReadDir(".")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
