package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alexwday/report-designer/internal/schemas"
	embedded "github.com/alexwday/report-designer/schemas"
)

// catalogFile is the on-disk layout of a registry catalog
type catalogFile struct {
	Sources []DataSource `json:"sources" yaml:"sources"`
}

// LoadFile reads a YAML (or JSON) registry catalog from disk
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("registry file %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes a YAML (or JSON, which is valid YAML) registry catalog, validates it
// against the registry schema and indexes it.
func Parse(data []byte) (*Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse registry YAML: %w", err)
	}

	// Round-trip through JSON so the schema validator and the typed decode
	// see the same document.
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert registry to JSON: %w", err)
	}
	if err := schemas.ValidateDocument(embedded.Registry, asJSON); err != nil {
		return nil, err
	}

	var file catalogFile
	if err := json.Unmarshal(asJSON, &file); err != nil {
		return nil, fmt.Errorf("failed to decode registry: %w", err)
	}
	for _, src := range file.Sources {
		for _, m := range src.RetrievalMethods {
			for _, p := range m.Parameters {
				if !p.Type.Valid() {
					return nil, fmt.Errorf("source %s method %s: parameter %s has unsupported type %q", src.ID, m.ID, p.Key, p.Type)
				}
			}
		}
	}
	return NewCatalog(file.Sources)
}
