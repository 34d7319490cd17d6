// Package schema describes the data sources a report can draw on: their retrieval
// methods and the typed parameters each method accepts.
package schema

import (
	"context"
	"fmt"
	"sort"
)

// ParameterType is the declared type of a retrieval parameter
type ParameterType string

// Supported parameter types
const (
	TypeString  ParameterType = "string"
	TypeInteger ParameterType = "integer"
	TypeNumber  ParameterType = "number"
	TypeBoolean ParameterType = "boolean"
	TypeEnum    ParameterType = "enum"
	TypeArray   ParameterType = "array"
	TypeObject  ParameterType = "object"
)

// Valid reports whether t is one of the supported parameter types
func (t ParameterType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeEnum, TypeArray, TypeObject:
		return true
	}
	return false
}

// ItemsDefinition describes the elements of an array parameter
type ItemsDefinition struct {
	Type    ParameterType `json:"type,omitempty" yaml:"type,omitempty"`
	Options []string      `json:"options,omitempty" yaml:"options,omitempty"`
}

// ParameterDefinition is one typed input of a retrieval method
type ParameterDefinition struct {
	Key         string           `json:"key" yaml:"key"`
	Type        ParameterType    `json:"type" yaml:"type"`
	Required    bool             `json:"required" yaml:"required"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Options     []string         `json:"options,omitempty" yaml:"options,omitempty"`
	Items       *ItemsDefinition `json:"items,omitempty" yaml:"items,omitempty"`
	Default     any              `json:"default,omitempty" yaml:"default,omitempty"`
}

// HasDefault reports whether the definition carries a registry default
func (d ParameterDefinition) HasDefault() bool {
	return d.Default != nil
}

// AllowedValues returns the option list that constrains values of this parameter.
// Array parameters fall back to their item options.
func (d ParameterDefinition) AllowedValues() []string {
	if len(d.Options) > 0 {
		return d.Options
	}
	if d.Type == TypeArray && d.Items != nil {
		return d.Items.Options
	}
	return nil
}

// RetrievalMethod is a callable operation on a data source
type RetrievalMethod struct {
	ID          string                `json:"id" yaml:"id"`
	Name        string                `json:"name" yaml:"name"`
	Description string                `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []ParameterDefinition `json:"parameters" yaml:"parameters"`
}

// Parameter looks up a parameter definition by key
func (m *RetrievalMethod) Parameter(key string) (*ParameterDefinition, bool) {
	for i := range m.Parameters {
		if m.Parameters[i].Key == key {
			return &m.Parameters[i], true
		}
	}
	return nil, false
}

// DataSource is an external system reports can retrieve data from
type DataSource struct {
	ID               string            `json:"id" yaml:"id"`
	Name             string            `json:"name" yaml:"name"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	Endpoint         string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	RetrievalMethods []RetrievalMethod `json:"retrieval_methods" yaml:"retrieval_methods"`
}

// Method looks up a retrieval method by ID
func (s *DataSource) Method(id string) (*RetrievalMethod, bool) {
	for i := range s.RetrievalMethods {
		if s.RetrievalMethods[i].ID == id {
			return &s.RetrievalMethods[i], true
		}
	}
	return nil, false
}

// Registry supplies the data source catalog
type Registry interface {
	ListSources(ctx context.Context) ([]DataSource, error)
}

// Catalog is an immutable, indexed snapshot of a registry.
// It is taken once per run so lookups stay consistent while the run executes.
type Catalog struct {
	sources []DataSource
	byID    map[string]int
}

// NewCatalog indexes sources by ID. Duplicate source IDs are rejected.
func NewCatalog(sources []DataSource) (*Catalog, error) {
	c := &Catalog{
		sources: make([]DataSource, len(sources)),
		byID:    make(map[string]int, len(sources)),
	}
	copy(c.sources, sources)
	for i, src := range c.sources {
		if src.ID == "" {
			return nil, fmt.Errorf("data source at index %d has no id", i)
		}
		if _, dup := c.byID[src.ID]; dup {
			return nil, fmt.Errorf("duplicate data source id %q", src.ID)
		}
		c.byID[src.ID] = i
	}
	return c, nil
}

// Snapshot lists the registry and indexes the result
func Snapshot(ctx context.Context, reg Registry) (*Catalog, error) {
	if c, ok := reg.(*Catalog); ok {
		return c, nil
	}
	sources, err := reg.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	return NewCatalog(sources)
}

// ListSources implements Registry
func (c *Catalog) ListSources(_ context.Context) ([]DataSource, error) {
	out := make([]DataSource, len(c.sources))
	copy(out, c.sources)
	return out, nil
}

// Source looks up a data source by ID
func (c *Catalog) Source(id string) (*DataSource, bool) {
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return &c.sources[i], true
}

// Method looks up a retrieval method by source and method ID
func (c *Catalog) Method(sourceID, methodID string) (*DataSource, *RetrievalMethod, bool) {
	src, ok := c.Source(sourceID)
	if !ok {
		return nil, nil, false
	}
	m, ok := src.Method(methodID)
	if !ok {
		return src, nil, false
	}
	return src, m, true
}

// SourceIDs returns all source IDs in sorted order
func (c *Catalog) SourceIDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
