package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryYAML = `
sources:
  - id: supp_pack
    name: Supplementary Pack
    endpoint: http://localhost:9010/api
    retrieval_methods:
      - id: net_income
        name: Net income
        parameters:
          - key: fiscal_year
            type: integer
            required: true
          - key: fiscal_quarter
            type: enum
            required: true
            options: [Q1, Q2, Q3, Q4]
          - key: currency
            type: string
            default: CAD
  - id: market
    name: Market Data
    retrieval_methods:
      - id: prices
        name: Prices
`

func TestParse(t *testing.T) {
	cat, err := Parse([]byte(registryYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"market", "supp_pack"}, cat.SourceIDs())
	src, method, ok := cat.Method("supp_pack", "net_income")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9010/api", src.Endpoint)

	def, ok := method.Parameter("currency")
	require.True(t, ok)
	assert.True(t, def.HasDefault())
	assert.Equal(t, "CAD", def.Default)

	sources, err := cat.ListSources(context.Background())
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("sources: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse registry YAML")

	_, err = Parse([]byte("sources:\n  - name: missing id\n"))
	assert.Error(t, err)

	dup := "sources:\n  - {id: a, name: A, retrieval_methods: []}\n  - {id: a, name: B, retrieval_methods: []}\n"
	_, err = Parse([]byte(dup))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(registryYAML), 0o600))

	cat, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, cat.SourceIDs(), 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read registry file")
}
