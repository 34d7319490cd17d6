package templatefile

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/schemas"
	"github.com/alexwday/report-designer/internal/types"
)

func testCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	cat, err := schema.NewCatalog([]schema.DataSource{{
		ID:   "supp_pack",
		Name: "Supplementary Pack",
		RetrievalMethods: []schema.RetrievalMethod{{
			ID: "net_income",
			Parameters: []schema.ParameterDefinition{
				{Key: "fiscal_year", Type: schema.TypeInteger, Required: true},
				{Key: "fiscal_quarter", Type: schema.TypeEnum, Required: true, Options: []string{"Q1", "Q2", "Q3", "Q4"}},
				{Key: "bank", Type: schema.TypeString},
			},
		}},
	}})
	require.NoError(t, err)
	return cat
}

const quarterlyPack = `{
  "name": "Quarterly Pack",
  "sections": [
    {
      "key": "overview",
      "title": "Overview",
      "subsections": [
        {
          "key": "summary",
          "title": "Summary",
          "instructions": "Summarize the quarter",
          "depends_on": {"subsections": ["income"]}
        }
      ]
    },
    {
      "key": "detail",
      "title": "Detail",
      "subsections": [
        {
          "key": "income",
          "title": "Net Income",
          "widget_type": "table",
          "data_inputs": [
            {
              "source_id": "supp_pack",
              "method_id": "net_income",
              "parameters": {
                "fiscal_year": {"$period": "current.fiscal_year"},
                "fiscal_quarter": {"$var": "fiscal_quarter"},
                "bank": "RY"
              }
            }
          ],
          "depends_on": {"sections": ["overview"]}
        }
      ]
    }
  ]
}`

func TestParse(t *testing.T) {
	tmpl, err := Parse([]byte(quarterlyPack), testCatalog(t))
	require.NoError(t, err)

	assert.Equal(t, "Quarterly Pack", tmpl.Name)
	require.Len(t, tmpl.Sections, 2)
	overview, detail := tmpl.Sections[0], tmpl.Sections[1]
	assert.Equal(t, 1, overview.Position)
	assert.Equal(t, 2, detail.Position)

	summary := overview.Subsections[0]
	income := detail.Subsections[0]
	assert.Equal(t, overview.ID, summary.SectionID)
	assert.Empty(t, summary.DataInputs)
	assert.Equal(t, []uuid.UUID{income.ID}, summary.Dependencies.SubsectionIDs)
	assert.Equal(t, []uuid.UUID{overview.ID}, income.Dependencies.SectionIDs)
	assert.Equal(t, types.WidgetTable, income.WidgetType)

	require.Len(t, income.DataInputs, 1)
	params := income.DataInputs[0].Parameters
	assert.Equal(t, binding.PeriodBinding{Selector: period.CurrentFiscalYear}, params["fiscal_year"])
	assert.Equal(t, binding.VariableBinding{Name: "fiscal_quarter"}, params["fiscal_quarter"])
	assert.Equal(t, binding.Literal{Value: "RY"}, params["bank"])
}

func TestParse_SchemaViolation(t *testing.T) {
	_, err := Parse([]byte(`{"sections": []}`), testCatalog(t))
	require.Error(t, err)
	var verr *schemas.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestBuild_CollectsProblems(t *testing.T) {
	file := &File{
		Name: "Broken",
		Sections: []Section{{
			Key:   "s",
			Title: "Section",
			Subsections: []Subsection{
				{
					Key:        "a",
					Title:      "A",
					WidgetType: "gauge",
					DataInputs: []DataInput{
						{SourceID: "supp_pack", MethodID: "net_income", Parameters: map[string]any{"fiscal_year": "soon"}},
						{SourceID: "missing", MethodID: "net_income"},
					},
					DependsOn: DependsOn{Sections: []string{"s"}, Subsections: []string{"zzz"}},
				},
				{Key: "a", Title: "Duplicate"},
			},
		}},
	}

	_, err := Build(file, testCatalog(t))
	require.Error(t, err)
	var ferr *Error
	require.ErrorAs(t, err, &ferr)

	joined := ferr.Error()
	assert.Contains(t, joined, `duplicate subsection key "a"`)
	assert.Contains(t, joined, `unknown widget type "gauge"`)
	assert.Contains(t, joined, "parameter fiscal_year")
	assert.Contains(t, joined, `unknown data source "missing"`)
	assert.Contains(t, joined, `depends on unknown subsection "zzz"`)
	assert.NotContains(t, joined, "depend on itself")
}

func TestBuild_OwnSectionDependency(t *testing.T) {
	file := &File{
		Name: "Siblings",
		Sections: []Section{{
			Key:   "earnings",
			Title: "Earnings",
			Subsections: []Subsection{
				{Key: "income", Title: "Income"},
				{Key: "summary", Title: "Summary", DependsOn: DependsOn{Sections: []string{"earnings"}}},
			},
		}},
	}

	tmpl, err := Build(file, testCatalog(t))
	require.NoError(t, err)
	sec := tmpl.Sections[0]
	assert.Equal(t, []uuid.UUID{sec.ID}, sec.Subsections[1].Dependencies.SectionIDs)
}

func TestBuild_ExplicitPositions(t *testing.T) {
	file := &File{
		Name: "Ordered",
		Sections: []Section{
			{Title: "Second", Position: 2},
			{Title: "First", Position: 1},
		},
	}
	tmpl, err := Build(file, testCatalog(t))
	require.NoError(t, err)
	assert.Equal(t, "First", tmpl.Sections[0].Title)
	assert.Equal(t, "Second", tmpl.Sections[1].Title)

	file.Sections[0].Position = 1
	_, err = Build(file, testCatalog(t))
	assert.ErrorContains(t, err, "duplicate position 1")
}

func TestBuild_TemplateID(t *testing.T) {
	file := &File{ID: "7b0c8a52-7f1e-4c36-9d55-2f9f3d0a4b11", Name: "Fixed"}
	tmpl, err := Build(file, testCatalog(t))
	require.NoError(t, err)
	assert.Equal(t, "7b0c8a52-7f1e-4c36-9d55-2f9f3d0a4b11", tmpl.ID.String())

	file.ID = "nope"
	_, err = Build(file, testCatalog(t))
	assert.ErrorContains(t, err, `id "nope" is not a UUID`)
}
