package resolve

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/types"
)

var quarters = []string{"Q1", "Q2", "Q3", "Q4"}

func earningsMethod() schema.RetrievalMethod {
	return schema.RetrievalMethod{
		ID: "earnings",
		Parameters: []schema.ParameterDefinition{
			{Key: "fiscal_year", Type: schema.TypeInteger, Required: true},
			{Key: "fiscal_quarter", Type: schema.TypeEnum, Required: true, Options: quarters},
			{Key: "bank", Type: schema.TypeString, Required: true},
			{Key: "window", Type: schema.TypeArray},
			{Key: "currency", Type: schema.TypeString, Default: "CAD"},
			{Key: "segment", Type: schema.TypeString},
		},
	}
}

func testCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	cat, err := schema.NewCatalog([]schema.DataSource{{
		ID:               "supp_pack",
		RetrievalMethods: []schema.RetrievalMethod{earningsMethod()},
	}})
	require.NoError(t, err)
	return cat
}

func q(year int, quarter period.Quarter) period.Period {
	return period.Period{FiscalYear: year, FiscalQuarter: quarter}
}

func TestBinding_QoQQuarterOnEnum(t *testing.T) {
	def := schema.ParameterDefinition{Key: "fiscal_quarter", Type: schema.TypeEnum, Options: quarters}
	v, ok, err := Binding(def, binding.PeriodBinding{Selector: period.QoQFiscalQuarter}, Context{Current: q(2025, period.Q2)})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Q1", v)
}

func TestBinding_QuarterOutsideOptions(t *testing.T) {
	def := schema.ParameterDefinition{Key: "fiscal_quarter", Type: schema.TypeEnum, Options: []string{"Q4"}}
	_, _, err := Binding(def, binding.PeriodBinding{Selector: period.CurrentFiscalQuarter}, Context{Current: q(2025, period.Q2)})
	require.Error(t, err)
	assert.ErrorIs(t, err, binding.ErrInvalidOption)
}

func TestBinding_SelectorRecheckedAtResolution(t *testing.T) {
	def := schema.ParameterDefinition{Key: "bank", Type: schema.TypeString}
	_, _, err := Binding(def, binding.PeriodBinding{Selector: period.TrailingQuarters}, Context{Current: q(2025, period.Q1)})
	assert.ErrorIs(t, err, binding.ErrInvalidSelector)
}

func TestBinding_Variables(t *testing.T) {
	required := schema.ParameterDefinition{Key: "bank", Type: schema.TypeString, Required: true}
	optional := schema.ParameterDefinition{Key: "segment", Type: schema.TypeString}
	ctx := Context{Current: q(2025, period.Q1), RunInputs: map[string]any{"bank_scope": " RY "}}

	v, ok, err := Binding(required, binding.VariableBinding{Name: "bank_scope"}, ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "RY", v)

	v, _, err = Binding(required, binding.VariableBinding{Name: "other", Default: "TD"}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "TD", v)

	_, _, err = Binding(required, binding.VariableBinding{Name: "other"}, ctx)
	var unresolved *UnresolvedVariableError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "other", unresolved.Name)
	assert.Equal(t, "bank", unresolved.Key)

	_, ok, err = Binding(optional, binding.VariableBinding{Name: "other"}, ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInput_FlatMap(t *testing.T) {
	method := earningsMethod()
	three := 3
	in := types.DataInput{
		SourceID: "supp_pack",
		MethodID: "earnings",
		Parameters: binding.Parameters{
			"fiscal_year":    binding.PeriodBinding{Selector: period.YoYFiscalYear},
			"fiscal_quarter": binding.PeriodBinding{Selector: period.CurrentFiscalQuarter},
			"bank":           binding.VariableBinding{Name: "bank_scope"},
			"window":         binding.PeriodBinding{Selector: period.TrailingQuarters, Count: &three},
		},
	}
	ctx := Context{Current: q(2025, period.Q1), RunInputs: map[string]any{"bank_scope": "BMO"}}

	got, err := Input(&method, in, ctx)
	require.NoError(t, err)

	want := map[string]any{
		"fiscal_year":    int64(2024),
		"fiscal_quarter": "Q1",
		"bank":           "BMO",
		"currency":       "CAD",
		"window": []any{
			map[string]any{"fiscal_year": int64(2024), "fiscal_quarter": "Q3"},
			map[string]any{"fiscal_year": int64(2024), "fiscal_quarter": "Q4"},
			map[string]any{"fiscal_year": int64(2025), "fiscal_quarter": "Q1"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolved parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestInput_JoinsErrors(t *testing.T) {
	method := earningsMethod()
	in := types.DataInput{
		Parameters: binding.Parameters{
			"fiscal_quarter": binding.Literal{Value: "Q2"},
			"bank":           binding.VariableBinding{Name: "bank_scope"},
			"colour":         binding.Literal{Value: "blue"},
		},
	}
	_, err := Input(&method, in, Context{Current: q(2025, period.Q1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fiscal_year")
	assert.Contains(t, err.Error(), "bank_scope")
	assert.ErrorIs(t, err, binding.ErrUnknownParameter)
}

func TestDocument_ConsistentCurrent(t *testing.T) {
	cat := testCatalog(t)
	input := types.DataInput{
		SourceID: "supp_pack",
		MethodID: "earnings",
		Parameters: binding.Parameters{
			"fiscal_year":    binding.PeriodBinding{Selector: period.QoQFiscalYear},
			"fiscal_quarter": binding.PeriodBinding{Selector: period.QoQFiscalQuarter},
			"bank":           binding.Literal{Value: "RY"},
		},
	}
	a := &types.Subsection{ID: uuid.New(), Position: 1, Instructions: "Summarize", DataInputs: []types.DataInput{input}}
	b := &types.Subsection{ID: uuid.New(), Position: 2, WidgetType: types.WidgetChart, DataInputs: []types.DataInput{input}}
	skipped := &types.Subsection{ID: uuid.New(), Position: 3}
	broken := &types.Subsection{ID: uuid.New(), Position: 4, Instructions: "x", DataInputs: []types.DataInput{{SourceID: "nope"}}}
	tmpl := &types.Template{Sections: []*types.Section{{ID: uuid.New(), Position: 1, Subsections: []*types.Subsection{a, b, skipped, broken}}}}

	plan := Document(tmpl, cat, Context{Current: q(2025, period.Q1)})

	assert.Len(t, plan.Calls, 2)
	assert.Contains(t, plan.Errors, broken.ID)
	assert.NotContains(t, plan.Calls, skipped.ID)
	if diff := cmp.Diff(plan.Calls[a.ID], plan.Calls[b.ID]); diff != "" {
		t.Errorf("subsections of one run saw different periods:\n%s", diff)
	}
	assert.Equal(t, int64(2024), plan.Calls[a.ID][0].Params["fiscal_year"])
	assert.Equal(t, "Q4", plan.Calls[a.ID][0].Params["fiscal_quarter"])
}
