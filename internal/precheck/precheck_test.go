package precheck

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/types"
)

func testCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	cat, err := schema.NewCatalog([]schema.DataSource{{
		ID: "supp_pack",
		RetrievalMethods: []schema.RetrievalMethod{{
			ID: "net_income",
			Parameters: []schema.ParameterDefinition{
				{Key: "fiscal_year", Type: schema.TypeInteger, Required: true},
				{Key: "bank", Type: schema.TypeString, Required: true},
				{Key: "segment", Type: schema.TypeString},
			},
		}},
	}})
	require.NoError(t, err)
	return cat
}

func input(params binding.Parameters) types.DataInput {
	return types.DataInput{SourceID: "supp_pack", MethodID: "net_income", Parameters: params}
}

func document(subs ...*types.Subsection) *types.Template {
	for i, s := range subs {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.Position = i + 1
	}
	return &types.Template{Sections: []*types.Section{{ID: uuid.New(), Title: "Earnings", Position: 1, Subsections: subs}}}
}

func TestCheck_UnresolvedVariableBlocksRun(t *testing.T) {
	sub := &types.Subsection{
		Title:        "Bank overview",
		Instructions: "Summarize",
		DataInputs: []types.DataInput{input(binding.Parameters{
			"fiscal_year": binding.PeriodBinding{Selector: period.CurrentFiscalYear},
			"bank":        binding.VariableBinding{Name: "bank_scope"},
		})},
	}
	tmpl := document(sub)
	cat := testCatalog(t)

	req := Check(tmpl, cat, Options{})
	assert.Empty(t, req.BlockingErrors)
	require.Len(t, req.RequiredInputs, 1)
	assert.Equal(t, "bank_scope", req.RequiredInputs[0].Name)
	assert.True(t, req.RequiredInputs[0].Required)
	assert.Equal(t, []string{"bank_scope"}, req.Missing(nil))

	req = Check(tmpl, cat, Options{Final: true})
	require.Len(t, req.BlockingErrors, 1)
	assert.Equal(t, "Bank overview", req.BlockingErrors[0].SubsectionTitle)
	assert.Equal(t, sub.ID, req.BlockingErrors[0].SubsectionID)
	assert.Contains(t, req.BlockingErrors[0].Reason, "bank_scope")

	var blocking BlockingErrors
	require.True(t, errors.As(req.Err(), &blocking))

	req = Check(tmpl, cat, Options{Final: true, RunInputs: map[string]any{"bank_scope": "RY"}})
	assert.NoError(t, req.Err())
}

func TestCheck_ReportsAllBlockingErrors(t *testing.T) {
	noInputs := &types.Subsection{Title: "Empty", Instructions: "x"}
	badSelector := &types.Subsection{
		Title:        "Bad selector",
		Instructions: "x",
		DataInputs: []types.DataInput{input(binding.Parameters{
			"fiscal_year": binding.PeriodBinding{Selector: period.TrailingQuarters},
			"bank":        binding.Literal{Value: "RY"},
		})},
	}
	draft := &types.Subsection{Title: "Draft"}
	req := Check(document(noInputs, badSelector, draft), testCatalog(t), Options{})

	require.Len(t, req.BlockingErrors, 2)
	assert.Equal(t, "Empty", req.BlockingErrors[0].SubsectionTitle)
	assert.Equal(t, 1, req.BlockingErrors[0].SubsectionPosition)
	assert.Equal(t, "Bad selector", req.BlockingErrors[1].SubsectionTitle)
	assert.Contains(t, req.BlockingErrors[1].Reason, "fiscal_year")
}

func TestCheck_NothingEligible(t *testing.T) {
	req := Check(document(&types.Subsection{Title: "Draft"}), testCatalog(t), Options{})
	require.Len(t, req.BlockingErrors, 1)
	assert.Empty(t, req.BlockingErrors[0].SubsectionTitle)
}

func TestCheck_SelfReference(t *testing.T) {
	sub := &types.Subsection{
		ID:           uuid.New(),
		Title:        "Loop",
		Instructions: "x",
		DataInputs:   []types.DataInput{input(binding.Parameters{"fiscal_year": binding.Literal{Value: int64(2025)}, "bank": binding.Literal{Value: "RY"}})},
	}
	sub.Dependencies = types.Dependencies{SubsectionIDs: []uuid.UUID{sub.ID}}
	req := Check(document(sub), testCatalog(t), Options{})
	require.Len(t, req.BlockingErrors, 1)
	assert.Contains(t, req.BlockingErrors[0].Reason, "itself")
}

func TestCheck_OwnSectionDependency(t *testing.T) {
	params := binding.Parameters{"fiscal_year": binding.Literal{Value: int64(2025)}, "bank": binding.Literal{Value: "RY"}}
	first := &types.Subsection{Title: "Income", Instructions: "x", DataInputs: []types.DataInput{input(params)}}
	second := &types.Subsection{Title: "Summary", Instructions: "x", DataInputs: []types.DataInput{input(params)}}
	tmpl := document(first, second)
	second.Dependencies = types.Dependencies{SectionIDs: []uuid.UUID{tmpl.Sections[0].ID}}

	req := Check(tmpl, testCatalog(t), Options{})
	assert.NoError(t, req.Err())
	assert.Empty(t, req.BlockingErrors)
	assert.Empty(t, req.Warnings)
}

func TestCheck_ForwardReferenceWarning(t *testing.T) {
	params := binding.Parameters{"fiscal_year": binding.Literal{Value: int64(2025)}, "bank": binding.Literal{Value: "RY"}}
	first := &types.Subsection{Title: "Intro", Instructions: "x", DataInputs: []types.DataInput{input(params)}}
	second := &types.Subsection{ID: uuid.New(), Title: "Detail", Instructions: "x", DataInputs: []types.DataInput{input(params)}}
	first.Dependencies = types.Dependencies{SubsectionIDs: []uuid.UUID{second.ID}}

	req := Check(document(first, second), testCatalog(t), Options{})
	assert.NoError(t, req.Err())
	require.Len(t, req.Warnings, 1)
	assert.Contains(t, req.Warnings[0], `"Detail"`)
}

func TestCheck_SharedVariableAskedOnce(t *testing.T) {
	a := &types.Subsection{Title: "A", Instructions: "x", DataInputs: []types.DataInput{input(binding.Parameters{
		"fiscal_year": binding.VariableBinding{Name: "rbc_period_fiscal_year"},
		"bank":        binding.VariableBinding{Name: "bank_scope"},
	})}}
	b := &types.Subsection{Title: "B", Instructions: "x", DataInputs: []types.DataInput{input(binding.Parameters{
		"fiscal_year": binding.Literal{Value: int64(2025)},
		"bank":        binding.VariableBinding{Name: "bank_scope"},
		"segment":     binding.VariableBinding{Name: "segment", Default: "retail"},
	})}}
	req := Check(document(a, b), testCatalog(t), Options{})

	assert.Equal(t, []string{"bank_scope", "rbc_period_fiscal_year", "segment"}, req.Names())
	assert.Len(t, req.RequiredInputs[0].Parameters, 2)
	assert.Equal(t, SharedFiscalYear, req.RequiredInputs[1].AliasOf)
	assert.False(t, req.RequiredInputs[2].Required)
	assert.Equal(t, "retail", req.RequiredInputs[2].Default)

	p := period.Period{FiscalYear: 2025, FiscalQuarter: period.Q3}
	req = Check(document(a, b), testCatalog(t), Options{Final: true, Period: &p, RunInputs: map[string]any{"bank_scope": "TD"}})
	assert.NoError(t, req.Err())
}

func TestCheck_ParameterOrderWithDuplicateTitles(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	params := func() binding.Parameters {
		return binding.Parameters{
			"bank":    binding.VariableBinding{Name: "bank_scope"},
			"segment": binding.VariableBinding{Name: "bank_scope"},
		}
	}
	// the later subsection in the document has the smaller ID
	a := &types.Subsection{ID: high, Title: "Detail", Instructions: "x", DataInputs: []types.DataInput{input(params())}}
	b := &types.Subsection{ID: low, Title: "Detail", Instructions: "x", DataInputs: []types.DataInput{input(params())}}
	c := &types.Subsection{Title: "Cover", Instructions: "x", DataInputs: []types.DataInput{input(binding.Parameters{
		"bank": binding.VariableBinding{Name: "bank_scope"},
	})}}

	for range 5 {
		req := Check(document(a, b, c), testCatalog(t), Options{})
		require.Len(t, req.RequiredInputs, 1)
		var got []string
		for _, ref := range req.RequiredInputs[0].Parameters {
			got = append(got, ref.SubsectionTitle+"/"+ref.SubsectionID.String()[:8]+"/"+ref.Key)
		}
		assert.Equal(t, []string{
			"Cover/" + c.ID.String()[:8] + "/bank",
			"Detail/00000000/bank",
			"Detail/00000000/segment",
			"Detail/ffffffff/bank",
			"Detail/ffffffff/segment",
		}, got)
	}
}

func TestCheck_SectionStatus(t *testing.T) {
	ready := &types.Subsection{ID: uuid.New(), Title: "Overview", Position: 1, Instructions: "x", DataInputs: []types.DataInput{input(binding.Parameters{
		"fiscal_year": binding.Literal{Value: int64(2025)},
		"bank":        binding.Literal{Value: "RY"},
	})}}
	unconfigured := &types.Subsection{ID: uuid.New(), Title: "Capital", Position: 1, Instructions: "x"}
	empty := &types.Subsection{ID: uuid.New(), Title: "Notes", Position: 1}
	tmpl := &types.Template{Sections: []*types.Section{
		{ID: uuid.New(), Title: "Risk", Position: 2, Subsections: []*types.Subsection{unconfigured}},
		{ID: uuid.New(), Title: "Earnings", Position: 1, Subsections: []*types.Subsection{ready}},
		{ID: uuid.New(), Title: "Appendix", Position: 3, Subsections: []*types.Subsection{empty}},
	}}

	req := Check(tmpl, testCatalog(t), Options{})
	require.Len(t, req.Sections, 3)

	assert.Equal(t, "Earnings", req.Sections[0].Title)
	assert.True(t, req.Sections[0].Runnable)
	assert.Empty(t, req.Sections[0].Issues)

	assert.Equal(t, "Risk", req.Sections[1].Title)
	assert.False(t, req.Sections[1].Runnable)
	assert.Equal(t, []string{"Capital: no data inputs are configured"}, req.Sections[1].Issues)

	assert.Equal(t, "Appendix", req.Sections[2].Title)
	assert.False(t, req.Sections[2].Runnable)
	assert.Equal(t, []string{"no subsections have instructions"}, req.Sections[2].Issues)
}

func TestAliasesLookup(t *testing.T) {
	var none Aliases
	shared, ok := none.Lookup("rbc_period_fiscal_quarter")
	assert.True(t, ok)
	assert.Equal(t, SharedFiscalQuarter, shared)

	for _, name := range []string{"period_fiscal_year", "x_period_fiscal_yearly", "fiscal_year", "_period_fiscal_year"} {
		_, ok := none.Lookup(name)
		assert.False(t, ok, name)
	}

	explicit := Aliases{"report_year": SharedFiscalYear}
	shared, ok = explicit.Lookup("report_year")
	assert.True(t, ok)
	assert.Equal(t, SharedFiscalYear, shared)
}

func TestApplyAliases(t *testing.T) {
	in := map[string]any{SharedFiscalQuarter: "Q2", "td_period_fiscal_year": 2023}
	out := ApplyAliases(in, []string{"rbc_period_fiscal_quarter", "td_period_fiscal_year", "rbc_period_fiscal_year"}, nil, nil)

	assert.Equal(t, "Q2", out["rbc_period_fiscal_quarter"])
	assert.Equal(t, 2023, out["td_period_fiscal_year"], "supplied values are kept")
	assert.NotContains(t, out, "rbc_period_fiscal_year")
	assert.NotContains(t, in, "rbc_period_fiscal_quarter")

	p := period.Period{FiscalYear: 2025, FiscalQuarter: period.Q1}
	out = ApplyAliases(nil, []string{"rbc_period_fiscal_year"}, nil, &p)
	assert.Equal(t, int64(2025), out["rbc_period_fiscal_year"])
}
