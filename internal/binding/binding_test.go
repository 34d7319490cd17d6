package binding

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/schema"
)

func def(key string, t schema.ParameterType, options ...string) schema.ParameterDefinition {
	return schema.ParameterDefinition{Key: key, Type: t, Options: options}
}

func TestDecode(t *testing.T) {
	b, err := Decode(map[string]any{"$period": " qoq.fiscal_quarter "})
	require.NoError(t, err)
	assert.Equal(t, PeriodBinding{Selector: period.QoQFiscalQuarter}, b)

	b, err = Decode(map[string]any{"$period": "trailing_quarters", "count": float64(8)})
	require.NoError(t, err)
	pb := b.(PeriodBinding)
	require.NotNil(t, pb.Count)
	assert.Equal(t, 8, pb.TrailingCount())

	b, err = Decode(map[string]any{"$var": "bank_scope", "default": "all"})
	require.NoError(t, err)
	assert.Equal(t, VariableBinding{Name: "bank_scope", Default: "all"}, b)

	b, err = Decode(map[string]any{"region": "NA"})
	require.NoError(t, err)
	assert.Equal(t, KindLiteral, b.Kind())

	b, err = Decode("2025")
	require.NoError(t, err)
	assert.Equal(t, Literal{Value: "2025"}, b)
}

func TestDecode_Malformed(t *testing.T) {
	inputs := []any{
		map[string]any{"$period": "current", "$var": "x"},
		map[string]any{"$period": 3},
		map[string]any{"$var": true},
		map[string]any{"$var": "x", "fallback": 1},
		map[string]any{"$period": "trailing_quarters", "count": 1.5},
	}
	for _, in := range inputs {
		_, err := Decode(in)
		assert.Error(t, err, "%v", in)
	}
}

func TestCoerce_Idempotent(t *testing.T) {
	tests := []struct {
		def schema.ParameterDefinition
		raw any
	}{
		{def("s", schema.TypeString), "  banks  "},
		{def("e", schema.TypeEnum, "Q1", "Q2", "Q3", "Q4"), "q2"},
		{def("i", schema.TypeInteger), "2025"},
		{def("i", schema.TypeInteger), float64(2025)},
		{def("n", schema.TypeNumber), "1.25"},
		{def("b", schema.TypeBoolean), "Yes"},
		{def("a", schema.TypeArray), "RY, TD ,BMO"},
		{schema.ParameterDefinition{Key: "a", Type: schema.TypeArray, Items: &schema.ItemsDefinition{Type: schema.TypeInteger}}, []any{"1", float64(2)}},
		{def("o", schema.TypeObject), `{"region":"NA"}`},
	}
	for _, tt := range tests {
		t.Run(string(tt.def.Type), func(t *testing.T) {
			first, err := Coerce(tt.def, tt.raw)
			require.NoError(t, err)
			second, err := Coerce(tt.def, first)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestCoerce_Values(t *testing.T) {
	v, err := Coerce(def("s", schema.TypeString), " banks ")
	require.NoError(t, err)
	assert.Equal(t, "banks", v)

	v, err = Coerce(def("e", schema.TypeEnum, "Q1", "Q2"), "q1")
	require.NoError(t, err)
	assert.Equal(t, "Q1", v, "enum matches are returned in canonical spelling")

	v, err = Coerce(def("i", schema.TypeInteger), "2025.0")
	require.NoError(t, err)
	assert.Equal(t, int64(2025), v)

	for in, want := range map[string]bool{"TRUE": true, "0": false, "no": false, "1": true} {
		v, err = Coerce(def("b", schema.TypeBoolean), in)
		require.NoError(t, err)
		assert.Equal(t, want, v, in)
	}

	v, err = Coerce(def("a", schema.TypeArray), "RY, TD,,BMO")
	require.NoError(t, err)
	assert.Equal(t, []any{"RY", "TD", "BMO"}, v)
}

func TestCoerce_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		def   schema.ParameterDefinition
		raw   any
		cause error
	}{
		{"empty string", def("s", schema.TypeString), "   ", ErrEmptyValue},
		{"string not in options", def("s", schema.TypeString, "A", "B"), "C", ErrInvalidOption},
		{"fractional integer", def("i", schema.TypeInteger), 1.5, ErrTypeMismatch},
		{"non-numeric integer", def("i", schema.TypeInteger), "abc", ErrTypeMismatch},
		{"integer string beyond int64", def("i", schema.TypeInteger), "1e20", ErrTypeMismatch},
		{"integer float beyond int64", def("i", schema.TypeInteger), 1e20, ErrTypeMismatch},
		{"integer below int64", def("i", schema.TypeInteger), -1e19, ErrTypeMismatch},
		{"integer json number beyond int64", def("i", schema.TypeInteger), json.Number("99999999999999999999"), ErrTypeMismatch},
		{"infinite number", def("n", schema.TypeNumber), "Inf", ErrTypeMismatch},
		{"bad boolean", def("b", schema.TypeBoolean), "maybe", ErrTypeMismatch},
		{"object parse failure", def("o", schema.TypeObject), "{not json", ErrTypeMismatch},
		{"object non-object", def("o", schema.TypeObject), "[1,2]", ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.def, tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.cause), "got %v", err)
		})
	}
}

func TestCoerce_ArrayListsInvalidEntries(t *testing.T) {
	d := schema.ParameterDefinition{
		Key:   "banks",
		Type:  schema.TypeArray,
		Items: &schema.ItemsDefinition{Options: []string{"RY", "TD", "BMO"}},
	}
	_, err := Coerce(d, []any{"RY", "XX", "TD", "YY"})
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"XX", "YY"}, ve.Invalid)
	assert.Contains(t, ve.Message, "XX, YY")
}

func TestSelectorTypeCompatibility(t *testing.T) {
	all := []period.Selector{
		period.CurrentFiscalYear, period.QoQFiscalYear, period.YoYFiscalYear,
		period.CurrentFiscalQuarter, period.QoQFiscalQuarter, period.YoYFiscalQuarter,
		period.Current, period.QoQ, period.YoY, period.TrailingQuarters,
	}
	allowed := map[schema.ParameterType][]period.Selector{
		schema.TypeInteger: {period.CurrentFiscalYear, period.QoQFiscalYear, period.YoYFiscalYear},
		schema.TypeEnum:    {period.CurrentFiscalQuarter, period.QoQFiscalQuarter, period.YoYFiscalQuarter},
		schema.TypeString:  {period.CurrentFiscalQuarter, period.QoQFiscalQuarter, period.YoYFiscalQuarter},
		schema.TypeObject:  {period.Current, period.QoQ, period.YoY},
		schema.TypeArray:   {period.TrailingQuarters},
		schema.TypeNumber:  nil,
		schema.TypeBoolean: nil,
	}

	for typ, want := range allowed {
		assert.Equal(t, want, AllowedSelectors(typ), string(typ))

		ok := make(map[period.Selector]bool)
		for _, s := range want {
			ok[s] = true
		}
		for _, sel := range all {
			_, err := Validate(schema.ParameterDefinition{Key: "p", Type: typ}, PeriodBinding{Selector: sel})
			if ok[sel] {
				assert.NoError(t, err, "%s on %s", sel, typ)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSelector, "%s on %s", sel, typ)
			}
		}
	}
}

func TestValidate_PeriodBinding(t *testing.T) {
	_, err := Validate(def("p", schema.TypeString), PeriodBinding{Selector: period.TrailingQuarters})
	assert.ErrorIs(t, err, ErrInvalidSelector)

	_, err = Validate(def("p", schema.TypeEnum), PeriodBinding{Selector: ""})
	assert.ErrorIs(t, err, ErrInvalidSelector)

	zero := 0
	_, err = Validate(def("p", schema.TypeArray), PeriodBinding{Selector: period.TrailingQuarters, Count: &zero})
	assert.ErrorIs(t, err, ErrInvalidCount)

	eight := 8
	b, err := Validate(def("p", schema.TypeArray), PeriodBinding{Selector: period.TrailingQuarters, Count: &eight})
	require.NoError(t, err)
	assert.Equal(t, 8, b.(PeriodBinding).TrailingCount())

	_, err = Validate(def("p", schema.TypeInteger), PeriodBinding{Selector: period.CurrentFiscalYear, Count: &eight})
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestValidate_VariableBinding(t *testing.T) {
	_, err := Validate(def("scope", schema.TypeString), VariableBinding{Name: "   "})
	assert.ErrorIs(t, err, ErrEmptyVariable)

	b, err := Validate(def("year", schema.TypeInteger), VariableBinding{Name: " fy ", Default: "2024"})
	require.NoError(t, err)
	assert.Equal(t, VariableBinding{Name: "fy", Default: int64(2024)}, b)

	_, err = Validate(def("year", schema.TypeInteger), VariableBinding{Name: "fy", Default: "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default")
}

func TestValidateRaw_ReportsAllKeys(t *testing.T) {
	method := &schema.RetrievalMethod{
		ID: "earnings",
		Parameters: []schema.ParameterDefinition{
			{Key: "fiscal_year", Type: schema.TypeInteger, Required: true},
			{Key: "fiscal_quarter", Type: schema.TypeEnum, Options: []string{"Q1", "Q2", "Q3", "Q4"}},
			{Key: "bank", Type: schema.TypeString},
		},
	}

	params, errs := ValidateRaw(method, map[string]any{
		"fiscal_year":    "twenty",
		"fiscal_quarter": map[string]any{"$period": "trailing_quarters"},
		"bank":           map[string]any{"$var": "bank_scope"},
		"colour":         "blue",
	})

	assert.Equal(t, []string{"colour", "fiscal_quarter", "fiscal_year"}, errs.Keys())
	assert.ErrorIs(t, errs["colour"], ErrUnknownParameter)
	assert.ErrorIs(t, errs["fiscal_quarter"], ErrInvalidSelector)
	assert.ErrorIs(t, errs["fiscal_year"], ErrTypeMismatch)
	assert.Equal(t, VariableBinding{Name: "bank_scope"}, params["bank"])
	assert.Error(t, errs.Err())
}

func TestParametersJSON(t *testing.T) {
	var p Parameters
	require.NoError(t, json.Unmarshal([]byte(`{
		"year": {"$period": "current.fiscal_year"},
		"bank": {"$var": "bank_scope", "default": "RY"},
		"limit": 10
	}`), &p))

	assert.Equal(t, PeriodBinding{Selector: period.CurrentFiscalYear}, p["year"])
	assert.Equal(t, VariableBinding{Name: "bank_scope", Default: "RY"}, p["bank"])
	assert.Equal(t, Literal{Value: float64(10)}, p["limit"])
	assert.Equal(t, []string{"bank_scope"}, p.VariableNames())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"year":{"$period":"current.fiscal_year"},"bank":{"$var":"bank_scope","default":"RY"},"limit":10}`, string(out))
}
