// Package binding models how each retrieval parameter obtains its value: a fixed
// literal, a period-relative rule, or a variable collected once per run.
//
// Bindings are stored and transported as JSON. A JSON object carrying a "$period"
// key is a PeriodBinding, one carrying "$var" is a VariableBinding; any other
// value is a literal candidate.
package binding

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/alexwday/report-designer/internal/period"
)

// Tag keys that mark a JSON object as a binding rather than a literal
const (
	PeriodKey  = "$period"
	VarKey     = "$var"
	countKey   = "count"
	defaultKey = "default"
)

// Kind identifies a binding variant
type Kind string

// Binding kinds
const (
	KindLiteral  Kind = "literal"
	KindPeriod   Kind = "period"
	KindVariable Kind = "variable"
)

// Binding is one of Literal, PeriodBinding or VariableBinding
type Binding interface {
	Kind() Kind
	// Encode returns the tagged JSON-ready representation
	Encode() any
	sealed()
}

// Literal is a fixed value, coerced to the parameter's declared type
type Literal struct {
	Value any
}

// PeriodBinding derives the value from the run's current period.
// Count applies to trailing_quarters only; nil means the default window.
type PeriodBinding struct {
	Selector period.Selector
	Count    *int
}

// VariableBinding takes the value from the run inputs collected at run start
type VariableBinding struct {
	Name    string
	Default any
}

func (Literal) Kind() Kind         { return KindLiteral }
func (PeriodBinding) Kind() Kind   { return KindPeriod }
func (VariableBinding) Kind() Kind { return KindVariable }

func (Literal) sealed()         {}
func (PeriodBinding) sealed()   {}
func (VariableBinding) sealed() {}

// Encode implements Binding
func (l Literal) Encode() any { return l.Value }

// Encode implements Binding
func (p PeriodBinding) Encode() any {
	out := map[string]any{PeriodKey: string(p.Selector)}
	if p.Count != nil {
		out[countKey] = *p.Count
	}
	return out
}

// Encode implements Binding
func (v VariableBinding) Encode() any {
	out := map[string]any{VarKey: v.Name}
	if v.Default != nil {
		out[defaultKey] = v.Default
	}
	return out
}

// HasDefault reports whether the variable carries a fallback value
func (v VariableBinding) HasDefault() bool {
	return v.Default != nil
}

// TrailingCount returns the configured window or the default
func (p PeriodBinding) TrailingCount() int {
	if p.Count == nil {
		return period.DefaultTrailingCount
	}
	return *p.Count
}

// Decode classifies a raw configured value by tag-key presence. It only checks
// the binding's shape; type compatibility is checked by Validate.
func Decode(raw any) (Binding, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Literal{Value: raw}, nil
	}
	_, isPeriod := obj[PeriodKey]
	_, isVar := obj[VarKey]

	switch {
	case isPeriod && isVar:
		return nil, invalid(ErrMalformedBinding, "binding cannot set both %s and %s", PeriodKey, VarKey)
	case isPeriod:
		return decodePeriod(obj)
	case isVar:
		return decodeVariable(obj)
	default:
		return Literal{Value: raw}, nil
	}
}

func decodePeriod(obj map[string]any) (Binding, error) {
	for k := range obj {
		if k != PeriodKey && k != countKey {
			return nil, invalid(ErrMalformedBinding, "unexpected key %q in period binding", k)
		}
	}
	sel, ok := obj[PeriodKey].(string)
	if !ok {
		return nil, invalid(ErrMalformedBinding, "%s must be a string", PeriodKey)
	}
	b := PeriodBinding{Selector: period.Selector(strings.TrimSpace(sel))}
	if rawCount, present := obj[countKey]; present && rawCount != nil {
		n, err := integral(rawCount)
		if err != nil {
			return nil, invalid(ErrInvalidCount, "count must be an integer")
		}
		c := int(n)
		b.Count = &c
	}
	return b, nil
}

func decodeVariable(obj map[string]any) (Binding, error) {
	for k := range obj {
		if k != VarKey && k != defaultKey {
			return nil, invalid(ErrMalformedBinding, "unexpected key %q in variable binding", k)
		}
	}
	name, ok := obj[VarKey].(string)
	if !ok {
		return nil, invalid(ErrMalformedBinding, "%s must be a string", VarKey)
	}
	return VariableBinding{Name: strings.TrimSpace(name), Default: obj[defaultKey]}, nil
}

// integral converts a JSON-ish number to int64, rejecting fractions, non-finite
// values and anything outside the int64 range
func integral(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
		if v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("%v is out of range for an integer", v)
		}
		return int64(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s is not a number", v)
		}
		return integral(f)
	default:
		return 0, fmt.Errorf("%v is not a number", raw)
	}
}

// Parameters maps parameter keys to their bindings
type Parameters map[string]Binding

// MarshalJSON encodes each binding in its tagged form
func (p Parameters) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p))
	for k, b := range p {
		if b == nil {
			continue
		}
		out[k] = b.Encode()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes tagged bindings. Type compatibility is not checked here.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Parameters, len(raw))
	for k, v := range raw {
		b, err := Decode(v)
		if err != nil {
			return withKey(k, err)
		}
		out[k] = b
	}
	*p = out
	return nil
}

// VariableNames returns the distinct variable names referenced by p, sorted
func (p Parameters) VariableNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, b := range p {
		if v, ok := b.(VariableBinding); ok && v.Name != "" && !seen[v.Name] {
			seen[v.Name] = true
			names = append(names, v.Name)
		}
	}
	sort.Strings(names)
	return names
}
