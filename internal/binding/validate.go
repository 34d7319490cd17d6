package binding

import (
	"strings"

	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/schema"
)

// selectorShapes maps a parameter type to the selector shape it accepts
var selectorShapes = map[schema.ParameterType]period.Shape{
	schema.TypeInteger: period.ShapeYear,
	schema.TypeEnum:    period.ShapeQuarter,
	schema.TypeString:  period.ShapeQuarter,
	schema.TypeObject:  period.ShapeObject,
	schema.TypeArray:   period.ShapeSequence,
}

// AllowedSelectors lists the period selectors valid for a parameter type.
// Types with no period interpretation (number, boolean) return nil.
func AllowedSelectors(t schema.ParameterType) []period.Selector {
	shape, ok := selectorShapes[t]
	if !ok {
		return nil
	}
	return period.SelectorsWithShape(shape)
}

// SelectorAllowed reports whether sel may bind a parameter of type t
func SelectorAllowed(t schema.ParameterType, sel period.Selector) bool {
	shape, ok := selectorShapes[t]
	return ok && sel.Shape() == shape
}

// Validate checks b against def and returns the normalized binding:
// literals and variable defaults coerced, selectors trimmed.
func Validate(def schema.ParameterDefinition, b Binding) (Binding, error) {
	switch v := b.(type) {
	case Literal:
		value, err := Coerce(def, v.Value)
		if err != nil {
			return nil, withKey(def.Key, err)
		}
		return Literal{Value: value}, nil

	case PeriodBinding:
		sel, err := CheckSelector(def, v.Selector)
		if err != nil {
			return nil, withKey(def.Key, err)
		}
		if v.Count != nil {
			if sel != period.TrailingQuarters {
				return nil, withKey(def.Key, invalid(ErrInvalidCount, "count only applies to %s", period.TrailingQuarters))
			}
			if *v.Count < 1 {
				return nil, withKey(def.Key, invalid(ErrInvalidCount, "count must be a positive integer"))
			}
		}
		return PeriodBinding{Selector: sel, Count: v.Count}, nil

	case VariableBinding:
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return nil, withKey(def.Key, invalid(ErrEmptyVariable, "variable name must not be empty"))
		}
		out := VariableBinding{Name: name}
		if v.HasDefault() {
			value, err := Coerce(def, v.Default)
			if err != nil {
				ve := withKey(def.Key, err)
				ve.Message = "default: " + ve.Message
				return nil, ve
			}
			out.Default = value
		}
		return out, nil

	default:
		return nil, withKey(def.Key, invalid(ErrMalformedBinding, "unsupported binding %T", b))
	}
}

// CheckSelector parses sel and checks it is allowed for the parameter's type.
// It runs at configuration time and again at resolution time.
func CheckSelector(def schema.ParameterDefinition, sel period.Selector) (period.Selector, error) {
	parsed, err := period.ParseSelector(string(sel))
	if err != nil {
		return "", invalid(ErrInvalidSelector, "%v", err)
	}
	if !SelectorAllowed(def.Type, parsed) {
		allowed := AllowedSelectors(def.Type)
		if len(allowed) == 0 {
			return "", invalid(ErrInvalidSelector, "period selectors cannot bind a %s parameter", def.Type)
		}
		names := make([]string, len(allowed))
		for i, a := range allowed {
			names[i] = string(a)
		}
		return "", invalid(ErrInvalidSelector, "selector %q is not valid for a %s parameter (allowed: %s)",
			parsed, def.Type, strings.Join(names, ", "))
	}
	return parsed, nil
}

// ValidateParameters validates every binding against the method's definitions.
// All problems are returned together, keyed by parameter.
func ValidateParameters(method *schema.RetrievalMethod, params Parameters) (Parameters, FieldErrors) {
	out := make(Parameters, len(params))
	errs := make(FieldErrors)
	for key, b := range params {
		def, ok := method.Parameter(key)
		if !ok {
			errs[key] = &ValidationError{Key: key, Message: "not a parameter of method " + method.ID, Cause: ErrUnknownParameter}
			continue
		}
		if b == nil {
			continue
		}
		normalized, err := Validate(*def, b)
		if err != nil {
			errs[key] = withKey(key, err)
			continue
		}
		out[key] = normalized
	}
	return out, errs
}

// ValidateRaw decodes and validates raw configured values, as received from an editor
func ValidateRaw(method *schema.RetrievalMethod, raw map[string]any) (Parameters, FieldErrors) {
	params := make(Parameters, len(raw))
	errs := make(FieldErrors)
	for key, v := range raw {
		b, err := Decode(v)
		if err != nil {
			errs[key] = withKey(key, err)
			continue
		}
		params[key] = b
	}
	out, verrs := ValidateParameters(method, params)
	for k, e := range verrs {
		errs[k] = e
	}
	return out, errs
}
