package binding

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alexwday/report-designer/internal/schema"
)

// Coerce converts a raw literal to the canonical Go value for def.Type:
// string, int64, float64, bool, []any or map[string]any.
// Coercing an already-coerced value returns it unchanged.
func Coerce(def schema.ParameterDefinition, raw any) (any, error) {
	switch def.Type {
	case schema.TypeString, schema.TypeEnum:
		return coerceString(def.Options, raw)
	case schema.TypeInteger:
		return coerceInteger(raw)
	case schema.TypeNumber:
		return coerceNumber(raw)
	case schema.TypeBoolean:
		return coerceBoolean(raw)
	case schema.TypeArray:
		return coerceArray(def, raw)
	case schema.TypeObject:
		return coerceObject(raw)
	default:
		return nil, invalid(ErrTypeMismatch, "unsupported parameter type %q", def.Type)
	}
}

func coerceString(options []string, raw any) (any, error) {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case bool:
		s = strconv.FormatBool(v)
	case int, int32, int64:
		s = fmt.Sprint(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		s = v.String()
	default:
		return nil, invalid(ErrTypeMismatch, "expected a string, got %T", raw)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalid(ErrEmptyValue, "value must not be empty")
	}
	if len(options) == 0 {
		return s, nil
	}
	if opt, ok := matchOption(options, s); ok {
		return opt, nil
	}
	return nil, invalid(ErrInvalidOption, "must be one of: %s", strings.Join(options, ", "))
}

// matchOption finds s in options, case-insensitively, returning the canonical spelling
func matchOption(options []string, s string) (string, bool) {
	for _, opt := range options {
		if opt == s {
			return opt, true
		}
	}
	for _, opt := range options {
		if strings.EqualFold(opt, s) {
			return opt, true
		}
	}
	return "", false
}

func coerceInteger(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return nil, invalid(ErrTypeMismatch, "expected an integer, got a boolean")
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, invalid(ErrEmptyValue, "value must not be empty")
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, invalid(ErrTypeMismatch, "%q is not an integer", s)
		}
		return coerceInteger(f)
	}
	n, err := integral(raw)
	if err != nil {
		return nil, invalid(ErrTypeMismatch, "expected an integer: %v", err)
	}
	return n, nil
}

func coerceNumber(raw any) (any, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, invalid(ErrTypeMismatch, "%q is not a number", v.String())
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, invalid(ErrEmptyValue, "value must not be empty")
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, invalid(ErrTypeMismatch, "%q is not a number", s)
		}
		f = parsed
	default:
		return nil, invalid(ErrTypeMismatch, "expected a number, got %T", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, invalid(ErrTypeMismatch, "number must be finite")
	}
	return f, nil
}

func coerceBoolean(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return nil, invalid(ErrTypeMismatch, "%q is not a boolean", v)
	case int, int64, float64:
		n, err := integral(v)
		if err == nil && (n == 0 || n == 1) {
			return n == 1, nil
		}
	}
	return nil, invalid(ErrTypeMismatch, "expected a boolean, got %v", raw)
}

func coerceArray(def schema.ParameterDefinition, raw any) (any, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []string:
		items = make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	default:
		return nil, invalid(ErrTypeMismatch, "expected an array or comma-separated string, got %T", raw)
	}

	elemDef := schema.ParameterDefinition{Type: schema.TypeString}
	if def.Items != nil && def.Items.Type != "" && def.Items.Type != schema.TypeArray {
		elemDef.Type = def.Items.Type
	}
	options := def.AllowedValues()

	out := make([]any, 0, len(items))
	var bad []string
	for _, item := range items {
		v, err := Coerce(elemDef, item)
		if err != nil {
			bad = append(bad, fmt.Sprint(item))
			continue
		}
		if len(options) > 0 {
			opt, ok := matchOption(options, fmt.Sprint(v))
			if !ok {
				bad = append(bad, fmt.Sprint(item))
				continue
			}
			if elemDef.Type == schema.TypeString || elemDef.Type == schema.TypeEnum {
				v = opt
			}
		}
		out = append(out, v)
	}
	if len(bad) > 0 {
		ve := invalid(ErrInvalidOption, "invalid values: %s", strings.Join(bad, ", "))
		ve.Invalid = bad
		return nil, ve
	}
	return out, nil
}

func coerceObject(raw any) (any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, nil
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &parsed); err != nil {
			return nil, invalid(ErrTypeMismatch, "invalid JSON object: %v", err)
		}
		obj, ok := parsed.(map[string]any)
		if !ok {
			return nil, invalid(ErrTypeMismatch, "JSON value is not an object")
		}
		return obj, nil
	default:
		return nil, invalid(ErrTypeMismatch, "expected an object, got %T", raw)
	}
}
