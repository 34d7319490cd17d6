// Package resolve turns configured parameter bindings into concrete values for one
// generation run. A run resolves the whole document once, against a single current
// period, before any retrieval call is issued.
package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/types"
)

// Context is what bindings are resolved against
type Context struct {
	Current   period.Period
	RunInputs map[string]any
}

// UnresolvedVariableError is returned when a required parameter's variable has
// no run input and no default
type UnresolvedVariableError struct {
	Name string
	Key  string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("run input %q for parameter %s was not supplied", e.Name, e.Key)
}

// Error is a resolution failure for a single parameter
type Error struct {
	Key     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parameter %s: %s: %v", e.Key, e.Message, e.Cause)
	}
	return fmt.Sprintf("parameter %s: %s", e.Key, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Binding resolves one parameter. ok is false when an optional parameter has no
// value and should be left out of the call.
func Binding(def schema.ParameterDefinition, b binding.Binding, ctx Context) (value any, ok bool, err error) {
	switch v := b.(type) {
	case nil:
		if def.HasDefault() {
			return coerce(def, def.Default, "registry default")
		}
		if def.Required {
			return nil, false, &Error{Key: def.Key, Message: "required parameter is not bound"}
		}
		return nil, false, nil

	case binding.Literal:
		if v.Value == nil {
			if def.Required {
				return nil, false, &Error{Key: def.Key, Message: "required parameter is empty"}
			}
			return nil, false, nil
		}
		return coerce(def, v.Value, "literal")

	case binding.PeriodBinding:
		return resolvePeriod(def, v, ctx.Current)

	case binding.VariableBinding:
		name := strings.TrimSpace(v.Name)
		if raw, present := ctx.RunInputs[name]; present && !blank(raw) {
			return coerce(def, raw, fmt.Sprintf("run input %q", name))
		}
		if v.HasDefault() {
			return coerce(def, v.Default, fmt.Sprintf("default for %q", name))
		}
		if def.Required {
			return nil, false, &UnresolvedVariableError{Name: name, Key: def.Key}
		}
		return nil, false, nil
	}
	return nil, false, &Error{Key: def.Key, Message: fmt.Sprintf("unsupported binding %T", b)}
}

func resolvePeriod(def schema.ParameterDefinition, pb binding.PeriodBinding, current period.Period) (any, bool, error) {
	sel, err := binding.CheckSelector(def, pb.Selector)
	if err != nil {
		return nil, false, &Error{Key: def.Key, Message: "invalid period selector", Cause: err}
	}
	count := 0
	if sel == period.TrailingQuarters {
		count = pb.TrailingCount()
	}
	value, err := sel.Apply(current, count)
	if err != nil {
		return nil, false, &Error{Key: def.Key, Message: "failed to apply period selector", Cause: err}
	}
	if sel.Shape() == period.ShapeQuarter {
		// a quarter must still satisfy the parameter's option list
		return coerce(def, value, "period selector "+string(sel))
	}
	return value, true, nil
}

func coerce(def schema.ParameterDefinition, raw any, origin string) (any, bool, error) {
	v, err := binding.Coerce(def, raw)
	if err != nil {
		return nil, false, &Error{Key: def.Key, Message: "invalid " + origin, Cause: err}
	}
	return v, true, nil
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// Input resolves every parameter of a data input into a flat map. Errors for
// individual keys are joined so every problem is reported.
func Input(method *schema.RetrievalMethod, in types.DataInput, ctx Context) (map[string]any, error) {
	params := make(map[string]any, len(method.Parameters))
	var errs []error
	for _, def := range method.Parameters {
		value, ok, err := Binding(def, in.Parameters[def.Key], ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			params[def.Key] = value
		}
	}
	for key := range in.Parameters {
		if _, known := method.Parameter(key); !known {
			errs = append(errs, &Error{Key: key, Message: "not a parameter of method " + method.ID, Cause: binding.ErrUnknownParameter})
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return params, nil
}

// Call is one retrieval call with resolved parameters
type Call struct {
	SourceID string         `json:"source_id"`
	MethodID string         `json:"method_id"`
	Params   map[string]any `json:"params"`
}

// Plan holds the resolved calls for every eligible subsection of a document.
// A subsection appears in exactly one of Calls or Errors.
type Plan struct {
	Calls  map[uuid.UUID][]Call
	Errors map[uuid.UUID]error
}

// Subsection resolves every data input of a single subsection
func Subsection(sub *types.Subsection, cat *schema.Catalog, ctx Context) ([]Call, error) {
	calls := make([]Call, 0, len(sub.DataInputs))
	var errs []error
	for i, in := range sub.DataInputs {
		_, method, ok := cat.Method(in.SourceID, in.MethodID)
		if !ok {
			errs = append(errs, fmt.Errorf("input %d: unknown retrieval method %s/%s", i+1, in.SourceID, in.MethodID))
			continue
		}
		params, err := Input(method, in, ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("input %d: %w", i+1, err))
			continue
		}
		calls = append(calls, Call{SourceID: in.SourceID, MethodID: in.MethodID, Params: params})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return calls, nil
}

// Document resolves every eligible subsection of tmpl against one context
func Document(tmpl *types.Template, cat *schema.Catalog, ctx Context) Plan {
	plan := Plan{
		Calls:  make(map[uuid.UUID][]Call),
		Errors: make(map[uuid.UUID]error),
	}
	for _, entry := range tmpl.Ordered() {
		if !entry.Subsection.Eligible() {
			continue
		}
		calls, err := Subsection(entry.Subsection, cat, ctx)
		if err != nil {
			plan.Errors[entry.Subsection.ID] = err
			continue
		}
		plan.Calls[entry.Subsection.ID] = calls
	}
	return plan
}
