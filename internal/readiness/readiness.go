// Package readiness decides whether configured data inputs, subsections and
// sections have enough information to be generated without operator input.
package readiness

import (
	"fmt"
	"strings"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/types"
)

// Lookup resolves a retrieval method in the registry
type Lookup interface {
	Method(sourceID, methodID string) (*schema.DataSource, *schema.RetrievalMethod, bool)
}

// Result is the outcome of a readiness check
type Result struct {
	Ready  bool     `json:"ready"`
	Issues []string `json:"issues"`
}

func newResult(issues []string) Result {
	if issues == nil {
		issues = []string{}
	}
	return Result{Ready: len(issues) == 0, Issues: issues}
}

// Evaluate checks a single data input: source and method set and known, and
// every required parameter bound to a non-missing value
func Evaluate(input types.DataInput, reg Lookup) Result {
	var issues []string
	if strings.TrimSpace(input.SourceID) == "" {
		issues = append(issues, "data source is not selected")
	}
	if strings.TrimSpace(input.MethodID) == "" {
		issues = append(issues, "retrieval method is not selected")
	}
	if len(issues) > 0 {
		return newResult(issues)
	}

	src, method, ok := reg.Method(input.SourceID, input.MethodID)
	if src == nil {
		return newResult([]string{fmt.Sprintf("unknown data source %q", input.SourceID)})
	}
	if !ok {
		return newResult([]string{fmt.Sprintf("unknown retrieval method %q for data source %q", input.MethodID, input.SourceID)})
	}

	for _, def := range method.Parameters {
		if !def.Required {
			continue
		}
		b, bound := input.Parameters[def.Key]
		if !bound || b == nil {
			if def.HasDefault() && !isEmptyValue(def.Default) {
				continue
			}
			issues = append(issues, fmt.Sprintf("required parameter %q is not set", def.Key))
			continue
		}
		if Missing(b) {
			issues = append(issues, fmt.Sprintf("required parameter %q is empty", def.Key))
		}
	}
	return newResult(issues)
}

// Missing reports whether a binding carries no usable value
func Missing(b binding.Binding) bool {
	switch v := b.(type) {
	case binding.Literal:
		return isEmptyValue(v.Value)
	case binding.VariableBinding:
		return strings.TrimSpace(v.Name) == ""
	case binding.PeriodBinding:
		return strings.TrimSpace(string(v.Selector)) == ""
	default:
		return true
	}
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

// Subsection is ready iff it has at least one data input and every input is ready.
// Issues from individual inputs are prefixed with their 1-based input number.
func Subsection(sub *types.Subsection, reg Lookup) Result {
	if len(sub.DataInputs) == 0 {
		return newResult([]string{"no data inputs are configured"})
	}
	var issues []string
	for i, in := range sub.DataInputs {
		res := Evaluate(in, reg)
		for _, issue := range res.Issues {
			issues = append(issues, fmt.Sprintf("input %d: %s", i+1, issue))
		}
	}
	return newResult(issues)
}

// Section is runnable iff it has at least one subsection with instructions and
// every such subsection is ready
func Section(sec *types.Section, reg Lookup) Result {
	var issues []string
	withInstructions := 0
	for _, sub := range sec.Subsections {
		if !sub.HasInstructions() {
			continue
		}
		withInstructions++
		res := Subsection(sub, reg)
		for _, issue := range res.Issues {
			issues = append(issues, fmt.Sprintf("%s: %s", sub.Title, issue))
		}
	}
	if withInstructions == 0 {
		return newResult([]string{"no subsections have instructions"})
	}
	return newResult(issues)
}
