package precheck

import (
	"strings"

	"github.com/alexwday/report-designer/internal/period"
)

// Shared run inputs that carry the run period
const (
	SharedFiscalYear    = "period_fiscal_year"
	SharedFiscalQuarter = "period_fiscal_quarter"
)

const periodInfix = "_period_"

// periodFields maps the field after "_period_" to the shared input it may reuse
var periodFields = map[string]string{
	"fiscal_year":    SharedFiscalYear,
	"fiscal_quarter": SharedFiscalQuarter,
}

// Aliases maps a variable name to the shared input name it may fall back to
type Aliases map[string]string

// Lookup returns the shared input a variable may reuse. Explicit entries win;
// otherwise a name of the form <prefix>_period_fiscal_year or
// <prefix>_period_fiscal_quarter maps to the matching shared input.
func (a Aliases) Lookup(name string) (string, bool) {
	if shared, ok := a[name]; ok && shared != name {
		return shared, true
	}
	idx := strings.LastIndex(name, periodInfix)
	if idx <= 0 {
		return "", false
	}
	shared, ok := periodFields[name[idx+len(periodInfix):]]
	return shared, ok
}

// ApplyAliases fills variables missing from inputs with their shared alias value.
// The shared period inputs fall back to p when given. inputs is not modified.
func ApplyAliases(inputs map[string]any, names []string, aliases Aliases, p *period.Period) map[string]any {
	out := make(map[string]any, len(inputs)+len(names))
	for k, v := range inputs {
		out[k] = v
	}
	shared := func(name string) (any, bool) {
		if v, ok := out[name]; ok && !blank(v) {
			return v, true
		}
		if p == nil {
			return nil, false
		}
		switch name {
		case SharedFiscalYear:
			return int64(p.FiscalYear), true
		case SharedFiscalQuarter:
			return string(p.FiscalQuarter), true
		}
		return nil, false
	}
	for _, name := range names {
		if v, ok := out[name]; ok && !blank(v) {
			continue
		}
		alias, ok := aliases.Lookup(name)
		if !ok {
			continue
		}
		if v, ok := shared(alias); ok {
			out[name] = v
		}
	}
	return out
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
