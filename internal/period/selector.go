package period

import (
	"fmt"
	"strings"
)

// Selector names a value derived from the current period
type Selector string

// Known selectors
const (
	CurrentFiscalYear    Selector = "current.fiscal_year"
	QoQFiscalYear        Selector = "qoq.fiscal_year"
	YoYFiscalYear        Selector = "yoy.fiscal_year"
	CurrentFiscalQuarter Selector = "current.fiscal_quarter"
	QoQFiscalQuarter     Selector = "qoq.fiscal_quarter"
	YoYFiscalQuarter     Selector = "yoy.fiscal_quarter"
	Current              Selector = "current"
	QoQ                  Selector = "qoq"
	YoY                  Selector = "yoy"
	TrailingQuarters     Selector = "trailing_quarters"
)

// DefaultTrailingCount is used when a trailing_quarters binding has no count
const DefaultTrailingCount = 4

// Shape is the kind of value a selector produces
type Shape int

// Selector shapes
const (
	ShapeUnknown Shape = iota
	ShapeYear
	ShapeQuarter
	ShapeObject
	ShapeSequence
)

var shapes = map[Selector]Shape{
	CurrentFiscalYear:    ShapeYear,
	QoQFiscalYear:        ShapeYear,
	YoYFiscalYear:        ShapeYear,
	CurrentFiscalQuarter: ShapeQuarter,
	QoQFiscalQuarter:     ShapeQuarter,
	YoYFiscalQuarter:     ShapeQuarter,
	Current:              ShapeObject,
	QoQ:                  ShapeObject,
	YoY:                  ShapeObject,
	TrailingQuarters:     ShapeSequence,
}

// ParseSelector trims and checks s against the known selectors
func ParseSelector(s string) (Selector, error) {
	sel := Selector(strings.TrimSpace(s))
	if sel == "" {
		return "", fmt.Errorf("period selector is empty")
	}
	if _, ok := shapes[sel]; !ok {
		return "", fmt.Errorf("unknown period selector %q", s)
	}
	return sel, nil
}

// Shape returns the kind of value s produces
func (s Selector) Shape() Shape {
	return shapes[s]
}

// SelectorsWithShape lists the known selectors producing the given shape, in declaration order
func SelectorsWithShape(shape Shape) []Selector {
	var out []Selector
	for _, sel := range []Selector{
		CurrentFiscalYear, QoQFiscalYear, YoYFiscalYear,
		CurrentFiscalQuarter, QoQFiscalQuarter, YoYFiscalQuarter,
		Current, QoQ, YoY, TrailingQuarters,
	} {
		if shapes[sel] == shape {
			out = append(out, sel)
		}
	}
	return out
}

// scope returns the period a scoped selector refers to
func (s Selector) scope(current Period) Period {
	name, _, _ := strings.Cut(string(s), ".")
	switch name {
	case "qoq":
		return current.Previous()
	case "yoy":
		return current.YearAgo()
	default:
		return current
	}
}

// Apply evaluates s against current. Years are int64, quarters are strings,
// period objects are maps and trailing windows are []any of maps.
// count only applies to trailing_quarters; zero means DefaultTrailingCount.
func (s Selector) Apply(current Period, count int) (any, error) {
	if err := current.Validate(); err != nil {
		return nil, fmt.Errorf("current period: %w", err)
	}
	switch s.Shape() {
	case ShapeYear:
		return int64(s.scope(current).FiscalYear), nil
	case ShapeQuarter:
		return string(s.scope(current).FiscalQuarter), nil
	case ShapeObject:
		return s.scope(current).Object(), nil
	case ShapeSequence:
		if count == 0 {
			count = DefaultTrailingCount
		}
		if count < 0 {
			return nil, fmt.Errorf("trailing_quarters count must be positive, got %d", count)
		}
		periods := current.Trailing(count)
		out := make([]any, len(periods))
		for i, p := range periods {
			out[i] = p.Object()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown period selector %q", s)
	}
}
