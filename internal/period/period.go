// Package period implements fiscal period arithmetic: quarter-over-quarter,
// year-over-year and trailing windows relative to a current period.
package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Quarter is a fiscal quarter label
type Quarter string

// Fiscal quarters in order
const (
	Q1 Quarter = "Q1"
	Q2 Quarter = "Q2"
	Q3 Quarter = "Q3"
	Q4 Quarter = "Q4"
)

// Quarters lists all quarters in ascending order
var Quarters = []Quarter{Q1, Q2, Q3, Q4}

// ParseQuarter accepts "Q1".."Q4" in any case, or the bare digits "1".."4"
func ParseQuarter(s string) (Quarter, error) {
	digits := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "Q")
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > 4 {
		return "", fmt.Errorf("invalid fiscal quarter %q", s)
	}
	return Quarters[n-1], nil
}

// Index returns the zero-based position of q (Q1 = 0), or -1 if q is not a quarter
func (q Quarter) Index() int {
	for i, v := range Quarters {
		if v == q {
			return i
		}
	}
	return -1
}

// Valid reports whether q is Q1..Q4
func (q Quarter) Valid() bool {
	return q.Index() >= 0
}

// Period is a fiscal reporting period
type Period struct {
	FiscalYear    int     `json:"fiscal_year" validate:"required,min=1900,max=9999"`
	FiscalQuarter Quarter `json:"fiscal_quarter" validate:"required,oneof=Q1 Q2 Q3 Q4"`
}

// Validate checks the year is positive and the quarter is known
func (p Period) Validate() error {
	if p.FiscalYear <= 0 {
		return fmt.Errorf("invalid fiscal year %d", p.FiscalYear)
	}
	if !p.FiscalQuarter.Valid() {
		return fmt.Errorf("invalid fiscal quarter %q", p.FiscalQuarter)
	}
	return nil
}

func (p Period) String() string {
	return fmt.Sprintf("%d %s", p.FiscalYear, p.FiscalQuarter)
}

// Previous returns the quarter before p, crossing into the prior year below Q1
func (p Period) Previous() Period {
	i := p.FiscalQuarter.Index()
	if i <= 0 {
		return Period{FiscalYear: p.FiscalYear - 1, FiscalQuarter: Q4}
	}
	return Period{FiscalYear: p.FiscalYear, FiscalQuarter: Quarters[i-1]}
}

// YearAgo returns the same quarter one fiscal year earlier
func (p Period) YearAgo() Period {
	return Period{FiscalYear: p.FiscalYear - 1, FiscalQuarter: p.FiscalQuarter}
}

// Trailing returns n periods ending at and including p, oldest first
func (p Period) Trailing(n int) []Period {
	if n <= 0 {
		return nil
	}
	out := make([]Period, n)
	cur := p
	for i := n - 1; i >= 0; i-- {
		out[i] = cur
		cur = cur.Previous()
	}
	return out
}

// Object returns the period as a plain map, the literal form handed to retrieval calls
func (p Period) Object() map[string]any {
	return map[string]any{
		"fiscal_year":    int64(p.FiscalYear),
		"fiscal_quarter": string(p.FiscalQuarter),
	}
}

// Containing returns the calendar-aligned period containing t
func Containing(t time.Time) Period {
	return Period{
		FiscalYear:    t.Year(),
		FiscalQuarter: Quarters[(int(t.Month())-1)/3],
	}
}
