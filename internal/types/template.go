// Package types defines the report document model: templates, sections, subsections
// and their version history.
package types

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alexwday/report-designer/internal/binding"
)

// WidgetType is how a subsection's content is presented
type WidgetType string

// Widget types
const (
	WidgetText   WidgetType = "text"
	WidgetTable  WidgetType = "table"
	WidgetChart  WidgetType = "chart"
	WidgetMetric WidgetType = "metric"
)

// Valid reports whether w is a known widget type. Empty is treated as text.
func (w WidgetType) Valid() bool {
	switch w {
	case "", WidgetText, WidgetTable, WidgetChart, WidgetMetric:
		return true
	}
	return false
}

// RequiresInstructions reports whether subsections of this widget need
// instructions before they can be generated. Only text widgets do.
func (w WidgetType) RequiresInstructions() bool {
	return w == "" || w == WidgetText
}

// DataInput is one configured retrieval call feeding a subsection
type DataInput struct {
	SourceID   string             `json:"source_id"`
	MethodID   string             `json:"method_id"`
	Parameters binding.Parameters `json:"parameters"`
}

// Dependencies are the declared sections and subsections whose content
// is passed to generation as context
type Dependencies struct {
	SectionIDs    []uuid.UUID `json:"section_ids"`
	SubsectionIDs []uuid.UUID `json:"subsection_ids"`
}

// Empty reports whether nothing is declared
func (d Dependencies) Empty() bool {
	return len(d.SectionIDs) == 0 && len(d.SubsectionIDs) == 0
}

// Normalize removes duplicate and nil IDs, keeping first-seen order
func (d Dependencies) Normalize() Dependencies {
	return Dependencies{
		SectionIDs:    dedupe(d.SectionIDs),
		SubsectionIDs: dedupe(d.SubsectionIDs),
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Subsection is a single generated content block
type Subsection struct {
	ID           uuid.UUID    `json:"id"`
	SectionID    uuid.UUID    `json:"section_id"`
	Title        string       `json:"title"`
	Position     int          `json:"position"`
	WidgetType   WidgetType   `json:"widget_type"`
	Instructions string       `json:"instructions"`
	Notes        string       `json:"notes,omitempty"`
	DataInputs   []DataInput  `json:"data_inputs"`
	Dependencies Dependencies `json:"dependencies"`
	Current      *Version     `json:"current_version,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// HasInstructions reports whether instructions are set
func (s *Subsection) HasInstructions() bool {
	return strings.TrimSpace(s.Instructions) != ""
}

// Eligible reports whether a document run generates this subsection: it has
// instructions, or it is a widget that does not need them.
func (s *Subsection) Eligible() bool {
	return s.HasInstructions() || !s.WidgetType.RequiresInstructions()
}

// Section is an ordered container of subsections
type Section struct {
	ID          uuid.UUID     `json:"id"`
	TemplateID  uuid.UUID     `json:"template_id"`
	Title       string        `json:"title"`
	Position    int           `json:"position"`
	Subsections []*Subsection `json:"subsections"`
}

// Template is a report document: an ordered list of sections
type Template struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Sections    []*Section `json:"sections"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Entry is one subsection in document iteration order
type Entry struct {
	Section    *Section
	Subsection *Subsection
	// Index is the zero-based position in document order
	Index int
}

// Ordered returns every subsection in iteration order: sections by ascending
// position, then subsections by ascending position. The template is not modified.
func (t *Template) Ordered() []Entry {
	sections := make([]*Section, len(t.Sections))
	copy(sections, t.Sections)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Position < sections[j].Position })

	var out []Entry
	for _, sec := range sections {
		subs := make([]*Subsection, len(sec.Subsections))
		copy(subs, sec.Subsections)
		sort.SliceStable(subs, func(i, j int) bool { return subs[i].Position < subs[j].Position })
		for _, sub := range subs {
			out = append(out, Entry{Section: sec, Subsection: sub, Index: len(out)})
		}
	}
	return out
}

// Section looks up a section by ID
func (t *Template) Section(id uuid.UUID) (*Section, bool) {
	for _, sec := range t.Sections {
		if sec.ID == id {
			return sec, true
		}
	}
	return nil, false
}

// Subsection looks up a subsection and its owning section by ID
func (t *Template) Subsection(id uuid.UUID) (*Section, *Subsection, bool) {
	for _, sec := range t.Sections {
		for _, sub := range sec.Subsections {
			if sub.ID == id {
				return sec, sub, true
			}
		}
	}
	return nil, nil, false
}

// Normalize sorts sections and subsections by position, renumbers them densely
// from 1 and fills parent IDs
func (t *Template) Normalize() {
	sort.SliceStable(t.Sections, func(i, j int) bool { return t.Sections[i].Position < t.Sections[j].Position })
	for i, sec := range t.Sections {
		sec.Position = i + 1
		sec.TemplateID = t.ID
		sort.SliceStable(sec.Subsections, func(a, b int) bool {
			return sec.Subsections[a].Position < sec.Subsections[b].Position
		})
		for j, sub := range sec.Subsections {
			sub.Position = j + 1
			sub.SectionID = sec.ID
		}
	}
}

// ValidatePositions checks positions are contiguous, starting at 1
func (t *Template) ValidatePositions() error {
	if err := contiguous(len(t.Sections), func(i int) int { return t.Sections[i].Position }); err != nil {
		return fmt.Errorf("template %s sections: %w", t.ID, err)
	}
	for _, sec := range t.Sections {
		if err := contiguous(len(sec.Subsections), func(i int) int { return sec.Subsections[i].Position }); err != nil {
			return fmt.Errorf("section %q subsections: %w", sec.Title, err)
		}
	}
	return nil
}

func contiguous(n int, pos func(int) int) error {
	seen := make([]bool, n+1)
	for i := 0; i < n; i++ {
		p := pos(i)
		if p < 1 || p > n {
			return fmt.Errorf("position %d out of range 1..%d", p, n)
		}
		if seen[p] {
			return fmt.Errorf("duplicate position %d", p)
		}
		seen[p] = true
	}
	return nil
}
