// Package dependency gathers the content of declared section and subsection
// dependencies for a subsection being generated.
package dependency

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/alexwday/report-designer/internal/types"
)

// ErrSelfReference is returned when a subsection depends on itself
var ErrSelfReference = errors.New("a subsection cannot depend on itself")

// Reader reads stored current versions
type Reader interface {
	ReadCurrent(ctx context.Context, subsectionIDs []uuid.UUID) (map[uuid.UUID]*types.Version, error)
}

// Item is the content of one dependency passed to generation
type Item struct {
	SectionTitle    string    `json:"section_title"`
	SubsectionTitle string    `json:"subsection_title"`
	SubsectionID    uuid.UUID `json:"subsection_id"`
	Content         string    `json:"content"`
	ContentType     string    `json:"content_type"`
	// FromRun is true when the content was produced earlier in the same run
	FromRun bool `json:"from_run"`
}

// Result is the gathered context for a subsection
type Result struct {
	Items []Item
	// Missing lists declared IDs that do not exist in the template
	Missing []uuid.UUID
}

// Validate checks the declared dependencies of owner. A dependency on the
// owner's own section is allowed; Gather skips the owner itself.
func Validate(owner uuid.UUID, deps types.Dependencies) error {
	for _, id := range deps.SubsectionIDs {
		if id == owner {
			return ErrSelfReference
		}
	}
	return nil
}

// Gather collects dependency content for sub. Content produced earlier in the
// run wins; anything else falls back to the stored current version, which for
// later items in document order is their pre-run content.
func Gather(ctx context.Context, tmpl *types.Template, sub *types.Subsection, produced map[uuid.UUID]*types.Version, reader Reader) (*Result, error) {
	deps := sub.Dependencies.Normalize()
	res := &Result{}
	if deps.Empty() {
		return res, nil
	}

	type target struct {
		section *types.Section
		sub     *types.Subsection
	}
	var targets []target
	seen := map[uuid.UUID]bool{sub.ID: true}
	add := func(sec *types.Section, s *types.Subsection) {
		if seen[s.ID] {
			return
		}
		seen[s.ID] = true
		targets = append(targets, target{section: sec, sub: s})
	}

	for _, id := range deps.SectionIDs {
		sec, ok := tmpl.Section(id)
		if !ok {
			res.Missing = append(res.Missing, id)
			continue
		}
		for _, entry := range (&types.Template{Sections: []*types.Section{sec}}).Ordered() {
			add(sec, entry.Subsection)
		}
	}
	for _, id := range deps.SubsectionIDs {
		sec, s, ok := tmpl.Subsection(id)
		if !ok {
			res.Missing = append(res.Missing, id)
			continue
		}
		add(sec, s)
	}

	var stale []uuid.UUID
	for _, t := range targets {
		if _, ok := produced[t.sub.ID]; !ok {
			stale = append(stale, t.sub.ID)
		}
	}
	stored := map[uuid.UUID]*types.Version{}
	if len(stale) > 0 && reader != nil {
		var err error
		stored, err = reader.ReadCurrent(ctx, stale)
		if err != nil {
			return nil, fmt.Errorf("failed to read dependency content: %w", err)
		}
	}

	for _, t := range targets {
		item := Item{
			SectionTitle:    t.section.Title,
			SubsectionTitle: t.sub.Title,
			SubsectionID:    t.sub.ID,
		}
		if v, ok := produced[t.sub.ID]; ok {
			item.Content, item.ContentType, item.FromRun = v.Content, v.ContentType, true
		} else if v, ok := stored[t.sub.ID]; ok && v != nil {
			item.Content, item.ContentType = v.Content, v.ContentType
		} else {
			continue
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

// Reference is a dependency on content that comes later in document order.
// Such a dependency reads stale content during a run.
type Reference struct {
	From       uuid.UUID `json:"from_subsection_id"`
	FromTitle  string    `json:"from_subsection_title"`
	Target     uuid.UUID `json:"target_id"`
	TargetKind string    `json:"target_kind"`
}

// ForwardReferences lists every dependency that points at or into a later item
func ForwardReferences(tmpl *types.Template) []Reference {
	entries := tmpl.Ordered()
	index := make(map[uuid.UUID]int, len(entries))
	lastInSection := make(map[uuid.UUID]int)
	for _, e := range entries {
		index[e.Subsection.ID] = e.Index
		lastInSection[e.Section.ID] = e.Index
	}

	var refs []Reference
	for _, e := range entries {
		deps := e.Subsection.Dependencies.Normalize()
		for _, id := range deps.SectionIDs {
			if last, ok := lastInSection[id]; ok && last > e.Index {
				refs = append(refs, Reference{From: e.Subsection.ID, FromTitle: e.Subsection.Title, Target: id, TargetKind: "section"})
			}
		}
		for _, id := range deps.SubsectionIDs {
			if i, ok := index[id]; ok && i > e.Index {
				refs = append(refs, Reference{From: e.Subsection.ID, FromTitle: e.Subsection.Title, Target: id, TargetKind: "subsection"})
			}
		}
	}
	return refs
}
