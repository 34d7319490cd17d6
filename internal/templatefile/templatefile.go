// Package templatefile reads report template import files. Sections and
// subsections are referenced by key inside the file; parsing assigns IDs,
// resolves dependency keys and validates every data input binding.
package templatefile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/dependency"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/schemas"
	"github.com/alexwday/report-designer/internal/types"
	embedded "github.com/alexwday/report-designer/schemas"
)

// File is the import document layout
type File struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Sections    []Section `json:"sections"`
}

// Section in an import file
type Section struct {
	Key         string       `json:"key,omitempty"`
	Title       string       `json:"title"`
	Position    int          `json:"position,omitempty"`
	Subsections []Subsection `json:"subsections"`
}

// Subsection in an import file
type Subsection struct {
	Key          string      `json:"key,omitempty"`
	Title        string      `json:"title"`
	Position     int         `json:"position,omitempty"`
	WidgetType   string      `json:"widget_type,omitempty"`
	Instructions string      `json:"instructions,omitempty"`
	Notes        string      `json:"notes,omitempty"`
	DataInputs   []DataInput `json:"data_inputs,omitempty"`
	DependsOn    DependsOn   `json:"depends_on"`
}

// DataInput carries raw parameter values, decoded into bindings during Parse
type DataInput struct {
	SourceID   string         `json:"source_id"`
	MethodID   string         `json:"method_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// DependsOn lists section and subsection keys
type DependsOn struct {
	Sections    []string `json:"sections,omitempty"`
	Subsections []string `json:"subsections,omitempty"`
}

// Error lists every problem found in an import file
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("template file has %d problem(s):\n  - %s", len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// Parse validates data against the template schema, then against the catalog,
// and returns the template ready to import
func Parse(data []byte, catalog *schema.Catalog) (*types.Template, error) {
	if err := schemas.ValidateDocument(embedded.Template, data); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var file File
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode template file: %w", err)
	}
	return Build(&file, catalog)
}

// Build converts a decoded file into a template
func Build(file *File, catalog *schema.Catalog) (*types.Template, error) {
	var problems []string
	tmpl := &types.Template{Name: strings.TrimSpace(file.Name), Description: file.Description}
	if file.ID != "" {
		id, err := uuid.Parse(file.ID)
		if err != nil {
			problems = append(problems, fmt.Sprintf("id %q is not a UUID", file.ID))
		}
		tmpl.ID = id
	} else {
		tmpl.ID = uuid.New()
	}

	sectionKeys := make(map[string]uuid.UUID)
	subsectionKeys := make(map[string]uuid.UUID)
	claim := func(keys map[string]uuid.UUID, kind, key string, id uuid.UUID) {
		if key == "" {
			return
		}
		if _, dup := keys[key]; dup {
			problems = append(problems, fmt.Sprintf("duplicate %s key %q", kind, key))
			return
		}
		keys[key] = id
	}

	// First pass assigns IDs so dependencies may reference later items
	for i, fs := range file.Sections {
		sec := &types.Section{ID: uuid.New(), TemplateID: tmpl.ID, Title: fs.Title, Position: position(fs.Position, i)}
		claim(sectionKeys, "section", fs.Key, sec.ID)
		for j, fsub := range fs.Subsections {
			sub := &types.Subsection{
				ID:           uuid.New(),
				SectionID:    sec.ID,
				Title:        fsub.Title,
				Position:     position(fsub.Position, j),
				WidgetType:   types.WidgetType(fsub.WidgetType),
				Instructions: fsub.Instructions,
				Notes:        fsub.Notes,
			}
			claim(subsectionKeys, "subsection", fsub.Key, sub.ID)
			sec.Subsections = append(sec.Subsections, sub)
		}
		tmpl.Sections = append(tmpl.Sections, sec)
	}

	for i, fs := range file.Sections {
		sec := tmpl.Sections[i]
		for j, fsub := range fs.Subsections {
			sub := sec.Subsections[j]
			where := fmt.Sprintf("%s / %s", fs.Title, fsub.Title)

			if !sub.WidgetType.Valid() {
				problems = append(problems, fmt.Sprintf("%s: unknown widget type %q", where, fsub.WidgetType))
			}

			inputs, errs := buildInputs(fsub.DataInputs, catalog)
			for _, e := range errs {
				problems = append(problems, where+": "+e)
			}
			sub.DataInputs = inputs

			deps, errs := resolveKeys(fsub.DependsOn, sectionKeys, subsectionKeys)
			for _, e := range errs {
				problems = append(problems, where+": "+e)
			}
			if err := dependency.Validate(sub.ID, deps); err != nil {
				problems = append(problems, where+": "+err.Error())
			}
			sub.Dependencies = deps
		}
	}

	if len(problems) > 0 {
		return nil, &Error{Problems: problems}
	}
	if err := tmpl.ValidatePositions(); err != nil {
		return nil, &Error{Problems: []string{err.Error()}}
	}
	tmpl.Normalize()
	return tmpl, nil
}

// position falls back to file order when no explicit position is given
func position(explicit, index int) int {
	if explicit > 0 {
		return explicit
	}
	return index + 1
}

func buildInputs(raw []DataInput, catalog *schema.Catalog) ([]types.DataInput, []string) {
	var problems []string
	inputs := make([]types.DataInput, 0, len(raw))
	for i, in := range raw {
		src, method, ok := catalog.Method(in.SourceID, in.MethodID)
		if src == nil {
			problems = append(problems, fmt.Sprintf("input %d: unknown data source %q", i+1, in.SourceID))
			continue
		}
		if !ok {
			problems = append(problems, fmt.Sprintf("input %d: unknown retrieval method %q for data source %q", i+1, in.MethodID, in.SourceID))
			continue
		}
		params, errs := binding.ValidateRaw(method, in.Parameters)
		for _, key := range errs.Keys() {
			problems = append(problems, fmt.Sprintf("input %d: %s", i+1, errs[key].Error()))
		}
		inputs = append(inputs, types.DataInput{SourceID: in.SourceID, MethodID: in.MethodID, Parameters: params})
	}
	return inputs, problems
}

func resolveKeys(d DependsOn, sections, subsections map[string]uuid.UUID) (types.Dependencies, []string) {
	var problems []string
	var deps types.Dependencies
	for _, key := range d.Sections {
		id, ok := sections[key]
		if !ok {
			problems = append(problems, fmt.Sprintf("depends on unknown section %q", key))
			continue
		}
		deps.SectionIDs = append(deps.SectionIDs, id)
	}
	for _, key := range d.Subsections {
		id, ok := subsections[key]
		if !ok {
			problems = append(problems, fmt.Sprintf("depends on unknown subsection %q", key))
			continue
		}
		deps.SubsectionIDs = append(deps.SubsectionIDs, id)
	}
	return deps.Normalize(), problems
}
