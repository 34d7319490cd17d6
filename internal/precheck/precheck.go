// Package precheck inspects a whole document before a generation run: it collects
// the run-time variables that must be asked for once and reports every condition
// that blocks the run from starting.
package precheck

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/dependency"
	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/readiness"
	"github.com/alexwday/report-designer/internal/types"
)

// BlockingError is one condition that prevents a run from starting
type BlockingError struct {
	SectionTitle       string    `json:"section_title"`
	SubsectionTitle    string    `json:"subsection_title"`
	SectionPosition    int       `json:"section_position"`
	SubsectionPosition int       `json:"subsection_position"`
	SubsectionID       uuid.UUID `json:"subsection_id"`
	Reason             string    `json:"reason"`
	// Input is set when the error is a required run input that was not supplied
	Input string `json:"input,omitempty"`
}

func (e BlockingError) Error() string {
	if e.SubsectionTitle == "" && e.SectionTitle == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s / %s: %s", e.SectionTitle, e.SubsectionTitle, e.Reason)
}

// BlockingErrors is every blocking condition found, in document order
type BlockingErrors []BlockingError

func (b BlockingErrors) Error() string {
	msgs := make([]string, len(b))
	for i, e := range b {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d blocking error(s): %s", len(b), strings.Join(msgs, "; "))
}

// MissingInputs returns the distinct run input names when every error is a
// missing run input, and nil otherwise
func (b BlockingErrors) MissingInputs() []string {
	if len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, e := range b {
		if e.Input == "" {
			return nil
		}
		if !seen[e.Input] {
			seen[e.Input] = true
			names = append(names, e.Input)
		}
	}
	sort.Strings(names)
	return names
}

// MissingInputsError is returned when required run inputs were not supplied.
// Blocking holds the per-subsection errors the names came from.
type MissingInputsError struct {
	Names    []string
	Blocking BlockingErrors
}

func (e *MissingInputsError) Error() string {
	msg := fmt.Sprintf("missing run inputs: %s", strings.Join(e.Names, ", "))
	if len(e.Blocking) == 0 {
		return msg
	}
	var where []string
	seen := make(map[uuid.UUID]bool)
	for _, b := range e.Blocking {
		if seen[b.SubsectionID] {
			continue
		}
		seen[b.SubsectionID] = true
		where = append(where, b.SectionTitle+" / "+b.SubsectionTitle)
	}
	return fmt.Sprintf("%s (needed by %s)", msg, strings.Join(where, "; "))
}

// ParameterRef is one parameter bound to a run-time variable
type ParameterRef struct {
	SectionTitle    string    `json:"section_title"`
	SubsectionTitle string    `json:"subsection_title"`
	SubsectionID    uuid.UUID `json:"subsection_id"`
	SourceID        string    `json:"source_id"`
	MethodID        string    `json:"method_id"`
	Key             string    `json:"key"`
	Required        bool      `json:"required"`
}

// RequiredInput is a run-time variable the caller is asked for once per run
type RequiredInput struct {
	Name       string         `json:"name"`
	Parameters []ParameterRef `json:"parameters"`
	Type       string         `json:"type,omitempty"`
	Options    []string       `json:"options,omitempty"`
	Default    any            `json:"default,omitempty"`
	// Required is true when some required parameter has no default to fall back on
	Required bool   `json:"required"`
	AliasOf  string `json:"alias_of,omitempty"`
}

// SectionStatus reports whether one section can be generated on its own
type SectionStatus struct {
	SectionID uuid.UUID `json:"section_id"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	Runnable  bool      `json:"runnable"`
	Issues    []string  `json:"issues"`
}

// Requirements is the result of a precheck
type Requirements struct {
	BlockingErrors BlockingErrors  `json:"blocking_errors"`
	RequiredInputs []RequiredInput `json:"required_inputs"`
	SavedRunInputs map[string]any  `json:"saved_run_inputs"`
	Sections       []SectionStatus `json:"sections"`
	Warnings       []string        `json:"warnings"`
}

// Err returns the blocking errors, or nil when the run may start
func (r *Requirements) Err() error {
	if len(r.BlockingErrors) == 0 {
		return nil
	}
	return r.BlockingErrors
}

// Names returns every required input name
func (r *Requirements) Names() []string {
	names := make([]string, len(r.RequiredInputs))
	for i, in := range r.RequiredInputs {
		names[i] = in.Name
	}
	return names
}

// Missing returns the names of required inputs with no value in inputs, after aliasing
func (r *Requirements) Missing(inputs map[string]any) []string {
	var missing []string
	for _, in := range r.RequiredInputs {
		if !in.Required {
			continue
		}
		if v, ok := inputs[in.Name]; ok && !blank(v) {
			continue
		}
		missing = append(missing, in.Name)
	}
	return missing
}

// Options control a precheck
type Options struct {
	RunInputs map[string]any
	Aliases   Aliases
	// Period, when set, satisfies the shared period inputs
	Period *period.Period
	// Final treats required variables without a value as blocking, as when a run is starting
	Final bool
}

// Check runs the precheck over tmpl
func Check(tmpl *types.Template, reg readiness.Lookup, opts Options) *Requirements {
	req := &Requirements{
		BlockingErrors: BlockingErrors{},
		RequiredInputs: []RequiredInput{},
		SavedRunInputs: map[string]any{},
		Sections:       sectionStatuses(tmpl, reg),
		Warnings:       []string{},
	}
	entries := tmpl.Ordered()

	eligible := 0
	for _, e := range entries {
		if !e.Subsection.Eligible() {
			continue
		}
		eligible++
		block := func(reason string) {
			req.BlockingErrors = append(req.BlockingErrors, BlockingError{
				SectionTitle:       e.Section.Title,
				SubsectionTitle:    e.Subsection.Title,
				SectionPosition:    e.Section.Position,
				SubsectionPosition: e.Subsection.Position,
				SubsectionID:       e.Subsection.ID,
				Reason:             reason,
			})
		}
		for _, issue := range readiness.Subsection(e.Subsection, reg).Issues {
			block(issue)
		}
		if err := dependency.Validate(e.Subsection.ID, e.Subsection.Dependencies); err != nil {
			block(err.Error())
		}
		for i, in := range e.Subsection.DataInputs {
			_, method, ok := reg.Method(in.SourceID, in.MethodID)
			if !ok {
				continue
			}
			_, errs := binding.ValidateParameters(method, in.Parameters)
			for _, key := range errs.Keys() {
				block(fmt.Sprintf("input %d: %s", i+1, errs[key].Error()))
			}
		}
	}
	if eligible == 0 {
		req.BlockingErrors = append(req.BlockingErrors, BlockingError{
			Reason: "no subsections have instructions or a widget that can be generated",
		})
	}

	req.RequiredInputs = collect(entries, reg, opts.Aliases)
	inputs := ApplyAliases(opts.RunInputs, req.Names(), opts.Aliases, opts.Period)

	if opts.Final {
		for _, e := range entries {
			if !e.Subsection.Eligible() {
				continue
			}
			for _, name := range unresolved(e.Subsection, reg, inputs) {
				req.BlockingErrors = append(req.BlockingErrors, BlockingError{
					SectionTitle:       e.Section.Title,
					SubsectionTitle:    e.Subsection.Title,
					SectionPosition:    e.Section.Position,
					SubsectionPosition: e.Subsection.Position,
					SubsectionID:       e.Subsection.ID,
					Reason:             fmt.Sprintf("run input %q is required and was not supplied", name),
					Input:              name,
				})
			}
		}
	}

	for _, ref := range dependency.ForwardReferences(tmpl) {
		target := ref.Target.String()
		if ref.TargetKind == "section" {
			if sec, ok := tmpl.Section(ref.Target); ok {
				target = sec.Title
			}
		} else if _, sub, ok := tmpl.Subsection(ref.Target); ok {
			target = sub.Title
		}
		req.Warnings = append(req.Warnings, fmt.Sprintf(
			"%q depends on %s %q, which comes later in the document; its previously stored content will be used",
			ref.FromTitle, ref.TargetKind, target))
	}
	return req
}

func sectionStatuses(tmpl *types.Template, reg readiness.Lookup) []SectionStatus {
	sections := make([]*types.Section, len(tmpl.Sections))
	copy(sections, tmpl.Sections)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Position < sections[j].Position })

	out := make([]SectionStatus, len(sections))
	for i, sec := range sections {
		res := readiness.Section(sec, reg)
		out[i] = SectionStatus{
			SectionID: sec.ID,
			Title:     sec.Title,
			Position:  sec.Position,
			Runnable:  res.Ready,
			Issues:    res.Issues,
		}
	}
	return out
}

// collect gathers the distinct variable names across every configured data input
func collect(entries []types.Entry, reg readiness.Lookup, aliases Aliases) []RequiredInput {
	byName := make(map[string]*RequiredInput)
	for _, e := range entries {
		for _, in := range e.Subsection.DataInputs {
			_, method, _ := reg.Method(in.SourceID, in.MethodID)
			for key, b := range in.Parameters {
				v, ok := b.(binding.VariableBinding)
				if !ok {
					continue
				}
				name := strings.TrimSpace(v.Name)
				if name == "" {
					continue
				}
				ri, ok := byName[name]
				if !ok {
					ri = &RequiredInput{Name: name}
					if alias, ok := aliases.Lookup(name); ok {
						ri.AliasOf = alias
					}
					byName[name] = ri
				}
				ref := ParameterRef{
					SectionTitle:    e.Section.Title,
					SubsectionTitle: e.Subsection.Title,
					SubsectionID:    e.Subsection.ID,
					SourceID:        in.SourceID,
					MethodID:        in.MethodID,
					Key:             key,
				}
				if method != nil {
					if def, ok := method.Parameter(key); ok {
						ref.Required = def.Required
						if ri.Type == "" {
							ri.Type = string(def.Type)
							ri.Options = def.AllowedValues()
						}
					}
				}
				if v.HasDefault() && ri.Default == nil {
					ri.Default = v.Default
				}
				if ref.Required && !v.HasDefault() {
					ri.Required = true
				}
				ri.Parameters = append(ri.Parameters, ref)
			}
		}
	}

	out := make([]RequiredInput, 0, len(byName))
	for _, ri := range byName {
		sort.Slice(ri.Parameters, func(i, j int) bool {
			a, b := ri.Parameters[i], ri.Parameters[j]
			if a.SubsectionTitle != b.SubsectionTitle {
				return a.SubsectionTitle < b.SubsectionTitle
			}
			if a.SubsectionID != b.SubsectionID {
				return a.SubsectionID.String() < b.SubsectionID.String()
			}
			return a.Key < b.Key
		})
		out = append(out, *ri)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// unresolved lists variables bound to required parameters of sub that have no
// value in inputs and no default
func unresolved(sub *types.Subsection, reg readiness.Lookup, inputs map[string]any) []string {
	seen := make(map[string]bool)
	var names []string
	for _, in := range sub.DataInputs {
		_, method, ok := reg.Method(in.SourceID, in.MethodID)
		if !ok {
			continue
		}
		for _, def := range method.Parameters {
			v, ok := in.Parameters[def.Key].(binding.VariableBinding)
			if !ok || !def.Required || v.HasDefault() {
				continue
			}
			name := strings.TrimSpace(v.Name)
			if name == "" || seen[name] {
				continue
			}
			if val, ok := inputs[name]; ok && !blank(val) {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Inputs returns the run inputs after alias application, ready for resolution
func Inputs(req *Requirements, opts Options) map[string]any {
	return ApplyAliases(opts.RunInputs, req.Names(), opts.Aliases, opts.Period)
}
