package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/dependency"
	"github.com/alexwday/report-designer/internal/generation"
	"github.com/alexwday/report-designer/internal/readiness"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/types"
)

// DataInputRequest is one data input as sent by the editor. Parameter values
// are raw: plain literals or period/variable binding objects.
type DataInputRequest struct {
	SourceID   string         `json:"source_id"`
	MethodID   string         `json:"method_id"`
	Parameters map[string]any `json:"parameters"`
}

// SaveInputsRequest replaces a subsection's data inputs
type SaveInputsRequest struct {
	DataInputs []DataInputRequest `json:"data_inputs" validate:"max=50"`
}

// InputReadiness pairs a data input with its readiness
type InputReadiness struct {
	types.DataInput
	Readiness readiness.Result `json:"readiness"`
}

// loadSubsection resolves the subsection path value to its template, section and subsection
func (s *Server) loadSubsection(ctx context.Context, r *http.Request) (*types.Template, *types.Section, *types.Subsection, error) {
	id, err := pathUUID(r, "subsection_id")
	if err != nil {
		return nil, nil, nil, err
	}
	tmpl, err := s.store.GetTemplateForSubsection(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if tmpl == nil {
		return nil, nil, nil, fmt.Errorf("subsection %s: %w", id, generation.ErrSubsectionNotFound)
	}
	sec, sub, ok := tmpl.Subsection(id)
	if !ok {
		return nil, nil, nil, fmt.Errorf("subsection %s: %w", id, generation.ErrSubsectionNotFound)
	}
	return tmpl, sec, sub, nil
}

// handleGenerateSubsection generates one subsection outside a document run
func (s *Server) handleGenerateSubsection(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "subsection_id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req RunRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	version, err := s.runs.RunSingle(r.Context(), id, req.start())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("subsection generated",
		zap.String("subsection_id", id.String()),
		zap.Int("version", version.VersionNumber),
	)
	s.jsonResponse(w, http.StatusCreated, version)
}

// handleSaveInputs validates and stores a subsection's data inputs. Every
// invalid parameter is reported at once, keyed by input index and parameter.
func (s *Server) handleSaveInputs(w http.ResponseWriter, r *http.Request) {
	_, _, sub, err := s.loadSubsection(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req SaveInputsRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	catalog, err := schema.Snapshot(r.Context(), s.registry)
	if err != nil {
		s.writeError(w, err)
		return
	}

	inputs, err := validateInputs(catalog, req.DataInputs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.store.SaveDataInputs(r.Context(), sub.ID, inputs); err != nil {
		s.writeError(w, err)
		return
	}
	sub.DataInputs = inputs

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"data_inputs": inputReadiness(inputs, catalog),
		"readiness":   readiness.Subsection(sub, catalog),
	})
}

// validateInputs decodes and validates raw inputs against the catalog.
// Inputs whose source or method is not chosen yet are kept as drafts and
// must not carry parameters.
func validateInputs(catalog *schema.Catalog, raw []DataInputRequest) ([]types.DataInput, error) {
	inputs := make([]types.DataInput, 0, len(raw))
	errs := make(binding.FieldErrors)
	for i, in := range raw {
		prefix := fmt.Sprintf("data_inputs[%d]", i)
		input := types.DataInput{
			SourceID:   strings.TrimSpace(in.SourceID),
			MethodID:   strings.TrimSpace(in.MethodID),
			Parameters: binding.Parameters{},
		}

		if input.SourceID == "" || input.MethodID == "" {
			if len(in.Parameters) > 0 {
				errs[prefix] = &binding.ValidationError{Key: prefix, Message: "parameters require a data source and retrieval method"}
			}
			inputs = append(inputs, input)
			continue
		}

		src, method, ok := catalog.Method(input.SourceID, input.MethodID)
		if src == nil {
			errs[prefix+".source_id"] = &binding.ValidationError{Key: "source_id", Message: fmt.Sprintf("unknown data source %q", input.SourceID)}
			continue
		}
		if !ok {
			errs[prefix+".method_id"] = &binding.ValidationError{Key: "method_id", Message: fmt.Sprintf("unknown retrieval method %q", input.MethodID)}
			continue
		}

		params, perrs := binding.ValidateRaw(method, in.Parameters)
		for key, e := range perrs {
			errs[prefix+"."+key] = e
		}
		input.Parameters = params
		inputs = append(inputs, input)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return inputs, nil
}

func inputReadiness(inputs []types.DataInput, catalog *schema.Catalog) []InputReadiness {
	out := make([]InputReadiness, len(inputs))
	for i, in := range inputs {
		out[i] = InputReadiness{DataInput: in, Readiness: readiness.Evaluate(in, catalog)}
	}
	return out
}

// handleSaveDependencies stores a subsection's declared dependencies and
// reports any that point later in the document
func (s *Server) handleSaveDependencies(w http.ResponseWriter, r *http.Request) {
	tmpl, _, sub, err := s.loadSubsection(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var deps types.Dependencies
	if err := s.decodeBody(r, &deps); err != nil {
		s.writeError(w, err)
		return
	}
	deps = deps.Normalize()

	if err := dependency.Validate(sub.ID, deps); err != nil {
		s.writeError(w, err)
		return
	}
	if err := checkTargets(tmpl, deps); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.store.SaveDependencies(r.Context(), sub.ID, deps); err != nil {
		s.writeError(w, err)
		return
	}
	sub.Dependencies = deps

	warnings := []string{}
	for _, ref := range dependency.ForwardReferences(tmpl) {
		if ref.From != sub.ID {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("%s %s comes later in the document; runs use its previous content", ref.TargetKind, ref.Target))
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"dependencies": deps,
		"warnings":     warnings,
	})
}

// checkTargets rejects dependencies on items outside the template
func checkTargets(tmpl *types.Template, deps types.Dependencies) error {
	for _, id := range deps.SectionIDs {
		if _, ok := tmpl.Section(id); !ok {
			return &ErrValidation{Field: "section_ids", Message: "unknown section " + id.String()}
		}
	}
	for _, id := range deps.SubsectionIDs {
		if _, _, ok := tmpl.Subsection(id); !ok {
			return &ErrValidation{Field: "subsection_ids", Message: "unknown subsection " + id.String()}
		}
	}
	return nil
}

// handleReadiness reports whether a subsection can be generated
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	_, _, sub, err := s.loadSubsection(r.Context(), r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	catalog, err := schema.Snapshot(r.Context(), s.registry)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"subsection_id":    sub.ID,
		"has_instructions": sub.HasInstructions(),
		"readiness":        readiness.Subsection(sub, catalog),
		"data_inputs":      inputReadiness(sub.DataInputs, catalog),
	})
}

// handleListVersions returns a subsection's version history, newest first
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "subsection_id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	versions, err := s.store.ListVersions(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if versions == nil {
		versions = []types.Version{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"subsection_id": id,
		"versions":      versions,
	})
}
