package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/alexwday/report-designer/internal/types"
)

// -----------------------------------------------------------------------------
// Template Methods
// -----------------------------------------------------------------------------

// GetTemplate loads a template with its sections, subsections and each
// subsection's current version
func (db *DB) GetTemplate(ctx context.Context, id uuid.UUID) (*types.Template, error) {
	var t types.Template
	var description *string
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, description, updated_at FROM templates WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &description, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	t.Description = deref(description)

	if err := db.loadSections(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTemplateForSubsection loads the template that owns a subsection
func (db *DB) GetTemplateForSubsection(ctx context.Context, subsectionID uuid.UUID) (*types.Template, error) {
	var templateID uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT s.template_id
		 FROM subsections ss JOIN sections s ON s.id = ss.section_id
		 WHERE ss.id = $1`,
		subsectionID,
	).Scan(&templateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find template for subsection: %w", err)
	}
	return db.GetTemplate(ctx, templateID)
}

func (db *DB) loadSections(ctx context.Context, t *types.Template) error {
	rows, err := db.pool.Query(ctx,
		`SELECT id, title, position FROM sections WHERE template_id = $1 ORDER BY position`,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to list sections: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*types.Section)
	for rows.Next() {
		sec := &types.Section{TemplateID: t.ID}
		if err := rows.Scan(&sec.ID, &sec.Title, &sec.Position); err != nil {
			return fmt.Errorf("failed to scan section: %w", err)
		}
		t.Sections = append(t.Sections, sec)
		byID[sec.ID] = sec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list sections: %w", err)
	}
	if len(t.Sections) == 0 {
		return nil
	}

	subRows, err := db.pool.Query(ctx,
		`SELECT ss.id, ss.section_id, ss.title, ss.position, ss.widget_type, ss.instructions, ss.notes,
		        ss.data_inputs, ss.dependencies, ss.updated_at,
		        v.id, v.version_number, v.content, v.content_type, v.instructions, v.generated_by, v.created_at
		 FROM subsections ss
		 JOIN sections s ON s.id = ss.section_id
		 LEFT JOIN subsection_versions v ON v.subsection_id = ss.id AND v.is_current
		 WHERE s.template_id = $1
		 ORDER BY s.position, ss.position`,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to list subsections: %w", err)
	}
	defer subRows.Close()

	for subRows.Next() {
		sub, err := scanSubsection(subRows)
		if err != nil {
			return err
		}
		if sec, ok := byID[sub.SectionID]; ok {
			sec.Subsections = append(sec.Subsections, sub)
		}
	}
	if err := subRows.Err(); err != nil {
		return fmt.Errorf("failed to list subsections: %w", err)
	}
	return nil
}

func scanSubsection(rows pgx.Rows) (*types.Subsection, error) {
	var sub types.Subsection
	var notes *string
	var inputsJSON, depsJSON []byte
	var (
		versionID     *uuid.UUID
		versionNumber *int
		content       *string
		contentType   *string
		instructions  *string
		generatedBy   *string
		createdAt     pgtype.Timestamptz
	)
	if err := rows.Scan(&sub.ID, &sub.SectionID, &sub.Title, &sub.Position, &sub.WidgetType,
		&sub.Instructions, &notes, &inputsJSON, &depsJSON, &sub.UpdatedAt,
		&versionID, &versionNumber, &content, &contentType, &instructions, &generatedBy, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan subsection: %w", err)
	}
	sub.Notes = deref(notes)

	if len(inputsJSON) > 0 {
		if err := json.Unmarshal(inputsJSON, &sub.DataInputs); err != nil {
			return nil, fmt.Errorf("subsection %s has invalid data inputs: %w", sub.ID, err)
		}
	}
	if len(depsJSON) > 0 {
		if err := json.Unmarshal(depsJSON, &sub.Dependencies); err != nil {
			return nil, fmt.Errorf("subsection %s has invalid dependencies: %w", sub.ID, err)
		}
	}

	if versionID != nil {
		sub.Current = &types.Version{
			ID:            *versionID,
			SubsectionID:  sub.ID,
			VersionNumber: *versionNumber,
			Content:       deref(content),
			ContentType:   deref(contentType),
			Instructions:  deref(instructions),
			GeneratedBy:   deref(generatedBy),
			IsCurrent:     true,
		}
		if createdAt.Valid {
			sub.Current.CreatedAt = createdAt.Time
		}
	}
	return &sub, nil
}

// ImportTemplate writes a template and all its sections and subsections.
// Missing IDs are generated and positions are normalized first. An existing
// template with the same ID is replaced.
func (db *DB) ImportTemplate(ctx context.Context, t *types.Template) error {
	assignIDs(t)
	t.Normalize()

	return db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM templates WHERE id = $1`, t.ID); err != nil {
			return fmt.Errorf("failed to replace template: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO templates (id, name, description) VALUES ($1, $2, $3)`,
			t.ID, t.Name, nullIfEmpty(t.Description),
		); err != nil {
			return fmt.Errorf("failed to insert template: %w", err)
		}

		batch := &pgx.Batch{}
		for _, sec := range t.Sections {
			batch.Queue(
				`INSERT INTO sections (id, template_id, title, position) VALUES ($1, $2, $3, $4)`,
				sec.ID, t.ID, sec.Title, sec.Position,
			)
		}
		for _, sec := range t.Sections {
			for _, sub := range sec.Subsections {
				inputsJSON, depsJSON, err := subsectionJSON(sub)
				if err != nil {
					return err
				}
				widget := sub.WidgetType
				if widget == "" {
					widget = types.WidgetText
				}
				batch.Queue(
					`INSERT INTO subsections (id, section_id, title, position, widget_type, instructions, notes, data_inputs, dependencies)
					 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
					sub.ID, sec.ID, sub.Title, sub.Position, string(widget), sub.Instructions,
					nullIfEmpty(sub.Notes), inputsJSON, depsJSON,
				)
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert template contents: %w", err)
		}
		return nil
	})
}

func assignIDs(t *types.Template) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	for _, sec := range t.Sections {
		if sec.ID == uuid.Nil {
			sec.ID = uuid.New()
		}
		for _, sub := range sec.Subsections {
			if sub.ID == uuid.Nil {
				sub.ID = uuid.New()
			}
		}
	}
}

func subsectionJSON(sub *types.Subsection) ([]byte, []byte, error) {
	inputs := sub.DataInputs
	if inputs == nil {
		inputs = []types.DataInput{}
	}
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal data inputs for %q: %w", sub.Title, err)
	}
	depsJSON, err := marshalDependencies(sub.Dependencies)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal dependencies for %q: %w", sub.Title, err)
	}
	return inputsJSON, depsJSON, nil
}

func marshalDependencies(d types.Dependencies) ([]byte, error) {
	d = d.Normalize()
	return json.Marshal(d)
}

// SaveDataInputs replaces a subsection's data inputs. Validation is the
// caller's job.
func (db *DB) SaveDataInputs(ctx context.Context, subsectionID uuid.UUID, inputs []types.DataInput) error {
	if inputs == nil {
		inputs = []types.DataInput{}
	}
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal data inputs: %w", err)
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE subsections SET data_inputs = $1, updated_at = NOW() WHERE id = $2`,
		inputsJSON, subsectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to save data inputs: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("subsection %s: %w", subsectionID, ErrNotFound)
	}
	return nil
}

// SaveDependencies replaces a subsection's declared dependencies
func (db *DB) SaveDependencies(ctx context.Context, subsectionID uuid.UUID, deps types.Dependencies) error {
	depsJSON, err := marshalDependencies(deps)
	if err != nil {
		return fmt.Errorf("failed to marshal dependencies: %w", err)
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE subsections SET dependencies = $1, updated_at = NOW() WHERE id = $2`,
		depsJSON, subsectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to save dependencies: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("subsection %s: %w", subsectionID, ErrNotFound)
	}
	return nil
}

// TemplateSummary is a lightweight view of a template for listing
type TemplateSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Sections  int       `json:"sections"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListTemplates lists templates, most recently updated first
func (db *DB) ListTemplates(ctx context.Context) ([]TemplateSummary, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT t.id, t.name, COUNT(s.id), t.updated_at
		 FROM templates t LEFT JOIN sections s ON s.template_id = t.id
		 GROUP BY t.id ORDER BY t.updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []TemplateSummary
	for rows.Next() {
		var s TemplateSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Sections, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
