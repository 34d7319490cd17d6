package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alexwday/report-designer/internal/period"
	"github.com/alexwday/report-designer/internal/types"
)

// -----------------------------------------------------------------------------
// Generation Job Methods
// -----------------------------------------------------------------------------

// SaveJob upserts a job snapshot and all of its records
func (db *DB) SaveJob(ctx context.Context, job *types.JobView) error {
	var inputsJSON []byte
	if job.RunInputs != nil {
		var err error
		inputsJSON, err = json.Marshal(job.RunInputs)
		if err != nil {
			return fmt.Errorf("failed to marshal run inputs: %w", err)
		}
	}

	return db.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO generation_jobs (id, template_id, status, current_index, total, fiscal_year, fiscal_quarter,
			                              run_inputs, dismissed, created_at, updated_at, completed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (id) DO UPDATE SET
			     status = $3, current_index = $4, total = $5, run_inputs = $8,
			     dismissed = generation_jobs.dismissed OR $9, updated_at = $11, completed_at = $12`,
			job.ID, job.TemplateID, string(job.Status), job.CurrentIndex, job.Total,
			job.Period.FiscalYear, string(job.Period.FiscalQuarter), inputsJSON, job.Dismissed,
			job.CreatedAt, job.UpdatedAt, job.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}

		batch := &pgx.Batch{}
		for i, r := range job.Records {
			var version *int
			if r.VersionNumber > 0 {
				n := r.VersionNumber
				version = &n
			}
			batch.Queue(
				`INSERT INTO generation_job_records (job_id, position, subsection_id, section_id, section_title,
				                                     subsection_title, status, error_message, version_number, started_at, completed_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				 ON CONFLICT (job_id, subsection_id) DO UPDATE SET
				     status = $7, error_message = $8, version_number = $9, started_at = $10, completed_at = $11`,
				job.ID, i, r.SubsectionID, r.SectionID, r.SectionTitle, r.SubsectionTitle,
				string(r.Status), nullIfEmpty(r.Error), version, r.StartedAt, r.CompletedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save job records: %w", err)
		}
		return nil
	})
}

// GetJob loads a job snapshot with its records in document order
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.JobView, error) {
	var job types.JobView
	var status, quarter string
	var inputsJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, template_id, status, current_index, total, fiscal_year, fiscal_quarter,
		        run_inputs, dismissed, created_at, updated_at, completed_at
		 FROM generation_jobs WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.TemplateID, &status, &job.CurrentIndex, &job.Total,
		&job.Period.FiscalYear, &quarter, &inputsJSON, &job.Dismissed,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job.Status = types.JobStatus(status)
	job.Period.FiscalQuarter = period.Quarter(quarter)
	if len(inputsJSON) > 0 {
		if err := json.Unmarshal(inputsJSON, &job.RunInputs); err != nil {
			return nil, fmt.Errorf("job %s has invalid run inputs: %w", id, err)
		}
	}

	rows, err := db.pool.Query(ctx,
		`SELECT subsection_id, section_id, section_title, subsection_title, status, error_message,
		        version_number, started_at, completed_at
		 FROM generation_job_records WHERE job_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}
	defer rows.Close()

	job.Records = []types.JobRecord{}
	for rows.Next() {
		var r types.JobRecord
		var recStatus string
		var errMsg *string
		var version *int
		if err := rows.Scan(&r.SubsectionID, &r.SectionID, &r.SectionTitle, &r.SubsectionTitle,
			&recStatus, &errMsg, &version, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job record: %w", err)
		}
		r.Status = types.JobStatus(recStatus)
		r.Error = deref(errMsg)
		if version != nil {
			r.VersionNumber = *version
		}
		job.Records = append(job.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}
	return &job, nil
}

// DismissJob hides a job from status queries
func (db *DB) DismissJob(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE generation_jobs SET dismissed = TRUE, updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to dismiss job: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Saved Run Input Methods
// -----------------------------------------------------------------------------

// SaveRunInputs replaces the inputs remembered for a template's next run
func (db *DB) SaveRunInputs(ctx context.Context, templateID uuid.UUID, inputs map[string]any) error {
	if inputs == nil {
		inputs = map[string]any{}
	}
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal run inputs: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO template_run_inputs (template_id, inputs)
		 VALUES ($1, $2)
		 ON CONFLICT (template_id) DO UPDATE SET inputs = $2, updated_at = NOW()`,
		templateID, inputsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save run inputs: %w", err)
	}
	return nil
}

// GetRunInputs returns the saved inputs for a template, or nil
func (db *DB) GetRunInputs(ctx context.Context, templateID uuid.UUID) (map[string]any, error) {
	var inputsJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT inputs FROM template_run_inputs WHERE template_id = $1`,
		templateID,
	).Scan(&inputsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run inputs: %w", err)
	}

	var inputs map[string]any
	if err := json.Unmarshal(inputsJSON, &inputs); err != nil {
		return nil, fmt.Errorf("saved run inputs are invalid: %w", err)
	}
	return inputs, nil
}
