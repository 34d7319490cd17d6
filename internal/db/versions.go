package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alexwday/report-designer/internal/types"
)

// -----------------------------------------------------------------------------
// Version History Methods
// -----------------------------------------------------------------------------

const versionColumns = `id, subsection_id, version_number, content, content_type, instructions,
	generated_by, is_current, created_at`

// AppendVersion adds a version as max(version_number)+1 and makes it the only
// current version of the subsection. The subsection row is locked so
// concurrent appends serialize.
func (db *DB) AppendVersion(ctx context.Context, subsectionID uuid.UUID, input types.VersionInput) (*types.Version, error) {
	contentType := input.ContentType
	if contentType == "" {
		contentType = types.ContentTypeMarkdown
	}

	var v types.Version
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT id FROM subsections WHERE id = $1 FOR UPDATE`,
			subsectionID,
		).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("subsection %s: %w", subsectionID, ErrNotFound)
			}
			return fmt.Errorf("failed to lock subsection: %w", err)
		}

		var next int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version_number), 0) + 1 FROM subsection_versions WHERE subsection_id = $1`,
			subsectionID,
		).Scan(&next); err != nil {
			return fmt.Errorf("failed to read version number: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE subsection_versions SET is_current = FALSE WHERE subsection_id = $1 AND is_current`,
			subsectionID,
		); err != nil {
			return fmt.Errorf("failed to clear current version: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO subsection_versions (subsection_id, version_number, content, content_type, instructions, generated_by, is_current)
			 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			 RETURNING `+versionColumns,
			subsectionID, next, input.Content, contentType, input.Instructions, input.GeneratedBy,
		).Scan(&v.ID, &v.SubsectionID, &v.VersionNumber, &v.Content, &v.ContentType,
			&v.Instructions, &v.GeneratedBy, &v.IsCurrent, &v.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadCurrent returns the current version of each listed subsection that has one
func (db *DB) ReadCurrent(ctx context.Context, subsectionIDs []uuid.UUID) (map[uuid.UUID]*types.Version, error) {
	out := make(map[uuid.UUID]*types.Version, len(subsectionIDs))
	if len(subsectionIDs) == 0 {
		return out, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+versionColumns+`
		 FROM subsection_versions
		 WHERE subsection_id = ANY($1::uuid[]) AND is_current`,
		uuidStrings(subsectionIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read current versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out[v.SubsectionID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read current versions: %w", err)
	}
	return out, nil
}

// ListVersions returns a subsection's history, newest first
func (db *DB) ListVersions(ctx context.Context, subsectionID uuid.UUID) ([]types.Version, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+versionColumns+`
		 FROM subsection_versions
		 WHERE subsection_id = $1
		 ORDER BY version_number DESC`,
		subsectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []types.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

func scanVersion(rows pgx.Rows) (*types.Version, error) {
	var v types.Version
	if err := rows.Scan(&v.ID, &v.SubsectionID, &v.VersionNumber, &v.Content, &v.ContentType,
		&v.Instructions, &v.GeneratedBy, &v.IsCurrent, &v.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan version: %w", err)
	}
	return &v, nil
}
