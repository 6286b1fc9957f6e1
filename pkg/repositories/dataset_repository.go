package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/database"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
)

// DatasetRepository provides data access for imported datasets.
type DatasetRepository interface {
	// Upsert replaces the dataset for a source wholesale and refreshes
	// the owning schema's record count in the same transaction.
	Upsert(ctx context.Context, dataset *models.CustomDataset) error
	// DeleteBySource removes a source's dataset and refreshes the
	// schema's record count in the same transaction.
	DeleteBySource(ctx context.Context, sourceID, schemaID uuid.UUID) error
	GetBySource(ctx context.Context, sourceID uuid.UUID) (*models.CustomDataset, error)
	ListBySchema(ctx context.Context, schemaID uuid.UUID) ([]*models.CustomDataset, error)
	// CountBySchema reports how many sources of a schema hold data.
	CountBySchema(ctx context.Context, schemaID uuid.UUID) (int, error)
}

// datasetRepository implements DatasetRepository using PostgreSQL.
type datasetRepository struct {
	db *database.DB
}

// NewDatasetRepository creates a new DatasetRepository backed by the
// given database handle.
func NewDatasetRepository(db *database.DB) DatasetRepository {
	return &datasetRepository{db: db}
}

var _ DatasetRepository = (*datasetRepository)(nil)

// refreshRecordCountQuery recomputes the denormalized record count on the
// schema row from the stored JSONB arrays.
const refreshRecordCountQuery = `
	UPDATE engine_custom_schemas
	SET record_count = (
		SELECT COALESCE(SUM(jsonb_array_length(data)), 0)
		FROM engine_custom_datasets
		WHERE schema_id = $1
	), updated_at = $2
	WHERE id = $1`

func (r *datasetRepository) Upsert(ctx context.Context, dataset *models.CustomDataset) error {
	now := time.Now()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	query := `
		INSERT INTO engine_custom_datasets (source_id, schema_id, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id) DO UPDATE
		SET schema_id = EXCLUDED.schema_id,
		    data = EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at`

	_, err = tx.Exec(ctx, query,
		dataset.SourceID,
		dataset.SchemaID,
		dataJSON(dataset.Data),
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dataset: %w", err)
	}

	if _, err := tx.Exec(ctx, refreshRecordCountQuery, dataset.SchemaID, now); err != nil {
		return fmt.Errorf("failed to refresh schema record count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dataset upsert: %w", err)
	}

	dataset.UpdatedAt = now
	return nil
}

func (r *datasetRepository) DeleteBySource(ctx context.Context, sourceID, schemaID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	result, err := tx.Exec(ctx, `DELETE FROM engine_custom_datasets WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if _, err := tx.Exec(ctx, refreshRecordCountQuery, schemaID, time.Now()); err != nil {
		return fmt.Errorf("failed to refresh schema record count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dataset delete: %w", err)
	}

	return nil
}

func (r *datasetRepository) GetBySource(ctx context.Context, sourceID uuid.UUID) (*models.CustomDataset, error) {
	query := `
		SELECT source_id, schema_id, data, updated_at
		FROM engine_custom_datasets
		WHERE source_id = $1`

	row := r.db.QueryRow(ctx, query, sourceID)
	dataset, err := scanDataset(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Dataset not found
		}
		return nil, err
	}

	return dataset, nil
}

func (r *datasetRepository) ListBySchema(ctx context.Context, schemaID uuid.UUID) ([]*models.CustomDataset, error) {
	query := `
		SELECT source_id, schema_id, data, updated_at
		FROM engine_custom_datasets
		WHERE schema_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query, schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*models.CustomDataset
	for rows.Next() {
		dataset, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, dataset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasets: %w", err)
	}

	return datasets, nil
}

func (r *datasetRepository) CountBySchema(ctx context.Context, schemaID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM engine_custom_datasets WHERE schema_id = $1`, schemaID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count datasets: %w", err)
	}
	return count, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func scanDataset(row pgx.Row) (*models.CustomDataset, error) {
	var d models.CustomDataset
	var data []byte

	err := row.Scan(
		&d.SourceID,
		&d.SchemaID,
		&data,
		&d.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dataset: %w", err)
	}

	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &d.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dataset rows: %w", err)
		}
	}

	return &d, nil
}

// dataJSON normalizes a row slice for JSONB storage. A nil slice is
// stored as an empty array so jsonb_array_length never sees NULL.
func dataJSON(rows []models.Row) []models.Row {
	if rows == nil {
		return []models.Row{}
	}
	return rows
}
