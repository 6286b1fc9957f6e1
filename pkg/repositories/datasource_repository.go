package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/database"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
)

// ImportStatus carries the source-side outcome of an import run.
type ImportStatus struct {
	Status       string
	ErrorMessage string
	LastImport   *time.Time
	SampleData   []models.Row
}

// SourceRepository provides data access for data sources.
type SourceRepository interface {
	Create(ctx context.Context, source *models.DataSource) error
	Update(ctx context.Context, source *models.DataSource) error
	// Delete removes a source and its dataset in a single transaction.
	Delete(ctx context.Context, sourceID uuid.UUID) error
	List(ctx context.Context) ([]*models.DataSource, error)
	ListBySchema(ctx context.Context, schemaID uuid.UUID) ([]*models.DataSource, error)
	GetByID(ctx context.Context, sourceID uuid.UUID) (*models.DataSource, error)
	// UpdateImportStatus records the outcome of an import run without
	// touching the source's identity fields.
	UpdateImportStatus(ctx context.Context, sourceID uuid.UUID, status ImportStatus) error
}

// sourceRepository implements SourceRepository using PostgreSQL.
type sourceRepository struct {
	db *database.DB
}

// NewSourceRepository creates a new SourceRepository backed by the given
// database handle.
func NewSourceRepository(db *database.DB) SourceRepository {
	return &sourceRepository{db: db}
}

var _ SourceRepository = (*sourceRepository)(nil)

func (r *sourceRepository) Create(ctx context.Context, source *models.DataSource) error {
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}
	if source.Status == "" {
		source.Status = models.SourceStatusInactive
	}
	now := time.Now()

	query := `
		INSERT INTO engine_data_sources (
			id, schema_id, name, source_type, mappings, sample_data,
			last_import, status, error_message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		source.ID,
		source.SchemaID,
		source.Name,
		source.SourceType,
		mappingsJSON(source.Mappings),
		rowsJSON(source.SampleData),
		source.LastImport,
		source.Status,
		source.ErrorMessage,
		now,
		now,
	).Scan(&source.CreatedAt, &source.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// 23505: duplicate name within schema. 23503: schema is gone.
			switch pgErr.Code {
			case "23505":
				return apperrors.ErrConflict
			case "23503":
				return apperrors.ErrSchemaNotFound
			}
		}
		return fmt.Errorf("failed to create data source: %w", err)
	}

	return nil
}

func (r *sourceRepository) Update(ctx context.Context, source *models.DataSource) error {
	query := `
		UPDATE engine_data_sources
		SET name = $2, source_type = $3, mappings = $4, updated_at = $5
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		source.ID,
		source.Name,
		source.SourceType,
		mappingsJSON(source.Mappings),
		time.Now(),
	).Scan(&source.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update data source: %w", err)
	}

	return nil
}

func (r *sourceRepository) Delete(ctx context.Context, sourceID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if _, err := tx.Exec(ctx, `DELETE FROM engine_custom_datasets WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("failed to delete source dataset: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM engine_data_sources WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete data source: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit source delete: %w", err)
	}

	return nil
}

func (r *sourceRepository) List(ctx context.Context) ([]*models.DataSource, error) {
	query := selectSourceQuery + ` ORDER BY name`
	return r.querySources(ctx, query)
}

func (r *sourceRepository) ListBySchema(ctx context.Context, schemaID uuid.UUID) ([]*models.DataSource, error) {
	query := selectSourceQuery + ` WHERE schema_id = $1 ORDER BY name`
	return r.querySources(ctx, query, schemaID)
}

func (r *sourceRepository) GetByID(ctx context.Context, sourceID uuid.UUID) (*models.DataSource, error) {
	query := selectSourceQuery + ` WHERE id = $1`

	row := r.db.QueryRow(ctx, query, sourceID)
	source, err := scanSource(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Source not found
		}
		return nil, err
	}

	return source, nil
}

func (r *sourceRepository) UpdateImportStatus(ctx context.Context, sourceID uuid.UUID, status ImportStatus) error {
	query := `
		UPDATE engine_data_sources
		SET status = $2, error_message = $3, last_import = $4,
		    sample_data = $5, updated_at = $6
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		sourceID,
		status.Status,
		status.ErrorMessage,
		status.LastImport,
		rowsJSON(status.SampleData),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update import status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// ============================================================================
// Helper Functions
// ============================================================================

const selectSourceQuery = `
	SELECT id, schema_id, name, source_type, mappings, sample_data,
	       last_import, status, error_message, created_at, updated_at
	FROM engine_data_sources`

func (r *sourceRepository) querySources(ctx context.Context, query string, args ...any) ([]*models.DataSource, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query data sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.DataSource
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data sources: %w", err)
	}

	return sources, nil
}

func scanSource(row pgx.Row) (*models.DataSource, error) {
	var s models.DataSource
	var mappings, sampleData []byte

	err := row.Scan(
		&s.ID,
		&s.SchemaID,
		&s.Name,
		&s.SourceType,
		&mappings,
		&sampleData,
		&s.LastImport,
		&s.Status,
		&s.ErrorMessage,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan data source: %w", err)
	}

	if len(mappings) > 0 && string(mappings) != "null" {
		if err := json.Unmarshal(mappings, &s.Mappings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mappings: %w", err)
		}
	}
	if len(sampleData) > 0 && string(sampleData) != "null" {
		if err := json.Unmarshal(sampleData, &s.SampleData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sample data: %w", err)
		}
	}

	return &s, nil
}

// mappingsJSON converts mappings to JSONB format for database insertion.
// Returns nil for empty slices to store NULL in the database.
func mappingsJSON(mappings []models.ImportMapping) any {
	if len(mappings) == 0 {
		return nil
	}
	return mappings
}

// rowsJSON converts row slices to JSONB format for database insertion.
// Returns nil for empty slices to store NULL in the database.
func rowsJSON(rows []models.Row) any {
	if len(rows) == 0 {
		return nil
	}
	return rows
}
