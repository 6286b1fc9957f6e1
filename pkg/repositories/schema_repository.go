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

// SchemaRepository provides data access for dataset schemas.
type SchemaRepository interface {
	Create(ctx context.Context, schema *models.DatasetSchema) error
	Update(ctx context.Context, schema *models.DatasetSchema) error
	// Delete removes a schema together with its sources and datasets in
	// a single transaction.
	Delete(ctx context.Context, schemaID uuid.UUID) error
	List(ctx context.Context) ([]*models.DatasetSchema, error)
	GetByID(ctx context.Context, schemaID uuid.UUID) (*models.DatasetSchema, error)
}

// schemaRepository implements SchemaRepository using PostgreSQL.
type schemaRepository struct {
	db *database.DB
}

// NewSchemaRepository creates a new SchemaRepository backed by the given
// database handle.
func NewSchemaRepository(db *database.DB) SchemaRepository {
	return &schemaRepository{db: db}
}

var _ SchemaRepository = (*schemaRepository)(nil)

func (r *schemaRepository) Create(ctx context.Context, schema *models.DatasetSchema) error {
	if schema.ID == uuid.Nil {
		schema.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO engine_custom_schemas (
			id, name, description, icon, category, fields, primary_key,
			record_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		schema.ID,
		schema.Name,
		schema.Description,
		schema.Icon,
		schema.Category,
		fieldsJSON(schema.Fields),
		nullString(schema.PrimaryKey),
		schema.RecordCount,
		now,
		now,
	).Scan(&schema.CreatedAt, &schema.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (r *schemaRepository) Update(ctx context.Context, schema *models.DatasetSchema) error {
	query := `
		UPDATE engine_custom_schemas
		SET name = $2, description = $3, icon = $4, category = $5,
		    fields = $6, primary_key = $7, updated_at = $8
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		schema.ID,
		schema.Name,
		schema.Description,
		schema.Icon,
		schema.Category,
		fieldsJSON(schema.Fields),
		nullString(schema.PrimaryKey),
		time.Now(),
	).Scan(&schema.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update schema: %w", err)
	}

	return nil
}

func (r *schemaRepository) Delete(ctx context.Context, schemaID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// Dependents first so no partial state is ever visible.
	if _, err := tx.Exec(ctx, `DELETE FROM engine_custom_datasets WHERE schema_id = $1`, schemaID); err != nil {
		return fmt.Errorf("failed to delete schema datasets: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM engine_data_sources WHERE schema_id = $1`, schemaID); err != nil {
		return fmt.Errorf("failed to delete schema sources: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM engine_custom_schemas WHERE id = $1`, schemaID)
	if err != nil {
		return fmt.Errorf("failed to delete schema: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema delete: %w", err)
	}

	return nil
}

func (r *schemaRepository) List(ctx context.Context) ([]*models.DatasetSchema, error) {
	query := `
		SELECT id, name, description, icon, category, fields, primary_key,
		       record_count, created_at, updated_at
		FROM engine_custom_schemas
		ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query schemas: %w", err)
	}
	defer rows.Close()

	var schemas []*models.DatasetSchema
	for rows.Next() {
		schema, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schemas: %w", err)
	}

	return schemas, nil
}

func (r *schemaRepository) GetByID(ctx context.Context, schemaID uuid.UUID) (*models.DatasetSchema, error) {
	query := `
		SELECT id, name, description, icon, category, fields, primary_key,
		       record_count, created_at, updated_at
		FROM engine_custom_schemas
		WHERE id = $1`

	row := r.db.QueryRow(ctx, query, schemaID)
	schema, err := scanSchema(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Schema not found
		}
		return nil, err
	}

	return schema, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func scanSchema(row pgx.Row) (*models.DatasetSchema, error) {
	var s models.DatasetSchema
	var primaryKey *string
	var fields []byte

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&s.Icon,
		&s.Category,
		&fields,
		&primaryKey,
		&s.RecordCount,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan schema: %w", err)
	}

	if primaryKey != nil {
		s.PrimaryKey = *primaryKey
	}
	if len(fields) > 0 && string(fields) != "null" {
		if err := json.Unmarshal(fields, &s.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schema fields: %w", err)
		}
	}

	return &s, nil
}

// fieldsJSON normalizes a field list for JSONB storage. A nil slice is
// stored as an empty array so reads never see SQL NULL.
func fieldsJSON(fields []models.FieldDefinition) []models.FieldDefinition {
	if fields == nil {
		return []models.FieldDefinition{}
	}
	return fields
}

// nullString returns nil if the string is empty, otherwise returns the string pointer.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
