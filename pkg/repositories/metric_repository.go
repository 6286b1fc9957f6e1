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

// MetricRepository provides data access for custom metrics.
type MetricRepository interface {
	Create(ctx context.Context, metric *models.CustomMetric) error
	Update(ctx context.Context, metric *models.CustomMetric) error
	Delete(ctx context.Context, metricID uuid.UUID) error
	List(ctx context.Context) ([]*models.CustomMetric, error)
	GetByID(ctx context.Context, metricID uuid.UUID) (*models.CustomMetric, error)
}

// metricRepository implements MetricRepository using PostgreSQL.
type metricRepository struct {
	db *database.DB
}

// NewMetricRepository creates a new MetricRepository backed by the given
// database handle.
func NewMetricRepository(db *database.DB) MetricRepository {
	return &metricRepository{db: db}
}

var _ MetricRepository = (*metricRepository)(nil)

func (r *metricRepository) Create(ctx context.Context, metric *models.CustomMetric) error {
	if metric.ID == uuid.Nil {
		metric.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO engine_custom_metrics (
			id, name, formula, dependencies, metric_type, display_format,
			aggregation, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		metric.ID,
		metric.Name,
		metric.Formula,
		dependenciesJSON(metric.Dependencies),
		metric.MetricType,
		metric.DisplayFormat,
		metric.Aggregation,
		now,
		now,
	).Scan(&metric.CreatedAt, &metric.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create metric: %w", err)
	}

	return nil
}

func (r *metricRepository) Update(ctx context.Context, metric *models.CustomMetric) error {
	query := `
		UPDATE engine_custom_metrics
		SET name = $2, formula = $3, dependencies = $4, metric_type = $5,
		    display_format = $6, aggregation = $7, updated_at = $8
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		metric.ID,
		metric.Name,
		metric.Formula,
		dependenciesJSON(metric.Dependencies),
		metric.MetricType,
		metric.DisplayFormat,
		metric.Aggregation,
		time.Now(),
	).Scan(&metric.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update metric: %w", err)
	}

	return nil
}

func (r *metricRepository) Delete(ctx context.Context, metricID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM engine_custom_metrics WHERE id = $1`, metricID)
	if err != nil {
		return fmt.Errorf("failed to delete metric: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *metricRepository) List(ctx context.Context) ([]*models.CustomMetric, error) {
	query := `
		SELECT id, name, formula, dependencies, metric_type, display_format,
		       aggregation, created_at, updated_at
		FROM engine_custom_metrics
		ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*models.CustomMetric
	for rows.Next() {
		metric, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metrics: %w", err)
	}

	return metrics, nil
}

func (r *metricRepository) GetByID(ctx context.Context, metricID uuid.UUID) (*models.CustomMetric, error) {
	query := `
		SELECT id, name, formula, dependencies, metric_type, display_format,
		       aggregation, created_at, updated_at
		FROM engine_custom_metrics
		WHERE id = $1`

	row := r.db.QueryRow(ctx, query, metricID)
	metric, err := scanMetric(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Metric not found
		}
		return nil, err
	}

	return metric, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func scanMetric(row pgx.Row) (*models.CustomMetric, error) {
	var m models.CustomMetric
	var dependencies []byte

	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Formula,
		&dependencies,
		&m.MetricType,
		&m.DisplayFormat,
		&m.Aggregation,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan metric: %w", err)
	}

	if len(dependencies) > 0 && string(dependencies) != "null" {
		if err := json.Unmarshal(dependencies, &m.Dependencies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dependencies: %w", err)
		}
	}

	return &m, nil
}

// dependenciesJSON converts a dependency list to JSONB format for
// database insertion. Returns nil for empty slices to store NULL.
func dependenciesJSON(deps []string) any {
	if len(deps) == 0 {
		return nil
	}
	return deps
}
