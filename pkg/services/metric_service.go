package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/fields"
	"github.com/merchlens-io/merchlens-engine/pkg/formula"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
	"github.com/merchlens-io/merchlens-engine/pkg/repositories"
)

// MetricService manages custom metrics and evaluates their formulas
// against rows. Formulas are compiled in the expression sandbox at save
// time, so a stored metric is known to at least parse; evaluation can
// still fail per row and yields nil rather than an error.
type MetricService interface {
	// CreateMetric validates the formula, extracts its field
	// dependencies, and persists the metric.
	CreateMetric(ctx context.Context, metric *models.CustomMetric) error

	// UpdateMetric revalidates and persists changes to a metric.
	UpdateMetric(ctx context.Context, metric *models.CustomMetric) error

	// DeleteMetric removes a metric.
	DeleteMetric(ctx context.Context, metricID uuid.UUID) error

	// GetMetric returns a metric by ID, or nil if it does not exist.
	GetMetric(ctx context.Context, metricID uuid.UUID) (*models.CustomMetric, error)

	// ListMetrics returns all metrics.
	ListMetrics(ctx context.Context) ([]*models.CustomMetric, error)

	// EvaluateMetric runs a metric's formula against one row. A row the
	// formula cannot be computed for yields a nil value, never an error;
	// errors are reserved for a missing metric or storage failures.
	EvaluateMetric(ctx context.Context, metricID uuid.UUID, row models.Row) (*MetricValue, error)
}

// MetricValue is the outcome of evaluating a metric against one row. A
// nil Value means the formula could not be computed for that row.
type MetricValue struct {
	Value     *float64 `json:"value"`
	Formatted string   `json:"formatted"`
}

type metricService struct {
	metricRepo repositories.MetricRepository
	logger     *zap.Logger
}

// NewMetricService creates a new metric service.
func NewMetricService(metricRepo repositories.MetricRepository, logger *zap.Logger) MetricService {
	return &metricService{
		metricRepo: metricRepo,
		logger:     logger.Named("metric-service"),
	}
}

var _ MetricService = (*metricService)(nil)

func (s *metricService) CreateMetric(ctx context.Context, metric *models.CustomMetric) error {
	if err := s.prepareMetric(metric); err != nil {
		return err
	}

	if err := s.metricRepo.Create(ctx, metric); err != nil {
		return fmt.Errorf("failed to create metric: %w", err)
	}

	s.logger.Info("Metric created",
		zap.String("metric_id", metric.ID.String()),
		zap.String("name", metric.Name),
		zap.Strings("dependencies", metric.Dependencies))
	return nil
}

func (s *metricService) UpdateMetric(ctx context.Context, metric *models.CustomMetric) error {
	if err := s.prepareMetric(metric); err != nil {
		return err
	}

	if err := s.metricRepo.Update(ctx, metric); err != nil {
		return fmt.Errorf("failed to update metric: %w", err)
	}

	s.logger.Info("Metric updated",
		zap.String("metric_id", metric.ID.String()),
		zap.String("name", metric.Name))
	return nil
}

func (s *metricService) DeleteMetric(ctx context.Context, metricID uuid.UUID) error {
	if err := s.metricRepo.Delete(ctx, metricID); err != nil {
		return fmt.Errorf("failed to delete metric: %w", err)
	}

	s.logger.Info("Metric deleted", zap.String("metric_id", metricID.String()))
	return nil
}

func (s *metricService) GetMetric(ctx context.Context, metricID uuid.UUID) (*models.CustomMetric, error) {
	metric, err := s.metricRepo.GetByID(ctx, metricID)
	if err != nil {
		return nil, fmt.Errorf("failed to get metric: %w", err)
	}
	return metric, nil
}

func (s *metricService) ListMetrics(ctx context.Context) ([]*models.CustomMetric, error) {
	metrics, err := s.metricRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	return metrics, nil
}

func (s *metricService) EvaluateMetric(ctx context.Context, metricID uuid.UUID, row models.Row) (*MetricValue, error) {
	metric, err := s.metricRepo.GetByID(ctx, metricID)
	if err != nil {
		return nil, fmt.Errorf("failed to get metric: %w", err)
	}
	if metric == nil {
		return nil, apperrors.ErrNotFound
	}

	display := models.FieldDefinition{
		Type:          metric.MetricType,
		DisplayFormat: metric.DisplayFormat,
	}

	evaluator, err := formula.Compile(metric.Formula)
	if err != nil {
		// Stored formulas compiled at save time; hitting this means the
		// row in the database was edited out of band.
		s.logger.Warn("Stored metric formula no longer compiles",
			zap.String("metric_id", metricID.String()),
			zap.Error(err))
		return &MetricValue{Formatted: fields.Format(nil, display)}, nil
	}

	value, err := evaluator.Evaluate(row)
	if err != nil {
		s.logger.Warn("Metric evaluation failed for row",
			zap.String("metric_id", metricID.String()),
			zap.String("metric", metric.Name),
			zap.Error(err))
		return &MetricValue{Formatted: fields.Format(nil, display)}, nil
	}

	return &MetricValue{
		Value:     &value,
		Formatted: fields.Format(value, display),
	}, nil
}

func (s *metricService) prepareMetric(metric *models.CustomMetric) error {
	if metric == nil {
		return fmt.Errorf("%w: metric is required", apperrors.ErrValidation)
	}
	if metric.Name == "" {
		return fmt.Errorf("%w: metric name is required", apperrors.ErrValidation)
	}

	if _, err := formula.Compile(metric.Formula); err != nil {
		return fmt.Errorf("%w: invalid formula: %v", apperrors.ErrValidation, err)
	}

	deps, err := formula.Dependencies(metric.Formula)
	if err != nil {
		return fmt.Errorf("%w: invalid formula: %v", apperrors.ErrValidation, err)
	}
	metric.Dependencies = deps

	if metric.MetricType == "" {
		metric.MetricType = models.FieldTypeNumber
	}
	if !models.IsValidFieldType(metric.MetricType) {
		return fmt.Errorf("%w: invalid metric type %q", apperrors.ErrValidation, metric.MetricType)
	}
	if metric.Aggregation == "" {
		metric.Aggregation = models.AggregationSum
	}
	if !models.IsValidAggregation(metric.Aggregation) {
		return fmt.Errorf("%w: invalid aggregation %q", apperrors.ErrValidation, metric.Aggregation)
	}
	return nil
}
