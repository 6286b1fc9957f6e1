package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/fields"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
	"github.com/merchlens-io/merchlens-engine/pkg/predictor"
)

// ErrPredictorDisabled is returned when churn prediction is requested but
// no predictor service is configured.
var ErrPredictorDisabled = errors.New("churn predictor is not configured")

const (
	defaultScoreLimit = 100
	maxScoreLimit     = 500
)

// ChurnScore is one scored dataset row.
type ChurnScore struct {
	Row        int     `json:"row"`
	ChurnRisk  int     `json:"churn_risk"`
	Confidence float64 `json:"confidence"`
}

// AnalyticsService bridges datasets and the external churn predictor.
type AnalyticsService interface {
	// PredictChurn scores a single feature vector.
	PredictChurn(ctx context.Context, features predictor.ChurnFeatures) (*predictor.ChurnPrediction, error)

	// ScoreDataset scores up to limit rows of a source's dataset, deriving
	// features from well-known field IDs. Rows the predictor rejects are
	// skipped.
	ScoreDataset(ctx context.Context, sourceID uuid.UUID, limit int) ([]ChurnScore, error)
}

type analyticsService struct {
	datasets  DatasetService
	predictor *predictor.Client
	logger    *zap.Logger
}

// NewAnalyticsService creates a new analytics service. A nil predictor
// client is allowed; churn operations then fail with
// ErrPredictorDisabled.
func NewAnalyticsService(datasets DatasetService, client *predictor.Client, logger *zap.Logger) AnalyticsService {
	return &analyticsService{
		datasets:  datasets,
		predictor: client,
		logger:    logger.Named("analytics-service"),
	}
}

var _ AnalyticsService = (*analyticsService)(nil)

func (s *analyticsService) PredictChurn(ctx context.Context, features predictor.ChurnFeatures) (*predictor.ChurnPrediction, error) {
	if s.predictor == nil {
		return nil, ErrPredictorDisabled
	}
	return s.predictor.PredictChurn(ctx, features)
}

func (s *analyticsService) ScoreDataset(ctx context.Context, sourceID uuid.UUID, limit int) ([]ChurnScore, error) {
	if s.predictor == nil {
		return nil, ErrPredictorDisabled
	}

	dataset, err := s.datasets.GetDataset(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, apperrors.ErrNotFound
	}

	if limit <= 0 {
		limit = defaultScoreLimit
	}
	if limit > maxScoreLimit {
		limit = maxScoreLimit
	}

	scores := make([]ChurnScore, 0, limit)
	for i, row := range dataset.Data {
		if len(scores) >= limit {
			break
		}

		prediction, err := s.predictor.PredictChurn(ctx, deriveFeatures(row))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Row skipped by predictor",
				zap.String("source_id", sourceID.String()),
				zap.Int("row", i),
				zap.Error(err))
			continue
		}

		scores = append(scores, ChurnScore{
			Row:        i,
			ChurnRisk:  prediction.ChurnRisk,
			Confidence: prediction.Confidence,
		})
	}

	s.logger.Info("Dataset scored",
		zap.String("source_id", sourceID.String()),
		zap.Int("scored_rows", len(scores)))
	return scores, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

// deriveFeatures reads the predictor's inputs from well-known field IDs.
// avg_order_value and purchase_frequency fall back to being derived from
// total_spent and order_count when absent.
func deriveFeatures(row models.Row) predictor.ChurnFeatures {
	totalSpent := numberAt(row, "total_spent")
	orderCount := numberAt(row, "order_count")

	avgOrderValue := numberAt(row, "avg_order_value")
	if avgOrderValue == 0 && orderCount > 0 {
		avgOrderValue = totalSpent / orderCount
	}

	purchaseFrequency := numberAt(row, "purchase_frequency")
	if purchaseFrequency == 0 {
		purchaseFrequency = orderCount
	}

	return predictor.ChurnFeatures{
		AvgOrderValue:         avgOrderValue,
		PurchaseFrequency:     purchaseFrequency,
		DaysSinceLastPurchase: numberAt(row, "days_since_last_purchase"),
		TotalSpent:            totalSpent,
	}
}

func numberAt(row models.Row, fieldID string) float64 {
	if n, ok := fields.ToNumber(row[fieldID]); ok {
		return n
	}
	return 0
}
