package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/predictor"
	"github.com/merchlens-io/merchlens-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// ChurnRiskRequest for POST /api/analytics/churn-risk. Either a single
// feature vector or a source to score row by row.
type ChurnRiskRequest struct {
	Features *predictor.ChurnFeatures `json:"features,omitempty"`
	SourceID *uuid.UUID               `json:"source_id,omitempty"`
	Limit    int                      `json:"limit,omitempty"`
}

// ChurnScoresResponse for dataset-wide scoring.
type ChurnScoresResponse struct {
	Scores []services.ChurnScore `json:"scores"`
	Total  int                   `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// AnalyticsHandler handles churn analytics HTTP requests.
type AnalyticsHandler struct {
	analyticsService services.AnalyticsService
	logger           *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(analyticsService services.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		logger:           logger,
	}
}

// RegisterRoutes registers the analytics handler's routes on the given mux.
func (h *AnalyticsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analytics/churn-risk", h.ChurnRisk)
}

// ChurnRisk handles POST /api/analytics/churn-risk
func (h *AnalyticsHandler) ChurnRisk(w http.ResponseWriter, r *http.Request) {
	var req ChurnRiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	switch {
	case req.Features != nil:
		prediction, err := h.analyticsService.PredictChurn(r.Context(), *req.Features)
		if err != nil {
			h.logger.Error("Churn prediction failed", zap.Error(err))
			serviceError(w, h.logger, err, "churn_prediction_failed")
			return
		}
		if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: prediction}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}

	case req.SourceID != nil:
		scores, err := h.analyticsService.ScoreDataset(r.Context(), *req.SourceID, req.Limit)
		if err != nil {
			h.logger.Error("Dataset churn scoring failed",
				zap.String("source_id", req.SourceID.String()),
				zap.Error(err))
			serviceError(w, h.logger, err, "churn_scoring_failed")
			return
		}
		response := ChurnScoresResponse{Scores: scores, Total: len(scores)}
		if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}

	default:
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Either features or source_id is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}
