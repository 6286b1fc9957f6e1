package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/models"
	"github.com/merchlens-io/merchlens-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// MetricListResponse for GET /api/metrics
type MetricListResponse struct {
	Metrics []*models.CustomMetric `json:"metrics"`
	Total   int                    `json:"total"`
}

// MetricRequest for POST /api/metrics and PUT /api/metrics/{mid}
type MetricRequest struct {
	Name          string             `json:"name"`
	Formula       string             `json:"formula"`
	MetricType    models.FieldType   `json:"metric_type,omitempty"`
	DisplayFormat string             `json:"display_format,omitempty"`
	Aggregation   models.Aggregation `json:"aggregation,omitempty"`
}

// EvaluateRequest for POST /api/metrics/{mid}/evaluate
type EvaluateRequest struct {
	Row models.Row `json:"row"`
}

// ============================================================================
// Handler
// ============================================================================

// MetricHandler handles custom metric HTTP requests.
type MetricHandler struct {
	metricService services.MetricService
	logger        *zap.Logger
}

// NewMetricHandler creates a new metric handler.
func NewMetricHandler(metricService services.MetricService, logger *zap.Logger) *MetricHandler {
	return &MetricHandler{
		metricService: metricService,
		logger:        logger,
	}
}

// RegisterRoutes registers the metric handler's routes on the given mux.
func (h *MetricHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/metrics"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("GET "+base+"/{mid}", h.Get)
	mux.HandleFunc("PUT "+base+"/{mid}", h.Update)
	mux.HandleFunc("DELETE "+base+"/{mid}", h.Delete)
	mux.HandleFunc("POST "+base+"/{mid}/evaluate", h.Evaluate)
}

// List handles GET /api/metrics
func (h *MetricHandler) List(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.metricService.ListMetrics(r.Context())
	if err != nil {
		h.logger.Error("Failed to list metrics", zap.Error(err))
		serviceError(w, h.logger, err, "list_metrics_failed")
		return
	}

	response := MetricListResponse{
		Metrics: metrics,
		Total:   len(metrics),
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/metrics
func (h *MetricHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req MetricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	metric := &models.CustomMetric{
		Name:          req.Name,
		Formula:       req.Formula,
		MetricType:    req.MetricType,
		DisplayFormat: req.DisplayFormat,
		Aggregation:   req.Aggregation,
	}

	if err := h.metricService.CreateMetric(r.Context(), metric); err != nil {
		h.logger.Error("Failed to create metric",
			zap.String("name", req.Name),
			zap.Error(err))
		serviceError(w, h.logger, err, "create_metric_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: metric}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/metrics/{mid}
func (h *MetricHandler) Get(w http.ResponseWriter, r *http.Request) {
	metricID, ok := ParseMetricID(w, r, h.logger)
	if !ok {
		return
	}

	metric, err := h.metricService.GetMetric(r.Context(), metricID)
	if err != nil {
		h.logger.Error("Failed to get metric",
			zap.String("metric_id", metricID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "get_metric_failed")
		return
	}

	if metric == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "metric_not_found", "Metric not found"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: metric}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/metrics/{mid}
func (h *MetricHandler) Update(w http.ResponseWriter, r *http.Request) {
	metricID, ok := ParseMetricID(w, r, h.logger)
	if !ok {
		return
	}

	var req MetricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	metric := &models.CustomMetric{
		ID:            metricID,
		Name:          req.Name,
		Formula:       req.Formula,
		MetricType:    req.MetricType,
		DisplayFormat: req.DisplayFormat,
		Aggregation:   req.Aggregation,
	}

	if err := h.metricService.UpdateMetric(r.Context(), metric); err != nil {
		h.logger.Error("Failed to update metric",
			zap.String("metric_id", metricID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "update_metric_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: metric}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/metrics/{mid}
func (h *MetricHandler) Delete(w http.ResponseWriter, r *http.Request) {
	metricID, ok := ParseMetricID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.metricService.DeleteMetric(r.Context(), metricID); err != nil {
		h.logger.Error("Failed to delete metric",
			zap.String("metric_id", metricID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "delete_metric_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Metric deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Evaluate handles POST /api/metrics/{mid}/evaluate
func (h *MetricHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	metricID, ok := ParseMetricID(w, r, h.logger)
	if !ok {
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	value, err := h.metricService.EvaluateMetric(r.Context(), metricID, req.Row)
	if err != nil {
		h.logger.Error("Failed to evaluate metric",
			zap.String("metric_id", metricID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "evaluate_metric_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: value}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
