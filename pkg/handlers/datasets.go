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

// QueryRequest for POST /api/sources/{srcid}/dataset/query
type QueryRequest struct {
	Page      int            `json:"page,omitempty"`
	PageSize  int            `json:"page_size,omitempty"`
	SortField string         `json:"sort_field,omitempty"`
	SortDesc  bool           `json:"sort_desc,omitempty"`
	Filters   map[string]any `json:"filters,omitempty"`
}

// AggregateResponse for GET /api/sources/{srcid}/dataset/aggregate
type AggregateResponse struct {
	Field       string  `json:"field"`
	Aggregation string  `json:"aggregation,omitempty"`
	Value       float64 `json:"value"`
}

// ============================================================================
// Handler
// ============================================================================

// DatasetHandler handles dataset HTTP requests.
type DatasetHandler struct {
	datasetService services.DatasetService
	logger         *zap.Logger
}

// NewDatasetHandler creates a new dataset handler.
func NewDatasetHandler(datasetService services.DatasetService, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{
		datasetService: datasetService,
		logger:         logger,
	}
}

// RegisterRoutes registers the dataset handler's routes on the given mux.
func (h *DatasetHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/sources/{srcid}/dataset"

	mux.HandleFunc("GET "+base, h.Get)
	mux.HandleFunc("DELETE "+base, h.Delete)
	mux.HandleFunc("POST "+base+"/query", h.Query)
	mux.HandleFunc("GET "+base+"/aggregate", h.Aggregate)
	mux.HandleFunc("GET "+base+"/chart", h.Chart)
}

// Get handles GET /api/sources/{srcid}/dataset
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	dataset, err := h.datasetService.GetDataset(r.Context(), sourceID)
	if err != nil {
		h.logger.Error("Failed to get dataset",
			zap.String("source_id", sourceID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "get_dataset_failed")
		return
	}

	if dataset == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "dataset_not_found", "No dataset imported for this source"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: dataset}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/sources/{srcid}/dataset
func (h *DatasetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.datasetService.DeleteDataset(r.Context(), sourceID); err != nil {
		h.logger.Error("Failed to delete dataset",
			zap.String("source_id", sourceID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "delete_dataset_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Dataset deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Query handles POST /api/sources/{srcid}/dataset/query
func (h *DatasetHandler) Query(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	page, err := h.datasetService.QueryDataset(r.Context(), sourceID, services.DatasetQuery{
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortField: req.SortField,
		SortDesc:  req.SortDesc,
		Filters:   req.Filters,
	})
	if err != nil {
		h.logger.Error("Failed to query dataset",
			zap.String("source_id", sourceID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "query_dataset_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: page}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Aggregate handles GET /api/sources/{srcid}/dataset/aggregate?field=&agg=
func (h *DatasetHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	fieldID := r.URL.Query().Get("field")
	if fieldID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_field", "Query parameter 'field' is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	agg := models.Aggregation(r.URL.Query().Get("agg"))

	value, err := h.datasetService.AggregateField(r.Context(), sourceID, fieldID, agg)
	if err != nil {
		h.logger.Error("Failed to aggregate field",
			zap.String("source_id", sourceID.String()),
			zap.String("field_id", fieldID),
			zap.Error(err))
		serviceError(w, h.logger, err, "aggregate_failed")
		return
	}

	response := AggregateResponse{
		Field:       fieldID,
		Aggregation: string(agg),
		Value:       value,
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Chart handles GET /api/sources/{srcid}/dataset/chart?x=&y=&agg=
func (h *DatasetHandler) Chart(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	xField := r.URL.Query().Get("x")
	yField := r.URL.Query().Get("y")
	if xField == "" || yField == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_field", "Query parameters 'x' and 'y' are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	agg := models.Aggregation(r.URL.Query().Get("agg"))

	series, err := h.datasetService.ChartData(r.Context(), sourceID, xField, yField, agg)
	if err != nil {
		h.logger.Error("Failed to build chart data",
			zap.String("source_id", sourceID.String()),
			zap.String("x", xField),
			zap.String("y", yField),
			zap.Error(err))
		serviceError(w, h.logger, err, "chart_data_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: series}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
