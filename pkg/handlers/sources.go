package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/jsonutil"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
	"github.com/merchlens-io/merchlens-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// SourceListResponse for GET /api/sources
type SourceListResponse struct {
	Sources []*models.DataSource `json:"sources"`
	Total   int                  `json:"total"`
}

// SourceRequest for POST /api/sources and PUT /api/sources/{srcid}
type SourceRequest struct {
	SchemaID   uuid.UUID              `json:"schema_id"`
	Name       string                 `json:"name"`
	SourceType string                 `json:"source_type"`
	Mappings   []models.ImportMapping `json:"mappings,omitempty"`
}

// ImportRequest for POST /api/sources/{srcid}/import. Contents accepts
// either a string payload or inline JSON rows.
type ImportRequest struct {
	Format   string          `json:"format,omitempty"` // "csv" or "json"; inferred from contents when empty
	Contents json.RawMessage `json:"contents"`
}

// ImportResponse for POST /api/sources/{srcid}/import
type ImportResponse struct {
	Result  *models.ImportResult  `json:"result"`
	Dataset *models.CustomDataset `json:"dataset"`
}

// ============================================================================
// Handler
// ============================================================================

// SourceHandler handles data source HTTP requests.
type SourceHandler struct {
	sourceService  services.SourceService
	importService  services.ImportService
	maxImportBytes int64
	logger         *zap.Logger
}

// NewSourceHandler creates a new source handler.
func NewSourceHandler(
	sourceService services.SourceService,
	importService services.ImportService,
	maxImportBytes int64,
	logger *zap.Logger,
) *SourceHandler {
	return &SourceHandler{
		sourceService:  sourceService,
		importService:  importService,
		maxImportBytes: maxImportBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers the source handler's routes on the given mux.
func (h *SourceHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/sources"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("GET "+base+"/{srcid}", h.Get)
	mux.HandleFunc("PUT "+base+"/{srcid}", h.Update)
	mux.HandleFunc("DELETE "+base+"/{srcid}", h.Delete)
	mux.HandleFunc("POST "+base+"/{srcid}/import", h.Import)
	mux.HandleFunc("GET /api/schemas/{sid}/sources", h.ListBySchema)
}

// List handles GET /api/sources
func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.sourceService.ListSources(r.Context())
	if err != nil {
		h.logger.Error("Failed to list sources", zap.Error(err))
		serviceError(w, h.logger, err, "list_sources_failed")
		return
	}

	response := SourceListResponse{
		Sources: sources,
		Total:   len(sources),
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListBySchema handles GET /api/schemas/{sid}/sources
func (h *SourceHandler) ListBySchema(w http.ResponseWriter, r *http.Request) {
	schemaID, ok := ParseSchemaID(w, r, h.logger)
	if !ok {
		return
	}

	sources, err := h.sourceService.ListSourcesBySchema(r.Context(), schemaID)
	if err != nil {
		h.logger.Error("Failed to list sources for schema",
			zap.String("schema_id", schemaID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "list_sources_failed")
		return
	}

	response := SourceListResponse{
		Sources: sources,
		Total:   len(sources),
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/sources
func (h *SourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	source := &models.DataSource{
		SchemaID:   req.SchemaID,
		Name:       req.Name,
		SourceType: req.SourceType,
		Mappings:   req.Mappings,
	}

	if err := h.sourceService.CreateSource(r.Context(), source); err != nil {
		h.logger.Error("Failed to create source",
			zap.String("schema_id", req.SchemaID.String()),
			zap.String("name", req.Name),
			zap.Error(err))
		serviceError(w, h.logger, err, "create_source_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: source}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/sources/{srcid}
func (h *SourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	source, err := h.sourceService.GetSource(r.Context(), sourceID)
	if err != nil {
		h.logger.Error("Failed to get source",
			zap.String("source_id", sourceID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "get_source_failed")
		return
	}

	if source == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "source_not_found", "Data source not found"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: source}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/sources/{srcid}
func (h *SourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	var req SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	source := &models.DataSource{
		ID:         sourceID,
		SchemaID:   req.SchemaID,
		Name:       req.Name,
		SourceType: req.SourceType,
		Mappings:   req.Mappings,
	}

	if err := h.sourceService.UpdateSource(r.Context(), source); err != nil {
		h.logger.Error("Failed to update source",
			zap.String("source_id", sourceID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "update_source_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: source}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/sources/{srcid}
func (h *SourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.sourceService.DeleteSource(r.Context(), sourceID); err != nil {
		h.logger.Error("Failed to delete source",
			zap.String("source_id", sourceID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "delete_source_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Source deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Import handles POST /api/sources/{srcid}/import
func (h *SourceHandler) Import(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxImportBytes)

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid or oversized request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	contents := jsonutil.FlexibleTextValue(req.Contents)
	format := resolveImportFormat(req.Format, contents)

	var (
		dataset *models.CustomDataset
		result  *models.ImportResult
		err     error
	)
	switch format {
	case "csv":
		dataset, result, err = h.importService.ImportCSV(r.Context(), sourceID, contents)
	case "json":
		dataset, result, err = h.importService.ImportJSON(r.Context(), sourceID, contents)
	default:
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_format", "Format must be csv or json"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if err != nil {
		h.logger.Error("Import failed",
			zap.String("source_id", sourceID.String()),
			zap.String("format", format),
			zap.Error(err))
		serviceError(w, h.logger, err, "import_failed")
		return
	}

	response := ImportResponse{
		Result:  result,
		Dataset: dataset,
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// resolveImportFormat picks the payload format: the explicit request
// field wins, otherwise contents that look like JSON rows are treated as
// JSON and everything else as CSV.
func resolveImportFormat(format, contents string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	trimmed := strings.TrimSpace(contents)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		return "json"
	}
	return "csv"
}
