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

// SchemaListResponse for GET /api/schemas
type SchemaListResponse struct {
	Schemas []*models.DatasetSchema `json:"schemas"`
	Total   int                     `json:"total"`
}

// SchemaRequest for POST /api/schemas and PUT /api/schemas/{sid}
type SchemaRequest struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Icon        string                   `json:"icon,omitempty"`
	Category    string                   `json:"category,omitempty"`
	Fields      []models.FieldDefinition `json:"fields"`
	PrimaryKey  string                   `json:"primary_key,omitempty"`
}

// ============================================================================
// Handler
// ============================================================================

// SchemaHandler handles schema HTTP requests.
type SchemaHandler struct {
	schemaService services.SchemaService
	logger        *zap.Logger
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(schemaService services.SchemaService, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{
		schemaService: schemaService,
		logger:        logger,
	}
}

// RegisterRoutes registers the schema handler's routes on the given mux.
func (h *SchemaHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/schemas"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("POST "+base+"/import", h.Import)
	mux.HandleFunc("GET "+base+"/{sid}", h.Get)
	mux.HandleFunc("PUT "+base+"/{sid}", h.Update)
	mux.HandleFunc("DELETE "+base+"/{sid}", h.Delete)
	mux.HandleFunc("GET "+base+"/{sid}/export", h.Export)
	mux.HandleFunc("POST "+base+"/{sid}/fields", h.AddField)
	mux.HandleFunc("PUT "+base+"/{sid}/fields/{fid}", h.UpdateField)
	mux.HandleFunc("DELETE "+base+"/{sid}/fields/{fid}", h.RemoveField)
}

// List handles GET /api/schemas
func (h *SchemaHandler) List(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.schemaService.ListSchemas(r.Context())
	if err != nil {
		h.logger.Error("Failed to list schemas", zap.Error(err))
		serviceError(w, h.logger, err, "list_schemas_failed")
		return
	}

	response := SchemaListResponse{
		Schemas: schemas,
		Total:   len(schemas),
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/schemas
func (h *SchemaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	schema := &models.DatasetSchema{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Category:    req.Category,
		Fields:      req.Fields,
		PrimaryKey:  req.PrimaryKey,
	}

	if err := h.schemaService.CreateSchema(r.Context(), schema); err != nil {
		h.logger.Error("Failed to create schema",
			zap.String("name", req.Name),
			zap.Error(err))
		serviceError(w, h.logger, err, "create_schema_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/schemas/{sid}
func (h *SchemaHandler) Get(w http.ResponseWriter, r *http.Request) {
	schemaID, ok := ParseSchemaID(w, r, h.logger)
	if !ok {
		return
	}

	schema, err := h.schemaService.GetSchema(r.Context(), schemaID)
	if err != nil {
		h.logger.Error("Failed to get schema",
			zap.String("schema_id", schemaID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "get_schema_failed")
		return
	}

	if schema == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "schema_not_found", "Schema not found"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/schemas/{sid}
func (h *SchemaHandler) Update(w http.ResponseWriter, r *http.Request) {
	schemaID, ok := ParseSchemaID(w, r, h.logger)
	if !ok {
		return
	}

	var req SchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	schema := &models.DatasetSchema{
		ID:          schemaID,
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Category:    req.Category,
		Fields:      req.Fields,
		PrimaryKey:  req.PrimaryKey,
	}

	if err := h.schemaService.UpdateSchema(r.Context(), schema); err != nil {
		h.logger.Error("Failed to update schema",
			zap.String("schema_id", schemaID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "update_schema_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/schemas/{sid}
func (h *SchemaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	schemaID, ok := ParseSchemaID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.schemaService.DeleteSchema(r.Context(), schemaID); err != nil {
		h.logger.Error("Failed to delete schema",
			zap.String("schema_id", schemaID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "delete_schema_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Schema deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Export handles GET /api/schemas/{sid}/export
func (h *SchemaHandler) Export(w http.ResponseWriter, r *http.Request) {
	schemaID, ok := ParseSchemaID(w, r, h.logger)
	if !ok {
		return
	}

	export, err := h.schemaService.ExportSchema(r.Context(), schemaID)
	if err != nil {
		h.logger.Error("Failed to export schema",
			zap.String("schema_id", schemaID.String()),
			zap.Error(err))
		serviceError(w, h.logger, err, "export_schema_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: export}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Import handles POST /api/schemas/import
func (h *SchemaHandler) Import(w http.ResponseWriter, r *http.Request) {
	var export models.SchemaExport
	if err := json.NewDecoder(r.Body).Decode(&export); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	schema, err := h.schemaService.ImportSchema(r.Context(), &export)
	if err != nil {
		h.logger.Error("Failed to import schema",
			zap.String("name", export.Schema.Name),
			zap.Error(err))
		serviceError(w, h.logger, err, "import_schema_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AddField handles POST /api/schemas/{sid}/fields
func (h *SchemaHandler) AddField(w http.ResponseWriter, r *http.Request) {
	schemaID, ok := ParseSchemaID(w, r, h.logger)
	if !ok {
		return
	}

	var field models.FieldDefinition
	if err := json.NewDecoder(r.Body).Decode(&field); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	schema, err := h.schemaService.AddField(r.Context(), schemaID, field)
	if err != nil {
		h.logger.Error("Failed to add field",
			zap.String("schema_id", schemaID.String()),
			zap.String("field", field.Name),
			zap.Error(err))
		serviceError(w, h.logger, err, "add_field_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdateField handles PUT /api/schemas/{sid}/fields/{fid}
func (h *SchemaHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	schemaID, ok := ParseSchemaID(w, r, h.logger)
	if !ok {
		return
	}
	fieldID := r.PathValue("fid")

	var field models.FieldDefinition
	if err := json.NewDecoder(r.Body).Decode(&field); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	schema, err := h.schemaService.UpdateField(r.Context(), schemaID, fieldID, field)
	if err != nil {
		h.logger.Error("Failed to update field",
			zap.String("schema_id", schemaID.String()),
			zap.String("field_id", fieldID),
			zap.Error(err))
		serviceError(w, h.logger, err, "update_field_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RemoveField handles DELETE /api/schemas/{sid}/fields/{fid}
func (h *SchemaHandler) RemoveField(w http.ResponseWriter, r *http.Request) {
	schemaID, ok := ParseSchemaID(w, r, h.logger)
	if !ok {
		return
	}
	fieldID := r.PathValue("fid")

	schema, err := h.schemaService.RemoveField(r.Context(), schemaID, fieldID)
	if err != nil {
		h.logger.Error("Failed to remove field",
			zap.String("schema_id", schemaID.String()),
			zap.String("field_id", fieldID),
			zap.Error(err))
		serviceError(w, h.logger, err, "remove_field_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
