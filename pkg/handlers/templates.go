package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/services"
)

// TemplateListResponse for GET /api/schema-templates
type TemplateListResponse struct {
	Templates []services.SchemaTemplate `json:"templates"`
	Total     int                       `json:"total"`
}

// TemplateHandler handles schema template HTTP requests.
type TemplateHandler struct {
	templateService services.TemplateService
	logger          *zap.Logger
}

// NewTemplateHandler creates a new template handler.
func NewTemplateHandler(templateService services.TemplateService, logger *zap.Logger) *TemplateHandler {
	return &TemplateHandler{
		templateService: templateService,
		logger:          logger,
	}
}

// RegisterRoutes registers the template handler's routes on the given mux.
func (h *TemplateHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/schema-templates"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("GET "+base+"/{slug}", h.Get)
	mux.HandleFunc("POST "+base+"/{slug}", h.Instantiate)
}

// List handles GET /api/schema-templates
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	templates := h.templateService.ListTemplates()

	response := TemplateListResponse{
		Templates: templates,
		Total:     len(templates),
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/schema-templates/{slug}
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	template := h.templateService.GetTemplate(slug)
	if template == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "template_not_found", "Schema template not found"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: template}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Instantiate handles POST /api/schema-templates/{slug}
func (h *TemplateHandler) Instantiate(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	schema, err := h.templateService.InstantiateTemplate(r.Context(), slug)
	if err != nil {
		h.logger.Error("Failed to instantiate template",
			zap.String("template", slug),
			zap.Error(err))
		serviceError(w, h.logger, err, "instantiate_template_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
