package services

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

// SchemaTemplate is a ready-made schema definition shipped with the
// engine. Instantiating one creates a normal schema that can be edited
// freely afterwards.
type SchemaTemplate struct {
	Slug        string                   `json:"slug"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Icon        string                   `json:"icon"`
	Category    string                   `json:"category"`
	PrimaryKey  string                   `json:"primary_key,omitempty"`
	Fields      []models.FieldDefinition `json:"fields"`
}

// TemplateService lists the bundled schema templates and turns them into
// live schemas.
type TemplateService interface {
	// ListTemplates returns all bundled templates, ordered by slug.
	ListTemplates() []SchemaTemplate

	// GetTemplate returns one template by slug, or nil if unknown.
	GetTemplate(slug string) *SchemaTemplate

	// InstantiateTemplate creates a schema from a template.
	InstantiateTemplate(ctx context.Context, slug string) (*models.DatasetSchema, error)
}

type templateService struct {
	schemaService SchemaService
	templates     []SchemaTemplate
	logger        *zap.Logger
}

// NewTemplateService parses the bundled template files and creates the
// service. A template that fails to parse is a packaging bug, so it is an
// error rather than a skipped file.
func NewTemplateService(schemaService SchemaService, logger *zap.Logger) (TemplateService, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load schema templates: %w", err)
	}

	return &templateService{
		schemaService: schemaService,
		templates:     templates,
		logger:        logger.Named("template-service"),
	}, nil
}

var _ TemplateService = (*templateService)(nil)

func (s *templateService) ListTemplates() []SchemaTemplate {
	return s.templates
}

func (s *templateService) GetTemplate(slug string) *SchemaTemplate {
	for i := range s.templates {
		if s.templates[i].Slug == slug {
			return &s.templates[i]
		}
	}
	return nil
}

func (s *templateService) InstantiateTemplate(ctx context.Context, slug string) (*models.DatasetSchema, error) {
	template := s.GetTemplate(slug)
	if template == nil {
		return nil, fmt.Errorf("template %q: %w", slug, apperrors.ErrNotFound)
	}

	schema := &models.DatasetSchema{
		Name:        template.Name,
		Description: template.Description,
		Icon:        template.Icon,
		Category:    template.Category,
		Fields:      append([]models.FieldDefinition(nil), template.Fields...),
		PrimaryKey:  template.PrimaryKey,
	}

	if err := s.schemaService.CreateSchema(ctx, schema); err != nil {
		return nil, err
	}

	s.logger.Info("Template instantiated",
		zap.String("template", slug),
		zap.String("schema_id", schema.ID.String()))
	return schema, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

type templateDoc struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Icon        string          `yaml:"icon"`
	Category    string          `yaml:"category"`
	PrimaryKey  string          `yaml:"primary_key"`
	Fields      []templateField `yaml:"fields"`
}

type templateField struct {
	Name               string   `yaml:"name"`
	Type               string   `yaml:"type"`
	Required           bool     `yaml:"required"`
	Unique             bool     `yaml:"unique"`
	EnumValues         []string `yaml:"enum_values"`
	Min                *float64 `yaml:"min"`
	Max                *float64 `yaml:"max"`
	Pattern            string   `yaml:"pattern"`
	DisplayFormat      string   `yaml:"display_format"`
	DefaultAggregation string   `yaml:"default_aggregation"`
	Visualization      string   `yaml:"visualization"`
}

func loadTemplates() ([]SchemaTemplate, error) {
	entries, err := templatesFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}

	templates := make([]SchemaTemplate, 0, len(entries))
	for _, entry := range entries {
		payload, err := templatesFS.ReadFile(path.Join("templates", entry.Name()))
		if err != nil {
			return nil, err
		}

		var doc templateDoc
		if err := yaml.Unmarshal(payload, &doc); err != nil {
			return nil, fmt.Errorf("template %s: %w", entry.Name(), err)
		}

		template, err := buildTemplate(strings.TrimSuffix(entry.Name(), ".yaml"), doc)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", entry.Name(), err)
		}
		templates = append(templates, template)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].Slug < templates[j].Slug })
	return templates, nil
}

func buildTemplate(slug string, doc templateDoc) (SchemaTemplate, error) {
	fields := make([]models.FieldDefinition, len(doc.Fields))
	for i, f := range doc.Fields {
		fieldType := models.FieldType(f.Type)
		if !models.IsValidFieldType(fieldType) {
			return SchemaTemplate{}, fmt.Errorf("field %q has invalid type %q", f.Name, f.Type)
		}

		field := models.NewFieldDefinition(f.Name, fieldType)
		field.Required = f.Required
		field.Unique = f.Unique
		field.EnumValues = f.EnumValues
		field.Min = f.Min
		field.Max = f.Max
		field.Pattern = f.Pattern
		field.DisplayFormat = f.DisplayFormat
		if f.DefaultAggregation != "" {
			field.DefaultAggregation = models.Aggregation(f.DefaultAggregation)
		}
		if f.Visualization != "" {
			field.Visualization = f.Visualization
		}
		fields[i] = field
	}

	return SchemaTemplate{
		Slug:        slug,
		Name:        doc.Name,
		Description: doc.Description,
		Icon:        doc.Icon,
		Category:    doc.Category,
		PrimaryKey:  doc.PrimaryKey,
		Fields:      fields,
	}, nil
}
