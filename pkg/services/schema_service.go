package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
	"github.com/merchlens-io/merchlens-engine/pkg/repositories"
)

// SchemaService manages dataset schemas: their lifecycle, their field
// definitions, and portable export/import.
type SchemaService interface {
	// CreateSchema validates and persists a new schema. Missing field IDs
	// are minted from the field names.
	CreateSchema(ctx context.Context, schema *models.DatasetSchema) error

	// UpdateSchema validates and persists changes to an existing schema.
	// Changing the type of an existing field is rejected with ErrTypeLocked
	// once any dataset exists for the schema.
	UpdateSchema(ctx context.Context, schema *models.DatasetSchema) error

	// DeleteSchema removes a schema together with its sources and datasets.
	DeleteSchema(ctx context.Context, schemaID uuid.UUID) error

	// GetSchema returns a schema by ID, or nil if it does not exist.
	GetSchema(ctx context.Context, schemaID uuid.UUID) (*models.DatasetSchema, error)

	// ListSchemas returns all schemas.
	ListSchemas(ctx context.Context) ([]*models.DatasetSchema, error)

	// AddField appends a field definition to a schema and returns the
	// updated schema.
	AddField(ctx context.Context, schemaID uuid.UUID, field models.FieldDefinition) (*models.DatasetSchema, error)

	// UpdateField replaces the field with the given ID and returns the
	// updated schema. Type changes are subject to the same lock as
	// UpdateSchema.
	UpdateField(ctx context.Context, schemaID uuid.UUID, fieldID string, field models.FieldDefinition) (*models.DatasetSchema, error)

	// RemoveField deletes a field definition. Existing rows keep the
	// orphaned keys; they are ignored from then on.
	RemoveField(ctx context.Context, schemaID uuid.UUID, fieldID string) (*models.DatasetSchema, error)

	// ExportSchema renders a schema as a versioned, portable document.
	ExportSchema(ctx context.Context, schemaID uuid.UUID) (*models.SchemaExport, error)

	// ImportSchema creates a new schema from an exported document. The
	// created schema gets a fresh ID, fresh timestamps, and a zero record
	// count regardless of what the document carries.
	ImportSchema(ctx context.Context, export *models.SchemaExport) (*models.DatasetSchema, error)
}

type schemaService struct {
	schemaRepo  repositories.SchemaRepository
	sourceRepo  repositories.SourceRepository
	datasetRepo repositories.DatasetRepository
	cache       *DatasetCache
	logger      *zap.Logger
}

// NewSchemaService creates a new schema service.
func NewSchemaService(
	schemaRepo repositories.SchemaRepository,
	sourceRepo repositories.SourceRepository,
	datasetRepo repositories.DatasetRepository,
	cache *DatasetCache,
	logger *zap.Logger,
) SchemaService {
	return &schemaService{
		schemaRepo:  schemaRepo,
		sourceRepo:  sourceRepo,
		datasetRepo: datasetRepo,
		cache:       cache,
		logger:      logger.Named("schema-service"),
	}
}

var _ SchemaService = (*schemaService)(nil)

func (s *schemaService) CreateSchema(ctx context.Context, schema *models.DatasetSchema) error {
	if schema == nil {
		return fmt.Errorf("%w: schema is required", apperrors.ErrValidation)
	}

	ensureFieldIDs(schema)
	if err := validateSchema(schema); err != nil {
		return err
	}

	if err := s.schemaRepo.Create(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Info("Schema created",
		zap.String("schema_id", schema.ID.String()),
		zap.String("name", schema.Name),
		zap.Int("fields", len(schema.Fields)))
	return nil
}

func (s *schemaService) UpdateSchema(ctx context.Context, schema *models.DatasetSchema) error {
	if schema == nil {
		return fmt.Errorf("%w: schema is required", apperrors.ErrValidation)
	}

	ensureFieldIDs(schema)
	if err := validateSchema(schema); err != nil {
		return err
	}

	existing, err := s.schemaRepo.GetByID(ctx, schema.ID)
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	if existing == nil {
		return apperrors.ErrNotFound
	}

	if err := s.checkTypeLock(ctx, existing, schema); err != nil {
		return err
	}

	if err := s.schemaRepo.Update(ctx, schema); err != nil {
		return fmt.Errorf("failed to update schema: %w", err)
	}

	s.logger.Info("Schema updated",
		zap.String("schema_id", schema.ID.String()),
		zap.String("name", schema.Name))
	return nil
}

func (s *schemaService) DeleteSchema(ctx context.Context, schemaID uuid.UUID) error {
	// Collect the source IDs first so their cache entries can be dropped
	// after the cascade commits.
	sources, err := s.sourceRepo.ListBySchema(ctx, schemaID)
	if err != nil {
		return fmt.Errorf("failed to list sources for schema: %w", err)
	}

	if err := s.schemaRepo.Delete(ctx, schemaID); err != nil {
		return fmt.Errorf("failed to delete schema: %w", err)
	}

	sourceIDs := make([]uuid.UUID, len(sources))
	for i, source := range sources {
		sourceIDs[i] = source.ID
	}
	s.cache.Invalidate(ctx, sourceIDs...)

	s.logger.Info("Schema deleted",
		zap.String("schema_id", schemaID.String()),
		zap.Int("cascaded_sources", len(sources)))
	return nil
}

func (s *schemaService) GetSchema(ctx context.Context, schemaID uuid.UUID) (*models.DatasetSchema, error) {
	schema, err := s.schemaRepo.GetByID(ctx, schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	return schema, nil
}

func (s *schemaService) ListSchemas(ctx context.Context) ([]*models.DatasetSchema, error) {
	schemas, err := s.schemaRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	return schemas, nil
}

func (s *schemaService) AddField(ctx context.Context, schemaID uuid.UUID, field models.FieldDefinition) (*models.DatasetSchema, error) {
	schema, err := s.schemaRepo.GetByID(ctx, schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	if schema == nil {
		return nil, apperrors.ErrSchemaNotFound
	}

	if field.ID == "" {
		field.ID = models.FieldID(field.Name)
	}
	taken := make(map[string]bool, len(schema.Fields))
	for _, id := range schema.FieldIDs() {
		taken[id] = true
	}
	field.ID = uniqueFieldID(field.ID, taken)
	schema.Fields = append(schema.Fields, field)

	if err := validateSchema(schema); err != nil {
		return nil, err
	}

	if err := s.schemaRepo.Update(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to add field: %w", err)
	}

	s.logger.Info("Field added",
		zap.String("schema_id", schemaID.String()),
		zap.String("field_id", field.ID),
		zap.String("type", string(field.Type)))
	return schema, nil
}

func (s *schemaService) UpdateField(ctx context.Context, schemaID uuid.UUID, fieldID string, field models.FieldDefinition) (*models.DatasetSchema, error) {
	schema, err := s.schemaRepo.GetByID(ctx, schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	if schema == nil {
		return nil, apperrors.ErrSchemaNotFound
	}

	existing := schema.FieldByID(fieldID)
	if existing == nil {
		return nil, fmt.Errorf("field %q: %w", fieldID, apperrors.ErrNotFound)
	}

	if field.Type != existing.Type {
		locked, err := s.schemaHasData(ctx, schemaID)
		if err != nil {
			return nil, err
		}
		if locked {
			return nil, apperrors.ErrTypeLocked
		}
	}

	// The field keeps its ID; formulas and stored rows reference it.
	field.ID = fieldID
	*existing = field

	if err := validateSchema(schema); err != nil {
		return nil, err
	}

	if err := s.schemaRepo.Update(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to update field: %w", err)
	}

	s.logger.Info("Field updated",
		zap.String("schema_id", schemaID.String()),
		zap.String("field_id", fieldID))
	return schema, nil
}

func (s *schemaService) RemoveField(ctx context.Context, schemaID uuid.UUID, fieldID string) (*models.DatasetSchema, error) {
	schema, err := s.schemaRepo.GetByID(ctx, schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	if schema == nil {
		return nil, apperrors.ErrSchemaNotFound
	}

	kept := make([]models.FieldDefinition, 0, len(schema.Fields))
	found := false
	for _, f := range schema.Fields {
		if f.ID == fieldID {
			found = true
			continue
		}
		kept = append(kept, f)
	}
	if !found {
		return nil, fmt.Errorf("field %q: %w", fieldID, apperrors.ErrNotFound)
	}
	schema.Fields = kept
	if schema.PrimaryKey == fieldID {
		schema.PrimaryKey = ""
	}

	if err := s.schemaRepo.Update(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to remove field: %w", err)
	}

	s.logger.Info("Field removed",
		zap.String("schema_id", schemaID.String()),
		zap.String("field_id", fieldID))
	return schema, nil
}

func (s *schemaService) ExportSchema(ctx context.Context, schemaID uuid.UUID) (*models.SchemaExport, error) {
	schema, err := s.schemaRepo.GetByID(ctx, schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	if schema == nil {
		return nil, apperrors.ErrSchemaNotFound
	}

	return &models.SchemaExport{
		Version:    models.SchemaExportVersion,
		ExportedAt: time.Now().UTC(),
		Schema:     *schema,
	}, nil
}

func (s *schemaService) ImportSchema(ctx context.Context, export *models.SchemaExport) (*models.DatasetSchema, error) {
	if export == nil {
		return nil, fmt.Errorf("%w: export document is required", apperrors.ErrValidation)
	}
	if export.Version != models.SchemaExportVersion {
		return nil, fmt.Errorf("%w: unsupported schema export version %q", apperrors.ErrValidation, export.Version)
	}

	// The document's identity and counters never survive the import; the
	// schema is recreated from its definition alone.
	schema := export.Schema
	schema.ID = uuid.Nil
	schema.RecordCount = 0
	schema.CreatedAt = time.Time{}
	schema.UpdatedAt = time.Time{}

	if err := s.CreateSchema(ctx, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// checkTypeLock rejects type changes to fields that already have rows
// stored against them.
func (s *schemaService) checkTypeLock(ctx context.Context, existing, updated *models.DatasetSchema) error {
	changed := false
	for _, field := range existing.Fields {
		next := updated.FieldByID(field.ID)
		if next != nil && next.Type != field.Type {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}

	locked, err := s.schemaHasData(ctx, existing.ID)
	if err != nil {
		return err
	}
	if locked {
		return apperrors.ErrTypeLocked
	}
	return nil
}

func (s *schemaService) schemaHasData(ctx context.Context, schemaID uuid.UUID) (bool, error) {
	count, err := s.datasetRepo.CountBySchema(ctx, schemaID)
	if err != nil {
		return false, fmt.Errorf("failed to count dataset rows: %w", err)
	}
	return count > 0, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

// ensureFieldIDs mints IDs for fields that arrive without one and makes
// them unique within the schema.
func ensureFieldIDs(schema *models.DatasetSchema) {
	taken := make(map[string]bool)
	for _, f := range schema.Fields {
		if f.ID != "" {
			taken[f.ID] = true
		}
	}
	for i := range schema.Fields {
		if schema.Fields[i].ID != "" {
			continue
		}
		id := uniqueFieldID(models.FieldID(schema.Fields[i].Name), taken)
		schema.Fields[i].ID = id
		taken[id] = true
	}
}

// uniqueFieldID suffixes an ID with a counter until it is free.
func uniqueFieldID(id string, taken map[string]bool) string {
	if !taken[id] {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", id, n)
		if !taken[candidate] {
			return candidate
		}
	}
}

func validateSchema(schema *models.DatasetSchema) error {
	if schema.Name == "" {
		return fmt.Errorf("%w: schema name is required", apperrors.ErrValidation)
	}

	seen := make(map[string]bool)
	for _, field := range schema.Fields {
		if field.Name == "" {
			return fmt.Errorf("%w: field name is required", apperrors.ErrValidation)
		}
		if !models.IsValidFieldType(field.Type) {
			return fmt.Errorf("%w: field %q has invalid type %q", apperrors.ErrValidation, field.Name, field.Type)
		}
		if seen[field.ID] {
			return fmt.Errorf("%w: duplicate field ID %q", apperrors.ErrValidation, field.ID)
		}
		seen[field.ID] = true

		if field.Type == models.FieldTypeEnum && len(field.EnumValues) == 0 {
			return fmt.Errorf("%w: enum field %q requires enum values", apperrors.ErrValidation, field.Name)
		}
		if field.Min != nil && field.Max != nil && *field.Min > *field.Max {
			return fmt.Errorf("%w: field %q has min greater than max", apperrors.ErrValidation, field.Name)
		}
		if field.DefaultAggregation != "" && !models.IsValidAggregation(field.DefaultAggregation) {
			return fmt.Errorf("%w: field %q has invalid aggregation %q", apperrors.ErrValidation, field.Name, field.DefaultAggregation)
		}
	}

	if schema.PrimaryKey != "" && !seen[schema.PrimaryKey] {
		return fmt.Errorf("%w: primary key %q does not match any field", apperrors.ErrValidation, schema.PrimaryKey)
	}
	return nil
}
