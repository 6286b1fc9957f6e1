package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
	"github.com/merchlens-io/merchlens-engine/pkg/repositories"
)

// SourceService manages data sources attached to schemas.
type SourceService interface {
	// CreateSource validates and persists a new source. Mappings must
	// target fields that exist on the schema.
	CreateSource(ctx context.Context, source *models.DataSource) error

	// UpdateSource validates and persists changes to an existing source.
	UpdateSource(ctx context.Context, source *models.DataSource) error

	// DeleteSource removes a source together with its dataset.
	DeleteSource(ctx context.Context, sourceID uuid.UUID) error

	// GetSource returns a source by ID, or nil if it does not exist.
	GetSource(ctx context.Context, sourceID uuid.UUID) (*models.DataSource, error)

	// ListSources returns all sources.
	ListSources(ctx context.Context) ([]*models.DataSource, error)

	// ListSourcesBySchema returns the sources attached to one schema.
	ListSourcesBySchema(ctx context.Context, schemaID uuid.UUID) ([]*models.DataSource, error)
}

type sourceService struct {
	sourceRepo repositories.SourceRepository
	schemaRepo repositories.SchemaRepository
	cache      *DatasetCache
	logger     *zap.Logger
}

// NewSourceService creates a new source service.
func NewSourceService(
	sourceRepo repositories.SourceRepository,
	schemaRepo repositories.SchemaRepository,
	cache *DatasetCache,
	logger *zap.Logger,
) SourceService {
	return &sourceService{
		sourceRepo: sourceRepo,
		schemaRepo: schemaRepo,
		cache:      cache,
		logger:     logger.Named("source-service"),
	}
}

var _ SourceService = (*sourceService)(nil)

func (s *sourceService) CreateSource(ctx context.Context, source *models.DataSource) error {
	if err := s.validateSource(ctx, source); err != nil {
		return err
	}

	if err := s.sourceRepo.Create(ctx, source); err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	s.logger.Info("Source created",
		zap.String("source_id", source.ID.String()),
		zap.String("schema_id", source.SchemaID.String()),
		zap.String("type", source.SourceType))
	return nil
}

func (s *sourceService) UpdateSource(ctx context.Context, source *models.DataSource) error {
	if err := s.validateSource(ctx, source); err != nil {
		return err
	}

	if err := s.sourceRepo.Update(ctx, source); err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	s.logger.Info("Source updated",
		zap.String("source_id", source.ID.String()),
		zap.String("name", source.Name))
	return nil
}

func (s *sourceService) DeleteSource(ctx context.Context, sourceID uuid.UUID) error {
	if err := s.sourceRepo.Delete(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	s.cache.Invalidate(ctx, sourceID)

	s.logger.Info("Source deleted", zap.String("source_id", sourceID.String()))
	return nil
}

func (s *sourceService) GetSource(ctx context.Context, sourceID uuid.UUID) (*models.DataSource, error) {
	source, err := s.sourceRepo.GetByID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return source, nil
}

func (s *sourceService) ListSources(ctx context.Context) ([]*models.DataSource, error) {
	sources, err := s.sourceRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

func (s *sourceService) ListSourcesBySchema(ctx context.Context, schemaID uuid.UUID) ([]*models.DataSource, error) {
	sources, err := s.sourceRepo.ListBySchema(ctx, schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources for schema: %w", err)
	}
	return sources, nil
}

func (s *sourceService) validateSource(ctx context.Context, source *models.DataSource) error {
	if source == nil {
		return fmt.Errorf("%w: source is required", apperrors.ErrValidation)
	}
	if source.Name == "" {
		return fmt.Errorf("%w: source name is required", apperrors.ErrValidation)
	}
	if !models.IsValidSourceType(source.SourceType) {
		return fmt.Errorf("%w: invalid source type %q", apperrors.ErrValidation, source.SourceType)
	}

	schema, err := s.schemaRepo.GetByID(ctx, source.SchemaID)
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	if schema == nil {
		return apperrors.ErrSchemaNotFound
	}

	fieldIDs := make(map[string]bool, len(schema.Fields))
	for _, id := range schema.FieldIDs() {
		fieldIDs[id] = true
	}
	for _, mapping := range source.Mappings {
		if mapping.SourceColumn == "" {
			return fmt.Errorf("%w: mapping source column is required", apperrors.ErrValidation)
		}
		if !fieldIDs[mapping.TargetField] {
			return fmt.Errorf("%w: mapping targets unknown field %q", apperrors.ErrValidation, mapping.TargetField)
		}
	}
	return nil
}
