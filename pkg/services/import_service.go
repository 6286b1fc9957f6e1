package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/fields"
	"github.com/merchlens-io/merchlens-engine/pkg/logging"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
	"github.com/merchlens-io/merchlens-engine/pkg/repositories"
	"github.com/merchlens-io/merchlens-engine/pkg/tabular"
)

// sampleRowCount is how many validated rows are kept on the source as a
// preview of the last import.
const sampleRowCount = 5

// ImportService runs the import pipeline: parse, map, validate, store.
//
// Imports are lenient. Rows that fail validation are dropped silently and
// the rest of the batch goes through; only an unparseable payload aborts
// the import, which then leaves the stored dataset untouched and flags the
// source with an error status. A successful import replaces the source's
// dataset wholesale.
type ImportService interface {
	// ImportCSV imports CSV text into the source's dataset.
	ImportCSV(ctx context.Context, sourceID uuid.UUID, contents string) (*models.CustomDataset, *models.ImportResult, error)

	// ImportJSON imports a JSON array (or single object) into the source's
	// dataset.
	ImportJSON(ctx context.Context, sourceID uuid.UUID, contents string) (*models.CustomDataset, *models.ImportResult, error)
}

type importService struct {
	sourceRepo  repositories.SourceRepository
	schemaRepo  repositories.SchemaRepository
	datasetRepo repositories.DatasetRepository
	cache       *DatasetCache
	locks       sourceLocks
	logger      *zap.Logger
}

// NewImportService creates a new import service.
func NewImportService(
	sourceRepo repositories.SourceRepository,
	schemaRepo repositories.SchemaRepository,
	datasetRepo repositories.DatasetRepository,
	cache *DatasetCache,
	logger *zap.Logger,
) ImportService {
	return &importService{
		sourceRepo:  sourceRepo,
		schemaRepo:  schemaRepo,
		datasetRepo: datasetRepo,
		cache:       cache,
		logger:      logger.Named("import-service"),
	}
}

var _ ImportService = (*importService)(nil)

func (s *importService) ImportCSV(ctx context.Context, sourceID uuid.UUID, contents string) (*models.CustomDataset, *models.ImportResult, error) {
	return s.runImport(ctx, sourceID, "csv", contents, func(text string) ([]map[string]any, error) {
		rows, _, err := tabular.ParseCSV(text)
		return rows, err
	})
}

func (s *importService) ImportJSON(ctx context.Context, sourceID uuid.UUID, contents string) (*models.CustomDataset, *models.ImportResult, error) {
	return s.runImport(ctx, sourceID, "json", contents, tabular.ParseJSONRows)
}

func (s *importService) runImport(ctx context.Context, sourceID uuid.UUID, format, contents string, parse func(string) ([]map[string]any, error)) (*models.CustomDataset, *models.ImportResult, error) {
	// Concurrent imports into the same source are serialized; last writer
	// wins at the dataset level, never a torn mix of two batches.
	unlock := s.locks.lock(sourceID)
	defer unlock()

	start := time.Now()

	source, err := s.sourceRepo.GetByID(ctx, sourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load source: %w", err)
	}
	if source == nil {
		return nil, nil, apperrors.ErrSourceNotFound
	}

	schema, err := s.schemaRepo.GetByID(ctx, source.SchemaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schema: %w", err)
	}
	if schema == nil {
		return nil, nil, apperrors.ErrSchemaNotFound
	}

	rawRows, err := parse(contents)
	if err != nil {
		s.logger.Warn("Import payload unparseable",
			zap.String("source_id", source.ID.String()),
			zap.String("format", format),
			zap.String("payload", logging.SanitizePayload(contents)),
			zap.Error(err))
		s.recordFailure(ctx, source, err)
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrParseFailed, err)
	}

	mapped := applyMappings(rawRows, source.Mappings, schema)
	validRows := s.validateRows(schema, mapped)

	dataset := &models.CustomDataset{
		SourceID: source.ID,
		SchemaID: schema.ID,
		Data:     validRows,
	}
	if err := s.datasetRepo.Upsert(ctx, dataset); err != nil {
		s.recordFailure(ctx, source, fmt.Errorf("failed to store dataset"))
		return nil, nil, fmt.Errorf("failed to store dataset: %w", err)
	}

	now := time.Now().UTC()
	status := repositories.ImportStatus{
		Status:     models.SourceStatusActive,
		LastImport: &now,
		SampleData: sampleRows(validRows),
	}
	if err := s.sourceRepo.UpdateImportStatus(ctx, source.ID, status); err != nil {
		// The dataset is already committed; a stale status line is not
		// worth failing the import over.
		s.logger.Warn("Failed to update source after import",
			zap.String("source_id", source.ID.String()),
			zap.Error(err))
	}

	s.cache.Invalidate(ctx, source.ID)

	result := &models.ImportResult{
		TotalRows:    len(rawRows),
		ImportedRows: len(validRows),
		DroppedRows:  len(rawRows) - len(validRows),
	}

	s.logger.Info("Import completed",
		zap.String("source_id", source.ID.String()),
		zap.String("format", format),
		zap.Int("total_rows", result.TotalRows),
		zap.Int("imported_rows", result.ImportedRows),
		zap.Int("dropped_rows", result.DroppedRows),
		zap.Duration("duration", time.Since(start)))

	return dataset, result, nil
}

// recordFailure flags the source with an error status. The previous
// import's timestamp and sample survive so the source still shows what it
// last held.
func (s *importService) recordFailure(ctx context.Context, source *models.DataSource, cause error) {
	status := repositories.ImportStatus{
		Status:       models.SourceStatusError,
		ErrorMessage: logging.TruncateString(cause.Error(), 500),
		LastImport:   source.LastImport,
		SampleData:   source.SampleData,
	}
	if err := s.sourceRepo.UpdateImportStatus(ctx, source.ID, status); err != nil {
		s.logger.Error("Failed to record import failure",
			zap.String("source_id", source.ID.String()),
			zap.Error(err))
	}
}

// validateRows keeps the rows where every field passes validation.
// Values for unique fields and the primary key must additionally be
// unseen within the batch; later duplicates are dropped.
func (s *importService) validateRows(schema *models.DatasetSchema, rows []models.Row) []models.Row {
	seen := make(map[string]map[string]bool)
	for _, field := range schema.Fields {
		if field.Unique || field.ID == schema.PrimaryKey {
			seen[field.ID] = make(map[string]bool)
		}
	}

	valid := make([]models.Row, 0, len(rows))
rowLoop:
	for i, row := range rows {
		for _, field := range schema.Fields {
			if !fields.Validate(row[field.ID], field) {
				s.logger.Debug("Row dropped by validation",
					zap.Int("row", i),
					zap.String("field_id", field.ID))
				continue rowLoop
			}
		}
		for fieldID, values := range seen {
			value := row[fieldID]
			if fields.IsAbsent(value) {
				continue
			}
			key := dedupKey(value)
			if values[key] {
				s.logger.Debug("Row dropped as duplicate",
					zap.Int("row", i),
					zap.String("field_id", fieldID))
				continue rowLoop
			}
			values[key] = true
		}
		valid = append(valid, row)
	}
	return valid
}

// ============================================================================
// Helper Functions
// ============================================================================

// applyMappings rewrites raw parsed rows into schema-keyed rows. Columns
// without a mapping are dropped. A source with no mappings configured
// falls back to matching column names against field IDs and field names.
func applyMappings(raw []map[string]any, mappings []models.ImportMapping, schema *models.DatasetSchema) []models.Row {
	if len(mappings) == 0 {
		mappings = autoMappings(raw, schema)
	}

	rows := make([]models.Row, len(raw))
	for i, rawRow := range raw {
		row := make(models.Row, len(mappings))
		for _, m := range mappings {
			if value, ok := rawRow[m.SourceColumn]; ok {
				row[m.TargetField] = value
			}
		}
		rows[i] = row
	}
	return rows
}

// autoMappings matches column names to fields when the source has no
// explicit mappings: first by field ID, then by field name ignoring case.
func autoMappings(raw []map[string]any, schema *models.DatasetSchema) []models.ImportMapping {
	columns := make(map[string]bool)
	for _, row := range raw {
		for column := range row {
			columns[column] = true
		}
	}

	byID := make(map[string]bool, len(schema.Fields))
	byName := make(map[string]string, len(schema.Fields))
	for _, field := range schema.Fields {
		byID[field.ID] = true
		byName[strings.ToLower(field.Name)] = field.ID
	}

	mappings := make([]models.ImportMapping, 0, len(columns))
	for column := range columns {
		if byID[column] {
			mappings = append(mappings, models.ImportMapping{SourceColumn: column, TargetField: column})
			continue
		}
		if fieldID, ok := byName[strings.ToLower(column)]; ok {
			mappings = append(mappings, models.ImportMapping{SourceColumn: column, TargetField: fieldID})
		}
	}
	return mappings
}

// dedupKey normalizes a value so 10, 10.0, and "10" collide.
func dedupKey(value any) string {
	if n, ok := fields.ToNumber(value); ok {
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return fmt.Sprintf("%v", value)
}

func sampleRows(rows []models.Row) []models.Row {
	if len(rows) <= sampleRowCount {
		return rows
	}
	return rows[:sampleRowCount]
}

// sourceLocks hands out one mutex per source ID. Entries are never
// removed; the map is bounded by the number of sources.
type sourceLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func (l *sourceLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[uuid.UUID]*sync.Mutex)
	}
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
