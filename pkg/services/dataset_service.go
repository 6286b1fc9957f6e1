package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/aggregate"
	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/fields"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
	"github.com/merchlens-io/merchlens-engine/pkg/repositories"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// DatasetQuery selects a page of rows. Filters are field-to-value equality
// checks; numeric values compare numerically, everything else by string
// form.
type DatasetQuery struct {
	Page      int
	PageSize  int
	SortField string
	SortDesc  bool
	Filters   map[string]any
}

// DatasetPage is one page of query results.
type DatasetPage struct {
	Rows     []models.Row `json:"rows"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// ChartSeries is a grouped aggregation ready for plotting: one label and
// one value per group, in first-seen row order.
type ChartSeries struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// DatasetService reads and shapes stored datasets.
type DatasetService interface {
	// GetDataset returns the dataset for a source, or nil if the source
	// has never imported.
	GetDataset(ctx context.Context, sourceID uuid.UUID) (*models.CustomDataset, error)

	// QueryDataset filters, sorts, and paginates a dataset.
	QueryDataset(ctx context.Context, sourceID uuid.UUID, query DatasetQuery) (*DatasetPage, error)

	// AggregateField reduces one field across the dataset. An empty
	// aggregation falls back to the field's default, then to sum.
	AggregateField(ctx context.Context, sourceID uuid.UUID, fieldID string, agg models.Aggregation) (float64, error)

	// ChartData groups the dataset by one field and aggregates another
	// within each group.
	ChartData(ctx context.Context, sourceID uuid.UUID, xField, yField string, agg models.Aggregation) (*ChartSeries, error)

	// DeleteDataset removes a source's dataset, leaving the source in
	// place.
	DeleteDataset(ctx context.Context, sourceID uuid.UUID) error
}

type datasetService struct {
	datasetRepo repositories.DatasetRepository
	schemaRepo  repositories.SchemaRepository
	cache       *DatasetCache
	logger      *zap.Logger
}

// NewDatasetService creates a new dataset service.
func NewDatasetService(
	datasetRepo repositories.DatasetRepository,
	schemaRepo repositories.SchemaRepository,
	cache *DatasetCache,
	logger *zap.Logger,
) DatasetService {
	return &datasetService{
		datasetRepo: datasetRepo,
		schemaRepo:  schemaRepo,
		cache:       cache,
		logger:      logger.Named("dataset-service"),
	}
}

var _ DatasetService = (*datasetService)(nil)

func (s *datasetService) GetDataset(ctx context.Context, sourceID uuid.UUID) (*models.CustomDataset, error) {
	if dataset, ok := s.cache.Get(ctx, sourceID); ok {
		return dataset, nil
	}

	dataset, err := s.datasetRepo.GetBySource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	if dataset != nil {
		s.cache.Set(ctx, dataset)
	}
	return dataset, nil
}

func (s *datasetService) QueryDataset(ctx context.Context, sourceID uuid.UUID, query DatasetQuery) (*DatasetPage, error) {
	dataset, schema, err := s.loadDataset(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	rows := dataset.Data
	if len(query.Filters) > 0 {
		rows = filterRows(rows, query.Filters)
	}

	if query.SortField != "" {
		// Sorting mutates order, so work on a copy once filters no longer
		// share the backing array with the cached dataset.
		if len(query.Filters) == 0 {
			rows = append([]models.Row(nil), rows...)
		}
		sortRows(rows, query.SortField, fieldTypeOf(schema, query.SortField), query.SortDesc)
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total := len(rows)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &DatasetPage{
		Rows:     rows[start:end],
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *datasetService) AggregateField(ctx context.Context, sourceID uuid.UUID, fieldID string, agg models.Aggregation) (float64, error) {
	dataset, schema, err := s.loadDataset(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	resolved, err := resolveAggregation(schema, fieldID, agg)
	if err != nil {
		return 0, err
	}

	values := make([]any, len(dataset.Data))
	for i, row := range dataset.Data {
		values[i] = row[fieldID]
	}
	return aggregate.Apply(values, resolved), nil
}

func (s *datasetService) ChartData(ctx context.Context, sourceID uuid.UUID, xField, yField string, agg models.Aggregation) (*ChartSeries, error) {
	dataset, schema, err := s.loadDataset(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	resolved, err := resolveAggregation(schema, yField, agg)
	if err != nil {
		return nil, err
	}

	xDef := schema.FieldByID(xField)

	var labels []string
	groups := make(map[string][]any)
	for _, row := range dataset.Data {
		label := groupLabel(row[xField], xDef)
		if _, ok := groups[label]; !ok {
			labels = append(labels, label)
		}
		groups[label] = append(groups[label], row[yField])
	}

	values := make([]float64, len(labels))
	for i, label := range labels {
		values[i] = aggregate.Apply(groups[label], resolved)
	}

	return &ChartSeries{Labels: labels, Values: values}, nil
}

func (s *datasetService) DeleteDataset(ctx context.Context, sourceID uuid.UUID) error {
	dataset, err := s.datasetRepo.GetBySource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to get dataset: %w", err)
	}
	if dataset == nil {
		return apperrors.ErrNotFound
	}

	if err := s.datasetRepo.DeleteBySource(ctx, sourceID, dataset.SchemaID); err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}

	s.cache.Invalidate(ctx, sourceID)

	s.logger.Info("Dataset deleted",
		zap.String("source_id", sourceID.String()),
		zap.Int("rows", len(dataset.Data)))
	return nil
}

// loadDataset fetches a dataset plus its schema, failing with not-found
// sentinels when either is missing.
func (s *datasetService) loadDataset(ctx context.Context, sourceID uuid.UUID) (*models.CustomDataset, *models.DatasetSchema, error) {
	dataset, err := s.GetDataset(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	if dataset == nil {
		return nil, nil, apperrors.ErrNotFound
	}

	schema, err := s.schemaRepo.GetByID(ctx, dataset.SchemaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schema: %w", err)
	}
	if schema == nil {
		return nil, nil, apperrors.ErrSchemaNotFound
	}
	return dataset, schema, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func resolveAggregation(schema *models.DatasetSchema, fieldID string, requested models.Aggregation) (models.Aggregation, error) {
	if requested != "" {
		if !models.IsValidAggregation(requested) {
			return "", fmt.Errorf("%w: invalid aggregation %q", apperrors.ErrValidation, requested)
		}
		return requested, nil
	}
	if field := schema.FieldByID(fieldID); field != nil && field.DefaultAggregation != "" {
		return field.DefaultAggregation, nil
	}
	return models.AggregationSum, nil
}

func filterRows(rows []models.Row, filters map[string]any) []models.Row {
	matched := make([]models.Row, 0, len(rows))
	for _, row := range rows {
		if rowMatches(row, filters) {
			matched = append(matched, row)
		}
	}
	return matched
}

func rowMatches(row models.Row, filters map[string]any) bool {
	for fieldID, want := range filters {
		if !valuesEqual(row[fieldID], want) {
			return false
		}
	}
	return true
}

// valuesEqual compares loosely so a filter of "10" matches a stored 10.
func valuesEqual(a, b any) bool {
	na, aok := fields.ToNumber(a)
	nb, bok := fields.ToNumber(b)
	if aok && bok {
		return na == nb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func sortRows(rows []models.Row, fieldID string, fieldType models.FieldType, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			i, j = j, i
		}
		return compareValues(rows[i][fieldID], rows[j][fieldID], fieldType) < 0
	})
}

// compareValues orders two cell values. Absent values sort before present
// ones; numeric and temporal fields compare by value, the rest by string
// form.
func compareValues(a, b any, fieldType models.FieldType) int {
	aAbsent, bAbsent := fields.IsAbsent(a), fields.IsAbsent(b)
	switch {
	case aAbsent && bAbsent:
		return 0
	case aAbsent:
		return -1
	case bAbsent:
		return 1
	}

	if fieldType.IsNumeric() {
		na, aok := fields.ToNumber(a)
		nb, bok := fields.ToNumber(b)
		if aok && bok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}

	if fieldType == models.FieldTypeDate || fieldType == models.FieldTypeDatetime {
		ta, aok := fields.ToTime(a)
		tb, bok := fields.ToTime(b)
		if aok && bok {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	}

	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func fieldTypeOf(schema *models.DatasetSchema, fieldID string) models.FieldType {
	if field := schema.FieldByID(fieldID); field != nil {
		return field.Type
	}
	return models.FieldTypeString
}

func groupLabel(value any, def *models.FieldDefinition) string {
	if def != nil {
		return fields.Format(value, *def)
	}
	if fields.IsAbsent(value) {
		return "-"
	}
	return fmt.Sprintf("%v", value)
}
