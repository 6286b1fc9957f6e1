package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
	"github.com/merchlens-io/merchlens-engine/pkg/predictor"
	"github.com/merchlens-io/merchlens-engine/pkg/services"
)

// Configurable service mocks shared by the handler tests. Each mock
// returns its configured error first, then its configured result, then a
// synthesized default.

// mockSchemaService implements services.SchemaService for handler tests.
type mockSchemaService struct {
	schema  *models.DatasetSchema
	schemas []*models.DatasetSchema
	export  *models.SchemaExport
	err     error
}

func (m *mockSchemaService) CreateSchema(_ context.Context, schema *models.DatasetSchema) error {
	if m.err != nil {
		return m.err
	}
	schema.ID = uuid.New()
	schema.CreatedAt = time.Now()
	schema.UpdatedAt = time.Now()
	return nil
}

func (m *mockSchemaService) UpdateSchema(_ context.Context, _ *models.DatasetSchema) error {
	return m.err
}

func (m *mockSchemaService) DeleteSchema(_ context.Context, _ uuid.UUID) error {
	return m.err
}

func (m *mockSchemaService) GetSchema(_ context.Context, _ uuid.UUID) (*models.DatasetSchema, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.schema, nil
}

func (m *mockSchemaService) ListSchemas(_ context.Context) ([]*models.DatasetSchema, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.schemas, nil
}

func (m *mockSchemaService) AddField(_ context.Context, schemaID uuid.UUID, field models.FieldDefinition) (*models.DatasetSchema, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.schema != nil {
		return m.schema, nil
	}
	return &models.DatasetSchema{ID: schemaID, Fields: []models.FieldDefinition{field}}, nil
}

func (m *mockSchemaService) UpdateField(_ context.Context, schemaID uuid.UUID, _ string, field models.FieldDefinition) (*models.DatasetSchema, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.schema != nil {
		return m.schema, nil
	}
	return &models.DatasetSchema{ID: schemaID, Fields: []models.FieldDefinition{field}}, nil
}

func (m *mockSchemaService) RemoveField(_ context.Context, schemaID uuid.UUID, _ string) (*models.DatasetSchema, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.schema != nil {
		return m.schema, nil
	}
	return &models.DatasetSchema{ID: schemaID}, nil
}

func (m *mockSchemaService) ExportSchema(_ context.Context, schemaID uuid.UUID) (*models.SchemaExport, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.export != nil {
		return m.export, nil
	}
	return &models.SchemaExport{
		Version:    models.SchemaExportVersion,
		ExportedAt: time.Now().UTC(),
		Schema:     models.DatasetSchema{ID: schemaID, Name: "Exported"},
	}, nil
}

func (m *mockSchemaService) ImportSchema(_ context.Context, export *models.SchemaExport) (*models.DatasetSchema, error) {
	if m.err != nil {
		return nil, m.err
	}
	schema := export.Schema
	schema.ID = uuid.New()
	schema.RecordCount = 0
	return &schema, nil
}

// mockSourceService implements services.SourceService for handler tests.
type mockSourceService struct {
	source  *models.DataSource
	sources []*models.DataSource
	err     error
}

func (m *mockSourceService) CreateSource(_ context.Context, source *models.DataSource) error {
	if m.err != nil {
		return m.err
	}
	source.ID = uuid.New()
	source.Status = models.SourceStatusInactive
	return nil
}

func (m *mockSourceService) UpdateSource(_ context.Context, _ *models.DataSource) error {
	return m.err
}

func (m *mockSourceService) DeleteSource(_ context.Context, _ uuid.UUID) error {
	return m.err
}

func (m *mockSourceService) GetSource(_ context.Context, _ uuid.UUID) (*models.DataSource, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.source, nil
}

func (m *mockSourceService) ListSources(_ context.Context) ([]*models.DataSource, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sources, nil
}

func (m *mockSourceService) ListSourcesBySchema(_ context.Context, _ uuid.UUID) ([]*models.DataSource, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sources, nil
}

// mockImportService implements services.ImportService for handler tests.
// It records the format and contents of the last call so format routing
// can be asserted.
type mockImportService struct {
	dataset      *models.CustomDataset
	result       *models.ImportResult
	err          error
	lastFormat   string
	lastContents string
}

func (m *mockImportService) ImportCSV(_ context.Context, sourceID uuid.UUID, contents string) (*models.CustomDataset, *models.ImportResult, error) {
	return m.record("csv", sourceID, contents)
}

func (m *mockImportService) ImportJSON(_ context.Context, sourceID uuid.UUID, contents string) (*models.CustomDataset, *models.ImportResult, error) {
	return m.record("json", sourceID, contents)
}

func (m *mockImportService) record(format string, sourceID uuid.UUID, contents string) (*models.CustomDataset, *models.ImportResult, error) {
	m.lastFormat = format
	m.lastContents = contents
	if m.err != nil {
		return nil, nil, m.err
	}
	dataset := m.dataset
	if dataset == nil {
		dataset = &models.CustomDataset{SourceID: sourceID}
	}
	result := m.result
	if result == nil {
		result = &models.ImportResult{TotalRows: 1, ImportedRows: 1}
	}
	return dataset, result, nil
}

// mockDatasetService implements services.DatasetService for handler tests.
type mockDatasetService struct {
	dataset   *models.CustomDataset
	page      *services.DatasetPage
	value     float64
	series    *services.ChartSeries
	err       error
	lastQuery services.DatasetQuery
}

func (m *mockDatasetService) GetDataset(_ context.Context, _ uuid.UUID) (*models.CustomDataset, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.dataset, nil
}

func (m *mockDatasetService) QueryDataset(_ context.Context, _ uuid.UUID, query services.DatasetQuery) (*services.DatasetPage, error) {
	m.lastQuery = query
	if m.err != nil {
		return nil, m.err
	}
	if m.page != nil {
		return m.page, nil
	}
	return &services.DatasetPage{Rows: []models.Row{}, Page: 1, PageSize: 50}, nil
}

func (m *mockDatasetService) AggregateField(_ context.Context, _ uuid.UUID, _ string, _ models.Aggregation) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.value, nil
}

func (m *mockDatasetService) ChartData(_ context.Context, _ uuid.UUID, _, _ string, _ models.Aggregation) (*services.ChartSeries, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.series != nil {
		return m.series, nil
	}
	return &services.ChartSeries{}, nil
}

func (m *mockDatasetService) DeleteDataset(_ context.Context, _ uuid.UUID) error {
	return m.err
}

// mockMetricService implements services.MetricService for handler tests.
type mockMetricService struct {
	metric  *models.CustomMetric
	metrics []*models.CustomMetric
	value   *services.MetricValue
	err     error
}

func (m *mockMetricService) CreateMetric(_ context.Context, metric *models.CustomMetric) error {
	if m.err != nil {
		return m.err
	}
	metric.ID = uuid.New()
	return nil
}

func (m *mockMetricService) UpdateMetric(_ context.Context, _ *models.CustomMetric) error {
	return m.err
}

func (m *mockMetricService) DeleteMetric(_ context.Context, _ uuid.UUID) error {
	return m.err
}

func (m *mockMetricService) GetMetric(_ context.Context, _ uuid.UUID) (*models.CustomMetric, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.metric, nil
}

func (m *mockMetricService) ListMetrics(_ context.Context) ([]*models.CustomMetric, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.metrics, nil
}

func (m *mockMetricService) EvaluateMetric(_ context.Context, _ uuid.UUID, _ models.Row) (*services.MetricValue, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.value != nil {
		return m.value, nil
	}
	return &services.MetricValue{Formatted: "-"}, nil
}

// mockTemplateService implements services.TemplateService for handler
// tests.
type mockTemplateService struct {
	templates []services.SchemaTemplate
	schema    *models.DatasetSchema
	err       error
}

func (m *mockTemplateService) ListTemplates() []services.SchemaTemplate {
	return m.templates
}

func (m *mockTemplateService) GetTemplate(slug string) *services.SchemaTemplate {
	for i := range m.templates {
		if m.templates[i].Slug == slug {
			return &m.templates[i]
		}
	}
	return nil
}

func (m *mockTemplateService) InstantiateTemplate(_ context.Context, slug string) (*models.DatasetSchema, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.schema != nil {
		return m.schema, nil
	}
	template := m.GetTemplate(slug)
	if template == nil {
		return nil, fmt.Errorf("template %q: %w", slug, apperrors.ErrNotFound)
	}
	return &models.DatasetSchema{ID: uuid.New(), Name: template.Name}, nil
}

// mockAnalyticsService implements services.AnalyticsService for handler
// tests.
type mockAnalyticsService struct {
	prediction *predictor.ChurnPrediction
	scores     []services.ChurnScore
	err        error
	lastLimit  int
}

func (m *mockAnalyticsService) PredictChurn(_ context.Context, _ predictor.ChurnFeatures) (*predictor.ChurnPrediction, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.prediction != nil {
		return m.prediction, nil
	}
	return &predictor.ChurnPrediction{ChurnRisk: 1, Confidence: 0.5}, nil
}

func (m *mockAnalyticsService) ScoreDataset(_ context.Context, _ uuid.UUID, limit int) ([]services.ChurnScore, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.scores, nil
}
