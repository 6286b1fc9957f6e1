package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/merchlens-io/merchlens-engine/pkg/models"
	"github.com/merchlens-io/merchlens-engine/pkg/repositories"
)

// In-memory repository mocks shared by the service tests. Each mock keeps
// state in a map and exposes error fields to force failures.

// mockSchemaRepo implements repositories.SchemaRepository.
type mockSchemaRepo struct {
	schemas   map[uuid.UUID]*models.DatasetSchema
	createErr error
	updateErr error
	deleteErr error
	getErr    error
	listErr   error
}

func newMockSchemaRepo() *mockSchemaRepo {
	return &mockSchemaRepo{schemas: make(map[uuid.UUID]*models.DatasetSchema)}
}

func (m *mockSchemaRepo) Create(_ context.Context, schema *models.DatasetSchema) error {
	if m.createErr != nil {
		return m.createErr
	}
	if schema.ID == uuid.Nil {
		schema.ID = uuid.New()
	}
	now := time.Now()
	schema.CreatedAt = now
	schema.UpdatedAt = now
	copied := *schema
	m.schemas[schema.ID] = &copied
	return nil
}

func (m *mockSchemaRepo) Update(_ context.Context, schema *models.DatasetSchema) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	schema.UpdatedAt = time.Now()
	copied := *schema
	m.schemas[schema.ID] = &copied
	return nil
}

func (m *mockSchemaRepo) Delete(_ context.Context, schemaID uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.schemas, schemaID)
	return nil
}

func (m *mockSchemaRepo) List(_ context.Context) ([]*models.DatasetSchema, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*models.DatasetSchema, 0, len(m.schemas))
	for _, s := range m.schemas {
		result = append(result, s)
	}
	return result, nil
}

func (m *mockSchemaRepo) GetByID(_ context.Context, schemaID uuid.UUID) (*models.DatasetSchema, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	schema, ok := m.schemas[schemaID]
	if !ok {
		return nil, nil
	}
	copied := *schema
	copied.Fields = append([]models.FieldDefinition(nil), schema.Fields...)
	return &copied, nil
}

// mockSourceRepo implements repositories.SourceRepository.
type mockSourceRepo struct {
	sources      map[uuid.UUID]*models.DataSource
	createErr    error
	updateErr    error
	deleteErr    error
	getErr       error
	listErr      error
	statusErr    error
	statusCalls  int
	lastStatus   repositories.ImportStatus
	lastStatusID uuid.UUID
}

func newMockSourceRepo() *mockSourceRepo {
	return &mockSourceRepo{sources: make(map[uuid.UUID]*models.DataSource)}
}

func (m *mockSourceRepo) Create(_ context.Context, source *models.DataSource) error {
	if m.createErr != nil {
		return m.createErr
	}
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}
	if source.Status == "" {
		source.Status = models.SourceStatusInactive
	}
	now := time.Now()
	source.CreatedAt = now
	source.UpdatedAt = now
	copied := *source
	m.sources[source.ID] = &copied
	return nil
}

func (m *mockSourceRepo) Update(_ context.Context, source *models.DataSource) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	source.UpdatedAt = time.Now()
	copied := *source
	m.sources[source.ID] = &copied
	return nil
}

func (m *mockSourceRepo) Delete(_ context.Context, sourceID uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.sources, sourceID)
	return nil
}

func (m *mockSourceRepo) List(_ context.Context) ([]*models.DataSource, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*models.DataSource, 0, len(m.sources))
	for _, s := range m.sources {
		result = append(result, s)
	}
	return result, nil
}

func (m *mockSourceRepo) ListBySchema(_ context.Context, schemaID uuid.UUID) ([]*models.DataSource, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.DataSource
	for _, s := range m.sources {
		if s.SchemaID == schemaID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockSourceRepo) GetByID(_ context.Context, sourceID uuid.UUID) (*models.DataSource, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	source, ok := m.sources[sourceID]
	if !ok {
		return nil, nil
	}
	copied := *source
	return &copied, nil
}

func (m *mockSourceRepo) UpdateImportStatus(_ context.Context, sourceID uuid.UUID, status repositories.ImportStatus) error {
	m.statusCalls++
	m.lastStatus = status
	m.lastStatusID = sourceID
	if m.statusErr != nil {
		return m.statusErr
	}
	if source, ok := m.sources[sourceID]; ok {
		source.Status = status.Status
		source.ErrorMessage = status.ErrorMessage
		source.LastImport = status.LastImport
		source.SampleData = status.SampleData
	}
	return nil
}

// mockDatasetRepo implements repositories.DatasetRepository.
type mockDatasetRepo struct {
	datasets  map[uuid.UUID]*models.CustomDataset
	upsertErr error
	deleteErr error
	getErr    error
	countErr  error
}

func newMockDatasetRepo() *mockDatasetRepo {
	return &mockDatasetRepo{datasets: make(map[uuid.UUID]*models.CustomDataset)}
}

func (m *mockDatasetRepo) Upsert(_ context.Context, dataset *models.CustomDataset) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	dataset.UpdatedAt = time.Now()
	copied := *dataset
	m.datasets[dataset.SourceID] = &copied
	return nil
}

func (m *mockDatasetRepo) DeleteBySource(_ context.Context, sourceID, _ uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.datasets, sourceID)
	return nil
}

func (m *mockDatasetRepo) GetBySource(_ context.Context, sourceID uuid.UUID) (*models.CustomDataset, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	dataset, ok := m.datasets[sourceID]
	if !ok {
		return nil, nil
	}
	copied := *dataset
	return &copied, nil
}

func (m *mockDatasetRepo) ListBySchema(_ context.Context, schemaID uuid.UUID) ([]*models.CustomDataset, error) {
	var result []*models.CustomDataset
	for _, d := range m.datasets {
		if d.SchemaID == schemaID {
			result = append(result, d)
		}
	}
	return result, nil
}

func (m *mockDatasetRepo) CountBySchema(_ context.Context, schemaID uuid.UUID) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	count := 0
	for _, d := range m.datasets {
		if d.SchemaID == schemaID {
			count++
		}
	}
	return count, nil
}

// mockMetricRepo implements repositories.MetricRepository.
type mockMetricRepo struct {
	metrics   map[uuid.UUID]*models.CustomMetric
	createErr error
	updateErr error
	deleteErr error
	getErr    error
	listErr   error
}

func newMockMetricRepo() *mockMetricRepo {
	return &mockMetricRepo{metrics: make(map[uuid.UUID]*models.CustomMetric)}
}

func (m *mockMetricRepo) Create(_ context.Context, metric *models.CustomMetric) error {
	if m.createErr != nil {
		return m.createErr
	}
	if metric.ID == uuid.Nil {
		metric.ID = uuid.New()
	}
	now := time.Now()
	metric.CreatedAt = now
	metric.UpdatedAt = now
	copied := *metric
	m.metrics[metric.ID] = &copied
	return nil
}

func (m *mockMetricRepo) Update(_ context.Context, metric *models.CustomMetric) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	metric.UpdatedAt = time.Now()
	copied := *metric
	m.metrics[metric.ID] = &copied
	return nil
}

func (m *mockMetricRepo) Delete(_ context.Context, metricID uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.metrics, metricID)
	return nil
}

func (m *mockMetricRepo) List(_ context.Context) ([]*models.CustomMetric, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*models.CustomMetric, 0, len(m.metrics))
	for _, metric := range m.metrics {
		result = append(result, metric)
	}
	return result, nil
}

func (m *mockMetricRepo) GetByID(_ context.Context, metricID uuid.UUID) (*models.CustomMetric, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	metric, ok := m.metrics[metricID]
	if !ok {
		return nil, nil
	}
	copied := *metric
	return &copied, nil
}
