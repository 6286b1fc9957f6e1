//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
	"github.com/merchlens-io/merchlens-engine/pkg/testhelpers"
)

// metricTestContext holds all dependencies for metric repository integration tests.
type metricTestContext struct {
	t      *testing.T
	testDB *testhelpers.TestDB
	repo   MetricRepository
}

// setupMetricTest creates a test context with a real database.
func setupMetricTest(t *testing.T) *metricTestContext {
	t.Helper()

	testDB := testhelpers.GetTestDB(t)

	return &metricTestContext{
		t:      t,
		testDB: testDB,
		repo:   NewMetricRepository(testDB.DB),
	}
}

// cleanup removes all metrics. Metric names are globally unique, so each
// test starts from an empty table.
func (tc *metricTestContext) cleanup() {
	tc.t.Helper()

	ctx := context.Background()
	if _, err := tc.testDB.DB.Exec(ctx, "DELETE FROM engine_custom_metrics"); err != nil {
		tc.t.Fatalf("Failed to cleanup metrics: %v", err)
	}
}

// createTestMetric creates a metric and returns it.
func (tc *metricTestContext) createTestMetric(ctx context.Context, name, formula string, deps []string) *models.CustomMetric {
	tc.t.Helper()

	metric := &models.CustomMetric{
		Name:         name,
		Formula:      formula,
		Dependencies: deps,
		MetricType:   models.FieldTypeNumber,
		Aggregation:  models.AggregationSum,
	}
	if err := tc.repo.Create(ctx, metric); err != nil {
		tc.t.Fatalf("Failed to create test metric: %v", err)
	}
	return metric
}

// ============================================================================
// Create Tests
// ============================================================================

func TestMetricRepository_Create_Success(t *testing.T) {
	tc := setupMetricTest(t)
	tc.cleanup()

	ctx := context.Background()

	metric := &models.CustomMetric{
		Name:          "Profit Margin",
		Formula:       "(revenue - cost) / revenue * 100",
		Dependencies:  []string{"revenue", "cost"},
		MetricType:    models.FieldTypePercentage,
		DisplayFormat: "0.0%",
		Aggregation:   models.AggregationAvg,
	}

	err := tc.repo.Create(ctx, metric)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Verify ID was assigned
	if metric.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}

	// Verify timestamps were set
	if metric.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if metric.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}

	// Verify data was persisted
	retrieved, err := tc.repo.GetByID(ctx, metric.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if retrieved == nil {
		t.Fatal("expected metric to be persisted")
	}

	if retrieved.Name != "Profit Margin" {
		t.Errorf("expected Name 'Profit Margin', got %q", retrieved.Name)
	}
	if retrieved.Formula != "(revenue - cost) / revenue * 100" {
		t.Errorf("unexpected Formula %q", retrieved.Formula)
	}
	if len(retrieved.Dependencies) != 2 || retrieved.Dependencies[0] != "revenue" || retrieved.Dependencies[1] != "cost" {
		t.Errorf("dependencies did not survive the round trip: %v", retrieved.Dependencies)
	}
	if retrieved.MetricType != models.FieldTypePercentage {
		t.Errorf("expected MetricType %q, got %q", models.FieldTypePercentage, retrieved.MetricType)
	}
	if retrieved.DisplayFormat != "0.0%" {
		t.Errorf("expected DisplayFormat '0.0%%', got %q", retrieved.DisplayFormat)
	}
	if retrieved.Aggregation != models.AggregationAvg {
		t.Errorf("expected Aggregation %q, got %q", models.AggregationAvg, retrieved.Aggregation)
	}
}

func TestMetricRepository_Create_DuplicateName(t *testing.T) {
	tc := setupMetricTest(t)
	tc.cleanup()

	ctx := context.Background()

	tc.createTestMetric(ctx, "Duplicate Metric", "revenue * 2", []string{"revenue"})

	second := &models.CustomMetric{
		Name:        "Duplicate Metric",
		Formula:     "revenue * 3",
		MetricType:  models.FieldTypeNumber,
		Aggregation: models.AggregationSum,
	}
	err := tc.repo.Create(ctx, second)
	if err == nil {
		t.Fatal("expected error when creating metric with duplicate name")
	}

	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestMetricRepository_Create_NoDependencies(t *testing.T) {
	tc := setupMetricTest(t)
	tc.cleanup()

	ctx := context.Background()

	metric := tc.createTestMetric(ctx, "Constant Metric", "42", nil)

	retrieved, err := tc.repo.GetByID(ctx, metric.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if len(retrieved.Dependencies) != 0 {
		t.Errorf("expected no dependencies, got %v", retrieved.Dependencies)
	}
}

// ============================================================================
// GetByID Tests
// ============================================================================

func TestMetricRepository_GetByID_NotFound(t *testing.T) {
	tc := setupMetricTest(t)
	tc.cleanup()

	ctx := context.Background()

	retrieved, err := tc.repo.GetByID(ctx, uuid.New())
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if retrieved != nil {
		t.Errorf("expected nil for non-existent metric, got %+v", retrieved)
	}
}

// ============================================================================
// Update Tests
// ============================================================================

func TestMetricRepository_Update_Success(t *testing.T) {
	tc := setupMetricTest(t)
	tc.cleanup()

	ctx := context.Background()

	metric := tc.createTestMetric(ctx, "Order Value", "revenue", []string{"revenue"})
	createdAt := metric.CreatedAt

	metric.Formula = "revenue + shipping"
	metric.Dependencies = []string{"revenue", "shipping"}
	metric.Aggregation = models.AggregationAvg

	if err := tc.repo.Update(ctx, metric); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	retrieved, err := tc.repo.GetByID(ctx, metric.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if retrieved.Formula != "revenue + shipping" {
		t.Errorf("expected updated Formula, got %q", retrieved.Formula)
	}
	if len(retrieved.Dependencies) != 2 {
		t.Errorf("expected 2 dependencies, got %v", retrieved.Dependencies)
	}
	if retrieved.Aggregation != models.AggregationAvg {
		t.Errorf("expected Aggregation %q, got %q", models.AggregationAvg, retrieved.Aggregation)
	}
	if !retrieved.CreatedAt.Equal(createdAt) {
		t.Errorf("expected CreatedAt unchanged, got %v (was %v)", retrieved.CreatedAt, createdAt)
	}
}

func TestMetricRepository_Update_NotFound(t *testing.T) {
	tc := setupMetricTest(t)
	tc.cleanup()

	ctx := context.Background()

	metric := &models.CustomMetric{
		ID:          uuid.New(),
		Name:        "Ghost Metric",
		Formula:     "1",
		MetricType:  models.FieldTypeNumber,
		Aggregation: models.AggregationSum,
	}
	err := tc.repo.Update(ctx, metric)
	if err == nil {
		t.Fatal("expected error when updating non-existent metric")
	}

	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMetricRepository_Update_DuplicateName(t *testing.T) {
	tc := setupMetricTest(t)
	tc.cleanup()

	ctx := context.Background()

	tc.createTestMetric(ctx, "Taken Metric", "revenue", []string{"revenue"})
	other := tc.createTestMetric(ctx, "Other Metric", "cost", []string{"cost"})

	other.Name = "Taken Metric"
	err := tc.repo.Update(ctx, other)
	if err == nil {
		t.Fatal("expected error when renaming onto an existing name")
	}

	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

// ============================================================================
// Delete Tests
// ============================================================================

func TestMetricRepository_Delete_Success(t *testing.T) {
	tc := setupMetricTest(t)
	tc.cleanup()

	ctx := context.Background()

	metric := tc.createTestMetric(ctx, "To Delete", "revenue", []string{"revenue"})

	if err := tc.repo.Delete(ctx, metric.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	retrieved, err := tc.repo.GetByID(ctx, metric.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if retrieved != nil {
		t.Errorf("expected metric to be deleted, got %+v", retrieved)
	}
}

func TestMetricRepository_Delete_NotFound(t *testing.T) {
	tc := setupMetricTest(t)
	tc.cleanup()

	ctx := context.Background()

	err := tc.repo.Delete(ctx, uuid.New())
	if err == nil {
		t.Fatal("expected error when deleting non-existent metric")
	}

	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ============================================================================
// List Tests
// ============================================================================

func TestMetricRepository_List_Empty(t *testing.T) {
	tc := setupMetricTest(t)
	tc.cleanup()

	ctx := context.Background()

	metrics, err := tc.repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(metrics) != 0 {
		t.Errorf("expected 0 metrics, got %d", len(metrics))
	}
}

func TestMetricRepository_List_OrderedByName(t *testing.T) {
	tc := setupMetricTest(t)
	tc.cleanup()

	ctx := context.Background()

	tc.createTestMetric(ctx, "Total Revenue", "revenue", []string{"revenue"})
	tc.createTestMetric(ctx, "Average Basket", "revenue / orders", []string{"revenue", "orders"})

	metrics, err := tc.repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(metrics) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(metrics))
	}
	if metrics[0].Name != "Average Basket" || metrics[1].Name != "Total Revenue" {
		t.Errorf("expected metrics ordered by name, got %q, %q", metrics[0].Name, metrics[1].Name)
	}
}
