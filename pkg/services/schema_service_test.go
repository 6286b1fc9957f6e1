package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
)

func newTestSchemaService(schemaRepo *mockSchemaRepo, sourceRepo *mockSourceRepo, datasetRepo *mockDatasetRepo) SchemaService {
	return NewSchemaService(schemaRepo, sourceRepo, datasetRepo,
		NewDatasetCache(nil, 0, zap.NewNop()), zap.NewNop())
}

func floatPtr(f float64) *float64 { return &f }

func customerSchema() *models.DatasetSchema {
	return &models.DatasetSchema{
		Name: "Customers",
		Fields: []models.FieldDefinition{
			{ID: "email", Name: "Email", Type: models.FieldTypeEmail, Required: true, Unique: true},
			{ID: "total_spent", Name: "Total Spent", Type: models.FieldTypeCurrency},
		},
		PrimaryKey: "email",
	}
}

func TestSchemaService_CreateSchema_Valid(t *testing.T) {
	repo := newMockSchemaRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), newMockDatasetRepo())

	schema := customerSchema()
	err := svc.CreateSchema(context.Background(), schema)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, schema.ID)
	assert.Len(t, repo.schemas, 1)
}

func TestSchemaService_CreateSchema_MintsFieldIDs(t *testing.T) {
	repo := newMockSchemaRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), newMockDatasetRepo())

	schema := &models.DatasetSchema{
		Name: "Orders",
		Fields: []models.FieldDefinition{
			{Name: "Order Number", Type: models.FieldTypeString},
			{Name: "Total", Type: models.FieldTypeCurrency},
		},
	}
	require.NoError(t, svc.CreateSchema(context.Background(), schema))

	assert.Equal(t, "order_number", schema.Fields[0].ID)
	assert.Equal(t, "total", schema.Fields[1].ID)
}

func TestSchemaService_CreateSchema_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		schema  *models.DatasetSchema
		message string
	}{
		{
			name:    "missing name",
			schema:  &models.DatasetSchema{},
			message: "schema name is required",
		},
		{
			name: "invalid field type",
			schema: &models.DatasetSchema{
				Name:   "S",
				Fields: []models.FieldDefinition{{ID: "x", Name: "X", Type: "geo_point"}},
			},
			message: "invalid type",
		},
		{
			name: "duplicate field ids",
			schema: &models.DatasetSchema{
				Name: "S",
				Fields: []models.FieldDefinition{
					{ID: "x", Name: "X", Type: models.FieldTypeString},
					{ID: "x", Name: "X2", Type: models.FieldTypeString},
				},
			},
			message: "duplicate field ID",
		},
		{
			name: "enum without values",
			schema: &models.DatasetSchema{
				Name:   "S",
				Fields: []models.FieldDefinition{{ID: "s", Name: "Status", Type: models.FieldTypeEnum}},
			},
			message: "requires enum values",
		},
		{
			name: "min greater than max",
			schema: &models.DatasetSchema{
				Name: "S",
				Fields: []models.FieldDefinition{
					{ID: "n", Name: "N", Type: models.FieldTypeNumber, Min: floatPtr(10), Max: floatPtr(1)},
				},
			},
			message: "min greater than max",
		},
		{
			name: "primary key not a field",
			schema: &models.DatasetSchema{
				Name:       "S",
				Fields:     []models.FieldDefinition{{ID: "x", Name: "X", Type: models.FieldTypeString}},
				PrimaryKey: "missing",
			},
			message: "primary key",
		},
	}

	svc := newTestSchemaService(newMockSchemaRepo(), newMockSourceRepo(), newMockDatasetRepo())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CreateSchema(context.Background(), tt.schema)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestSchemaService_UpdateSchema_NotFound(t *testing.T) {
	svc := newTestSchemaService(newMockSchemaRepo(), newMockSourceRepo(), newMockDatasetRepo())

	schema := customerSchema()
	schema.ID = uuid.New()
	err := svc.UpdateSchema(context.Background(), schema)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSchemaService_UpdateSchema_TypeChangeAllowedWithoutData(t *testing.T) {
	repo := newMockSchemaRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), newMockDatasetRepo())

	schema := customerSchema()
	require.NoError(t, svc.CreateSchema(context.Background(), schema))

	updated := *schema
	updated.Fields = append([]models.FieldDefinition(nil), schema.Fields...)
	updated.Fields[1].Type = models.FieldTypeNumber

	require.NoError(t, svc.UpdateSchema(context.Background(), &updated))
	assert.Equal(t, models.FieldTypeNumber, repo.schemas[schema.ID].Fields[1].Type)
}

func TestSchemaService_UpdateSchema_TypeLockedWithData(t *testing.T) {
	repo := newMockSchemaRepo()
	datasetRepo := newMockDatasetRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), datasetRepo)

	schema := customerSchema()
	require.NoError(t, svc.CreateSchema(context.Background(), schema))

	sourceID := uuid.New()
	datasetRepo.datasets[sourceID] = &models.CustomDataset{
		SourceID: sourceID,
		SchemaID: schema.ID,
		Data:     []models.Row{{"email": "a@b.co"}},
	}

	updated := *schema
	updated.Fields = append([]models.FieldDefinition(nil), schema.Fields...)
	updated.Fields[1].Type = models.FieldTypeNumber

	err := svc.UpdateSchema(context.Background(), &updated)
	assert.ErrorIs(t, err, apperrors.ErrTypeLocked)
}

func TestSchemaService_UpdateSchema_NonTypeChangesPassTypeLock(t *testing.T) {
	repo := newMockSchemaRepo()
	datasetRepo := newMockDatasetRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), datasetRepo)

	schema := customerSchema()
	require.NoError(t, svc.CreateSchema(context.Background(), schema))

	sourceID := uuid.New()
	datasetRepo.datasets[sourceID] = &models.CustomDataset{
		SourceID: sourceID,
		SchemaID: schema.ID,
		Data:     []models.Row{{"email": "a@b.co"}},
	}

	// Renaming and re-describing is fine even with data stored.
	updated := *schema
	updated.Fields = append([]models.FieldDefinition(nil), schema.Fields...)
	updated.Name = "Customer Accounts"
	updated.Fields[1].Name = "Lifetime Spend"

	require.NoError(t, svc.UpdateSchema(context.Background(), &updated))
}

func TestSchemaService_DeleteSchema(t *testing.T) {
	repo := newMockSchemaRepo()
	sourceRepo := newMockSourceRepo()
	svc := newTestSchemaService(repo, sourceRepo, newMockDatasetRepo())

	schema := customerSchema()
	require.NoError(t, svc.CreateSchema(context.Background(), schema))
	sourceRepo.sources[uuid.New()] = &models.DataSource{ID: uuid.New(), SchemaID: schema.ID, Name: "Upload"}

	require.NoError(t, svc.DeleteSchema(context.Background(), schema.ID))
	assert.Empty(t, repo.schemas)
}

func TestSchemaService_GetSchema_MissingIsNil(t *testing.T) {
	svc := newTestSchemaService(newMockSchemaRepo(), newMockSourceRepo(), newMockDatasetRepo())

	schema, err := svc.GetSchema(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, schema)
}

func TestSchemaService_AddField(t *testing.T) {
	repo := newMockSchemaRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), newMockDatasetRepo())

	schema := customerSchema()
	require.NoError(t, svc.CreateSchema(context.Background(), schema))

	updated, err := svc.AddField(context.Background(), schema.ID,
		models.FieldDefinition{Name: "Segment", Type: models.FieldTypeEnum, EnumValues: []string{"new", "vip"}})
	require.NoError(t, err)

	require.Len(t, updated.Fields, 3)
	assert.Equal(t, "segment", updated.Fields[2].ID)
}

func TestSchemaService_AddField_UniquifiesID(t *testing.T) {
	repo := newMockSchemaRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), newMockDatasetRepo())

	schema := customerSchema()
	require.NoError(t, svc.CreateSchema(context.Background(), schema))

	// "Email" collides with the existing email field ID.
	updated, err := svc.AddField(context.Background(), schema.ID,
		models.FieldDefinition{Name: "Email", Type: models.FieldTypeString})
	require.NoError(t, err)
	assert.Equal(t, "email_2", updated.Fields[2].ID)
}

func TestSchemaService_AddField_SchemaNotFound(t *testing.T) {
	svc := newTestSchemaService(newMockSchemaRepo(), newMockSourceRepo(), newMockDatasetRepo())

	_, err := svc.AddField(context.Background(), uuid.New(),
		models.FieldDefinition{Name: "X", Type: models.FieldTypeString})
	assert.ErrorIs(t, err, apperrors.ErrSchemaNotFound)
}

func TestSchemaService_UpdateField_KeepsID(t *testing.T) {
	repo := newMockSchemaRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), newMockDatasetRepo())

	schema := customerSchema()
	require.NoError(t, svc.CreateSchema(context.Background(), schema))

	updated, err := svc.UpdateField(context.Background(), schema.ID, "total_spent",
		models.FieldDefinition{Name: "Lifetime Spend", Type: models.FieldTypeCurrency})
	require.NoError(t, err)

	field := updated.FieldByID("total_spent")
	require.NotNil(t, field)
	assert.Equal(t, "Lifetime Spend", field.Name)
}

func TestSchemaService_UpdateField_TypeLockedWithData(t *testing.T) {
	repo := newMockSchemaRepo()
	datasetRepo := newMockDatasetRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), datasetRepo)

	schema := customerSchema()
	require.NoError(t, svc.CreateSchema(context.Background(), schema))

	sourceID := uuid.New()
	datasetRepo.datasets[sourceID] = &models.CustomDataset{
		SourceID: sourceID,
		SchemaID: schema.ID,
		Data:     []models.Row{{"email": "a@b.co"}},
	}

	_, err := svc.UpdateField(context.Background(), schema.ID, "total_spent",
		models.FieldDefinition{Name: "Total Spent", Type: models.FieldTypeNumber})
	assert.ErrorIs(t, err, apperrors.ErrTypeLocked)
}

func TestSchemaService_UpdateField_UnknownField(t *testing.T) {
	repo := newMockSchemaRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), newMockDatasetRepo())

	schema := customerSchema()
	require.NoError(t, svc.CreateSchema(context.Background(), schema))

	_, err := svc.UpdateField(context.Background(), schema.ID, "ghost",
		models.FieldDefinition{Name: "Ghost", Type: models.FieldTypeString})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSchemaService_RemoveField_ClearsPrimaryKey(t *testing.T) {
	repo := newMockSchemaRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), newMockDatasetRepo())

	schema := customerSchema()
	require.NoError(t, svc.CreateSchema(context.Background(), schema))

	updated, err := svc.RemoveField(context.Background(), schema.ID, "email")
	require.NoError(t, err)

	assert.Len(t, updated.Fields, 1)
	assert.Empty(t, updated.PrimaryKey)
}

func TestSchemaService_ExportImport_RoundTrip(t *testing.T) {
	repo := newMockSchemaRepo()
	svc := newTestSchemaService(repo, newMockSourceRepo(), newMockDatasetRepo())

	schema := customerSchema()
	schema.RecordCount = 40
	require.NoError(t, svc.CreateSchema(context.Background(), schema))

	export, err := svc.ExportSchema(context.Background(), schema.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SchemaExportVersion, export.Version)
	assert.False(t, export.ExportedAt.IsZero())
	assert.Equal(t, schema.Name, export.Schema.Name)

	imported, err := svc.ImportSchema(context.Background(), export)
	require.NoError(t, err)

	// The imported schema is a fresh object with the same definition.
	assert.NotEqual(t, schema.ID, imported.ID)
	assert.Equal(t, int64(0), imported.RecordCount)
	assert.Equal(t, schema.Name, imported.Name)
	assert.Equal(t, schema.PrimaryKey, imported.PrimaryKey)
	require.Len(t, imported.Fields, len(schema.Fields))
	assert.Equal(t, "email", imported.Fields[0].ID)
	assert.Len(t, repo.schemas, 2)
}

func TestSchemaService_ExportSchema_NotFound(t *testing.T) {
	svc := newTestSchemaService(newMockSchemaRepo(), newMockSourceRepo(), newMockDatasetRepo())

	_, err := svc.ExportSchema(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrSchemaNotFound)
}

func TestSchemaService_ImportSchema_UnsupportedVersion(t *testing.T) {
	svc := newTestSchemaService(newMockSchemaRepo(), newMockSourceRepo(), newMockDatasetRepo())

	_, err := svc.ImportSchema(context.Background(), &models.SchemaExport{
		Version: "99",
		Schema:  *customerSchema(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "version")
}
