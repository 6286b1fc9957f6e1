package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/models"
)

func TestDatasetCache_DisabledWithoutClient(t *testing.T) {
	cache := NewDatasetCache(nil, 0, zap.NewNop())
	sourceID := uuid.New()

	dataset, ok := cache.Get(context.Background(), sourceID)
	assert.False(t, ok)
	assert.Nil(t, dataset)

	// Writes and invalidations are no-ops, not panics.
	cache.Set(context.Background(), &models.CustomDataset{SourceID: sourceID})
	cache.Invalidate(context.Background(), sourceID)
}

func TestDatasetCache_NilReceiver(t *testing.T) {
	var cache *DatasetCache

	dataset, ok := cache.Get(context.Background(), uuid.New())
	assert.False(t, ok)
	assert.Nil(t, dataset)

	cache.Set(context.Background(), &models.CustomDataset{})
	cache.Invalidate(context.Background(), uuid.New())
}
