package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/models"
)

const datasetCacheKeyPrefix = "merchlens:dataset:"

// DatasetCache is a best-effort read cache for datasets in front of the
// JSONB store. A nil client disables it entirely; every method is safe to
// call in that state. Cache failures are logged and swallowed, never
// surfaced, so Redis going away degrades reads to the database.
type DatasetCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDatasetCache creates a dataset cache. Pass a nil client to disable
// caching.
func NewDatasetCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *DatasetCache {
	return &DatasetCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("dataset-cache"),
	}
}

// Get returns the cached dataset for a source, if present.
func (c *DatasetCache) Get(ctx context.Context, sourceID uuid.UUID) (*models.CustomDataset, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	payload, err := c.client.Get(ctx, datasetCacheKey(sourceID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Dataset cache read failed",
				zap.String("source_id", sourceID.String()),
				zap.Error(err))
		}
		return nil, false
	}

	var dataset models.CustomDataset
	if err := json.Unmarshal(payload, &dataset); err != nil {
		c.logger.Warn("Dataset cache entry corrupt, dropping",
			zap.String("source_id", sourceID.String()),
			zap.Error(err))
		c.Invalidate(ctx, sourceID)
		return nil, false
	}

	return &dataset, true
}

// Set stores a dataset under its source ID.
func (c *DatasetCache) Set(ctx context.Context, dataset *models.CustomDataset) {
	if c == nil || c.client == nil || dataset == nil {
		return
	}

	payload, err := json.Marshal(dataset)
	if err != nil {
		c.logger.Warn("Failed to marshal dataset for cache",
			zap.String("source_id", dataset.SourceID.String()),
			zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, datasetCacheKey(dataset.SourceID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("Dataset cache write failed",
			zap.String("source_id", dataset.SourceID.String()),
			zap.Error(err))
	}
}

// Invalidate drops the cache entries for the given sources. Called after
// imports, dataset deletes, and cascade deletes.
func (c *DatasetCache) Invalidate(ctx context.Context, sourceIDs ...uuid.UUID) {
	if c == nil || c.client == nil || len(sourceIDs) == 0 {
		return
	}

	keys := make([]string, len(sourceIDs))
	for i, id := range sourceIDs {
		keys[i] = datasetCacheKey(id)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Dataset cache invalidation failed",
			zap.Int("keys", len(keys)),
			zap.Error(err))
	}
}

func datasetCacheKey(sourceID uuid.UUID) string {
	return datasetCacheKeyPrefix + sourceID.String()
}
