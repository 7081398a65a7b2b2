package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ad-tracker/video-catalog-go/internal/metrics"
)

const cacheKeyPrefix = "youtube:metadata:"

// CachedClient memoizes successful lookups in Redis. Cache failures are
// logged and fall through to the wrapped provider.
type CachedClient struct {
	next        MetadataProvider
	redisClient *redis.Client
	ttl         time.Duration
	logger      *slog.Logger
}

// NewCachedClient wraps next with a Redis cache.
func NewCachedClient(next MetadataProvider, redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedClient {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedClient{
		next:        next,
		redisClient: redisClient,
		ttl:         ttl,
		logger:      logger,
	}
}

// FetchMetadata serves from Redis when possible.
func (c *CachedClient) FetchMetadata(ctx context.Context, videoID string) (*Metadata, error) {
	key := cacheKeyPrefix + videoID

	raw, err := c.redisClient.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var meta Metadata
		if jsonErr := json.Unmarshal(raw, &meta); jsonErr == nil {
			metrics.ProviderRequests.WithLabelValues(providerName, metrics.OutcomeCacheHit).Inc()
			return &meta, nil
		}
		c.logger.Warn("discarding corrupt metadata cache entry", "video_id", videoID)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("metadata cache read failed", "video_id", videoID, "error", err)
	}

	meta, err := c.next.FetchMetadata(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if payload, jsonErr := json.Marshal(meta); jsonErr == nil {
		if setErr := c.redisClient.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.Warn("metadata cache write failed", "video_id", videoID, "error", setErr)
		}
	}
	return meta, nil
}
