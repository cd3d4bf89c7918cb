package jobcatalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

const detailsKeyPrefix = "jobcatalog:details:"

// CachedCatalog keeps job details in Redis for ttl. Searches are not cached.
// Redis failures are logged and the lookup goes to the catalog.
type CachedCatalog struct {
	next   Catalog
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCatalog wraps next with a Redis cache.
func NewCachedCatalog(next Catalog, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCatalog{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) SearchJobNumbers(ctx context.Context, part string) ([]string, error) {
	return c.next.SearchJobNumbers(ctx, part)
}

func (c *CachedCatalog) JobDetails(ctx context.Context, jobNumber string) (*models.JobMetadata, error) {
	key := detailsKeyPrefix + jobNumber

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var meta models.JobMetadata
		if err := json.Unmarshal(raw, &meta); err == nil {
			return &meta, nil
		}
		c.logger.Warn("dropping corrupt cached job details", zap.String("job_number", jobNumber))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("job details cache read failed", zap.String("job_number", jobNumber), zap.Error(err))
	}

	meta, err := c.next.JobDetails(ctx, jobNumber)
	if err != nil || meta == nil {
		return meta, err
	}

	if payload, err := json.Marshal(meta); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("job details cache write failed", zap.String("job_number", jobNumber), zap.Error(err))
		}
	}

	return meta, nil
}
