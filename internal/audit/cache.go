package audit

import (
	"context"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/pkg/logger"
	"github.com/wonny/eodsnap/pkg/redis"
)

// CachedRepository keeps the latest summary in Redis for the dashboard.
// Cache failures are logged and fall through to the wrapped repository.
type CachedRepository struct {
	Repository
	cache  *redis.Cache
	logger *logger.Logger
}

// NewCachedRepository wraps repo with a short-lived latest summary cache
func NewCachedRepository(repo Repository, cache *redis.Cache, log *logger.Logger) *CachedRepository {
	return &CachedRepository{
		Repository: repo,
		cache:      cache,
		logger:     log.WithComponent("audit_cache"),
	}
}

// SaveRun writes through and refreshes the cached latest summary
func (c *CachedRepository) SaveRun(ctx context.Context, records []contracts.AuditRecord, summary *contracts.RunSummary) error {
	if err := c.Repository.SaveRun(ctx, records, summary); err != nil {
		return err
	}
	if err := c.cache.Set(ctx, redis.LatestRunKey(), summary, redis.TTLShort); err != nil {
		c.logger.WithError(err).Warn("latest summary cache write failed")
	}
	return nil
}

// LatestSummary reads the cache first
func (c *CachedRepository) LatestSummary(ctx context.Context) (*contracts.RunSummary, error) {
	var cached contracts.RunSummary
	hit, err := c.cache.Get(ctx, redis.LatestRunKey(), &cached)
	if err != nil {
		c.logger.WithError(err).Warn("latest summary cache read failed")
	} else if hit {
		return &cached, nil
	}

	summary, err := c.Repository.LatestSummary(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, redis.LatestRunKey(), summary, redis.TTLShort); err != nil {
		c.logger.WithError(err).Warn("latest summary cache write failed")
	}
	return summary, nil
}
