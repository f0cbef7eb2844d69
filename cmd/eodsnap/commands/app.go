package commands

import (
	"context"
	"fmt"

	"github.com/wonny/eodsnap/internal/audit"
	"github.com/wonny/eodsnap/internal/calendar"
	"github.com/wonny/eodsnap/internal/chains"
	"github.com/wonny/eodsnap/internal/external/polygon"
	"github.com/wonny/eodsnap/internal/external/yahoo"
	"github.com/wonny/eodsnap/internal/metrics"
	"github.com/wonny/eodsnap/internal/pipeline"
	"github.com/wonny/eodsnap/internal/provider"
	"github.com/wonny/eodsnap/internal/quotes"
	"github.com/wonny/eodsnap/internal/snapshot"
	"github.com/wonny/eodsnap/internal/universe"
	"github.com/wonny/eodsnap/pkg/config"
	"github.com/wonny/eodsnap/pkg/database"
	"github.com/wonny/eodsnap/pkg/httputil"
	"github.com/wonny/eodsnap/pkg/logger"
	"github.com/wonny/eodsnap/pkg/redis"
	"github.com/wonny/eodsnap/pkg/retry"
)

// cachePrefix namespaces every Redis key of this service
const cachePrefix = "eodsnap"

// app is the wired dependency graph shared by every command
// ⭐ SSOT: 의존성 조립은 여기서만
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	calendar *calendar.Calendar

	db    *database.DB  // nil in dry-run
	redis *redis.Client // disabled unless REDIS_ENABLED

	store        snapshot.Store
	auditRepo    audit.Repository
	universeRepo universe.Repository
	universe     *universe.Loader
	orchestrator *pipeline.Orchestrator
	reader       *snapshot.Reader
}

// newApp loads config and connects the stores.
// With dry-run every store is in memory and no database is required.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	a := &app{
		cfg:      cfg,
		log:      logger.New(cfg),
		metrics:  metrics.New(),
		calendar: calendar.NYSE(),
	}
	if err := a.calendar.Err(); err != nil {
		a.log.WithError(err).Warn("Trading calendar unavailable, runs will fail closed")
	}

	a.redis, err = redis.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	cache := redis.NewCache(a.redis, cachePrefix)

	if dryRun {
		a.log.Warn("Dry run: snapshots are kept in memory only")
		a.store = snapshot.NewMemoryStore()
		a.auditRepo = audit.NewMemoryRepository()
		a.universeRepo = universe.NewMemoryRepository()
	} else {
		a.db, err = database.New(cfg)
		if err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.store = snapshot.NewPostgresStore(a.db.Pool)
		a.auditRepo = audit.NewCachedRepository(audit.NewPostgresRepository(a.db), cache, a.log)
		a.universeRepo = universe.NewPostgresRepository(a.db.Pool)
	}

	a.wirePipeline(cache)
	return a, nil
}

// wirePipeline builds providers, fetchers and the orchestrator
func (a *app) wirePipeline(cache *redis.Cache) {
	cfg := a.cfg
	limiter := redis.NewRateLimiter(a.redis, cachePrefix)

	yahooHTTP := httputil.New(a.log, cfg.Providers.Timeout, cfg.Providers.RPS).
		WithRateLimiter(limiter, redis.YahooRateLimit)
	yahooClient := yahoo.NewClient(yahooHTTP, a.log, cfg.Providers.YahooBaseURL)

	quoteSource := provider.GuardQuotes(yahooClient, a.log, a.metrics)
	chainSources := []provider.ChainSource{provider.GuardChains(yahooClient, a.log, a.metrics)}

	if cfg.Providers.PolygonEnabled() {
		polygonHTTP := httputil.New(a.log, cfg.Providers.Timeout, cfg.Providers.RPS).
			WithRateLimiter(limiter, redis.PolygonRateLimit)
		polygonClient := polygon.NewClient(polygonHTTP, a.log, cfg.Providers.PolygonBaseURL, cfg.Providers.PolygonAPIKey)

		quoteSource = provider.NewFailover(quoteSource, provider.GuardQuotes(polygonClient, a.log, a.metrics), a.log)
		chainSources = append(chainSources, provider.GuardChains(polygonClient, a.log, a.metrics))
	}

	// ⭐ SSOT: 재시도 정책은 하나, 모든 단계가 공유
	policy := retry.New(cfg.Pipeline.RetryMaxAttempts, cfg.Pipeline.RetryBaseDelay, cfg.Pipeline.RetryMaxDelay)

	quoteFetcher := quotes.NewFetcher(quoteSource, policy, cfg.Pipeline.QuoteBatchSize, a.log, a.metrics)
	chainFetcher := chains.NewFetcher(chainSources, policy, chains.Config{
		Workers:           cfg.Pipeline.ChainWorkers,
		MinValidContracts: cfg.Pipeline.MinValidContracts,
	}, a.log, a.metrics)

	var sources []universe.CandidateSource
	if cfg.Universe.SourceURL != "" {
		indexHTTP := httputil.New(a.log, cfg.Providers.Timeout, 1)
		sources = append(sources, universe.NewIndexSource(indexHTTP, a.log, cfg.Universe.SourceURL))
	}
	builder := universe.NewBuilder(sources, cfg.Universe.SeedSymbols, quoteFetcher, universe.Config{
		MinMarketCap: cfg.Universe.MinMarketCap,
		MinAvgVolume: cfg.Universe.MinAvgVolume,
	}, a.log)
	a.universe = universe.NewLoader(builder, a.universeRepo, a.log)

	guard := snapshot.NewGuard(a.store, cfg.Pipeline.PriceTolerance, a.log, a.metrics).WithCache(cache)
	a.orchestrator = pipeline.NewOrchestrator(a.universe, quoteFetcher, chainFetcher, guard, a.auditRepo, a.calendar, a.log, a.metrics)
	a.reader = snapshot.NewReader(a.store, cache, a.calendar, a.log)
}

// Close releases connections
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
}
