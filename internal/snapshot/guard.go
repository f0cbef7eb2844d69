package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/metrics"
	"github.com/wonny/eodsnap/pkg/logger"
	"github.com/wonny/eodsnap/pkg/redis"
)

// DefaultPriceTolerance is the allowed chain ↔ quote price gap
const DefaultPriceTolerance = 0.01

// Guard is the write path used by the pipeline.
// It cross-checks a final chain against the final quote of the same key
// before delegating to the Store, and records the outcome of every write.
// ⭐ SSOT: 스냅샷 쓰기는 Guard를 통해서만
type Guard struct {
	store     Store
	cache     *redis.Cache // Reader와 같은 종가 캐시, nil 가능
	tolerance float64
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// NewGuard wraps store; tolerance <= 0 uses DefaultPriceTolerance
func NewGuard(store Store, tolerance float64, log *logger.Logger, m *metrics.Metrics) *Guard {
	if tolerance <= 0 {
		tolerance = DefaultPriceTolerance
	}
	return &Guard{
		store:     store,
		tolerance: tolerance,
		logger:    log.WithComponent("snapshot_guard"),
		metrics:   m,
	}
}

// WithCache sets the canonical close cache shared with the Reader.
// A rewritten quote evicts its cached close.
func (g *Guard) WithCache(cache *redis.Cache) *Guard {
	g.cache = cache
	return g
}

// Store returns the underlying store
func (g *Guard) Store() Store {
	return g.store
}

// UpsertQuote writes a quote snapshot
func (g *Guard) UpsertQuote(ctx context.Context, q *contracts.QuoteSnapshot, opts UpsertOptions) (QuoteWrite, error) {
	res, err := g.store.UpsertQuote(ctx, q, opts)
	if err != nil {
		g.metrics.ObserveWrite("quote", "ERROR")
		return res, err
	}
	g.metrics.ObserveWrite("quote", string(res.Status))

	switch res.Status {
	case contracts.WriteAlreadyFinal:
		g.logger.WithSymbol(q.Symbol).Debugf("quote %s already final, kept run %s", q.TradeDate, res.Current.RunID)
	case contracts.WriteUpdated:
		g.evictClose(ctx, q.Symbol, q.TradeDate)
	}
	return res, nil
}

// UpsertChain sets the consistency of a final chain and writes it.
// Consistency problems are logged, never blocking.
func (g *Guard) UpsertChain(ctx context.Context, c *contracts.OptionChainSnapshot, opts UpsertOptions) (ChainWrite, error) {
	if c.IsFinal {
		consistency, err := g.checkConsistency(ctx, c)
		if err != nil {
			return ChainWrite{}, err
		}
		c.Consistency = consistency
	}

	res, err := g.store.UpsertChain(ctx, c, opts)
	if err != nil {
		g.metrics.ObserveWrite("chain", "ERROR")
		return res, err
	}
	g.metrics.ObserveWrite("chain", string(res.Status))
	return res, nil
}

// evictClose drops a cached canonical close; failure only logs
func (g *Guard) evictClose(ctx context.Context, symbol, tradeDate string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Delete(ctx, redis.CanonicalCloseKey(symbol, tradeDate)); err != nil {
		g.logger.WithSymbol(symbol).WithError(err).Warn("canonical close cache eviction failed")
	}
}

func (g *Guard) checkConsistency(ctx context.Context, c *contracts.OptionChainSnapshot) (contracts.Consistency, error) {
	log := g.logger.WithSymbol(c.Symbol).WithField("trade_date", c.TradeDate)

	q, err := g.store.GetQuote(ctx, c.Symbol, c.TradeDate)
	if errors.Is(err, ErrNotFound) || (err == nil && !q.IsFinal) {
		log.Warn("final chain has no final quote")
		return contracts.ConsistencyQuoteMissing, nil
	}
	if err != nil {
		return "", fmt.Errorf("consistency lookup %s/%s: %w", c.Symbol, c.TradeDate, err)
	}

	if math.Abs(q.CanonicalClosePrice-c.StockPrice) > g.tolerance+1e-9 {
		log.WithFields(map[string]interface{}{
			"quote_price": q.CanonicalClosePrice,
			"chain_price": c.StockPrice,
		}).Warn("chain stock price differs from canonical close")
		return contracts.ConsistencyPriceMismatch, nil
	}
	return contracts.ConsistencyOK, nil
}
