package chains

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/metrics"
	"github.com/wonny/eodsnap/internal/provider"
	"github.com/wonny/eodsnap/pkg/logger"
	"github.com/wonny/eodsnap/pkg/retry"
)

// Config holds chain stage settings
type Config struct {
	Workers           int // concurrent symbols
	MinValidContracts int
}

// ChainRequest is one symbol to fetch with its canonical spot
type ChainRequest struct {
	Symbol string
	Spot   float64
}

// ChainResult is a validated chain snapshot or a fetch failure.
// A non-final snapshot is still a result; Failure then holds its diagnostic.
type ChainResult struct {
	Symbol   string
	Snapshot *contracts.OptionChainSnapshot // nil when nothing could be fetched
	Failure  contracts.FailureCode
	Err      error
	Retries  int
}

// OK reports whether the chain is final
func (r ChainResult) OK() bool {
	return r.Snapshot != nil && r.Snapshot.IsFinal
}

// Fetcher retrieves and validates option chains.
// Sources are tried in order per symbol; the first one that lists
// expirations serves every expiry of that symbol.
// ⭐ SSOT: 옵션 체인 수집/검증은 여기서만
type Fetcher struct {
	sources []provider.ChainSource
	policy  *retry.Policy
	cfg     Config
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewFetcher creates a chain fetcher
func NewFetcher(sources []provider.ChainSource, policy *retry.Policy, cfg Config, log *logger.Logger, m *metrics.Metrics) *Fetcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Fetcher{
		sources: sources,
		policy:  policy,
		cfg:     cfg,
		logger:  log.WithComponent("chains"),
		metrics: m,
	}
}

// FetchChains runs FetchChain for every request on a bounded pool.
// onResult is called from a single goroutine, once per request.
func (f *Fetcher) FetchChains(ctx context.Context, reqs []ChainRequest, tradeDate time.Time, onResult func(ChainResult)) {
	resultCh := make(chan ChainResult)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for r := range resultCh {
			onResult(r)
		}
	}()

	var g errgroup.Group
	g.SetLimit(f.cfg.Workers)
	for _, req := range reqs {
		req := req
		g.Go(func() error {
			resultCh <- f.FetchChain(ctx, req.Symbol, req.Spot, tradeDate)
			return nil
		})
	}
	_ = g.Wait()
	close(resultCh)
	<-done
}

// FetchChain fetches every selected expiry of one symbol and validates it
func (f *Fetcher) FetchChain(ctx context.Context, symbol string, spot float64, tradeDate time.Time) ChainResult {
	log := f.logger.WithSymbol(symbol)
	result := ChainResult{Symbol: symbol}

	if err := ctx.Err(); err != nil {
		return f.failed(result, provider.Classify("chains", err))
	}

	src, listed, retries, err := f.listExpirations(ctx, symbol)
	result.Retries += retries
	if err != nil {
		log.WithError(err).Warn("Failed to list expirations")
		return f.failed(result, err)
	}

	selected := SelectExpiries(tradeDate, listed)
	snap := &contracts.OptionChainSnapshot{
		Symbol:     symbol,
		TradeDate:  tradeDate.Format(contracts.DateLayout),
		StockPrice: spot,
		Expiries:   make([]string, 0, len(selected)),
		Provider:   src.Name(),
	}

	var (
		lastErr         error
		leapsIncomplete bool
	)
	for _, exp := range selected {
		snap.Expiries = append(snap.Expiries, exp.Date)

		var raws []provider.RawContract
		attempts, err := f.policy.Do(ctx, func(ctx context.Context, _ int) error {
			var ferr error
			raws, ferr = src.Contracts(ctx, symbol, exp.Date)
			return provider.Classify(src.Name(), ferr)
		})
		result.Retries += attempts - 1

		if err != nil {
			lastErr = err
			snap.FailedExpiries = append(snap.FailedExpiries, exp.Date)
			if exp.Bucket == BucketLeaps {
				leapsIncomplete = true
			}
			log.WithError(err).WithField("expiry", exp.Date).Warn("Failed to fetch expiry")
			continue
		}

		for _, raw := range raws {
			if raw.Expiry == "" {
				raw.Expiry = exp.Date
			}
			snap.Contracts = append(snap.Contracts, ValidateContract(raw, symbol, spot, exp.DTE))
		}
	}
	f.metrics.ObserveRetries(string(contracts.StageChain), result.Retries)

	if len(selected) > 0 && len(snap.FailedExpiries) == len(selected) {
		return f.failed(result, lastErr)
	}

	sortContracts(snap.Contracts)
	snap.TotalContracts = len(snap.Contracts)
	for _, c := range snap.Contracts {
		if c.Valid {
			snap.ValidContracts++
		}
	}
	snap.IsFinal, snap.DiagnosticReason = Finality(snap.Contracts, spot, len(selected), leapsIncomplete, f.cfg.MinValidContracts)

	result.Snapshot = snap
	result.Failure = snap.DiagnosticReason

	log.WithFields(map[string]interface{}{
		"expiries":   len(snap.Expiries),
		"failed":     len(snap.FailedExpiries),
		"contracts":  snap.TotalContracts,
		"valid":      snap.ValidContracts,
		"is_final":   snap.IsFinal,
		"diagnostic": snap.DiagnosticReason,
	}).Debug("Chain validated")

	return result
}

// listExpirations tries each source in order with the shared retry policy
func (f *Fetcher) listExpirations(ctx context.Context, symbol string) (provider.ChainSource, []string, int, error) {
	if len(f.sources) == 0 {
		return nil, nil, 0, errors.New("no chain source configured")
	}

	retries := 0
	var lastErr error
	for _, src := range f.sources {
		var listed []string
		attempts, err := f.policy.Do(ctx, func(ctx context.Context, _ int) error {
			var ferr error
			listed, ferr = src.Expirations(ctx, symbol)
			return provider.Classify(src.Name(), ferr)
		})
		retries += attempts - 1
		if err == nil {
			return src, listed, retries, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, nil, retries, fmt.Errorf("list expirations for %s: %w", symbol, lastErr)
}

func (f *Fetcher) failed(r ChainResult, err error) ChainResult {
	r.Err = err
	r.Failure = provider.CodeOf(err)
	return r
}

// sortContracts orders by expiry, type, then strike for stable documents
func sortContracts(cs []contracts.Contract) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Expiry != cs[j].Expiry {
			return cs[i].Expiry < cs[j].Expiry
		}
		if cs[i].Type != cs[j].Type {
			return cs[i].Type < cs[j].Type
		}
		return cs[i].Strike < cs[j].Strike
	})
}
