// Package pipeline runs the end-of-day capture: universe, quotes, chains,
// guarded persistence and the audit summary, one run at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/eodsnap/internal/audit"
	"github.com/wonny/eodsnap/internal/calendar"
	"github.com/wonny/eodsnap/internal/chains"
	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/metrics"
	"github.com/wonny/eodsnap/internal/pricing"
	"github.com/wonny/eodsnap/internal/quotes"
	"github.com/wonny/eodsnap/internal/snapshot"
	"github.com/wonny/eodsnap/pkg/logger"
)

// UniverseLoader resolves the universe version of a run
type UniverseLoader interface {
	Load(ctx context.Context, forceRebuild bool) (*contracts.UniverseVersion, error)
}

// QuoteFetcher is the bulk quote stage
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, symbols []string) map[string]quotes.QuoteResult
}

// ChainFetcher is the option chain stage
type ChainFetcher interface {
	FetchChains(ctx context.Context, reqs []chains.ChainRequest, tradeDate time.Time, onResult func(chains.ChainResult))
}

// Options tune a single run
type Options struct {
	ForceRebuildUniverse bool
	Override             bool   // re-write final documents (administrative)
	TradeDate            string // YYYY-MM-DD; empty = last completed trading day
}

// Orchestrator coordinates the snapshot pipeline
// ⭐ SSOT: 파이프라인 조율은 여기서만
type Orchestrator struct {
	universe UniverseLoader
	quotes   QuoteFetcher
	chains   ChainFetcher
	guard    *snapshot.Guard
	audit    audit.Repository
	calendar *calendar.Calendar

	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(
	universe UniverseLoader,
	quoteFetcher QuoteFetcher,
	chainFetcher ChainFetcher,
	guard *snapshot.Guard,
	auditRepo audit.Repository,
	cal *calendar.Calendar,
	log *logger.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		universe: universe,
		quotes:   quoteFetcher,
		chains:   chainFetcher,
		guard:    guard,
		audit:    auditRepo,
		calendar: cal,
		logger:   log.WithComponent("pipeline"),
		metrics:  m,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// RunPipeline runs with default options
func (o *Orchestrator) RunPipeline(ctx context.Context, forceRebuildUniverse bool) (*contracts.RunSummary, error) {
	return o.Run(ctx, Options{ForceRebuildUniverse: forceRebuildUniverse})
}

// Run executes one pipeline run.
// Only a missing trade date or universe is fatal; every per-symbol problem
// is recorded in the audit ledger and the run goes on.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*contracts.RunSummary, error) {
	tradeDate, err := o.resolveTradeDate(opts.TradeDate)
	if err != nil {
		o.metrics.ObserveRun(string(contracts.RunStateFailed), o.now())
		return nil, fmt.Errorf("resolve trade date: %w", err)
	}

	rc := newRunContext(o.newID(), tradeDate, o.now(), o.logger, o.metrics)
	ledger := audit.NewLedger(rc.RunID)

	rc.Logger.WithFields(map[string]interface{}{
		"force_rebuild_universe": opts.ForceRebuildUniverse,
		"override":               opts.Override,
	}).Info("Starting snapshot run")

	// UNIVERSE
	universe, err := o.universe.Load(ctx, opts.ForceRebuildUniverse)
	if err != nil {
		return o.fail(ctx, rc, ledger, "", fmt.Errorf("load universe: %w", err))
	}
	if err := rc.Transition(contracts.RunStateUniverseLoaded); err != nil {
		return nil, err
	}
	rc.Logger.WithFields(map[string]interface{}{
		"version": universe.VersionID,
		"symbols": universe.Count(),
	}).Info("Universe loaded")

	// QUOTE
	reqs := o.runQuotes(ctx, rc, ledger, universe.Symbols, opts)
	if err := rc.Transition(contracts.RunStateQuotesFetched); err != nil {
		return nil, err
	}

	// CHAIN
	results := o.runChains(ctx, rc, ledger, reqs, opts)
	if err := rc.Transition(contracts.RunStateChainsFetched); err != nil {
		return nil, err
	}

	// PERSIST
	o.persistChains(ctx, rc, ledger, results, opts)
	if err := rc.Transition(contracts.RunStatePersisted); err != nil {
		return nil, err
	}

	return o.summarize(ctx, rc, ledger, universe)
}

// resolveTradeDate picks the requested day or the last completed session
func (o *Orchestrator) resolveTradeDate(requested string) (time.Time, error) {
	if requested == "" {
		return o.calendar.LastTradingDay(o.now())
	}

	day, err := o.calendar.ParseDate(requested)
	if err != nil {
		return time.Time{}, err
	}
	// 미래 날짜 또는 장 마감 전 세션은 캡처 불가
	closeAt, err := o.calendar.CanonicalCloseTimestamp(day)
	if err != nil {
		return time.Time{}, err
	}
	if closeAt.After(o.now()) {
		return time.Time{}, fmt.Errorf("%s has not closed yet", requested)
	}
	return day, nil
}

// runQuotes fetches, selects and writes the canonical close of every symbol.
// It returns the chain requests, spot taken from the stored snapshot.
func (o *Orchestrator) runQuotes(ctx context.Context, rc *RunContext, ledger *audit.Ledger, symbols []string, opts Options) []chains.ChainRequest {
	results := o.quotes.FetchQuotes(ctx, symbols)
	reqs := make([]chains.ChainRequest, 0, len(symbols))

	for _, sym := range symbols {
		res, ok := results[sym]
		if !ok {
			res = quotes.QuoteResult{Symbol: sym, Failure: contracts.FailureUnknown, Err: errors.New("no quote result")}
		}
		retries := res.Retries()
		rc.Counters.Retries.Add(int64(retries))

		if !res.OK() {
			if cur := o.existingFinalQuote(ctx, rc, sym, opts); cur != nil {
				reqs = append(reqs, o.acceptQuote(rc, ledger, cur, retries))
				continue
			}
			o.excludeQuote(rc, ledger, sym, contracts.StageQuote, res.Failure, res.Err, retries)
			continue
		}

		q := res.Quote
		sel, err := pricing.SelectCanonicalPrice(q.SessionClose, q.PriorClose, q.MarketState)
		if err != nil {
			o.excludeQuote(rc, ledger, sym, contracts.StageQuote, contracts.FailureMissingBothPrices, err, retries)
			continue
		}

		asOf := q.AsOf
		if asOf.IsZero() {
			asOf, _ = o.calendar.CanonicalCloseTimestamp(rc.TradeDate)
		}

		doc := &contracts.QuoteSnapshot{
			Symbol:              sym,
			TradeDate:           rc.Day,
			CanonicalClosePrice: sel.Price,
			PriceSource:         sel.Source,
			Provenance:          sel.Provenance,
			SessionClosePrice:   q.SessionClose,
			PriorClosePrice:     q.PriorClose,
			MarketState:         pricing.NormalizeState(q.MarketState),
			AsOf:                asOf,
			Volume:              q.Volume,
			AvgVolume:           q.AvgVolume,
			MarketCap:           q.MarketCap,
			Provider:            q.Provider,
			RunID:               rc.RunID,
			IsFinal:             true,
			RawProviderFields:   q.Raw,
		}
		if sel.Degraded {
			rc.Logger.WithSymbol(sym).WithField("provenance", sel.Provenance).Warn("Canonical close from fallback field")
		}

		wr, err := o.guard.UpsertQuote(ctx, doc, snapshot.UpsertOptions{Override: opts.Override})
		if err != nil {
			o.excludeQuote(rc, ledger, sym, contracts.StagePersist, contracts.FailureWriteFailed, err, retries)
			continue
		}
		if wr.Status == contracts.WriteAlreadyFinal {
			rc.Counters.AlreadyFinal.Add(1)
		}
		reqs = append(reqs, o.acceptQuote(rc, ledger, wr.Current, retries))
	}

	rc.Logger.WithFields(map[string]interface{}{
		"ok":     rc.Counters.QuoteOK.Load(),
		"failed": rc.Counters.QuoteFail.Load(),
	}).Info("Quote stage completed")
	return reqs
}

// existingFinalQuote serves a symbol from an earlier run when this run could not
func (o *Orchestrator) existingFinalQuote(ctx context.Context, rc *RunContext, sym string, opts Options) *contracts.QuoteSnapshot {
	if opts.Override {
		return nil
	}
	cur, err := o.guard.Store().GetQuote(ctx, sym, rc.Day)
	if err != nil || !cur.IsFinal {
		return nil
	}
	rc.Counters.AlreadyFinal.Add(1)
	return cur
}

func (o *Orchestrator) acceptQuote(rc *RunContext, ledger *audit.Ledger, cur *contracts.QuoteSnapshot, retries int) chains.ChainRequest {
	rc.Counters.QuoteOK.Add(1)
	o.metrics.ObserveSymbol(string(contracts.StageQuote), "ok")

	ledger.Set(contracts.AuditRecord{
		Symbol:      cur.Symbol,
		Included:    true,
		PriceUsed:   cur.CanonicalClosePrice,
		PriceSource: cur.PriceSource,
		Retries:     retries,
		AsOf:        cur.AsOf,
	})
	return chains.ChainRequest{Symbol: cur.Symbol, Spot: cur.CanonicalClosePrice}
}

func (o *Orchestrator) excludeQuote(rc *RunContext, ledger *audit.Ledger, sym string, stage contracts.Stage, code contracts.FailureCode, err error, retries int) {
	if code == "" {
		code = contracts.FailureUnknown
	}
	rc.Counters.QuoteFail.Add(1)
	o.metrics.ObserveSymbol(string(stage), string(code))

	rec := contracts.AuditRecord{
		Symbol:        sym,
		ExcludeStage:  stage,
		ExcludeReason: code,
		Retries:       retries,
		AsOf:          o.now(),
	}
	if err != nil {
		rec.ExcludeDetail = err.Error()
	}
	ledger.Set(rec)

	rc.Logger.WithSymbol(sym).WithField("reason", code).Warn("Symbol excluded")
}

// runChains fetches chains for every quoted symbol; results are collected
// by the fetcher's single writer goroutine
func (o *Orchestrator) runChains(ctx context.Context, rc *RunContext, ledger *audit.Ledger, reqs []chains.ChainRequest, opts Options) []chains.ChainResult {
	pending := make([]chains.ChainRequest, 0, len(reqs))
	for _, req := range reqs {
		if !opts.Override && o.chainAlreadyFinal(ctx, rc, req.Symbol) {
			rc.Counters.AlreadyFinal.Add(1)
			rc.Counters.ChainOK.Add(1)
			o.metrics.ObserveSymbol(string(contracts.StageChain), "ok")
			continue
		}
		pending = append(pending, req)
	}

	var results []chains.ChainResult
	o.chains.FetchChains(ctx, pending, rc.TradeDate, func(r chains.ChainResult) {
		results = append(results, r)
	})

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	rc.Logger.WithFields(map[string]interface{}{
		"requested": len(pending),
		"skipped":   len(reqs) - len(pending),
	}).Info("Chain stage completed")
	return results
}

func (o *Orchestrator) chainAlreadyFinal(ctx context.Context, rc *RunContext, sym string) bool {
	cur, err := o.guard.Store().GetChain(ctx, sym, rc.Day)
	return err == nil && cur.IsFinal
}

// persistChains writes every chain document, final or not, and settles the
// audit record of each symbol
func (o *Orchestrator) persistChains(ctx context.Context, rc *RunContext, ledger *audit.Ledger, results []chains.ChainResult, opts Options) {
	for _, r := range results {
		rc.Counters.Retries.Add(int64(r.Retries))

		rec, _ := ledger.Get(r.Symbol)
		rec.Retries += r.Retries

		if r.Snapshot == nil {
			o.excludeChain(rc, ledger, rec, contracts.StageChain, r.Failure, r.Err)
			continue
		}

		r.Snapshot.RunID = rc.RunID
		wr, err := o.guard.UpsertChain(ctx, r.Snapshot, snapshot.UpsertOptions{Override: opts.Override})
		if err != nil {
			o.excludeChain(rc, ledger, rec, contracts.StagePersist, contracts.FailureWriteFailed, err)
			continue
		}

		cur := wr.Current
		if wr.Status == contracts.WriteAlreadyFinal {
			rc.Counters.AlreadyFinal.Add(1)
		}
		if !cur.IsFinal {
			o.excludeChain(rc, ledger, rec, contracts.StageChain, cur.DiagnosticReason, nil)
			continue
		}
		if cur.Consistency != "" && cur.Consistency != contracts.ConsistencyOK {
			rc.Counters.ConsistencyWarnings.Add(1)
		}

		rc.Counters.ChainOK.Add(1)
		o.metrics.ObserveSymbol(string(contracts.StageChain), "ok")
		ledger.Set(rec)
	}
}

func (o *Orchestrator) excludeChain(rc *RunContext, ledger *audit.Ledger, rec contracts.AuditRecord, stage contracts.Stage, code contracts.FailureCode, err error) {
	if code == "" {
		code = contracts.FailureUnknown
	}
	rc.Counters.ChainFail.Add(1)
	o.metrics.ObserveSymbol(string(stage), string(code))

	rec.Included = false
	rec.ExcludeStage = stage
	rec.ExcludeReason = code
	if err != nil {
		rec.ExcludeDetail = err.Error()
	}
	ledger.Set(rec)

	rc.Logger.WithSymbol(rec.Symbol).WithField("reason", code).Warn("Chain not final")
}

// summarize writes the audit ledger and the summary that publishes the run
func (o *Orchestrator) summarize(ctx context.Context, rc *RunContext, ledger *audit.Ledger, universe *contracts.UniverseVersion) (*contracts.RunSummary, error) {
	if err := rc.Transition(contracts.RunStateSummarized); err != nil {
		return nil, err
	}

	summary := o.buildSummary(rc, ledger, universe.VersionID, universe.Count())
	if err := o.audit.SaveRun(ctx, ledger.Records(), summary); err != nil {
		summary.State = contracts.RunStateFailed
		o.metrics.ObserveRun(string(summary.State), summary.CompletedAt)
		return summary, fmt.Errorf("save run summary: %w", err)
	}

	o.metrics.ObserveRun(string(summary.State), summary.CompletedAt)

	rc.Logger.WithFields(map[string]interface{}{
		"symbols":       summary.Totals.Symbols,
		"included":      summary.Included(),
		"already_final": summary.AlreadyFinal,
		"retries":       rc.Counters.Retries.Load(),
		"duration":      summary.Duration.Seconds(),
	}).Info("Snapshot run completed")
	return summary, nil
}

// fail ends a run that could not load its universe.
// A FAILED summary is still written so the dashboard shows the attempt.
func (o *Orchestrator) fail(ctx context.Context, rc *RunContext, ledger *audit.Ledger, universeVersion string, cause error) (*contracts.RunSummary, error) {
	rc.Logger.WithError(cause).Error("Snapshot run failed")
	if err := rc.Transition(contracts.RunStateFailed); err != nil {
		return nil, errors.Join(cause, err)
	}

	summary := o.buildSummary(rc, ledger, universeVersion, 0)
	if err := o.audit.SaveRun(ctx, ledger.Records(), summary); err != nil {
		rc.Logger.WithError(err).Warn("Failed to save failed run summary")
	}
	o.metrics.ObserveRun(string(summary.State), summary.CompletedAt)
	return summary, cause
}

func (o *Orchestrator) buildSummary(rc *RunContext, ledger *audit.Ledger, universeVersion string, symbols int) *contracts.RunSummary {
	completed := o.now()
	s := &contracts.RunSummary{
		RunID:           rc.RunID,
		UniverseVersion: universeVersion,
		TradeDate:       rc.Day,
		State:           rc.State(),
		StartedAt:       rc.StartedAt,
		CompletedAt:     completed,
		Duration:        completed.Sub(rc.StartedAt),
		Totals: contracts.RunTotals{
			Symbols:   symbols,
			QuoteOK:   int(rc.Counters.QuoteOK.Load()),
			QuoteFail: int(rc.Counters.QuoteFail.Load()),
			ChainOK:   int(rc.Counters.ChainOK.Load()),
			ChainFail: int(rc.Counters.ChainFail.Load()),
		},
		StageDurations:      rc.StageDurations(),
		AlreadyFinal:        int(rc.Counters.AlreadyFinal.Load()),
		ConsistencyWarnings: int(rc.Counters.ConsistencyWarnings.Load()),
	}
	ledger.Summarize(s)
	return s
}
