package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsnap/internal/audit"
	"github.com/wonny/eodsnap/internal/calendar"
	"github.com/wonny/eodsnap/internal/chains"
	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/metrics"
	"github.com/wonny/eodsnap/internal/provider"
	"github.com/wonny/eodsnap/internal/quotes"
	"github.com/wonny/eodsnap/internal/snapshot"
	"github.com/wonny/eodsnap/pkg/logger"
	"github.com/wonny/eodsnap/pkg/retry"
)

const testExpiry = "2025-01-17"

// Friday 2025-01-10 after the close
func fridayEvening() time.Time {
	ny, _ := time.LoadLocation("America/New_York")
	return time.Date(2025, 1, 10, 17, 30, 0, 0, ny)
}

type fakeUniverse struct {
	version *contracts.UniverseVersion
	err     error
	forced  []bool
}

func (f *fakeUniverse) Load(_ context.Context, force bool) (*contracts.UniverseVersion, error) {
	f.forced = append(f.forced, force)
	return f.version, f.err
}

func universeOf(symbols ...string) *fakeUniverse {
	tiers := make(map[string]contracts.Tier, len(symbols))
	for _, s := range symbols {
		tiers[s] = contracts.Tier1
	}
	return &fakeUniverse{version: &contracts.UniverseVersion{
		VersionID:  "u-20250110-0badc0de",
		Symbols:    symbols,
		Tiers:      tiers,
		TierCounts: map[contracts.Tier]int{contracts.Tier1: len(symbols)},
	}}
}

// scriptedQuotes answers each symbol from a script, one entry per call;
// the last entry repeats
type scriptedQuotes struct {
	mu     sync.Mutex
	calls  map[string]int
	script map[string][]provider.QuoteOutcome
}

func newScriptedQuotes() *scriptedQuotes {
	return &scriptedQuotes{calls: map[string]int{}, script: map[string][]provider.QuoteOutcome{}}
}

func (s *scriptedQuotes) on(sym string, outs ...provider.QuoteOutcome) *scriptedQuotes {
	s.script[sym] = outs
	return s
}

func (s *scriptedQuotes) Name() string { return "fake" }

func (s *scriptedQuotes) Quotes(_ context.Context, symbols []string) (map[string]provider.QuoteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]provider.QuoteOutcome)
	for _, sym := range symbols {
		outs := s.script[sym]
		if len(outs) == 0 {
			continue
		}
		n := s.calls[sym]
		s.calls[sym]++
		if n >= len(outs) {
			n = len(outs) - 1
		}
		out[sym] = outs[n]
	}
	return out, nil
}

func served(sym string, session, prior float64, state string) provider.QuoteOutcome {
	raw, _ := json.Marshal(map[string]interface{}{"symbol": sym, "regularMarketPrice": session, "marketState": state})
	return provider.QuoteOutcome{Quote: &provider.RawQuote{
		Symbol:       sym,
		SessionClose: session,
		PriorClose:   prior,
		MarketState:  state,
		AsOf:         time.Date(2025, 1, 10, 21, 0, 0, 0, time.UTC),
		Provider:     "fake",
		Raw:          raw,
	}}
}

func failing(code contracts.FailureCode) provider.QuoteOutcome {
	return provider.QuoteOutcome{Err: provider.NewError("fake", code, errors.New(string(code)))}
}

// fakeChains lists one expiry per symbol and serves a fixed ladder
type fakeChains struct {
	mu      sync.Mutex
	ladders map[string][]provider.RawContract
	calls   int
}

func (f *fakeChains) Name() string { return "fake" }

func (f *fakeChains) Expirations(_ context.Context, symbol string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if _, ok := f.ladders[symbol]; !ok {
		return nil, provider.NewError("fake", contracts.FailureHTTP404, fmt.Errorf("no options for %s", symbol))
	}
	return []string{testExpiry}, nil
}

func (f *fakeChains) Contracts(_ context.Context, symbol, _ string) ([]provider.RawContract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ladders[symbol], nil
}

// ladder returns a call and a put per strike, all quotable
func ladder(strikes ...float64) []provider.RawContract {
	var out []provider.RawContract
	for _, k := range strikes {
		for _, typ := range []contracts.OptionType{contracts.OptionCall, contracts.OptionPut} {
			out = append(out, provider.RawContract{Type: typ, Strike: k, Expiry: testExpiry, Bid: 1.0, Ask: 1.1, OpenInterest: 100})
		}
	}
	return out
}

type harness struct {
	orch    *Orchestrator
	store   *snapshot.MemoryStore
	audit   *audit.MemoryRepository
	quotes  *scriptedQuotes
	chains  *fakeChains
	metrics *metrics.Metrics
}

func newHarness(u UniverseLoader, q *scriptedQuotes, c *fakeChains, runID string) *harness {
	policy := retry.New(4, time.Millisecond, time.Millisecond).
		WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })
	m := metrics.New()
	log := logger.Nop()

	store := snapshot.NewMemoryStore()
	auditRepo := audit.NewMemoryRepository()
	orch := NewOrchestrator(
		u,
		quotes.NewFetcher(q, policy, 50, log, m),
		chains.NewFetcher([]provider.ChainSource{c}, policy, chains.Config{Workers: 2, MinValidContracts: 10}, log, m),
		snapshot.NewGuard(store, 0.01, log, m),
		auditRepo,
		calendar.NYSE(),
		log,
		m,
	)
	orch.now = fridayEvening
	orch.newID = func() string { return runID }

	return &harness{orch: orch, store: store, audit: auditRepo, quotes: q, chains: c, metrics: m}
}

// rerun builds a second orchestrator over the same stores
func (h *harness) rerun(q *scriptedQuotes, runID string) *Orchestrator {
	o := *h.orch
	policy := retry.New(4, 0, 0).WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })
	o.quotes = quotes.NewFetcher(q, policy, 50, logger.Nop(), nil)
	o.newID = func() string { return runID }
	return &o
}

func aaplXYZ() (*scriptedQuotes, *fakeChains) {
	q := newScriptedQuotes().
		on("AAPL", served("AAPL", 190.00, 188.50, "CLOSED")).
		on("XYZ", failing(contracts.FailureRateLimited), served("XYZ", 12.90, 12.50, "OPEN"))
	c := &fakeChains{ladders: map[string][]provider.RawContract{
		"AAPL": ladder(180, 185, 190, 195, 200),
		"XYZ":  ladder(11, 12, 12.5, 13, 14),
	}}
	return q, c
}

func TestRunPipeline_AAPLAndXYZ(t *testing.T) {
	ctx := context.Background()
	q, c := aaplXYZ()
	h := newHarness(universeOf("AAPL", "XYZ"), q, c, "run-1")

	summary, err := h.orch.RunPipeline(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, contracts.RunStateSummarized, summary.State)
	assert.Equal(t, "2025-01-10", summary.TradeDate)
	assert.Equal(t, contracts.RunTotals{Symbols: 2, QuoteOK: 2, ChainOK: 2}, summary.Totals)
	assert.Equal(t, 2, summary.Included())
	assert.Len(t, summary.StageDurations, 5)

	aapl, err := h.store.GetQuote(ctx, "AAPL", "2025-01-10")
	require.NoError(t, err)
	assert.InDelta(t, 190.00, aapl.CanonicalClosePrice, 1e-9)
	assert.Equal(t, contracts.PriceSourceSessionClose, aapl.PriceSource)
	assert.True(t, aapl.IsFinal)
	assert.NotEmpty(t, aapl.RawProviderFields)

	xyz, err := h.store.GetQuote(ctx, "XYZ", "2025-01-10")
	require.NoError(t, err)
	assert.InDelta(t, 12.50, xyz.CanonicalClosePrice, 1e-9)
	assert.Equal(t, contracts.PriceSourcePriorClose, xyz.PriceSource)

	records, err := h.audit.Records(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "AAPL", records[0].Symbol)
	assert.Equal(t, 0, records[0].Retries)
	assert.Equal(t, "XYZ", records[1].Symbol)
	assert.True(t, records[1].Included)
	assert.Equal(t, 1, records[1].Retries, "one retry consumed by the rate limit")
	assert.InDelta(t, 12.50, records[1].PriceUsed, 1e-9)

	chain, err := h.store.GetChain(ctx, "XYZ", "2025-01-10")
	require.NoError(t, err)
	assert.True(t, chain.IsFinal)
	assert.InDelta(t, 12.50, chain.StockPrice, 1e-9, "chain spot is the stored canonical close")
	assert.Equal(t, contracts.ConsistencyOK, chain.Consistency)
	assert.Equal(t, "run-1", chain.RunID)

	latest, err := h.audit.LatestSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues("SUMMARIZED")))
}

func TestRunPipeline_EightValidContractsNotFinal(t *testing.T) {
	ctx := context.Background()
	q := newScriptedQuotes().on("AAPL", served("AAPL", 190.00, 188.50, "CLOSED"))
	c := &fakeChains{ladders: map[string][]provider.RawContract{"AAPL": ladder(185, 190, 195, 200)}}
	h := newHarness(universeOf("AAPL"), q, c, "run-1")

	summary, err := h.orch.RunPipeline(ctx, false)
	require.NoError(t, err)

	chain, err := h.store.GetChain(ctx, "AAPL", "2025-01-10")
	require.NoError(t, err)
	assert.False(t, chain.IsFinal)
	assert.Equal(t, 8, chain.ValidContracts)
	assert.Equal(t, contracts.FailureInsufficientValidContracts, chain.DiagnosticReason)

	assert.Equal(t, 1, summary.ExcludedByReason[contracts.FailureInsufficientValidContracts])
	assert.Equal(t, 1, summary.ExcludedByStage[contracts.StageChain])
	assert.Equal(t, 0, summary.Included())

	quote, err := h.store.GetQuote(ctx, "AAPL", "2025-01-10")
	require.NoError(t, err)
	assert.True(t, quote.IsFinal, "the quote stays final whatever its chain does")
}

func TestRunPipeline_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	q, c := aaplXYZ()
	q.on("BAD", failing(contracts.FailureHTTP404))
	q.on("NOPX", served("NOPX", 0, 0, "CLOSED"))
	q.on("NOOPT", served("NOOPT", 50, 49, "CLOSED"))
	h := newHarness(universeOf("AAPL", "BAD", "NOOPT", "NOPX", "XYZ"), q, c, "run-1")

	summary, err := h.orch.RunPipeline(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, contracts.RunTotals{Symbols: 5, QuoteOK: 3, QuoteFail: 2, ChainOK: 2, ChainFail: 1}, summary.Totals)
	assert.Equal(t, 2, summary.Included())
	assert.Equal(t, map[contracts.FailureCode]int{
		contracts.FailureHTTP404:           2,
		contracts.FailureMissingBothPrices: 1,
	}, summary.ExcludedByReason)
	assert.Equal(t, map[contracts.Stage]int{contracts.StageQuote: 2, contracts.StageChain: 1}, summary.ExcludedByStage)
	require.Len(t, summary.TopFailures, 3)
	assert.Equal(t, contracts.StageQuote, summary.TopFailures[0].Stage)

	_, err = h.store.GetQuote(ctx, "BAD", "2025-01-10")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)

	for _, sym := range []string{"AAPL", "XYZ"} {
		chain, err := h.store.GetChain(ctx, sym, "2025-01-10")
		require.NoError(t, err)
		assert.True(t, chain.IsFinal, sym)
	}
}

func TestRunPipeline_SecondRunIsNoOp(t *testing.T) {
	ctx := context.Background()
	q, c := aaplXYZ()
	h := newHarness(universeOf("AAPL", "XYZ"), q, c, "run-1")

	_, err := h.orch.RunPipeline(ctx, false)
	require.NoError(t, err)
	chainCalls := c.calls

	// the provider now reports a different print
	q2 := newScriptedQuotes().
		on("AAPL", served("AAPL", 191.00, 190.00, "CLOSED")).
		on("XYZ", served("XYZ", 13.00, 12.90, "CLOSED"))

	summary, err := h.rerun(q2, "run-2").RunPipeline(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.AlreadyFinal, "two quotes and two chains were already final")
	assert.Equal(t, 2, summary.Included())
	assert.Equal(t, chainCalls, c.calls, "final chains are not fetched again")

	aapl, err := h.store.GetQuote(ctx, "AAPL", "2025-01-10")
	require.NoError(t, err)
	assert.InDelta(t, 190.00, aapl.CanonicalClosePrice, 1e-9)
	assert.Equal(t, "run-1", aapl.RunID)

	records, err := h.audit.Records(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.InDelta(t, 190.00, records[0].PriceUsed, 1e-9, "audit reports the stored canonical close")
}

func TestRunPipeline_SecondRunKeepsFinalWhenProviderFails(t *testing.T) {
	ctx := context.Background()
	q, c := aaplXYZ()
	h := newHarness(universeOf("AAPL", "XYZ"), q, c, "run-1")

	_, err := h.orch.RunPipeline(ctx, false)
	require.NoError(t, err)

	q2 := newScriptedQuotes().
		on("AAPL", failing(contracts.FailureHTTP404)).
		on("XYZ", failing(contracts.FailureHTTP404))
	summary, err := h.rerun(q2, "run-2").RunPipeline(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Included())
	assert.Equal(t, 2, summary.Totals.QuoteOK)
}

func TestRunPipeline_OverrideRewritesFinal(t *testing.T) {
	ctx := context.Background()
	q, c := aaplXYZ()
	h := newHarness(universeOf("AAPL", "XYZ"), q, c, "run-1")

	_, err := h.orch.RunPipeline(ctx, false)
	require.NoError(t, err)

	q2 := newScriptedQuotes().
		on("AAPL", served("AAPL", 190.40, 188.50, "CLOSED")).
		on("XYZ", served("XYZ", 12.90, 12.50, "OPEN"))
	o := h.rerun(q2, "run-admin")

	summary, err := o.Run(ctx, Options{Override: true})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.AlreadyFinal)

	aapl, err := h.store.GetQuote(ctx, "AAPL", "2025-01-10")
	require.NoError(t, err)
	assert.InDelta(t, 190.40, aapl.CanonicalClosePrice, 1e-9)
	assert.Equal(t, "run-admin", aapl.RunID)

	chain, err := h.store.GetChain(ctx, "AAPL", "2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, "run-admin", chain.RunID)
	assert.InDelta(t, 190.40, chain.StockPrice, 1e-9)
}

func TestRunPipeline_UniverseFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	q, c := aaplXYZ()
	h := newHarness(&fakeUniverse{err: errors.New("index page moved")}, q, c, "run-1")

	summary, err := h.orch.RunPipeline(ctx, true)
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, contracts.RunStateFailed, summary.State)
	assert.Empty(t, q.calls, "no snapshot work after a universe failure")

	latest, err := h.audit.LatestSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, contracts.RunStateFailed, latest.State)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues("FAILED")))
}

func TestRunPipeline_ForceRebuildIsPassedThrough(t *testing.T) {
	q, c := aaplXYZ()
	u := universeOf("AAPL", "XYZ")
	h := newHarness(u, q, c, "run-1")

	_, err := h.orch.RunPipeline(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, u.forced)
}

func TestRunPipeline_CalendarUnavailable(t *testing.T) {
	q, c := aaplXYZ()
	h := newHarness(universeOf("AAPL"), q, c, "run-1")
	h.orch.calendar = calendar.Unavailable(errors.New("corrupt calendar"))

	summary, err := h.orch.RunPipeline(context.Background(), false)
	assert.ErrorIs(t, err, calendar.ErrCalendarUnavailable)
	assert.Nil(t, summary)
	assert.Empty(t, q.calls)
}

func TestRun_ExplicitTradeDate(t *testing.T) {
	q, c := aaplXYZ()

	tests := []struct {
		name    string
		date    string
		wantErr bool
	}{
		{"past session", "2025-01-08", false},
		{"holiday", "2025-01-09", true},
		{"weekend", "2025-01-11", true},
		{"not closed yet", "2025-01-13", true},
		{"malformed", "10-01-2025", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(universeOf("AAPL", "XYZ"), q, c, "run-"+tt.name)
			summary, err := h.orch.Run(context.Background(), Options{TradeDate: tt.date})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.date, summary.TradeDate)
		})
	}
}
