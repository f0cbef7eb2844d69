package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsnap/internal/api/handlers"
	"github.com/wonny/eodsnap/internal/audit"
	"github.com/wonny/eodsnap/internal/calendar"
	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/metrics"
	"github.com/wonny/eodsnap/internal/snapshot"
	"github.com/wonny/eodsnap/internal/universe"
	"github.com/wonny/eodsnap/pkg/logger"
)

// Monday 2025-01-13 before the close; the expected session is Friday 2025-01-10
func mondayMorning() time.Time {
	ny, _ := time.LoadLocation("America/New_York")
	return time.Date(2025, 1, 13, 10, 0, 0, 0, ny)
}

func delta(d float64) *float64 { return &d }

func seed(t *testing.T) (*snapshot.MemoryStore, *audit.MemoryRepository, *universe.MemoryRepository) {
	t.Helper()
	ctx := context.Background()
	store := snapshot.NewMemoryStore()

	for _, q := range []*contracts.QuoteSnapshot{
		{Symbol: "AAPL", TradeDate: "2025-01-10", CanonicalClosePrice: 190, PriceSource: contracts.PriceSourceSessionClose, IsFinal: true, RunID: "run-1"},
		{Symbol: "OLD", TradeDate: "2025-01-08", CanonicalClosePrice: 10, PriceSource: contracts.PriceSourceSessionClose, IsFinal: true, RunID: "run-0"},
	} {
		_, err := store.UpsertQuote(ctx, q, snapshot.UpsertOptions{})
		require.NoError(t, err)
	}

	_, err := store.UpsertChain(ctx, &contracts.OptionChainSnapshot{
		Symbol:     "AAPL",
		TradeDate:  "2025-01-10",
		StockPrice: 190,
		Expiries:   []string{"2025-01-17", "2026-02-20"},
		Contracts: []contracts.Contract{
			{ContractID: "near-195", Type: contracts.OptionCall, Strike: 195, Expiry: "2025-01-17", DTE: 7, Bid: 2.0, Ask: 2.2, Valid: true, EstimatedDelta: delta(0.35)},
			{ContractID: "near-200", Type: contracts.OptionCall, Strike: 200, Expiry: "2025-01-17", DTE: 7, Bid: 0.5, Ask: 0.6, Valid: true, EstimatedDelta: delta(0.15)},
			{ContractID: "leaps-150", Type: contracts.OptionCall, Strike: 150, Expiry: "2026-02-20", DTE: 406, Bid: 48, Ask: 49, OpenInterest: 500, Valid: true, EstimatedDelta: delta(0.85)},
			{ContractID: "leaps-put", Type: contracts.OptionPut, Strike: 150, Expiry: "2026-02-20", DTE: 406, Bid: 5, Ask: 5.5, Valid: true, EstimatedDelta: delta(-0.15)},
		},
		TotalContracts: 4,
		ValidContracts: 4,
		IsFinal:        true,
		RunID:          "run-1",
	}, snapshot.UpsertOptions{})
	require.NoError(t, err)

	auditRepo := audit.NewMemoryRepository()
	require.NoError(t, auditRepo.SaveRun(ctx, []contracts.AuditRecord{
		{RunID: "run-1", Symbol: "AAPL", Included: true, PriceUsed: 190},
		{RunID: "run-1", Symbol: "BAD", ExcludeStage: contracts.StageQuote, ExcludeReason: contracts.FailureHTTP404},
	}, &contracts.RunSummary{
		RunID:       "run-1",
		TradeDate:   "2025-01-10",
		State:       contracts.RunStateSummarized,
		CompletedAt: time.Date(2025, 1, 10, 22, 0, 0, 0, time.UTC),
		Totals:      contracts.RunTotals{Symbols: 2, QuoteOK: 1, QuoteFail: 1, ChainOK: 1},
	}))

	uniRepo := universe.NewMemoryRepository()
	return store, auditRepo, uniRepo
}

func newTestRouter(t *testing.T) (http.Handler, *metrics.Metrics) {
	store, auditRepo, uniRepo := seed(t)
	log := logger.Nop()
	m := metrics.New()

	reader := snapshot.NewReader(store, nil, calendar.NYSE(), log).WithClock(mondayMorning)
	return NewRouter(Handlers{
		Snapshots: handlers.NewSnapshotHandler(reader, log),
		Runs:      handlers.NewRunsHandler(auditRepo, log),
		Universe:  handlers.NewUniverseHandler(uniRepo, log),
		Metrics:   m.Handler(),
	}, log), m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := get(t, h, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"eodsnap-api"}`, rec.Body.String())
}

func TestGetClose(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"expected day", "/api/snapshots/aapl/close", http.StatusOK},
		{"explicit date", "/api/snapshots/AAPL/close?date=2025-01-10", http.StatusOK},
		{"stale", "/api/snapshots/OLD/close", http.StatusConflict},
		{"missing", "/api/snapshots/XYZ/close", http.StatusNotFound},
		{"bad date", "/api/snapshots/AAPL/close?date=2025/01/10", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				return
			}
			var q contracts.QuoteSnapshot
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
			assert.Equal(t, "AAPL", q.Symbol)
			assert.InDelta(t, 190.0, q.CanonicalClosePrice, 1e-9)
		})
	}
}

func TestGetCalls(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name string
		path string
		code int
		want []string
	}{
		{"all near calls", "/api/snapshots/AAPL/calls?dte_max=60", http.StatusOK, []string{"near-195", "near-200"}},
		{"min bid", "/api/snapshots/AAPL/calls?dte_max=60&min_bid=1", http.StatusOK, []string{"near-195"}},
		{"strike band", "/api/snapshots/AAPL/calls?strike_min=1.04", http.StatusOK, []string{"near-200"}},
		{"bad dte", "/api/snapshots/AAPL/calls?dte_max=soon", http.StatusBadRequest, nil},
		{"bad bid", "/api/snapshots/AAPL/calls?min_bid=x", http.StatusBadRequest, nil},
		{"no chain", "/api/snapshots/XYZ/calls", http.StatusNotFound, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				return
			}

			var view snapshot.ChainView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
			var ids []string
			for _, c := range view.Contracts {
				ids = append(ids, c.ContractID)
				assert.Equal(t, c.Bid, c.Premium)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestGetLeaps(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := get(t, h, "/api/snapshots/AAPL/leaps")
	require.Equal(t, http.StatusOK, rec.Code)

	var view snapshot.ChainView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Contracts, 1)
	assert.Equal(t, "leaps-150", view.Contracts[0].ContractID)
	assert.InDelta(t, 49.0, view.Contracts[0].Premium, 1e-9)

	rec = get(t, h, "/api/snapshots/AAPL/leaps?min_oi=1000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"contracts":[]`)

	rec = get(t, h, "/api/snapshots/AAPL/leaps?min_delta=high")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRuns(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := get(t, h, "/api/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var s contracts.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, contracts.RunStateSummarized, s.State)

	rec = get(t, h, "/api/runs/run-1/records?excluded=true")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count   int                     `json:"count"`
		Records []contracts.AuditRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "BAD", body.Records[0].Symbol)

	rec = get(t, h, "/api/runs/unknown/records")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records":[]`)
}

func TestRunsLatest_Empty(t *testing.T) {
	log := logger.Nop()
	h := NewRouter(Handlers{
		Snapshots: handlers.NewSnapshotHandler(snapshot.NewReader(snapshot.NewMemoryStore(), nil, calendar.NYSE(), log), log),
		Runs:      handlers.NewRunsHandler(audit.NewMemoryRepository(), log),
	}, log)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/runs/latest").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/universe/latest").Code, "route not mounted")
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code, "route not mounted")
}

func TestUniverseLatest(t *testing.T) {
	h, _ := newTestRouter(t)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/universe/latest").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, m := newTestRouter(t)
	m.ObserveRun("SUMMARIZED", time.Now())

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "runs_total")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("SUMMARIZED")))
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestRouter(t)

	paths := []string{
		"/api/runs/latest",
		"/api/snapshots/AAPL/close",
		"/api/runs/run-1/records",
		"/health",
	}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}
