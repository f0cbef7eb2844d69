package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/provider"
	"github.com/wonny/eodsnap/pkg/httputil"
	"github.com/wonny/eodsnap/pkg/logger"
)

const quoteJSON = `{"quoteResponse":{"result":[
 {"symbol":"AAPL","regularMarketPrice":190.0,"regularMarketPreviousClose":188.5,"marketState":"CLOSED",
  "regularMarketTime":1736542800,"regularMarketVolume":51000000,"averageDailyVolume3Month":48000000,"marketCap":2.9e12},
 {"symbol":"XYZ","regularMarketPrice":13.1,"regularMarketPreviousClose":12.5,"marketState":"REGULAR"},
 {"symbol":"BAD","marketState":"CLOSED"}
],"error":null}}`

const optionsJSON = `{"optionChain":{"result":[{"underlyingSymbol":"AAPL",
 "expirationDates":[1740096000,1737072000,1768521600],
 "options":[{"expirationDate":1737072000,
  "calls":[{"contractSymbol":"AAPL250117C00190000","strike":190,"bid":3.1,"ask":3.3,"volume":1200,"openInterest":5400,"impliedVolatility":0.24,"expiration":1737072000}],
  "puts":[{"contractSymbol":"AAPL250117P00190000","strike":190,"bid":2.9,"ask":3.0,"volume":800,"openInterest":4100,"impliedVolatility":0.25,"expiration":1737072000}]
 }]}],"error":null}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(httputil.New(logger.Nop(), 5*time.Second, 100), logger.Nop(), server.URL)
}

func TestQuotes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v7/finance/quote", r.URL.Path)
		assert.Equal(t, "AAPL,XYZ,BAD,GONE", r.URL.Query().Get("symbols"))
		w.Write([]byte(quoteJSON))
	})

	out, err := client.Quotes(context.Background(), []string{"AAPL", "XYZ", "BAD", "GONE"})
	require.NoError(t, err)

	aapl := out["AAPL"].Quote
	require.NotNil(t, aapl)
	assert.Equal(t, 190.0, aapl.SessionClose)
	assert.Equal(t, 188.5, aapl.PriorClose)
	assert.Equal(t, "CLOSED", aapl.MarketState)
	assert.Equal(t, int64(48000000), aapl.AvgVolume)
	assert.Equal(t, time.Unix(1736542800, 0).UTC(), aapl.AsOf)
	assert.Equal(t, Name, aapl.Provider)
	assert.Contains(t, string(aapl.Raw), `"averageDailyVolume3Month":48000000`)

	assert.Equal(t, 12.5, out["XYZ"].Quote.PriorClose)
	assert.Equal(t, contracts.FailureMissingQuoteFields, provider.CodeOf(out["BAD"].Err))

	_, ok := out["GONE"]
	assert.False(t, ok, "unserved symbols are left out")
}

func TestQuotes_RateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Quotes(context.Background(), []string{"AAPL"})
	assert.Equal(t, contracts.FailureRateLimited, provider.CodeOf(err))
}

func TestExpirations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v7/finance/options/AAPL", r.URL.Path)
		w.Write([]byte(optionsJSON))
	})

	exp, err := client.Expirations(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-17", "2025-02-21", "2026-01-16"}, exp)
}

func TestContracts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1737072000", r.URL.Query().Get("date"))
		w.Write([]byte(optionsJSON))
	})

	got, err := client.Contracts(context.Background(), "AAPL", "2025-01-17")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, contracts.OptionCall, got[0].Type)
	assert.Equal(t, "AAPL250117C00190000", got[0].ContractID)
	assert.Equal(t, 3.1, got[0].Bid)
	assert.Equal(t, 3.3, got[0].Ask)
	assert.Equal(t, "2025-01-17", got[0].Expiry)
	assert.Equal(t, contracts.OptionPut, got[1].Type)
	assert.Equal(t, int64(4100), got[1].OpenInterest)
}

func TestContracts_KeepsRequestedExpiry(t *testing.T) {
	// 응답의 expiration이 요청한 만기와 달라도 요청 만기를 유지
	body := `{"optionChain":{"result":[{"underlyingSymbol":"AAPL","expirationDates":[1737072000],
 "options":[{"expirationDate":1737072000,
  "calls":[{"contractSymbol":"AAPL250118C00190000","strike":190,"bid":3.1,"ask":3.3,"expiration":1737158400}],
  "puts":[]}]}],"error":null}}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})

	got, err := client.Contracts(context.Background(), "AAPL", "2025-01-17")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2025-01-17", got[0].Expiry)
}

func TestContracts_EmptyResultIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"optionChain":{"result":[],"error":null}}`))
	})

	_, err := client.Contracts(context.Background(), "NOPT", "2025-01-17")
	assert.Equal(t, contracts.FailureHTTP404, provider.CodeOf(err))
}
