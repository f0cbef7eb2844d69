package polygon

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

func newTestServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return NewClient(httputil.New(logger.Nop(), 5*time.Second, 100), logger.Nop(), server.URL, "pk_test")
}

func TestQuotes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/marketstatus/now", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pk_test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"market":"extended-hours","earlyHours":false,"afterHours":true}`))
	})
	mux.HandleFunc("/v2/snapshot/locale/us/markets/stocks/tickers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MSFT,EMPTY", r.URL.Query().Get("tickers"))
		w.Write([]byte(`{"status":"OK","tickers":[
			{"ticker":"MSFT","day":{"c":421.5,"v":18000000},"prevDay":{"c":418.0},"updated":1736542800000000000},
			{"ticker":"EMPTY","day":{},"prevDay":{}}
		]}`))
	})

	out, err := newTestServer(t, mux).Quotes(context.Background(), []string{"MSFT", "EMPTY"})
	require.NoError(t, err)

	msft := out["MSFT"].Quote
	require.NotNil(t, msft)
	assert.Equal(t, 421.5, msft.SessionClose)
	assert.Equal(t, 418.0, msft.PriorClose)
	assert.Equal(t, "POST", msft.MarketState)
	assert.Equal(t, int64(18000000), msft.Volume)
	assert.Equal(t, Name, msft.Provider)

	assert.Equal(t, contracts.FailureMissingQuoteFields, provider.CodeOf(out["EMPTY"].Err))
}

func TestMarketStatusState(t *testing.T) {
	assert.Equal(t, "CLOSED", marketStatus{Market: "closed"}.state())
	assert.Equal(t, "REGULAR", marketStatus{Market: "open"}.state())
	assert.Equal(t, "PRE", marketStatus{Market: "extended-hours", EarlyHours: true}.state())
}

func TestExpirations_FollowsNextURL(t *testing.T) {
	var serverURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/reference/options/contracts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			assert.Equal(t, "MSFT", r.URL.Query().Get("underlying_ticker"))
			w.Write([]byte(`{"results":[{"ticker":"O:MSFT260116C00400000","expiration_date":"2026-01-16"},
				{"ticker":"O:MSFT250117C00400000","expiration_date":"2025-01-17"}],
				"next_url":"` + serverURL + `/v3/reference/options/contracts?cursor=p2"}`))
			return
		}
		w.Write([]byte(`{"results":[{"ticker":"O:MSFT250117P00400000","expiration_date":"2025-01-17"},
			{"ticker":"O:MSFT250221C00400000","expiration_date":"2025-02-21"}]}`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL
	client := NewClient(httputil.New(logger.Nop(), 5*time.Second, 100), logger.Nop(), server.URL, "pk_test")

	exp, err := client.Expirations(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-17", "2025-02-21", "2026-01-16"}, exp)
}

func TestContracts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/snapshot/options/MSFT", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-01-17", r.URL.Query().Get("expiration_date"))
		w.Write([]byte(`{"results":[
			{"details":{"ticker":"O:MSFT250117C00420000","contract_type":"call","strike_price":420,"expiration_date":"2025-01-17"},
			 "last_quote":{"bid":6.1,"ask":6.4},"day":{"volume":900},"open_interest":7000,"implied_volatility":0.21},
			{"details":{"ticker":"O:MSFT250117P00420000","contract_type":"put","strike_price":420,"expiration_date":"2025-01-17"},
			 "last_quote":{"bid":4.8,"ask":5.0},"day":{"volume":300},"open_interest":3100,"implied_volatility":0.22}
		]}`))
	})

	got, err := newTestServer(t, mux).Contracts(context.Background(), "MSFT", "2025-01-17")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, contracts.OptionCall, got[0].Type)
	assert.Equal(t, 6.1, got[0].Bid)
	assert.Equal(t, 6.4, got[0].Ask)
	assert.Equal(t, contracts.OptionPut, got[1].Type)
	assert.Equal(t, int64(3100), got[1].OpenInterest)
}

func TestExpirations_NoneListed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/reference/options/contracts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})

	_, err := newTestServer(t, mux).Expirations(context.Background(), "NOPT")
	assert.Equal(t, contracts.FailureHTTP404, provider.CodeOf(err))
}
