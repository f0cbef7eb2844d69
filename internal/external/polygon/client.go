package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/provider"
	"github.com/wonny/eodsnap/pkg/httputil"
	"github.com/wonny/eodsnap/pkg/logger"
)

// Name identifies this source in snapshots and metrics
const Name = "polygon"

// maxPages bounds next_url pagination per request
const maxPages = 20

// Client handles communication with the Polygon REST API (paid, secondary)
// ⭐ SSOT: Polygon API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	apiKey     string
}

// NewClient creates a new Polygon client
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithComponent(Name),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return Name
}

// getJSON fetches an absolute URL or a path under the base URL
func (c *Client) getJSON(ctx context.Context, pathOrURL string, params url.Values, dest interface{}) error {
	fullURL := pathOrURL
	if !strings.HasPrefix(pathOrURL, "http") {
		fullURL = c.baseURL + pathOrURL
	}
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", fullURL, params.Encode())
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	if err := c.httpClient.GetJSON(ctx, fullURL, header, dest); err != nil {
		return provider.Classify(Name, err)
	}
	return nil
}

// marketStatus is the /v1/marketstatus/now response
type marketStatus struct {
	Market     string `json:"market"` // open, closed, extended-hours
	EarlyHours bool   `json:"earlyHours"`
	AfterHours bool   `json:"afterHours"`
}

// state maps the exchange status to the shared market state vocabulary
func (s marketStatus) state() string {
	switch s.Market {
	case "open":
		return "REGULAR"
	case "closed":
		return "CLOSED"
	case "extended-hours":
		if s.EarlyHours {
			return "PRE"
		}
		return "POST"
	default:
		return strings.ToUpper(s.Market)
	}
}

// snapshotResponse is the stocks tickers snapshot envelope
type snapshotResponse struct {
	Status  string            `json:"status"`
	Tickers []json.RawMessage `json:"tickers"`
}

type tickerSnapshot struct {
	Ticker string `json:"ticker"`
	Day    struct {
		Close  float64 `json:"c"`
		Volume float64 `json:"v"`
	} `json:"day"`
	PrevDay struct {
		Close float64 `json:"c"`
	} `json:"prevDay"`
	Updated int64 `json:"updated"` // unix nanoseconds
}

// Quotes fetches a ticker snapshot for many symbols plus the market status.
// Polygon has no per-symbol market state, so the exchange status is used.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]provider.QuoteOutcome, error) {
	var status marketStatus
	if err := c.getJSON(ctx, "/v1/marketstatus/now", nil, &status); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("tickers", strings.Join(symbols, ","))

	var resp snapshotResponse
	if err := c.getJSON(ctx, "/v2/snapshot/locale/us/markets/stocks/tickers", params, &resp); err != nil {
		return nil, err
	}

	state := status.state()
	out := make(map[string]provider.QuoteOutcome, len(symbols))
	for _, raw := range resp.Tickers {
		var item tickerSnapshot
		if err := json.Unmarshal(raw, &item); err != nil || item.Ticker == "" {
			c.logger.WithField("raw", string(raw)).Warn("Skipping undecodable ticker snapshot")
			continue
		}
		sym := strings.ToUpper(item.Ticker)

		if item.Day.Close == 0 && item.PrevDay.Close == 0 {
			out[sym] = provider.QuoteOutcome{Err: provider.NewError(Name, contracts.FailureMissingQuoteFields,
				fmt.Errorf("%s snapshot has no day or prevDay close", sym))}
			continue
		}

		q := &provider.RawQuote{
			Symbol:       sym,
			SessionClose: item.Day.Close,
			PriorClose:   item.PrevDay.Close,
			MarketState:  state,
			Volume:       int64(item.Day.Volume),
			Provider:     Name,
			Raw:          raw,
		}
		if item.Updated > 0 {
			q.AsOf = time.Unix(0, item.Updated).UTC()
		}
		out[sym] = provider.QuoteOutcome{Quote: q}
	}

	return out, nil
}
