package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/provider"
	"github.com/wonny/eodsnap/pkg/httputil"
	"github.com/wonny/eodsnap/pkg/logger"
)

// Name identifies this source in snapshots and metrics
const Name = "yahoo"

// Client handles communication with the Yahoo Finance quote/options endpoints
// ⭐ SSOT: Yahoo API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new Yahoo client
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithComponent(Name),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return Name
}

// getJSON performs a GET against the base URL and classifies failures
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dest interface{}) error {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", fullURL, params.Encode())
	}

	if err := c.httpClient.GetJSON(ctx, fullURL, nil, dest); err != nil {
		return provider.Classify(Name, err)
	}
	return nil
}

// quoteResponse is the /v7/finance/quote envelope
type quoteResponse struct {
	QuoteResponse struct {
		Result []json.RawMessage `json:"result"`
		Error  *apiError         `json:"error"`
	} `json:"quoteResponse"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// quoteItem holds the fields mapped into provider.RawQuote
type quoteItem struct {
	Symbol                     string   `json:"symbol"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose *float64 `json:"regularMarketPreviousClose"`
	MarketState                string   `json:"marketState"`
	RegularMarketTime          int64    `json:"regularMarketTime"`
	RegularMarketVolume        int64    `json:"regularMarketVolume"`
	AverageDailyVolume3Month   int64    `json:"averageDailyVolume3Month"`
	MarketCap                  float64  `json:"marketCap"`
}

// Quotes fetches many symbols in one request.
// Symbols absent from the response are left out of the map.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]provider.QuoteOutcome, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	var resp quoteResponse
	if err := c.getJSON(ctx, "/v7/finance/quote", params, &resp); err != nil {
		return nil, err
	}
	if e := resp.QuoteResponse.Error; e != nil {
		return nil, provider.NewError(Name, contracts.FailureUnknown, fmt.Errorf("%s: %s", e.Code, e.Description))
	}

	out := make(map[string]provider.QuoteOutcome, len(symbols))
	for _, raw := range resp.QuoteResponse.Result {
		var item quoteItem
		if err := json.Unmarshal(raw, &item); err != nil || item.Symbol == "" {
			c.logger.WithField("raw", string(raw)).Warn("Skipping undecodable quote")
			continue
		}
		sym := strings.ToUpper(item.Symbol)

		if item.RegularMarketPrice == nil && item.RegularMarketPreviousClose == nil {
			out[sym] = provider.QuoteOutcome{Err: provider.NewError(Name, contracts.FailureMissingQuoteFields,
				fmt.Errorf("%s has neither regularMarketPrice nor regularMarketPreviousClose", sym))}
			continue
		}

		q := &provider.RawQuote{
			Symbol:      sym,
			MarketState: item.MarketState,
			Volume:      item.RegularMarketVolume,
			AvgVolume:   item.AverageDailyVolume3Month,
			MarketCap:   item.MarketCap,
			Provider:    Name,
			Raw:         raw,
		}
		if item.RegularMarketPrice != nil {
			q.SessionClose = *item.RegularMarketPrice
		}
		if item.RegularMarketPreviousClose != nil {
			q.PriorClose = *item.RegularMarketPreviousClose
		}
		if item.RegularMarketTime > 0 {
			q.AsOf = time.Unix(item.RegularMarketTime, 0).UTC()
		}
		out[sym] = provider.QuoteOutcome{Quote: q}
	}

	return out, nil
}
