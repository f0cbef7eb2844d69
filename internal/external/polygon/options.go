package polygon

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/provider"
)

// referenceResponse is the /v3/reference/options/contracts page
type referenceResponse struct {
	Results []struct {
		Ticker         string `json:"ticker"`
		ExpirationDate string `json:"expiration_date"`
	} `json:"results"`
	NextURL string `json:"next_url"`
}

// chainResponse is the /v3/snapshot/options/{underlying} page
type chainResponse struct {
	Results []struct {
		Details struct {
			Ticker         string  `json:"ticker"`
			ContractType   string  `json:"contract_type"`
			StrikePrice    float64 `json:"strike_price"`
			ExpirationDate string  `json:"expiration_date"`
		} `json:"details"`
		LastQuote struct {
			Bid float64 `json:"bid"`
			Ask float64 `json:"ask"`
		} `json:"last_quote"`
		Day struct {
			Volume float64 `json:"volume"`
		} `json:"day"`
		OpenInterest      int64   `json:"open_interest"`
		ImpliedVolatility float64 `json:"implied_volatility"`
	} `json:"results"`
	NextURL string `json:"next_url"`
}

// Expirations lists distinct unexpired expiry dates (ascending)
func (c *Client) Expirations(ctx context.Context, symbol string) ([]string, error) {
	params := url.Values{}
	params.Set("underlying_ticker", symbol)
	params.Set("expired", "false")
	params.Set("limit", "1000")

	seen := make(map[string]bool)
	next, nextParams := "/v3/reference/options/contracts", params
	for page := 0; next != "" && page < maxPages; page++ {
		var resp referenceResponse
		if err := c.getJSON(ctx, next, nextParams, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			if r.ExpirationDate != "" {
				seen[r.ExpirationDate] = true
			}
		}
		next, nextParams = resp.NextURL, nil
	}

	if len(seen) == 0 {
		return nil, provider.NewError(Name, contracts.FailureHTTP404, fmt.Errorf("no listed options for %s", symbol))
	}

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// Contracts fetches calls and puts of one expiry
func (c *Client) Contracts(ctx context.Context, symbol, expiry string) ([]provider.RawContract, error) {
	params := url.Values{}
	params.Set("expiration_date", expiry)
	params.Set("limit", "250")

	var out []provider.RawContract
	next, nextParams := "/v3/snapshot/options/"+url.PathEscape(symbol), params
	for page := 0; next != "" && page < maxPages; page++ {
		var resp chainResponse
		if err := c.getJSON(ctx, next, nextParams, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			typ := contracts.OptionCall
			if r.Details.ContractType == "put" {
				typ = contracts.OptionPut
			}
			out = append(out, provider.RawContract{
				ContractID:        r.Details.Ticker,
				Type:              typ,
				Strike:            r.Details.StrikePrice,
				Expiry:            expiry,
				Bid:               r.LastQuote.Bid,
				Ask:               r.LastQuote.Ask,
				Volume:            int64(r.Day.Volume),
				OpenInterest:      r.OpenInterest,
				ImpliedVolatility: r.ImpliedVolatility,
			})
		}
		next, nextParams = resp.NextURL, nil
	}

	return out, nil
}
