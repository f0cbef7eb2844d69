package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/provider"
)

// optionsResponse is the /v7/finance/options envelope
type optionsResponse struct {
	OptionChain struct {
		Result []optionResult `json:"result"`
		Error  *apiError      `json:"error"`
	} `json:"optionChain"`
}

type optionResult struct {
	UnderlyingSymbol string        `json:"underlyingSymbol"`
	ExpirationDates  []int64       `json:"expirationDates"`
	Options          []optionGroup `json:"options"`
}

type optionGroup struct {
	ExpirationDate int64         `json:"expirationDate"`
	Calls          []optionQuote `json:"calls"`
	Puts           []optionQuote `json:"puts"`
}

type optionQuote struct {
	ContractSymbol    string  `json:"contractSymbol"`
	Strike            float64 `json:"strike"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"openInterest"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	Expiration        int64   `json:"expiration"`
}

func (c *Client) fetchOptions(ctx context.Context, symbol string, params url.Values) (*optionResult, error) {
	var resp optionsResponse
	if err := c.getJSON(ctx, "/v7/finance/options/"+url.PathEscape(symbol), params, &resp); err != nil {
		return nil, err
	}
	if e := resp.OptionChain.Error; e != nil {
		return nil, provider.NewError(Name, contracts.FailureUnknown, fmt.Errorf("%s: %s", e.Code, e.Description))
	}
	if len(resp.OptionChain.Result) == 0 {
		return nil, provider.NewError(Name, contracts.FailureHTTP404, fmt.Errorf("no option chain for %s", symbol))
	}
	return &resp.OptionChain.Result[0], nil
}

// Expirations lists expiry dates (YYYY-MM-DD, ascending)
func (c *Client) Expirations(ctx context.Context, symbol string) ([]string, error) {
	res, err := c.fetchOptions(ctx, symbol, nil)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(res.ExpirationDates))
	out := make([]string, 0, len(res.ExpirationDates))
	for _, ts := range res.ExpirationDates {
		d := unixDate(ts)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Contracts fetches calls and puts of one expiry
func (c *Client) Contracts(ctx context.Context, symbol, expiry string) ([]provider.RawContract, error) {
	d, err := time.Parse(contracts.DateLayout, expiry)
	if err != nil {
		return nil, provider.NewError(Name, contracts.FailureUnknown, fmt.Errorf("invalid expiry %q: %w", expiry, err))
	}

	params := url.Values{}
	params.Set("date", strconv.FormatInt(d.Unix(), 10))

	res, err := c.fetchOptions(ctx, symbol, params)
	if err != nil {
		return nil, err
	}

	var out []provider.RawContract
	for _, group := range res.Options {
		for _, q := range group.Calls {
			out = append(out, toRawContract(q, contracts.OptionCall, expiry))
		}
		for _, q := range group.Puts {
			out = append(out, toRawContract(q, contracts.OptionPut, expiry))
		}
	}
	return out, nil
}

// toRawContract keeps the requested expiry; the chain fetcher derives DTE from it
func toRawContract(q optionQuote, typ contracts.OptionType, expiry string) provider.RawContract {
	return provider.RawContract{
		ContractID:        q.ContractSymbol,
		Type:              typ,
		Strike:            q.Strike,
		Expiry:            expiry,
		Bid:               q.Bid,
		Ask:               q.Ask,
		Volume:            q.Volume,
		OpenInterest:      q.OpenInterest,
		ImpliedVolatility: q.ImpliedVolatility,
	}
}

// unixDate renders an expiration timestamp (midnight UTC) as YYYY-MM-DD
func unixDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(contracts.DateLayout)
}
