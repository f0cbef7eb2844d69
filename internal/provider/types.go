// Package provider is the typed boundary to upstream market data sources.
// Provider JSON is mapped into these shapes inside each client; field
// names of a provider never travel past this package.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wonny/eodsnap/internal/contracts"
)

// RawQuote is one symbol's quote as a provider reported it.
// Prices are unselected; only pricing.SelectCanonicalPrice picks one.
type RawQuote struct {
	Symbol       string
	SessionClose float64
	PriorClose   float64
	MarketState  string
	AsOf         time.Time
	Volume       int64
	AvgVolume    int64
	MarketCap    float64
	Provider     string
	Raw          json.RawMessage // untouched provider object
}

// QuoteOutcome is either a quote or a typed failure for one symbol
type QuoteOutcome struct {
	Quote *RawQuote
	Err   error
}

// RawContract is one option contract before validation
type RawContract struct {
	ContractID        string
	Type              contracts.OptionType
	Strike            float64
	Expiry            string // YYYY-MM-DD
	Bid               float64
	Ask               float64
	Volume            int64
	OpenInterest      int64
	ImpliedVolatility float64
}

// QuoteSource fetches quotes for many symbols in one round trip.
// A returned error applies to every symbol; per-symbol problems are
// reported in the outcome map instead. Symbols missing from the map
// were not served.
type QuoteSource interface {
	Name() string
	Quotes(ctx context.Context, symbols []string) (map[string]QuoteOutcome, error)
}

// ChainSource lists expirations and contracts of one underlying
type ChainSource interface {
	Name() string
	Expirations(ctx context.Context, symbol string) ([]string, error)
	Contracts(ctx context.Context, symbol, expiry string) ([]RawContract, error)
}
