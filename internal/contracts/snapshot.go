package contracts

import (
	"encoding/json"
	"time"
)

// DateLayout is the string form of a trading day embedded in snapshots
const DateLayout = "2006-01-02"

// PriceSource is which provider field became the canonical close
type PriceSource string

const (
	PriceSourceSessionClose PriceSource = "SESSION_CLOSE"
	PriceSourcePriorClose   PriceSource = "PRIOR_CLOSE"
)

// Provenance tags the decision path of the price selection
type Provenance string

const (
	ProvenanceStateClosed            Provenance = "STATE_CLOSED"
	ProvenanceStateLivePrior         Provenance = "STATE_LIVE_PRIOR"
	ProvenanceDefaultPath            Provenance = "DEFAULT_PATH"
	ProvenanceFallbackSessionMissing Provenance = "FALLBACK_SESSION_MISSING"
	ProvenanceFallbackPriorMissing   Provenance = "FALLBACK_PRIOR_MISSING"
)

// IsDegraded reports whether the preferred field was missing
func (p Provenance) IsDegraded() bool {
	return p == ProvenanceFallbackSessionMissing || p == ProvenanceFallbackPriorMissing
}

// QuoteSnapshot is the immutable end-of-day quote for (symbol, trade_date)
// ⭐ SSOT: 종가 스냅샷 문서
type QuoteSnapshot struct {
	Symbol              string          `json:"symbol"`
	TradeDate           string          `json:"trade_date"` // YYYY-MM-DD
	CanonicalClosePrice float64         `json:"canonical_close_price"`
	PriceSource         PriceSource     `json:"price_source"`
	Provenance          Provenance      `json:"provenance"`
	SessionClosePrice   float64         `json:"session_close_price"`
	PriorClosePrice     float64         `json:"prior_close_price"`
	MarketState         string          `json:"market_state"`
	AsOf                time.Time       `json:"as_of"`
	Volume              int64           `json:"volume"`
	AvgVolume           int64           `json:"avg_volume"`
	MarketCap           float64         `json:"market_cap"`
	Provider            string          `json:"provider"`
	RunID               string          `json:"run_id"`
	IsFinal             bool            `json:"is_final"`
	RawProviderFields   json.RawMessage `json:"raw_provider_fields,omitempty"`
}

// OptionType is call or put
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// RejectionReason explains why a contract failed validation
type RejectionReason string

const (
	RejectBidMissing       RejectionReason = "BID_MISSING"
	RejectAskMissing       RejectionReason = "ASK_MISSING"
	RejectSpreadTooWide    RejectionReason = "SPREAD_TOO_WIDE"
	RejectStrikeOutOfRange RejectionReason = "STRIKE_OUT_OF_RANGE"
)

// Contract is one option contract as captured at the close.
// Bid and ask are kept separately, never averaged.
type Contract struct {
	ContractID        string          `json:"contract_id"`
	Strike            float64         `json:"strike"`
	Expiry            string          `json:"expiry"` // YYYY-MM-DD
	DTE               int             `json:"dte"`
	Type              OptionType      `json:"type"`
	Bid               float64         `json:"bid"`
	Ask               float64         `json:"ask"`
	Volume            int64           `json:"volume"`
	OpenInterest      int64           `json:"open_interest"`
	ImpliedVolatility float64         `json:"implied_volatility"`
	EstimatedDelta    *float64        `json:"estimated_delta,omitempty"`
	Valid             bool            `json:"valid"`
	RejectionReason   RejectionReason `json:"rejection_reason,omitempty"`
}

// Delta returns the estimated delta, 0 when the contract was rejected
func (c Contract) Delta() float64 {
	if c.EstimatedDelta == nil {
		return 0
	}
	return *c.EstimatedDelta
}

// Consistency is the outcome of the chain ↔ quote price cross-check
type Consistency string

const (
	ConsistencyOK            Consistency = "OK"
	ConsistencyQuoteMissing  Consistency = "QUOTE_MISSING"
	ConsistencyPriceMismatch Consistency = "PRICE_MISMATCH"
)

// OptionChainSnapshot is the immutable end-of-day chain for (symbol, trade_date)
// ⭐ SSOT: 옵션 체인 스냅샷 문서
type OptionChainSnapshot struct {
	Symbol           string      `json:"symbol"`
	TradeDate        string      `json:"trade_date"`
	StockPrice       float64     `json:"stock_price"`
	Expiries         []string    `json:"expiries"`
	FailedExpiries   []string    `json:"failed_expiries,omitempty"`
	Contracts        []Contract  `json:"contracts"`
	TotalContracts   int         `json:"total_contracts"`
	ValidContracts   int         `json:"valid_contracts"`
	DiagnosticReason FailureCode `json:"diagnostic_reason,omitempty"`
	Consistency      Consistency `json:"consistency,omitempty"`
	Provider         string      `json:"provider"`
	RunID            string      `json:"run_id"`
	IsFinal          bool        `json:"is_final"`
}

// WriteStatus is the result of a guarded upsert
type WriteStatus string

const (
	WriteInserted     WriteStatus = "INSERTED"
	WriteUpdated      WriteStatus = "UPDATED"
	WriteAlreadyFinal WriteStatus = "ALREADY_FINAL"
)
