package chains

import (
	"fmt"
	"math"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/provider"
)

// Validation bounds
const (
	MaxSpreadRatio   = 0.50 // (ask-bid)/ask
	MinStrikeRatio   = 0.5  // strike/spot
	MaxStrikeRatio   = 1.5
	CoverageBand     = 0.20 // ±20% of spot
	MinCoverStrikes  = 3
	deltaRefVol      = 0.25
	deltaRoundFactor = 10000
)

// ValidateContract attaches DTE, runs the per-contract checks and, when valid,
// the moneyness delta estimate.
func ValidateContract(raw provider.RawContract, symbol string, spot float64, dte int) contracts.Contract {
	c := contracts.Contract{
		ContractID:        raw.ContractID,
		Strike:            raw.Strike,
		Expiry:            raw.Expiry,
		DTE:               dte,
		Type:              raw.Type,
		Bid:               raw.Bid,
		Ask:               raw.Ask,
		Volume:            raw.Volume,
		OpenInterest:      raw.OpenInterest,
		ImpliedVolatility: raw.ImpliedVolatility,
	}
	if c.ContractID == "" {
		c.ContractID = occSymbol(symbol, raw)
	}

	if reason := rejection(raw, spot); reason != "" {
		c.RejectionReason = reason
		return c
	}

	delta := EstimateDelta(raw.Type, spot, raw.Strike, dte)
	c.Valid = true
	c.EstimatedDelta = &delta
	return c
}

// rejection returns the first failed check, empty when the contract is valid
func rejection(raw provider.RawContract, spot float64) contracts.RejectionReason {
	switch {
	case raw.Bid <= 0:
		return contracts.RejectBidMissing
	case raw.Ask <= 0:
		return contracts.RejectAskMissing
	case (raw.Ask-raw.Bid)/raw.Ask > MaxSpreadRatio:
		return contracts.RejectSpreadTooWide
	}
	if spot <= 0 {
		return contracts.RejectStrikeOutOfRange
	}
	ratio := raw.Strike / spot
	if ratio < MinStrikeRatio || ratio > MaxStrikeRatio {
		return contracts.RejectStrikeOutOfRange
	}
	return ""
}

// EstimateDelta approximates delta from moneyness and time only, with a fixed
// reference volatility. Calls rise toward 1 in the money; puts mirror at call-1.
// It is a scan filter, not a priced Greek.
func EstimateDelta(typ contracts.OptionType, spot, strike float64, dte int) float64 {
	t := float64(dte) / 365
	if t < 1.0/365 {
		t = 1.0 / 365
	}
	x := math.Log(spot/strike) / (deltaRefVol * math.Sqrt(t))
	call := 0.5 * (1 + math.Erf(x/math.Sqrt2))

	delta := call
	if typ == contracts.OptionPut {
		delta = call - 1
	}
	return math.Round(delta*deltaRoundFactor) / deltaRoundFactor
}

// StrikeCoverage counts distinct valid strikes within ±20% of spot
func StrikeCoverage(cs []contracts.Contract, spot float64) int {
	strikes := make(map[float64]bool)
	for _, c := range cs {
		if !c.Valid || spot <= 0 {
			continue
		}
		if math.Abs(c.Strike/spot-1) <= CoverageBand {
			strikes[c.Strike] = true
		}
	}
	return len(strikes)
}

// Finality decides is_final and the diagnostic reason of a chain
func Finality(cs []contracts.Contract, spot float64, selected int, leapsIncomplete bool, minValid int) (bool, contracts.FailureCode) {
	if selected == 0 {
		return false, contracts.FailureNoExpirations
	}

	valid := 0
	for _, c := range cs {
		if c.Valid {
			valid++
		}
	}
	if valid < minValid {
		return false, contracts.FailureInsufficientValidContracts
	}
	if StrikeCoverage(cs, spot) < MinCoverStrikes {
		return false, contracts.FailureInsufficientStrikeCoverage
	}
	if leapsIncomplete {
		return false, contracts.FailureLeapsIncomplete
	}
	return true, ""
}

// occSymbol builds an OCC-style id when the provider gave none
func occSymbol(symbol string, raw provider.RawContract) string {
	cp := "C"
	if raw.Type == contracts.OptionPut {
		cp = "P"
	}
	date := raw.Expiry
	if len(date) == len(contracts.DateLayout) {
		date = date[2:4] + date[5:7] + date[8:10]
	}
	return fmt.Sprintf("%s%s%s%08d", symbol, date, cp, int64(math.Round(raw.Strike*1000)))
}
