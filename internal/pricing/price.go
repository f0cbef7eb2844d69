// Package pricing decides which provider price is the canonical close.
// No other package chooses between session close and prior close.
package pricing

import (
	"errors"
	"strings"

	"github.com/wonny/eodsnap/internal/contracts"
)

// ErrMissingBothPrices is returned when neither price is present and positive
var ErrMissingBothPrices = errors.New(string(contracts.FailureMissingBothPrices))

// Market states reported by providers
const (
	StateClosed   = "CLOSED"
	StateOpen     = "OPEN"
	StateRegular  = "REGULAR"
	StatePre      = "PRE"
	StatePrePre   = "PREPRE"
	StatePost     = "POST"
	StatePostPost = "POSTPOST"
)

// liveStates mean today's session has not produced an official close yet
var liveStates = map[string]bool{
	StateOpen:     true,
	StateRegular:  true,
	StatePre:      true,
	StatePrePre:   true,
	StatePost:     true,
	StatePostPost: true,
}

// Selection is the canonical close and how it was chosen
type Selection struct {
	Price      float64
	Source     contracts.PriceSource
	Provenance contracts.Provenance
	Degraded   bool
}

// SelectCanonicalPrice maps (session close, prior close, market state) to
// the canonical close. It is a pure function.
// ⭐ SSOT: 종가 선택 규칙은 여기서만
func SelectCanonicalPrice(sessionClose, priorClose float64, marketState string) (Selection, error) {
	hasSession := sessionClose > 0
	hasPrior := priorClose > 0
	if !hasSession && !hasPrior {
		return Selection{}, ErrMissingBothPrices
	}

	state := NormalizeState(marketState)

	preferPrior := liveStates[state]
	provenance := contracts.ProvenanceDefaultPath
	switch {
	case state == StateClosed:
		provenance = contracts.ProvenanceStateClosed
	case preferPrior:
		provenance = contracts.ProvenanceStateLivePrior
	}

	if preferPrior {
		if hasPrior {
			return Selection{Price: priorClose, Source: contracts.PriceSourcePriorClose, Provenance: provenance}, nil
		}
		return Selection{
			Price:      sessionClose,
			Source:     contracts.PriceSourceSessionClose,
			Provenance: contracts.ProvenanceFallbackPriorMissing,
			Degraded:   true,
		}, nil
	}

	if hasSession {
		return Selection{Price: sessionClose, Source: contracts.PriceSourceSessionClose, Provenance: provenance}, nil
	}
	return Selection{
		Price:      priorClose,
		Source:     contracts.PriceSourcePriorClose,
		Provenance: contracts.ProvenanceFallbackSessionMissing,
		Degraded:   true,
	}, nil
}

// NormalizeState upper-cases and trims a provider market state
func NormalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsLiveState reports whether the state means the session has not closed
func IsLiveState(s string) bool {
	return liveStates[NormalizeState(s)]
}
