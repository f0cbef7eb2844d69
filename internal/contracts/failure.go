package contracts

// FailureCode classifies why a symbol was excluded from a run.
// Quote codes come from the fetch boundary, chain codes from validation.
// ⭐ SSOT: 제외 사유 코드는 여기서만 정의
type FailureCode string

// Quote fetch failures
const (
	FailureRateLimited        FailureCode = "RATE_LIMITED"
	FailureHTTP404            FailureCode = "HTTP_404"
	FailureTimeout            FailureCode = "TIMEOUT"
	FailureMissingQuoteFields FailureCode = "MISSING_QUOTE_FIELDS"
	FailureUnknown            FailureCode = "UNKNOWN"
)

// Price selection failure
const (
	FailureMissingBothPrices FailureCode = "MISSING_BOTH_PRICES"
)

// Chain diagnostics (non-final chain)
const (
	FailureInsufficientValidContracts FailureCode = "INSUFFICIENT_VALID_CONTRACTS"
	FailureInsufficientStrikeCoverage FailureCode = "INSUFFICIENT_STRIKE_COVERAGE"
	FailureNoExpirations              FailureCode = "NO_EXPIRATIONS"
	FailureLeapsIncomplete            FailureCode = "LEAPS_INCOMPLETE"
)

// Persistence failure
const (
	FailureWriteFailed FailureCode = "WRITE_FAILED"
)

// String returns the code
func (c FailureCode) String() string {
	return string(c)
}

// IsChainDiagnostic reports whether the code explains a non-final chain
func (c FailureCode) IsChainDiagnostic() bool {
	switch c {
	case FailureInsufficientValidContracts, FailureInsufficientStrikeCoverage,
		FailureNoExpirations, FailureLeapsIncomplete:
		return true
	}
	return false
}
