package contracts

import "time"

// AuditRecord explains one symbol's inclusion or exclusion in one run.
// Append-only, one per (run_id, symbol).
// ⭐ SSOT: 종목별 포함/제외 감사 기록
type AuditRecord struct {
	RunID         string      `json:"run_id"`
	Symbol        string      `json:"symbol"`
	Included      bool        `json:"included"`
	ExcludeStage  Stage       `json:"exclude_stage,omitempty"`
	ExcludeReason FailureCode `json:"exclude_reason,omitempty"`
	ExcludeDetail string      `json:"exclude_detail,omitempty"`
	PriceUsed     float64     `json:"price_used"`
	PriceSource   PriceSource `json:"price_source,omitempty"`
	Retries       int         `json:"retries"`
	AsOf          time.Time   `json:"as_of"`
}

// RunTotals are the per-stage counters of a run
type RunTotals struct {
	Symbols   int `json:"symbols"`
	QuoteOK   int `json:"quote_ok"`
	QuoteFail int `json:"quote_fail"`
	ChainOK   int `json:"chain_ok"`
	ChainFail int `json:"chain_fail"`
}

// FailureSample is one entry of the top_failures list
type FailureSample struct {
	Symbol string      `json:"symbol"`
	Stage  Stage       `json:"stage"`
	Reason FailureCode `json:"reason"`
	Detail string      `json:"detail,omitempty"`
}

// RunSummary is the aggregate record written once at the end of a run.
// Its presence is the publish signal for downstream readers.
// ⭐ SSOT: 실행 요약
type RunSummary struct {
	RunID               string              `json:"run_id"`
	UniverseVersion     string              `json:"universe_version"`
	TradeDate           string              `json:"trade_date"`
	State               RunState            `json:"state"`
	StartedAt           time.Time           `json:"started_at"`
	CompletedAt         time.Time           `json:"completed_at"`
	Duration            time.Duration       `json:"duration"`
	Totals              RunTotals           `json:"totals"`
	ExcludedByReason    map[FailureCode]int `json:"excluded_by_reason"`
	ExcludedByStage     map[Stage]int       `json:"excluded_by_stage"`
	TopFailures         []FailureSample     `json:"top_failures"`
	StageDurations      map[RunState]int64  `json:"stage_durations_ms"`
	AlreadyFinal        int                 `json:"already_final"`
	ConsistencyWarnings int                 `json:"consistency_warnings"`
}

// Included returns the number of symbols that made it through every stage
func (s *RunSummary) Included() int {
	excluded := 0
	for _, n := range s.ExcludedByStage {
		excluded += n
	}
	return s.Totals.Symbols - excluded
}
