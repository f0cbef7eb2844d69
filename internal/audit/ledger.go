// Package audit records why each symbol was included in or excluded from a
// run, and writes the run summary that publishes the run.
package audit

import (
	"sort"
	"sync"

	"github.com/wonny/eodsnap/internal/contracts"
)

// MaxTopFailures bounds RunSummary.TopFailures
const MaxTopFailures = 10

// Ledger collects one audit record per symbol for a run.
// The last record set for a symbol wins.
type Ledger struct {
	mu      sync.Mutex
	runID   string
	records map[string]contracts.AuditRecord
}

// NewLedger creates an empty ledger for runID
func NewLedger(runID string) *Ledger {
	return &Ledger{
		runID:   runID,
		records: make(map[string]contracts.AuditRecord),
	}
}

// Set stores rec, stamping the run id
func (l *Ledger) Set(rec contracts.AuditRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.RunID = l.runID
	l.records[rec.Symbol] = rec
}

// Get returns the record of symbol
func (l *Ledger) Get(symbol string) (contracts.AuditRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[symbol]
	return rec, ok
}

// Len returns the number of records
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Records returns every record ordered by symbol
func (l *Ledger) Records() []contracts.AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]contracts.AuditRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Summarize fills the exclusion breakdown of s from the records.
// Top failures follow pipeline stage order, then symbol.
func (l *Ledger) Summarize(s *contracts.RunSummary) {
	records := l.Records()

	s.ExcludedByReason = make(map[contracts.FailureCode]int)
	s.ExcludedByStage = make(map[contracts.Stage]int)

	var failures []contracts.FailureSample
	for _, rec := range records {
		if rec.Included {
			continue
		}
		s.ExcludedByReason[rec.ExcludeReason]++
		s.ExcludedByStage[rec.ExcludeStage]++
		failures = append(failures, contracts.FailureSample{
			Symbol: rec.Symbol,
			Stage:  rec.ExcludeStage,
			Reason: rec.ExcludeReason,
			Detail: rec.ExcludeDetail,
		})
	}

	sort.SliceStable(failures, func(i, j int) bool {
		return stageOrder(failures[i].Stage) < stageOrder(failures[j].Stage)
	})
	if len(failures) > MaxTopFailures {
		failures = failures[:MaxTopFailures]
	}
	s.TopFailures = failures
	if s.TopFailures == nil {
		s.TopFailures = []contracts.FailureSample{}
	}
}

func stageOrder(s contracts.Stage) int {
	for i, st := range contracts.AllStages() {
		if st == s {
			return i
		}
	}
	return len(contracts.AllStages())
}
