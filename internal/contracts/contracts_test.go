package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunState_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from RunState
		to   RunState
		want bool
	}{
		{"start to universe", RunStateStarted, RunStateUniverseLoaded, true},
		{"universe to quotes", RunStateUniverseLoaded, RunStateQuotesFetched, true},
		{"persisted to summarized", RunStatePersisted, RunStateSummarized, true},
		{"skip a state", RunStateStarted, RunStateQuotesFetched, false},
		{"backwards", RunStateChainsFetched, RunStateQuotesFetched, false},
		{"fail from middle", RunStateQuotesFetched, RunStateFailed, true},
		{"nothing after summarized", RunStateSummarized, RunStateFailed, false},
		{"nothing after failed", RunStateFailed, RunStateStarted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestRunState_Next(t *testing.T) {
	next, ok := RunStateChainsFetched.Next()
	assert.True(t, ok)
	assert.Equal(t, RunStatePersisted, next)

	_, ok = RunStateSummarized.Next()
	assert.False(t, ok)
}

func TestIsValidStage(t *testing.T) {
	assert.True(t, IsValidStage("QUOTE"))
	assert.False(t, IsValidStage("S2_SIGNALS"))
}

func TestProvenance_IsDegraded(t *testing.T) {
	assert.False(t, ProvenanceStateClosed.IsDegraded())
	assert.False(t, ProvenanceDefaultPath.IsDegraded())
	assert.True(t, ProvenanceFallbackPriorMissing.IsDegraded())
	assert.True(t, ProvenanceFallbackSessionMissing.IsDegraded())
}

func TestFailureCode_IsChainDiagnostic(t *testing.T) {
	assert.True(t, FailureLeapsIncomplete.IsChainDiagnostic())
	assert.False(t, FailureRateLimited.IsChainDiagnostic())
}

func TestRunSummary_Included(t *testing.T) {
	s := RunSummary{
		Totals:          RunTotals{Symbols: 10},
		ExcludedByStage: map[Stage]int{StageQuote: 2, StageChain: 1},
	}
	assert.Equal(t, 7, s.Included())
}

func TestTier_Rank(t *testing.T) {
	assert.Less(t, Tier1.Rank(), Tier2.Rank())
	assert.Less(t, Tier2.Rank(), Tier3.Rank())
}
