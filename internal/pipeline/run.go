package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/eodsnap/internal/calendar"
	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/metrics"
	"github.com/wonny/eodsnap/pkg/logger"
)

// ErrInvalidTransition is returned when a state change skips or reverses a step
var ErrInvalidTransition = errors.New("invalid run state transition")

// Counters are the per-run tallies; safe for concurrent use
type Counters struct {
	QuoteOK             atomic.Int64
	QuoteFail           atomic.Int64
	ChainOK             atomic.Int64
	ChainFail           atomic.Int64
	AlreadyFinal        atomic.Int64
	ConsistencyWarnings atomic.Int64
	Retries             atomic.Int64
}

// RunContext is everything one run owns.
// It is created per run and handed to each stage; nothing run-scoped is global.
type RunContext struct {
	RunID     string
	TradeDate time.Time // midnight, exchange time zone
	Day       string    // YYYY-MM-DD
	StartedAt time.Time
	Logger    *logger.Logger
	Counters  Counters

	mu             sync.Mutex
	state          RunState
	enteredAt      time.Time
	timer          *metrics.StageTimer
	metrics        *metrics.Metrics
	stageDurations map[contracts.RunState]int64
}

// RunState aliases the shared state type for brevity
type RunState = contracts.RunState

func newRunContext(runID string, tradeDate, now time.Time, log *logger.Logger, m *metrics.Metrics) *RunContext {
	day := calendar.FormatDate(tradeDate)
	return &RunContext{
		RunID:          runID,
		TradeDate:      tradeDate,
		Day:            day,
		StartedAt:      now,
		Logger:         log.WithRun(runID, day),
		state:          contracts.RunStateStarted,
		enteredAt:      time.Now(),
		timer:          m.StartStage(string(contracts.RunStateUniverseLoaded)),
		metrics:        m,
		stageDurations: make(map[contracts.RunState]int64),
	}
}

// State returns the current state
func (rc *RunContext) State() RunState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

// Transition moves to the next state, recording how long reaching it took
func (rc *RunContext) Transition(to RunState) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !rc.state.CanTransition(to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, rc.state, to)
	}

	now := time.Now()
	if to != contracts.RunStateFailed {
		rc.timer.Stop()
		rc.stageDurations[to] = now.Sub(rc.enteredAt).Milliseconds()
		if next, ok := to.Next(); ok {
			rc.timer = rc.metrics.StartStage(string(next))
		}
	}

	rc.Logger.WithFields(map[string]interface{}{
		"from": rc.state,
		"to":   to,
	}).Debug("Run state changed")

	rc.state = to
	rc.enteredAt = now
	return nil
}

// StageDurations returns a copy of the per-state durations in milliseconds
func (rc *RunContext) StageDurations() map[contracts.RunState]int64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	out := make(map[contracts.RunState]int64, len(rc.stageDurations))
	for k, v := range rc.stageDurations {
		out[k] = v
	}
	return out
}
