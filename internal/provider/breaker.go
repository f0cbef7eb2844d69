package provider

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/metrics"
	"github.com/wonny/eodsnap/pkg/logger"
)

// Breaker is a circuit breaker around one upstream source.
// Only retryable failures (rate limit, timeout, 5xx) count against it;
// a 404 for an unknown ticker says nothing about provider health.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
	last atomic.Pointer[Error] // 마지막으로 집계된 실패
}

// NewBreaker trips after 5 consecutive failures or a 20% failure rate
// over at least 20 requests, and probes again after 60s.
func NewBreaker(name string, log *logger.Logger) *Breaker {
	b := &Breaker{name: name}
	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.2
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			pe, ok := Classify(name, err).(*Error)
			if !ok || !pe.Retryable() {
				return ok
			}
			b.last.Store(pe)
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]interface{}{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("Provider circuit breaker state changed")
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(st)
	return b
}

// Execute runs fn through the breaker.
// A call rejected by an open or half-open breaker fails with the retryable
// code of the failures that tripped it, so callers keep backing off.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, b.rejected(err)
	}
	return res, err
}

func (b *Breaker) rejected(err error) *Error {
	if last := b.last.Load(); last != nil {
		return &Error{Code: last.Code, Provider: last.Provider, Status: last.Status, Err: err}
	}
	return &Error{Code: contracts.FailureUnknown, Provider: b.name, Status: http.StatusServiceUnavailable, Err: err}
}

// State returns closed, half-open or open
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// guardedQuotes wraps a QuoteSource with a breaker and request metrics
type guardedQuotes struct {
	src     QuoteSource
	breaker *Breaker
	metrics *metrics.Metrics
}

// GuardQuotes puts a circuit breaker and request counting in front of src
func GuardQuotes(src QuoteSource, log *logger.Logger, m *metrics.Metrics) QuoteSource {
	return &guardedQuotes{src: src, breaker: NewBreaker(src.Name()+"-quotes", log), metrics: m}
}

func (g *guardedQuotes) Name() string {
	return g.src.Name()
}

func (g *guardedQuotes) Quotes(ctx context.Context, symbols []string) (map[string]QuoteOutcome, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.src.Quotes(ctx, symbols)
	})
	g.observe(err)
	if err != nil {
		return nil, Classify(g.src.Name(), err)
	}
	return res.(map[string]QuoteOutcome), nil
}

func (g *guardedQuotes) observe(err error) {
	code := "OK"
	if err != nil {
		code = string(CodeOf(Classify(g.src.Name(), err)))
	}
	g.metrics.ObserveProviderRequest(g.src.Name(), code)
}

// guardedChains wraps a ChainSource with a breaker and request metrics
type guardedChains struct {
	src     ChainSource
	breaker *Breaker
	metrics *metrics.Metrics
}

// GuardChains puts a circuit breaker and request counting in front of src
func GuardChains(src ChainSource, log *logger.Logger, m *metrics.Metrics) ChainSource {
	return &guardedChains{src: src, breaker: NewBreaker(src.Name()+"-chains", log), metrics: m}
}

func (g *guardedChains) Name() string {
	return g.src.Name()
}

func (g *guardedChains) Expirations(ctx context.Context, symbol string) ([]string, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.src.Expirations(ctx, symbol)
	})
	g.observe(err)
	if err != nil {
		return nil, Classify(g.src.Name(), err)
	}
	return res.([]string), nil
}

func (g *guardedChains) Contracts(ctx context.Context, symbol, expiry string) ([]RawContract, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.src.Contracts(ctx, symbol, expiry)
	})
	g.observe(err)
	if err != nil {
		return nil, Classify(g.src.Name(), err)
	}
	return res.([]RawContract), nil
}

func (g *guardedChains) observe(err error) {
	code := "OK"
	if err != nil {
		code = string(CodeOf(Classify(g.src.Name(), err)))
	}
	g.metrics.ObserveProviderRequest(g.src.Name(), code)
}
