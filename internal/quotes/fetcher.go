package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/metrics"
	"github.com/wonny/eodsnap/internal/provider"
	"github.com/wonny/eodsnap/pkg/logger"
	"github.com/wonny/eodsnap/pkg/retry"
)

// QuoteResult is either a populated quote or a typed failure for one symbol
type QuoteResult struct {
	Symbol   string
	Quote    *provider.RawQuote
	Failure  contracts.FailureCode // empty on success
	Err      error
	Attempts int
}

// OK reports whether the quote was served
func (r QuoteResult) OK() bool {
	return r.Quote != nil && r.Failure == ""
}

// Retries returns the attempts beyond the first
func (r QuoteResult) Retries() int {
	if r.Attempts <= 1 {
		return 0
	}
	return r.Attempts - 1
}

// Fetcher requests quotes in fixed-size batches, one batch at a time
// ⭐ SSOT: 종가 시세 일괄 수집은 여기서만
type Fetcher struct {
	source    provider.QuoteSource
	policy    *retry.Policy
	batchSize int
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// NewFetcher creates a quote fetcher
func NewFetcher(source provider.QuoteSource, policy *retry.Policy, batchSize int, log *logger.Logger, m *metrics.Metrics) *Fetcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Fetcher{
		source:    source,
		policy:    policy,
		batchSize: batchSize,
		logger:    log.WithComponent("quotes"),
		metrics:   m,
	}
}

// FetchQuotes returns one result per distinct symbol.
// A failing symbol never fails its batch; batches run sequentially.
func (f *Fetcher) FetchQuotes(ctx context.Context, symbols []string) map[string]QuoteResult {
	unique := normalize(symbols)
	results := make(map[string]QuoteResult, len(unique))

	for start := 0; start < len(unique); start += f.batchSize {
		end := start + f.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]

		for sym, r := range f.fetchBatch(ctx, batch) {
			results[sym] = r
		}

		f.logger.WithFields(map[string]interface{}{
			"batch_start": start,
			"batch_size":  len(batch),
			"total":       len(unique),
		}).Debug("Quote batch resolved")
	}

	return results
}

// fetchBatch resolves one batch, retrying only the symbols whose failure is retryable
func (f *Fetcher) fetchBatch(ctx context.Context, batch []string) map[string]QuoteResult {
	results := make(map[string]QuoteResult, len(batch))
	lastErr := make(map[string]error)
	pending := batch

	for attempt := 1; len(pending) > 0; attempt++ {
		out, callErr := f.source.Quotes(ctx, pending)
		if callErr != nil {
			f.logger.WithError(callErr).WithFields(map[string]interface{}{
				"attempt": attempt,
				"symbols": len(pending),
			}).Warn("Quote batch request failed")
		}

		var retryNext []string
		for _, sym := range pending {
			err := f.symbolError(sym, out, callErr)
			if err == nil {
				results[sym] = QuoteResult{Symbol: sym, Quote: out[sym].Quote, Attempts: attempt}
				continue
			}
			if retry.IsRetryable(err) && f.policy.CanRetry(attempt) {
				lastErr[sym] = err
				retryNext = append(retryNext, sym)
				continue
			}
			results[sym] = failed(sym, err, attempt)
		}

		pending = retryNext
		if len(pending) == 0 {
			break
		}

		f.metrics.ObserveRetries(string(contracts.StageQuote), len(pending))
		if err := f.policy.Wait(ctx, attempt); err != nil {
			// cancelled: unresolved symbols keep their last retryable failure
			for _, sym := range pending {
				results[sym] = failed(sym, lastErr[sym], attempt)
			}
			break
		}
	}

	return results
}

// symbolError returns the typed failure of one symbol in a response, nil on success
func (f *Fetcher) symbolError(sym string, out map[string]provider.QuoteOutcome, callErr error) error {
	if callErr != nil {
		return provider.Classify(f.source.Name(), callErr)
	}
	o, ok := out[sym]
	switch {
	case !ok:
		return provider.NewError(f.source.Name(), contracts.FailureHTTP404, fmt.Errorf("%s not in response", sym))
	case o.Err != nil:
		return provider.Classify(f.source.Name(), o.Err)
	case o.Quote == nil:
		return provider.NewError(f.source.Name(), contracts.FailureMissingQuoteFields, errors.New("empty quote"))
	}
	return nil
}

func failed(sym string, err error, attempts int) QuoteResult {
	return QuoteResult{
		Symbol:   sym,
		Failure:  provider.CodeOf(err),
		Err:      err,
		Attempts: attempts,
	}
}

// normalize upper-cases, trims and de-duplicates while keeping order
func normalize(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
