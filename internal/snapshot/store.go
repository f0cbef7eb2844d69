// Package snapshot persists immutable per (symbol, trade_date) quote and
// option chain documents and serves the read contract downstream scans use.
package snapshot

import (
	"context"
	"errors"

	"github.com/wonny/eodsnap/internal/contracts"
)

var (
	// ErrNotFound is returned by a Store when no document exists for the key
	ErrNotFound = errors.New("snapshot not found")

	// ErrPriceNotFound means no final quote snapshot exists for the request
	ErrPriceNotFound = errors.New("price not found")

	// ErrChainNotFound means no final option chain snapshot exists for the request
	ErrChainNotFound = errors.New("option chain not found")

	// ErrStaleSnapshot means only a final snapshot older than the expected trading day exists
	ErrStaleSnapshot = errors.New("stale snapshot")
)

// UpsertOptions controls a guarded write
type UpsertOptions struct {
	// Override re-writes a final document (administrative use only)
	Override bool
}

// WriteResult is the outcome of a guarded upsert; Current is the stored document
type WriteResult[T any] struct {
	Status  contracts.WriteStatus
	Current *T
}

type (
	QuoteWrite = WriteResult[contracts.QuoteSnapshot]
	ChainWrite = WriteResult[contracts.OptionChainSnapshot]
)

// Store is a document store keyed by (symbol, trade_date).
// An existing final document is never replaced unless Override is set;
// that attempt returns ALREADY_FINAL with the stored document and no error.
// The check and the write are one atomic step per document.
type Store interface {
	UpsertQuote(ctx context.Context, q *contracts.QuoteSnapshot, opts UpsertOptions) (QuoteWrite, error)
	UpsertChain(ctx context.Context, c *contracts.OptionChainSnapshot, opts UpsertOptions) (ChainWrite, error)

	GetQuote(ctx context.Context, symbol, tradeDate string) (*contracts.QuoteSnapshot, error)
	GetChain(ctx context.Context, symbol, tradeDate string) (*contracts.OptionChainSnapshot, error)

	// LatestFinalQuote returns the newest final quote on or before tradeDate
	LatestFinalQuote(ctx context.Context, symbol, tradeDate string) (*contracts.QuoteSnapshot, error)
	// LatestFinalChain returns the newest final chain on or before tradeDate
	LatestFinalChain(ctx context.Context, symbol, tradeDate string) (*contracts.OptionChainSnapshot, error)
}
