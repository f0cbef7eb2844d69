package snapshot

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/wonny/eodsnap/internal/contracts"
)

type docKey struct {
	symbol    string
	tradeDate string
}

// MemoryStore is an in-process Store with the same guard semantics as
// the Postgres store. It backs dry runs and tests.
type MemoryStore struct {
	mu     sync.Mutex
	quotes map[docKey]*contracts.QuoteSnapshot
	chains map[docKey]*contracts.OptionChainSnapshot
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quotes: make(map[docKey]*contracts.QuoteSnapshot),
		chains: make(map[docKey]*contracts.OptionChainSnapshot),
	}
}

// UpsertQuote writes q unless a final document exists and no override is given
func (m *MemoryStore) UpsertQuote(_ context.Context, q *contracts.QuoteSnapshot, opts UpsertOptions) (QuoteWrite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := docKey{q.Symbol, q.TradeDate}
	cur, exists := m.quotes[k]
	if exists && cur.IsFinal && !opts.Override {
		return QuoteWrite{Status: contracts.WriteAlreadyFinal, Current: copyQuote(cur)}, nil
	}

	m.quotes[k] = copyQuote(q)
	status := contracts.WriteInserted
	if exists {
		status = contracts.WriteUpdated
	}
	return QuoteWrite{Status: status, Current: copyQuote(q)}, nil
}

// UpsertChain writes c unless a final document exists and no override is given
func (m *MemoryStore) UpsertChain(_ context.Context, c *contracts.OptionChainSnapshot, opts UpsertOptions) (ChainWrite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := docKey{c.Symbol, c.TradeDate}
	cur, exists := m.chains[k]
	if exists && cur.IsFinal && !opts.Override {
		return ChainWrite{Status: contracts.WriteAlreadyFinal, Current: copyChain(cur)}, nil
	}

	m.chains[k] = copyChain(c)
	status := contracts.WriteInserted
	if exists {
		status = contracts.WriteUpdated
	}
	return ChainWrite{Status: status, Current: copyChain(c)}, nil
}

// GetQuote returns the stored quote, final or not
func (m *MemoryStore) GetQuote(_ context.Context, symbol, tradeDate string) (*contracts.QuoteSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotes[docKey{symbol, tradeDate}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyQuote(q), nil
}

// GetChain returns the stored chain, final or not
func (m *MemoryStore) GetChain(_ context.Context, symbol, tradeDate string) (*contracts.OptionChainSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chains[docKey{symbol, tradeDate}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyChain(c), nil
}

// LatestFinalQuote scans for the newest final quote on or before tradeDate
func (m *MemoryStore) LatestFinalQuote(_ context.Context, symbol, tradeDate string) (*contracts.QuoteSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *contracts.QuoteSnapshot
	for k, q := range m.quotes {
		if k.symbol != symbol || !q.IsFinal || k.tradeDate > tradeDate {
			continue
		}
		if best == nil || k.tradeDate > best.TradeDate {
			best = q
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return copyQuote(best), nil
}

// LatestFinalChain scans for the newest final chain on or before tradeDate
func (m *MemoryStore) LatestFinalChain(_ context.Context, symbol, tradeDate string) (*contracts.OptionChainSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *contracts.OptionChainSnapshot
	for k, c := range m.chains {
		if k.symbol != symbol || !c.IsFinal || k.tradeDate > tradeDate {
			continue
		}
		if best == nil || k.tradeDate > best.TradeDate {
			best = c
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return copyChain(best), nil
}

func copyQuote(q *contracts.QuoteSnapshot) *contracts.QuoteSnapshot {
	cp := *q
	if q.RawProviderFields != nil {
		cp.RawProviderFields = append(json.RawMessage(nil), q.RawProviderFields...)
	}
	return &cp
}

func copyChain(c *contracts.OptionChainSnapshot) *contracts.OptionChainSnapshot {
	cp := *c
	cp.Expiries = append([]string(nil), c.Expiries...)
	cp.FailedExpiries = append([]string(nil), c.FailedExpiries...)
	cp.Contracts = make([]contracts.Contract, len(c.Contracts))
	for i, ct := range c.Contracts {
		if ct.EstimatedDelta != nil {
			d := *ct.EstimatedDelta
			ct.EstimatedDelta = &d
		}
		cp.Contracts[i] = ct
	}
	return &cp
}
