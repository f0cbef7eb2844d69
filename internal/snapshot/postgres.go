package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/eodsnap/internal/contracts"
)

// PostgresStore persists snapshots in the snapshot schema.
// The final-document guard lives in the ON CONFLICT ... WHERE clause so
// concurrent runs cannot interleave the check and the write.
// ⭐ SSOT: 스냅샷 저장/조회는 여기서만
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new snapshot store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const upsertQuoteSQL = `
	INSERT INTO snapshot.quote_snapshots (
		symbol, trade_date, canonical_close_price, price_source, provenance,
		session_close_price, prior_close_price, market_state, as_of,
		volume, avg_volume, market_cap, provider, run_id, is_final, raw_provider_fields
	) VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (symbol, trade_date) DO UPDATE SET
		canonical_close_price = EXCLUDED.canonical_close_price,
		price_source = EXCLUDED.price_source,
		provenance = EXCLUDED.provenance,
		session_close_price = EXCLUDED.session_close_price,
		prior_close_price = EXCLUDED.prior_close_price,
		market_state = EXCLUDED.market_state,
		as_of = EXCLUDED.as_of,
		volume = EXCLUDED.volume,
		avg_volume = EXCLUDED.avg_volume,
		market_cap = EXCLUDED.market_cap,
		provider = EXCLUDED.provider,
		run_id = EXCLUDED.run_id,
		is_final = EXCLUDED.is_final,
		raw_provider_fields = EXCLUDED.raw_provider_fields,
		updated_at = NOW()
	WHERE NOT snapshot.quote_snapshots.is_final OR $17::boolean
	RETURNING (xmax = 0) AS inserted
`

const quoteColumns = `
	symbol, trade_date::text, canonical_close_price, price_source, provenance,
	session_close_price, prior_close_price, market_state, as_of,
	volume, avg_volume, market_cap, provider, run_id, is_final, raw_provider_fields
`

// UpsertQuote writes q; a final row is left untouched unless opts.Override
func (s *PostgresStore) UpsertQuote(ctx context.Context, q *contracts.QuoteSnapshot, opts UpsertOptions) (QuoteWrite, error) {
	var raw []byte
	if len(q.RawProviderFields) > 0 {
		raw = q.RawProviderFields
	}

	var inserted bool
	err := s.pool.QueryRow(ctx, upsertQuoteSQL,
		q.Symbol, q.TradeDate, q.CanonicalClosePrice, string(q.PriceSource), string(q.Provenance),
		q.SessionClosePrice, q.PriorClosePrice, q.MarketState, q.AsOf,
		q.Volume, q.AvgVolume, q.MarketCap, q.Provider, q.RunID, q.IsFinal, raw,
		opts.Override,
	).Scan(&inserted)

	if errors.Is(err, pgx.ErrNoRows) {
		cur, gerr := s.GetQuote(ctx, q.Symbol, q.TradeDate)
		if gerr != nil {
			return QuoteWrite{}, fmt.Errorf("failed to reload final quote %s/%s: %w", q.Symbol, q.TradeDate, gerr)
		}
		return QuoteWrite{Status: contracts.WriteAlreadyFinal, Current: cur}, nil
	}
	if err != nil {
		return QuoteWrite{}, fmt.Errorf("failed to upsert quote %s/%s: %w", q.Symbol, q.TradeDate, err)
	}

	status := contracts.WriteUpdated
	if inserted {
		status = contracts.WriteInserted
	}
	return QuoteWrite{Status: status, Current: copyQuote(q)}, nil
}

// GetQuote retrieves the quote snapshot for a symbol and trade date
func (s *PostgresStore) GetQuote(ctx context.Context, symbol, tradeDate string) (*contracts.QuoteSnapshot, error) {
	query := `SELECT ` + quoteColumns + `
		FROM snapshot.quote_snapshots
		WHERE symbol = $1 AND trade_date = $2::date
	`
	return scanQuote(s.pool.QueryRow(ctx, query, symbol, tradeDate))
}

// LatestFinalQuote retrieves the newest final quote on or before tradeDate
func (s *PostgresStore) LatestFinalQuote(ctx context.Context, symbol, tradeDate string) (*contracts.QuoteSnapshot, error) {
	query := `SELECT ` + quoteColumns + `
		FROM snapshot.quote_snapshots
		WHERE symbol = $1 AND trade_date <= $2::date AND is_final
		ORDER BY trade_date DESC
		LIMIT 1
	`
	return scanQuote(s.pool.QueryRow(ctx, query, symbol, tradeDate))
}

func scanQuote(row pgx.Row) (*contracts.QuoteSnapshot, error) {
	var q contracts.QuoteSnapshot
	var priceSource, provenance string
	var raw []byte

	err := row.Scan(
		&q.Symbol, &q.TradeDate, &q.CanonicalClosePrice, &priceSource, &provenance,
		&q.SessionClosePrice, &q.PriorClosePrice, &q.MarketState, &q.AsOf,
		&q.Volume, &q.AvgVolume, &q.MarketCap, &q.Provider, &q.RunID, &q.IsFinal, &raw,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan quote snapshot: %w", err)
	}

	q.PriceSource = contracts.PriceSource(priceSource)
	q.Provenance = contracts.Provenance(provenance)
	if len(raw) > 0 {
		q.RawProviderFields = json.RawMessage(raw)
	}
	return &q, nil
}

const upsertChainSQL = `
	INSERT INTO snapshot.option_chain_snapshots (
		symbol, trade_date, stock_price, expiries, failed_expiries, contracts,
		total_contracts, valid_contracts, diagnostic_reason, consistency,
		provider, run_id, is_final
	) VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (symbol, trade_date) DO UPDATE SET
		stock_price = EXCLUDED.stock_price,
		expiries = EXCLUDED.expiries,
		failed_expiries = EXCLUDED.failed_expiries,
		contracts = EXCLUDED.contracts,
		total_contracts = EXCLUDED.total_contracts,
		valid_contracts = EXCLUDED.valid_contracts,
		diagnostic_reason = EXCLUDED.diagnostic_reason,
		consistency = EXCLUDED.consistency,
		provider = EXCLUDED.provider,
		run_id = EXCLUDED.run_id,
		is_final = EXCLUDED.is_final,
		updated_at = NOW()
	WHERE NOT snapshot.option_chain_snapshots.is_final OR $14::boolean
	RETURNING (xmax = 0) AS inserted
`

const chainColumns = `
	symbol, trade_date::text, stock_price, expiries, failed_expiries, contracts,
	total_contracts, valid_contracts, diagnostic_reason, consistency,
	provider, run_id, is_final
`

// UpsertChain writes c; a final row is left untouched unless opts.Override
func (s *PostgresStore) UpsertChain(ctx context.Context, c *contracts.OptionChainSnapshot, opts UpsertOptions) (ChainWrite, error) {
	contractsJSON, err := json.Marshal(nonNilContracts(c.Contracts))
	if err != nil {
		return ChainWrite{}, fmt.Errorf("failed to marshal contracts: %w", err)
	}

	var inserted bool
	err = s.pool.QueryRow(ctx, upsertChainSQL,
		c.Symbol, c.TradeDate, c.StockPrice, nonNilStrings(c.Expiries), nonNilStrings(c.FailedExpiries), contractsJSON,
		c.TotalContracts, c.ValidContracts, string(c.DiagnosticReason), string(c.Consistency),
		c.Provider, c.RunID, c.IsFinal,
		opts.Override,
	).Scan(&inserted)

	if errors.Is(err, pgx.ErrNoRows) {
		cur, gerr := s.GetChain(ctx, c.Symbol, c.TradeDate)
		if gerr != nil {
			return ChainWrite{}, fmt.Errorf("failed to reload final chain %s/%s: %w", c.Symbol, c.TradeDate, gerr)
		}
		return ChainWrite{Status: contracts.WriteAlreadyFinal, Current: cur}, nil
	}
	if err != nil {
		return ChainWrite{}, fmt.Errorf("failed to upsert chain %s/%s: %w", c.Symbol, c.TradeDate, err)
	}

	status := contracts.WriteUpdated
	if inserted {
		status = contracts.WriteInserted
	}
	return ChainWrite{Status: status, Current: copyChain(c)}, nil
}

// GetChain retrieves the chain snapshot for a symbol and trade date
func (s *PostgresStore) GetChain(ctx context.Context, symbol, tradeDate string) (*contracts.OptionChainSnapshot, error) {
	query := `SELECT ` + chainColumns + `
		FROM snapshot.option_chain_snapshots
		WHERE symbol = $1 AND trade_date = $2::date
	`
	return scanChain(s.pool.QueryRow(ctx, query, symbol, tradeDate))
}

// LatestFinalChain retrieves the newest final chain on or before tradeDate
func (s *PostgresStore) LatestFinalChain(ctx context.Context, symbol, tradeDate string) (*contracts.OptionChainSnapshot, error) {
	query := `SELECT ` + chainColumns + `
		FROM snapshot.option_chain_snapshots
		WHERE symbol = $1 AND trade_date <= $2::date AND is_final
		ORDER BY trade_date DESC
		LIMIT 1
	`
	return scanChain(s.pool.QueryRow(ctx, query, symbol, tradeDate))
}

func scanChain(row pgx.Row) (*contracts.OptionChainSnapshot, error) {
	var c contracts.OptionChainSnapshot
	var diagnostic, consistency string
	var contractsJSON []byte

	err := row.Scan(
		&c.Symbol, &c.TradeDate, &c.StockPrice, &c.Expiries, &c.FailedExpiries, &contractsJSON,
		&c.TotalContracts, &c.ValidContracts, &diagnostic, &consistency,
		&c.Provider, &c.RunID, &c.IsFinal,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chain snapshot: %w", err)
	}

	if err := json.Unmarshal(contractsJSON, &c.Contracts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contracts: %w", err)
	}
	c.DiagnosticReason = contracts.FailureCode(diagnostic)
	c.Consistency = contracts.Consistency(consistency)
	return &c, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilContracts(c []contracts.Contract) []contracts.Contract {
	if c == nil {
		return []contracts.Contract{}
	}
	return c
}
