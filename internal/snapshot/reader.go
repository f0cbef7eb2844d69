package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/eodsnap/internal/calendar"
	"github.com/wonny/eodsnap/internal/chains"
	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/pkg/logger"
	"github.com/wonny/eodsnap/pkg/redis"
)

// DTERange bounds days to expiry; Max 0 means unbounded
type DTERange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r DTERange) contains(dte int) bool {
	return dte >= r.Min && (r.Max <= 0 || dte <= r.Max)
}

// StrikeRange bounds strike/spot; Max 0 means unbounded.
// The validation band [0.5, 1.5] always applies on top.
type StrikeRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r StrikeRange) contains(ratio float64) bool {
	return ratio >= r.Min && (r.Max <= 0 || ratio <= r.Max)
}

// PricedContract is a valid contract with the premium a strategy can trade at
type PricedContract struct {
	contracts.Contract
	Premium float64 `json:"premium"`
}

// ChainView is the filtered result of a chain read
type ChainView struct {
	Symbol     string           `json:"symbol"`
	TradeDate  string           `json:"trade_date"`
	StockPrice float64          `json:"stock_price"`
	Contracts  []PricedContract `json:"contracts"`
}

// Reader serves final snapshots to downstream scans.
// Only final documents are ever returned; everything else is a typed error.
// ⭐ SSOT: 다운스트림 조회는 Reader를 통해서만
type Reader struct {
	store  Store
	cache  *redis.Cache
	cal    *calendar.Calendar
	now    func() time.Time
	logger *logger.Logger
}

// NewReader creates a reader; cache may be nil
func NewReader(store Store, cache *redis.Cache, cal *calendar.Calendar, log *logger.Logger) *Reader {
	return &Reader{
		store:  store,
		cache:  cache,
		cal:    cal,
		now:    time.Now,
		logger: log.WithComponent("snapshot_reader"),
	}
}

// WithClock overrides the reference time used when no trade date is given
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// GetCanonicalClose returns the final quote snapshot of symbol.
// With an empty tradeDate the last completed trading day is expected;
// an older final snapshot then yields ErrStaleSnapshot.
func (r *Reader) GetCanonicalClose(ctx context.Context, symbol, tradeDate string) (*contracts.QuoteSnapshot, error) {
	symbol = normalizeSymbol(symbol)
	date, explicit, err := r.resolveDate(tradeDate)
	if err != nil {
		return nil, err
	}

	key := redis.CanonicalCloseKey(symbol, date)
	if r.cache != nil {
		var cached contracts.QuoteSnapshot
		hit, err := r.cache.Get(ctx, key, &cached)
		if err != nil {
			r.logger.WithError(err).Warn("canonical close cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	q, err := r.store.GetQuote(ctx, symbol, date)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err == nil && q.IsFinal {
		if r.cache != nil {
			if err := r.cache.Set(ctx, key, q, redis.TTLDaily); err != nil {
				r.logger.WithError(err).Warn("canonical close cache write failed")
			}
		}
		return q, nil
	}

	if !explicit {
		older, err := r.store.LatestFinalQuote(ctx, symbol, date)
		if err == nil {
			return nil, fmt.Errorf("%w: %s latest final close is %s, expected %s", ErrStaleSnapshot, symbol, older.TradeDate, date)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrPriceNotFound, symbol, date)
}

// GetValidCallsForScan returns valid calls for covered-call style scans.
// The premium is the bid, the price a seller actually receives.
func (r *Reader) GetValidCallsForScan(ctx context.Context, symbol, tradeDate string, dte DTERange, strike StrikeRange, minBid float64) (*ChainView, error) {
	chain, err := r.finalChain(ctx, symbol, tradeDate)
	if err != nil {
		return nil, err
	}

	view := newView(chain)
	for _, c := range chain.Contracts {
		if c.Type != contracts.OptionCall || !c.Valid || !dte.contains(c.DTE) {
			continue
		}
		ratio := c.Strike / chain.StockPrice
		if !strike.contains(ratio) || ratio < chains.MinStrikeRatio || ratio > chains.MaxStrikeRatio {
			continue
		}
		if c.Bid < minBid {
			continue
		}
		view.Contracts = append(view.Contracts, PricedContract{Contract: c, Premium: c.Bid})
	}
	return view, nil
}

// GetValidLeapsForPMCC returns in-the-money LEAPS calls for the long leg of
// a poor man's covered call. The premium is the ask, the price a buyer pays.
// DTE below the LEAPS floor is never returned whatever the range says.
func (r *Reader) GetValidLeapsForPMCC(ctx context.Context, symbol, tradeDate string, dte DTERange, minDelta float64, minOpenInterest int64) (*ChainView, error) {
	chain, err := r.finalChain(ctx, symbol, tradeDate)
	if err != nil {
		return nil, err
	}

	view := newView(chain)
	for _, c := range chain.Contracts {
		if c.Type != contracts.OptionCall || !c.Valid {
			continue
		}
		if c.DTE < chains.LeapsMinDTE || !dte.contains(c.DTE) {
			continue
		}
		if c.Strike >= chain.StockPrice || c.Delta() < minDelta || c.OpenInterest < minOpenInterest {
			continue
		}
		view.Contracts = append(view.Contracts, PricedContract{Contract: c, Premium: c.Ask})
	}
	return view, nil
}

func (r *Reader) finalChain(ctx context.Context, symbol, tradeDate string) (*contracts.OptionChainSnapshot, error) {
	symbol = normalizeSymbol(symbol)
	date, explicit, err := r.resolveDate(tradeDate)
	if err != nil {
		return nil, err
	}

	c, err := r.store.GetChain(ctx, symbol, date)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err == nil && c.IsFinal {
		if c.StockPrice <= 0 {
			return nil, fmt.Errorf("%w: %s %s has no stock price", ErrChainNotFound, symbol, date)
		}
		return c, nil
	}

	if !explicit {
		older, err := r.store.LatestFinalChain(ctx, symbol, date)
		if err == nil {
			return nil, fmt.Errorf("%w: %s latest final chain is %s, expected %s", ErrStaleSnapshot, symbol, older.TradeDate, date)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrChainNotFound, symbol, date)
}

// resolveDate returns the requested day, or the last completed trading day
func (r *Reader) resolveDate(tradeDate string) (string, bool, error) {
	if tradeDate != "" {
		d, err := r.cal.ParseDate(tradeDate)
		if err != nil {
			return "", false, err
		}
		return calendar.FormatDate(d), true, nil
	}

	day, err := r.cal.LastTradingDay(r.now())
	if err != nil {
		return "", false, fmt.Errorf("resolve expected trade date: %w", err)
	}
	return calendar.FormatDate(day), false, nil
}

func newView(c *contracts.OptionChainSnapshot) *ChainView {
	return &ChainView{
		Symbol:     c.Symbol,
		TradeDate:  c.TradeDate,
		StockPrice: c.StockPrice,
		Contracts:  []PricedContract{},
	}
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
