// Package universe builds and versions the ordered set of symbols a run scans.
package universe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/quotes"
	"github.com/wonny/eodsnap/pkg/logger"
)

// Tier thresholds by market cap (USD)
const (
	Tier1MinMarketCap = 200_000_000_000
	Tier2MinMarketCap = 10_000_000_000
)

var (
	// ErrNoCandidates means every candidate source failed or returned nothing
	ErrNoCandidates = errors.New("no universe candidates")

	// ErrEmptyUniverse means filtering left no symbol
	ErrEmptyUniverse = errors.New("universe is empty after filtering")
)

// 일반 티커 + 클래스 주식 (BRK-B); 워런트/유닛/우선주 표기는 제외
var symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}(-[A-Z])?$`)

// Config holds universe filter criteria
type Config struct {
	MinMarketCap float64 // USD
	MinAvgVolume int64   // shares, 3 month average
}

// Enricher serves market cap and volume for candidates
type Enricher interface {
	FetchQuotes(ctx context.Context, symbols []string) map[string]quotes.QuoteResult
}

// Builder constructs a new universe version
type Builder struct {
	sources  []CandidateSource
	seeds    []string
	enricher Enricher
	config   Config
	logger   *logger.Logger
	now      func() time.Time
}

// NewBuilder creates a builder.
// Seed symbols always pass the size filters (index ETFs carry no market cap)
// but must still be quotable.
func NewBuilder(sources []CandidateSource, seeds []string, enricher Enricher, cfg Config, log *logger.Logger) *Builder {
	return &Builder{
		sources:  sources,
		seeds:    seeds,
		enricher: enricher,
		config:   cfg,
		logger:   log.WithComponent("universe"),
		now:      time.Now,
	}
}

// Build gathers, enriches, filters, tiers and orders candidates
// ⭐ SSOT: 유니버스 생성은 여기서만
func (b *Builder) Build(ctx context.Context) (*contracts.UniverseVersion, error) {
	seeds := make(map[string]bool)
	for _, s := range b.seeds {
		seeds[normalize(s)] = true
	}

	candidates, sourceNames, err := b.gather(ctx, seeds)
	if err != nil {
		return nil, err
	}

	results := b.enricher.FetchQuotes(ctx, candidates)

	excluded := make(map[string]string)
	tiers := make(map[string]contracts.Tier)
	for _, sym := range candidates {
		res, ok := results[sym]
		if !ok || !res.OK() {
			excluded[sym] = "quote unavailable"
			continue
		}
		if reason := b.checkExclusion(res, seeds[sym]); reason != "" {
			excluded[sym] = reason
			continue
		}
		tiers[sym] = TierFor(res.Quote.MarketCap)
	}

	if len(tiers) == 0 {
		return nil, ErrEmptyUniverse
	}

	version := newVersion(tiers, strings.Join(sourceNames, "+"), b.now())

	b.logger.WithFields(map[string]interface{}{
		"version":    version.VersionID,
		"candidates": len(candidates),
		"included":   version.Count(),
		"excluded":   len(excluded),
	}).Info("Universe built")
	return version, nil
}

// gather merges seeds and source candidates, dropping malformed tickers
func (b *Builder) gather(ctx context.Context, seeds map[string]bool) ([]string, []string, error) {
	seen := make(map[string]bool)
	var out, names []string

	add := func(sym string) {
		sym = normalize(sym)
		if seen[sym] || !symbolPattern.MatchString(sym) {
			return
		}
		seen[sym] = true
		out = append(out, sym)
	}

	for s := range seeds {
		add(s)
	}
	if len(seeds) > 0 {
		names = append(names, "seed")
	}

	for _, src := range b.sources {
		syms, err := src.Candidates(ctx)
		if err != nil {
			b.logger.WithError(err).Warnf("candidate source %s failed", src.Name())
			continue
		}
		for _, s := range syms {
			add(s)
		}
		names = append(names, src.Name())
	}

	if len(out) == 0 {
		return nil, nil, ErrNoCandidates
	}
	sort.Strings(out)
	return out, names, nil
}

// checkExclusion returns why a candidate is excluded, empty when it passes
func (b *Builder) checkExclusion(res quotes.QuoteResult, seed bool) string {
	if seed {
		return ""
	}

	q := res.Quote
	// 1. 시가총액 미달
	if q.MarketCap < b.config.MinMarketCap {
		return fmt.Sprintf("market cap below minimum (%.0f)", q.MarketCap)
	}
	// 2. 평균 거래량 미달
	if q.AvgVolume < b.config.MinAvgVolume {
		return fmt.Sprintf("average volume below minimum (%d)", q.AvgVolume)
	}
	return ""
}

// TierFor buckets a market cap
func TierFor(marketCap float64) contracts.Tier {
	switch {
	case marketCap >= Tier1MinMarketCap:
		return contracts.Tier1
	case marketCap >= Tier2MinMarketCap:
		return contracts.Tier2
	default:
		return contracts.Tier3
	}
}

// newVersion orders symbols by tier then ticker and derives the content id
func newVersion(tiers map[string]contracts.Tier, source string, now time.Time) *contracts.UniverseVersion {
	symbols := make([]string, 0, len(tiers))
	counts := make(map[contracts.Tier]int)
	for sym, tier := range tiers {
		symbols = append(symbols, sym)
		counts[tier]++
	}

	sort.Slice(symbols, func(i, j int) bool {
		ri, rj := tiers[symbols[i]].Rank(), tiers[symbols[j]].Rank()
		if ri != rj {
			return ri < rj
		}
		return symbols[i] < symbols[j]
	})

	return &contracts.UniverseVersion{
		VersionID:  VersionID(symbols, tiers, now),
		Symbols:    symbols,
		Tiers:      tiers,
		TierCounts: counts,
		Source:     source,
		CreatedAt:  now.UTC(),
	}
}

// VersionID is u-YYYYMMDD-<first 8 hex of sha256 over the ordered content>.
// The same content built on the same day always gets the same id.
func VersionID(ordered []string, tiers map[string]contracts.Tier, now time.Time) string {
	h := sha256.New()
	for _, sym := range ordered {
		fmt.Fprintf(h, "%s:%s\n", sym, tiers[sym])
	}
	return fmt.Sprintf("u-%s-%s", now.UTC().Format("20060102"), hex.EncodeToString(h.Sum(nil))[:8])
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), ".", "-")
}
