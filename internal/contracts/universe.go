package contracts

import "time"

// Tier is a market-cap bucket of the universe
type Tier string

const (
	Tier1 Tier = "TIER_1" // mega cap
	Tier2 Tier = "TIER_2" // large cap
	Tier3 Tier = "TIER_3" // rest
)

// Rank orders tiers, lower first
func (t Tier) Rank() int {
	switch t {
	case Tier1:
		return 1
	case Tier2:
		return 2
	default:
		return 3
	}
}

// UniverseVersion is one immutable, ordered scan set
// ⭐ SSOT: 실행은 정확히 하나의 유니버스 버전을 참조
type UniverseVersion struct {
	VersionID  string          `json:"version_id"`
	Symbols    []string        `json:"symbols"` // tier, then symbol
	Tiers      map[string]Tier `json:"tiers"`
	TierCounts map[Tier]int    `json:"tier_counts"`
	Source     string          `json:"source"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Contains checks if a symbol is in the universe
func (u *UniverseVersion) Contains(symbol string) bool {
	_, ok := u.Tiers[symbol]
	return ok
}

// Count returns the number of symbols
func (u *UniverseVersion) Count() int {
	return len(u.Symbols)
}
