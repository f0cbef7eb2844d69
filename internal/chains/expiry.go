package chains

import (
	"sort"
	"time"

	"github.com/wonny/eodsnap/internal/contracts"
)

// Expiry buckets by days to expiration
const (
	NearTermMaxDTE = 60
	LeapsMinDTE    = 365
)

// Bucket is the DTE partition an expiry falls in
type Bucket string

const (
	BucketNear  Bucket = "NEAR"
	BucketMid   Bucket = "MID"
	BucketLeaps Bucket = "LEAPS"
)

// Expiry is one listed expiration with its DTE on the trade date
type Expiry struct {
	Date   string // YYYY-MM-DD
	DTE    int
	Bucket Bucket
}

// BucketFor partitions by DTE
func BucketFor(dte int) Bucket {
	switch {
	case dte <= NearTermMaxDTE:
		return BucketNear
	case dte >= LeapsMinDTE:
		return BucketLeaps
	default:
		return BucketMid
	}
}

// DaysBetween counts calendar days from tradeDate to expiry, ignoring time of day
func DaysBetween(tradeDate time.Time, expiry string) (int, error) {
	e, err := time.Parse(contracts.DateLayout, expiry)
	if err != nil {
		return 0, err
	}
	y, m, d := tradeDate.Date()
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(e.Sub(t).Hours() / 24), nil
}

// SelectExpiries keeps every near-term expiry, every second mid-term expiry
// and every LEAPS expiry. Expired or unparsable dates are dropped.
// The result is ascending by date.
func SelectExpiries(tradeDate time.Time, listed []string) []Expiry {
	var all []Expiry
	seen := make(map[string]bool, len(listed))
	for _, date := range listed {
		if seen[date] {
			continue
		}
		seen[date] = true

		dte, err := DaysBetween(tradeDate, date)
		if err != nil || dte < 0 {
			continue
		}
		all = append(all, Expiry{Date: date, DTE: dte, Bucket: BucketFor(dte)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Date < all[j].Date })

	selected := make([]Expiry, 0, len(all))
	mid := 0
	for _, e := range all {
		if e.Bucket == BucketMid {
			mid++
			if mid%2 == 0 {
				continue
			}
		}
		selected = append(selected, e)
	}
	return selected
}
