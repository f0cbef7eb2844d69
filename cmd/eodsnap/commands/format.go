package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/snapshot"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	doubleLine = "═══════════════════════════════════════════════════════════"
	singleLine = "───────────────────────────────────────────────────────────"
	keyWidth   = 16
)

// PrintHeader prints a titled block header
func PrintHeader(w io.Writer, title string) {
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, singleLine)
}

// PrintSeparator prints a visual separator
func PrintSeparator(w io.Writer) {
	fmt.Fprintln(w, singleLine)
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator(w io.Writer) {
	fmt.Fprintln(w, doubleLine)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	fmt.Fprintf(w, "❌ %s\n", message)
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(w io.Writer, key string, value string) {
	fmt.Fprintf(w, "   %-*s : %s\n", keyWidth, key, value)
}

// PrintTableHeader prints a table header
func PrintTableHeader(w io.Writer, columns []string, widths []int) {
	PrintTableRow(w, columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Fprintln(w, strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(w io.Writer, values []string, widths []int) {
	var b strings.Builder
	for i, val := range values {
		fmt.Fprintf(&b, "%-*s", widths[i], val)
		if i < len(values)-1 {
			b.WriteString("  ")
		}
	}
	fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
}

// RenderRunSummary prints a run summary the way operators read it after a run
func RenderRunSummary(w io.Writer, s *contracts.RunSummary) {
	PrintHeader(w, "Snapshot Run "+s.RunID)
	PrintKeyValue(w, "Trade date", s.TradeDate)
	PrintKeyValue(w, "Universe", s.UniverseVersion)
	PrintKeyValue(w, "State", string(s.State))
	PrintKeyValue(w, "Duration", fmt.Sprintf("%.1fs", s.Duration.Seconds()))
	PrintSeparator(w)

	t := s.Totals
	PrintKeyValue(w, "Symbols", fmt.Sprintf("%d", t.Symbols))
	PrintKeyValue(w, "Quotes", fmt.Sprintf("%d ok / %d failed", t.QuoteOK, t.QuoteFail))
	PrintKeyValue(w, "Chains", fmt.Sprintf("%d ok / %d failed", t.ChainOK, t.ChainFail))
	PrintKeyValue(w, "Included", fmt.Sprintf("%d", s.Included()))
	PrintKeyValue(w, "Already final", fmt.Sprintf("%d", s.AlreadyFinal))
	PrintKeyValue(w, "Consistency", fmt.Sprintf("%d warnings", s.ConsistencyWarnings))

	if len(s.StageDurations) > 0 {
		PrintSeparator(w)
		for _, st := range []contracts.RunState{
			contracts.RunStateUniverseLoaded,
			contracts.RunStateQuotesFetched,
			contracts.RunStateChainsFetched,
			contracts.RunStatePersisted,
			contracts.RunStateSummarized,
		} {
			if ms, ok := s.StageDurations[st]; ok {
				PrintKeyValue(w, string(st), fmt.Sprintf("%dms", ms))
			}
		}
	}

	if len(s.ExcludedByReason) > 0 {
		PrintSeparator(w)
		fmt.Fprintln(w, "  Excluded by reason")
		reasons := make([]string, 0, len(s.ExcludedByReason))
		for r := range s.ExcludedByReason {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			PrintKeyValue(w, r, fmt.Sprintf("%d", s.ExcludedByReason[contracts.FailureCode(r)]))
		}
	}

	if len(s.TopFailures) > 0 {
		PrintSeparator(w)
		fmt.Fprintln(w, "  Top failures")
		widths := []int{8, 8, 30}
		PrintTableHeader(w, []string{"SYMBOL", "STAGE", "REASON"}, widths)
		for _, f := range s.TopFailures {
			PrintTableRow(w, []string{f.Symbol, string(f.Stage), string(f.Reason)}, widths)
		}
	}
	PrintDoubleSeparator(w)
}

// RenderQuote prints one canonical close
func RenderQuote(w io.Writer, q *contracts.QuoteSnapshot) {
	PrintHeader(w, fmt.Sprintf("%s close %s", q.Symbol, q.TradeDate))
	PrintKeyValue(w, "Canonical close", fmt.Sprintf("%.2f", q.CanonicalClosePrice))
	PrintKeyValue(w, "Source", fmt.Sprintf("%s (%s)", q.PriceSource, q.Provenance))
	PrintKeyValue(w, "Session close", fmt.Sprintf("%.2f", q.SessionClosePrice))
	PrintKeyValue(w, "Prior close", fmt.Sprintf("%.2f", q.PriorClosePrice))
	PrintKeyValue(w, "Market state", q.MarketState)
	PrintKeyValue(w, "Provider", q.Provider)
	PrintKeyValue(w, "Run", q.RunID)
	PrintDoubleSeparator(w)
}

// RenderChainView prints filtered contracts
func RenderChainView(w io.Writer, title string, v *snapshot.ChainView) {
	PrintHeader(w, fmt.Sprintf("%s %s %s (spot %.2f)", v.Symbol, title, v.TradeDate, v.StockPrice))
	if len(v.Contracts) == 0 {
		PrintWarning(w, "no contract matches the filters")
		PrintDoubleSeparator(w)
		return
	}

	widths := []int{10, 5, 8, 7, 7, 7, 6, 8}
	PrintTableHeader(w, []string{"EXPIRY", "DTE", "STRIKE", "BID", "ASK", "DELTA", "OI", "PREMIUM"}, widths)
	for _, c := range v.Contracts {
		PrintTableRow(w, []string{
			c.Expiry,
			fmt.Sprintf("%d", c.DTE),
			fmt.Sprintf("%.2f", c.Strike),
			fmt.Sprintf("%.2f", c.Bid),
			fmt.Sprintf("%.2f", c.Ask),
			fmt.Sprintf("%.2f", c.Delta()),
			fmt.Sprintf("%d", c.OpenInterest),
			fmt.Sprintf("%.2f", c.Premium),
		}, widths)
	}
	PrintDoubleSeparator(w)
}

// RenderUniverse prints a universe version, symbols grouped by tier
func RenderUniverse(w io.Writer, u *contracts.UniverseVersion) {
	PrintHeader(w, "Universe "+u.VersionID)
	PrintKeyValue(w, "Source", u.Source)
	PrintKeyValue(w, "Created", u.CreatedAt.UTC().Format("2006-01-02 15:04:05Z"))
	PrintKeyValue(w, "Symbols", fmt.Sprintf("%d", u.Count()))
	for _, tier := range []contracts.Tier{contracts.Tier1, contracts.Tier2, contracts.Tier3} {
		var members []string
		for _, sym := range u.Symbols {
			if u.Tiers[sym] == tier {
				members = append(members, sym)
			}
		}
		if len(members) == 0 {
			continue
		}
		PrintSeparator(w)
		fmt.Fprintf(w, "  %s (%d)\n", tier, len(members))
		fmt.Fprintf(w, "   %s\n", strings.Join(members, " "))
	}
	PrintDoubleSeparator(w)
}
