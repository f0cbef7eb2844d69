package universe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/eodsnap/pkg/httputil"
	"github.com/wonny/eodsnap/pkg/logger"
)

// CandidateSource lists raw candidate tickers
type CandidateSource interface {
	Name() string
	Candidates(ctx context.Context) ([]string, error)
}

// StaticSource serves a fixed list (configured seed symbols)
type StaticSource struct {
	name    string
	symbols []string
}

// NewStaticSource creates a source returning symbols as given
func NewStaticSource(name string, symbols []string) *StaticSource {
	return &StaticSource{name: name, symbols: symbols}
}

// Name returns the source name
func (s *StaticSource) Name() string { return s.name }

// Candidates returns a copy of the fixed list
func (s *StaticSource) Candidates(context.Context) ([]string, error) {
	return append([]string(nil), s.symbols...), nil
}

// IndexSource scrapes an index constituents page.
// The first cell of every row in the constituents table is the ticker.
type IndexSource struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	url        string
}

// NewIndexSource creates a scraper for the constituents page at url
func NewIndexSource(httpClient *httputil.Client, log *logger.Logger, url string) *IndexSource {
	return &IndexSource{
		httpClient: httpClient,
		logger:     log.WithComponent("universe_index"),
		url:        url,
	}
}

// Name returns the source name
func (s *IndexSource) Name() string { return "index" }

// Candidates downloads and parses the constituents table
func (s *IndexSource) Candidates(ctx context.Context) ([]string, error) {
	resp, err := s.httpClient.Get(ctx, s.url, http.Header{"Accept": []string{"text/html"}})
	if err != nil {
		return nil, fmt.Errorf("fetch index page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch index page: status %d", resp.StatusCode)
	}

	symbols, err := ParseConstituents(resp.Body)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("count", len(symbols)).Debug("Parsed index constituents")
	return symbols, nil
}

// ParseConstituents extracts tickers from an HTML constituents table.
// A table with id "constituents" is preferred, else the first wikitable.
// Class share dots are written with a dash (BRK.B → BRK-B).
func ParseConstituents(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}

	table := doc.Find("table#constituents")
	if table.Length() == 0 {
		table = doc.Find("table.wikitable").First()
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("parse index page: constituents table not found")
	}

	var symbols []string
	table.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		cell := row.Find("td").First()
		if cell.Length() == 0 {
			return // header row
		}
		sym := strings.ToUpper(strings.TrimSpace(cell.Text()))
		sym = strings.ReplaceAll(sym, ".", "-")
		if sym != "" {
			symbols = append(symbols, sym)
		}
	})

	if len(symbols) == 0 {
		return nil, fmt.Errorf("parse index page: no symbols in table")
	}
	return symbols, nil
}
