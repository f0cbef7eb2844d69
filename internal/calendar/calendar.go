package calendar

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/wonny/eodsnap/internal/contracts"
)

//go:embed nyse.yaml
var nyseYAML []byte

var (
	// ErrCalendarUnavailable means the calendar data failed to load or does not cover the date
	ErrCalendarUnavailable = errors.New("trading calendar unavailable")

	// ErrNotTradingDay is returned when a close is asked for a non-trading day
	ErrNotTradingDay = errors.New("not a trading day")

	// ErrInvalidDate is returned for a date that is not YYYY-MM-DD
	ErrInvalidDate = errors.New("invalid date")
)

// maxLookback bounds the LastTradingDay walk; the exchange is never shut this long
const maxLookback = 14

// Calendar answers trading-day questions for one exchange.
// It is immutable after Load and safe for concurrent use.
// ⭐ SSOT: 거래일/종가 시각 판단은 여기서만
type Calendar struct {
	loc          *time.Location
	regularClose clock
	earlyClose   clock
	holidays     map[string]string // YYYY-MM-DD → name
	earlyCloses  map[string]bool
	years        map[int]bool
	err          error
}

type clock struct {
	hour, minute int
}

// calendarFile is the on-disk layout; unknown fields are rejected
type calendarFile struct {
	Exchange     string      `yaml:"exchange"`
	Timezone     string      `yaml:"timezone"`
	RegularClose string      `yaml:"regular_close"`
	EarlyClose   string      `yaml:"early_close"`
	Years        []yearEntry `yaml:"years"`
}

type yearEntry struct {
	Year        int            `yaml:"year"`
	Holidays    []holidayEntry `yaml:"holidays"`
	EarlyCloses []string       `yaml:"early_closes"`
}

type holidayEntry struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

var (
	nyseOnce sync.Once
	nyse     *Calendar
)

// NYSE returns the embedded New York Stock Exchange calendar.
// A load failure yields a calendar on which no day trades.
func NYSE() *Calendar {
	nyseOnce.Do(func() {
		cal, err := Load(nyseYAML)
		if err != nil {
			cal = Unavailable(err)
		}
		nyse = cal
	})
	return nyse
}

// Unavailable returns a fail-closed calendar carrying the load error
func Unavailable(err error) *Calendar {
	return &Calendar{loc: time.UTC, err: fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)}
}

// Load parses calendar YAML
// KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(data []byte) (*Calendar, error) {
	var file calendarFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	loc, err := time.LoadLocation(file.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", file.Timezone, err)
	}
	regular, err := parseClock(file.RegularClose)
	if err != nil {
		return nil, fmt.Errorf("regular_close: %w", err)
	}
	early, err := parseClock(file.EarlyClose)
	if err != nil {
		return nil, fmt.Errorf("early_close: %w", err)
	}
	if len(file.Years) == 0 {
		return nil, errors.New("calendar covers no years")
	}

	cal := &Calendar{
		loc:          loc,
		regularClose: regular,
		earlyClose:   early,
		holidays:     make(map[string]string),
		earlyCloses:  make(map[string]bool),
		years:        make(map[int]bool),
	}

	for _, y := range file.Years {
		if cal.years[y.Year] {
			return nil, fmt.Errorf("year %d listed twice", y.Year)
		}
		cal.years[y.Year] = true

		for _, h := range y.Holidays {
			d, err := time.Parse(contracts.DateLayout, h.Date)
			if err != nil || d.Year() != y.Year {
				return nil, fmt.Errorf("holiday %q is not a date in %d", h.Date, y.Year)
			}
			cal.holidays[h.Date] = h.Name
		}
		for _, e := range y.EarlyCloses {
			d, err := time.Parse(contracts.DateLayout, e)
			if err != nil || d.Year() != y.Year {
				return nil, fmt.Errorf("early close %q is not a date in %d", e, y.Year)
			}
			if _, clash := cal.holidays[e]; clash {
				return nil, fmt.Errorf("%s is both a holiday and an early close", e)
			}
			cal.earlyCloses[e] = true
		}
	}

	return cal, nil
}

func parseClock(s string) (clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return clock{}, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return clock{hour: t.Hour(), minute: t.Minute()}, nil
}

// Location returns the exchange time zone
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Err returns the load error of a fail-closed calendar
func (c *Calendar) Err() error {
	return c.err
}

// Covers reports whether the calendar has data for the date's year
func (c *Calendar) Covers(date time.Time) bool {
	return c.err == nil && c.years[date.Year()]
}

// IsTradingDay reports whether the exchange trades on the date.
// The date's own year/month/day fields are used, whatever its location.
// Unknown years and an unavailable calendar answer false.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	if !c.Covers(date) {
		return false
	}
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[date.Format(contracts.DateLayout)]
	return !holiday
}

// IsEarlyClose reports whether the date is a shortened session
func (c *Calendar) IsEarlyClose(date time.Time) bool {
	return c.IsTradingDay(date) && c.earlyCloses[date.Format(contracts.DateLayout)]
}

// HolidayName returns the holiday name, empty on regular days
func (c *Calendar) HolidayName(date time.Time) string {
	if !c.Covers(date) {
		return ""
	}
	return c.holidays[date.Format(contracts.DateLayout)]
}

// CanonicalCloseTimestamp returns the official close instant of a trading day
func (c *Calendar) CanonicalCloseTimestamp(date time.Time) (time.Time, error) {
	if !c.Covers(date) {
		return time.Time{}, c.unavailable(date)
	}
	if !c.IsTradingDay(date) {
		return time.Time{}, fmt.Errorf("%s: %w", date.Format(contracts.DateLayout), ErrNotTradingDay)
	}

	cl := c.regularClose
	if c.earlyCloses[date.Format(contracts.DateLayout)] {
		cl = c.earlyClose
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, cl.hour, cl.minute, 0, 0, c.loc), nil
}

// LastTradingDay returns the most recent trading day whose close is at or
// before reference. An in-progress session is never returned.
// The result is midnight of that day in the exchange time zone.
func (c *Calendar) LastTradingDay(reference time.Time) (time.Time, error) {
	if c.err != nil {
		return time.Time{}, c.err
	}

	local := reference.In(c.loc)
	y, m, d := local.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, c.loc)

	for i := 0; i < maxLookback; i++ {
		if !c.Covers(day) {
			return time.Time{}, c.unavailable(day)
		}
		if c.IsTradingDay(day) {
			closeAt, err := c.CanonicalCloseTimestamp(day)
			if err != nil {
				return time.Time{}, err
			}
			if !closeAt.After(reference) {
				return day, nil
			}
		}
		day = day.AddDate(0, 0, -1)
	}

	return time.Time{}, fmt.Errorf("no trading day within %d days of %s", maxLookback, local.Format(contracts.DateLayout))
}

// ParseDate parses YYYY-MM-DD as a day in the exchange time zone
func (c *Calendar) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(contracts.DateLayout, s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, s, err)
	}
	return d, nil
}

func (c *Calendar) unavailable(date time.Time) error {
	if c.err != nil {
		return c.err
	}
	return fmt.Errorf("%w: year %d not covered", ErrCalendarUnavailable, date.Year())
}

// FormatDate renders a trading day as stored in snapshots
func FormatDate(date time.Time) string {
	return date.Format(contracts.DateLayout)
}
