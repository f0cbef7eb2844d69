package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ny(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNYSE_Loads(t *testing.T) {
	cal := NYSE()
	require.NoError(t, cal.Err())
	assert.Equal(t, "America/New_York", cal.Location().String())
}

func TestIsTradingDay(t *testing.T) {
	cal := NYSE()

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"regular friday", day(2025, 1, 10), true},
		{"saturday", day(2025, 1, 11), false},
		{"sunday", day(2025, 1, 12), false},
		{"day of mourning", day(2025, 1, 9), false},
		{"good friday", day(2025, 4, 18), false},
		{"thanksgiving", day(2025, 11, 27), false},
		{"early close still trades", day(2025, 11, 28), true},
		{"observed independence day", day(2026, 7, 3), false},
		{"observed christmas", day(2027, 12, 24), false},
		{"uncovered year", day(2031, 3, 3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.IsTradingDay(tt.date))
		})
	}
}

func TestCanonicalCloseTimestamp(t *testing.T) {
	cal := NYSE()
	loc := ny(t)

	closeAt, err := cal.CanonicalCloseTimestamp(day(2025, 1, 10))
	require.NoError(t, err)
	assert.True(t, closeAt.Equal(time.Date(2025, 1, 10, 16, 0, 0, 0, loc)))

	closeAt, err = cal.CanonicalCloseTimestamp(day(2025, 12, 24))
	require.NoError(t, err)
	assert.True(t, closeAt.Equal(time.Date(2025, 12, 24, 13, 0, 0, 0, loc)))
	assert.True(t, cal.IsEarlyClose(day(2025, 12, 24)))

	_, err = cal.CanonicalCloseTimestamp(day(2025, 12, 25))
	assert.True(t, errors.Is(err, ErrNotTradingDay))

	_, err = cal.CanonicalCloseTimestamp(day(2031, 1, 2))
	assert.True(t, errors.Is(err, ErrCalendarUnavailable))
}

func TestLastTradingDay(t *testing.T) {
	cal := NYSE()
	loc := ny(t)

	tests := []struct {
		name      string
		reference time.Time
		want      string
	}{
		{"after close same day", time.Date(2025, 1, 10, 16, 30, 0, 0, loc), "2025-01-10"},
		{"exactly at close", time.Date(2025, 1, 10, 16, 0, 0, 0, loc), "2025-01-10"},
		{"session in progress skips holiday", time.Date(2025, 1, 10, 15, 0, 0, 0, loc), "2025-01-08"},
		{"weekend", time.Date(2025, 1, 12, 9, 0, 0, 0, loc), "2025-01-10"},
		{"early close already over", time.Date(2025, 11, 28, 13, 30, 0, 0, loc), "2025-11-28"},
		{"early close in progress", time.Date(2025, 11, 28, 12, 0, 0, 0, loc), "2025-11-26"},
		{"utc reference after ny close", time.Date(2025, 1, 10, 21, 5, 0, 0, time.UTC), "2025-01-10"},
		{"crosses year boundary", time.Date(2025, 1, 1, 12, 0, 0, 0, loc), "2024-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.LastTradingDay(tt.reference)
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatDate(got))
			assert.Equal(t, loc.String(), got.Location().String())
		})
	}
}

func TestLastTradingDay_Uncovered(t *testing.T) {
	_, err := NYSE().LastTradingDay(time.Date(2031, 6, 1, 18, 0, 0, 0, time.UTC))
	assert.True(t, errors.Is(err, ErrCalendarUnavailable))
}

func TestUnavailable_FailsClosed(t *testing.T) {
	cal := Unavailable(errors.New("file missing"))

	assert.False(t, cal.IsTradingDay(day(2025, 1, 10)))
	_, err := cal.LastTradingDay(time.Now())
	assert.True(t, errors.Is(err, ErrCalendarUnavailable))
	_, err = cal.CanonicalCloseTimestamp(day(2025, 1, 10))
	assert.True(t, errors.Is(err, ErrCalendarUnavailable))
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "timezone: America/New_York\nregular_close: \"16:00\"\nearly_close: \"13:00\"\nholiday_list: []\n"},
		{"bad timezone", "timezone: Mars/Base\nregular_close: \"16:00\"\nearly_close: \"13:00\"\nyears: [{year: 2025}]\n"},
		{"no years", "timezone: America/New_York\nregular_close: \"16:00\"\nearly_close: \"13:00\"\n"},
		{"holiday outside year", "timezone: America/New_York\nregular_close: \"16:00\"\nearly_close: \"13:00\"\nyears:\n  - year: 2025\n    holidays: [{date: 2024-12-25, name: x}]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseDate(t *testing.T) {
	cal := NYSE()

	d, err := cal.ParseDate("2025-01-10")
	require.NoError(t, err)
	assert.True(t, cal.IsTradingDay(d))
	assert.Equal(t, "Martin Luther King Jr. Day", cal.HolidayName(day(2025, 1, 20)))

	_, err = cal.ParseDate("01/10/2025")
	assert.ErrorIs(t, err, ErrInvalidDate)
}
