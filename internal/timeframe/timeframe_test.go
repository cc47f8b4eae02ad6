package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hayzedd/internal/timeframe"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		input    string
		expected timeframe.Period
		ok       bool
		days     int
	}{
		{"1d", timeframe.PeriodDay, true, 1},
		{"7d", timeframe.PeriodWeek, true, 7},
		{"30d", timeframe.PeriodMonth, true, 30},
		{"90D", timeframe.PeriodQuarter, true, 90},
		{"1y", timeframe.PeriodYear, true, 365},
		{"", timeframe.PeriodWeek, true, 7},
		{"2w", timeframe.PeriodWeek, false, 7},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, ok := timeframe.ParsePeriod(tt.input)
			assert.Equal(t, tt.expected, p)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.days, p.Days())
		})
	}
}

func TestPeriodRange(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	parser := timeframe.NewParserWithTimeProvider(&timeframe.FixedTimeProvider{At: now})

	period, r := parser.PeriodRange("30d")
	assert.Equal(t, timeframe.PeriodMonth, period)
	assert.Equal(t, now, r.End)
	assert.Equal(t, time.Date(2024, 2, 9, 15, 30, 0, 0, time.UTC), r.Start)
	assert.True(t, r.Contains(now.Add(-time.Hour)))
	assert.False(t, r.Contains(now.Add(time.Second)))

	// Non-UTC clocks still produce UTC ranges.
	madrid := time.FixedZone("CET", 3600)
	_, r = timeframe.NewParserWithTimeProvider(&timeframe.FixedTimeProvider{At: now.In(madrid)}).PeriodRange("1d")
	assert.Equal(t, time.UTC, r.End.Location())
	assert.Equal(t, now.Add(-24*time.Hour), r.Start)
}

func TestParseOptionalRange(t *testing.T) {
	parser := timeframe.NewParser()

	t.Run("both empty", func(t *testing.T) {
		from, to, err := parser.ParseOptionalRange("", "")
		require.NoError(t, err)
		assert.Nil(t, from)
		assert.Nil(t, to)
	})

	t.Run("end date covers the whole day", func(t *testing.T) {
		from, to, err := parser.ParseOptionalRange("2024-01-01", "2024-01-31")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *from)
		assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC), *to)
	})

	t.Run("rfc3339 kept as is", func(t *testing.T) {
		from, _, err := parser.ParseOptionalRange("2024-01-01T10:00:00+02:00", "")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), *from)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, _, err := parser.ParseOptionalRange("yesterday", "")
		assert.Error(t, err)

		_, _, err = parser.ParseOptionalRange("2024-02-01", "2024-01-01")
		assert.Error(t, err)
	})
}
