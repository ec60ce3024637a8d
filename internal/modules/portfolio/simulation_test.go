package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asanchez/btcfolio/internal/domain"
)

func TestDCACadence_Step(t *testing.T) {
	weekly, err := CadenceWeekly.step()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, weekly)

	monthly, err := CadenceMonthly.step()
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, monthly)

	_, err = DCACadence("daily").step()
	assert.Error(t, err)
}

func TestClosestForwardClose(t *testing.T) {
	day := func(s string) time.Time {
		d, _ := time.ParseInLocation("2006-01-02", s, time.UTC)
		return d
	}
	candles := []domain.Candle{
		{OpenAt: day("2024-01-01"), Close: dec("42000")},
		{OpenAt: day("2024-01-10"), Close: dec("44000")},
	}

	// Exact match.
	price, ok := closestForwardClose(candles, day("2024-01-01"), 5*24*time.Hour)
	require.True(t, ok)
	assert.True(t, price.Equal(dec("42000")))

	// Within the 5-day forward window.
	price, ok = closestForwardClose(candles, day("2024-01-07"), 5*24*time.Hour)
	require.True(t, ok)
	assert.True(t, price.Equal(dec("44000")))

	// Gap wider than the window: no purchase.
	_, ok = closestForwardClose(candles, day("2024-01-03"), 5*24*time.Hour)
	assert.False(t, ok)

	// Past the last candle.
	_, ok = closestForwardClose(candles, day("2024-02-01"), 5*24*time.Hour)
	assert.False(t, ok)
}
