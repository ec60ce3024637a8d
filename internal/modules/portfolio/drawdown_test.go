package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(day, value string) ValuePoint {
	d, _ := time.ParseInLocation("2006-01-02", day, time.UTC)
	return ValuePoint{Date: d, Value: dec(value)}
}

func TestComputeDrawdown_PeakAndTrough(t *testing.T) {
	points := []ValuePoint{
		point("2024-01-01", "10000"),
		point("2024-02-01", "20000"),
		point("2024-03-01", "10000"),
	}

	res := ComputeDrawdown(points)

	assert.True(t, res.MaxDrawdownPct.Equal(dec("-50.00")), "drawdown = %s", res.MaxDrawdownPct)
	require.NotNil(t, res.PeakDate)
	require.NotNil(t, res.TroughDate)
	assert.Equal(t, "2024-02-01", res.PeakDate.Format("2006-01-02"))
	assert.True(t, res.PeakValue.Equal(dec("20000")))
	assert.Equal(t, "2024-03-01", res.TroughDate.Format("2006-01-02"))
	assert.True(t, res.TroughValue.Equal(dec("10000")))
}

func TestComputeDrawdown_MonotonicSeriesIsZero(t *testing.T) {
	points := []ValuePoint{
		point("2024-01-01", "10000"),
		point("2024-02-01", "10000"),
		point("2024-03-01", "15000"),
	}

	res := ComputeDrawdown(points)

	assert.True(t, res.MaxDrawdownPct.IsZero())
	assert.Nil(t, res.PeakDate)
	assert.Nil(t, res.TroughDate)
}

func TestComputeDrawdown_NeverPositive(t *testing.T) {
	points := []ValuePoint{
		point("2024-01-01", "100"),
		point("2024-02-01", "300"),
		point("2024-03-01", "250"),
		point("2024-04-01", "400"),
	}

	res := ComputeDrawdown(points)
	assert.False(t, res.MaxDrawdownPct.IsPositive())
}

func TestComputeDrawdown_EmptyInput(t *testing.T) {
	res := ComputeDrawdown(nil)

	assert.True(t, res.MaxDrawdownPct.IsZero())
	assert.Nil(t, res.PeakDate)
	assert.Nil(t, res.TroughDate)
}
