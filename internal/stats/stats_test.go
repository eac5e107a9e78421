package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "odd", values: []float64{3, 1, 2}, want: 2},
		{name: "even averages middle pair", values: []float64{4, 1, 3, 2}, want: 2.5},
		{name: "single", values: []float64{7}, want: 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Median(tc.values)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}

	_, err := Median(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	values := []float64{3, 1, 2}
	_, err := Median(values)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestLinearTrendPerfectLine(t *testing.T) {
	x := []float64{2018, 2019, 2020, 2021}
	y := []float64{10, 12, 14, 16}

	trend, err := LinearTrend(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, trend.Slope, 1e-9)
	assert.InDelta(t, 1.0, trend.RSquared, 1e-12)
	assert.True(t, trend.HasPValue)
	assert.InDelta(t, 0.0, trend.PValue, 1e-12)
}

func TestLinearTrendNoisy(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := []float64{2.1, 3.9, 6.2, 7.8, 10.1, 12.2}

	trend, err := LinearTrend(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, trend.Slope, 0.1)
	assert.Greater(t, trend.RSquared, 0.99)
	assert.Less(t, trend.PValue, 0.001)
	assert.Equal(t, TierHighlySignificant, Tier(trend.PValue, trend.HasPValue))
}

func TestLinearTrendFlatNoise(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{5, 7, 5, 7, 5}

	trend, err := LinearTrend(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, trend.Slope, 1e-9)
	assert.Greater(t, trend.PValue, 0.05)
}

func TestLinearTrendDegenerate(t *testing.T) {
	_, err := LinearTrend([]float64{2020}, []float64{1})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = LinearTrend([]float64{2020, 2020}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrInsufficientData)

	trend, err := LinearTrend([]float64{2018, 2019, 2020}, []float64{4, 4, 4})
	assert.ErrorIs(t, err, ErrZeroVariance)
	assert.Equal(t, 0.0, trend.Slope)
	assert.False(t, trend.HasPValue)
}

func TestLinearTrendTwoPointsHasNoPValue(t *testing.T) {
	trend, err := LinearTrend([]float64{2018, 2019}, []float64{1, 3})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, trend.Slope, 1e-12)
	assert.InDelta(t, 1.0, trend.RSquared, 1e-12)
	assert.False(t, trend.HasPValue)
}

func TestPairedTTest(t *testing.T) {
	before := []float64{10, 12, 9, 11, 10}
	after := []float64{12, 14, 10, 14, 11}

	res, err := PairedTTest(before, after)
	require.NoError(t, err)
	assert.InDelta(t, 1.8, res.MeanDiff, 1e-12)
	assert.Equal(t, 4.0, res.DF)
	assert.Greater(t, res.Statistic, 0.0)
	assert.Less(t, res.PValue, 0.05)
	assert.Greater(t, res.EffectSize, 0.0)
}

func TestPairedTTestConstantDifference(t *testing.T) {
	_, err := PairedTTest([]float64{1, 2, 3}, []float64{2, 3, 4})
	assert.ErrorIs(t, err, ErrZeroVariance)
}

func TestWelchTTest(t *testing.T) {
	a := []float64{20, 22, 19, 24, 21, 23}
	b := []float64{10, 12, 11, 9, 13}

	res, err := WelchTTest(a, b)
	require.NoError(t, err)
	assert.Greater(t, res.Statistic, 0.0)
	assert.Less(t, res.PValue, 0.001)
	assert.Greater(t, res.EffectSize, 2.0)
	assert.False(t, math.IsNaN(res.DF))
}

func TestCohensD(t *testing.T) {
	d, err := CohensD([]float64{2, 4, 6}, []float64{1, 3, 5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, d, 1e-12)

	_, err = CohensD([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestTier(t *testing.T) {
	assert.Equal(t, TierHighlySignificant, Tier(0.0005, true))
	assert.Equal(t, TierVerySignificant, Tier(0.005, true))
	assert.Equal(t, TierSignificant, Tier(0.03, true))
	assert.Equal(t, TierNotSignificant, Tier(0.2, true))
	assert.Equal(t, TierUndefined, Tier(0.01, false))
	assert.Equal(t, TierUndefined, Tier(math.NaN(), true))
}
