package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Trend is the result of regressing a series on its index (years).
type Trend struct {
	Slope     float64
	Intercept float64
	R         float64
	RSquared  float64
	StdErr    float64
	// PValue tests slope != 0 (two-sided). Only meaningful when HasPValue.
	PValue    float64
	HasPValue bool
	N         int
}

// LinearTrend fits y = Intercept + Slope·x by ordinary least squares.
//
// Fewer than two distinct x values yields ErrInsufficientData. Constant y
// yields a Trend with Slope 0 together with ErrZeroVariance; R, RSquared and
// PValue are left undefined in that case. With exactly two points the fit is
// exact and the p-value is undefined (zero residual degrees of freedom).
func LinearTrend(x, y []float64) (Trend, error) {
	if len(x) != len(y) || len(x) < 2 {
		return Trend{N: len(y)}, ErrInsufficientData
	}
	if allEqual(x) {
		return Trend{N: len(y)}, ErrInsufficientData
	}
	if allEqual(y) {
		return Trend{Slope: 0, Intercept: y[0], N: len(y)}, ErrZeroVariance
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r2 := stat.RSquared(x, y, nil, alpha, beta)
	trend := Trend{
		Slope:     beta,
		Intercept: alpha,
		R:         stat.Correlation(x, y, nil),
		RSquared:  r2,
		N:         len(y),
	}

	df := float64(len(y) - 2)
	if df <= 0 {
		return trend, nil
	}

	sxx := sumSquares(x)
	syy := sumSquares(y)
	resid := math.Max(0, (1-r2)*syy)
	trend.StdErr = math.Sqrt(resid / df / sxx)
	trend.HasPValue = true
	if trend.StdErr == 0 {
		trend.PValue = 0
		return trend, nil
	}
	t := beta / trend.StdErr
	trend.PValue = twoSidedT(t, df)
	return trend, nil
}

// sumSquares returns Σ(v - mean)².
func sumSquares(values []float64) float64 {
	mean := stat.Mean(values, nil)
	total := 0.0
	for _, v := range values {
		d := v - mean
		total += d * d
	}
	return total
}

func twoSidedT(t, df float64) float64 {
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	if p > 1 {
		p = 1
	}
	return p
}
