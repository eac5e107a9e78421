package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// TestResult is the outcome of a two-sample comparison.
type TestResult struct {
	Name      string
	Statistic float64
	DF        float64
	PValue    float64
	// EffectSize is Cohen's d (independent samples) or dz (paired samples).
	EffectSize float64
	MeanDiff   float64
	N          int
}

// PairedTTest tests mean(after - before) != 0 over matched observations.
func PairedTTest(before, after []float64) (TestResult, error) {
	if len(before) != len(after) {
		return TestResult{}, fmt.Errorf("paired samples differ in length: %d vs %d", len(before), len(after))
	}
	n := len(before)
	if n < 2 {
		return TestResult{Name: "paired_t", N: n}, ErrInsufficientData
	}
	diffs := make([]float64, n)
	for i := range before {
		diffs[i] = after[i] - before[i]
	}
	mean, sd := stat.MeanStdDev(diffs, nil)
	res := TestResult{Name: "paired_t", DF: float64(n - 1), MeanDiff: mean, N: n}
	if sd == 0 || allEqual(diffs) {
		return res, ErrZeroVariance
	}
	res.Statistic = mean / (sd / math.Sqrt(float64(n)))
	res.PValue = twoSidedT(res.Statistic, res.DF)
	res.EffectSize = mean / sd
	return res, nil
}

// WelchTTest tests mean(a) != mean(b) without assuming equal variances. The
// effect size is Cohen's d with the pooled standard deviation, signed as a - b.
func WelchTTest(a, b []float64) (TestResult, error) {
	na, nb := len(a), len(b)
	res := TestResult{Name: "welch_t", N: na + nb}
	if na < 2 || nb < 2 {
		return res, ErrInsufficientData
	}
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	res.MeanDiff = ma - mb

	sea := va / float64(na)
	seb := vb / float64(nb)
	se := math.Sqrt(sea + seb)
	if se == 0 {
		return res, ErrZeroVariance
	}
	res.Statistic = res.MeanDiff / se
	res.DF = (sea + seb) * (sea + seb) /
		(sea*sea/float64(na-1) + seb*seb/float64(nb-1))
	res.PValue = twoSidedT(res.Statistic, res.DF)

	if d, err := CohensD(a, b); err == nil {
		res.EffectSize = d
	}
	return res, nil
}

// CohensD is the standardized mean difference (mean(a) - mean(b)) / pooled SD.
func CohensD(a, b []float64) (float64, error) {
	na, nb := len(a), len(b)
	if na < 2 || nb < 2 {
		return 0, ErrInsufficientData
	}
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	pooled := math.Sqrt(((float64(na-1) * va) + (float64(nb-1) * vb)) / float64(na+nb-2))
	if pooled == 0 {
		return 0, ErrZeroVariance
	}
	return (ma - mb) / pooled, nil
}
