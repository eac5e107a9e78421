// Package stats holds the small set of estimators the trend analyzer needs:
// robust yearly aggregates, an ordinary-least-squares trend with a two-sided
// slope test, paired and Welch t-tests, and standardized mean differences.
//
// Degenerate inputs are reported through ErrInsufficientData and
// ErrZeroVariance rather than defaulted numbers.
package stats

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientData is returned when there are too few observations.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrZeroVariance is returned when the observations have no spread.
	ErrZeroVariance = errors.New("zero variance")
)

// Median returns the sample median, averaging the two middle values for even n.
func Median(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrInsufficientData
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], nil
	}
	return (sorted[mid-1] + sorted[mid]) / 2, nil
}

// Mean returns the arithmetic mean.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrInsufficientData
	}
	return stat.Mean(values, nil), nil
}

// allEqual reports whether every value equals the first within a relative tolerance.
func allEqual(values []float64) bool {
	if len(values) == 0 {
		return true
	}
	first := values[0]
	tol := 1e-12 * math.Max(1, math.Abs(first))
	for _, v := range values[1:] {
		if math.Abs(v-first) > tol {
			return false
		}
	}
	return true
}
