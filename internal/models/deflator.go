package models

import (
	"errors"
	"fmt"
	"sort"
)

// ErrMissingDeflator is returned when a year has no deflator entry.
var ErrMissingDeflator = errors.New("no deflator for year")

// Deflator maps a year to its cumulative price index relative to the base year.
type Deflator map[int]float64

// Years returns the covered years in ascending order.
func (d Deflator) Years() []int {
	years := make([]int, 0, len(d))
	for y := range d {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// BaseYear is the earliest year in the table; zero when empty.
func (d Deflator) BaseYear() int {
	years := d.Years()
	if len(years) == 0 {
		return 0
	}
	return years[0]
}

// Lookup returns the index for year or ErrMissingDeflator. A missing year is
// never defaulted to 1.0.
func (d Deflator) Lookup(year int) (float64, error) {
	v, ok := d[year]
	if !ok {
		return 0, fmt.Errorf("%w %d", ErrMissingDeflator, year)
	}
	return v, nil
}

// Validate requires a non-empty table whose base year is 1.0 and whose other
// entries are at least 1.0.
func (d Deflator) Validate() error {
	if len(d) == 0 {
		return errors.New("deflator table is empty")
	}
	base := d.BaseYear()
	if v := d[base]; v != 1.0 {
		return fmt.Errorf("deflator base year %d must be 1.0, got %g", base, v)
	}
	for _, y := range d.Years() {
		if v := d[y]; v < 1.0 {
			return fmt.Errorf("deflator for %d must be >= 1.0, got %g", y, v)
		}
	}
	return nil
}

// Covers returns the years in [from, to] that have no entry.
func (d Deflator) Covers(from, to int) []int {
	var missing []int
	for y := from; y <= to; y++ {
		if _, ok := d[y]; !ok {
			missing = append(missing, y)
		}
	}
	return missing
}
