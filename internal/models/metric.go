package models

import (
	"fmt"
	"strings"
)

// MetricKind is the derivation family a metric belongs to.
type MetricKind string

const (
	KindFTE          MetricKind = "fte"
	KindFTECorrected MetricKind = "fte_corrected"
	KindSpend        MetricKind = "spend"
	KindShare        MetricKind = "share"
	KindPerFTE       MetricKind = "per_fte"
	KindPerFTEReal   MetricKind = "per_fte_real"
	KindReal         MetricKind = "real"
)

// Metric names a numeric column of a CorrectedRecord, e.g. "admin_per_fte_real".
type Metric struct {
	Name     string
	Kind     MetricKind
	Category SpendCategory
}

// String returns the column name.
func (m Metric) String() string { return m.Name }

// Label is a short human-readable title used in charts and reports.
func (m Metric) Label() string {
	cat := strings.ToUpper(string(m.Category[:1])) + string(m.Category[1:])
	switch m.Kind {
	case KindFTE:
		return "FTE"
	case KindFTECorrected:
		return "FTE (corrected)"
	case KindSpend:
		return cat + " spending"
	case KindShare:
		return cat + " share"
	case KindPerFTE:
		return cat + " per FTE"
	case KindPerFTEReal:
		return cat + " per FTE (real)"
	case KindReal:
		return cat + " spending (real)"
	}
	return m.Name
}

// IsShare reports whether the metric is a spending share.
func (m Metric) IsShare() bool { return m.Kind == KindShare }

var spendColumns = map[SpendCategory]string{
	CategoryAdmin:       ColumnAdminSpend,
	CategoryInstruction: ColumnInstructionSpend,
	CategoryResearch:    ColumnResearchSpend,
	CategoryState:       ColumnStateAppropriation,
	CategoryTotal:       ColumnTotalSpend,
}

// SpendColumn returns the canonical dollar column for category.
func SpendColumn(c SpendCategory) string { return spendColumns[c] }

// ParseMetric resolves a metric name into its kind and category.
func ParseMetric(name string) (Metric, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	switch name {
	case ColumnFTE:
		return Metric{Name: name, Kind: KindFTE}, nil
	case "fte_corrected":
		return Metric{Name: name, Kind: KindFTECorrected}, nil
	}
	for cat, col := range spendColumns {
		if name == col {
			return Metric{Name: name, Kind: KindSpend, Category: cat}, nil
		}
	}

	for _, cat := range SpendCategories {
		prefix := string(cat) + "_"
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		switch strings.TrimPrefix(name, prefix) {
		case "share":
			if cat == CategoryState || cat == CategoryTotal {
				break
			}
			return Metric{Name: name, Kind: KindShare, Category: cat}, nil
		case "per_fte":
			return Metric{Name: name, Kind: KindPerFTE, Category: cat}, nil
		case "per_fte_real":
			return Metric{Name: name, Kind: KindPerFTEReal, Category: cat}, nil
		case "real":
			return Metric{Name: name, Kind: KindReal, Category: cat}, nil
		}
	}
	return Metric{}, fmt.Errorf("unknown metric %q", name)
}

// MustMetric is ParseMetric for compile-time constant names.
func MustMetric(name string) Metric {
	m, err := ParseMetric(name)
	if err != nil {
		panic(err)
	}
	return m
}

// MetricName builds the column name for a kind and category.
func MetricName(kind MetricKind, c SpendCategory) string {
	switch kind {
	case KindSpend:
		return SpendColumn(c)
	case KindShare:
		return string(c) + "_share"
	case KindPerFTE:
		return string(c) + "_per_fte"
	case KindPerFTEReal:
		return string(c) + "_per_fte_real"
	case KindReal:
		return string(c) + "_real"
	}
	return string(kind)
}
