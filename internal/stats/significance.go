package stats

// Significance tiers used for compact reporting.
const (
	TierHighlySignificant = "***"
	TierVerySignificant   = "**"
	TierSignificant       = "*"
	TierNotSignificant    = "NS"
	TierUndefined         = "NA"
)

// Tier maps a p-value onto the fixed cutoffs 0.001, 0.01 and 0.05.
func Tier(p float64, defined bool) string {
	switch {
	case !defined || p != p:
		return TierUndefined
	case p < 0.001:
		return TierHighlySignificant
	case p < 0.01:
		return TierVerySignificant
	case p < 0.05:
		return TierSignificant
	default:
		return TierNotSignificant
	}
}
