package models

import "fmt"

// DiagnosticKind classifies a recovered per-row or per-institution problem.
type DiagnosticKind string

const (
	// DiagIneligibleForCorrection: FTE missing for one of the years the anomaly
	// rule needs; the institution passes through unmodified.
	DiagIneligibleForCorrection DiagnosticKind = "ineligible_for_correction"
	// DiagUncorrectableAnomaly: the jump exceeds the threshold but no usable
	// baseline growth rate exists.
	DiagUncorrectableAnomaly DiagnosticKind = "uncorrectable_anomaly"
	// DiagNonConvergentCorrection: the corrected ratio still exceeds the threshold.
	DiagNonConvergentCorrection DiagnosticKind = "non_convergent_correction"
	DiagZeroDenominator         DiagnosticKind = "zero_denominator"
	DiagMissingDeflator         DiagnosticKind = "missing_deflator"
	DiagShareSumExceeded        DiagnosticKind = "share_sum_exceeded"
	DiagShareMismatch           DiagnosticKind = "share_mismatch"
)

// Severity captures how much a diagnostic matters to the reader.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one entry of the run's diagnostics section.
type Diagnostic struct {
	Kind          DiagnosticKind `json:"kind"`
	Severity      Severity       `json:"severity"`
	InstitutionID string         `json:"institutionId"`
	// Year is zero for institution-level diagnostics.
	Year    int    `json:"year,omitempty"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Year == 0 {
		return fmt.Sprintf("[%s] %s %s: %s", d.Stage, d.Kind, d.InstitutionID, d.Message)
	}
	return fmt.Sprintf("[%s] %s %s/%d: %s", d.Stage, d.Kind, d.InstitutionID, d.Year, d.Message)
}

// Diagnostics accumulates entries in the order they were recorded.
type Diagnostics struct {
	entries []Diagnostic
}

// Add appends d.
func (d *Diagnostics) Add(entry Diagnostic) {
	d.entries = append(d.entries, entry)
}

// Addf appends a formatted diagnostic.
func (d *Diagnostics) Addf(stage string, kind DiagnosticKind, sev Severity, key RecordKey, format string, args ...any) {
	d.Add(Diagnostic{
		Kind:          kind,
		Severity:      sev,
		InstitutionID: key.InstitutionID,
		Year:          key.Year,
		Stage:         stage,
		Message:       fmt.Sprintf(format, args...),
	})
}

// Merge appends every entry of other.
func (d *Diagnostics) Merge(other []Diagnostic) {
	d.entries = append(d.entries, other...)
}

// Entries returns a copy of the recorded diagnostics.
func (d *Diagnostics) Entries() []Diagnostic {
	return append([]Diagnostic(nil), d.entries...)
}

// Len returns the number of entries.
func (d *Diagnostics) Len() int { return len(d.entries) }

// CountByKind tallies entries per kind.
func CountByKind(entries []Diagnostic) map[DiagnosticKind]int {
	counts := make(map[DiagnosticKind]int)
	for _, e := range entries {
		counts[e.Kind]++
	}
	return counts
}
