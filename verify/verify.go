// CLAUDE:SUMMARY Anomaly checker: Poisson-normal confidence intervals around persisted counts, manifest and attempt-log audits, skip-list derivation. Advisory only.
// Package verify checks persisted results against claims and against each
// other. Findings are reported, never applied.
package verify

import (
	"math"
)

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const (
	z95 = 1.96
	z99 = 2.576
)

// Finding is the verdict of one documented-versus-actual comparison.
type Finding struct {
	Documented int     `json:"documented"`
	Actual     int     `json:"actual"`
	Severity   string  `json:"severity"`
	Lower95    float64 `json:"lower_95"`
	Upper95    float64 `json:"upper_95"`
	Lower99    float64 `json:"lower_99"`
	Upper99    float64 `json:"upper_99"`
}

// Discrepancy reports whether the finding is anything but info.
func (f Finding) Discrepancy() bool { return f.Severity != SeverityInfo }

// CheckDiscrepancy places documented against a Poisson interval around
// actual (sd = sqrt(actual)). Inside 95% is info, inside 99% is a warning,
// outside is critical. A documented count with nothing persisted is always
// critical. Bounds are inclusive.
func CheckDiscrepancy(documented, actual int) Finding {
	a := float64(actual)
	sd := math.Sqrt(math.Max(a, 0))
	f := Finding{
		Documented: documented,
		Actual:     actual,
		Lower95:    math.Max(0, a-z95*sd),
		Upper95:    a + z95*sd,
		Lower99:    math.Max(0, a-z99*sd),
		Upper99:    a + z99*sd,
	}
	d := float64(documented)
	switch {
	case actual == 0 && documented > 0:
		f.Severity = SeverityCritical
	case d >= f.Lower95 && d <= f.Upper95:
		f.Severity = SeverityInfo
	case d >= f.Lower99 && d <= f.Upper99:
		f.Severity = SeverityWarning
	default:
		f.Severity = SeverityCritical
	}
	return f
}
