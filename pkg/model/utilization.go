package model

import (
	"math"
	"time"
)

// Severity margins above the alert threshold, in percentage points.
const (
	MediumSeverityMargin = 5
	HighSeverityMargin   = 15
)

// ComputeUtilization derives the utilization of a budget from its current spend.
// A zero or negative limit yields zero utilization.
func ComputeUtilization(spend, limit float64, threshold int) Utilization {
	if limit < 0 {
		limit = 0
	}
	pct := 0.0
	if limit > 0 {
		pct = RoundCents(spend / limit * 100)
	}
	return Utilization{
		CurrentSpend:    RoundCents(spend),
		Limit:           limit,
		Utilization:     pct,
		RemainingBudget: RoundCents(math.Max(0, limit-spend)),
		ProjectedSpend:  RoundCents(spend),
		Status:          StatusFor(pct, threshold),
	}
}

// ZeroUtilization is the substitute used when a budget's spend cannot be determined.
func ZeroUtilization(limit float64, threshold int) Utilization {
	return ComputeUtilization(0, limit, threshold)
}

// StatusFor classifies a utilization percentage against an alert threshold.
func StatusFor(utilization float64, threshold int) BudgetStatus {
	switch {
	case utilization >= 100:
		return StatusExceeded
	case utilization >= float64(threshold):
		return StatusWarning
	default:
		return StatusOnTrack
	}
}

// SeverityFor ranks a utilization percentage by its margin over threshold.
func SeverityFor(utilization float64, threshold int) Severity {
	t := float64(threshold)
	switch {
	case utilization >= 100:
		return SeverityCritical
	case utilization >= t+HighSeverityMargin:
		return SeverityHigh
	case utilization >= t+MediumSeverityMargin:
		return SeverityMedium
	case utilization >= t:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// ProjectSpend linearly extrapolates spend observed between start and now to
// the end of the period.
func ProjectSpend(spend float64, start, end, now time.Time) float64 {
	elapsed := now.Sub(start)
	total := end.Sub(start)
	if elapsed <= 0 || total <= 0 {
		return RoundCents(spend)
	}
	if elapsed >= total {
		return RoundCents(spend)
	}
	return RoundCents(spend * float64(total) / float64(elapsed))
}
