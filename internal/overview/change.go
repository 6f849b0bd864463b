package overview

import (
	"fmt"
	"math"
)

const (
	labelNoChange   = "no change"
	labelNoBaseline = "no prior baseline"
	labelVsPrevious = "vs previous period"
)

// ComputeChange returns the period-over-period change of a metric, or nil
// when either operand is not a finite number. A zero baseline never divides:
// it reports 0 with a "New" label instead of an infinite percentage.
func ComputeChange(current, previous float64, lowerIsBetter bool) *MetricChange {
	if !finite(current) || !finite(previous) {
		return nil
	}
	if current == 0 && previous == 0 {
		return &MetricChange{Value: 0, IsPositive: true, DisplayLabel: "0%", ComparisonLabel: labelNoChange}
	}
	if previous == 0 {
		display := "New"
		if current == 0 {
			display = "0%"
		}
		return &MetricChange{Value: 0, IsPositive: !lowerIsBetter, DisplayLabel: display, ComparisonLabel: labelNoBaseline}
	}
	raw := (current - previous) / math.Abs(previous) * 100
	value := roundTenth(math.Abs(raw))
	positive := raw >= 0
	if lowerIsBetter {
		positive = raw <= 0
	}
	sign := "+"
	if raw < 0 {
		sign = "-"
	}
	return &MetricChange{
		Value:           value,
		IsPositive:      positive,
		DisplayLabel:    fmt.Sprintf("%s%.1f%%", sign, value),
		ComparisonLabel: labelVsPrevious,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
