package history

import (
	"fmt"
	"time"
)

// AnalysisResult contains derived waste signals.
type AnalysisResult struct {
	CurrentWaste float64 // $/month
	Velocity     float64 // change in monthly waste per day
	Acceleration float64 // change in velocity per day

	Projected7d float64 // monthly waste projected a week ahead
	// TimeToBudget is how long until waste reaches the budget: zero once
	// exceeded, -1 when not rising.
	TimeToBudget time.Duration

	Alerts []string
}

// Analyze derives waste trends from snapshots ordered oldest first.
func Analyze(history []Snapshot, budget float64) AnalysisResult {
	if len(history) == 0 {
		return AnalysisResult{TimeToBudget: -1}
	}

	current := history[len(history)-1]
	waste := current.MonthlyWaste.InexactFloat64()
	if len(history) < 2 {
		return AnalysisResult{CurrentWaste: waste, TimeToBudget: -1}
	}
	prev := history[len(history)-2]

	days := float64(current.Timestamp-prev.Timestamp) / 86400.0
	if days <= 0 {
		return AnalysisResult{CurrentWaste: waste, TimeToBudget: -1}
	}
	velocity := (waste - prev.MonthlyWaste.InexactFloat64()) / days

	acceleration := 0.0
	if len(history) >= 3 {
		prev2 := history[len(history)-3]
		days2 := float64(prev.Timestamp-prev2.Timestamp) / 86400.0
		if days2 > 0 {
			prevVelocity := (prev.MonthlyWaste.InexactFloat64() - prev2.MonthlyWaste.InexactFloat64()) / days2
			acceleration = (velocity - prevVelocity) / days
		}
	}

	projected := waste + velocity*7 + 0.5*acceleration*7*7

	var ttb time.Duration = -1
	switch {
	case budget > 0 && waste >= budget:
		ttb = 0
	case budget > 0 && velocity > 0:
		ttb = time.Duration((budget - waste) / velocity * float64(24*time.Hour))
	}

	var alerts []string
	if prev.MonthlyWaste.IsPositive() && velocity*days > prev.MonthlyWaste.InexactFloat64()*0.25 {
		alerts = append(alerts, fmt.Sprintf("[WARNING] WASTE GROWTH: monthly waste up $%.2f since %s", velocity*days, time.Unix(prev.Timestamp, 0).UTC().Format(time.DateOnly)))
	}
	if acceleration > 0 && velocity > 0 {
		alerts = append(alerts, fmt.Sprintf("[INFO] WASTE ACCELERATING: +$%.2f/mo per day²", acceleration))
	}
	if budget > 0 && ttb == 0 {
		alerts = append(alerts, fmt.Sprintf("[CRITICAL] BUDGET EXCEEDED: monthly waste $%.2f over budget $%.2f", waste, budget))
	} else if ttb > 0 && ttb < 7*24*time.Hour {
		alerts = append(alerts, fmt.Sprintf("[CRITICAL] BUDGET EXHAUSTION: waste budget reached in %s", ttb.Round(time.Hour)))
	}

	return AnalysisResult{
		CurrentWaste: waste,
		Velocity:     velocity,
		Acceleration: acceleration,
		Projected7d:  projected,
		TimeToBudget: ttb,
		Alerts:       alerts,
	}
}
