package monitor

import (
	"math/rand"
	"time"

	"flight-fare-monitor/internal/domain"
)

const (
	urgentCap        = time.Hour
	afterBreakCap    = 2 * time.Hour
	fallbackInterval = 2 * time.Hour
)

// nextInterval computes how long to wait before the filter's next check.
// Jitter of +10-30% desynchronizes retries; urgency caps are applied after
// jitter so an urgent filter is never pushed past its bound.
func nextInterval(filter domain.SearchFilter, breakDetected, gotQuotes bool) time.Duration {
	base := filter.Frequency.BaseInterval()
	if !gotQuotes {
		base = fallbackInterval
	}

	interval := jitter(base)

	if filter.Urgent && interval > urgentCap {
		interval = urgentCap
	}
	if breakDetected && interval > afterBreakCap {
		interval = afterBreakCap
	}

	if interval <= 0 {
		interval = time.Minute
	}
	return interval
}

func jitter(d time.Duration) time.Duration {
	factor := 1.10 + rand.Float64()*0.20
	return time.Duration(float64(d) * factor)
}

// priorityScore ranks due filters: urgency first, then preference
// specificity, then price value.
func priorityScore(filter domain.SearchFilter) float64 {
	score := 0.0
	if filter.Urgent {
		score += 50
	}

	if len(filter.Airlines) > 0 {
		score += 10
	}
	if filter.MaxStops >= 0 {
		score += 5
	}
	if filter.Cabin != "" && filter.Cabin != domain.CabinEconomy {
		score += 5
	}
	if len(filter.DepartureDates) == 1 {
		score += 5
	}

	if value, _ := filter.TargetPrice.Float64(); value > 0 {
		switch {
		case value >= 2000:
			score += 20
		case value >= 1000:
			score += 10
		case value >= 500:
			score += 5
		}
	}

	return score
}
