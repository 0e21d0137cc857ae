package spamcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/domain"
	"flight-fare-monitor/internal/stats"
)

// CheckResult is the verdict of one independent heuristic check.
type CheckResult struct {
	Flagged bool
	Reasons []string
	Penalty float64
}

// Input bundles everything the checks inspect. Limits is populated by the
// pipeline before the checks run.
type Input struct {
	Quote  domain.Quote
	Filter domain.SearchFilter
	Stats  domain.RouteStatistics
	Limits Thresholds
	Now    time.Time
}

var (
	absoluteFloor   = decimal.NewFromInt(20)
	absoluteCeiling = decimal.NewFromInt(20_000)

	// Fare points that show up repeatedly in fabricated listings; a price at
	// exactly half one of these is a classic scraped-then-halved artifact.
	commonFarePoints = []int64{198, 298, 398, 498, 598, 698, 798, 898, 998, 1198, 1498}
)

func checkPriceRealism(_ context.Context, in Input, _ Reader) CheckResult {
	var result CheckResult
	price := in.Quote.Price

	if price.LessThan(absoluteFloor) {
		result.Flagged = true
		result.Penalty += 0.4
		result.Reasons = append(result.Reasons, fmt.Sprintf("price %s below absolute floor", price))
	}
	if price.GreaterThan(absoluteCeiling) {
		result.Flagged = true
		result.Penalty += 0.3
		result.Reasons = append(result.Reasons, fmt.Sprintf("price %s above absolute ceiling", price))
	}

	if in.Stats.Count > 0 && in.Stats.Min.IsPositive() {
		threshold := in.Stats.Min.Mul(decimal.NewFromFloat(0.3))
		if price.LessThan(threshold) {
			result.Flagged = true
			result.Penalty += 0.35
			result.Reasons = append(result.Reasons, fmt.Sprintf("price %s under 30%% of historical minimum %s", price, in.Stats.Min))
		}
	}

	if isRoundFare(price) && in.Stats.Count > 0 && price.LessThan(in.Stats.Median.Mul(decimal.NewFromFloat(0.7))) {
		result.Flagged = true
		result.Penalty += 0.15
		result.Reasons = append(result.Reasons, "suspicious round-number fare well below median")
	}

	doubled := price.Mul(decimal.NewFromInt(2))
	for _, point := range commonFarePoints {
		diff := doubled.Sub(decimal.NewFromInt(point)).Abs()
		if diff.LessThanOrEqual(decimal.NewFromInt(2)) {
			result.Flagged = true
			result.Penalty += 0.25
			result.Reasons = append(result.Reasons, fmt.Sprintf("price %s is half of common fare point %d", price, point))
			break
		}
	}

	return result
}

func isRoundFare(price decimal.Decimal) bool {
	hundred := decimal.NewFromInt(100)
	return price.Mod(hundred).IsZero()
}

func checkVolatility(_ context.Context, in Input, _ Reader) CheckResult {
	var result CheckResult

	switch {
	case in.Stats.Volatility > in.Limits.HardVolatilityPct:
		result.Flagged = true
		result.Penalty += 0.3
		result.Reasons = append(result.Reasons, fmt.Sprintf("route volatility %.1f%% above hard threshold", in.Stats.Volatility))
	case in.Stats.Volatility > in.Limits.SoftVolatilityPct:
		result.Flagged = true
		result.Penalty += 0.15
		result.Reasons = append(result.Reasons, fmt.Sprintf("route volatility %.1f%% above soft threshold", in.Stats.Volatility))
	}

	// Sudden deviation from the trailing 3-observation average.
	if n := len(in.Stats.Prices); n >= 3 {
		trailing := decimal.Zero
		for _, p := range in.Stats.Prices[n-3:] {
			trailing = trailing.Add(p)
		}
		trailing = trailing.Div(decimal.NewFromInt(3))
		if trailing.IsPositive() {
			deviation, _ := in.Quote.Price.Sub(trailing).Abs().Div(trailing).Float64()
			switch {
			case deviation > 0.5:
				result.Flagged = true
				result.Penalty += 0.3
				result.Reasons = append(result.Reasons, fmt.Sprintf("price deviates %.0f%% from trailing average", deviation*100))
			case deviation > 0.3:
				result.Flagged = true
				result.Penalty += 0.15
				result.Reasons = append(result.Reasons, fmt.Sprintf("price deviates %.0f%% from trailing average", deviation*100))
			}
		}
	}

	return result
}

func checkFrequency(ctx context.Context, in Input, reader Reader) CheckResult {
	var result CheckResult
	if reader == nil {
		return result
	}

	dayAgo := in.Now.Add(-24 * time.Hour)
	filterTriggers, err := reader.CountFilterTriggers(ctx, in.Filter.ID, dayAgo)
	if err == nil {
		switch {
		case filterTriggers >= in.Limits.FilterHardPerDay:
			result.Flagged = true
			result.Penalty += 0.4
			result.Reasons = append(result.Reasons, fmt.Sprintf("filter triggered %d times in 24h (hard limit)", filterTriggers))
		case filterTriggers >= in.Limits.FilterSoftPerDay:
			result.Flagged = true
			result.Penalty += 0.2
			result.Reasons = append(result.Reasons, fmt.Sprintf("filter triggered %d times in 24h (soft limit)", filterTriggers))
		}
	}

	hourAgo := in.Now.Add(-time.Hour)
	routeTriggers, err := reader.CountRouteTriggers(ctx, in.Quote.Route(), hourAgo)
	if err == nil && routeTriggers >= in.Limits.RouteHardPerHour {
		result.Flagged = true
		result.Penalty += 0.4
		result.Reasons = append(result.Reasons, fmt.Sprintf("route triggered %d times in 1h", routeTriggers))
	}

	return result
}

func checkPatterns(_ context.Context, in Input, _ Reader) CheckResult {
	var result CheckResult

	n := len(in.Stats.Prices)
	if n < 5 {
		return result
	}
	window := in.Stats.Prices[n-5:]

	if isAlternating(window) {
		result.Flagged = true
		result.Penalty += 0.25
		result.Reasons = append(result.Reasons, "alternating high/low price pattern")
	}
	if isStairStep(window) {
		result.Flagged = true
		result.Penalty += 0.2
		result.Reasons = append(result.Reasons, "monotonic stair-step price pattern")
	}
	if hasSimpleMultiples(window) {
		result.Flagged = true
		result.Penalty += 0.2
		result.Reasons = append(result.Reasons, "simple-multiple relationship between observations")
	}

	return result
}

func isAlternating(prices []decimal.Decimal) bool {
	for i := 2; i < len(prices); i++ {
		prev := prices[i-1].Cmp(prices[i-2])
		curr := prices[i].Cmp(prices[i-1])
		if prev == 0 || curr == 0 || prev == curr {
			return false
		}
	}
	return true
}

func isStairStep(prices []decimal.Decimal) bool {
	if len(prices) < 3 {
		return false
	}
	step := prices[1].Sub(prices[0])
	if step.IsZero() {
		return false
	}
	tolerance := step.Abs().Mul(decimal.NewFromFloat(0.05))
	for i := 2; i < len(prices); i++ {
		diff := prices[i].Sub(prices[i-1])
		if diff.Sub(step).Abs().GreaterThan(tolerance) {
			return false
		}
	}
	return true
}

func hasSimpleMultiples(prices []decimal.Decimal) bool {
	multiples := []decimal.Decimal{
		decimal.NewFromInt(2),
		decimal.NewFromInt(3),
		decimal.NewFromFloat(0.5),
	}
	for i := 1; i < len(prices); i++ {
		if prices[i-1].IsZero() {
			continue
		}
		ratio := prices[i].Div(prices[i-1])
		for _, m := range multiples {
			if ratio.Sub(m).Abs().LessThan(decimal.NewFromFloat(0.01)) {
				return true
			}
		}
	}
	return false
}

func checkCompleteness(_ context.Context, in Input, _ Reader) CheckResult {
	var result CheckResult

	if in.Quote.Airline == "" {
		result.Flagged = true
		result.Penalty += 0.1
		result.Reasons = append(result.Reasons, "missing airline")
	}
	if in.Quote.FlightNumber == "" {
		result.Flagged = true
		result.Penalty += 0.1
		result.Reasons = append(result.Reasons, "missing flight number")
	}
	if in.Quote.DepartureTime.IsZero() {
		result.Flagged = true
		result.Penalty += 0.1
		result.Reasons = append(result.Reasons, "missing departure time")
	}
	if !in.Quote.Price.IsPositive() {
		result.Flagged = true
		result.Penalty += 0.3
		result.Reasons = append(result.Reasons, "non-positive price")
	}

	return result
}

func checkSeasonal(_ context.Context, in Input, _ Reader) CheckResult {
	var result CheckResult

	// In high-demand periods a fare far below the seasonally adjusted floor
	// is more likely fabricated than bookable.
	floor := stats.SeasonalFloor(in.Stats)
	if floor.IsZero() {
		return result
	}
	if in.Quote.Price.LessThan(floor) {
		result.Flagged = true
		result.Penalty += 0.2
		result.Reasons = append(result.Reasons, fmt.Sprintf("price %s below seasonal floor %s", in.Quote.Price, floor.Round(2)))
	}

	return result
}

func checkProviderReliability(ctx context.Context, in Input, reader Reader) CheckResult {
	var result CheckResult
	if reader == nil {
		return result
	}

	valid, invalid, err := reader.ProviderCounts(ctx, in.Quote.Provider)
	if err != nil || valid+invalid < 10 {
		return result
	}

	ratio := float64(invalid) / float64(valid+invalid)
	if ratio > 0.3 {
		result.Flagged = true
		result.Penalty += 0.25
		result.Reasons = append(result.Reasons, fmt.Sprintf("provider %s invalid ratio %.0f%%", in.Quote.Provider, ratio*100))
	}

	return result
}

func checkFatigue(ctx context.Context, in Input, reader Reader) CheckResult {
	var result CheckResult
	if reader == nil {
		return result
	}

	weekAgo := in.Now.Add(-7 * 24 * time.Hour)
	lowQuality, err := reader.CountLowQualityAlerts(ctx, in.Quote.Route(), weekAgo)
	if err == nil && lowQuality >= 3 {
		result.Flagged = true
		result.Penalty += 0.15
		result.Reasons = append(result.Reasons, fmt.Sprintf("%d recent low-quality alerts on route", lowQuality))
	}

	return result
}
