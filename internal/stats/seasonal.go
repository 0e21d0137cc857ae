package stats

import (
	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/domain"
)

// SeasonalFloor returns the minimum plausible fare for the route given the
// period's demand pressure, or zero when no floor applies.
func SeasonalFloor(s domain.RouteStatistics) decimal.Decimal {
	if s.SeasonalFactor <= 1.0 || s.Count == 0 || !s.Mean.IsPositive() {
		return decimal.Zero
	}
	return s.Mean.Mul(decimal.NewFromFloat(0.4)).Mul(decimal.NewFromFloat(s.SeasonalFactor))
}
