package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	priceFloor   = decimal.NewFromInt(10)
	priceCeiling = decimal.NewFromInt(50_000)
)

// NormalizeAirport uppercases and trims an IATA-style code.
func NormalizeAirport(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeRoute canonicalizes a "XXX-YYY" route key.
func NormalizeRoute(route string) string {
	parts := strings.SplitN(route, "-", 2)
	if len(parts) != 2 {
		return strings.ToUpper(strings.TrimSpace(route))
	}
	return NormalizeAirport(parts[0]) + "-" + NormalizeAirport(parts[1])
}

// Normalize canonicalizes the quote's route codes and currency in place.
func (q *Quote) Normalize() {
	q.Origin = NormalizeAirport(q.Origin)
	q.Destination = NormalizeAirport(q.Destination)
	q.Currency = strings.ToUpper(strings.TrimSpace(q.Currency))
	q.Airline = strings.TrimSpace(q.Airline)
	q.FlightNumber = strings.TrimSpace(q.FlightNumber)
}

// Validate rejects quotes that cannot enter the detection pipeline.
// Violations are returned as reasons, not raised.
func (q Quote) Validate() []string {
	var reasons []string
	if q.Origin == "" || q.Destination == "" {
		reasons = append(reasons, "missing route endpoints")
	}
	if q.Provider == "" {
		reasons = append(reasons, "missing provider")
	}
	if q.Price.LessThan(priceFloor) {
		reasons = append(reasons, fmt.Sprintf("price below floor %s", priceFloor))
	}
	if q.Price.GreaterThan(priceCeiling) {
		reasons = append(reasons, fmt.Sprintf("price above ceiling %s", priceCeiling))
	}
	if q.ObservedAt.IsZero() {
		reasons = append(reasons, "missing observation timestamp")
	}
	return reasons
}

// ValidateFilter rejects filters missing required criteria.
func ValidateFilter(f SearchFilter) error {
	if len(f.Origins) == 0 || len(f.Destinations) == 0 {
		return fmt.Errorf("filter %d: route endpoints required", f.ID)
	}
	if f.TargetPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("filter %d: target price must be positive", f.ID)
	}
	if !f.MaxPrice.IsZero() && f.MaxPrice.LessThan(f.MinPrice) {
		return fmt.Errorf("filter %d: max price below min price", f.ID)
	}
	return nil
}
