package spamcheck

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/domain"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func cleanQuote(price float64) domain.Quote {
	return domain.Quote{
		Provider:      "test",
		Origin:        "JFK",
		Destination:   "LAX",
		Airline:       "AA",
		FlightNumber:  "AA100",
		Price:         decimal.NewFromFloat(price),
		Currency:      "USD",
		Cabin:         domain.CabinEconomy,
		DepartureTime: time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC),
		ObservedAt:    time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC),
	}
}

func statsFromPrices(prices ...float64) domain.RouteStatistics {
	decimals := make([]decimal.Decimal, len(prices))
	sum := decimal.Zero
	min := decimal.NewFromFloat(prices[0])
	for i, p := range prices {
		decimals[i] = decimal.NewFromFloat(p)
		sum = sum.Add(decimals[i])
		if decimals[i].LessThan(min) {
			min = decimals[i]
		}
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(prices))))
	return domain.RouteStatistics{
		Route:          "JFK-LAX",
		Prices:         decimals,
		Count:          len(prices),
		Mean:           mean,
		Median:         mean,
		Min:            min,
		SeasonalFactor: 1.0,
		QualityScore:   1.0,
	}
}

func TestHalfFarePointFlagged(t *testing.T) {
	pipeline := NewPipeline(nil, Thresholds{}, testLogger())
	in := Input{
		Quote:  cleanQuote(299),
		Filter: domain.SearchFilter{ID: 1},
		Stats:  statsFromPrices(600, 610, 590, 605, 595),
		Now:    time.Now().UTC(),
	}

	verdict := pipeline.Evaluate(context.Background(), in)
	if !verdict.IsSpam {
		t.Fatal("price at half a common fare point should be flagged")
	}
	found := false
	for _, reason := range verdict.Reasons {
		if strings.Contains(reason, "half of common fare point") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected half-fare-point reason, got %v", verdict.Reasons)
	}
}

func TestCleanQuotePasses(t *testing.T) {
	pipeline := NewPipeline(nil, Thresholds{}, testLogger())
	in := Input{
		Quote:  cleanQuote(480),
		Filter: domain.SearchFilter{ID: 1},
		Stats:  statsFromPrices(500, 495, 505, 510, 500),
		Now:    time.Now().UTC(),
	}

	verdict := pipeline.Evaluate(context.Background(), in)
	if verdict.IsSpam {
		t.Fatalf("ordinary quote should pass, got reasons %v", verdict.Reasons)
	}
	if verdict.ConfidencePenalty != 0 {
		t.Fatalf("clean quote should carry no penalty, got %f", verdict.ConfidencePenalty)
	}
}

func TestHighVolatilityFlagged(t *testing.T) {
	pipeline := NewPipeline(nil, Thresholds{}, testLogger())
	routeStats := statsFromPrices(480, 490, 500, 495, 505)
	routeStats.Volatility = 85

	in := Input{
		Quote:  cleanQuote(490),
		Filter: domain.SearchFilter{ID: 1},
		Stats:  routeStats,
		Now:    time.Now().UTC(),
	}

	verdict := pipeline.Evaluate(context.Background(), in)
	if !verdict.IsSpam {
		t.Fatal("volatility above hard threshold should flag")
	}
}

func TestImplausiblyCheapFlagged(t *testing.T) {
	pipeline := NewPipeline(nil, Thresholds{}, testLogger())
	in := Input{
		Quote:  cleanQuote(50),
		Filter: domain.SearchFilter{ID: 1},
		Stats:  statsFromPrices(500, 495, 505, 510, 500),
		Now:    time.Now().UTC(),
	}

	verdict := pipeline.Evaluate(context.Background(), in)
	if !verdict.IsSpam {
		t.Fatal("price under 30% of historical minimum should flag")
	}
	if verdict.ConfidencePenalty <= 0 {
		t.Fatal("flagged quote must carry a positive penalty")
	}
}

func TestIncompleteQuoteFlagged(t *testing.T) {
	pipeline := NewPipeline(nil, Thresholds{}, testLogger())
	quote := cleanQuote(480)
	quote.Airline = ""
	quote.FlightNumber = ""

	in := Input{
		Quote:  quote,
		Filter: domain.SearchFilter{ID: 1},
		Stats:  statsFromPrices(500, 495, 505, 510, 500),
		Now:    time.Now().UTC(),
	}

	verdict := pipeline.Evaluate(context.Background(), in)
	if !verdict.IsSpam {
		t.Fatal("missing airline and flight number should flag")
	}
}

func TestPenaltyClampedToOne(t *testing.T) {
	pipeline := NewPipeline(nil, Thresholds{}, testLogger())
	quote := domain.Quote{Provider: "test", Origin: "JFK", Destination: "LAX", Price: decimal.NewFromInt(5)}

	in := Input{
		Quote:  quote,
		Filter: domain.SearchFilter{ID: 1},
		Stats:  statsFromPrices(500, 495, 505, 510, 500),
		Now:    time.Now().UTC(),
	}

	verdict := pipeline.Evaluate(context.Background(), in)
	if !verdict.IsSpam {
		t.Fatal("degenerate quote should flag")
	}
	if verdict.ConfidencePenalty > 1 {
		t.Fatalf("penalty must clamp to [0,1], got %f", verdict.ConfidencePenalty)
	}
}

func TestStairStepPatternFlagged(t *testing.T) {
	pipeline := NewPipeline(nil, Thresholds{}, testLogger())
	in := Input{
		Quote:  cleanQuote(480),
		Filter: domain.SearchFilter{ID: 1},
		Stats:  statsFromPrices(400, 420, 440, 460, 480),
		Now:    time.Now().UTC(),
	}

	verdict := pipeline.Evaluate(context.Background(), in)
	found := false
	for _, reason := range verdict.Reasons {
		if strings.Contains(reason, "stair-step") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stair-step reason, got %v", verdict.Reasons)
	}
}

func TestPanickingCheckIsSkipped(t *testing.T) {
	pipeline := NewPipeline(nil, Thresholds{}, testLogger())
	pipeline.checks = append([]namedCheck{{
		name: "explosive",
		run: func(ctx context.Context, in Input, reader Reader) CheckResult {
			panic("boom")
		},
	}}, pipeline.checks...)

	in := Input{
		Quote:  cleanQuote(480),
		Filter: domain.SearchFilter{ID: 1},
		Stats:  statsFromPrices(500, 495, 505, 510, 500),
		Now:    time.Now().UTC(),
	}

	verdict := pipeline.Evaluate(context.Background(), in)
	if verdict.IsSpam {
		t.Fatalf("a panicking check must not flag the quote, got reasons %v", verdict.Reasons)
	}
}
