package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/domain"
)

// Slope magnitudes below this are classified as a stable trend.
const slopeThreshold = 0.5

// ObservationReader supplies the valid price history for a route.
type ObservationReader interface {
	ListObservations(ctx context.Context, route string, from, to time.Time) ([]domain.PriceObservation, error)
}

// Options tune the statistics engine.
type Options struct {
	LookbackDays int
	CacheTTL     time.Duration
}

// Engine derives per-route historical statistics with snapshot caching.
type Engine struct {
	reader ObservationReader
	cache  Cache
	opts   Options
	logger zerolog.Logger
}

// NewEngine constructs a statistics engine.
func NewEngine(reader ObservationReader, cache Cache, opts Options, logger zerolog.Logger) *Engine {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 30
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 2 * time.Hour
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Engine{
		reader: reader,
		cache:  cache,
		opts:   opts,
		logger: logger.With().Str("component", "stats_engine").Logger(),
	}
}

// Snapshot returns route statistics, serving from cache when fresh.
func (e *Engine) Snapshot(ctx context.Context, route string) (domain.RouteStatistics, error) {
	if cached, ok := e.cache.Get(ctx, route); ok {
		return cached, nil
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -e.opts.LookbackDays)

	observations, err := e.reader.ListObservations(ctx, route, from, now)
	if err != nil {
		return domain.RouteStatistics{}, fmt.Errorf("list observations for %s: %w", route, err)
	}

	snapshot := Compute(route, observations, now)

	if err := e.cache.Set(ctx, route, snapshot, e.opts.CacheTTL); err != nil {
		e.logger.Warn().Err(err).Str("route", route).Msg("failed to cache statistics snapshot")
	}
	return snapshot, nil
}

// Invalidate drops the cached snapshot after new observations land.
func (e *Engine) Invalidate(ctx context.Context, route string) {
	if err := e.cache.Invalidate(ctx, route); err != nil {
		e.logger.Warn().Err(err).Str("route", route).Msg("failed to invalidate statistics cache")
	}
}

// Compute derives a statistics snapshot from an ordered observation series.
// Fewer than two observations yields a low-confidence snapshot with zeroed
// volatility and a stable trend; callers treat the small sample as a signal.
func Compute(route string, observations []domain.PriceObservation, now time.Time) domain.RouteStatistics {
	snapshot := domain.RouteStatistics{
		Route:          route,
		Trend:          domain.TrendStable,
		SeasonalFactor: SeasonalFactor(now),
		ComputedAt:     now,
	}

	valid := make([]domain.PriceObservation, 0, len(observations))
	for _, obs := range observations {
		if obs.Validity == domain.ObservationValid {
			valid = append(valid, obs)
		}
	}

	prices := make([]decimal.Decimal, len(valid))
	for i, obs := range valid {
		prices[i] = obs.Price
	}
	snapshot.Prices = prices
	snapshot.Count = len(prices)
	snapshot.QualityScore = qualityScore(observations, now)

	if len(prices) < 2 {
		if len(prices) == 1 {
			snapshot.Mean = prices[0]
			snapshot.Median = prices[0]
			snapshot.Min = prices[0]
			snapshot.Max = prices[0]
		}
		return snapshot
	}

	floats := make([]float64, len(prices))
	sum := decimal.Zero
	snapshot.Min = prices[0]
	snapshot.Max = prices[0]
	for i, p := range prices {
		floats[i], _ = p.Float64()
		sum = sum.Add(p)
		if p.LessThan(snapshot.Min) {
			snapshot.Min = p
		}
		if p.GreaterThan(snapshot.Max) {
			snapshot.Max = p
		}
	}

	snapshot.Mean = sum.Div(decimal.NewFromInt(int64(len(prices))))
	snapshot.Median = median(prices)
	snapshot.Volatility = volatility(floats)
	snapshot.Trend = trend(floats)
	snapshot.RecentDrops = recentDrops(prices)

	return snapshot
}

func median(prices []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

// volatility is the coefficient of variation expressed as a percentage.
func volatility(prices []float64) float64 {
	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))
	if mean == 0 {
		return 0
	}

	variance := 0.0
	for _, p := range prices {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(prices))

	return math.Sqrt(variance) / mean * 100
}

// trend classifies the sign of the least-squares slope over index vs price.
func trend(prices []float64) domain.TrendDirection {
	n := float64(len(prices))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range prices {
		x := float64(i)
		sumX += x
		sumY += p
		sumXY += x * p
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return domain.TrendStable
	}
	slope := (n*sumXY - sumX*sumY) / denom

	switch {
	case slope > slopeThreshold:
		return domain.TrendIncreasing
	case slope < -slopeThreshold:
		return domain.TrendDecreasing
	default:
		return domain.TrendStable
	}
}

func recentDrops(prices []decimal.Decimal) int {
	drops := 0
	for i := 1; i < len(prices); i++ {
		if prices[i].LessThan(prices[i-1]) {
			drops++
		}
	}
	return drops
}

// qualityScore blends validity fraction (0.7) with 7-day freshness fraction (0.3).
func qualityScore(observations []domain.PriceObservation, now time.Time) float64 {
	if len(observations) == 0 {
		return 0
	}

	validCount := 0
	freshCount := 0
	freshCutoff := now.AddDate(0, 0, -7)
	for _, obs := range observations {
		if obs.Validity == domain.ObservationValid {
			validCount++
		}
		if obs.ObservedAt.After(freshCutoff) {
			freshCount++
		}
	}

	total := float64(len(observations))
	score := 0.7*(float64(validCount)/total) + 0.3*(float64(freshCount)/total)
	return domain.Clamp01(score)
}

// SeasonalFactor estimates demand pressure for the current month. Values above
// 1.0 indicate high-demand travel periods with structurally higher floors.
func SeasonalFactor(t time.Time) float64 {
	switch t.Month() {
	case time.June, time.July, time.August, time.December:
		return 1.3
	case time.March, time.April:
		return 1.15
	case time.January, time.February:
		return 0.9
	default:
		return 1.0
	}
}
