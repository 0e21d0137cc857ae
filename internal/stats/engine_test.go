package stats

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/domain"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeReader struct {
	observations []domain.PriceObservation
	calls        int
}

func (f *fakeReader) ListObservations(_ context.Context, _ string, _, _ time.Time) ([]domain.PriceObservation, error) {
	f.calls++
	return f.observations, nil
}

func observationSeries(now time.Time, prices ...float64) []domain.PriceObservation {
	series := make([]domain.PriceObservation, 0, len(prices))
	for i, p := range prices {
		series = append(series, domain.PriceObservation{
			Route:      "JFK-LAX",
			Provider:   "test",
			Price:      decimal.NewFromFloat(p),
			Currency:   "USD",
			Validity:   domain.ObservationValid,
			ObservedAt: now.Add(-time.Duration(len(prices)-i) * time.Hour),
		})
	}
	return series
}

func TestComputeBasicStatistics(t *testing.T) {
	now := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)
	snapshot := Compute("JFK-LAX", observationSeries(now, 500, 480, 520, 460, 540), now)

	if snapshot.Count != 5 {
		t.Fatalf("expected 5 samples, got %d", snapshot.Count)
	}
	if !snapshot.Mean.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected mean 500, got %s", snapshot.Mean)
	}
	if !snapshot.Median.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected median 500, got %s", snapshot.Median)
	}
	if !snapshot.Min.Equal(decimal.NewFromInt(460)) || !snapshot.Max.Equal(decimal.NewFromInt(540)) {
		t.Fatalf("unexpected min/max: %s/%s", snapshot.Min, snapshot.Max)
	}
	if snapshot.Volatility <= 0 {
		t.Fatalf("expected positive volatility, got %f", snapshot.Volatility)
	}
	if snapshot.RecentDrops != 2 {
		t.Fatalf("expected 2 drops (480, 460), got %d", snapshot.RecentDrops)
	}
	if snapshot.QualityScore != 1.0 {
		t.Fatalf("all valid fresh observations should score 1.0, got %f", snapshot.QualityScore)
	}
}

func TestComputeSkipsInvalidObservations(t *testing.T) {
	now := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)
	series := observationSeries(now, 500, 500, 500)
	series[1].Validity = domain.ObservationSuspicious

	snapshot := Compute("JFK-LAX", series, now)
	if snapshot.Count != 2 {
		t.Fatalf("suspicious observations must not enter statistics, got count %d", snapshot.Count)
	}
	if snapshot.QualityScore >= 1.0 {
		t.Fatalf("quality should drop with invalid samples, got %f", snapshot.QualityScore)
	}
}

func TestComputeLowSample(t *testing.T) {
	now := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)
	snapshot := Compute("JFK-LAX", observationSeries(now, 500), now)

	if !snapshot.LowConfidence() {
		t.Fatal("single sample should be low confidence")
	}
	if snapshot.Volatility != 0 {
		t.Fatalf("single sample has no volatility, got %f", snapshot.Volatility)
	}
	if snapshot.Trend != domain.TrendStable {
		t.Fatalf("single sample trend should be stable, got %s", snapshot.Trend)
	}
	if !snapshot.Mean.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("single sample should set mean, got %s", snapshot.Mean)
	}
}

func TestComputeTrendDirection(t *testing.T) {
	now := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)

	rising := Compute("JFK-LAX", observationSeries(now, 400, 420, 440, 460, 480), now)
	if rising.Trend != domain.TrendIncreasing {
		t.Fatalf("expected increasing trend, got %s", rising.Trend)
	}

	falling := Compute("JFK-LAX", observationSeries(now, 480, 460, 440, 420, 400), now)
	if falling.Trend != domain.TrendDecreasing {
		t.Fatalf("expected decreasing trend, got %s", falling.Trend)
	}

	flat := Compute("JFK-LAX", observationSeries(now, 450, 450, 450, 450), now)
	if flat.Trend != domain.TrendStable {
		t.Fatalf("expected stable trend, got %s", flat.Trend)
	}
}

func TestSeasonalFactor(t *testing.T) {
	cases := []struct {
		month time.Month
		want  float64
	}{
		{time.July, 1.3},
		{time.December, 1.3},
		{time.March, 1.15},
		{time.January, 0.9},
		{time.October, 1.0},
	}
	for _, tc := range cases {
		got := SeasonalFactor(time.Date(2026, tc.month, 15, 0, 0, 0, 0, time.UTC))
		if got != tc.want {
			t.Fatalf("month %s: expected factor %f, got %f", tc.month, tc.want, got)
		}
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	snapshot := domain.RouteStatistics{Route: "JFK-LAX", Count: 5}

	if err := cache.Set(ctx, "JFK-LAX", snapshot, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, ok := cache.Get(ctx, "JFK-LAX"); !ok || got.Count != 5 {
		t.Fatalf("expected cache hit with count 5, got ok=%v count=%d", ok, got.Count)
	}

	if err := cache.Set(ctx, "JFK-LAX", snapshot, -time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok := cache.Get(ctx, "JFK-LAX"); ok {
		t.Fatal("expired entry should miss")
	}

	if err := cache.Set(ctx, "JFK-LAX", snapshot, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := cache.Invalidate(ctx, "JFK-LAX"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if _, ok := cache.Get(ctx, "JFK-LAX"); ok {
		t.Fatal("invalidated entry should miss")
	}
}

func TestEngineSnapshotServesFromCache(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	reader := &fakeReader{observations: observationSeries(now, 500, 480, 520)}
	engine := NewEngine(reader, NewMemoryCache(), Options{LookbackDays: 30, CacheTTL: time.Minute}, testLogger())

	first, err := engine.Snapshot(ctx, "JFK-LAX")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	second, err := engine.Snapshot(ctx, "JFK-LAX")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	if reader.calls != 1 {
		t.Fatalf("second snapshot should hit cache, reader called %d times", reader.calls)
	}
	if first.Count != second.Count {
		t.Fatalf("cached snapshot should match: %d vs %d", first.Count, second.Count)
	}

	engine.Invalidate(ctx, "JFK-LAX")
	if _, err := engine.Snapshot(ctx, "JFK-LAX"); err != nil {
		t.Fatalf("snapshot after invalidate failed: %v", err)
	}
	if reader.calls != 2 {
		t.Fatalf("invalidate should force recompute, reader called %d times", reader.calls)
	}
}
