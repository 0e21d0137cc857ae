package intelligence

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/detector"
	"flight-fare-monitor/internal/domain"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeDedupe struct {
	notifications int
	countErr      error
	routeSuccess  bool
	routeErr      error
}

func (f *fakeDedupe) CountFilterNotifications(_ context.Context, _ int64, _ time.Time) (int, error) {
	return f.notifications, f.countErr
}

func (f *fakeDedupe) HasRecentRouteSuccess(_ context.Context, _ string, _ time.Time) (bool, error) {
	return f.routeSuccess, f.routeErr
}

func breakEval(dropPct float64) detector.Evaluation {
	return detector.Evaluation{
		Quote: domain.Quote{
			Provider:      "test",
			Origin:        "JFK",
			Destination:   "LAX",
			Price:         decimal.NewFromInt(420),
			Currency:      "USD",
			DepartureTime: time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC),
		},
		Stats: domain.RouteStatistics{
			Count:          10,
			Min:            decimal.NewFromInt(410),
			Trend:          domain.TrendStable,
			SeasonalFactor: 1.0,
		},
		IsBreak:    true,
		Confidence: 0.8,
		DropAmount: decimal.NewFromInt(80),
		DropPct:    dropPct,
	}
}

func classifierFilter(departure time.Time) domain.SearchFilter {
	return domain.SearchFilter{
		ID:             1,
		Origins:        []string{"JFK"},
		Destinations:   []string{"LAX"},
		DepartureDates: []time.Time{departure},
		TargetPrice:    decimal.NewFromInt(500),
	}
}

func TestClassifyUrgencyTiers(t *testing.T) {
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	farOut := classifierFilter(now.AddDate(0, 4, 0))

	cases := []struct {
		dropPct float64
		want    Urgency
	}{
		{20, UrgencyUrgent},
		{15, UrgencyUrgent},
		{12, UrgencySignificant},
		{8, UrgencySignificant},
		{5, UrgencyMinor},
		{3, UrgencyMinor},
		{2, UrgencyNone},
	}
	for _, tc := range cases {
		got := classifyUrgency(farOut, breakEval(tc.dropPct), now)
		if got != tc.want {
			t.Fatalf("drop %.0f%%: expected %s, got %s", tc.dropPct, tc.want, got)
		}
	}
}

func TestClassifySubMinorSuppressed(t *testing.T) {
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	classifier := NewClassifier(nil, Options{}, testLogger())

	decision := classifier.Classify(context.Background(), classifierFilter(now.AddDate(0, 4, 0)), breakEval(2), now)
	if !decision.Suppressed {
		t.Fatal("drops below the minor threshold must be suppressed")
	}
}

func TestClassifyFilterNotificationLimit(t *testing.T) {
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	classifier := NewClassifier(&fakeDedupe{notifications: 3}, Options{MaxPerFilterHour: 3}, testLogger())

	decision := classifier.Classify(context.Background(), classifierFilter(now.AddDate(0, 4, 0)), breakEval(12), now)
	if !decision.Suppressed {
		t.Fatal("third notification within the hour must suppress")
	}
	if !strings.Contains(decision.SuppressedBy, "limit") {
		t.Fatalf("unexpected suppression cause: %s", decision.SuppressedBy)
	}
}

func TestClassifyRouteCooldown(t *testing.T) {
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	classifier := NewClassifier(&fakeDedupe{routeSuccess: true}, Options{}, testLogger())

	decision := classifier.Classify(context.Background(), classifierFilter(now.AddDate(0, 4, 0)), breakEval(12), now)
	if !decision.Suppressed {
		t.Fatal("recent route success must suppress within cooldown")
	}
	if !strings.Contains(decision.SuppressedBy, "cooldown") {
		t.Fatalf("unexpected suppression cause: %s", decision.SuppressedBy)
	}
}

func TestClassifyDedupeErrorAllows(t *testing.T) {
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	classifier := NewClassifier(&fakeDedupe{countErr: errors.New("db down"), routeErr: errors.New("db down")}, Options{}, testLogger())

	decision := classifier.Classify(context.Background(), classifierFilter(now.AddDate(0, 4, 0)), breakEval(12), now)
	if decision.Suppressed {
		t.Fatal("dedupe lookup failures must not suppress")
	}
}

func TestDeliveryTimes(t *testing.T) {
	midday := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)

	urgent := deliveryTime(UrgencyUrgent, midday)
	if urgent == nil || !urgent.Equal(midday) {
		t.Fatalf("urgent must deliver immediately, got %v", urgent)
	}

	significant := deliveryTime(UrgencySignificant, midday)
	if significant == nil || !significant.Equal(midday.Add(15*time.Minute)) {
		t.Fatalf("significant must deliver in 15 minutes, got %v", significant)
	}

	lateNight := time.Date(2026, time.September, 1, 23, 0, 0, 0, time.UTC)
	deferred := deliveryTime(UrgencySignificant, lateNight)
	if deferred == nil || deferred.Hour() != 8 {
		t.Fatalf("significant in quiet hours must defer to 08:00, got %v", deferred)
	}
	if !deferred.After(lateNight) {
		t.Fatal("deferred delivery must be in the future")
	}

	minor := deliveryTime(UrgencyMinor, midday)
	if minor == nil || !minor.Equal(midday.Add(time.Hour)) {
		t.Fatalf("minor during business hours delivers in one hour, got %v", minor)
	}

	// 2026-09-04 is a Friday; an evening minor break waits until Monday.
	fridayEvening := time.Date(2026, time.September, 4, 20, 0, 0, 0, time.UTC)
	weekend := deliveryTime(UrgencyMinor, fridayEvening)
	if weekend == nil || weekend.Weekday() != time.Monday || weekend.Hour() != 9 {
		t.Fatalf("minor outside business hours waits for next business day, got %v", weekend)
	}

	if deliveryTime(UrgencyNone, midday) != nil {
		t.Fatal("no-tier breaks have no delivery time")
	}
}

func TestContentDeterministicPerTier(t *testing.T) {
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	filter := classifierFilter(now.AddDate(0, 0, 20))
	eval := breakEval(16)

	first := buildContent(filter, eval, UrgencyUrgent, now)
	second := buildContent(filter, eval, UrgencyUrgent, now)
	if first != second {
		t.Fatal("content generation must be deterministic")
	}
	if !strings.HasPrefix(first.Title, "Act now:") {
		t.Fatalf("urgent title prefix wrong: %s", first.Title)
	}
	if first.Recommendation != "book_now" {
		t.Fatalf("urgent recommendation wrong: %s", first.Recommendation)
	}
	if first.BookingWindow != "near_term" {
		t.Fatalf("20 days out is near_term, got %s", first.BookingWindow)
	}

	significant := buildContent(filter, breakEval(10), UrgencySignificant, now)
	if !strings.HasPrefix(significant.Title, "Good deal:") {
		t.Fatalf("significant title prefix wrong: %s", significant.Title)
	}
	if significant.Recommendation != "book_soon" {
		t.Fatalf("significant recommendation wrong: %s", significant.Recommendation)
	}

	minor := buildContent(filter, breakEval(5), UrgencyMinor, now)
	if !strings.HasPrefix(minor.Title, "Price improved on") {
		t.Fatalf("minor title prefix wrong: %s", minor.Title)
	}
	if minor.Recommendation != "watch" {
		t.Fatalf("minor recommendation wrong: %s", minor.Recommendation)
	}
}

func TestBookingWindowBuckets(t *testing.T) {
	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		departure time.Time
		want      string
	}{
		{now.AddDate(0, 0, -1), "past"},
		{now.AddDate(0, 0, 7), "last_minute"},
		{now.AddDate(0, 0, 25), "near_term"},
		{now.AddDate(0, 0, 60), "standard"},
		{now.AddDate(0, 6, 0), "far_out"},
	}
	for _, tc := range cases {
		got := bookingWindowBucket(classifierFilter(tc.departure), now)
		if got != tc.want {
			t.Fatalf("departure %s: expected %s, got %s", tc.departure, tc.want, got)
		}
	}
	if got := bookingWindowBucket(domain.SearchFilter{}, now); got != "unknown" {
		t.Fatalf("no departure date is unknown, got %s", got)
	}
}
