package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/alerting"
	"flight-fare-monitor/internal/detector"
	"flight-fare-monitor/internal/domain"
	"flight-fare-monitor/internal/intelligence"
	"flight-fare-monitor/internal/quotes"
	"flight-fare-monitor/internal/spamcheck"
	"flight-fare-monitor/internal/stats"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeFilterStore struct {
	mu        sync.Mutex
	filter    domain.SearchFilter
	nextCheck time.Time
}

func (f *fakeFilterStore) ListDueFilters(_ context.Context, _ time.Time, _ int) ([]domain.SearchFilter, error) {
	return []domain.SearchFilter{f.filter}, nil
}

func (f *fakeFilterStore) GetFilter(_ context.Context, _ int64) (domain.SearchFilter, error) {
	return f.filter, nil
}

func (f *fakeFilterStore) UpdateFilterSchedule(_ context.Context, _ int64, _, next time.Time, _ float64) error {
	f.mu.Lock()
	f.nextCheck = next
	f.mu.Unlock()
	return nil
}

type fakeObservationStore struct {
	mu       sync.Mutex
	inserted []domain.PriceObservation
}

func (f *fakeObservationStore) InsertObservation(_ context.Context, obs domain.PriceObservation) (domain.PriceObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obs.ID = int64(len(f.inserted) + 1)
	f.inserted = append(f.inserted, obs)
	return obs, nil
}

func (f *fakeObservationStore) DeleteObservationsBefore(_ context.Context, _ time.Time) error {
	return nil
}

type fakeAlertStore struct {
	mu       sync.Mutex
	alert    domain.Alert
	created  bool
	triggers []domain.Trigger
}

func (f *fakeAlertStore) GetAlertByFilter(_ context.Context, _ int64) (domain.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.created {
		return domain.Alert{}, pgx.ErrNoRows
	}
	return f.alert, nil
}

func (f *fakeAlertStore) CreateAlert(_ context.Context, alert domain.Alert) (domain.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	alert.ID = 1
	alert.Version = 1
	f.alert = alert
	f.created = true
	return alert, nil
}

func (f *fakeAlertStore) UpdateAlertState(_ context.Context, alert domain.Alert) error {
	f.mu.Lock()
	f.alert = alert
	f.mu.Unlock()
	return nil
}

func (f *fakeAlertStore) AppendTrigger(_ context.Context, trigger domain.Trigger) error {
	f.mu.Lock()
	f.triggers = append(f.triggers, trigger)
	f.mu.Unlock()
	return nil
}

type staticQuoteSource struct {
	quotes []domain.Quote
}

func (s *staticQuoteSource) FetchQuotes(_ context.Context, _ quotes.Criteria) ([]domain.Quote, []quotes.ProviderError) {
	return s.quotes, nil
}

type erroringReader struct{}

func (erroringReader) ListObservations(_ context.Context, _ string, _, _ time.Time) ([]domain.PriceObservation, error) {
	return nil, errors.New("store offline")
}

type emptyReader struct{}

func (emptyReader) ListObservations(_ context.Context, _ string, _, _ time.Time) ([]domain.PriceObservation, error) {
	return nil, nil
}

func monitorFilter() domain.SearchFilter {
	return domain.SearchFilter{
		ID:           7,
		UserID:       1,
		Origins:      []string{"JFK"},
		Destinations: []string{"LAX"},
		Adults:       1,
		MaxStops:     -1,
		TargetPrice:  decimal.NewFromInt(500),
		Frequency:    domain.FrequencyDaily,
		Active:       true,
	}
}

func monitorQuote(price float64) domain.Quote {
	return domain.Quote{
		Provider:      "gds",
		Origin:        "JFK",
		Destination:   "LAX",
		Airline:       "AA",
		FlightNumber:  "AA100",
		Price:         decimal.NewFromFloat(price),
		Currency:      "USD",
		Cabin:         domain.CabinEconomy,
		DepartureTime: time.Now().AddDate(0, 1, 0),
		ObservedAt:    time.Now().UTC(),
	}
}

func newTestOrchestrator(filters *fakeFilterStore, observations *fakeObservationStore, alerts *fakeAlertStore, reader stats.ObservationReader, source QuoteSource) *Orchestrator {
	engine := stats.NewEngine(reader, stats.NewMemoryCache(), stats.Options{}, testLogger())
	det := detector.New(spamcheck.NewPipeline(nil, spamcheck.Thresholds{}, testLogger()), detector.Thresholds{}, testLogger())
	classifier := intelligence.NewClassifier(nil, intelligence.Options{}, testLogger())
	dispatcher := alerting.NewDispatcher(nil, nil, testLogger())
	return New(filters, observations, alerts, engine, det, classifier, dispatcher, source, nil, Options{Workers: 1, BatchSize: 10}, testLogger())
}

func TestProcessFilterStatsFailureRetriesSoon(t *testing.T) {
	filter := monitorFilter()
	filter.Frequency = domain.FrequencyWeekly
	filters := &fakeFilterStore{filter: filter}
	source := &staticQuoteSource{quotes: []domain.Quote{monitorQuote(480)}}
	orch := newTestOrchestrator(filters, &fakeObservationStore{}, &fakeAlertStore{}, erroringReader{}, source)

	result := orch.ProcessFilter(context.Background(), filter)
	if result.Err == nil {
		t.Fatal("expected a statistics error")
	}
	until := time.Until(result.NextCheckAt)
	if until <= 0 || until > 3*time.Hour {
		t.Fatalf("transient store failure must reschedule on the short fallback, got %s", until)
	}
	filters.mu.Lock()
	persisted := filters.nextCheck
	filters.mu.Unlock()
	if persisted.IsZero() {
		t.Fatal("fallback schedule must be persisted")
	}
}

func TestProcessFilterPersistsMalformedQuoteAsInvalid(t *testing.T) {
	filter := monitorFilter()
	filters := &fakeFilterStore{filter: filter}
	observations := &fakeObservationStore{}
	source := &staticQuoteSource{quotes: []domain.Quote{monitorQuote(480), monitorQuote(5)}}
	orch := newTestOrchestrator(filters, observations, &fakeAlertStore{}, emptyReader{}, source)

	result := orch.ProcessFilter(context.Background(), filter)
	if result.Err != nil {
		t.Fatalf("pass failed: %v", result.Err)
	}

	observations.mu.Lock()
	defer observations.mu.Unlock()
	if len(observations.inserted) != 2 {
		t.Fatalf("expected both quotes persisted, got %d", len(observations.inserted))
	}
	for _, obs := range observations.inserted {
		switch {
		case obs.Price.Equal(decimal.NewFromInt(5)):
			if obs.Validity != domain.ObservationInvalid {
				t.Fatalf("malformed quote persisted as %s", obs.Validity)
			}
			if obs.QualityScore != 0 {
				t.Fatalf("malformed quote quality %f, want 0", obs.QualityScore)
			}
		case obs.Price.Equal(decimal.NewFromInt(480)):
			if obs.Validity != domain.ObservationValid {
				t.Fatalf("clean quote persisted as %s", obs.Validity)
			}
		default:
			t.Fatalf("unexpected observation price %s", obs.Price)
		}
	}
}
