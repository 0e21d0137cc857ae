package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/domain"
)

func intervalFilter(frequency domain.MonitorFrequency) domain.SearchFilter {
	return domain.SearchFilter{
		ID:           1,
		Origins:      []string{"JFK"},
		Destinations: []string{"LAX"},
		MaxStops:     -1,
		TargetPrice:  decimal.NewFromInt(500),
		Frequency:    frequency,
		Active:       true,
	}
}

func TestNextIntervalJitterRange(t *testing.T) {
	filter := intervalFilter(domain.FrequencyHourly)
	base := time.Hour

	for i := 0; i < 200; i++ {
		interval := nextInterval(filter, false, true)
		if interval < time.Duration(float64(base)*1.10) || interval > time.Duration(float64(base)*1.30) {
			t.Fatalf("interval %s outside +10-30%% jitter band", interval)
		}
	}
}

func TestNextIntervalUrgentCap(t *testing.T) {
	filter := intervalFilter(domain.FrequencyDaily)
	filter.Urgent = true

	for i := 0; i < 200; i++ {
		interval := nextInterval(filter, false, true)
		if interval > time.Hour {
			t.Fatalf("urgent filter interval %s exceeds one hour cap", interval)
		}
		if interval <= 0 {
			t.Fatalf("interval must be strictly positive, got %s", interval)
		}
	}
}

func TestNextIntervalAfterBreakCap(t *testing.T) {
	filter := intervalFilter(domain.FrequencyWeekly)

	for i := 0; i < 200; i++ {
		interval := nextInterval(filter, true, true)
		if interval > 2*time.Hour {
			t.Fatalf("post-break interval %s exceeds two hour cap", interval)
		}
	}
}

func TestNextIntervalNoQuotesFallback(t *testing.T) {
	filter := intervalFilter(domain.FrequencyWeekly)

	interval := nextInterval(filter, false, false)
	if interval > time.Duration(float64(2*time.Hour)*1.30) {
		t.Fatalf("empty fetch should use the short fallback base, got %s", interval)
	}
}

func TestPriorityScoreOrdering(t *testing.T) {
	plain := intervalFilter(domain.FrequencyDaily)
	plain.MaxStops = -1

	urgent := plain
	urgent.Urgent = true
	if priorityScore(urgent) <= priorityScore(plain) {
		t.Fatal("urgent filters must outrank plain ones")
	}

	specific := plain
	specific.Airlines = []string{"AA"}
	specific.MaxStops = 0
	specific.Cabin = domain.CabinBusiness
	specific.DepartureDates = []time.Time{time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)}
	if priorityScore(specific) <= priorityScore(plain) {
		t.Fatal("specific preferences must raise priority")
	}

	expensive := plain
	expensive.TargetPrice = decimal.NewFromInt(2500)
	if priorityScore(expensive) <= priorityScore(plain) {
		t.Fatal("high-value targets must raise priority")
	}
}

func TestFilterLocksSerialize(t *testing.T) {
	locks := newFilterLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(7)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("per-filter lock must serialize increments, got %d", counter)
	}
}

func TestFilterLocksReleaseEntries(t *testing.T) {
	locks := newFilterLocks()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		id := int64(i % 4)
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(id)
			unlock()
		}()
	}
	wg.Wait()

	locks.mu.Lock()
	remaining := len(locks.locks)
	locks.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("uncontended lock entries must be freed, got %d", remaining)
	}
}
