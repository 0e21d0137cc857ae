package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"flight-fare-monitor/internal/alerting"
	"flight-fare-monitor/internal/detector"
	"flight-fare-monitor/internal/domain"
	"flight-fare-monitor/internal/intelligence"
	"flight-fare-monitor/internal/metrics"
	"flight-fare-monitor/internal/quotes"
	"flight-fare-monitor/internal/stats"
	"flight-fare-monitor/internal/storage"
)

// QuoteSource abstracts the multi-provider fetch capability.
type QuoteSource interface {
	FetchQuotes(ctx context.Context, criteria quotes.Criteria) ([]domain.Quote, []quotes.ProviderError)
}

// FilterStore provides scheduling reads and writes for search filters.
type FilterStore interface {
	ListDueFilters(ctx context.Context, now time.Time, limit int) ([]domain.SearchFilter, error)
	GetFilter(ctx context.Context, id int64) (domain.SearchFilter, error)
	UpdateFilterSchedule(ctx context.Context, id int64, lastChecked, nextCheck time.Time, priority float64) error
}

// ObservationStore appends price history and ages it out.
type ObservationStore interface {
	InsertObservation(ctx context.Context, obs domain.PriceObservation) (domain.PriceObservation, error)
	DeleteObservationsBefore(ctx context.Context, olderThan time.Time) error
}

// AlertStore provides per-alert reads, optimistic updates, and log appends.
type AlertStore interface {
	GetAlertByFilter(ctx context.Context, filterID int64) (domain.Alert, error)
	CreateAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error)
	UpdateAlertState(ctx context.Context, alert domain.Alert) error
	AppendTrigger(ctx context.Context, trigger domain.Trigger) error
}

// AdvisoryLocker guards a tick against concurrent instances.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Options tune the orchestrator.
type Options struct {
	Workers              int
	BatchSize            int
	AdvisoryLockKey      int64
	ObservationRetention time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.ObservationRetention <= 0 {
		o.ObservationRetention = 90 * 24 * time.Hour
	}
	return o
}

// PassResult summarizes one filter's monitoring pass.
type PassResult struct {
	FilterID     int64
	QuoteCount   int
	Detection    detector.Result
	BreakFound   bool
	Dispatched   bool
	SuppressedBy string
	NextCheckAt  time.Time
	Err          error
}

// Orchestrator selects due filters, drives the detection pipeline, persists
// results, and reschedules. It is the concurrency boundary; detection and
// scoring math is pure and safe to run in parallel.
type Orchestrator struct {
	filters      FilterStore
	observations ObservationStore
	alerts       AlertStore
	statsEngine  *stats.Engine
	detector     *detector.Detector
	classifier   *intelligence.Classifier
	dispatcher   *alerting.Dispatcher
	source       QuoteSource
	locker       AdvisoryLocker
	opts         Options
	locks        *filterLocks
	logger       zerolog.Logger
}

// New constructs the orchestrator.
func New(
	filters FilterStore,
	observations ObservationStore,
	alerts AlertStore,
	statsEngine *stats.Engine,
	det *detector.Detector,
	classifier *intelligence.Classifier,
	dispatcher *alerting.Dispatcher,
	source QuoteSource,
	locker AdvisoryLocker,
	opts Options,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		filters:      filters,
		observations: observations,
		alerts:       alerts,
		statsEngine:  statsEngine,
		detector:     det,
		classifier:   classifier,
		dispatcher:   dispatcher,
		source:       source,
		locker:       locker,
		opts:         opts.withDefaults(),
		locks:        newFilterLocks(),
		logger:       logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Tick runs one scheduling pass: select due filters by priority and process
// them across a bounded worker pool. Per-filter failures reschedule that
// filter with a short fallback; they never abort the batch.
func (o *Orchestrator) Tick(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := o.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		o.logger.Debug().Time("bucket", bucket).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	due, err := o.filters.ListDueFilters(ctx, bucket, o.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("list due filters: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	o.logger.Info().Int("due", len(due)).Time("bucket", bucket).Msg("processing due filters")

	jobs := make(chan domain.SearchFilter)
	var wg sync.WaitGroup
	for i := 0; i < o.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for filter := range jobs {
				result := o.ProcessFilter(ctx, filter)
				if result.Err != nil {
					metrics.ObserveFilterPass(metrics.OutcomeError)
					o.logger.Error().Err(result.Err).Int64("filter_id", filter.ID).Msg("filter pass failed")
				} else {
					metrics.ObserveFilterPass(metrics.OutcomeSuccess)
				}
			}
		}()
	}

	for _, filter := range due {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		case jobs <- filter:
		}
	}
	close(jobs)
	wg.Wait()

	o.cleanupObservations(ctx)
	return nil
}

// ProcessFilter runs the full pipeline for one filter and reschedules it.
func (o *Orchestrator) ProcessFilter(ctx context.Context, filter domain.SearchFilter) PassResult {
	result := PassResult{FilterID: filter.ID}

	if err := domain.ValidateFilter(filter); err != nil {
		result.Err = err
		o.reschedule(ctx, filter, false, false)
		return result
	}

	fetchStart := time.Now()
	fetched, providerErrs := o.source.FetchQuotes(ctx, criteriaFor(filter))
	metrics.ObserveFetch(time.Since(fetchStart))
	for _, perr := range providerErrs {
		o.logger.Warn().Str("provider", perr.Provider).Err(perr.Err).Int64("filter_id", filter.ID).Msg("provider degraded")
	}
	result.QuoteCount = len(fetched)

	// A filter deactivated while the fetch was in flight is simply dropped;
	// there is no cancellation of the fetch itself.
	if current, err := o.filters.GetFilter(ctx, filter.ID); err == nil && !current.Active {
		o.logger.Debug().Int64("filter_id", filter.ID).Msg("filter deactivated mid-pass; discarding results")
		return result
	}

	if len(fetched) == 0 {
		result.NextCheckAt = o.reschedule(ctx, filter, false, false)
		return result
	}

	route := filter.Route()
	snapshot, err := o.statsEngine.Snapshot(ctx, route)
	if err != nil {
		result.Err = fmt.Errorf("statistics for %s: %w", route, err)
		// Transient store failures retry on the short fallback interval, not
		// the filter's full base interval.
		result.NextCheckAt = o.reschedule(ctx, filter, false, false)
		return result
	}

	result.Detection = o.detector.Detect(ctx, filter, fetched, snapshot)

	o.persistObservations(ctx, route, result.Detection)

	if result.Detection.Best != nil {
		result.BreakFound = true
		metrics.ObserveBreak()
		dispatched, suppressedBy, err := o.handleBreak(ctx, filter, *result.Detection.Best, snapshot)
		if err != nil {
			result.Err = err
		}
		result.Dispatched = dispatched
		result.SuppressedBy = suppressedBy
	}

	result.NextCheckAt = o.reschedule(ctx, filter, result.BreakFound, true)
	return result
}

func criteriaFor(filter domain.SearchFilter) quotes.Criteria {
	criteria := quotes.Criteria{
		Adults:   filter.Adults,
		Children: filter.Children,
		Cabin:    filter.Cabin,
		MaxStops: filter.MaxStops,
	}
	if len(filter.Origins) > 0 {
		criteria.Origin = filter.Origins[0]
	}
	if len(filter.Destinations) > 0 {
		criteria.Destination = filter.Destinations[0]
	}
	if len(filter.DepartureDates) > 0 {
		criteria.Departure = filter.DepartureDates[0]
	}
	if len(filter.ReturnDates) > 0 {
		ret := filter.ReturnDates[0]
		criteria.Return = &ret
	}
	return criteria
}

// persistObservations appends every evaluated quote to the history. Quotes
// rejected at the validation boundary are stored invalid and spam-flagged
// ones suspicious; the statistics engine skips both.
func (o *Orchestrator) persistObservations(ctx context.Context, route string, detection detector.Result) {
	inserted := false
	for _, eval := range detection.Evaluations {
		validity := domain.ObservationValid
		quality := 1.0
		switch {
		case eval.Invalid:
			validity = domain.ObservationInvalid
			quality = 0
		case eval.Spam.IsSpam:
			validity = domain.ObservationSuspicious
			quality = 1.0 - eval.Spam.ConfidencePenalty
		}

		obs := domain.PriceObservation{
			Route:        route,
			Provider:     eval.Quote.Provider,
			Airline:      eval.Quote.Airline,
			FlightNumber: eval.Quote.FlightNumber,
			Price:        eval.Quote.Price,
			Currency:     eval.Quote.Currency,
			Validity:     validity,
			QualityScore: domain.Clamp01(quality),
			ObservedAt:   eval.Quote.ObservedAt,
		}
		if _, err := o.observations.InsertObservation(ctx, obs); err != nil {
			o.logger.Error().Err(err).Str("route", route).Msg("failed to persist observation")
			continue
		}
		inserted = true
	}

	if inserted {
		o.statsEngine.Invalidate(ctx, route)
	}
}

// handleBreak records the trigger and hands delivery off asynchronously.
// Alert mutation is serialized per filter.
func (o *Orchestrator) handleBreak(ctx context.Context, filter domain.SearchFilter, best detector.Evaluation, snapshot domain.RouteStatistics) (bool, string, error) {
	unlock := o.locks.lock(filter.ID)
	defer unlock()

	now := time.Now().UTC()

	alert, err := o.alerts.GetAlertByFilter(ctx, filter.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		alert, err = o.alerts.CreateAlert(ctx, domain.Alert{
			FilterID:     filter.ID,
			CurrentPrice: best.Quote.Price,
			TargetPrice:  filter.TargetPrice,
			DropAmount:   best.DropAmount,
			DropPct:      best.DropPct,
			QualityScore: 0.5,
			Status:       domain.AlertActive,
		})
	}
	if err != nil {
		return false, "", fmt.Errorf("load alert for filter %d: %w", filter.ID, err)
	}

	decision := o.classifier.Classify(ctx, filter, best, now)
	if decision.Suppressed {
		metrics.ObserveSuppression(decision.SuppressedBy)
		o.logger.Info().Int64("filter_id", filter.ID).Str("cause", decision.SuppressedBy).Msg("break suppressed")
		return false, decision.SuppressedBy, nil
	}

	// Every accepted break references the quote and the statistics snapshot
	// that justified it.
	trigger := domain.Trigger{
		ID:         uuid.NewString(),
		AlertID:    alert.ID,
		Price:      best.Quote.Price,
		Provider:   best.Quote.Provider,
		Confidence: best.Confidence,
		Reasons:    best.Reasons,
		Route:      best.Quote.Route(),
		StatsAt:    snapshot.ComputedAt,
		FiredAt:    now,
	}
	if err := o.alerts.AppendTrigger(ctx, trigger); err != nil {
		return false, "", fmt.Errorf("append trigger: %w", err)
	}

	alert.CurrentPrice = best.Quote.Price
	alert.DropAmount = best.DropAmount
	alert.DropPct = best.DropPct
	alert.Status = domain.AlertTriggered
	alert.LastCheckedAt = &now
	if err := o.alerts.UpdateAlertState(ctx, alert); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			o.logger.Warn().Int64("alert_id", alert.ID).Msg("alert update lost version race; skipping dispatch")
			return false, "version conflict", nil
		}
		return false, "", err
	}

	o.dispatcher.Dispatch(alerting.Notification{
		Alert:     alert,
		Urgency:   decision.Urgency,
		Content:   decision.Content,
		DeliverAt: decision.DeliverAt,
	})
	return true, "", nil
}

// reschedule writes the filter's new scheduling fields; next_check_at is
// always strictly in the future.
func (o *Orchestrator) reschedule(ctx context.Context, filter domain.SearchFilter, breakDetected, gotQuotes bool) time.Time {
	now := time.Now().UTC()
	next := now.Add(nextInterval(filter, breakDetected, gotQuotes))

	if err := o.filters.UpdateFilterSchedule(ctx, filter.ID, now, next, priorityScore(filter)); err != nil {
		o.logger.Error().Err(err).Int64("filter_id", filter.ID).Msg("failed to update filter schedule")
	}
	return next
}

func (o *Orchestrator) cleanupObservations(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-o.opts.ObservationRetention)
	if err := o.observations.DeleteObservationsBefore(ctx, cutoff); err != nil {
		o.logger.Warn().Err(err).Msg("observation retention cleanup failed")
	}
}

func (o *Orchestrator) acquireLock(ctx context.Context) (func(), bool, error) {
	if o.opts.AdvisoryLockKey == 0 || o.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := o.locker.TryAdvisoryLock(ctx, o.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
