package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/alerting"
	"flight-fare-monitor/internal/detector"
	"flight-fare-monitor/internal/domain"
	"flight-fare-monitor/internal/intelligence"
	"flight-fare-monitor/internal/spamcheck"
	"flight-fare-monitor/internal/stats"
)

// SimulateBreak pushes a synthetic quote through the detection pipeline
// without touching the database, printing the decision trail.
func (a *App) SimulateBreak(ctx context.Context, opts SimulateOptions) error {
	if opts.TargetPrice <= 0 || opts.QuotePrice <= 0 {
		return errors.New("--target and --price must be greater than zero")
	}

	route := domain.NormalizeRoute(opts.Route)
	endpoints := strings.SplitN(route, "-", 2)
	if len(endpoints) != 2 || endpoints[0] == "" || endpoints[1] == "" {
		return errors.New("--route must be in ORIGIN-DESTINATION form")
	}
	now := time.Now().UTC()

	observations := make([]domain.PriceObservation, 0, len(opts.History))
	for i, price := range opts.History {
		observations = append(observations, domain.PriceObservation{
			Route:      route,
			Provider:   "simulated",
			Airline:    "XX",
			Price:      decimal.NewFromFloat(price),
			Currency:   "USD",
			Validity:   domain.ObservationValid,
			ObservedAt: now.Add(-time.Duration(len(opts.History)-i) * 24 * time.Hour),
		})
	}
	snapshot := stats.Compute(route, observations, now)

	filter := domain.SearchFilter{
		ID:             1,
		Origins:        []string{endpoints[0]},
		Destinations:   []string{endpoints[1]},
		DepartureDates: []time.Time{now.AddDate(0, 1, 0)},
		Adults:         1,
		MaxStops:       -1,
		TargetPrice:    decimal.NewFromFloat(opts.TargetPrice),
		Frequency:      domain.FrequencyDaily,
		Active:         true,
	}

	quote := domain.Quote{
		Provider:      "simulated",
		Origin:        filter.Origins[0],
		Destination:   filter.Destinations[0],
		Airline:       "XX",
		FlightNumber:  "XX100",
		Price:         decimal.NewFromFloat(opts.QuotePrice),
		Currency:      "USD",
		Cabin:         domain.CabinEconomy,
		DepartureTime: filter.DepartureDates[0],
		ObservedAt:    now,
	}

	spam := spamcheck.NewPipeline(nil, spamcheck.Thresholds{}, a.Logger)
	det := detector.New(spam, detector.Thresholds{
		MinDropPct:     a.Config.Detection.MinDropPct,
		MinConfidence:  a.Config.Detection.MinConfidence,
		MaxDropPct:     a.Config.Detection.MaxDropPct,
		MaxRecentDrops: a.Config.Detection.MaxRecentDrops,
	}, a.Logger)

	result := det.Detect(ctx, filter, []domain.Quote{quote}, snapshot)
	eval := result.Evaluations[0]

	fmt.Fprintf(os.Stdout, "route %s: price %.2f vs target %.2f\n", route, opts.QuotePrice, opts.TargetPrice)
	fmt.Fprintf(os.Stdout, "history: n=%d mean=%s volatility=%.1f%% trend=%s\n",
		snapshot.Count, snapshot.Mean.StringFixed(2), snapshot.Volatility, snapshot.Trend)
	fmt.Fprintf(os.Stdout, "confidence=%.2f drop=%.1f%% spam=%v\n", eval.Confidence, eval.DropPct, eval.Spam.IsSpam)
	fmt.Fprintf(os.Stdout, "reasons: %s\n", strings.Join(eval.Reasons, "; "))

	if !eval.IsBreak {
		fmt.Fprintln(os.Stdout, "verdict: not a price break")
		return nil
	}

	classifier := intelligence.NewClassifier(nil, intelligence.Options{}, a.Logger)
	decision := classifier.Classify(ctx, filter, eval, now)
	fmt.Fprintf(os.Stdout, "verdict: PRICE BREAK, urgency=%s\n", decision.Urgency)
	fmt.Fprintf(os.Stdout, "title: %s\n", decision.Content.Title)
	if decision.DeliverAt != nil {
		fmt.Fprintf(os.Stdout, "deliver at: %s\n", decision.DeliverAt.Format(time.RFC3339))
	}

	if notifiers := a.newNotifiers(); len(notifiers) > 0 {
		dispatcher := alerting.NewDispatcher(notifiers, nil, a.Logger)
		dispatcher.DispatchSync(ctx, alerting.Notification{
			Alert:     domain.Alert{FilterID: filter.ID, CurrentPrice: quote.Price, TargetPrice: filter.TargetPrice},
			Urgency:   decision.Urgency,
			Content:   decision.Content,
			DeliverAt: nil,
		})
	}
	return nil
}
