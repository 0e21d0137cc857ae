package intelligence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"flight-fare-monitor/internal/detector"
	"flight-fare-monitor/internal/domain"
)

// Urgency is the notification tier for an accepted break.
type Urgency string

const (
	UrgencyUrgent      Urgency = "urgent"
	UrgencySignificant Urgency = "significant"
	UrgencyMinor       Urgency = "minor"
	UrgencyNone        Urgency = "none"
)

// DedupeReader exposes recent notification activity for suppression checks.
type DedupeReader interface {
	CountFilterNotifications(ctx context.Context, filterID int64, since time.Time) (int, error)
	HasRecentRouteSuccess(ctx context.Context, route string, since time.Time) (bool, error)
}

// Options tune deduplication windows.
type Options struct {
	MaxPerFilterHour int
	RouteCooldown    time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxPerFilterHour <= 0 {
		o.MaxPerFilterHour = 3
	}
	if o.RouteCooldown <= 0 {
		o.RouteCooldown = 2 * time.Hour
	}
	return o
}

// Decision is the classifier's full output for one accepted break.
type Decision struct {
	Urgency      Urgency
	Suppressed   bool
	SuppressedBy string
	Content      Content
	DeliverAt    *time.Time
}

// Classifier turns accepted breaks into urgency, content, and delivery timing.
// All decisions are deterministic given identical inputs and clock.
type Classifier struct {
	dedupe DedupeReader
	opts   Options
	logger zerolog.Logger
}

// NewClassifier constructs a classifier. dedupe may be nil, disabling
// suppression (used by simulation paths).
func NewClassifier(dedupe DedupeReader, opts Options, logger zerolog.Logger) *Classifier {
	return &Classifier{
		dedupe: dedupe,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "intelligence").Logger(),
	}
}

// Classify produces the decision for an accepted break at the given time.
func (c *Classifier) Classify(ctx context.Context, filter domain.SearchFilter, eval detector.Evaluation, now time.Time) Decision {
	decision := Decision{Urgency: classifyUrgency(filter, eval, now)}
	if decision.Urgency == UrgencyNone {
		decision.Suppressed = true
		decision.SuppressedBy = "drop below minor threshold"
		return decision
	}

	if suppressed, by := c.isDuplicate(ctx, filter, eval, now); suppressed {
		decision.Suppressed = true
		decision.SuppressedBy = by
		return decision
	}

	decision.Content = buildContent(filter, eval, decision.Urgency, now)
	decision.DeliverAt = deliveryTime(decision.Urgency, now)
	return decision
}

// classifyUrgency evaluates tiers in order. A near-term booking window
// escalates a large drop, and a 15% drop is urgent on its own.
func classifyUrgency(filter domain.SearchFilter, eval detector.Evaluation, now time.Time) Urgency {
	withinBookingWindow := false
	if len(filter.DepartureDates) > 0 {
		window := filter.DepartureDates[0].Sub(now)
		withinBookingWindow = window >= 0 && window <= 30*24*time.Hour
	}

	switch {
	case withinBookingWindow && eval.DropPct >= 15:
		return UrgencyUrgent
	case eval.DropPct >= 15:
		return UrgencyUrgent
	case eval.DropPct >= 8:
		return UrgencySignificant
	case eval.DropPct >= 3:
		return UrgencyMinor
	default:
		return UrgencyNone
	}
}

func (c *Classifier) isDuplicate(ctx context.Context, filter domain.SearchFilter, eval detector.Evaluation, now time.Time) (bool, string) {
	if c.dedupe == nil {
		return false, ""
	}

	count, err := c.dedupe.CountFilterNotifications(ctx, filter.ID, now.Add(-time.Hour))
	if err != nil {
		c.logger.Warn().Err(err).Int64("filter_id", filter.ID).Msg("dedupe count failed; allowing")
	} else if count >= c.opts.MaxPerFilterHour {
		return true, "notification limit reached for filter this hour"
	}

	recent, err := c.dedupe.HasRecentRouteSuccess(ctx, eval.Quote.Route(), now.Add(-c.opts.RouteCooldown))
	if err != nil {
		c.logger.Warn().Err(err).Str("route", eval.Quote.Route()).Msg("dedupe route check failed; allowing")
	} else if recent {
		return true, "route already notified within cooldown"
	}

	return false, ""
}

// deliveryTime recommends when to dispatch. Urgent goes out immediately,
// significant within 15 minutes outside quiet hours, minor during business
// hours only.
func deliveryTime(urgency Urgency, now time.Time) *time.Time {
	switch urgency {
	case UrgencyUrgent:
		t := now
		return &t
	case UrgencySignificant:
		t := now.Add(15 * time.Minute)
		if h := t.Hour(); h >= 22 || h < 6 {
			t = nextAtHour(t, 8)
		}
		return &t
	case UrgencyMinor:
		if h := now.Hour(); h >= 9 && h < 17 {
			t := now.Add(time.Hour)
			return &t
		}
		t := nextBusinessDayAt(now, 9)
		return &t
	default:
		return nil
	}
}

func nextAtHour(t time.Time, hour int) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func nextBusinessDayAt(t time.Time, hour int) time.Time {
	next := nextAtHour(t, hour)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
