package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"flight-fare-monitor/internal/domain"
)

// Score component weights. These sum to 1.0.
const (
	weightAccuracy    = 0.30
	weightSuccessRate = 0.25
	weightEngagement  = 0.20
	weightFreshness   = 0.15
	weightTrend       = 0.10
)

// AlertSource supplies alerts for rescoring and accepts score updates.
type AlertSource interface {
	ListActiveAlerts(ctx context.Context, offset, limit int) ([]domain.Alert, error)
	UpdateAlertQuality(ctx context.Context, alertID int64, version int64, score float64) error
}

// ChangeNotifier receives quality-improvement notifications.
type ChangeNotifier interface {
	NotifyQualityChange(ctx context.Context, alert domain.Alert, previous, current float64) error
}

// Options tune the scorer.
type Options struct {
	BatchSize       int
	ChangeThreshold float64
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.ChangeThreshold <= 0 {
		o.ChangeThreshold = 0.1
	}
	return o
}

// Scorer maintains the longer-horizon quality score per alert.
type Scorer struct {
	source   AlertSource
	notifier ChangeNotifier
	opts     Options
	logger   zerolog.Logger
}

// NewScorer constructs a quality scorer. notifier may be nil.
func NewScorer(source AlertSource, notifier ChangeNotifier, opts Options, logger zerolog.Logger) *Scorer {
	return &Scorer{
		source:   source,
		notifier: notifier,
		opts:     opts.withDefaults(),
		logger:   logger.With().Str("component", "quality_scorer").Logger(),
	}
}

// Score computes the weighted quality score for one alert at the given time.
// The result is always within [0,1].
func Score(alert domain.Alert, now time.Time) float64 {
	score := weightAccuracy*accuracyComponent(alert) +
		weightSuccessRate*SuccessRateComponent(alert.Notifications) +
		weightEngagement*engagementComponent(alert, now) +
		weightFreshness*freshnessComponent(alert, now) +
		weightTrend*trendComponent(alert.Notifications)

	return domain.Clamp01(score)
}

// Rescore recomputes one alert's score and emits a change notification when
// the delta exceeds the configured threshold.
func (s *Scorer) Rescore(ctx context.Context, alert domain.Alert, now time.Time) (float64, error) {
	current := Score(alert, now)
	previous := alert.QualityScore

	if err := s.source.UpdateAlertQuality(ctx, alert.ID, alert.Version, current); err != nil {
		return previous, fmt.Errorf("update alert %d quality: %w", alert.ID, err)
	}

	if s.notifier != nil && current-previous > s.opts.ChangeThreshold {
		if err := s.notifier.NotifyQualityChange(ctx, alert, previous, current); err != nil {
			s.logger.Warn().Err(err).Int64("alert_id", alert.ID).Msg("quality change notification failed")
		}
	}

	return current, nil
}

// RescoreBatch walks all active alerts in chunks to bound memory.
func (s *Scorer) RescoreBatch(ctx context.Context, now time.Time) (int, error) {
	processed := 0
	for offset := 0; ; offset += s.opts.BatchSize {
		alerts, err := s.source.ListActiveAlerts(ctx, offset, s.opts.BatchSize)
		if err != nil {
			return processed, fmt.Errorf("list alerts at offset %d: %w", offset, err)
		}
		if len(alerts) == 0 {
			return processed, nil
		}

		for _, alert := range alerts {
			if ctx.Err() != nil {
				return processed, ctx.Err()
			}
			if _, err := s.Rescore(ctx, alert, now); err != nil {
				s.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("rescore failed")
				continue
			}
			processed++
		}

		if len(alerts) < s.opts.BatchSize {
			return processed, nil
		}
	}
}

// accuracyComponent buckets how close the current price sits to target.
func accuracyComponent(alert domain.Alert) float64 {
	if !alert.TargetPrice.IsPositive() {
		return 0.5
	}
	ratio, _ := alert.CurrentPrice.Div(alert.TargetPrice).Float64()
	switch {
	case ratio <= 0.9:
		return 1.0
	case ratio <= 1.0:
		return 0.8
	case ratio <= 1.1:
		return 0.6
	case ratio <= 1.25:
		return 0.4
	default:
		return 0.2
	}
}

// SuccessRateComponent is the delivered-successfully fraction of the
// notification history. Exported so trigger-log replays can be verified.
func SuccessRateComponent(history []domain.NotificationRecord) float64 {
	if len(history) == 0 {
		return 0.5
	}
	successes := 0
	for _, record := range history {
		if record.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(history))
}

func engagementComponent(alert domain.Alert, now time.Time) float64 {
	score := 0.3
	for _, trigger := range alert.Triggers {
		if now.Sub(trigger.FiredAt) <= 7*24*time.Hour {
			score += 0.4
			break
		}
	}
	if alert.QualityScore >= 0.7 {
		score += 0.3
	}
	return domain.Clamp01(score)
}

// freshnessComponent decays from 1.0 at one hour since last check to 0.2
// beyond 72 hours.
func freshnessComponent(alert domain.Alert, now time.Time) float64 {
	if alert.LastCheckedAt == nil {
		return 0.2
	}
	age := now.Sub(*alert.LastCheckedAt)
	switch {
	case age <= time.Hour:
		return 1.0
	case age >= 72*time.Hour:
		return 0.2
	default:
		fraction := float64(age-time.Hour) / float64(71*time.Hour)
		return 1.0 - fraction*0.8
	}
}

// trendComponent compares recent delivery success against the full history.
func trendComponent(history []domain.NotificationRecord) float64 {
	if len(history) < 4 {
		return 0.6
	}

	overall := SuccessRateComponent(history)
	recent := SuccessRateComponent(history[len(history)/2:])

	switch {
	case recent > overall+0.05:
		return 0.8
	case recent < overall-0.05:
		return 0.4
	default:
		return 0.6
	}
}
