package spamcheck

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"flight-fare-monitor/internal/domain"
)

// Reader supplies trigger history and provider track records to the checks.
type Reader interface {
	CountFilterTriggers(ctx context.Context, filterID int64, since time.Time) (int, error)
	CountRouteTriggers(ctx context.Context, route string, since time.Time) (int, error)
	ProviderCounts(ctx context.Context, provider string) (valid int64, invalid int64, err error)
	CountLowQualityAlerts(ctx context.Context, route string, since time.Time) (int, error)
}

// Thresholds tune the history-sensitive checks. Zero values fall back to the
// production defaults.
type Thresholds struct {
	HardVolatilityPct float64
	SoftVolatilityPct float64
	FilterSoftPerDay  int
	FilterHardPerDay  int
	RouteHardPerHour  int
}

func (t Thresholds) withDefaults() Thresholds {
	if t.HardVolatilityPct <= 0 {
		t.HardVolatilityPct = 80
	}
	if t.SoftVolatilityPct <= 0 {
		t.SoftVolatilityPct = 50
	}
	if t.FilterSoftPerDay <= 0 {
		t.FilterSoftPerDay = 3
	}
	if t.FilterHardPerDay <= 0 {
		t.FilterHardPerDay = 5
	}
	if t.RouteHardPerHour <= 0 {
		t.RouteHardPerHour = 10
	}
	return t
}

// Verdict aggregates all check results for one quote.
type Verdict struct {
	IsSpam            bool
	ConfidencePenalty float64
	Reasons           []string
}

type namedCheck struct {
	name string
	run  func(ctx context.Context, in Input, reader Reader) CheckResult
}

// Pipeline runs the fixed, ordered set of anomaly checks.
type Pipeline struct {
	reader Reader
	limits Thresholds
	checks []namedCheck
	logger zerolog.Logger
}

// NewPipeline constructs the check pipeline. reader may be nil; checks that
// need history then pass without flagging.
func NewPipeline(reader Reader, limits Thresholds, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		reader: reader,
		limits: limits.withDefaults(),
		checks: []namedCheck{
			{"price_realism", checkPriceRealism},
			{"volatility", checkVolatility},
			{"frequency", checkFrequency},
			{"patterns", checkPatterns},
			{"completeness", checkCompleteness},
			{"seasonal", checkSeasonal},
			{"provider_reliability", checkProviderReliability},
			{"fatigue", checkFatigue},
		},
		logger: logger.With().Str("component", "spamcheck").Logger(),
	}
}

// Evaluate runs every check and returns the aggregate verdict. A check that
// panics is skipped and logged, never treated as a flag.
func (p *Pipeline) Evaluate(ctx context.Context, in Input) Verdict {
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	in.Limits = p.limits

	var verdict Verdict
	for _, check := range p.checks {
		result := p.safeRun(ctx, check, in)
		if !result.Flagged {
			continue
		}
		verdict.IsSpam = true
		verdict.ConfidencePenalty += result.Penalty
		verdict.Reasons = append(verdict.Reasons, result.Reasons...)
	}

	verdict.ConfidencePenalty = domain.Clamp01(verdict.ConfidencePenalty)
	return verdict
}

func (p *Pipeline) safeRun(ctx context.Context, check namedCheck, in Input) (result CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("check", check.name).Interface("panic", r).Msg("check panicked; skipping")
			result = CheckResult{}
		}
	}()
	return check.run(ctx, in, p.reader)
}
