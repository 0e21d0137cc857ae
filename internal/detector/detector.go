package detector

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flight-fare-monitor/internal/domain"
	"flight-fare-monitor/internal/spamcheck"
	"flight-fare-monitor/internal/stats"
)

// Thresholds gate the meaningful-break decision. Zero values fall back to
// the production defaults; these are configuration, not invariants.
type Thresholds struct {
	MinDropPct     float64
	MinConfidence  float64
	MaxDropPct     float64
	MaxRecentDrops int
}

func (t Thresholds) withDefaults() Thresholds {
	if t.MinDropPct <= 0 {
		t.MinDropPct = 5.0
	}
	if t.MinConfidence <= 0 {
		t.MinConfidence = 0.6
	}
	if t.MaxDropPct <= 0 {
		t.MaxDropPct = 80.0
	}
	if t.MaxRecentDrops <= 0 {
		t.MaxRecentDrops = 5
	}
	return t
}

// Evaluation is the full decision record for one candidate quote. Rejected
// candidates are kept with their reasons for observability.
type Evaluation struct {
	Quote       domain.Quote
	Stats       domain.RouteStatistics
	Invalid     bool
	IsBreak     bool
	Confidence  float64
	DropAmount  decimal.Decimal
	DropPct     float64
	VsMeanPct   float64
	VsMedianPct float64
	Spam        spamcheck.Verdict
	Reasons     []string
}

// Result bundles all evaluations for one filter pass; Best is the highest
// confidence accepted break, nil when nothing qualified.
type Result struct {
	Evaluations []Evaluation
	Best        *Evaluation
}

// Detector turns quotes into break/no-break decisions.
type Detector struct {
	spam       *spamcheck.Pipeline
	thresholds Thresholds
	logger     zerolog.Logger
}

// New constructs a detector.
func New(spam *spamcheck.Pipeline, thresholds Thresholds, logger zerolog.Logger) *Detector {
	return &Detector{
		spam:       spam,
		thresholds: thresholds.withDefaults(),
		logger:     logger.With().Str("component", "detector").Logger(),
	}
}

// Detect evaluates every candidate quote against the filter and its route
// statistics snapshot. Decisions are deterministic given identical inputs.
func (d *Detector) Detect(ctx context.Context, filter domain.SearchFilter, quotes []domain.Quote, snapshot domain.RouteStatistics) Result {
	result := Result{Evaluations: make([]Evaluation, 0, len(quotes))}

	for _, quote := range quotes {
		eval := d.evaluate(ctx, filter, quote, snapshot)
		result.Evaluations = append(result.Evaluations, eval)
	}

	accepted := make([]int, 0, len(result.Evaluations))
	for i, eval := range result.Evaluations {
		if eval.IsBreak {
			accepted = append(accepted, i)
		}
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		return result.Evaluations[accepted[i]].Confidence > result.Evaluations[accepted[j]].Confidence
	})
	if len(accepted) > 0 {
		result.Best = &result.Evaluations[accepted[0]]
	}

	return result
}

func (d *Detector) evaluate(ctx context.Context, filter domain.SearchFilter, quote domain.Quote, snapshot domain.RouteStatistics) Evaluation {
	eval := Evaluation{Quote: quote, Stats: snapshot}

	// Malformed quotes are marked invalid so they never enter the price
	// history as trustworthy observations.
	if reasons := quote.Validate(); len(reasons) > 0 {
		eval.Invalid = true
		eval.Reasons = reasons
		return eval
	}

	if reasons := rejectByCriteria(filter, quote); len(reasons) > 0 {
		eval.Reasons = reasons
		return eval
	}

	verdict := d.spam.Evaluate(ctx, spamcheck.Input{Quote: quote, Filter: filter, Stats: snapshot})
	eval.Spam = verdict
	if verdict.IsSpam {
		eval.Reasons = append([]string{"false-positive prevented"}, verdict.Reasons...)
		return eval
	}

	eval.DropAmount = filter.TargetPrice.Sub(quote.Price)
	eval.DropPct = dropPercentage(filter.TargetPrice, quote.Price, snapshot)
	eval.VsMeanPct = percentBelow(snapshot.Mean, quote.Price)
	eval.VsMedianPct = percentBelow(snapshot.Median, quote.Price)
	eval.Confidence = confidence(quote, snapshot, eval.DropPct, verdict.ConfidencePenalty)

	eval.IsBreak, eval.Reasons = d.classify(filter, quote, snapshot, eval)
	return eval
}

func rejectByCriteria(filter domain.SearchFilter, quote domain.Quote) []string {
	var reasons []string

	if filter.Cabin != "" && quote.Cabin != "" && filter.Cabin != quote.Cabin {
		reasons = append(reasons, fmt.Sprintf("cabin %s does not match requested %s", quote.Cabin, filter.Cabin))
	}
	if filter.MaxStops >= 0 && quote.Stops > filter.MaxStops {
		reasons = append(reasons, fmt.Sprintf("%d stops exceeds maximum %d", quote.Stops, filter.MaxStops))
	}
	if len(filter.Airlines) > 0 && quote.Airline != "" {
		allowed := false
		for _, airline := range filter.Airlines {
			if airline == quote.Airline {
				allowed = true
				break
			}
		}
		if !allowed {
			reasons = append(reasons, fmt.Sprintf("airline %s not in allow-list", quote.Airline))
		}
	}

	return reasons
}

// dropPercentage measures the drop against the historical mean when the
// route has enough history to trust it, else against the target price.
func dropPercentage(target, price decimal.Decimal, snapshot domain.RouteStatistics) float64 {
	if snapshot.Count >= 5 && snapshot.Mean.IsPositive() {
		return percentBelow(snapshot.Mean, price)
	}
	if !target.IsPositive() {
		return 0
	}
	pct, _ := target.Sub(price).Div(target).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

func percentBelow(reference, price decimal.Decimal) float64 {
	if !reference.IsPositive() {
		return 0
	}
	pct, _ := reference.Sub(price).Div(reference).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// confidence applies the scoring schedule: a 0.5 base adjusted for drop size,
// discount versus history, volatility, sample volume, and trend, then scaled
// by data quality and reduced by the spam penalty.
func confidence(quote domain.Quote, snapshot domain.RouteStatistics, dropPct, spamPenalty float64) float64 {
	score := 0.5

	if dropPct > 0 {
		bonus := dropPct / 100
		if bonus > 0.3 {
			bonus = 0.3
		}
		score += bonus
	}

	if snapshot.Mean.IsPositive() && quote.Price.LessThan(snapshot.Mean) {
		discount, _ := snapshot.Mean.Sub(quote.Price).Div(snapshot.Mean).Float64()
		if discount > 0.2 {
			discount = 0.2
		}
		score += discount
	}

	switch {
	case snapshot.Count >= 2 && snapshot.Volatility < 10:
		score += 0.15
	case snapshot.Volatility > 40:
		score -= 0.15
	}

	switch {
	case snapshot.Count >= 20:
		score += 0.1
	case snapshot.Count < 5:
		score -= 0.3
	}

	if snapshot.Trend == domain.TrendIncreasing {
		score += 0.1
	}

	quality := snapshot.QualityScore
	if quality <= 0 {
		quality = 0.5
	}
	score *= quality
	// A flagged quote is rejected before scoring, so spamPenalty is nonzero
	// only when scoring bypasses the check pipeline.
	score -= spamPenalty

	return domain.Clamp01(score)
}

func (d *Detector) classify(filter domain.SearchFilter, quote domain.Quote, snapshot domain.RouteStatistics, eval Evaluation) (bool, []string) {
	var reasons []string

	if !eval.DropAmount.IsPositive() {
		reasons = append(reasons, "price at or above target")
	}
	minDrop := filter.MinDropPct
	if minDrop <= 0 {
		minDrop = d.thresholds.MinDropPct
	}
	if eval.DropPct < minDrop {
		reasons = append(reasons, fmt.Sprintf("drop %.1f%% below minimum %.1f%%", eval.DropPct, minDrop))
	}
	minConfidence := filter.MinConfidence
	if minConfidence <= 0 {
		minConfidence = d.thresholds.MinConfidence
	}
	if eval.Confidence < minConfidence {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f below minimum %.2f", eval.Confidence, minConfidence))
	}
	if eval.DropPct >= d.thresholds.MaxDropPct {
		reasons = append(reasons, fmt.Sprintf("drop %.1f%% implausibly large", eval.DropPct))
	}
	if snapshot.RecentDrops > d.thresholds.MaxRecentDrops {
		reasons = append(reasons, fmt.Sprintf("%d recent drops on route", snapshot.RecentDrops))
	}
	if floor := stats.SeasonalFloor(snapshot); floor.IsPositive() && quote.Price.LessThan(floor) {
		reasons = append(reasons, "price below seasonal demand floor")
	}

	if len(reasons) > 0 {
		return false, reasons
	}
	return true, []string{fmt.Sprintf("%.1f%% drop at %.2f confidence", eval.DropPct, eval.Confidence)}
}
