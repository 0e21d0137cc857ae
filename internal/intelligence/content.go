package intelligence

import (
	"fmt"
	"strings"
	"time"

	"flight-fare-monitor/internal/detector"
	"flight-fare-monitor/internal/domain"
)

// Content is the structured notification payload. Generation is
// parameterized purely by urgency tier; no randomness enters decisions.
type Content struct {
	Title          string
	Body           string
	CallToAction   string
	Trend          domain.TrendDirection
	HistoricalLow  string
	BookingWindow  string
	SeasonalFactor float64
	Recommendation string
}

func buildContent(filter domain.SearchFilter, eval detector.Evaluation, urgency Urgency, now time.Time) Content {
	route := eval.Quote.Route()
	content := Content{
		Trend:          eval.Stats.Trend,
		SeasonalFactor: eval.Stats.SeasonalFactor,
		BookingWindow:  bookingWindowBucket(filter, now),
	}
	if eval.Stats.Count > 0 {
		content.HistoricalLow = eval.Stats.Min.StringFixed(2)
	}

	savings := eval.DropAmount.StringFixed(2)
	price := eval.Quote.Price.StringFixed(2)

	switch urgency {
	case UrgencyUrgent:
		content.Title = fmt.Sprintf("Act now: %s fare dropped %.0f%%", route, eval.DropPct)
		content.CallToAction = "Book immediately; fares at this level rarely last a day"
		content.Recommendation = "book_now"
	case UrgencySignificant:
		content.Title = fmt.Sprintf("Good deal: %s down %.0f%%", route, eval.DropPct)
		content.CallToAction = "Review and book within the next few hours"
		content.Recommendation = "book_soon"
	default:
		content.Title = fmt.Sprintf("Price improved on %s", route)
		content.CallToAction = "Worth a look when convenient"
		content.Recommendation = "watch"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "%s is now %s %s (target %s, save %s).\n",
		route, price, eval.Quote.Currency, filter.TargetPrice.StringFixed(2), savings)
	if !eval.Quote.DepartureTime.IsZero() {
		fmt.Fprintf(&body, "Departure: %s\n", eval.Quote.DepartureTime.Format("Mon 02 Jan 2006"))
	}
	fmt.Fprintf(&body, "Confidence: %.0f%%\n", eval.Confidence*100)
	if content.HistoricalLow != "" {
		fmt.Fprintf(&body, "30-day low: %s, trend %s\n", content.HistoricalLow, eval.Stats.Trend)
	}
	if urgency == UrgencyUrgent {
		body.WriteString("This fare beats almost everything seen on the route this month.\n")
	}
	content.Body = body.String()

	return content
}

func bookingWindowBucket(filter domain.SearchFilter, now time.Time) string {
	if len(filter.DepartureDates) == 0 {
		return "unknown"
	}
	days := int(filter.DepartureDates[0].Sub(now).Hours() / 24)
	switch {
	case days < 0:
		return "past"
	case days <= 14:
		return "last_minute"
	case days <= 30:
		return "near_term"
	case days <= 90:
		return "standard"
	default:
		return "far_out"
	}
}
