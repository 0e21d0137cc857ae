package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonitorFrequency expresses how often a filter wants to be checked.
type MonitorFrequency string

const (
	FrequencyRealTime MonitorFrequency = "real_time"
	FrequencyHourly   MonitorFrequency = "hourly"
	FrequencyDaily    MonitorFrequency = "daily"
	FrequencyWeekly   MonitorFrequency = "weekly"
)

// BaseInterval maps a frequency preference to its polling interval.
func (f MonitorFrequency) BaseInterval() time.Duration {
	switch f {
	case FrequencyRealTime:
		return 30 * time.Minute
	case FrequencyHourly:
		return time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// CabinClass is a normalized cabin identifier.
type CabinClass string

const (
	CabinEconomy  CabinClass = "economy"
	CabinPremium  CabinClass = "premium_economy"
	CabinBusiness CabinClass = "business"
	CabinFirst    CabinClass = "first"
)

// SearchFilter is a user's standing monitoring request.
type SearchFilter struct {
	ID              int64
	UserID          int64
	Origins         []string
	Destinations    []string
	DepartureDates  []time.Time
	ReturnDates     []time.Time
	Adults          int
	Children        int
	Cabin           CabinClass
	MaxStops        int
	Airlines        []string
	MinPrice        decimal.Decimal
	MaxPrice        decimal.Decimal
	TargetPrice     decimal.Decimal
	Frequency       MonitorFrequency
	Urgent          bool
	Active          bool
	MinDropPct      float64
	MinConfidence   float64
	LastCheckedAt   *time.Time
	NextCheckAt     time.Time
	Priority        float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Route returns the canonical route key for the filter's primary pair.
func (f SearchFilter) Route() string {
	origin, destination := "", ""
	if len(f.Origins) > 0 {
		origin = f.Origins[0]
	}
	if len(f.Destinations) > 0 {
		destination = f.Destinations[0]
	}
	return origin + "-" + destination
}

// Quote is one normalized, ephemeral price observation from a provider.
type Quote struct {
	Provider      string
	Origin        string
	Destination   string
	Airline       string
	FlightNumber  string
	Price         decimal.Decimal
	Currency      string
	Stops         int
	Cabin         CabinClass
	DepartureTime time.Time
	ReturnTime    *time.Time
	ObservedAt    time.Time
}

// Route returns the canonical route key for the quote.
func (q Quote) Route() string {
	return q.Origin + "-" + q.Destination
}

// ObservationValidity is the lifecycle status of a persisted observation.
type ObservationValidity string

const (
	ObservationValid      ObservationValidity = "valid"
	ObservationSuspicious ObservationValidity = "suspicious"
	ObservationInvalid    ObservationValidity = "invalid"
)

// PriceObservation is an append-only historical record of a validated quote.
type PriceObservation struct {
	ID           int64
	Route        string
	Provider     string
	Airline      string
	FlightNumber string
	Price        decimal.Decimal
	Currency     string
	Validity     ObservationValidity
	QualityScore float64
	ObservedAt   time.Time
	CreatedAt    time.Time
}

// TrendDirection classifies a route's recent price movement.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// RouteStatistics is a derived snapshot of a route's price history.
// Snapshots are recomputed, never hand-mutated.
type RouteStatistics struct {
	Route          string
	Prices         []decimal.Decimal
	Count          int
	Mean           decimal.Decimal
	Median         decimal.Decimal
	Min            decimal.Decimal
	Max            decimal.Decimal
	Volatility     float64
	Trend          TrendDirection
	RecentDrops    int
	SeasonalFactor float64
	QualityScore   float64
	ComputedAt     time.Time
}

// LowConfidence reports whether the snapshot was built from too few samples
// to support volatility or trend conclusions.
func (s RouteStatistics) LowConfidence() bool {
	return s.Count < 2
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertTriggered AlertStatus = "triggered"
	AlertExpired   AlertStatus = "expired"
)

// Trigger is one append-only entry in an alert's trigger log.
type Trigger struct {
	ID         string
	AlertID    int64
	Price      decimal.Decimal
	Provider   string
	Confidence float64
	Reasons    []string
	Route      string
	StatsAt    time.Time
	FiredAt    time.Time
}

// NotificationRecord is one append-only entry in an alert's delivery history.
type NotificationRecord struct {
	ID      string
	AlertID int64
	Channel string
	Summary string
	Success bool
	SentAt  time.Time
}

// Alert is the single active decision record for a filter.
type Alert struct {
	ID            int64
	FilterID      int64
	Version       int64
	CurrentPrice  decimal.Decimal
	TargetPrice   decimal.Decimal
	DropAmount    decimal.Decimal
	DropPct       float64
	QualityScore  float64
	Status        AlertStatus
	Triggers      []Trigger
	Notifications []NotificationRecord
	LastCheckedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clamp01 bounds score values to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
