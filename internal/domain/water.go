// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DataType identifies a kind of health sample held by a repository.
type DataType string

// DietaryWater is the data type for water consumption samples.
const DietaryWater DataType = "dietary_water"

// AuthorizationStatus is the repository's current sharing grant for a data type.
type AuthorizationStatus int

const (
	NotDetermined AuthorizationStatus = iota
	Denied
	Authorized
)

func (s AuthorizationStatus) String() string {
	switch s {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	default:
		return "not_determined"
	}
}

// Sample is a single immutable consumption record.
type Sample struct {
	ID       uuid.UUID `json:"id"`
	DataType DataType  `json:"dataType"`
	Amount   Quantity  `json:"amount"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// NewSample creates an instantaneous water sample taken at t.
func NewSample(amount Quantity, t time.Time) Sample {
	return Sample{
		ID:       uuid.New(),
		DataType: DietaryWater,
		Amount:   amount,
		Start:    t,
		End:      t,
	}
}

// DailySum is the cumulative sum of one calendar day, as reported by a repository.
type DailySum struct {
	Start time.Time
	Sum   Quantity
}

// DailySumBatch is one delivery of a live per-day sum query.
type DailySumBatch struct {
	Sums []DailySum
	Err  error
}

// DailySumQuery is a live, open-ended per-day sum query. Results delivers the
// full set of sums initially and again whenever matching samples change. The
// channel is closed after Stop.
type DailySumQuery interface {
	Results() <-chan DailySumBatch
	Stop()
}

// HealthRepository is the port for the health-data store.
type HealthRepository interface {
	AuthorizationStatus(ctx context.Context, dt DataType) AuthorizationStatus
	RequestAuthorization(ctx context.Context, share, read []DataType) error
	// PreferredUnit returns ErrNoPreference when the user never chose one.
	PreferredUnit(ctx context.Context, dt DataType) (Unit, error)
	WatchDailySums(ctx context.Context, dt DataType, start time.Time) (DailySumQuery, error)
	// SumQuantity returns nil when no samples fall in [start, end]. The end
	// bound is inclusive so a sample stamped at end is counted.
	SumQuantity(ctx context.Context, dt DataType, start, end time.Time) (*Quantity, error)
	Save(ctx context.Context, s Sample) error
}

// DailyBucket is one calendar day of the trailing seven-day series.
type DailyBucket struct {
	Date  time.Time `json:"-"`
	Day   string    `json:"day"`
	Label string    `json:"label"`
	Total float64   `json:"total"`
	Unit  Unit      `json:"unit"`
}

// NewDailyBucket returns an empty bucket for the calendar day containing t.
func NewDailyBucket(t time.Time, unit Unit) DailyBucket {
	d := StartOfDay(t)
	return DailyBucket{
		Date:  d,
		Day:   DayKey(d),
		Label: WeekdaySymbol(d.Weekday()),
		Unit:  unit,
	}
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayKey formats the calendar day of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

var weekdaySymbols = [...]string{"S", "M", "T", "W", "T", "F", "S"}

// WeekdaySymbol returns the very short standalone symbol for wd.
func WeekdaySymbol(wd time.Weekday) string {
	return weekdaySymbols[wd]
}
