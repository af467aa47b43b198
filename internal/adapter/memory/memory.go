// Package memory implements an in-memory health repository for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hydration/internal/adapter/live"
	"hydration/internal/domain"
)

// DB implements an in-memory health-data store.
type DB struct {
	mu        sync.Mutex
	samples   []domain.Sample
	status    map[domain.DataType]domain.AuthorizationStatus
	preferred map[domain.DataType]domain.Unit
	deny      bool
	loc       *time.Location
	now       func() time.Time

	hub *live.Hub
}

// Option configures a DB.
type Option func(*DB)

// DenyAuthorization makes RequestAuthorization record a denial, as a user
// declining the permission prompt would.
func DenyAuthorization() Option { return func(db *DB) { db.deny = true } }

// WithPreferredUnit sets the user's preferred unit for water.
func WithPreferredUnit(u domain.Unit) Option {
	return func(db *DB) { db.preferred[domain.DietaryWater] = u }
}

// WithLocation sets the zone whose calendar days group sums.
func WithLocation(loc *time.Location) Option { return func(db *DB) { db.loc = loc } }

// WithNow sets the clock bounding open-ended queries.
func WithNow(now func() time.Time) Option { return func(db *DB) { db.now = now } }

// New creates a new in-memory store.
func New(opts ...Option) *DB {
	db := &DB{
		status:    make(map[domain.DataType]domain.AuthorizationStatus),
		preferred: make(map[domain.DataType]domain.Unit),
		loc:       time.Local,
		now:       time.Now,
	}
	for _, o := range opts {
		o(db)
	}
	db.hub = live.NewHub(db.dailySums)
	return db
}

// Ensure interfaces are met.
var _ domain.HealthRepository = (*DB)(nil)

// AuthorizationStatus returns the current grant for dt.
func (db *DB) AuthorizationStatus(ctx context.Context, dt domain.DataType) domain.AuthorizationStatus {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.status[dt]
}

// RequestAuthorization records a grant (or a denial) for every type in share.
// Types already decided keep their status, as the platform prompt does.
func (db *DB) RequestAuthorization(ctx context.Context, share, read []domain.DataType) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, dt := range share {
		if db.status[dt] != domain.NotDetermined {
			continue
		}
		if db.deny {
			db.status[dt] = domain.Denied
		} else {
			db.status[dt] = domain.Authorized
		}
	}
	return nil
}

// SetAuthorization changes the grant for dt, as the user would in settings.
func (db *DB) SetAuthorization(dt domain.DataType, s domain.AuthorizationStatus) {
	db.mu.Lock()
	db.status[dt] = s
	db.mu.Unlock()
	db.hub.Notify(context.Background(), dt)
}

// PreferredUnit returns the configured preferred unit for dt.
func (db *DB) PreferredUnit(ctx context.Context, dt domain.DataType) (domain.Unit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.preferred[dt]
	if !ok {
		return "", domain.ErrNoPreference
	}
	return u, nil
}

// SetPreferredUnit stores the preferred unit for dt.
func (db *DB) SetPreferredUnit(ctx context.Context, dt domain.DataType, u domain.Unit) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.preferred[dt] = u
	return nil
}

// WatchDailySums opens a live per-day sum query from start with no end bound.
func (db *DB) WatchDailySums(ctx context.Context, dt domain.DataType, start time.Time) (domain.DailySumQuery, error) {
	return db.hub.Watch(ctx, dt, start), nil
}

// ActiveQueries returns the number of live queries still registered.
func (db *DB) ActiveQueries() int { return db.hub.Active() }

// SumQuantity returns the sum of dt samples starting in [start, end], or nil
// when there are none. Without a grant nothing is readable.
func (db *DB) SumQuantity(ctx context.Context, dt domain.DataType, start, end time.Time) (*domain.Quantity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.status[dt] != domain.Authorized {
		return nil, nil
	}

	total := decimal.Zero
	found := false
	for _, s := range db.samples {
		if s.DataType != dt || s.Start.Before(start) || s.Start.After(end) {
			continue
		}
		total = total.Add(s.Amount.In(domain.StorageUnit).Value)
		found = true
	}
	if !found {
		return nil, nil
	}
	return &domain.Quantity{Value: total, Unit: domain.StorageUnit}, nil
}

// Save stores s and notifies live queries.
func (db *DB) Save(ctx context.Context, s domain.Sample) error {
	db.mu.Lock()
	if db.status[s.DataType] != domain.Authorized {
		db.mu.Unlock()
		return domain.ErrNotAuthorized
	}
	db.samples = append(db.samples, s)
	db.mu.Unlock()

	db.hub.Notify(ctx, s.DataType)
	return nil
}

// ListRecent returns the most recent samples of dt, newest first. A
// non-positive limit yields no samples.
func (db *DB) ListRecent(ctx context.Context, dt domain.DataType, limit int) ([]domain.Sample, error) {
	if limit <= 0 {
		return nil, nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	result := make([]domain.Sample, 0, len(db.samples))
	for _, s := range db.samples {
		if s.DataType == dt {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Start.After(result[j].Start)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Close stops all live queries.
func (db *DB) Close() error {
	db.hub.Close()
	return nil
}

func (db *DB) dailySums(ctx context.Context, dt domain.DataType, start time.Time) ([]domain.DailySum, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.status[dt] != domain.Authorized {
		return nil, nil
	}

	end := db.now()
	byDay := make(map[string]int)
	var out []domain.DailySum
	for _, s := range db.samples {
		if s.DataType != dt || s.Start.Before(start) || s.Start.After(end) {
			continue
		}
		day := domain.StartOfDay(s.Start.In(db.loc))
		v := s.Amount.In(domain.StorageUnit).Value
		if i, ok := byDay[domain.DayKey(day)]; ok {
			out[i].Sum.Value = out[i].Sum.Value.Add(v)
			continue
		}
		byDay[domain.DayKey(day)] = len(out)
		out = append(out, domain.DailySum{Start: day, Sum: domain.Quantity{Value: v, Unit: domain.StorageUnit}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
