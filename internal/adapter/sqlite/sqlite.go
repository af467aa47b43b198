// Package sqlite implements the health repository on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"

	"hydration/internal/adapter/live"
	"hydration/internal/adapter/sqlite/migrations"
	"hydration/internal/domain"
)

// Store implements domain.HealthRepository using SQLite. Samples carry the
// calendar day they fall on in the store's location, so per-day sums are a
// plain GROUP BY.
type Store struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
	hub *live.Hub
}

var _ domain.HealthRepository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the zone whose calendar days group sums.
func WithLocation(loc *time.Location) Option { return func(s *Store) { s.loc = loc } }

// WithNow sets the clock bounding open-ended queries.
func WithNow(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; WAL keeps readers unblocked.
	db.SetMaxOpenConns(1)

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, loc: time.Local, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.hub = live.NewHub(s.dailySums)
	return s, nil
}

// Close stops live queries and closes the database.
func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}

// AuthorizationStatus returns the recorded grant for dt.
func (s *Store) AuthorizationStatus(ctx context.Context, dt domain.DataType) domain.AuthorizationStatus {
	var status string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM authorizations WHERE data_type = ?", string(dt)).Scan(&status)
	if err != nil {
		return domain.NotDetermined
	}
	return parseStatus(status)
}

// RequestAuthorization grants every undecided type in share. Read access
// follows the sharing grant.
func (s *Store) RequestAuthorization(ctx context.Context, share, read []domain.DataType) error {
	for _, dt := range share {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO authorizations(data_type, status, updated_at) VALUES(?, 'authorized', ?) ON CONFLICT(data_type) DO NOTHING",
			string(dt), s.now().UnixMilli())
		if err != nil {
			return fmt.Errorf("request authorization for %s: %w", dt, err)
		}
	}
	return nil
}

// SetAuthorization overwrites the grant for dt and refreshes live queries.
func (s *Store) SetAuthorization(ctx context.Context, dt domain.DataType, status domain.AuthorizationStatus) error {
	if status == domain.NotDetermined {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM authorizations WHERE data_type = ?", string(dt)); err != nil {
			return err
		}
	} else {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO authorizations(data_type, status, updated_at) VALUES(?, ?, ?) ON CONFLICT(data_type) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at",
			string(dt), status.String(), s.now().UnixMilli())
		if err != nil {
			return err
		}
	}
	s.hub.Notify(ctx, dt)
	return nil
}

// PreferredUnit returns the stored preferred unit for dt.
func (s *Store) PreferredUnit(ctx context.Context, dt domain.DataType) (domain.Unit, error) {
	var unit string
	err := s.db.QueryRowContext(ctx, "SELECT unit FROM unit_preferences WHERE data_type = ?", string(dt)).Scan(&unit)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNoPreference
	}
	if err != nil {
		return "", err
	}
	return domain.Unit(unit), nil
}

// SetPreferredUnit stores the preferred unit for dt.
func (s *Store) SetPreferredUnit(ctx context.Context, dt domain.DataType, u domain.Unit) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO unit_preferences(data_type, unit) VALUES(?, ?) ON CONFLICT(data_type) DO UPDATE SET unit = excluded.unit",
		string(dt), string(u))
	return err
}

// WatchDailySums opens a live per-day sum query from start with no end bound.
func (s *Store) WatchDailySums(ctx context.Context, dt domain.DataType, start time.Time) (domain.DailySumQuery, error) {
	return s.hub.Watch(ctx, dt, start), nil
}

// SumQuantity returns the sum of dt samples starting in [start, end], or nil
// when there are none or dt is not readable.
func (s *Store) SumQuantity(ctx context.Context, dt domain.DataType, start, end time.Time) (*domain.Quantity, error) {
	if s.AuthorizationStatus(ctx, dt) != domain.Authorized {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT amount_liters FROM samples WHERE data_type = ? AND start_at >= ? AND start_at <= ?",
		string(dt), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	// Amounts are summed as decimals; SQLite's SUM would go through float.
	var (
		total decimal.Decimal
		found bool
	)
	for rows.Next() {
		var liters decimal.Decimal
		if err := rows.Scan(&liters); err != nil {
			return nil, err
		}
		total = total.Add(liters)
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &domain.Quantity{Value: total, Unit: domain.StorageUnit}, nil
}

// Save inserts sample and refreshes live queries.
func (s *Store) Save(ctx context.Context, sample domain.Sample) error {
	if s.AuthorizationStatus(ctx, sample.DataType) != domain.Authorized {
		return domain.ErrNotAuthorized
	}
	id := sample.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO samples(id, data_type, amount_liters, start_at, end_at, local_day, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)",
		id.String(),
		string(sample.DataType),
		sample.Amount.In(domain.StorageUnit).Value,
		sample.Start.UnixMilli(),
		sample.End.UnixMilli(),
		domain.DayKey(sample.Start.In(s.loc)),
		s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save sample: %w", err)
	}
	s.hub.Notify(ctx, sample.DataType)
	return nil
}

// ListRecent returns the most recent samples of dt, newest first. A
// non-positive limit yields no samples.
func (s *Store) ListRecent(ctx context.Context, dt domain.DataType, limit int) ([]domain.Sample, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, amount_liters, start_at, end_at FROM samples WHERE data_type = ? ORDER BY start_at DESC LIMIT ?",
		string(dt), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Sample, 0, limit)
	for rows.Next() {
		var (
			id         string
			liters     decimal.Decimal
			start, end int64
		)
		if err := rows.Scan(&id, &liters, &start, &end); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("sample id %q: %w", id, err)
		}
		out = append(out, domain.Sample{
			ID:       parsed,
			DataType: dt,
			Amount:   domain.Quantity{Value: liters, Unit: domain.StorageUnit},
			Start:    time.UnixMilli(start).In(s.loc),
			End:      time.UnixMilli(end).In(s.loc),
		})
	}
	return out, rows.Err()
}

func (s *Store) dailySums(ctx context.Context, dt domain.DataType, start time.Time) ([]domain.DailySum, error) {
	if s.AuthorizationStatus(ctx, dt) != domain.Authorized {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT local_day, amount_liters FROM samples WHERE data_type = ? AND start_at >= ? AND start_at <= ? ORDER BY local_day",
		string(dt), start.UnixMilli(), s.now().UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var (
		out     []domain.DailySum
		lastDay string
	)
	for rows.Next() {
		var (
			day    string
			liters decimal.Decimal
		)
		if err := rows.Scan(&day, &liters); err != nil {
			return nil, err
		}
		if day == lastDay {
			out[len(out)-1].Sum.Value = out[len(out)-1].Sum.Value.Add(liters)
			continue
		}
		dayStart, err := time.ParseInLocation("2006-01-02", day, s.loc)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.DailySum{
			Start: dayStart,
			Sum:   domain.Quantity{Value: liters, Unit: domain.StorageUnit},
		})
		lastDay = day
	}
	return out, rows.Err()
}

func parseStatus(s string) domain.AuthorizationStatus {
	switch s {
	case "authorized":
		return domain.Authorized
	case "denied":
		return domain.Denied
	}
	return domain.NotDetermined
}
