package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"hydration/internal/domain"
)

// AuthorizationStatus returns the recorded grant for dt.
func (d *DB) AuthorizationStatus(ctx context.Context, dt domain.DataType) domain.AuthorizationStatus {
	var status string
	err := d.sql.QueryRowContext(ctx, "SELECT status FROM authorizations WHERE data_type=$1;", string(dt)).Scan(&status)
	if err != nil {
		return domain.NotDetermined
	}
	switch status {
	case "authorized":
		return domain.Authorized
	case "denied":
		return domain.Denied
	}
	return domain.NotDetermined
}

// RequestAuthorization grants every undecided type in share.
func (d *DB) RequestAuthorization(ctx context.Context, share, read []domain.DataType) error {
	for _, dt := range share {
		_, err := d.sql.ExecContext(ctx,
			"INSERT INTO authorizations(data_type, status, updated_at) VALUES($1, 'authorized', $2) ON CONFLICT(data_type) DO NOTHING;",
			string(dt), d.now().UTC())
		if err != nil {
			return fmt.Errorf("request authorization for %s: %w", dt, err)
		}
	}
	return nil
}

// SetAuthorization overwrites the grant for dt. NotDetermined clears it.
func (d *DB) SetAuthorization(ctx context.Context, dt domain.DataType, status domain.AuthorizationStatus) error {
	if status == domain.NotDetermined {
		_, err := d.sql.ExecContext(ctx, "DELETE FROM authorizations WHERE data_type=$1;", string(dt))
		return err
	}
	_, err := d.sql.ExecContext(ctx,
		"INSERT INTO authorizations(data_type, status, updated_at) VALUES($1, $2, $3) ON CONFLICT(data_type) DO UPDATE SET status=EXCLUDED.status, updated_at=EXCLUDED.updated_at;",
		string(dt), status.String(), d.now().UTC())
	return err
}

// PreferredUnit returns the stored preferred unit for dt.
func (d *DB) PreferredUnit(ctx context.Context, dt domain.DataType) (domain.Unit, error) {
	var unit string
	err := d.sql.QueryRowContext(ctx, "SELECT unit FROM unit_preferences WHERE data_type=$1;", string(dt)).Scan(&unit)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNoPreference
	}
	if err != nil {
		return "", err
	}
	return domain.Unit(unit), nil
}

// SetPreferredUnit stores the preferred unit for dt.
func (d *DB) SetPreferredUnit(ctx context.Context, dt domain.DataType, u domain.Unit) error {
	_, err := d.sql.ExecContext(ctx,
		"INSERT INTO unit_preferences(data_type, unit) VALUES($1, $2) ON CONFLICT(data_type) DO UPDATE SET unit=EXCLUDED.unit;",
		string(dt), string(u))
	return err
}

// WatchDailySums opens a live per-day sum query from start with no end bound.
func (d *DB) WatchDailySums(ctx context.Context, dt domain.DataType, start time.Time) (domain.DailySumQuery, error) {
	return d.hub.Watch(ctx, dt, start), nil
}

// SumQuantity returns the sum of dt samples starting in [start, end], or nil
// when there are none or dt is not readable.
func (d *DB) SumQuantity(ctx context.Context, dt domain.DataType, start, end time.Time) (*domain.Quantity, error) {
	if d.AuthorizationStatus(ctx, dt) != domain.Authorized {
		return nil, nil
	}
	var total decimal.NullDecimal
	err := d.sql.QueryRowContext(ctx,
		"SELECT SUM(amount_liters) FROM water_samples WHERE data_type=$1 AND start_at >= $2 AND start_at <= $3;",
		string(dt), start.UTC(), end.UTC(),
	).Scan(&total)
	if err != nil {
		return nil, err
	}
	if !total.Valid {
		return nil, nil
	}
	return &domain.Quantity{Value: total.Decimal, Unit: domain.StorageUnit}, nil
}

// Save inserts sample. The insert trigger notifies live queries.
func (d *DB) Save(ctx context.Context, sample domain.Sample) error {
	if d.AuthorizationStatus(ctx, sample.DataType) != domain.Authorized {
		return domain.ErrNotAuthorized
	}
	id := sample.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := d.sql.ExecContext(ctx,
		"INSERT INTO water_samples(id, data_type, amount_liters, start_at, end_at, created_at) VALUES($1, $2, $3, $4, $5, $6);",
		id.String(), string(sample.DataType), sample.Amount.In(domain.StorageUnit).Value,
		sample.Start.UTC(), sample.End.UTC(), d.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save sample: %w", err)
	}
	return nil
}

// ListRecent returns the most recent samples of dt, newest first. A
// non-positive limit yields no samples.
func (d *DB) ListRecent(ctx context.Context, dt domain.DataType, limit int) ([]domain.Sample, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := d.sql.QueryContext(ctx,
		"SELECT id, amount_liters, start_at, end_at FROM water_samples WHERE data_type=$1 ORDER BY start_at DESC LIMIT $2;",
		string(dt), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Sample, 0, limit)
	for rows.Next() {
		var (
			id     string
			liters decimal.Decimal
			s      = domain.Sample{DataType: dt}
		)
		if err := rows.Scan(&id, &liters, &s.Start, &s.End); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("sample id %q: %w", id, err)
		}
		s.Amount = domain.Quantity{Value: liters, Unit: domain.StorageUnit}
		s.Start, s.End = s.Start.In(d.loc), s.End.In(d.loc)
		out = append(out, s)
	}
	return out, rows.Err()
}

// dailySums groups samples into the calendar days of d.loc. Day boundaries
// are computed here and shipped as arrays so the server needs no zone data.
func (d *DB) dailySums(ctx context.Context, dt domain.DataType, start time.Time) ([]domain.DailySum, error) {
	if d.AuthorizationStatus(ctx, dt) != domain.Authorized {
		return nil, nil
	}
	now := d.now()
	starts, ends := dayBounds(start, now, d.loc)
	if len(starts) == 0 {
		return nil, nil
	}

	rows, err := d.sql.QueryContext(ctx, `
SELECT b.day_start, SUM(s.amount_liters)
FROM unnest($2::timestamptz[], $3::timestamptz[]) AS b(day_start, day_end)
JOIN water_samples s ON s.data_type=$1 AND s.start_at >= b.day_start AND s.start_at < b.day_end AND s.start_at <= $4
GROUP BY b.day_start
ORDER BY b.day_start;`,
		string(dt), pq.Array(starts), pq.Array(ends), now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.DailySum
	for rows.Next() {
		var (
			day    time.Time
			liters decimal.Decimal
		)
		if err := rows.Scan(&day, &liters); err != nil {
			return nil, err
		}
		out = append(out, domain.DailySum{
			Start: day.In(d.loc),
			Sum:   domain.Quantity{Value: liters, Unit: domain.StorageUnit},
		})
	}
	return out, rows.Err()
}

// dayBounds returns the [start, end) instants of every calendar day in loc
// from the day containing from through the day containing to, formatted as
// timestamptz literals.
func dayBounds(from, to time.Time, loc *time.Location) (starts, ends []string) {
	last := domain.StartOfDay(to.In(loc))
	for day := domain.StartOfDay(from.In(loc)); !day.After(last); day = domain.StartOfDay(day.AddDate(0, 0, 1)) {
		next := domain.StartOfDay(day.AddDate(0, 0, 1))
		starts = append(starts, day.Format(time.RFC3339Nano))
		ends = append(ends, next.Format(time.RFC3339Nano))
	}
	return starts, ends
}
