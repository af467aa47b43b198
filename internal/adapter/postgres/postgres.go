// Package postgres implements the health repository on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"hydration/internal/adapter/live"
	"hydration/internal/domain"
)

// notifyChannel carries the data type of every changed sample or grant.
const notifyChannel = "hydration_changes"

// DB wraps a *sql.DB and implements domain.HealthRepository. Live queries are
// refreshed from PostgreSQL notifications, so writes from other processes
// reach them too.
type DB struct {
	sql      *sql.DB
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
	hub      *live.Hub
	listener *pq.Listener
	stop     context.CancelFunc
	done     chan struct{}
}

var _ domain.HealthRepository = (*DB)(nil)

// Option configures a DB.
type Option func(*DB)

// WithLocation sets the zone whose calendar days group sums.
func WithLocation(loc *time.Location) Option { return func(d *DB) { d.loc = loc } }

// WithNow sets the clock bounding open-ended queries.
func WithNow(now func() time.Time) Option { return func(d *DB) { d.now = now } }

// WithLogger sets the logger for listener events.
func WithLogger(l *slog.Logger) Option { return func(d *DB) { d.logger = l } }

// Open connects to PostgreSQL, pings, runs migrations and starts listening
// for change notifications.
func Open(connStr string, opts ...Option) (*DB, error) {
	s, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	s.SetMaxOpenConns(10)
	s.SetMaxIdleConns(5)
	s.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.PingContext(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	d := &DB{sql: s, loc: time.Local, now: time.Now, done: make(chan struct{})}
	for _, o := range opts {
		o(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	d.hub = live.NewHub(d.dailySums)

	if err := d.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	d.listener = pq.NewListener(connStr, time.Second, time.Minute, d.listenerEvent)
	if err := d.listener.Listen(notifyChannel); err != nil {
		_ = d.listener.Close()
		_ = s.Close()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}
	lctx, stop := context.WithCancel(context.Background())
	d.stop = stop
	go d.forward(lctx)
	return d, nil
}

// Close stops live queries and the listener, then closes the pool.
func (d *DB) Close() error {
	d.stop()
	<-d.done
	d.hub.Close()
	_ = d.listener.Close()
	return d.sql.Close()
}

// forward turns notifications into live query refreshes. A nil notification
// means the listener reconnected and may have missed changes.
func (d *DB) forward(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-d.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				d.hub.Notify(ctx, domain.DietaryWater)
				continue
			}
			d.hub.Notify(ctx, domain.DataType(n.Extra))
		case <-time.After(90 * time.Second):
			go func() { _ = d.listener.Ping() }()
		}
	}
}

func (d *DB) listenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		d.logger.Debug("listener connected", "channel", notifyChannel)
	case pq.ListenerEventDisconnected:
		d.logger.Warn("listener disconnected", "err", err)
	case pq.ListenerEventReconnected:
		d.logger.Info("listener reconnected", "channel", notifyChannel)
	case pq.ListenerEventConnectionAttemptFailed:
		d.logger.Warn("listener connection attempt failed", "err", err)
	}
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS water_samples (id UUID PRIMARY KEY, data_type TEXT NOT NULL, amount_liters NUMERIC NOT NULL CHECK(amount_liters > 0), start_at TIMESTAMPTZ NOT NULL, end_at TIMESTAMPTZ NOT NULL, created_at TIMESTAMPTZ NOT NULL);",
		// Tables created before amounts were exact used DOUBLE PRECISION.
		"ALTER TABLE water_samples ALTER COLUMN amount_liters TYPE NUMERIC;",
		"CREATE INDEX IF NOT EXISTS idx_water_samples_type_start ON water_samples(data_type, start_at);",
		"CREATE TABLE IF NOT EXISTS authorizations (data_type TEXT PRIMARY KEY, status TEXT NOT NULL CHECK(status IN ('authorized','denied')), updated_at TIMESTAMPTZ NOT NULL);",
		"CREATE TABLE IF NOT EXISTS unit_preferences (data_type TEXT PRIMARY KEY, unit TEXT NOT NULL);",
		`CREATE OR REPLACE FUNCTION hydration_notify() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		PERFORM pg_notify('` + notifyChannel + `', OLD.data_type);
		RETURN OLD;
	END IF;
	PERFORM pg_notify('` + notifyChannel + `', NEW.data_type);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;`,
		"DROP TRIGGER IF EXISTS water_samples_notify ON water_samples;",
		"CREATE TRIGGER water_samples_notify AFTER INSERT OR DELETE ON water_samples FOR EACH ROW EXECUTE FUNCTION hydration_notify();",
		"DROP TRIGGER IF EXISTS authorizations_notify ON authorizations;",
		"CREATE TRIGGER authorizations_notify AFTER INSERT OR UPDATE OR DELETE ON authorizations FOR EACH ROW EXECUTE FUNCTION hydration_notify();",
	}

	for _, stmt := range stmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
