// Package app holds the application services and business logic.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/language"

	"hydration/internal/domain"
	"hydration/internal/observe"
)

// DefaultUnit is used until the repository reports the user's preferred unit.
const DefaultUnit = domain.FluidOunceUS

// WaterService aggregates water samples into today's total and a trailing
// seven-day series, and republishes both as the repository changes.
type WaterService struct {
	repo      domain.HealthRepository
	writer    *SampleWriter
	clock     Clock
	logger    *slog.Logger
	formatter *Formatter

	mu          sync.Mutex
	defaultUnit domain.Unit
	preferred   domain.Unit
	active      *SeriesSubscription

	today  *observe.Value[string]
	series *observe.Value[[]domain.DailyBucket]
}

// Option configures a WaterService.
type Option func(*WaterService)

// WithClock sets the clock used for day boundaries and sample timestamps.
func WithClock(c Clock) Option { return func(s *WaterService) { s.clock = c } }

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option { return func(s *WaterService) { s.logger = l } }

// WithFormatter sets the formatter for today's total.
func WithFormatter(f *Formatter) Option { return func(s *WaterService) { s.formatter = f } }

// WithDefaultUnit overrides DefaultUnit.
func WithDefaultUnit(u domain.Unit) Option { return func(s *WaterService) { s.defaultUnit = u } }

// NewWaterService creates a WaterService backed by the given repository. A
// nil repository behaves as a device without health data: reads are empty and
// writes fail with ErrUnavailable.
func NewWaterService(repo domain.HealthRepository, opts ...Option) *WaterService {
	s := &WaterService{
		repo:        repo,
		writer:      NewSampleWriter(repo),
		clock:       RealClock{},
		defaultUnit: DefaultUnit,
		today:       observe.NewValue(""),
		series:      observe.NewValue[[]domain.DailyBucket](nil),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.formatter == nil {
		s.formatter = NewFormatter(language.AmericanEnglish)
	}
	s.preferred = s.defaultUnit
	return s
}

// TodayTotal is the formatted amount consumed today.
func (s *WaterService) TodayTotal() observe.Observable[string] { return s.today }

// Series is the latest seven-day series.
func (s *WaterService) Series() observe.Observable[[]domain.DailyBucket] { return s.series }

// PreferredUnit returns the unit buckets are expressed in.
func (s *WaterService) PreferredUnit() domain.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferred
}

// RequestAuthorization asks the repository for read and write access to water
// samples, then loads the user's preferred unit. A missing or unreadable
// preference keeps the default unit.
func (s *WaterService) RequestAuthorization(ctx context.Context) error {
	if s.repo == nil {
		return &domain.AuthError{Err: domain.ErrUnavailable}
	}
	types := []domain.DataType{domain.DietaryWater}
	if err := s.repo.RequestAuthorization(ctx, types, types); err != nil {
		return &domain.AuthError{Err: err}
	}

	unit, err := s.repo.PreferredUnit(ctx, domain.DietaryWater)
	switch {
	case errors.Is(err, domain.ErrNoPreference):
		unit = s.defaultUnit
	case err != nil:
		s.logger.Warn("preferred unit unavailable, using default", "unit", s.defaultUnit, "err", err)
		unit = s.defaultUnit
	case !unit.Valid():
		s.logger.Warn("repository returned unknown unit, using default", "unit", string(unit))
		unit = s.defaultUnit
	}

	s.mu.Lock()
	s.preferred = unit
	s.mu.Unlock()
	s.logger.Info("authorization requested", "preferredUnit", string(unit))
	return nil
}

// IsEnabled reports whether the user currently allows writing water samples.
// The repository is asked every time; the grant can change outside the app.
func (s *WaterService) IsEnabled(ctx context.Context) bool {
	if s.repo == nil {
		return false
	}
	return s.repo.AuthorizationStatus(ctx, domain.DietaryWater) == domain.Authorized
}

// RefreshTodayTotal sums today's samples, publishes the formatted total and
// returns it. Missing access and read failures yield "0".
func (s *WaterService) RefreshTodayTotal(ctx context.Context) string {
	now := s.clock.Now()
	total := "0"

	sum, err := s.sumSince(ctx, domain.StartOfDay(now), now)
	switch {
	case err != nil:
		s.logger.Debug("today total unreadable", "err", err)
	case sum != nil:
		total = s.formatter.Format(*sum, s.PreferredUnit())
	}

	s.today.Set(total)
	return total
}

func (s *WaterService) sumSince(ctx context.Context, start, end time.Time) (*domain.Quantity, error) {
	if s.repo == nil {
		return nil, domain.ErrUnavailable
	}
	return s.repo.SumQuantity(ctx, domain.DietaryWater, start, end)
}

// LogConsumption records q as consumed now and refreshes today's total. When
// writing is not authorized the call is silently ignored.
func (s *WaterService) LogConsumption(ctx context.Context, q domain.Quantity) error {
	_, err := s.RecordConsumption(ctx, q)
	return err
}

// RecordConsumption is LogConsumption that also reports whether a sample was
// written. The grant is read once, so logged reflects the check that decided.
func (s *WaterService) RecordConsumption(ctx context.Context, q domain.Quantity) (logged bool, err error) {
	if !s.IsEnabled(ctx) {
		s.logger.Debug("water sharing not authorized, sample dropped")
		return false, nil
	}
	if !q.Unit.Valid() || !q.IsPositive() {
		return false, domain.ErrInvalidAmount
	}

	sample := domain.NewSample(q, s.clock.Now())
	if err := s.writer.Submit(ctx, sample); err != nil {
		return false, err
	}
	s.logger.Info("water logged", "id", sample.ID, "amount", q.String())

	s.RefreshTodayTotal(ctx)
	return true, nil
}

// LogGlass records one preset glass.
func (s *WaterService) LogGlass(ctx context.Context, g domain.Glass) error {
	return s.LogConsumption(ctx, g.Quantity())
}

// SeriesSubscription is a live view of the seven-day series.
type SeriesSubscription struct {
	svc     *WaterService
	updates <-chan []domain.DailyBucket
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Updates delivers every published series. It is closed after Stop.
func (sub *SeriesSubscription) Updates() <-chan []domain.DailyBucket { return sub.updates }

// Stop ends the subscription and releases the repository query.
func (sub *SeriesSubscription) Stop() {
	sub.once.Do(func() {
		sub.cancel()
		<-sub.done

		sub.svc.mu.Lock()
		if sub.svc.active == sub {
			sub.svc.active = nil
		}
		sub.svc.mu.Unlock()
	})
}

// SubscribeSeries opens an open-ended per-day sum query for the window ending
// today and publishes a full seven-bucket series on every delivery. A previous
// subscription is stopped first. Cancelling ctx has the same effect as Stop.
func (s *WaterService) SubscribeSeries(ctx context.Context) *SeriesSubscription {
	s.mu.Lock()
	prev := s.active
	s.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	updates, unsubscribe := s.series.Subscribe()
	start := SeriesStart(s.clock.Now())
	qctx, cancel := context.WithCancel(ctx)

	var q domain.DailySumQuery
	var err error
	if s.repo == nil {
		err = domain.ErrUnavailable
	} else {
		q, err = s.repo.WatchDailySums(qctx, domain.DietaryWater, start)
	}
	if err != nil {
		s.logger.Warn("series query unavailable, showing empty week", "err", err)
		s.series.Set(BuildSeries(start, nil, s.PreferredUnit()))
	}

	sub := &SeriesSubscription{svc: s, updates: updates, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer unsubscribe()
		if q == nil {
			<-qctx.Done()
			return
		}
		defer q.Stop()
		s.pump(qctx, start, q)
	}()

	s.mu.Lock()
	s.active = sub
	s.mu.Unlock()
	return sub
}

func (s *WaterService) pump(ctx context.Context, start time.Time, q domain.DailySumQuery) {
	results := q.Results()
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-results:
			if !ok {
				return
			}
			if batch.Err != nil {
				s.logger.Warn("series delivery failed, showing empty days", "err", batch.Err)
				batch.Sums = nil
			}
			s.series.Set(BuildSeries(s.windowStart(start), batch.Sums, s.PreferredUnit()))
		}
	}
}

// windowStart returns the window for the current day. The query opened at
// queryStart has no end, so it still covers every later window.
func (s *WaterService) windowStart(queryStart time.Time) time.Time {
	start := SeriesStart(s.clock.Now())
	if start.Before(queryStart) {
		return queryStart
	}
	return start
}

// FollowSeries keeps a series subscription open until ctx is done and reopens
// it at every local midnight, so the published window always ends today.
// after is time.After outside tests.
func (s *WaterService) FollowSeries(ctx context.Context, after func(time.Duration) <-chan time.Time) {
	for {
		sub := s.SubscribeSeries(ctx)
		now := s.clock.Now()
		wait := domain.StartOfDay(now).AddDate(0, 0, 1).Sub(now)
		select {
		case <-ctx.Done():
			sub.Stop()
			return
		case <-after(wait):
			s.logger.Debug("day changed, reopening series", "day", domain.DayKey(s.clock.Now()))
		}
	}
}
