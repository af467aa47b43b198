package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"hydration/internal/app"
	"hydration/internal/domain"
	"hydration/internal/testutil"
)

func newService(repo domain.HealthRepository, unit domain.Unit) *app.WaterService {
	return app.NewWaterService(repo,
		app.WithClock(testutil.FixedClock()),
		app.WithDefaultUnit(unit),
	)
}

func TestSubscribeSeries_SevenAscendingBuckets(t *testing.T) {
	q := newFakeQuery()
	var gotStart time.Time
	repo := &mockHealthRepo{
		watchFn: func(_ context.Context, _ domain.DataType, start time.Time) (domain.DailySumQuery, error) {
			gotStart = start
			return q, nil
		},
	}
	svc := newService(repo, domain.Milliliter)
	sub := svc.SubscribeSeries(context.Background())
	defer sub.Stop()

	if !gotStart.Equal(day(2026, 10, 10)) {
		t.Fatalf("expected window start 2026-10-10, got %v", gotStart)
	}

	q.deliver(domain.DailySum{Start: day(2026, 10, 13), Sum: ml(350)})
	buckets := recv(t, sub.Updates())

	if len(buckets) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(buckets))
	}
	for i, b := range buckets {
		want := day(2026, 10, 10).AddDate(0, 0, i)
		if !b.Date.Equal(want) {
			t.Errorf("bucket %d: expected %v, got %v", i, want, b.Date)
		}
		wantTotal := 0.0
		if b.Day == "2026-10-13" {
			wantTotal = 350
		}
		if b.Total != wantTotal {
			t.Errorf("bucket %s: expected %v, got %v", b.Day, wantTotal, b.Total)
		}
	}
	if last := buckets[6]; last.Day != "2026-10-16" || last.Label != "F" {
		t.Errorf("expected today (F) last, got %s (%s)", last.Day, last.Label)
	}
}

func TestSubscribeSeries_TuesdayScenario(t *testing.T) {
	// Window starting Monday 2026-10-12 ends on Sunday 2026-10-18.
	clock := testutil.NewStubClock(time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC))
	q := newFakeQuery()
	repo := &mockHealthRepo{
		watchFn: func(context.Context, domain.DataType, time.Time) (domain.DailySumQuery, error) { return q, nil },
	}
	svc := app.NewWaterService(repo, app.WithClock(clock))
	sub := svc.SubscribeSeries(context.Background())
	defer sub.Stop()

	// 200 mL + 150 mL on Tuesday, summed by the repository.
	q.deliver(domain.DailySum{Start: day(2026, 10, 13), Sum: ml(350)})
	buckets := recv(t, sub.Updates())

	labels := ""
	for _, b := range buckets {
		labels += b.Label
		if b.Unit != domain.FluidOunceUS {
			t.Errorf("expected fl oz buckets, got %q", b.Unit)
		}
	}
	if labels != "MTWTFSS" {
		t.Errorf("expected labels MTWTFSS, got %s", labels)
	}
	for _, b := range buckets {
		want := 0.0
		if b.Day == "2026-10-13" {
			want = 12 // 350 mL = 11.83 fl oz, rounded up
		}
		if b.Total != want {
			t.Errorf("bucket %s: expected %v, got %v", b.Day, want, b.Total)
		}
	}
}

func TestSubscribeSeries_RoundsUp(t *testing.T) {
	q := newFakeQuery()
	repo := &mockHealthRepo{
		watchFn: func(context.Context, domain.DataType, time.Time) (domain.DailySumQuery, error) { return q, nil },
	}
	svc := newService(repo, domain.Milliliter)
	sub := svc.SubscribeSeries(context.Background())
	defer sub.Stop()

	q.deliver(domain.DailySum{Start: day(2026, 10, 16), Sum: ml(0.1)})
	buckets := recv(t, sub.Updates())
	if buckets[6].Total != 1 {
		t.Fatalf("expected 0.1 to round up to 1, got %v", buckets[6].Total)
	}
}

func TestSubscribeSeries_RepublishesOnUpdate(t *testing.T) {
	q := newFakeQuery()
	repo := &mockHealthRepo{
		watchFn: func(context.Context, domain.DataType, time.Time) (domain.DailySumQuery, error) { return q, nil },
	}
	svc := newService(repo, domain.Milliliter)
	sub := svc.SubscribeSeries(context.Background())
	defer sub.Stop()

	q.deliver()
	first := recv(t, sub.Updates())
	if first[6].Total != 0 {
		t.Fatalf("expected empty today, got %v", first[6].Total)
	}

	q.deliver(domain.DailySum{Start: day(2026, 10, 16), Sum: ml(500)})
	second := recv(t, sub.Updates())
	if second[6].Total != 500 {
		t.Fatalf("expected 500 today, got %v", second[6].Total)
	}
	if got := svc.Series().Get(); len(got) != 7 || got[6].Total != 500 {
		t.Fatalf("expected engine state to hold latest series, got %v", got)
	}
}

func TestSubscribeSeries_WindowFollowsClock(t *testing.T) {
	clock := testutil.FixedClock()
	q := newFakeQuery()
	repo := &mockHealthRepo{
		watchFn: func(context.Context, domain.DataType, time.Time) (domain.DailySumQuery, error) { return q, nil },
	}
	svc := app.NewWaterService(repo, app.WithClock(clock), app.WithDefaultUnit(domain.Milliliter))
	sub := svc.SubscribeSeries(context.Background())
	defer sub.Stop()

	clock.Advance(24 * time.Hour)
	q.deliver(domain.DailySum{Start: day(2026, 10, 17), Sum: ml(250)})
	buckets := recv(t, sub.Updates())

	if first := buckets[0]; first.Day != "2026-10-11" {
		t.Errorf("expected window to start 2026-10-11, got %s", first.Day)
	}
	if last := buckets[6]; last.Day != "2026-10-17" || last.Total != 250 {
		t.Errorf("expected 250 on 2026-10-17, got %v on %s", last.Total, last.Day)
	}
}

func TestFollowSeries_ReopensAtMidnight(t *testing.T) {
	clock := testutil.FixedClock()
	starts := make(chan time.Time, 4)
	repo := &mockHealthRepo{
		watchFn: func(_ context.Context, _ domain.DataType, start time.Time) (domain.DailySumQuery, error) {
			starts <- start
			return newFakeQuery(), nil
		},
	}
	svc := app.NewWaterService(repo, app.WithClock(clock), app.WithDefaultUnit(domain.Milliliter))

	waits := make(chan time.Duration, 4)
	tick := make(chan time.Time)
	after := func(d time.Duration) <-chan time.Time {
		waits <- d
		return tick
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.FollowSeries(ctx, after)
	}()

	if got := recv(t, starts); !got.Equal(day(2026, 10, 10)) {
		t.Fatalf("expected first window at 2026-10-10, got %v", got)
	}
	if got := recv(t, waits); got != 13*time.Hour+30*time.Minute {
		t.Fatalf("expected to wait until midnight, got %v", got)
	}

	clock.Advance(13*time.Hour + 30*time.Minute)
	tick <- clock.Now()

	if got := recv(t, starts); !got.Equal(day(2026, 10, 11)) {
		t.Fatalf("expected reopened window at 2026-10-11, got %v", got)
	}
	recv(t, waits)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("FollowSeries did not return after cancel")
	}
}

func TestSubscribeSeries_DeniedPublishesZeros(t *testing.T) {
	repo := &mockHealthRepo{
		statusFn: func(context.Context, domain.DataType) domain.AuthorizationStatus { return domain.Denied },
		watchFn: func(context.Context, domain.DataType, time.Time) (domain.DailySumQuery, error) {
			return nil, domain.ErrNotAuthorized
		},
	}
	svc := newService(repo, domain.Milliliter)
	if svc.IsEnabled(context.Background()) {
		t.Fatal("expected service to be disabled")
	}

	sub := svc.SubscribeSeries(context.Background())
	defer sub.Stop()

	buckets := recv(t, sub.Updates())
	if len(buckets) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(buckets))
	}
	for _, b := range buckets {
		if b.Total != 0 {
			t.Errorf("expected zero bucket, got %v on %s", b.Total, b.Day)
		}
	}
}

func TestSubscribeSeries_DeliveryErrorPublishesZeros(t *testing.T) {
	q := newFakeQuery()
	repo := &mockHealthRepo{
		watchFn: func(context.Context, domain.DataType, time.Time) (domain.DailySumQuery, error) { return q, nil },
	}
	svc := newService(repo, domain.Milliliter)
	sub := svc.SubscribeSeries(context.Background())
	defer sub.Stop()

	q.ch <- domain.DailySumBatch{Err: errors.New("store offline")}
	buckets := recv(t, sub.Updates())
	if len(buckets) != 7 || buckets[6].Total != 0 {
		t.Fatalf("expected zero-filled series, got %v", buckets)
	}
}

func TestSubscribeSeries_StopReleasesQuery(t *testing.T) {
	q := newFakeQuery()
	repo := &mockHealthRepo{
		watchFn: func(context.Context, domain.DataType, time.Time) (domain.DailySumQuery, error) { return q, nil },
	}
	svc := newService(repo, domain.Milliliter)
	sub := svc.SubscribeSeries(context.Background())

	q.deliver(domain.DailySum{Start: day(2026, 10, 16), Sum: ml(250)})
	recv(t, sub.Updates())

	sub.Stop()
	sub.Stop()
	if n := q.stops.Load(); n != 1 {
		t.Fatalf("expected query stopped once, got %d", n)
	}
	if _, ok := <-sub.Updates(); ok {
		t.Fatal("expected updates channel to be closed")
	}

	q.deliver(domain.DailySum{Start: day(2026, 10, 16), Sum: ml(900)})
	time.Sleep(20 * time.Millisecond)
	if got := svc.Series().Get(); got[6].Total != 250 {
		t.Fatalf("expected no publication after Stop, got %v", got[6].Total)
	}
}

func TestSubscribeSeries_ContextCancelReleasesQuery(t *testing.T) {
	q := newFakeQuery()
	repo := &mockHealthRepo{
		watchFn: func(context.Context, domain.DataType, time.Time) (domain.DailySumQuery, error) { return q, nil },
	}
	svc := newService(repo, domain.Milliliter)
	ctx, cancel := context.WithCancel(context.Background())
	sub := svc.SubscribeSeries(ctx)

	cancel()
	for range sub.Updates() {
	}
	if n := q.stops.Load(); n != 1 {
		t.Fatalf("expected query stopped once, got %d", n)
	}
	sub.Stop()
	if n := q.stops.Load(); n != 1 {
		t.Fatalf("expected no second release, got %d", n)
	}
}

func TestSubscribeSeries_ResubscribeStopsPrevious(t *testing.T) {
	first, second := newFakeQuery(), newFakeQuery()
	queries := []*fakeQuery{first, second}
	repo := &mockHealthRepo{
		watchFn: func(context.Context, domain.DataType, time.Time) (domain.DailySumQuery, error) {
			q := queries[0]
			queries = queries[1:]
			return q, nil
		},
	}
	svc := newService(repo, domain.Milliliter)
	svc.SubscribeSeries(context.Background())
	sub := svc.SubscribeSeries(context.Background())
	defer sub.Stop()

	if n := first.stops.Load(); n != 1 {
		t.Fatalf("expected first query released, got %d stops", n)
	}
	if n := second.stops.Load(); n != 0 {
		t.Fatalf("expected second query live, got %d stops", n)
	}
}

func TestLogConsumption_DisabledIsNoop(t *testing.T) {
	repo := &mockHealthRepo{
		statusFn: func(context.Context, domain.DataType) domain.AuthorizationStatus { return domain.Denied },
	}
	svc := newService(repo, domain.Milliliter)
	if err := svc.LogConsumption(context.Background(), ml(500)); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if n := repo.saveCount(); n != 0 {
		t.Fatalf("expected no save, got %d", n)
	}
}

func TestLogConsumption_DisabledSkipsValidation(t *testing.T) {
	repo := &mockHealthRepo{
		statusFn: func(context.Context, domain.DataType) domain.AuthorizationStatus { return domain.Denied },
	}
	svc := newService(repo, domain.Milliliter)
	if err := svc.LogConsumption(context.Background(), ml(-250)); err != nil {
		t.Fatalf("expected silent success while disabled, got %v", err)
	}
}

func TestRecordConsumption_ReportsLogged(t *testing.T) {
	status := domain.Denied
	repo := &mockHealthRepo{
		statusFn: func(context.Context, domain.DataType) domain.AuthorizationStatus { return status },
	}
	svc := newService(repo, domain.Milliliter)
	ctx := context.Background()

	logged, err := svc.RecordConsumption(ctx, ml(250))
	if err != nil || logged {
		t.Fatalf("expected (false, nil) while denied, got (%v, %v)", logged, err)
	}

	status = domain.Authorized
	logged, err = svc.RecordConsumption(ctx, ml(250))
	if err != nil || !logged {
		t.Fatalf("expected (true, nil) once authorized, got (%v, %v)", logged, err)
	}
	if repo.statusCalls != 2 {
		t.Fatalf("expected one status query per call, got %d", repo.statusCalls)
	}
}

func TestLogConsumption_Success(t *testing.T) {
	var total domain.Quantity
	repo := &mockHealthRepo{
		sumFn: func(context.Context, domain.DataType, time.Time, time.Time) (*domain.Quantity, error) {
			return &total, nil
		},
	}
	repo.saveFn = func(_ context.Context, s domain.Sample) error {
		total = s.Amount
		return nil
	}
	svc := newService(repo, domain.Milliliter)

	if err := svc.LogGlass(context.Background(), domain.MediumGlass); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := repo.saveCount(); n != 1 {
		t.Fatalf("expected 1 save, got %d", n)
	}
	s := repo.saved[0]
	now := testutil.FixedClock().Now()
	if !s.Start.Equal(now) || !s.End.Equal(now) {
		t.Errorf("expected zero-duration sample at %v, got %v..%v", now, s.Start, s.End)
	}
	if got := svc.TodayTotal().Get(); got != "500 mL" {
		t.Errorf("expected today total 500 mL, got %q", got)
	}
}

func TestLogConsumption_WriteFailure(t *testing.T) {
	cause := errors.New("disk full")
	repo := &mockHealthRepo{
		saveFn: func(context.Context, domain.Sample) error { return cause },
	}
	svc := newService(repo, domain.Milliliter)

	err := svc.LogConsumption(context.Background(), ml(330))
	var we *domain.WriteError
	if !errors.As(err, &we) {
		t.Fatalf("expected WriteError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}

func TestLogConsumption_Validation(t *testing.T) {
	svc := newService(&mockHealthRepo{}, domain.Milliliter)

	tests := []struct {
		name string
		q    domain.Quantity
	}{
		{"zero", ml(0)},
		{"negative", ml(-250)},
		{"bad unit", domain.NewQuantity(1, domain.Unit("kg"))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.LogConsumption(context.Background(), tc.q)
			if !errors.Is(err, domain.ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
		})
	}
}

func TestRefreshTodayTotal(t *testing.T) {
	var gotStart, gotEnd time.Time
	repo := &mockHealthRepo{
		sumFn: func(_ context.Context, _ domain.DataType, start, end time.Time) (*domain.Quantity, error) {
			gotStart, gotEnd = start, end
			q := domain.NewQuantity(1.5, domain.Liter)
			return &q, nil
		},
	}
	svc := newService(repo, domain.Liter)

	if got := svc.RefreshTodayTotal(context.Background()); got != "1.5 L" {
		t.Fatalf("expected 1.5 L, got %q", got)
	}
	if !gotStart.Equal(day(2026, 10, 16)) || !gotEnd.Equal(testutil.FixedClock().Now()) {
		t.Errorf("unexpected range [%v, %v)", gotStart, gotEnd)
	}
}

func TestRefreshTodayTotal_DeniedIsZero(t *testing.T) {
	repo := &mockHealthRepo{
		statusFn: func(context.Context, domain.DataType) domain.AuthorizationStatus { return domain.Denied },
		sumFn: func(context.Context, domain.DataType, time.Time, time.Time) (*domain.Quantity, error) {
			return nil, domain.ErrNotAuthorized
		},
	}
	svc := newService(repo, domain.Milliliter)
	if got := svc.RefreshTodayTotal(context.Background()); got != "0" {
		t.Fatalf("expected \"0\", got %q", got)
	}
	if got := svc.TodayTotal().Get(); got != "0" {
		t.Fatalf("expected published \"0\", got %q", got)
	}
}

func TestRefreshTodayTotal_NoData(t *testing.T) {
	svc := newService(&mockHealthRepo{}, domain.Milliliter)
	if got := svc.RefreshTodayTotal(context.Background()); got != "0" {
		t.Fatalf("expected \"0\", got %q", got)
	}
}

func TestRequestAuthorization(t *testing.T) {
	var shared, read []domain.DataType
	repo := &mockHealthRepo{
		requestFn: func(_ context.Context, s, r []domain.DataType) error {
			shared, read = s, r
			return nil
		},
		unitFn: func(context.Context, domain.DataType) (domain.Unit, error) { return domain.Milliliter, nil },
	}
	svc := app.NewWaterService(repo)
	if svc.PreferredUnit() != app.DefaultUnit {
		t.Fatalf("expected default unit before authorization, got %q", svc.PreferredUnit())
	}

	if err := svc.RequestAuthorization(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shared) != 1 || shared[0] != domain.DietaryWater || len(read) != 1 || read[0] != domain.DietaryWater {
		t.Errorf("expected water share+read, got %v %v", shared, read)
	}
	if svc.PreferredUnit() != domain.Milliliter {
		t.Errorf("expected mL, got %q", svc.PreferredUnit())
	}

	// Idempotent.
	if err := svc.RequestAuthorization(context.Background()); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
}

func TestRequestAuthorization_UnitFailureKeepsDefault(t *testing.T) {
	repo := &mockHealthRepo{
		unitFn: func(context.Context, domain.DataType) (domain.Unit, error) { return "", errors.New("unsupported") },
	}
	svc := app.NewWaterService(repo)
	if err := svc.RequestAuthorization(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.PreferredUnit() != app.DefaultUnit {
		t.Fatalf("expected default unit, got %q", svc.PreferredUnit())
	}
}

func TestRequestAuthorization_Failure(t *testing.T) {
	cause := errors.New("user cancelled")
	repo := &mockHealthRepo{
		requestFn: func(context.Context, []domain.DataType, []domain.DataType) error { return cause },
	}
	svc := app.NewWaterService(repo)
	err := svc.RequestAuthorization(context.Background())
	var ae *domain.AuthError
	if !errors.As(err, &ae) || !errors.Is(err, cause) {
		t.Fatalf("expected AuthError wrapping cause, got %v", err)
	}
}

func TestIsEnabled_RequeriesRepository(t *testing.T) {
	status := domain.NotDetermined
	repo := &mockHealthRepo{
		statusFn: func(context.Context, domain.DataType) domain.AuthorizationStatus { return status },
	}
	svc := app.NewWaterService(repo)
	if svc.IsEnabled(context.Background()) {
		t.Fatal("expected disabled while undetermined")
	}
	status = domain.Authorized
	if !svc.IsEnabled(context.Background()) {
		t.Fatal("expected enabled after grant")
	}
	if repo.statusCalls != 2 {
		t.Fatalf("expected 2 status queries, got %d", repo.statusCalls)
	}
}

func TestNilRepository(t *testing.T) {
	svc := app.NewWaterService(nil, app.WithClock(testutil.FixedClock()))
	ctx := context.Background()

	if svc.IsEnabled(ctx) {
		t.Fatal("expected disabled without repository")
	}
	if err := svc.LogConsumption(ctx, ml(250)); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if got := svc.RefreshTodayTotal(ctx); got != "0" {
		t.Fatalf("expected \"0\", got %q", got)
	}
	if err := svc.RequestAuthorization(ctx); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	sub := svc.SubscribeSeries(ctx)
	defer sub.Stop()
	if buckets := recv(t, sub.Updates()); len(buckets) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(buckets))
	}
}

func TestSampleWriter_Unavailable(t *testing.T) {
	err := app.NewSampleWriter(nil).Submit(context.Background(), domain.NewSample(ml(250), time.Now()))
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
