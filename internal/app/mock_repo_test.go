package app_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hydration/internal/domain"
)

type mockHealthRepo struct {
	statusFn  func(ctx context.Context, dt domain.DataType) domain.AuthorizationStatus
	requestFn func(ctx context.Context, share, read []domain.DataType) error
	unitFn    func(ctx context.Context, dt domain.DataType) (domain.Unit, error)
	watchFn   func(ctx context.Context, dt domain.DataType, start time.Time) (domain.DailySumQuery, error)
	sumFn     func(ctx context.Context, dt domain.DataType, start, end time.Time) (*domain.Quantity, error)
	saveFn    func(ctx context.Context, s domain.Sample) error

	mu          sync.Mutex
	statusCalls int
	saved       []domain.Sample
}

func (m *mockHealthRepo) AuthorizationStatus(ctx context.Context, dt domain.DataType) domain.AuthorizationStatus {
	m.mu.Lock()
	m.statusCalls++
	m.mu.Unlock()
	if m.statusFn != nil {
		return m.statusFn(ctx, dt)
	}
	return domain.Authorized
}

func (m *mockHealthRepo) RequestAuthorization(ctx context.Context, share, read []domain.DataType) error {
	if m.requestFn != nil {
		return m.requestFn(ctx, share, read)
	}
	return nil
}

func (m *mockHealthRepo) PreferredUnit(ctx context.Context, dt domain.DataType) (domain.Unit, error) {
	if m.unitFn != nil {
		return m.unitFn(ctx, dt)
	}
	return "", domain.ErrNoPreference
}

func (m *mockHealthRepo) WatchDailySums(ctx context.Context, dt domain.DataType, start time.Time) (domain.DailySumQuery, error) {
	if m.watchFn != nil {
		return m.watchFn(ctx, dt, start)
	}
	return newFakeQuery(), nil
}

func (m *mockHealthRepo) SumQuantity(ctx context.Context, dt domain.DataType, start, end time.Time) (*domain.Quantity, error) {
	if m.sumFn != nil {
		return m.sumFn(ctx, dt, start, end)
	}
	return nil, nil
}

func (m *mockHealthRepo) Save(ctx context.Context, s domain.Sample) error {
	m.mu.Lock()
	m.saved = append(m.saved, s)
	m.mu.Unlock()
	if m.saveFn != nil {
		return m.saveFn(ctx, s)
	}
	return nil
}

func (m *mockHealthRepo) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// fakeQuery is a DailySumQuery fed by the test.
type fakeQuery struct {
	ch    chan domain.DailySumBatch
	stops atomic.Int32
}

func newFakeQuery() *fakeQuery {
	return &fakeQuery{ch: make(chan domain.DailySumBatch, 8)}
}

func (q *fakeQuery) Results() <-chan domain.DailySumBatch { return q.ch }

func (q *fakeQuery) Stop() { q.stops.Add(1) }

func (q *fakeQuery) deliver(sums ...domain.DailySum) {
	q.ch <- domain.DailySumBatch{Sums: sums}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publication")
	}
	var zero T
	return zero
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ml(v float64) domain.Quantity { return domain.NewQuantity(v, domain.Milliliter) }
