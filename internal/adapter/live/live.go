// Package live fans repository changes out to open-ended per-day sum queries.
package live

import (
	"context"
	"sync"
	"time"

	"hydration/internal/domain"
)

// FetchFunc computes the per-day sums of dt from start until now.
type FetchFunc func(ctx context.Context, dt domain.DataType, start time.Time) ([]domain.DailySum, error)

// Hub tracks live queries and re-runs them when data changes.
type Hub struct {
	fetch FetchFunc

	// notifyMu serializes recompute+deliver so each query sees batches in
	// the order changes were notified.
	notifyMu sync.Mutex

	mu      sync.Mutex
	nextID  int
	queries map[int]*Query
}

// NewHub returns a Hub that computes results with fetch.
func NewHub(fetch FetchFunc) *Hub {
	return &Hub{fetch: fetch, queries: make(map[int]*Query)}
}

// Watch registers a live query and delivers its initial results. The query is
// unregistered on Stop or when ctx is done.
func (h *Hub) Watch(ctx context.Context, dt domain.DataType, start time.Time) *Query {
	q := &Query{
		hub:      h,
		dataType: dt,
		start:    start,
		ch:       make(chan domain.DailySumBatch, 1),
		done:     make(chan struct{}),
	}

	h.notifyMu.Lock()
	h.mu.Lock()
	q.id = h.nextID
	h.nextID++
	h.queries[q.id] = q
	h.mu.Unlock()
	q.deliver(h.run(ctx, q))
	h.notifyMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			q.Stop()
		case <-q.done:
		}
	}()
	return q
}

// Notify re-runs every live query for dt and delivers the new results.
func (h *Hub) Notify(ctx context.Context, dt domain.DataType) {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	targets := make([]*Query, 0, len(h.queries))
	for _, q := range h.queries {
		if q.dataType == dt {
			targets = append(targets, q)
		}
	}
	h.mu.Unlock()

	for _, q := range targets {
		q.deliver(h.run(ctx, q))
	}
}

// Active returns the number of registered queries.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queries)
}

// Close stops every registered query.
func (h *Hub) Close() {
	h.mu.Lock()
	all := make([]*Query, 0, len(h.queries))
	for _, q := range h.queries {
		all = append(all, q)
	}
	h.mu.Unlock()
	for _, q := range all {
		q.Stop()
	}
}

func (h *Hub) run(ctx context.Context, q *Query) domain.DailySumBatch {
	sums, err := h.fetch(ctx, q.dataType, q.start)
	return domain.DailySumBatch{Sums: sums, Err: err}
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.queries, id)
}

// Query is a live query registered with a Hub. It implements
// domain.DailySumQuery.
type Query struct {
	hub      *Hub
	id       int
	dataType domain.DataType
	start    time.Time

	mu     sync.Mutex
	ch     chan domain.DailySumBatch
	closed bool
	done   chan struct{}
}

var _ domain.DailySumQuery = (*Query)(nil)

// Results delivers the latest batch. A reader that falls behind receives only
// the most recent one.
func (q *Query) Results() <-chan domain.DailySumBatch { return q.ch }

// Stop unregisters the query and closes Results. It is safe to call more
// than once.
func (q *Query) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	close(q.done)
	q.mu.Unlock()

	q.hub.remove(q.id)
}

func (q *Query) deliver(b domain.DailySumBatch) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case <-q.ch:
	default:
	}
	q.ch <- b
}
