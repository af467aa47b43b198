// Package observe provides a small publish/subscribe container for state that
// is read by a presentation layer.
package observe

import "sync"

// Observable is the read side of a Value.
type Observable[T any] interface {
	Get() T
	Subscribe() (<-chan T, func())
}

// Value holds the current state and notifies subscribers on every Set.
//
// Set replaces the value and notifies under a single lock, so observers never
// see a partial update and publications reach each subscriber in order. A
// subscriber channel buffers one value; a slow subscriber skips to the latest.
type Value[T any] struct {
	mu     sync.Mutex
	cur    T
	nextID int
	subs   map[int]chan T
}

// NewValue returns a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, subs: make(map[int]chan T)}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set publishes x to all subscribers.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = x
	for _, ch := range v.subs {
		select {
		case <-ch:
		default:
		}
		ch <- x
	}
}

// Subscribe returns a channel receiving every subsequent publication and a
// function that unsubscribes and closes the channel. The current value is not
// replayed; use Get for that.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	ch := make(chan T, 1)
	v.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subs, id)
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}
