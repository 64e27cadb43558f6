// Package viewstate holds the observable state behind each screen of the app:
// history, settings, generation and scanning.
package viewstate

import (
	"context"
	"sync"
)

// Value is an observable cell. Subscribers receive the current value first and
// afterwards only the latest value; intermediate values may be skipped.
type Value[T any] struct {
	mu    sync.RWMutex
	value T
	subs  map[chan T]struct{}
}

// NewValue creates a cell holding initial
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{value: initial, subs: make(map[chan T]struct{})}
}

// Get returns the current value
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set stores x and notifies subscribers
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.value = x
	for ch := range v.subs {
		offerLatest(ch, x)
	}
}

// Update applies fn to the current value atomically and returns the result
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.value = fn(v.value)
	for ch := range v.subs {
		offerLatest(ch, v.value)
	}
	return v.value
}

// Subscribe streams the value until ctx ends, then closes the channel
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	v.mu.Lock()
	ch <- v.value
	v.subs[ch] = struct{}{}
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		v.mu.Lock()
		delete(v.subs, ch)
		close(ch)
		v.mu.Unlock()
	}()

	return ch
}

// offerLatest replaces whatever the subscriber has not read yet with x.
// Callers hold the write lock, so no other sender competes for the slot.
func offerLatest[T any](ch chan T, x T) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- x:
	default:
	}
}
