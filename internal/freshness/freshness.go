// Package freshness provides a timestamped single-value cell shared
// between background watchers (writers) and the probe loop (reader).
// Readers decide for themselves how stale a value they will accept.
package freshness

import (
	"sync"
	"time"
)

// Value holds the most recent observation of type T together with the
// time it was written. A Value starts empty and becomes empty again
// after Invalidate, so readers never act on data the writer has
// disowned, regardless of its age.
type Value[T any] struct {
	mu        sync.RWMutex
	val       T
	present   bool
	updatedAt time.Time

	now func() time.Time
}

func New[T any]() *Value[T] {
	return &Value[T]{now: time.Now}
}

// Write stores val and stamps it with the current time.
func (v *Value[T]) Write(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.val = val
	v.present = true
	v.updatedAt = v.now()
}

// Invalidate discards the stored value. Subsequent reads report absent
// until the next Write.
func (v *Value[T]) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	var zero T
	v.val = zero
	v.present = false
	v.updatedAt = time.Time{}
}

// Read returns the stored value, whether one is present, and its age.
// Age is zero when no value is present.
func (v *Value[T]) Read() (T, bool, time.Duration) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.present {
		var zero T
		return zero, false, 0
	}
	return v.val, true, v.now().Sub(v.updatedAt)
}

// Snapshot returns the stored value only when it is present and
// strictly younger than maxAge.
func (v *Value[T]) Snapshot(maxAge time.Duration) (T, bool) {
	val, ok, age := v.Read()
	if !ok || age >= maxAge {
		var zero T
		return zero, false
	}
	return val, true
}
