// Package dedupe suppresses repeat alerts for the same natural key inside a
// time window.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Deduper records alert keys to suppress repeats within a window.
type Deduper interface {
	// SeenAndRecord atomically checks if key was recorded inside the window
	// and records it if not. Returns true if the key should be suppressed.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the next alert for it goes out again. Used
	// when an alert was recorded but its hand-off failed.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// entry is one recorded key and when it stops suppressing.
type entry struct {
	key     string
	expires time.Time
}

// inMemoryDeduper keeps keys in insertion order so the oldest can be evicted
// in O(1) once maxSize is reached. Expired keys are dropped lazily.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = oldest
	maxSize int        // 0 or negative = unbounded
	window  time.Duration
	now     func() time.Time
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
		window:  time.Hour,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

// SeenAndRecord implements Deduper. A key seen after its window has passed
// counts as new and starts a fresh window.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)

	if el, ok := d.seen[key]; ok {
		if now.Before(el.Value.(*entry).expires) {
			return true
		}
		d.remove(el)
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.remove(d.order.Front())
	}
	d.seen[key] = d.order.PushBack(&entry{key: key, expires: now.Add(d.window)})
	d.size.Add(1)
	return false
}

// Unrecord implements Deduper.
func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[key]; ok {
		d.remove(el)
	}
}

// expire drops entries from the front while they are past their window.
// Windows are uniform, so insertion order is expiry order.
// Must be called with d.mu held.
func (d *inMemoryDeduper) expire(now time.Time) {
	for el := d.order.Front(); el != nil; el = d.order.Front() {
		if now.Before(el.Value.(*entry).expires) {
			return
		}
		d.remove(el)
	}
}

// Must be called with d.mu held.
func (d *inMemoryDeduper) remove(el *list.Element) {
	if el == nil {
		return
	}
	delete(d.seen, el.Value.(*entry).key)
	d.order.Remove(el)
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
