// Package urlcheck holds the pieces of URL validation that do not depend on
// the session: the debouncer used for validation while the user types.
package urlcheck

import (
	"sync"
	"time"

	"github.com/bep/debounce"
)

// DefaultDelay is the quiet period before an auto-validation fires
const DefaultDelay = 1000 * time.Millisecond

// Debouncer delays fn until no new value arrived for the configured delay,
// then calls it once with the last value.
type Debouncer[T any] struct {
	debounced func(func())
	fn        func(T)

	mu    sync.Mutex
	epoch uint64
}

// NewDebouncer creates a debouncer for fn; delay <= 0 uses DefaultDelay
func NewDebouncer[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[T]{
		debounced: debounce.New(delay),
		fn:        fn,
	}
}

// Call records v as the latest value and restarts the quiet period
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	epoch := d.epoch
	d.mu.Unlock()

	d.debounced(func() {
		d.mu.Lock()
		stale := epoch != d.epoch
		d.mu.Unlock()
		if !stale {
			d.fn(v)
		}
	})
}

// Cancel drops a pending call; later calls debounce as usual
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	d.epoch++
	d.mu.Unlock()
}
