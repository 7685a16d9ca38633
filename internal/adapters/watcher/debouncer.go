// Package watcher turns file system changes into debounced rebuild triggers.
package watcher

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// DefaultDebounceWindow is the quiet period after the last change before a rebuild.
const DefaultDebounceWindow = 200 * time.Millisecond

// Debouncer coalesces bursts of changed paths into one batch.
//
// Ready receives a value once the window has passed without a new Add.
// Paths added while the consumer is busy accumulate until the next Take.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	ready   chan struct{}
}

// NewDebouncer creates a Debouncer. A non-positive window selects DefaultDebounceWindow.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window:  window,
		pending: make(map[string]struct{}),
		ready:   make(chan struct{}, 1),
	}
}

// Add records path and restarts the quiet period.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[path] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	n := len(d.pending)
	d.mu.Unlock()

	if n == 0 {
		return
	}
	select {
	case d.ready <- struct{}{}:
	default:
	}
}

// Ready signals that a batch can be taken.
func (d *Debouncer) Ready() <-chan struct{} {
	return d.ready
}

// Take returns the pending paths in lexicographic order and clears them.
func (d *Debouncer) Take() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	paths := slices.Sorted(maps.Keys(d.pending))
	clear(d.pending)
	return paths
}

// Flush cancels the quiet period and returns everything pending.
func (d *Debouncer) Flush() []string {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	return d.Take()
}
