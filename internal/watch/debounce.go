package watch

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period after the last change before a sync fires.
const DefaultDelay = 500 * time.Millisecond

// Debouncer coalesces bursts of triggers into one callback invocation.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
	gen      uint64
	stopped  bool
}

// NewDebouncer returns a Debouncer firing delay after the last Trigger.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay}
}

// Trigger schedules callback to run after the debounce delay, replacing any
// pending invocation. It is a no-op after Stop.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.callback = callback
	d.gen++
	gen := d.gen

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// a newer Trigger or a Stop superseded this timer
		if d.stopped || gen != d.gen {
			d.mu.Unlock()
			return
		}
		cb := d.callback
		d.callback = nil
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}

// Pending reports whether an invocation is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callback != nil && !d.stopped
}

// Stop cancels any pending invocation and disables the Debouncer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.callback = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
