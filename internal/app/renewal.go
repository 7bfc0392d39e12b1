package app

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultRenewalInterval is how long the lease is trusted before the network
// request is re-asserted.
const DefaultRenewalInterval = 30 * time.Second

// RenewalTimer is a single-shot timer that is re-armed explicitly.
// Each arming gets a generation so a fire racing a Cancel can be told apart.
type RenewalTimer struct {
	clock    clock.Clock
	interval time.Duration
	fire     func(gen uint64)

	mu    sync.Mutex
	timer *clock.Timer
	gen   uint64
	armed bool
}

// NewRenewalTimer creates a disarmed timer that calls fire on expiry.
func NewRenewalTimer(clk clock.Clock, interval time.Duration, fire func(gen uint64)) *RenewalTimer {
	if interval <= 0 {
		interval = DefaultRenewalInterval
	}
	return &RenewalTimer{
		clock:    clk,
		interval: interval,
		fire:     fire,
	}
}

// Arm (re)schedules the timer one interval from now.
func (t *RenewalTimer) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.armed = true
	t.timer = t.clock.AfterFunc(t.interval, func() {
		t.mu.Lock()
		if gen != t.gen || !t.armed {
			t.mu.Unlock()
			return
		}
		t.armed = false
		t.mu.Unlock()
		t.fire(gen)
	})
}

// Cancel stops the timer. Safe to call when disarmed.
func (t *RenewalTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
	t.gen++
}

// Armed reports whether the timer is scheduled.
func (t *RenewalTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Current reports whether gen is the latest arming.
func (t *RenewalTimer) Current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen == t.gen
}

// Interval returns the renewal interval.
func (t *RenewalTimer) Interval() time.Duration {
	return t.interval
}
