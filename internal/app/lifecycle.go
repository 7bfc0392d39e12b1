package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/ports"
)

// ShutdownTimeout is the maximum time to wait for in-flight transactions.
const ShutdownTimeout = 30 * time.Second

// State is the lifecycle state of a gateway.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

var stateNames = [...]string{
	StateStopped:  "Stopped",
	StateStarting: "Starting",
	StateRunning:  "Running",
	StateStopping: "Stopping",
	StateCrashed:  "Crashed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventEmitter observes lifecycle changes. It is called outside the lock.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle is the gateway state machine. It also tracks named background
// workers so shutdown can wait for them and report stragglers.
type Lifecycle struct {
	logger  ports.Logger
	emitter EventEmitter

	mu      sync.RWMutex
	state   State
	cancel  context.CancelFunc
	workers map[string]int
	wg      sync.WaitGroup
}

func NewLifecycle(logger ports.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		logger:  logger,
		emitter: emitter,
		state:   StateStopped,
		workers: make(map[string]int),
	}
}

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo moves to next. Leaving Stopped or Crashed for anything but
// Starting yields ErrNotRunning; any other illegal move yields ErrAlreadyRunning.
func (l *Lifecycle) TransitionTo(next State, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !allowed(prev, next) {
		l.mu.Unlock()
		if prev == StateStopped || prev == StateCrashed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = next
	l.mu.Unlock()

	if l.emitter != nil {
		l.emitter.OnStateChange(prev, next, reason)
	}
	l.logger.Info("gateway state changed",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
	return nil
}

// CanStart reports whether the gateway is idle.
func (l *Lifecycle) CanStart() bool {
	s := l.State()
	return s == StateStopped || s == StateCrashed
}

// CanStop reports whether the gateway is starting or running.
func (l *Lifecycle) CanStop() bool {
	s := l.State()
	return s == StateRunning || s == StateStarting
}

// SetCancel stores the func that cancels the run context.
func (l *Lifecycle) SetCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
}

// Cancel cancels the run context, if one was set.
func (l *Lifecycle) Cancel() {
	l.mu.RLock()
	cancel := l.cancel
	l.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Go runs fn as a tracked worker. A panic in fn is logged and moves the
// lifecycle to Crashed.
func (l *Lifecycle) Go(name string, fn func()) {
	l.mu.Lock()
	l.workers[name]++
	l.mu.Unlock()
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		defer l.finish(name)
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("worker panicked",
					ports.String("worker", name),
					ports.Any("panic", r),
				)
				_ = l.TransitionTo(StateCrashed, fmt.Sprintf("%s panicked", name))
			}
		}()
		fn()
	}()
}

func (l *Lifecycle) finish(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers[name]--; l.workers[name] <= 0 {
		delete(l.workers, name)
	}
}

// Workers returns the names of running workers, sorted.
func (l *Lifecycle) Workers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.workers))
	for name := range l.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WaitWithTimeout waits for every worker. On timeout it logs the workers
// still running and returns ErrShutdownTimeout.
func (l *Lifecycle) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		l.logger.Warn("workers still running at shutdown",
			ports.Duration("timeout", timeout),
			ports.Any("workers", l.Workers()),
		)
		return domain.ErrShutdownTimeout
	}
}
