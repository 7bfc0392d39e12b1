package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/ports"
)

// txEnv carries the collaborators a transaction needs while it runs.
type txEnv struct {
	store    ports.MessageStore
	transfer ports.Transfer
	logger   ports.Logger
	clock    clock.Clock
}

// Transaction is one unit of scheduled network work.
//
// A transaction is owned by the dispatcher's registry from admission until
// its completion event has been handled. Only the state, settings and
// result fields are touched from the transaction's own goroutine.
type Transaction struct {
	id     string
	kind   domain.Kind
	target string
	work   work
	env    txEnv

	// overridden is set when the request carried its own settings.
	overridden bool

	mu         sync.Mutex
	state      domain.TxState
	settings   domain.ConnectionSettings
	sink       func(*Transaction)
	locator    string
	err        error
	finishedAt time.Time
	done       chan struct{}
}

func newTransaction(id string, kind domain.Kind, target string, w work, env txEnv) *Transaction {
	return &Transaction{
		id:     id,
		kind:   kind,
		target: target,
		work:   w,
		env:    env,
		state:  domain.TxInitialized,
		done:   make(chan struct{}),
	}
}

// ID returns the correlation token.
func (t *Transaction) ID() string { return t.id }

// Kind returns the transaction kind.
func (t *Transaction) Kind() domain.Kind { return t.kind }

// Target returns the locator the transaction acts on.
func (t *Transaction) Target() string { return t.target }

// Key returns the equivalence key.
func (t *Transaction) Key() domain.Key {
	return domain.Key{Kind: t.kind, Target: t.target}
}

// IsEquivalent reports whether other refers to the same logical work.
func (t *Transaction) IsEquivalent(other *Transaction) bool {
	if other == nil {
		return false
	}
	return t.Key() == other.Key()
}

// State returns the current state.
func (t *Transaction) State() domain.TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Settings returns the connection settings the transaction will use.
func (t *Transaction) Settings() domain.ConnectionSettings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

// SetSettings replaces the connection settings. Ignored once processing began.
func (t *Transaction) SetSettings(s domain.ConnectionSettings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.TxInitialized {
		return
	}
	t.settings = s
}

// adopt installs settings resolved at dispatch time unless the request
// brought its own.
func (t *Transaction) adopt(s domain.ConnectionSettings) {
	if t.overridden || s.Empty() {
		return
	}
	t.SetSettings(s)
}

// Attach registers the completion sink. The sink is called exactly once,
// from the transaction's goroutine, when a terminal state is reached.
func (t *Transaction) Attach(sink func(*Transaction)) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

// Detach drops the completion sink.
func (t *Transaction) Detach() {
	t.mu.Lock()
	t.sink = nil
	t.mu.Unlock()
}

// Attached reports whether a sink is registered.
func (t *Transaction) Attached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sink != nil
}

// Process starts asynchronous execution and returns immediately.
// It fails with domain.ErrTransactionStart when the transaction was already
// started or has no usable endpoint.
func (t *Transaction) Process(ctx context.Context) error {
	t.mu.Lock()
	if t.state != domain.TxInitialized {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", domain.ErrTransactionStart, t.id, state)
	}
	if t.settings.Empty() {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s has no usable endpoint", domain.ErrTransactionStart, t.id)
	}
	t.state = domain.TxProcessing
	settings := t.settings
	t.mu.Unlock()

	go t.run(ctx, settings)
	return nil
}

func (t *Transaction) run(ctx context.Context, settings domain.ConnectionSettings) {
	var (
		locator string
		err     error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", domain.ErrUnexpectedFault, r)
				t.env.logger.Error("transaction panicked",
					ports.String("id", t.id),
					ports.String("stack", string(debug.Stack())),
				)
			}
		}()
		locator, err = t.work.run(ctx, t.env, settings)
	}()

	if err != nil {
		t.env.logger.Warn("transaction failed",
			ports.String("id", t.id),
			ports.String("kind", t.kind.String()),
			ports.String("target", t.target),
			ports.Err(err),
		)
		if markErr := t.work.fail(ctx, t.env, domain.ClassifyError(err)); markErr != nil {
			t.env.logger.Warn("failed to record failure",
				ports.String("id", t.id),
				ports.Err(markErr),
			)
		}
	}
	t.finish(locator, err)
}

func (t *Transaction) finish(locator string, err error) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	if err != nil {
		t.state = domain.TxFailed
	} else {
		t.state = domain.TxSuccess
		t.locator = locator
	}
	t.err = err
	t.finishedAt = t.env.clock.Now()
	sink := t.sink
	t.mu.Unlock()

	close(t.done)
	if sink != nil {
		sink(t)
	}
}

// abandon records why a transaction that never ran was dropped.
func (t *Transaction) abandon(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == domain.TxInitialized && t.err == nil {
		t.err = err
	}
}

// Done is closed once the transaction reaches a terminal state.
func (t *Transaction) Done() <-chan struct{} {
	return t.done
}

// Result returns the locator and error of a finished transaction.
func (t *Transaction) Result() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locator, t.err
}

// Completion builds the completion event for the transaction.
// Transactions that never reached a terminal state report FinalUnknown.
func (t *Transaction) Completion(now time.Time) domain.Completion {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := domain.Completion{
		ID:            t.id,
		Kind:          t.kind,
		Target:        t.target,
		State:         domain.FinalStateOf(t.state),
		ResultLocator: t.locator,
		FinishedAt:    t.finishedAt,
	}
	if t.err != nil {
		c.Error = t.err.Error()
	}
	if c.FinishedAt.IsZero() {
		c.FinishedAt = now
	}
	return c
}
