package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/ports"
)

// DispatcherConfig contains configuration for the scheduler loop.
type DispatcherConfig struct {
	NetworkKind     ports.NetworkKind
	Feature         string
	RenewalInterval time.Duration
	// DeferDownloads makes Notify store the notification instead of
	// downloading the message.
	DeferDownloads bool
}

// Dependencies are the collaborators of the scheduler. Provider, Guard,
// Store, Transfer and Logger are required.
type Dependencies struct {
	Provider ports.ConnectivityProvider
	Guard    ports.ResourceGuard
	Store    ports.MessageStore
	Transfer ports.Transfer
	Retry    ports.RetryArmer
	Advisor  ports.Advisor
	Observer ports.CompletionObserver
	Recorder Recorder
	Logger   ports.Logger
	Clock    clock.Clock
}

// Recorder receives scheduler measurements.
type Recorder interface {
	Admitted(kind domain.Kind, outcome string)
	Completed(c domain.Completion)
	QueueDepth(pending, processing int)
	Lease(state LeaseState)
	Renewed(result string)
}

type nopRecorder struct{}

func (nopRecorder) Admitted(domain.Kind, string) {}
func (nopRecorder) Completed(domain.Completion)  {}
func (nopRecorder) QueueDepth(int, int)          {}
func (nopRecorder) Lease(LeaseState)             {}
func (nopRecorder) Renewed(string)               {}

// Snapshot is a point-in-time view of the scheduler.
type Snapshot struct {
	Lease        LeaseState
	Pending      []domain.Key
	Processing   []domain.Key
	RenewalArmed bool
	GuardHeld    bool
}

// Outstanding reports whether any work is queued or running.
func (s Snapshot) Outstanding() bool {
	return len(s.Pending) > 0 || len(s.Processing) > 0
}

type event interface {
	eventName() string
}

type submitResult struct {
	admission Admission
	err       error
}

type submitEvent struct {
	req   domain.Request
	reply chan submitResult
}

type networkEvent struct{ info ports.NetworkInfo }

type renewalEvent struct{ gen uint64 }

type completionEvent struct{ tx *Transaction }

type snapshotEvent struct{ reply chan Snapshot }

type quitEvent struct{}

func (submitEvent) eventName() string     { return "submit" }
func (networkEvent) eventName() string    { return "network" }
func (renewalEvent) eventName() string    { return "renewal" }
func (completionEvent) eventName() string { return "completion" }
func (snapshotEvent) eventName() string   { return "snapshot" }
func (quitEvent) eventName() string       { return "quit" }

// Dispatcher serializes every state-mutating event on one goroutine.
// The registry, the gate and the renewal timer are only touched from Run.
type Dispatcher struct {
	cfg      DispatcherConfig
	provider ports.ConnectivityProvider
	retry    ports.RetryArmer
	advisor  ports.Advisor
	observer ports.CompletionObserver
	recorder Recorder
	logger   ports.Logger
	clock    clock.Clock
	env      txEnv

	registry *Registry
	gate     *Gate
	timer    *RenewalTimer
	box      *mailbox

	// current is the transaction being admitted. popped is set when it
	// came off the pending queue rather than from a submitter.
	current *Transaction
	popped  bool
	txCtx   context.Context

	inflight sync.WaitGroup
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher. Call Run to start processing events.
func NewDispatcher(cfg DispatcherConfig, deps Dependencies) *Dispatcher {
	if cfg.NetworkKind == "" {
		cfg.NetworkKind = ports.NetworkMobile
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	d := &Dispatcher{
		cfg:      cfg,
		provider: deps.Provider,
		retry:    deps.Retry,
		advisor:  deps.Advisor,
		observer: deps.Observer,
		recorder: recorder,
		logger:   deps.Logger,
		clock:    clk,
		env: txEnv{
			store:    deps.Store,
			transfer: deps.Transfer,
			logger:   deps.Logger,
			clock:    clk,
		},
		registry: NewRegistry(),
		box:      newMailbox(),
		txCtx:    context.Background(),
		stopped:  make(chan struct{}),
	}
	d.timer = NewRenewalTimer(clk, cfg.RenewalInterval, func(gen uint64) {
		d.box.post(renewalEvent{gen: gen})
	})
	d.gate = NewGate(deps.Provider, deps.Guard, cfg.NetworkKind, cfg.Feature, d.timer, deps.Logger)
	return d
}

// Run processes events until Quit is called or ctx is canceled.
// In-flight transactions are not canceled when Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.stopOnce.Do(func() { close(d.stopped) })
	d.txCtx = context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			d.onQuit()
			d.box.close()
			return ctx.Err()
		case <-d.box.signal:
		}

		batch := d.box.drain()
		for i, ev := range batch {
			if d.dispatch(ctx, ev) {
				if n := len(batch) - i - 1 + len(d.box.close()); n > 0 {
					d.logger.Debug("dropping events after quit", ports.Int("count", n))
				}
				return nil
			}
		}
	}
}

// Submit hands a request to the loop and waits for the admission outcome.
func (d *Dispatcher) Submit(ctx context.Context, req domain.Request) (Admission, error) {
	reply := make(chan submitResult, 1)
	if !d.box.post(submitEvent{req: req, reply: reply}) {
		return AdmissionRejected, domain.ErrDispatcherStopped
	}
	select {
	case r := <-reply:
		return r.admission, r.err
	case <-d.stopped:
		select {
		case r := <-reply:
			return r.admission, r.err
		default:
			return AdmissionRejected, domain.ErrDispatcherStopped
		}
	case <-ctx.Done():
		return AdmissionRejected, ctx.Err()
	}
}

// NetworkStateChanged posts a connectivity notification.
func (d *Dispatcher) NetworkStateChanged(info ports.NetworkInfo) error {
	if !d.box.post(networkEvent{info: info}) {
		return domain.ErrDispatcherStopped
	}
	return nil
}

// Snapshot returns the current scheduler state as seen by the loop.
func (d *Dispatcher) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !d.box.post(snapshotEvent{reply: reply}) {
		return Snapshot{}, domain.ErrDispatcherStopped
	}
	select {
	case s := <-reply:
		return s, nil
	case <-d.stopped:
		return Snapshot{}, domain.ErrDispatcherStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Quit asks the loop to stop after the events already queued before it.
func (d *Dispatcher) Quit() {
	d.box.post(quitEvent{})
}

// Done is closed when Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.stopped
}

// WaitInflight waits for started transactions to reach a terminal state.
func (d *Dispatcher) WaitInflight(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return domain.ErrShutdownTimeout
	}
}

// Release tears the lease down after Run has returned.
func (d *Dispatcher) Release(ctx context.Context) error {
	select {
	case <-d.stopped:
	default:
		return fmt.Errorf("release while dispatcher is running: %w", domain.ErrAlreadyRunning)
	}
	return d.gate.End(ctx)
}

// dispatch handles one event. A panic in a handler is logged and treated as
// a failure of the transaction involved; the loop keeps running.
func (d *Dispatcher) dispatch(ctx context.Context, ev event) (quit bool) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", domain.ErrUnexpectedFault, r)
			d.logger.Error("event handler fault",
				ports.String("event", ev.eventName()),
				ports.Err(err),
				ports.String("stack", string(debug.Stack())),
			)
			d.fault(ctx, ev, err)
			quit = false
		}
		d.recorder.QueueDepth(d.registry.PendingLen(), d.registry.ProcessingLen())
		d.recorder.Lease(d.gate.State())
	}()

	switch e := ev.(type) {
	case submitEvent:
		a, err := d.onSubmit(ctx, e.req)
		e.reply <- submitResult{admission: a, err: err}
	case networkEvent:
		d.onNetworkStateChanged(ctx, e.info)
	case renewalEvent:
		d.onRenewalTick(ctx, e.gen)
	case completionEvent:
		d.onTransactionComplete(ctx, e.tx)
	case snapshotEvent:
		e.reply <- d.snapshot()
	case quitEvent:
		d.onQuit()
		return true
	default:
		d.logger.Warn("unknown event", ports.String("event", ev.eventName()))
	}
	return false
}

func (d *Dispatcher) fault(ctx context.Context, ev event, err error) {
	if tx := d.current; tx != nil {
		popped := d.popped
		d.current, d.popped = nil, false
		queued := d.registry.RemovePending(tx) || d.registry.RemoveProcessing(tx)
		tx.Detach()
		tx.abandon(err)
		// A submitter hears about the fault through its reply unless the
		// transaction was already queued; a popped one has nobody else.
		if queued || popped {
			d.emit(tx)
		}
	}

	switch e := ev.(type) {
	case submitEvent:
		select {
		case e.reply <- submitResult{admission: AdmissionRejected, err: err}:
		default:
		}
	case completionEvent:
		d.registry.RemoveProcessing(e.tx)
	case snapshotEvent:
		select {
		case e.reply <- Snapshot{}:
		default:
		}
	}
	d.settle(ctx)
}

func (d *Dispatcher) onSubmit(ctx context.Context, req domain.Request) (Admission, error) {
	tx, err := d.newTransaction(req)
	if err != nil {
		d.logger.Warn("discarding malformed request",
			ports.String("kind", req.Kind.String()),
			ports.String("target", req.Target),
			ports.Err(err),
		)
		d.recorder.Admitted(req.Kind, "malformed")
		return AdmissionRejected, err
	}

	// current is cleared explicitly, not deferred, so fault can still see it.
	d.current = tx
	a, err := d.admit(ctx, tx, false)
	d.current = nil
	switch {
	case errors.Is(err, domain.ErrConnectivityUnavailable):
		d.logger.Warn("connectivity unavailable, request not queued",
			ports.String("id", tx.ID()),
			ports.String("kind", tx.Kind().String()),
			ports.Err(err),
		)
		d.advise(tx.Kind())
		d.recorder.Admitted(tx.Kind(), "unavailable")
	case err != nil:
		d.recorder.Admitted(tx.Kind(), "start-failure")
	default:
		d.logger.Info("transaction admitted",
			ports.String("id", tx.ID()),
			ports.String("key", tx.Key().String()),
			ports.String("admission", a.String()),
		)
		d.recorder.Admitted(tx.Kind(), a.String())
	}
	return a, err
}

func (d *Dispatcher) newTransaction(req domain.Request) (*Transaction, error) {
	target, err := req.ResolveTarget()
	if err != nil {
		return nil, err
	}
	w, err := newWork(req, target, d.cfg.DeferDownloads)
	if err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	tx := newTransaction(id, req.Kind, target, w, d.env)
	if req.Override != nil && !req.Override.Empty() {
		tx.settings = *req.Override
		tx.overridden = true
	} else {
		tx.settings = d.provider.Settings(d.cfg.NetworkKind)
	}
	return tx, nil
}

// admit is the dedup-then-gate admission algorithm. popped transactions
// that are deferred again go back to the head of pending.
func (d *Dispatcher) admit(ctx context.Context, tx *Transaction, popped bool) (Admission, error) {
	if existing := d.registry.FindEquivalent(tx); existing != nil {
		d.logger.Debug("equivalent transaction already queued",
			ports.String("id", tx.ID()),
			ports.String("existing", existing.ID()),
			ports.String("key", tx.Key().String()),
		)
		return AdmissionAlreadyHandled, nil
	}

	res, err := d.gate.Begin(ctx)
	if err != nil {
		return AdmissionRejected, err
	}

	switch res {
	case ports.FeatureRequestStarted:
		if popped {
			d.registry.RequeueFront(tx)
		} else {
			d.registry.PushPending(tx)
		}
		return AdmissionDeferred, nil
	case ports.FeatureAlreadyActive:
		if err := d.start(ctx, tx); err != nil {
			return AdmissionRejected, err
		}
		return AdmissionStarted, nil
	}
	return AdmissionRejected, fmt.Errorf("%w: unexpected feature result %d", domain.ErrConnectivityUnavailable, res)
}

func (d *Dispatcher) start(ctx context.Context, tx *Transaction) error {
	d.registry.AddProcessing(tx)
	if !d.timer.Armed() {
		d.timer.Arm()
	}
	tx.Attach(d.onTransactionDone)

	if err := tx.Process(d.txCtx); err != nil {
		d.registry.RemoveProcessing(tx)
		tx.Detach()
		tx.abandon(err)
		d.logger.Warn("transaction failed to start",
			ports.String("id", tx.ID()),
			ports.String("kind", tx.Kind().String()),
			ports.Err(err),
		)
		d.advise(tx.Kind())
		d.emit(tx)
		d.settle(ctx)
		return err
	}

	d.inflight.Add(1)
	go func() {
		<-tx.Done()
		d.inflight.Done()
	}()
	return nil
}

// onTransactionDone runs on the transaction's goroutine.
func (d *Dispatcher) onTransactionDone(tx *Transaction) {
	if !d.box.post(completionEvent{tx: tx}) {
		d.logger.Debug("completion after dispatcher stopped", ports.String("id", tx.ID()))
	}
}

func (d *Dispatcher) onTransactionComplete(ctx context.Context, tx *Transaction) {
	defer tx.Detach()

	if !d.registry.RemoveProcessing(tx) {
		d.logger.Warn("completion for unknown transaction", ports.String("id", tx.ID()))
		return
	}
	defer d.emit(tx)

	if next := d.registry.PopPending(); next != nil {
		d.admitNext(ctx, next, tx.Settings())
	}
	d.settle(ctx)
}

func (d *Dispatcher) admitNext(ctx context.Context, next *Transaction, settings domain.ConnectionSettings) {
	next.adopt(settings)
	d.current, d.popped = next, true
	a, err := d.admit(ctx, next, true)
	d.current, d.popped = nil, false
	switch {
	case errors.Is(err, domain.ErrConnectivityUnavailable):
		d.logger.Warn("connectivity unavailable, dropping pending transaction",
			ports.String("id", next.ID()),
			ports.Err(err),
		)
		next.abandon(err)
		d.advise(next.Kind())
		d.emit(next)
	case err != nil:
		// start already reported the failure
	default:
		d.logger.Debug("pending transaction admitted",
			ports.String("id", next.ID()),
			ports.String("admission", a.String()),
		)
	}
}

func (d *Dispatcher) onNetworkStateChanged(ctx context.Context, info ports.NetworkInfo) {
	if info.Kind != d.cfg.NetworkKind || !info.Connected {
		d.logger.Debug("ignoring network change",
			ports.String("network", string(info.Kind)),
			ports.Bool("connected", info.Connected),
		)
		return
	}
	if d.gate.State() == LeaseInactive {
		return
	}

	settings := info.Settings
	if settings.Empty() {
		settings = d.provider.Settings(d.cfg.NetworkKind)
	}
	if settings.Empty() {
		d.logger.Warn("network connected without a usable endpoint",
			ports.String("interface", info.Interface),
		)
		return
	}

	d.gate.MarkActive()
	d.logger.Info("connectivity active",
		ports.String("interface", info.Interface),
		ports.String("endpoint", settings.EndpointURL),
	)

	if next := d.registry.PopPending(); next != nil {
		d.admitNext(ctx, next, settings)
	}
	d.settle(ctx)
}

func (d *Dispatcher) onRenewalTick(ctx context.Context, gen uint64) {
	if !d.timer.Current(gen) || d.registry.ProcessingLen() == 0 {
		return
	}

	res, err := d.gate.Renew(ctx)
	if err != nil {
		d.logger.Warn("lease renewal failed", ports.Err(err))
		d.recorder.Renewed("error")
		return
	}
	d.recorder.Renewed(res.String())

	if res == ports.FeatureAlreadyActive {
		d.timer.Arm()
		return
	}
	d.logger.Info("lease not yet active, renewal not re-armed",
		ports.String("result", res.String()),
	)
}

// onQuit drops pending transactions with an Unknown completion. Their
// persisted messages stay pending for the next scan.
func (d *Dispatcher) onQuit() {
	if n := d.registry.PendingLen(); n > 0 {
		d.logger.Warn("shutting down with pending transactions",
			ports.Int("pending", n),
			ports.Any("keys", d.registry.PendingKeys()),
		)
		for tx := d.registry.PopPending(); tx != nil; tx = d.registry.PopPending() {
			tx.abandon(domain.ErrDispatcherStopped)
			d.emit(tx)
		}
	}
	if n := d.registry.ProcessingLen(); n > 0 {
		d.logger.Info("transactions still in flight at shutdown", ports.Int("processing", n))
	}
	d.timer.Cancel()
}

// settle cancels renewal once nothing is processing and tears the lease
// down once nothing is queued at all.
func (d *Dispatcher) settle(ctx context.Context) {
	if d.registry.ProcessingLen() == 0 {
		d.timer.Cancel()
	}
	if !d.registry.Empty() {
		return
	}
	if d.gate.State() == LeaseInactive {
		if d.gate.guard.Held() {
			_ = d.gate.End(ctx)
		}
		return
	}

	_ = d.gate.End(ctx)
	d.logger.Info("connectivity released")
	if d.retry != nil {
		if err := d.retry.Arm(ctx); err != nil {
			d.logger.Warn("failed to arm retry", ports.Err(err))
		}
	}
}

func (d *Dispatcher) emit(tx *Transaction) {
	c := tx.Completion(d.clock.Now())
	d.logger.Info("transaction finished",
		ports.String("id", c.ID),
		ports.String("kind", c.Kind.String()),
		ports.String("state", string(c.State)),
		ports.String("locator", c.ResultLocator),
	)
	d.recorder.Completed(c)
	if d.observer != nil {
		d.observer.OnCompletion(c)
	}
}

func (d *Dispatcher) advise(kind domain.Kind) {
	if d.advisor == nil {
		return
	}
	if a := domain.AdvisoryFor(kind); a != domain.AdviceNone {
		d.advisor.Advise(kind, a)
	}
}

func (d *Dispatcher) snapshot() Snapshot {
	return Snapshot{
		Lease:        d.gate.State(),
		Pending:      d.registry.PendingKeys(),
		Processing:   d.registry.ProcessingKeys(),
		RenewalArmed: d.timer.Armed(),
		GuardHeld:    d.gate.guard.Held(),
	}
}
