package mmsgate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/bft-labs/mmsgate/internal/adapters/advice"
	"github.com/bft-labs/mmsgate/internal/adapters/fs"
	"github.com/bft-labs/mmsgate/internal/adapters/guard"
	httpAdapter "github.com/bft-labs/mmsgate/internal/adapters/http"
	logAdapter "github.com/bft-labs/mmsgate/internal/adapters/log"
	"github.com/bft-labs/mmsgate/internal/adapters/retry"
	"github.com/bft-labs/mmsgate/internal/app"
	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/eventbus"
	"github.com/bft-labs/mmsgate/internal/ports"
)

// Gateway is an MMS transaction gateway that can be embedded in other
// applications. Use New to create one, then Start.
type Gateway struct {
	config    Config
	lifecycle *app.Lifecycle
	service   *app.Service
	provider  ConnectivityProvider
	store     MessageStore
	ownsStore bool
	retry     RetryArmer
	bus       eventbus.Bus
	logger    Logger
	plugins   []Plugin

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a gateway in StateStopped.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.provider == nil {
		return nil, fmt.Errorf("%w: a connectivity provider is required", domain.ErrInvalidConfig)
	}

	logger := o.logger
	if logger == nil {
		logger = logAdapter.NewNoopLogger()
	}
	clk := o.clock
	if clk == nil {
		clk = clock.New()
	}
	bus := eventbus.New()

	g := &Gateway{
		config:   cfg,
		provider: o.provider,
		store:    o.store,
		retry:    o.retry,
		bus:      bus,
		logger:   logger,
		plugins:  o.plugins,
	}

	if g.store == nil {
		if cfg.StateDir == "" {
			return nil, fmt.Errorf("%w: state dir is required without a store", domain.ErrInvalidConfig)
		}
		g.store = fs.NewMessageFileStore(cfg.StateDir)
		g.ownsStore = true
	}

	transfer := o.transfer
	if transfer == nil {
		topts := []httpAdapter.Option{
			httpAdapter.WithClientFactory(httpAdapter.ProxyClientFactory(cfg.HTTPTimeout)),
		}
		if cfg.UserAgent != "" {
			topts = append(topts, httpAdapter.WithUserAgent(cfg.UserAgent))
		}
		transfer = httpAdapter.NewTransfer(logger, topts...)
	}

	rg := o.guard
	if rg == nil {
		rg = guard.NewMemory()
	}

	if g.retry == nil {
		c, err := retry.NewCron(cfg.RescanSchedule, clk, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		g.retry = c
	}
	if r, ok := g.retry.(interface{ OnFire(func(context.Context)) }); ok {
		r.OnFire(g.rescan)
	}

	g.lifecycle = app.NewLifecycle(logger, stateEmitter{bus: bus})
	g.service = app.NewService(app.ServiceConfig{
		Dispatcher: app.DispatcherConfig{
			NetworkKind:     cfg.NetworkKind,
			Feature:         cfg.Feature,
			RenewalInterval: cfg.RenewalInterval,
			DeferDownloads:  cfg.DeferDownloads,
		},
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, app.Dependencies{
		Provider: o.provider,
		Guard:    rg,
		Store:    g.store,
		Transfer: transfer,
		Retry:    g.retry,
		Advisor:  advice.New(bus, logger, clk, 0),
		Observer: g,
		Recorder: o.recorder,
		Logger:   logger,
		Clock:    clk,
	})
	return g, nil
}

// Start brings up the scheduler, initializes plugins and scans the store
// for unfinished work in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := g.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.lifecycle.SetCancel(cancel)

	if err := g.service.Initialize(runCtx); err != nil {
		cancel()
		_ = g.lifecycle.TransitionTo(app.StateCrashed, "scheduler init failed")
		return err
	}

	if runner, ok := g.provider.(interface{ Run(context.Context) error }); ok {
		g.lifecycle.Go("connectivity", func() {
			if err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				g.logger.Error("connectivity provider stopped", ports.Err(err))
			}
		})
	}

	pluginCfg := PluginConfig{StateDir: g.config.StateDir, Logger: g.logger, Gateway: g}
	for i, p := range g.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			g.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			for j := i - 1; j >= 0; j-- {
				_ = g.plugins[j].Shutdown(context.Background())
			}
			cancel()
			_ = g.service.Shutdown(context.Background())
			_ = g.lifecycle.TransitionTo(app.StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		g.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	if err := g.lifecycle.TransitionTo(app.StateRunning, "scheduler running"); err != nil {
		return err
	}

	g.lifecycle.Go("startup-scan", func() { g.rescan(runCtx) })
	return nil
}

// Stop shuts plugins down, waits for in-flight transactions and releases the
// lease. Pending work stays in the store for the next Start.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	if !g.lifecycle.CanStop() {
		g.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := g.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		g.mu.Unlock()
		return err
	}
	cancel := g.cancel
	g.mu.Unlock()

	ctx, done := context.WithTimeout(context.Background(), g.config.ShutdownTimeout)
	defer done()

	for i := len(g.plugins) - 1; i >= 0; i-- {
		p := g.plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			g.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
		} else {
			g.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}

	err := g.service.Shutdown(ctx)
	if s, ok := g.retry.(interface{ Stop() }); ok {
		s.Stop()
	}
	if cancel != nil {
		cancel()
	}
	err = multierr.Append(err, g.lifecycle.WaitWithTimeout(g.config.ShutdownTimeout))
	if g.ownsStore {
		err = multierr.Append(err, g.store.Close())
	}

	if errors.Is(err, domain.ErrShutdownTimeout) {
		_ = g.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = g.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
func (g *Gateway) Status() State {
	return g.lifecycle.State()
}

// Submit admits a transaction request.
func (g *Gateway) Submit(ctx context.Context, req Request) (Admission, error) {
	return g.service.Submit(ctx, req)
}

// Scan submits every unfinished item in the store and returns how many were
// handed to the scheduler.
func (g *Gateway) Scan(ctx context.Context) (int, error) {
	return g.service.Scan(ctx)
}

// HasOutstandingWork reports whether anything is queued or running.
func (g *Gateway) HasOutstandingWork(ctx context.Context) (bool, error) {
	return g.service.HasOutstandingWork(ctx)
}

// Snapshot returns the scheduler's queues and lease state.
func (g *Gateway) Snapshot(ctx context.Context) (Snapshot, error) {
	return g.service.Snapshot(ctx)
}

// Subscribe returns a channel of gateway events and an unsubscribe func.
func (g *Gateway) Subscribe(buffer int) (<-chan Event, func()) {
	return g.bus.Subscribe(buffer)
}

// Store returns the message store in use.
func (g *Gateway) Store() MessageStore {
	return g.store
}

// OnCompletion publishes finished transactions. Successful downloads also
// raise a new-message notice.
func (g *Gateway) OnCompletion(c Completion) {
	g.bus.Publish(eventbus.Event{Type: eventbus.TypeCompletion, Time: c.FinishedAt, Data: c})

	if c.State != domain.FinalSuccess || c.ResultLocator == "" {
		return
	}
	switch c.Kind {
	case domain.KindNotify, domain.KindRetrieve:
		g.bus.Publish(eventbus.Event{
			Type: eventbus.TypeNewMessage,
			Time: c.FinishedAt,
			Data: NewMessageEvent{MessageID: c.ResultLocator, Kind: c.Kind},
		})
	}
}

func (g *Gateway) rescan(ctx context.Context) {
	n, err := g.service.Scan(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotRunning) {
			return
		}
		g.logger.Warn("scan failed", ports.Err(err))
		return
	}
	if n > 0 {
		g.logger.Info("pending work submitted", ports.Int("count", n))
	}
}

type stateEmitter struct {
	bus eventbus.Bus
}

func (e stateEmitter) OnStateChange(previous, current app.State, reason string) {
	e.bus.Publish(eventbus.Event{
		Type: eventbus.TypeStateChange,
		Data: StateChangeEvent{Previous: previous, Current: current, Reason: reason},
	})
}

var _ ports.CompletionObserver = (*Gateway)(nil)
