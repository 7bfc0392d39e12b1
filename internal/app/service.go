package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/ports"
)

// ServiceConfig contains configuration for the scheduler service.
type ServiceConfig struct {
	Dispatcher DispatcherConfig

	// ShutdownTimeout bounds how long Shutdown waits for in-flight work.
	ShutdownTimeout time.Duration

	// SubscriptionBuffer is the buffer of the network state channel.
	SubscriptionBuffer int
}

// Service owns a dispatcher and the goroutines feeding it.
// It replaces host-managed start/stop hooks with Initialize and Shutdown.
type Service struct {
	cfg    ServiceConfig
	deps   Dependencies
	logger ports.Logger

	mu          sync.Mutex
	dispatcher  *Dispatcher
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewService creates a stopped service.
func NewService(cfg ServiceConfig, deps Dependencies) *Service {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = ShutdownTimeout
	}
	if cfg.SubscriptionBuffer <= 0 {
		cfg.SubscriptionBuffer = 16
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
	}
}

// Initialize starts the event loop and subscribes to network changes.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatcher != nil {
		return domain.ErrAlreadyRunning
	}

	d := NewDispatcher(s.cfg.Dispatcher, s.deps)
	loopCtx, cancel := context.WithCancel(ctx)
	events, unsubscribe := s.deps.Provider.Subscribe(s.cfg.SubscriptionBuffer)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := d.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("dispatcher stopped", ports.Err(err))
		}
	}()
	go func() {
		defer s.wg.Done()
		s.forward(loopCtx, d, events)
	}()

	s.dispatcher = d
	s.cancel = cancel
	s.unsubscribe = unsubscribe

	s.logger.Info("scheduler initialized",
		ports.String("network", string(s.cfg.Dispatcher.NetworkKind)),
		ports.Duration("renewal_interval", d.timer.Interval()),
	)
	return nil
}

func (s *Service) forward(ctx context.Context, d *Dispatcher, events <-chan ports.NetworkInfo) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.Done():
			return
		case info, ok := <-events:
			if !ok {
				return
			}
			if err := d.NetworkStateChanged(info); err != nil {
				return
			}
		}
	}
}

// Shutdown stops the event loop, waits for in-flight transactions and
// releases the lease. Pending work is left for the next scan.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	d := s.dispatcher
	if d == nil {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	s.dispatcher = nil
	cancel, unsubscribe := s.cancel, s.unsubscribe
	s.mu.Unlock()

	d.Quit()
	select {
	case <-d.Done():
	case <-ctx.Done():
	}
	cancel()
	unsubscribe()
	s.wg.Wait()

	var err error
	if waitErr := d.WaitInflight(s.cfg.ShutdownTimeout); waitErr != nil {
		s.logger.Warn("in-flight transactions did not finish",
			ports.Duration("timeout", s.cfg.ShutdownTimeout),
		)
		err = multierr.Append(err, waitErr)
	}
	err = multierr.Append(err, d.Release(context.WithoutCancel(ctx)))

	s.logger.Info("scheduler shut down")
	return err
}

func (s *Service) current() (*Dispatcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatcher == nil {
		return nil, domain.ErrNotRunning
	}
	return s.dispatcher, nil
}

// Submit admits a request. When the network kind cannot be requested at all
// the request is rejected with domain.ErrConnectivityUnavailable and an
// advisory is shown, without touching the lease.
func (s *Service) Submit(ctx context.Context, req domain.Request) (Admission, error) {
	d, err := s.current()
	if err != nil {
		return AdmissionRejected, err
	}

	kind := s.cfg.Dispatcher.NetworkKind
	if kind == "" {
		kind = ports.NetworkMobile
	}
	if !s.deps.Provider.IsAvailable(kind) {
		s.advise(req.Kind)
		return AdmissionRejected, fmt.Errorf("%w: %s network not available", domain.ErrConnectivityUnavailable, kind)
	}
	return d.Submit(ctx, req)
}

// Scan submits every unfinished item found in the store. It returns the
// number of requests handed to the dispatcher.
func (s *Service) Scan(ctx context.Context) (int, error) {
	if _, err := s.current(); err != nil {
		return 0, err
	}

	items, err := s.deps.Store.PendingWork(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending work: %w", err)
	}

	if len(items) == 0 {
		s.logger.Debug("no pending work")
		if s.deps.Retry != nil {
			if err := s.deps.Retry.Arm(ctx); err != nil {
				s.logger.Warn("failed to arm retry", ports.Err(err))
			}
		}
		return 0, nil
	}

	kind := s.cfg.Dispatcher.NetworkKind
	if kind == "" {
		kind = ports.NetworkMobile
	}
	if !s.deps.Provider.IsAvailable(kind) {
		if k, err := domain.KindForMessageType(items[0].MessageType); err == nil {
			s.advise(k)
		}
		s.logger.Info("network not available, pending work left for later",
			ports.Int("pending", len(items)),
		)
		return 0, nil
	}

	submitted := 0
	for _, item := range items {
		k, err := domain.KindForMessageType(item.MessageType)
		if err != nil {
			s.logger.Warn("skipping pending item", ports.String("target", item.Target), ports.Err(err))
			continue
		}
		if k == domain.KindRetrieve && s.cfg.Dispatcher.DeferDownloads && !item.LastError.Transient() {
			continue
		}

		a, err := s.Submit(ctx, domain.Request{Kind: k, Target: item.Target})
		if err != nil {
			s.logger.Warn("failed to submit pending item",
				ports.String("target", item.Target),
				ports.String("kind", k.String()),
				ports.Err(err),
			)
			if errors.Is(err, domain.ErrDispatcherStopped) || errors.Is(err, domain.ErrNotRunning) {
				return submitted, err
			}
			continue
		}
		submitted++
		s.logger.Debug("pending item submitted",
			ports.String("target", item.Target),
			ports.String("admission", a.String()),
		)
	}
	return submitted, nil
}

// HasOutstandingWork reports whether anything is queued or running.
func (s *Service) HasOutstandingWork(ctx context.Context) (bool, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snap.Outstanding(), nil
}

// Snapshot returns the dispatcher's view of the registry and lease.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	d, err := s.current()
	if err != nil {
		return Snapshot{}, err
	}
	return d.Snapshot(ctx)
}

func (s *Service) advise(kind domain.Kind) {
	if s.deps.Advisor == nil {
		return
	}
	if a := domain.AdvisoryFor(kind); a != domain.AdviceNone {
		s.deps.Advisor.Advise(kind, a)
	}
}
