// Package netmon provides a ConnectivityProvider that polls local network
// interfaces.
package netmon

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/ports"
)

// DefaultPollInterval is how often interfaces are checked.
const DefaultPollInterval = 5 * time.Second

// InterfaceLister returns the host's interfaces. net.Interfaces in production.
type InterfaceLister func() ([]net.Interface, error)

// Attachment binds a network kind to an interface and its relay settings.
type Attachment struct {
	Interface string
	Settings  domain.ConnectionSettings
}

// Config configures a Monitor.
type Config struct {
	Attachments  map[ports.NetworkKind]Attachment
	PollInterval time.Duration
}

// Monitor implements ports.ConnectivityProvider.
type Monitor struct {
	cfg    Config
	list   InterfaceLister
	clock  clock.Clock
	logger ports.Logger

	mu        sync.Mutex
	up        map[ports.NetworkKind]bool
	requested map[ports.NetworkKind]map[string]bool
	subs      map[int]chan ports.NetworkInfo
	nextSub   int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLister replaces net.Interfaces.
func WithLister(l InterfaceLister) Option {
	return func(m *Monitor) { m.list = l }
}

// WithClock sets the clock driving the poll loop.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// New creates a monitor. Call Run to start polling.
func New(cfg Config, logger ports.Logger, opts ...Option) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	m := &Monitor{
		cfg:       cfg,
		list:      net.Interfaces,
		clock:     clock.New(),
		logger:    logger,
		up:        make(map[ports.NetworkKind]bool),
		requested: make(map[ports.NetworkKind]map[string]bool),
		subs:      make(map[int]chan ports.NetworkInfo),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Poll()
	ticker := m.clock.Ticker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll checks every attachment once and publishes changes.
func (m *Monitor) Poll() {
	ifaces, err := m.list()
	if err != nil {
		m.logger.Warn("failed to list interfaces", ports.Err(err))
		return
	}

	var changes []ports.NetworkInfo
	m.mu.Lock()
	for kind, att := range m.cfg.Attachments {
		iface, found := lookup(ifaces, att.Interface)
		up := found && iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0
		if up == m.up[kind] {
			continue
		}
		m.up[kind] = up
		changes = append(changes, ports.NetworkInfo{
			Kind:      kind,
			Connected: up,
			Available: found,
			Interface: att.Interface,
			Settings:  att.Settings,
		})
	}
	var dropped []ports.NetworkInfo
	for _, info := range changes {
		for _, ch := range m.subs {
			select {
			case ch <- info:
			default:
				dropped = append(dropped, info)
			}
		}
	}
	m.mu.Unlock()

	for _, info := range changes {
		m.logger.Info("network state changed",
			ports.String("network", string(info.Kind)),
			ports.String("interface", info.Interface),
			ports.Bool("connected", info.Connected),
		)
	}
	for _, info := range dropped {
		m.logger.Warn("network subscriber is full, dropping update",
			ports.String("network", string(info.Kind)),
		)
	}
}

// IsAvailable reports whether the kind's interface exists on this host.
func (m *Monitor) IsAvailable(kind ports.NetworkKind) bool {
	att, ok := m.cfg.Attachments[kind]
	if !ok {
		return false
	}
	ifaces, err := m.list()
	if err != nil {
		return false
	}
	_, found := lookup(ifaces, att.Interface)
	return found
}

// RequestFeature records the request. It reports AlreadyActive while the
// interface is up, otherwise a later poll will announce it.
func (m *Monitor) RequestFeature(ctx context.Context, kind ports.NetworkKind, feature string) (ports.FeatureResult, error) {
	if !m.IsAvailable(kind) {
		return 0, fmt.Errorf("%s network has no usable interface", kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requested[kind] == nil {
		m.requested[kind] = make(map[string]bool)
	}
	m.requested[kind][feature] = true
	if m.up[kind] {
		return ports.FeatureAlreadyActive, nil
	}
	return ports.FeatureRequestStarted, nil
}

// ReleaseFeature drops a request.
func (m *Monitor) ReleaseFeature(ctx context.Context, kind ports.NetworkKind, feature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requested[kind], feature)
	return nil
}

// Requested reports whether feature is currently requested on kind.
func (m *Monitor) Requested(kind ports.NetworkKind, feature string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requested[kind][feature]
}

// Settings returns the configured relay settings for kind.
func (m *Monitor) Settings(kind ports.NetworkKind) domain.ConnectionSettings {
	return m.cfg.Attachments[kind].Settings
}

// Subscribe registers for state changes.
func (m *Monitor) Subscribe(buffer int) (<-chan ports.NetworkInfo, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan ports.NetworkInfo, buffer)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(ch)
			m.mu.Unlock()
		})
	}
}

func lookup(ifaces []net.Interface, name string) (net.Interface, bool) {
	for _, iface := range ifaces {
		if iface.Name == name {
			return iface, true
		}
	}
	return net.Interface{}, false
}
