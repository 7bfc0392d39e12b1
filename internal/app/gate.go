package app

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/ports"
)

// DefaultFeature is the network feature requested for message transfer.
const DefaultFeature = "enableMMS"

// LeaseState is the observed state of the shared network path.
type LeaseState int

const (
	LeaseInactive LeaseState = iota
	LeaseRequested
	LeaseActive
)

// String returns a human-readable representation of the lease state.
func (s LeaseState) String() string {
	switch s {
	case LeaseInactive:
		return "Inactive"
	case LeaseRequested:
		return "Requested"
	case LeaseActive:
		return "Active"
	default:
		return "Unknown"
	}
}

// Gate is the only component that requests or releases the network feature
// and the resource guard. It is driven from the dispatcher goroutine.
type Gate struct {
	provider ports.ConnectivityProvider
	guard    ports.ResourceGuard
	kind     ports.NetworkKind
	feature  string
	timer    *RenewalTimer
	logger   ports.Logger

	state LeaseState
}

// NewGate creates an inactive gate.
func NewGate(
	provider ports.ConnectivityProvider,
	guard ports.ResourceGuard,
	kind ports.NetworkKind,
	feature string,
	timer *RenewalTimer,
	logger ports.Logger,
) *Gate {
	if feature == "" {
		feature = DefaultFeature
	}
	return &Gate{
		provider: provider,
		guard:    guard,
		kind:     kind,
		feature:  feature,
		timer:    timer,
		logger:   logger,
		state:    LeaseInactive,
	}
}

// State returns the lease state.
func (g *Gate) State() LeaseState {
	return g.state
}

// Begin acquires the guard if it is not held, then requests the feature.
// Failures are reported as domain.ErrConnectivityUnavailable.
func (g *Gate) Begin(ctx context.Context) (ports.FeatureResult, error) {
	if !g.guard.Held() {
		if err := g.guard.Acquire(); err != nil {
			g.logger.Warn("failed to acquire resource guard", ports.Err(err))
		}
	}

	res, err := g.provider.RequestFeature(ctx, g.kind, g.feature)
	if err != nil {
		if g.state == LeaseInactive {
			if relErr := g.guard.Release(); relErr != nil {
				g.logger.Warn("failed to release resource guard", ports.Err(relErr))
			}
		}
		return res, fmt.Errorf("%w: request %s on %s: %v", domain.ErrConnectivityUnavailable, g.feature, g.kind, err)
	}

	switch res {
	case ports.FeatureAlreadyActive:
		g.state = LeaseActive
	case ports.FeatureRequestStarted:
		if g.state == LeaseInactive {
			g.state = LeaseRequested
		}
	}

	g.logger.Debug("connectivity requested",
		ports.String("result", res.String()),
		ports.String("lease", g.state.String()),
	)
	return res, nil
}

// Renew re-asserts the feature request without touching the guard.
func (g *Gate) Renew(ctx context.Context) (ports.FeatureResult, error) {
	res, err := g.provider.RequestFeature(ctx, g.kind, g.feature)
	if err != nil {
		return res, fmt.Errorf("%w: renew %s on %s: %v", domain.ErrConnectivityUnavailable, g.feature, g.kind, err)
	}
	return res, nil
}

// MarkActive records that a state-changed notification confirmed the path.
func (g *Gate) MarkActive() {
	if g.state != LeaseInactive {
		g.state = LeaseActive
	}
}

// End cancels renewal, releases the feature, then releases the guard.
// Calling End on an inactive gate only releases a still-held guard.
func (g *Gate) End(ctx context.Context) error {
	if g.timer != nil {
		g.timer.Cancel()
	}

	var err error
	if g.state != LeaseInactive {
		err = multierr.Append(err, g.provider.ReleaseFeature(ctx, g.kind, g.feature))
	}
	if g.guard.Held() {
		err = multierr.Append(err, g.guard.Release())
	}
	g.state = LeaseInactive

	if err != nil {
		g.logger.Warn("connectivity teardown incomplete", ports.Err(err))
	}
	return err
}
