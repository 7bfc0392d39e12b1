package ports

import (
	"context"

	"github.com/bft-labs/mmsgate/internal/domain"
)

// NetworkKind names a network the provider can report on.
type NetworkKind string

const (
	NetworkMobile NetworkKind = "mobile"
	NetworkWiFi   NetworkKind = "wifi"
)

// FeatureResult is the outcome of a successful feature request.
type FeatureResult int

const (
	// FeatureAlreadyActive means the path is usable right now.
	FeatureAlreadyActive FeatureResult = iota
	// FeatureRequestStarted means a state-changed notification will follow
	// once the path is up.
	FeatureRequestStarted
)

// String returns a human-readable representation of the result.
func (r FeatureResult) String() string {
	switch r {
	case FeatureAlreadyActive:
		return "AlreadyActive"
	case FeatureRequestStarted:
		return "RequestStarted"
	default:
		return "Unknown"
	}
}

// NetworkInfo is delivered on every observed network state change.
type NetworkInfo struct {
	Kind      NetworkKind
	Connected bool
	Available bool
	// Interface is the attachment the change was observed on.
	Interface string
	// Settings is the attachment's current configuration. May be empty.
	Settings domain.ConnectionSettings
}

// ConnectivityProvider requests and releases a shared network feature.
type ConnectivityProvider interface {
	// IsAvailable reports whether the network kind can be requested at all.
	IsAvailable(kind NetworkKind) bool

	// RequestFeature asks for the feature on the given network. An error
	// means the path cannot be requested.
	RequestFeature(ctx context.Context, kind NetworkKind, feature string) (FeatureResult, error)

	// ReleaseFeature drops a previous request.
	ReleaseFeature(ctx context.Context, kind NetworkKind, feature string) error

	// Settings returns the ambient connection settings of the attachment.
	Settings(kind NetworkKind) domain.ConnectionSettings

	// Subscribe returns a channel of state changes and a cancel function.
	Subscribe(buffer int) (<-chan NetworkInfo, func())
}
