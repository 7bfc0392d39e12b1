package mmsgate

import (
	"fmt"
	"time"

	"github.com/bft-labs/mmsgate/internal/app"
	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/ports"
)

// Config holds the gateway settings.
type Config struct {
	// StateDir holds the default file store. Required unless WithStore is used.
	StateDir string

	// NetworkKind is the network requested for transactions. Default: mobile.
	NetworkKind ports.NetworkKind

	// Feature is the capability requested on the network. Default: enableMMS.
	Feature string

	// RenewalInterval is how often an active lease is re-asserted. Default: 30s.
	RenewalInterval time.Duration

	// ShutdownTimeout bounds how long Stop waits for in-flight work. Default: 30s.
	ShutdownTimeout time.Duration

	// DeferDownloads stores incoming notifications instead of downloading them.
	DeferDownloads bool

	// UserAgent is sent on relay requests by the default transfer.
	UserAgent string

	// HTTPTimeout bounds relay requests made by the default transfer. Default: 60s.
	HTTPTimeout time.Duration

	// RescanSchedule is the cron schedule of the default retry armer.
	RescanSchedule string
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.NetworkKind == "" {
		c.NetworkKind = ports.NetworkMobile
	}
	if c.Feature == "" {
		c.Feature = app.DefaultFeature
	}
	if c.RenewalInterval <= 0 {
		c.RenewalInterval = app.DefaultRenewalInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = app.ShutdownTimeout
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 60 * time.Second
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.NetworkKind {
	case ports.NetworkMobile, ports.NetworkWiFi:
	default:
		return fmt.Errorf("%w: unknown network kind %q", domain.ErrInvalidConfig, c.NetworkKind)
	}
	return nil
}
