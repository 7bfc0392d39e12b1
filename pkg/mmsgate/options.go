package mmsgate

import "github.com/benbjohnson/clock"

// Option configures optional behavior of a Gateway.
type Option func(*options)

type options struct {
	logger   Logger
	provider ConnectivityProvider
	guard    ResourceGuard
	store    MessageStore
	transfer Transfer
	retry    RetryArmer
	recorder Recorder
	clock    clock.Clock
	plugins  []Plugin
}

// WithLogger sets a custom logger. If not provided, nothing is logged.
func WithLogger(logger Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConnectivityProvider sets the network provider. Required.
// A provider with a Run(ctx) error method is run for the gateway's lifetime.
func WithConnectivityProvider(p ConnectivityProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithResourceGuard sets the wake lock held while the lease is up.
// Default: an in-memory guard.
func WithResourceGuard(g ResourceGuard) Option {
	return func(o *options) { o.guard = g }
}

// WithStore sets the message store. Default: a JSON file store in StateDir.
// The gateway does not close stores it did not create.
func WithStore(s MessageStore) Option {
	return func(o *options) { o.store = s }
}

// WithTransfer sets the relay transfer. Default: HTTP with per-settings proxy.
func WithTransfer(t Transfer) Option {
	return func(o *options) { o.transfer = t }
}

// WithRetryArmer sets what schedules re-scans when the gateway goes idle.
// An armer with an OnFire(func(context.Context)) method is wired to Scan.
// Default: a cron armer on Config.RescanSchedule.
func WithRetryArmer(r RetryArmer) Option {
	return func(o *options) { o.retry = r }
}

// WithMetrics sets the recorder receiving scheduler measurements.
func WithMetrics(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithClock sets the clock driving timers. Intended for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPlugin registers a plugin to be initialized when the gateway starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(p Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, p) }
}
