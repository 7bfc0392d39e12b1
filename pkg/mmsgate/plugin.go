package mmsgate

import "context"

// Submitter is the part of the gateway plugins use to hand in work.
type Submitter interface {
	Submit(ctx context.Context, req Request) (Admission, error)
}

// PluginConfig is passed to plugins on Initialize.
type PluginConfig struct {
	StateDir string
	Logger   Logger
	Gateway  Submitter
}

// Plugin extends the gateway with optional components.
type Plugin interface {
	// Name returns the plugin identifier used in logs.
	Name() string

	// Initialize starts the plugin. The context is canceled on Stop.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin and waits for its goroutines.
	Shutdown(ctx context.Context) error
}
