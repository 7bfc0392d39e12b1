package spool

import "github.com/bft-labs/mmsgate/pkg/mmsgate"

// WithSpool returns a gateway Option that enables the spool directory.
//
// Usage:
//
//	gw, err := mmsgate.New(cfg,
//	    spool.WithSpool(spool.Config{Dir: "/var/spool/mmsgate"}),
//	)
func WithSpool(cfg Config) mmsgate.Option {
	return mmsgate.WithPlugin(New(cfg))
}

// WithDefaultSpool enables the spool under the gateway's state directory.
func WithDefaultSpool() mmsgate.Option {
	return WithSpool(DefaultConfig())
}
