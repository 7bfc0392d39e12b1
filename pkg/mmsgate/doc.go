// Package mmsgate provides an embeddable MMS transaction gateway.
//
// The gateway admits Notify, Retrieve, Send and AcknowledgeRead requests,
// brings up a dedicated network path for them, keeps it alive while work is
// in flight and releases it once every queued transaction has finished.
//
// # Basic Usage
//
//	gw, err := mmsgate.New(mmsgate.Config{StateDir: "/var/lib/mmsgate"},
//	    mmsgate.WithConnectivityProvider(provider),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := gw.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Stop()
//
//	admission, err := gw.Submit(ctx, mmsgate.Request{Kind: mmsgate.KindSend, Target: id})
//
// Start scans the message store for unfinished work and submits it.
//
// # Events
//
// Completions, advisories, new-message notices and lifecycle changes are
// published on an in-memory bus. Use [Gateway.Subscribe] to receive them.
// Slow subscribers drop events.
//
// # Plugins
//
// Plugins are initialized in registration order after the scheduler is up
// and shut down in reverse order. See the spool plugin for an example.
package mmsgate
