package mmsgate_test

import (
	"context"
	"fmt"
	"net"
	"os"

	logAdapter "github.com/bft-labs/mmsgate/internal/adapters/log"
	"github.com/bft-labs/mmsgate/internal/adapters/netmon"
	"github.com/bft-labs/mmsgate/pkg/mmsgate"
)

// ExampleNew demonstrates how to embed the gateway in your application.
func ExampleNew() {
	stateDir, err := os.MkdirTemp("", "mmsgate-example")
	if err != nil {
		fmt.Printf("temp dir: %v\n", err)
		return
	}
	defer os.RemoveAll(stateDir)

	// Any ConnectivityProvider works; netmon watches a local interface.
	provider := netmon.New(netmon.Config{
		Attachments: map[mmsgate.NetworkKind]netmon.Attachment{
			mmsgate.NetworkMobile: {
				Interface: "wwan0",
				Settings:  mmsgate.ConnectionSettings{EndpointURL: "http://mmsc.example.net/mms"},
			},
		},
	}, logAdapter.NewNoopLogger(), netmon.WithLister(func() ([]net.Interface, error) { return nil, nil }))

	gw, err := mmsgate.New(mmsgate.Config{StateDir: stateDir},
		mmsgate.WithConnectivityProvider(provider))
	if err != nil {
		fmt.Printf("failed to create gateway: %v\n", err)
		return
	}

	if err := gw.Start(context.Background()); err != nil {
		fmt.Printf("failed to start: %v\n", err)
		return
	}
	fmt.Println("status:", gw.Status())

	// Stop waits for in-flight transactions and releases the network.
	_ = gw.Stop()
	fmt.Println("status:", gw.Status())

	// Output:
	// status: Running
	// status: Stopped
}

// Example_events demonstrates how to follow transaction outcomes.
func Example_events() {
	var gw *mmsgate.Gateway // created with mmsgate.New

	if gw == nil {
		return
	}
	events, unsubscribe := gw.Subscribe(16)
	defer unsubscribe()

	for ev := range events {
		switch data := ev.Data.(type) {
		case mmsgate.Completion:
			fmt.Printf("%s %s: %s\n", data.Kind, data.Target, data.State)
		case mmsgate.NewMessageEvent:
			fmt.Printf("new message %s\n", data.MessageID)
		case mmsgate.StateChangeEvent:
			fmt.Printf("state %s -> %s (%s)\n", data.Previous, data.Current, data.Reason)
		}
	}
}
