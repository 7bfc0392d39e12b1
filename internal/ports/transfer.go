package ports

import (
	"context"
	"net/http"

	"github.com/bft-labs/mmsgate/internal/domain"
)

// Transfer moves message bytes to and from the relay.
// Errors should wrap *domain.TransferError so callers can classify them.
type Transfer interface {
	// Send posts an outgoing message and returns the relay's message ID.
	Send(ctx context.Context, settings domain.ConnectionSettings, body []byte) (string, error)

	// Retrieve downloads the message stored at location.
	Retrieve(ctx context.Context, settings domain.ConnectionSettings, location string) ([]byte, error)

	// Acknowledge posts a response or read report.
	Acknowledge(ctx context.Context, settings domain.ConnectionSettings, body []byte) error
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
