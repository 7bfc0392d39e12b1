package ports

import (
	"context"

	"github.com/bft-labs/mmsgate/internal/domain"
)

// MessageStore persists messages and enumerates unfinished work.
type MessageStore interface {
	// Save inserts or replaces a message and returns its ID.
	// A new ID is generated when msg.ID is empty.
	Save(ctx context.Context, msg domain.Message) (string, error)

	// Load returns the message with the given ID or domain.ErrNotFound.
	Load(ctx context.Context, id string) (domain.Message, error)

	// MarkFailed records a failed attempt. Transient failures keep the
	// message pending; permanent ones retire it.
	MarkFailed(ctx context.Context, id string, kind domain.ErrorKind) error

	// PendingWork lists every message still waiting to be worked on.
	PendingWork(ctx context.Context) ([]domain.PendingItem, error)

	// Close releases any underlying resources.
	Close() error
}
