package ports

import (
	"context"

	"github.com/bft-labs/mmsgate/internal/domain"
)

// RetryArmer asks an external subsystem to schedule a future re-scan.
type RetryArmer interface {
	Arm(ctx context.Context) error
}

// Advisor shows a one-shot advisory when work cannot start.
type Advisor interface {
	Advise(kind domain.Kind, advice domain.Advisory)
}

// CompletionObserver receives one event per finished transaction.
type CompletionObserver interface {
	OnCompletion(c domain.Completion)
}
