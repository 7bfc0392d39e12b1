package domain

import "errors"

// Domain errors represent error conditions in the mmsgate domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrConnectivityUnavailable is returned when the network path cannot be
	// requested at all. The transaction is discarded, not queued.
	ErrConnectivityUnavailable = errors.New("mmsgate: connectivity unavailable")

	// ErrMalformedRequest is returned when a request cannot be turned into a
	// transaction (unknown kind, bad push payload, missing target).
	ErrMalformedRequest = errors.New("mmsgate: malformed request")

	// ErrTransactionStart is returned when a transaction fails its setup step
	// before any asynchronous work begins.
	ErrTransactionStart = errors.New("mmsgate: transaction start failure")

	// ErrUnexpectedFault wraps a panic recovered while handling an event.
	ErrUnexpectedFault = errors.New("mmsgate: unexpected fault")

	// ErrDispatcherStopped is returned when an event is posted after the
	// dispatcher has quit.
	ErrDispatcherStopped = errors.New("mmsgate: dispatcher stopped")

	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("mmsgate: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("mmsgate: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("mmsgate: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("mmsgate: invalid configuration")

	// ErrNotFound is returned by stores when a message does not exist.
	ErrNotFound = errors.New("mmsgate: message not found")
)
