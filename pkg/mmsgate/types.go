package mmsgate

import (
	"github.com/bft-labs/mmsgate/internal/app"
	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/eventbus"
	"github.com/bft-labs/mmsgate/internal/ports"
)

// Re-exported types so embedders do not import internal packages.
type (
	Request            = domain.Request
	Kind               = domain.Kind
	ConnectionSettings = domain.ConnectionSettings
	Completion         = domain.Completion
	FinalState         = domain.FinalState
	Message            = domain.Message
	Admission          = app.Admission
	Snapshot           = app.Snapshot
	State              = app.State
	Event              = eventbus.Event
	NetworkKind        = ports.NetworkKind

	Logger               = ports.Logger
	LogField             = ports.Field
	ConnectivityProvider = ports.ConnectivityProvider
	ResourceGuard        = ports.ResourceGuard
	MessageStore         = ports.MessageStore
	Transfer             = ports.Transfer
	RetryArmer           = ports.RetryArmer
	Recorder             = app.Recorder
)

const (
	NetworkMobile = ports.NetworkMobile
	NetworkWiFi   = ports.NetworkWiFi

	KindNotify          = domain.KindNotify
	KindRetrieve        = domain.KindRetrieve
	KindSend            = domain.KindSend
	KindAcknowledgeRead = domain.KindAcknowledgeRead

	AdmissionRejected       = app.AdmissionRejected
	AdmissionAlreadyHandled = app.AdmissionAlreadyHandled
	AdmissionDeferred       = app.AdmissionDeferred
	AdmissionStarted        = app.AdmissionStarted

	StateStopped  = app.StateStopped
	StateStarting = app.StateStarting
	StateRunning  = app.StateRunning
	StateStopping = app.StateStopping
	StateCrashed  = app.StateCrashed
)

// Event types.
const (
	EventCompletion  = eventbus.TypeCompletion
	EventAdvisory    = eventbus.TypeAdvisory
	EventNewMessage  = eventbus.TypeNewMessage
	EventStateChange = eventbus.TypeStateChange
)

// Errors returned by the gateway. Check with errors.Is.
var (
	ErrConnectivityUnavailable = domain.ErrConnectivityUnavailable
	ErrMalformedRequest        = domain.ErrMalformedRequest
	ErrTransactionStart        = domain.ErrTransactionStart
	ErrAlreadyRunning          = domain.ErrAlreadyRunning
	ErrNotRunning              = domain.ErrNotRunning
	ErrShutdownTimeout         = domain.ErrShutdownTimeout
	ErrInvalidConfig           = domain.ErrInvalidConfig
)

// StateChangeEvent is the payload of EventStateChange.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// NewMessageEvent is the payload of EventNewMessage.
type NewMessageEvent struct {
	MessageID string
	Kind      Kind
}
