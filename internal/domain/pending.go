package domain

import (
	"errors"
	"fmt"
	"time"
)

// Message types as persisted by the store.
const (
	MessageTypeNotificationInd = "notification-ind"
	MessageTypeReadRecInd      = "read-rec-ind"
	MessageTypeSendReq         = "send-req"
	MessageTypeRetrieveConf    = "retrieve-conf"
)

// KindForMessageType maps a persisted message type to the transaction kind
// that finishes it.
func KindForMessageType(messageType string) (Kind, error) {
	switch messageType {
	case MessageTypeNotificationInd:
		return KindRetrieve, nil
	case MessageTypeReadRecInd:
		return KindAcknowledgeRead, nil
	case MessageTypeSendReq:
		return KindSend, nil
	}
	return KindUnknown, fmt.Errorf("%w: unrecognized message type %q", ErrMalformedRequest, messageType)
}

// MessageTypeForKind is the inverse of KindForMessageType.
func MessageTypeForKind(k Kind) string {
	switch k {
	case KindRetrieve, KindNotify:
		return MessageTypeNotificationInd
	case KindAcknowledgeRead:
		return MessageTypeReadRecInd
	case KindSend:
		return MessageTypeSendReq
	default:
		return ""
	}
}

// ErrorKind classifies the last failure of a pending item.
type ErrorKind int

const (
	FailureNone              ErrorKind = 0
	FailureGeneric           ErrorKind = 1
	FailureSMSProtoTransient ErrorKind = 2
	FailureMMSProtoTransient ErrorKind = 3
	FailureTransport         ErrorKind = 4
	FailureGenericPermanent  ErrorKind = 10
	FailureSMSProtoPermanent ErrorKind = 11
	FailureMMSProtoPermanent ErrorKind = 12
)

// Transient reports whether the failure is worth retrying.
func (e ErrorKind) Transient() bool {
	return e > FailureNone && e < FailureGenericPermanent
}

// String returns a short name for the error kind.
func (e ErrorKind) String() string {
	switch e {
	case FailureNone:
		return "none"
	case FailureGeneric:
		return "generic"
	case FailureSMSProtoTransient:
		return "sms-proto-transient"
	case FailureMMSProtoTransient:
		return "mms-proto-transient"
	case FailureTransport:
		return "transport-failure"
	case FailureGenericPermanent:
		return "generic-permanent"
	case FailureSMSProtoPermanent:
		return "sms-proto-permanent"
	case FailureMMSProtoPermanent:
		return "mms-proto-permanent"
	default:
		return fmt.Sprintf("error-%d", int(e))
	}
}

// PendingItem is persisted work that has not completed yet.
type PendingItem struct {
	Target      string
	MessageType string
	LastError   ErrorKind
}

// Message is a stored message body plus the metadata transactions need.
type Message struct {
	ID              string    `json:"id"`
	MessageType     string    `json:"message_type"`
	ContentLocation string    `json:"content_location,omitempty"`
	TransactionID   string    `json:"transaction_id,omitempty"`
	Body            []byte    `json:"body,omitempty"`
	RemoteID        string    `json:"remote_id,omitempty"`
	Status          string    `json:"status"`
	LastError       ErrorKind `json:"last_error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Pending reports whether the message still needs a transaction.
func (m Message) Pending() bool {
	return m.Status == StatusPending
}

// Message statuses written by transactions.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// TransferError is a failed relay exchange with its classification.
type TransferError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay returned %d (%s): %v", e.StatusCode, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status code onto an ErrorKind.
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code >= 200 && code < 300:
		return FailureNone
	case code == 408 || code == 429:
		return FailureMMSProtoTransient
	case code >= 400 && code < 500:
		return FailureMMSProtoPermanent
	case code >= 500:
		return FailureMMSProtoTransient
	default:
		return FailureGeneric
	}
}

// ClassifyError extracts the ErrorKind from err. Errors without a
// classification are treated as generic (transient) failures.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return FailureNone
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, ErrMalformedRequest) || errors.Is(err, ErrNotFound) {
		return FailureGenericPermanent
	}
	return FailureGeneric
}
