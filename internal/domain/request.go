package domain

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Kind identifies the network operation a transaction performs.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotify
	KindRetrieve
	KindSend
	KindAcknowledgeRead
)

// String returns the canonical lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotify:
		return "notify"
	case KindRetrieve:
		return "retrieve"
	case KindSend:
		return "send"
	case KindAcknowledgeRead:
		return "ack-read"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "notify", "notification":
		return KindNotify, nil
	case "retrieve":
		return KindRetrieve, nil
	case "send":
		return KindSend, nil
	case "ack-read", "ackread", "read-report", "readrec":
		return KindAcknowledgeRead, nil
	}
	return KindUnknown, fmt.Errorf("%w: unknown kind %q", ErrMalformedRequest, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ConnectionSettings describes how to reach the message relay.
type ConnectionSettings struct {
	EndpointURL string `json:"endpoint_url"`
	ProxyHost   string `json:"proxy_host,omitempty"`
	ProxyPort   int    `json:"proxy_port,omitempty"`
}

// Empty reports whether the settings carry no usable endpoint.
func (s ConnectionSettings) Empty() bool {
	return strings.TrimSpace(s.EndpointURL) == ""
}

// ProxyAddr returns host:port of the proxy, or "" when no proxy is configured.
func (s ConnectionSettings) ProxyAddr() string {
	if s.ProxyHost == "" {
		return ""
	}
	port := s.ProxyPort
	if port <= 0 {
		port = 80
	}
	return net.JoinHostPort(s.ProxyHost, strconv.Itoa(port))
}

// Request is an immutable descriptor of requested work.
type Request struct {
	// ID is the caller-supplied correlation token. Generated when empty.
	ID string `json:"id,omitempty"`

	Kind   Kind   `json:"kind"`
	Target string `json:"target,omitempty"`

	// Override replaces the ambient connection settings when set.
	Override *ConnectionSettings `json:"override,omitempty"`

	// PushPayload is only used by Notify requests that arrive without a
	// target; the target is parsed out of the payload.
	PushPayload []byte `json:"push_payload,omitempty"`
}

// Key identifies the logical unit of work. Two requests are equivalent iff
// their keys are equal.
type Key struct {
	Kind   Kind
	Target string
}

// String returns "kind:target".
func (k Key) String() string {
	return k.Kind.String() + ":" + k.Target
}

// NotificationMessageType is the only push message type accepted for Notify work.
const NotificationMessageType = "notification-ind"

// Notification is the descriptor carried by a push payload.
type Notification struct {
	MessageType     string `json:"message_type"`
	ContentLocation string `json:"content_location"`
	TransactionID   string `json:"transaction_id,omitempty"`
	Size            int64  `json:"size,omitempty"`
}

// ParseNotification decodes a push payload into a Notification.
// Payloads of any other message type are malformed.
func ParseNotification(payload []byte) (Notification, error) {
	var n Notification
	if len(payload) == 0 {
		return n, fmt.Errorf("%w: empty push payload", ErrMalformedRequest)
	}
	if err := json.Unmarshal(payload, &n); err != nil {
		return n, fmt.Errorf("%w: invalid push payload: %v", ErrMalformedRequest, err)
	}
	if n.MessageType != NotificationMessageType {
		return n, fmt.Errorf("%w: unexpected push message type %q", ErrMalformedRequest, n.MessageType)
	}
	if strings.TrimSpace(n.ContentLocation) == "" {
		return n, fmt.Errorf("%w: push payload has no content location", ErrMalformedRequest)
	}
	return n, nil
}

// ResolveTarget returns the target the request acts on. For Notify requests
// without a target the push payload is parsed.
func (r Request) ResolveTarget() (string, error) {
	if r.Target != "" {
		return r.Target, nil
	}
	if r.Kind == KindNotify {
		n, err := ParseNotification(r.PushPayload)
		if err != nil {
			return "", err
		}
		return n.ContentLocation, nil
	}
	return "", fmt.Errorf("%w: %s request has no target", ErrMalformedRequest, r.Kind)
}
