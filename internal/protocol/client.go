// Package protocol defines the contract between the session lifecycle
// manager and the messaging gateway connection, plus a websocket-backed
// implementation of it.
package protocol

import (
	"context"
	"strings"
)

// ReasonClass is the normalized category a raw disconnect cause is mapped
// into before reconnection policy evaluation.
type ReasonClass string

const (
	// ReasonTransient covers timeouts, connection loss and anything unknown.
	ReasonTransient ReasonClass = "transient"
	// ReasonLoggedOut means the device link was revoked; credentials are dead.
	ReasonLoggedOut ReasonClass = "logged-out"
	// ReasonConflict means the session was taken over by another device.
	ReasonConflict ReasonClass = "conflict"
	// ReasonCorruptSession means the stored session state is unusable.
	ReasonCorruptSession ReasonClass = "corrupt-session"
)

// ClassifyReason maps a raw close reason string from the gateway into a
// ReasonClass. Unknown reasons are transient: retrying is the safe default.
func ClassifyReason(raw string) ReasonClass {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "logged-out", "logged_out", "unauthorized", "401":
		return ReasonLoggedOut
	case "conflict", "replaced", "session-replaced", "440":
		return ReasonConflict
	case "corrupt-session", "corrupt_session", "bad-session", "bad-mac":
		return ReasonCorruptSession
	default:
		return ReasonTransient
	}
}

// Event is a lifecycle event emitted by a client handle.
//
// Exactly one field group is meaningful per Kind.
type Event struct {
	Kind EventKind

	// PairingCode is set for EventPairingCode.
	PairingCode string

	// Reason and Class are set for EventClosed.
	Reason string
	Class  ReasonClass

	// Credentials is set for EventCredentialsChanged.
	Credentials []byte
}

// EventKind discriminates lifecycle events.
type EventKind string

const (
	// EventPairingCode signals a new device-linking code is available.
	EventPairingCode EventKind = "pairing-code"
	// EventOpened signals the connection is established and authenticated.
	EventOpened EventKind = "opened"
	// EventClosed signals the connection ended; Class tells why.
	EventClosed EventKind = "closed"
	// EventCredentialsChanged signals updated auth material to persist.
	EventCredentialsChanged EventKind = "credentials-changed"
)

// Payload is an outbound message body. Exactly one of Text or MediaURL
// should be set; when both are set the media is sent with Text as caption.
type Payload struct {
	Text     string
	MediaURL string
}

// Kind reports the payload kind for logging and the delivery log.
func (p Payload) Kind() string {
	if p.MediaURL != "" {
		return "media"
	}
	return "text"
}

// Client is one live connection handle to the messaging gateway.
//
// Events delivers lifecycle events in emission order; the channel is closed
// when the handle is torn down. SendMessage and Logout may be called
// concurrently. Close releases the handle and is idempotent.
type Client interface {
	Events() <-chan Event
	SendMessage(ctx context.Context, recipient string, payload Payload) (string, error)
	Logout(ctx context.Context) error
	Close() error
}

// Dialer constructs a connected Client bound to the given stored
// credentials. A nil credential set starts a fresh pairing cycle.
type Dialer func(ctx context.Context, creds []byte) (Client, error)
