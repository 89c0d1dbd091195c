// Package session owns the single messaging-session handle: its state
// machine, reconnection policy and the operation surface consumed by the
// HTTP layer.
package session

import (
	"context"
	"errors"
	"time"
)

// Status is the externally observable session state.
type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusConnecting      Status = "connecting"
	StatusAwaitingPairing Status = "awaiting_pairing"
	StatusOpen            Status = "open"
	StatusClosed          Status = "closed"
	StatusErrored         Status = "errored"
)

var (
	// ErrNotConnected is returned by Send while the session is not open.
	ErrNotConnected = errors.New("session is not connected")
	// ErrDeliveryFailed wraps a send the protocol client rejected.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Snapshot is an atomic read of the session state for HTTP consumers.
type Snapshot struct {
	Status               Status
	HasPairingPayload    bool
	RetryCount           int
	AutoReconnectEnabled bool
}

// PairingState qualifies the result of PairingPayload.
type PairingState int

const (
	// PairingReady: the payload is available and should be shown to the user.
	PairingReady PairingState = iota
	// PairingNotNeeded: the session is already open.
	PairingNotNeeded
	// PairingPending: connecting; the gateway has not issued a code yet.
	PairingPending
	// PairingUnavailable: the session was never initialized (or gave up);
	// the client must call Init first.
	PairingUnavailable
)

// CredentialStore persists the session's auth material.
type CredentialStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, creds []byte) error
	Purge(ctx context.Context) error
}

// Config tunes the lifecycle manager. Zero values fall back to defaults.
type Config struct {
	MaxRetries        int
	RetryBaseDelay    time.Duration
	WipeRestartDelay  time.Duration
	ExhaustedCooldown time.Duration
	ConnectTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	if c.WipeRestartDelay <= 0 {
		c.WipeRestartDelay = 3 * time.Second
	}
	if c.ExhaustedCooldown <= 0 {
		c.ExhaustedCooldown = time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	return c
}
