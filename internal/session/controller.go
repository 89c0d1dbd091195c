package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/walink/walink/internal/protocol"
	"github.com/walink/walink/pkg/logger"
)

// Controller owns the single protocol client handle and serializes every
// state mutation: HTTP commands, lifecycle events and backoff timers all
// take the same lock for their state transition (never across a network
// call).
type Controller struct {
	cfg   Config
	store CredentialStore
	dial  protocol.Dialer

	mu            sync.Mutex
	status        Status
	pairingCode   string
	retryCount    int
	autoReconnect bool
	handle        protocol.Client

	// generation identifies the current handle. Events carry the generation
	// of the handle that emitted them; a mismatch means the handle was
	// superseded and the event must not mutate state.
	generation uint64

	// connectSeq invalidates in-flight connect attempts when disconnect or
	// reconnect races ahead of a slow dial.
	connectSeq uint64

	// timerSeq invalidates the pending retry timer. At most one timer is
	// live at a time.
	timerSeq   uint64
	retryTimer *time.Timer
}

// New creates the controller in the uninitialized state. Auto-reconnect
// starts enabled.
func New(cfg Config, store CredentialStore, dial protocol.Dialer) *Controller {
	return &Controller{
		cfg:           cfg.withDefaults(),
		store:         store,
		dial:          dial,
		status:        StatusUninitialized,
		autoReconnect: true,
	}
}

// Init starts the session if it is not already starting or running. It is
// idempotent: while CONNECTING, AWAITING_PAIRING or OPEN it returns the
// current snapshot without side effects, so concurrent calls can never
// produce a second handle. Returns immediately; the connect procedure runs
// asynchronously.
func (c *Controller) Init() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusOpen, StatusConnecting, StatusAwaitingPairing:
		return c.snapshotLocked()
	}

	c.retryCount = 0
	c.beginConnectLocked()
	return c.snapshotLocked()
}

// Status returns an atomic snapshot. It never touches the protocol client.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// PairingPayload returns the pairing code when one is awaiting confirmation.
func (c *Controller) PairingPayload() (string, PairingState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusAwaitingPairing:
		return c.pairingCode, PairingReady
	case StatusOpen:
		return "", PairingNotNeeded
	case StatusConnecting:
		return "", PairingPending
	default:
		return "", PairingUnavailable
	}
}

// Send delivers a message through the current handle. Concurrent sends are
// independent calls into the protocol client; only the status check is
// serialized.
func (c *Controller) Send(ctx context.Context, recipient string, payload protocol.Payload) (string, error) {
	c.mu.Lock()
	if c.status != StatusOpen || c.handle == nil {
		c.mu.Unlock()
		return "", ErrNotConnected
	}
	h := c.handle
	c.mu.Unlock()

	id, err := h.SendMessage(ctx, recipient, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return id, nil
}

// Disconnect disables auto-reconnect, logs the device out (best-effort),
// tears down the handle and settles in CLOSED. Calling it again while
// already closed is a no-op; the second return reports that case.
func (c *Controller) Disconnect(ctx context.Context) (Snapshot, bool) {
	c.mu.Lock()
	already := c.status == StatusClosed && c.handle == nil

	c.autoReconnect = false
	h := c.teardownLocked(StatusClosed)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logoutAndClose(ctx, h)
	return snap, already
}

// Reconnect is an operator-forced full restart: tear down whatever exists,
// then start a fresh connect with counters reset. It bypasses any give-up
// state and leaves the auto-reconnect flag as it was.
func (c *Controller) Reconnect(ctx context.Context) Snapshot {
	c.mu.Lock()
	h := c.teardownLocked(StatusClosed)
	c.mu.Unlock()

	// The old handle must be fully torn down before a new one is created.
	c.logoutAndClose(ctx, h)

	c.mu.Lock()
	defer c.mu.Unlock()
	// A concurrent Init may have claimed the slot while we were logging out.
	if c.status == StatusClosed && c.handle == nil {
		c.retryCount = 0
		c.beginConnectLocked()
	}
	return c.snapshotLocked()
}

// SetAutoReconnect flips the operator flag. It takes effect on the next
// close event.
func (c *Controller) SetAutoReconnect(enabled bool) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoReconnect = enabled
	return c.snapshotLocked()
}

// Shutdown releases the handle on process exit without touching the stored
// credentials or the device link.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	h := c.teardownLocked(StatusClosed)
	c.mu.Unlock()
	if h != nil {
		h.Close()
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Status:               c.status,
		HasPairingPayload:    c.pairingCode != "",
		RetryCount:           c.retryCount,
		AutoReconnectEnabled: c.autoReconnect,
	}
}

// teardownLocked cancels pending work, detaches the current handle and
// settles the state in final. The detached handle is returned so the caller
// can log out and close it outside the lock.
func (c *Controller) teardownLocked(final Status) protocol.Client {
	c.cancelRetryLocked()
	c.connectSeq++

	h := c.handle
	c.handle = nil
	if h != nil {
		c.generation++
	}

	c.status = final
	c.pairingCode = ""
	c.retryCount = 0
	return h
}

func (c *Controller) logoutAndClose(ctx context.Context, h protocol.Client) {
	if h == nil {
		return
	}
	if err := h.Logout(ctx); err != nil {
		logger.Warnf("[session] logout failed: %v", err)
	}
	h.Close()
}

// beginConnectLocked moves to CONNECTING and starts the connect procedure
// asynchronously. Callers must hold the lock and have verified no handle is
// live.
func (c *Controller) beginConnectLocked() {
	c.cancelRetryLocked()
	c.status = StatusConnecting
	c.pairingCode = ""
	c.connectSeq++
	go c.connect(c.connectSeq)
}

// connect is the connect procedure: load credentials, construct a handle,
// subscribe to its events. Nothing here holds the lock across I/O.
func (c *Controller) connect(seq uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	creds, err := c.store.Load(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.connectFailed(seq, err)
			return
		}
		// A malformed credential store needs operator intervention; retrying
		// cannot fix it.
		logger.Errorf("[session] credential load failed: %v", err)
		c.mu.Lock()
		if seq == c.connectSeq && c.status == StatusConnecting {
			c.status = StatusErrored
			c.pairingCode = ""
		}
		c.mu.Unlock()
		return
	}

	client, err := c.dial(ctx, creds)
	if err != nil {
		c.connectFailed(seq, err)
		return
	}

	c.mu.Lock()
	if seq != c.connectSeq || c.status != StatusConnecting {
		// Superseded by disconnect/reconnect while dialing.
		c.mu.Unlock()
		client.Close()
		return
	}
	c.generation++
	gen := c.generation
	c.handle = client
	c.mu.Unlock()

	// Subscribe before returning control; the client buffers events emitted
	// in the meantime, so none are lost.
	go c.pumpEvents(gen, client)
}

// connectFailed funnels synchronous connect failures through the same
// policy a close event takes, keeping the retry ladder consistent
// regardless of failure point.
func (c *Controller) connectFailed(seq uint64, err error) {
	logger.Warnf("[session] connect attempt failed: %v", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.connectSeq || c.status != StatusConnecting {
		return
	}
	c.applyCloseLocked(protocol.ReasonTransient, err.Error())
}

// pumpEvents consumes one handle's event stream in emission order.
func (c *Controller) pumpEvents(gen uint64, client protocol.Client) {
	for ev := range client.Events() {
		c.handleEvent(gen, ev)
	}
}

// handleEvent applies one lifecycle event. Events from a superseded handle
// are detected by generation mismatch and discarded.
func (c *Controller) handleEvent(gen uint64, ev protocol.Event) {
	if ev.Kind == protocol.EventCredentialsChanged {
		c.persistCredentials(gen, ev.Credentials)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		logger.Debugf("[session] discarding stale %s event from generation %d", ev.Kind, gen)
		return
	}

	switch ev.Kind {
	case protocol.EventPairingCode:
		// Codes rotate; a refresh while already awaiting replaces the payload.
		if c.status == StatusConnecting || c.status == StatusAwaitingPairing {
			c.status = StatusAwaitingPairing
			c.pairingCode = ev.PairingCode
			// A fresh pairing attempt is not a failure.
			c.retryCount = 0
		}

	case protocol.EventOpened:
		c.cancelRetryLocked()
		c.status = StatusOpen
		c.pairingCode = ""
		c.retryCount = 0

	case protocol.EventClosed:
		h := c.handle
		c.handle = nil
		c.generation++
		c.applyCloseLocked(ev.Class, ev.Reason)
		if h != nil {
			// The connection is already gone; just release the handle.
			go h.Close()
		}
	}
}

func (c *Controller) persistCredentials(gen uint64, creds []byte) {
	c.mu.Lock()
	stale := gen != c.generation
	c.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()
	if err := c.store.Save(ctx, creds); err != nil {
		logger.Errorf("[session] failed to persist credentials: %v", err)
	}
}

// applyCloseLocked feeds a close into the reconnection policy and applies
// the verdict as one atomic transition.
func (c *Controller) applyCloseLocked(class protocol.ReasonClass, reason string) {
	c.pairingCode = ""

	d := Decide(class, c.retryCount, c.autoReconnect, c.cfg)
	logger.Infof("[session] closed (%s: %s): action=%s retry=%d status=%s",
		class, reason, d.Action, d.RetryCount, d.Status)

	c.retryCount = d.RetryCount
	c.status = d.Status
	if d.DisableAutoReconnect {
		c.autoReconnect = false
	}

	switch d.Action {
	case ActionBackoff:
		c.scheduleConnectLocked(d.Delay, false)
	case ActionWipeAndRestart:
		c.scheduleConnectLocked(d.Delay, true)
	}
}

// scheduleConnectLocked arms the single retry timer. Any previously pending
// timer is cancelled first, so no two reconnects can ever be in flight.
func (c *Controller) scheduleConnectLocked(delay time.Duration, wipe bool) {
	c.cancelRetryLocked()
	c.timerSeq++
	seq := c.timerSeq
	c.retryTimer = time.AfterFunc(delay, func() { c.retryFire(seq, wipe) })
}

func (c *Controller) cancelRetryLocked() {
	c.timerSeq++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// retryFire runs when the retry timer elapses. A timerSeq mismatch means an
// operator command cancelled this timer after it was armed.
func (c *Controller) retryFire(seq uint64, wipe bool) {
	c.mu.Lock()
	if seq != c.timerSeq {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if wipe {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		err := c.store.Purge(ctx)
		cancel()
		if err != nil {
			logger.Errorf("[session] credential wipe failed: %v", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.timerSeq {
		return
	}
	c.retryTimer = nil
	c.beginConnectLocked()
}
