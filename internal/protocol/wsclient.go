package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/walink/walink/pkg/logger"
)

// frame is the JSON envelope exchanged with the gateway. The gateway owns
// the messaging wire protocol; this client only shuttles envelopes.
type frame struct {
	Type string `json:"type"`

	// hello / credentials
	Credentials []byte `json:"credentials,omitempty"`

	// pairing-code
	Code string `json:"code,omitempty"`

	// closed
	Reason string `json:"reason,omitempty"`

	// send / ack
	ID       string `json:"id,omitempty"`
	To       string `json:"to,omitempty"`
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

const eventBuffer = 16

// WSClient is a Client over a websocket connection to the upstream gateway.
type WSClient struct {
	conn   *websocket.Conn
	events chan Event

	// writeMu serializes writes; gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan frame

	closeOnce sync.Once
	done      chan struct{}
}

// NewDialer returns a Dialer that connects to gatewayURL and performs the
// hello handshake with the stored credentials.
func NewDialer(gatewayURL string) Dialer {
	return func(ctx context.Context, creds []byte) (Client, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, gatewayURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial gateway: %w", err)
		}

		c := &WSClient{
			conn:    conn,
			events:  make(chan Event, eventBuffer),
			pending: make(map[string]chan frame),
			done:    make(chan struct{}),
		}

		if err := c.write(frame{Type: "hello", Credentials: creds}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to send hello: %w", err)
		}

		go c.readLoop()
		return c, nil
	}
}

// Events implements Client.
func (c *WSClient) Events() <-chan Event {
	return c.events
}

// SendMessage implements Client. It assigns a delivery ID, writes a send
// frame and waits for the matching ack.
func (c *WSClient) SendMessage(ctx context.Context, recipient string, payload Payload) (string, error) {
	id := uuid.NewString()

	ack := make(chan frame, 1)
	c.pendingMu.Lock()
	c.pending[id] = ack
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	err := c.write(frame{
		Type:     "send",
		ID:       id,
		To:       recipient,
		Text:     payload.Text,
		MediaURL: payload.MediaURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to write send frame: %w", err)
	}

	select {
	case f := <-ack:
		if f.Error != "" {
			return "", fmt.Errorf("gateway rejected send: %s", f.Error)
		}
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", errors.New("connection closed")
	}
}

// Logout implements Client. Best-effort: the gateway invalidates the device
// link on its side.
func (c *WSClient) Logout(ctx context.Context) error {
	if err := c.write(frame{Type: "logout"}); err != nil {
		return fmt.Errorf("failed to write logout frame: %w", err)
	}
	return nil
}

// Close implements Client.
func (c *WSClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

func (c *WSClient) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(f)
}

// readLoop is the sole sender on c.events and closes it on exit, so event
// consumers observe an ordered stream with a definite end.
func (c *WSClient) readLoop() {
	defer close(c.events)

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			select {
			case <-c.done:
				// Deliberate Close; no close event.
			default:
				logger.Debugf("[protocol] read failed: %v", err)
				c.emit(Event{Kind: EventClosed, Reason: err.Error(), Class: ReasonTransient})
			}
			c.Close()
			return
		}

		switch f.Type {
		case "pairing-code":
			c.emit(Event{Kind: EventPairingCode, PairingCode: f.Code})
		case "opened":
			c.emit(Event{Kind: EventOpened})
		case "closed":
			c.emit(Event{Kind: EventClosed, Reason: f.Reason, Class: ClassifyReason(f.Reason)})
			c.Close()
			return
		case "credentials":
			c.emit(Event{Kind: EventCredentialsChanged, Credentials: f.Credentials})
		case "ack":
			c.pendingMu.Lock()
			ack := c.pending[f.ID]
			c.pendingMu.Unlock()
			if ack != nil {
				ack <- f
			}
		default:
			logger.Tracef("[protocol] ignoring frame type %q", f.Type)
		}
	}
}

func (c *WSClient) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
