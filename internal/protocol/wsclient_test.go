package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

func recvEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSClient_LifecycleAndSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hello frame
		if err := conn.ReadJSON(&hello); err != nil || hello.Type != "hello" {
			return
		}
		if string(hello.Credentials) != "stored-creds" {
			conn.WriteJSON(frame{Type: "closed", Reason: "unauthorized"})
			return
		}

		conn.WriteJSON(frame{Type: "pairing-code", Code: "QR123"})
		conn.WriteJSON(frame{Type: "opened"})
		conn.WriteJSON(frame{Type: "credentials", Credentials: []byte("rotated")})

		var send frame
		if err := conn.ReadJSON(&send); err != nil || send.Type != "send" {
			return
		}
		conn.WriteJSON(frame{Type: "ack", ID: send.ID})

		var logout frame
		if err := conn.ReadJSON(&logout); err != nil || logout.Type != "logout" {
			return
		}
		conn.WriteJSON(frame{Type: "closed", Reason: "conflict"})
	}))
	defer srv.Close()

	dial := NewDialer(wsURL(srv))
	client, err := dial(context.Background(), []byte("stored-creds"))
	require.NoError(t, err)
	defer client.Close()

	events := client.Events()

	ev := recvEvent(t, events)
	require.Equal(t, EventPairingCode, ev.Kind)
	require.Equal(t, "QR123", ev.PairingCode)

	ev = recvEvent(t, events)
	require.Equal(t, EventOpened, ev.Kind)

	ev = recvEvent(t, events)
	require.Equal(t, EventCredentialsChanged, ev.Kind)
	require.Equal(t, []byte("rotated"), ev.Credentials)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, err := client.SendMessage(ctx, "recipient", Payload{Text: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, client.Logout(ctx))

	ev = recvEvent(t, events)
	require.Equal(t, EventClosed, ev.Kind)
	require.Equal(t, ReasonConflict, ev.Class)

	_, open := <-events
	require.False(t, open, "event channel should close after the closed event")
}

func TestWSClient_SendRejectedByGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hello frame
		conn.ReadJSON(&hello)
		conn.WriteJSON(frame{Type: "opened"})

		var send frame
		if err := conn.ReadJSON(&send); err != nil {
			return
		}
		conn.WriteJSON(frame{Type: "ack", ID: send.ID, Error: "recipient unknown"})
	}))
	defer srv.Close()

	dial := NewDialer(wsURL(srv))
	client, err := dial(context.Background(), nil)
	require.NoError(t, err)
	defer client.Close()

	require.Equal(t, EventOpened, recvEvent(t, client.Events()).Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = client.SendMessage(ctx, "nobody", Payload{Text: "hi"})
	require.ErrorContains(t, err, "recipient unknown")
}

func TestWSClient_DroppedConnectionIsTransientClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var hello frame
		conn.ReadJSON(&hello)
		// Drop the connection without a closed frame.
		conn.Close()
	}))
	defer srv.Close()

	dial := NewDialer(wsURL(srv))
	client, err := dial(context.Background(), nil)
	require.NoError(t, err)
	defer client.Close()

	ev := recvEvent(t, client.Events())
	require.Equal(t, EventClosed, ev.Kind)
	require.Equal(t, ReasonTransient, ev.Class)
}
