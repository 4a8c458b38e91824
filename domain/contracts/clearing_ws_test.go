package contracts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// wsEchoServer accepts one client connection, reads submit messages, and
// immediately pushes back a CLEARED outcome for each clearing_ref it sees.
func wsEchoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg wsSubmitMessage
			if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "submit" {
				continue
			}
			out := wsOutcomeMessage{Type: "outcome", ClearingRef: msg.ClearingRef, Outcome: string(ClearingCleared)}
			b, _ := json.Marshal(out)
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}))
}

func dialTestServer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestWebSocketClearingChannel_SubmitAndAwaitOutcome(t *testing.T) {
	srv := wsEchoServer(t)
	defer srv.Close()

	conn := dialTestServer(t, srv)
	defer conn.Close()

	channel := NewWebSocketClearingChannel(conn)
	require.True(t, channel.IsAsync())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	clearingRef, err := channel.Submit(ctx, ClearingSubmission{PaymentID: "pay-1", AmountMinor: 1000, Currency: "USD"})
	require.NoError(t, err)
	require.Equal(t, "pay-1:clearing", clearingRef)

	outcome, err := channel.AwaitOutcome(ctx, clearingRef)
	require.NoError(t, err)
	require.Equal(t, ClearingCleared, outcome)
}

func TestWebSocketClearingChannel_AwaitOutcomeCancelledByContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		// Never sends an outcome back.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	conn := dialTestServer(t, srv)
	defer conn.Close()

	channel := NewWebSocketClearingChannel(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := channel.AwaitOutcome(ctx, "never-arrives")
	require.Error(t, err)
}
