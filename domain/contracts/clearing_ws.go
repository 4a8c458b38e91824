package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketClearingChannel illustrates the "asynchronous" clearing
// capability concretely: a batch/ACH-style channel that streams
// ClearingOutcome pushes over a single long-lived socket instead of being
// polled. Submit returns as soon as the channel acknowledges receipt;
// AwaitOutcome blocks until the corresponding push arrives (or ctx is done).
type WebSocketClearingChannel struct {
	conn *websocket.Conn

	mu      sync.Mutex
	waiters map[string]chan ClearingOutcome
}

type wsSubmitMessage struct {
	Type        string `json:"type"`
	ClearingRef string `json:"clearing_ref"`
	Submission  ClearingSubmission `json:"submission"`
}

type wsOutcomeMessage struct {
	Type        string `json:"type"`
	ClearingRef string `json:"clearing_ref"`
	Outcome     string `json:"outcome"`
}

// NewWebSocketClearingChannel wraps an already-dialed connection and starts
// its read pump. Callers own the connection's lifecycle (Close it when done).
func NewWebSocketClearingChannel(conn *websocket.Conn) *WebSocketClearingChannel {
	c := &WebSocketClearingChannel{conn: conn, waiters: make(map[string]chan ClearingOutcome)}
	go c.readPump()
	return c
}

func (c *WebSocketClearingChannel) IsAsync() bool { return true }

func (c *WebSocketClearingChannel) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.broadcastClosed()
			return
		}
		var msg wsOutcomeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "outcome" {
			continue
		}
		c.mu.Lock()
		ch, ok := c.waiters[msg.ClearingRef]
		c.mu.Unlock()
		if ok {
			ch <- ClearingOutcome(msg.Outcome)
		}
	}
}

func (c *WebSocketClearingChannel) broadcastClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ref, ch := range c.waiters {
		ch <- ClearingPending
		delete(c.waiters, ref)
	}
}

func (c *WebSocketClearingChannel) Submit(ctx context.Context, sub ClearingSubmission) (string, error) {
	clearingRef := sub.PaymentID + ":clearing"
	msg := wsSubmitMessage{Type: "submit", ClearingRef: clearingRef, Submission: sub}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("contracts: encoding ws submit: %w", err)
	}

	c.mu.Lock()
	c.waiters[clearingRef] = make(chan ClearingOutcome, 1)
	c.mu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return "", fmt.Errorf("contracts: ws submit failed: %w", err)
	}
	return clearingRef, nil
}

func (c *WebSocketClearingChannel) Cancel(ctx context.Context, clearingRef string) (bool, error) {
	msg := wsOutcomeMessage{Type: "cancel", ClearingRef: clearingRef}
	b, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return false, fmt.Errorf("contracts: ws cancel failed: %w", err)
	}
	return true, nil
}

// AwaitOutcome blocks until the push for clearingRef arrives or ctx is done.
// A batch/ACH channel may take hours to settle, so callers are expected to
// run this in a saga's suspension path, not inline in a request handler.
func (c *WebSocketClearingChannel) AwaitOutcome(ctx context.Context, clearingRef string) (ClearingOutcome, error) {
	c.mu.Lock()
	ch, ok := c.waiters[clearingRef]
	if !ok {
		ch = make(chan ClearingOutcome, 1)
		c.waiters[clearingRef] = ch
	}
	c.mu.Unlock()

	select {
	case outcome := <-ch:
		c.mu.Lock()
		delete(c.waiters, clearingRef)
		c.mu.Unlock()
		return outcome, nil
	case <-ctx.Done():
		return ClearingPending, ctx.Err()
	}
}
