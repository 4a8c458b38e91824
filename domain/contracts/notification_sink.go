package contracts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/paymentflow/core/domain/event"
)

// terminalEventTypes are the only TransactionEvent types worth telling an
// external NotificationSink about; intermediate pipeline steps (FraudApproved,
// LimitReserved, ...) are acknowledged as published without forwarding.
var terminalEventTypes = map[event.Type]string{
	event.TypePaymentCompleted: "COMPLETED",
	event.TypePaymentFailed:    "FAILED",
	event.TypePaymentRejected:  "REJECTED",
}

// NotificationEventSink adapts a NotificationSink into an event.Sink so the
// outbox publisher can drive it directly.
type NotificationEventSink struct {
	Sink NotificationSink
}

func (n NotificationEventSink) Publish(ctx context.Context, ev event.TransactionEvent) error {
	status, ok := terminalEventTypes[ev.Type]
	if !ok {
		return nil
	}
	reason, _ := ev.Payload["reason"].(string)
	return n.Sink.Notify(ctx, ev.TenantID, ev.SagaID, status, reason)
}

// HTTPNotificationSink posts terminal outcomes to a configured webhook.
// Implementations on the receiving end must tolerate duplicate delivery.
type HTTPNotificationSink struct {
	client     httpDoer
	webhookURL string
}

// NewHTTPNotificationSink wires a webhook-backed NotificationSink.
func NewHTTPNotificationSink(webhookURL string, timeout time.Duration) *HTTPNotificationSink {
	return &HTTPNotificationSink{client: &http.Client{Timeout: timeout}, webhookURL: webhookURL}
}

// SetClient overrides the HTTP client used to reach the webhook, e.g. with a
// ratelimit.RateLimitedClient.
func (s *HTTPNotificationSink) SetClient(d httpDoer) { s.client = d }

type notifyPayload struct {
	TenantID  string `json:"tenant_id"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

func (s *HTTPNotificationSink) Notify(ctx context.Context, tenantID, paymentID, status, reason string) error {
	body, err := json.Marshal(notifyPayload{TenantID: tenantID, PaymentID: paymentID, Status: status, Reason: reason})
	if err != nil {
		return fmt.Errorf("contracts: encoding notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("contracts: building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("contracts: notification call failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("contracts: notification call returned status %d", resp.StatusCode)
	}
	return nil
}
