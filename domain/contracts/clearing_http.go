package contracts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClearingChannel is the HTTP-shaped ClearingChannel implementation: a
// synchronous rail (RTC/RTGS) answers submit/await_outcome inline; an
// asynchronous one (ACH/EFT) accepts the submission and expects
// AwaitOutcome to be polled until the backend settles it out of band.
type HTTPClearingChannel struct {
	client  httpDoer
	baseURL string
	async   bool
}

// NewHTTPClearingChannel wires a clearing channel against baseURL.
func NewHTTPClearingChannel(baseURL string, timeout time.Duration, async bool) *HTTPClearingChannel {
	return &HTTPClearingChannel{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		async:   async,
	}
}

// SetClient overrides the HTTP client used to reach the clearing rail, e.g.
// with a ratelimit.RateLimitedClient to cap outbound call rate during
// recovery from a prior outage.
func (c *HTTPClearingChannel) SetClient(d httpDoer) { c.client = d }

func (c *HTTPClearingChannel) IsAsync() bool { return c.async }

type submitRequest struct {
	PaymentID        string `json:"payment_id"`
	TenantID         string `json:"tenant_id"`
	DebitAccountRef  string `json:"debit_account_ref"`
	CreditAccountRef string `json:"credit_account_ref"`
	AmountMinor      int64  `json:"amount_minor"`
	Currency         string `json:"currency"`
	ClearingSystem   string `json:"clearing_system"`
}

type submitResponse struct {
	ClearingRef string `json:"clearing_ref"`
}

type outcomeResponse struct {
	Outcome string `json:"outcome"`
}

func (c *HTTPClearingChannel) Submit(ctx context.Context, sub ClearingSubmission) (string, error) {
	body, err := json.Marshal(submitRequest{
		PaymentID: sub.PaymentID, TenantID: sub.TenantID,
		DebitAccountRef: sub.DebitAccountRef, CreditAccountRef: sub.CreditAccountRef,
		AmountMinor: sub.AmountMinor, Currency: sub.Currency, ClearingSystem: sub.ClearingSystem,
	})
	if err != nil {
		return "", fmt.Errorf("contracts: encoding clearing submission: %w", err)
	}

	var resp submitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/clearing/submit", body, &resp); err != nil {
		return "", err
	}
	return resp.ClearingRef, nil
}

func (c *HTTPClearingChannel) Cancel(ctx context.Context, clearingRef string) (bool, error) {
	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/clearing/"+clearingRef+"/cancel", nil, &resp); err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

func (c *HTTPClearingChannel) AwaitOutcome(ctx context.Context, clearingRef string) (ClearingOutcome, error) {
	var resp outcomeResponse
	if err := c.doJSON(ctx, http.MethodGet, "/clearing/"+clearingRef+"/outcome", nil, &resp); err != nil {
		return "", err
	}
	return ClearingOutcome(resp.Outcome), nil
}

func (c *HTTPClearingChannel) doJSON(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("contracts: building clearing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("contracts: clearing call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("contracts: clearing call returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
