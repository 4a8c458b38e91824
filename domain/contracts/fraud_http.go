package contracts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/paymentflow/core/domain/fraud"
	"github.com/paymentflow/core/infrastructure/fallback"
)

// HTTPFraudProvider calls an external fraud-scoring service over HTTP,
// implementing FraudScoreProvider (domain/fraud.Provider). A transient
// failure falls back to the customer's last-known score rather than going
// straight to fraud.FallbackFailOpen/FailClosed, since a few-minutes-stale
// score is almost always a better signal than none.
type HTTPFraudProvider struct {
	client   httpDoer
	baseURL  string
	fallback *fallback.Handler
	cacheTTL time.Duration
}

// SetClient overrides the HTTP client used to reach the fraud scorer, e.g.
// with a ratelimit.RateLimitedClient.
func (p *HTTPFraudProvider) SetClient(d httpDoer) { p.client = d }

// NewHTTPFraudProvider wires a fraud provider against baseURL.
func NewHTTPFraudProvider(baseURL string, timeout time.Duration) *HTTPFraudProvider {
	return &HTTPFraudProvider{
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		fallback: fallback.NewHandler(fallback.DefaultConfig()),
		cacheTTL: 10 * time.Minute,
	}
}

type scoreRequestBody struct {
	TenantID    string `json:"tenant_id"`
	CustomerID  string `json:"customer_id"`
	PaymentID   string `json:"payment_id"`
	PaymentType string `json:"payment_type"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type scoreResponseBody struct {
	Score float64 `json:"score"`
}

func (p *HTTPFraudProvider) Score(ctx context.Context, req fraud.ScoreRequest) (float64, error) {
	cacheKey := req.TenantID + ":" + req.CustomerID

	result := p.fallback.Execute(ctx, func(ctx context.Context) (float64, error) {
		score, err := p.callScore(ctx, req)
		if err != nil {
			return 0, err
		}
		p.fallback.SetCache(cacheKey, score, p.cacheTTL)
		return score, nil
	}, func(ctx context.Context) (float64, error) {
		if cached, ok := p.fallback.GetCache(cacheKey); ok {
			return cached, nil
		}
		return 0, fmt.Errorf("contracts: no cached fraud score for %s", cacheKey)
	})
	if result.Err != nil {
		return 0, result.Err
	}
	return result.Score, nil
}

func (p *HTTPFraudProvider) callScore(ctx context.Context, req fraud.ScoreRequest) (float64, error) {
	body, err := json.Marshal(scoreRequestBody{
		TenantID: req.TenantID, CustomerID: req.CustomerID, PaymentID: req.PaymentID,
		PaymentType: req.PaymentType, AmountMinor: req.AmountMinor, Currency: req.Currency,
	})
	if err != nil {
		return 0, fmt.Errorf("contracts: encoding fraud score request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("contracts: building fraud score request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("contracts: fraud score call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("contracts: fraud score call returned status %d", resp.StatusCode)
	}
	var out scoreResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("contracts: decoding fraud score response: %w", err)
	}
	return out.Score, nil
}

var _ fraud.Provider = (*HTTPFraudProvider)(nil)
