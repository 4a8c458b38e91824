// Package ratelimit shapes outbound call rate against the clearing, fraud
// scoring, and notification rails (C10) while one of them is recovering from
// an outage, so a burst of queued saga redrives cannot immediately re-trip a
// circuit breaker that just closed. Each rail draws from its own budget via
// Registry, the same per-key isolation domain/account.Adapter applies to its
// backend circuit breakers (breakerKey(backendID, tenantID)) — one rail's
// recovery window must never be stolen by another rail's backlog.
package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rail names the external adapter a limiter budget is scoped to. Each of
// cmd/paymentsvc's three outbound HTTP adapters draws from its own Rail
// rather than a single shared budget.
type Rail string

const (
	RailClearing     Rail = "clearing"
	RailFraudScore   Rail = "fraud_score"
	RailNotification Rail = "notification"
)

// RateLimitConfig bounds one rail's outbound call rate.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	Window            time.Duration
}

// DefaultConfig is the fallback budget for a rail with no explicit
// configuration.
func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		Window:            time.Second,
	}
}

// RateLimiter wraps golang.org/x/time/rate with the second/per-minute
// dual-window check a rail's health reporting uses to decide whether it is
// currently throttled.
type RateLimiter struct {
	limiter   *rate.Limiter
	perMinute *rate.Limiter
	mu        sync.RWMutex
	config    RateLimitConfig
}

func newLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}

	return &RateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		perMinute: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond*60), cfg.Burst*2),
		config:    cfg,
	}
}

func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

func (r *RateLimiter) AllowN(now time.Time, n int) bool {
	return r.limiter.AllowN(now, n)
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

func (r *RateLimiter) LimitExceeded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.limiter.Allow()
}

func (r *RateLimiter) PerMinuteLimitExceeded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.perMinute.Allow()
}

func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter = rate.NewLimiter(rate.Limit(r.config.RequestsPerSecond), r.config.Burst)
	r.perMinute = rate.NewLimiter(rate.Limit(r.config.RequestsPerSecond*60), r.config.Burst*2)
}

// RateLimitedClient is an http.Client substitute that waits for a rail's
// limiter before delegating. It satisfies domain/contracts's httpDoer
// interface, so HTTPClearingChannel, HTTPFraudProvider, and
// HTTPNotificationSink each accept one via SetClient without importing this
// package's Registry directly.
type RateLimitedClient struct {
	client  *http.Client
	limiter *RateLimiter
}

// NewRateLimitedClient wraps client with a standalone limiter. Prefer
// Registry.ClientFor when wiring more than one rail, so rails don't end up
// sharing a limiter by accident.
func NewRateLimitedClient(client *http.Client, cfg RateLimitConfig) *RateLimitedClient {
	return &RateLimitedClient{
		client:  client,
		limiter: newLimiter(cfg),
	}
}

func (c *RateLimitedClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

func (c *RateLimitedClient) Allow() bool {
	return c.limiter.Allow()
}

func (c *RateLimitedClient) LimitExceeded() bool {
	return c.limiter.LimitExceeded()
}

// Registry hands out one RateLimitedClient per Rail, each backed by its own
// RateLimiter, configured independently via Configure. A rail with no
// explicit Configure call falls back to the Registry's default budget.
type Registry struct {
	mu      sync.Mutex
	def     RateLimitConfig
	configs map[Rail]RateLimitConfig
	clients map[Rail]*RateLimitedClient
}

// NewRegistry creates a Registry whose rails default to def until
// individually Configure'd.
func NewRegistry(def RateLimitConfig) *Registry {
	return &Registry{
		def:     def,
		configs: make(map[Rail]RateLimitConfig),
		clients: make(map[Rail]*RateLimitedClient),
	}
}

// Configure sets rail's budget. Must be called before the first ClientFor
// call for that rail; ClientFor caches its client on first use.
func (reg *Registry) Configure(rail Rail, cfg RateLimitConfig) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.configs[rail] = cfg
}

// ClientFor returns rail's RateLimitedClient, constructing it on first call
// from rail's configured budget (or the Registry default) wrapping client.
func (reg *Registry) ClientFor(rail Rail, client *http.Client) *RateLimitedClient {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.clients[rail]; ok {
		return existing
	}
	cfg, ok := reg.configs[rail]
	if !ok {
		cfg = reg.def
	}
	rc := &RateLimitedClient{client: client, limiter: newLimiter(cfg)}
	reg.clients[rail] = rc
	return rc
}

// LimiterFor exposes rail's underlying RateLimiter for callers that need
// Allow/LimitExceeded checks outside of an http.Client call, e.g. a health
// endpoint reporting which rails are currently throttled.
func (reg *Registry) LimiterFor(rail Rail) *RateLimiter {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if rc, ok := reg.clients[rail]; ok {
		return rc.limiter
	}
	cfg, ok := reg.configs[rail]
	if !ok {
		cfg = reg.def
	}
	return newLimiter(cfg)
}
