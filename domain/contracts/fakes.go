package contracts

import (
	"context"
	"errors"
	"sync"

	"github.com/paymentflow/core/domain/fraud"
)

// FakePaymentSource is an in-memory PaymentInitiationSource: tests push
// requests onto it and the saga driver (or a test) calls Receive to drain
// them in FIFO order.
type FakePaymentSource struct {
	mu    sync.Mutex
	queue []PaymentRequest
}

func NewFakePaymentSource() *FakePaymentSource { return &FakePaymentSource{} }

func (f *FakePaymentSource) Push(req PaymentRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, req)
}

var ErrNoPaymentRequest = errors.New("contracts: no payment request queued")

func (f *FakePaymentSource) Receive(ctx context.Context) (PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return PaymentRequest{}, ErrNoPaymentRequest
	}
	req := f.queue[0]
	f.queue = f.queue[1:]
	return req, nil
}

// FakeNotificationSink records every terminal outcome delivered to it.
type FakeNotificationSink struct {
	mu    sync.Mutex
	Calls []NotifyCall
}

type NotifyCall struct {
	TenantID  string
	PaymentID string
	Status    string
	Reason    string
}

func NewFakeNotificationSink() *FakeNotificationSink { return &FakeNotificationSink{} }

func (f *FakeNotificationSink) Notify(ctx context.Context, tenantID, paymentID, status, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, NotifyCall{TenantID: tenantID, PaymentID: paymentID, Status: status, Reason: reason})
	return nil
}

// FakeClearingChannel is a controllable in-memory ClearingChannel for saga
// tests: the test pre-programs the outcome (or error) each submission should
// produce via SetOutcome, keyed by the submission's payment_id.
type FakeClearingChannel struct {
	mu        sync.Mutex
	async     bool
	outcomes  map[string]ClearingOutcome
	submitErr map[string]error
	submitted []ClearingSubmission
	cancelled map[string]bool
}

func NewFakeClearingChannel(async bool) *FakeClearingChannel {
	return &FakeClearingChannel{
		async:     async,
		outcomes:  make(map[string]ClearingOutcome),
		submitErr: make(map[string]error),
		cancelled: make(map[string]bool),
	}
}

func (f *FakeClearingChannel) IsAsync() bool { return f.async }

// SetOutcome programs the outcome AwaitOutcome returns for a clearing_ref
// derived from paymentID (the fake uses "<payment_id>:clearing" as its ref,
// mirroring WebSocketClearingChannel's scheme).
func (f *FakeClearingChannel) SetOutcome(paymentID string, outcome ClearingOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[paymentID+":clearing"] = outcome
}

func (f *FakeClearingChannel) SetSubmitError(paymentID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr[paymentID] = err
}

func (f *FakeClearingChannel) Submit(ctx context.Context, sub ClearingSubmission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, sub)
	if err, ok := f.submitErr[sub.PaymentID]; ok {
		return "", err
	}
	ref := sub.PaymentID + ":clearing"
	if _, ok := f.outcomes[ref]; !ok {
		f.outcomes[ref] = ClearingPending
	}
	return ref, nil
}

func (f *FakeClearingChannel) Cancel(ctx context.Context, clearingRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled[clearingRef] = true
	return true, nil
}

func (f *FakeClearingChannel) AwaitOutcome(ctx context.Context, clearingRef string) (ClearingOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	outcome, ok := f.outcomes[clearingRef]
	if !ok {
		return ClearingPending, nil
	}
	return outcome, nil
}

func (f *FakeClearingChannel) Submissions() []ClearingSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ClearingSubmission, len(f.submitted))
	copy(out, f.submitted)
	return out
}

func (f *FakeClearingChannel) WasCancelled(clearingRef string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[clearingRef]
}

// FakeFraudProvider returns a fixed score (or error) for every request.
type FakeFraudProvider struct {
	FixedScore float64
	Err        error
}

func (f FakeFraudProvider) Score(ctx context.Context, req fraud.ScoreRequest) (float64, error) {
	return f.FixedScore, f.Err
}
