package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}
	if m.SagaStepTotal == nil {
		t.Error("SagaStepTotal should not be nil")
	}
	if m.SagaStepDuration == nil {
		t.Error("SagaStepDuration should not be nil")
	}
	if m.BreakerStateChanges == nil {
		t.Error("BreakerStateChanges should not be nil")
	}
}

func TestRecordSagaStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordSagaStep("reserve_limit", "success", 10*time.Millisecond)
	m.RecordSagaStep("initiate_clearing", "failure", 50*time.Millisecond)
}

func TestRecordCompensation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordCompensation("reserve_limit", "success")
	m.RecordCompensation("debit_account", "failure")
}

func TestRecordSagaTerminal(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordSagaTerminal("completed")
	m.RecordSagaTerminal("compensated")
	m.RecordSagaTerminal("failed")
}

func TestRecordBreakerStateChange(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordBreakerStateChange("clearing-channel-a", "closed", "open")
	m.RecordBreakerStateChange("clearing-channel-a", "open", "half-open")
}

func TestRecordRetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordRetry("account_debit", "success")
	m.RecordRetry("account_debit", "exhausted")
}

func TestRecordLimitReservation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.RecordLimitReservation("reserved")
	m.RecordLimitReservation("rejected")
	m.SetLimitBucketUsage("daily", 12500.50)
}

func TestQueueMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	m.SetQueueDepth("pending", 4)
	m.SetQueueDepth("processing", 1)
	m.RecordQueueRetry("fraud-scorer")
	m.RecordQueueExpired("fraud-scorer")
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test-service", reg)

	if m == nil {
		t.Fatal("Expected metrics instance, got nil")
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if len(metricFamilies) == 0 {
		t.Error("Expected metrics to be registered")
	}
}
