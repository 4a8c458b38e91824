// Package logging wraps github.com/sirupsen/logrus with the
// service-tagged, saga-scoped structured fields the orchestration core's
// background loops (domain/saga.Redriver, domain/event.Publisher,
// domain/limit.Sweeper, domain/queue.Scheduler) and internal/app.Application
// attach to every log line. Every collaborator that takes a *Logger treats
// nil as "logging disabled" rather than requiring a no-op logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger, stamping every entry with the owning
// service's name.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for service at level, formatted as "json" or text.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{
		Logger:  logger,
		service: service,
	}
}

// WithFields creates a new logger entry with custom fields plus the service
// tag. Every background loop's periodic-tick logging (redrive, outbox
// publish, limit sweep, queue resume) goes through this.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a new logger entry carrying err plus the service tag.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// WithSagaID creates a new logger entry scoped to one saga instance, the
// field every orchestrator-adjacent log line (redrive, synchronous-drive
// failure, queue-triggered resume) keys on.
func (l *Logger) WithSagaID(sagaID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"saga_id": sagaID,
	})
}

// SetOutput sets the logger output.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// LogAuditEvent records a submit_payment/cancel_payment-level decision:
// who did what to which payment and how it came out. internal/app.Application
// calls this on every accepted or rejected cancellation and on every newly
// created saga, independent of the per-step logging the orchestrator's own
// background loops emit.
func (l *Logger) LogAuditEvent(action, resource, resourceID, result string) {
	l.Logger.WithFields(logrus.Fields{
		"service":     l.service,
		"action":      action,
		"resource":    resource,
		"resource_id": resourceID,
		"result":      result,
		"audit":       true,
	}).Info("audit event")
}
