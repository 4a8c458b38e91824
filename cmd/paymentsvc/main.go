// Command paymentsvc is the orchestration core's single deployable: it wires
// the saga pipeline, its background sweepers, and the submit_payment /
// cancel_payment / query_status facade over Postgres and Redis, then serves
// Prometheus metrics until told to stop. Inbound payment delivery and any
// external-facing transport are this core's collaborators, not its
// concern — production wiring substitutes payment_source with a
// queue/stream-backed contracts.PaymentInitiationSource.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paymentflow/core/domain/account"
	"github.com/paymentflow/core/domain/clock"
	"github.com/paymentflow/core/domain/contracts"
	"github.com/paymentflow/core/domain/event"
	"github.com/paymentflow/core/domain/fraud"
	"github.com/paymentflow/core/domain/limit"
	"github.com/paymentflow/core/domain/queue"
	"github.com/paymentflow/core/domain/routing"
	"github.com/paymentflow/core/domain/saga"
	"github.com/paymentflow/core/infrastructure/cache"
	cfgpkg "github.com/paymentflow/core/infrastructure/config"
	"github.com/paymentflow/core/infrastructure/logging"
	"github.com/paymentflow/core/infrastructure/metrics"
	"github.com/paymentflow/core/infrastructure/ratelimit"
	"github.com/paymentflow/core/infrastructure/state"
	"github.com/paymentflow/core/internal/app"
	"github.com/paymentflow/core/storage/postgres"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		logging.New("paymentsvc", "info", "json").WithError(err).Fatal("load config")
	}

	logger := logging.New("paymentsvc", cfg.LogLevel, cfg.LogFormat)
	m := metrics.New("paymentsvc")

	rootCtx := context.Background()

	db, err := postgres.Open(rootCtx, cfg.DatabaseURL, cfg.DatabaseMaxOpen, cfg.DatabaseMaxIdle, cfg.DatabaseConnLife)
	if err != nil {
		logger.WithError(err).Fatal("connect to postgres")
	}
	defer db.Close()

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		logger.WithError(err).Fatal("apply migrations")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer redisClient.Close()

	sagaStore := postgres.NewSagaRepository(db)
	eventStore := postgres.NewOutboxRepository(db)
	limitRepo := postgres.NewLimitRepository(db)
	routingRepo := postgres.NewRoutingRepository(db)
	fraudToggleRepo := postgres.NewFraudToggleRepository(db)

	leaseState, err := state.NewPersistentState(state.Config{
		Backend:   state.NewRedisBackend(redisClient),
		KeyPrefix: "saga-lease:",
		MaxSize:   1 << 20,
	})
	if err != nil {
		logger.WithError(err).Fatal("initialise lease state")
	}
	idempotencyState, err := state.NewPersistentState(state.Config{
		Backend:   state.NewRedisBackend(redisClient),
		KeyPrefix: "payment-idem:",
		MaxSize:   1 << 20,
	})
	if err != nil {
		logger.WithError(err).Fatal("initialise idempotency state")
	}

	sysClock := clock.SystemClock{}
	leases := saga.NewLeaseStore(leaseState, sysClock)
	ids := clock.NewIDService(sysClock)

	limitEngine := limit.New(limitRepo, limitConfigResolver(), sysClock, time.UTC, m)

	outboundLimiters := ratelimit.NewRegistry(ratelimit.RateLimitConfig{
		RequestsPerSecond: float64(cfgpkg.GetEnvInt("OUTBOUND_RATE_LIMIT_RPS", 200)),
		Burst:             cfgpkg.GetEnvInt("OUTBOUND_RATE_LIMIT_BURST", 400),
		Window:            time.Second,
	})
	outboundLimiters.Configure(ratelimit.RailClearing, ratelimit.RateLimitConfig{
		RequestsPerSecond: float64(cfgpkg.GetEnvInt("CLEARING_RATE_LIMIT_RPS", 200)),
		Burst:             cfgpkg.GetEnvInt("CLEARING_RATE_LIMIT_BURST", 400),
		Window:            time.Second,
	})
	outboundLimiters.Configure(ratelimit.RailFraudScore, ratelimit.RateLimitConfig{
		RequestsPerSecond: float64(cfgpkg.GetEnvInt("FRAUD_SCORE_RATE_LIMIT_RPS", 100)),
		Burst:             cfgpkg.GetEnvInt("FRAUD_SCORE_RATE_LIMIT_BURST", 200),
		Window:            time.Second,
	})
	outboundLimiters.Configure(ratelimit.RailNotification, ratelimit.RateLimitConfig{
		RequestsPerSecond: float64(cfgpkg.GetEnvInt("NOTIFICATION_RATE_LIMIT_RPS", 50)),
		Burst:             cfgpkg.GetEnvInt("NOTIFICATION_RATE_LIMIT_BURST", 100),
		Window:            time.Second,
	})

	fraudProvider := contracts.NewHTTPFraudProvider(cfgpkg.GetEnv("FRAUD_SCORE_BASE_URL", "http://fraud-scoring.internal"), 5*time.Second)
	fraudProvider.SetClient(outboundLimiters.ClientFor(ratelimit.RailFraudScore, &http.Client{Timeout: 5 * time.Second}))
	fraudEval := fraud.NewEvaluator(fraudProvider, limitRepo, 0)

	routeCache := cache.NewCache(cache.DefaultConfig())
	routeEngine := routing.NewEngine(routingRepo, routeCache, sysClock)

	queueStore := queue.NewMemoryStore()
	registry := account.NewRegistry()
	coreBanking := account.NewSyncBackend("core-banking", 0)
	registry.Register(coreBanking, "")
	ledger, err := account.NewAdapter(registry, 4096, time.Minute, queueStore)
	if err != nil {
		logger.WithError(err).Fatal("initialise account adapter")
	}

	clearingChannel := contracts.NewHTTPClearingChannel(cfgpkg.GetEnv("CLEARING_BASE_URL", "http://clearing.internal"), 10*time.Second, false)
	clearingChannel.SetClient(outboundLimiters.ClientFor(ratelimit.RailClearing, &http.Client{Timeout: 10 * time.Second}))

	orchestrator := saga.NewOrchestrator(sagaStore, leases, eventStore, sysClock, hostnameOrDefault(), cfg.SagaLeaseTTL, cfg.SagaMaxStepRetries,
		&saga.FraudEvalStep{Evaluator: fraudEval, Toggles: fraudToggleRepo, Fallback: fraud.FallbackFailOpen, Clock: sysClock},
		&saga.LimitReserveStep{Engine: limitEngine},
		&saga.FundsHoldStep{Ledger: ledger},
		&saga.RouteSelectStep{Engine: routeEngine, Context: routingContextFromInstance},
		&saga.ClearingSubmitStep{Channel: clearingChannel},
		&saga.AwaitClearingStep{Channel: clearingChannel},
		&saga.LedgerPostStep{Ledger: ledger, LimitEngine: limitEngine},
	)

	notifySink := contracts.NewHTTPNotificationSink(cfgpkg.GetEnv("NOTIFICATION_WEBHOOK_URL", "http://notifications.internal/webhook"), 10*time.Second)
	notifySink.SetClient(outboundLimiters.ClientFor(ratelimit.RailNotification, &http.Client{Timeout: 10 * time.Second}))
	publisher := event.NewPublisher(eventStore, contracts.NotificationEventSink{Sink: notifySink}, event.DefaultPublisherConfig(), logger, m)
	if err := publisher.Start(); err != nil {
		logger.WithError(err).Fatal("start outbox publisher")
	}
	defer publisher.Stop()

	sweeper := limit.NewSweeper(limitEngine, limit.SweeperConfig{Interval: cfg.LimitSweepInterval}, logger)
	if err := sweeper.Start(); err != nil {
		logger.WithError(err).Fatal("start limit sweeper")
	}
	defer sweeper.Stop()

	queueSweeper := queue.NewSweeper(queueStore, &app.QueueSagaResumer{Orchestrator: orchestrator, Logger: logger}, time.Second, 5*time.Minute)
	queueSweeper.RegisterRedriver(coreBanking.ID(), account.Redriver(coreBanking))
	queueScheduler := queue.NewScheduler(queueSweeper, queue.SchedulerConfig{Interval: cfg.QueueSweepInterval}, time.Now, logger)
	if err := queueScheduler.Start(); err != nil {
		logger.WithError(err).Fatal("start queue scheduler")
	}
	defer queueScheduler.Stop()

	redriver := saga.NewRedriver(sagaStore, orchestrator, saga.RedriverConfig{Interval: 10 * time.Second, BatchSize: 200}, logger)
	if err := redriver.Start(); err != nil {
		logger.WithError(err).Fatal("start saga redriver")
	}
	defer redriver.Stop()

	application := app.New(sagaStore, orchestrator, ids, sysClock, idempotencyState,
		app.WithSagaDeadline(cfg.SagaDeadline), app.WithLogger(logger))

	// payment_source is this core's one abstract inbound boundary: any
	// concrete transport (a Kafka consumer, an internal gateway's gRPC call)
	// is an external collaborator the deployment supplies. Absent one
	// configured, the core idles on an empty FakePaymentSource rather than
	// growing an HTTP listener of its own.
	paymentSource := contracts.NewFakePaymentSource()

	consumeCtx, stopConsuming := context.WithCancel(rootCtx)
	defer stopConsuming()
	go consumePayments(consumeCtx, paymentSource, application, logger)

	metricsServer := &http.Server{Addr: cfg.MetricsListenAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()

	logger.WithFields(map[string]interface{}{"metrics_addr": cfg.MetricsListenAddr}).Info("paymentsvc started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	stopConsuming()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.WithFields(map[string]interface{}{}).Info("paymentsvc shutting down")
}

// consumePayments drains src and submits each request through application
// until ctx is cancelled. A production payment_source blocks on Receive
// until a request arrives or ctx is done; contracts.ErrNoPaymentRequest
// (the fake source's empty-queue signal) is treated as "nothing to do yet".
func consumePayments(ctx context.Context, src contracts.PaymentInitiationSource, application *app.Application, logger *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, err := src.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			time.Sleep(time.Second)
			continue
		}

		if _, err := application.SubmitPayment(ctx, req); err != nil {
			logger.WithFields(map[string]interface{}{
				"tenant_id": req.TenantID, "external_reference": req.ExternalReference,
			}).WithError(err).Warn("paymentsvc: submit_payment failed")
		}
	}
}

func hostnameOrDefault() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "paymentsvc"
}

func limitConfigResolver() limit.StaticConfigResolver {
	return limit.StaticConfigResolver{Config: limit.Config{
		DailyLimitMinor:   10_000_000_00,
		MonthlyLimitMinor: 50_000_000_00,
		PerTypeLimitMinor: map[string]int64{"RTC": 10_000_000_00, "ACH": 5_000_000_00},
		CountDayLimit:     1000,
	}}
}

func routingContextFromInstance(inst *saga.Instance) routing.Context {
	return routing.Context{
		TenantID:       inst.TenantID,
		BusinessUnitID: inst.BusinessUnitID,
		PaymentType:    inst.PaymentType,
		AmountMinor:    inst.AmountMinor,
		Currency:       inst.Currency,
	}
}
