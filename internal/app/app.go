package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	ticketingv1 "github.com/vladislavdragonenkov/ticketing/api/ticketing/v1"
	"github.com/vladislavdragonenkov/ticketing/internal/auth"
	healthcheck "github.com/vladislavdragonenkov/ticketing/internal/health"
	"github.com/vladislavdragonenkov/ticketing/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/ticketing/internal/service/grpc"
	httpsvc "github.com/vladislavdragonenkov/ticketing/internal/service/http"
	"github.com/vladislavdragonenkov/ticketing/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ticketing/internal/service/outbox"
	"github.com/vladislavdragonenkov/ticketing/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает REST, gRPC и metrics серверы и фоновые воркеры и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	build := version.Current()
	logger.WithFields(build.Fields()).Info("starting ticketing service")
	metrics.RegisterBuildInfo(prometheus.DefaultRegisterer, build.Version, build.Commit, build.GoVersion)

	storage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storage.shutdown(logger)

	// Без Kafka сервис продолжает работать, события пишутся в лог.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	kafkaRT := newKafkaRuntime(producer)
	defer kafkaRT.close(logger)

	gateway, breaker := newPaymentGateway(cfg, logger)
	orders, err := newLifecycleService(storage, gateway, kafkaRT.lifecyclePublisher(), cfg, logger)
	if err != nil {
		return fmt.Errorf("init lifecycle service: %w", err)
	}

	authenticator, err := auth.NewAuthenticator(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("init authenticator: %w", err)
	}
	guard := idempotency.NewGuard(storage.keys, cfg.IdempotencyTTL, logger.WithField("component", "idempotency"))

	httpHandler := httpsvc.NewHandler(orders, authenticator,
		httpsvc.WithLogger(logger.WithField("component", "http")),
		httpsvc.WithGuard(guard),
		httpsvc.WithMetrics(metrics.NewHTTPMetrics()),
		httpsvc.WithAllowedOrigins(cfg.AllowedOrigins),
	)

	grpcServer, grpcHealth := newGRPCServer(
		grpcsvc.NewOrderService(orders, guard, logger.WithField("component", "grpc")),
		authenticator,
		logger,
	)

	healthHandler := healthcheck.NewHandler(build.Version)
	healthHandler.RegisterChecker("storage", storage.ping)
	healthHandler.RegisterChecker("payment_gateway", healthcheck.NewBreakerChecker(breaker))
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(storage.outbox, cfg.OutboxMaxPending))

	outboxWorker := outbox.NewWorker(storage.outbox, kafkaRT.outboxPublisher(logger), outbox.Config{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		RetryDelay:   cfg.OutboxRetryDelay,
		DeadLetters:  kafkaRT.dlq,
		Logger:       logger.WithField("component", "outbox-worker"),
	})
	sweeper := idempotency.NewSweeper(storage.keys, idempotency.SweepConfig{
		Interval:   cfg.IdempotencyCleanupInterval,
		BatchSize:  cfg.IdempotencyCleanupBatchSize,
		MaxBatches: cfg.IdempotencyCleanupMaxBatches,
	}, logger.WithField("component", "idempotency-sweeper"))

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen http: %w", err)
	}
	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = grpcLis.Close()
		_ = httpLis.Close()
		return fmt.Errorf("listen metrics: %w", err)
	}

	httpSrv := &http.Server{Handler: httpHandler, ReadHeaderTimeout: 5 * time.Second}
	metricsSrv := &http.Server{Handler: newMetricsMux(healthHandler), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)

	if err := kafkaRT.startPaymentConsumer(gctx, cfg, orders, logger); err != nil {
		logger.WithError(err).Warn("payment notification consumer is disabled")
	}

	g.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("REST API слушает %s", httpLis.Addr())
		return serveHTTP(httpSrv, httpLis)
	})
	g.Go(func() error {
		logger.Infof("метрики и health checks доступны на %s", metricsLis.Addr())
		return serveHTTP(metricsSrv, metricsLis)
	})
	g.Go(func() error { return outboxWorker.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(httpSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// newGRPCServer собирает gRPC сервер с метриками, аутентификацией и health service.
func newGRPCServer(orders ticketingv1.OrderServiceServer, authenticator *auth.Authenticator, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcMetrics.UnaryServerInterceptor(),
		grpcsvc.AuthUnaryInterceptor(authenticator),
	))
	ticketingv1.RegisterOrderServiceServer(server, orders)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ticketingv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	grpcMetrics.InitializeMetrics(server)
	return server, healthServer
}

// newMetricsMux отдаёт /metrics для Prometheus и HTTP-пробы.
func newMetricsMux(healthHandler *healthcheck.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	return mux
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// stopGRPC пытается остановить сервер аккуратно, иначе принудительно.
func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
