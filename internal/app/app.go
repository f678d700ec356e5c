package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
	"github.com/vladislavdragonenkov/orders/internal/service/orders"
	"github.com/vladislavdragonenkov/orders/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/orders/internal/version"
)

const readHeaderTimeout = 10 * time.Second

// Run поднимает HTTP API, сервер метрик, gRPC health и outbox worker и
// блокируется до отмены ctx или падения API-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	producer := initKafkaProducer(cfg, logger)
	defer closeKafkaProducer(producer, logger)

	var (
		stopWorker context.CancelFunc
		workerDone <-chan struct{}
	)
	if producer != nil {
		stopWorker, workerDone = startOutboxWorker(ctx, cfg, deps.outbox,
			kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic),
			logger)
	}

	apiHandler := newAPIHandler(deps, producer != nil, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	if producer != nil {
		healthHandler.RegisterChecker("outbox", healthcheck.NewBacklogChecker("outbox", outboxStats(deps.outbox), cfg.OutboxMaxPendingAge))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	var grpcSrv *grpcHealthServer
	if cfg.GRPCAddr != "" {
		grpcSrv, err = startGRPCHealthServer(ctx, cfg.GRPCAddr, healthHandler, logger)
		if err != nil {
			shutdownOutboxWorker(stopWorker, workerDone, cfg.ShutdownTimeout, logger)
			shutdownHTTP(metricsSrv, logger)
			return err
		}
	}

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		grpcSrv.stop(cfg.ShutdownTimeout)
		shutdownOutboxWorker(stopWorker, workerDone, cfg.ShutdownTimeout, logger)
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	apiSrv := &http.Server{Handler: apiHandler, ReadHeaderTimeout: readHeaderTimeout}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервисы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http api: %w", err)
		}
	case err := <-grpcSrv.errs():
		runErr = fmt.Errorf("grpc health: %w", err)
	}

	// Сначала перестаём принимать запросы, потом дожидаемся outbox и закрываем producer и хранилище (defer).
	shutdownHTTP(apiSrv, logger)
	grpcSrv.stop(cfg.ShutdownTimeout)
	shutdownOutboxWorker(stopWorker, workerDone, cfg.ShutdownTimeout, logger)
	shutdownHTTP(metricsSrv, logger)

	return runErr
}

// newAPIHandler собирает Order Store и chi-роутер поверх выбранного хранилища.
func newAPIHandler(deps *runtimeDependencies, publishEvents bool, logger *log.Entry) http.Handler {
	opts := []orders.Option{
		orders.WithMetrics(metrics.NewOrderMetrics()),
		orders.WithLogger(logger.WithField("layer", "service")),
	}
	if publishEvents {
		opts = append(opts, orders.WithOutbox(deps.outbox))
	}
	store := orders.NewStore(deps.orders, deps.users, deps.items, opts...)

	handler := httpapi.NewHandler(store, deps.items, logger.WithField("layer", "http"))
	return httpapi.NewRouter(handler, metrics.NewHTTPMetrics())
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
