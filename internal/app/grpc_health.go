package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
)

// grpcServiceName — имя сервиса в grpc.health.v1 для probe с явным service.
const grpcServiceName = "orders.OrderService"

const readinessSyncInterval = 5 * time.Second

// grpcHealthServer — gRPC-сервер с grpc.health.v1 и reflection; статус следует за /readyz.
type grpcHealthServer struct {
	server *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *log.Entry
	errCh  chan error
}

func startGRPCHealthServer(ctx context.Context, addr string, checks *healthcheck.Handler, logger *log.Entry) (*grpcHealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen grpc %s: %w", addr, err)
	}

	grpcMetrics := metrics.NewGRPCServerMetrics(nil)
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	// Reflection для grpcurl и grpc_health_probe.
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	s := &grpcHealthServer{
		server: server,
		health: healthServer,
		lis:    lis,
		logger: logger.WithField("layer", "grpc"),
		errCh:  make(chan error, 1),
	}
	s.syncServingStatus(ctx, checks)

	go func() {
		s.logger.Infof("gRPC health сервер слушает %s", lis.Addr())
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.errCh <- err
		}
	}()
	go s.watchReadiness(ctx, checks, readinessSyncInterval)

	return s, nil
}

// Addr возвращает фактический адрес (полезно при ":0").
func (s *grpcHealthServer) Addr() net.Addr {
	return s.lis.Addr()
}

func (s *grpcHealthServer) watchReadiness(ctx context.Context, checks *healthcheck.Handler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncServingStatus(ctx, checks)
		}
	}
}

// syncServingStatus: unhealthy — NOT_SERVING, healthy и degraded — SERVING.
func (s *grpcHealthServer) syncServingStatus(ctx context.Context, checks *healthcheck.Handler) {
	status := healthpb.HealthCheckResponse_SERVING
	if overall, _ := checks.Run(ctx); overall == healthcheck.StatusUnhealthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(grpcServiceName, status)
}

// stop выполняет GracefulStop, а по истечении timeout — Stop.
func (s *grpcHealthServer) stop(timeout time.Duration) {
	if s == nil {
		return
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		s.logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		s.server.Stop()
	}
}

func (s *grpcHealthServer) errs() <-chan error {
	if s == nil {
		return nil
	}
	return s.errCh
}
