package metrics

import (
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

// NewGRPCServerMetrics возвращает interceptors-метрики gRPC-сервера,
// зарегистрированные в registerer (nil — DefaultRegisterer).
func NewGRPCServerMetrics(registerer prometheus.Registerer) *promgrpc.ServerMetrics {
	return register(registerer, "grpc_server_metrics", promgrpc.NewServerMetrics())
}
