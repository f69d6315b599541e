package circuitbreaker

import (
	"context"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServingStatus maps a breaker state onto a gRPC health status.
func ServingStatus(s State) healthpb.HealthCheckResponse_ServingStatus {
	if s == Open {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// BindHealth keeps hs in sync with every breaker in reg, one health service
// name per breaker. Breakers already known are published immediately.
func BindHealth(ctx context.Context, reg *Registry, hs *health.Server) {
	for _, name := range reg.Names() {
		hs.SetServingStatus(name, ServingStatus(reg.Get(name).Snapshot(ctx).State))
	}
	reg.OnStateChange(func(name string, _, to State) {
		hs.SetServingStatus(name, ServingStatus(to))
	})
}
