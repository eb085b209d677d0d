package server

import (
	"context"
	"time"

	"github.com/shamank/snet-custody-go/pkg/sdk"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the name reported for the custody core in the gRPC
// health protocol. The empty name reports the same status.
const HealthService = "snet.custody.Core"

// NewGRPCServer returns a gRPC server carrying the standard health service
// and the payment interceptor. Methods registered later are gated by the
// payment requirements set for their full method name.
func NewGRPCServer(core *sdk.Core, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts, grpc.ChainUnaryInterceptor(core.Gate().UnaryServerInterceptor()))
	srv := grpc.NewServer(opts...)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	return srv, hs
}

// RefreshHealth runs Heartbeat every interval and publishes the result to hs
// until ctx is done. The first probe runs immediately.
func RefreshHealth(ctx context.Context, core *sdk.Core, hs *health.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status := core.Heartbeat(ctx).ServingStatus()
		hs.SetServingStatus("", status)
		hs.SetServingStatus(HealthService, status)
		zap.L().Debug("grpc health refreshed", zap.String("status", status.String()))

		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
		}
	}
}
