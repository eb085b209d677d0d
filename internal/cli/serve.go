package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shamank/snet-custody-go/internal/server"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/shamank/snet-custody-go/pkg/metrics"
	"github.com/shamank/snet-custody-go/pkg/sdk"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// NewHealthCommand probes every dependency once.
func NewHealthCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the ledger RPC, storage, facilitator and credential store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, opts, func(ctx context.Context, core *sdk.Core) error {
				report := core.Heartbeat(ctx)
				if err := newFormatter(cmd, opts).Success(report); err != nil {
					return err
				}
				if report.Status == sdk.StatusDown {
					return &ExitError{Code: ExitFailure, Message: "ledger unreachable"}
				}
				return nil
			})
		},
	}
}

// NewServeCommand runs the HTTP API, and the gRPC health endpoint when
// GRPC_ADDR is set, until interrupted.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var healthInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the custody HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withCore(cmd, opts, func(ctx context.Context, core *sdk.Core) error {
				return serve(ctx, core, healthInterval)
			})
		},
	}
	cmd.Flags().DurationVar(&healthInterval, "health-interval", 30*time.Second, "gRPC health refresh interval")
	return cmd
}

func serve(ctx context.Context, core *sdk.Core, healthInterval time.Duration) error {
	cfg := core.Config()
	if cfg.Server.JWTSecret == "" && !cfg.DevMode {
		return faults.Newf(faults.KindConfig, "cli.serve", "set JWT_SECRET, or DEV_MODE=true to trust the "+server.TenantHeader+" header",
			"refusing to serve without tenant authentication")
	}

	errc := make(chan error, 3)
	var servers []*http.Server

	api := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: server.NewRouter(core, server.Options{
			JWTSecret:    cfg.Server.JWTSecret,
			MountMetrics: cfg.Server.MetricsAddr == "",
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	servers = append(servers, api)

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Init(), promhttp.HandlerOpts{EnableOpenMetrics: true}))
		servers = append(servers, &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second})
	}

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return faults.New(faults.KindConfig, "cli.serve", "check GRPC_ADDR", err)
		}
		gs, hs := server.NewGRPCServer(core)
		go server.RefreshHealth(ctx, core, hs, healthInterval)
		go func() {
			zap.L().Info("grpc listening", zap.String("addr", cfg.Server.GRPCAddr))
			if err := gs.Serve(lis); err != nil {
				errc <- err
			}
		}()
		defer gs.GracefulStop()
	}

	for _, s := range servers {
		go func(s *http.Server) {
			zap.L().Info("listening", zap.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}(s)
	}

	var err error
	select {
	case <-ctx.Done():
		zap.L().Info("shutting down")
	case err = <-errc:
		zap.L().Error("server failed", zap.Error(err))
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if serr := s.Shutdown(sctx); serr != nil {
			zap.L().Warn("shutdown", zap.String("addr", s.Addr), zap.Error(serr))
		}
	}
	return err
}
