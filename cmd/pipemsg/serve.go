package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pipemsg/middleware"
	"pipemsg/registry"
	"pipemsg/rpc"
	"pipemsg/server"
)

type serveFlags struct {
	Mode            string
	DispatchTimeout time.Duration
	Rate            float64
	Burst           int
	ShutdownTimeout time.Duration
}

var serveOpts serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the endpoint until interrupted",
	Long: `serve answers every request on the endpoint.

Modes:
  echo  respond with the request text
  rpc   decode JSON envelopes and route them to the built-in Health service`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.Mode, "mode", "echo", "dispatch mode: echo|rpc")
	f.DurationVar(&serveOpts.DispatchTimeout, "dispatch-timeout", 0, "answer with an empty response when dispatch takes longer (0 = unbounded)")
	f.Float64Var(&serveOpts.Rate, "rate", 0, "max requests per second (0 = unlimited)")
	f.IntVar(&serveOpts.Burst, "burst", 1, "rate limiter burst")
	f.DurationVar(&serveOpts.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "wait for in-flight connections on exit")
}

func runServe(ctx context.Context) error {
	dispatch, err := newDispatcher(serveOpts.Mode, cfg.Endpoint)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithSocketDir(cfg.SocketDir),
		server.WithMaxInstances(cfg.MaxInstances),
		server.WithMaxFailures(cfg.MaxFailures),
		server.WithAcceptBackoff(cfg.AcceptBackoff),
		server.WithCodec(cfg.Codec()),
		server.WithLimits(cfg.Limits()),
		server.WithMiddleware(middleware.LoggingMiddleware(logger)),
	}
	if serveOpts.Rate > 0 {
		opts = append(opts, server.WithMiddleware(middleware.RateLimitMiddleware(serveOpts.Rate, serveOpts.Burst, "")))
	}
	if serveOpts.DispatchTimeout > 0 {
		opts = append(opts, server.WithMiddleware(middleware.TimeoutMiddleware(serveOpts.DispatchTimeout, "")))
	}

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, server.WithMetrics(reg))

		srv := startMetricsServer(cfg.Metrics.Addr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Registry.Enabled() {
		etcd, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout)
		if err != nil {
			return fmt.Errorf("connect registry: %w", err)
		}
		defer etcd.Close()
		opts = append(opts,
			server.WithRegistry(etcd, cfg.Registry.Service, cfg.Registry.Weight),
			server.WithRegistryTTL(cfg.Registry.TTL),
		)
	}

	l := server.NewListener(cfg.Endpoint, dispatch, opts...)
	logger.Info("serving",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("mode", serveOpts.Mode),
		zap.String("encoding", cfg.Encoding.String()),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-l.Done():
	}

	shutdownErr := l.Shutdown(serveOpts.ShutdownTimeout)
	if l.State() == server.StateFaulted {
		return fmt.Errorf("listener faulted: %w", l.Err())
	}
	return shutdownErr
}

func newDispatcher(mode, endpoint string) (server.Dispatcher, error) {
	switch mode {
	case "echo":
		return echoDispatcher, nil
	case "rpc":
		srv := rpc.NewServer(logger)
		if err := srv.Register(&Health{endpoint: endpoint, started: time.Now()}); err != nil {
			return nil, err
		}
		return srv.Dispatch, nil
	default:
		return nil, fmt.Errorf("unknown mode %q (want echo or rpc)", mode)
	}
}

func echoDispatcher(message string, success bool, err error) string {
	if !success {
		return ""
	}
	return message
}

func startMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return srv
}
