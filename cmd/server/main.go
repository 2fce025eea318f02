// Package main is the entry point for the gateway. It wires all dependencies
// using samber/do v2, starts the HTTP server, and drains in-flight Actions
// before shutting down on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/clients/auth"
	adapthttp "github.com/jsamuelsen11/s3-gateway/internal/adapters/http"
	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/handlers"
	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/middleware"
	"github.com/jsamuelsen11/s3-gateway/internal/adapters/metadata/sqlite"
	"github.com/jsamuelsen11/s3-gateway/internal/adapters/storage/local"
	"github.com/jsamuelsen11/s3-gateway/internal/adapters/storage/minio"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/app/ops"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/config"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/health"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/httpclient"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/lifecycle"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/logging"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/telemetry"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

const (
	serverShutdownTimeout = 15 * time.Second
	otelShutdownTimeout   = 5 * time.Second
	startupTimeout        = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	profile := os.Getenv("APP_PROFILE")
	if profile == "" {
		return errors.New("APP_PROFILE environment variable is required (e.g. local, dev, qa, prod)")
	}

	// Bootstrap: config, logger, telemetry.
	cfg, err := config.Load(profile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx := context.Background()
	otel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	// DI container.
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)
	do.ProvideValue(injector, otel.Metrics)

	registerDependencies(injector, cfg, logger)

	// Resolve the server (eagerly wires the full graph).
	server, err := do.Invoke[*adapthttp.Server](injector)
	if err != nil {
		return fmt.Errorf("resolving server: %w", err)
	}
	supervisor := do.MustInvoke[*lifecycle.Supervisor](injector)
	meta := do.MustInvoke[*sqlite.Store](injector)
	defer func() {
		if err := meta.Close(); err != nil {
			logger.Error("closing metadata store", slog.Any("error", err))
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested", slog.Int("in_flight", supervisor.InFlight()))
		return drain(supervisor, server, cfg.Gateway.DrainTimeout, logger)
	})

	runErr := g.Wait()

	// Flush telemetry.
	otelCtx, otelCancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
	defer otelCancel()

	if err := otel.Shutdown(otelCtx); err != nil {
		logger.Error("telemetry shutdown error", slog.Any("error", err))
	}

	if runErr != nil {
		return fmt.Errorf("server failed: %w", runErr)
	}
	logger.Info("shutdown complete")
	return nil
}

// drain stops admitting Actions, waits up to timeout for in-flight ones to
// respond and finish their rollbacks, then closes the listener.
func drain(supervisor *lifecycle.Supervisor, server *adapthttp.Server, timeout time.Duration, logger *slog.Logger) error {
	supervisor.BeginDrain()

	drainCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := supervisor.Wait(drainCtx); err != nil {
		logger.Warn("drain timed out",
			slog.Duration("timeout", timeout),
			slog.Int("in_flight", supervisor.InFlight()),
		)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}
	return nil
}

func registerDependencies(injector *do.RootScope, cfg *config.Config, logger *slog.Logger) {
	registerBackends(injector, cfg, logger)
	registerEngine(injector, cfg, logger)
	registerHTTP(injector, cfg, logger)
}

// registerBackends provides the metadata store, the payload backend and the
// auth client factory.
func registerBackends(injector *do.RootScope, cfg *config.Config, logger *slog.Logger) {
	do.Provide(injector, func(_ do.Injector) (*sqlite.Store, error) {
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()
		return sqlite.Open(ctx, cfg.Metadata.Path, cfg.Metadata.BusyTimeout, logger)
	})

	do.Provide(injector, func(_ do.Injector) (ports.ObjectStore, error) {
		switch cfg.Storage.Backend {
		case config.StorageMinio:
			store, err := minio.New(&cfg.Storage.Minio, logger)
			if err != nil {
				return nil, err
			}
			ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
			defer cancel()
			if err := store.EnsureBucket(ctx, cfg.Gateway.Region); err != nil {
				return nil, err
			}
			return store, nil
		default:
			return local.New(cfg.Storage.DataDir)
		}
	})

	do.Provide(injector, func(i do.Injector) (action.AuthClientFactory, error) {
		var client ports.AuthClient
		switch cfg.Auth.Mode {
		case config.AuthModeRemote:
			metrics := do.MustInvoke[*telemetry.Metrics](i)
			hc := httpclient.New(&cfg.Client, "auth-server", metrics, logger)
			remote := auth.NewRemote(hc, logger)
			do.MustInvoke[ports.HealthRegistry](i).Register(remote)
			client = remote
		default:
			client = auth.NewLocal(cfg.Auth.Credentials)
		}
		return func(ports.Request) ports.AuthClient { return client }, nil
	})
}

// registerEngine provides the Action runtime and the operation deps.
func registerEngine(injector *do.RootScope, cfg *config.Config, logger *slog.Logger) {
	do.Provide(injector, func(_ do.Injector) (*lifecycle.Supervisor, error) {
		if !cfg.Gateway.AuthEnabled {
			logger.Warn("authentication disabled, every request runs anonymously")
		}
		return lifecycle.New(cfg.Gateway.AuthEnabled), nil
	})

	do.Provide(injector, func(_ do.Injector) (*telemetry.ActionMetrics, error) {
		return telemetry.NewActionMetrics(prometheus.DefaultRegisterer)
	})

	do.Provide(injector, func(i do.Injector) (*action.Runtime, error) {
		return &action.Runtime{
			Lifecycle:    do.MustInvoke[*lifecycle.Supervisor](i),
			AuthFactory:  do.MustInvoke[action.AuthClientFactory](i),
			Metrics:      do.MustInvoke[*telemetry.ActionMetrics](i),
			StallTimeout: cfg.Gateway.StallTimeout,
			RetryAfter:   cfg.Gateway.RetryAfter,
		}, nil
	})

	do.Provide(injector, func(i do.Injector) (*ops.Deps, error) {
		deps := ops.NewDeps(
			do.MustInvoke[*sqlite.Store](i),
			do.MustInvoke[ports.ObjectStore](i),
			cfg.Gateway.Region,
			0,
		)
		deps.MaxObjectSize = cfg.Gateway.MaxBodySize
		return deps, nil
	})
}

// registerHTTP provides the health registry, handlers, router and server.
func registerHTTP(injector *do.RootScope, cfg *config.Config, logger *slog.Logger) {
	do.Provide(injector, func(_ do.Injector) (ports.HealthRegistry, error) {
		return health.New(), nil
	})

	do.Provide(injector, func(i do.Injector) (*handlers.HealthHandler, error) {
		registry := do.MustInvoke[ports.HealthRegistry](i)
		registry.Register(do.MustInvoke[*sqlite.Store](i))
		registry.Register(do.MustInvoke[ports.ObjectStore](i))
		registry.Register(do.MustInvoke[*lifecycle.Supervisor](i))
		return handlers.NewHealthHandler(registry), nil
	})

	do.Provide(injector, func(i do.Injector) (*handlers.S3Handler, error) {
		return handlers.NewS3Handler(
			do.MustInvoke[*action.Runtime](i),
			do.MustInvoke[*ops.Deps](i),
			handlers.S3Options{
				ReadTimeout:       cfg.Gateway.ClientReadTimeout,
				RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
				Burst:             cfg.Gateway.Burst,
				RetryAfter:        cfg.Gateway.RetryAfter,
			},
		), nil
	})

	do.Provide(injector, func(i do.Injector) (nethttp.Handler, error) {
		s3H := do.MustInvoke[*handlers.S3Handler](i)
		healthH := do.MustInvoke[*handlers.HealthHandler](i)
		metrics := do.MustInvoke[*telemetry.Metrics](i)

		return adapthttp.NewRouter(s3H, healthH,
			adapthttp.RouterOptions{
				Metrics:     promhttp.Handler(),
				CORSOrigins: cfg.Gateway.CORSOrigins,
			},
			middleware.Stack(logger, metrics)...,
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*adapthttp.Server, error) {
		handler := do.MustInvoke[nethttp.Handler](i)
		return adapthttp.NewServer(cfg.Server, handler, logger), nil
	})
}
