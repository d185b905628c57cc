package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"roomgate/internal/admission"
	"roomgate/internal/api"
	"roomgate/internal/config"
	"roomgate/internal/limiter"
	"roomgate/internal/logger"
	"roomgate/internal/models"
	"roomgate/internal/observability"
	"roomgate/internal/ratelimit"
	"roomgate/internal/storage"
	"roomgate/internal/version"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
	generateKey   = flag.Bool("generate-key", false, "Generate an admin API key and its config hash, then exit")
	exampleConfig = flag.String("example-config", "", "Write an example configuration file to this path and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()

	switch {
	case *showVersion:
		fmt.Println(ver.String())
		return
	case *generateKey:
		if err := printGeneratedKey(); err != nil {
			slog.Error("Failed to generate API key", "error", err)
			os.Exit(1)
		}
		return
	case *exampleConfig != "":
		if err := config.SaveExample(*exampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Example configuration written to %s\n", *exampleConfig)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize storage
	storageInstance, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err, "type", cfg.Storage.Type)
		os.Exit(1)
	}
	defer storageInstance.Close()

	// Wrap storage with instrumentation if metrics are enabled
	var activeStorage storage.Storage = storageInstance
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(storageInstance)
		if err != nil {
			slog.Error("Failed to create instrumented storage", "error", err)
			os.Exit(1)
		}
		activeStorage = instrumented
	}

	registry := limiter.NewRegistry(activeStorage, limiter.WithLogger(log))
	if err := registry.AllowDomains(cfg.Admission.Domains...); err != nil {
		slog.Error("Invalid limiter domains", "error", err)
		os.Exit(1)
	}
	resolver := admission.NewIdentityResolver(cfg.Admission.IdentityHeader, cfg.Admission.UnknownIdentity)

	meter := otel.Meter("roomgate/admission")
	checker := newChecker(cfg, registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only the process that owns the limiter state sweeps it.
	if cfg.Admission.CleanupInterval > 0 && cfg.Admission.CoordinatorURL == "" {
		notifier, err := observability.NewCleanupNotifier(meter, admission.LogNotifier{})
		if err != nil {
			slog.Error("Failed to create cleanup notifier", "error", err)
			os.Exit(1)
		}
		go admission.NewSweeper(checker, cfg.Admission.CleanupInterval, notifier).Run(ctx)
	}

	handlers := api.NewHandlers(registry, activeStorage, resolver, cfg.Security.APIKeys)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	var floodShield func(http.Handler) http.Handler
	if shield := cfg.Security.FloodShield; shield.Enabled {
		floodLimiter := ratelimit.NewMemoryLimiter(shield.RequestsPerMinute, shield.BurstSize, shield.CleanupInterval)
		defer floodLimiter.Close()

		floodShield = ratelimit.Middleware(floodLimiter, ratelimit.HeaderKey(cfg.Admission.IdentityHeader))
		routeOpts = append(routeOpts, api.WithRateLimiter(floodShield))
	}

	router := api.SetupRoutes(handlers, routeOpts...)

	var handler http.Handler = router
	if cfg.Gateway.Enabled {
		decisions, err := observability.NewDecisionMetrics(meter)
		if err != nil {
			slog.Error("Failed to create decision metrics", "error", err)
			os.Exit(1)
		}
		handler, err = newGatewayHandler(cfg, router, checker, resolver, decisions, floodShield)
		if err != nil {
			slog.Error("Failed to initialize gateway", "error", err)
			os.Exit(1)
		}
		slog.Info("Gateway enabled", "upstream", cfg.Gateway.UpstreamURL)
	}

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "storage", cfg.Storage.Type)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// newChecker answers admission checks from the local registry, or from a
// remote coordinator when one is configured.
func newChecker(cfg *models.Config, registry *limiter.Registry) admission.Checker {
	if cfg.Admission.CoordinatorURL != "" {
		slog.Info("Using remote coordinator", "url", cfg.Admission.CoordinatorURL)
		return admission.NewRemoteClient(cfg.Admission.CoordinatorURL, cfg.Admission)
	}
	return admission.NewLocalClient(registry)
}

// newGatewayHandler serves health and the limiter API from router and proxies
// everything else to the application upstream.
func newGatewayHandler(cfg *models.Config, router http.Handler, checker admission.Checker, resolver *admission.IdentityResolver, recorder admission.DecisionRecorder, floodShield func(http.Handler) http.Handler) (http.Handler, error) {
	gateway, err := admission.NewGateway(cfg.Gateway, checker, resolver,
		admission.WithFailOpen(cfg.Admission.FailOpen),
		admission.WithDecisionRecorder(recorder),
	)
	if err != nil {
		return nil, err
	}
	if floodShield != nil {
		gateway = floodShield(gateway)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", router)
	mux.Handle("/v1/limiter/", router)
	mux.Handle("/", gateway)
	return mux, nil
}

func printGeneratedKey() error {
	key, err := models.GenerateAPIKey()
	if err != nil {
		return err
	}
	fmt.Printf("API key:     %s\n", key)
	fmt.Printf("Config hash: sha256:%s\n", models.HashAPIKey(key))
	return nil
}
