// Package main is the entry point for the aegis-core binary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aegisai/aegis-oss/pkg/config"
	"github.com/aegisai/aegis-oss/pkg/logging"
	"github.com/aegisai/aegis-oss/pkg/pipeline"
	"github.com/aegisai/aegis-oss/pkg/telemetry"
)

const (
	defaultConfigPath   = "aegis.yaml"
	sessionGaugePeriod  = 15 * time.Second
	shutdownGracePeriod = 10 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listenAddr := flag.String("listen", "", "Admin address to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	prettyLogs := flag.Bool("pretty", false, "Enable pretty console logging")
	flag.Parse()

	// Setup Config Provider
	provider, err := config.NewFileProvider(*configPath, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize config provider", "path", *configPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			slog.Error("Failed to close config provider", "error", err)
		}
	}()
	cfg := provider.Current()

	// Setup Logging
	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger := logging.NewLogger(logging.Config{
		Level:  level,
		Pretty: *prettyLogs || cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)

	logger.Info("Starting aegis-core", "config", *configPath)

	// Setup Tracing
	ctx := context.Background()
	shutdownTracer, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "aegis-core",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize Core Components
	pipe, err := pipeline.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize pipeline", "error", err)
		os.Exit(1)
	}
	prom := telemetry.NewPrometheusMetrics()
	pipe.Events().AddSink(prom)

	// Start Config Watcher
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go watchConfig(watchCtx, provider, pipe, prom, logger)
	go trackSessions(watchCtx, pipe, prom)

	// Start Admin Server
	addr := cfg.Server.AdminAddress
	if *listenAddr != "" {
		addr = *listenAddr
	}
	server := startServer(addr, pipe, prom, logger)

	// Wait for shutdown
	waitForShutdown(server, shutdownTracer, logger)
}

// watchConfig swaps the pipeline bundle on every configuration update. The
// first delivery replays the startup configuration and is a no-op swap.
func watchConfig(ctx context.Context, provider *config.FileProvider, pipe *pipeline.Pipeline, prom *telemetry.PrometheusMetrics, logger *slog.Logger) {
	updates := provider.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			if err := pipe.Reload(ctx, cfg); err != nil {
				logger.Error("Failed to apply configuration update", "error", err)
				prom.IncConfigReload(false)
				continue
			}
			prom.IncConfigReload(true)
			logger.Info("Configuration update applied")
		}
	}
}

// trackSessions mirrors the active session count into the metrics gauge.
func trackSessions(ctx context.Context, pipe *pipeline.Pipeline, prom *telemetry.PrometheusMetrics) {
	ticker := time.NewTicker(sessionGaugePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prom.SetActiveSessions(pipe.Snapshot().ActiveSessions)
		}
	}
}

func newAdminHandler(pipe *pipeline.Pipeline, prom *telemetry.PrometheusMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(pipe.Snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	mux.Handle("/metrics", prom.Handler())
	return otelhttp.NewHandler(mux, "aegis.admin")
}

func startServer(addr string, pipe *pipeline.Pipeline, prom *telemetry.PrometheusMetrics, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Handler:      newAdminHandler(pipe, prom),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("Failed to bind listener", "addr", addr, "error", err)
		os.Exit(1)
	}

	// Log the actual resolved address (useful when addr is :0)
	logger.Info("Admin server listening", "addr", listener.Addr().String())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(server *http.Server, shutdownTracer func(context.Context) error, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	if err := shutdownTracer(ctx); err != nil {
		logger.Error("Tracer shutdown error", "error", err)
	}
}
