package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lego4005/scribe/internal/config"
	"github.com/Lego4005/scribe/internal/graph"
	"github.com/Lego4005/scribe/internal/observability"
	"github.com/Lego4005/scribe/internal/provenance"
	"github.com/Lego4005/scribe/internal/types"
)

// shutdownTimeout bounds the drain of pending operations on SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the write-behind provenance service",
	Long: `Serve connects to Neo4j and runs the write-behind pipeline until
interrupted: submissions drain from the pending queue in priority order,
failed writes retry with backoff behind a circuit breaker, and operations
that exhaust their retry budget move to the dead-letter queue.

When observability is enabled the service exposes an operator listener
with /healthz (component health as JSON) and /metrics (Prometheus).

On SIGINT or SIGTERM the service stops accepting work, flushes what is
still pending, and exits once the queue is drained or the shutdown
timeout expires.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	loader := config.NewConfigLoader(config.NewValidator())
	cfg, err := loader.LoadWithDefaults(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	metrics := observability.NewPrometheusMetricsRecorder()

	client, err := graph.NewNeo4jClient(graphClientConfig(cfg.Neo4j))
	if err != nil {
		return fmt.Errorf("creating graph client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to neo4j at %s: %w", cfg.Neo4j.URI, err)
	}
	defer client.Close(context.Background())

	opts := []provenance.Option{
		provenance.WithLogger(logger.WithComponent("provenance")),
		provenance.WithMetricsRecorder(metrics),
	}
	if cfg.Archive.Path != "" {
		archive, err := provenance.OpenArchive(cfg.Archive.Path, cfg.Archive.BusyTimeout)
		if err != nil {
			return fmt.Errorf("opening dead-letter archive: %w", err)
		}
		defer archive.Close()
		opts = append(opts, provenance.WithArchive(archive))
		logger.Info(ctx, "dead-letter archive open", "path", archive.Path())
	}

	svc, err := provenance.New(serviceConfig(cfg.Service), client, opts...)
	if err != nil {
		return fmt.Errorf("creating provenance service: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting provenance service: %w", err)
	}

	monitor := observability.NewHealthMonitor(metrics, logger.WithComponent("health"))
	monitor.Register("provenance", svc)
	monitor.Register("neo4j", client)
	if cfg.Observability.HealthCheckInterval > 0 {
		go monitor.StartPeriodicCheck(ctx, cfg.Observability.HealthCheckInterval)
	}

	var operator *http.Server
	if cfg.Observability.Enabled {
		operator = newOperatorServer(cfg.Observability.ListenAddress, monitor, metrics)
		go func() {
			logger.Info(ctx, "operator listener started",
				"address", cfg.Observability.ListenAddress)
			if err := operator.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "operator listener failed", "error", err)
			}
		}()
	}

	logger.Info(ctx, "scribe serving",
		"neo4j", cfg.Neo4j.URI,
		"batch_size", cfg.Service.MaxBatchSize,
		"interval", cfg.Service.BackgroundProcessingInterval.String(),
		"workers", cfg.Service.WorkerPoolSize)

	<-ctx.Done()

	// The signal context is done; use a fresh one for the drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info(shutdownCtx, "shutting down", "timeout", shutdownTimeout.String())

	if operator != nil {
		if err := operator.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "operator listener shutdown failed", "error", err)
		}
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down provenance service: %w", err)
	}

	logger.Info(shutdownCtx, "shutdown complete")
	return nil
}

// newLogger builds the process logger from the logging config. Unknown
// formats fall back to JSON, matching the config default.
func newLogger(cfg config.LoggingConfig) *observability.TracedLogger {
	level := observability.ParseLevel(cfg.Level)

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = observability.NewTextHandler(os.Stderr, level)
	} else {
		handler = observability.NewJSONHandler(os.Stderr, level)
	}

	return observability.NewTracedLogger(handler, "scribe", "serve")
}

// graphClientConfig maps the file config onto the graph client config.
func graphClientConfig(cfg config.Neo4jConfig) graph.GraphClientConfig {
	return graph.GraphClientConfig{
		URI:                     cfg.URI,
		Username:                cfg.Username,
		Password:                cfg.Password,
		Database:                cfg.Database,
		MaxConnectionPoolSize:   cfg.MaxConnections,
		ConnectionTimeout:       cfg.ConnectionTimeout,
		MaxTransactionRetryTime: cfg.MaxRetryTime,
	}
}

// serviceConfig maps the file config onto the write-behind service config.
func serviceConfig(cfg config.ServiceConfig) provenance.Config {
	return provenance.Config{
		MaxBatchSize:                 cfg.MaxBatchSize,
		BatchTimeout:                 cfg.BatchTimeout,
		EnableIntrospection:          cfg.EnableIntrospection,
		EnableCircuitBreaker:         cfg.EnableCircuitBreaker,
		DeadLetterThreshold:          cfg.DeadLetterThreshold,
		HotPathTimeout:               cfg.HotPathTimeout,
		BackgroundProcessingInterval: cfg.BackgroundProcessingInterval,
		MaxPendingOperations:         cfg.MaxPendingOperations,
		WorkerPoolSize:               cfg.WorkerPoolSize,
		IntrospectionLimit:           cfg.IntrospectionLimit,
		PendingDepthMultiple:         cfg.PendingDepthMultiple,

		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,

		DefaultMaxRetries: cfg.Retry.MaxRetries,
		BatchMaxRetries:   cfg.Retry.BatchMaxRetries,
		BaseDelay:         cfg.Retry.BaseDelay,
		MaxDelay:          cfg.Retry.MaxDelay,
		Strategy:          provenance.RetryStrategy(cfg.Retry.Strategy),
	}
}

// healthzResponse is the JSON document served on /healthz.
type healthzResponse struct {
	Status     types.HealthStatus            `json:"status"`
	Components map[string]types.HealthStatus `json:"components"`
}

// newOperatorServer builds the HTTP server for the health and metrics
// endpoints. /healthz returns 200 while the system is healthy or degraded
// and 503 once any component is unhealthy, so load balancers drop the
// instance only when writes are actually failing.
func newOperatorServer(addr string, monitor *observability.HealthMonitor, metrics *observability.PrometheusMetricsRecorder) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := healthzResponse{
			Status:     monitor.Overall(ctx),
			Components: monitor.CheckAll(ctx),
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.Handle("/metrics", metrics.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
