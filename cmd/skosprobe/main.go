// Command skosprobe runs the SKOS endpoint capability probe service: an HTTP
// and WebSocket API over the SPARQL probe pipeline, with analysis snapshots
// and language priority lists persisted in NATS JetStream KV when available.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/skosprobe/analysis"
	"github.com/c360/skosprobe/config"
	gatewayhttp "github.com/c360/skosprobe/gateway/http"
	"github.com/c360/skosprobe/metric"
	"github.com/c360/skosprobe/probe"
	"github.com/c360/skosprobe/sparql"
	"github.com/c360/skosprobe/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "skosprobe:", err)
		os.Exit(1)
	}
}

func run() error {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := cfg.Logging.NewLogger()
	slog.SetDefault(logger)
	logger.Info("starting skosprobe", "addr", cfg.Server.Addr)

	// Persistence: NATS JetStream KV when configured, wrapped so store
	// failures degrade to in-memory instead of failing analyses.
	var primary store.Store
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("skosprobe"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()

		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("jetstream init: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		bucket, err := store.EnsureBucket(ctx, js, cfg.NATS.Bucket)
		cancel()
		if err != nil {
			return fmt.Errorf("kv bucket: %w", err)
		}

		primary, err = store.NewKV(bucket)
		if err != nil {
			return fmt.Errorf("kv store: %w", err)
		}
		logger.Info("persistence enabled", "bucket", cfg.NATS.Bucket)
	} else {
		logger.Warn("no NATS URL configured, analyses are held in memory only")
	}
	st := store.NewDegrading(primary, logger)

	// Metrics.
	metrics := metric.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// Probe pipeline.
	clientOpts := []sparql.ClientOption{sparql.WithLogger(logger)}
	if cfg.Probe.Origin != "" {
		clientOpts = append(clientOpts, sparql.WithOrigin(cfg.Probe.Origin))
	}
	client := sparql.NewClient(clientOpts...)

	probeOpts := probe.Options{
		Request: sparql.Options{
			Timeout:    cfg.Probe.RequestTimeout,
			MaxRetries: cfg.Probe.MaxRetries,
		},
		GraphEnumLimit: cfg.Probe.GraphEnumLimit,
		LanguageLimit:  cfg.Probe.LanguageLimit,
	}

	gateway := gatewayhttp.NewServer(nil, st,
		gatewayhttp.WithLogger(logger),
		gatewayhttp.WithAllowedOrigins(cfg.Server.AllowedOrigins))

	orchestrator := analysis.New(client, st, probeOpts,
		analysis.WithLogger(logger),
		analysis.WithMetrics(metrics),
		analysis.WithStillRunningAfter(cfg.Probe.StillRunningAfter),
		analysis.WithEventHandler(gateway.HandleEvent))
	gateway.SetAnalyzer(orchestrator)

	mux := http.NewServeMux()
	gateway.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	gateway.Close()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}
