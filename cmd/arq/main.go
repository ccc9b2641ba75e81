// Command arq runs ad-hoc SQL through an active-record connection, with
// the same logging, tracing and metrics wiring a library host would set
// up. Useful for smoke-testing connection settings and inspecting rows.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	activerecord "github.com/darkdef/active-record"
	"github.com/darkdef/active-record/internal/config"
	"github.com/darkdef/active-record/internal/logging"
	"github.com/darkdef/active-record/internal/observability"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("arq error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	pflag.Bool("version", false, "Print version and exit")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("arq %s (%s)\n", Version, Commit)
		return nil
	}

	statement := strings.TrimSpace(strings.Join(pflag.Args(), " "))
	if statement == "" {
		return fmt.Errorf("usage: arq [flags] <sql statement>")
	}

	otelCfg := observability.Config{
		ServiceName:      "active-record",
		ServiceVersion:   Version,
		TraceSampleRatio: cfg.Telemetry.SampleRatio,
	}
	if cfg.Telemetry.Enabled {
		otelCfg.OTLP = observability.OTLPExporterConfig{
			Endpoint: cfg.Telemetry.Endpoint,
			Protocol: cfg.Telemetry.Protocol,
			Insecure: cfg.Telemetry.Insecure,
		}
	}

	meterProvider, err := observability.InitMeterProvider(otelCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	tracerProvider, err := observability.InitTracerProvider(otelCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	loggerProvider, err := observability.InitLoggerProvider(otelCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize log export: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		LoggerProvider: loggerProvider.Provider(),
	})
	slog.SetDefault(logger)

	defer func() {
		ctx := context.Background()
		_ = tracerProvider.Shutdown(ctx, logger)
		_ = loggerProvider.Shutdown(ctx, logger)
		_ = meterProvider.Shutdown(ctx, logger)
	}()

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("serving metrics", slog.String("addr", cfg.Metrics.Addr))
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Error("metrics listener failed", slog.String("error", err.Error()))
			}
		}()
	}

	dsn, err := cfg.Database.ResolveDSN()
	if err != nil {
		return err
	}

	metrics, err := observability.InitQueryMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize query metrics: %w", err)
	}

	conn, err := activerecord.Open(dsn, activerecord.NewRegistry(),
		activerecord.WithLogger(logger),
		activerecord.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	if db := conn.DB(); db != nil {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rows, err := conn.QueryRows(ctx, statement)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}
	logger.Info("query complete", slog.Int("rows", len(rows)))
	return nil
}
