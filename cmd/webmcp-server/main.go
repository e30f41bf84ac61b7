package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/webmcp/relay/internal/api"
	"github.com/webmcp/relay/internal/audit"
	"github.com/webmcp/relay/internal/catalog"
	"github.com/webmcp/relay/internal/config"
	"github.com/webmcp/relay/internal/metrics"
	"github.com/webmcp/relay/internal/redact"
	"github.com/webmcp/relay/internal/relay"
	"github.com/webmcp/relay/internal/risk"
	"github.com/webmcp/relay/internal/sanitize"
	"github.com/webmcp/relay/internal/server"
	"github.com/webmcp/relay/internal/session"
	"github.com/webmcp/relay/internal/storage"
	"github.com/webmcp/relay/internal/tools"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "webmcp-server: %v\n", err)
		os.Exit(1)
	}

	// Logger
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting webmcp relay",
		zap.String("http_port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("sanitize_output", cfg.SanitizeOutput),
		zap.String("risk_patterns", cfg.RiskPatterns),
		zap.Int("audit_capacity", cfg.AuditCapacity),
	)

	detector := risk.ByName(cfg.RiskPatterns)

	// Session store: Postgres, file, or memory only
	var backend session.Backend
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pg := session.NewPostgresBackend(db)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("failed to prepare session table", zap.Error(err))
		}
		backend = pg
		logger.Info("postgres session backend connected")
	} else if path := cfg.SessionsPath(); path != "" {
		backend = session.NewFileBackend(path)
		logger.Info("file session backend", zap.String("path", path))
	} else {
		logger.Info("no WEBMCP_DATA_DIR or POSTGRES_DSN set, sessions are memory only")
	}
	sessions := session.NewStore(backend, logger)
	sessions.Hydrate(context.Background())

	// Audit export: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
	}
	defer writer.Close()

	auditOpts := []audit.Option{audit.WithSink(writer)}
	if path := cfg.AuditPath(); path != "" {
		auditOpts = append(auditOpts, audit.WithFile(path))
	}
	auditLog := audit.New(cfg.AuditCapacity, logger, auditOpts...)
	auditLog.Hydrate()

	// Metrics, optionally exported over OTLP
	agg := metrics.NewAggregator()
	if cfg.OTelMetrics {
		provider, err := metrics.NewOTLPProvider(context.Background(), 15*time.Second)
		if err != nil {
			logger.Warn("otlp metrics disabled", zap.Error(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(ctx); err != nil {
					logger.Warn("metric provider shutdown failed", zap.Error(err))
				}
			}()
			if err := agg.WithMeter(provider.Meter(metrics.MeterName)); err != nil {
				logger.Warn("otlp instruments disabled", zap.Error(err))
			} else {
				logger.Info("otlp metrics enabled")
			}
		}
	}

	// Catalog integrity is fatal
	cat, err := catalog.New(detector, tools.Builtins(sessions, nil)...)
	if err != nil {
		logger.Fatal("tool catalog failed validation", zap.Error(err))
	}

	rl := relay.New(relay.Deps{
		Catalog:    cat,
		Sessions:   sessions,
		Audit:      auditLog,
		Metrics:    agg,
		Sanitizer:  sanitize.New(detector, cfg.SanitizeOutput),
		Summarizer: redact.New(cfg.RedactKeys),
		Logger:     logger,
	})

	// Optional gRPC health listener
	var healthServer *server.HealthServer
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			logger.Fatal("failed to listen", zap.String("port", cfg.GRPCHealthPort), zap.Error(err))
		}
		healthServer = server.NewHealthServer(logger)
		go func() {
			if err := healthServer.Serve(lis); err != nil {
				logger.Error("grpc health server failed", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(&api.Dependencies{
			Relay:        rl,
			AdminKeyHash: cfg.AdminKeyHash,
			Logger:       logger,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr), zap.Int("tools", cat.Len()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	if healthServer != nil {
		healthServer.SetServing(false)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	if healthServer != nil {
		healthServer.Shutdown()
	}

	logger.Info("webmcp relay stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
