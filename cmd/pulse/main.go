package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	corecfg "github.com/pulselab/pulse-ingest/internal/core/config"
	"github.com/pulselab/pulse-ingest/internal/core/storage/duckdb"
	"github.com/pulselab/pulse-ingest/internal/core/storage/postgres"
	"github.com/pulselab/pulse-ingest/internal/credentials"
	"github.com/pulselab/pulse-ingest/internal/delivery"
	"github.com/pulselab/pulse-ingest/internal/ingestion"
	"github.com/pulselab/pulse-ingest/internal/migrations"
	"github.com/pulselab/pulse-ingest/internal/ratelimit"
	"github.com/pulselab/pulse-ingest/internal/replay"
	"github.com/pulselab/pulse-ingest/internal/server"
	"github.com/pulselab/pulse-ingest/internal/signer"

	kvstore "github.com/pulselab/pulse-ingest/internal/core/kv"
)

func main() {
	configPath := flag.String("config", "pulse.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "path", *configPath)

	// 2. Initialize KV Store (Redis)
	kv, err := kvstore.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	// 3. Initialize Analytics Store (DuckDB)
	analytics, err := duckdb.NewAdapter(cfg.Analytics.Path)
	if err != nil {
		slog.Error("Failed to initialize analytics store", "error", err)
		os.Exit(1)
	}
	defer analytics.Close()

	// 4. Initialize Forensic Sink (PostgreSQL)
	rejections, err := postgres.NewAdapter(
		cfg.Rejections.DSN,
		cfg.Rejections.MaxOpenConns,
		cfg.Rejections.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize rejection store", "error", err)
		os.Exit(1)
	}
	defer rejections.Close()

	// 4.1. Run Database Migrations, then prepare statements against the
	// migrated schema.
	if err := migrations.RunMigrations(rejections.DB(), cfg.Rejections.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}
	if err := rejections.Prepare(); err != nil {
		slog.Error("Failed to prepare rejection statements", "error", err)
		os.Exit(1)
	}

	// 5. Initialize Delivery Queue (NATS JetStream)
	var enqueuer delivery.Enqueuer
	var natsConn *nats.Conn
	if cfg.Delivery.Enabled {
		var natsEnqueuer *delivery.NATSEnqueuer
		natsEnqueuer, natsConn, err = delivery.NewNATSEnqueuer(delivery.Config{
			URL:        cfg.Delivery.URL,
			Stream:     cfg.Delivery.Stream,
			Subject:    cfg.Delivery.Subject,
			DupeWindow: cfg.Delivery.DupeWindow(),
		})
		if err != nil {
			slog.Error("Failed to initialize delivery queue", "error", err)
			os.Exit(1)
		}
		defer natsConn.Close()
		enqueuer = natsEnqueuer
	} else {
		slog.Info("Delivery queue disabled by config")
	}

	// 6. Initialize Credential Resolution
	authorityTimeout, _ := time.ParseDuration(cfg.Credentials.AuthorityTimeout)
	authority := credentials.NewHTTPAuthority(cfg.Credentials.AuthorityURL, authorityTimeout)
	resolver := credentials.NewResolver(kv, authority, credentials.ResolverOptions{
		PositiveTTL: cfg.Credentials.PositiveTTL(),
		NegativeTTL: cfg.Credentials.NegativeTTL(),
		DevFallback: cfg.Credentials.DevFallback,
	})

	// 7. Initialize the Ingestion Pipeline
	sig := signer.New(cfg.Security.MasterSecret, cfg.Security.ReplayWindow())
	ingestionSvc := ingestion.NewService(
		sig,
		resolver,
		ratelimit.New(kv, cfg.RateLimit.RequestsPerMinute, time.Minute),
		replay.New(kv, sig.ReplayWindow()),
		ingestion.NewDeduper(kv, cfg.Ingestion.EventDedupeTTL(), cfg.Ingestion.OrderDedupeTTL()),
		analytics,
		rejections,
		enqueuer,
		ingestion.Options{
			MaxBodySizeMB:   cfg.Ingestion.MaxBodySizeMB,
			MaxBatchSize:    cfg.Ingestion.MaxBatchSize,
			MaxEventAge:     cfg.Ingestion.MaxEventAge(),
			StoreCallBudget: cfg.Ingestion.StoreTimeout(),
		},
	)

	// 8. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), cfg.Server.Mode)
	srv.RegisterHealthCheck("kv", kv)
	srv.RegisterHealthCheck("analytics", analytics)
	srv.RegisterHealthCheck("rejections", rejections)
	if natsConn != nil {
		srv.RegisterHealthCheck("delivery", natsChecker{natsConn})
	}
	ingestionSvc.RegisterRoutes(srv.Engine)

	// 9. Start
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// natsChecker adapts a NATS connection to the health checker interface.
type natsChecker struct {
	nc *nats.Conn
}

func (n natsChecker) Ping(_ context.Context) error {
	if status := n.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection status %s", status)
	}
	return nil
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
