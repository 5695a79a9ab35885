package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/universalnft/marketplace-indexer/internal/adapter"
	"github.com/universalnft/marketplace-indexer/internal/assets"
	"github.com/universalnft/marketplace-indexer/internal/config"
	"github.com/universalnft/marketplace-indexer/internal/importer"
	"github.com/universalnft/marketplace-indexer/internal/live"
	"github.com/universalnft/marketplace-indexer/internal/logger"
	"github.com/universalnft/marketplace-indexer/internal/marketplace"
	"github.com/universalnft/marketplace-indexer/internal/messaging"
	"github.com/universalnft/marketplace-indexer/internal/reconciler"
	"github.com/universalnft/marketplace-indexer/internal/scheduler"
	"github.com/universalnft/marketplace-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSyncerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "syncd",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting marketplace sync daemon")

	if len(cfg.Collections) == 0 {
		logger.FatalCtx(ctx, "No collections configured")
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}

	// Migrate schema
	if err := db.AutoMigrate(store.AllModels()...); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database schema", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize stores
	dataStore := store.NewPGStore(db)
	watermarks := store.NewWatermarkStore(db)

	// Initialize adapters
	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()

	// Initialize marketplace client
	client := marketplace.NewClient(marketplace.ClientConfig{
		BaseURL:           cfg.Marketplace.APIURL,
		APIKey:            cfg.Marketplace.APIKey,
		RetryInterval:     cfg.Marketplace.RetryInterval,
		RequestsPerSecond: cfg.Marketplace.RequestsPerSecond,
		MetadataTimeout:   cfg.Sync.MetadataTimeout,
	}, adapter.NewHTTPClient(cfg.Marketplace.HTTPTimeout), clock)

	// Initialize on-chain asset resolver
	resolver := assets.NewResolver(cfg.Assets.RPCURL, adapter.NewHTTPClient(cfg.Assets.HTTPTimeout), jsonAdapter)

	// Initialize mutation event publisher
	var publisher messaging.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = messaging.NewPublisher(cfg.NATS, adapter.NewNatsJetStream(), jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		logger.InfoCtx(ctx, "Connected to NATS", zap.String("url", cfg.NATS.URL))
	} else {
		publisher = messaging.NopPublisher{}
		logger.WarnCtx(ctx, "NATS not configured, mutation events will not be published")
	}
	defer publisher.Close()

	// Initialize sync passes
	engine := reconciler.NewEngine(dataStore, client, cfg.Collections, cfg.Sync.MetadataWorkers)
	activityImporter := importer.NewImporter(dataStore, watermarks, client)
	sched := scheduler.NewScheduler([]scheduler.Pass{engine, activityImporter}, cfg.Sync.Interval, cfg.Sync.RetryInterval, clock)

	// Initialize live event connector
	handler := live.NewHandler(dataStore, resolver, client, publisher)
	connector := live.NewConnector(live.ConnectorConfig{
		URL:    cfg.Marketplace.WebSocketURL,
		APIKey: cfg.Marketplace.APIKey,
	}, adapter.NewWSDialer(cfg.Marketplace.HTTPTimeout), dataStore, handler, clock)

	logger.InfoCtx(ctx, "Starting sync engine",
		zap.Strings("collections", cfg.Collections),
		zap.Duration("interval", cfg.Sync.Interval),
		zap.Int("metadata_workers", cfg.Sync.MetadataWorkers),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		connector.Run(ctx)
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))

	cancel()

	// Give the in-flight pass time to wind down
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(10 * time.Second):
		logger.Warn("Shutdown drain timed out")
	}
	logger.Info("Sync daemon stopped")
}
