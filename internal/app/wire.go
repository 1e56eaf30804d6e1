package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/chainarb/internal/aggregator"
	"github.com/alanyoungcy/chainarb/internal/arbitrage"
	s3blob "github.com/alanyoungcy/chainarb/internal/blob/s3"
	"github.com/alanyoungcy/chainarb/internal/cache/redis"
	"github.com/alanyoungcy/chainarb/internal/config"
	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/gas"
	"github.com/alanyoungcy/chainarb/internal/notify"
	"github.com/alanyoungcy/chainarb/internal/pricesource"
	"github.com/alanyoungcy/chainarb/internal/service"
	"github.com/alanyoungcy/chainarb/internal/store/postgres"
)

// Dependencies bundles everything the operating modes need. Infrastructure
// fields stay nil when the matching backend is disabled in configuration.
type Dependencies struct {
	// Stores
	OpportunityStore domain.OpportunityStore
	ExecutionStore   domain.ExecutionStore
	UserStore        domain.UserStore
	AuditStore       domain.AuditStore

	// Caches
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Engine
	Source     domain.PriceSource
	Gas        *gas.Model
	Aggregator *aggregator.Aggregator
	Detector   *arbitrage.Detector

	// Services
	Opportunities *service.OpportunityService
	Prices        *service.PriceService
	Executions    *service.ExecutionService
	Users         *service.UserService

	// Notifications; nil when no channel is configured.
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Database.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.ExecutionStore = postgres.NewExecutionStore(pool)
		deps.UserStore = postgres.NewUserStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close failed", slog.String("error", err.Error()))
			}
		})

		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable", slog.String("error", err.Error()))
		}

		deps.BlobWriter = s3Client
		if cfg.Archive.Enabled {
			store, ok := deps.OpportunityStore.(s3blob.OpportunityArchiveStore)
			if !ok {
				return fail("archive", fmt.Errorf("%w: archive requires the postgres opportunity store", domain.ErrInvalidConfig))
			}
			deps.Archiver = s3blob.NewArchiver(s3Client, store, deps.AuditStore, logger)
		}
	}

	// --- Price source ---
	source, err := buildSource(cfg.Source)
	if err != nil {
		return fail("price source", err)
	}
	if cfg.Source.RecordQuotes && deps.QuoteCache != nil {
		source = pricesource.NewRecording(source, deps.QuoteCache, logger)
	}
	deps.Source = source

	// --- Gas model ---
	table := make(gas.StaticTable, len(cfg.Gas.Venues))
	for venue, e := range cfg.Gas.Venues {
		table[venue] = gasEntry(e)
	}
	gasModel, err := gas.NewModel(gas.Config{
		Source:   table,
		Fallback: gasEntry(cfg.Gas.Default),
		TTL:      cfg.Gas.RefreshInterval.Duration,
		Logger:   logger,
	})
	if err != nil {
		return fail("gas model", err)
	}
	deps.Gas = gasModel

	// --- Detection engine ---
	agg, err := aggregator.New(aggregator.Config{
		Source:         source,
		FetchTimeout:   cfg.Detector.FetchTimeout.Duration,
		MaxConcurrency: cfg.Detector.MaxConcurrency,
		Logger:         logger,
	})
	if err != nil {
		return fail("aggregator", err)
	}
	deps.Aggregator = agg

	detector, err := arbitrage.NewDetector(arbitrage.DetectorConfig{
		Assets:                    cfg.Detector.Assets,
		Venues:                    cfg.Detector.Venues,
		MinProfitThresholdPercent: cfg.Detector.MinProfitThresholdPercent,
		TradeSize:                 cfg.Detector.TradeSize,
		FetchTimeout:              cfg.Detector.FetchTimeout.Duration,
		MaxConcurrency:            cfg.Detector.MaxConcurrency,
		Source:                    source,
		Gas:                       gasModel,
		Aggregator:                agg,
		Logger:                    logger,
	})
	if err != nil {
		return fail("detector", err)
	}
	deps.Detector = detector

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Services ---
	oppDeps := service.OpportunityDeps{
		Detector: detector,
		Store:    deps.OpportunityStore,
		Bus:      deps.SignalBus,
		Audit:    deps.AuditStore,
		Locks:    deps.LockManager,
		Archiver: deps.Archiver,
	}
	if deps.Notifier != nil {
		oppDeps.Notifier = deps.Notifier
	}
	oppCfg := service.OpportunityConfig{
		Interval:        cfg.Detector.Interval.Duration,
		TTL:             cfg.Detector.OpportunityTTL.Duration,
		MinNotifyProfit: cfg.Notify.MinNetProfit,
	}
	if deps.Archiver != nil {
		oppCfg.ArchiveInterval = cfg.Archive.Interval.Duration
		oppCfg.ArchiveRetention = cfg.Archive.Retention.Duration
	}
	deps.Opportunities, err = service.NewOpportunityService(oppDeps, oppCfg, logger)
	if err != nil {
		return fail("opportunity service", err)
	}

	deps.Prices = service.NewPriceService(deps.QuoteCache, agg, cfg.Detector.Venues, logger)
	if deps.OpportunityStore != nil && deps.ExecutionStore != nil {
		deps.Executions = service.NewExecutionService(deps.OpportunityStore, deps.ExecutionStore, deps.SignalBus, deps.AuditStore, logger)
	}
	if deps.UserStore != nil {
		deps.Users = service.NewUserService(deps.UserStore, deps.AuditStore, logger)
	}

	return deps, cleanup, nil
}

// buildSource registers every known source kind and returns the configured
// one.
func buildSource(cfg config.SourceConfig) (domain.PriceSource, error) {
	reg := pricesource.NewRegistry()
	reg.Register("simulated", pricesource.NewSimulated(pricesource.SimulatedConfig{
		Jitter: cfg.SimulatedJitter,
		Seed:   cfg.SimulatedSeed,
	}))
	if cfg.IndexerURL != "" {
		reg.Register("indexer", pricesource.NewIndexer(pricesource.IndexerConfig{
			BaseURL:             cfg.IndexerURL,
			APIKey:              cfg.APIKey,
			RatePerSecond:       cfg.RatePerSecond,
			Burst:               cfg.Burst,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		}))
	}
	return reg.Get(cfg.Kind)
}

func gasEntry(e config.GasEntry) gas.Entry {
	return gas.Entry{
		GasPriceGwei:      e.GasPriceGwei,
		GasLimit:          e.GasLimit,
		NativeToReference: e.NativeToReference,
	}
}
