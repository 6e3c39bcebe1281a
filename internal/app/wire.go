package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/copybot/internal/blob/s3"
	"github.com/alanyoungcy/copybot/internal/cache/memory"
	"github.com/alanyoungcy/copybot/internal/cache/redis"
	"github.com/alanyoungcy/copybot/internal/config"
	"github.com/alanyoungcy/copybot/internal/crypto"
	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/engine"
	"github.com/alanyoungcy/copybot/internal/notify"
	"github.com/alanyoungcy/copybot/internal/platform/polymarket"
	"github.com/alanyoungcy/copybot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Leaders   domain.LeaderStore
	Accounts  domain.AccountStore
	Relations domain.CopyRelationStore
	Trackings domain.TrackingStore
	Matches   domain.SellMatchStore
	Processed domain.ProcessedTradeStore
	Failed    domain.FailedTradeStore

	// Serialization and caching
	Locks      domain.LockManager
	TokenCache domain.TokenCache

	// Platform clients
	Clob  *polymarket.ClobClient
	Gamma *polymarket.GammaClient
	Data  *polymarket.DataClient

	// Engine
	Processor *engine.Processor

	// Ledger export (nil unless S3 is enabled)
	Archiver *s3blob.LedgerArchiver

	// Notifications
	Notifier *notify.Notifier
}

// needsEngine returns true for modes that replicate trades.
func needsEngine(mode string) bool {
	switch mode {
	case "full", "poll", "ws":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations || cfg.Mode == "migrate" {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Leaders = postgres.NewLeaderStore(pool)
	deps.Accounts = postgres.NewAccountStore(pool)
	deps.Relations = postgres.NewCopyRelationStore(pool)
	deps.Trackings = postgres.NewTrackingStore(pool)
	deps.Matches = postgres.NewSellMatchStore(pool)
	deps.Processed = postgres.NewProcessedTradeStore(pool)
	deps.Failed = postgres.NewFailedTradeStore(pool)

	// --- Lock manager and token cache ---
	// Redis backs both in multi-process deployments; a single process can run
	// entirely in memory.
	if cfg.Engine.LockBackend == "redis" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient)
		deps.TokenCache = redis.NewTokenCache(redisClient)
	} else {
		deps.Locks = memory.NewKeyedLock()
		deps.TokenCache = memory.NewTokenCache()
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Platform clients and replication engine ---
	if needsEngine(cfg.Mode) {
		vault, err := crypto.NewVault(cfg.Vault.Password)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: vault: %w", err)
		}
		signer := crypto.NewOrderSigner(cfg.Polymarket.ChainID, cfg.Polymarket.ExchangeAddress)

		deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost)
		deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
		deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataHost)
		resolver := polymarket.NewCachedResolver(deps.Gamma, deps.TokenCache, logger)

		submitter := engine.NewSubmitter(signer, deps.Clob, logger)
		risk := engine.NewRiskGate(deps.Trackings, deps.Matches, logger)
		buy := engine.NewBuyExecutor(
			deps.Relations, deps.Accounts, deps.Trackings, deps.Processed, deps.Failed,
			risk, submitter, resolver, vault, deps.Notifier, logger,
		)
		sell := engine.NewSellMatcher(
			deps.Relations, deps.Accounts, deps.Trackings, deps.Matches, deps.Processed,
			deps.Failed, deps.Locks, resolver, vault, submitter, deps.Notifier, logger,
		)
		deps.Processor = engine.NewProcessor(deps.Processed, deps.Failed, buy, sell, logger)
	}

	// --- S3 ledger export ---
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewLedgerArchiver(s3blob.NewWriter(s3Client), deps.Matches, deps.Relations, logger)
	}

	return deps, cleanup, nil
}
