package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	s3blob "github.com/corvalis/riskbot/internal/blob/s3"
	"github.com/corvalis/riskbot/internal/cache/redis"
	"github.com/corvalis/riskbot/internal/config"
	"github.com/corvalis/riskbot/internal/crypto"
	"github.com/corvalis/riskbot/internal/domain"
	"github.com/corvalis/riskbot/internal/engine"
	"github.com/corvalis/riskbot/internal/exchange"
	"github.com/corvalis/riskbot/internal/monitoring"
	"github.com/corvalis/riskbot/internal/notify"
	"github.com/corvalis/riskbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	PortfolioStore domain.PortfolioStore
	PositionStore  domain.PositionStore
	OrderStore     domain.OrderStore
	TradeStore     domain.TradeStore
	SnapshotStore  domain.SnapshotStore
	KeyStore       domain.KeyStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage. Archiver is nil unless S3 archival is enabled.
	BlobWriter domain.BlobWriter
	Archiver   engine.SnapshotArchiver

	// Notifications
	Notifier *notify.Notifier

	// Exchange
	Gateway    domain.ExchangeGateway
	KeyManager *crypto.KeyManager        // nil unless keys.master_password is set
	Vault      *exchange.CredentialVault // nil unless keys.master_password is set

	// Metrics
	Metrics  *monitoring.Metrics
	Registry *prometheus.Registry
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

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

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PortfolioStore = postgres.NewPortfolioStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.SnapshotStore = postgres.NewSnapshotStore(pool)
	deps.KeyStore = postgres.NewKeyStore(pool)

	// --- Redis ---
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

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- S3 blob storage (only when snapshot archival is enabled) ---
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

		writer := s3blob.NewWriter(s3Client)
		deps.BlobWriter = writer
		deps.Archiver = s3blob.NewSnapshotArchiver(writer, deps.SnapshotStore, s3blob.ArchiverConfig{
			Retention: time.Duration(cfg.S3.RetentionDays) * 24 * time.Hour,
			BatchSize: cfg.S3.ArchiveBatchSize,
		}, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Cooldown.Duration, logger)

	// --- Exchange gateway ---
	// Only the paper venue is implemented; Config.Validate rejects paper=false.
	gateway := exchange.NewPaperGateway(deps.PriceCache, deps.RateLimiter, exchange.PaperConfig{
		Venue:       cfg.Exchange.Venue,
		SlippageBps: cfg.Exchange.SlippageBps,
		RateLimit:   cfg.Exchange.RateLimit,
		RateWindow:  cfg.Exchange.RateLimitWindow.Duration,
	}, logger)
	deps.Gateway = gateway

	// --- Credential encryption ---
	if cfg.Keys.MasterPassword != "" {
		km, err := crypto.NewKeyManager(cfg.Keys.MasterPassword)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: key manager: %w", err)
		}
		deps.KeyManager = km
		deps.Vault = exchange.NewCredentialVault(deps.KeyStore, km, logger)

		// Sign gateway requests with imported credentials when they exist.
		// Missing credentials are fine until a live venue adapter needs them.
		if cfg.Keys.UserID != "" {
			signer, err := deps.Vault.SignerFor(ctx, cfg.Keys.UserID, cfg.Exchange.Venue)
			switch {
			case err == nil:
				gateway.UseSigner(signer)
			case errors.Is(err, domain.ErrNotFound):
				logger.Info("no stored credentials for gateway",
					slog.String("user_id", cfg.Keys.UserID),
					slog.String("venue", cfg.Exchange.Venue))
			default:
				cleanup()
				return nil, nil, fmt.Errorf("wire: gateway signer: %w", err)
			}
		}
	}

	// --- Metrics ---
	deps.Registry = prometheus.NewRegistry()
	deps.Metrics = monitoring.New(deps.Registry)

	return deps, cleanup, nil
}
