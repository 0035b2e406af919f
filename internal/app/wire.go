package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/updownbot/internal/arbitrage"
	s3blob "github.com/alanyoungcy/updownbot/internal/blob/s3"
	"github.com/alanyoungcy/updownbot/internal/cache/redis"
	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/executor"
	"github.com/alanyoungcy/updownbot/internal/feed"
	"github.com/alanyoungcy/updownbot/internal/notify"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
	"github.com/alanyoungcy/updownbot/internal/store/postgres"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

// MarketData is the book-keeping side of a feed: the strategy surface plus
// the long-running loop that keeps the replicas current. Both feed.Stream
// and feed.Poller satisfy it.
type MarketData interface {
	strategy.MarketData
	Run(ctx context.Context) error
}

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// EventBus, Journal, Archiver and Reports are nil when the backing service
// is disabled in the configuration.
type Dependencies struct {
	Clob     *polymarket.ClobClient
	Gamma    *polymarket.GammaClient
	Data     MarketData
	Detector *arbitrage.Detector
	Engine   *executor.Engine
	Notifier *notify.Notifier

	EventBus *redis.EventBus
	Journal  *postgres.Journal
	Archiver *s3blob.Archiver
	Reports  *s3blob.Reader
}

// Wire constructs all concrete dependencies from the given configuration and
// returns them together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	mode := strings.ToLower(cfg.Mode)

	// Monitor mode never sends orders, whatever the config says.
	dryRun := cfg.Trading.DryRun || mode == "monitor"

	// --- Signer (only when orders will be sent) ---
	var signer *crypto.Signer
	if mode == "trade" && !dryRun {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load key: %w", err)
		}
		signer, err = crypto.NewSigner(key, cfg.Polymarket.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		logger.Info("wallet loaded", slog.String("address", signer.Address().Hex()))
	}

	// --- Venue clients ---
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, nil)
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)

	// --- Market data ---
	if strings.ToLower(cfg.Market.DataSource) == "poll" {
		deps.Data = feed.NewPoller(deps.Clob, cfg.Market.PollInterval.Duration, logger)
	} else {
		deps.Data = feed.NewStream(cfg.Polymarket.WsHost, logger)
	}

	// --- Detection and execution ---
	deps.Detector = arbitrage.NewDetector(arbitrage.Config{
		CostCeiling: cfg.Trading.CostCeiling,
		OrderSize:   cfg.Trading.OrderSize,
		MinTimeLeft: cfg.Market.MinTimeLeft.Duration,
	}, logger)

	deps.Engine = executor.NewEngine(executor.Config{
		Cooldown:      cfg.Trading.Cooldown.Duration,
		MinNotional:   cfg.Trading.MinNotional,
		BalanceSafety: cfg.Trading.BalanceSafety,
		PollInterval:  cfg.Trading.PollInterval.Duration,
		PollTimeout:   cfg.Trading.PollTimeout.Duration,
		DryRun:        dryRun,
	}, deps.Clob, logger)

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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Redis event bus ---
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.EventBus = redis.NewEventBus(redisClient)
	}

	// --- Postgres trade journal ---
	if cfg.Postgres.Enabled {
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

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		deps.Journal = postgres.NewJournal(pgClient)
	}

	// --- S3 report archive ---
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

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
		deps.Reports = s3blob.NewReader(s3Client)
	}

	return deps, cleanup, nil
}
