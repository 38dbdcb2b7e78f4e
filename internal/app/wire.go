package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/predictfi/predict-go/internal/blob/s3"
	"github.com/predictfi/predict-go/internal/cache/redis"
	"github.com/predictfi/predict-go/internal/chain"
	"github.com/predictfi/predict-go/internal/config"
	"github.com/predictfi/predict-go/internal/contract"
	"github.com/predictfi/predict-go/internal/domain"
	"github.com/predictfi/predict-go/internal/factory"
	"github.com/predictfi/predict-go/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Chain connections and per-chain factory clients.
	Chains    *chain.Registry
	Factories map[uint64]*factory.Client

	// Indexer persistence. Nil when the indexer is disabled.
	TradeEvents domain.TradeEventStore

	// Caches and coordination.
	MarketCache domain.MarketCache
	PriceCache  domain.PriceCache
	PriceBus    domain.PriceBus
	Locks       domain.LockManager

	// Blob storage. Nil when the indexer is disabled.
	Archiver domain.Archiver
}

// indexerActive reports whether this deployment runs the index pipeline.
func indexerActive(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.Mode)
	return cfg.Indexer.Enabled && (mode == "index" || mode == "full")
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Factories: make(map[uint64]*factory.Client, len(cfg.Chains)),
	}

	// --- Signing credential (optional; read-only deployments skip it) ---
	var key bool
	keyCfg := chain.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	}
	privateKey, keyErr := chain.LoadKey(keyCfg)
	if keyErr == nil {
		key = true
	} else if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet: %w", keyErr)
	}

	// --- Chain connections ---
	deps.Chains = chain.NewRegistry()
	closers = append(closers, deps.Chains.Close)

	for _, cc := range cfg.Chains {
		conn, err := chain.Dial(ctx, cc.RPCURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain %s: %w", cc.Name, err)
		}
		if got := conn.ChainID().Uint64(); got != cc.ChainID {
			conn.Close()
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain %s: configured chain id %d, node reports %d",
				cc.Name, cc.ChainID, got)
		}
		if key {
			conn.AddKey(privateKey)
		}
		if err := deps.Chains.Register(cc.ChainID, conn); err != nil {
			conn.Close()
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain %s: %w", cc.Name, err)
		}

		var signer contract.Signer
		if key {
			signer = conn
		}
		fc := factory.NewClient(conn.Client(), signer, common.HexToAddress(cc.FactoryAddress), logger)
		fc.Binding().SetStartBlock(cc.FactoryStartBlock)
		deps.Factories[cc.ChainID] = fc

		logger.InfoContext(ctx, "chain connected",
			slog.String("name", cc.Name),
			slog.Uint64("chain_id", cc.ChainID),
			slog.String("factory", cc.FactoryAddress),
		)
	}

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

	deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Indexer.CacheTTL.Duration)
	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.PriceBus = redis.NewPriceBus(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)

	// --- PostgreSQL + S3 (only when the indexer runs) ---
	if indexerActive(cfg) {
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
		deps.TradeEvents = postgres.NewTradeEventStore(pgClient.Pool())

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

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.TradeEvents)
	}

	return deps, cleanup, nil
}
