package container

import (
	"context"
	"fmt"

	"dealfeed/internal/client"
	"dealfeed/internal/config"
	"dealfeed/internal/proxy"
	"dealfeed/internal/queue"
	"dealfeed/internal/repository"
	"dealfeed/internal/selector"
	"dealfeed/internal/service"
	"dealfeed/internal/state"
	"dealfeed/internal/taxonomy"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Container holds all initialized components
type Container struct {
	Config       *config.Config
	Taxonomy     *taxonomy.Store
	QueryBuilder *taxonomy.QueryBuilder
	Selector     *selector.Selector
	Catalog      *client.CatalogClient
	Preferences  state.PreferenceStore
	Queue        queue.Queue
	Repository   repository.SnapshotRepository

	Service *service.Service

	db    *pgxpool.Pool
	redis *redis.Client
}

// NewQueryBuilder loads the taxonomy file and returns a builder over it. Commands
// that only browse categories need nothing else.
func NewQueryBuilder(cfg *config.Config) (*taxonomy.QueryBuilder, error) {
	store, err := taxonomy.LoadFile(cfg.Taxonomy.Path)
	if err != nil {
		return nil, err
	}
	return taxonomy.NewQueryBuilder(store, cfg.Taxonomy.TypeField, cfg.Taxonomy.TagField), nil
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	builder, err := NewQueryBuilder(cfg)
	if err != nil {
		return nil, err
	}
	container.QueryBuilder = builder
	container.Taxonomy = builder.Store()
	container.Selector = selector.New(builder)

	proxySupplier := proxy.NewSupplier(ctx, cfg.Catalog.Proxies, cfg.Catalog.BaseURL)
	container.Catalog = client.NewCatalogClient(cfg.Catalog, proxySupplier)

	// pgxpool connects lazily, so commands that never touch snapshots don't need Postgres up
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	container.db = db
	container.Repository = repository.NewSnapshotRepository(db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	container.redis = rdb

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("✅ Connected to Redis successfully")

	container.Preferences = state.NewRedisPreferenceStore(rdb)

	redisQueue, err := queue.NewRedisQueue(ctx, rdb, cfg.Digest.ConsumerGroup)
	if err != nil {
		_ = container.Close()
		return nil, err
	}
	container.Queue = redisQueue

	container.Service = service.NewService(
		container.Repository,
		container.Catalog,
		container.Selector,
		redisQueue,
		container.Preferences,
		cfg.Digest.Pages,
		cfg.Digest.MinIdleTime,
	)

	return container, nil
}

// Run queues today's digests and processes them until ctx is cancelled.
func (c *Container) Run(ctx context.Context) error {
	if err := c.Repository.EnsureSchema(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := c.Service.EnqueueDigests(ctx)
		return err
	})

	g.Go(func() error {
		return c.Service.RunWorkers(ctx, c.Config.Digest.MaxWorkers)
	})

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.Catalog != nil {
		if err := c.Catalog.Close(); err != nil {
			log.Warnf("⚠️ Failed to close catalog client: %v", err)
		}
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warnf("⚠️ Failed to close Redis client: %v", err)
		}
	}

	log.Info("Container shut down successfully")
	return nil
}
