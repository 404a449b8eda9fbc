package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-repository-ports/cache"
	"github.com/goliatone/go-repository-ports/config"
	"github.com/goliatone/go-repository-ports/event"
	"github.com/goliatone/go-repository-ports/internal/cacheinfra"
	"github.com/goliatone/go-repository-ports/internal/database"
	"github.com/goliatone/go-repository-ports/internal/eventinfra"
	"github.com/goliatone/go-repository-ports/internal/metrics"
	"github.com/goliatone/go-repository-ports/pkg/logger"
	"github.com/goliatone/go-repository-ports/ports"
	"github.com/goliatone/go-repository-ports/repository"
	"github.com/goliatone/go-repository-ports/repositorycache"
)

// Container builds the shared infrastructure from a config.Config once and
// hands out per-entity ports bound to it. Every dependency is constructed
// explicitly; nothing is kept in package state.
type Container struct {
	cfg           config.Config
	logger        *zap.Logger
	db            *bun.DB
	redis         redis.UniversalClient
	store         cache.Store
	transport     event.Transport
	metrics       *metrics.Metrics
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	codec         cache.Codec
	filterMode    repository.FilterMode

	// closers release what the container opened itself, in reverse order.
	closers []func() error
}

// Option supplies a prebuilt dependency. The container does not close
// dependencies passed in this way.
type Option func(*Container)

func WithDB(db *bun.DB) Option {
	return func(c *Container) { c.db = db }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

func WithRedisClient(client redis.UniversalClient) Option {
	return func(c *Container) { c.redis = client }
}

func WithTransport(transport event.Transport) Option {
	return func(c *Container) { c.transport = transport }
}

// NewContainer validates cfg and builds every dependency it selects. On
// failure anything already opened is closed again.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Container{cfg: cfg, metrics: metrics.New(), keySerializer: cache.NewDefaultKeySerializer()}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.build(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context) error {
	var err error

	if c.logger == nil {
		if c.logger, err = logger.New(logger.Config{
			Level:  c.cfg.Log.Level,
			Format: c.cfg.Log.Format,
			Output: c.cfg.Log.Output,
		}); err != nil {
			return err
		}
	}

	if c.filterMode, err = repository.ParseFilterMode(c.cfg.Repository.FilterMode); err != nil {
		return err
	}
	codecName := c.cfg.Cache.Codec
	if codecName == "" {
		codecName = "json"
	}
	if c.codec, err = cache.CodecByName(codecName); err != nil {
		return err
	}

	if c.db == nil {
		dsn := c.cfg.Database.SQLiteDSN
		if c.cfg.Database.Driver == config.DriverPostgres {
			dsn = c.cfg.PostgresURL()
		}
		if c.db, err = database.Open(ctx, database.Config{
			Driver: c.cfg.Database.Driver,
			DSN:    dsn,
			Logger: c.logger.Named("database"),
		}); err != nil {
			return err
		}
		c.closers = append(c.closers, c.db.Close)
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.TTL = c.cfg.CacheTTL()
	// refreshes must start before entries expire
	if e := cacheCfg.EarlyRefresh; e != nil && e.MaxAsyncRefreshTime >= cacheCfg.TTL {
		cacheCfg.EarlyRefresh = nil
	}
	if c.cacheService, err = cache.NewCacheService(cacheCfg); err != nil {
		return err
	}

	switch c.cfg.Cache.Type {
	case config.CacheMemory:
		if c.store, err = cache.NewMemoryStore(cacheCfg); err != nil {
			return err
		}
	case config.CacheRedis:
		if c.redis == nil {
			client, err := cacheinfra.NewRedisClient(ctx, c.cfg.RedisURL())
			if err != nil {
				return err
			}
			c.redis = client
			c.closers = append(c.closers, client.Close)
		}
		c.store = cache.NewRedisStore(c.redis)
	}

	if c.transport == nil {
		switch c.cfg.Event.Type {
		case config.EventMemory:
			c.transport = eventinfra.NewMemoryBus(eventinfra.DefaultBufferSize)
		case config.EventKafka:
			if c.transport, err = eventinfra.NewKafkaTransport(eventinfra.KafkaConfig{
				Brokers:  c.cfg.Event.KafkaServer,
				Group:    c.cfg.Event.KafkaGroup,
				ClientID: c.cfg.App.Environment,
			}, c.logger.Named("kafka")); err != nil {
				return err
			}
		}
		c.closers = append(c.closers, c.transport.Close)
	}
	return nil
}

func (c *Container) Config() config.Config { return c.cfg }
func (c *Container) Logger() *zap.Logger { return c.logger }
func (c *Container) DB() *bun.DB { return c.db }
func (c *Container) Store() cache.Store { return c.store }
func (c *Container) Transport() event.Transport { return c.transport }
func (c *Container) Metrics() *metrics.Metrics { return c.metrics }
func (c *Container) CacheService() cache.CacheService { return c.cacheService }
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }

// Health pings the database and, when configured, redis.
func (c *Container) Health(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases everything the container opened itself.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// NewRepository builds a repository for mapping with the configured filter
// mode, list cap, logger and metrics.
// Example: NewRepository(container, users.Mapping())
func NewRepository[M, S any](c *Container, mapping repository.Mapping[M, S], opts ...repository.Option) (*repository.Repository[M, S], error) {
	base := []repository.Option{
		repository.WithFilterMode(c.filterMode),
		repository.WithMaxLimit(c.cfg.Repository.ListMaxLimit),
		repository.WithLogger(c.logger),
		repository.WithObserver(c.metrics),
	}
	return repository.New(c.db, mapping, append(base, opts...)...)
}

// NewRepositoryPort returns the repository for mapping as a port. With
// REPOSITORY_READ_THROUGH on it is wrapped in the read-through cache.
func NewRepositoryPort[M, S any](c *Container, mapping repository.Mapping[M, S], opts ...repository.Option) (ports.Repository[M], error) {
	repo, err := NewRepository(c, mapping, opts...)
	if err != nil {
		return nil, err
	}
	if !c.cfg.Repository.ReadThrough {
		return repo, nil
	}
	return NewCachedRepository[M](c, repo), nil
}

// NewCache returns a cache of M over the configured store.
func NewCache[M any](c *Container, opts ...cache.Option) *cache.Cache[M] {
	base := []cache.Option{
		cache.WithCodec(c.codec),
		cache.WithTTL(c.cfg.CacheTTL()),
		cache.WithLogger(c.logger),
		cache.WithObserver(c.metrics),
	}
	return cache.New[M](c.store, append(base, opts...)...)
}

// NewPublisher returns an event publisher of M over the configured transport.
func NewPublisher[M any](c *Container, opts ...event.Option) *event.Publisher[M] {
	base := []event.Option{
		event.WithLogger(c.logger),
		event.WithObserver(c.metrics),
	}
	return event.NewPublisher[M](c.transport, append(base, opts...)...)
}

// NewCachedRepository wraps base with the shared read-through cache.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[User](container, baseUserRepository)
func NewCachedRepository[M any](c *Container, base ports.Repository[M], opts ...repositorycache.Option) *repositorycache.CachedRepository[M] {
	return repositorycache.New(base, c.cacheService, c.keySerializer,
		append([]repositorycache.Option{repositorycache.WithLogger(c.logger)}, opts...)...)
}
