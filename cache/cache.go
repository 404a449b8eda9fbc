package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-repository-ports/ports"
)

// DefaultTTL applies when neither the cache nor the caller provides one.
const DefaultTTL = time.Hour

// Store is the byte level transport a Cache writes to.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Observer is notified of cache lookups, e.g. for metrics.
type Observer interface {
	CacheResult(result string)
}

// Cache results reported to an Observer.
const (
	ResultHit         = "hit"
	ResultMiss        = "miss"
	ResultDecodeError = "decode_error"
)

var _ ports.Cache[any] = (*Cache[any])(nil)

// Cache stores values of type M in a Store.
type Cache[M any] struct {
	store    Store
	codec    Codec
	ttl      time.Duration
	prefix   string
	logger   *zap.Logger
	observer Observer
}

// Option configures a Cache.
type Option func(*settings)

type settings struct {
	codec    Codec
	ttl      time.Duration
	prefix   string
	logger   *zap.Logger
	observer Observer
}

func WithCodec(codec Codec) Option {
	return func(s *settings) { s.codec = codec }
}

// WithTTL sets the default entry lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(s *settings) { s.prefix = prefix }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func WithObserver(observer Observer) Option {
	return func(s *settings) { s.observer = observer }
}

// New returns a Cache over store.
func New[M any](store Store, opts ...Option) *Cache[M] {
	s := settings{codec: JSONCodec, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return &Cache[M]{
		store:    store,
		codec:    s.codec,
		ttl:      s.ttl,
		prefix:   s.prefix,
		logger:   s.logger,
		observer: s.observer,
	}
}

// Get returns the value under key. Missing or undecodable entries are a miss;
// only transport failures return an error.
func (c *Cache[M]) Get(ctx context.Context, key string) (M, bool, error) {
	var zero M
	data, ok, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		c.observe(ResultMiss)
		return zero, false, nil
	}

	var value M
	if err := c.codec.Unmarshal(data, &value); err != nil {
		c.logger.Warn("discarding undecodable cache entry",
			zap.String("key", c.prefix+key),
			zap.String("codec", c.codec.Name()),
			zap.Error(err),
		)
		c.observe(ResultDecodeError)
		return zero, false, nil
	}
	c.observe(ResultHit)
	return value, true, nil
}

// Set stores value under key. The optional ttl overrides the default; the
// entry always expires.
func (c *Cache[M]) Set(ctx context.Context, key string, value M, ttl ...time.Duration) error {
	expiry := c.ttl
	if len(ttl) > 0 && ttl[0] > 0 {
		expiry = ttl[0]
	}
	data, err := c.codec.Marshal(value)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.prefix+key, data, expiry)
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache[M]) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.prefix+key)
}

// TTL returns the default entry lifetime.
func (c *Cache[M]) TTL() time.Duration {
	return c.ttl
}

func (c *Cache[M]) observe(result string) {
	if c.observer != nil {
		c.observer.CacheResult(result)
	}
}
