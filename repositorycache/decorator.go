package repositorycache

import (
	"context"
	"reflect"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/goliatone/go-repository-ports/cache"
	"github.com/goliatone/go-repository-ports/ports"
)

var _ ports.Repository[any] = (*CachedRepository[any])(nil)

const (
	methodDetail = "Detail"
	methodList   = "List"
)

// CachedRepository decorates a ports.Repository with read-through caching of
// Detail and List. Writes pass through and invalidate the affected keys.
type CachedRepository[M any] struct {
	base          ports.Repository[M]
	cache         cache.CacheService
	keySerializer cache.KeySerializer
	namespace     string
	logger        *zap.Logger

	// keys tracks every cached key with the tags it was read under.
	keys *xsync.MapOf[string, []string]
	tags *xsync.MapOf[string, *xsync.MapOf[string, struct{}]]
}

// Option configures a CachedRepository.
type Option func(*options)

type options struct {
	namespace string
	logger    *zap.Logger
}

// WithNamespace overrides the key namespace derived from the model type.
func WithNamespace(namespace string) Option {
	return func(o *options) { o.namespace = namespace }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New wraps base. Keys are namespaced by the pluralized snake_case name of M
// unless WithNamespace is given.
func New[M any](base ports.Repository[M], cacheService cache.CacheService, keySerializer cache.KeySerializer, opts ...Option) *CachedRepository[M] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.namespace == "" {
		o.namespace = namespaceFor[M]()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &CachedRepository[M]{
		base:          base,
		cache:         cacheService,
		keySerializer: keySerializer,
		namespace:     o.namespace,
		logger:        o.logger,
		keys:          xsync.NewMapOf[string, []string](),
		tags:          xsync.NewMapOf[string, *xsync.MapOf[string, struct{}]](),
	}
}

// Namespace returns the prefix shared by every key of this repository.
func (c *CachedRepository[M]) Namespace() string {
	return c.namespace
}

// Detail returns the cached record for pk and includes, loading it on a miss.
func (c *CachedRepository[M]) Detail(ctx context.Context, pk string, includeRelations ...string) (M, error) {
	key := c.keySerializer.SerializeKey(c.method(methodDetail), pk, dedupeStrings(includeRelations))
	c.trackKey(ctx, key)
	return cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (M, error) {
		return c.base.Detail(ctx, pk, includeRelations...)
	})
}

// List returns the cached result for filters and opts. Options are resolved
// to values first so equal queries share a key.
func (c *CachedRepository[M]) List(ctx context.Context, filters ports.FilterList, opts ...ports.ListOption) ([]M, error) {
	key := c.keySerializer.SerializeKey(c.method(methodList), filters, ports.ApplyListOptions(opts...))
	c.trackKey(ctx, key)
	return cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) ([]M, error) {
		return c.base.List(ctx, filters, opts...)
	})
}

func (c *CachedRepository[M]) Create(ctx context.Context, item M) (M, error) {
	result, err := c.base.Create(ctx, item)
	if err == nil {
		c.invalidateByPrefix(ctx, c.method(methodList))
	}
	return result, err
}

func (c *CachedRepository[M]) Update(ctx context.Context, pk string, patch M) (M, error) {
	result, err := c.base.Update(ctx, pk, patch)
	if err == nil {
		c.invalidateRecord(ctx, pk)
	}
	return result, err
}

func (c *CachedRepository[M]) Delete(ctx context.Context, pk string) error {
	err := c.base.Delete(ctx, pk)
	if err == nil {
		c.invalidateRecord(ctx, pk)
	}
	return err
}

// InvalidateTags drops every key read under any of tags.
func (c *CachedRepository[M]) InvalidateTags(ctx context.Context, tags ...string) {
	for _, tag := range dedupeStrings(tags) {
		set, ok := c.tags.LoadAndDelete(tag)
		if !ok {
			continue
		}
		set.Range(func(key string, _ struct{}) bool {
			c.deleteKey(ctx, key)
			return true
		})
	}
}

// Purge drops every key of this repository.
func (c *CachedRepository[M]) Purge(ctx context.Context) {
	c.invalidateByPrefix(ctx, c.namespace)
}

func (c *CachedRepository[M]) method(name string) string {
	return c.namespace + cache.KeySeparator + name
}

func (c *CachedRepository[M]) invalidateRecord(ctx context.Context, pk string) {
	c.invalidateByPrefix(ctx, c.method(methodDetail)+cache.KeySeparator+pk)
	c.invalidateByPrefix(ctx, c.method(methodList))
}

func (c *CachedRepository[M]) trackKey(ctx context.Context, key string) {
	tags := cacheTagsFromContext(ctx)
	c.keys.Store(key, tags)
	for _, tag := range tags {
		set, _ := c.tags.LoadOrCompute(tag, func() *xsync.MapOf[string, struct{}] {
			return xsync.NewMapOf[string, struct{}]()
		})
		set.Store(key, struct{}{})
	}
}

// invalidateByPrefix removes tracked keys equal to prefix or continuing it
// with a separator, so "users::Detail::1" does not match "users::Detail::10".
func (c *CachedRepository[M]) invalidateByPrefix(ctx context.Context, prefix string) {
	c.keys.Range(func(key string, _ []string) bool {
		if key == prefix || strings.HasPrefix(key, prefix+cache.KeySeparator) {
			c.deleteKey(ctx, key)
		}
		return true
	})
}

func (c *CachedRepository[M]) deleteKey(ctx context.Context, key string) {
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
	tags, ok := c.keys.LoadAndDelete(key)
	if !ok {
		return
	}
	for _, tag := range tags {
		if set, ok := c.tags.Load(tag); ok {
			set.Delete(key)
		}
	}
}

func namespaceFor[M any]() string {
	t := reflect.TypeFor[M]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	return inflection.Plural(toSnake(name))
}
