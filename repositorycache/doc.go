// Package repositorycache decorates a ports.Repository with read-through caching.
//
// # Overview
//
// CachedRepository wraps a base repository and a cache.CacheService. Detail
// and List are served from the cache; Create, Update and Delete go straight to
// the base repository and invalidate what they affect.
//
//	svc, _ := cache.NewCacheService(cache.DefaultConfig())
//	cached := repositorycache.New[users.User](repo, svc, cache.NewDefaultKeySerializer())
//
//	user, err := cached.Detail(ctx, id, "posts")
//	adults, err := cached.List(ctx, ports.FilterList{ports.Where("age", ports.OpGte, 18)})
//
// # Keys
//
// Keys have the form namespace::Method::args. The namespace defaults to the
// pluralized snake_case type name (users for User) and can be replaced with
// WithNamespace. List options are resolved into a ports.ListOptions value
// before serialization so two calls with equal options share an entry.
//
// # Invalidation
//
// The decorator remembers every key it has read through:
//
//   - Create drops all List entries.
//   - Update and Delete drop the Detail entries of the primary key and all
//     List entries.
//   - Failed writes leave the cache untouched.
//
// Prefix matches stop at a separator, so invalidating pk 1 leaves pk 10
// alone. Cache backend failures during invalidation are logged, never
// returned to the caller.
//
// # Tags
//
// Reads made with a context from WithCacheTags are also registered under
// those tags, and InvalidateTags drops them in one call:
//
//	ctx = repositorycache.WithCacheTags(ctx, "dashboard")
//	_, _ = cached.List(ctx, filters)
//	cached.InvalidateTags(ctx, "dashboard")
//
// Purge drops every entry of the repository.
//
// Errors from the base repository are returned unchanged and never cached.
package repositorycache
