// Package cache provides the entity cache adapter, its byte stores and the
// read-through service used to decorate repositories.
//
// # Overview
//
// Cache[M] satisfies ports.Cache[M]. Values are encoded with a Codec (JSON by
// default, msgpack optionally) and written to a Store:
//
//   - NewMemoryStore: an in-process sturdyc client. Config.TTL bounds every entry.
//   - NewRedisStore: any go-redis client, using SET with an expiry.
//
// Every entry expires. A Set without a TTL uses the cache default
// (DefaultTTL unless WithTTL overrides it).
//
//	store := cache.NewRedisStore(client)
//	users := cache.New[users.User](store, cache.WithPrefix("users:"))
//	_ = users.Set(ctx, user.ID, user)
//	user, ok, err := users.Get(ctx, id)
//
// Get treats an entry that cannot be decoded as a miss and logs it; only
// store failures are returned as errors.
//
// # Read-through
//
// CacheService and KeySerializer back the repositorycache decorator:
//
//	key := serializer.SerializeKey("Detail", id)
//	user, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) (users.User, error) {
//		return repo.Detail(ctx, id)
//	})
//
// # Key serialization
//
// The default serializer renders arguments deterministically: basic values
// verbatim, slices and arrays recursively, maps as sorted pairs, structs as
// exported name:value pairs, and json.Marshaler structs (time.Time, model
// fields) through JSON. Function and channel arguments fall back to their
// pointer and are only stable within one process, so callers should resolve
// option closures into values before building a key.
//
// Keys longer than the configured maximum keep the method and first argument
// and replace the rest with an xxhash digest.
package cache
