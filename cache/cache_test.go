package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/goliatone/go-repository-ports/cache"
	"github.com/goliatone/go-repository-ports/model"
)

type profile struct {
	ID   string              `json:"id" msgpack:"id"`
	Name model.Field[string] `json:"name,omitzero" msgpack:"name"`
	Age  model.Field[int]    `json:"age,omitzero" msgpack:"age"`
}

type results struct {
	seen []string
}

func (r *results) CacheResult(result string) { r.seen = append(r.seen, result) }

func newRedisStore(t *testing.T) (*miniredis.Miniredis, cache.Store) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return srv, cache.NewRedisStore(client)
}

func newMemoryStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewMemoryStore(cache.DefaultConfig())
	require.NoError(t, err)
	return store
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	_, redisStore := newRedisStore(t)

	stores := map[string]cache.Store{
		"memory": newMemoryStore(t),
		"redis":  redisStore,
	}
	codecs := []cache.Codec{cache.JSONCodec, cache.MsgpackCodec}

	for name, store := range stores {
		for _, codec := range codecs {
			t.Run(name+"/"+codec.Name(), func(t *testing.T) {
				c := cache.New[profile](store, cache.WithCodec(codec), cache.WithPrefix(codec.Name()+":"))
				in := profile{ID: "1", Name: model.Set("Ann")}

				require.NoError(t, c.Set(ctx, "1", in))

				got, ok, err := c.Get(ctx, "1")
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, "1", got.ID)
				assert.Equal(t, "Ann", got.Name.Value())
				assert.False(t, got.Age.IsSet())

				require.NoError(t, c.Delete(ctx, "1"))
				_, ok, err = c.Get(ctx, "1")
				require.NoError(t, err)
				assert.False(t, ok)
			})
		}
	}
}

func TestCache_MissAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	obs := &results{}
	c := cache.New[profile](newMemoryStore(t), cache.WithObserver(obs))

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Delete(ctx, "missing"))
	assert.Equal(t, []string{cache.ResultMiss}, obs.seen)
}

func TestCache_UndecodableEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	srv, store := newRedisStore(t)
	core, logs := observer.New(zap.WarnLevel)
	obs := &results{}

	c := cache.New[profile](store, cache.WithLogger(zap.New(core)), cache.WithObserver(obs))
	require.NoError(t, srv.Set("broken", "{not json"))

	_, ok, err := c.Get(ctx, "broken")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{cache.ResultDecodeError}, obs.seen)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "broken", logs.All()[0].ContextMap()["key"])
}

func TestCache_TTL(t *testing.T) {
	ctx := context.Background()
	srv, store := newRedisStore(t)

	c := cache.New[profile](store, cache.WithTTL(time.Minute))
	assert.Equal(t, time.Minute, c.TTL())

	require.NoError(t, c.Set(ctx, "default", profile{ID: "default"}))
	require.NoError(t, c.Set(ctx, "short", profile{ID: "short"}, 10*time.Second))

	assert.Equal(t, time.Minute, srv.TTL("default"))
	assert.Equal(t, 10*time.Second, srv.TTL("short"))

	srv.FastForward(11 * time.Second)
	_, ok, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Get(ctx, "default")
	require.NoError(t, err)
	assert.True(t, ok)

	srv.FastForward(time.Minute)
	_, ok, err = c.Get(ctx, "default")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_DefaultTTLWhenUnset(t *testing.T) {
	ctx := context.Background()
	srv, store := newRedisStore(t)

	c := cache.New[profile](store, cache.WithTTL(0))
	require.NoError(t, c.Set(ctx, "k", profile{ID: "k"}))
	assert.Equal(t, cache.DefaultTTL, srv.TTL("k"))
}

func TestCache_TransportErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	srv, store := newRedisStore(t)
	c := cache.New[profile](store)

	srv.Close()

	_, ok, err := c.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestCodecByName(t *testing.T) {
	codec, err := cache.CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", codec.Name())

	codec, err = cache.CodecByName("msgpack")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", codec.Name())

	_, err = cache.CodecByName("gob")
	assert.Error(t, err)
}

func TestNewCacheService_ReadThrough(t *testing.T) {
	ctx := context.Background()
	svc, err := cache.NewCacheService(cache.DefaultConfig())
	require.NoError(t, err)

	calls := 0
	fetch := func(context.Context) (profile, error) {
		calls++
		return profile{ID: "1"}, nil
	}

	for range 3 {
		got, err := cache.GetOrFetch[profile](ctx, svc, "Detail::1", fetch)
		require.NoError(t, err)
		assert.Equal(t, "1", got.ID)
	}
	assert.Equal(t, 1, calls)

	require.NoError(t, svc.Delete(ctx, "Detail::1"))
	_, err = cache.GetOrFetch[profile](ctx, svc, "Detail::1", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	boom := errors.New("boom")
	_, err = cache.GetOrFetch[profile](ctx, svc, "Detail::2", func(context.Context) (profile, error) {
		return profile{}, boom
	})
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, cache.DefaultConfig().Validate())

	cfg := cache.DefaultConfig()
	cfg.Capacity = 0
	assert.Error(t, cfg.Validate())

	cfg = cache.DefaultConfig()
	cfg.EvictionPercentage = 101
	assert.Error(t, cfg.Validate())

	_, err := cache.NewMemoryStore(cfg)
	assert.Error(t, err)
}
