package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc backed services.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	NumShards int

	// TTL is the lifetime of entries. For the memory store it is the upper
	// bound; shorter per entry TTLs are enforced on read.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity.
	EvictionPercentage int

	// EarlyRefresh configures early refresh for read-through lookups.
	// If nil, early refresh is disabled.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage remembers keys whose fetch reported sturdyc.ErrNotFound.
	MissingRecordStorage bool

	// EvictionInterval sets how often expired entries are swept. Zero uses the default.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig configures early refresh behavior.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		EarlyRefresh: &EarlyRefreshConfig{
			MinAsyncRefreshTime: 10 * time.Second,
			MaxAsyncRefreshTime: 20 * time.Second,
			SyncRefreshTime:     30 * time.Second,
			RetryBaseDelay:      100 * time.Millisecond,
		},
		MissingRecordStorage: true,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Nanosecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return err
	}
	if e := c.EarlyRefresh; e != nil {
		return validation.ValidateStruct(e,
			validation.Field(&e.MinAsyncRefreshTime, validation.Min(time.Duration(0))),
			validation.Field(&e.MaxAsyncRefreshTime, validation.Min(e.MinAsyncRefreshTime)),
			validation.Field(&e.SyncRefreshTime, validation.Min(time.Duration(0))),
			validation.Field(&e.RetryBaseDelay, validation.Min(time.Duration(0))),
		)
	}
	return nil
}

func (c Config) options(readThrough bool) []sturdyc.Option {
	var options []sturdyc.Option
	if readThrough && c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}
	if readThrough && c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// ErrInvalidFetchFn reports a fetch function without the
// func(context.Context) (T, error) signature.
var ErrInvalidFetchFn = errors.New("cacheinfra: fetchFn must have signature func(context.Context) (T, error)")

// SturdycService implements read-through caching on a sturdyc client.
type SturdycService struct {
	client *sturdyc.Client[any]
}

// NewSturdycService validates cfg and builds a read-through service.
func NewSturdycService(cfg Config) (*SturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[any](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage, cfg.options(true)...)
	return &SturdycService{client: client}, nil
}

// GetOrFetch returns the cached value for key, calling fetchFn on a miss.
// fetchFn must be a func(context.Context) (T, error).
func (s *SturdycService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	call, err := adaptFetchFn(fetchFn)
	if err != nil {
		return nil, err
	}
	return s.client.GetOrFetch(ctx, key, call)
}

// Delete removes a single entry.
func (s *SturdycService) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes every entry whose key starts with prefix.
func (s *SturdycService) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Size returns the number of entries held.
func (s *SturdycService) Size() int {
	return s.client.Size()
}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// adaptFetchFn turns any func(context.Context) (T, error) into the
// func(context.Context) (any, error) sturdyc expects.
func adaptFetchFn(fetchFn any) (func(context.Context) (any, error), error) {
	if fetchFn == nil {
		return nil, ErrInvalidFetchFn
	}
	if fn, ok := fetchFn.(func(context.Context) (any, error)); ok {
		return fn, nil
	}

	fnValue := reflect.ValueOf(fetchFn)
	fnType := fnValue.Type()
	if fnType.Kind() != reflect.Func || fnType.NumIn() != 1 || fnType.NumOut() != 2 ||
		!fnType.In(0).Implements(contextType) || !fnType.Out(1).Implements(errorType) {
		return nil, fmt.Errorf("%w, got %s", ErrInvalidFetchFn, fnType)
	}

	return func(ctx context.Context) (any, error) {
		results := fnValue.Call([]reflect.Value{reflect.ValueOf(ctx)})
		var err error
		if e := results[1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		return results[0].Interface(), err
	}, nil
}
