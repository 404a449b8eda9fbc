// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kelseyhightower/envconfig"
)

// Backend names accepted by the configuration.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	CacheRedis  = "redis"
	CacheMemory = "memory"

	EventKafka  = "kafka"
	EventMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Event      EventConfig
	Repository RepositoryConfig
	Log        LogConfig
	HTTP       HTTPConfig
}

type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT"`
	Version     string `envconfig:"VERSION"`
}

// PostgresConfig holds the connection parts PostgresURL assembles.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	Name     string `envconfig:"POSTGRES_NAME"`
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

type DatabaseConfig struct {
	// Driver is postgres or sqlite.
	Driver    string `envconfig:"DATABASE_DRIVER" default:"postgres"`
	SQLiteDSN string `envconfig:"SQLITE_DSN" default:"file:repository.db?cache=shared"`
}

type RedisConfig struct {
	Protocol string `envconfig:"REDIS_PROTOCOL" default:"redis"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	User     string `envconfig:"REDIS_USER"`
	Password string `envconfig:"REDIS_PASSWORD"`
	// TTL in seconds, also the default for CACHE_TTL.
	TTL int `envconfig:"REDIS_TTL" default:"3600"`
}

type CacheConfig struct {
	// Type is redis or memory.
	Type string `envconfig:"CACHE_TYPE" default:"redis"`
	// TTL in seconds. Zero falls back to REDIS_TTL.
	TTL   int    `envconfig:"CACHE_TTL"`
	Codec string `envconfig:"CACHE_CODEC" default:"json"`
}

type EventConfig struct {
	// Type is kafka or memory.
	Type        string   `envconfig:"EVENT_TYPE" default:"kafka"`
	KafkaServer []string `envconfig:"KAFKA_SERVER" default:"localhost:9092"`
	KafkaGroup  string   `envconfig:"KAFKA_GROUP" default:"go-repository-ports"`
}

type RepositoryConfig struct {
	FilterMode   string `envconfig:"FILTER_MODE" default:"lenient"`
	ListMaxLimit int    `envconfig:"LIST_MAX_LIMIT" default:"0"`
	// ReadThrough serves Detail and List through the shared read-through cache.
	ReadThrough  bool   `envconfig:"REPOSITORY_READ_THROUGH" default:"false"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
	Output string `envconfig:"LOG_OUTPUT" default:"stdout"`
}

type HTTPConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads every section from the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	sections := []struct {
		name   string
		target any
	}{
		{"app", &cfg.App},
		{"postgres", &cfg.Postgres},
		{"database", &cfg.Database},
		{"redis", &cfg.Redis},
		{"cache", &cfg.Cache},
		{"event", &cfg.Event},
		{"repository", &cfg.Repository},
		{"log", &cfg.Log},
		{"http", &cfg.HTTP},
	}
	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", s.name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints, such as requiring Postgres
// credentials only when the postgres driver is selected.
func (c Config) Validate() error {
	usePostgres := c.Database.Driver == DriverPostgres
	useRedis := c.Cache.Type == CacheRedis
	useKafka := c.Event.Type == EventKafka

	return validation.Errors{
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Driver, validation.Required, validation.In(DriverPostgres, DriverSQLite)),
			validation.Field(&c.Database.SQLiteDSN, validation.When(!usePostgres, validation.Required)),
		),
		"postgres": validation.ValidateStruct(&c.Postgres,
			validation.Field(&c.Postgres.Host, validation.When(usePostgres, validation.Required)),
			validation.Field(&c.Postgres.Port, validation.When(usePostgres, validation.Required, validation.Min(1), validation.Max(65535))),
			validation.Field(&c.Postgres.Name, validation.When(usePostgres, validation.Required)),
			validation.Field(&c.Postgres.User, validation.When(usePostgres, validation.Required)),
		),
		"redis": validation.ValidateStruct(&c.Redis,
			validation.Field(&c.Redis.Protocol, validation.When(useRedis, validation.Required, validation.In("redis", "rediss"))),
			validation.Field(&c.Redis.Host, validation.When(useRedis, validation.Required)),
			validation.Field(&c.Redis.Port, validation.When(useRedis, validation.Required, validation.Min(1), validation.Max(65535))),
			validation.Field(&c.Redis.TTL, validation.Min(1)),
		),
		"cache": validation.ValidateStruct(&c.Cache,
			validation.Field(&c.Cache.Type, validation.Required, validation.In(CacheRedis, CacheMemory)),
			validation.Field(&c.Cache.TTL, validation.Min(0)),
			validation.Field(&c.Cache.Codec, validation.In("json", "msgpack")),
		),
		"event": validation.ValidateStruct(&c.Event,
			validation.Field(&c.Event.Type, validation.Required, validation.In(EventKafka, EventMemory)),
			validation.Field(&c.Event.KafkaServer, validation.When(useKafka, validation.Required, validation.Each(validation.Required))),
		),
		"repository": validation.ValidateStruct(&c.Repository,
			validation.Field(&c.Repository.FilterMode, validation.In("lenient", "strict")),
			validation.Field(&c.Repository.ListMaxLimit, validation.Min(0)),
		),
		"log": validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
			validation.Field(&c.Log.Format, validation.In("json", "console")),
		),
		"http": validation.ValidateStruct(&c.HTTP,
			validation.Field(&c.HTTP.Addr, validation.Required),
		),
	}.Filter()
}

// PostgresURL assembles the lib/pq connection URL.
func (c Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     c.Postgres.Host + ":" + strconv.Itoa(c.Postgres.Port),
		Path:     "/" + c.Postgres.Name,
		RawQuery: url.Values{"sslmode": {c.Postgres.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisURL assembles a URL go-redis can parse. Credentials are omitted when
// no user or password is configured.
func (c Config) RedisURL() string {
	u := url.URL{
		Scheme: c.Redis.Protocol,
		Host:   c.Redis.Host + ":" + strconv.Itoa(c.Redis.Port),
	}
	switch {
	case c.Redis.Password != "":
		u.User = url.UserPassword(c.Redis.User, c.Redis.Password)
	case c.Redis.User != "":
		u.User = url.User(c.Redis.User)
	}
	return u.String()
}

// CacheTTL returns CACHE_TTL, or REDIS_TTL when it is unset.
func (c Config) CacheTTL() time.Duration {
	if c.Cache.TTL > 0 {
		return time.Duration(c.Cache.TTL) * time.Second
	}
	return time.Duration(c.Redis.TTL) * time.Second
}
