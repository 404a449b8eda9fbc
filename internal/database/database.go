// Package database opens the bun database the repositories run on.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects the driver and its DSN.
type Config struct {
	Driver string
	DSN    string
	// SlowQuery logs queries slower than this at Warn. Zero disables it.
	SlowQuery time.Duration
	Logger    *zap.Logger
}

// Open connects to the configured database and pings it.
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	var db *bun.DB
	switch cfg.Driver {
	case DriverPostgres:
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite3", caseSensitiveLike(cfg.DSN))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// sqlite serialises writers; one connection avoids SQLITE_BUSY.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Driver, err)
	}

	if cfg.Logger != nil {
		db.AddQueryHook(NewQueryHook(cfg.Logger, cfg.SlowQuery))
	}
	return db, nil
}

// caseSensitiveLike turns on case sensitive LIKE for every connection the
// driver opens, matching postgres. Case insensitive matching uses LOWER.
func caseSensitiveLike(dsn string) string {
	if strings.Contains(dsn, "_cslike=") || strings.Contains(dsn, "_case_sensitive_like=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_cslike=1"
	}
	return dsn + "?_cslike=1"
}

// MemorySQLiteDSN returns a DSN for a private in-memory sqlite database.
func MemorySQLiteDSN() string {
	return "file:" + uuid.NewString() + "?mode=memory&cache=shared"
}

// QueryHook logs failed and slow queries.
type QueryHook struct {
	logger *zap.Logger
	slow   time.Duration
}

var _ bun.QueryHook = (*QueryHook)(nil)

func NewQueryHook(logger *zap.Logger, slow time.Duration) *QueryHook {
	return &QueryHook{logger: logger, slow: slow}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	switch {
	case event.Err != nil && event.Err != sql.ErrNoRows:
		h.logger.Error("query failed",
			zap.String("query", event.Query),
			zap.Duration("elapsed", elapsed),
			zap.Error(event.Err),
		)
	case h.slow > 0 && elapsed > h.slow:
		h.logger.Warn("slow query",
			zap.String("query", event.Query),
			zap.Duration("elapsed", elapsed),
		)
	default:
		h.logger.Debug("query", zap.String("query", event.Query), zap.Duration("elapsed", elapsed))
	}
}
