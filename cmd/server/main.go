package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-repository-ports/cache"
	"github.com/goliatone/go-repository-ports/config"
	"github.com/goliatone/go-repository-ports/event"
	"github.com/goliatone/go-repository-ports/internal/httpapi"
	"github.com/goliatone/go-repository-ports/pkg/di"
	"github.com/goliatone/go-repository-ports/users"
)

// main loads configuration, builds the container and serves the users API
// until SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, *cfg)
	if err != nil {
		return err
	}
	defer container.Close()
	log := container.Logger()
	defer func() { _ = log.Sync() }()

	if err := users.CreateTables(ctx, container.DB()); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}

	repo, err := di.NewRepositoryPort(container, users.Mapping())
	if err != nil {
		return err
	}
	userCache := di.NewCache[users.User](container, cache.WithPrefix(users.CachePrefix))
	publisher := di.NewPublisher[users.User](container, event.WithEntity(users.Mapping().Entity))

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Logger:  log.Named("http"),
		Metrics: container.Metrics().Handler(),
		Health:  container.Health,
	}, httpapi.NewUsersHandler(repo, userCache, publisher, log.Named("users")))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	consumer := event.NewRouter[users.User](publisher).
		Handle(users.TopicCreated, logEvent(log, users.TopicCreated)).
		Handle(users.TopicDeleted, logEvent(log, users.TopicDeleted))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("environment", cfg.App.Environment),
			zap.String("version", cfg.App.Version),
			zap.Bool("read_through", cfg.Repository.ReadThrough),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func logEvent(log *zap.Logger, topic string) func(context.Context, users.User) error {
	return func(_ context.Context, u users.User) error {
		log.Info("user event", zap.String("topic", topic), zap.String("id", u.ID))
		return nil
	}
}
