package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"chatcore/internal/broker/kafka"
	"chatcore/internal/config"
	"chatcore/internal/domain"
	"chatcore/internal/httpserver"
	"chatcore/internal/notify"
	"chatcore/internal/obs"
	"chatcore/internal/security"
	"chatcore/internal/service"
	"chatcore/internal/store"
	"chatcore/internal/store/postgres"
	"chatcore/internal/store/sqlite"
	"chatcore/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := obs.NewMetrics()

	// Notifications are always recorded in the database and, when brokers
	// are configured, also published to Kafka.
	sink := notify.MultiSink{st.Notifications()}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return err
		}
		defer producer.Close()
		sink = append(sink, notify.NewKafkaSink(producer, cfg.KafkaNotificationTopic))
		logger.Info("kafka notification sink enabled", "topic", cfg.KafkaNotificationTopic)
	}
	bridge := notify.NewBridge(st.Preferences(), sink, logger, metrics)

	hub := ws.NewHub(logger, metrics)
	broadcaster := ws.NewBroadcaster(hub)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		relay := ws.NewRedisRelay(rdb, cfg.RedisChannel, hub, logger)
		broadcaster.WithRelay(relay)
		go func() {
			if err := broadcaster.RunRelay(ctx, nil); err != nil {
				logger.Error("redis relay stopped, delivering to local sessions only", "err", err)
			}
		}()
		logger.Info("redis relay enabled", "channel", cfg.RedisChannel)
	}

	defaults := domain.DefaultSettings()
	defaults.MaxMessageLength = cfg.DefaultMaxMessageLength
	defaults.MaxGroupParticipants = cfg.DefaultMaxGroupParticipants

	hooks := service.NewHooks(bridge, broadcaster, logger, metrics)
	messaging := service.New(st, defaults, hooks, logger)

	tokens := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	auth := service.NewAuthService(st.Users(), tokens)

	router := httpserver.NewRouter(httpserver.Deps{
		Messaging: messaging,
		Auth:      auth,
		Users:     service.NewUserService(st.Users()),
		Inbox:     notify.NewInbox(st.Preferences(), st.Notifications()),
		WS: ws.NewHandler(hub, auth, messaging, ws.HandlerConfig{
			AllowedOrigins:       cfg.CORSOrigins,
			MaxMessagesPerSecond: cfg.WSMaxMessagesPerSecond,
		}, logger),
		Metrics:     metrics.Handler(),
		CORSOrigins: cfg.CORSOrigins,
		DevRoutes:   cfg.IsDev(),
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:        cfg.HTTPAddr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr(), "db_driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, *store.DB, error) {
	switch cfg.DBDriver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, sqlite.NewStore(db), nil
	default:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, postgres.NewStore(db), nil
	}
}
