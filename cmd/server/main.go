package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"weather-tasks/api"
	"weather-tasks/config"
	"weather-tasks/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("env file: %v", err)
	}
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	config.ConfigureLogger(logger, cfg.Debug, cfg.LogFormat)
	config.ConfigureLogger(log.StandardLogger(), cfg.Debug, cfg.LogFormat)

	base, closeStore, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	var store storage.Backend = base
	if cfg.TaskEventsQueue != "" {
		publisher, err := storage.NewQueuePublisher(cfg.StorageConnString, cfg.TaskEventsQueue)
		if err != nil {
			log.Fatalf("task events queue: %v", err)
		}
		store = storage.NewEventFeed(store, publisher, logger)
	}

	var reserver api.Reserver
	if cfg.RedisConnString != "" {
		redisOpts, err := config.RedisOptions(cfg.RedisConnString)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		store = storage.NewCache(store, rc, cfg.TasksCacheTTL, logger)
		reserver = api.NewRedisReserver(rc, cfg.TaskIDReservationTTL)
	}

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.JSONSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding},
	}))
	e.Use(api.RequestBodyMiddleware(cfg.BodyLimit))

	api.Register(e, store, reserver, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithFields(log.Fields{"addr": cfg.ListenAddr, "backend": cfg.Backend}).Info("task service listening")
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
}

func openBackend(cfg config.Server) (storage.Backend, func(), error) {
	switch cfg.Backend {
	case config.BackendAzTables:
		s, err := storage.NewTableStore(cfg.StorageConnString, cfg.TasksTable)
		return s, func() {}, err
	case config.BackendMemory:
		return storage.NewMemoryStore(), func() {}, nil
	default:
		s, err := storage.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.WithError(err).Warn("close sqlite")
			}
		}, nil
	}
}
