package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ezchat-cam/coordinator/internal/auth"
	"github.com/ezchat-cam/coordinator/internal/config"
	"github.com/ezchat-cam/coordinator/internal/handler"
	"github.com/ezchat-cam/coordinator/internal/hub"
	"github.com/ezchat-cam/coordinator/internal/pubsub"
	"github.com/ezchat-cam/coordinator/internal/repository"
	"github.com/ezchat-cam/coordinator/internal/service"
	"github.com/ezchat-cam/coordinator/internal/store"
	pkglog "github.com/ezchat-cam/coordinator/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "coordinator"})
	logger := pkglog.L()

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Store.Driver).
		Str("instance_id", cfg.Server.InstanceID).
		Msg("starting coordinator")

	if cfg.Auth.Secret == "" {
		logger.Fatal().Msg("auth.secret is required")
	}

	// Coordination state store
	var st store.Store
	switch cfg.Store.Driver {
	case "memory":
		st = store.NewMemoryStore()
	default:
		st, err = store.NewRedisStore(store.RedisConfig{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			EventChannel: cfg.Redis.EventChannel,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create redis store")
		}
	}
	defer st.Close()

	// Room profile repository. Without a DSN the directory runs on the
	// in-memory repository, which is fine for single-instance setups.
	var profiles repository.RoomProfileRepository
	if cfg.Database.DSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		profiles, err = repository.NewGormProfileRepository(db)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialise profile repository")
		}
	} else {
		logger.Warn().Msg("no database dsn configured, using in-memory profile repository")
		profiles = repository.NewMemoryProfileRepository()
	}

	// Local event hub
	h := hub.New()

	// Coordination service
	coordinator := service.NewCoordinator(st, profiles, h, service.Config{
		PresenceTTL:   cfg.Coordination.PresenceTTL,
		RoomLeaseTTL:  cfg.Coordination.RoomLeaseTTL,
		ChatLockTTL:   cfg.Coordination.ChatLockTTL,
		SlotCapacity:  cfg.Coordination.SlotCapacity,
		ChatRetention: cfg.Coordination.ChatRetention,
		MaxMessageLen: cfg.Coordination.MaxMessageLen,
		PageSize:      cfg.Coordination.PageSize,
		PromotedCap:   cfg.Coordination.PromotedCap,
		InstanceID:    cfg.Server.InstanceID,
	})

	ctx, cancel := context.WithCancel(context.Background())

	// Cross-instance event subscriber. A connection in subscriber mode cannot
	// run other commands, so it gets its own client.
	var subscriber *pubsub.Subscriber
	if cfg.Store.Driver != "memory" {
		redisPubSub := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisPubSub.Close()

		subscriber = pubsub.NewSubscriber(redisPubSub, cfg.Redis.EventChannel, h, cfg.Server.InstanceID)
		go subscriber.Run(ctx)
	}

	// Token manager and handlers
	tokens := auth.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	httpHandler := handler.NewHandler(coordinator, tokens, h, hub.WSConfig{
		PingInterval:   cfg.WS.PingInterval,
		PongWait:       cfg.WS.PongWait,
		WriteWait:      cfg.WS.WriteWait,
		MaxMessageSize: cfg.WS.MaxMessageSize,
	})

	// Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(pkglog.GinMiddleware(logger))
	httpHandler.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Write timeout would sever long-lived SSE streams; rely on client
		// reconnects and the read deadline instead.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("coordinator listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down coordinator")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		cancel() // 1. stop the pub/sub subscriber

		if subscriber != nil {
			<-subscriber.Done() // 2. wait for the subscriber goroutine to exit
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("coordinator stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
}
