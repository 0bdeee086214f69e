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

	"github.com/ridepool/chat-service/internal/cache"
	"github.com/ridepool/chat-service/internal/config"
	"github.com/ridepool/chat-service/internal/domain"
	"github.com/ridepool/chat-service/internal/handler"
	"github.com/ridepool/chat-service/internal/history"
	"github.com/ridepool/chat-service/internal/hub"
	"github.com/ridepool/chat-service/internal/relay"
	"github.com/ridepool/chat-service/internal/service"
	"github.com/ridepool/chat-service/internal/store"
	"github.com/ridepool/chat-service/internal/stream"
	"github.com/ridepool/chat-service/pkg/auth"
	"github.com/ridepool/chat-service/pkg/database"
	"github.com/ridepool/chat-service/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()

	if cfg.Auth.Secret == "" {
		l.Fatal().Msg("auth secret is not configured")
	}
	verifier := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)

	// Durable store
	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, &domain.User{}, &domain.Message{}); err != nil {
		l.Fatal().Err(err).Msg("failed to migrate database")
	}
	msgStore := store.NewGormMessageStore(db)
	defer msgStore.Close()
	l.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	// History cache
	historyCache, err := cache.NewRedisHistoryCache(cfg.Redis)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to redis cache")
	}
	defer historyCache.Close()
	historySvc := history.NewService(msgStore, historyCache, cfg.History.CacheTTL)
	l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")

	// Cross-instance relay
	msgRelay, err := relay.NewRedisRelay(cfg.Redis)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize relay")
	}

	// Event stream
	producer, err := stream.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize kafka producer")
	}
	defer producer.Close()
	l.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")

	// Room broker
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	chatSvc := service.NewChatService(wsHub, msgRelay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := chatSvc.Start(ctx); err != nil {
		l.Fatal().Err(err).Msg("failed to start chat service")
	}
	defer chatSvc.Stop()

	// HTTP + websocket surface
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(log.GinMiddleware(l))

	wsHandler := handler.NewWSHandler(wsHub, chatSvc, verifier, cfg.WebSocket)
	router.GET("/chat/ws", func(c *gin.Context) {
		wsHandler.HandleWebSocket(c.Writer, c.Request)
	})

	httpHandler := handler.NewHTTPHandler(msgStore, historySvc, producer, cfg.History)
	httpHandler.RegisterRoutes(router, verifier)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("chat service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down chat service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("chat service stopped")
}
