// The realtime-service carries the portal's coordination layer: one
// authenticated WebSocket per client for presence, conversation
// requests, message relay and call signaling, plus a REST fallback for
// clients without a live connection.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"carelink-backend/internal/database"
	callHandler "carelink-backend/internal/handler/http/call"
	chatHandler "carelink-backend/internal/handler/http/chat"
	conversationHandler "carelink-backend/internal/handler/http/conversation"
	pushHandler "carelink-backend/internal/handler/http/push"
	wsHandler "carelink-backend/internal/handler/ws"
	"carelink-backend/internal/middleware"
	"carelink-backend/internal/presence"
	"carelink-backend/internal/repository/cassandra"
	"carelink-backend/internal/repository/cockroach"
	redisRepo "carelink-backend/internal/repository/redis"
	callService "carelink-backend/internal/service/call"
	chatService "carelink-backend/internal/service/chat"
	conversationService "carelink-backend/internal/service/conversation"
	"carelink-backend/internal/service/storage"
	"carelink-backend/internal/stream"
	"carelink-backend/pkg/constants"
	"carelink-backend/pkg/env"
	"carelink-backend/pkg/jwt"
	"carelink-backend/pkg/logger"
	"carelink-backend/pkg/metrics"
	"carelink-backend/pkg/push"
)

func main() {
	// .env is optional; real deployments inject the environment
	_ = godotenv.Load()
	logger.InitDefault()
	defer logger.Sync()

	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}
	tokenManager := jwt.NewManager(jwtSecret, constants.AccessTokenExpiry)

	ctx := context.Background()

	// CockroachDB: conversations, unread counters, call records
	cockroachDB, err := database.NewCockroachDB(ctx, &database.CockroachConfig{
		Host:     env.GetString("COCKROACH_HOST", "localhost"),
		Port:     env.GetInt("COCKROACH_PORT", 26257),
		User:     env.GetString("COCKROACH_USER", "root"),
		Password: env.GetStringFromFile("COCKROACH_PASSWORD", ""),
		Database: env.GetString("COCKROACH_DATABASE", "carelink_db"),
		SSLMode:  env.GetString("COCKROACH_SSLMODE", "disable"),
	})
	if err != nil {
		logger.Fatal("failed to connect to CockroachDB", zap.Error(err))
	}
	defer cockroachDB.Close()
	logger.Info("connected to CockroachDB")

	// Cassandra: the append-heavy message log
	cassandraSession, err := database.NewCassandraSession(&database.CassandraConfig{
		Hosts:    env.GetStringSlice("CASSANDRA_HOSTS", []string{"localhost"}),
		Keyspace: env.GetString("CASSANDRA_KEYSPACE", "carelink_ks"),
		Username: env.GetStringFromFile("CASSANDRA_USER", ""),
		Password: env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
		Timeout:  10 * time.Second,
	})
	if err != nil {
		logger.Fatal("failed to connect to Cassandra", zap.Error(err))
	}
	defer cassandraSession.Close()
	logger.Info("connected to Cassandra")

	// Redis: presence mirror and push token store
	redisClient, err := database.NewRedisClient(&database.RedisConfig{
		Host:     env.GetString("REDIS_HOST", "localhost"),
		Port:     env.GetInt("REDIS_PORT", 6379),
		Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
		DB:       env.GetInt("REDIS_DB", 0),
		PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
		Timeout:  5 * time.Second,
	})
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Repositories
	conversationRepo := cockroach.NewConversationRepository(cockroachDB.Pool)
	callRecordRepo := cockroach.NewCallRecordRepository(cockroachDB.Pool)
	messageRepo := cassandra.NewMessageRepository(cassandraSession)
	presenceRepo := redisRepo.NewPresenceRepository(redisClient)
	pushTokenRepo := redisRepo.NewPushTokenRepository(redisClient)

	// Push notifications (provider chosen by PUSH_PROVIDER)
	pushProvider, err := push.NewProvider()
	if err != nil {
		logger.Fatal("failed to initialize push provider", zap.Error(err))
	}
	pushService := push.NewService(pushProvider, pushTokenRepo)

	// Kafka stream of terminal events, optional
	var producer *stream.Producer
	if broker := env.GetString("KAFKA_BROKER", ""); broker != "" {
		producer = stream.NewProducer(broker)
		defer producer.Close()
		logger.Info("kafka producer enabled", zap.String("broker", broker))
	}

	// Attachment presigning, optional
	var presigner chatService.Presigner
	if endpoint := env.GetString("MINIO_ENDPOINT", ""); endpoint != "" {
		attachments, err := storage.NewAttachmentService(&storage.Config{
			Endpoint:  endpoint,
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", ""),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", ""),
			Bucket:    env.GetString("MINIO_BUCKET", "carelink-attachments"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
		})
		if err != nil {
			logger.Fatal("failed to initialize attachment storage", zap.Error(err))
		}
		presigner = attachments
	}

	appMetrics := metrics.NewMetrics("realtime-service")

	// Presence registry with its Redis mirror
	registry := presence.NewRegistry(presenceRepo)

	// Services
	conversationSvc := conversationService.NewService(conversationRepo, registry, pushService, producer)
	chatSvc := chatService.NewService(messageRepo, conversationRepo, registry, pushService, presigner, appMetrics)
	callCoordinator := callService.NewCoordinator(registry, registry, callRecordRepo, pushService, producer, appMetrics)

	// Handlers
	hub := wsHandler.NewHub(registry, tokenManager, conversationSvc, chatSvc, callCoordinator, appMetrics)
	conversationHdlr := conversationHandler.NewHandler(conversationSvc)
	chatHdlr := chatHandler.NewHandler(chatSvc)
	callHdlr := callHandler.NewHandler(callCoordinator)
	pushHdlr := pushHandler.NewHandler(pushTokenRepo)

	// Router
	if env.GetString("GIN_MODE", "release") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS())
	router.Use(middleware.Prometheus(appMetrics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "realtime-service"})
	})
	router.GET("/metrics", gin.WrapH(appMetrics.Handler()))

	// The real-time channel authenticates during its own handshake.
	router.GET("/ws", hub.ServeWS)

	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(tokenManager))
	{
		v1.POST("/conversations/request", conversationHdlr.RequestChat)
		v1.POST("/conversations/:id/respond", conversationHdlr.Respond)
		v1.GET("/conversations", conversationHdlr.List)
		v1.GET("/conversations/pending", conversationHdlr.Pending)
		v1.GET("/conversations/:id/messages", chatHdlr.GetMessages)

		v1.POST("/messages", chatHdlr.SendMessage)
		v1.POST("/messages/:id/read", chatHdlr.MarkRead)

		v1.GET("/calls/history", callHdlr.History)

		v1.POST("/push/tokens", pushHdlr.RegisterToken)
		v1.DELETE("/push/tokens", pushHdlr.UnregisterTokens)
	}

	port := env.GetString("PORT", "8080")
	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.Info("realtime-service listening", zap.String("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
