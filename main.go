package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"chat-backend/internal/access"
	"chat-backend/internal/blob"
	"chat-backend/internal/config"
	"chat-backend/internal/db"
	"chat-backend/internal/handlers"
	"chat-backend/internal/middleware"
	"chat-backend/internal/observability"
	"chat-backend/internal/presence"
	"chat-backend/internal/rabbitmq"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
	"chat-backend/internal/ws"
)

const serviceName = "chat-backend"

func main() {
	cfg := config.Load()
	initLogger(cfg.Environment)

	ctx := context.Background()
	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}

	if publisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		log.Warn().Err(err).Msg("event publisher disabled")
	} else {
		observability.SetPublisher(publisher)
		defer publisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	log.Info().
		Str("mode", rabbitmq.PublisherMode(auditPublisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(auditPublisher)).
		Msg("audit publisher ready")
	emitter := telemetry.NewAuditEmitter(auditPublisher, "audit.chat", serviceName, cfg.Environment)

	chatRepo := repositories.NewChatRepo(database)
	memberRepo := repositories.NewMembershipRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	friendRepo := repositories.NewFriendRepo(database)

	guard := access.NewGuard(memberRepo)
	hub := ws.NewHub(memberRepo, guard)

	tracker := presence.NewTracker(cfg.TypingTTL)
	go tracker.Run()
	defer tracker.Stop()

	mediaStore, err := blob.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init media store")
	}

	verifier := middleware.NewVerifier(cfg.JWTSecret)

	chatHandler := handlers.NewChatHandler(chatRepo, memberRepo, friendRepo, guard, hub, tracker, emitter)
	messageHandler := handlers.NewMessageHandler(messageRepo, guard, hub)
	typingHandler := handlers.NewTypingHandler(tracker, guard, hub)
	friendHandler := handlers.NewFriendHandler(friendRepo, emitter)
	mediaHandler := handlers.NewMediaHandler(mediaStore)
	wsHandler := ws.NewHandler(hub, verifier)

	if cfg.Environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)
	sendLimiter := middleware.NewRateLimiter(rate.Limit(cfg.SendRateLimit), cfg.SendRateBurst, 2*time.Minute)
	defer sendLimiter.Stop()

	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static(cfg.MediaBaseURL, mediaStore.Dir())

	router.POST("/friends/requests", authMiddleware, friendHandler.SendRequest)
	router.POST("/friends/requests/:request_id/accept", authMiddleware, friendHandler.AcceptRequest)
	router.POST("/friends/requests/:request_id/decline", authMiddleware, friendHandler.DeclineRequest)
	router.GET("/friends", authMiddleware, friendHandler.ListFriends)
	router.GET("/friends/requests", authMiddleware, friendHandler.ListIncoming)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats/direct", authMiddleware, chatHandler.StartDirectChat)
	router.POST("/chats/group", authMiddleware, chatHandler.CreateGroupChat)
	router.GET("/chats/:chat_id/members", authMiddleware, chatHandler.ListMembers)
	router.POST("/chats/:chat_id/members", authMiddleware, chatHandler.AddMember)
	router.DELETE("/chats/:chat_id/members/:user_id", authMiddleware, chatHandler.RemoveMember)

	router.GET("/chats/:chat_id/messages", authMiddleware, messageHandler.ListMessages)
	router.POST("/chats/:chat_id/messages", authMiddleware, sendLimiter.Middleware(), messageHandler.PostMessage)
	router.DELETE("/chats/:chat_id/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)
	router.DELETE("/chats/:chat_id/messages", authMiddleware, messageHandler.DeleteMyMessages)

	router.PUT("/chats/:chat_id/typing", authMiddleware, sendLimiter.Middleware(), typingHandler.SetTyping)
	router.GET("/chats/:chat_id/typing", authMiddleware, typingHandler.ListTyping)

	router.POST("/media", authMiddleware, mediaHandler.Upload)

	router.GET("/ws", wsHandler.Handle)

	handlers.RegisterDebugRoutes(router, emitter, hub, cfg.DebugRoutes)

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func initLogger(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "dev" {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(cw).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
