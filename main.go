package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"support-chat-service/internal/chat"
	"support-chat-service/internal/db"
	"support-chat-service/internal/events"
	"support-chat-service/internal/handlers"
	"support-chat-service/internal/middleware"
	"support-chat-service/internal/notify"
	"support-chat-service/internal/observability"
	"support-chat-service/internal/rabbitmq"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/telemetry"
	"support-chat-service/internal/ws"
)

func main() {
	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), "support-chat-service", getEnv("OTLP_ENDPOINT", ""))
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(getEnv("AMQP_URL", ""), getEnv("AMQP_EXCHANGE", "chat_events"))
	defer publisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(publisher))

	audit := telemetry.NewAuditEmitter(publisher, getEnv("AUDIT_ROUTING_KEY", "audit.chat"),
		"support-chat-service", getEnv("ENVIRONMENT", "development"))

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	profileRepo := repositories.NewProfileRepo(database)

	broker := events.NewBroker()

	mailer := notify.NewMailer(getEnv("RESEND_API_KEY", ""),
		getEnv("MAIL_FROM", "MotivWealth <onboarding@resend.dev>"))
	dispatcher := notify.NewDispatcher(mailer, audit)
	defer dispatcher.Wait()

	chatService := chat.NewService(conversationRepo, messageRepo, profileRepo, broker, dispatcher)

	hub := ws.NewHub()
	aggregator := chat.NewAggregator(chatService, conversationRepo, messageRepo, profileRepo)
	aggregator.OnRefresh = hub.BroadcastConversations
	if err := aggregator.Start(context.Background()); err != nil {
		log.Fatalf("failed to start aggregator: %v", err)
	}
	defer aggregator.Stop()

	chatHandler := handlers.NewChatHandler(chatService, audit)
	adminHandler := handlers.NewAdminHandler(chatService, aggregator, audit)
	chatWS := ws.NewChatWebSocketHandler(chatService)
	adminWS := ws.NewAdminWebSocketHandler(hub, aggregator)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("support-chat-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware([]byte(getEnv("JWT_SECRET", "dev-secret")))
	adminOnly := middleware.RequireAdmin()

	router.POST("/chat/open", authMiddleware, chatHandler.OpenChat)
	router.GET("/chat/:conversation_id/messages", authMiddleware, chatHandler.GetMessages)
	router.POST("/chat/:conversation_id/messages", authMiddleware, chatHandler.PostMessage)
	router.POST("/chat/:conversation_id/read", authMiddleware, chatHandler.MarkRead)

	router.GET("/admin/conversations", authMiddleware, adminOnly, adminHandler.ListConversations)
	router.GET("/admin/conversations/:conversation_id/messages", authMiddleware, adminOnly, adminHandler.GetConversationMessages)
	router.POST("/admin/conversations/:conversation_id/messages", authMiddleware, adminOnly, adminHandler.PostMessage)
	router.POST("/admin/conversations/:conversation_id/read", authMiddleware, adminOnly, adminHandler.MarkRead)

	router.GET("/ws/chat", authMiddleware, chatWS.Handle)
	router.GET("/ws/admin", authMiddleware, adminWS.Handle)

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
