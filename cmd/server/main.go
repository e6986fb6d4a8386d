package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/live-queue-system/internal/admission"
	"github.com/live-queue-system/internal/auth"
	"github.com/live-queue-system/internal/event"
	"github.com/live-queue-system/internal/gateway"
	"github.com/live-queue-system/internal/moderation"
	"github.com/live-queue-system/internal/payment"
	"github.com/live-queue-system/internal/queue"
	"github.com/live-queue-system/internal/request"
	"github.com/live-queue-system/internal/ws"
	"github.com/live-queue-system/pkg/database"
	"github.com/live-queue-system/pkg/events"
	"github.com/live-queue-system/pkg/jwt"
	"github.com/live-queue-system/pkg/redis"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	// Set Gin mode based on environment
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize MySQL database
	db, err := database.NewMySQLDB(
		os.Getenv("MYSQL_HOST"),
		os.Getenv("MYSQL_PORT"),
		os.Getenv("MYSQL_USER"),
		os.Getenv("MYSQL_PASSWORD"),
		os.Getenv("MYSQL_DATABASE"),
	)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize Redis client
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     os.Getenv("REDIS_HOST") + ":" + os.Getenv("REDIS_PORT"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	// Initialize Kafka client
	kafkaClient := events.NewKafkaClient(
		strings.Split(os.Getenv("KAFKA_BROKERS"), ","),
		"live-queue-deltas",
		os.Getenv("KAFKA_GROUP_ID"),
	)

	// Initialize services
	tokens := jwt.NewManager(os.Getenv("JWT_SECRET"), 12*time.Hour)
	limiter := admission.NewLimiter(redis.NewCounterStore(redisClient), admission.DefaultLimits())
	gatewayClient := gateway.NewClient(
		os.Getenv("PAYMENT_GATEWAY_URL"),
		os.Getenv("PAYMENT_GATEWAY_API_KEY"),
		os.Getenv("PAYMENT_WEBHOOK_SECRET"),
	)

	queueEngine := queue.NewEngine(db, redisClient, kafkaClient, queue.DefaultWeights())
	requestService := request.NewService(db, kafkaClient, queueEngine, request.DefaultConfig())
	eventService := event.NewService(db, redisClient, kafkaClient, queueEngine)
	moderationService := moderation.NewService(db, requestService, queueEngine, kafkaClient)
	paymentService := payment.NewService(db, kafkaClient, queueEngine)

	// Initialize handlers
	authHandler := auth.NewHandler(tokens, eventService)
	eventHandler := event.NewHandler(eventService)
	requestHandler := request.NewHandler(requestService)
	moderationHandler := moderation.NewHandler(moderationService, requestService)
	queueHandler := queue.NewHandler(queueEngine)
	paymentHandler := payment.NewHandler(paymentService, gatewayClient)
	wsHandler := ws.NewHandler(kafkaClient)

	// Background loops: delta fan-out, expiry sweep, age-decay recompute
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wsHandler.Run(ctx)
	go requestService.RunExpirySweep(ctx, time.Minute)
	go queueEngine.RunDecayTick(ctx, 30*time.Second)

	// Initialize Gin router
	router := gin.Default()

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(os.Getenv("CORS_ORIGINS"), ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Gateway-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	authHandler.RegisterRoutes(v1, admission.Middleware(limiter, "join"))
	paymentHandler.RegisterWebhook(v1)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(auth.Middleware(tokens))
	{
		requestHandler.RegisterRoutes(protected,
			admission.Middleware(limiter, "request"),
			admission.Middleware(limiter, "vote"),
		)
		queueHandler.RegisterRoutes(protected)
		eventHandler.RegisterRoutes(protected)
		paymentHandler.RegisterRoutes(protected, admission.Middleware(limiter, "tip"))

		// WebSocket endpoint
		protected.GET("/ws/events/:id", wsHandler.HandleWebSocket)

		// DJ-only routes
		dj := protected.Group("/")
		dj.Use(auth.RequireDJ())
		{
			eventHandler.RegisterDJRoutes(dj)
			moderationHandler.RegisterRoutes(dj)
			queueHandler.RegisterDJRoutes(dj)
		}
	}

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
