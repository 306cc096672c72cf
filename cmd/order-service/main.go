package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-gifting/internal/auth"
	"ms-gifting/internal/config"
	"ms-gifting/internal/database/migrations"
	"ms-gifting/internal/fees"
	"ms-gifting/internal/kafka"
	"ms-gifting/internal/logger"
	"ms-gifting/internal/order"
	"ms-gifting/internal/order/db"
	"ms-gifting/internal/order/order_api"
	rediswrap "ms-gifting/internal/order/redis"
	"ms-gifting/internal/pickupcode"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	logger.Info("DATABASE", "PostgreSQL connection successful")

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	logger.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	os.Setenv("SERVICE_NAME", "order-service")
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Order Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		logger.Warn("DATABASE", fmt.Sprintf("Migrations failed, falling back to schema sync: %v", err))
		db.Migrate(bunDB)
	}

	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer kafkaProducer.Close()
	logger.Info("KAFKA", "Kafka producer initialized successfully")

	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All()); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		logger.Info("KAFKA", "Required topics ensured successfully")
	}

	gateway := order.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, logger)

	orderService := order.NewOrderService(
		&db.DB{Bun: bunDB},
		gateway,
		kafkaProducer,
		rediswrap.NewDedup(redisClient, rediswrap.DefaultDedupTTL),
		pickupcode.NewGenerator(),
		fees.Policy{
			ProcessingFeeFlat: cfg.Fees.ProcessingFeeFlat,
			ProcessingFeeBps:  cfg.Fees.ProcessingFeeBps,
		},
		order.Topics{
			OrderCreated:   cfg.Kafka.Topics.OrderCreated,
			OrderPaid:      cfg.Kafka.Topics.OrderPaid,
			OrderCollected: cfg.Kafka.Topics.OrderCollected,
			OrderCancelled: cfg.Kafka.Topics.OrderCancelled,
		},
		cfg.Fees.Currency,
		time.Duration(cfg.Fees.PickupCodeTTLDays)*24*time.Hour,
		logger,
	)

	handler := &order_api.Handler{
		OrderService: orderService,
		Gateway:      gateway,
		Logger:       logger,
	}

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	// Stripe authenticates itself through the signature header, not a
	// bearer token.
	r.Post("/api/webhooks/stripe", handler.StripeWebhook)
	logger.Info("ROUTER", "Stripe webhook endpoint registered at /api/webhooks/stripe")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		logger.Info("AUTH", "JWT middleware applied to protected API routes")

		r.Route("/api/orders", func(r chi.Router) {
			r.Post("/", handler.PlaceOrder)
			r.Get("/", handler.ListMyOrders)
			r.Post("/collect", handler.CollectOrder)
			r.Get("/{orderId}", handler.GetOrder)
			r.Get("/{orderId}/qr", handler.GetPickupQR)
			r.Delete("/{orderId}", handler.DeleteOrder)
		})
		logger.Info("ROUTER", "Order routes registered under /api/orders")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Order Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "Order Service shutdown complete")
	}
}
