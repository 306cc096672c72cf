package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-gifting/internal/config"
	"ms-gifting/internal/kafka"
	"ms-gifting/internal/logger"
	"ms-gifting/internal/models"
	"ms-gifting/internal/order/db"
	handlers "ms-gifting/internal/payout/handler"
	"ms-gifting/internal/payout/services"
	"ms-gifting/internal/payout/storage"
)

func connectPostgres(cfg *config.Config, log *logger.Logger) *sql.DB {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	log.Info("DATABASE", "PostgreSQL connection successful")
	return sqldb
}

func main() {
	os.Setenv("SERVICE_NAME", "payout-worker")
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Payout Worker initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()

	sqldb := connectPostgres(cfg, log)
	defer sqldb.Close()

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	orderStore := &db.DB{Bun: bunDB}

	payoutStore, err := storage.NewPostgreSQLStoreWithDB(sqldb, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to initialize payout storage: %v", err))
	}

	transferClient, err := services.NewStripeTransferClient(cfg.Stripe.PayoutKey, log)
	if err != nil {
		log.Fatal("STRIPE", fmt.Sprintf("Failed to initialize transfer client: %v", err))
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	disburser := services.NewDisburser(orderStore, payoutStore, transferClient, producer, cfg.Kafka.Topics.PayoutSent, log)

	// Consume collected-order events; each one is a disbursement request.
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.OrderCollected, cfg.Kafka.GroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consumer.Start(ctx, func(event models.OrderEvent) {
		if event.Type != models.EventOrderCollected {
			return
		}
		_, err := disburser.Disburse(event.OrderID)
		switch {
		case err == nil:
			log.LogPayout("SENT", event.OrderID, "disbursement completed")
		case errors.Is(err, services.ErrAlreadyPaidOut):
			log.LogPayout("SKIP", event.OrderID, "payout already sent")
		case errors.Is(err, services.ErrIncompleteDestination):
			log.LogPayout("HELD", event.OrderID, "shop payout destination incomplete")
		default:
			log.Error("PAYOUT", fmt.Sprintf("Disbursement failed for order %s: %v", event.OrderID, err))
		}
	})

	payoutHandler := handlers.NewPayoutHandler(payoutStore, log)

	router := gin.Default()
	router.GET("/health", payoutHandler.Health)
	api := router.Group("/api")
	{
		api.GET("/payouts/:orderId", payoutHandler.GetPayoutByOrder)
		api.GET("/payouts", payoutHandler.ListPayouts)
	}

	port := os.Getenv("PAYOUT_WORKER_PORT")
	if port == "" {
		port = ":8085"
	}

	server := &http.Server{
		Addr:    port,
		Handler: router,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Payout Worker admin API running on %s", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Worker started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Payout Worker shutdown complete")
	}
}
