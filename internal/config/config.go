package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Stripe   StripeConfig
	Fees     FeesConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type TopicConfig struct {
	OrderCreated   string
	OrderPaid      string
	OrderCollected string
	OrderCancelled string
	PayoutSent     string
}

// All returns every lifecycle topic, for broker bootstrap.
func (t TopicConfig) All() []string {
	return []string{t.OrderCreated, t.OrderPaid, t.OrderCollected, t.OrderCancelled, t.PayoutSent}
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// PayoutKey authorizes transfers to connected accounts. Falls back to
	// SecretKey when unset.
	PayoutKey string
}

type FeesConfig struct {
	// ProcessingFeeFlat is charged per order, in minor units.
	ProcessingFeeFlat int64
	// ProcessingFeeBps is the variable part in basis points.
	ProcessingFeeBps int
	Currency         string
	// PickupCodeTTLDays bounds how long a pickup code stays collectable.
	// Zero disables expiry.
	PickupCodeTTLDays int
}

func Load() *Config {
	stripeSecret := getEnv("STRIPE_SECRET_KEY", "")

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "gifting_user"),
			Password:     getEnv("DB_PASSWORD", "gifting_pass"),
			Database:     getEnv("DB_NAME", "gifting"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID: getEnv("KAFKA_GROUP_ID", "payout-worker-group"),
			Topics: TopicConfig{
				OrderCreated:   getEnv("KAFKA_TOPIC_ORDER_CREATED", "gifting.order.created"),
				OrderPaid:      getEnv("KAFKA_TOPIC_ORDER_PAID", "gifting.order.paid"),
				OrderCollected: getEnv("KAFKA_TOPIC_ORDER_COLLECTED", "gifting.order.collected"),
				OrderCancelled: getEnv("KAFKA_TOPIC_ORDER_CANCELLED", "gifting.order.cancelled"),
				PayoutSent:     getEnv("KAFKA_TOPIC_PAYOUT_SENT", "gifting.payout.sent"),
			},
		},
		Stripe: StripeConfig{
			SecretKey:     stripeSecret,
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			PayoutKey:     getEnv("STRIPE_PAYOUT_KEY", stripeSecret),
		},
		Fees: FeesConfig{
			ProcessingFeeFlat: int64(getEnvInt("PROCESSING_FEE_FLAT", 150)),
			ProcessingFeeBps:  getEnvInt("PROCESSING_FEE_BPS", 290),
			Currency:          getEnv("CURRENCY", "kes"),
			PickupCodeTTLDays: getEnvInt("PICKUP_CODE_TTL_DAYS", 0),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
