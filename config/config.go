package config

import (
	"os"
	"strconv"
	"time"
)

type StoreBackend string

const (
	BackendPocketBase StoreBackend = "pocketbase"
	BackendRedis      StoreBackend = "redis"
	BackendLocal      StoreBackend = "local"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Persistence
	StoreBackend       StoreBackend
	LocalStorePath     string
	ReserveMaxAttempts int

	// Redis configuration
	RedisURL       string
	RedisKeyPrefix string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Wallet
	WalletProvider string
	WalletRPCURL   string
	PaymentTimeout time.Duration

	// Purchase guard
	InflightTTL time.Duration

	// Reconciliation queue; empty URL logs records instead
	RabbitMQURL   string
	RabbitMQQueue string

	// Monitoring
	EnableMetrics   bool
	MetricsInterval time.Duration
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Persistence
		StoreBackend:       StoreBackend(getEnv("STORE_BACKEND", string(BackendPocketBase))),
		LocalStorePath:     getEnv("LOCAL_STORE_PATH", "blocktix.cbor"),
		ReserveMaxAttempts: getEnvAsInt("RESERVE_MAX_ATTEMPTS", 10),

		// Redis
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "blocktix"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "blocktix-server"),

		// Wallet
		WalletProvider: getEnv("WALLET_PROVIDER", "simulated"),
		WalletRPCURL:   getEnv("WALLET_RPC_URL", "http://localhost:8545"),
		PaymentTimeout: getEnvAsDuration("PAYMENT_TIMEOUT", "2m"),

		InflightTTL: getEnvAsDuration("INFLIGHT_TTL", "3m"),

		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		RabbitMQQueue: getEnv("RABBITMQ_QUEUE", "unfulfilled_payments"),

		// Monitoring
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", "30s"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
