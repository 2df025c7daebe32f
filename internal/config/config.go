package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds notification service configuration loaded from the environment.
type Config struct {
	AppName  string
	LogLevel string
	HTTPPort string

	// SiteOrigin is injected into every payload's reserved origin key so
	// receiving devices can build absolute URLs.
	SiteOrigin string

	RedisURL    string
	DatabaseURL string
	AuditTable  string

	RabbitURL      string
	BroadcastQueue string
	BroadcastDLQ   string
	PrefetchCount  int
	WorkerCount    int
	MaxDeliveries  int

	PushEndpoint    string
	PushServerKey   string
	ProviderTimeout time.Duration
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:         getEnv("APP_NAME", "notification_service"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		HTTPPort:        getEnv("HTTP_PORT", "8083"),
		SiteOrigin:      getEnv("SITE_ORIGIN", ""),
		RedisURL:        getEnv("REDIS_URL", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		AuditTable:      getEnv("AUDIT_TABLE", "dispatch_records"),
		RabbitURL:       getEnv("RABBITMQ_URL", ""),
		BroadcastQueue:  getEnv("BROADCAST_QUEUE", "broadcast.queue"),
		BroadcastDLQ:    getEnv("BROADCAST_DLQ", "failed.queue"),
		PrefetchCount:   getEnvAsInt("BROADCAST_PREFETCH", 20),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 2),
		MaxDeliveries:   getEnvAsInt("MAX_DELIVERIES", 3),
		PushEndpoint:    getEnv("PUSH_ENDPOINT", "https://fcm.googleapis.com/v1/projects/rs-anime/messages:send"),
		PushServerKey:   getEnv("PUSH_SERVER_KEY", ""),
		ProviderTimeout: getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.PushServerKey == "" {
		missing = append(missing, "PUSH_SERVER_KEY")
	}
	if c.PushEndpoint == "" {
		missing = append(missing, "PUSH_ENDPOINT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
