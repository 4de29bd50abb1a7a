package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything cmd/server needs to wire the engine. Values come
// from the environment, with a .env file loaded first when present.
type Config struct {
	MySQLDSN  string
	RedisAddr string

	KafkaBrokers      []string
	WorkTopic         string
	NotificationTopic string
	ConsumerGroup     string

	WorkerCount int

	SweepInterval time.Duration
	// SweepWindow bounds the sweeper's scan to recently placed orders. Zero
	// disables the bound; the restore marker is then the sole filter.
	SweepWindow time.Duration

	// RestoreWarehouseID is the designated warehouse cancelled-order stock
	// is credited back into.
	RestoreWarehouseID int64

	GuardTTL time.Duration

	HTTPAddr string
	GRPCAddr string

	PrettyLogs bool
}

func Load() Config {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	return Config{
		MySQLDSN:           getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/settlement?parseTime=true"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		WorkTopic:          getEnv("KAFKA_WORK_TOPIC", "order-stock-processing"),
		NotificationTopic:  getEnv("KAFKA_NOTIFICATION_TOPIC", "notifications"),
		ConsumerGroup:      getEnv("KAFKA_CONSUMER_GROUP", "stock-settlement"),
		WorkerCount:        getEnvInt("WORKER_COUNT", 4),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", time.Hour),
		SweepWindow:        getEnvDuration("SWEEP_WINDOW", 24*time.Hour),
		RestoreWarehouseID: int64(getEnvInt("RESTORE_WAREHOUSE_ID", 1)),
		GuardTTL:           getEnvDuration("GUARD_TTL", 30*time.Second),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:           getEnv("GRPC_ADDR", ":50051"),
		PrettyLogs:         getEnv("LOG_PRETTY", "") == "true",
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
