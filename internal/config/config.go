package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"

	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	Backend  string
	MySQLDSN string
	Redis    RedisConfig
	Lock     LockConfig
	Server   ServerConfig
	Events   EventConfig
	Ledger   LedgerConfig
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type LockConfig struct {
	Backend string
	TTL     time.Duration
	Wait    time.Duration
}

type ServerConfig struct {
	HTTPAddr string
	GRPCAddr string
}

type EventConfig struct {
	Workers   int
	QueueSize int
	Channel   string
}

type LedgerConfig struct {
	DefaultCurrency     string
	EcomDefaultLocation string
}

// Load reads .env when present, then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	return Config{
		Backend:  strings.ToLower(getEnv("LEDGER_BACKEND", BackendMemory)),
		MySQLDSN: getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/ledger?parseTime=true"),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       intFromEnv("REDIS_DB", 0),
			PoolSize: intFromEnv("REDIS_POOL_SIZE", 100),
		},
		Lock: LockConfig{
			Backend: strings.ToLower(getEnv("LOCK_BACKEND", LockLocal)),
			TTL:     time.Duration(intFromEnv("LOCK_TTL_SECONDS", 30)) * time.Second,
			Wait:    time.Duration(intFromEnv("LOCK_WAIT_MS", 5000)) * time.Millisecond,
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr: getEnv("GRPC_ADDR", ":50051"),
		},
		Events: EventConfig{
			Workers:   intFromEnv("EVENT_WORKERS", 4),
			QueueSize: intFromEnv("EVENT_QUEUE_SIZE", 10000),
			Channel:   getEnv("EVENT_CHANNEL", "ledger:movements"),
		},
		Ledger: LedgerConfig{
			DefaultCurrency:     strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),
			EcomDefaultLocation: getEnv("ECOM_DEFAULT_LOCATION", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
