package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds the runtime configuration of the server.
type Config struct {
	ServiceName string // e.g. "import-export"
	Env         string // "dev", "uat", "prod"
	LogLevel    string // "debug", "info", etc.
	Port        int    // HTTP port
	GRPCPort    int

	StoreDriver          string // "mysql" or "memory"
	MySQLDSN             string
	MySQLDSNSecret       string // AWS Secrets Manager id; overrides MySQLDSN when set
	AWSRegion            string
	MySQLMaxOpenConns    int
	MySQLMaxIdleConns    int
	MySQLConnMaxLifetime time.Duration

	RedisAddr      string // empty disables idempotency keys
	RedisDB        int
	RedisPass      string
	IdempotencyTTL time.Duration

	NATSURL            string // empty disables events
	EventSubjectPrefix string

	LatestLimit               int
	ReplenishOnTransferDelete bool
	RequestTimeout            time.Duration
	ShutdownTimeout           time.Duration
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	return &Config{
		ServiceName:               GetEnv("SERVICE_NAME", "import-export"),
		Env:                       GetEnv("ENV", "dev"),
		LogLevel:                  GetEnv("LOG_LEVEL", "info"),
		Port:                      GetEnvInt("PORT", 5000),
		GRPCPort:                  GetEnvInt("GRPC_PORT", 50051),
		StoreDriver:               GetEnv("STORE_DRIVER", StoreMySQL),
		MySQLDSN:                  GetEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/importexport?parseTime=true"),
		MySQLDSNSecret:            GetEnv("MYSQL_DSN_SECRET", ""),
		AWSRegion:                 GetEnv("AWS_REGION", "us-east-1"),
		MySQLMaxOpenConns:         GetEnvInt("MYSQL_MAX_OPEN_CONNS", 50),
		MySQLMaxIdleConns:         GetEnvInt("MYSQL_MAX_IDLE_CONNS", 25),
		MySQLConnMaxLifetime:      GetEnvDuration("MYSQL_CONN_MAX_LIFETIME", 5*time.Minute),
		RedisAddr:                 GetEnv("REDIS_ADDR", ""),
		RedisDB:                   GetEnvInt("REDIS_DB", 0),
		RedisPass:                 GetEnv("REDIS_PASS", ""),
		IdempotencyTTL:            GetEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		NATSURL:                   GetEnv("NATS_URL", ""),
		EventSubjectPrefix:        GetEnv("EVENT_SUBJECT_PREFIX", "evt.importexport"),
		LatestLimit:               GetEnvInt("LATEST_LIMIT", 6),
		ReplenishOnTransferDelete: GetEnvBool("REPLENISH_ON_TRANSFER_DELETE", false),
		RequestTimeout:            GetEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout:           GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMySQL, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.GRPCPort <= 0 {
		return fmt.Errorf("ports must be positive (http=%d grpc=%d)", c.Port, c.GRPCPort)
	}
	if c.Port == c.GRPCPort {
		return fmt.Errorf("http and grpc ports collide on %d", c.Port)
	}
	if c.LatestLimit <= 0 {
		return fmt.Errorf("LATEST_LIMIT must be positive, got %d", c.LatestLimit)
	}
	return nil
}
