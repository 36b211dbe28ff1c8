package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	HTTP      ServerConfig
	MySQL     MySQLConfig
	Redis     RedisConfig
	Log       LogConfig
	Bank      BankConfig
	Breaker   BreakerConfig
	Retry     RetryConfig
	Merchants MerchantsConfig
	Jobs      JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	// Addr is optional; when empty the idempotency ledger stays in-process.
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level string
}

type BankConfig struct {
	// ResponseTimeout bounds each individual wait for a bank answer.
	ResponseTimeout time.Duration
	// SimulatorLatency delays simulated bank answers; zero answers at once.
	SimulatorLatency time.Duration
	// SimulatorBehaviors maps a bank name to accept/reject/unreachable/silent.
	SimulatorBehaviors map[string]string
}

type BreakerConfig struct {
	FailureThreshold uint32
	Cooldown         time.Duration
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

type MerchantsConfig struct {
	// Routes maps an onboarded merchant id to the name of its acquiring bank.
	Routes map[string]string
}

type JobsConfig struct {
	DeferredReplayInterval time.Duration
	BatchSize              int32
}

// Well-known demo onboarding: two merchants routed to two simulated banks.
const defaultMerchantRoutes = "2d0ae468-7ac9-48f4-be3f-73628de3600e=societe_generale,06c6116f-1d4e-44d3-ae9f-8df90f991a52=bnp"

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "payment-gateway"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Bank: BankConfig{
			ResponseTimeout:    getMillisEnv("BANK_RESPONSE_TIMEOUT_MS", 5000*time.Millisecond),
			SimulatorLatency:   getMillisEnv("BANK_SIMULATOR_LATENCY_MS", 0),
			SimulatorBehaviors: parseKeyValueList(getEnv("BANK_SIMULATOR_BEHAVIORS", "societe_generale=accept,bnp=accept")),
		},
		Breaker: BreakerConfig{
			FailureThreshold: uint32(getIntEnv("BREAKER_FAILURE_THRESHOLD", 2)),
			Cooldown:         getMillisEnv("BREAKER_COOLDOWN_MS", 20*time.Millisecond),
		},
		Retry: RetryConfig{
			MaxAttempts: getIntEnv("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getMillisEnv("RETRY_BASE_DELAY_MS", time.Millisecond),
		},
		Merchants: MerchantsConfig{
			Routes: parseKeyValueList(getEnv("GATEWAY_MERCHANT_ROUTES", defaultMerchantRoutes)),
		},
		Jobs: JobsConfig{
			DeferredReplayInterval: getMinutesEnv("DEFERRED_REPLAY_INTERVAL_MINUTES", time.Minute),
			BatchSize:              int32(getIntEnv("GATEWAY_JOB_BATCH_SIZE", 100)),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getMillisEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if millis, err := strconv.Atoi(value); err == nil {
			return time.Duration(millis) * time.Millisecond
		}
	}
	return defaultValue
}

// parseKeyValueList parses "a=x,b=y" into a map, skipping malformed pairs.
func parseKeyValueList(raw string) map[string]string {
	result := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
