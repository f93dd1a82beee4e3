package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	GatewayBaseURL       string
	GatewayAPIKey        string
	GatewayWebhookSecret string
	GatewayTimeout       time.Duration

	RateLimitEnabled       bool
	RateLimitRedisAddr     string
	RateLimitRedisPassword string
	RateLimitRedisDB       int
	WebhookRate            float64
	WebhookBurst           int

	ReceiptProductionURL string
	ReceiptSandboxURL    string
	ReceiptSharedSecret  string
	ReceiptTimeout       time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "fanbase"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "fanbase"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		GatewayBaseURL:       strings.TrimRight(getenv("GATEWAY_BASE_URL", "https://api.gateway.test"), "/"),
		GatewayAPIKey:        strings.TrimSpace(getenv("GATEWAY_API_KEY", "")),
		GatewayWebhookSecret: strings.TrimSpace(getenv("GATEWAY_WEBHOOK_SECRET", "")),
		GatewayTimeout:       getenvDuration("GATEWAY_TIMEOUT", 15*time.Second),

		RateLimitEnabled:       getenvBool("RATE_LIMIT_ENABLED", false),
		RateLimitRedisAddr:     getenv("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
		WebhookRate:            getenvFloat("WEBHOOK_RATE_LIMIT", 50),
		WebhookBurst:           getenvInt("WEBHOOK_RATE_BURST", 100),

		ReceiptProductionURL: getenv("RECEIPT_PRODUCTION_URL", "https://buy.itunes.apple.com/verifyReceipt"),
		ReceiptSandboxURL:    getenv("RECEIPT_SANDBOX_URL", "https://sandbox.itunes.apple.com/verifyReceipt"),
		ReceiptSharedSecret:  strings.TrimSpace(getenv("RECEIPT_SHARED_SECRET", "")),
		ReceiptTimeout:       getenvDuration("RECEIPT_TIMEOUT", 15*time.Second),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
