package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	DynamoDB  DynamoDBConfig
	Redis     RedisConfig
	SMS       SMSConfig
	JWT       JWTConfig
	OTP       OTPConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StoreConfig selects the backing for records and rate-limit counters.
// "memory" is valid only for single-instance deployments; multi-instance
// deployments must share state through DynamoDB and Redis.
type StoreConfig struct {
	RecordBackend  string // "memory" or "dynamo"
	CounterBackend string // "memory" or "redis"
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type SMSConfig struct {
	AccountSID  string
	AuthToken   string
	FromNumber  string
	ProductName string
	SendTimeout time.Duration
}

type JWTConfig struct {
	SecretKey string
	Expiry    time.Duration
}

type OTPConfig struct {
	CodeLength  int
	Expiry      time.Duration
	MaxAttempts int
}

type RateLimitConfig struct {
	PhoneMax     int
	IPMax        int
	GlobalMax    int
	Window       time.Duration
	FanoutMax    int
	FanoutWindow time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			RecordBackend:  getEnv("STORE_BACKEND", "memory"),
			CounterBackend: getEnv("RATELIMIT_BACKEND", "memory"),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "ap-northeast-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "PhoneGateTable"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMS: SMSConfig{
			AccountSID:  getEnv("SMS_ACCOUNT_SID", ""),
			AuthToken:   getEnv("SMS_AUTH_TOKEN", ""),
			FromNumber:  getEnv("SMS_FROM_NUMBER", ""),
			ProductName: getEnv("SMS_PRODUCT_NAME", "PhoneGate"),
			SendTimeout: getEnvAsDuration("SMS_SEND_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
			Expiry:    getEnvAsDuration("JWT_EXPIRY", 15*time.Minute),
		},
		OTP: OTPConfig{
			CodeLength:  getEnvAsInt("OTP_CODE_LENGTH", 4),
			Expiry:      getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
			MaxAttempts: getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
		},
		RateLimit: RateLimitConfig{
			PhoneMax:     getEnvAsInt("RATELIMIT_PHONE_MAX", 3),
			IPMax:        getEnvAsInt("RATELIMIT_IP_MAX", 10),
			GlobalMax:    getEnvAsInt("RATELIMIT_GLOBAL_MAX", 100),
			Window:       getEnvAsDuration("RATELIMIT_WINDOW", time.Hour),
			FanoutMax:    getEnvAsInt("RATELIMIT_FANOUT_MAX", 5),
			FanoutWindow: getEnvAsDuration("RATELIMIT_FANOUT_WINDOW", 10*time.Minute),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(cfg.JWT.SecretKey) < 32 {
		return nil, fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	if cfg.OTP.CodeLength < 4 || cfg.OTP.CodeLength > 6 {
		return nil, fmt.Errorf("OTP_CODE_LENGTH must be between 4 and 6")
	}

	switch cfg.Store.RecordBackend {
	case "memory", "dynamo":
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be \"memory\" or \"dynamo\", got %q", cfg.Store.RecordBackend)
	}

	switch cfg.Store.CounterBackend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("RATELIMIT_BACKEND must be \"memory\" or \"redis\", got %q", cfg.Store.CounterBackend)
	}

	if (cfg.SMS.AccountSID == "") != (cfg.SMS.AuthToken == "") {
		return nil, fmt.Errorf("SMS_ACCOUNT_SID and SMS_AUTH_TOKEN must be set together")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
