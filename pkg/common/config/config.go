package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// ODK Central
	ODKBaseURL        string
	ODKEmail          string
	ODKPassword       string
	ODKProjectID      string
	ODKFormID         string
	ODKRequestTimeout time.Duration

	// Import pipeline
	TargetRegistry    string // individual | group
	MappingExpression string // jq program applied to each raw submission
	BackendID         int64  // storage backend tag stamped on supporting documents
	LookupCatalogPath string

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers     []string
	ImportEventTopic string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		ODKBaseURL:        getEnv("ODK_BASE_URL", "http://localhost:8383"),
		ODKEmail:          getEnv("ODK_EMAIL", ""),
		ODKPassword:       getEnv("ODK_PASSWORD", ""),
		ODKProjectID:      getEnv("ODK_PROJECT_ID", "1"),
		ODKFormID:         getEnv("ODK_FORM_ID", ""),
		ODKRequestTimeout: getDuration("ODK_REQUEST_TIMEOUT", 10*time.Second),

		TargetRegistry:    getEnv("TARGET_REGISTRY", "individual"),
		MappingExpression: getEnv("MAPPING_EXPRESSION", "."),
		BackendID:         int64(getIntEnv("DOCUMENT_BACKEND_ID", 0)),
		LookupCatalogPath: getEnv("LOOKUP_CATALOG_PATH", ""),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "civicbridge"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "civicbridge123"),
		PostgresDB:       getEnv("POSTGRES_DB", "civicbridge"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:     getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		ImportEventTopic: getEnv("IMPORT_EVENT_TOPIC", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
