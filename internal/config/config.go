package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	Fetch    FetchConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Trace    TraceConfig
}

type ServerConfig struct {
	Addr              string
	RateLimitCapacity int
	RateLimitWindow   time.Duration
	MaxUploadBytes    int64
}

type PipelineConfig struct {
	IdentifierColumn   string
	LinkColumn         string
	ConvertWebP        bool
	HandleTransparency bool
	Overwrite          bool
	Delay              time.Duration
	DefaultExtension   string
}

type FetchConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	DSN string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type TraceConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Addr:              env("COVERDL_ADDR", ":8080"),
			RateLimitCapacity: envInt("COVERDL_RATE_LIMIT_CAPACITY", 10),
			RateLimitWindow:   envDuration("COVERDL_RATE_LIMIT_WINDOW", time.Minute),
			MaxUploadBytes:    int64(envInt("COVERDL_MAX_UPLOAD_BYTES", 32<<20)),
		},
		Pipeline: PipelineConfig{
			IdentifierColumn:   env("COVERDL_IDENTIFIER_COLUMN", "EAN"),
			LinkColumn:         env("COVERDL_LINK_COLUMN", "Link"),
			ConvertWebP:        envBool("COVERDL_CONVERT_WEBP", true),
			HandleTransparency: envBool("COVERDL_HANDLE_TRANSPARENCY", true),
			Overwrite:          envBool("COVERDL_OVERWRITE", false),
			Delay:              envDuration("COVERDL_DOWNLOAD_DELAY", 1500*time.Millisecond),
			DefaultExtension:   env("COVERDL_DEFAULT_EXTENSION", ".jpg"),
		},
		Fetch: FetchConfig{
			Timeout:    envDuration("COVERDL_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries: envInt("COVERDL_FETCH_RETRIES", 2),
			RetryDelay: envDuration("COVERDL_FETCH_RETRY_DELAY", 2*time.Second),
		},
		Redis: RedisConfig{
			Addr:     env("REDIS_ADDR", ""),
			Password: env("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", ""),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "coverdl-archives"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Trace: TraceConfig{
			Exporter:     env("COVERDL_TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("COVERDL_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("COVERDL_OTLP_INSECURE", false),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
