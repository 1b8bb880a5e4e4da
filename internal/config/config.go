package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Telemetry TelemetryConfig
	Normalize NormalizeConfig
}

type APIConfig struct {
	Addr        string
	MetricsAddr string
	PresignTTL  time.Duration
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
	MaxRetry      int
	Timeout       time.Duration
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency    int
	MaxActiveJobs  int
	LocalOutputDir string
	OutputPrefix   string
	MetricsAddr    string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DatabaseConfig selects the job store. An empty DSN keeps jobs in memory.
type DatabaseConfig struct {
	DSN string
}

type RateLimitConfig struct {
	Capacity     int
	Window       time.Duration
	UserIDHeader string
}

func (r RateLimitConfig) Enabled() bool {
	return r.Capacity > 0 && r.Window > 0
}

type WebhookConfig struct {
	SigningSecret string
	MaxAttempts   int
	Timeout       time.Duration
}

type TelemetryConfig struct {
	TracesExporter string
	OTLPEndpoint   string
	OTLPInsecure   bool
}

// NormalizeConfig is the normalization configuration surface.
type NormalizeConfig struct {
	MaxWidth             int
	MaxHeight            int
	TileSize             int
	OutputType           string
	DevicePixelRatio     float64
	BackingStoreRatio    float64
	Interpolator         string
	MaxSurfacePixels     int
	TransformConcurrency int
	JPEGQuality          int
}

// PixelRatio is the device pixel ratio divided by the backing store ratio.
func (n NormalizeConfig) PixelRatio() float64 {
	if n.DevicePixelRatio <= 0 || n.BackingStoreRatio <= 0 {
		return 1
	}
	return n.DevicePixelRatio / n.BackingStoreRatio
}

func (n NormalizeConfig) Validate() error {
	if n.MaxWidth <= 0 || n.MaxHeight <= 0 {
		return fmt.Errorf("normalize max size must be positive, got %dx%d", n.MaxWidth, n.MaxHeight)
	}
	if n.TileSize <= 0 {
		return fmt.Errorf("normalize tile size must be positive, got %d", n.TileSize)
	}
	if n.JPEGQuality < 1 || n.JPEGQuality > 100 {
		return fmt.Errorf("normalize jpeg quality must be within 1..100, got %d", n.JPEGQuality)
	}
	return nil
}

func Load() Config {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	return Config{
		API: APIConfig{
			Addr:        env("PIXELFIX_API_ADDR", ":8080"),
			MetricsAddr: env("PIXELFIX_METRICS_ADDR", ""),
			PresignTTL:  envDuration("PIXELFIX_PRESIGN_TTL", 15*time.Minute),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
			MaxRetry:      envInt("ASYNC_MAX_RETRY", 5),
			Timeout:       envDuration("ASYNC_TASK_TIMEOUT", 3*time.Minute),
		},
		Worker: WorkerConfig{
			Concurrency:    envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveJobs:  envInt("WORKER_MAX_ACTIVE_JOBS", defaultWorkerSlots),
			LocalOutputDir: env("WORKER_LOCAL_OUTPUT_DIR", "./.pixelfix-output"),
			OutputPrefix:   env("WORKER_OUTPUT_PREFIX", "outputs"),
			MetricsAddr:    env("WORKER_METRICS_ADDR", ":9091"),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "pixelfix-jobs"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		RateLimit: RateLimitConfig{
			Capacity:     envInt("RATE_LIMIT_CAPACITY", 60),
			Window:       envDuration("RATE_LIMIT_WINDOW", time.Minute),
			UserIDHeader: env("RATE_LIMIT_USER_HEADER", "X-User-ID"),
		},
		Webhook: WebhookConfig{
			SigningSecret: env("WEBHOOK_SIGNING_SECRET", ""),
			MaxAttempts:   envInt("WEBHOOK_MAX_ATTEMPTS", 3),
			Timeout:       envDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Telemetry: TelemetryConfig{
			TracesExporter: env("OTEL_TRACES_EXPORTER", "none"),
			OTLPEndpoint:   env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure:   envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		Normalize: NormalizeConfig{
			MaxWidth:             envInt("NORMALIZE_MAX_WIDTH", 2048),
			MaxHeight:            envInt("NORMALIZE_MAX_HEIGHT", 2048),
			TileSize:             envInt("NORMALIZE_TILE_SIZE", 1024),
			OutputType:           strings.ToLower(env("NORMALIZE_OUTPUT_TYPE", "")),
			DevicePixelRatio:     envFloat("NORMALIZE_DEVICE_PIXEL_RATIO", 2),
			BackingStoreRatio:    envFloat("NORMALIZE_BACKING_STORE_RATIO", 1),
			Interpolator:         env("NORMALIZE_INTERPOLATOR", "bilinear"),
			MaxSurfacePixels:     envInt("NORMALIZE_MAX_SURFACE_PIXELS", 64*1024*1024),
			TransformConcurrency: envInt("NORMALIZE_TRANSFORM_CONCURRENCY", 4),
			JPEGQuality:          envInt("NORMALIZE_JPEG_QUALITY", 85),
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

func envFloat(key string, fallback float64) float64 {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
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
