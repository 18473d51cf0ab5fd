// Package config handles loading and validation of application configuration
// from environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/stocklens/stocklens-backend/logger"
)

// Environment represents the application's running environment (development or production).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment    Environment `mapstructure:"ENVIRONMENT"`
	Port           string      `mapstructure:"PORT"`
	AllowedOrigins []string    `mapstructure:"ALLOWED_ORIGINS"`
	Version        string      `mapstructure:"VERSION"`
}

// DatabaseConfig holds PostgreSQL database connection details.
type DatabaseConfig struct {
	Host         string `mapstructure:"HOST"`
	Port         int    `mapstructure:"PORT"`
	User         string `mapstructure:"USER"`
	Password     string `mapstructure:"PASSWORD"`
	Name         string `mapstructure:"NAME"`
	SSLMode      string `mapstructure:"SSL_MODE"`
	MaxOpenConns int    `mapstructure:"MAX_OPEN_CONNS"`
	MaxIdleConns int    `mapstructure:"MAX_IDLE_CONNS"`
}

// URL returns a postgres:// connection URL suitable for golang-migrate and
// other URL-based database tools.
func (c *DatabaseConfig) URL() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		sslmode,
	)
}

// ConnString returns a key-value pgx connection string.
func (c *DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig holds Redis connection details.
type RedisConfig struct {
	Address      string `mapstructure:"ADDRESS"`
	Password     string `mapstructure:"PASSWORD"`
	DB           int    `mapstructure:"DB"`
	UseTLS       bool   `mapstructure:"USE_TLS"`
	PoolSize     int    `mapstructure:"POOL_SIZE"`
	MinIdleConns int    `mapstructure:"MIN_IDLE_CONNS"`
}

// AIConfig holds configuration for the Gemini-backed adapters.
type AIConfig struct {
	GeminiAPIKey string `mapstructure:"GEMINI_API_KEY"`
	// VisionModel reads receipt images and extracts line items.
	VisionModel string `mapstructure:"VISION_MODEL"`
	// EmbeddingModel produces vectors for product matching.
	EmbeddingModel string `mapstructure:"EMBEDDING_MODEL"`
	// ValidationModel resolves quantity/unit phrasing.
	ValidationModel string `mapstructure:"VALIDATION_MODEL"`
	// EmbeddingDimension must match the vector column on the products table.
	// A mismatch is a configuration error and fails every task until fixed.
	EmbeddingDimension int `mapstructure:"EMBEDDING_DIMENSION"`
	// CacheTTLHours is how long computed embeddings stay in the cache.
	CacheTTLHours int `mapstructure:"CACHE_TTL_HOURS"`
	TimeoutSecs   int `mapstructure:"TIMEOUT_SECONDS"`
}

// MatchConfig holds tunables for the product matcher.
type MatchConfig struct {
	// SimilarityFloor is the minimum similarity for a match to carry a
	// product id. Matches below the floor are surfaced with an empty
	// product id instead of being dropped. Default 0: even weak matches
	// flow downstream with their score so the validator and the reviewing
	// user can judge them.
	SimilarityFloor float64 `mapstructure:"SIMILARITY_FLOOR"`
}

// StorageConfig selects where uploaded receipt images are read from.
type StorageConfig struct {
	// Backend is "local" or "s3".
	Backend  string `mapstructure:"BACKEND"`
	LocalDir string `mapstructure:"LOCAL_DIR"`
	S3Bucket string `mapstructure:"S3_BUCKET"`
	S3Region string `mapstructure:"S3_REGION"`
	// S3Endpoint overrides the AWS endpoint for S3-compatible stores
	// (Cloudflare R2, MinIO). Empty means plain AWS.
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
	// MaxUploadBytes caps accepted receipt images.
	MaxUploadBytes int64 `mapstructure:"MAX_UPLOAD_BYTES"`
}

// WorkerPoolConfig holds configuration for the receipt processing worker pool.
type WorkerPoolConfig struct {
	MaxWorkers             int `mapstructure:"MAX_WORKERS"`
	QueueSize              int `mapstructure:"QUEUE_SIZE"`
	JobTimeoutSeconds      int `mapstructure:"JOB_TIMEOUT_SECONDS"`
	ShutdownTimeoutSeconds int `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS"`
}

// Config aggregates all application configuration sections.
type Config struct {
	Server     ServerConfig     `mapstructure:"SERVER"`
	Database   DatabaseConfig   `mapstructure:"DATABASE"`
	Redis      RedisConfig      `mapstructure:"REDIS"`
	AI         AIConfig         `mapstructure:"AI"`
	Match      MatchConfig      `mapstructure:"MATCH"`
	Storage    StorageConfig    `mapstructure:"STORAGE"`
	WorkerPool WorkerPoolConfig `mapstructure:"WORKER_POOL"`
}

// IsDevelopment returns true if the application is running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if the application is running in production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables using Viper,
// sets default values, unmarshals the configuration, and validates it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.NAME", "stocklens_dev")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.MAX_OPEN_CONNS", 5)
	v.SetDefault("DATABASE.MAX_IDLE_CONNS", 2)
	v.SetDefault("REDIS.ADDRESS", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.POOL_SIZE", 3)
	v.SetDefault("REDIS.MIN_IDLE_CONNS", 1)
	v.SetDefault("AI.VISION_MODEL", "gemini-2.5-flash")
	v.SetDefault("AI.EMBEDDING_MODEL", "gemini-embedding-001")
	v.SetDefault("AI.VALIDATION_MODEL", "gemini-2.5-flash")
	v.SetDefault("AI.EMBEDDING_DIMENSION", 1536)
	v.SetDefault("AI.CACHE_TTL_HOURS", 168) // 7 days
	v.SetDefault("AI.TIMEOUT_SECONDS", 30)
	v.SetDefault("MATCH.SIMILARITY_FLOOR", 0.0)
	v.SetDefault("STORAGE.BACKEND", "local")
	v.SetDefault("STORAGE.LOCAL_DIR", "./uploads")
	v.SetDefault("STORAGE.MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("WORKER_POOL.MAX_WORKERS", 4)
	v.SetDefault("WORKER_POOL.QUEUE_SIZE", 100)
	v.SetDefault("WORKER_POOL.JOB_TIMEOUT_SECONDS", 180)
	v.SetDefault("WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", 30)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envBindings := [][2]string{
		{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
		{"SERVER.PORT", "PORT"},
		{"SERVER.ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
		{"DATABASE.HOST", "DB_HOST"},
		{"DATABASE.PORT", "DB_PORT"},
		{"DATABASE.USER", "DB_USER"},
		{"DATABASE.PASSWORD", "DB_PASSWORD"},
		{"DATABASE.NAME", "DB_NAME"},
		{"DATABASE.SSL_MODE", "DB_SSL_MODE"},
		{"REDIS.ADDRESS", "REDIS_ADDRESS"},
		{"REDIS.PASSWORD", "REDIS_PASSWORD"},
		{"REDIS.DB", "REDIS_DB"},
		{"REDIS.USE_TLS", "REDIS_USE_TLS"},
		{"AI.GEMINI_API_KEY", "GEMINI_API_KEY"},
		{"AI.VISION_MODEL", "AI_VISION_MODEL"},
		{"AI.EMBEDDING_MODEL", "AI_EMBEDDING_MODEL"},
		{"AI.VALIDATION_MODEL", "AI_VALIDATION_MODEL"},
		{"AI.EMBEDDING_DIMENSION", "AI_EMBEDDING_DIMENSION"},
		{"AI.CACHE_TTL_HOURS", "AI_CACHE_TTL_HOURS"},
		{"AI.TIMEOUT_SECONDS", "AI_TIMEOUT_SECONDS"},
		{"MATCH.SIMILARITY_FLOOR", "MATCH_SIMILARITY_FLOOR"},
		{"STORAGE.BACKEND", "STORAGE_BACKEND"},
		{"STORAGE.LOCAL_DIR", "STORAGE_LOCAL_DIR"},
		{"STORAGE.S3_BUCKET", "STORAGE_S3_BUCKET"},
		{"STORAGE.S3_REGION", "STORAGE_S3_REGION"},
		{"STORAGE.S3_ENDPOINT", "STORAGE_S3_ENDPOINT"},
		{"STORAGE.S3_ACCESS_KEY", "STORAGE_S3_ACCESS_KEY"},
		{"STORAGE.S3_SECRET_KEY", "STORAGE_S3_SECRET_KEY"},
		{"STORAGE.MAX_UPLOAD_BYTES", "STORAGE_MAX_UPLOAD_BYTES"},
		{"WORKER_POOL.MAX_WORKERS", "WORKER_POOL_MAX_WORKERS"},
		{"WORKER_POOL.QUEUE_SIZE", "WORKER_POOL_QUEUE_SIZE"},
		{"WORKER_POOL.JOB_TIMEOUT_SECONDS", "WORKER_POOL_JOB_TIMEOUT_SECONDS"},
		{"WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", "WORKER_POOL_SHUTDOWN_TIMEOUT_SECONDS"},
	}

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Infow("Configuration loaded",
		"environment", cfg.Server.Environment,
		"server_port", cfg.Server.Port,
		"db_host", cfg.Database.Host,
		"embedding_model", cfg.AI.EmbeddingModel,
		"embedding_dimension", cfg.AI.EmbeddingDimension,
		"similarity_floor", cfg.Match.SimilarityFloor,
		"storage_backend", cfg.Storage.Backend,
		"gemini_api_key", logger.MaskAPIKey(cfg.AI.GeminiAPIKey),
	)
	return &cfg, nil
}

// validateConfig checks if the loaded configuration values are valid.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if cfg.Database.Host == "" || cfg.Database.Name == "" {
		return fmt.Errorf("database host and name are required")
	}
	if cfg.AI.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", cfg.AI.EmbeddingDimension)
	}
	if cfg.Match.SimilarityFloor < 0 || cfg.Match.SimilarityFloor > 1 {
		return fmt.Errorf("similarity floor must be within [0,1], got %f", cfg.Match.SimilarityFloor)
	}
	if cfg.AI.CacheTTLHours <= 0 {
		return fmt.Errorf("embedding cache TTL must be positive, got %d", cfg.AI.CacheTTLHours)
	}
	switch cfg.Storage.Backend {
	case "local":
		if cfg.Storage.LocalDir == "" {
			return fmt.Errorf("local storage requires STORAGE_LOCAL_DIR")
		}
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			return fmt.Errorf("s3 storage requires STORAGE_S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.WorkerPool.MaxWorkers <= 0 {
		return fmt.Errorf("worker pool requires at least one worker")
	}
	if cfg.IsProduction() && cfg.AI.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required in production")
	}
	return nil
}
