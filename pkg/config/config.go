package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Workflow     WorkflowConfig
	Documents    DocumentsConfig
	Certificates CertificatesConfig
	Tracing      TracingConfig
	Seed         SeedConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// WorkflowConfig selects the approver strategies and validators wired into the engine.
type WorkflowConfig struct {
	ApproverStrategies  []string
	Validators          []string
	TemplateCacheTTL    time.Duration
	MaxDocumentSize     int64
	BusinessHoursStart  int
	BusinessHoursEnd    int
	BusinessTimezone    string
	PendingScanPageSize int
}

// DocumentsConfig controls document storage & upload limits.
type DocumentsConfig struct {
	StorageDir       string
	MaxFileSizeBytes int64
	SignedURLSecret  string
	SignedURLTTL     time.Duration
}

// CertificatesConfig toggles PDF approval certificates.
type CertificatesConfig struct {
	Enabled           bool
	WorkerConcurrency int
	WorkerRetries     int
}

// TracingConfig toggles the stdout span exporter.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Output      string
}

// SeedConfig points at an optional YAML bootstrap file.
type SeedConfig struct {
	File string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Workflow = WorkflowConfig{
		ApproverStrategies:  splitAndTrim(v.GetString("WORKFLOW_APPROVER_STRATEGIES")),
		Validators:          splitAndTrim(v.GetString("WORKFLOW_VALIDATORS")),
		TemplateCacheTTL:    parseDuration(v.GetString("WORKFLOW_TEMPLATE_CACHE_TTL"), 10*time.Minute),
		MaxDocumentSize:     v.GetInt64("WORKFLOW_MAX_DOCUMENT_SIZE"),
		BusinessHoursStart:  v.GetInt("WORKFLOW_BUSINESS_HOURS_START"),
		BusinessHoursEnd:    v.GetInt("WORKFLOW_BUSINESS_HOURS_END"),
		BusinessTimezone:    v.GetString("WORKFLOW_BUSINESS_TIMEZONE"),
		PendingScanPageSize: v.GetInt("WORKFLOW_PENDING_SCAN_PAGE_SIZE"),
	}

	maxUpload := v.GetInt64("DOCUMENTS_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 10 * 1024 * 1024
	}
	cfg.Documents = DocumentsConfig{
		StorageDir:       v.GetString("DOCUMENTS_STORAGE_DIR"),
		MaxFileSizeBytes: maxUpload,
		SignedURLSecret:  v.GetString("DOCUMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("DOCUMENTS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Certificates = CertificatesConfig{
		Enabled:           v.GetBool("ENABLE_CERTIFICATES"),
		WorkerConcurrency: v.GetInt("CERTIFICATES_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("CERTIFICATES_WORKER_RETRIES"),
	}

	cfg.Tracing = TracingConfig{
		Enabled:     v.GetBool("ENABLE_TRACING"),
		ServiceName: v.GetString("TRACING_SERVICE_NAME"),
		Output:      v.GetString("TRACING_OUTPUT"),
	}

	cfg.Seed = SeedConfig{File: v.GetString("SEED_FILE")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "docflow")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "docflow-api")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("WORKFLOW_APPROVER_STRATEGIES", "users,department,expression")
	v.SetDefault("WORKFLOW_VALIDATORS", "file_type,user_file_type_permission,approver_scope")
	v.SetDefault("WORKFLOW_TEMPLATE_CACHE_TTL", "10m")
	v.SetDefault("WORKFLOW_MAX_DOCUMENT_SIZE", 10*1024*1024)
	v.SetDefault("WORKFLOW_BUSINESS_HOURS_START", 8)
	v.SetDefault("WORKFLOW_BUSINESS_HOURS_END", 18)
	v.SetDefault("WORKFLOW_BUSINESS_TIMEZONE", "UTC")
	v.SetDefault("WORKFLOW_PENDING_SCAN_PAGE_SIZE", 500)

	v.SetDefault("DOCUMENTS_STORAGE_DIR", "./uploads")
	v.SetDefault("DOCUMENTS_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("DOCUMENTS_SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("DOCUMENTS_SIGNED_URL_TTL", "30m")

	v.SetDefault("ENABLE_CERTIFICATES", false)
	v.SetDefault("CERTIFICATES_WORKER_CONCURRENCY", 1)
	v.SetDefault("CERTIFICATES_WORKER_RETRIES", 3)

	v.SetDefault("ENABLE_TRACING", false)
	v.SetDefault("TRACING_SERVICE_NAME", "docflow-api")
	v.SetDefault("TRACING_OUTPUT", "")

	v.SetDefault("SEED_FILE", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
