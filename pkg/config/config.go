package config

import (
	"errors"
	"fmt"
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

	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	IdP      IdPConfig
	Files    FilesConfig
	Reports  ReportsConfig
	CORS     CORSConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	// OperationTimeout bounds every transaction opened by the engine.
	OperationTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig toggles the Redis-backed catalog cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// IdPConfig describes the identity provider that signs inbound bearer tokens.
type IdPConfig struct {
	BaseURL   string
	Realm     string
	JWKSURL   string
	Audiences []string
	Issuers   []string
	Timeout   time.Duration
	// RefetchInterval is the minimum spacing between JWKS refetches triggered by unknown key ids.
	RefetchInterval time.Duration
}

// FilesConfig controls evidence file storage and validation.
type FilesConfig struct {
	StorageDir      string
	MaxUploadBytes  int64
	AllowedMIMEs    []string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// ReportsConfig configures asynchronous report generation.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	WorkerConcurrency int
	WorkerRetries     int
	JobTimeout        time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
	// File enables a rotating file sink in addition to stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
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

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const devSignedURLSecret = "dev_files_secret"

// Validate rejects settings that are only acceptable outside production.
func (c *Config) Validate() error {
	if c.Env != EnvProduction {
		return nil
	}
	var problems []string
	if c.Files.SignedURLSecret == devSignedURLSecret || len(c.Files.SignedURLSecret) < 32 {
		problems = append(problems, "FILES_SIGNED_URL_SECRET must be a random value of at least 32 bytes")
	}
	if c.IdP.JWKSURL == "" {
		problems = append(problems, "IDP_JWKS_URL or IDP_BASE_URL must be set")
	}
	if len(c.IdP.Audiences) == 0 {
		problems = append(problems, "IDP_AUDIENCES must not be empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid production config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:             v.GetString("DB_HOST"),
		Port:             v.GetInt("DB_PORT"),
		User:             v.GetString("DB_USER"),
		Password:         v.GetString("DB_PASSWORD"),
		Name:             v.GetString("DB_NAME"),
		SSLMode:          v.GetString("DB_SSL_MODE"),
		URL:              v.GetString("DB_URL"),
		MaxOpenConns:     v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:     v.GetInt("DB_MAX_IDLE_CONNS"),
		OperationTimeout: parseDuration(v.GetString("DB_OPERATION_TIMEOUT"), 10*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
		Prefix:  v.GetString("CACHE_PREFIX"),
	}

	cfg.IdP = IdPConfig{
		BaseURL:         strings.TrimRight(v.GetString("IDP_BASE_URL"), "/"),
		Realm:           v.GetString("IDP_REALM"),
		JWKSURL:         v.GetString("IDP_JWKS_URL"),
		Audiences:       splitAndTrim(v.GetString("IDP_AUDIENCES")),
		Issuers:         splitAndTrim(v.GetString("IDP_ISSUERS")),
		Timeout:         parseDuration(v.GetString("IDP_TIMEOUT"), 30*time.Second),
		RefetchInterval: parseDuration(v.GetString("IDP_REFETCH_INTERVAL"), 10*time.Second),
	}
	if cfg.IdP.JWKSURL == "" && cfg.IdP.BaseURL != "" {
		cfg.IdP.JWKSURL = fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.IdP.BaseURL, cfg.IdP.Realm)
	}
	if len(cfg.IdP.Issuers) == 0 && cfg.IdP.BaseURL != "" {
		cfg.IdP.Issuers = defaultIssuers(cfg.IdP.BaseURL, cfg.IdP.Realm)
	}

	maxUpload := v.GetInt64("FILES_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 1 << 20
	}
	cfg.Files = FilesConfig{
		StorageDir:      v.GetString("FILES_STORAGE_DIR"),
		MaxUploadBytes:  maxUpload,
		AllowedMIMEs:    splitAndTrim(v.GetString("FILES_ALLOWED_MIME_TYPES")),
		SignedURLSecret: v.GetString("FILES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("FILES_SIGNED_URL_TTL"), 15*time.Minute),
	}

	cfg.Reports = ReportsConfig{
		Enabled:           v.GetBool("REPORTS_ENABLED"),
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
		JobTimeout:        parseDuration(v.GetString("REPORTS_JOB_TIMEOUT"), 2*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:      v.GetString("LOG_LEVEL"),
		Format:     v.GetString("LOG_FORMAT"),
		File:       v.GetString("LOG_FILE"),
		MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
		MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
		MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sustainability")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_URL", "")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_OPERATION_TIMEOUT", "10s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("CACHE_PREFIX", "sa:")

	v.SetDefault("IDP_BASE_URL", "http://localhost:8081")
	v.SetDefault("IDP_REALM", "sustainability")
	v.SetDefault("IDP_JWKS_URL", "")
	v.SetDefault("IDP_AUDIENCES", "account,sustainability-frontend")
	v.SetDefault("IDP_ISSUERS", "")
	v.SetDefault("IDP_TIMEOUT", "30s")
	v.SetDefault("IDP_REFETCH_INTERVAL", "10s")

	v.SetDefault("FILES_STORAGE_DIR", "./evidence")
	v.SetDefault("FILES_MAX_UPLOAD_BYTES", 1<<20)
	v.SetDefault("FILES_ALLOWED_MIME_TYPES", "")
	v.SetDefault("FILES_SIGNED_URL_SECRET", devSignedURLSecret)
	v.SetDefault("FILES_SIGNED_URL_TTL", "15m")

	v.SetDefault("REPORTS_ENABLED", true)
	v.SetDefault("REPORTS_STORAGE_DIR", "./reports")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)
	v.SetDefault("REPORTS_JOB_TIMEOUT", "2m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)
}

// defaultIssuers accepts the canonical HTTPS issuer plus its HTTP variant for misconfigured proxies.
func defaultIssuers(baseURL, realm string) []string {
	host := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	return []string{
		fmt.Sprintf("https://%s/realms/%s", host, realm),
		fmt.Sprintf("http://%s/realms/%s", host, realm),
	}
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
