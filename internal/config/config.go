package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	SigningKeyBackendPostgres = "postgres"
	SigningKeyBackendBolt     = "bolt"
)

type Config struct {
	AppEnv                  string
	ServiceName             string
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	DatabaseURL             string
	DBMaxConns              int32
	DBMinConns              int32
	DocstorePath            string
	SigningKeyBackend       string
	JWTSecret               string
	SessionTTL              time.Duration
	SignatureMaxSkew        time.Duration
	SignatureMaxBody        int64
	PasswordResetTTL        time.Duration
	CORSOrigins             []string
	RateLimitRPM            int
	AuthRateLimitRPM        int
	RateLimitBucketsFile    string
	RateLimitBuckets        []BucketConfig
	LogLevel                string
	LogFile                 string
}

// BucketConfig is one named fixed-window rate-limit bucket.
type BucketConfig struct {
	Name   string        `yaml:"name"`
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

func DefaultBuckets() []BucketConfig {
	return []BucketConfig{
		{Name: "login", Limit: 5, Window: 15 * time.Minute},
		{Name: "register", Limit: 3, Window: time.Hour},
		{Name: "resetPassword", Limit: 3, Window: time.Hour},
		{Name: "public", Limit: 60, Window: time.Minute},
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:                  strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		ServiceName:             getEnv("SERVICE_NAME", "go-marketplace"),
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:              int32(getInt("DB_MIN_CONNS", 1)),
		DocstorePath:            getEnv("DOCSTORE_PATH", "./state/catalog.db"),
		SigningKeyBackend:       strings.ToLower(getEnv("SIGNING_KEY_BACKEND", SigningKeyBackendPostgres)),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		SessionTTL:              getDuration("SESSION_TTL", time.Hour),
		SignatureMaxSkew:        getDuration("SIGNATURE_MAX_SKEW", 5*time.Minute),
		SignatureMaxBody:        getInt64("SIGNATURE_MAX_BODY", 1<<20),
		PasswordResetTTL:        getDuration("PASSWORD_RESET_TTL", 30*time.Minute),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM:        getInt("AUTH_RATE_LIMIT_RPM", 30),
		RateLimitBucketsFile:    strings.TrimSpace(os.Getenv("RATE_LIMIT_BUCKETS_FILE")),
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:                 strings.TrimSpace(os.Getenv("LOG_FILE")),
	}

	buckets, err := LoadBuckets(cfg.RateLimitBucketsFile)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitBuckets = buckets

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if strings.TrimSpace(c.DocstorePath) == "" {
		return fmt.Errorf("DOCSTORE_PATH cannot be empty")
	}

	if c.SigningKeyBackend != SigningKeyBackendPostgres && c.SigningKeyBackend != SigningKeyBackendBolt {
		return fmt.Errorf("SIGNING_KEY_BACKEND must be %q or %q", SigningKeyBackendPostgres, SigningKeyBackendBolt)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	if c.SignatureMaxSkew <= 0 {
		return fmt.Errorf("SIGNATURE_MAX_SKEW must be positive")
	}

	if c.SignatureMaxBody <= 0 {
		return fmt.Errorf("SIGNATURE_MAX_BODY must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS are inconsistent")
	}

	for _, bucket := range c.RateLimitBuckets {
		if bucket.Limit <= 0 || bucket.Window <= 0 {
			return fmt.Errorf("rate limit bucket %q needs a positive limit and window", bucket.Name)
		}
	}

	return nil
}

// LoadBuckets merges the YAML bucket file, if any, over DefaultBuckets.
func LoadBuckets(path string) ([]BucketConfig, error) {
	buckets := DefaultBuckets()
	if path == "" {
		return buckets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limit buckets file: %w", err)
	}

	var file struct {
		Buckets []BucketConfig `yaml:"buckets"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode rate limit buckets file: %w", err)
	}

	index := make(map[string]int, len(buckets))
	for i, bucket := range buckets {
		index[bucket.Name] = i
	}
	for _, bucket := range file.Buckets {
		bucket.Name = strings.TrimSpace(bucket.Name)
		if bucket.Name == "" {
			return nil, fmt.Errorf("rate limit bucket without a name")
		}
		if i, ok := index[bucket.Name]; ok {
			buckets[i] = bucket
			continue
		}
		index[bucket.Name] = len(buckets)
		buckets = append(buckets, bucket)
	}

	return buckets, nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
