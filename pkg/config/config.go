package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
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
	Env         string
	Port        int
	APIPrefix   string
	AutoMigrate bool

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Rewards     RewardsConfig
	ClaimTokens ClaimTokenConfig
	Evidence    EvidenceConfig
	NATS        NATSConfig
	Cache       CacheConfig
	Admin       AdminConfig
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
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
	NonceTTL   time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RewardsConfig controls settlement policy and rate table refresh.
type RewardsConfig struct {
	RequesterShare  float64
	CollectorShare  float64
	VerifierShare   float64
	RefreshInterval time.Duration
}

// ClaimTokenConfig governs signed smart-bin claim tokens.
type ClaimTokenConfig struct {
	Secret string
	MaxAge time.Duration
}

// EvidenceConfig controls deposit evidence image storage.
type EvidenceConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// NATSConfig configures lifecycle event publishing.
type NATSConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
	Workers       int
	MaxRetries    int
}

// CacheConfig toggles Redis backed caches.
type CacheConfig struct {
	Enabled     bool
	VerifierTTL time.Duration
}

// AdminConfig lists wallet accounts with admin privileges.
type AdminConfig struct {
	Accounts []string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.AutoMigrate = v.GetBool("AUTO_MIGRATE")

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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
		NonceTTL:   parseDuration(v.GetString("AUTH_NONCE_TTL"), 5*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Rewards = RewardsConfig{
		RequesterShare:  v.GetFloat64("REWARD_SHARE_REQUESTER"),
		CollectorShare:  v.GetFloat64("REWARD_SHARE_COLLECTOR"),
		VerifierShare:   v.GetFloat64("REWARD_SHARE_VERIFIER"),
		RefreshInterval: parseDuration(v.GetString("RATE_REFRESH_INTERVAL"), time.Minute),
	}

	cfg.ClaimTokens = ClaimTokenConfig{
		Secret: v.GetString("CLAIM_TOKEN_SECRET"),
		MaxAge: parseDuration(v.GetString("CLAIM_TOKEN_MAX_AGE"), 24*time.Hour),
	}

	maxImageSize := v.GetInt64("EVIDENCE_MAX_FILE_SIZE")
	if maxImageSize <= 0 {
		maxImageSize = 5 * 1024 * 1024
	}
	cfg.Evidence = EvidenceConfig{
		StorageDir:       v.GetString("EVIDENCE_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("EVIDENCE_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("EVIDENCE_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxImageSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("EVIDENCE_ALLOWED_MIME_TYPES")),
	}

	cfg.NATS = NATSConfig{
		Enabled:       v.GetBool("ENABLE_NATS"),
		URL:           v.GetString("NATS_URL"),
		SubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		Workers:       v.GetInt("NATS_PUBLISH_WORKERS"),
		MaxRetries:    v.GetInt("NATS_PUBLISH_RETRIES"),
	}

	cfg.Cache = CacheConfig{
		Enabled:     v.GetBool("ENABLE_CACHE"),
		VerifierTTL: parseDuration(v.GetString("VERIFIER_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Admin = AdminConfig{Accounts: splitAndTrim(v.GetString("ADMIN_ACCOUNTS"))}

	return cfg, nil
}

// DSN renders a lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=sortify-api",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// URL renders a postgres:// URL, the form golang-migrate expects.
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// SplitSum reports the configured shares total.
func (c RewardsConfig) SplitSum() float64 {
	return c.RequesterShare + c.CollectorShare + c.VerifierShare
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("AUTO_MIGRATE", false)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sortify")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "sortify-api")
	v.SetDefault("AUTH_NONCE_TTL", "5m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REWARD_SHARE_REQUESTER", 0.7)
	v.SetDefault("REWARD_SHARE_COLLECTOR", 0.2)
	v.SetDefault("REWARD_SHARE_VERIFIER", 0.1)
	v.SetDefault("RATE_REFRESH_INTERVAL", "1m")

	v.SetDefault("CLAIM_TOKEN_SECRET", "dev_claim_secret")
	v.SetDefault("CLAIM_TOKEN_MAX_AGE", "24h")

	v.SetDefault("EVIDENCE_STORAGE_DIR", "./evidence")
	v.SetDefault("EVIDENCE_SIGNED_URL_SECRET", "dev_evidence_secret")
	v.SetDefault("EVIDENCE_SIGNED_URL_TTL", "30m")
	v.SetDefault("EVIDENCE_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("EVIDENCE_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp")

	v.SetDefault("ENABLE_NATS", false)
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("NATS_SUBJECT_PREFIX", "sortify")
	v.SetDefault("NATS_PUBLISH_WORKERS", 2)
	v.SetDefault("NATS_PUBLISH_RETRIES", 3)

	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("VERIFIER_CACHE_TTL", "5m")

	v.SetDefault("ADMIN_ACCOUNTS", "")
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

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
