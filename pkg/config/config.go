package config

import (
	"errors"
	"os"
	"strconv"
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
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Roster   RosterConfig
	Batch    BatchConfig
	Exports  ExportsConfig
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
	// ConnMaxLifetime of zero keeps connections until closed.
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig toggles redis caching of stored plans.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RosterConfig carries the scheduling engine constants.
type RosterConfig struct {
	DayShiftHours     float64
	NightShiftHours   float64
	QuotaTolerance    int
	SpreadCapFraction float64
	MaxRepairPasses   int
	ProposalTTL       time.Duration
}

// BatchConfig sizes the background generation worker pool.
type BatchConfig struct {
	Workers    int
	Retries    int
	BufferSize int
	StatusTTL  time.Duration
}

// ExportsConfig controls where batch exports are written and how long their
// download links stay valid.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
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

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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

		ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		ConnectTimeout:  v.GetDuration("DB_CONNECT_TIMEOUT"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("ROSTER_CACHE_TTL"), 10*time.Minute),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	rawTolerance := v.GetString("ROSTER_QUOTA_TOLERANCE")
	if rawTolerance == "" {
		rawTolerance = v.GetString("SHIFT_QUOTA_TOLERANCE")
	}
	cfg.Roster = RosterConfig{
		DayShiftHours:     positiveFloat(v.GetFloat64("ROSTER_DAY_SHIFT_HOURS"), 8),
		NightShiftHours:   positiveFloat(v.GetFloat64("ROSTER_NIGHT_SHIFT_HOURS"), 10),
		QuotaTolerance:    parseTolerance(rawTolerance, 1),
		SpreadCapFraction: positiveFloat(v.GetFloat64("ROSTER_SPREAD_CAP_FRACTION"), 0.5),
		MaxRepairPasses:   positiveInt(v.GetInt("ROSTER_MAX_REPAIR_PASSES"), 5),
		ProposalTTL:       parseDuration(v.GetString("ROSTER_PROPOSAL_TTL"), 30*time.Minute),
	}

	cfg.Batch = BatchConfig{
		Workers:    positiveInt(v.GetInt("ROSTER_BATCH_WORKERS"), 2),
		Retries:    positiveInt(v.GetInt("ROSTER_BATCH_RETRIES"), 1),
		BufferSize: positiveInt(v.GetInt("ROSTER_BATCH_BUFFER"), 32),
		StatusTTL:  parseDuration(v.GetString("ROSTER_BATCH_STATUS_TTL"), 24*time.Hour),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("ROSTER_EXPORT_DIR"),
		SignedURLSecret: v.GetString("ROSTER_EXPORT_SIGNING_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("ROSTER_EXPORT_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("ROSTER_EXPORT_CLEANUP_INTERVAL"), time.Hour),
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
	v.SetDefault("DB_NAME", "care_roster")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONNECT_TIMEOUT", "5s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("ROSTER_CACHE_TTL", "10m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ROSTER_DAY_SHIFT_HOURS", 8)
	v.SetDefault("ROSTER_NIGHT_SHIFT_HOURS", 10)
	v.SetDefault("ROSTER_SPREAD_CAP_FRACTION", 0.5)
	v.SetDefault("ROSTER_MAX_REPAIR_PASSES", 5)
	v.SetDefault("ROSTER_PROPOSAL_TTL", "30m")

	v.SetDefault("ROSTER_BATCH_WORKERS", 2)
	v.SetDefault("ROSTER_BATCH_RETRIES", 1)
	v.SetDefault("ROSTER_BATCH_BUFFER", 32)
	v.SetDefault("ROSTER_BATCH_STATUS_TTL", "24h")

	v.SetDefault("ROSTER_EXPORT_DIR", "./exports")
	v.SetDefault("ROSTER_EXPORT_SIGNING_SECRET", "dev_exports_secret")
	v.SetDefault("ROSTER_EXPORT_URL_TTL", "24h")
	v.SetDefault("ROSTER_EXPORT_CLEANUP_INTERVAL", "1h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

func positiveInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func parseTolerance(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func positiveFloat(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
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
