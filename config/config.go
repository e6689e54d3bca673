package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Log      LogConfig
	Storage  StorageConfig
	Presence PresenceConfig
	Matching MatchingConfig

	// EnvFileLoaded is false when no .env file was read.
	EnvFileLoaded bool
}

type ServerConfig struct {
	Port            string
	Env             string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	UploadDir     string
	MaxImageBytes int64
}

type PresenceConfig struct {
	TTL           time.Duration
	SweepSchedule string
}

type MatchingConfig struct {
	SuggestionLimit int
	StatsSchedule   string
	WeightsFile     string
}

const devJWTSecret = "dev_secret_change_me"

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	envErr := godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             getEnv("GO_ENV", "development"),
			CORSOrigins:     getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", "10s"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "startuphub"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvAsDuration("JWT_TTL", "24h"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			UploadDir:     getEnv("UPLOAD_DIR", "./uploads/founders"),
			MaxImageBytes: getEnvAsInt64("MAX_IMAGE_BYTES", 3<<20),
		},
		Presence: PresenceConfig{
			TTL:           getEnvAsDuration("PRESENCE_TTL", "90s"),
			SweepSchedule: getEnv("PRESENCE_SWEEP", "@every 1m"),
		},
		Matching: MatchingConfig{
			SuggestionLimit: getEnvAsInt("SUGGESTION_LIMIT", 20),
			StatsSchedule:   getEnv("STATS_SCHEDULE", "5 0 * * *"),
			WeightsFile:     getEnv("MATCHING_WEIGHTS_FILE", ""),
		},
		EnvFileLoaded: envErr == nil,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		} else {
			c.Auth.JWTSecret = devJWTSecret
		}
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("JWT_TTL must be positive, got %s", c.Auth.TokenTTL))
	}
	if c.Storage.MaxImageBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_IMAGE_BYTES must be positive, got %d", c.Storage.MaxImageBytes))
	}
	if c.Presence.TTL <= 0 {
		errs = append(errs, fmt.Errorf("PRESENCE_TTL must be positive, got %s", c.Presence.TTL))
	}
	if c.Matching.SuggestionLimit <= 0 {
		errs = append(errs, fmt.Errorf("SUGGESTION_LIMIT must be positive, got %d", c.Matching.SuggestionLimit))
	}

	return errors.Join(errs...)
}

// GetDatabaseDSN prefers DATABASE_URL and falls back to the DB_* parts.
func (c *Config) GetDatabaseDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaultValue)
	return d
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
