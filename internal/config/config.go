package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"chunkdrive/internal/transport"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr          = ":8080"
	defaultDatabaseURL       = "chunkdrive.db"
	defaultJWTSecret         = "change-me-jwt-secret"
	defaultJWTTTL            = "24h"
	defaultBackend           = transport.BackendDiscord
	defaultMaxChunkBytes     = "10485760"
	defaultTransportTimeout  = "60s"
	defaultLocationCacheSize = "4096"
	defaultLocationCacheTTL  = "20m"
	defaultMaxTotalChunks    = "10000"
	defaultShutdownTimeout   = "15s"
)

type Config struct {
	AppEnv             string
	HTTPAddr           string
	DatabaseURL        string
	JWTSecret          string
	JWTTTL             time.Duration
	SingleTenant       bool
	CORSAllowedOrigins string
	LogLevel           string
	LogFormat          string
	MaxTotalChunks     int
	ShutdownTimeout    time.Duration
	Transport          transport.Config
}

// LoadDotEnv pre-loads a .env file when one exists. Variables already set in
// the environment win.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", slog.String("error", err.Error()))
	}
}

func Load() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.SingleTenant = parseBoolEnv("SINGLE_TENANT", "false")
	cfg.CORSAllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", "")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "json")

	var err error
	if cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", defaultJWTTTL); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = parseDurationEnv("SHUTDOWN_TIMEOUT", defaultShutdownTimeout); err != nil {
		return nil, err
	}
	if cfg.MaxTotalChunks, err = parseIntEnv("MAX_TOTAL_CHUNKS", defaultMaxTotalChunks); err != nil {
		return nil, err
	}

	t := transport.Config{
		Backend:          strings.ToLower(strings.TrimSpace(getEnv("TRANSPORT_BACKEND", defaultBackend))),
		DiscordToken:     strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		DiscordChannelID: strings.TrimSpace(os.Getenv("DISCORD_CHANNEL_ID")),
		BucketURL:        strings.TrimSpace(os.Getenv("BUCKET_URL")),
	}
	maxChunk, err := parseIntEnv("MAX_CHUNK_BYTES", defaultMaxChunkBytes)
	if err != nil {
		return nil, err
	}
	t.MaxChunkBytes = int64(maxChunk)
	if t.CallTimeout, err = parseDurationEnv("TRANSPORT_TIMEOUT", defaultTransportTimeout); err != nil {
		return nil, err
	}
	if t.LocationCacheSize, err = parseIntEnv("LOCATION_CACHE_SIZE", defaultLocationCacheSize); err != nil {
		return nil, err
	}
	if t.LocationCacheTTL, err = parseDurationEnv("LOCATION_CACHE_TTL", defaultLocationCacheTTL); err != nil {
		return nil, err
	}
	cfg.Transport = t

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	if cfg.MaxTotalChunks <= 0 {
		return fmt.Errorf("MAX_TOTAL_CHUNKS must be > 0")
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be > 0")
	}

	t := cfg.Transport
	if t.MaxChunkBytes <= 0 {
		return fmt.Errorf("MAX_CHUNK_BYTES must be > 0")
	}
	if t.CallTimeout <= 0 {
		return fmt.Errorf("TRANSPORT_TIMEOUT must be > 0")
	}
	switch t.Backend {
	case transport.BackendDiscord:
		if t.DiscordToken == "" || t.DiscordChannelID == "" {
			return fmt.Errorf("DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID are required for the discord backend")
		}
	case transport.BackendBucket:
		if t.BucketURL == "" {
			return fmt.Errorf("BUCKET_URL is required for the bucket backend")
		}
	default:
		return fmt.Errorf("TRANSPORT_BACKEND must be one of: discord, bucket")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if cfg.SingleTenant {
			return fmt.Errorf("in prod/release SINGLE_TENANT must be false")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
