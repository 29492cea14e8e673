package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	BackendDiscord = "discord"
	BackendBucket  = "bucket"
)

// Config selects and configures the process-wide transport.
type Config struct {
	Backend           string
	DiscordToken      string
	DiscordChannelID  string
	BucketURL         string
	MaxChunkBytes     int64
	CallTimeout       time.Duration
	LocationCacheSize int
	LocationCacheTTL  time.Duration
}

// Open establishes the long-lived transport session. The caller owns the
// returned Transport and must Close it on shutdown.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Transport, error) {
	var (
		t   Transport
		err error
	)

	switch cfg.Backend {
	case BackendDiscord:
		t, err = OpenDiscord(ctx, DiscordConfig{
			Token:         cfg.DiscordToken,
			ChannelID:     cfg.DiscordChannelID,
			MaxChunkBytes: cfg.MaxChunkBytes,
			CacheSize:     cfg.LocationCacheSize,
			CacheTTL:      cfg.LocationCacheTTL,
		}, logger)
	case BackendBucket:
		t, err = OpenBucket(ctx, cfg.BucketURL, cfg.MaxChunkBytes, cfg.LocationCacheTTL)
	default:
		return nil, fmt.Errorf("unknown transport backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return Instrument(t, cfg.Backend, cfg.CallTimeout), nil
}
