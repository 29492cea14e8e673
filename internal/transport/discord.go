package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// channelAPI is the subset of *discordgo.Session the adapter uses.
type channelAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// DiscordConfig configures the message-channel backend.
type DiscordConfig struct {
	Token         string
	ChannelID     string
	MaxChunkBytes int64
	CacheSize     int
	CacheTTL      time.Duration
	HTTPClient    *http.Client
}

// Discord stores each chunk as a single attachment on a message in one
// channel. The remote handle is the message id.
type Discord struct {
	api        channelAPI
	session    *discordgo.Session
	channelID  string
	maxBytes   int64
	locations  *locationCache
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// OpenDiscord logs the bot in, opens the gateway connection and resolves the
// storage channel. It is called once at process start.
func OpenDiscord(ctx context.Context, cfg DiscordConfig, logger *slog.Logger) (*Discord, error) {
	if cfg.Token == "" || cfg.ChannelID == "" {
		return nil, fmt.Errorf("%w: discord token and channel id are required", ErrTransportUnavailable)
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	session.ShouldReconnectOnError = true

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("%w: open gateway: %w", ErrTransportUnavailable, err)
	}

	channel, err := session.Channel(cfg.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("resolve storage channel: %w", classifyDiscordErr(err))
	}

	d := newDiscord(session, channel.ID, cfg, logger)
	d.session = session
	d.logger.Info("discord transport ready",
		slog.String("channel_id", channel.ID),
		slog.String("channel", channel.Name),
	)
	return d, nil
}

func newDiscord(api channelAPI, channelID string, cfg DiscordConfig, logger *slog.Logger) *Discord {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		api:        api,
		channelID:  channelID,
		maxBytes:   cfg.MaxChunkBytes,
		locations:  newLocationCache(cfg.CacheSize, cfg.CacheTTL),
		httpClient: client,
		logger:     logger.With(slog.String("component", "discord_transport")),
	}
}

func (d *Discord) MaxChunkBytes() int64 { return d.maxBytes }

func (d *Discord) PutChunk(ctx context.Context, chunk Chunk) (string, error) {
	if err := d.checkOpen(); err != nil {
		return "", err
	}
	if d.maxBytes > 0 && int64(len(chunk.Payload)) > d.maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds attachment limit %d", ErrTransportRejected, len(chunk.Payload), d.maxBytes)
	}

	msg, err := d.api.ChannelMessageSendComplex(d.channelID, &discordgo.MessageSend{
		Content: chunk.Caption,
		Files: []*discordgo.File{{
			Name:        chunk.DisplayName,
			ContentType: "application/octet-stream",
			Reader:      bytes.NewReader(chunk.Payload),
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classifyDiscordErr(err)
	}

	if len(msg.Attachments) > 0 {
		d.locations.set(msg.ID, msg.Attachments[0].URL)
	}
	return msg.ID, nil
}

func (d *Discord) ChunkLocation(ctx context.Context, handle string) (string, error) {
	if err := d.checkOpen(); err != nil {
		return "", err
	}
	if url, ok := d.locations.get(handle); ok {
		return url, nil
	}
	return d.resolve(ctx, handle)
}

func (d *Discord) resolve(ctx context.Context, handle string) (string, error) {
	msg, err := d.api.ChannelMessage(d.channelID, handle, discordgo.WithContext(ctx))
	if err != nil {
		return "", classifyDiscordErr(err)
	}
	if len(msg.Attachments) == 0 || msg.Attachments[0].URL == "" {
		return "", fmt.Errorf("%w: message %s has no attachment", ErrHandleNotFound, handle)
	}

	url := msg.Attachments[0].URL
	d.locations.set(handle, url)
	return url, nil
}

func (d *Discord) FetchChunk(ctx context.Context, handle string) (io.ReadCloser, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	url, cached := d.locations.get(handle)
	if !cached {
		var err error
		if url, err = d.resolve(ctx, handle); err != nil {
			return nil, err
		}
	}

	body, status, err := d.get(ctx, url)
	if err == nil {
		return body, nil
	}
	// A cached attachment URL may have expired; resolve the message again once.
	if cached && (status == http.StatusNotFound || status == http.StatusForbidden) {
		d.locations.forget(handle)
		if url, err = d.resolve(ctx, handle); err != nil {
			return nil, err
		}
		body, _, err = d.get(ctx, url)
	}
	return body, err
}

func (d *Discord) get(ctx context.Context, url string) (io.ReadCloser, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: fetch attachment: %w", ErrTransportUnavailable, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, resp.StatusCode, nil
	}

	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return nil, resp.StatusCode, fmt.Errorf("%w: attachment status %d", ErrHandleNotFound, resp.StatusCode)
	}
	return nil, resp.StatusCode, fmt.Errorf("%w: attachment status %d", ErrTransportUnavailable, resp.StatusCode)
}

func (d *Discord) DeleteChunk(ctx context.Context, handle string) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	d.locations.forget(handle)

	err := d.api.ChannelMessageDelete(d.channelID, handle, discordgo.WithContext(ctx))
	if err == nil {
		return nil
	}
	if errors.Is(classifyDiscordErr(err), ErrHandleNotFound) {
		return nil
	}
	return fmt.Errorf("%w: message %s: %w", ErrDeleteFailed, handle, err)
}

// Close shuts the gateway connection. Calls after the first are no-ops.
func (d *Discord) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}

func (d *Discord) checkOpen() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

func classifyDiscordErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
			return fmt.Errorf("%w: %w", ErrHandleNotFound, err)
		}
		if restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusNotFound:
				return fmt.Errorf("%w: %w", ErrHandleNotFound, err)
			case http.StatusRequestEntityTooLarge:
				return fmt.Errorf("%w: %w", ErrTransportRejected, err)
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
}
