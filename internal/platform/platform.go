// Package platform wraps the LINE Messaging API for mediavault.
//
// It provides the content fetcher used to retrieve raw media bytes for a
// message id, plus webhook callback parsing with signature verification.
// Both sides are built on the official line-bot-sdk-go client.
package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// DefaultFetchTimeout bounds a single content fetch. A timed-out fetch is
// treated the same as any other fetch failure: the id stays unprocessed.
const DefaultFetchTimeout = 30 * time.Second

// ContentFetcher retrieves the raw bytes attached to a message.
type ContentFetcher interface {
	FetchContent(ctx context.Context, messageID string) ([]byte, error)
}

// Opts holds configuration options for the platform client.
type Opts struct {
	AccessToken   string
	ChannelSecret string
	BlobEndpoint  string
	FetchTimeout  time.Duration
}

// Option defines a configuration option for the platform client.
type Option func(*Opts)

// WithAccessToken sets the channel access token used for API calls.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithChannelSecret sets the channel secret used for signature verification.
func WithChannelSecret(secret string) Option {
	return func(o *Opts) { o.ChannelSecret = secret }
}

// WithBlobEndpoint overrides the content API base URL (used in tests).
func WithBlobEndpoint(endpoint string) Option {
	return func(o *Opts) { o.BlobEndpoint = endpoint }
}

// WithFetchTimeout bounds each content fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Opts) { o.FetchTimeout = d }
}

// Client talks to the LINE Messaging API through the official SDK.
type Client struct {
	blob          *messaging_api.MessagingApiBlobAPI
	channelSecret string
}

// Compile-time check that Client implements ContentFetcher.
var _ ContentFetcher = (*Client)(nil)

// NewClient creates a platform client, applying any provided options.
// Credentials fall back to environment variables if not provided.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("CHANNEL_ACCESS_TOKEN")
	}
	if cfg.ChannelSecret == "" {
		cfg.ChannelSecret = os.Getenv("CHANNEL_SECRET")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	slog.Debug("Platform client config loaded",
		"AccessToken_set", cfg.AccessToken != "",
		"ChannelSecret_set", cfg.ChannelSecret != "",
		"fetch_timeout", cfg.FetchTimeout)

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("channel access token must be provided")
	}
	if cfg.ChannelSecret == "" {
		return nil, fmt.Errorf("channel secret must be provided")
	}

	blobOpts := []messaging_api.MessagingApiBlobAPIOption{
		messaging_api.WithBlobHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
	}
	if cfg.BlobEndpoint != "" {
		blobOpts = append(blobOpts, messaging_api.WithBlobEndpoint(cfg.BlobEndpoint))
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(cfg.AccessToken, blobOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating blob API client: %w", err)
	}

	return &Client{blob: blob, channelSecret: cfg.ChannelSecret}, nil
}

// FetchContent downloads the raw media bytes for a message id. The context is
// checked before the request is issued; the request in flight is bounded by
// the configured fetch timeout.
func (c *Client) FetchContent(ctx context.Context, messageID string) ([]byte, error) {
	if messageID == "" {
		return nil, fmt.Errorf("message id cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := c.blob.GetMessageContent(messageID)
	if err != nil {
		return nil, fmt.Errorf("content request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content request returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading content body: %w", err)
	}

	slog.Debug("Platform content fetched", "message_id", messageID, "bytes", len(data))
	return data, nil
}

// MockFetcher implements ContentFetcher for tests.
type MockFetcher struct {
	mu      sync.Mutex
	Content map[string][]byte
	Err     error
	Fetched []string
}

// NewMockFetcher creates a MockFetcher with no canned content.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{Content: make(map[string][]byte)}
}

func (m *MockFetcher) FetchContent(ctx context.Context, messageID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fetched = append(m.Fetched, messageID)
	if m.Err != nil {
		return nil, m.Err
	}
	if data, ok := m.Content[messageID]; ok {
		return data, nil
	}
	return []byte("mock-content-" + messageID), nil
}

// FetchCount returns how many fetches have been issued.
func (m *MockFetcher) FetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Fetched)
}
