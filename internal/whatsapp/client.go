package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stafflink/wabridge/internal/config"
)

// MaxDownloadBytes caps a single media download.
const MaxDownloadBytes int64 = 100 * 1024 * 1024

// ErrMediaTooLarge indicates a download exceeded MaxDownloadBytes.
var ErrMediaTooLarge = errors.New("media download too large")

// Client talks to the Graph API media endpoints.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	version     string
	accessToken string
	logger      *slog.Logger
}

func NewClient(log *slog.Logger, cfg config.WhatsAppConfig) *Client {
	if log == nil {
		log = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
		version:     cfg.APIVersion,
		accessToken: cfg.AccessToken,
		logger:      log.With(slog.String("component", "graph_client")),
	}
}

// MediaInfo resolves download metadata for a media ID. The returned URL is
// short-lived and must be fetched promptly.
func (c *Client) MediaInfo(ctx context.Context, mediaID string) (MediaInfo, error) {
	if strings.TrimSpace(mediaID) == "" {
		return MediaInfo{}, fmt.Errorf("media id is required")
	}
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("build media info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("media info request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return MediaInfo{}, fmt.Errorf("media info status %d", resp.StatusCode)
	}
	var info MediaInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return MediaInfo{}, fmt.Errorf("decode media info: %w", err)
	}
	if strings.TrimSpace(info.URL) == "" {
		return MediaInfo{}, fmt.Errorf("media info missing download url")
	}
	return info, nil
}

// Download fetches the binary at a resolved media URL. The lookaside URL
// still requires bearer auth. Returns the content and the response MIME type.
func (c *Client) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download status %d", resp.StatusCode)
	}
	limited := &io.LimitedReader{R: resp.Body, N: MaxDownloadBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", fmt.Errorf("read download body: %w", err)
	}
	if int64(len(data)) > MaxDownloadBytes {
		return nil, "", fmt.Errorf("%w: max %d bytes", ErrMediaTooLarge, MaxDownloadBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
