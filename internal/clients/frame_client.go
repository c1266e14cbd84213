/**
 * Frame Client - Snapshot download
 *
 * Downloads frames referenced by URL (stream snapshot endpoints, object
 * storage links) with bounded retries and a size cap.
 */

package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hoovercj/streamABLE/internal/logging"
)

// FrameClient downloads frames over HTTP
type FrameClient struct {
	httpClient     *http.Client
	maxFrameSize   int64
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *logging.Logger
}

// FrameClientConfig holds frame download configuration
type FrameClientConfig struct {
	MaxFrameSize   int64
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
	Logger         *logging.Logger
}

// NewFrameClient creates a new frame client
func NewFrameClient(cfg *FrameClientConfig) *FrameClient {
	c := &FrameClient{
		maxFrameSize:   cfg.MaxFrameSize,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         cfg.Logger,
	}
	if c.maxFrameSize <= 0 {
		c.maxFrameSize = 16 << 20
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = 500 * time.Millisecond
	}
	if c.maxBackoff <= 0 {
		c.maxBackoff = 4 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if c.logger == nil {
		c.logger = logging.NewLogger("FrameClient")
	}
	c.httpClient = &http.Client{Timeout: timeout}
	return c
}

// FetchFrame downloads the frame at url
func (c *FrameClient) FetchFrame(ctx context.Context, jobID string, url string) ([]byte, error) {
	var lastErr error
	backoff := c.initialBackoff

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		data, retryable, err := c.fetchOnce(ctx, url)
		if err == nil {
			c.logger.Debug("Frame downloaded", "job", jobID, "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		lastErr = err
		c.logger.Warn("Frame download failed", "job", jobID, "attempt", attempt, "error", err)

		if !retryable || attempt == c.maxRetries {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
		backoff = min(backoff*2, c.maxBackoff)
	}

	return nil, fmt.Errorf("failed to download frame: %w", lastErr)
}

// fetchOnce performs one download. Client errors (4xx) and oversized
// frames are not retried.
func (c *FrameClient) fetchOnce(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if resp.ContentLength > c.maxFrameSize {
		return nil, false, fmt.Errorf("frame size exceeds maximum: %d > %d bytes", resp.ContentLength, c.maxFrameSize)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxFrameSize+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > c.maxFrameSize {
		return nil, false, fmt.Errorf("frame size exceeds maximum of %d bytes", c.maxFrameSize)
	}

	return data, false, nil
}
