package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes = 20 << 20

// FetchConfig controls attachment downloads.
type FetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
	MaxBytes int64         `mapstructure:"max_bytes"`
}

// DefaultFetchConfig returns download defaults.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:  30 * time.Second,
		RetryMax: 2,
		MaxBytes: DefaultMaxBytes,
	}
}

// Fetcher downloads remote attachments fully into memory. Transient
// failures (connection errors, 429, 5xx) are retried with backoff.
type Fetcher struct {
	client   *retryablehttp.Client
	maxBytes int64
}

// NewFetcher creates a Fetcher. Retry attempts are logged through logger.
func NewFetcher(cfg FetchConfig, logger *zap.Logger) *Fetcher {
	c := retryablehttp.NewClient()
	c.RetryMax = cfg.RetryMax
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	c.Logger = leveledLogger{logger.Sugar()}

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{client: c, maxBytes: maxBytes}
}

// Fetch GETs url and returns the body. Non-2xx responses and bodies larger
// than the configured cap are errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("download %s: larger than %d bytes", url, f.maxBytes)
	}
	return body, nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
