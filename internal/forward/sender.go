package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/config"
)

// SendResult indicates the outcome of a send attempt.
type SendResult int

const (
	// SendOK indicates successful delivery.
	SendOK SendResult = iota
	// SendRetryable indicates a transient error (429, 5xx, network error).
	SendRetryable
	// SendFatal indicates a permanent error (401/403, bad URL).
	SendFatal
)

func (r SendResult) String() string {
	switch r {
	case SendOK:
		return "ok"
	case SendRetryable:
		return "retryable"
	case SendFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sender abstracts batch delivery for testing.
type Sender interface {
	// Send posts one batch. Returns the result and a retry-after hint (for 429 responses).
	Send(ctx context.Context, batch Batch) (SendResult, time.Duration)
}

// HTTPSender posts batches as JSON with bearer authentication.
type HTTPSender struct {
	url    string
	token  config.Secret
	client *http.Client
	logger *slog.Logger
}

// SenderOption configures an HTTPSender.
type SenderOption func(*HTTPSender)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *HTTPSender) { s.client = client }
}

// WithSenderLogger sets the logger.
func WithSenderLogger(logger *slog.Logger) SenderOption {
	return func(s *HTTPSender) { s.logger = logger }
}

// NewHTTPSender creates a sender for url. An empty token sends no
// Authorization header.
func NewHTTPSender(url string, token config.Secret, opts ...SenderOption) *HTTPSender {
	s := &HTTPSender{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, batch Batch) (SendResult, time.Duration) {
	if s.url == "" {
		s.logger.Warn("forward URL not configured")
		return SendFatal, 0
	}

	body, err := json.Marshal(batch)
	if err != nil {
		s.logger.Error("failed to marshal batch", "error", err)
		return SendFatal, 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("failed to create request", "error", err)
		return SendFatal, 0
	}
	req.Header.Set("Content-Type", "application/json")
	if !s.token.IsEmpty() {
		req.Header.Set("Authorization", "Bearer "+s.token.Value())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("forward request failed", "error", err)
		return SendRetryable, 0
	}
	defer resp.Body.Close()

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		s.logger.Debug("batch forwarded", "status", resp.StatusCode, "records", batch.Count)
		return SendOK, 0

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		s.logger.Warn("forward endpoint rate limited", "retry_after", retryAfter)
		return SendRetryable, retryAfter

	case resp.StatusCode == http.StatusRequestTimeout:
		return SendRetryable, 0

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Auth and URL errors won't recover with retry
		s.logger.Error("forward endpoint client error",
			"status", resp.StatusCode,
			"token", s.token, // logs as [REDACTED]
		)
		return SendFatal, 0

	default:
		s.logger.Warn("forward endpoint server error", "status", resp.StatusCode)
		return SendRetryable, 0
	}
}

// parseRetryAfter accepts delay-seconds (integer or decimal) or an HTTP date.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
