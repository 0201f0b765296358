// Package webhook delivers per-job completion callbacks to the URL supplied at submission.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/espeech/espeech-api/internal/observability/notify"
)

// Payload is the JSON body POSTed to a callback URL.
type Payload struct {
	JobID    string  `json:"job_id"`
	Status   string  `json:"status"`
	Error    *string `json:"error"`
	Filename *string `json:"filename"`
	MimeType *string `json:"mime_type"`
}

// Config controls callback delivery.
type Config struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// RetryLimit is the number of retries after the first attempt.
	RetryLimit int
	UserAgent  string
	Client     *http.Client
}

// Client posts terminal job events to their callback URL.
type Client struct {
	timeout    time.Duration
	retryLimit int
	userAgent  string
	client     *http.Client
}

// NewClient builds a callback client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "espeech-callback/1"
	}
	return &Client{
		timeout:    timeout,
		retryLimit: max(cfg.RetryLimit, 0),
		userAgent:  ua,
		client:     hc,
	}
}

// PayloadFor builds the callback body for event.
func PayloadFor(event notify.JobEvent) Payload {
	return Payload{
		JobID:    event.JobID,
		Status:   string(event.Status),
		Error:    optional(event.Error),
		Filename: optional(event.Filename),
		MimeType: optional(event.MimeType),
	}
}

// SendJobEvent posts the event to its callback URL. Events without a URL are ignored.
// Total time is bounded by (RetryLimit+1) attempts of Timeout each plus linear backoff.
func (c *Client) SendJobEvent(ctx context.Context, event notify.JobEvent) error {
	target := strings.TrimSpace(event.CallbackURL)
	if target == "" {
		return nil
	}

	body, err := json.Marshal(PayloadFor(event))
	if err != nil {
		return fmt.Errorf("encode callback payload: %w", err)
	}

	return notify.Retry(ctx, c.retryLimit, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.post(attemptCtx, target, body)
	})
}

func (c *Client) post(ctx context.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback %s returned %s", target, resp.Status)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ notify.Sink = (*Client)(nil)
