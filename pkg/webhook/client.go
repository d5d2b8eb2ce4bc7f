package webhook

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

type sendRequest struct {
	To       string          `json:"to"`
	Content  string          `json:"content"`
	ImageURL string          `json:"imageUrl,omitempty"`
	Buttons  []domain.Button `json:"buttons,omitempty"`
}

// Client delivers broadcast payloads to an HTTP messaging gateway.
type Client struct {
	httpClient *resty.Client
	webhookURL string
}

func NewWebhookClient(cfg environments.WebhookConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r != nil && r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-webhook-auth-key", cfg.AuthKey)

	return &Client{
		httpClient: client,
		webhookURL: cfg.URL,
	}
}

// Send posts one payload. A 429 is reported as *domain.RateLimitError.
func (c *Client) Send(ctx context.Context, contactID string, payload domain.Payload) error {
	body := sendRequest{
		To:       contactID,
		Content:  payload.Text,
		ImageURL: payload.ImageURL,
		Buttons:  payload.Buttons,
	}

	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.webhookURL)

	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	logger.Debugf("Webhook request to %s completed in %v (status: %d)", c.webhookURL, time.Since(startTime), resp.StatusCode())

	switch code := resp.StatusCode(); {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return &domain.RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After"), time.Now()),
			Reason:     "gateway returned 429",
		}
	default:
		return fmt.Errorf("unexpected status code: %d, body: %s", code, truncate(resp.String(), 256))
	}
}

func (c *Client) GetURL() string {
	return c.webhookURL
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// truncate cuts s to at most n bytes on a rune boundary. Invalid UTF-8 in
// the body is replaced so the result is always safe to store.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
