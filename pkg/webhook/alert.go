package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

// Alerter posts operational alerts to a configured webhook. A zero URL
// disables it.
type Alerter struct {
	httpClient *resty.Client
	url        string
}

func NewAlerter(url string) *Alerter {
	return &Alerter{
		httpClient: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
		url: url,
	}
}

func (a *Alerter) Enabled() bool {
	return a != nil && a.url != ""
}

// Alert sends kind plus fields. Delivery problems are logged and returned.
func (a *Alerter) Alert(ctx context.Context, kind, message string, fields map[string]any) error {
	if !a.Enabled() {
		return nil
	}

	payload := map[string]any{
		"alert":     kind,
		"message":   message,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range fields {
		payload[k] = v
	}

	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(a.url)
	if err != nil {
		logger.Errorf("Failed to send alert to webhook: %v", err)
		return fmt.Errorf("failed to send alert: %w", err)
	}

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent &&
		resp.StatusCode() != http.StatusAccepted {
		logger.Warnf("Alert webhook returned status %d", resp.StatusCode())
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode())
	}

	logger.Infof("Alert %s sent to %s", kind, a.url)
	return nil
}
