package export

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookTarget POSTs the export manifest to a configured HTTP endpoint.
type WebhookTarget struct {
	url    string
	client *resty.Client
}

// NewWebhookTarget creates a webhook target for the given URL.
func NewWebhookTarget(url string) *WebhookTarget {
	return &WebhookTarget{
		url:    url,
		client: resty.New().SetTimeout(time.Minute).SetRetryCount(2),
	}
}

func (t *WebhookTarget) Name() string { return "webhook" }

// Export delivers the manifest as JSON. Any non-2xx response is a failure.
func (t *WebhookTarget) Export(ctx context.Context, m *Manifest) (string, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(m).
		Post(t.url)
	if err != nil {
		return "", fmt.Errorf("webhook delivery failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("webhook rejected export: %s", resp.Status())
	}
	return t.url, nil
}
