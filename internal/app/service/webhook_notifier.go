package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
)

// WebhookNotifier delivers events to an arbitrary HTTP endpoint with a
// configurable method, headers and body template.
type WebhookNotifier struct {
	name   string
	cfg    model.WebhookConfig
	client *http.Client
}

func (n *WebhookNotifier) Name() string { return n.name }

func (n *WebhookNotifier) Deliver(ctx context.Context, event Event) error {
	if n.cfg.URL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	method := strings.ToUpper(n.cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return fmt.Errorf("unsupported HTTP method: %s", method)
	}

	body, contentType, err := n.renderBody(event)
	if err != nil {
		return err
	}

	var reader *strings.Reader
	if method == http.MethodGet {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.cfg.URL, reader)
	if err != nil {
		return err
	}
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}
	if method != http.MethodGet && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// renderBody expands the configured template, or falls back to a default
// JSON payload when no template is set.
func (n *WebhookNotifier) renderBody(event Event) (body, contentType string, err error) {
	ts := event.Timestamp.UTC().Format(time.RFC3339)

	if n.cfg.BodyTemplate != "" {
		r := strings.NewReplacer(
			"{link_code}", event.LinkCode,
			"{link_name}", event.LinkName,
			"{event_type}", event.Type,
			"{timestamp}", ts,
		)
		return r.Replace(n.cfg.BodyTemplate), "text/plain", nil
	}

	data, err := json.Marshal(map[string]string{
		"event_type": event.Type,
		"link_code":  event.LinkCode,
		"link_name":  event.LinkName,
		"timestamp":  ts,
	})
	if err != nil {
		return "", "", err
	}
	return string(data), "application/json", nil
}
