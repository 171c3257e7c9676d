package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gatekeylabs/gatekey/internal/app/model"
)

const pushoverMessagesURL = "https://api.pushover.net/1/messages.json"

// PushoverNotifier delivers events through the Pushover push API.
type PushoverNotifier struct {
	name   string
	cfg    model.PushoverConfig
	client *http.Client

	// overridable in tests
	endpoint string
}

func (n *PushoverNotifier) Name() string { return n.name }

func (n *PushoverNotifier) Deliver(ctx context.Context, event Event) error {
	title, message := pushoverText(event)

	payload := map[string]interface{}{
		"token":    n.cfg.APIToken,
		"user":     n.cfg.UserKey,
		"title":    title,
		"message":  message,
		"priority": n.cfg.Priority,
	}
	if n.cfg.Sound != "" {
		payload["sound"] = n.cfg.Sound
	}
	if n.cfg.Device != "" {
		payload["device"] = n.cfg.Device
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := n.endpoint
	if url == "" {
		url = pushoverMessagesURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover API returned %d", resp.StatusCode)
	}
	return nil
}

func pushoverText(event Event) (title, message string) {
	switch event.Type {
	case EventAccessGranted:
		title = "Gate Access Granted"
		message = fmt.Sprintf("Access granted via link: %s (%s)", event.LinkName, event.LinkCode)
	default:
		title = "Gate Access Event"
		message = fmt.Sprintf("Event: %s - Link: %s (%s)", event.Type, event.LinkName, event.LinkCode)
	}
	return title, message
}
