package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
)

// Event carries what a notification needs to say about an access decision.
type Event struct {
	Type      string    `json:"event_type"`
	LinkCode  string    `json:"link_code"`
	LinkName  string    `json:"link_name"`
	Timestamp time.Time `json:"timestamp"`
}

const EventAccessGranted = "access_granted"

// Notifier is the single capability all provider adapters implement. A
// returned error is a delivery failure; the dispatcher logs it and moves
// on, it is never retried or surfaced to the requester.
type Notifier interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// NewNotifier builds the concrete adapter for a provider row. The
// dispatcher holds the result only through the Notifier interface.
func NewNotifier(provider model.NotificationProvider, client *http.Client) (Notifier, error) {
	switch provider.Type {
	case model.ProviderPushover:
		var cfg model.PushoverConfig
		if err := json.Unmarshal(provider.Config, &cfg); err != nil {
			return nil, fmt.Errorf("pushover config for %q: %w", provider.Name, err)
		}
		return &PushoverNotifier{name: provider.Name, cfg: cfg, client: client}, nil
	case model.ProviderWebhook:
		var cfg model.WebhookConfig
		if err := json.Unmarshal(provider.Config, &cfg); err != nil {
			return nil, fmt.Errorf("webhook config for %q: %w", provider.Name, err)
		}
		return &WebhookNotifier{name: provider.Name, cfg: cfg, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", provider.Type)
	}
}
