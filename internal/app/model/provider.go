package model

import (
	"encoding/json"
	"time"
)

// ProviderType identifies the transport a notification provider uses.
type ProviderType string

const (
	ProviderPushover ProviderType = "pushover"
	ProviderWebhook  ProviderType = "webhook"
)

// NotificationProvider is a configured notification target. Links reference
// providers by id; a disabled or deleted provider is simply skipped at
// dispatch time.
type NotificationProvider struct {
	ID      string       `db:"id" gorm:"primaryKey;size:36"`
	Name    string       `db:"name" gorm:"size:200;not null"`
	Type    ProviderType `db:"type" gorm:"size:20;not null;index"`
	Enabled bool         `db:"enabled" gorm:"not null;default:true;index"`

	// Config holds the type-specific settings as JSON.
	// Pushover: {"user_key": ..., "api_token": ..., "priority": 0, "sound": ..., "device": ...}
	// Webhook:  {"url": ..., "method": "POST", "headers": {...}, "body_template": ...}
	Config json.RawMessage `db:"config" gorm:"type:jsonb;not null"`

	IsDeleted bool       `db:"is_deleted" gorm:"not null;default:false;index"`
	DeletedAt *time.Time `db:"deleted_at"`

	CreatedAt time.Time `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}

// TableName overrides GORM's default pluralization.
func (NotificationProvider) TableName() string { return "notification_providers" }

// PushoverConfig is the decoded configuration for a pushover provider.
type PushoverConfig struct {
	UserKey  string `json:"user_key"`
	APIToken string `json:"api_token"`
	Priority int    `json:"priority"`
	Sound    string `json:"sound,omitempty"`
	Device   string `json:"device,omitempty"`
}

// WebhookConfig is the decoded configuration for a webhook provider.
type WebhookConfig struct {
	URL          string            `json:"url"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate string            `json:"body_template,omitempty"`
}
