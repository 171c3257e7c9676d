package model

import (
	"time"
)

// LinkStatus is the cached lifecycle status of an access link. It is
// refreshed on writes and by the periodic sweep; the grant path always
// re-derives it from the link's attributes instead of trusting this value.
type LinkStatus string

const (
	StatusActive   LinkStatus = "active"
	StatusInactive LinkStatus = "inactive"
	StatusDisabled LinkStatus = "disabled"
)

// LinkPurpose categorizes why a link was issued.
type LinkPurpose string

const (
	PurposeDelivery          LinkPurpose = "delivery"
	PurposeRecurringDelivery LinkPurpose = "recurring_delivery"
	PurposeVisitor           LinkPurpose = "visitor"
	PurposeService           LinkPurpose = "service"
	PurposeEmergency         LinkPurpose = "emergency"
	PurposeOther             LinkPurpose = "other"
)

// AccessLink is a shareable credential that grants time- and usage-bounded
// gate access via its code.
type AccessLink struct {
	ID   string `db:"id" gorm:"primaryKey;size:36"`
	Code string `db:"code" gorm:"size:50;not null;uniqueIndex"`
	Name string `db:"name" gorm:"size:200;not null"`

	Notes   string      `db:"notes" gorm:"type:text"`
	Purpose LinkPurpose `db:"purpose" gorm:"size:30;not null;default:other"`

	// Disabled is the manual override. While set, the resolver reports
	// DISABLED regardless of the temporal/usage attributes; Enable clears
	// it and recomputes the status.
	Disabled bool       `db:"disabled" gorm:"not null;default:false"`
	Status   LinkStatus `db:"status" gorm:"size:20;not null;default:active;index"`

	ActiveOn   *time.Time `db:"active_on"`
	Expiration *time.Time `db:"expiration" gorm:"index"`

	MaxUses        *int       `db:"max_uses"`
	GrantedCount   int        `db:"granted_count" gorm:"not null;default:0"`
	DeniedCount    int        `db:"denied_count" gorm:"not null;default:0"`
	LastAccessedAt *time.Time `db:"last_accessed_at"`

	// AutoOpen triggers the gate directly on validation, without a separate
	// access request.
	AutoOpen bool `db:"auto_open" gorm:"not null;default:false"`

	IsDeleted bool       `db:"is_deleted" gorm:"not null;default:false;index"`
	DeletedAt *time.Time `db:"deleted_at"`

	Providers []NotificationProvider `gorm:"many2many:link_notification_providers;"`

	CreatedAt time.Time `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}

// TableName overrides GORM's default pluralization.
func (AccessLink) TableName() string { return "access_links" }

// RemainingUses returns how many grants are left, or nil when unlimited.
func (l *AccessLink) RemainingUses() *int {
	if l.MaxUses == nil {
		return nil
	}
	remaining := *l.MaxUses - l.GrantedCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// TotalUses is the count of all attempts that reached this link.
func (l *AccessLink) TotalUses() int {
	return l.GrantedCount + l.DeniedCount
}
