package model

import "time"

// AttemptOutcome is the result of an access attempt.
type AttemptOutcome string

const (
	OutcomeGranted AttemptOutcome = "granted"
	OutcomeDenied  AttemptOutcome = "denied"
)

// DenialReason enumerates the wire-level reasons an attempt can be refused.
type DenialReason string

const (
	DenialExpired         DenialReason = "expired"
	DenialDisabled        DenialReason = "disabled"
	DenialDeleted         DenialReason = "deleted"
	DenialNotActiveYet    DenialReason = "not_active_yet"
	DenialMaxUsesExceeded DenialReason = "max_uses_exceeded"
	DenialInvalidCode     DenialReason = "invalid_code"
	DenialRateLimited     DenialReason = "rate_limited"
	DenialWebhookFailed   DenialReason = "webhook_failed"
	DenialOther           DenialReason = "other"
)

// AccessAttempt is the append-only record of a single inbound access
// attempt. LinkID is nil when the code did not resolve to any link.
type AccessAttempt struct {
	ID          string         `json:"id" gorm:"primaryKey;size:36"`
	LinkID      *string        `json:"link_id" gorm:"size:36;index"`
	CodeUsed    string         `json:"code_used" gorm:"size:50"`
	Outcome     AttemptOutcome `json:"outcome" gorm:"size:20;not null;index"`
	Reason      *DenialReason  `json:"reason,omitempty" gorm:"size:30"`
	IP          string         `json:"ip" gorm:"size:45;not null"`
	UserAgent   string         `json:"user_agent" gorm:"type:text"`
	AttemptedAt time.Time      `json:"attempted_at" gorm:"not null;index"`
}

// TableName overrides GORM's default pluralization.
func (AccessAttempt) TableName() string { return "access_attempts" }

// JetStream wiring for the attempt-record pipeline.
const (
	AttemptStreamName     = "ACCESS_ATTEMPTS"
	AttemptStreamSubject  = "access.attempts"
	AttemptConsumerName   = "attempt-recorder"
	AttemptStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
