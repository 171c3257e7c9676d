package service

import (
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
)

// Resolve derives the lifecycle status of a link from its attributes at the
// given instant. It is the single source of truth for link status: the
// cached column exists only for cheap filtering and is refreshed from this
// function on writes and by the periodic sweep.
//
// Rules fire in strict priority order, first match wins:
//  1. manual disable override
//  2. soft-deleted (permanent)
//  3. not yet active
//  4. expired
//  5. usage limit reached
//  6. otherwise active
//
// Pure: no side effects, no reads of the clock.
func Resolve(link *model.AccessLink, now time.Time) model.LinkStatus {
	if link.Disabled {
		return model.StatusDisabled
	}
	if link.IsDeleted {
		return model.StatusInactive
	}
	if link.ActiveOn != nil && now.Before(*link.ActiveOn) {
		return model.StatusInactive
	}
	if link.Expiration != nil && now.After(*link.Expiration) {
		return model.StatusInactive
	}
	if link.MaxUses != nil && link.GrantedCount >= *link.MaxUses {
		return model.StatusInactive
	}
	return model.StatusActive
}

// DenialFor maps the first failing resolver rule to its wire-level denial
// reason. Only meaningful when Resolve reports a non-active status; an
// active link yields DenialOther.
func DenialFor(link *model.AccessLink, now time.Time) model.DenialReason {
	switch {
	case link.Disabled:
		return model.DenialDisabled
	case link.IsDeleted:
		return model.DenialDeleted
	case link.ActiveOn != nil && now.Before(*link.ActiveOn):
		return model.DenialNotActiveYet
	case link.Expiration != nil && now.After(*link.Expiration):
		return model.DenialExpired
	case link.MaxUses != nil && link.GrantedCount >= *link.MaxUses:
		return model.DenialMaxUsesExceeded
	default:
		return model.DenialOther
	}
}

// InCooldown reports whether the link is inside its cooldown window at now,
// and if so how long until the window ends (rounded up to whole seconds, so
// a caller told to wait N seconds is guaranteed to be clear after waiting).
func InCooldown(link *model.AccessLink, now time.Time, cooldown time.Duration) (bool, int) {
	if link.LastAccessedAt == nil || cooldown <= 0 {
		return false, 0
	}
	elapsed := now.Sub(*link.LastAccessedAt)
	if elapsed >= cooldown {
		return false, 0
	}
	wait := cooldown - elapsed
	secs := int(wait / time.Second)
	if wait%time.Second != 0 {
		secs++
	}
	return true, secs
}
