package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"github.com/gatekeylabs/gatekey/internal/app/repository"
	infraprom "github.com/gatekeylabs/gatekey/internal/infra/prometheus"
	"go.uber.org/zap"
)

// Decision is the outcome of a single access attempt. Exactly one of the
// two shapes applies: Granted with a post-grant link snapshot, or a denial
// with a reason (Link is nil when the code resolved to nothing).
type Decision struct {
	Granted           bool
	Link              *model.AccessLink
	Reason            model.DenialReason
	RetryAfterSeconds int
	Message           string
}

// GrantArbiter decides access attempts. It is stateless between calls;
// correctness under concurrency comes entirely from the repository's
// conditional update, so any number of arbiter instances may run against
// the same store.
type GrantArbiter struct {
	links    repository.LinkRepository
	filter   *CodeFilter
	cooldown time.Duration
	logger   *zap.Logger
}

// NewGrantArbiter builds an arbiter with the given cooldown window. The
// code filter is optional; when present, codes it has never seen are
// checked with a cheap read before the grant path runs.
func NewGrantArbiter(links repository.LinkRepository, filter *CodeFilter, cooldown time.Duration, logger *zap.Logger) *GrantArbiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrantArbiter{links: links, filter: filter, cooldown: cooldown, logger: logger}
}

// Attempt runs the atomic grant decision for code at now.
//
// A non-nil error means the store was unreachable; that is a transient
// condition for the transport layer to surface as "try again", never a
// denial. Everything else comes back as a Decision.
func (a *GrantArbiter) Attempt(ctx context.Context, code string, now time.Time) (Decision, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return a.denied(nil, model.DenialInvalidCode, 0), nil
	}
	if a.filter != nil && !a.filter.MayExist(code) {
		// A miss is not authoritative: another instance may have issued
		// the code after this one seeded its filter. Confirm with a read
		// before denying, and backfill the filter on a hit. Garbage codes
		// still stop here, off the grant path.
		link, err := a.links.GetByCode(ctx, code)
		if err != nil {
			if err == repository.ErrLinkNotFound {
				return a.denied(nil, model.DenialInvalidCode, 0), nil
			}
			return Decision{}, fmt.Errorf("load link %q: %w", code, err)
		}
		a.filter.Add(link.Code)
	}

	// Two passes: if the guarded update fails but the subsequent read says
	// the link should have been grantable, a concurrent attempt won the row
	// between our two statements and the state is worth re-deciding once.
	for pass := 0; pass < 2; pass++ {
		link, err := a.links.TryGrant(ctx, code, now, a.cooldown)
		if err != nil {
			return Decision{}, fmt.Errorf("grant update for %q: %w", code, err)
		}
		if link != nil {
			a.logger.Info("access granted",
				zap.String("code", link.Code),
				zap.String("link_name", link.Name),
				zap.Int("granted_count", link.GrantedCount),
			)
			infraprom.AttemptsTotal.WithLabelValues(string(model.OutcomeGranted), "").Inc()
			return Decision{Granted: true, Link: link, Message: "Access granted - " + link.Name}, nil
		}

		link, err = a.links.GetByCode(ctx, code)
		if err != nil {
			if err == repository.ErrLinkNotFound {
				return a.denied(nil, model.DenialInvalidCode, 0), nil
			}
			return Decision{}, fmt.Errorf("load link %q: %w", code, err)
		}

		if status := Resolve(link, now); status != model.StatusActive {
			return a.deny(ctx, link, DenialFor(link, now), 0, now), nil
		}
		if limited, wait := InCooldown(link, now, a.cooldown); limited {
			return a.deny(ctx, link, model.DenialRateLimited, wait, now), nil
		}
		// Inconclusive: resolver says active and no cooldown applies, yet
		// the guard failed. Loop and re-decide against the fresh state.
	}

	return a.denied(nil, model.DenialOther, 0), nil
}

func (a *GrantArbiter) deny(ctx context.Context, link *model.AccessLink, reason model.DenialReason, retryAfter int, now time.Time) Decision {
	if err := a.links.IncrementDenied(ctx, link.ID, now); err != nil {
		a.logger.Warn("failed to increment denied count",
			zap.String("code", link.Code), zap.Error(err))
	}
	a.logger.Info("access denied",
		zap.String("code", link.Code),
		zap.String("reason", string(reason)),
	)
	return a.denied(link, reason, retryAfter)
}

func (a *GrantArbiter) denied(link *model.AccessLink, reason model.DenialReason, retryAfter int) Decision {
	infraprom.AttemptsTotal.WithLabelValues(string(model.OutcomeDenied), string(reason)).Inc()
	return Decision{
		Granted:           false,
		Link:              link,
		Reason:            reason,
		RetryAfterSeconds: retryAfter,
		Message:           DenialMessage(reason, retryAfter),
	}
}

// DenialMessage renders the human-readable text for a denial.
func DenialMessage(reason model.DenialReason, retryAfter int) string {
	switch reason {
	case model.DenialInvalidCode:
		return "Invalid link code"
	case model.DenialDisabled:
		return "Link has been disabled"
	case model.DenialDeleted:
		return "Link no longer exists"
	case model.DenialNotActiveYet:
		return "Link is not active yet"
	case model.DenialExpired:
		return "Link has expired"
	case model.DenialMaxUsesExceeded:
		return "Maximum uses exceeded"
	case model.DenialRateLimited:
		return fmt.Sprintf("Too many requests, retry in %ds", retryAfter)
	default:
		return "Access denied"
	}
}
