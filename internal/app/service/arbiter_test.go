package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"github.com/gatekeylabs/gatekey/internal/app/repository"
)

func TestGrantArbiter_EmptyCode(t *testing.T) {
	repo := &mockLinkRepository{
		tryGrantFn: func(ctx context.Context, code string, now time.Time, cooldown time.Duration) (*model.AccessLink, error) {
			t.Fatal("store should not be touched for an empty code")
			return nil, nil
		},
	}
	arbiter := NewGrantArbiter(repo, nil, time.Minute, nil)

	decision, err := arbiter.Attempt(context.Background(), "   ", time.Now().UTC())
	if err != nil {
		t.Fatalf("Attempt error: %v", err)
	}
	if decision.Granted || decision.Reason != model.DenialInvalidCode {
		t.Fatalf("expected invalid_code denial, got %+v", decision)
	}
}

func TestGrantArbiter_FilterKeepsGarbageOffGrantPath(t *testing.T) {
	lookups := 0
	repo := &mockLinkRepository{
		listCodesFn: func(ctx context.Context) ([]string, error) {
			return []string{"KNOWN123"}, nil
		},
		getByCodeFn: func(ctx context.Context, code string) (*model.AccessLink, error) {
			lookups++
			return nil, repository.ErrLinkNotFound
		},
		tryGrantFn: func(ctx context.Context, code string, now time.Time, cooldown time.Duration) (*model.AccessLink, error) {
			t.Fatal("grant path must not run for a filtered code")
			return nil, nil
		},
	}

	filter, err := NewCodeFilter(context.Background(), repo)
	if err != nil {
		t.Fatalf("NewCodeFilter error: %v", err)
	}
	arbiter := NewGrantArbiter(repo, filter, time.Minute, nil)

	decision, err := arbiter.Attempt(context.Background(), "NEVERSAW", time.Now().UTC())
	if err != nil {
		t.Fatalf("Attempt error: %v", err)
	}
	if decision.Granted || decision.Reason != model.DenialInvalidCode {
		t.Fatalf("expected invalid_code denial, got %+v", decision)
	}
	if lookups != 1 {
		t.Fatalf("expected one confirming read, got %d", lookups)
	}
}

// A code issued by another instance after this one seeded its filter must
// still be grantable: the filter miss falls through to the store, and the
// hit backfills the filter so later attempts skip the extra read.
func TestGrantArbiter_FilterMissFallsThroughForFreshCodes(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	repo := &mockLinkRepository{
		listCodesFn: func(ctx context.Context) ([]string, error) {
			return nil, nil // filter seeded before any links existed
		},
		getByCodeFn: func(ctx context.Context, code string) (*model.AccessLink, error) {
			return &model.AccessLink{ID: "l1", Code: code, Name: "Fresh"}, nil
		},
		tryGrantFn: func(ctx context.Context, code string, at time.Time, cooldown time.Duration) (*model.AccessLink, error) {
			return &model.AccessLink{ID: "l1", Code: code, Name: "Fresh", GrantedCount: 1}, nil
		},
	}

	filter, err := NewCodeFilter(context.Background(), repo)
	if err != nil {
		t.Fatalf("NewCodeFilter error: %v", err)
	}
	arbiter := NewGrantArbiter(repo, filter, time.Minute, nil)

	decision, err := arbiter.Attempt(context.Background(), "NEWCODE1", now)
	if err != nil {
		t.Fatalf("Attempt error: %v", err)
	}
	if !decision.Granted {
		t.Fatalf("expected grant for a code the store knows, got %+v", decision)
	}
	if !filter.MayExist("NEWCODE1") {
		t.Fatal("expected the confirmed code backfilled into the filter")
	}
}

func TestGrantArbiter_Granted(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	repo := &mockLinkRepository{
		tryGrantFn: func(ctx context.Context, code string, at time.Time, cooldown time.Duration) (*model.AccessLink, error) {
			if code != "ABCD1234" {
				t.Fatalf("expected normalized code, got %q", code)
			}
			return &model.AccessLink{
				ID: "id-1", Code: code, Name: "Front Gate",
				GrantedCount: 1, Status: model.StatusActive,
			}, nil
		},
	}
	arbiter := NewGrantArbiter(repo, nil, time.Minute, nil)

	decision, err := arbiter.Attempt(context.Background(), " abcd1234 ", now)
	if err != nil {
		t.Fatalf("Attempt error: %v", err)
	}
	if !decision.Granted {
		t.Fatalf("expected grant, got %+v", decision)
	}
	if decision.Link == nil || decision.Link.GrantedCount != 1 {
		t.Fatal("expected post-grant link snapshot")
	}
}

func TestGrantArbiter_UnknownCode(t *testing.T) {
	repo := &mockLinkRepository{
		getByCodeFn: func(ctx context.Context, code string) (*model.AccessLink, error) {
			return nil, repository.ErrLinkNotFound
		},
	}
	arbiter := NewGrantArbiter(repo, nil, time.Minute, nil)

	decision, err := arbiter.Attempt(context.Background(), "NOPE0000", time.Now().UTC())
	if err != nil {
		t.Fatalf("Attempt error: %v", err)
	}
	if decision.Granted || decision.Reason != model.DenialInvalidCode {
		t.Fatalf("expected invalid_code denial, got %+v", decision)
	}
	if decision.Link != nil {
		t.Fatal("unknown code must not carry a link")
	}
}

func TestGrantArbiter_DenialReasons(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		link   model.AccessLink
		reason model.DenialReason
	}{
		{
			name:   "expired",
			link:   model.AccessLink{ID: "l1", Code: "C1", Expiration: timePtr(now.Add(-time.Hour))},
			reason: model.DenialExpired,
		},
		{
			name:   "disabled",
			link:   model.AccessLink{ID: "l2", Code: "C2", Disabled: true},
			reason: model.DenialDisabled,
		},
		{
			name:   "not active yet",
			link:   model.AccessLink{ID: "l3", Code: "C3", ActiveOn: timePtr(now.Add(time.Hour))},
			reason: model.DenialNotActiveYet,
		},
		{
			name:   "max uses exceeded",
			link:   model.AccessLink{ID: "l4", Code: "C4", MaxUses: intPtr(2), GrantedCount: 2},
			reason: model.DenialMaxUsesExceeded,
		},
		{
			name:   "deleted",
			link:   model.AccessLink{ID: "l5", Code: "C5", IsDeleted: true},
			reason: model.DenialDeleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deniedBumped := false
			link := tt.link
			repo := &mockLinkRepository{
				getByCodeFn: func(ctx context.Context, code string) (*model.AccessLink, error) {
					return &link, nil
				},
				incrementDeniedFn: func(ctx context.Context, id string, at time.Time) error {
					if id != link.ID {
						t.Fatalf("denied counter bumped on wrong link: %s", id)
					}
					deniedBumped = true
					return nil
				},
			}
			arbiter := NewGrantArbiter(repo, nil, time.Minute, nil)

			decision, err := arbiter.Attempt(context.Background(), link.Code, now)
			if err != nil {
				t.Fatalf("Attempt error: %v", err)
			}
			if decision.Granted {
				t.Fatal("expected denial")
			}
			if decision.Reason != tt.reason {
				t.Fatalf("expected reason %s, got %s", tt.reason, decision.Reason)
			}
			if !deniedBumped {
				t.Fatal("expected denied counter bump")
			}
		})
	}
}

func TestGrantArbiter_Cooldown(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 1, 0, 0, time.UTC)
	last := now.Add(-59 * time.Second)
	repo := &mockLinkRepository{
		getByCodeFn: func(ctx context.Context, code string) (*model.AccessLink, error) {
			return &model.AccessLink{ID: "l1", Code: code, LastAccessedAt: &last}, nil
		},
	}
	arbiter := NewGrantArbiter(repo, nil, time.Minute, nil)

	decision, err := arbiter.Attempt(context.Background(), "COOLDOWN", now)
	if err != nil {
		t.Fatalf("Attempt error: %v", err)
	}
	if decision.Granted || decision.Reason != model.DenialRateLimited {
		t.Fatalf("expected rate_limited denial, got %+v", decision)
	}
	if decision.RetryAfterSeconds != 1 {
		t.Fatalf("expected retry_after of 1s, got %d", decision.RetryAfterSeconds)
	}
}

func TestGrantArbiter_CooldownClearsAtBoundary(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 1, 0, 0, time.UTC)
	last := now.Add(-60 * time.Second)
	repo := &mockLinkRepository{
		tryGrantFn: func(ctx context.Context, code string, at time.Time, cooldown time.Duration) (*model.AccessLink, error) {
			return &model.AccessLink{ID: "l1", Code: code, Name: "Gate", GrantedCount: 2, LastAccessedAt: &last}, nil
		},
	}
	arbiter := NewGrantArbiter(repo, nil, time.Minute, nil)

	decision, err := arbiter.Attempt(context.Background(), "COOLDOWN", now)
	if err != nil {
		t.Fatalf("Attempt error: %v", err)
	}
	if !decision.Granted {
		t.Fatalf("expected grant exactly at cooldown end, got %+v", decision)
	}
}

// Simulates the store's single-winner guarantee: a max_uses=1 link hit by
// many concurrent attempts hands out exactly one grant.
func TestGrantArbiter_ConcurrentSingleUse(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	var mu sync.Mutex
	granted := false

	repo := &mockLinkRepository{
		tryGrantFn: func(ctx context.Context, code string, at time.Time, cooldown time.Duration) (*model.AccessLink, error) {
			mu.Lock()
			defer mu.Unlock()
			if granted {
				return nil, nil
			}
			granted = true
			return &model.AccessLink{
				ID: "l1", Code: code, Name: "One Shot",
				MaxUses: intPtr(1), GrantedCount: 1,
			}, nil
		},
		getByCodeFn: func(ctx context.Context, code string) (*model.AccessLink, error) {
			return &model.AccessLink{
				ID: "l1", Code: code, Name: "One Shot",
				MaxUses: intPtr(1), GrantedCount: 1,
			}, nil
		},
	}
	arbiter := NewGrantArbiter(repo, nil, 0, nil)

	const attempts = 16
	results := make(chan Decision, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := arbiter.Attempt(context.Background(), "ONESHOT1", now)
			if err != nil {
				t.Errorf("Attempt error: %v", err)
				return
			}
			results <- decision
		}()
	}
	wg.Wait()
	close(results)

	grants, denials := 0, 0
	for d := range results {
		if d.Granted {
			grants++
		} else {
			denials++
			if d.Reason != model.DenialMaxUsesExceeded {
				t.Fatalf("expected max_uses_exceeded, got %s", d.Reason)
			}
		}
	}
	if grants != 1 {
		t.Fatalf("expected exactly one grant, got %d", grants)
	}
	if denials != attempts-1 {
		t.Fatalf("expected %d denials, got %d", attempts-1, denials)
	}
}

// When the guard keeps failing but the read keeps looking grantable, the
// arbiter gives up after its second pass instead of spinning.
func TestGrantArbiter_InconclusiveRaceBounded(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	tryCalls := 0
	repo := &mockLinkRepository{
		tryGrantFn: func(ctx context.Context, code string, at time.Time, cooldown time.Duration) (*model.AccessLink, error) {
			tryCalls++
			return nil, nil
		},
		getByCodeFn: func(ctx context.Context, code string) (*model.AccessLink, error) {
			return &model.AccessLink{ID: "l1", Code: code}, nil
		},
	}
	arbiter := NewGrantArbiter(repo, nil, time.Minute, nil)

	decision, err := arbiter.Attempt(context.Background(), "RACY0000", now)
	if err != nil {
		t.Fatalf("Attempt error: %v", err)
	}
	if decision.Granted || decision.Reason != model.DenialOther {
		t.Fatalf("expected fallback denial, got %+v", decision)
	}
	if tryCalls != 2 {
		t.Fatalf("expected exactly 2 grant attempts, got %d", tryCalls)
	}
}

func TestGrantArbiter_StoreErrorIsNotADenial(t *testing.T) {
	repo := &mockLinkRepository{
		tryGrantFn: func(ctx context.Context, code string, at time.Time, cooldown time.Duration) (*model.AccessLink, error) {
			return nil, context.DeadlineExceeded
		},
	}
	arbiter := NewGrantArbiter(repo, nil, time.Minute, nil)

	_, err := arbiter.Attempt(context.Background(), "ABCD1234", time.Now().UTC())
	if err == nil {
		t.Fatal("expected a transient error, got a decision")
	}
}
