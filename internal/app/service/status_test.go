package service

import (
	"testing"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
)

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func TestResolve(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		link model.AccessLink
		want model.LinkStatus
	}{
		{
			name: "no bounds",
			link: model.AccessLink{},
			want: model.StatusActive,
		},
		{
			name: "within window",
			link: model.AccessLink{
				ActiveOn:   timePtr(now.Add(-time.Hour)),
				Expiration: timePtr(now.Add(time.Hour)),
			},
			want: model.StatusActive,
		},
		{
			name: "not active yet",
			link: model.AccessLink{ActiveOn: timePtr(now.Add(time.Minute))},
			want: model.StatusInactive,
		},
		{
			name: "expired",
			link: model.AccessLink{Expiration: timePtr(now.Add(-time.Minute))},
			want: model.StatusInactive,
		},
		{
			name: "expiration boundary is inclusive",
			link: model.AccessLink{Expiration: timePtr(now)},
			want: model.StatusActive,
		},
		{
			name: "active_on boundary is inclusive",
			link: model.AccessLink{ActiveOn: timePtr(now)},
			want: model.StatusActive,
		},
		{
			name: "max uses reached",
			link: model.AccessLink{MaxUses: intPtr(3), GrantedCount: 3},
			want: model.StatusInactive,
		},
		{
			name: "uses remaining",
			link: model.AccessLink{MaxUses: intPtr(3), GrantedCount: 2},
			want: model.StatusActive,
		},
		{
			name: "disabled wins over everything",
			link: model.AccessLink{
				Disabled:   true,
				Expiration: timePtr(now.Add(time.Hour)),
			},
			want: model.StatusDisabled,
		},
		{
			name: "disabled wins over deleted",
			link: model.AccessLink{Disabled: true, IsDeleted: true},
			want: model.StatusDisabled,
		},
		{
			name: "deleted",
			link: model.AccessLink{IsDeleted: true},
			want: model.StatusInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(&tt.link, now); got != tt.want {
				t.Fatalf("Resolve() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDenialFor(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		link model.AccessLink
		want model.DenialReason
	}{
		{
			name: "disabled beats expired",
			link: model.AccessLink{
				Disabled:   true,
				Expiration: timePtr(now.Add(-time.Hour)),
			},
			want: model.DenialDisabled,
		},
		{
			name: "deleted beats expired",
			link: model.AccessLink{
				IsDeleted:  true,
				Expiration: timePtr(now.Add(-time.Hour)),
			},
			want: model.DenialDeleted,
		},
		{
			name: "not active yet",
			link: model.AccessLink{ActiveOn: timePtr(now.Add(time.Hour))},
			want: model.DenialNotActiveYet,
		},
		{
			name: "expired",
			link: model.AccessLink{Expiration: timePtr(now.Add(-time.Second))},
			want: model.DenialExpired,
		},
		{
			name: "max uses",
			link: model.AccessLink{MaxUses: intPtr(1), GrantedCount: 1},
			want: model.DenialMaxUsesExceeded,
		},
		{
			name: "active link falls through to other",
			link: model.AccessLink{},
			want: model.DenialOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DenialFor(&tt.link, now); got != tt.want {
				t.Fatalf("DenialFor() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInCooldown(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 1, 0, 0, time.UTC)
	cooldown := 60 * time.Second

	t.Run("never accessed", func(t *testing.T) {
		link := model.AccessLink{}
		limited, wait := InCooldown(&link, now, cooldown)
		if limited || wait != 0 {
			t.Fatalf("expected no cooldown, got limited=%v wait=%d", limited, wait)
		}
	})

	t.Run("one second before window ends", func(t *testing.T) {
		link := model.AccessLink{LastAccessedAt: timePtr(now.Add(-59 * time.Second))}
		limited, wait := InCooldown(&link, now, cooldown)
		if !limited {
			t.Fatal("expected cooldown at T+59s")
		}
		if wait != 1 {
			t.Fatalf("expected wait of 1s, got %d", wait)
		}
	})

	t.Run("fractional remainder rounds up", func(t *testing.T) {
		link := model.AccessLink{LastAccessedAt: timePtr(now.Add(-59*time.Second - 500*time.Millisecond))}
		limited, wait := InCooldown(&link, now, cooldown)
		if !limited || wait != 1 {
			t.Fatalf("expected limited with wait 1, got limited=%v wait=%d", limited, wait)
		}
	})

	t.Run("window boundary clears", func(t *testing.T) {
		link := model.AccessLink{LastAccessedAt: timePtr(now.Add(-60 * time.Second))}
		limited, _ := InCooldown(&link, now, cooldown)
		if limited {
			t.Fatal("expected no cooldown exactly at window end")
		}
	})

	t.Run("zero cooldown disables the window", func(t *testing.T) {
		link := model.AccessLink{LastAccessedAt: timePtr(now)}
		limited, _ := InCooldown(&link, now, 0)
		if limited {
			t.Fatal("expected cooldown disabled")
		}
	})
}
