package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/vpn-entitlements/internal/models"
)

func TestDeriveState(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires time.Time
		want    State
	}{
		{"far future", now.Add(10 * Day), StateActive},
		{"just above warn threshold", now.Add(p.WarnBefore + time.Minute), StateActive},
		{"exactly at warn threshold", now.Add(p.WarnBefore), StateWarning},
		{"one day left", now.Add(Day), StateWarning},
		{"expires now", now, StateExpired},
		{"inside grace", now.Add(-Day), StateExpired},
		{"grace elapsed exactly", now.Add(-p.GracePeriod), StateRevoked},
		{"long lapsed", now.Add(-30 * Day), StateRevoked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveState(tt.expires, now, p))
		})
	}
}

func TestPlanReconciliation(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	tests := []struct {
		name string
		sub  models.Subscription
		want Plan
	}{
		{
			name: "no expires_at",
			sub:  models.Subscription{UserID: 1},
			want: Plan{},
		},
		{
			name: "active and clean",
			sub:  models.Subscription{ExpiresAt: at(10 * Day)},
			want: Plan{State: StateActive},
		},
		{
			name: "active after credit clears warning",
			sub:  models.Subscription{ExpiresAt: at(10 * Day), WarnSent: true},
			want: Plan{State: StateActive, ClearWarning: true},
		},
		{
			name: "active after credit bypassing engine reactivates",
			sub:  models.Subscription{ExpiresAt: at(10 * Day), ExpiredSent: true, KeysRevoked: true},
			want: Plan{State: StateActive, Reactivate: true},
		},
		{
			name: "warning not yet sent",
			sub:  models.Subscription{ExpiresAt: at(Day)},
			want: Plan{State: StateWarning, SendWarning: true},
		},
		{
			name: "warning already sent",
			sub:  models.Subscription{ExpiresAt: at(Day), WarnSent: true},
			want: Plan{State: StateWarning},
		},
		{
			name: "warning with stale expiry bookkeeping",
			sub:  models.Subscription{ExpiresAt: at(Day), ExpiredSent: true},
			want: Plan{State: StateWarning, Reactivate: true, SendWarning: true},
		},
		{
			name: "expired not notified",
			sub:  models.Subscription{ExpiresAt: at(-time.Hour), WarnSent: true},
			want: Plan{State: StateExpired, SendExpired: true},
		},
		{
			name: "expired notified",
			sub:  models.Subscription{ExpiresAt: at(-time.Hour), ExpiredSent: true},
			want: Plan{State: StateExpired},
		},
		{
			name: "grace elapsed",
			sub:  models.Subscription{ExpiresAt: at(-3 * Day), ExpiredSent: true},
			want: Plan{State: StateRevoked, Revoke: true},
		},
		{
			name: "grace elapsed without expiry notice",
			sub:  models.Subscription{ExpiresAt: at(-3 * Day)},
			want: Plan{State: StateRevoked, SendExpired: true, Revoke: true},
		},
		{
			name: "already revoked",
			sub:  models.Subscription{ExpiresAt: at(-3 * Day), ExpiredSent: true, KeysRevoked: true},
			want: Plan{State: StateRevoked},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanReconciliation(tt.sub, now, p)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Empty(), got.Empty())
		})
	}
}
