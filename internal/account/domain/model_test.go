package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	confirmed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		acct *Account
		want LifecycleState
	}{
		{
			name: "missing account",
			acct: nil,
			want: StatePendingEmail,
		},
		{
			name: "unconfirmed email",
			acct: &Account{SubscriptionStatus: SubscriptionNone},
			want: StatePendingEmail,
		},
		{
			name: "unconfirmed email dominates active subscription",
			acct: &Account{SubscriptionStatus: SubscriptionActive},
			want: StatePendingEmail,
		},
		{
			name: "confirmed without subscription",
			acct: &Account{EmailConfirmedAt: &confirmed, SubscriptionStatus: SubscriptionNone},
			want: StatePendingSubscription,
		},
		{
			name: "confirmed with active subscription",
			acct: &Account{EmailConfirmedAt: &confirmed, SubscriptionStatus: SubscriptionActive},
			want: StateActive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.acct))
		})
	}
}

func TestStateOf(t *testing.T) {
	active := StateOf(StateActive)
	assert.True(t, active.CanAccessGatedFeatures)
	assert.False(t, active.NeedsEmailVerification)
	assert.False(t, active.NeedsSubscription)

	pendingEmail := StateOf(StatePendingEmail)
	assert.False(t, pendingEmail.CanAccessGatedFeatures)
	assert.True(t, pendingEmail.NeedsEmailVerification)
	assert.False(t, pendingEmail.NeedsSubscription)

	pendingSub := StateOf(StatePendingSubscription)
	assert.False(t, pendingSub.CanAccessGatedFeatures)
	assert.False(t, pendingSub.NeedsEmailVerification)
	assert.True(t, pendingSub.NeedsSubscription)
}
