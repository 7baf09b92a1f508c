// Package domain contains the canonical account record and the lifecycle
// state derivation used for every access decision.
package domain

import "time"

// SubscriptionStatus is the stored billing signal. Richer provider
// statuses collapse to these two values at the webhook boundary.
type SubscriptionStatus string

const (
	SubscriptionNone   SubscriptionStatus = "none"
	SubscriptionActive SubscriptionStatus = "active"
)

// LifecycleState is derived, never stored.
type LifecycleState string

const (
	StatePendingEmail        LifecycleState = "pending_email"
	StatePendingSubscription LifecycleState = "pending_subscription"
	StateActive              LifecycleState = "active"
)

// Account is the canonical identity+entitlement record. The primary key is
// the opaque identifier assigned by the identity provider.
type Account struct {
	ID                     string             `gorm:"primaryKey;type:text"`
	Email                  string             `gorm:"type:text;not null"`
	EmailConfirmedAt       *time.Time         `gorm:""`
	SubscriptionStatus     SubscriptionStatus `gorm:"type:text;not null;default:'none'"`
	BillingCustomerRef     *string            `gorm:"type:text;uniqueIndex"`
	BillingSubscriptionRef *string            `gorm:"type:text"`
	CurrentPeriodEnd       *time.Time         `gorm:""`
	TOTPEnabled            bool               `gorm:"column:totp_enabled;not null;default:false"`
	TOTPSecret             *string            `gorm:"column:totp_secret;type:text"`
	Version                int64              `gorm:"not null;default:0"`
	CreatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// Resolve computes the lifecycle state from stored fields alone. It is
// total: a missing account reads as pending_email. Email confirmation
// dominates the subscription signal.
func Resolve(acct *Account) LifecycleState {
	if acct == nil || acct.EmailConfirmedAt == nil {
		return StatePendingEmail
	}
	if acct.SubscriptionStatus == SubscriptionActive {
		return StateActive
	}
	return StatePendingSubscription
}

// State bundles the resolved lifecycle value with the conveniences the
// UI layer reads.
type State struct {
	Lifecycle              LifecycleState `json:"lifecycle_state"`
	CanAccessGatedFeatures bool           `json:"can_access_gated_features"`
	NeedsEmailVerification bool           `json:"needs_email_verification"`
	NeedsSubscription      bool           `json:"needs_subscription"`
}

// StateOf expands a lifecycle value into the full read model.
func StateOf(lifecycle LifecycleState) State {
	return State{
		Lifecycle:              lifecycle,
		CanAccessGatedFeatures: lifecycle == StateActive,
		NeedsEmailVerification: lifecycle == StatePendingEmail,
		NeedsSubscription:      lifecycle == StatePendingSubscription,
	}
}
