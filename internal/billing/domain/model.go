// Package domain contains the persisted webhook event record and the
// canonical parsed event applied to accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Provider event types handled by the processor.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// Outcomes recorded per delivery.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
)

// Skip reasons.
const (
	SkipAlreadyProcessed   = "already_processed"
	SkipInvalidPayload     = "invalid_payload"
	SkipIgnoredEventType   = "ignored_event_type"
	SkipAccountNotMappable = "account_not_mappable"
	SkipNoChange           = "no_change"
	SkipRetryPending       = "retry_pending"
)

// WebhookEvent is the immutable record of one provider delivery. The
// provider event id carries the dedup guarantee.
type WebhookEvent struct {
	ID                 snowflake.ID   `gorm:"primaryKey"`
	ProviderEventID    string         `gorm:"type:text;not null;uniqueIndex"`
	EventType          string         `gorm:"type:text;not null"`
	BillingCustomerRef *string        `gorm:"type:text"`
	Payload            datatypes.JSON `gorm:"type:jsonb;not null"`
	Outcome            string         `gorm:"type:text;not null"`
	SkipReason         *string        `gorm:"type:text"`
	OccurredAt         time.Time      `gorm:"not null"`
	ReceivedAt         time.Time      `gorm:"not null"`
	ProcessedAt        *time.Time     `gorm:""`
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "webhook_events" }

// Event is the canonical parsed form of a provider delivery.
type Event struct {
	ProviderEventID    string
	Type               string
	BillingCustomerRef string
	SubscriptionRef    string
	SubscriptionStatus string
	AccountIDHint      string // metadata fallback on checkout completion
	CurrentPeriodEnd   *time.Time
	PaymentRetryAhead  bool // provider scheduled another attempt
	OccurredAt         time.Time
	RawPayload         []byte
}

// Result is the outcome reported to the webhook endpoint.
type Result struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

func Applied() Result { return Result{Outcome: OutcomeApplied} }
func Skipped(reason string) Result { return Result{Outcome: OutcomeSkipped, Reason: reason} }
