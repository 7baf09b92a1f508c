// Package domain contains the security audit log, the blocked-IP
// deny-list and the rate-limiter contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Tracked actions. Thresholds per action come from the limits config.
const (
	ActionEmailVerification = "email_verification"
	ActionLoginAttempts     = "login_attempts"
	ActionRegistration      = "registration"
	ActionTOTPVerify        = "totp_verify"
	ActionBackupCode        = "backup_code"
)

// Risk levels recorded on security events.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// SecurityEvent is an append-only audit record. The application never
// mutates or deletes rows; retention is an operational concern.
type SecurityEvent struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	EventType  string            `gorm:"type:text;not null"`
	Identifier string            `gorm:"type:text;not null;index:idx_security_events_identifier_created_at"`
	IP         *string           `gorm:"type:text"`
	UserAgent  *string           `gorm:"type:text"`
	Success    bool              `gorm:"not null;default:false"`
	RiskLevel  string            `gorm:"type:text;not null;default:'low'"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_security_events_identifier_created_at"`
}

// TableName sets the database table name.
func (SecurityEvent) TableName() string { return "security_events" }

// BlockedIP is a TTL-expiring deny-list entry.
type BlockedIP struct {
	IP        string    `gorm:"primaryKey;type:text"`
	Reason    string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (BlockedIP) TableName() string { return "blocked_ips" }

// LimitResult reports one atomic check-and-record outcome.
type LimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// CheckResult is the rate-limit decision surfaced to callers.
type CheckResult struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// SuspicionReport flags identifiers accumulating abnormal activity.
type SuspicionReport struct {
	Suspicious  bool   `json:"suspicious"`
	Reason      string `json:"reason,omitempty"`
	ShouldBlock bool   `json:"should_block"`
}
