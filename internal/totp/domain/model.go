// Package domain contains the TOTP enrollment types and backup codes.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BackupCode is a single-use second-factor bypass credential. Codes are
// stored as bcrypt hashes; the plaintext is shown once at issuance.
type BackupCode struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	AccountID string       `gorm:"type:text;not null;index"`
	BatchID   snowflake.ID `gorm:"not null"`
	CodeHash  string       `gorm:"type:text;not null"`
	UsedAt    *time.Time   `gorm:""`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BackupCode) TableName() string { return "backup_codes" }

// Enrollment is a candidate secret awaiting proof of possession. Nothing
// is persisted until Enable succeeds.
type Enrollment struct {
	Secret     string `json:"secret"`
	OtpauthURI string `json:"otpauth_uri"`
}
