package domain

import (
	"context"
	"time"
)

type Service interface {
	// GenerateSecret returns a fresh candidate secret and otpauth URI.
	// Nothing is persisted; the caller must prove possession via Enable.
	GenerateSecret(ctx context.Context, label string) (*Enrollment, error)
	// VerifyCode checks a 6-digit code against a secret at a point in
	// time, accepting one 30-second step of drift on either side.
	// Malformed input is rejected before any cryptographic work.
	VerifyCode(secret, code string, at time.Time) bool
	// Enable persists the candidate secret after a successful code check
	// and issues a fresh backup-code batch, discarding any prior batch.
	// The plaintext codes are returned exactly once.
	Enable(ctx context.Context, accountID, secret, code string) ([]string, error)
	// Disable requires a valid current TOTP code (not a backup code),
	// then clears the secret, the flag and all backup codes.
	Disable(ctx context.Context, accountID, code string) error
	// ConsumeBackupCode claims an unused code atomically; concurrent
	// double consumption of the same code cannot both succeed.
	ConsumeBackupCode(ctx context.Context, accountID, code string) error
	// RegenerateBackupCodes invalidates every previous code unconditionally.
	RegenerateBackupCodes(ctx context.Context, accountID string) ([]string, error)
}
