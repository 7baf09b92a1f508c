package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// EnsureAccount creates the row if absent and returns the stored
	// record. Concurrent callers racing on the same id all converge on
	// the single persisted row.
	EnsureAccount(ctx context.Context, db *gorm.DB, acct *Account) (*Account, error)
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Account, error)
	FindByCustomerRef(ctx context.Context, db *gorm.DB, ref string) (*Account, error)
	// UpdateFields applies a single atomic read-modify-write guarded by
	// the optimistic version counter.
	UpdateFields(ctx context.Context, db *gorm.DB, id string, version int64, fields map[string]any) error
	// MarkEmailConfirmed sets the confirmation timestamp once. Already
	// confirmed accounts are left untouched; the field is monotonic.
	MarkEmailConfirmed(ctx context.Context, db *gorm.DB, id string, at time.Time) error
}
