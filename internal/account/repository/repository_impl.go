package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dutywise/dutywise/internal/account/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureAccount(ctx context.Context, db *gorm.DB, acct *domain.Account) (*domain.Account, error) {
	if acct == nil || acct.ID == "" {
		return nil, domain.ErrInvalidAccount
	}

	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(acct).Error
	if err != nil {
		return nil, err
	}

	// Read back so a lost insert race still returns the winning row.
	return r.FindByID(ctx, db, acct.ID)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Account, error) {
	var acct domain.Account
	err := db.WithContext(ctx).Where("id = ?", id).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *repo) FindByCustomerRef(ctx context.Context, db *gorm.DB, ref string) (*domain.Account, error) {
	var acct domain.Account
	err := db.WithContext(ctx).Where("billing_customer_ref = ?", ref).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id string, version int64, fields map[string]any) error {
	updates := map[string]any{
		"version":    version + 1,
		"updated_at": time.Now().UTC(),
	}
	for key, value := range fields {
		if key == "" {
			continue
		}
		updates[key] = value
	}

	tx := db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, db, id); err != nil {
			return err
		}
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *repo) MarkEmailConfirmed(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	tx := db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ? AND email_confirmed_at IS NULL", id).
		Updates(map[string]any{
			"email_confirmed_at": at.UTC(),
			"version":            gorm.Expr("version + 1"),
			"updated_at":         time.Now().UTC(),
		})
	if tx.Error != nil {
		return tx.Error
	}
	// Zero rows means the account is already confirmed (or missing); the
	// confirmation timestamp never moves once set.
	return nil
}
