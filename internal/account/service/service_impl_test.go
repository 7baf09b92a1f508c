package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dutywise/dutywise/internal/account/domain"
	"github.com/dutywise/dutywise/internal/account/repository"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Account{}))

	return NewService(Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: repository.Provide(),
	})
}

func TestObserveCreatesPendingAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acct, err := svc.Observe(ctx, domain.Observation{
		AccountID: "acct_1",
		Email:     "ana@example.com",
	})
	require.NoError(t, err)
	assert.Nil(t, acct.EmailConfirmedAt)
	assert.Equal(t, domain.StatePendingEmail, domain.Resolve(acct))
}

func TestObserveWritesThroughConfirmation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Observe(ctx, domain.Observation{AccountID: "acct_1", Email: "ana@example.com"})
	require.NoError(t, err)

	confirmed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	acct, err := svc.Observe(ctx, domain.Observation{
		AccountID:        "acct_1",
		Email:            "ana@example.com",
		EmailConfirmedAt: &confirmed,
	})
	require.NoError(t, err)
	require.NotNil(t, acct.EmailConfirmedAt)
	assert.Equal(t, confirmed, acct.EmailConfirmedAt.UTC())
	assert.Equal(t, domain.StatePendingSubscription, domain.Resolve(acct))

	// A later, different confirmation timestamp must not move the stored one.
	later := confirmed.Add(72 * time.Hour)
	acct, err = svc.Observe(ctx, domain.Observation{
		AccountID:        "acct_1",
		Email:            "ana@example.com",
		EmailConfirmedAt: &later,
	})
	require.NoError(t, err)
	require.NotNil(t, acct.EmailConfirmedAt)
	assert.Equal(t, confirmed, acct.EmailConfirmedAt.UTC())
}

func TestStateOfMissingAccount(t *testing.T) {
	svc := newTestService(t)

	state, err := svc.State(context.Background(), "acct_never_seen")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePendingEmail, state.Lifecycle)
	assert.True(t, state.NeedsEmailVerification)
}

func TestObserveRejectsEmptyID(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Observe(context.Background(), domain.Observation{AccountID: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
}
