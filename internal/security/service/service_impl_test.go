package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dutywise/dutywise/internal/clock"
	"github.com/dutywise/dutywise/internal/config"
	"github.com/dutywise/dutywise/internal/security/domain"
	"github.com/dutywise/dutywise/internal/security/ratelimit"
)

type securityFixture struct {
	svc domain.Service
	db  *gorm.DB
	clk *clock.FakeClock
}

func newSecurityFixture(t *testing.T) *securityFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.SecurityEvent{}, &domain.BlockedIP{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Limiter: ratelimit.NewMemoryLimiter(clk),
		Limits:  config.NewStaticLimitsHolder(config.DefaultLimitsConfig()),
	})
	return &securityFixture{svc: svc, db: db, clk: clk}
}

func TestCheckEnforcesActionLimit(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()

	// login_attempts allows 5 per 15 minutes.
	for i := 0; i < 5; i++ {
		result, err := f.svc.Check(ctx, "acct_1", domain.ActionLoginAttempts, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := f.svc.Check(ctx, "acct_1", domain.ActionLoginAttempts, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.False(t, result.ResetAt.IsZero())

	// Another identifier and another action keep their own windows.
	result, err = f.svc.Check(ctx, "acct_2", domain.ActionLoginAttempts, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = f.svc.Check(ctx, "acct_1", domain.ActionTOTPVerify, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	// The window slides.
	f.clk.Advance(16 * time.Minute)
	result, err = f.svc.Check(ctx, "acct_1", domain.ActionLoginAttempts, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestCheckUnknownAction(t *testing.T) {
	f := newSecurityFixture(t)

	_, err := f.svc.Check(context.Background(), "acct_1", "unheard_of", "10.0.0.1")
	assert.ErrorIs(t, err, domain.ErrUnknownAction)

	_, err = f.svc.Check(context.Background(), "", domain.ActionLoginAttempts, "10.0.0.1")
	assert.ErrorIs(t, err, domain.ErrUnknownAction)
}

func TestCheckDeniesBlockedIP(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.BlockIP(ctx, "10.0.0.9", "excessive_attempts", time.Hour))

	result, err := f.svc.Check(ctx, "acct_1", domain.ActionLoginAttempts, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, f.clk.Now().Add(time.Hour), result.ResetAt.UTC())

	// The block expires with its TTL.
	f.clk.Advance(time.Hour + time.Minute)
	blocked, err := f.svc.IsBlocked(ctx, "10.0.0.9")
	require.NoError(t, err)
	assert.False(t, blocked)

	result, err = f.svc.Check(ctx, "acct_1", domain.ActionLoginAttempts, "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestBlockIPValidation(t *testing.T) {
	f := newSecurityFixture(t)

	err := f.svc.BlockIP(context.Background(), "10.0.0.1", "reason", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidBlockTTL)

	// Re-blocking extends the entry instead of failing on the key.
	require.NoError(t, f.svc.BlockIP(context.Background(), "10.0.0.1", "first", time.Minute))
	require.NoError(t, f.svc.BlockIP(context.Background(), "10.0.0.1", "second", time.Hour))

	var entry domain.BlockedIP
	require.NoError(t, f.db.Where("ip = ?", "10.0.0.1").First(&entry).Error)
	assert.Equal(t, "second", entry.Reason)
	assert.Equal(t, f.clk.Now().Add(time.Hour), entry.ExpiresAt.UTC())
}

func TestLogAppendsEvent(t *testing.T) {
	f := newSecurityFixture(t)
	ip := "10.0.0.1"

	err := f.svc.Log(context.Background(), domain.SecurityEvent{
		EventType:  domain.ActionLoginAttempts,
		Identifier: "acct_1",
		IP:         &ip,
		Success:    false,
	})
	require.NoError(t, err)

	var stored domain.SecurityEvent
	require.NoError(t, f.db.First(&stored).Error)
	assert.NotZero(t, stored.ID)
	assert.Equal(t, domain.RiskLow, stored.RiskLevel)
	assert.Equal(t, f.clk.Now(), stored.CreatedAt.UTC())

	err = f.svc.Log(context.Background(), domain.SecurityEvent{Identifier: "acct_1"})
	assert.ErrorIs(t, err, domain.ErrInvalidEventType)
}

func TestDetectSuspiciousExcessiveAttempts(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()
	ip := "10.0.0.1"

	for i := 0; i < 7; i++ {
		require.NoError(t, f.svc.Log(ctx, domain.SecurityEvent{
			EventType:  domain.ActionTOTPVerify,
			Identifier: "acct_1",
			IP:         &ip,
		}))
	}

	report, err := f.svc.DetectSuspicious(ctx, "acct_1")
	require.NoError(t, err)
	assert.False(t, report.Suspicious)

	// The eighth attempt in 24 hours crosses the line.
	require.NoError(t, f.svc.Log(ctx, domain.SecurityEvent{
		EventType:  domain.ActionTOTPVerify,
		Identifier: "acct_1",
		IP:         &ip,
	}))

	report, err = f.svc.DetectSuspicious(ctx, "acct_1")
	require.NoError(t, err)
	assert.True(t, report.Suspicious)
	assert.True(t, report.ShouldBlock)
	assert.Equal(t, "excessive_attempts", report.Reason)

	// Old events age out of the window.
	f.clk.Advance(25 * time.Hour)
	report, err = f.svc.DetectSuspicious(ctx, "acct_1")
	require.NoError(t, err)
	assert.False(t, report.Suspicious)
}

func TestDetectSuspiciousMultipleIPs(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		addr := ip
		require.NoError(t, f.svc.Log(ctx, domain.SecurityEvent{
			EventType:  domain.ActionLoginAttempts,
			Identifier: "acct_1",
			IP:         &addr,
		}))
	}

	// Three distinct IPs is advisory, not a block.
	report, err := f.svc.DetectSuspicious(ctx, "acct_1")
	require.NoError(t, err)
	assert.True(t, report.Suspicious)
	assert.False(t, report.ShouldBlock)
	assert.Equal(t, "multiple_ips", report.Reason)
}
