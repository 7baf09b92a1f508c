package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dutywise/dutywise/internal/clock"
	"github.com/dutywise/dutywise/internal/config"
	"github.com/dutywise/dutywise/internal/security/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	suspicionWindow       = 24 * time.Hour
	suspiciousAttempts    = 8
	suspiciousDistinctIPs = 3
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Limiter domain.Limiter
	Limits  *config.LimitsHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	limiter domain.Limiter
	limits  *config.LimitsHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("security.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		limiter: p.Limiter,
		limits:  p.Limits,
	}
}

func (s *Service) Check(ctx context.Context, identifier, action, ip string) (domain.CheckResult, error) {
	identifier = strings.TrimSpace(identifier)
	action = strings.TrimSpace(action)
	if identifier == "" || action == "" {
		return domain.CheckResult{}, domain.ErrUnknownAction
	}

	if ip != "" {
		blocked, expiresAt, err := s.blockedUntil(ctx, ip)
		if err != nil {
			return domain.CheckResult{}, err
		}
		if blocked {
			return domain.CheckResult{Allowed: false, Remaining: 0, ResetAt: expiresAt}, nil
		}
	}

	limit, ok := s.limits.Limit(action)
	if !ok {
		return domain.CheckResult{}, domain.ErrUnknownAction
	}

	result, err := s.limiter.Allow(ctx, identifier+":"+action, limit.Max, limit.Window)
	if err != nil {
		return domain.CheckResult{}, err
	}

	return domain.CheckResult{
		Allowed:   result.Allowed,
		Remaining: result.Remaining,
		ResetAt:   result.ResetAt,
	}, nil
}

func (s *Service) Log(ctx context.Context, event domain.SecurityEvent) error {
	event.EventType = strings.TrimSpace(event.EventType)
	if event.EventType == "" {
		return domain.ErrInvalidEventType
	}
	if event.ID == 0 {
		event.ID = s.genID.Generate()
	}
	if event.RiskLevel == "" {
		event.RiskLevel = domain.RiskLow
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.clock.Now()
	}

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.log.Warn("failed to append security event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) DetectSuspicious(ctx context.Context, identifier string) (domain.SuspicionReport, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.SuspicionReport{}, nil
	}

	since := s.clock.Now().Add(-suspicionWindow)

	var attempts int64
	err := s.db.WithContext(ctx).Model(&domain.SecurityEvent{}).
		Where("identifier = ? AND created_at > ?", identifier, since).
		Count(&attempts).Error
	if err != nil {
		return domain.SuspicionReport{}, err
	}
	if attempts >= suspiciousAttempts {
		return domain.SuspicionReport{
			Suspicious:  true,
			Reason:      "excessive_attempts",
			ShouldBlock: true,
		}, nil
	}

	var distinctIPs int64
	err = s.db.WithContext(ctx).Model(&domain.SecurityEvent{}).
		Where("identifier = ? AND created_at > ? AND ip IS NOT NULL", identifier, since).
		Distinct("ip").
		Count(&distinctIPs).Error
	if err != nil {
		return domain.SuspicionReport{}, err
	}
	if distinctIPs >= suspiciousDistinctIPs {
		return domain.SuspicionReport{
			Suspicious:  true,
			Reason:      "multiple_ips",
			ShouldBlock: false,
		}, nil
	}

	return domain.SuspicionReport{}, nil
}

func (s *Service) BlockIP(ctx context.Context, ip, reason string, ttl time.Duration) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return errors.New("blocked ip is empty")
	}
	if ttl <= 0 {
		return domain.ErrInvalidBlockTTL
	}

	entry := domain.BlockedIP{
		IP:        ip,
		Reason:    strings.TrimSpace(reason),
		ExpiresAt: s.clock.Now().Add(ttl),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entry).Error
}

func (s *Service) IsBlocked(ctx context.Context, ip string) (bool, error) {
	blocked, _, err := s.blockedUntil(ctx, ip)
	return blocked, err
}

func (s *Service) blockedUntil(ctx context.Context, ip string) (bool, time.Time, error) {
	var entry domain.BlockedIP
	err := s.db.WithContext(ctx).
		Where("ip = ? AND expires_at > ?", strings.TrimSpace(ip), s.clock.Now()).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, err
	}
	return true, entry.ExpiresAt, nil
}
