// Package scheduler runs the periodic maintenance jobs: expired deny-list
// entries are purged and old webhook deliveries are pruned once the
// provider's retry horizon has long passed.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/dutywise/dutywise/internal/billing/domain"
	"github.com/dutywise/dutywise/internal/clock"
	securitydomain "github.com/dutywise/dutywise/internal/security/domain"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Config Config `optional:"true"`
}

type Scheduler struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   Config
	clock clock.Clock
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:    p.DB,
		log:   p.Log.Named("scheduler"),
		cfg:   p.Config.withDefaults(),
		clock: p.Clock,
	}, nil
}

// Run blocks until the context is canceled, firing every job each tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one round of every maintenance job.
func (s *Scheduler) Tick(ctx context.Context) {
	s.runJob(ctx, "purge_expired_blocked_ips", s.PurgeExpiredBlockedIPs)
	s.runJob(ctx, "prune_webhook_deliveries", s.PruneWebhookDeliveries)
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int64, error)) {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	affected, err := fn(ctx)
	log := s.log.With(
		zap.String("job", name),
		zap.Int64("rows", affected),
		zap.Duration("elapsed", s.clock.Now().Sub(start)),
	)
	if err != nil {
		log.Error("scheduler job failed", zap.Error(err))
		return
	}
	log.Info("scheduler job done")
}

// PurgeExpiredBlockedIPs deletes deny-list entries whose TTL has lapsed.
// Reads already ignore expired rows; this keeps the table small.
func (s *Scheduler) PurgeExpiredBlockedIPs(ctx context.Context) (int64, error) {
	tx := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.clock.Now()).
		Delete(&securitydomain.BlockedIP{})
	return tx.RowsAffected, tx.Error
}

// PruneWebhookDeliveries removes resolved deliveries older than the
// retention horizon. Rows inside the horizon stay untouched so the
// provider-event-id dedup guarantee holds across provider retries.
func (s *Scheduler) PruneWebhookDeliveries(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.cfg.WebhookRetention)
	batch := s.db.Model(&billingdomain.WebhookEvent{}).
		Select("id").
		Where("received_at < ? AND processed_at IS NOT NULL", cutoff).
		Limit(s.cfg.DeliveryBatch)
	tx := s.db.WithContext(ctx).
		Where("id IN (?)", batch).
		Delete(&billingdomain.WebhookEvent{})
	return tx.RowsAffected, tx.Error
}
