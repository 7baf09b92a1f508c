package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/dutywise/dutywise/internal/account/domain"
	"github.com/dutywise/dutywise/internal/billing/domain"
	"github.com/dutywise/dutywise/internal/clock"
	"github.com/dutywise/dutywise/internal/config"
	"github.com/dutywise/dutywise/internal/notify"
	securitydomain "github.com/dutywise/dutywise/internal/security/domain"
	pkgdb "github.com/dutywise/dutywise/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account writes retry a few times on optimistic-version conflicts;
// transitions are absolute so a retry converges.
const maxUpdateAttempts = 3

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Accounts accountdomain.Repository
	Security securitydomain.Service
	Notifier notify.Provider
	Cfg      config.Config
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	accounts  accountdomain.Repository
	security  securitydomain.Service
	notifier  notify.Provider
	secret    string
	tolerance time.Duration
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("billing.webhook"),
		genID:     p.GenID,
		clock:     p.Clock,
		accounts:  p.Accounts,
		security:  p.Security,
		notifier:  p.Notifier,
		secret:    p.Cfg.BillingWebhookSecret,
		tolerance: time.Duration(p.Cfg.BillingWebhookTolerance) * time.Second,
	}
}

type notification struct {
	kind  string
	email string
}

func (s *Service) Process(ctx context.Context, payload []byte, headers http.Header) (domain.Result, error) {
	now := s.clock.Now()

	if err := verifySignature(s.secret, payload, headers.Get(SignatureHeader), now, s.tolerance); err != nil {
		s.log.Warn("webhook signature rejected", zap.Error(err))
		return domain.Result{}, domain.ErrInvalidSignature
	}

	// After a valid signature the provider always gets a 2xx. A payload
	// that cannot parse now will not parse on retry either.
	event, err := parseEvent(payload, now)
	if err != nil {
		s.log.Error("webhook payload unparsable", zap.Error(err))
		return domain.Skipped(domain.SkipInvalidPayload), nil
	}

	var result domain.Result
	var pending *notification

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := &domain.WebhookEvent{
			ID:              s.genID.Generate(),
			ProviderEventID: event.ProviderEventID,
			EventType:       event.Type,
			Payload:         event.RawPayload,
			OccurredAt:      event.OccurredAt,
			ReceivedAt:      now,
		}
		if event.BillingCustomerRef != "" {
			ref := event.BillingCustomerRef
			record.BillingCustomerRef = &ref
		}

		if err := tx.Create(record).Error; err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				result = domain.Skipped(domain.SkipAlreadyProcessed)
				// Stop the transaction; the duplicate row stays untouched.
				return errAlreadyProcessed
			}
			return err
		}

		result, pending, err = s.applyTransition(ctx, tx, event)
		if err != nil {
			return err
		}

		processedAt := s.clock.Now()
		updates := map[string]any{
			"outcome":      result.Outcome,
			"processed_at": processedAt,
		}
		if result.Reason != "" {
			updates["skip_reason"] = result.Reason
		}
		return tx.Model(&domain.WebhookEvent{}).
			Where("id = ?", record.ID).
			Updates(updates).Error
	})
	if txErr != nil && !errors.Is(txErr, errAlreadyProcessed) {
		return domain.Result{}, txErr
	}

	s.audit(ctx, event, result)

	if pending != nil {
		go s.dispatch(*pending)
	}

	return result, nil
}

var errAlreadyProcessed = errors.New("event already processed")

func (s *Service) applyTransition(ctx context.Context, tx *gorm.DB, event *domain.Event) (domain.Result, *notification, error) {
	switch event.Type {
	case domain.EventCheckoutCompleted,
		domain.EventSubscriptionCreated,
		domain.EventSubscriptionUpdated,
		domain.EventSubscriptionDeleted,
		domain.EventInvoicePaid,
		domain.EventInvoicePaymentFailed:
	default:
		return domain.Skipped(domain.SkipIgnoredEventType), nil, nil
	}

	acct, err := s.mapAccount(ctx, tx, event)
	if err != nil {
		if errors.Is(err, accountdomain.ErrAccountNotFound) {
			s.log.Error("webhook event has no mappable account",
				zap.String("event_id", event.ProviderEventID),
				zap.String("event_type", event.Type),
				zap.String("customer_ref", event.BillingCustomerRef))
			return domain.Skipped(domain.SkipAccountNotMappable), nil, nil
		}
		return domain.Result{}, nil, err
	}

	fields, pending, skip := transitionFields(acct, event)
	if skip != "" {
		return domain.Skipped(skip), nil, nil
	}

	if err := s.updateWithRetry(ctx, tx, acct, fields); err != nil {
		return domain.Result{}, nil, err
	}

	if pending != nil {
		pending.email = acct.Email
	}
	return domain.Applied(), pending, nil
}

// transitionFields computes the absolute field overwrites for an event.
// No deltas: reprocessing or reordering converges on the latest observed
// provider truth.
func transitionFields(acct *accountdomain.Account, event *domain.Event) (map[string]any, *notification, string) {
	switch event.Type {
	case domain.EventCheckoutCompleted:
		fields := map[string]any{
			"subscription_status":      accountdomain.SubscriptionActive,
			"billing_subscription_ref": nullableText(event.SubscriptionRef),
			"current_period_end":       event.CurrentPeriodEnd,
		}
		if event.BillingCustomerRef != "" {
			fields["billing_customer_ref"] = event.BillingCustomerRef
		}
		return fields, &notification{kind: "subscription_confirmed"}, ""

	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated:
		if providerStatusActive(event.SubscriptionStatus) {
			return map[string]any{
				"subscription_status":      accountdomain.SubscriptionActive,
				"billing_subscription_ref": nullableText(event.SubscriptionRef),
				"current_period_end":       event.CurrentPeriodEnd,
			}, nil, ""
		}
		return deactivationFields(), nil, ""

	case domain.EventSubscriptionDeleted:
		return deactivationFields(), &notification{kind: "subscription_canceled"}, ""

	case domain.EventInvoicePaid:
		if acct.SubscriptionStatus == accountdomain.SubscriptionActive {
			return nil, nil, domain.SkipNoChange
		}
		fields := map[string]any{
			"subscription_status": accountdomain.SubscriptionActive,
		}
		if event.SubscriptionRef != "" {
			fields["billing_subscription_ref"] = event.SubscriptionRef
		}
		if event.CurrentPeriodEnd != nil {
			fields["current_period_end"] = event.CurrentPeriodEnd
		}
		return fields, nil, ""

	case domain.EventInvoicePaymentFailed:
		if event.PaymentRetryAhead {
			return nil, nil, domain.SkipRetryPending
		}
		return deactivationFields(), &notification{kind: "subscription_canceled"}, ""
	}

	return nil, nil, domain.SkipIgnoredEventType
}

// deactivationFields clears the subscription signal. The customer ref is
// kept so later provider events still map to the account.
func deactivationFields() map[string]any {
	return map[string]any{
		"subscription_status":      accountdomain.SubscriptionNone,
		"billing_subscription_ref": nil,
		"current_period_end":       nil,
	}
}

func (s *Service) mapAccount(ctx context.Context, tx *gorm.DB, event *domain.Event) (*accountdomain.Account, error) {
	if event.BillingCustomerRef != "" {
		acct, err := s.accounts.FindByCustomerRef(ctx, tx, event.BillingCustomerRef)
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, accountdomain.ErrAccountNotFound) {
			return nil, err
		}
	}

	// On checkout completion the customer ref is being created for the
	// first time; the session metadata carries the account id.
	if event.Type == domain.EventCheckoutCompleted && event.AccountIDHint != "" {
		return s.accounts.FindByID(ctx, tx, event.AccountIDHint)
	}

	return nil, accountdomain.ErrAccountNotFound
}

func (s *Service) updateWithRetry(ctx context.Context, tx *gorm.DB, acct *accountdomain.Account, fields map[string]any) error {
	current := acct
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.accounts.UpdateFields(ctx, tx, current.ID, current.Version, fields)
		if err == nil {
			return nil
		}
		if !errors.Is(err, accountdomain.ErrVersionConflict) {
			return err
		}
		current, err = s.accounts.FindByID(ctx, tx, current.ID)
		if err != nil {
			return err
		}
	}
	return accountdomain.ErrVersionConflict
}

func (s *Service) audit(ctx context.Context, event *domain.Event, result domain.Result) {
	identifier := event.BillingCustomerRef
	if identifier == "" {
		identifier = event.ProviderEventID
	}
	logErr := s.security.Log(ctx, securitydomain.SecurityEvent{
		EventType:  "billing_webhook",
		Identifier: identifier,
		Success:    result.Outcome == domain.OutcomeApplied,
		RiskLevel:  securitydomain.RiskLow,
		Metadata: datatypes.JSONMap{
			"event_type": event.Type,
			"event_id":   event.ProviderEventID,
			"outcome":    result.Outcome,
			"reason":     result.Reason,
		},
	})
	if logErr != nil {
		s.log.Warn("failed to audit webhook delivery", zap.Error(logErr))
	}
}

// dispatch delivers the notification outside the request path. Failures
// are logged and never affect the committed transition.
func (s *Service) dispatch(n notification) {
	if n.email == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var subject, body string
	switch n.kind {
	case "subscription_confirmed":
		subject = "Your subscription is active"
		body = "<p>Your Dutywise subscription is now active. Welcome aboard.</p>"
	case "subscription_canceled":
		subject = "Your subscription has ended"
		body = "<p>Your Dutywise subscription has ended. You can resubscribe at any time.</p>"
	default:
		return
	}

	if err := s.notifier.Send(ctx, []string{n.email}, subject, body); err != nil {
		s.log.Warn("notification delivery failed",
			zap.String("kind", n.kind),
			zap.Error(err))
	}
}

func providerStatusActive(status string) bool {
	switch status {
	case "active", "trialing":
		return true
	default:
		return false
	}
}

func nullableText(value string) any {
	if value == "" {
		return nil
	}
	return value
}
