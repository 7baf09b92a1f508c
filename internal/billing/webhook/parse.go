package webhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dutywise/dutywise/internal/billing/domain"
)

type providerEnvelope struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Created int64             `json:"created"`
	Data    providerEventData `json:"data"`
}

type providerEventData struct {
	Object json.RawMessage `json:"object"`
}

type providerCheckoutSession struct {
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type providerSubscription struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

type providerInvoice struct {
	Customer           string `json:"customer"`
	Subscription       string `json:"subscription"`
	PeriodEnd          int64  `json:"period_end"`
	NextPaymentAttempt int64  `json:"next_payment_attempt"`
}

// parseEvent maps a verified payload into the canonical event. Unknown
// event types come back with only the envelope filled in; the processor
// skips them.
func parseEvent(payload []byte, now time.Time) (*domain.Event, error) {
	var envelope providerEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(envelope.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	event := &domain.Event{
		ProviderEventID: envelope.ID,
		Type:            strings.TrimSpace(envelope.Type),
		OccurredAt:      timestamp(envelope.Created, now),
		RawPayload:      payload,
	}

	switch event.Type {
	case domain.EventCheckoutCompleted:
		var session providerCheckoutSession
		if err := json.Unmarshal(envelope.Data.Object, &session); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		event.BillingCustomerRef = strings.TrimSpace(session.Customer)
		event.SubscriptionRef = strings.TrimSpace(session.Subscription)
		event.SubscriptionStatus = "active"
		event.AccountIDHint = strings.TrimSpace(session.Metadata["account_id"])

	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var sub providerSubscription
		if err := json.Unmarshal(envelope.Data.Object, &sub); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		event.BillingCustomerRef = strings.TrimSpace(sub.Customer)
		event.SubscriptionRef = strings.TrimSpace(sub.ID)
		event.SubscriptionStatus = strings.ToLower(strings.TrimSpace(sub.Status))
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			event.CurrentPeriodEnd = &end
		}

	case domain.EventInvoicePaid, domain.EventInvoicePaymentFailed:
		var invoice providerInvoice
		if err := json.Unmarshal(envelope.Data.Object, &invoice); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		event.BillingCustomerRef = strings.TrimSpace(invoice.Customer)
		event.SubscriptionRef = strings.TrimSpace(invoice.Subscription)
		event.PaymentRetryAhead = invoice.NextPaymentAttempt > 0
		if invoice.PeriodEnd > 0 {
			end := time.Unix(invoice.PeriodEnd, 0).UTC()
			event.CurrentPeriodEnd = &end
		}
	}

	return event, nil
}

func timestamp(unix int64, fallback time.Time) time.Time {
	if unix == 0 {
		return fallback.UTC()
	}
	return time.Unix(unix, 0).UTC()
}
