package billing

import (
	"github.com/dutywise/dutywise/internal/billing/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.webhook",
	fx.Provide(webhook.NewService),
)
