package totp

import (
	"github.com/dutywise/dutywise/internal/totp/service"
	"go.uber.org/fx"
)

var Module = fx.Module("totp.service",
	fx.Provide(service.NewService),
)
