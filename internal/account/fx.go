package account

import (
	"github.com/dutywise/dutywise/internal/account/repository"
	"github.com/dutywise/dutywise/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
