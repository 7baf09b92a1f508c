package migration

import (
	accountdomain "github.com/dutywise/dutywise/internal/account/domain"
	billingdomain "github.com/dutywise/dutywise/internal/billing/domain"
	"github.com/dutywise/dutywise/internal/config"
	securitydomain "github.com/dutywise/dutywise/internal/security/domain"
	totpdomain "github.com/dutywise/dutywise/internal/totp/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite has no migrate driver wired; let gorm build the schema.
			return conn.AutoMigrate(
				&accountdomain.Account{},
				&billingdomain.WebhookEvent{},
				&totpdomain.BackupCode{},
				&securitydomain.SecurityEvent{},
				&securitydomain.BlockedIP{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
