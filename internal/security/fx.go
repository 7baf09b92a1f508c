package security

import (
	"errors"
	"strings"

	"github.com/dutywise/dutywise/internal/clock"
	"github.com/dutywise/dutywise/internal/config"
	"github.com/dutywise/dutywise/internal/security/domain"
	"github.com/dutywise/dutywise/internal/security/ratelimit"
	"github.com/dutywise/dutywise/internal/security/service"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("security.service",
	fx.Provide(NewLimiter),
	fx.Provide(service.NewService),
)

// NewLimiter selects the limiter backend; Redis for multi-instance
// deployments, in-process otherwise.
func NewLimiter(cfg config.Config, clk clock.Clock) (domain.Limiter, error) {
	switch cfg.RateLimit.Backend {
	case "", "memory":
		return ratelimit.NewMemoryLimiter(clk), nil
	case "redis":
		addr := strings.TrimSpace(cfg.RateLimit.RedisAddr)
		if addr == "" {
			return nil, errors.New("rate limit redis addr is required")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		return ratelimit.NewRedisLimiter(client), nil
	default:
		return nil, errors.New("unsupported rate limit backend " + cfg.RateLimit.Backend)
	}
}
