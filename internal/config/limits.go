package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ActionLimit caps the number of attempts per sliding window for one action.
type ActionLimit struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// LimitsConfig holds per-action rate-limit thresholds.
type LimitsConfig struct {
	Actions map[string]ActionLimit `mapstructure:"actions"`
}

func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		Actions: map[string]ActionLimit{
			"email_verification": {Max: 3, Window: time.Hour},
			"login_attempts":     {Max: 5, Window: 15 * time.Minute},
			"registration":       {Max: 2, Window: 30 * time.Minute},
			"totp_verify":        {Max: 5, Window: 5 * time.Minute},
			"backup_code":        {Max: 3, Window: 15 * time.Minute},
		},
	}
}

// LimitsHolder exposes the current thresholds and swaps them atomically
// when the limits file changes on disk.
type LimitsHolder struct {
	current atomic.Value // holds LimitsConfig
}

func NewLimitsHolder() (*LimitsHolder, error) {
	v := viper.New()

	v.SetConfigName("limits")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/dutywise/config")
	v.AddConfigPath("/etc/dutywise")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DUTYWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &LimitsHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultLimitsConfig())
		return holder, nil
	}

	cfg, err := unmarshalLimits(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalLimits(v)
		if err != nil {
			log.Printf("[limits-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[limits-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticLimitsHolder wraps fixed thresholds, for tests.
func NewStaticLimitsHolder(cfg LimitsConfig) *LimitsHolder {
	holder := &LimitsHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *LimitsHolder) Get() LimitsConfig {
	return h.current.Load().(LimitsConfig)
}

// Limit returns the threshold for an action, falling back to the
// compiled-in defaults for actions the file does not mention.
func (h *LimitsHolder) Limit(action string) (ActionLimit, bool) {
	if limit, ok := h.Get().Actions[action]; ok {
		return limit, true
	}
	limit, ok := DefaultLimitsConfig().Actions[action]
	return limit, ok
}

func unmarshalLimits(v *viper.Viper) (LimitsConfig, error) {
	var cfg LimitsConfig
	if err := v.UnmarshalKey("limits", &cfg); err != nil {
		return LimitsConfig{}, err
	}
	if err := validateLimits(cfg); err != nil {
		return LimitsConfig{}, err
	}
	return cfg, nil
}

func validateLimits(cfg LimitsConfig) error {
	if len(cfg.Actions) == 0 {
		return errors.New("limits.actions cannot be empty")
	}
	for action, limit := range cfg.Actions {
		if limit.Max <= 0 {
			return errors.New("limits.actions." + action + ".max must be positive")
		}
		if limit.Window <= 0 {
			return errors.New("limits.actions." + action + ".window must be positive")
		}
	}
	return nil
}
