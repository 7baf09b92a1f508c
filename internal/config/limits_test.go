package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStaticLimitsHolder(t *testing.T) {
	holder := NewStaticLimitsHolder(LimitsConfig{
		Actions: map[string]ActionLimit{
			"totp_verify": {Max: 10, Window: time.Minute},
		},
	})

	limit, ok := holder.Limit("totp_verify")
	assert.True(t, ok)
	assert.Equal(t, 10, limit.Max)
	assert.Equal(t, time.Minute, limit.Window)

	// Actions the config does not mention fall back to the defaults.
	limit, ok = holder.Limit("login_attempts")
	assert.True(t, ok)
	assert.Equal(t, 5, limit.Max)
	assert.Equal(t, 15*time.Minute, limit.Window)

	_, ok = holder.Limit("unheard_of")
	assert.False(t, ok)
}

func TestDefaultLimitsConfig(t *testing.T) {
	cfg := DefaultLimitsConfig()
	assert.NoError(t, validateLimits(cfg))

	for _, action := range []string{
		"email_verification",
		"login_attempts",
		"registration",
		"totp_verify",
		"backup_code",
	} {
		limit, ok := cfg.Actions[action]
		assert.True(t, ok, action)
		assert.Positive(t, limit.Max, action)
		assert.Positive(t, limit.Window, action)
	}
}

func TestValidateLimits(t *testing.T) {
	assert.Error(t, validateLimits(LimitsConfig{}))
	assert.Error(t, validateLimits(LimitsConfig{Actions: map[string]ActionLimit{
		"x": {Max: 0, Window: time.Minute},
	}}))
	assert.Error(t, validateLimits(LimitsConfig{Actions: map[string]ActionLimit{
		"x": {Max: 1, Window: 0},
	}}))
}
