// Package logger installs the process-wide zap logger. Deployed
// environments emit structured JSON; development environments switch to
// the console encoder so log lines stay readable next to gin's output.
package logger

import (
	"fmt"

	"github.com/dutywise/dutywise/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the logger from LOG_LEVEL and ENVIRONMENT and replaces the
// zap globals so libraries using zap.L pick it up.
func New(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg.EncoderConfig.TimeKey = "ts"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	log, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	log = log.With(zap.String("app", cfg.AppName))
	zap.ReplaceGlobals(log)
	return log, nil
}
