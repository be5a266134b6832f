// Package logging builds the zap loggers used across netcall.
package logging

import (
	"netcall/config"

	"go.uber.org/zap"
)

// New builds a JSON production logger, or a console development logger when
// cfg.Development is set, at cfg.Level ("info" when empty).
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	levelText := cfg.Level
	if levelText == "" {
		levelText = "info"
	}
	level, err := zap.ParseAtomicLevel(levelText)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
