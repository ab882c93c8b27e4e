// Package logging builds the zap logger shared by every component.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for env. "prod" and "production" select JSON output at
// info level; anything else gets the console encoder at debug level.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if IsProduction(env) {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

// IsProduction reports whether env names a production environment.
func IsProduction(env string) bool {
	env = strings.TrimSpace(env)
	return strings.EqualFold(env, "prod") || strings.EqualFold(env, "production")
}
