// Package logging builds the structured loggers every core component
// accepts via constructor injection (never a package-level singleton),
// per spec §9. Built on go.uber.org/zap.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style zap logger writing JSON at info level
// and above, or a development-style console logger when dev is true.
func New(dev bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, the same as the
// zap.NewNop default that components constructed without an explicit
// logger fall back to.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
