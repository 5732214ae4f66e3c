package literecord

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger: development config (console, stdout)
// when cfg.Development is set, production JSON otherwise.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(cfg.Level); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	var z zap.Config
	if cfg.Development {
		z = zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stdout"}
	} else {
		z = zap.NewProductionConfig()
	}
	z.Level = zap.NewAtomicLevelAt(level)

	logger, err := z.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}
