package cli

import (
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
)

// NewLogger builds the zap backed logger. The returned func flushes it.
func NewLogger(cfg *config.Config) (ectologger.Logger, func(), error) {
	var (
		zapLogger *zap.Logger
		err       error
	)

	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapConfig := zap.NewProductionConfig()
		level, levelErr := zap.ParseAtomicLevel(cfg.LogLevel)
		if levelErr != nil {
			return nil, nil, errors.Wrapf(levelErr, "invalid LOG_LEVEL %q", cfg.LogLevel)
		}
		zapConfig.Level = level
		zapLogger, err = zapConfig.Build()
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build logger")
	}

	zapLogger = zapLogger.With(zap.String("app", cfg.AppName), zap.String("version", cfg.Version))
	return zapadapter.NewZapEctoLogger(zapLogger, nil), func() { _ = zapLogger.Sync() }, nil
}
