package client

import (
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newClientLogger derives the per-client logger from base.
// Quiet mode raises the level to Warn so routine lifecycle logs are dropped.
func newClientLogger(base *logging.ColoredLogger, cfg *ClientConfig, id string) *logging.ColoredLogger {
	if base == nil {
		base = logging.NewNopLogger()
	}
	l := base.With(zap.String("client", cfg.Name), zap.String("client_id", id))
	if cfg.QuietMode {
		l = l.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
	}
	return l
}
