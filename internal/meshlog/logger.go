// Package meshlog builds the process-wide structured logger used by
// every crashmesh component. No package reaches for zap's global
// logger directly; a *zap.SugaredLogger is constructed once in main
// and threaded through constructors, the same shape the teacher repo
// threads its ShardRegistry and HealthMonitor through server/Node.
package meshlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style JSON logger scoped to the given node
// id, or a development console logger when dev is true.
func New(nodeID string, dev bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar().With("node_id", nodeID), nil
}

// Nop returns a logger that discards everything, for tests that don't
// care about log output.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
