// Package zaplog adapts a zap logger to the ledger operation callback.
package zaplog

import (
	"context"

	"github.com/EcoCampusLab/gamify/pkg/ledger"
	"go.uber.org/zap"
)

// OperationLogger emits one structured log line per ledger operation.
type OperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger wraps logger. A nil logger falls back to zap.NewNop.
func NewOperationLogger(logger *zap.Logger) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger}
}

func (adapter *OperationLogger) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.Int64("points", entry.Points),
		zap.String("source", entry.Source.String()),
		zap.String("related_id", entry.RelatedID),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("ledger operation failed", fields...)
		return
	}
	adapter.logger.Info("ledger operation", fields...)
}
