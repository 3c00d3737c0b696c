package extensions

import (
	"context"
	"log/slog"
	"time"

	kinetic "github.com/kinetic-run/kinetic"
)

// LoggingExtension logs every resolve/update operation at debug level and
// every failure at error level, through a caller-supplied *slog.Logger.
type LoggingExtension struct {
	kinetic.BaseExtension
	logger *slog.Logger
}

// NewLoggingExtension creates a logging extension writing to logger.
func NewLoggingExtension(logger *slog.Logger) *LoggingExtension {
	return &LoggingExtension{
		BaseExtension: kinetic.NewBaseExtension("logging"),
		logger:        logger,
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *kinetic.Operation) (any, error) {
	start := time.Now()
	e.logger.Debug("operation starting", "op", string(op.Kind))
	result, err := next()

	duration := time.Since(start)
	if err != nil {
		e.logger.Error("operation failed", "op", string(op.Kind), "duration", duration, "error", err)
	} else {
		e.logger.Debug("operation completed", "op", string(op.Kind), "duration", duration)
	}

	return result, err
}

func (e *LoggingExtension) OnFlowStart(execCtx *kinetic.ExecutionCtx, flow kinetic.AnyFlow) error {
	e.logger.Debug("flow starting", "flow", flow.Name())
	return nil
}

func (e *LoggingExtension) OnFlowEnd(execCtx *kinetic.ExecutionCtx, result any, err error) error {
	if err != nil {
		e.logger.Error("flow ended with error", "error", err)
	} else {
		e.logger.Debug("flow ended")
	}
	return nil
}
