package service

import (
	"account-graph-indexer/internal/domain/service"
	"account-graph-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// LogObserver logs indexing progress
type LogObserver struct {
	logger *logger.Logger
}

// NewLogObserver creates an observer that writes indexing events to the log
func NewLogObserver(logger *logger.Logger) *LogObserver {
	return &LogObserver{logger: logger.WithComponent("indexing-observer")}
}

// UpdatedProgress logs progress at debug level
func (o *LogObserver) UpdatedProgress(fractionCompleted float64) {
	o.logger.Debug("Indexing progress", zap.Float64("fraction_completed", fractionCompleted))
}

// FinishedIndexing logs a finished pass
func (o *LogObserver) FinishedIndexing() {
	o.logger.Info("Indexing finished")
}

// ErrorIndexing logs the failure reason. Missing data is expected while records are still being fetched.
func (o *LogObserver) ErrorIndexing(err error) {
	if service.IsPreconditionError(err) {
		o.logger.Debug("Indexing skipped", zap.String("reason", err.Error()))
		return
	}
	o.logger.Info("Indexing stopped", zap.String("reason", err.Error()))
}
