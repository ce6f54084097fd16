package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"account-graph-indexer/internal/infrastructure/config"
	"account-graph-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// IndexingEventType identifies an indexing event published to NATS
type IndexingEventType string

const (
	EventProgress IndexingEventType = "progress"
	EventFinished IndexingEventType = "finished"
	EventError    IndexingEventType = "error"
)

// IndexingEvent is the JSON payload published for every observer callback
type IndexingEvent struct {
	Type      IndexingEventType `json:"type"`
	Fraction  float64           `json:"fraction"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NATSProgressPublisher publishes indexing progress on the consumer's connection.
// It implements service.IndexingObserver.
type NATSProgressPublisher struct {
	consumer *NATSConsumer
	subject  string
	logger   *logger.Logger
	now      func() time.Time
}

// NewNATSProgressPublisher creates a new progress publisher
func NewNATSProgressPublisher(cfg *config.NATSConfig, consumer *NATSConsumer, logger *logger.Logger) *NATSProgressPublisher {
	return &NATSProgressPublisher{
		consumer: consumer,
		subject:  fmt.Sprintf("%s.progress", cfg.SubjectPrefix),
		logger:   logger.WithComponent("nats-publisher"),
		now:      time.Now,
	}
}

// UpdatedProgress publishes a progress event
func (p *NATSProgressPublisher) UpdatedProgress(fractionCompleted float64) {
	p.publish(IndexingEvent{Type: EventProgress, Fraction: fractionCompleted})
}

// FinishedIndexing publishes a finished event
func (p *NATSProgressPublisher) FinishedIndexing() {
	p.publish(IndexingEvent{Type: EventFinished, Fraction: 1})
}

// ErrorIndexing publishes an error event carrying the reason
func (p *NATSProgressPublisher) ErrorIndexing(err error) {
	p.publish(IndexingEvent{Type: EventError, Error: err.Error()})
}

func (p *NATSProgressPublisher) publish(event IndexingEvent) {
	conn := p.consumer.Conn()
	if conn == nil {
		return
	}

	event.Timestamp = p.now()
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal indexing event", zap.Error(err))
		return
	}
	if err := conn.Publish(p.subject, data); err != nil {
		p.logger.Warn("Failed to publish indexing event",
			zap.String("subject", p.subject),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}
