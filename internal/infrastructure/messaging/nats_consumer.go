package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"account-graph-indexer/internal/domain/entity"
	"account-graph-indexer/internal/infrastructure/config"
	"account-graph-indexer/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// acknowledger settles a JetStream message after it has been handed off.
// *nats.Msg implements it.
type acknowledger interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// NATSConsumer receives account updates from NATS JetStream, falling back
// to a core NATS queue subscription when JetStream is unavailable
type NATSConsumer struct {
	mu      sync.Mutex
	conn    *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	config  *config.NATSConfig
	logger  *logger.Logger
	msgChan chan *entity.AccountUpdate
	closed  bool

	fetchCancel context.CancelFunc
	fetchWg     sync.WaitGroup
}

// NewNATSConsumer creates a new NATS consumer
func NewNATSConsumer(cfg *config.NATSConfig, logger *logger.Logger) *NATSConsumer {
	return &NATSConsumer{
		config:  cfg,
		logger:  logger.WithComponent("nats-consumer"),
		msgChan: make(chan *entity.AccountUpdate, cfg.MaxPendingMessages),
	}
}

// UpdatesSubject returns the subject account updates are consumed from
func (n *NATSConsumer) UpdatesSubject() string {
	return fmt.Sprintf("%s.updates", n.config.SubjectPrefix)
}

// Connect connects to NATS server and subscribes to account updates
func (n *NATSConsumer) Connect(ctx context.Context) error {
	if !n.config.Enabled {
		n.logger.Info("NATS is disabled, skipping connection")
		return nil
	}

	n.logger.Info("Connecting to NATS server", zap.String("url", n.config.URL))

	opts := []nats.Option{
		nats.Name("account-graph-indexer"),
		nats.Timeout(n.config.ConnectTimeout),
		nats.ReconnectWait(n.config.ReconnectDelay),
		nats.MaxReconnects(n.config.ReconnectAttempts),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			n.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.logger.Error("Failed to connect to NATS", zap.Error(err))
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.conn = conn

	// Try JetStream first, if not available fall back to core NATS
	js, err := conn.JetStream()
	if err != nil {
		n.logger.Warn("JetStream not available, using core NATS", zap.Error(err))
		return n.setupCoreNATSSubscription()
	}

	n.js = js
	return n.setupJetStreamSubscription()
}

// setupJetStreamSubscription binds a pull subscription to the durable consumer.
// Must be called with n.mu held.
func (n *NATSConsumer) setupJetStreamSubscription() error {
	subject := n.UpdatesSubject()
	durable := n.config.DurableConsumer

	n.logger.Info("Setting up JetStream subscription",
		zap.String("subject", subject),
		zap.String("stream", n.config.StreamName),
		zap.String("consumer", durable))

	sub, err := n.js.PullSubscribe(subject, durable, nats.Bind(n.config.StreamName, durable))
	if err != nil {
		n.logger.Warn("Failed to bind to durable consumer, falling back to core NATS", zap.Error(err))
		return n.setupCoreNATSSubscription()
	}
	n.sub = sub

	fetchCtx, cancel := context.WithCancel(context.Background())
	n.fetchCancel = cancel
	n.fetchWg.Add(1)
	go n.processJetStreamMessages(fetchCtx, sub)

	n.logger.Info("Subscribed to account updates via JetStream",
		zap.String("subject", subject),
		zap.String("consumer", durable))
	return nil
}

// processJetStreamMessages fetches batches until ctx is cancelled
func (n *NATSConsumer) processJetStreamMessages(ctx context.Context, sub *nats.Subscription) {
	defer n.fetchWg.Done()
	n.logger.Info("Starting JetStream message processing")

	batch := n.config.FetchBatchSize
	if batch <= 0 {
		batch = 10
	}
	maxWait := n.config.FetchMaxWait
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}

	for ctx.Err() == nil {
		fetchCtx, cancel := context.WithTimeout(ctx, maxWait)
		msgs, err := sub.Fetch(batch, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			n.logger.Error("Failed to fetch messages", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(n.config.ReconnectDelay):
			}
			continue
		}

		n.logger.Debug("Fetched messages from JetStream", zap.Int("count", len(msgs)))
		for _, msg := range msgs {
			n.dispatch(msg.Data, msg)
		}
	}

	n.logger.Info("Stopped JetStream message processing")
}

// setupCoreNATSSubscription sets up a core NATS queue subscription.
// Must be called with n.mu held.
func (n *NATSConsumer) setupCoreNATSSubscription() error {
	subject := n.UpdatesSubject()
	sub, err := n.conn.QueueSubscribe(subject, n.config.ConsumerGroup, n.handleMessage)
	if err != nil {
		n.conn.Close()
		n.conn = nil
		n.logger.Error("Failed to subscribe to subject", zap.Error(err))
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	n.sub = sub

	n.logger.Info("Subscribed to account updates via core NATS",
		zap.String("subject", subject),
		zap.String("queue_group", n.config.ConsumerGroup))
	return nil
}

// handleMessage handles a core NATS message. Core messages carry no delivery
// guarantee, so nothing is acknowledged.
func (n *NATSConsumer) handleMessage(msg *nats.Msg) {
	if err := n.dispatch(msg.Data, nil); err != nil && msg.Reply != "" {
		msg.Respond([]byte("ERROR: Failed to unmarshal"))
	}
}

// dispatch decodes an account update and hands it to the processing channel.
// With a non-nil ack the message is acked once enqueued, nak'd for
// redelivery when the channel is full, and terminated when undecodable.
func (n *NATSConsumer) dispatch(data []byte, ack acknowledger) error {
	var update entity.AccountUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		n.logger.Error("Failed to unmarshal account update", zap.Error(err))
		if ack != nil {
			n.settle(ack.Term, "term")
		}
		return err
	}

	n.logger.Debug("Received account update",
		zap.String("account", update.Account),
		zap.Int("effects", len(update.Effects)),
		zap.Int("operations", len(update.Operations)),
		zap.Int("transactions", len(update.Transactions)))

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		if ack != nil {
			n.settle(ack.Nak, "nak")
		}
		return nil
	}

	select {
	case n.msgChan <- &update:
		if ack != nil {
			n.settle(ack.Ack, "ack")
		}
	default:
		if ack != nil {
			n.logger.Warn("Message channel is full, requesting redelivery",
				zap.String("account", update.Account))
			n.settle(ack.Nak, "nak")
		} else {
			n.logger.Warn("Message channel is full, dropping account update",
				zap.String("account", update.Account))
		}
	}
	return nil
}

func (n *NATSConsumer) settle(fn func(opts ...nats.AckOpt) error, action string) {
	if err := fn(); err != nil {
		n.logger.Warn("Failed to settle JetStream message", zap.String("action", action), zap.Error(err))
	}
}

// Conn returns the underlying connection, nil when not connected
func (n *NATSConsumer) Conn() *nats.Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn
}

// Disconnect stops fetching, disconnects from NATS server and closes the
// message channel
func (n *NATSConsumer) Disconnect() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true

	if n.fetchCancel != nil {
		n.fetchCancel()
	}
	if n.sub != nil {
		n.sub.Unsubscribe()
		n.sub = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	close(n.msgChan)
	n.mu.Unlock()

	n.fetchWg.Wait()
	n.logger.Info("Disconnected from NATS")
	return nil
}

// IsConnected checks if connected to NATS
func (n *NATSConsumer) IsConnected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn != nil && n.conn.IsConnected()
}

// GetMessageChannel returns the message channel
func (n *NATSConsumer) GetMessageChannel() <-chan *entity.AccountUpdate {
	return n.msgChan
}
