package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/transit-tracker/ingest/internal/config"
	"github.com/transit-tracker/ingest/internal/logging"
)

const readTimeout = 100 * time.Millisecond

// messageConsumer is the part of *kafka.Consumer the relay uses
type messageConsumer interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	Close() error
}

// Consumer reads trip-update messages and installs them with UpdateTrips
type Consumer struct {
	consumer messageConsumer
	topic    string
	store    Store
	logger   *slog.Logger
}

// NewConsumer joins cfg.GroupID on cfg.BootstrapServers
func NewConsumer(cfg config.KafkaConfig, store Store, logger *slog.Logger) (*Consumer, error) {
	kc, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapServers,
		"group.id":          cfg.GroupID,
		"auto.offset.reset": "latest",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	return newConsumer(kc, cfg.TripUpdatesTopic, store, logger), nil
}

func newConsumer(mc messageConsumer, topic string, store Store, logger *slog.Logger) *Consumer {
	return &Consumer{
		consumer: mc,
		topic:    topic,
		store:    store,
		logger:   logging.OrDefault(logger),
	}
}

// Run consumes until ctx is done, then closes the consumer. Read errors and
// undecodable messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	defer logging.SafeCloseWithLogging(c.consumer, c.logger, "kafka consumer")

	if err := c.consumer.SubscribeTopics([]string{c.topic}, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", c.topic, err)
	}
	c.logger.Info("kafka consumer subscribed", slog.String("topic", c.topic))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka consumer stopped")
			return nil
		default:
		}

		msg, err := c.consumer.ReadMessage(readTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			c.logger.Warn("kafka read failed", slog.String("error", err.Error()))
			continue
		}

		if err := c.handleMessage(msg); err != nil {
			logging.LogError(c.logger, "dropping relay message", err,
				slog.String("key", string(msg.Key)))
		}
	}
}

func (c *Consumer) handleMessage(msg *kafka.Message) error {
	decoded, err := decodeMessage(msg.Value)
	if err != nil {
		return err
	}

	c.store.UpdateTrips(decoded.Trips)
	c.logger.Debug("trip updates received",
		slog.String("event_id", decoded.ID),
		slog.Int("trips", len(decoded.Trips)),
		slog.Time("produced_at", time.UnixMilli(decoded.Timestamp)))
	return nil
}
