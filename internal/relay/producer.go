package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"

	"github.com/transit-tracker/ingest/internal/config"
	"github.com/transit-tracker/ingest/internal/logging"
	"github.com/transit-tracker/ingest/internal/model"
)

const flushTimeoutMs = 5000

// messageProducer is the part of *kafka.Producer the relay uses
type messageProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// Producer publishes trip updates to Kafka and hands vehicle positions
// straight to the store. It satisfies realtime.Publisher.
type Producer struct {
	producer messageProducer
	topic    string
	store    Store
	logger   *slog.Logger
}

// NewProducer connects a Kafka producer to cfg.BootstrapServers
func NewProducer(cfg config.KafkaConfig, store Store, logger *slog.Logger) (*Producer, error) {
	kp, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	p := newProducer(kp, cfg.TripUpdatesTopic, store, logger)
	go p.logEvents(kp.Events())
	return p, nil
}

func newProducer(mp messageProducer, topic string, store Store, logger *slog.Logger) *Producer {
	return &Producer{
		producer: mp,
		topic:    topic,
		store:    store,
		logger:   logging.OrDefault(logger),
	}
}

// PublishTrips sends trips as one message keyed by a fresh event id and
// waits for the broker to acknowledge it.
func (p *Producer) PublishTrips(ctx context.Context, trips []model.Trip) error {
	id := uuid.New().String()
	payload, err := encodeMessage(id, trips, time.Now())
	if err != nil {
		return err
	}

	delivery := make(chan kafka.Event, 1)
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(id),
		Value:          payload,
	}, delivery)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case ev := <-delivery:
		if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery to %s failed: %w", p.topic, m.TopicPartition.Error)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	p.logger.Debug("trip updates relayed",
		slog.String("topic", p.topic),
		slog.String("event_id", id),
		slog.Int("trips", len(trips)))
	return nil
}

// PublishVehiclePositions bypasses Kafka
func (p *Producer) PublishVehiclePositions(_ context.Context, positions []model.VehiclePosition) error {
	p.store.UpdateVehiclePositions(positions)
	return nil
}

// Close flushes pending messages and closes the producer
func (p *Producer) Close() {
	if remaining := p.producer.Flush(flushTimeoutMs); remaining > 0 {
		p.logger.Warn("kafka producer closed with undelivered messages", slog.Int("remaining", remaining))
	}
	p.producer.Close()
}

func (p *Producer) logEvents(events chan kafka.Event) {
	for ev := range events {
		if kerr, ok := ev.(kafka.Error); ok {
			logging.LogError(p.logger, "kafka producer error", kerr)
		}
	}
}
