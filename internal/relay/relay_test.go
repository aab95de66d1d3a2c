package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transit-tracker/ingest/internal/model"
	"github.com/transit-tracker/ingest/internal/snapshot"
)

type fakeProducer struct {
	mu          sync.Mutex
	messages    []*kafka.Message
	deliveryErr error
	produceErr  error
	closed      bool
}

func (f *fakeProducer) Produce(msg *kafka.Message, delivery chan kafka.Event) error {
	if f.produceErr != nil {
		return f.produceErr
	}
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()

	reported := *msg
	reported.TopicPartition.Error = f.deliveryErr
	delivery <- &reported
	return nil
}

func (f *fakeProducer) Flush(int) int { return 0 }

func (f *fakeProducer) Close() { f.closed = true }

// fakeConsumer replays queued messages, then reports timeouts
type fakeConsumer struct {
	mu         sync.Mutex
	queue      []*kafka.Message
	subscribed []string
	closed     bool
}

func (f *fakeConsumer) SubscribeTopics(topics []string, _ kafka.RebalanceCb) error {
	f.subscribed = topics
	return nil
}

func (f *fakeConsumer) ReadMessage(timeout time.Duration) (*kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		time.Sleep(time.Millisecond)
		return nil, kafka.NewError(kafka.ErrTimedOut, "timed out", false)
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	return msg, nil
}

func (f *fakeConsumer) Close() error {
	f.closed = true
	return nil
}

func sampleTrips() []model.Trip {
	name := "King"
	return []model.Trip{{
		TripID:    "T1",
		RouteID:   "R1",
		RouteName: &name,
		StopTimeUpdates: []model.StopTimeUpdate{{
			StopSequence: 1,
			Arrival:      &model.StopTimeEvent{Time: 1000, Delay: 30},
		}},
	}}
}

func TestProducer_PublishTrips(t *testing.T) {
	fake := &fakeProducer{}
	repo := snapshot.New(1, nil)
	producer := newProducer(fake, "trip-updates", repo, nil)

	require.NoError(t, producer.PublishTrips(context.Background(), sampleTrips()))
	require.Len(t, fake.messages, 1)

	msg := fake.messages[0]
	assert.Equal(t, "trip-updates", *msg.TopicPartition.Topic)

	var decoded TripUpdateMessage
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, string(msg.Key), decoded.ID)
	assert.Equal(t, sampleTrips(), decoded.Trips)
	assert.InDelta(t, time.Now().UnixMilli(), decoded.Timestamp, float64(time.Minute.Milliseconds()))

	assert.Empty(t, repo.AllTrips(), "trips reach the repository through the consumer")
}

func TestProducer_DeliveryFailure(t *testing.T) {
	fake := &fakeProducer{deliveryErr: kafka.NewError(kafka.ErrMsgTimedOut, "message timed out", false)}
	producer := newProducer(fake, "trip-updates", snapshot.New(1, nil), nil)

	err := producer.PublishTrips(context.Background(), sampleTrips())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery to trip-updates failed")
}

func TestProducer_ProduceFailure(t *testing.T) {
	fake := &fakeProducer{produceErr: errors.New("queue full")}
	producer := newProducer(fake, "trip-updates", snapshot.New(1, nil), nil)

	err := producer.PublishTrips(context.Background(), nil)
	assert.ErrorContains(t, err, "queue full")
}

func TestProducer_VehiclePositionsGoDirect(t *testing.T) {
	fake := &fakeProducer{}
	repo := snapshot.New(1, nil)
	producer := newProducer(fake, "trip-updates", repo, nil)

	id := "V1"
	require.NoError(t, producer.PublishVehiclePositions(context.Background(), []model.VehiclePosition{{VehicleID: &id}}))
	assert.Len(t, repo.AllVehiclePositions(), 1)
	assert.Empty(t, fake.messages)

	producer.Close()
	assert.True(t, fake.closed)
}

func TestConsumer_HandleMessage(t *testing.T) {
	repo := snapshot.New(1, nil)
	consumer := newConsumer(&fakeConsumer{}, "trip-updates", repo, nil)

	payload, err := encodeMessage("evt-1", sampleTrips(), time.Now())
	require.NoError(t, err)

	require.NoError(t, consumer.handleMessage(&kafka.Message{Value: payload}))
	assert.Equal(t, sampleTrips(), repo.AllTrips())

	assert.Error(t, consumer.handleMessage(&kafka.Message{Value: []byte("{not json")}))
	assert.Len(t, repo.AllTrips(), 1, "bad message leaves the snapshot alone")
}

func TestConsumer_RunRelaysToSubscribers(t *testing.T) {
	repo := snapshot.New(4, nil)
	sub, err := repo.Subscribe()
	require.NoError(t, err)
	defer sub.Close()

	good, err := encodeMessage("evt-1", sampleTrips(), time.Now())
	require.NoError(t, err)
	fake := &fakeConsumer{queue: []*kafka.Message{
		{Value: []byte("garbage")},
		{Key: []byte("evt-1"), Value: good},
	}}
	consumer := newConsumer(fake, "trip-updates", repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "T1", ev.Trips[0].TripID)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not install the relayed trips")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, []string{"trip-updates"}, fake.subscribed)
	assert.True(t, fake.closed)
}

func TestEncodeMessage_NilTrips(t *testing.T) {
	payload, err := encodeMessage("evt", nil, time.UnixMilli(1700000000000))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"evt","trips":[],"timestamp":1700000000000}`, string(payload))
}
